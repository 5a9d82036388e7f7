package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/config"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

const (
	BookingCompletionJob   = "booking_completion"
	PlayerRequestExpiryJob = "player_request_expiry"
)

// Maintenance holds the jobs that keep booking and player request state in
// step with the clock.
type Maintenance struct {
	Coordinator *booking.Coordinator
	Store       store.Store
	// Now defaults to time.Now.
	Now func() time.Time
}

func (m Maintenance) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

// CompleteEndedBookings moves confirmed bookings whose end time has passed
// to completed.
func (m Maintenance) CompleteEndedBookings(ctx context.Context) error {
	completed, err := m.Coordinator.CompleteEndedBookings(ctx, m.now())
	if completed > 0 {
		log.Ctx(ctx).Info().Int("completed", completed).Msg("Completed ended bookings")
	}
	return err
}

// ExpirePlayerRequests expires active player requests dated before today.
func (m Maintenance) ExpirePlayerRequests(ctx context.Context) error {
	today := models.DayOf(m.now())
	expired, err := m.Store.PlayerRequests().ExpireBefore(ctx, today)
	if err != nil {
		return fmt.Errorf("expire player requests before %s: %w", today, err)
	}
	if expired > 0 {
		log.Ctx(ctx).Info().Int64("expired", expired).Str("before", today).Msg("Expired player requests")
	}
	return nil
}

// Register adds both maintenance jobs to svc on the configured schedules.
func (m Maintenance) Register(svc *Service, cfg config.SchedulerConfig) error {
	if m.Coordinator == nil || m.Store == nil {
		return fmt.Errorf("maintenance jobs require a coordinator and a store")
	}
	if _, err := svc.AddJob(BookingCompletionJob, cfg.BookingCompletionCron, m.CompleteEndedBookings); err != nil {
		return fmt.Errorf("add %s job: %w", BookingCompletionJob, err)
	}
	if _, err := svc.AddJob(PlayerRequestExpiryJob, cfg.PlayerRequestExpiryCron, m.ExpirePlayerRequests); err != nil {
		return fmt.Errorf("add %s job: %w", PlayerRequestExpiryJob, err)
	}
	return nil
}
