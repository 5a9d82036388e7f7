// Package booking turns booking requests into consistent booking and time
// slot state. Every path that creates or cancels a booking goes through the
// Coordinator; the slot's booked flag is the only guard against double
// booking.
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/slotlock"
	"github.com/codr1/courtbook/internal/store"
)

type ClaimMode string

const (
	// ClaimAtomic claims the slot with a conditional update inside the same
	// transaction that inserts the booking.
	ClaimAtomic ClaimMode = "atomic"
	// ClaimLocked runs the read-check-write sequence under a per-slot lock.
	ClaimLocked ClaimMode = "locked"
	// ClaimLegacy runs the read-check-write sequence unguarded. Two requests
	// for the same slot can both pass the check.
	ClaimLegacy ClaimMode = "legacy"
)

func ParseClaimMode(value string) (ClaimMode, error) {
	switch mode := ClaimMode(value); mode {
	case ClaimAtomic, ClaimLocked, ClaimLegacy:
		return mode, nil
	case "":
		return ClaimAtomic, nil
	default:
		return "", fmt.Errorf("unknown claim mode %q", value)
	}
}

// Notifier is told about committed booking changes. Implementations must not
// block the caller for long.
type Notifier interface {
	BookingCreated(ctx context.Context, booking models.Booking, court models.Court)
	BookingStatusChanged(ctx context.Context, booking models.Booking, court models.Court, previous models.BookingStatus)
}

type Options struct {
	ClaimMode ClaimMode
	// AllowAnyTransition disables the status state machine so any status may
	// follow any other.
	AllowAnyTransition bool
	// Locker guards slots in ClaimLocked mode. Defaults to an in-process locker.
	Locker   slotlock.Locker
	Notifier Notifier
}

type Coordinator struct {
	store              store.Store
	mode               ClaimMode
	allowAnyTransition bool
	locker             slotlock.Locker
	notifier           Notifier
}

func New(s store.Store, opts Options) (*Coordinator, error) {
	mode, err := ParseClaimMode(string(opts.ClaimMode))
	if err != nil {
		return nil, err
	}
	locker := opts.Locker
	if locker == nil && mode == ClaimLocked {
		locker = slotlock.NewLocal()
	}
	return &Coordinator{
		store:              s,
		mode:               mode,
		allowAnyTransition: opts.AllowAnyTransition,
		locker:             locker,
		notifier:           opts.Notifier,
	}, nil
}

func (c *Coordinator) Mode() ClaimMode {
	return c.mode
}

type CreateRequest struct {
	CourtID    int64
	UserID     int64
	Date       string
	StartTime  time.Time
	EndTime    time.Time
	TotalPrice int64
}

func (r CreateRequest) validate() error {
	switch {
	case r.CourtID <= 0:
		return invalidRequest("courtId is required")
	case r.UserID <= 0:
		return invalidRequest("userId is required")
	case r.StartTime.IsZero() || r.EndTime.IsZero():
		return invalidRequest("startTime and endTime are required")
	case !r.StartTime.Before(r.EndTime):
		return invalidRequest("startTime must be before endTime")
	case r.Date != models.DayOf(r.StartTime):
		return invalidRequest("date %q does not match startTime day %s", r.Date, models.DayOf(r.StartTime))
	case r.TotalPrice < 0:
		return invalidRequest("totalPrice must not be negative")
	}
	return nil
}

func (r CreateRequest) lockKey() slotlock.Key {
	return slotlock.Key{
		CourtID: r.CourtID,
		Start:   models.NormalizeTime(r.StartTime),
		End:     models.NormalizeTime(r.EndTime),
	}
}

// CreateBooking books the time slot that exactly matches the request and
// returns the new pending booking.
func (c *Coordinator) CreateBooking(ctx context.Context, req CreateRequest) (models.Booking, error) {
	if err := req.validate(); err != nil {
		metrics.RecordBookingAttempt(string(c.mode), metrics.OutcomeInvalid)
		return models.Booking{}, err
	}

	var (
		created models.Booking
		court   models.Court
		err     error
	)
	switch c.mode {
	case ClaimAtomic:
		err = c.store.RunInTx(ctx, func(tx store.Store) error {
			created, court, err = c.claimAtomic(ctx, tx, req)
			return err
		})
	case ClaimLocked:
		created, court, err = c.claimLocked(ctx, req)
	default:
		created, court, err = c.claimUnguarded(ctx, c.store, req)
	}

	metrics.RecordBookingAttempt(string(c.mode), outcomeOf(err))
	if err != nil {
		return models.Booking{}, err
	}

	log.Ctx(ctx).Info().
		Int64("booking_id", created.ID).
		Int64("court_id", created.CourtID).
		Int64("user_id", created.UserID).
		Str("claim_mode", string(c.mode)).
		Msg("Booking created")

	if c.notifier != nil {
		c.notifier.BookingCreated(ctx, created, court)
	}
	return created, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeCreated
	case errors.Is(err, ErrNoMatchingSlot):
		return metrics.OutcomeNoMatchingSlot
	case errors.Is(err, ErrSlotAlreadyBooked):
		return metrics.OutcomeAlreadyBooked
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNotFound):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

func (c *Coordinator) claimAtomic(ctx context.Context, tx store.Store, req CreateRequest) (models.Booking, models.Court, error) {
	court, slot, err := findSlot(ctx, tx, req)
	if err != nil {
		return models.Booking{}, models.Court{}, err
	}
	if slot.IsBooked {
		return models.Booking{}, models.Court{}, ErrSlotAlreadyBooked
	}

	claimed, err := tx.TimeSlots().Claim(ctx, slot.ID)
	if err != nil {
		return models.Booking{}, models.Court{}, fmt.Errorf("claim slot %d: %w", slot.ID, err)
	}
	if !claimed {
		return models.Booking{}, models.Court{}, ErrSlotAlreadyBooked
	}

	created, err := tx.Bookings().Create(ctx, newBooking(req))
	if err != nil {
		return models.Booking{}, models.Court{}, fmt.Errorf("create booking: %w", err)
	}
	return created, court, nil
}

func (c *Coordinator) claimLocked(ctx context.Context, req CreateRequest) (models.Booking, models.Court, error) {
	release, err := c.lock(ctx, req.lockKey())
	if err != nil {
		return models.Booking{}, models.Court{}, err
	}
	defer release()
	return c.claimUnguarded(ctx, c.store, req)
}

func (c *Coordinator) lock(ctx context.Context, key slotlock.Key) (func(), error) {
	started := time.Now()
	release, err := c.locker.Lock(ctx, key)
	metrics.SlotLockWait.Observe(time.Since(started).Seconds())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return release, nil
}

// claimUnguarded reads the slot, checks it, inserts the booking and only then
// flips the flag. If the flip fails the booking is cancelled so no active
// booking is left without a booked slot.
func (c *Coordinator) claimUnguarded(ctx context.Context, s store.Store, req CreateRequest) (models.Booking, models.Court, error) {
	court, slot, err := findSlot(ctx, s, req)
	if err != nil {
		return models.Booking{}, models.Court{}, err
	}
	if slot.IsBooked {
		return models.Booking{}, models.Court{}, ErrSlotAlreadyBooked
	}

	created, err := s.Bookings().Create(ctx, newBooking(req))
	if err != nil {
		return models.Booking{}, models.Court{}, fmt.Errorf("create booking: %w", err)
	}

	if _, err := s.TimeSlots().SetBooked(ctx, slot.ID, true); err != nil {
		if _, cerr := s.Bookings().UpdateStatus(ctx, created.ID, models.BookingCancelled); cerr != nil {
			log.Ctx(ctx).Error().Err(cerr).
				Int64("booking_id", created.ID).
				Msg("Failed to cancel booking after slot update failure")
		}
		return models.Booking{}, models.Court{}, fmt.Errorf("mark slot %d booked: %w", slot.ID, err)
	}
	return created, court, nil
}

func newBooking(req CreateRequest) models.Booking {
	return models.Booking{
		CourtID:    req.CourtID,
		UserID:     req.UserID,
		Date:       req.Date,
		StartTime:  models.NormalizeTime(req.StartTime),
		EndTime:    models.NormalizeTime(req.EndTime),
		Status:     models.BookingPending,
		TotalPrice: req.TotalPrice,
	}
}

func findSlot(ctx context.Context, s store.Store, req CreateRequest) (models.Court, models.TimeSlot, error) {
	court, err := s.Courts().GetByID(ctx, req.CourtID)
	if err != nil {
		return models.Court{}, models.TimeSlot{}, courtLookupErr(req.CourtID, err)
	}

	slot, ok, err := matchSlot(ctx, s, req.CourtID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return models.Court{}, models.TimeSlot{}, err
	}
	if !ok {
		return models.Court{}, models.TimeSlot{}, ErrNoMatchingSlot
	}
	return court, slot, nil
}

// matchSlot finds the slot whose bounds equal start and end exactly.
func matchSlot(ctx context.Context, s store.Store, courtID int64, date string, start, end time.Time) (models.TimeSlot, bool, error) {
	slots, err := s.TimeSlots().ListByCourtAndDate(ctx, courtID, date)
	if err != nil {
		return models.TimeSlot{}, false, fmt.Errorf("list slots for court %d on %s: %w", courtID, date, err)
	}
	for _, slot := range slots {
		if slot.Matches(start, end) {
			return slot, true, nil
		}
	}
	return models.TimeSlot{}, false, nil
}

// UpdateBookingStatus moves a booking to status on behalf of requesterID,
// who must be the booker or the court owner. Cancelling an active booking
// frees its slot.
func (c *Coordinator) UpdateBookingStatus(ctx context.Context, bookingID int64, status models.BookingStatus, requesterID int64) (models.Booking, error) {
	if !status.Valid() {
		return models.Booking{}, ErrInvalidStatus
	}

	var (
		updated  models.Booking
		court    models.Court
		previous models.BookingStatus
		err      error
	)
	apply := func(s store.Store) error {
		updated, court, previous, err = c.applyStatus(ctx, s, bookingID, status, requesterID)
		return err
	}

	switch c.mode {
	case ClaimAtomic:
		err = c.store.RunInTx(ctx, apply)
	case ClaimLocked:
		err = c.withBookingLock(ctx, bookingID, func() error { return apply(c.store) })
	default:
		err = apply(c.store)
	}
	if err != nil {
		return models.Booking{}, err
	}

	metrics.RecordTransition(string(previous), string(status))
	log.Ctx(ctx).Info().
		Int64("booking_id", updated.ID).
		Int64("user_id", requesterID).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("Booking status updated")

	if c.notifier != nil {
		c.notifier.BookingStatusChanged(ctx, updated, court, previous)
	}
	return updated, nil
}

// withBookingLock holds the slot lock of the booking's interval while fn runs
// so a cancellation cannot interleave with a claim on the same slot.
func (c *Coordinator) withBookingLock(ctx context.Context, bookingID int64, fn func() error) error {
	current, err := c.store.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("booking", bookingID)
		}
		return fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	release, err := c.lock(ctx, slotlock.Key{
		CourtID: current.CourtID,
		Start:   models.NormalizeTime(current.StartTime),
		End:     models.NormalizeTime(current.EndTime),
	})
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (c *Coordinator) applyStatus(ctx context.Context, s store.Store, bookingID int64, status models.BookingStatus, requesterID int64) (models.Booking, models.Court, models.BookingStatus, error) {
	current, err := s.Bookings().GetByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Booking{}, models.Court{}, "", notFound("booking", bookingID)
		}
		return models.Booking{}, models.Court{}, "", fmt.Errorf("load booking %d: %w", bookingID, err)
	}

	court, err := s.Courts().GetByID(ctx, current.CourtID)
	if err != nil {
		return models.Booking{}, models.Court{}, "", courtLookupErr(current.CourtID, err)
	}

	if requesterID != current.UserID && requesterID != court.OwnerID {
		return models.Booking{}, models.Court{}, "", ErrNotAuthorized
	}

	if !c.allowAnyTransition && !CanTransition(current.Status, status) {
		return models.Booking{}, models.Court{}, "", fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, status)
	}

	updated, err := s.Bookings().UpdateStatus(ctx, bookingID, status)
	if err != nil {
		return models.Booking{}, models.Court{}, "", fmt.Errorf("update booking %d: %w", bookingID, err)
	}

	// Freeing on a repeated cancel could release a slot that somebody else
	// has booked since.
	if status == models.BookingCancelled && c.holdsSlot(current.Status) {
		if err := freeSlot(ctx, s, current); err != nil {
			return models.Booking{}, models.Court{}, "", err
		}
	}
	return updated, court, current.Status, nil
}

// holdsSlot reports whether a booking in status keeps its slot booked.
// Without the state machine a completed booking can still be cancelled, so
// every status but cancelled holds the slot.
func (c *Coordinator) holdsSlot(status models.BookingStatus) bool {
	if c.allowAnyTransition {
		return status != models.BookingCancelled
	}
	return status.Active()
}

func freeSlot(ctx context.Context, s store.Store, b models.Booking) error {
	slot, ok, err := matchSlot(ctx, s, b.CourtID, b.Date, b.StartTime, b.EndTime)
	if err != nil {
		return err
	}
	if !ok {
		log.Ctx(ctx).Warn().
			Int64("booking_id", b.ID).
			Int64("court_id", b.CourtID).
			Msg("No time slot matches cancelled booking")
		return nil
	}
	if _, err := s.TimeSlots().SetBooked(ctx, slot.ID, false); err != nil {
		return fmt.Errorf("free slot %d: %w", slot.ID, err)
	}
	return nil
}

// CompleteEndedBookings marks confirmed bookings that ended at or before now
// as completed and returns how many changed.
func (c *Coordinator) CompleteEndedBookings(ctx context.Context, now time.Time) (int, error) {
	ended, err := c.store.Bookings().ListEnded(ctx, models.BookingConfirmed, now)
	if err != nil {
		return 0, fmt.Errorf("list ended bookings: %w", err)
	}

	completed := 0
	for _, b := range ended {
		changed := false
		err := c.store.RunInTx(ctx, func(tx store.Store) error {
			current, err := tx.Bookings().GetByID(ctx, b.ID)
			if err != nil {
				return err
			}
			// A concurrent cancel wins.
			if current.Status != models.BookingConfirmed {
				return nil
			}
			if _, err := tx.Bookings().UpdateStatus(ctx, b.ID, models.BookingCompleted); err != nil {
				return err
			}
			changed = true
			return nil
		})
		if err != nil {
			return completed, fmt.Errorf("complete booking %d: %w", b.ID, err)
		}
		if changed {
			completed++
			metrics.RecordTransition(string(models.BookingConfirmed), string(models.BookingCompleted))
		}
	}
	return completed, nil
}
