package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

const DefaultSlotMinutes = 60

// GenerateRequest describes a day of consecutive, equally sized slots
// between OpenHour and CloseHour (UTC).
type GenerateRequest struct {
	CourtID     int64
	Date        string
	OpenHour    int
	CloseHour   int
	SlotMinutes int
}

func (r GenerateRequest) validate() (time.Time, error) {
	day, err := time.Parse(models.DayLayout, r.Date)
	if err != nil {
		return time.Time{}, invalidRequest("date must be YYYY-MM-DD")
	}
	switch {
	case r.CourtID <= 0:
		return time.Time{}, invalidRequest("courtId is required")
	case r.OpenHour < 0 || r.CloseHour > 24 || r.OpenHour >= r.CloseHour:
		return time.Time{}, invalidRequest("opening hours must satisfy 0 <= open < close <= 24")
	case r.SlotMinutes < 0:
		return time.Time{}, invalidRequest("slotMinutes must be positive")
	case r.SlotMinutes > (r.CloseHour-r.OpenHour)*60:
		return time.Time{}, invalidRequest("slotMinutes exceeds opening hours")
	}
	return day, nil
}

// GenerateDaySlots creates the slots described by req in one transaction and
// returns the ones it created. Slots that already exist with the same bounds
// are skipped, so repeating a request is harmless. A trailing interval
// shorter than SlotMinutes is not created.
func GenerateDaySlots(ctx context.Context, s store.Store, req GenerateRequest) ([]models.TimeSlot, error) {
	if req.SlotMinutes == 0 {
		req.SlotMinutes = DefaultSlotMinutes
	}
	day, err := req.validate()
	if err != nil {
		return nil, err
	}

	length := time.Duration(req.SlotMinutes) * time.Minute
	closing := day.Add(time.Duration(req.CloseHour) * time.Hour)

	var created []models.TimeSlot
	err = s.RunInTx(ctx, func(tx store.Store) error {
		if _, err := tx.Courts().GetByID(ctx, req.CourtID); err != nil {
			return courtLookupErr(req.CourtID, err)
		}
		existing, err := tx.TimeSlots().ListByCourtAndDate(ctx, req.CourtID, req.Date)
		if err != nil {
			return fmt.Errorf("list slots: %w", err)
		}

		for start := day.Add(time.Duration(req.OpenHour) * time.Hour); !start.Add(length).After(closing); start = start.Add(length) {
			end := start.Add(length)
			if containsSlot(existing, start, end) {
				continue
			}
			slot, err := tx.TimeSlots().Create(ctx, models.TimeSlot{
				CourtID:   req.CourtID,
				Date:      req.Date,
				StartTime: start,
				EndTime:   end,
			})
			if err != nil {
				return fmt.Errorf("create slot at %s: %w", start.Format(time.RFC3339), err)
			}
			created = append(created, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func containsSlot(slots []models.TimeSlot, start, end time.Time) bool {
	for _, slot := range slots {
		if slot.Matches(start, end) {
			return true
		}
	}
	return false
}
