package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

func TestGenerateDaySlots(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine.name, func(t *testing.T) {
			s := engine.open(t)
			ctx := context.Background()
			owner, err := s.Users().Create(ctx, models.User{Username: "owner", Email: "owner@example.com", Name: "Owner", PasswordHash: "x", IsCourtOwner: true})
			if err != nil {
				t.Fatalf("create owner: %v", err)
			}
			court, err := s.Courts().Create(ctx, models.Court{Name: "Center", OwnerID: owner.ID})
			if err != nil {
				t.Fatalf("create court: %v", err)
			}

			req := GenerateRequest{CourtID: court.ID, Date: "2025-03-14", OpenHour: 6, CloseHour: 22}
			created, err := GenerateDaySlots(ctx, s, req)
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if len(created) != 16 {
				t.Fatalf("expected 16 hourly slots, got %d", len(created))
			}

			slots, err := s.TimeSlots().ListByCourtAndDate(ctx, court.ID, "2025-03-14")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(slots) != 16 {
				t.Fatalf("expected 16 stored slots, got %d", len(slots))
			}
			for i, slot := range slots {
				if slot.IsBooked {
					t.Fatalf("slot %d is booked", slot.ID)
				}
				wantStart := time.Date(2025, 3, 14, 6+i, 0, 0, 0, time.UTC)
				if !slot.StartTime.Equal(wantStart) || slot.EndTime.Sub(slot.StartTime) != time.Hour {
					t.Fatalf("slot %d: %v - %v", i, slot.StartTime, slot.EndTime)
				}
			}

			again, err := GenerateDaySlots(ctx, s, req)
			if err != nil {
				t.Fatalf("regenerate: %v", err)
			}
			if len(again) != 0 {
				t.Fatalf("regenerating should skip existing slots, created %d", len(again))
			}
		})
	}
}

func TestGenerateDaySlotsLongerUnits(t *testing.T) {
	s := engines[0].open(t)
	ctx := context.Background()
	owner, _ := s.Users().Create(ctx, models.User{Username: "owner", Email: "owner@example.com"})
	court, _ := s.Courts().Create(ctx, models.Court{Name: "Center", OwnerID: owner.ID})

	created, err := GenerateDaySlots(ctx, s, GenerateRequest{CourtID: court.ID, Date: "2025-03-14", OpenHour: 8, CloseHour: 13, SlotMinutes: 90})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	// 08:00, 09:30, 11:00; 12:30-14:00 would pass closing time.
	if len(created) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(created))
	}
	if got := created[2].EndTime; !got.Equal(time.Date(2025, 3, 14, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("last slot ends at %v", got)
	}
}

func TestGenerateDaySlotsValidation(t *testing.T) {
	s := engines[0].open(t)
	ctx := context.Background()

	tests := []GenerateRequest{
		{CourtID: 1, Date: "14/03/2025", OpenHour: 6, CloseHour: 22},
		{CourtID: 1, Date: "2025-03-14", OpenHour: 22, CloseHour: 6},
		{CourtID: 1, Date: "2025-03-14", OpenHour: 6, CloseHour: 25},
		{CourtID: 1, Date: "2025-03-14", OpenHour: 6, CloseHour: 7, SlotMinutes: 90},
		{CourtID: 1, Date: "2025-03-14", OpenHour: 6, CloseHour: 7, SlotMinutes: -30},
		{CourtID: 0, Date: "2025-03-14", OpenHour: 6, CloseHour: 7},
	}
	for _, req := range tests {
		if _, err := GenerateDaySlots(ctx, s, req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%+v: expected ErrInvalidRequest, got %v", req, err)
		}
	}

	if _, err := GenerateDaySlots(ctx, s, GenerateRequest{CourtID: 42, Date: "2025-03-14", OpenHour: 6, CloseHour: 7}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown court: expected ErrNotFound, got %v", err)
	}
}
