package seed

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
	"github.com/codr1/courtbook/internal/store/memstore"
	"github.com/codr1/courtbook/internal/testutil"
)

var seedNow = time.Date(2025, 3, 14, 7, 30, 0, 0, time.UTC)

func TestDemoSeedsOnce(t *testing.T) {
	engines := map[string]func(t *testing.T) store.Store{
		"sqlite": func(t *testing.T) store.Store { return testutil.NewTestStore(t) },
		"memory": func(t *testing.T) store.Store { return memstore.New() },
	}
	for name, open := range engines {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)

			result, err := Demo(ctx, s, seedNow)
			if err != nil {
				t.Fatalf("seed: %v", err)
			}
			if len(result.Courts) != 3 {
				t.Fatalf("expected 3 courts, got %d", len(result.Courts))
			}
			// 13 hourly slots between 09:00 and 22:00, two days, three courts.
			if result.Slots != 13*2*3 {
				t.Fatalf("expected %d slots, got %d", 13*2*3, result.Slots)
			}

			owner, err := s.Users().GetByUsername(ctx, "janedoe")
			if err != nil || !owner.IsCourtOwner {
				t.Fatalf("expected demo owner, got %+v (%v)", owner, err)
			}
			if err := bcrypt.CompareHashAndPassword([]byte(owner.PasswordHash), []byte(DemoPassword)); err != nil {
				t.Fatalf("demo password does not match: %v", err)
			}

			owned, err := s.Courts().ListByOwner(ctx, owner.ID)
			if err != nil || len(owned) != 3 {
				t.Fatalf("expected 3 owned courts, got %d (%v)", len(owned), err)
			}
			tomorrow := models.DayOf(seedNow.AddDate(0, 0, 1))
			slots, err := s.TimeSlots().ListByCourtAndDate(ctx, owned[0].ID, tomorrow)
			if err != nil || len(slots) != 13 {
				t.Fatalf("expected 13 slots tomorrow, got %d (%v)", len(slots), err)
			}
			for _, slot := range slots {
				if slot.IsBooked {
					t.Fatalf("seeded slot %d is booked without a booking", slot.ID)
				}
			}

			requests, err := s.PlayerRequests().ListActive(ctx)
			if err != nil || len(requests) != 1 {
				t.Fatalf("expected 1 active request, got %d (%v)", len(requests), err)
			}
			if requests[0].Date != "2025-03-16" {
				t.Fatalf("unexpected request date %q", requests[0].Date)
			}

			again, err := Demo(ctx, s, seedNow)
			if err != nil {
				t.Fatalf("second seed: %v", err)
			}
			if len(again.Courts) != 0 || again.Slots != 0 {
				t.Fatalf("expected second seed to be a no-op, got %+v", again)
			}
			all, err := s.Courts().List(ctx, store.CourtFilter{})
			if err != nil || len(all) != 3 {
				t.Fatalf("expected 3 courts after reseed, got %d (%v)", len(all), err)
			}
		})
	}
}
