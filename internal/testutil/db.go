package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/db"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
	"github.com/codr1/courtbook/internal/store/sqlstore"
)

// NewTestDB creates a temporary SQLite database with migrations applied.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := db.New(dbPath)
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	return database
}

// NewTestStore returns a SQLite-backed store on a fresh database.
func NewTestStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	return sqlstore.New(NewTestDB(t))
}

// Fixture is a court owner, a player, and one court with a single slot.
type Fixture struct {
	Owner  models.User
	Player models.User
	Court  models.Court
	Slot   models.TimeSlot
}

// SlotDay is the calendar day fixtures are seeded on.
const SlotDay = "2025-03-14"

// SlotStart is 09:00 UTC on SlotDay.
var SlotStart = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// Seed creates the standard fixture: a one hour slot from 09:00 to 10:00.
func Seed(t *testing.T, s store.Store) Fixture {
	t.Helper()
	ctx := context.Background()

	owner := CreateUser(t, s, "owner", true)
	player := CreateUser(t, s, "player", false)
	court, err := s.Courts().Create(ctx, models.Court{
		Name:         "Center Court",
		Description:  "Indoor hard court",
		Location:     "Ba Dinh, Hanoi",
		PricePerHour: 200000,
		OwnerID:      owner.ID,
		Amenities:    []string{"lights"},
	})
	if err != nil {
		t.Fatalf("create court: %v", err)
	}
	slot := CreateSlot(t, s, court.ID, SlotStart, time.Hour)

	return Fixture{Owner: owner, Player: player, Court: court, Slot: slot}
}

func CreateUser(t *testing.T, s store.Store, username string, owner bool) models.User {
	t.Helper()
	user, err := s.Users().Create(context.Background(), models.User{
		Username:     username,
		PasswordHash: "unused",
		Email:        username + "@example.com",
		Name:         username,
		IsCourtOwner: owner,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func CreateSlot(t *testing.T, s store.Store, courtID int64, start time.Time, length time.Duration) models.TimeSlot {
	t.Helper()
	slot, err := s.TimeSlots().Create(context.Background(), models.TimeSlot{
		CourtID:   courtID,
		Date:      models.DayOf(start),
		StartTime: start,
		EndTime:   start.Add(length),
	})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return slot
}
