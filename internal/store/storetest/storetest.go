// Package storetest holds the behaviour every store engine must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

// Run exercises a fresh store from newStore for each subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"UsersUniqueCaseInsensitive", testUsersUnique},
		{"CourtsCRUDAndSearch", testCourts},
		{"CourtDeleteWithBookingsConflicts", testCourtDeleteConflict},
		{"TimeSlotsOrderedAndClaimedOnce", testTimeSlots},
		{"BookingsListingsAndStatus", testBookings},
		{"ReviewsOnePerUser", testReviews},
		{"ChatsConversation", testChats},
		{"PlayerRequestsExpire", testPlayerRequests},
		{"RunInTxRollsBack", testRunInTxRollback},
		{"RunInTxNested", testRunInTxNested},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func day(t *testing.T, value string, hour int) time.Time {
	t.Helper()
	parsed, err := time.Parse(models.DayLayout, value)
	if err != nil {
		t.Fatalf("parse day: %v", err)
	}
	return parsed.Add(time.Duration(hour) * time.Hour)
}

func mustUser(t *testing.T, s store.Store, username string, owner bool) models.User {
	t.Helper()
	user, err := s.Users().Create(context.Background(), models.User{
		Username:     username,
		PasswordHash: "hash",
		Email:        username + "@example.com",
		Name:         username,
		IsCourtOwner: owner,
	})
	if err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
	return user
}

func mustCourt(t *testing.T, s store.Store, ownerID int64, name, location string) models.Court {
	t.Helper()
	court, err := s.Courts().Create(context.Background(), models.Court{
		Name:         name,
		Location:     location,
		PricePerHour: 200000,
		OwnerID:      ownerID,
		Amenities:    []string{"lights", "parking"},
	})
	if err != nil {
		t.Fatalf("create court %s: %v", name, err)
	}
	return court
}

func mustSlot(t *testing.T, s store.Store, courtID int64, date string, hour int) models.TimeSlot {
	t.Helper()
	slot, err := s.TimeSlots().Create(context.Background(), models.TimeSlot{
		CourtID:   courtID,
		Date:      date,
		StartTime: day(t, date, hour),
		EndTime:   day(t, date, hour+1),
	})
	if err != nil {
		t.Fatalf("create slot: %v", err)
	}
	return slot
}

func testUsersUnique(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice := mustUser(t, s, "alice", false)
	if alice.ID == 0 {
		t.Fatal("expected assigned id")
	}

	_, err := s.Users().Create(ctx, models.User{Username: "ALICE", Email: "other@example.com", PasswordHash: "x", Name: "A"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate username: expected ErrConflict, got %v", err)
	}
	_, err = s.Users().Create(ctx, models.User{Username: "alice2", Email: "Alice@Example.com", PasswordHash: "x", Name: "A"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("duplicate email: expected ErrConflict, got %v", err)
	}

	found, err := s.Users().GetByUsername(ctx, "Alice")
	if err != nil || found.ID != alice.ID {
		t.Fatalf("lookup by username: %+v %v", found, err)
	}
	found, err = s.Users().GetByEmail(ctx, "ALICE@example.com")
	if err != nil || found.ID != alice.ID {
		t.Fatalf("lookup by email: %+v %v", found, err)
	}
	if _, err := s.Users().GetByID(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testCourts(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "owner", true)
	other := mustUser(t, s, "other", true)
	hanoi := mustCourt(t, s, owner.ID, "West Lake", "Tay Ho, Hanoi")
	mustCourt(t, s, other.ID, "Riverside", "District 2, Ho Chi Minh City")

	if len(hanoi.Amenities) != 2 {
		t.Fatalf("amenities: %v", hanoi.Amenities)
	}

	all, err := s.Courts().List(ctx, store.CourtFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("list all: %d %v", len(all), err)
	}
	matched, err := s.Courts().List(ctx, store.CourtFilter{Location: "hanoi"})
	if err != nil || len(matched) != 1 || matched[0].ID != hanoi.ID {
		t.Fatalf("search: %+v %v", matched, err)
	}
	owned, err := s.Courts().ListByOwner(ctx, other.ID)
	if err != nil || len(owned) != 1 || owned[0].Name != "Riverside" {
		t.Fatalf("by owner: %+v %v", owned, err)
	}

	hanoi.Name = "West Lake Indoor"
	hanoi.Amenities = []string{"roof"}
	hanoi.OwnerID = other.ID
	updated, err := s.Courts().Update(ctx, hanoi)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "West Lake Indoor" || updated.OwnerID != owner.ID || len(updated.Amenities) != 1 {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	for _, rating := range []int64{5, 4} {
		if err := s.Courts().AddRating(ctx, hanoi.ID, rating); err != nil {
			t.Fatalf("add rating: %v", err)
		}
	}
	rated, err := s.Courts().GetByID(ctx, hanoi.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rated.RatingSum != 9 || rated.RatingCount != 2 {
		t.Fatalf("rating totals: %d/%d", rated.RatingSum, rated.RatingCount)
	}

	if err := s.Courts().Delete(ctx, hanoi.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.Courts().Delete(ctx, hanoi.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func testCourtDeleteConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "owner", true)
	player := mustUser(t, s, "player", false)
	court := mustCourt(t, s, owner.ID, "Center", "Hanoi")
	slot := mustSlot(t, s, court.ID, "2025-03-14", 9)

	if _, err := s.Bookings().Create(ctx, models.Booking{
		CourtID: court.ID, UserID: player.ID, Date: slot.Date,
		StartTime: slot.StartTime, EndTime: slot.EndTime, Status: models.BookingPending,
	}); err != nil {
		t.Fatalf("create booking: %v", err)
	}
	if err := s.Courts().Delete(ctx, court.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func testTimeSlots(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "owner", true)
	court := mustCourt(t, s, owner.ID, "Center", "Hanoi")
	late := mustSlot(t, s, court.ID, "2025-03-14", 18)
	early := mustSlot(t, s, court.ID, "2025-03-14", 6)
	mustSlot(t, s, court.ID, "2025-03-15", 6)

	slots, err := s.TimeSlots().ListByCourtAndDate(ctx, court.ID, "2025-03-14")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(slots) != 2 || slots[0].ID != early.ID || slots[1].ID != late.ID {
		t.Fatalf("unexpected order: %+v", slots)
	}
	if !slots[0].StartTime.Equal(day(t, "2025-03-14", 6)) || slots[0].StartTime.Location() != time.UTC {
		t.Fatalf("start time not preserved in UTC: %v", slots[0].StartTime)
	}

	claimed, err := s.TimeSlots().Claim(ctx, early.ID)
	if err != nil || !claimed {
		t.Fatalf("first claim: %v %v", claimed, err)
	}
	claimed, err = s.TimeSlots().Claim(ctx, early.ID)
	if err != nil || claimed {
		t.Fatalf("second claim should not flip: %v %v", claimed, err)
	}

	freed, err := s.TimeSlots().SetBooked(ctx, early.ID, false)
	if err != nil || freed.IsBooked {
		t.Fatalf("set booked false: %+v %v", freed, err)
	}
	if _, err := s.TimeSlots().SetBooked(ctx, 999, true); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testBookings(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "owner", true)
	player := mustUser(t, s, "player", false)
	court := mustCourt(t, s, owner.ID, "Center", "Hanoi")

	create := func(hour int, status models.BookingStatus) models.Booking {
		b, err := s.Bookings().Create(ctx, models.Booking{
			CourtID: court.ID, UserID: player.ID, Date: "2025-03-14",
			StartTime: day(t, "2025-03-14", hour), EndTime: day(t, "2025-03-14", hour+1),
			Status: status, TotalPrice: 200000,
		})
		if err != nil {
			t.Fatalf("create booking: %v", err)
		}
		return b
	}
	morning := create(8, models.BookingConfirmed)
	evening := create(18, models.BookingPending)

	byUser, err := s.Bookings().ListByUser(ctx, player.ID)
	if err != nil || len(byUser) != 2 || byUser[0].ID != evening.ID {
		t.Fatalf("by user should be newest first: %+v %v", byUser, err)
	}
	byCourt, err := s.Bookings().ListByCourt(ctx, court.ID)
	if err != nil || len(byCourt) != 2 || byCourt[0].ID != morning.ID {
		t.Fatalf("by court should be earliest first: %+v %v", byCourt, err)
	}

	ended, err := s.Bookings().ListEnded(ctx, models.BookingConfirmed, day(t, "2025-03-14", 9))
	if err != nil || len(ended) != 1 || ended[0].ID != morning.ID {
		t.Fatalf("ended: %+v %v", ended, err)
	}

	updated, err := s.Bookings().UpdateStatus(ctx, morning.ID, models.BookingCompleted)
	if err != nil || updated.Status != models.BookingCompleted {
		t.Fatalf("update status: %+v %v", updated, err)
	}
	if _, err := s.Bookings().GetByID(ctx, 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testReviews(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "owner", true)
	player := mustUser(t, s, "player", false)
	court := mustCourt(t, s, owner.ID, "Center", "Hanoi")

	review, err := s.Reviews().Create(ctx, models.Review{CourtID: court.ID, UserID: player.ID, Rating: 4, Comment: "good"})
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	if review.CreatedAt.IsZero() {
		t.Fatal("expected created at to be set")
	}
	if _, err := s.Reviews().Create(ctx, models.Review{CourtID: court.ID, UserID: player.ID, Rating: 5}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	found, err := s.Reviews().GetByUserAndCourt(ctx, player.ID, court.ID)
	if err != nil || found.ID != review.ID {
		t.Fatalf("get by user and court: %+v %v", found, err)
	}
	list, err := s.Reviews().ListByCourt(ctx, court.ID)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %+v %v", list, err)
	}
}

func testChats(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := mustUser(t, s, "a", false)
	b := mustUser(t, s, "b", false)
	c := mustUser(t, s, "c", false)
	base := day(t, "2025-03-14", 10)

	send := func(from, to int64, offset time.Duration, text string) {
		if _, err := s.Chats().Create(ctx, models.ChatMessage{SenderID: from, ReceiverID: to, Message: text, SentAt: base.Add(offset)}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	send(a.ID, b.ID, 0, "hi")
	send(b.ID, a.ID, time.Minute, "hello")
	send(a.ID, b.ID, 2*time.Minute, "game?")
	send(a.ID, c.ID, 3*time.Minute, "unrelated")

	conv, err := s.Chats().ListConversation(ctx, b.ID, a.ID)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if len(conv) != 3 || conv[0].Message != "hi" || conv[2].Message != "game?" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	marked, err := s.Chats().MarkRead(ctx, a.ID, b.ID)
	if err != nil || marked != 2 {
		t.Fatalf("mark read: %d %v", marked, err)
	}
	marked, err = s.Chats().MarkRead(ctx, a.ID, b.ID)
	if err != nil || marked != 0 {
		t.Fatalf("second mark read: %d %v", marked, err)
	}
}

func testPlayerRequests(t *testing.T, s store.Store) {
	ctx := context.Background()
	player := mustUser(t, s, "player", false)

	create := func(date string) models.PlayerRequest {
		req, err := s.PlayerRequests().Create(ctx, models.PlayerRequest{
			UserID: player.ID, Location: "Hanoi", Date: date, TimeRange: "18:00-20:00",
		})
		if err != nil {
			t.Fatalf("create request: %v", err)
		}
		return req
	}
	old := create("2025-03-10")
	current := create("2025-03-20")
	if old.Status != models.PlayerRequestActive {
		t.Fatalf("default status: %s", old.Status)
	}

	expired, err := s.PlayerRequests().ExpireBefore(ctx, "2025-03-14")
	if err != nil || expired != 1 {
		t.Fatalf("expire: %d %v", expired, err)
	}
	active, err := s.PlayerRequests().ListActive(ctx)
	if err != nil || len(active) != 1 || active[0].ID != current.ID {
		t.Fatalf("active: %+v %v", active, err)
	}

	fulfilled, err := s.PlayerRequests().UpdateStatus(ctx, current.ID, models.PlayerRequestFulfilled)
	if err != nil || fulfilled.Status != models.PlayerRequestFulfilled {
		t.Fatalf("update: %+v %v", fulfilled, err)
	}
	mine, err := s.PlayerRequests().ListByUser(ctx, player.ID)
	if err != nil || len(mine) != 2 || mine[0].ID != current.ID {
		t.Fatalf("by user should be newest first: %+v %v", mine, err)
	}
}

func testRunInTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := mustUser(t, s, "owner", true)
	court := mustCourt(t, s, owner.ID, "Center", "Hanoi")
	slot := mustSlot(t, s, court.ID, "2025-03-14", 9)

	sentinel := errors.New("abort")
	err := s.RunInTx(ctx, func(tx store.Store) error {
		if _, err := tx.TimeSlots().Claim(ctx, slot.ID); err != nil {
			return err
		}
		if _, err := tx.Bookings().Create(ctx, models.Booking{
			CourtID: court.ID, UserID: owner.ID, Date: slot.Date,
			StartTime: slot.StartTime, EndTime: slot.EndTime, Status: models.BookingPending,
		}); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel, got %v", err)
	}

	slots, err := s.TimeSlots().ListByCourtAndDate(ctx, court.ID, slot.Date)
	if err != nil || len(slots) != 1 || slots[0].IsBooked {
		t.Fatalf("slot claim should be rolled back: %+v %v", slots, err)
	}
	bookings, err := s.Bookings().ListByCourt(ctx, court.ID)
	if err != nil || len(bookings) != 0 {
		t.Fatalf("booking should be rolled back: %+v %v", bookings, err)
	}
}

func testRunInTxNested(t *testing.T, s store.Store) {
	ctx := context.Background()
	err := s.RunInTx(ctx, func(outer store.Store) error {
		mustUser(t, outer, "outer", false)
		return outer.RunInTx(ctx, func(inner store.Store) error {
			mustUser(t, inner, "inner", false)
			return nil
		})
	})
	if err != nil {
		t.Fatalf("nested tx: %v", err)
	}
	for _, name := range []string{"outer", "inner"} {
		if _, err := s.Users().GetByUsername(ctx, name); err != nil {
			t.Fatalf("%s not committed: %v", name, err)
		}
	}
}
