package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
	"github.com/codr1/courtbook/internal/store/memstore"
	"github.com/codr1/courtbook/internal/testutil"
)

var engines = []struct {
	name string
	open func(t *testing.T) store.Store
}{
	{"memory", func(t *testing.T) store.Store { return memstore.New() }},
	{"sqlite", func(t *testing.T) store.Store { return testutil.NewTestStore(t) }},
}

var modes = []ClaimMode{ClaimAtomic, ClaimLocked, ClaimLegacy}

func newCoordinator(t *testing.T, s store.Store, opts Options) *Coordinator {
	t.Helper()
	c, err := New(s, opts)
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return c
}

func requestFor(fx testutil.Fixture, userID int64) CreateRequest {
	return CreateRequest{
		CourtID:    fx.Court.ID,
		UserID:     userID,
		Date:       fx.Slot.Date,
		StartTime:  fx.Slot.StartTime,
		EndTime:    fx.Slot.EndTime,
		TotalPrice: fx.Court.PricePerHour,
	}
}

func slotBooked(t *testing.T, s store.Store, fx testutil.Fixture) bool {
	t.Helper()
	slots, err := s.TimeSlots().ListByCourtAndDate(context.Background(), fx.Court.ID, fx.Slot.Date)
	if err != nil {
		t.Fatalf("list slots: %v", err)
	}
	for _, slot := range slots {
		if slot.ID == fx.Slot.ID {
			return slot.IsBooked
		}
	}
	t.Fatalf("slot %d missing", fx.Slot.ID)
	return false
}

func TestBookCancelRebookScenario(t *testing.T) {
	for _, engine := range engines {
		for _, mode := range modes {
			t.Run(engine.name+"/"+string(mode), func(t *testing.T) {
				s := engine.open(t)
				fx := testutil.Seed(t, s)
				bob := testutil.CreateUser(t, s, "bob", false)
				c := newCoordinator(t, s, Options{ClaimMode: mode})
				ctx := context.Background()

				first, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID))
				if err != nil {
					t.Fatalf("first booking: %v", err)
				}
				if first.Status != models.BookingPending || first.TotalPrice != fx.Court.PricePerHour {
					t.Fatalf("unexpected booking: %+v", first)
				}
				if !slotBooked(t, s, fx) {
					t.Fatal("slot should be booked")
				}

				if _, err := c.CreateBooking(ctx, requestFor(fx, bob.ID)); !errors.Is(err, ErrSlotAlreadyBooked) {
					t.Fatalf("expected ErrSlotAlreadyBooked, got %v", err)
				}

				cancelled, err := c.UpdateBookingStatus(ctx, first.ID, models.BookingCancelled, fx.Player.ID)
				if err != nil {
					t.Fatalf("cancel: %v", err)
				}
				if cancelled.Status != models.BookingCancelled {
					t.Fatalf("status: %s", cancelled.Status)
				}
				if slotBooked(t, s, fx) {
					t.Fatal("slot should be free after cancel")
				}

				second, err := c.CreateBooking(ctx, requestFor(fx, bob.ID))
				if err != nil {
					t.Fatalf("rebook: %v", err)
				}
				if second.UserID != bob.ID || second.ID == first.ID {
					t.Fatalf("unexpected rebooking: %+v", second)
				}
			})
		}
	}
}

func TestCreateBookingNoMatchingSlot(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine.name, func(t *testing.T) {
			s := engine.open(t)
			fx := testutil.Seed(t, s)
			c := newCoordinator(t, s, Options{})
			ctx := context.Background()

			tests := []struct {
				name       string
				start, end time.Time
			}{
				{"different hour", fx.Slot.StartTime.Add(time.Hour), fx.Slot.EndTime.Add(time.Hour)},
				{"contained", fx.Slot.StartTime, fx.Slot.StartTime.Add(30 * time.Minute)},
				{"overlapping", fx.Slot.StartTime.Add(30 * time.Minute), fx.Slot.EndTime.Add(30 * time.Minute)},
				{"one millisecond off", fx.Slot.StartTime.Add(time.Millisecond), fx.Slot.EndTime},
			}
			for _, tc := range tests {
				req := requestFor(fx, fx.Player.ID)
				req.StartTime, req.EndTime = tc.start, tc.end
				if _, err := c.CreateBooking(ctx, req); !errors.Is(err, ErrNoMatchingSlot) {
					t.Fatalf("%s: expected ErrNoMatchingSlot, got %v", tc.name, err)
				}
			}
			if slotBooked(t, s, fx) {
				t.Fatal("slot should remain free")
			}
		})
	}
}

func TestCreateBookingMatchesAcrossTimeZones(t *testing.T) {
	s := memstore.New()
	fx := testutil.Seed(t, s)
	c := newCoordinator(t, s, Options{})

	zone := time.FixedZone("ICT", 7*60*60)
	req := requestFor(fx, fx.Player.ID)
	req.StartTime = fx.Slot.StartTime.In(zone)
	req.EndTime = fx.Slot.EndTime.In(zone)

	booking, err := c.CreateBooking(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if booking.StartTime.Location() != time.UTC {
		t.Fatalf("booking times should be stored in UTC, got %v", booking.StartTime.Location())
	}
}

func TestCreateBookingValidation(t *testing.T) {
	s := memstore.New()
	fx := testutil.Seed(t, s)
	c := newCoordinator(t, s, Options{})
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
	}{
		{"end before start", func(r *CreateRequest) { r.StartTime, r.EndTime = r.EndTime, r.StartTime }},
		{"empty interval", func(r *CreateRequest) { r.EndTime = r.StartTime }},
		{"date mismatch", func(r *CreateRequest) { r.Date = "2025-03-15" }},
		{"negative price", func(r *CreateRequest) { r.TotalPrice = -1 }},
		{"missing court", func(r *CreateRequest) { r.CourtID = 0 }},
		{"missing user", func(r *CreateRequest) { r.UserID = 0 }},
		{"missing start", func(r *CreateRequest) { r.StartTime = time.Time{} }},
	}
	for _, tc := range tests {
		req := requestFor(fx, fx.Player.ID)
		tc.mutate(&req)
		if _, err := c.CreateBooking(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", tc.name, err)
		}
	}
}

func TestCreateBookingUnknownCourt(t *testing.T) {
	s := memstore.New()
	fx := testutil.Seed(t, s)
	c := newCoordinator(t, s, Options{})

	req := requestFor(fx, fx.Player.ID)
	req.CourtID = 999
	if _, err := c.CreateBooking(context.Background(), req); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentCreateBookingSingleWinner(t *testing.T) {
	const attempts = 16
	for _, engine := range engines {
		for _, mode := range []ClaimMode{ClaimAtomic, ClaimLocked} {
			t.Run(engine.name+"/"+string(mode), func(t *testing.T) {
				s := engine.open(t)
				fx := testutil.Seed(t, s)
				c := newCoordinator(t, s, Options{ClaimMode: mode})

				users := make([]models.User, attempts)
				for i := range users {
					users[i] = testutil.CreateUser(t, s, "racer"+string(rune('a'+i)), false)
				}

				var (
					wg       sync.WaitGroup
					mu       sync.Mutex
					wins     int
					conflict int
				)
				start := make(chan struct{})
				for _, user := range users {
					wg.Add(1)
					go func(userID int64) {
						defer wg.Done()
						<-start
						_, err := c.CreateBooking(context.Background(), requestFor(fx, userID))
						mu.Lock()
						defer mu.Unlock()
						switch {
						case err == nil:
							wins++
						case errors.Is(err, ErrSlotAlreadyBooked):
							conflict++
						default:
							t.Errorf("unexpected error: %v", err)
						}
					}(user.ID)
				}
				close(start)
				wg.Wait()

				if wins != 1 || conflict != attempts-1 {
					t.Fatalf("expected 1 win and %d conflicts, got %d and %d", attempts-1, wins, conflict)
				}

				bookings, err := s.Bookings().ListByCourt(context.Background(), fx.Court.ID)
				if err != nil {
					t.Fatalf("list bookings: %v", err)
				}
				active := 0
				for _, b := range bookings {
					if b.Status.Active() {
						active++
					}
				}
				if active != 1 {
					t.Fatalf("expected exactly one active booking, got %d", active)
				}
			})
		}
	}
}

func TestUpdateBookingStatusInvalidStatus(t *testing.T) {
	s := memstore.New()
	fx := testutil.Seed(t, s)
	c := newCoordinator(t, s, Options{})
	ctx := context.Background()

	booking, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.UpdateBookingStatus(ctx, booking.ID, "archived", fx.Player.ID); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	current, err := s.Bookings().GetByID(ctx, booking.ID)
	if err != nil || current.Status != models.BookingPending {
		t.Fatalf("booking changed: %+v %v", current, err)
	}
}

func TestUpdateBookingStatusAuthorization(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine.name, func(t *testing.T) {
			s := engine.open(t)
			fx := testutil.Seed(t, s)
			stranger := testutil.CreateUser(t, s, "stranger", false)
			c := newCoordinator(t, s, Options{})
			ctx := context.Background()

			booking, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID))
			if err != nil {
				t.Fatalf("create: %v", err)
			}

			if _, err := c.UpdateBookingStatus(ctx, booking.ID, models.BookingCancelled, stranger.ID); !errors.Is(err, ErrNotAuthorized) {
				t.Fatalf("expected ErrNotAuthorized, got %v", err)
			}
			current, err := s.Bookings().GetByID(ctx, booking.ID)
			if err != nil || current.Status != models.BookingPending {
				t.Fatalf("booking changed: %+v %v", current, err)
			}
			if !slotBooked(t, s, fx) {
				t.Fatal("slot should still be booked")
			}

			confirmed, err := c.UpdateBookingStatus(ctx, booking.ID, models.BookingConfirmed, fx.Owner.ID)
			if err != nil {
				t.Fatalf("owner confirm: %v", err)
			}
			if confirmed.Status != models.BookingConfirmed {
				t.Fatalf("status: %s", confirmed.Status)
			}

			if _, err := c.UpdateBookingStatus(ctx, 999, models.BookingCancelled, fx.Owner.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestUpdateBookingStatusTransitions(t *testing.T) {
	s := memstore.New()
	fx := testutil.Seed(t, s)
	c := newCoordinator(t, s, Options{})
	ctx := context.Background()

	booking, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := c.UpdateBookingStatus(ctx, booking.ID, models.BookingCompleted, fx.Owner.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending to completed: expected ErrInvalidTransition, got %v", err)
	}
	for _, status := range []models.BookingStatus{models.BookingConfirmed, models.BookingCompleted} {
		if _, err := c.UpdateBookingStatus(ctx, booking.ID, status, fx.Owner.ID); err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
	}
	if _, err := c.UpdateBookingStatus(ctx, booking.ID, models.BookingPending, fx.Player.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("completed to pending: expected ErrInvalidTransition, got %v", err)
	}
	current, err := s.Bookings().GetByID(ctx, booking.ID)
	if err != nil || current.Status != models.BookingCompleted {
		t.Fatalf("booking changed: %+v %v", current, err)
	}
	if !slotBooked(t, s, fx) {
		t.Fatal("completing must not free the slot")
	}
}

func TestAllowAnyTransition(t *testing.T) {
	s := memstore.New()
	fx := testutil.Seed(t, s)
	c := newCoordinator(t, s, Options{AllowAnyTransition: true})
	ctx := context.Background()

	booking, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, status := range []models.BookingStatus{models.BookingCompleted, models.BookingPending, models.BookingCancelled} {
		if _, err := c.UpdateBookingStatus(ctx, booking.ID, status, fx.Player.ID); err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
	}
	if slotBooked(t, s, fx) {
		t.Fatal("cancel from pending should free the slot")
	}

	// Someone else books the freed slot; re-cancelling the old booking must
	// not release it.
	other := testutil.CreateUser(t, s, "other", false)
	if _, err := c.CreateBooking(ctx, requestFor(fx, other.ID)); err != nil {
		t.Fatalf("rebook: %v", err)
	}
	if _, err := c.UpdateBookingStatus(ctx, booking.ID, models.BookingCancelled, fx.Player.ID); err != nil {
		t.Fatalf("re-cancel: %v", err)
	}
	if !slotBooked(t, s, fx) {
		t.Fatal("re-cancelling an inactive booking freed another booking's slot")
	}
}

func TestAllowAnyTransitionCancelFromCompletedFreesSlot(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine.name, func(t *testing.T) {
			s := engine.open(t)
			fx := testutil.Seed(t, s)
			c := newCoordinator(t, s, Options{AllowAnyTransition: true})
			ctx := context.Background()

			booking, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID))
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if _, err := c.UpdateBookingStatus(ctx, booking.ID, models.BookingCompleted, fx.Owner.ID); err != nil {
				t.Fatalf("complete: %v", err)
			}
			if !slotBooked(t, s, fx) {
				t.Fatal("a completed booking keeps its slot")
			}
			if _, err := c.UpdateBookingStatus(ctx, booking.ID, models.BookingCancelled, fx.Owner.ID); err != nil {
				t.Fatalf("cancel completed: %v", err)
			}
			if slotBooked(t, s, fx) {
				t.Fatal("cancelling a completed booking should free its slot")
			}
			if _, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID)); err != nil {
				t.Fatalf("rebook freed slot: %v", err)
			}
		})
	}
}

// readBarrier holds each slot listing until want callers have listed, or
// until timeout when the claim path serialises callers and the others can
// never arrive.
type readBarrier struct {
	want    int
	timeout time.Duration

	mu      sync.Mutex
	arrived int
	release chan struct{}
}

func newReadBarrier(want int, timeout time.Duration) *readBarrier {
	return &readBarrier{want: want, timeout: timeout, release: make(chan struct{})}
}

func (b *readBarrier) wait() {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.want {
		close(b.release)
	}
	b.mu.Unlock()

	select {
	case <-b.release:
	case <-time.After(b.timeout):
	}
}

type barrierSlots struct {
	store.TimeSlots
	barrier *readBarrier
}

func (s barrierSlots) ListByCourtAndDate(ctx context.Context, courtID int64, date string) ([]models.TimeSlot, error) {
	slots, err := s.TimeSlots.ListByCourtAndDate(ctx, courtID, date)
	if err == nil {
		s.barrier.wait()
	}
	return slots, err
}

type barrierStore struct {
	store.Store
	barrier *readBarrier
}

func (s barrierStore) TimeSlots() store.TimeSlots {
	return barrierSlots{TimeSlots: s.Store.TimeSlots(), barrier: s.barrier}
}

func (s barrierStore) RunInTx(ctx context.Context, fn func(store.Store) error) error {
	return s.Store.RunInTx(ctx, func(tx store.Store) error {
		return fn(barrierStore{Store: tx, barrier: s.barrier})
	})
}

// Two requests that both read the slot before either writes. Legacy mode lets
// both through; the guarded modes keep exactly one.
func TestOverlappingReadsDoubleBookOnlyInLegacyMode(t *testing.T) {
	want := map[ClaimMode]int{ClaimLegacy: 2, ClaimAtomic: 1, ClaimLocked: 1}

	for _, engine := range engines {
		for _, mode := range modes {
			t.Run(engine.name+"/"+string(mode), func(t *testing.T) {
				s := engine.open(t)
				fx := testutil.Seed(t, s)
				bob := testutil.CreateUser(t, s, "bob", false)
				c := newCoordinator(t, barrierStore{Store: s, barrier: newReadBarrier(2, 500*time.Millisecond)}, Options{ClaimMode: mode})

				var (
					wg   sync.WaitGroup
					mu   sync.Mutex
					wins int
				)
				for _, userID := range []int64{fx.Player.ID, bob.ID} {
					wg.Add(1)
					go func(userID int64) {
						defer wg.Done()
						_, err := c.CreateBooking(context.Background(), requestFor(fx, userID))
						if err != nil && !errors.Is(err, ErrSlotAlreadyBooked) {
							t.Errorf("unexpected error: %v", err)
							return
						}
						if err == nil {
							mu.Lock()
							wins++
							mu.Unlock()
						}
					}(userID)
				}
				wg.Wait()

				bookings, err := s.Bookings().ListByCourt(context.Background(), fx.Court.ID)
				if err != nil {
					t.Fatalf("list bookings: %v", err)
				}
				active := 0
				for _, b := range bookings {
					if b.Status.Active() {
						active++
					}
				}
				if wins != want[mode] || active != want[mode] {
					t.Fatalf("expected %d successful bookings, got %d wins and %d active", want[mode], wins, active)
				}
				if !slotBooked(t, s, fx) {
					t.Fatal("slot should be booked")
				}
			})
		}
	}
}

type failingSlots struct {
	store.TimeSlots
}

func (failingSlots) SetBooked(context.Context, int64, bool) (models.TimeSlot, error) {
	return models.TimeSlot{}, errors.New("disk full")
}

type failingStore struct {
	store.Store
}

func (f failingStore) TimeSlots() store.TimeSlots {
	return failingSlots{f.Store.TimeSlots()}
}

func TestLegacyCompensatesFailedSlotUpdate(t *testing.T) {
	inner := memstore.New()
	fx := testutil.Seed(t, inner)
	c := newCoordinator(t, failingStore{inner}, Options{ClaimMode: ClaimLegacy})
	ctx := context.Background()

	if _, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID)); err == nil {
		t.Fatal("expected error when slot update fails")
	}

	bookings, err := inner.Bookings().ListByUser(ctx, fx.Player.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bookings) != 1 || bookings[0].Status != models.BookingCancelled {
		t.Fatalf("expected compensated booking, got %+v", bookings)
	}
}

func TestCompleteEndedBookings(t *testing.T) {
	for _, engine := range engines {
		t.Run(engine.name, func(t *testing.T) {
			s := engine.open(t)
			fx := testutil.Seed(t, s)
			later := testutil.CreateSlot(t, s, fx.Court.ID, testutil.SlotStart.Add(3*time.Hour), time.Hour)
			c := newCoordinator(t, s, Options{})
			ctx := context.Background()

			early, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID))
			if err != nil {
				t.Fatalf("create early: %v", err)
			}
			req := requestFor(fx, fx.Player.ID)
			req.StartTime, req.EndTime = later.StartTime, later.EndTime
			late, err := c.CreateBooking(ctx, req)
			if err != nil {
				t.Fatalf("create late: %v", err)
			}
			for _, id := range []int64{early.ID, late.ID} {
				if _, err := c.UpdateBookingStatus(ctx, id, models.BookingConfirmed, fx.Owner.ID); err != nil {
					t.Fatalf("confirm: %v", err)
				}
			}

			completed, err := c.CompleteEndedBookings(ctx, early.EndTime)
			if err != nil {
				t.Fatalf("complete: %v", err)
			}
			if completed != 1 {
				t.Fatalf("expected one completion, got %d", completed)
			}

			got, _ := s.Bookings().GetByID(ctx, early.ID)
			if got.Status != models.BookingCompleted {
				t.Fatalf("early booking status: %s", got.Status)
			}
			got, _ = s.Bookings().GetByID(ctx, late.ID)
			if got.Status != models.BookingConfirmed {
				t.Fatalf("late booking status: %s", got.Status)
			}
		})
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	created []int64
	changes []string
}

func (n *recordingNotifier) BookingCreated(_ context.Context, b models.Booking, _ models.Court) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.created = append(n.created, b.ID)
}

func (n *recordingNotifier) BookingStatusChanged(_ context.Context, b models.Booking, _ models.Court, previous models.BookingStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, string(previous)+"->"+string(b.Status))
}

func TestNotifierSeesCommittedChangesOnly(t *testing.T) {
	s := memstore.New()
	fx := testutil.Seed(t, s)
	notifier := &recordingNotifier{}
	c := newCoordinator(t, s, Options{Notifier: notifier})
	ctx := context.Background()

	booking, err := c.CreateBooking(ctx, requestFor(fx, fx.Player.ID))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = c.CreateBooking(ctx, requestFor(fx, fx.Owner.ID))
	if _, err := c.UpdateBookingStatus(ctx, booking.ID, models.BookingConfirmed, fx.Owner.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	_, _ = c.UpdateBookingStatus(ctx, booking.ID, models.BookingPending, fx.Owner.ID)

	if len(notifier.created) != 1 || notifier.created[0] != booking.ID {
		t.Fatalf("created notifications: %v", notifier.created)
	}
	if len(notifier.changes) != 1 || notifier.changes[0] != "pending->confirmed" {
		t.Fatalf("status notifications: %v", notifier.changes)
	}
}

func TestParseClaimMode(t *testing.T) {
	if mode, err := ParseClaimMode(""); err != nil || mode != ClaimAtomic {
		t.Fatalf("default mode: %s %v", mode, err)
	}
	if _, err := ParseClaimMode("optimistic"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if _, err := New(memstore.New(), Options{ClaimMode: "optimistic"}); err == nil {
		t.Fatal("expected New to reject unknown mode")
	}
}
