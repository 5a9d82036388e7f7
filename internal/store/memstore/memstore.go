// Package memstore is an in-process store engine. It backs the memory
// database driver and the fast unit tests of the booking core.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

type state struct {
	mu sync.Mutex

	nextID         map[string]int64
	users          map[int64]models.User
	courts         map[int64]models.Court
	timeSlots      map[int64]models.TimeSlot
	bookings       map[int64]models.Booking
	reviews        map[int64]models.Review
	chats          map[int64]models.ChatMessage
	playerRequests map[int64]models.PlayerRequest
}

// Store is safe for concurrent use. A transaction holds the store mutex for
// its whole duration, so transactions are serializable. Identifiers handed
// out inside a rolled back transaction are not reused.
type Store struct {
	st *state
	// undo is non-nil on a transactional view; each write appends its inverse.
	undo *[]func()
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{
		nextID:         make(map[string]int64),
		users:          make(map[int64]models.User),
		courts:         make(map[int64]models.Court),
		timeSlots:      make(map[int64]models.TimeSlot),
		bookings:       make(map[int64]models.Booking),
		reviews:        make(map[int64]models.Review),
		chats:          make(map[int64]models.ChatMessage),
		playerRequests: make(map[int64]models.PlayerRequest),
	}}
}

func (s *Store) Users() store.Users                   { return users{s} }
func (s *Store) Courts() store.Courts                 { return courts{s} }
func (s *Store) TimeSlots() store.TimeSlots           { return timeSlots{s} }
func (s *Store) Bookings() store.Bookings             { return bookings{s} }
func (s *Store) Reviews() store.Reviews               { return reviews{s} }
func (s *Store) Chats() store.Chats                   { return chats{s} }
func (s *Store) PlayerRequests() store.PlayerRequests { return playerRequests{s} }

func (s *Store) RunInTx(ctx context.Context, fn func(store.Store) error) error {
	if s.undo != nil {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var journal []func()
	tx := &Store{st: s.st, undo: &journal}
	rollback := func() {
		for i := len(journal) - 1; i >= 0; i-- {
			journal[i]()
		}
	}

	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		rollback()
		return err
	}
	return nil
}

// do runs op under the store mutex unless the view is already inside a
// transaction that holds it.
func (s *Store) do(ctx context.Context, op func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.undo == nil {
		s.st.mu.Lock()
		defer s.st.mu.Unlock()
	}
	return op()
}

func (s *Store) record(inverse func()) {
	if s.undo != nil {
		*s.undo = append(*s.undo, inverse)
	}
}

func (s *Store) newID(table string) int64 {
	s.st.nextID[table]++
	return s.st.nextID[table]
}

// put stores v under id and journals the previous value.
func put[V any](s *Store, m map[int64]V, id int64, v V) {
	prev, existed := m[id]
	m[id] = v
	s.record(func() {
		if existed {
			m[id] = prev
		} else {
			delete(m, id)
		}
	})
}

func remove[V any](s *Store, m map[int64]V, id int64) {
	prev, existed := m[id]
	if !existed {
		return
	}
	delete(m, id)
	s.record(func() { m[id] = prev })
}

func sortedByID[V any](m map[int64]V, keep func(V) bool) []V {
	ids := make([]int64, 0, len(m))
	for id, v := range m {
		if keep(v) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]V, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

type users struct{ s *Store }

func (r users) Create(ctx context.Context, user models.User) (models.User, error) {
	err := r.s.do(ctx, func() error {
		for _, existing := range r.s.st.users {
			if strings.EqualFold(existing.Username, user.Username) {
				return fmt.Errorf("%w: username %q", store.ErrConflict, user.Username)
			}
			if strings.EqualFold(existing.Email, user.Email) {
				return fmt.Errorf("%w: email %q", store.ErrConflict, user.Email)
			}
		}
		user.ID = r.s.newID("users")
		put(r.s, r.s.st.users, user.ID, user)
		return nil
	})
	return user, err
}

func (r users) GetByID(ctx context.Context, id int64) (models.User, error) {
	var user models.User
	err := r.s.do(ctx, func() error {
		found, ok := r.s.st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		user = found
		return nil
	})
	return user, err
}

func (r users) find(ctx context.Context, match func(models.User) bool) (models.User, error) {
	var user models.User
	err := r.s.do(ctx, func() error {
		for _, candidate := range r.s.st.users {
			if match(candidate) {
				user = candidate
				return nil
			}
		}
		return store.ErrNotFound
	})
	return user, err
}

func (r users) GetByUsername(ctx context.Context, username string) (models.User, error) {
	return r.find(ctx, func(u models.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r users) GetByEmail(ctx context.Context, email string) (models.User, error) {
	return r.find(ctx, func(u models.User) bool { return strings.EqualFold(u.Email, email) })
}

type courts struct{ s *Store }

func cloneCourt(c models.Court) models.Court {
	c.Amenities = slices.Clone(c.Amenities)
	return c
}

func (r courts) Create(ctx context.Context, court models.Court) (models.Court, error) {
	err := r.s.do(ctx, func() error {
		if _, ok := r.s.st.users[court.OwnerID]; !ok {
			return fmt.Errorf("%w: owner %d does not exist", store.ErrConflict, court.OwnerID)
		}
		court.ID = r.s.newID("courts")
		court.RatingSum, court.RatingCount = 0, 0
		court = cloneCourt(court)
		put(r.s, r.s.st.courts, court.ID, court)
		return nil
	})
	return cloneCourt(court), err
}

func (r courts) GetByID(ctx context.Context, id int64) (models.Court, error) {
	var court models.Court
	err := r.s.do(ctx, func() error {
		found, ok := r.s.st.courts[id]
		if !ok {
			return store.ErrNotFound
		}
		court = cloneCourt(found)
		return nil
	})
	return court, err
}

func (r courts) list(ctx context.Context, keep func(models.Court) bool) ([]models.Court, error) {
	var out []models.Court
	err := r.s.do(ctx, func() error {
		out = sortedByID(r.s.st.courts, keep)
		for i := range out {
			out[i] = cloneCourt(out[i])
		}
		return nil
	})
	return out, err
}

func (r courts) List(ctx context.Context, filter store.CourtFilter) ([]models.Court, error) {
	location := strings.ToLower(strings.TrimSpace(filter.Location))
	return r.list(ctx, func(c models.Court) bool {
		return location == "" || strings.Contains(strings.ToLower(c.Location), location)
	})
}

func (r courts) ListByOwner(ctx context.Context, ownerID int64) ([]models.Court, error) {
	return r.list(ctx, func(c models.Court) bool { return c.OwnerID == ownerID })
}

func (r courts) Update(ctx context.Context, court models.Court) (models.Court, error) {
	var updated models.Court
	err := r.s.do(ctx, func() error {
		existing, ok := r.s.st.courts[court.ID]
		if !ok {
			return store.ErrNotFound
		}
		existing.Name = court.Name
		existing.Description = court.Description
		existing.Location = court.Location
		existing.ImageURL = court.ImageURL
		existing.PricePerHour = court.PricePerHour
		existing.Amenities = slices.Clone(court.Amenities)
		put(r.s, r.s.st.courts, existing.ID, existing)
		updated = cloneCourt(existing)
		return nil
	})
	return updated, err
}

// Delete removes the court with its time slots and reviews. Courts that
// still have bookings cannot be deleted.
func (r courts) Delete(ctx context.Context, id int64) error {
	return r.s.do(ctx, func() error {
		if _, ok := r.s.st.courts[id]; !ok {
			return store.ErrNotFound
		}
		for _, b := range r.s.st.bookings {
			if b.CourtID == id {
				return fmt.Errorf("%w: court %d has bookings", store.ErrConflict, id)
			}
		}
		for slotID, slot := range r.s.st.timeSlots {
			if slot.CourtID == id {
				remove(r.s, r.s.st.timeSlots, slotID)
			}
		}
		for reviewID, review := range r.s.st.reviews {
			if review.CourtID == id {
				remove(r.s, r.s.st.reviews, reviewID)
			}
		}
		remove(r.s, r.s.st.courts, id)
		return nil
	})
}

func (r courts) AddRating(ctx context.Context, courtID, rating int64) error {
	return r.s.do(ctx, func() error {
		court, ok := r.s.st.courts[courtID]
		if !ok {
			return store.ErrNotFound
		}
		court.RatingSum += rating
		court.RatingCount++
		put(r.s, r.s.st.courts, courtID, court)
		return nil
	})
}

type timeSlots struct{ s *Store }

func (r timeSlots) Create(ctx context.Context, slot models.TimeSlot) (models.TimeSlot, error) {
	err := r.s.do(ctx, func() error {
		if _, ok := r.s.st.courts[slot.CourtID]; !ok {
			return fmt.Errorf("%w: court %d does not exist", store.ErrConflict, slot.CourtID)
		}
		slot.ID = r.s.newID("time_slots")
		slot.StartTime = models.NormalizeTime(slot.StartTime)
		slot.EndTime = models.NormalizeTime(slot.EndTime)
		put(r.s, r.s.st.timeSlots, slot.ID, slot)
		return nil
	})
	return slot, err
}

func (r timeSlots) ListByCourtAndDate(ctx context.Context, courtID int64, date string) ([]models.TimeSlot, error) {
	var out []models.TimeSlot
	err := r.s.do(ctx, func() error {
		out = sortedByID(r.s.st.timeSlots, func(slot models.TimeSlot) bool {
			return slot.CourtID == courtID && slot.Date == date
		})
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
		return nil
	})
	return out, err
}

func (r timeSlots) SetBooked(ctx context.Context, id int64, booked bool) (models.TimeSlot, error) {
	var slot models.TimeSlot
	err := r.s.do(ctx, func() error {
		found, ok := r.s.st.timeSlots[id]
		if !ok {
			return store.ErrNotFound
		}
		found.IsBooked = booked
		put(r.s, r.s.st.timeSlots, id, found)
		slot = found
		return nil
	})
	return slot, err
}

func (r timeSlots) Claim(ctx context.Context, id int64) (bool, error) {
	var claimed bool
	err := r.s.do(ctx, func() error {
		found, ok := r.s.st.timeSlots[id]
		if !ok {
			return store.ErrNotFound
		}
		if found.IsBooked {
			return nil
		}
		found.IsBooked = true
		put(r.s, r.s.st.timeSlots, id, found)
		claimed = true
		return nil
	})
	return claimed, err
}

type bookings struct{ s *Store }

func (r bookings) Create(ctx context.Context, booking models.Booking) (models.Booking, error) {
	err := r.s.do(ctx, func() error {
		if _, ok := r.s.st.courts[booking.CourtID]; !ok {
			return fmt.Errorf("%w: court %d does not exist", store.ErrConflict, booking.CourtID)
		}
		if _, ok := r.s.st.users[booking.UserID]; !ok {
			return fmt.Errorf("%w: user %d does not exist", store.ErrConflict, booking.UserID)
		}
		booking.ID = r.s.newID("bookings")
		booking.StartTime = models.NormalizeTime(booking.StartTime)
		booking.EndTime = models.NormalizeTime(booking.EndTime)
		put(r.s, r.s.st.bookings, booking.ID, booking)
		return nil
	})
	return booking, err
}

func (r bookings) GetByID(ctx context.Context, id int64) (models.Booking, error) {
	var booking models.Booking
	err := r.s.do(ctx, func() error {
		found, ok := r.s.st.bookings[id]
		if !ok {
			return store.ErrNotFound
		}
		booking = found
		return nil
	})
	return booking, err
}

func (r bookings) ListByUser(ctx context.Context, userID int64) ([]models.Booking, error) {
	var out []models.Booking
	err := r.s.do(ctx, func() error {
		out = sortedByID(r.s.st.bookings, func(b models.Booking) bool { return b.UserID == userID })
		slices.Reverse(out)
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
		return nil
	})
	return out, err
}

func (r bookings) ListByCourt(ctx context.Context, courtID int64) ([]models.Booking, error) {
	var out []models.Booking
	err := r.s.do(ctx, func() error {
		out = sortedByID(r.s.st.bookings, func(b models.Booking) bool { return b.CourtID == courtID })
		sort.SliceStable(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
		return nil
	})
	return out, err
}

func (r bookings) ListEnded(ctx context.Context, status models.BookingStatus, t time.Time) ([]models.Booking, error) {
	var out []models.Booking
	err := r.s.do(ctx, func() error {
		out = sortedByID(r.s.st.bookings, func(b models.Booking) bool {
			return b.Status == status && !b.EndTime.After(t)
		})
		sort.SliceStable(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
		return nil
	})
	return out, err
}

func (r bookings) UpdateStatus(ctx context.Context, id int64, status models.BookingStatus) (models.Booking, error) {
	var booking models.Booking
	err := r.s.do(ctx, func() error {
		found, ok := r.s.st.bookings[id]
		if !ok {
			return store.ErrNotFound
		}
		found.Status = status
		put(r.s, r.s.st.bookings, id, found)
		booking = found
		return nil
	})
	return booking, err
}

type reviews struct{ s *Store }

func (r reviews) Create(ctx context.Context, review models.Review) (models.Review, error) {
	err := r.s.do(ctx, func() error {
		if _, ok := r.s.st.courts[review.CourtID]; !ok {
			return fmt.Errorf("%w: court %d does not exist", store.ErrConflict, review.CourtID)
		}
		for _, existing := range r.s.st.reviews {
			if existing.CourtID == review.CourtID && existing.UserID == review.UserID {
				return fmt.Errorf("%w: user %d already reviewed court %d", store.ErrConflict, review.UserID, review.CourtID)
			}
		}
		if review.CreatedAt.IsZero() {
			review.CreatedAt = time.Now()
		}
		review.CreatedAt = models.NormalizeTime(review.CreatedAt)
		review.ID = r.s.newID("reviews")
		put(r.s, r.s.st.reviews, review.ID, review)
		return nil
	})
	return review, err
}

func (r reviews) ListByCourt(ctx context.Context, courtID int64) ([]models.Review, error) {
	var out []models.Review
	err := r.s.do(ctx, func() error {
		out = sortedByID(r.s.st.reviews, func(rv models.Review) bool { return rv.CourtID == courtID })
		slices.Reverse(out)
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (r reviews) GetByUserAndCourt(ctx context.Context, userID, courtID int64) (models.Review, error) {
	var review models.Review
	err := r.s.do(ctx, func() error {
		for _, rv := range r.s.st.reviews {
			if rv.UserID == userID && rv.CourtID == courtID {
				review = rv
				return nil
			}
		}
		return store.ErrNotFound
	})
	return review, err
}

type chats struct{ s *Store }

func (r chats) Create(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	err := r.s.do(ctx, func() error {
		for _, id := range []int64{msg.SenderID, msg.ReceiverID} {
			if _, ok := r.s.st.users[id]; !ok {
				return fmt.Errorf("%w: user %d does not exist", store.ErrConflict, id)
			}
		}
		if msg.SentAt.IsZero() {
			msg.SentAt = time.Now()
		}
		msg.SentAt = models.NormalizeTime(msg.SentAt)
		msg.ID = r.s.newID("chats")
		put(r.s, r.s.st.chats, msg.ID, msg)
		return nil
	})
	return msg, err
}

func (r chats) ListConversation(ctx context.Context, a, b int64) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	err := r.s.do(ctx, func() error {
		out = sortedByID(r.s.st.chats, func(m models.ChatMessage) bool {
			return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
		})
		sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
		return nil
	})
	return out, err
}

func (r chats) MarkRead(ctx context.Context, senderID, receiverID int64) (int64, error) {
	var marked int64
	err := r.s.do(ctx, func() error {
		for id, m := range r.s.st.chats {
			if m.SenderID == senderID && m.ReceiverID == receiverID && !m.Read {
				m.Read = true
				put(r.s, r.s.st.chats, id, m)
				marked++
			}
		}
		return nil
	})
	return marked, err
}

type playerRequests struct{ s *Store }

func (r playerRequests) Create(ctx context.Context, req models.PlayerRequest) (models.PlayerRequest, error) {
	err := r.s.do(ctx, func() error {
		if _, ok := r.s.st.users[req.UserID]; !ok {
			return fmt.Errorf("%w: user %d does not exist", store.ErrConflict, req.UserID)
		}
		if req.Status == "" {
			req.Status = models.PlayerRequestActive
		}
		req.ID = r.s.newID("player_requests")
		put(r.s, r.s.st.playerRequests, req.ID, req)
		return nil
	})
	return req, err
}

func (r playerRequests) GetByID(ctx context.Context, id int64) (models.PlayerRequest, error) {
	var req models.PlayerRequest
	err := r.s.do(ctx, func() error {
		found, ok := r.s.st.playerRequests[id]
		if !ok {
			return store.ErrNotFound
		}
		req = found
		return nil
	})
	return req, err
}

// ListActive orders by request date; ListByUser returns newest first.
func (r playerRequests) ListActive(ctx context.Context) ([]models.PlayerRequest, error) {
	var out []models.PlayerRequest
	err := r.s.do(ctx, func() error {
		out = sortedByID(r.s.st.playerRequests, func(p models.PlayerRequest) bool {
			return p.Status == models.PlayerRequestActive
		})
		sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })
		return nil
	})
	return out, err
}

func (r playerRequests) ListByUser(ctx context.Context, userID int64) ([]models.PlayerRequest, error) {
	var out []models.PlayerRequest
	err := r.s.do(ctx, func() error {
		out = sortedByID(r.s.st.playerRequests, func(p models.PlayerRequest) bool { return p.UserID == userID })
		slices.Reverse(out)
		return nil
	})
	return out, err
}

func (r playerRequests) UpdateStatus(ctx context.Context, id int64, status models.PlayerRequestStatus) (models.PlayerRequest, error) {
	var req models.PlayerRequest
	err := r.s.do(ctx, func() error {
		found, ok := r.s.st.playerRequests[id]
		if !ok {
			return store.ErrNotFound
		}
		found.Status = status
		put(r.s, r.s.st.playerRequests, id, found)
		req = found
		return nil
	})
	return req, err
}

func (r playerRequests) ExpireBefore(ctx context.Context, day string) (int64, error) {
	var expired int64
	err := r.s.do(ctx, func() error {
		for id, p := range r.s.st.playerRequests {
			if p.Status == models.PlayerRequestActive && p.Date < day {
				p.Status = models.PlayerRequestExpired
				put(r.s, r.s.st.playerRequests, id, p)
				expired++
			}
		}
		return nil
	})
	return expired, err
}
