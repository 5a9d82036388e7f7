// Package store defines the repository interfaces the booking core and the
// HTTP handlers depend on. Engines live in the sqlstore and memstore
// subpackages; both assign identifiers themselves.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/codr1/courtbook/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrConflict reports a uniqueness violation or a write that would orphan
	// dependent records, such as deleting a court that still has bookings.
	ErrConflict = errors.New("record conflicts with an existing one")
)

type Store interface {
	Users() Users
	Courts() Courts
	TimeSlots() TimeSlots
	Bookings() Bookings
	Reviews() Reviews
	Chats() Chats
	PlayerRequests() PlayerRequests

	// RunInTx runs fn against a transactional view of the store. Writes made
	// through that view are committed together or not at all. Nested calls
	// join the outer transaction.
	RunInTx(ctx context.Context, fn func(Store) error) error
}

type Users interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

type CourtFilter struct {
	// Location is matched case-insensitively as a substring.
	Location string
}

type Courts interface {
	Create(ctx context.Context, court models.Court) (models.Court, error)
	GetByID(ctx context.Context, id int64) (models.Court, error)
	List(ctx context.Context, filter CourtFilter) ([]models.Court, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Court, error)
	// Update replaces the editable fields; owner and rating are left alone.
	Update(ctx context.Context, court models.Court) (models.Court, error)
	Delete(ctx context.Context, id int64) error
	AddRating(ctx context.Context, courtID, rating int64) error
}

type TimeSlots interface {
	Create(ctx context.Context, slot models.TimeSlot) (models.TimeSlot, error)
	// ListByCourtAndDate returns the court's slots for the day ordered by start time.
	ListByCourtAndDate(ctx context.Context, courtID int64, date string) ([]models.TimeSlot, error)
	SetBooked(ctx context.Context, id int64, booked bool) (models.TimeSlot, error)
	// Claim sets the booked flag only if it is currently clear and reports
	// whether this call flipped it.
	Claim(ctx context.Context, id int64) (bool, error)
}

type Bookings interface {
	Create(ctx context.Context, booking models.Booking) (models.Booking, error)
	GetByID(ctx context.Context, id int64) (models.Booking, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Booking, error)
	ListByCourt(ctx context.Context, courtID int64) ([]models.Booking, error)
	// ListEnded returns bookings in status whose end time is at or before t.
	ListEnded(ctx context.Context, status models.BookingStatus, t time.Time) ([]models.Booking, error)
	UpdateStatus(ctx context.Context, id int64, status models.BookingStatus) (models.Booking, error)
}

type Reviews interface {
	Create(ctx context.Context, review models.Review) (models.Review, error)
	ListByCourt(ctx context.Context, courtID int64) ([]models.Review, error)
	GetByUserAndCourt(ctx context.Context, userID, courtID int64) (models.Review, error)
}

type Chats interface {
	Create(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	// ListConversation returns messages between a and b in either direction, oldest first.
	ListConversation(ctx context.Context, a, b int64) ([]models.ChatMessage, error)
	MarkRead(ctx context.Context, senderID, receiverID int64) (int64, error)
}

type PlayerRequests interface {
	Create(ctx context.Context, req models.PlayerRequest) (models.PlayerRequest, error)
	GetByID(ctx context.Context, id int64) (models.PlayerRequest, error)
	ListActive(ctx context.Context) ([]models.PlayerRequest, error)
	ListByUser(ctx context.Context, userID int64) ([]models.PlayerRequest, error)
	UpdateStatus(ctx context.Context, id int64, status models.PlayerRequestStatus) (models.PlayerRequest, error)
	// ExpireBefore marks active requests dated before day as expired.
	ExpireBefore(ctx context.Context, day string) (int64, error)
}
