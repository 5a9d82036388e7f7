// internal/api/bookings/handlers.go
package bookings

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
)

var (
	bookingStore       store.Store
	coordinator        *booking.Coordinator
	bookingHandlerOnce sync.Once
)

const bookingQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s store.Store, c *booking.Coordinator) {
	if s == nil || c == nil {
		return
	}
	bookingHandlerOnce.Do(func() {
		bookingStore = s
		coordinator = c
	})
}

func loadStore() store.Store {
	return bookingStore
}

func loadCoordinator() *booking.Coordinator {
	return coordinator
}

type createBookingRequest struct {
	CourtID   int64  `json:"courtId" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
	// TotalPrice is charged as given. When omitted it is the court's hourly
	// price prorated over the booked interval.
	TotalPrice *int64 `json:"totalPrice" validate:"omitempty,gte=0"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// bookingWithCourt is a caller's booking with the court it is on.
type bookingWithCourt struct {
	models.Booking
	Court *models.Court `json:"court,omitempty"`
}

// bookingWithUser is a court booking with the player who made it.
type bookingWithUser struct {
	models.Booking
	User *models.User `json:"user,omitempty"`
}

// GET /api/bookings/user
func HandleListUserBookings(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Booking store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	bookings, err := s.Bookings().ListByUser(ctx, user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list user bookings")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load bookings")
		return
	}

	courtIDs := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		courtIDs = append(courtIDs, b.CourtID)
	}
	courts, err := apiutil.LoadCourts(ctx, s.Courts(), courtIDs)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to load booked courts")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load bookings")
		return
	}

	response := make([]bookingWithCourt, 0, len(bookings))
	for _, b := range bookings {
		entry := bookingWithCourt{Booking: b}
		if court, ok := courts[b.CourtID]; ok {
			entry.Court = &court
		}
		response = append(response, entry)
	}

	apiutil.WriteOK(w, r, http.StatusOK, response)
}

// GET /api/bookings/court/{courtId}
func HandleListCourtBookings(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Booking store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	courtID, err := apiutil.PathID(r, "courtId")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	court, err := s.Courts().GetByID(ctx, courtID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apiutil.WriteError(w, http.StatusNotFound, "Court not found")
			return
		}
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to load court")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load bookings")
		return
	}
	if court.OwnerID != user.ID {
		logger.Warn().Int64("court_id", courtID).Int64("user_id", user.ID).Msg("Court bookings access denied")
		apiutil.WriteError(w, http.StatusForbidden, "You can only view bookings for your own courts")
		return
	}

	bookings, err := s.Bookings().ListByCourt(ctx, courtID)
	if err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to list court bookings")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load bookings")
		return
	}

	userIDs := make([]int64, 0, len(bookings))
	for _, b := range bookings {
		userIDs = append(userIDs, b.UserID)
	}
	users, err := apiutil.LoadUsers(ctx, s.Users(), userIDs)
	if err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to load booking users")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load bookings")
		return
	}

	response := make([]bookingWithUser, 0, len(bookings))
	for _, b := range bookings {
		entry := bookingWithUser{Booking: b}
		if booker, ok := users[b.UserID]; ok {
			entry.User = &booker
		}
		response = append(response, entry)
	}

	apiutil.WriteOK(w, r, http.StatusOK, response)
}

// POST /api/bookings
func HandleCreateBooking(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	c := loadCoordinator()
	if s == nil || c == nil {
		logger.Error().Msg("Booking coordinator not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req createBookingRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	start, err := apiutil.ParseTimestamp(req.StartTime, "startTime")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := apiutil.ParseTimestamp(req.EndTime, "endTime")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := models.ParseDay(req.Date)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	var totalPrice int64
	if req.TotalPrice != nil {
		totalPrice = *req.TotalPrice
	} else {
		court, err := s.Courts().GetByID(ctx, req.CourtID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				apiutil.WriteError(w, http.StatusNotFound, "Court not found")
				return
			}
			apiutil.WriteDomainError(w, r, err, "Failed to create booking")
			return
		}
		totalPrice = prorate(court.PricePerHour, start, end)
	}

	created, err := c.CreateBooking(ctx, booking.CreateRequest{
		CourtID:    req.CourtID,
		UserID:     user.ID,
		Date:       day,
		StartTime:  start,
		EndTime:    end,
		TotalPrice: totalPrice,
	})
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			apiutil.WriteError(w, http.StatusNotFound, "Court not found")
			return
		}
		logger.Info().Err(err).Int64("court_id", req.CourtID).Int64("user_id", user.ID).Msg("Booking rejected")
		apiutil.WriteDomainError(w, r, err, "Failed to create booking")
		return
	}

	apiutil.WriteOK(w, r, http.StatusCreated, created)
}

// prorate charges pricePerHour for the interval, rounding to the nearest
// whole currency unit.
func prorate(pricePerHour int64, start, end time.Time) int64 {
	minutes := int64(end.Sub(start) / time.Minute)
	return (pricePerHour*minutes + 30) / 60
}

// PATCH /api/bookings/{id}/status
func HandleUpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	c := loadCoordinator()
	if c == nil {
		logger.Error().Msg("Booking coordinator not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	bookingID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateStatusRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), bookingQueryTimeout)
	defer cancel()

	updated, err := c.UpdateBookingStatus(ctx, bookingID, models.BookingStatus(req.Status), user.ID)
	if err != nil {
		if errors.Is(err, booking.ErrNotFound) {
			apiutil.WriteError(w, http.StatusNotFound, "Booking not found")
			return
		}
		if errors.Is(err, booking.ErrNotAuthorized) {
			logger.Warn().Int64("booking_id", bookingID).Int64("user_id", user.ID).Msg("Booking status change denied")
		}
		apiutil.WriteDomainError(w, r, err, "Failed to update booking")
		return
	}

	apiutil.WriteOK(w, r, http.StatusOK, updated)
}
