// internal/api/courts/handlers.go
package courts

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/apiutil"
	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/request"
	"github.com/codr1/courtbook/internal/store"
)

var (
	courtStore     store.Store
	courtStoreOnce sync.Once
)

const courtsQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s store.Store) {
	if s == nil {
		return
	}
	courtStoreOnce.Do(func() {
		courtStore = s
	})
}

func loadStore() store.Store {
	return courtStore
}

type createCourtRequest struct {
	Name         string   `json:"name" validate:"required,max=120"`
	Description  string   `json:"description" validate:"required,max=2000"`
	Location     string   `json:"location" validate:"required,max=200"`
	ImageURL     string   `json:"imageUrl" validate:"required,url"`
	PricePerHour int64    `json:"pricePerHour" validate:"gte=0"`
	Amenities    []string `json:"amenities" validate:"max=20,dive,required,max=50"`
}

// updateCourtRequest leaves fields that are absent from the body unchanged.
type updateCourtRequest struct {
	Name         *string   `json:"name" validate:"omitempty,min=1,max=120"`
	Description  *string   `json:"description" validate:"omitempty,max=2000"`
	Location     *string   `json:"location" validate:"omitempty,min=1,max=200"`
	ImageURL     *string   `json:"imageUrl" validate:"omitempty,url"`
	PricePerHour *int64    `json:"pricePerHour" validate:"omitempty,gte=0"`
	Amenities    *[]string `json:"amenities" validate:"omitempty,max=20,dive,required,max=50"`
}

func (req updateCourtRequest) apply(court *models.Court) {
	if req.Name != nil {
		court.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		court.Description = *req.Description
	}
	if req.Location != nil {
		court.Location = strings.TrimSpace(*req.Location)
	}
	if req.ImageURL != nil {
		court.ImageURL = *req.ImageURL
	}
	if req.PricePerHour != nil {
		court.PricePerHour = *req.PricePerHour
	}
	if req.Amenities != nil {
		court.Amenities = *req.Amenities
	}
}

// GET /api/courts
func HandleListCourts(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Court store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	search, err := request.ParseCourtSearch(r)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	courts, err := s.Courts().List(ctx, store.CourtFilter{Location: search.Location})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list courts")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load courts")
		return
	}

	if search.Active() {
		courts, err = filterAvailable(ctx, s, courts, search)
		if err != nil {
			logger.Error().Err(err).Str("date", search.Date).Msg("Failed to filter courts by availability")
			apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load courts")
			return
		}
	}

	apiutil.WriteOK(w, r, http.StatusOK, courts)
}

// filterAvailable keeps courts that have at least one free slot on the
// searched day, optionally starting inside the searched time range.
func filterAvailable(ctx context.Context, s store.Store, courts []models.Court, search request.CourtSearch) ([]models.Court, error) {
	available := make([]models.Court, 0, len(courts))
	for _, court := range courts {
		slots, err := s.TimeSlots().ListByCourtAndDate(ctx, court.ID, search.Date)
		if err != nil {
			return nil, err
		}
		for _, slot := range slots {
			if slot.IsBooked {
				continue
			}
			if search.Time != nil && !search.Time.Contains(slot.StartTime.UTC().Hour()) {
				continue
			}
			available = append(available, court)
			break
		}
	}
	return available, nil
}

// GET /api/courts/{id}
func HandleGetCourt(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Court store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	courtID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	court, err := s.Courts().GetByID(ctx, courtID)
	if err != nil {
		writeCourtLookupError(w, r, err, courtID)
		return
	}

	apiutil.WriteOK(w, r, http.StatusOK, court)
}

// POST /api/courts
func HandleCreateCourt(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Court store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireCourtOwner(w, r, "Only court owners can create courts")
	if !ok {
		return
	}

	var req createCourtRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	court, err := s.Courts().Create(ctx, models.Court{
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		Location:     strings.TrimSpace(req.Location),
		ImageURL:     req.ImageURL,
		PricePerHour: req.PricePerHour,
		OwnerID:      user.ID,
		Amenities:    req.Amenities,
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to create court")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to create court")
		return
	}

	logger.Info().Int64("court_id", court.ID).Int64("user_id", user.ID).Msg("Court created")
	apiutil.WriteOK(w, r, http.StatusCreated, court)
}

// PUT /api/courts/{id}
func HandleUpdateCourt(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Court store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	courtID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateCourtRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	var updated models.Court
	err = s.RunInTx(ctx, func(tx store.Store) error {
		court, err := tx.Courts().GetByID(ctx, courtID)
		if err != nil {
			return err
		}
		if court.OwnerID != user.ID {
			return apiutil.HandlerError{Status: http.StatusForbidden, Message: "You can only update your own courts"}
		}
		req.apply(&court)
		updated, err = tx.Courts().Update(ctx, court)
		return err
	})
	if err != nil {
		var handlerErr apiutil.HandlerError
		if errors.As(err, &handlerErr) {
			apiutil.WriteError(w, handlerErr.Status, handlerErr.Message)
			return
		}
		writeCourtLookupError(w, r, err, courtID)
		return
	}

	logger.Info().Int64("court_id", courtID).Int64("user_id", user.ID).Msg("Court updated")
	apiutil.WriteOK(w, r, http.StatusOK, updated)
}

// DELETE /api/courts/{id}
func HandleDeleteCourt(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Court store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	courtID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), courtsQueryTimeout)
	defer cancel()

	err = s.RunInTx(ctx, func(tx store.Store) error {
		court, err := tx.Courts().GetByID(ctx, courtID)
		if err != nil {
			return err
		}
		if court.OwnerID != user.ID {
			return apiutil.HandlerError{Status: http.StatusForbidden, Message: "You can only delete your own courts"}
		}
		return tx.Courts().Delete(ctx, courtID)
	})
	if err != nil {
		var handlerErr apiutil.HandlerError
		switch {
		case errors.As(err, &handlerErr):
			apiutil.WriteError(w, handlerErr.Status, handlerErr.Message)
		case errors.Is(err, store.ErrConflict):
			apiutil.WriteError(w, http.StatusConflict, "Court has bookings and cannot be deleted")
		default:
			writeCourtLookupError(w, r, err, courtID)
		}
		return
	}

	logger.Info().Int64("court_id", courtID).Int64("user_id", user.ID).Msg("Court deleted")
	apiutil.WriteOK(w, r, http.StatusOK, map[string]string{"message": "Court deleted successfully"})
}

func writeCourtLookupError(w http.ResponseWriter, r *http.Request, err error, courtID int64) {
	if errors.Is(err, store.ErrNotFound) {
		apiutil.WriteError(w, http.StatusNotFound, "Court not found")
		return
	}
	log.Ctx(r.Context()).Error().Err(err).Int64("court_id", courtID).Msg("Failed to load court")
	apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load court")
}
