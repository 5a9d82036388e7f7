// internal/api/playerrequests/handlers.go
package playerrequests

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
	"github.com/codr1/courtbook/internal/store"
)

var (
	requestStore     store.Store
	requestStoreOnce sync.Once
)

const playerRequestQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s store.Store) {
	if s == nil {
		return
	}
	requestStoreOnce.Do(func() {
		requestStore = s
	})
}

func loadStore() store.Store {
	return requestStore
}

type createPlayerRequest struct {
	Location  string `json:"location" validate:"required,max=200"`
	Date      string `json:"date" validate:"required"`
	TimeRange string `json:"timeRange" validate:"required,max=50"`
	Message   string `json:"message" validate:"max=1000"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type requestWithUser struct {
	models.PlayerRequest
	User *models.User `json:"user,omitempty"`
}

// GET /api/player-requests
func HandleListActive(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Player request store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), playerRequestQueryTimeout)
	defer cancel()

	requests, err := s.PlayerRequests().ListActive(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to list player requests")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load player requests")
		return
	}

	userIDs := make([]int64, 0, len(requests))
	for _, req := range requests {
		userIDs = append(userIDs, req.UserID)
	}
	users, err := apiutil.LoadUsers(ctx, s.Users(), userIDs)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load player request users")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load player requests")
		return
	}

	response := make([]requestWithUser, 0, len(requests))
	for _, req := range requests {
		entry := requestWithUser{PlayerRequest: req}
		if user, ok := users[req.UserID]; ok {
			entry.User = &user
		}
		response = append(response, entry)
	}

	apiutil.WriteOK(w, r, http.StatusOK, response)
}

// GET /api/player-requests/user
func HandleListUserRequests(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Player request store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), playerRequestQueryTimeout)
	defer cancel()

	requests, err := s.PlayerRequests().ListByUser(ctx, user.ID)
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to list user player requests")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load player requests")
		return
	}
	if requests == nil {
		requests = []models.PlayerRequest{}
	}

	apiutil.WriteOK(w, r, http.StatusOK, requests)
}

// POST /api/player-requests
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Player request store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req createPlayerRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := models.ParseDay(req.Date)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), playerRequestQueryTimeout)
	defer cancel()

	created, err := s.PlayerRequests().Create(ctx, models.PlayerRequest{
		UserID:    user.ID,
		Location:  strings.TrimSpace(req.Location),
		Date:      day,
		TimeRange: strings.TrimSpace(req.TimeRange),
		Message:   req.Message,
		Status:    models.PlayerRequestActive,
	})
	if err != nil {
		logger.Error().Err(err).Int64("user_id", user.ID).Msg("Failed to create player request")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to create player request")
		return
	}

	logger.Info().Int64("player_request_id", created.ID).Int64("user_id", user.ID).Msg("Player request created")
	apiutil.WriteOK(w, r, http.StatusCreated, created)
}

// PATCH /api/player-requests/{id}/status
func HandleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Player request store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	requestID, err := apiutil.PathID(r, "id")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req updateStatusRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := models.PlayerRequestStatus(req.Status)
	if !status.Valid() {
		apiutil.WriteError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), playerRequestQueryTimeout)
	defer cancel()

	var updated models.PlayerRequest
	err = s.RunInTx(ctx, func(tx store.Store) error {
		current, err := tx.PlayerRequests().GetByID(ctx, requestID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Player request not found", Err: err}
			}
			return err
		}
		if current.UserID != user.ID {
			return apiutil.HandlerError{Status: http.StatusForbidden, Message: "Not authorized to update this request"}
		}
		updated, err = tx.PlayerRequests().UpdateStatus(ctx, requestID, status)
		return err
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, err, "Failed to update player request")
		return
	}

	logger.Info().
		Int64("player_request_id", requestID).
		Int64("user_id", user.ID).
		Str("status", string(status)).
		Msg("Player request status updated")
	apiutil.WriteOK(w, r, http.StatusOK, updated)
}
