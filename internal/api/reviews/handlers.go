// internal/api/reviews/handlers.go
package reviews

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
	reviewStore     store.Store
	reviewStoreOnce sync.Once
)

const reviewQueryTimeout = 5 * time.Second

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s store.Store) {
	if s == nil {
		return
	}
	reviewStoreOnce.Do(func() {
		reviewStore = s
	})
}

func loadStore() store.Store {
	return reviewStore
}

type createReviewRequest struct {
	CourtID int64  `json:"courtId" validate:"required,gt=0"`
	Rating  int64  `json:"rating" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type reviewWithUser struct {
	models.Review
	User *models.User `json:"user,omitempty"`
}

// GET /api/reviews/court/{courtId}
func HandleListCourtReviews(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Review store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	courtID, err := apiutil.PathID(r, "courtId")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reviewQueryTimeout)
	defer cancel()

	reviews, err := s.Reviews().ListByCourt(ctx, courtID)
	if err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to list reviews")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load reviews")
		return
	}

	userIDs := make([]int64, 0, len(reviews))
	for _, review := range reviews {
		userIDs = append(userIDs, review.UserID)
	}
	users, err := apiutil.LoadUsers(ctx, s.Users(), userIDs)
	if err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Msg("Failed to load reviewers")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load reviews")
		return
	}

	response := make([]reviewWithUser, 0, len(reviews))
	for _, review := range reviews {
		entry := reviewWithUser{Review: review}
		if user, ok := users[review.UserID]; ok {
			entry.User = &user
		}
		response = append(response, entry)
	}

	apiutil.WriteOK(w, r, http.StatusOK, response)
}

// POST /api/reviews
//
// The review and the court's rating aggregate are written in one
// transaction.
func HandleCreateReview(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Review store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req createReviewRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reviewQueryTimeout)
	defer cancel()

	var created models.Review
	err := s.RunInTx(ctx, func(tx store.Store) error {
		if _, err := tx.Courts().GetByID(ctx, req.CourtID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apiutil.HandlerError{Status: http.StatusNotFound, Message: "Court not found", Err: err}
			}
			return err
		}

		_, err := tx.Reviews().GetByUserAndCourt(ctx, user.ID, req.CourtID)
		switch {
		case err == nil:
			return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "You have already reviewed this court"}
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		created, err = tx.Reviews().Create(ctx, models.Review{
			CourtID: req.CourtID,
			UserID:  user.ID,
			Rating:  req.Rating,
			Comment: strings.TrimSpace(req.Comment),
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return apiutil.HandlerError{Status: http.StatusBadRequest, Message: "You have already reviewed this court", Err: err}
			}
			return err
		}
		return tx.Courts().AddRating(ctx, req.CourtID, req.Rating)
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, err, "Failed to create review")
		return
	}

	logger.Info().
		Int64("review_id", created.ID).
		Int64("court_id", created.CourtID).
		Int64("user_id", user.ID).
		Int64("rating", created.Rating).
		Msg("Review created")
	apiutil.WriteOK(w, r, http.StatusCreated, created)
}
