package timeslots

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

const timeSlotsQueryTimeout = 5 * time.Second

const notCourtOwnerMessage = "Only court owners can create time slots"

var (
	slotStore     store.Store
	slotStoreOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s store.Store) {
	if s == nil {
		return
	}
	slotStoreOnce.Do(func() {
		slotStore = s
	})
}

func loadStore() store.Store {
	return slotStore
}

type createSlotRequest struct {
	CourtID   int64  `json:"courtId" validate:"required,gt=0"`
	Date      string `json:"date"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
}

type generateSlotsRequest struct {
	CourtID     int64  `json:"courtId" validate:"required,gt=0"`
	Date        string `json:"date" validate:"required"`
	OpenHour    int    `json:"openHour" validate:"gte=0,lte=23"`
	CloseHour   int    `json:"closeHour" validate:"required,gt=0,lte=24"`
	SlotMinutes int    `json:"slotMinutes" validate:"gte=0,lte=1440"`
}

// GET /api/time-slots/{courtId}/{date}
func HandleListSlots(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Time slot store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	courtID, err := apiutil.PathID(r, "courtId")
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := models.ParseDay(r.PathValue("date"))
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeSlotsQueryTimeout)
	defer cancel()

	slots, err := s.TimeSlots().ListByCourtAndDate(ctx, courtID, day)
	if err != nil {
		logger.Error().Err(err).Int64("court_id", courtID).Str("date", day).Msg("Failed to list time slots")
		apiutil.WriteError(w, http.StatusInternalServerError, "Failed to load time slots")
		return
	}
	if slots == nil {
		slots = []models.TimeSlot{}
	}

	apiutil.WriteOK(w, r, http.StatusOK, slots)
}

// POST /api/time-slots
func HandleCreateSlot(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Time slot store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req createSlotRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	slot, err := req.toSlot()
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeSlotsQueryTimeout)
	defer cancel()

	var created models.TimeSlot
	err = s.RunInTx(ctx, func(tx store.Store) error {
		if err := requireCourtOwnership(ctx, tx, req.CourtID, user.ID); err != nil {
			return err
		}
		existing, err := tx.TimeSlots().ListByCourtAndDate(ctx, slot.CourtID, slot.Date)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if other.Matches(slot.StartTime, slot.EndTime) {
				return apiutil.HandlerError{Status: http.StatusConflict, Message: "A time slot with these times already exists"}
			}
		}
		created, err = tx.TimeSlots().Create(ctx, slot)
		return err
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, err, "Failed to create time slot")
		return
	}

	logger.Info().
		Int64("slot_id", created.ID).
		Int64("court_id", created.CourtID).
		Time("start_time", created.StartTime).
		Msg("Time slot created")
	apiutil.WriteOK(w, r, http.StatusCreated, created)
}

func (req createSlotRequest) toSlot() (models.TimeSlot, error) {
	start, err := apiutil.ParseTimestamp(req.StartTime, "startTime")
	if err != nil {
		return models.TimeSlot{}, err
	}
	end, err := apiutil.ParseTimestamp(req.EndTime, "endTime")
	if err != nil {
		return models.TimeSlot{}, err
	}
	if !start.Before(end) {
		return models.TimeSlot{}, apiutil.FieldError{Field: "endTime", Reason: "must be after startTime"}
	}

	day := models.DayOf(start)
	if req.Date != "" {
		given, err := models.ParseDay(req.Date)
		if err != nil {
			return models.TimeSlot{}, apiutil.FieldError{Field: "date", Reason: err.Error()}
		}
		if given != day {
			return models.TimeSlot{}, apiutil.FieldError{Field: "date", Reason: "must match the day of startTime"}
		}
	}

	return models.TimeSlot{
		CourtID:   req.CourtID,
		Date:      day,
		StartTime: models.NormalizeTime(start),
		EndTime:   models.NormalizeTime(end),
	}, nil
}

// POST /api/time-slots/generate
func HandleGenerateSlots(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	s := loadStore()
	if s == nil {
		logger.Error().Msg("Time slot store not initialized")
		apiutil.WriteError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	user, ok := apiutil.RequireUser(w, r)
	if !ok {
		return
	}

	var req generateSlotsRequest
	if err := apiutil.DecodeAndValidate(r, &req); err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := models.ParseDay(req.Date)
	if err != nil {
		apiutil.WriteError(w, http.StatusBadRequest, apiutil.FieldError{Field: "date", Reason: err.Error()}.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeSlotsQueryTimeout)
	defer cancel()

	var created []models.TimeSlot
	err = s.RunInTx(ctx, func(tx store.Store) error {
		if err := requireCourtOwnership(ctx, tx, req.CourtID, user.ID); err != nil {
			return err
		}
		var err error
		created, err = booking.GenerateDaySlots(ctx, tx, booking.GenerateRequest{
			CourtID:     req.CourtID,
			Date:        day,
			OpenHour:    req.OpenHour,
			CloseHour:   req.CloseHour,
			SlotMinutes: req.SlotMinutes,
		})
		return err
	})
	if err != nil {
		apiutil.WriteDomainError(w, r, err, "Failed to generate time slots")
		return
	}
	if created == nil {
		created = []models.TimeSlot{}
	}

	logger.Info().
		Int64("court_id", req.CourtID).
		Str("date", day).
		Int("created", len(created)).
		Msg("Time slots generated")

	status := http.StatusCreated
	if len(created) == 0 {
		status = http.StatusOK
	}
	apiutil.WriteOK(w, r, status, created)
}

// requireCourtOwnership rejects callers that do not own the court. A missing
// court is reported the same way so ids cannot be enumerated.
func requireCourtOwnership(ctx context.Context, s store.Store, courtID, userID int64) error {
	court, err := s.Courts().GetByID(ctx, courtID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apiutil.HandlerError{Status: http.StatusForbidden, Message: notCourtOwnerMessage, Err: err}
		}
		return err
	}
	if court.OwnerID != userID {
		return apiutil.HandlerError{Status: http.StatusForbidden, Message: notCourtOwnerMessage}
	}
	return nil
}
