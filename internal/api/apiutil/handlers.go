package apiutil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/store"
)

type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type HandlerError struct {
	Status  int
	Message string
	Err     error
}

func (e HandlerError) Error() string {
	return e.Message
}

func (e HandlerError) Unwrap() error {
	return e.Err
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Message string `json:"message"`
}

func DecodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return fmt.Errorf("missing request body")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("missing request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// DecodeAndValidate decodes the body into dst and runs its validate tags.
func DecodeAndValidate(r *http.Request, dst any) error {
	if err := DecodeJSON(r, dst); err != nil {
		return err
	}
	return Validate(dst)
}

func WriteJSON(w http.ResponseWriter, status int, payload any) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(payload); err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err := w.Write(buf.Bytes())
	return err
}

func WriteError(w http.ResponseWriter, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Message: message})
}

// WriteOK writes payload with the given status and logs a failed write.
func WriteOK(w http.ResponseWriter, r *http.Request, status int, payload any) {
	if err := WriteJSON(w, status, payload); err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to write response")
	}
}

// RequireUser returns the authenticated caller or writes 401.
func RequireUser(w http.ResponseWriter, r *http.Request) (*authz.AuthUser, bool) {
	user, err := authz.RequireAuthenticated(r.Context())
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}
	return user, true
}

// RequireCourtOwner returns the caller if they are a court owner, otherwise
// it writes 401 or 403 with forbiddenMessage.
func RequireCourtOwner(w http.ResponseWriter, r *http.Request, forbiddenMessage string) (*authz.AuthUser, bool) {
	user, err := authz.RequireCourtOwner(r.Context())
	switch {
	case errors.Is(err, authz.ErrUnauthenticated):
		WriteError(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	case errors.Is(err, authz.ErrForbidden):
		log.Ctx(r.Context()).Warn().Int64("user_id", user.ID).Msg("Court owner access denied")
		WriteError(w, http.StatusForbidden, forbiddenMessage)
		return nil, false
	}
	return user, true
}

// StatusFor maps domain errors onto HTTP statuses.
func StatusFor(err error) int {
	var handlerErr HandlerError
	var fieldErr FieldError
	switch {
	case errors.As(err, &handlerErr):
		return handlerErr.Status
	case errors.As(err, &fieldErr):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrNoMatchingSlot),
		errors.Is(err, booking.ErrSlotAlreadyBooked),
		errors.Is(err, booking.ErrInvalidStatus),
		errors.Is(err, booking.ErrInvalidTransition),
		errors.Is(err, booking.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// messageFor returns the client-facing text for a mapped error.
func messageFor(err error) string {
	var handlerErr HandlerError
	switch {
	case errors.As(err, &handlerErr):
		return handlerErr.Message
	case errors.Is(err, booking.ErrNoMatchingSlot):
		return "No matching time slot found"
	case errors.Is(err, booking.ErrSlotAlreadyBooked):
		return "This time slot is already booked"
	case errors.Is(err, booking.ErrInvalidStatus):
		return "Invalid status"
	case errors.Is(err, booking.ErrNotAuthorized):
		return "Not authorized to update this booking"
	}
	return err.Error()
}

// WriteDomainError writes err using StatusFor. Server errors are logged and
// replaced by fallback so internals do not leak.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Ctx(r.Context()).Error().Err(err).Msg(fallback)
		WriteError(w, status, fallback)
		return
	}
	WriteError(w, status, messageFor(err))
}
