package apiutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/codr1/courtbook/internal/api/authz"
	"github.com/codr1/courtbook/internal/booking"
	"github.com/codr1/courtbook/internal/store"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"no matching slot", booking.ErrNoMatchingSlot, http.StatusBadRequest},
		{"already booked", fmt.Errorf("claim: %w", booking.ErrSlotAlreadyBooked), http.StatusBadRequest},
		{"invalid status", booking.ErrInvalidStatus, http.StatusBadRequest},
		{"invalid transition", booking.ErrInvalidTransition, http.StatusBadRequest},
		{"invalid request", booking.ErrInvalidRequest, http.StatusBadRequest},
		{"field error", FieldError{Field: "courtId", Reason: "is required"}, http.StatusBadRequest},
		{"not authorized", booking.ErrNotAuthorized, http.StatusForbidden},
		{"booking not found", booking.ErrNotFound, http.StatusNotFound},
		{"store not found", store.ErrNotFound, http.StatusNotFound},
		{"conflict", store.ErrConflict, http.StatusConflict},
		{"handler error", HandlerError{Status: http.StatusTeapot, Message: "tea"}, http.StatusTeapot},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Fatalf("StatusFor = %d, want %d", got, tt.want)
			}
		})
	}
}

func decodeMessage(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	if err := json.NewDecoder(recorder.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Message
}

func TestWriteDomainErrorMessages(t *testing.T) {
	tests := []struct {
		err     error
		status  int
		message string
	}{
		{booking.ErrNoMatchingSlot, http.StatusBadRequest, "No matching time slot found"},
		{booking.ErrSlotAlreadyBooked, http.StatusBadRequest, "This time slot is already booked"},
		{booking.ErrInvalidStatus, http.StatusBadRequest, "Invalid status"},
		{booking.ErrNotAuthorized, http.StatusForbidden, "Not authorized to update this booking"},
		{errors.New("constraint detail"), http.StatusInternalServerError, "Failed to create booking"},
	}
	for _, tt := range tests {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", nil)

		WriteDomainError(recorder, req, tt.err, "Failed to create booking")

		if recorder.Code != tt.status {
			t.Fatalf("status: %d", recorder.Code)
		}
		if got := decodeMessage(t, recorder); got != tt.message {
			t.Fatalf("message: %q, want %q", got, tt.message)
		}
	}
}

func TestDecodeJSONRejectsUnknownFieldsAndTrailingData(t *testing.T) {
	var dst struct {
		Status string `json:"status"`
	}

	req := httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"confirmed","extra":1}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected unknown field error")
	}

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"confirmed"}{}`))
	if err := DecodeJSON(req, &dst); err == nil {
		t.Fatal("expected trailing data error")
	}

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(""))
	if err := DecodeJSON(req, &dst); err == nil || err.Error() != "missing request body" {
		t.Fatalf("expected missing body, got %v", err)
	}

	req = httptest.NewRequest(http.MethodPatch, "/", strings.NewReader(`{"status":"confirmed"}`))
	if err := DecodeJSON(req, &dst); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dst.Status != "confirmed" {
		t.Fatalf("status: %q", dst.Status)
	}
}

type signupPayload struct {
	Username string `json:"username" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Price    int64  `json:"pricePerHour" validate:"gte=0"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	err := Validate(signupPayload{Username: "ab", Email: "a@example.com"})
	var fieldErr FieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected FieldError, got %v", err)
	}
	if fieldErr.Field != "username" || fieldErr.Reason != "must be at least 3 characters" {
		t.Fatalf("unexpected field error: %+v", fieldErr)
	}

	err = Validate(signupPayload{Username: "abc", Email: "nope"})
	if err == nil || err.Error() != "email must be a valid email address" {
		t.Fatalf("unexpected error: %v", err)
	}

	err = Validate(signupPayload{Username: "abc", Email: "a@example.com", Price: -1})
	if err == nil || err.Error() != "pricePerHour must be 0 or greater" {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := Validate(signupPayload{Username: "abc", Email: "a@example.com"}); err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"0912 345 678", "+84912345678", false},
		{"+1 650-253-0000", "+16502530000", false},
		{"12345", "", true},
		{"not a phone", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.raw, "VN")
		if (err != nil) != tt.wantErr {
			t.Fatalf("NormalizePhone(%q) err = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2025-03-14T16:00:00+07:00", "startTime")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Location().String() != "UTC" || got.Hour() != 9 {
		t.Fatalf("expected 09:00 UTC, got %v", got)
	}

	if _, err := ParseTimestamp("2025-03-14T09:00:00.250Z", "startTime"); err != nil {
		t.Fatalf("fractional seconds: %v", err)
	}
	if _, err := ParseTimestamp("09:00", "startTime"); err == nil {
		t.Fatal("expected error for clock-only value")
	}
	if _, err := ParseTimestamp(" ", "startTime"); err == nil || err.Error() != "startTime is required" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPathID(t *testing.T) {
	mux := http.NewServeMux()
	var gotID int64
	var gotErr error
	mux.HandleFunc("GET /api/courts/{id}", func(w http.ResponseWriter, r *http.Request) {
		gotID, gotErr = PathID(r, "id")
	})

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/courts/42", nil))
	if gotErr != nil || gotID != 42 {
		t.Fatalf("PathID = %d, %v", gotID, gotErr)
	}

	mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/courts/abc", nil))
	if gotErr == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestRequireCourtOwner(t *testing.T) {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/courts", nil)
	if _, ok := RequireCourtOwner(recorder, req, "Only court owners can create courts"); ok {
		t.Fatal("expected anonymous caller to be rejected")
	}
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("status: %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	req = req.WithContext(authz.ContextWithUser(req.Context(), &authz.AuthUser{ID: 2}))
	if _, ok := RequireCourtOwner(recorder, req, "Only court owners can create courts"); ok {
		t.Fatal("expected player to be rejected")
	}
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status: %d", recorder.Code)
	}
	if got := decodeMessage(t, recorder); got != "Only court owners can create courts" {
		t.Fatalf("message: %q", got)
	}
}
