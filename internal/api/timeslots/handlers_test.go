package timeslots

// NOTE: Tests cannot use t.Parallel() due to shared package state.

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/codr1/courtbook/internal/models"
	"github.com/codr1/courtbook/internal/store"
	"github.com/codr1/courtbook/internal/testutil"
)

func setupTimeSlotsTest(t *testing.T) (store.Store, testutil.Fixture) {
	t.Helper()

	s := testutil.NewTestStore(t)
	fixture := testutil.Seed(t, s)

	slotStore = nil
	slotStoreOnce = sync.Once{}
	InitHandlers(s)

	t.Cleanup(func() {
		slotStore = nil
		slotStoreOnce = sync.Once{}
	})

	return s, fixture
}

func listSlots(t *testing.T, courtID int64, day string) []models.TimeSlot {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodGet, fmt.Sprintf("/api/time-slots/%d/%s", courtID, day), nil)
	recorder := testutil.Serve("GET /api/time-slots/{courtId}/{date}", HandleListSlots, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status: %d body: %s", recorder.Code, recorder.Body.String())
	}
	var slots []models.TimeSlot
	testutil.DecodeBody(t, recorder, &slots)
	return slots
}

func TestHandleListSlotsSortedByStart(t *testing.T) {
	s, fixture := setupTimeSlotsTest(t)
	testutil.CreateSlot(t, s, fixture.Court.ID, testutil.SlotStart.Add(-2*time.Hour), time.Hour)

	slots := listSlots(t, fixture.Court.ID, testutil.SlotDay)
	if len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
	if !slots[0].StartTime.Before(slots[1].StartTime) {
		t.Fatalf("slots not sorted: %v then %v", slots[0].StartTime, slots[1].StartTime)
	}

	if slots := listSlots(t, fixture.Court.ID, "2025-03-15"); len(slots) != 0 {
		t.Fatalf("expected empty day, got %d", len(slots))
	}
}

func TestHandleListSlotsAcceptsTimestampDate(t *testing.T) {
	_, fixture := setupTimeSlotsTest(t)

	slots := listSlots(t, fixture.Court.ID, "2025-03-14T00:00:00Z")
	if len(slots) != 1 || slots[0].ID != fixture.Slot.ID {
		t.Fatalf("unexpected slots: %+v", slots)
	}
}

func TestHandleCreateSlot(t *testing.T) {
	_, fixture := setupTimeSlotsTest(t)

	start := testutil.SlotStart.Add(3 * time.Hour)
	payload := map[string]any{
		"courtId":   fixture.Court.ID,
		"date":      testutil.SlotDay,
		"startTime": start.Format(time.RFC3339),
		"endTime":   start.Add(90 * time.Minute).Format(time.RFC3339),
	}

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/time-slots", payload)
	recorder := testutil.Serve("POST /api/time-slots", HandleCreateSlot, testutil.WithUser(req, fixture.Owner))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status: %d body: %s", recorder.Code, recorder.Body.String())
	}
	var slot models.TimeSlot
	testutil.DecodeBody(t, recorder, &slot)
	if slot.IsBooked || slot.Date != testutil.SlotDay || !slot.StartTime.Equal(start) {
		t.Fatalf("unexpected slot: %+v", slot)
	}

	req = testutil.NewJSONRequest(t, http.MethodPost, "/api/time-slots", payload)
	recorder = testutil.Serve("POST /api/time-slots", HandleCreateSlot, testutil.WithUser(req, fixture.Owner))
	if recorder.Code != http.StatusConflict {
		t.Fatalf("duplicate status: %d", recorder.Code)
	}

	if slots := listSlots(t, fixture.Court.ID, testutil.SlotDay); len(slots) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(slots))
	}
}

func TestHandleCreateSlotRejects(t *testing.T) {
	s, fixture := setupTimeSlotsTest(t)
	rival := testutil.CreateUser(t, s, "rival", true)

	valid := func() map[string]any {
		return map[string]any{
			"courtId":   fixture.Court.ID,
			"startTime": "2025-03-14T14:00:00Z",
			"endTime":   "2025-03-14T15:00:00Z",
		}
	}

	tests := []struct {
		name    string
		user    *models.User
		mutate  func(map[string]any)
		status  int
		message string
	}{
		{"anonymous", nil, func(map[string]any) {}, http.StatusUnauthorized, "Authentication required"},
		{"player", &fixture.Player, func(map[string]any) {}, http.StatusForbidden, notCourtOwnerMessage},
		{"other owner", &rival, func(map[string]any) {}, http.StatusForbidden, notCourtOwnerMessage},
		{"unknown court", &fixture.Owner, func(p map[string]any) { p["courtId"] = 999 }, http.StatusForbidden, notCourtOwnerMessage},
		{"reversed", &fixture.Owner, func(p map[string]any) { p["endTime"] = "2025-03-14T13:00:00Z" }, http.StatusBadRequest, "endTime must be after startTime"},
		{"date mismatch", &fixture.Owner, func(p map[string]any) { p["date"] = "2025-03-15" }, http.StatusBadRequest, "date must match the day of startTime"},
		{"bad timestamp", &fixture.Owner, func(p map[string]any) { p["startTime"] = "14:00" }, http.StatusBadRequest, "startTime must be an RFC 3339 timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := valid()
			tt.mutate(payload)
			req := testutil.NewJSONRequest(t, http.MethodPost, "/api/time-slots", payload)
			if tt.user != nil {
				req = testutil.WithUser(req, *tt.user)
			}
			recorder := testutil.Serve("POST /api/time-slots", HandleCreateSlot, req)
			if recorder.Code != tt.status {
				t.Fatalf("status: %d body: %s", recorder.Code, recorder.Body.String())
			}
			if msg := testutil.ErrorMessage(t, recorder); msg != tt.message {
				t.Fatalf("message: %q", msg)
			}
		})
	}
}

func TestHandleGenerateSlots(t *testing.T) {
	_, fixture := setupTimeSlotsTest(t)

	payload := map[string]any{
		"courtId":   fixture.Court.ID,
		"date":      testutil.SlotDay,
		"openHour":  6,
		"closeHour": 12,
	}

	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/time-slots/generate", payload)
	recorder := testutil.Serve("POST /api/time-slots/generate", HandleGenerateSlots, testutil.WithUser(req, fixture.Owner))
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status: %d body: %s", recorder.Code, recorder.Body.String())
	}
	var created []models.TimeSlot
	testutil.DecodeBody(t, recorder, &created)
	// 06:00-12:00 is six hourly slots; 09:00 already exists from the fixture.
	if len(created) != 5 {
		t.Fatalf("expected 5 new slots, got %d", len(created))
	}

	req = testutil.NewJSONRequest(t, http.MethodPost, "/api/time-slots/generate", payload)
	recorder = testutil.Serve("POST /api/time-slots/generate", HandleGenerateSlots, testutil.WithUser(req, fixture.Owner))
	if recorder.Code != http.StatusOK {
		t.Fatalf("repeat status: %d", recorder.Code)
	}
	testutil.DecodeBody(t, recorder, &created)
	if len(created) != 0 {
		t.Fatalf("expected repeat to create nothing, got %d", len(created))
	}

	if slots := listSlots(t, fixture.Court.ID, testutil.SlotDay); len(slots) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(slots))
	}
}

func TestHandleGenerateSlotsValidation(t *testing.T) {
	_, fixture := setupTimeSlotsTest(t)

	payload := map[string]any{
		"courtId":     fixture.Court.ID,
		"date":        testutil.SlotDay,
		"openHour":    10,
		"closeHour":   8,
		"slotMinutes": 60,
	}
	req := testutil.NewJSONRequest(t, http.MethodPost, "/api/time-slots/generate", payload)
	recorder := testutil.Serve("POST /api/time-slots/generate", HandleGenerateSlots, testutil.WithUser(req, fixture.Owner))
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status: %d", recorder.Code)
	}

	payload["openHour"] = 6
	req = testutil.NewJSONRequest(t, http.MethodPost, "/api/time-slots/generate", payload)
	recorder = testutil.Serve("POST /api/time-slots/generate", HandleGenerateSlots, testutil.WithUser(req, fixture.Player))
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("status: %d", recorder.Code)
	}
}
