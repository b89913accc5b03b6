package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mr1hm/safety-concierge/internal/clock"
	"github.com/mr1hm/safety-concierge/internal/emergency"
	"github.com/mr1hm/safety-concierge/internal/history"
	"github.com/mr1hm/safety-concierge/internal/metrics"
	"github.com/mr1hm/safety-concierge/internal/models"
	"github.com/mr1hm/safety-concierge/internal/reminder"
	"github.com/mr1hm/safety-concierge/internal/repository"
	"github.com/mr1hm/safety-concierge/internal/stream"
	"github.com/mr1hm/safety-concierge/internal/trigger"
	"github.com/mr1hm/safety-concierge/internal/voice"
)

var testStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	clock       *clock.Fake
	machine     *emergency.Machine
	recorder    *history.Recorder
	detector    *voice.Detector
	reminders   *reminder.Scheduler
	broadcaster *stream.Broadcaster
	router      *gin.Engine
}

func newTestEnv(t *testing.T, store repository.HistoryRepository) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	fake := clock.NewFake(testStart)
	machine := emergency.New(emergency.Options{
		Clock:             fake,
		UserID:            "user-1",
		InactivityTimeout: time.Hour,
	})
	t.Cleanup(machine.Close)

	recorder := history.NewRecorder(nil, 0)
	machine.Observe(recorder.Record)

	broadcaster := stream.NewBroadcaster()
	machine.Observe(broadcaster.Broadcast)
	t.Cleanup(broadcaster.Close)

	m := metrics.New()
	machine.Observe(m.Observe)

	detector := voice.NewDetector(fake, nil, nil)
	detector.Attach()
	trigger.BindVoice(detector, machine, trigger.DefaultSpeechMinLength)

	reminders := reminder.NewScheduler(fake, 0, reminder.DefaultReminders(testStart))
	reminders.OnActivity = trigger.ActivityHandler(machine)

	button := trigger.NewHoldButton(fake, trigger.DefaultHoldDuration, trigger.Manual(machine))

	router := gin.New()
	NewHandler(Deps{
		Machine:     machine,
		Recorder:    recorder,
		Store:       store,
		Detector:    detector,
		Reminders:   reminders,
		Button:      button,
		Broadcaster: broadcaster,
		Metrics:     m.Handler(),
	}).RegisterRoutes(router)

	return &testEnv{
		clock:       fake,
		machine:     machine,
		recorder:    recorder,
		detector:    detector,
		reminders:   reminders,
		broadcaster: broadcaster,
		router:      router,
	}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) snapshotResponse {
	t.Helper()
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var snap snapshotResponse
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return snap
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("unexpected body: %s", w.Body.String())
	}
}

func TestGetEmergency_Idle(t *testing.T) {
	env := newTestEnv(t, nil)

	snap := decodeSnapshot(t, env.do("GET", "/api/emergency", ""))
	if snap.Status != models.StatusSafe {
		t.Errorf("expected safe, got %s", snap.Status)
	}
	if snap.CurrentEvent != nil || snap.TimeRemainingMS != nil {
		t.Errorf("expected no event and no countdown, got %+v", snap)
	}
}

func TestTrigger_CountdownAndEscalation(t *testing.T) {
	env := newTestEnv(t, nil)

	snap := decodeSnapshot(t, env.do("POST", "/api/emergency/trigger", `{"trigger_type":"voice","keyword":"help"}`))
	if snap.Status != models.StatusAlert {
		t.Fatalf("expected alert, got %s", snap.Status)
	}
	if snap.CurrentEvent == nil || snap.CurrentEvent.Keyword != "help" {
		t.Fatalf("expected voice event with keyword, got %+v", snap.CurrentEvent)
	}
	if snap.TimeRemainingMS == nil || *snap.TimeRemainingMS != 30000 {
		t.Errorf("expected 30000ms remaining, got %v", snap.TimeRemainingMS)
	}

	env.clock.Advance(5 * time.Second)
	snap = decodeSnapshot(t, env.do("GET", "/api/emergency", ""))
	if snap.TimeRemainingMS == nil || *snap.TimeRemainingMS != 25000 {
		t.Errorf("expected 25000ms remaining, got %v", snap.TimeRemainingMS)
	}

	env.clock.Advance(25 * time.Second)
	snap = decodeSnapshot(t, env.do("GET", "/api/emergency", ""))
	if snap.Status != models.StatusEmergency {
		t.Errorf("expected emergency after verification window, got %s", snap.Status)
	}
}

func TestTrigger_DefaultsToManual(t *testing.T) {
	env := newTestEnv(t, nil)

	snap := decodeSnapshot(t, env.do("POST", "/api/emergency/trigger", ""))
	if snap.CurrentEvent == nil || snap.CurrentEvent.TriggerType != models.TriggerManual {
		t.Errorf("expected manual trigger, got %+v", snap.CurrentEvent)
	}
}

func TestTrigger_InvalidInput(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name, path, body string
	}{
		{"bad trigger type", "/api/emergency/trigger", `{"trigger_type":"earthquake"}`},
		{"malformed json", "/api/emergency/trigger", `{"trigger_type":`},
		{"bad method", "/api/emergency/verify", `{"method":"telepathy"}`},
		{"resolve without resolver", "/api/emergency/resolve", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do("POST", tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	if env.machine.Status() != models.StatusSafe {
		t.Errorf("expected no transition from bad input, got %s", env.machine.Status())
	}
}

func TestVerify_RecordsAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do("POST", "/api/emergency/trigger", "")

	snap := decodeSnapshot(t, env.do("POST", "/api/emergency/fail", `{"method":"voice"}`))
	if snap.Status != models.StatusAlert {
		t.Errorf("expected failed verification to keep alert, got %s", snap.Status)
	}
	if snap.TimeRemainingMS == nil {
		t.Error("expected countdown to keep running")
	}

	snap = decodeSnapshot(t, env.do("POST", "/api/emergency/verify", `{"method":"button"}`))
	if snap.Status != models.StatusSafe {
		t.Fatalf("expected safe, got %s", snap.Status)
	}
	if len(snap.VerificationAttempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(snap.VerificationAttempts))
	}
	if snap.VerificationAttempts[0].Success || !snap.VerificationAttempts[1].Success {
		t.Errorf("unexpected attempts: %+v", snap.VerificationAttempts)
	}
	if snap.CurrentEvent == nil || snap.CurrentEvent.ResolvedBy != models.ResolvedBySelf {
		t.Errorf("expected self-resolved event, got %+v", snap.CurrentEvent)
	}
}

func TestConfirmAndResolve(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do("POST", "/api/emergency/trigger", "")

	snap := decodeSnapshot(t, env.do("POST", "/api/emergency/confirm", `{"confirmed_by":"caregiver"}`))
	if snap.Status != models.StatusEmergency {
		t.Fatalf("expected emergency, got %s", snap.Status)
	}
	if snap.CurrentEvent.ConfirmedBy != "caregiver" || snap.CurrentEvent.EscalatedAt == nil {
		t.Errorf("expected confirmed and escalated event, got %+v", snap.CurrentEvent)
	}

	snap = decodeSnapshot(t, env.do("POST", "/api/emergency/resolve", `{"resolved_by":"paramedic"}`))
	if snap.Status != models.StatusResolved {
		t.Fatalf("expected resolved, got %s", snap.Status)
	}

	env.clock.Advance(emergency.DefaultResolveRevertDelay)
	snap = decodeSnapshot(t, env.do("GET", "/api/emergency", ""))
	if snap.Status != models.StatusSafe || snap.CurrentEvent != nil {
		t.Errorf("expected safe with no event after revert, got %+v", snap)
	}
}

func TestMonitor_ReminderActivity(t *testing.T) {
	env := newTestEnv(t, nil)

	snap := decodeSnapshot(t, env.do("POST", "/api/emergency/monitor", ""))
	if snap.Status != models.StatusMonitoring {
		t.Fatalf("expected monitoring, got %s", snap.Status)
	}

	w := env.do("POST", "/api/reminders/reminder-1/complete", `{"method":"voice"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	snap = decodeSnapshot(t, env.do("GET", "/api/emergency", ""))
	if snap.Status != models.StatusSafe {
		t.Errorf("expected reminder activity to end monitoring, got %s", snap.Status)
	}
	if len(snap.VerificationAttempts) != 1 || snap.VerificationAttempts[0].Type != models.VerifyActivity {
		t.Errorf("expected one activity attempt, got %+v", snap.VerificationAttempts)
	}
}

func TestMonitor_InactivityTriggers(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do("POST", "/api/emergency/monitor", "")

	env.clock.Advance(time.Hour)
	snap := decodeSnapshot(t, env.do("GET", "/api/emergency", ""))
	if snap.Status != models.StatusAlert {
		t.Fatalf("expected alert after inactivity, got %s", snap.Status)
	}
	if snap.CurrentEvent.TriggerType != models.TriggerInactivity {
		t.Errorf("expected inactivity trigger, got %s", snap.CurrentEvent.TriggerType)
	}

	snap = decodeSnapshot(t, env.do("POST", "/api/emergency/unmonitor", ""))
	if snap.Status != models.StatusAlert {
		t.Errorf("expected unmonitor to leave alert alone, got %s", snap.Status)
	}
}

func TestHistory_SurvivesRevert(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do("POST", "/api/emergency/trigger", `{"trigger_type":"voice","keyword":"fall"}`)
	env.do("POST", "/api/emergency/resolve", `{"resolved_by":"caregiver"}`)
	env.clock.Advance(emergency.DefaultResolveRevertDelay)
	env.clock.Advance(time.Minute)
	env.do("POST", "/api/emergency/trigger", "")

	w := env.do("GET", "/api/emergency/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list struct {
		Events []models.EmergencyEvent `json:"events"`
		Count  int                     `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if list.Count != 2 {
		t.Fatalf("expected 2 events, got %d", list.Count)
	}
	if list.Events[0].TriggerType != models.TriggerManual {
		t.Errorf("expected newest first, got %s", list.Events[0].TriggerType)
	}
	first := list.Events[1]
	if first.Status != models.StatusResolved || first.ResolvedBy != "caregiver" {
		t.Errorf("expected resolved voice event retained, got %+v", first)
	}

	w = env.do("GET", "/api/emergency/history?trigger_type=voice", "")
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if list.Count != 1 {
		t.Errorf("expected 1 voice event, got %d", list.Count)
	}

	w = env.do("GET", "/api/emergency/history/"+first.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var detail struct {
		Event    models.EmergencyEvent `json:"event"`
		Timeline []models.Transition   `json:"timeline"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	// alert, resolved, safe
	if len(detail.Timeline) != 3 {
		t.Errorf("expected 3 transitions, got %+v", detail.Timeline)
	}

	if w := env.do("GET", "/api/emergency/history/missing", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	if w := env.do("GET", "/api/emergency/history?status=panicking", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// mockStore implements repository.HistoryRepository for testing
type mockStore struct {
	events []models.EmergencyEvent
	filter repository.Filter
}

func (m *mockStore) SaveEvent(ctx context.Context, e *models.EmergencyEvent) error { return nil }

func (m *mockStore) GetEvent(ctx context.Context, id string) (*models.EmergencyEvent, error) {
	for _, e := range m.events {
		if e.ID == id {
			return e.Clone(), nil
		}
	}
	return nil, nil
}

func (m *mockStore) ListEvents(ctx context.Context, opts repository.Filter) ([]models.EmergencyEvent, error) {
	m.filter = opts
	return m.events, nil
}

func (m *mockStore) AddTransition(ctx context.Context, t *models.Transition) error { return nil }

func (m *mockStore) ListTransitions(ctx context.Context, eventID string) ([]models.Transition, error) {
	return []models.Transition{{EventID: eventID, Kind: "status", From: models.StatusSafe, To: models.StatusAlert}}, nil
}

func TestHistory_FromStore(t *testing.T) {
	store := &mockStore{events: []models.EmergencyEvent{
		{ID: "archived", TriggerType: models.TriggerManual, Status: models.StatusResolved},
	}}
	env := newTestEnv(t, store)

	w := env.do("GET", "/api/emergency/history?limit=5&since=2026-01-01&status=resolved", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if store.filter.Limit != 5 || store.filter.Since == nil || store.filter.Status == nil {
		t.Errorf("expected filter passed through, got %+v", store.filter)
	}

	w = env.do("GET", "/api/emergency/history/archived", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected archived event from store, got %d", w.Code)
	}
}

func TestHistory_EmptyStoreServesEmptyList(t *testing.T) {
	db, err := repository.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	defer db.Close()
	env := newTestEnv(t, db)

	w := env.do("GET", "/api/emergency/history", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"events":[]`) {
		t.Errorf("expected empty events array, got %s", w.Body.String())
	}
}

func TestVoice_TranscriptTriggersAndVerifies(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("POST", "/api/voice/transcript", `{"transcript":"I need HELP please"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Detected bool                   `json:"detected"`
		Keyword  string                 `json:"keyword"`
		Status   models.EmergencyStatus `json:"status"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if !resp.Detected || resp.Keyword != "help" || resp.Status != models.StatusAlert {
		t.Fatalf("unexpected response: %+v", resp)
	}

	env.do("POST", "/api/voice/transcript", `{"transcript":"yes I am doing fine now"}`)
	if env.machine.Status() != models.StatusSafe {
		t.Errorf("expected spoken confirmation to verify safe, got %s", env.machine.Status())
	}
}

func TestVoice_Disabled(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("PUT", "/api/voice/enabled", `{"enabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = env.do("POST", "/api/voice/transcript", `{"transcript":"help"}`)
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if env.machine.Status() != models.StatusSafe {
		t.Errorf("expected no trigger while disabled, got %s", env.machine.Status())
	}

	if w := env.do("PUT", "/api/voice/enabled", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing enabled, got %d", w.Code)
	}

	w = env.do("GET", "/api/voice", "")
	var status map[string]any
	json.Unmarshal(w.Body.Bytes(), &status)
	if status["enabled"] != false || status["supported"] != true {
		t.Errorf("unexpected voice status: %v", status)
	}
}

func TestReminders(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do("POST", "/api/reminders", `{"type":"water","title":"Water","scheduled_time":"2026-03-01T08:00:00Z"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do("GET", "/api/reminders?view=past_due", "")
	var list struct {
		Reminders []models.Reminder `json:"reminders"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Reminders) != 1 || list.Reminders[0].Title != "Water" {
		t.Errorf("expected the new reminder past due, got %+v", list.Reminders)
	}

	w = env.do("GET", "/api/reminders?view=upcoming", "")
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Reminders) != 5 {
		t.Errorf("expected 5 upcoming, got %d", len(list.Reminders))
	}

	if w := env.do("POST", "/api/reminders", `{"type":"yoga","title":"Yoga","scheduled_time":"2026-03-01T08:00:00Z"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad type, got %d", w.Code)
	}
	if w := env.do("POST", "/api/reminders", `{"type":"rest","title":"Nap"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing time, got %d", w.Code)
	}
	if w := env.do("GET", "/api/reminders?view=tomorrow", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad view, got %d", w.Code)
	}

	if w := env.do("POST", "/api/reminders/reminder-3/complete", ""); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	if w := env.do("POST", "/api/reminders/reminder-3/complete", ""); w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
	if w := env.do("POST", "/api/reminders/nope/complete", ""); w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestButton_HoldTriggers(t *testing.T) {
	env := newTestEnv(t, nil)

	if w := env.do("POST", "/api/button/press", ""); w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	env.clock.Advance(500 * time.Millisecond)
	env.do("POST", "/api/button/release", "")
	env.clock.Advance(time.Second)
	if env.machine.Status() != models.StatusSafe {
		t.Fatalf("expected early release to cancel, got %s", env.machine.Status())
	}

	env.do("POST", "/api/button/press", "")
	env.clock.Advance(trigger.DefaultHoldDuration)
	if env.machine.Status() != models.StatusAlert {
		t.Fatalf("expected full hold to trigger, got %s", env.machine.Status())
	}
	if ev := env.machine.CurrentEvent(); ev.TriggerType != models.TriggerManual {
		t.Errorf("expected manual trigger, got %s", ev.TriggerType)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do("POST", "/api/emergency/trigger", "")

	w := env.do("GET", "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `concierge_emergency_transitions_total{from="safe",to="alert"} 1`) {
		t.Errorf("expected transition counter, got:\n%s", w.Body.String())
	}
}
