package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/metrics"
	"github.com/GriffinCanCode/meetscribe/internal/session"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

// mockController for testing.
type mockController struct {
	mu       sync.Mutex
	state    string
	name     string
	startErr error
	calls    []string
}

func newMockController() *mockController { return &mockController{state: "Idle"} }

func (m *mockController) Start(_ context.Context, name, objective string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "start")
	if m.startErr != nil {
		return m.startErr
	}
	if strings.TrimSpace(name) == "" || strings.TrimSpace(objective) == "" {
		return apperrors.New(apperrors.CodeValidation, "meeting name and objective are required")
	}
	m.name, m.state = name, "Recording"
	return nil
}

func (m *mockController) Pause()  { m.set("pause", "Paused") }
func (m *mockController) Resume() { m.set("resume", "Recording") }
func (m *mockController) Stop()   { m.set("stop", "Idle") }

func (m *mockController) set(call, state string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.state = state
	m.mu.Unlock()
}

func (m *mockController) Snapshot() session.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return session.Snapshot{State: m.state, MeetingName: m.name}
}

func (m *mockController) called() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func newTestServer(ctrl Controller) (*Server, *Hub, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	metrics.NewPipeline(reg)
	hub := NewHub()
	return New(ctrl, hub, reg), hub, reg
}

func TestCORSMiddleware(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("OPTIONS", "/test", http.NoBody)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("OPTIONS status = %d, want %d", rec.Code, http.StatusOK)
	}
	if v := rec.Header().Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("CORS origin = %q, want %q", v, "*")
	}
	if v := rec.Header().Get("Access-Control-Allow-Methods"); v != "GET, POST, OPTIONS" {
		t.Errorf("CORS methods = %q, want %q", v, "GET, POST, OPTIONS")
	}
}

func TestStartEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		startErr error
		want     int
		wantCode string
	}{
		{"ok", `{"meeting_name":"Sprint Review","objective":"Plan next sprint"}`, nil, http.StatusOK, ""},
		{"blank name", `{"meeting_name":" ","objective":"Plan"}`, nil, http.StatusBadRequest, "VALIDATION"},
		{"bad json", `{`, nil, http.StatusBadRequest, "VALIDATION"},
		{"already running", `{"meeting_name":"a","objective":"b"}`, apperrors.New(apperrors.CodeState, "busy"), http.StatusConflict, "STATE"},
		{"no device", `{"meeting_name":"a","objective":"b"}`, apperrors.New(apperrors.CodeDevice, "no mic"), http.StatusServiceUnavailable, "DEVICE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newMockController()
			ctrl.startErr = tt.startErr
			srv, _, _ := newTestServer(ctrl)

			req := httptest.NewRequest("POST", "/api/session/start", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
			if tt.wantCode != "" {
				var resp ErrorResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatal(err)
				}
				if resp.Code != tt.wantCode {
					t.Errorf("code = %q, want %q", resp.Code, tt.wantCode)
				}
				return
			}
			var snap session.Snapshot
			if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
				t.Fatal(err)
			}
			if snap.State != "Recording" || snap.MeetingName != "Sprint Review" {
				t.Errorf("snapshot = %+v", snap)
			}
		})
	}
}

func TestControlEndpoints(t *testing.T) {
	ctrl := newMockController()
	srv, _, _ := newTestServer(ctrl)
	h := srv.Handler()

	for _, path := range []string{"pause", "resume", "stop"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/session/"+path, http.NoBody))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
	if got := strings.Join(ctrl.called(), ","); got != "pause,resume,stop" {
		t.Errorf("calls = %s", got)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/session/stop", http.NoBody))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET stop status = %d, want 405", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(newMockController())
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", http.NoBody))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", http.NoBody))
	if !strings.Contains(rec.Body.String(), "meetscribe_active_sessions") {
		t.Errorf("metrics output missing pipeline gauges:\n%s", rec.Body.String())
	}
}

func TestRateLimiter(t *testing.T) {
	rl := &rateLimiter{}
	for i := 0; i < RateLimitMessages; i++ {
		if !rl.allow() {
			t.Fatalf("message %d rejected", i)
		}
	}
	if rl.allow() {
		t.Error("message over the limit allowed")
	}
}

func TestWebSocketEvents(t *testing.T) {
	ctrl := newMockController()
	srv, hub, _ := newTestServer(ctrl)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var snap SnapshotEvent
	if err := wsjson.Read(ctx, conn, &snap); err != nil {
		t.Fatal(err)
	}
	if snap.Type != TypeSnapshot || snap.Version != EventVersion || snap.Session.State != "Idle" {
		t.Errorf("first event = %+v", snap)
	}

	for hub.Clients() == 0 {
		time.Sleep(time.Millisecond)
	}
	hub.OnTranscriptAppended(transcript.Entry{SpeakerID: "spk-1", Text: "Hello", Timestamp: time.Date(2024, 5, 6, 9, 30, 5, 0, time.UTC)})
	hub.OnNotice(slog.LevelWarn, apperrors.RateLimitMessage)

	var tr TranscriptEvent
	if err := wsjson.Read(ctx, conn, &tr); err != nil {
		t.Fatal(err)
	}
	if tr.Type != TypeTranscript || tr.Text != "Hello" || tr.Speaker != "spk-1" || tr.At != "09:30:05" {
		t.Errorf("transcript event = %+v", tr)
	}
	var notice NoticeEvent
	if err := wsjson.Read(ctx, conn, &notice); err != nil {
		t.Fatal(err)
	}
	if notice.Level != "WARN" || notice.Message != apperrors.RateLimitMessage {
		t.Errorf("notice event = %+v", notice)
	}

	if err := wsjson.Write(ctx, conn, ControlMessage{Type: ControlStart, MeetingName: "", Objective: "x"}); err != nil {
		t.Fatal(err)
	}
	var errEvt ErrorEvent
	if err := wsjson.Read(ctx, conn, &errEvt); err != nil {
		t.Fatal(err)
	}
	if errEvt.Type != TypeError || errEvt.Code != "VALIDATION" {
		t.Errorf("error event = %+v", errEvt)
	}

	if err := wsjson.Write(ctx, conn, ControlMessage{Type: ControlPause}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for ctrl.Snapshot().State != "Paused" {
		if time.Now().After(deadline) {
			t.Fatalf("pause not applied, calls = %v", ctrl.called())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubDropsForSlowClient(t *testing.T) {
	hub := NewHub()
	c := &client{send: make(chan any, 1)}
	hub.add(c)

	hub.OnRecordingStateChanged("Recording")
	hub.OnRecordingStateChanged("Paused")

	if hub.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", hub.Dropped())
	}
	evt := (<-c.send).(StateEvent)
	if evt.State != "Recording" {
		t.Errorf("queued state = %q", evt.State)
	}

	hub.remove(c)
	hub.OnFinalStats("00:00:01", 3)
	if len(c.send) != 0 {
		t.Error("removed client still receives events")
	}
}

func TestEventJSON(t *testing.T) {
	data, err := json.Marshal(FinalStatsEvent{Event: newEvent(TypeFinalStats, time.Unix(0, 0)), Duration: "00:45:30", TotalTokens: 12})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"final_stats","version":1,"timestamp":"1970-01-01T00:00:00Z","duration":"00:45:30","total_tokens":12}`
	if string(data) != want {
		t.Errorf("json = %s\nwant %s", data, want)
	}

	var base Message
	if err := json.Unmarshal(data, &base); err != nil || base.Type != TypeFinalStats {
		t.Errorf("Message decode = %+v, %v", base, err)
	}
}
