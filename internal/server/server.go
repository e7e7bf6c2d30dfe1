package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/GriffinCanCode/meetscribe/internal/errors"
	"github.com/GriffinCanCode/meetscribe/internal/session"
	"github.com/GriffinCanCode/meetscribe/internal/trace"
)

// Controller is the session surface the server drives.
type Controller interface {
	Start(ctx context.Context, name, objective string) error
	Pause()
	Resume()
	Stop()
	Snapshot() session.Snapshot
}

// StartRequest is the body of POST /api/session/start.
type StartRequest struct {
	MeetingName string `json:"meeting_name"`
	Objective   string `json:"objective"`
}

// ErrorResponse is returned for failed control requests.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	ctrl     Controller
	hub      *Hub
	gatherer prometheus.Gatherer
}

// New creates a server. A nil gatherer serves the default registry.
func New(ctrl Controller, hub *Hub, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{ctrl: ctrl, hub: hub, gatherer: gatherer}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/session", s.handleSnapshot)
	mux.HandleFunc("POST /api/session/start", s.handleStart)
	mux.HandleFunc("POST /api/session/pause", s.handleControl(s.ctrl.Pause))
	mux.HandleFunc("POST /api/session/resume", s.handleControl(s.ctrl.Resume))
	mux.HandleFunc("POST /api/session/stop", s.handleControl(s.ctrl.Stop))

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&req); err != nil {
		writeError(w, apperrors.Wrap(err, apperrors.CodeValidation, "invalid request body"))
		return
	}
	if err := s.ctrl.Start(r.Context(), req.MeetingName, req.Objective); err != nil {
		trace.Logger(r.Context()).Warn("session start rejected", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

// handleControl runs a state transition. Transitions that do not apply
// in the current state are no-ops, so these always succeed.
func (s *Server) handleControl(fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		fn()
		writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	// Get trace context from HTTP upgrade request
	baseCtx, cancel := context.WithCancel(r.Context())
	defer cancel()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	c := &client{conn: conn, send: make(chan any, ClientBuffer), limiter: &rateLimiter{}}
	c.trySend(SnapshotEvent{Event: s.hub.event(TypeSnapshot), Session: s.ctrl.Snapshot()})
	s.hub.add(c)
	defer s.hub.remove(c)
	go c.writeLoop(baseCtx)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			c.trySend(ErrorEvent{Event: s.hub.event(TypeError), Message: "rate limit exceeded"})
			continue
		}

		var ctl ControlMessage
		if err := json.Unmarshal(msg, &ctl); err != nil {
			continue
		}
		s.handleControlMessage(baseCtx, c, ctl)
	}
}

func (s *Server) handleControlMessage(ctx context.Context, c *client, ctl ControlMessage) {
	ctx, _ = trace.EnsureContext(ctx)
	switch ctl.Type {
	case ControlStart:
		if err := s.ctrl.Start(ctx, ctl.MeetingName, ctl.Objective); err != nil {
			c.trySend(ErrorEvent{
				Event:   s.hub.event(TypeError),
				Code:    string(apperrors.CodeOf(err)),
				Message: err.Error(),
			})
		}
	case ControlPause:
		s.ctrl.Pause()
	case ControlResume:
		s.ctrl.Resume()
	case ControlStop:
		// Stop drains the pipeline before returning; keep reading meanwhile.
		go s.ctrl.Stop()
	default:
		trace.Logger(ctx).Debug("unknown control message", "type", ctl.Type)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	writeJSON(w, httpStatus(code), ErrorResponse{Code: string(code), Message: err.Error()})
}

func httpStatus(code apperrors.Code) int {
	switch code {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeState:
		return http.StatusConflict
	case apperrors.CodeDevice, apperrors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
