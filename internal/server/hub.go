package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/GriffinCanCode/meetscribe/internal/analysis"
	"github.com/GriffinCanCode/meetscribe/internal/meeting"
	"github.com/GriffinCanCode/meetscribe/internal/transcript"
)

// client is one websocket connection with its own writer goroutine.
type client struct {
	conn    *websocket.Conn
	send    chan any
	limiter *rateLimiter
}

// writeLoop sends queued events until ctx ends or a write fails.
func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

// trySend queues msg without blocking. Reports false when the client is behind.
func (c *client) trySend(msg any) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub broadcasts session events to every connected client. It implements
// sink.Sink; a slow client loses events instead of stalling the session.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped atomic.Int64
	now     func() time.Time
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{}), now: time.Now}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many events were not delivered to a slow client.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Broadcast queues msg for every client.
func (h *Hub) Broadcast(msg any) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.trySend(msg) {
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) event(eventType string) Event { return newEvent(eventType, h.now()) }

func (h *Hub) OnTranscriptAppended(e transcript.Entry) {
	h.Broadcast(TranscriptEvent{
		Event:   h.event(TypeTranscript),
		Speaker: e.SpeakerID,
		Text:    e.Text,
		At:      e.Timestamp.Format(meeting.ClockLayout),
	})
}

func (h *Hub) OnSummaryUpdated(v analysis.Value) {
	h.Broadcast(AnalysisEvent{Event: h.event(TypeSummary), Analyzer: analysis.Summary, Text: v.Text})
}

func (h *Hub) OnAnalysisUpdated(name string, v analysis.Value) {
	h.Broadcast(AnalysisEvent{Event: h.event(TypeAnalysis), Analyzer: name, Text: v.Text, Items: v.Items})
}

func (h *Hub) OnRecordingStateChanged(state string) {
	h.Broadcast(StateEvent{Event: h.event(TypeState), State: state})
}

func (h *Hub) OnFinalStats(duration string, totalTokens int64) {
	h.Broadcast(FinalStatsEvent{Event: h.event(TypeFinalStats), Duration: duration, TotalTokens: totalTokens})
}

func (h *Hub) OnNotice(level slog.Level, message string) {
	h.Broadcast(NoticeEvent{Event: h.event(TypeNotice), Level: level.String(), Message: message})
}
