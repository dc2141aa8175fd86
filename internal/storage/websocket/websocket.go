// Package websocket streams session records to a live viewer over a WebSocket.
package websocket

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harvestbot/harvester/pkg/core"
	"github.com/harvestbot/harvester/pkg/streaming"
)

const defaultAckTimeout = 10 * time.Second

// Config holds WebSocket backend configuration.
type Config struct {
	URL        string
	Secret     string
	AckTimeout time.Duration
}

// Backend streams session data over WebSocket.
// Ticks and assignments are fire-and-forget; session start and end wait for an ack.
type Backend struct {
	conn *connection
	cfg  Config

	mu          sync.Mutex
	sessionID   string
	ticks       int
	assignments int
	lastScore   float64
}

// New creates a new WebSocket storage backend.
func New(cfg Config, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = defaultAckTimeout
	}
	return &Backend{
		conn: newConnection(logger.With("component", "storage.websocket")),
		cfg:  cfg,
	}
}

// Init connects to the WebSocket server.
func (b *Backend) Init() error {
	return b.conn.open(b.cfg.URL, b.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (b *Backend) Close() error {
	return b.conn.close()
}

func envelope(msgType string, payload any) ([]byte, error) {
	data, err := streaming.Marshal(msgType, payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msgType, err)
	}
	return data, nil
}

// StartSession announces the session and waits for the server ack.
// The message is kept and replayed after a reconnect.
func (b *Backend) StartSession(s *core.Session) error {
	data, err := envelope(streaming.TypeStartSession, streaming.StartSessionPayload{Session: s})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.sessionID = s.ID
	b.ticks, b.assignments, b.lastScore = 0, 0, 0
	b.mu.Unlock()

	b.conn.setStart(data)
	return b.conn.sendAndWait(data, streaming.TypeStartSession, b.cfg.AckTimeout)
}

// EndSession sends the session totals and waits for the server ack.
func (b *Backend) EndSession() error {
	b.mu.Lock()
	payload := streaming.EndSessionPayload{
		SessionID:   b.sessionID,
		Ticks:       b.ticks,
		Assignments: b.assignments,
		FinalScore:  b.lastScore,
	}
	b.sessionID = ""
	b.mu.Unlock()

	data, err := envelope(streaming.TypeEndSession, payload)
	if err != nil {
		return err
	}
	err = b.conn.sendAndWait(data, streaming.TypeEndSession, b.cfg.AckTimeout)

	// a reconnect after this point must not reopen the session
	b.conn.setStart(nil)
	return err
}

// RecordTick streams a tick summary.
func (b *Backend) RecordTick(t *core.TickRecord) error {
	data, err := envelope(streaming.TypeTick, t)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.ticks++
	b.lastScore = t.Score
	b.mu.Unlock()

	b.conn.send(data)
	return nil
}

// RecordAssignment streams an assignment.
func (b *Backend) RecordAssignment(a *core.AssignmentRecord) error {
	data, err := envelope(streaming.TypeAssignment, a)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.assignments++
	b.mu.Unlock()

	b.conn.send(data)
	return nil
}

// Dropped returns how many messages were discarded because the send queue was full.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}
