// Package worker fans recording events out to the storage backend, the metrics
// writer and the status monitor.
package worker

import (
	"errors"
	"log/slog"

	"github.com/harvestbot/harvester/internal/storage"
	"github.com/harvestbot/harvester/pkg/core"
)

// ErrUnexpectedPayload is returned when an event carries the wrong payload type.
var ErrUnexpectedPayload = errors.New("unexpected event payload")

// MetricsWriter receives tick and assignment points (influx.Manager).
type MetricsWriter interface {
	WriteTick(core.TickRecord) error
	WriteAssignment(core.AssignmentRecord) error
}

// StatusSink receives the same records for live status (monitor.Service).
type StatusSink interface {
	StartSession(core.Session)
	RecordTick(core.TickRecord)
	RecordAssignment(core.AssignmentRecord)
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger  *slog.Logger
	Metrics MetricsWriter
	Status  StatusSink
}

// Manager routes recording events to every configured sink
type Manager struct {
	deps    Dependencies
	backend storage.Backend
}

// NewManager creates a new worker manager. backend may be nil.
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

func (m *Manager) hasBackend() bool {
	return m.backend != nil
}

// PendingProvider is an optional interface that backends can implement
// to expose how many records still wait for a database write.
type PendingProvider interface {
	Pending() int
}

// Pending returns the backend's unwritten record count, or 0 if it doesn't track one.
func (m *Manager) Pending() int {
	if p, ok := m.backend.(PendingProvider); ok {
		return p.Pending()
	}
	return 0
}
