// Package memory keeps a session's records in memory and writes them out as a
// JSONL journal (optionally zstd-compressed) when the session ends.
package memory

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/harvestbot/harvester/internal/config"
	"github.com/harvestbot/harvester/pkg/core"
)

// ErrNoSession is returned when a record arrives outside a session.
var ErrNoSession = errors.New("no session started")

// TickEntry groups a tick with the assignments decided on it
type TickEntry struct {
	Tick        core.TickRecord
	Assignments []core.AssignmentRecord
}

// Backend stores session data in memory and exports it as a journal
type Backend struct {
	cfg    config.MemoryConfig
	logger *slog.Logger

	session *core.Session
	ticks   []*TickEntry
	byNow   map[int]*TickEntry
	// assignments whose tick has not been recorded yet
	orphans []core.AssignmentRecord
	total   int

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:    cfg,
		logger: logger,
		byNow:  make(map[int]*TickEntry),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session, discarding anything held from a previous one
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp
	b.ticks = nil
	b.byNow = make(map[int]*TickEntry)
	b.orphans = nil
	b.total = 0
	b.lastExportPath = ""

	return nil
}

// EndSession writes the journal and closes the session
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}

	path, err := b.writeJournal()
	if err != nil {
		return err
	}
	b.lastExportPath = path
	b.logger.Info("Session journal written",
		"session", b.session.ID,
		"path", path,
		"ticks", len(b.ticks),
		"assignments", b.total)

	b.session = nil
	return nil
}

// RecordTick stores a tick summary
func (b *Backend) RecordTick(t *core.TickRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}

	entry := &TickEntry{Tick: *t}
	b.ticks = append(b.ticks, entry)
	b.byNow[t.Now] = entry

	// claim assignments recorded before their tick
	kept := b.orphans[:0]
	for _, a := range b.orphans {
		if a.Now == t.Now {
			entry.Assignments = append(entry.Assignments, a)
		} else {
			kept = append(kept, a)
		}
	}
	b.orphans = kept

	return nil
}

// RecordAssignment stores an assignment under the tick it was decided on
func (b *Backend) RecordAssignment(a *core.AssignmentRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}

	b.total++
	if entry, ok := b.byNow[a.Now]; ok {
		entry.Assignments = append(entry.Assignments, *a)
		return nil
	}
	b.orphans = append(b.orphans, *a)
	return nil
}

// Ticks returns a copy of the recorded ticks in arrival order
func (b *Backend) Ticks() []TickEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]TickEntry, len(b.ticks))
	for i, e := range b.ticks {
		out[i] = TickEntry{
			Tick:        e.Tick,
			Assignments: append([]core.AssignmentRecord(nil), e.Assignments...),
		}
	}
	return out
}

// GetExportedFilePath returns the path of the last written journal
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
