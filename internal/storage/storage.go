package storage

import "github.com/harvestbot/harvester/pkg/core"

// Backend is the interface all recording implementations must satisfy.
// Records are value copies taken by the tick loop; backends may keep them.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Session management
	StartSession(s *core.Session) error
	EndSession() error

	// Recording
	RecordTick(t *core.TickRecord) error
	RecordAssignment(a *core.AssignmentRecord) error
}

// Exportable is an optional interface for backends that produce a file
// once a session ends.
type Exportable interface {
	GetExportedFilePath() string
}
