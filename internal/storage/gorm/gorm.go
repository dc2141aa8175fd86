// Package gormstorage implements the storage.Backend interface using GORM
// with internal queues and a background DB writer goroutine.
package gormstorage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harvestbot/harvester/internal/database"
	"github.com/harvestbot/harvester/internal/model"
	"github.com/harvestbot/harvester/internal/model/convert"
	"github.com/harvestbot/harvester/internal/queue"
	"github.com/harvestbot/harvester/pkg/core"

	"gorm.io/gorm"
)

// DefaultFlushInterval is how often queued rows are written when none is configured.
const DefaultFlushInterval = 2 * time.Second

// defaultQueueLimit bounds each write queue while the database is unreachable.
const defaultQueueLimit = 100_000

// ErrNoSession is returned when a record arrives outside a session.
var ErrNoSession = errors.New("no session started")

// ErrNotInitialized is returned when a session starts before Init.
var ErrNotInitialized = errors.New("backend not initialized")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	// DB is used as-is when set; otherwise Init opens one by Dialect.
	DB            *gorm.DB
	Dialect       string // postgres | sqlite
	SqlitePath    string // empty means in-memory
	Logger        *slog.Logger
	FlushInterval time.Duration
	QueueLimit    int
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Ticks       *queue.Queue[model.Tick]
	Assignments *queue.Queue[model.Assignment]
}

func newQueues(limit int) *queues {
	return &queues{
		Ticks:       queue.New[model.Tick](limit),
		Assignments: queue.New[model.Assignment](limit),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps      Dependencies
	log       *slog.Logger
	queues    *queues
	sessionID atomic.Uint64

	// totals for the session row, written on EndSession
	ticks       atomic.Int64
	assignments atomic.Int64
	lastScore   atomic.Uint64 // math.Float64bits

	flushMu  sync.Mutex
	stopChan chan struct{}
	stopped  chan struct{}
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.QueueLimit <= 0 {
		deps.QueueLimit = defaultQueueLimit
	}
	return &Backend{
		deps: deps,
		log:  deps.Logger.With("component", "storage.gorm"),
	}
}

// DB returns the database handle, available after Init.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
// If no DB was injected via Dependencies, it opens its own connection.
func (b *Backend) Init() error {
	b.queues = newQueues(b.deps.QueueLimit)

	if b.deps.DB == nil {
		db, err := open(b.deps.Dialect, b.deps.SqlitePath)
		if err != nil {
			return err
		}
		b.deps.DB = db
	}

	b.log.Info("Migrating schema", "dialect", b.deps.DB.Name())
	if err := database.Migrate(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.stopChan = make(chan struct{})
	b.stopped = make(chan struct{})
	go b.writer()
	return nil
}

func open(dialect, sqlitePath string) (*gorm.DB, error) {
	switch dialect {
	case "postgres":
		db, err := database.GetPostgresDBStandalone()
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql interface: %w", err)
		}
		if err = sqlDB.Ping(); err != nil {
			return nil, fmt.Errorf("failed to validate connection: %w", err)
		}
		sqlDB.SetMaxOpenConns(10)
		return db, nil
	case "", "sqlite":
		db, err := database.GetSqliteDBStandalone(sqlitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown gorm dialect: %s", dialect)
	}
}

// Close stops the DB writer goroutine and writes whatever is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.stopped
	return b.Flush()
}

// StartSession inserts the session row synchronously so queued rows can reference it.
func (b *Backend) StartSession(s *core.Session) error {
	if b.stopChan == nil {
		return ErrNotInitialized
	}
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	b.ticks.Store(0)
	b.assignments.Store(0)
	b.lastScore.Store(0)
	b.sessionID.Store(uint64(row.ID))

	b.log.Debug("Session row created", "session", s.ID, "id", row.ID)
	return nil
}

// SessionID returns the database ID of the current session, 0 if none.
func (b *Backend) SessionID() uint {
	return uint(b.sessionID.Load())
}

// EndSession flushes queued rows and stores the session totals.
func (b *Backend) EndSession() error {
	id := b.SessionID()
	if id == 0 {
		return ErrNoSession
	}

	if err := b.Flush(); err != nil {
		return err
	}

	err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Updates(map[string]any{
		"ended_at":    sql.NullTime{Time: time.Now(), Valid: true},
		"ticks":       b.ticks.Load(),
		"assignments": b.assignments.Load(),
		"final_score": math.Float64frombits(b.lastScore.Load()),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	b.sessionID.Store(0)
	return nil
}

// RecordTick converts and queues a tick summary.
func (b *Backend) RecordTick(t *core.TickRecord) error {
	id := b.SessionID()
	if id == 0 {
		return ErrNoSession
	}

	row := convert.CoreToTick(*t)
	row.SessionID = id
	if row.Time.IsZero() {
		row.Time = time.Now()
	}
	if n := b.queues.Ticks.Push(row); n > 0 {
		b.log.Warn("Tick queue full, oldest rows dropped", "dropped", n)
	}

	b.ticks.Add(1)
	b.lastScore.Store(math.Float64bits(t.Score))
	return nil
}

// RecordAssignment converts and queues an assignment.
func (b *Backend) RecordAssignment(a *core.AssignmentRecord) error {
	id := b.SessionID()
	if id == 0 {
		return ErrNoSession
	}

	row := convert.CoreToAssignment(*a)
	row.SessionID = id
	row.Time = time.Now()
	if n := b.queues.Assignments.Push(row); n > 0 {
		b.log.Warn("Assignment queue full, oldest rows dropped", "dropped", n)
	}

	b.assignments.Add(1)
	return nil
}

// Pending returns how many records wait in the write queues.
func (b *Backend) Pending() int {
	if b.queues == nil {
		return 0
	}
	return b.queues.Ticks.Len() + b.queues.Assignments.Len()
}

// Flush writes all queued rows now. Ticks go first so assignment rows never
// land before the tick they belong to.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if err := writeQueue(b.deps.DB, b.queues.Ticks, "ticks", b.log); err != nil {
		return err
	}
	return writeQueue(b.deps.DB, b.queues.Assignments, "assignments", b.log)
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items are put back at the front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log *slog.Logger) error {
	if q.Empty() {
		return nil
	}

	items := q.GetAndEmpty()
	tx := db.Begin()
	if err := tx.Create(&items).Error; err != nil {
		log.Error("Error creating rows", "table", name, "count", len(items), "error", err)
		tx.Rollback()
		q.Requeue(items...)
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tx.Commit().Error; err != nil {
		q.Requeue(items...)
		return fmt.Errorf("failed to commit %s: %w", name, err)
	}

	log.Debug("Rows written", "table", name, "count", len(items))
	return nil
}

// writer periodically drains the queues into the DB until Close.
func (b *Backend) writer() {
	defer close(b.stopped)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			// errors are logged by writeQueue; rows stay queued for the next cycle
			_ = b.Flush()
		}
	}
}
