// Package monitor serves the bot's live status over HTTP and mirrors it to a status file.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/harvestbot/harvester/pkg/core"
)

const (
	recentLimit         = 50
	defaultFileInterval = time.Second
)

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger       *slog.Logger
	Address      string
	StatusFile   string
	FileInterval time.Duration
	// QueueLen reports records still waiting in the event dispatcher, optional
	QueueLen func() int
}

// Status is the snapshot served on /status
type Status struct {
	SessionID   string               `json:"sessionId"`
	Now         int                  `json:"now"`
	Score       float64              `json:"score"`
	Owned       []core.OwnedResource `json:"owned"`
	Ticks       int                  `json:"ticks"`
	Assignments int                  `json:"assignments"`
	Pending     int                  `json:"pending"`
	LastTickAt  time.Time            `json:"lastTickAt"`
	StartedAt   time.Time            `json:"startedAt"`
}

// Service manages status monitoring
type Service struct {
	deps Dependencies

	mu        sync.RWMutex
	isRunning bool
	status    Status
	recent    []core.AssignmentRecord
	h         *server.Hertz
	stopChan  chan struct{}
	fileDone  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FileInterval <= 0 {
		deps.FileInterval = defaultFileInterval
	}
	return &Service{
		deps:   deps,
		status: Status{StartedAt: time.Now()},
	}
}

// StartSession resets the counters for a new session.
func (s *Service) StartSession(sess core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Status{SessionID: sess.ID, StartedAt: sess.StartedAt}
	s.recent = nil
}

// RecordTick updates the snapshot from a tick summary.
func (s *Service) RecordTick(t core.TickRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Now = t.Now
	s.status.Score = t.Score
	s.status.Owned = append(s.status.Owned[:0], t.Owned...)
	s.status.Ticks++
	s.status.LastTickAt = t.Time
}

// RecordAssignment counts an assignment and keeps the latest ones for /assignments.
func (s *Service) RecordAssignment(a core.AssignmentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Assignments++
	s.recent = append(s.recent, a)
	if over := len(s.recent) - recentLimit; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
}

// GetStatus returns a copy of the current snapshot.
func (s *Service) GetStatus() Status {
	s.mu.RLock()
	st := s.status
	st.Owned = append([]core.OwnedResource(nil), s.status.Owned...)
	s.mu.RUnlock()

	if s.deps.QueueLen != nil {
		st.Pending = s.deps.QueueLen()
	}
	return st
}

// Recent returns the most recent assignments, oldest first.
func (s *Service) Recent() []core.AssignmentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.AssignmentRecord(nil), s.recent...)
}

// RegisterRoutes attaches the monitor handlers to a hertz server.
func (s *Service) RegisterRoutes(h *server.Hertz) {
	h.GET("/healthz", s.healthz)
	h.GET("/status", s.statusHandler)
	h.GET("/assignments", s.assignments)
}

func (s *Service) healthz(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) statusHandler(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, s.GetStatus())
}

func (s *Service) assignments(_ context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, s.Recent())
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Start launches the HTTP server (when an address is set) and the status file writer
// (when a path is set).
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.fileDone = make(chan struct{})
	stop, fileDone := s.stopChan, s.fileDone

	if s.deps.Address != "" {
		s.h = server.Default(server.WithHostPorts(s.deps.Address))
		s.RegisterRoutes(s.h)
	}
	h := s.h
	s.mu.Unlock()

	logger := s.deps.Logger
	if h != nil {
		go func() {
			logger.Info("Status server listening", "address", s.deps.Address)
			if err := h.Run(); err != nil {
				logger.Error("Status server stopped", "error", err)
			}
		}()
	}

	go func() {
		defer close(fileDone)
		if s.deps.StatusFile == "" {
			return
		}
		ticker := time.NewTicker(s.deps.FileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				s.writeStatusFile()
				return
			case <-ticker.C:
				s.writeStatusFile()
			}
		}
	}()

	return nil
}

func (s *Service) writeStatusFile() {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		s.deps.Logger.Error("Error encoding status", "error", err)
		return
	}
	if err := os.WriteFile(s.deps.StatusFile, append(data, '\n'), 0o644); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err, "path", s.deps.StatusFile)
	}
}

// Stop stops the status monitor
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	close(s.stopChan)
	h, fileDone := s.h, s.fileDone
	s.h = nil
	s.mu.Unlock()

	<-fileDone
	if h != nil {
		return h.Shutdown(ctx)
	}
	return nil
}
