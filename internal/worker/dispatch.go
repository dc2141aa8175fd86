package worker

import (
	"errors"
	"fmt"

	"github.com/harvestbot/harvester/internal/dispatcher"
	"github.com/harvestbot/harvester/pkg/core"
)

// RegisterHandlers registers the recording handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Session boundaries - sync, and wait for queued records so nothing lands
	// outside its session
	d.Register(dispatcher.KindSessionStart, m.handleSessionStart, dispatcher.Barrier(), dispatcher.Logged())
	d.Register(dispatcher.KindSessionEnd, m.handleSessionEnd, dispatcher.Barrier(), dispatcher.Logged())

	// Per-tick records - buffered
	d.Register(dispatcher.KindTick, m.handleTick, dispatcher.Buffered(1000), dispatcher.Logged())
	d.Register(dispatcher.KindAssignment, m.handleAssignment, dispatcher.Buffered(10000), dispatcher.Logged())
}

func payload[T any](e dispatcher.Event) (T, error) {
	v, ok := e.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%s: got %T: %w", e.Kind, e.Payload, ErrUnexpectedPayload)
	}
	return v, nil
}

func (m *Manager) handleSessionStart(e dispatcher.Event) (any, error) {
	s, err := payload[core.Session](e)
	if err != nil {
		return nil, err
	}

	if m.deps.Status != nil {
		m.deps.Status.StartSession(s)
	}
	if m.hasBackend() {
		if err := m.backend.StartSession(&s); err != nil {
			return nil, fmt.Errorf("failed to start session: %w", err)
		}
	}
	m.deps.Logger.Info("Session started", "session", s.ID, "transport", s.Transport, "mode", s.Mode)
	return nil, nil
}

func (m *Manager) handleSessionEnd(e dispatcher.Event) (any, error) {
	if m.hasBackend() {
		if err := m.backend.EndSession(); err != nil {
			return nil, fmt.Errorf("failed to end session: %w", err)
		}
	}
	m.deps.Logger.Info("Session ended")
	return nil, nil
}

func (m *Manager) handleTick(e dispatcher.Event) (any, error) {
	rec, err := payload[core.TickRecord](e)
	if err != nil {
		return nil, err
	}

	var errs []error
	if m.hasBackend() {
		if err := m.backend.RecordTick(&rec); err != nil {
			errs = append(errs, fmt.Errorf("failed to record tick: %w", err))
		}
	}
	if m.deps.Metrics != nil {
		if err := m.deps.Metrics.WriteTick(rec); err != nil {
			errs = append(errs, fmt.Errorf("failed to write tick metrics: %w", err))
		}
	}
	if m.deps.Status != nil {
		m.deps.Status.RecordTick(rec)
	}
	return nil, errors.Join(errs...)
}

func (m *Manager) handleAssignment(e dispatcher.Event) (any, error) {
	rec, err := payload[core.AssignmentRecord](e)
	if err != nil {
		return nil, err
	}

	var errs []error
	if m.hasBackend() {
		if err := m.backend.RecordAssignment(&rec); err != nil {
			errs = append(errs, fmt.Errorf("failed to record assignment: %w", err))
		}
	}
	if m.deps.Metrics != nil {
		if err := m.deps.Metrics.WriteAssignment(rec); err != nil {
			errs = append(errs, fmt.Errorf("failed to write assignment metrics: %w", err))
		}
	}
	if m.deps.Status != nil {
		m.deps.Status.RecordAssignment(rec)
	}
	return nil, errors.Join(errs...)
}
