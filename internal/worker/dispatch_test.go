package worker

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestbot/harvester/internal/dispatcher"
	"github.com/harvestbot/harvester/internal/storage"
	"github.com/harvestbot/harvester/pkg/core"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu sync.Mutex

	sessions    []string
	ticks       []core.TickRecord
	assignments []core.AssignmentRecord
	ended       int
	pending     int
	tickErr     error
}

var _ storage.Backend = (*mockBackend)(nil)

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = append(b.sessions, s.ID)
	return nil
}

func (b *mockBackend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended++
	return nil
}

func (b *mockBackend) RecordTick(t *core.TickRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tickErr != nil {
		return b.tickErr
	}
	b.ticks = append(b.ticks, *t)
	return nil
}

func (b *mockBackend) RecordAssignment(a *core.AssignmentRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.assignments = append(b.assignments, *a)
	return nil
}

func (b *mockBackend) Pending() int { return b.pending }

type mockMetrics struct {
	mu          sync.Mutex
	ticks       int
	assignments int
	err         error
}

func (m *mockMetrics) WriteTick(core.TickRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
	return m.err
}

func (m *mockMetrics) WriteAssignment(core.AssignmentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments++
	return m.err
}

type mockStatus struct {
	mu          sync.Mutex
	session     string
	lastNow     int
	assignments int
}

func (s *mockStatus) StartSession(sess core.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess.ID
}

func (s *mockStatus) RecordTick(t core.TickRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNow = t.Now
}

func (s *mockStatus) RecordAssignment(core.AssignmentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments++
}

func newTestSetup(t *testing.T, backend storage.Backend, deps Dependencies) (*dispatcher.Dispatcher, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	d, err := dispatcher.New(logger)
	require.NoError(t, err)

	NewManager(deps, backend).RegisterHandlers(d)
	return d, logger
}

func TestRegisterHandlers(t *testing.T) {
	d, _ := newTestSetup(t, nil, Dependencies{})
	defer d.Close()

	for _, kind := range []string{
		dispatcher.KindSessionStart,
		dispatcher.KindTick,
		dispatcher.KindAssignment,
		dispatcher.KindSessionEnd,
	} {
		assert.True(t, d.HasHandler(kind), kind)
	}
}

func TestSessionFlow_FansOut(t *testing.T) {
	backend := &mockBackend{}
	metrics := &mockMetrics{}
	status := &mockStatus{}
	d, _ := newTestSetup(t, backend, Dependencies{Metrics: metrics, Status: status})

	_, err := d.Dispatch(dispatcher.Event{Kind: dispatcher.KindSessionStart, Payload: core.Session{ID: "s1"}})
	require.NoError(t, err)

	_, err = d.Dispatch(dispatcher.Event{Kind: dispatcher.KindTick, Payload: core.TickRecord{Now: 1000}})
	require.NoError(t, err)
	for i := 1; i <= 2; i++ {
		_, err = d.Dispatch(dispatcher.Event{Kind: dispatcher.KindAssignment, Payload: core.AssignmentRecord{Now: 1000, Agent: i}})
		require.NoError(t, err)
	}

	// the end handler waits for the buffered records above
	_, err = d.Dispatch(dispatcher.Event{Kind: dispatcher.KindSessionEnd})
	require.NoError(t, err)

	backend.mu.Lock()
	assert.Equal(t, []string{"s1"}, backend.sessions)
	assert.Len(t, backend.ticks, 1)
	assert.Len(t, backend.assignments, 2)
	assert.Equal(t, 1, backend.ended)
	backend.mu.Unlock()

	metrics.mu.Lock()
	assert.Equal(t, 1, metrics.ticks)
	assert.Equal(t, 2, metrics.assignments)
	metrics.mu.Unlock()

	status.mu.Lock()
	assert.Equal(t, "s1", status.session)
	assert.Equal(t, 1000, status.lastNow)
	assert.Equal(t, 2, status.assignments)
	status.mu.Unlock()

	d.Close()
}

func TestHandleTick_NoSinks(t *testing.T) {
	m := NewManager(Dependencies{}, nil)
	_, err := m.handleTick(dispatcher.Event{Kind: dispatcher.KindTick, Payload: core.TickRecord{Now: 1}})
	assert.NoError(t, err)

	_, err = m.handleSessionEnd(dispatcher.Event{Kind: dispatcher.KindSessionEnd})
	assert.NoError(t, err)
}

func TestHandleTick_WrongPayload(t *testing.T) {
	m := NewManager(Dependencies{}, &mockBackend{})
	_, err := m.handleTick(dispatcher.Event{Kind: dispatcher.KindTick, Payload: &core.TickRecord{}})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)

	_, err = m.handleSessionStart(dispatcher.Event{Kind: dispatcher.KindSessionStart, Payload: "s1"})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
}

func TestHandleTick_JoinsErrors(t *testing.T) {
	backendErr := errors.New("disk full")
	metricsErr := errors.New("influx down")
	status := &mockStatus{}
	m := NewManager(Dependencies{Metrics: &mockMetrics{err: metricsErr}, Status: status}, &mockBackend{tickErr: backendErr})

	_, err := m.handleTick(dispatcher.Event{Kind: dispatcher.KindTick, Payload: core.TickRecord{Now: 2000}})
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)
	assert.ErrorIs(t, err, metricsErr)

	// status still updated
	assert.Equal(t, 2000, status.lastNow)
}

func TestBufferedErrorsAreLogged(t *testing.T) {
	d, logger := newTestSetup(t, &mockBackend{tickErr: errors.New("boom")}, Dependencies{})

	_, err := d.Dispatch(dispatcher.Event{Kind: dispatcher.KindTick, Payload: core.TickRecord{}})
	require.NoError(t, err, "buffered dispatch only queues")
	d.Close()

	assert.Eventually(t, func() bool {
		logger.mu.Lock()
		defer logger.mu.Unlock()
		for _, msg := range logger.messages {
			if msg == "event failed" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)
}

func TestPending(t *testing.T) {
	assert.Zero(t, NewManager(Dependencies{}, nil).Pending())
	assert.Equal(t, 4, NewManager(Dependencies{}, &mockBackend{pending: 4}).Pending())
}
