package memory

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestbot/harvester/internal/config"
	"github.com/harvestbot/harvester/pkg/core"
	"github.com/harvestbot/harvester/pkg/streaming"
)

func testSession() *core.Session {
	return &core.Session{
		ID:        "0f8fad5b-d9cb-469f-a165-70867728950e",
		StartedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
		Transport: "script",
		Mode:      "move",
	}
}

func readJournal(t *testing.T, path string, compressed bool) []streaming.Envelope {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var r io.Reader = f
	if compressed {
		dec, err := zstd.NewReader(f)
		require.NoError(t, err)
		defer dec.Close()
		r = dec
	}

	var out []streaming.Envelope
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var env streaming.Envelope
		require.NoError(t, json.Unmarshal(sc.Bytes(), &env))
		out = append(out, env)
	}
	require.NoError(t, sc.Err())
	return out
}

func types(envs []streaming.Envelope) []string {
	out := make([]string, len(envs))
	for i, e := range envs {
		out[i] = e.Type
	}
	return out
}

func record(t *testing.T, b *Backend) {
	t.Helper()
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordTick(&core.TickRecord{Now: 0, Agents: 2, Score: 0.5}))
	require.NoError(t, b.RecordAssignment(&core.AssignmentRecord{Now: 0, Agent: 1, ResourceID: 3, Horizon: core.HorizonPrimary}))
	require.NoError(t, b.RecordAssignment(&core.AssignmentRecord{Now: 0, Agent: 2, ResourceID: 4, Horizon: core.HorizonSecondary}))
	require.NoError(t, b.RecordTick(&core.TickRecord{Now: 1000, Agents: 2, Score: 1.35}))
}

func TestRecordBeforeStart(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()}, nil)

	assert.ErrorIs(t, b.RecordTick(&core.TickRecord{}), ErrNoSession)
	assert.ErrorIs(t, b.RecordAssignment(&core.AssignmentRecord{}), ErrNoSession)
	assert.ErrorIs(t, b.EndSession(), ErrNoSession)
}

func TestTicksGroupAssignments(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()}, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	record(t, b)

	ticks := b.Ticks()
	require.Len(t, ticks, 2)
	assert.Len(t, ticks[0].Assignments, 2)
	assert.Empty(t, ticks[1].Assignments)
	assert.Equal(t, 3, ticks[0].Assignments[0].ResourceID)
}

func TestAssignmentBeforeTick(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()}, nil)
	require.NoError(t, b.StartSession(testSession()))

	require.NoError(t, b.RecordAssignment(&core.AssignmentRecord{Now: 2000, Agent: 1}))
	require.NoError(t, b.RecordTick(&core.TickRecord{Now: 2000}))

	ticks := b.Ticks()
	require.Len(t, ticks, 1)
	assert.Len(t, ticks[0].Assignments, 1)
}

func TestEndSession_PlainJournal(t *testing.T) {
	dir := t.TempDir()
	b := New(config.MemoryConfig{OutputDir: dir, CompressOutput: false}, nil)
	record(t, b)

	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	require.NotEmpty(t, path)
	assert.True(t, strings.HasPrefix(path, dir))
	assert.True(t, strings.HasSuffix(path, "session_20260301_123000_0f8fad5b.jsonl"))

	envs := readJournal(t, path, false)
	assert.Equal(t, []string{
		streaming.TypeStartSession,
		streaming.TypeTick,
		streaming.TypeAssignment,
		streaming.TypeAssignment,
		streaming.TypeTick,
		streaming.TypeEndSession,
	}, types(envs))

	var end streaming.EndSessionPayload
	require.NoError(t, json.Unmarshal(envs[len(envs)-1].Payload, &end))
	assert.Equal(t, testSession().ID, end.SessionID)
	assert.Equal(t, 2, end.Ticks)
	assert.Equal(t, 2, end.Assignments)
	assert.InDelta(t, 1.35, end.FinalScore, 1e-9)
}

func TestEndSession_CompressedJournal(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir(), CompressOutput: true}, nil)
	record(t, b)

	require.NoError(t, b.EndSession())

	path := b.GetExportedFilePath()
	assert.True(t, strings.HasSuffix(path, ".jsonl.zst"))

	envs := readJournal(t, path, true)
	require.Len(t, envs, 6)

	var start streaming.StartSessionPayload
	require.NoError(t, json.Unmarshal(envs[0].Payload, &start))
	require.NotNil(t, start.Session)
	assert.Equal(t, "script", start.Session.Transport)

	var a core.AssignmentRecord
	require.NoError(t, json.Unmarshal(envs[3].Payload, &a))
	assert.Equal(t, core.HorizonSecondary, a.Horizon)
}

func TestStartSessionResets(t *testing.T) {
	b := New(config.MemoryConfig{OutputDir: t.TempDir()}, nil)
	record(t, b)

	require.NoError(t, b.StartSession(testSession()))
	assert.Empty(t, b.Ticks())
	assert.Empty(t, b.GetExportedFilePath())
}
