package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harvestbot/harvester/internal/config"
	"github.com/harvestbot/harvester/pkg/core"
)

func testTick() core.TickRecord {
	return core.TickRecord{
		SessionID:   "s1",
		Now:         2000,
		Agents:      5,
		Resources:   12,
		Candidates:  40,
		Assignments: 3,
		Owned: []core.OwnedResource{
			{Type: "A", Amount: 1.5},
			{Type: "B", Amount: 2},
		},
		Score:       1.25,
		Time:        time.Unix(1_700_000_000, 0),
	}
}

func TestTickPoint(t *testing.T) {
	line := influxdb2_write.PointToLineProtocol(TickPoint(testTick()), time.Second)

	assert.Contains(t, line, "tick,session=s1 ")
	assert.Contains(t, line, "now=2000i")
	assert.Contains(t, line, "candidates=40i")
	assert.Contains(t, line, "score=1.25")
	assert.Contains(t, line, "owned_A=1.5")
	assert.Contains(t, line, "owned_B=2")
	assert.Contains(t, line, " 1700000000")
}

func TestTickPoint_ZeroTimeUsesNow(t *testing.T) {
	rec := testTick()
	rec.Time = time.Time{}

	p := TickPoint(rec)
	assert.WithinDuration(t, time.Now(), p.Time(), time.Minute)
}

func TestAssignmentPoint(t *testing.T) {
	rec := core.AssignmentRecord{
		SessionID:     "s1",
		Now:           2000,
		Agent:         3,
		ResourceID:    17,
		Horizon:       core.HorizonSecondary,
		ExpectedScore: 420,
		TravelTicks:   150,
		Command:       "move",
	}
	line := influxdb2_write.PointToLineProtocol(AssignmentPoint(rec, time.Unix(10, 0)), time.Second)

	assert.Contains(t, line, "assignment,")
	assert.Contains(t, line, "horizon=secondary")
	assert.Contains(t, line, "command=move")
	assert.Contains(t, line, "resource=17i")
	assert.Contains(t, line, "expected=420i")
	assert.Contains(t, line, "travel=150i")
}

func TestConnect_Disabled(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
}

func TestWritePoint_NoBackend(t *testing.T) {
	m := NewManager(config.InfluxConfig{}, zerolog.Nop(), "")
	assert.Error(t, m.WriteTick(testTick()))
	assert.NoError(t, m.Close())
}

func TestConnect_UnreachableNoBackupPath(t *testing.T) {
	cfg := config.InfluxConfig{Enabled: true, Protocol: "http", Host: "127.0.0.1", Port: "1"}
	m := NewManager(cfg, zerolog.Nop(), "")

	assert.Error(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)
}

func TestConnect_UnreachableWritesBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	cfg := config.InfluxConfig{Enabled: true, Protocol: "http", Host: "127.0.0.1", Port: "1", Bucket: "harvester"}
	m := NewManager(cfg, zerolog.Nop(), path)

	require.NoError(t, m.Connect(context.Background()))
	assert.False(t, m.IsValid)

	require.NoError(t, m.WriteTick(testTick()))
	require.NoError(t, m.WriteAssignment(core.AssignmentRecord{SessionID: "s1", Now: 2000, Agent: 1, ResourceID: 2, Horizon: core.HorizonPrimary, Command: "move"}))
	require.NoError(t, m.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "tick,session=s1")
	assert.Contains(t, content, "assignment,")
	assert.Contains(t, content, "horizon=primary")
}
