package script

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/harvestbot/harvester/internal/parser"
	"github.com/harvestbot/harvester/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const doc = `
game:
  - |
    1000 1 1 4 3
    1 0 0 0
    2 3 4 0 5000 A 5
    A 0 B 0 C 0
move:
  - "1000 2 0 0 1000 3 4 1500"
resources:
  - "1 2 3 4 0 5000 A 5 12.5"
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, s.Game, 1)
	assert.Len(t, s.Move, 1)
	assert.Empty(t, s.WillMove)
	assert.Len(t, s.Resources, 1)

	_, err = Parse([]byte("game: {"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Game, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestTransport_Playback(t *testing.T) {
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	tr := New(s, nil)
	ctx := context.Background()

	g, err := tr.Game(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000, g.Now)

	log, err := tr.Move(ctx, 1, 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 1500, log.Move[1].T)

	// no scripted response left: the agent is reported at its target
	log, err = tr.Move(ctx, 1, 7, 8)
	require.NoError(t, err)
	assert.Equal(t, 1000, log.Now)
	assert.Equal(t, 7.0, log.Move[0].X)
	assert.Equal(t, 8.0, log.Move[0].Y)

	log, err = tr.WillMove(ctx, 1, 7, 8, 1300)
	require.NoError(t, err)
	assert.Equal(t, 1300, log.Move[0].T)

	rs, err := tr.Resources(ctx, []int{2})
	require.NoError(t, err)
	assert.Equal(t, 12.5, rs[0].Amount)

	_, err = tr.Resources(ctx, []int{2})
	assert.ErrorIs(t, err, ErrExhausted)

	_, err = tr.Game(ctx)
	assert.ErrorIs(t, err, transport.ErrClosed)

	assert.Equal(t, []string{
		"game",
		"move 1 3 4",
		"move 1 7 8",
		"will_move 1 7 8 1300",
		"resources 2",
		"resources 2",
		"game",
	}, tr.Sent())
}

func TestTransport_BadScriptedResponse(t *testing.T) {
	tr := New(&Script{Game: []string{"1000 1"}}, nil)

	_, err := tr.Game(context.Background())
	assert.ErrorIs(t, err, parser.ErrTruncated)
	assert.NotErrorIs(t, err, transport.ErrClosed)
}

func TestTransport_Close(t *testing.T) {
	tr := New(&Script{Game: []string{"0 0 0 0 0"}}, nil)
	require.NoError(t, tr.Close())

	_, err := tr.Game(context.Background())
	assert.ErrorIs(t, err, transport.ErrClosed)
	_, err = tr.Move(context.Background(), 1, 0, 0)
	assert.ErrorIs(t, err, transport.ErrClosed)
	assert.Equal(t, "script", tr.Name())
}
