package parser

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/harvestbot/harvester/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return NewParser(slog.Default())
}

func tokens(s string) *Tokens {
	return NewTokens(strings.NewReader(s))
}

func TestNewParser(t *testing.T) {
	require.NotNil(t, newTestParser())
	require.NotNil(t, NewParser(nil))
}

func TestParseIntFromFloat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{"integer", "32", 32, false},
		{"negative integer", "-5", -5, false},
		{"whole float", "32.00", 32, false},
		{"fractional rejects", "10.5", 0, true},
		{"empty string", "", 0, true},
		{"non-numeric", "abc", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIntFromFloat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	tk := tokens("  7 \n 1.5\tA\n")

	n, err := tk.Int("n")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	f, err := tk.Float("f")
	require.NoError(t, err)
	assert.Equal(t, 1.5, f)

	s, err := tk.String("s")
	require.NoError(t, err)
	assert.Equal(t, "A", s)
	assert.Equal(t, 3, tk.Read())

	_, err = tk.Next()
	assert.ErrorIs(t, err, io.EOF)

	_, err = tk.Int("missing")
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Contains(t, err.Error(), "missing")
}

func TestTokens_Malformed(t *testing.T) {
	_, err := tokens("x").Int("now")
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "now")

	_, err = tokens("1.2.3").Float("amount")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = tokens("-1").Count("numAgents")
	assert.ErrorIs(t, err, ErrMalformed)
}

const gameResponse = `1200 2 2 17 3
2 0 0 0 10.5 20 1100
1 100 100 0
3 5 7 1000 3000 A 5
9 8 2 1500 2500 B 1
A 3.5
B 5
C 1
`

func TestParseGame(t *testing.T) {
	p := newTestParser()

	g, err := p.ParseGame(tokens(gameResponse))
	require.NoError(t, err)

	assert.Equal(t, 1200, g.Now)
	assert.Equal(t, 17, g.NextResource)
	require.Len(t, g.Agents, 2)
	assert.Equal(t, []core.AgentMove{{X: 0, Y: 0, T: 0}, {X: 10.5, Y: 20, T: 1100}}, g.Agents[0].Move)
	assert.Equal(t, []core.AgentMove{{X: 100, Y: 100, T: 0}}, g.Agents[1].Move)

	require.Len(t, g.Resources, 2)
	assert.Equal(t, core.Resource{ID: 3, X: 5, Y: 7, T0: 1000, T1: 3000, Type: "A", Weight: 5}, g.Resources[0])
	assert.Equal(t, "B", g.Resources[1].Type)

	assert.Equal(t, []core.OwnedResource{{Type: "A", Amount: 3.5}, {Type: "B", Amount: 5}, {Type: "C", Amount: 1}}, g.OwnedResources)

	// index built at construction
	r, err := g.FindResourceAt(8, 2)
	require.NoError(t, err)
	assert.Equal(t, 9, r.ID)

	x, y, err := g.AgentPosition(0)
	require.NoError(t, err)
	assert.Equal(t, 10.5, x)
	assert.Equal(t, 20.0, y)
}

func TestParseGame_ConsecutiveResponses(t *testing.T) {
	p := newTestParser()
	tk := tokens(gameResponse + gameResponse)

	_, err := p.ParseGame(tk)
	require.NoError(t, err)
	_, err = p.ParseGame(tk)
	require.NoError(t, err)

	_, err = p.ParseGame(tk)
	assert.ErrorIs(t, err, io.EOF)
	assert.True(t, IsClosed(err))
}

func TestParseGame_Errors(t *testing.T) {
	p := newTestParser()

	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"empty stream", "", io.EOF},
		{"truncated header", "1200 2", ErrTruncated},
		{"truncated agent", "1200 1 0 0 0 2 0 0 0", ErrTruncated},
		{"bad resource id", "1200 0 1 0 0 x 1 1 0 10 A 1", ErrMalformed},
		{"truncated owned", "1200 0 0 0 1 A", ErrTruncated},
		{"bad now", "now 0 0 0 0", ErrMalformed},
		{"huge agent count", "0 1e15 0 0 0\n", ErrMalformed},
		{"agent count over limit", "0 100001 0 0 0", ErrMalformed},
		{"overflowing resource count", "0 0 1e300 0 0", ErrMalformed},
		{"negative owned count", "0 0 0 0 -3", ErrMalformed},
		{"huge waypoint count", "0 1 0 0 0 99999999", ErrMalformed},
		{"nan waypoint", "0 1 0 0 0 1 NaN 0 0", ErrMalformed},
		{"infinite owned amount", "0 0 0 0 1 A +Inf", ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() {
				_, err = p.ParseGame(tokens(tt.input))
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseGame_TruncatedIsNotClosed(t *testing.T) {
	_, err := newTestParser().ParseGame(tokens("1200 2"))
	require.Error(t, err)
	assert.False(t, IsClosed(err))
}

func TestParseMoveLog(t *testing.T) {
	log, err := newTestParser().ParseMoveLog(tokens("1500 2\n0 0 1200\n5 7 1586\n"))
	require.NoError(t, err)

	assert.Equal(t, 1500, log.Now)
	assert.Equal(t, []core.AgentMove{{X: 0, Y: 0, T: 1200}, {X: 5, Y: 7, T: 1586}}, log.Move)
}

func TestParseMoveLog_Truncated(t *testing.T) {
	_, err := newTestParser().ParseMoveLog(tokens("1500 2 0 0 1200 5"))
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseResources(t *testing.T) {
	rs, err := newTestParser().ParseResources(tokens("2\n3 5 7 1000 3000 A 5 12.5\n9 8 2 1500 2500 B 1 0\n"))
	require.NoError(t, err)
	require.Len(t, rs, 2)

	assert.Equal(t, 3, rs[0].ID)
	assert.Equal(t, "A", rs[0].Type)
	assert.Equal(t, 12.5, rs[0].Amount)
	assert.Equal(t, 9, rs[1].ID)
	assert.Equal(t, 0.0, rs[1].Amount)
}

func TestParseResources_Empty(t *testing.T) {
	rs, err := newTestParser().ParseResources(tokens("0\n"))
	require.NoError(t, err)
	assert.Empty(t, rs)
}

func TestParseResources_Errors(t *testing.T) {
	p := newTestParser()

	_, err := p.ParseResources(tokens("-1"))
	assert.ErrorIs(t, err, ErrMalformed)

	require.NotPanics(t, func() {
		_, err = p.ParseResources(tokens("1e15"))
	})
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = p.ParseResources(tokens("1 3 5 7 1000 3000 A 5"))
	assert.ErrorIs(t, err, ErrTruncated)
}
