// Package script replays canned driver responses from a YAML document.
//
//	game:
//	  - |
//	    0 1 1 4 3
//	    1 0 0 0
//	    2 3 4 0 5000 A 5
//	    A 0 B 0 C 0
//	move:
//	  - "100 2 0 0 0 3 4 500"
//	resources:
//	  - "1 2 3 4 0 5000 A 5 12.5"
//
// Responses are consumed in order per command. Running out of game responses
// ends the session with transport.ErrClosed. When move or will_move responses
// run out, the agent is reported as already standing at its target.
package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/harvestbot/harvester/internal/parser"
	"github.com/harvestbot/harvester/internal/transport"
	"github.com/harvestbot/harvester/pkg/core"
)

// ErrExhausted is returned when a resources query has no scripted response left.
var ErrExhausted = errors.New("script exhausted")

// Script is the playback document.
type Script struct {
	Game      []string `yaml:"game"`
	Move      []string `yaml:"move"`
	WillMove  []string `yaml:"will_move"`
	Resources []string `yaml:"resources"`
}

// Parse decodes a playback document.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding script: %w", err)
	}
	return &s, nil
}

// Load reads a playback document from path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return Parse(data)
}

// Transport serves scripted responses and records every command sent.
type Transport struct {
	mu     sync.Mutex
	script Script
	parser *parser.Parser
	sent   []string
	now    int
	closed bool
}

var _ transport.Transport = (*Transport)(nil)

// New creates a playback transport.
func New(s *Script, logger *slog.Logger) *Transport {
	return &Transport{
		script: *s,
		parser: parser.NewParser(logger),
	}
}

// Name implements transport.Transport.
func (t *Transport) Name() string {
	return "script"
}

// Sent returns the commands received so far, one protocol line each.
func (t *Transport) Sent() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.sent...)
}

func (t *Transport) record(fields ...any) {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprint(f)
	}
	t.sent = append(t.sent, strings.Join(parts, " "))
}

func pop(queue *[]string) (string, bool) {
	if len(*queue) == 0 {
		return "", false
	}
	next := (*queue)[0]
	*queue = (*queue)[1:]
	return next, true
}

func tokens(s string) *parser.Tokens {
	return parser.NewTokens(strings.NewReader(s))
}

// Game implements transport.Transport.
func (t *Transport) Game(_ context.Context) (*core.Game, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.record("game")
	body, ok := pop(&t.script.Game)
	if !ok || t.closed {
		return nil, fmt.Errorf("game: %w", transport.ErrClosed)
	}
	g, err := t.parser.ParseGame(tokens(body))
	if err != nil {
		return nil, fmt.Errorf("parsing scripted game: %w", err)
	}
	t.now = g.Now
	return g, nil
}

// Move implements transport.Transport.
func (t *Transport) Move(_ context.Context, agent, x, y int) (core.MoveLog, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.record("move", agent, x, y)
	return t.moveLog(&t.script.Move, x, y, t.now)
}

// WillMove implements transport.Transport.
func (t *Transport) WillMove(_ context.Context, agent, x, y, tick int) (core.MoveLog, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.record("will_move", agent, x, y, tick)
	return t.moveLog(&t.script.WillMove, x, y, tick)
}

func (t *Transport) moveLog(queue *[]string, x, y, tick int) (core.MoveLog, error) {
	if t.closed {
		return core.MoveLog{}, transport.ErrClosed
	}
	body, ok := pop(queue)
	if !ok {
		return core.MoveLog{
			Now:  t.now,
			Move: []core.AgentMove{{X: float64(x), Y: float64(y), T: tick}},
		}, nil
	}
	log, err := t.parser.ParseMoveLog(tokens(body))
	if err != nil {
		return core.MoveLog{}, fmt.Errorf("parsing scripted move: %w", err)
	}
	return log, nil
}

// Resources implements transport.Transport.
func (t *Transport) Resources(_ context.Context, ids []int) ([]core.ResourceWithAmount, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fields := []any{"resources"}
	for _, id := range ids {
		fields = append(fields, strconv.Itoa(id))
	}
	t.record(fields...)

	body, ok := pop(&t.script.Resources)
	if !ok {
		return nil, fmt.Errorf("resources: %w", ErrExhausted)
	}
	rs, err := t.parser.ParseResources(tokens(body))
	if err != nil {
		return nil, fmt.Errorf("parsing scripted resources: %w", err)
	}
	return rs, nil
}

// Close ends playback; later calls return transport.ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
