package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/harvestbot/harvester/pkg/core"
)

// parseIntFromFloat parses a string that may be an integer ("32") or a whole float ("32.00").
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// Parser converts line-protocol driver responses into core values.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// firstInt reads the leading field of a response. A stream that ends before
// the response starts is reported as io.EOF so transports can tell a closed
// driver from a truncated reply.
func firstInt(t *Tokens, field string) (int, error) {
	tok, err := t.Next()
	if err != nil {
		return 0, err
	}
	v, err := parseIntFromFloat(tok)
	if err != nil {
		return 0, fmt.Errorf("%s %q at token %d: %w", field, tok, t.Read(), ErrMalformed)
	}
	return int(v), nil
}

// firstCount reads a leading record count, bounded like Tokens.Count.
func firstCount(t *Tokens, field string) (int, error) {
	n, err := firstInt(t, field)
	if err != nil {
		return 0, err
	}
	return checkCount(field, n, t.Read())
}

// ParseGame reads a `game` response:
//
//	now numAgents numResources nextResource numOwned
//	per agent:    numWaypoints (x y t)*
//	per resource: id x y t0 t1 type weight
//	per owned:    type amount
func (p *Parser) ParseGame(t *Tokens) (*core.Game, error) {
	now, err := firstInt(t, "now")
	if err != nil {
		return nil, err
	}
	numAgents, err := t.Count("numAgents")
	if err != nil {
		return nil, err
	}
	numResources, err := t.Count("numResources")
	if err != nil {
		return nil, err
	}
	nextResource, err := t.Int("nextResource")
	if err != nil {
		return nil, err
	}
	numOwned, err := t.Count("numOwned")
	if err != nil {
		return nil, err
	}

	agents := make([]core.Agent, numAgents)
	for i := range agents {
		moves, err := p.parseWaypoints(t)
		if err != nil {
			return nil, fmt.Errorf("agent %d: %w", i, err)
		}
		agents[i].Move = moves
	}

	resources := make([]core.Resource, numResources)
	for i := range resources {
		r, err := parseResource(t)
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
		resources[i] = r
	}

	owned := make([]core.OwnedResource, numOwned)
	for i := range owned {
		if owned[i].Type, err = t.String("owned.type"); err != nil {
			return nil, fmt.Errorf("owned %d: %w", i, err)
		}
		if owned[i].Amount, err = t.Float("owned.amount"); err != nil {
			return nil, fmt.Errorf("owned %d: %w", i, err)
		}
	}

	p.logger.Debug("Parsed game",
		"now", now,
		"agents", numAgents,
		"resources", numResources,
		"owned", numOwned)

	return core.NewGame(now, agents, resources, nextResource, owned), nil
}

// ParseMoveLog reads a `move` / `will_move` response: now numWaypoints (x y t)*
func (p *Parser) ParseMoveLog(t *Tokens) (core.MoveLog, error) {
	var log core.MoveLog

	now, err := firstInt(t, "now")
	if err != nil {
		return log, err
	}
	log.Now = now

	log.Move, err = p.parseWaypoints(t)
	if err != nil {
		return log, err
	}
	return log, nil
}

// ParseResources reads a `resources` response: n (id x y t0 t1 type weight amount)*
func (p *Parser) ParseResources(t *Tokens) ([]core.ResourceWithAmount, error) {
	n, err := firstCount(t, "numResources")
	if err != nil {
		return nil, err
	}

	out := make([]core.ResourceWithAmount, n)
	for i := range out {
		r, err := parseResource(t)
		if err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
		out[i].Resource = r
		if out[i].Amount, err = t.Float("resource.amount"); err != nil {
			return nil, fmt.Errorf("resource %d: %w", i, err)
		}
	}
	return out, nil
}

func (p *Parser) parseWaypoints(t *Tokens) ([]core.AgentMove, error) {
	n, err := t.Count("numWaypoints")
	if err != nil {
		return nil, err
	}
	moves := make([]core.AgentMove, n)
	for i := range moves {
		if moves[i].X, err = t.Float("move.x"); err != nil {
			return nil, err
		}
		if moves[i].Y, err = t.Float("move.y"); err != nil {
			return nil, err
		}
		if moves[i].T, err = t.Int("move.t"); err != nil {
			return nil, err
		}
	}
	return moves, nil
}

func parseResource(t *Tokens) (core.Resource, error) {
	var r core.Resource
	var err error

	if r.ID, err = t.Int("resource.id"); err != nil {
		return r, err
	}
	if r.X, err = t.Int("resource.x"); err != nil {
		return r, err
	}
	if r.Y, err = t.Int("resource.y"); err != nil {
		return r, err
	}
	if r.T0, err = t.Int("resource.t0"); err != nil {
		return r, err
	}
	if r.T1, err = t.Int("resource.t1"); err != nil {
		return r, err
	}
	if r.Type, err = t.String("resource.type"); err != nil {
		return r, err
	}
	if r.Weight, err = t.Int("resource.weight"); err != nil {
		return r, err
	}
	return r, nil
}

// IsClosed reports whether err means the stream ended before a response began.
func IsClosed(err error) bool {
	return errors.Is(err, io.EOF)
}
