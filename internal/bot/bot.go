// Package bot drives the tick loop: fetch a snapshot, plan, issue commands,
// publish recording events, sleep, repeat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/harvestbot/harvester/internal/dispatcher"
	"github.com/harvestbot/harvester/internal/strategy"
	"github.com/harvestbot/harvester/internal/transport"
	"github.com/harvestbot/harvester/pkg/core"
)

// DefaultSleep is the pause between ticks.
const DefaultSleep = time.Second

// Publisher accepts recording events (dispatcher.Dispatcher).
type Publisher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Dependencies holds everything the loop needs. Transport and Engine are required.
type Dependencies struct {
	Transport transport.Transport
	Engine    *strategy.Engine
	Publisher Publisher
	Logger    *slog.Logger

	// Sleep pauses between ticks; defaults to time.Sleep.
	Sleep    func(time.Duration)
	Interval time.Duration

	SessionID string
	// QueryResources asks the driver for collected amounts of the assigned resources.
	QueryResources bool
	// MaxTicks stops the loop after that many ticks; 0 runs until the driver closes.
	MaxTicks int
}

// Bot runs one session against a driver.
type Bot struct {
	deps    Dependencies
	session core.Session

	now   atomic.Int64
	ticks atomic.Int64
}

// New validates deps and creates a bot with a fresh session ID.
func New(deps Dependencies) (*Bot, error) {
	if deps.Transport == nil {
		return nil, errors.New("bot: transport is required")
	}
	if deps.Engine == nil {
		return nil, errors.New("bot: engine is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultSleep
	}
	if deps.SessionID == "" {
		deps.SessionID = uuid.NewString()
	}

	return &Bot{
		deps: deps,
		session: core.Session{
			ID:        deps.SessionID,
			StartedAt: time.Now(),
			Transport: deps.Transport.Name(),
			Mode:      string(deps.Engine.Mode()),
		},
	}, nil
}

// Session returns the session descriptor.
func (b *Bot) Session() core.Session {
	return b.session
}

// SessionID returns the session ID.
func (b *Bot) SessionID() string {
	return b.session.ID
}

// CurrentTick returns the "now" of the last snapshot fetched.
func (b *Bot) CurrentTick() int {
	return int(b.now.Load())
}

// Ticks returns how many ticks completed.
func (b *Bot) Ticks() int {
	return int(b.ticks.Load())
}

// Run loops until the driver closes, a step fails, ctx is done or MaxTicks is reached.
// transport.ErrClosed is returned wrapped so callers can tell a normal end with errors.Is.
func (b *Bot) Run(ctx context.Context) error {
	b.publish(dispatcher.KindSessionStart, b.session)
	defer b.publish(dispatcher.KindSessionEnd, nil)

	b.deps.Logger.Info("Session starting",
		"session", b.session.ID,
		"transport", b.session.Transport,
		"mode", b.session.Mode)

	for b.deps.MaxTicks <= 0 || b.Ticks() < b.deps.MaxTicks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.Step(ctx); err != nil {
			return err
		}
		b.deps.Sleep(b.deps.Interval)
	}

	b.deps.Logger.Info("Tick limit reached", "ticks", b.Ticks())
	return nil
}

// Step runs exactly one tick.
func (b *Bot) Step(ctx context.Context) error {
	g, err := b.deps.Transport.Game(ctx)
	if err != nil {
		return err
	}
	b.now.Store(int64(g.Now))

	score, err := g.Score()
	if err != nil && !errors.Is(err, core.ErrTooFewOwnedTypes) {
		return err
	}
	b.logOwned(g, score)

	engine := b.deps.Engine
	candidates := len(engine.Candidates(g))

	cmds, err := engine.Plan(g)
	if err != nil {
		return fmt.Errorf("planning tick %d: %w", g.Now, err)
	}

	logs, err := engine.Execute(ctx, b.deps.Transport, cmds)
	if err != nil {
		return err
	}
	for i, c := range cmds {
		b.deps.Logger.Info("Agent assigned",
			"agent", c.Agent,
			"resource", c.ResourceID,
			"x", c.X,
			"y", c.Y,
			"score", c.ExpectedScore,
			"horizon", c.Horizon,
			"command", c.Kind)
		if i < len(logs) {
			b.logMove(c.Agent, logs[i])
		}
	}

	if b.deps.QueryResources && len(cmds) > 0 {
		if err := b.queryResources(ctx, cmds); err != nil {
			return err
		}
	}

	b.record(g, score, candidates, cmds)
	b.ticks.Add(1)
	return nil
}

func (b *Bot) logOwned(g *core.Game, score float64) {
	attrs := make([]any, 0, 2*len(g.OwnedResources)+4)
	attrs = append(attrs, "now", g.Now)
	for _, o := range g.OwnedResources {
		attrs = append(attrs, o.Type, o.Amount)
	}
	attrs = append(attrs, "score", score)
	b.deps.Logger.Info("Owned resources", attrs...)
}

func (b *Bot) logMove(agent int, log core.MoveLog) {
	if len(log.Move) == 0 {
		return
	}
	last := log.Move[len(log.Move)-1]
	b.deps.Logger.Debug("Move accepted", "agent", agent, "x", last.X, "y", last.Y, "arrival", last.T)
}

func (b *Bot) queryResources(ctx context.Context, cmds []strategy.Command) error {
	ids := make([]int, 0, len(cmds))
	for _, c := range cmds {
		ids = append(ids, c.ResourceID)
	}
	rs, err := b.deps.Transport.Resources(ctx, ids)
	if err != nil {
		return fmt.Errorf("querying resources: %w", err)
	}
	for _, r := range rs {
		b.deps.Logger.Debug("Resource collected", "resource", r.ID, "type", r.Type, "amount", r.Amount)
	}
	return nil
}

// record publishes value copies; sinks never share memory with the snapshot.
func (b *Bot) record(g *core.Game, score float64, candidates int, cmds []strategy.Command) {
	b.publish(dispatcher.KindTick, core.TickRecord{
		SessionID:   b.session.ID,
		Now:         g.Now,
		Agents:      len(g.Agents),
		Resources:   len(g.Resources),
		Candidates:  candidates,
		Assignments: len(cmds),
		Owned:       append([]core.OwnedResource(nil), g.OwnedResources...),
		Score:       score,
		Time:        time.Now(),
	})

	for _, c := range cmds {
		b.publish(dispatcher.KindAssignment, core.AssignmentRecord{
			SessionID:     b.session.ID,
			Now:           g.Now,
			Agent:         c.Agent,
			ResourceID:    c.ResourceID,
			X:             c.X,
			Y:             c.Y,
			Horizon:       c.Horizon,
			ExpectedScore: c.ExpectedScore,
			TravelTicks:   c.TravelTicks,
			Command:       string(c.Kind),
			TargetTick:    c.TargetTick,
		})
	}
}

// publish never fails the loop; recording problems are only logged.
func (b *Bot) publish(kind string, payload any) {
	if b.deps.Publisher == nil {
		return
	}
	_, err := b.deps.Publisher.Dispatch(dispatcher.Event{
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now(),
	})
	if err != nil {
		b.deps.Logger.Warn("Recording event failed", "kind", kind, "error", err)
	}
}
