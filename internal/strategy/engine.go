package strategy

import (
	"container/heap"
	"context"
	"fmt"
	"log/slog"
	"math/rand"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/harvestbot/harvester/pkg/core"
)

const instrumentationName = "github.com/harvestbot/harvester/internal/strategy"

// DefaultInterval is the tick length of the primary planning horizon.
const DefaultInterval = 1000

// Mode selects which command carries an assignment.
type Mode string

const (
	// ModeMove sends agents immediately.
	ModeMove Mode = "move"
	// ModeWillMove schedules departure so the agent arrives when the window opens:
	// the target tick is max(now, t0 - travelTicks).
	ModeWillMove Mode = "will_move"
)

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeMove, ModeWillMove:
		return Mode(s), nil
	case "":
		return ModeMove, nil
	}
	return "", fmt.Errorf("unknown mode: %q", s)
}

// Command is one movement order produced by Plan.
type Command struct {
	Kind          Mode
	Agent         int // 1-based
	X, Y          int
	TargetTick    int // will_move only
	ResourceID    int
	Horizon       core.Horizon
	ExpectedScore int
	TravelTicks   int
}

// Mover issues movement commands to the driver.
type Mover interface {
	Move(ctx context.Context, agent, x, y int) (core.MoveLog, error)
	WillMove(ctx context.Context, agent, x, y, t int) (core.MoveLog, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithInterval sets the primary horizon; the secondary horizon is twice as long.
func WithInterval(ticks int) Option {
	return func(e *Engine) {
		if ticks > 0 {
			e.interval = ticks
		}
	}
}

// WithMode selects move or will_move commands.
func WithMode(m Mode) Option {
	return func(e *Engine) {
		e.mode = m
	}
}

// WithHoldOccupied keeps agents that already stand on a candidate resource in place.
func WithHoldOccupied(hold bool) Option {
	return func(e *Engine) {
		e.holdOccupied = hold
	}
}

// WithJitter adds uniform [0, maxNoise] noise to feasible scores, drawn from rng.
func WithJitter(rng *rand.Rand, maxNoise int) Option {
	return func(e *Engine) {
		e.jitter = jitter{rng: rng, max: maxNoise}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMeter sets the meter for the engine's counters; defaults to the global one.
func WithMeter(m metric.Meter) Option {
	return func(e *Engine) {
		if m != nil {
			e.meter = m
		}
	}
}

// Engine assigns idle agents to resources, one tick at a time.
type Engine struct {
	interval     int
	mode         Mode
	holdOccupied bool
	jitter       jitter
	logger       *slog.Logger
	meter        metric.Meter

	assigned metric.Int64Counter
	held     metric.Int64Counter
}

// NewEngine creates an engine. Without WithMeter, metrics go to the global
// OTel meter, which stays no-op until a meter provider is installed.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		interval: DefaultInterval,
		mode:     ModeMove,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	m := e.meter
	if m == nil {
		m = otel.Meter(instrumentationName)
	}

	var err error
	e.assigned, err = m.Int64Counter(
		"strategy.assignments",
		metric.WithDescription("Agents assigned to a resource, by horizon"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating assignments counter: %w", err)
	}

	e.held, err = m.Int64Counter(
		"strategy.held",
		metric.WithDescription("Agents kept on the resource they occupy"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating held counter: %w", err)
	}

	return e, nil
}

// Interval returns the primary horizon in ticks.
func (e *Engine) Interval() int {
	return e.interval
}

// Mode returns the command mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Candidates returns the coordinates of resources worth considering at now,
// in snapshot order: those opening before the primary horizon ends and not yet closed.
func (e *Engine) Candidates(g *core.Game) []core.Point {
	return newCandidateSet(g, e.interval).points()
}

// Plan decides the commands for one tick. It does not mutate g.
// Commands are returned in agent order; each coordinate is assigned at most once.
func (e *Engine) Plan(g *core.Game) ([]Command, error) {
	now := g.Now
	primary := e.interval
	secondary := 2 * e.interval

	cands := newCandidateSet(g, primary)

	held := make(map[int]bool)
	if e.holdOccupied {
		for i := range g.Agents {
			x, y, err := g.AgentPosition(i)
			if err != nil {
				return nil, err
			}
			p, ok := gridPoint(x, y)
			if ok && cands.remove(p) {
				held[i] = true
				e.held.Add(context.Background(), 1)
			}
		}
	}

	var cmds []Command
	for i := range g.Agents {
		if cands.len() == 0 {
			break
		}
		if held[i] {
			continue
		}

		x, y, err := g.AgentPosition(i)
		if err != nil {
			return nil, err
		}

		var byPrimary, bySecondary scoreHeap
		for seq, p := range cands.points() {
			r, err := g.FindResourceAt(p.X, p.Y)
			if err != nil {
				return nil, fmt.Errorf("candidate for agent %d: %w", i+1, err)
			}
			heap.Push(&byPrimary, scored{score: e.jitter.apply(ExpectedScore(x, y, r, now, primary)), seq: seq, res: r})
			heap.Push(&bySecondary, scored{score: e.jitter.apply(ExpectedScore(x, y, r, now, secondary)), seq: seq, res: r})
		}

		best, horizon := byPrimary[0], core.HorizonPrimary
		if best.score <= 0 {
			best, horizon = bySecondary[0], core.HorizonSecondary
		}
		cands.remove(best.res.Point())

		cmd := e.command(i, x, y, now, best, horizon)
		cmds = append(cmds, cmd)

		e.assigned.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("horizon", string(horizon))))
		e.logger.Debug("Assigned agent",
			"agent", cmd.Agent,
			"resource", cmd.ResourceID,
			"x", cmd.X,
			"y", cmd.Y,
			"horizon", horizon,
			"expected", cmd.ExpectedScore)
	}

	return cmds, nil
}

func (e *Engine) command(i int, x, y float64, now int, best scored, horizon core.Horizon) Command {
	travel := TravelTicks(x, y, best.res)
	cmd := Command{
		Kind:          e.mode,
		Agent:         i + 1,
		X:             best.res.X,
		Y:             best.res.Y,
		ResourceID:    best.res.ID,
		Horizon:       horizon,
		ExpectedScore: best.score,
		TravelTicks:   travel,
	}
	if e.mode == ModeWillMove {
		cmd.TargetTick = max(now, best.res.T0-travel)
	}
	return cmd
}

// Execute issues cmds through m in order and returns the reported trajectories.
func (e *Engine) Execute(ctx context.Context, m Mover, cmds []Command) ([]core.MoveLog, error) {
	logs := make([]core.MoveLog, 0, len(cmds))
	for _, c := range cmds {
		var (
			log core.MoveLog
			err error
		)
		switch c.Kind {
		case ModeWillMove:
			log, err = m.WillMove(ctx, c.Agent, c.X, c.Y, c.TargetTick)
		default:
			log, err = m.Move(ctx, c.Agent, c.X, c.Y)
		}
		if err != nil {
			return logs, fmt.Errorf("%s agent %d to (%d,%d): %w", c.Kind, c.Agent, c.X, c.Y, err)
		}
		logs = append(logs, log)
	}
	return logs, nil
}

// gridPoint converts an agent position to a map coordinate when it lies exactly on one.
func gridPoint(x, y float64) (core.Point, bool) {
	px, py := int(x), int(y)
	if float64(px) != x || float64(py) != y {
		return core.Point{}, false
	}
	return core.Point{X: px, Y: py}, true
}

// candidateSet is an insertion-ordered set of coordinates.
type candidateSet struct {
	order []core.Point
	live  map[core.Point]bool
	n     int
}

func newCandidateSet(g *core.Game, primary int) *candidateSet {
	s := &candidateSet{live: make(map[core.Point]bool, len(g.Resources))}
	limit := g.Now + primary
	for _, r := range g.Resources {
		if r.T0 < limit && g.Now < r.T1 {
			p := r.Point()
			if s.live[p] {
				continue
			}
			s.order = append(s.order, p)
			s.live[p] = true
			s.n++
		}
	}
	return s
}

func (s *candidateSet) len() int {
	return s.n
}

func (s *candidateSet) remove(p core.Point) bool {
	if !s.live[p] {
		return false
	}
	s.live[p] = false
	s.n--
	return true
}

func (s *candidateSet) points() []core.Point {
	out := make([]core.Point, 0, s.n)
	for _, p := range s.order {
		if s.live[p] {
			out = append(out, p)
		}
	}
	return out
}

type scored struct {
	score int
	seq   int
	res   core.Resource
}

// scoreHeap is a max-heap on score; equal scores pop in insertion order.
type scoreHeap []scored

func (h scoreHeap) Len() int { return len(h) }
func (h scoreHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}
func (h scoreHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoreHeap) Push(x any) { *h = append(*h, x.(scored)) }

func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
