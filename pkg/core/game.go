// pkg/core/game.go
package core

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotFound is returned when no resource occupies a coordinate.
	ErrNotFound = errors.New("resource not found")
	// ErrOutOfRange is returned for an invalid agent index.
	ErrOutOfRange = errors.New("agent index out of range")
	// ErrTooFewOwnedTypes is returned when the score needs more owned totals than reported.
	ErrTooFewOwnedTypes = errors.New("score needs at least 3 owned resource types")
)

// Point is an integer map coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// AgentMove is a recorded waypoint of an agent
type AgentMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T int     `json:"t"`
}

// Agent holds the full move history; the last waypoint is the current position.
type Agent struct {
	Move []AgentMove `json:"move"`
}

// Resource is a claimable item valid during the half-open tick interval [T0, T1)
type Resource struct {
	ID     int    `json:"id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	T0     int    `json:"t0"`
	T1     int    `json:"t1"`
	Type   string `json:"type"`
	Weight int    `json:"weight"`
}

// Point returns the resource coordinate.
func (r Resource) Point() Point {
	return Point{X: r.X, Y: r.Y}
}

// ActiveAt reports whether t falls inside [T0, T1).
func (r Resource) ActiveAt(t int) bool {
	return r.T0 <= t && t < r.T1
}

// ResourceWithAmount is a resource as returned by the resources query.
type ResourceWithAmount struct {
	Resource
	Amount float64 `json:"amount"`
}

// OwnedResource is the running total the player owns of one resource type
type OwnedResource struct {
	Type   string  `json:"type"`
	Amount float64 `json:"amount"`
}

// Game is the world snapshot for one tick. It is read-only once built.
type Game struct {
	Now            int             `json:"now"`
	Agents         []Agent         `json:"agent"`
	Resources      []Resource      `json:"resource"`
	NextResource   int             `json:"next_resource"`
	OwnedResources []OwnedResource `json:"owned_resource"`

	byPoint map[Point]Resource
}

// NewGame builds a snapshot and indexes its resources by coordinate.
func NewGame(now int, agents []Agent, resources []Resource, nextResource int, owned []OwnedResource) *Game {
	g := &Game{
		Now:            now,
		Agents:         agents,
		Resources:      resources,
		NextResource:   nextResource,
		OwnedResources: owned,
	}
	g.index()
	return g
}

func (g *Game) index() {
	g.byPoint = make(map[Point]Resource, len(g.Resources))
	for _, r := range g.Resources {
		g.byPoint[r.Point()] = r
	}
}

// FindResourceAt returns the resource occupying (x, y).
func (g *Game) FindResourceAt(x, y int) (Resource, error) {
	if g.byPoint == nil {
		g.index()
	}
	r, ok := g.byPoint[Point{X: x, Y: y}]
	if !ok {
		return Resource{}, fmt.Errorf("(%d,%d): %w", x, y, ErrNotFound)
	}
	return r, nil
}

// AgentPosition returns the last waypoint of agent i (0-based).
func (g *Game) AgentPosition(i int) (x, y float64, err error) {
	if i < 0 || i >= len(g.Agents) {
		return 0, 0, fmt.Errorf("agent %d of %d: %w", i, len(g.Agents), ErrOutOfRange)
	}
	moves := g.Agents[i].Move
	if len(moves) == 0 {
		return 0, 0, fmt.Errorf("agent %d has no waypoints: %w", i, ErrOutOfRange)
	}
	m := moves[len(moves)-1]
	return m.X, m.Y, nil
}

// Score is the worst-type-weighted score: a[0] + 0.1*a[1] + 0.01*a[2] over
// owned amounts sorted ascending.
func (g *Game) Score() (float64, error) {
	return CalcScore(g.OwnedResources)
}

// CalcScore computes the balance score over owned totals.
func CalcScore(owned []OwnedResource) (float64, error) {
	if len(owned) < 3 {
		return 0, ErrTooFewOwnedTypes
	}
	a := make([]float64, 0, len(owned))
	for _, o := range owned {
		a = append(a, o.Amount)
	}
	sort.Float64s(a)
	return a[0] + 0.1*a[1] + 0.01*a[2], nil
}

// MoveLog is the trajectory the driver reports after a move or will_move.
type MoveLog struct {
	Now  int         `json:"now"`
	Move []AgentMove `json:"move"`
}
