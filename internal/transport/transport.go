// Package transport defines how the bot talks to the simulation driver.
package transport

import (
	"context"
	"errors"

	"github.com/harvestbot/harvester/pkg/core"
)

// ErrClosed is returned when the driver ended the session before a response began.
var ErrClosed = errors.New("transport closed")

// Transport is the request/response capability set of the driver.
// Agents are addressed 1..N.
type Transport interface {
	// Game fetches the current world snapshot.
	Game(ctx context.Context) (*core.Game, error)
	// Move sends an agent toward (x, y) immediately.
	Move(ctx context.Context, agent, x, y int) (core.MoveLog, error)
	// WillMove schedules an agent to leave for (x, y) at tick t.
	WillMove(ctx context.Context, agent, x, y, t int) (core.MoveLog, error)
	// Resources queries resources by id, including the amount collected so far.
	Resources(ctx context.Context, ids []int) ([]core.ResourceWithAmount, error)
	// Name identifies the transport in logs and session records.
	Name() string
	Close() error
}
