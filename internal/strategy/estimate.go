package strategy

import (
	"github.com/harvestbot/harvester/internal/geo"
	"github.com/harvestbot/harvester/pkg/core"
)

// SpeedFactor converts map distance into ticks. It is a fixed estimate of
// agent speed, not a value reported by the driver.
const SpeedFactor = 100

// TravelTicks estimates how many ticks an agent at (fromX, fromY) needs to reach r.
func TravelTicks(fromX, fromY float64, r core.Resource) int {
	return int(SpeedFactor * geo.Distance(fromX, fromY, float64(r.X), float64(r.Y)))
}

// FeasibleWindow returns the number of ticks an agent arriving after
// travelTicks can expect to hold r, or 0 when r is out of reach within horizon.
//
// Arriving before the window opens is discounted by the wait. Any feasible
// result is floored at horizon.
func FeasibleWindow(now, travelTicks int, r core.Resource, horizon int) int {
	if travelTicks > horizon {
		return 0
	}

	arrival := now + travelTicks
	available := r.T1 - arrival
	if arrival < r.T0 {
		available -= r.T0 - now
	}
	available = max(available, horizon)

	if available <= 0 {
		return 0
	}
	return available
}
