package strategy

import (
	"math/rand"

	"github.com/harvestbot/harvester/pkg/core"
)

// ExpectedScore is the value of sending an agent at (x, y) to r: the weight
// times the window the agent can hold it, or 0 when r is infeasible.
func ExpectedScore(x, y float64, r core.Resource, now, horizon int) int {
	available := FeasibleWindow(now, TravelTicks(x, y, r), r, horizon)
	if available == 0 {
		return 0
	}
	return r.Weight * available
}

// jitter adds exploration noise to feasible scores.
// A nil source or a non-positive bound leaves scores untouched.
type jitter struct {
	rng *rand.Rand
	max int
}

func (j jitter) apply(score int) int {
	if j.rng == nil || j.max <= 0 || score <= 0 {
		return score
	}
	return score + j.rng.Intn(j.max+1)
}
