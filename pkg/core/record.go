// pkg/core/record.go
package core

import "time"

// Horizon names the planning horizon an assignment was chosen under.
type Horizon string

const (
	HorizonPrimary   Horizon = "primary"
	HorizonSecondary Horizon = "secondary"
)

// Session describes one run of the client against a driver
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"startedAt"`
	Transport string    `json:"transport"`
	Mode      string    `json:"mode"`
}

// TickRecord summarizes one processed tick
type TickRecord struct {
	SessionID   string          `json:"sessionId"`
	Now         int             `json:"now"`
	Agents      int             `json:"agents"`
	Resources   int             `json:"resources"`
	Candidates  int             `json:"candidates"`
	Assignments int             `json:"assignments"`
	Owned       []OwnedResource `json:"owned"`
	Score       float64         `json:"score"`
	Time        time.Time       `json:"time"`
}

// AssignmentRecord is one agent -> resource decision and the command that carried it
type AssignmentRecord struct {
	SessionID     string  `json:"sessionId"`
	Now           int     `json:"now"`
	Agent         int     `json:"agent"` // 1-based, as addressed on the wire
	ResourceID    int     `json:"resourceId"`
	X             int     `json:"x"`
	Y             int     `json:"y"`
	Horizon       Horizon `json:"horizon"`
	ExpectedScore int     `json:"expectedScore"`
	TravelTicks   int     `json:"travelTicks"`
	Command       string  `json:"command"`
	TargetTick    int     `json:"targetTick,omitempty"`
}
