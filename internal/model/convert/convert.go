// Package convert provides functions to convert between GORM models and core records
package convert

import (
	"encoding/json"

	"github.com/harvestbot/harvester/internal/geo"
	"github.com/harvestbot/harvester/internal/model"
	"github.com/harvestbot/harvester/pkg/core"
	"gorm.io/datatypes"
)

// ownedToJSON converts owned totals to datatypes.JSON for DB storage.
func ownedToJSON(owned []core.OwnedResource) datatypes.JSON {
	if len(owned) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(owned)
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM model.Session.
// core.Session.ID maps to Session.UUID; the row ID is assigned by the database.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		UUID:      s.ID,
		StartedAt: s.StartedAt,
		Transport: s.Transport,
		Mode:      s.Mode,
	}
}

// CoreToTick converts a core.TickRecord to a GORM model.Tick.
// SessionID is set by the writer.
func CoreToTick(t core.TickRecord) model.Tick {
	return model.Tick{
		Time:        t.Time,
		Now:         t.Now,
		Agents:      t.Agents,
		Resources:   t.Resources,
		Candidates:  t.Candidates,
		Assignments: t.Assignments,
		Owned:       ownedToJSON(t.Owned),
		Score:       t.Score,
	}
}

// CoreToAssignment converts a core.AssignmentRecord to a GORM model.Assignment.
func CoreToAssignment(a core.AssignmentRecord) model.Assignment {
	return model.Assignment{
		Now:           a.Now,
		Agent:         a.Agent,
		ResourceID:    a.ResourceID,
		Target:        geo.PointFromCore(core.Point{X: a.X, Y: a.Y}),
		Horizon:       string(a.Horizon),
		ExpectedScore: a.ExpectedScore,
		TravelTicks:   a.TravelTicks,
		Command:       a.Command,
		TargetTick:    a.TargetTick,
	}
}

// TickToCore converts a stored tick back to a core.TickRecord.
func TickToCore(t model.Tick, sessionUUID string) core.TickRecord {
	var owned []core.OwnedResource
	if len(t.Owned) > 0 {
		_ = json.Unmarshal(t.Owned, &owned)
	}
	return core.TickRecord{
		SessionID:   sessionUUID,
		Now:         t.Now,
		Agents:      t.Agents,
		Resources:   t.Resources,
		Candidates:  t.Candidates,
		Assignments: t.Assignments,
		Owned:       owned,
		Score:       t.Score,
		Time:        t.Time,
	}
}

// AssignmentToCore converts a stored assignment back to a core.AssignmentRecord.
func AssignmentToCore(a model.Assignment, sessionUUID string) core.AssignmentRecord {
	rec := core.AssignmentRecord{
		SessionID:     sessionUUID,
		Now:           a.Now,
		Agent:         a.Agent,
		ResourceID:    a.ResourceID,
		Horizon:       core.Horizon(a.Horizon),
		ExpectedScore: a.ExpectedScore,
		TravelTicks:   a.TravelTicks,
		Command:       a.Command,
		TargetTick:    a.TargetTick,
	}
	if xy, ok := a.Target.XY(); ok {
		rec.X, rec.Y = int(xy.X), int(xy.Y)
	}
	return rec
}
