package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&Tick{},
	&Assignment{},
}

// Session is one run of the bot against a driver
type Session struct {
	ID          uint         `json:"id" gorm:"primarykey;autoIncrement;"`
	UUID        string       `json:"uuid" gorm:"size:36;uniqueIndex"`
	StartedAt   time.Time    `json:"startedAt"`
	EndedAt     sql.NullTime `json:"endedAt"`
	Transport   string       `json:"transport" gorm:"size:16"`
	Mode        string       `json:"mode" gorm:"size:16"`
	Ticks       int          `json:"ticks" gorm:"default:0"`
	Assignments int          `json:"assignments" gorm:"default:0"`
	FinalScore  float64      `json:"finalScore" gorm:"default:0"`
}

func (*Session) TableName() string {
	return "sessions"
}

// Tick is the summary of one processed tick
type Tick struct {
	ID          uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time        time.Time      `json:"time"`
	SessionID   uint           `json:"sessionId" gorm:"index:idx_tick_session_id"`
	Session     Session        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Now         int            `json:"now" gorm:"index:idx_tick_now"`
	Agents      int            `json:"agents"`
	Resources   int            `json:"resources"`
	Candidates  int            `json:"candidates"`
	Assignments int            `json:"assignments"`
	Owned       datatypes.JSON `json:"owned"` // owned totals per resource type
	Score       float64        `json:"score"`
}

func (*Tick) TableName() string {
	return "ticks"
}

// Assignment is one agent -> resource decision
type Assignment struct {
	ID            uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	Time          time.Time  `json:"time"`
	SessionID     uint       `json:"sessionId" gorm:"index:idx_assignment_session_id"`
	Session       Session    `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Now           int        `json:"now" gorm:"index:idx_assignment_now"`
	Agent         int        `json:"agent"` // 1-based
	ResourceID    int        `json:"resourceId" gorm:"index:idx_assignment_resource_id"`
	Target        geom.Point `json:"target"` // resource coordinate
	Horizon       string     `json:"horizon" gorm:"size:16"`
	ExpectedScore int        `json:"expectedScore"`
	TravelTicks   int        `json:"travelTicks"`
	Command       string     `json:"command" gorm:"size:16"`
	TargetTick    int        `json:"targetTick"`
}

func (*Assignment) TableName() string {
	return "assignments"
}
