package models

import (
	"strings"
	"time"
)

// StageName identifies one analysis stage of the pipeline.
type StageName string

const (
	StageMacro     StageName = "macro"
	StageIndustry  StageName = "industry"
	StageStock     StageName = "stock"
	StageExpert    StageName = "expert"
	StageQuant     StageName = "quant"
	StageDecision  StageName = "decision"
	StageSelection StageName = "selection"
)

// ResearchStages feed the research factor of the calibration engine.
var ResearchStages = []StageName{StageMacro, StageIndustry, StageStock, StageExpert}

// SymbolStages run once per active symbol, in run-once order.
var SymbolStages = []StageName{StageIndustry, StageStock, StageExpert, StageDecision}

// IsGlobal reports whether the stage is scheduled once for the whole pool.
func (s StageName) IsGlobal() bool {
	switch s {
	case StageMacro, StageQuant, StageSelection:
		return true
	}
	return false
}

type StageStatus string

const (
	StatusPending   StageStatus = "pending"
	StatusRunning   StageStatus = "running"
	StatusCompleted StageStatus = "completed"
	StatusFailed    StageStatus = "failed"
	StatusSkipped   StageStatus = "skipped"
)

// StageKey is a schedulable unit: "macro" or "industry:XYZ".
type StageKey string

func GlobalKey(stage StageName) StageKey {
	return StageKey(stage)
}

func SymbolKey(stage StageName, symbol string) StageKey {
	return StageKey(string(stage) + ":" + symbol)
}

// Split returns the stage and the symbol ("" for global keys).
func (k StageKey) Split() (StageName, string) {
	stage, symbol, _ := strings.Cut(string(k), ":")
	return StageName(stage), symbol
}

// StageProgress is the display state of one stage.
type StageProgress struct {
	Status    StageStatus `json:"status"`
	Message   string      `json:"message"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// NextRun describes when a StageKey becomes due.
type NextRun struct {
	LastRun     *time.Time `json:"last_run"`
	NextRun     *time.Time `json:"next_run"`
	SecondsLeft int        `json:"seconds_left"`
	DueNow      bool       `json:"due_now"`
}
