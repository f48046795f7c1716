package scheduler

import (
	"time"

	"TradeDesk/internal/domain/models"
)

// Intervals are the per-stage cadences.
type Intervals struct {
	Macro    time.Duration `yaml:"macro" default:"60m"`
	Quant    time.Duration `yaml:"quant" default:"3m"`
	Industry time.Duration `yaml:"industry" default:"60m"`
	Stock    time.Duration `yaml:"stock" default:"60m"`
	Expert   time.Duration `yaml:"expert" default:"360m"`
	Decision time.Duration `yaml:"decision" default:"30m"`
}

func (iv Intervals) For(stage models.StageName) time.Duration {
	var d time.Duration
	switch stage {
	case models.StageMacro:
		d = iv.Macro
	case models.StageQuant:
		d = iv.Quant
	case models.StageIndustry:
		d = iv.Industry
	case models.StageStock:
		d = iv.Stock
	case models.StageExpert:
		d = iv.Expert
	case models.StageDecision:
		d = iv.Decision
	}
	if d < time.Minute {
		d = time.Minute
	}
	return d
}

type Config struct {
	// Autostart launches the control loop when the process boots.
	Autostart        bool          `yaml:"autostart" default:"true"`
	Tick             time.Duration `yaml:"tick" default:"10s"`
	FaultBackoff     time.Duration `yaml:"fault_backoff" default:"5s"`
	Intervals        Intervals     `yaml:"intervals"`
	DecisionCooldown time.Duration `yaml:"decision_cooldown" default:"15m"`
	StageTimeout     time.Duration `yaml:"stage_timeout" default:"95s"`
	RefitInterval    time.Duration `yaml:"refit_interval"`
	InboxSize        int           `yaml:"inbox_size" default:"200"`
	MemoryLimit      int           `yaml:"memory_limit" default:"6"`
	SelectionTotal   int           `yaml:"selection_total" default:"8"`
	RecentRuns       int           `yaml:"recent_runs" default:"5"`
	HistoryRuns      int           `yaml:"history_runs" default:"20"`
	SaveTimeout      time.Duration `yaml:"save_timeout" default:"10s"`
}

func DefaultConfig() Config {
	return Config{
		Tick:         10 * time.Second,
		FaultBackoff: 5 * time.Second,
		Intervals: Intervals{
			Macro:    60 * time.Minute,
			Quant:    3 * time.Minute,
			Industry: 60 * time.Minute,
			Stock:    60 * time.Minute,
			Expert:   360 * time.Minute,
			Decision: 30 * time.Minute,
		},
		DecisionCooldown: 15 * time.Minute,
		StageTimeout:     95 * time.Second,
		InboxSize:        200,
		MemoryLimit:      6,
		SelectionTotal:   8,
		RecentRuns:       5,
		HistoryRuns:      20,
		SaveTimeout:      10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Tick <= 0 {
		c.Tick = d.Tick
	}
	if c.FaultBackoff <= 0 {
		c.FaultBackoff = d.FaultBackoff
	}
	if c.Intervals == (Intervals{}) {
		c.Intervals = d.Intervals
	}
	if c.DecisionCooldown < 0 {
		c.DecisionCooldown = 0
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = d.StageTimeout
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = d.MemoryLimit
	}
	if c.SelectionTotal <= 0 {
		c.SelectionTotal = d.SelectionTotal
	}
	if c.RecentRuns <= 0 {
		c.RecentRuns = d.RecentRuns
	}
	if c.HistoryRuns <= 0 {
		c.HistoryRuns = d.HistoryRuns
	}
	if c.SaveTimeout <= 0 {
		c.SaveTimeout = d.SaveTimeout
	}
	return c
}
