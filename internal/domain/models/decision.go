package models

import "time"

type Direction string

const (
	DirectionLong    Direction = "LONG"
	DirectionShort   Direction = "SHORT"
	DirectionFlat    Direction = "FLAT"
	DirectionNoTrade Direction = "NO_TRADE"
)

const (
	PoolActionKeep         = "keep"
	PoolActionRemoveIfFlat = "remove_if_flat"
)

// RiskControls are the guard rails evaluated before a decision is sized.
type RiskControls struct {
	NoTrade        bool     `json:"no_trade"`
	ReducePosition bool     `json:"reduce_position"`
	MaxPosition    float64  `json:"max_position"`
	StopLoss       float64  `json:"stop_loss"`
	TakeProfit     float64  `json:"take_profit"`
	Warnings       []string `json:"warnings"`
}

type ExecutionPlan struct {
	Direction      Direction `json:"direction"`
	TargetPosition float64   `json:"target_position"`
	PositionChange float64   `json:"position_change"`
	OrderType      string    `json:"order_type"`
	TimeInForce    string    `json:"time_in_force"`
	SplitOrders    bool      `json:"split_orders"`
	PoolAction     string    `json:"pool_action"`
}

// Decision is the trading decision produced by the decision stage.
type Decision struct {
	ID             string        `json:"decision_id"`
	Symbol         string        `json:"symbol"`
	Timestamp      time.Time     `json:"timestamp"`
	Direction      Direction     `json:"direction"`
	Score          float64       `json:"score"`
	TargetPosition float64       `json:"target_position"`
	Plan           ExecutionPlan `json:"execution_plan"`
	Risk           RiskControls  `json:"risk_controls"`
	Rationale      string        `json:"rationale"`
	EvidenceIDs    []string      `json:"evidence_ids"`
}
