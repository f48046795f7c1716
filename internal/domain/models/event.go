package models

import "time"

const (
	EventTradeFilled    = "trade.filled"
	EventTradeRejected  = "trade.rejected"
	EventEquitySnapshot = "equity.snapshot"
	EventStageCompleted = "stage.completed"
	EventStageFailed    = "stage.failed"
)

// Event is a desk occurrence published to downstream consumers.
type Event struct {
	Type    string    `json:"type"`
	Symbol  string    `json:"symbol,omitempty"`
	Stage   string    `json:"stage,omitempty"`
	Message string    `json:"message,omitempty"`
	Payload any       `json:"payload,omitempty"`
	At      time.Time `json:"at"`
}

// TradeRecord is the flat archive row of an execution attempt.
type TradeRecord struct {
	OrderID     string    `json:"order_id" ch:"order_id"`
	DecisionID  string    `json:"decision_id" ch:"decision_id"`
	Symbol      string    `json:"symbol" ch:"symbol"`
	Side        string    `json:"side" ch:"side"`
	Direction   string    `json:"direction" ch:"direction"`
	Status      string    `json:"status" ch:"status"`
	Reason      string    `json:"reason" ch:"reason"`
	Quantity    float64   `json:"quantity" ch:"quantity"`
	Price       float64   `json:"price" ch:"price"`
	FilledPrice float64   `json:"filled_price" ch:"filled_price"`
	Commission  float64   `json:"commission" ch:"commission"`
	CreatedAt   time.Time `json:"created_at" ch:"created_at"`
}

// EquityPoint is the flat archive row of an equity snapshot.
type EquityPoint struct {
	Timestamp  time.Time `json:"timestamp" ch:"ts"`
	TotalValue float64   `json:"total_value" ch:"total_value"`
	Cash       float64   `json:"cash" ch:"cash"`
	Reason     string    `json:"reason" ch:"reason"`
}
