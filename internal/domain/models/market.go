package models

import "time"

// MarketSnapshot is a point-in-time quote with a synthetic top of book.
type MarketSnapshot struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        float64   `json:"volume"`
	VWAP          float64   `json:"vwap"`
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	BidSize       float64   `json:"bid_size"`
	AskSize       float64   `json:"ask_size"`
	ChangePercent float64   `json:"change_percent"`
	PrevClose     float64   `json:"prev_close,omitempty"`
	AvgVolume     float64   `json:"avg_volume,omitempty"`
	ShortName     string    `json:"short_name,omitempty"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

// Imbalance is the signed order-book imbalance in [-1, 1].
func (m MarketSnapshot) Imbalance() float64 {
	total := m.BidSize + m.AskSize
	if total <= 0 {
		return 0
	}
	return (m.BidSize - m.AskSize) / total
}

// FlowSnapshot estimates large-participant activity for a symbol.
type FlowSnapshot struct {
	Symbol             string    `json:"symbol"`
	LargeOrderNetValue float64   `json:"large_order_net_value"`
	DarkPoolNet        float64   `json:"dark_pool_net"`
	OptionsNotional    float64   `json:"options_notional"`
	AverageDailyVolume float64   `json:"average_daily_volume"`
	Timestamp          time.Time `json:"timestamp"`
}

// Ratios normalises the three flow components by average daily dollar volume.
func (f FlowSnapshot) Ratios() (bf, dp, of float64) {
	if f.AverageDailyVolume <= 0 {
		return 0, 0, 0
	}
	return f.LargeOrderNetValue / f.AverageDailyVolume,
		f.DarkPoolNet / f.AverageDailyVolume,
		f.OptionsNotional / f.AverageDailyVolume
}

// QuoteMeta is the last good quote kept per symbol as a fallback.
type QuoteMeta struct {
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"change_percent"`
	MarketCap     float64   `json:"market_cap,omitempty"`
	AvgVolume     float64   `json:"avg_volume_3m,omitempty"`
	ShortName     string    `json:"short_name,omitempty"`
	Source        string    `json:"source"`
	UpdatedAt     time.Time `json:"ts"`
}
