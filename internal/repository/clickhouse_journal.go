package repository

import (
	"context"
	"database/sql"
	"fmt"

	"TradeDesk/internal/domain/models"
	pkgch "TradeDesk/pkg/clickhouse"
	applogger "TradeDesk/pkg/logger"
)

var journalSchema = []string{
	`CREATE TABLE IF NOT EXISTS desk_trades (
        order_id String,
        decision_id String,
        symbol LowCardinality(String),
        side LowCardinality(String),
        direction LowCardinality(String),
        status LowCardinality(String),
        reason String,
        quantity Float64,
        price Float64,
        filled_price Float64,
        commission Float64,
        created_at DateTime64(3, 'UTC')
    ) ENGINE = MergeTree ORDER BY (symbol, created_at)`,
	`CREATE TABLE IF NOT EXISTS desk_equity (
        ts DateTime64(3, 'UTC'),
        total_value Float64,
        cash Float64,
        reason LowCardinality(String)
    ) ENGINE = MergeTree ORDER BY ts`,
}

// CHJournal archives execution attempts and equity snapshots in ClickHouse.
type CHJournal struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHJournal(ch *pkgch.Client, l *applogger.Logger) *CHJournal {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHJournal{ch: ch, db: ch.DB(), l: l}
}

func (j *CHJournal) Init(ctx context.Context) error {
	return j.ch.InitSchema(ctx, journalSchema)
}

func (j *CHJournal) RecordTrade(ctx context.Context, t models.TradeRecord) error {
	const q = `INSERT INTO desk_trades
        (order_id, decision_id, symbol, side, direction, status, reason, quantity, price, filled_price, commission, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := j.db.ExecContext(ctx, q,
		t.OrderID, t.DecisionID, t.Symbol, t.Side, t.Direction, t.Status, t.Reason,
		t.Quantity, t.Price, t.FilledPrice, t.Commission, t.CreatedAt.UTC())
	if err != nil {
		j.l.Error("clickhouse record_trade failed",
			applogger.String("symbol", t.Symbol),
			applogger.String("order_id", t.OrderID),
			applogger.Error(err))
		return fmt.Errorf("record trade: %w", err)
	}
	return nil
}

func (j *CHJournal) RecordEquity(ctx context.Context, p models.EquityPoint) error {
	const q = `INSERT INTO desk_equity (ts, total_value, cash, reason) VALUES (?, ?, ?, ?)`
	if _, err := j.db.ExecContext(ctx, q, p.Timestamp.UTC(), p.TotalValue, p.Cash, p.Reason); err != nil {
		j.l.Error("clickhouse record_equity failed", applogger.String("reason", p.Reason), applogger.Error(err))
		return fmt.Errorf("record equity: %w", err)
	}
	return nil
}

// Trades returns the newest archived attempts, optionally for one symbol.
func (j *CHJournal) Trades(ctx context.Context, symbol string, limit int) ([]models.TradeRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	q := `SELECT order_id, decision_id, symbol, side, direction, status, reason,
            quantity, price, filled_price, commission, created_at
        FROM desk_trades`
	args := []any{}
	if symbol != "" {
		q += ` WHERE symbol = ?`
		args = append(args, symbol)
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		j.l.Error("clickhouse trades query failed", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		if err := rows.Scan(&t.OrderID, &t.DecisionID, &t.Symbol, &t.Side, &t.Direction, &t.Status, &t.Reason,
			&t.Quantity, &t.Price, &t.FilledPrice, &t.Commission, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *CHJournal) Health(ctx context.Context) error { return j.ch.Health(ctx) }

func (j *CHJournal) Close() error { return j.ch.Close() }
