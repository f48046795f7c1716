package repository

import (
	"context"
	"errors"

	"TradeDesk/internal/domain/models"
)

// ErrSnapshotNotFound is returned by a SnapshotStore that holds no snapshot yet.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotStore persists the desk snapshot as one opaque document.
// Save overwrites the previous snapshot.
type SnapshotStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// Publisher fans desk events out to other services.
type Publisher interface {
	Publish(ctx context.Context, e models.Event) error
	Close() error
}

// Journal is the append-only archive of trades and equity.
type Journal interface {
	Init(ctx context.Context) error
	RecordTrade(ctx context.Context, t models.TradeRecord) error
	RecordEquity(ctx context.Context, p models.EquityPoint) error
	Trades(ctx context.Context, symbol string, limit int) ([]models.TradeRecord, error)
	Health(ctx context.Context) error
	Close() error
}

// Metrics records desk activity.
type Metrics interface {
	RecordStageRun(stage, status string, seconds float64)
	RecordOrder(side, status string)
	SetEquity(value float64)
	SetMemoryEntries(n int)
	RecordRefit(mode string)
	RecordError(component, kind string)
}
