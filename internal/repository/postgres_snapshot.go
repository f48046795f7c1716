package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	domrepo "TradeDesk/internal/domain/repository"
	applogger "TradeDesk/pkg/logger"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRow is one stored desk snapshot. Each desk owns one row by name.
type SnapshotRow struct {
	Name      string    `gorm:"primaryKey;size:64"`
	Revision  int64     `gorm:"not null"`
	Payload   []byte    `gorm:"type:bytea;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (SnapshotRow) TableName() string { return "desk_snapshots" }

// PostgresSnapshotStore upserts the snapshot as a revisioned row.
type PostgresSnapshotStore struct {
	db   *gorm.DB
	name string
	l    *applogger.Logger
}

func NewPostgresSnapshotStore(db *gorm.DB, name string, l *applogger.Logger) *PostgresSnapshotStore {
	if name == "" {
		name = "default"
	}
	if l == nil {
		l = applogger.NewNop()
	}
	return &PostgresSnapshotStore{db: db, name: name, l: l}
}

// Migrate creates the snapshot table.
func (s *PostgresSnapshotStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&SnapshotRow{}); err != nil {
		return fmt.Errorf("postgres snapshot: migrate: %w", err)
	}
	return nil
}

func (s *PostgresSnapshotStore) Load(ctx context.Context) ([]byte, error) {
	var row SnapshotRow
	err := s.db.WithContext(ctx).Where("name = ?", s.name).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domrepo.ErrSnapshotNotFound
	}
	if err != nil {
		s.l.Error("postgres snapshot load failed", applogger.String("name", s.name), applogger.Error(err))
		return nil, fmt.Errorf("postgres snapshot: load: %w", err)
	}
	return row.Payload, nil
}

func (s *PostgresSnapshotStore) Save(ctx context.Context, data []byte) error {
	row := SnapshotRow{Name: s.name, Revision: 1, Payload: data, UpdatedAt: time.Now().UTC()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]any{
			"payload":    row.Payload,
			"updated_at": row.UpdatedAt,
			"revision":   gorm.Expr("desk_snapshots.revision + 1"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("postgres snapshot: save: %w", err)
	}
	return nil
}

// Close leaves the pool to its owner.
func (s *PostgresSnapshotStore) Close() error { return nil }
