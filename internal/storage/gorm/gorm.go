// Package gormstorage holds the overlay table model and the queries shared
// by the SQLite and Postgres backends.
package gormstorage

import (
	"context"
	"fmt"
	"time"

	"github.com/GamesCrafters/gamesplane/pkg/core"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Overlay is one persisted overlay row. Rows are unique per game, variant
// and board state key.
type Overlay struct {
	ID        uint              `gorm:"primarykey"`
	Game      string            `gorm:"size:128;not null;uniqueIndex:idx_overlay_state,priority:1"`
	Variant   string            `gorm:"size:128;not null;uniqueIndex:idx_overlay_state,priority:2"`
	StateKey  string            `gorm:"size:512;not null;uniqueIndex:idx_overlay_state,priority:3"`
	Image     []byte            `gorm:"column:image"`
	Failed    bool              `gorm:"not null"`
	FetchedAt time.Time         `gorm:"not null"`
	Meta      datatypes.JSONMap `gorm:"column:meta"`
}

// TableName fixes the table name independent of gorm's naming strategy.
func (Overlay) TableName() string {
	return "overlays"
}

func fromRecord(scope core.Scope, r core.OverlayRecord) Overlay {
	meta := datatypes.JSONMap{"bytes": len(r.Image)}
	if r.Reason != "" {
		meta["reason"] = r.Reason
	}
	return Overlay{
		Game:      scope.Game,
		Variant:   scope.Variant,
		StateKey:  r.Key,
		Image:     r.Image,
		Failed:    r.Failed,
		FetchedAt: r.FetchedAt.UTC(),
		Meta:      meta,
	}
}

func (o Overlay) record() core.OverlayRecord {
	reason, _ := o.Meta["reason"].(string)
	return core.OverlayRecord{
		Key:       o.StateKey,
		Image:     o.Image,
		Failed:    o.Failed,
		Reason:    reason,
		FetchedAt: o.FetchedAt,
	}
}

// Store runs overlay queries against a gorm connection.
type Store struct {
	db  *gorm.DB
	log zerolog.Logger
}

// New wraps db. The caller owns the connection.
func New(db *gorm.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Migrate creates or updates the overlays table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Overlay{}); err != nil {
		return fmt.Errorf("failed to migrate overlays table: %w", err)
	}
	return nil
}

func scoped(scope core.Scope) map[string]any {
	return map[string]any{"game": scope.Game, "variant": scope.Variant}
}

// Load returns the scope's records ordered by key.
func (s *Store) Load(ctx context.Context, scope core.Scope) ([]core.OverlayRecord, error) {
	var rows []Overlay
	err := s.db.WithContext(ctx).
		Where(scoped(scope)).
		Order("state_key").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("loading overlays for %s: %w", scope, err)
	}

	records := make([]core.OverlayRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.record())
	}
	s.log.Debug().Str("scope", scope.String()).Int("count", len(records)).Msg("Loaded overlays")
	return records, nil
}

// Save upserts records on (game, variant, key).
func (s *Store) Save(ctx context.Context, scope core.Scope, records []core.OverlayRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]Overlay, 0, len(records))
	for _, r := range records {
		rows = append(rows, fromRecord(scope, r))
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "game"}, {Name: "variant"}, {Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"image", "failed", "fetched_at", "meta"}),
		}).
		CreateInBatches(&rows, 500).Error
	if err != nil {
		return fmt.Errorf("saving overlays for %s: %w", scope, err)
	}

	s.log.Debug().Str("scope", scope.String()).Int("count", len(rows)).Msg("Saved overlays")
	return nil
}

// Erase deletes every row of the scope.
func (s *Store) Erase(ctx context.Context, scope core.Scope) error {
	res := s.db.WithContext(ctx).Where(scoped(scope)).Delete(&Overlay{})
	if res.Error != nil {
		return fmt.Errorf("erasing overlays for %s: %w", scope, res.Error)
	}
	s.log.Info().Str("scope", scope.String()).Int64("count", res.RowsAffected).Msg("Erased overlays")
	return nil
}
