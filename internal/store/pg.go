package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/plugin/dbresolver"

	"github.com/feral-file/territory-arbiter/internal/domain"
	"github.com/feral-file/territory-arbiter/internal/logger"
	"github.com/feral-file/territory-arbiter/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

func hasDBResolver(db *gorm.DB) bool {
	return db != nil && db.Callback().Query().Get("gorm:db_resolver") != nil
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// UseReadReplica routes plain queries to the replica behind replicaDialector.
// Writes and transactions stay on the primary.
func UseReadReplica(db *gorm.DB, replicaDialector gorm.Dialector) error {
	return db.Use(dbresolver.Register(dbresolver.Config{
		Replicas: []gorm.Dialector{replicaDialector},
		Policy:   dbresolver.RandomPolicy{},
	}))
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// If any of the pool settings are 0, defaults are used:
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings into safe values.
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	// Ensure MaxIdleConns doesn't exceed MaxOpenConns
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// primary returns a handle pinned to the primary when a read replica is registered
func (s *pgStore) primary(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if hasDBResolver(s.db) {
		db = db.Clauses(dbresolver.Write)
	}
	return db
}

// Read retrieves a territory from the primary. The version it returns guards the next
// conditional write, so a lagging replica must not serve it.
func (s *pgStore) Read(ctx context.Context, id string) (*domain.Territory, error) {
	var row schema.Territory
	err := s.primary(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrTerritoryNotFound
		}
		return nil, fmt.Errorf("failed to read territory: %w", err)
	}
	return toDomainTerritory(&row), nil
}

// ConditionalWrite performs the version-guarded update and journals the ownership change
func (s *pgStore) ConditionalWrite(ctx context.Context, next *domain.Territory, expectedVersion int64, change *OwnershipChange) (bool, error) {
	if err := validateWrite(next, expectedVersion); err != nil {
		return false, err
	}

	committed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. Compare-and-swap on the version column
		result := tx.Model(&schema.Territory{}).
			Where("id = ? AND version = ?", next.ID, expectedVersion).
			Updates(map[string]interface{}{
				"owner_id":        next.OwnerID,
				"alliance_id":     next.AllianceID,
				"level":           next.Level,
				"version":         next.Version,
				"last_claimed_at": next.LastClaimedAt,
				"contested_until": next.ContestedUntil,
				"updated_at":      gorm.Expr("now()"),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update territory: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		// 2. Journal the ownership change with the write
		if change != nil {
			entry, err := toJournalRow(next, change)
			if err != nil {
				return err
			}
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("failed to create ownership journal: %w", err)
			}
		}

		committed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if !committed {
		logger.DebugCtx(ctx, "Conditional write lost",
			zap.String("territoryID", next.ID),
			zap.Int64("expectedVersion", expectedVersion))
	}
	return committed, nil
}

// Create inserts a new territory at version 0
func (s *pgStore) Create(ctx context.Context, t *domain.Territory) error {
	if t == nil || t.ID == "" {
		return errInvalidTerritory
	}

	row := toSchemaTerritory(t)
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(row)
	if result.Error != nil {
		return fmt.Errorf("failed to create territory: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrTerritoryAlreadyExists
	}
	return nil
}

// List pages through territories ordered by id
func (s *pgStore) List(ctx context.Context, afterID string, limit int) ([]*domain.Territory, error) {
	var rows []schema.Territory
	err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list territories: %w", err)
	}

	territories := make([]*domain.Territory, 0, len(rows))
	for i := range rows {
		territories = append(territories, toDomainTerritory(&rows[i]))
	}
	return territories, nil
}

// ListInactive returns owned territories whose last claim is at or before claimedBefore
func (s *pgStore) ListInactive(ctx context.Context, claimedBefore time.Time, limit int) ([]*domain.Territory, error) {
	var rows []schema.Territory
	err := s.db.WithContext(ctx).
		Where("owner_id IS NOT NULL AND (last_claimed_at IS NULL OR last_claimed_at <= ?)", claimedBefore).
		Order("last_claimed_at ASC NULLS FIRST").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list inactive territories: %w", err)
	}

	territories := make([]*domain.Territory, 0, len(rows))
	for i := range rows {
		territories = append(territories, toDomainTerritory(&rows[i]))
	}
	return territories, nil
}

// ListOwnershipHistory returns journal entries of a territory, newest first
func (s *pgStore) ListOwnershipHistory(ctx context.Context, territoryID string, limit int) ([]OwnershipRecord, error) {
	var rows []schema.OwnershipJournal
	err := s.db.WithContext(ctx).
		Where("territory_id = ?", territoryID).
		Order("\"cursor\" DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list ownership history: %w", err)
	}

	records := make([]OwnershipRecord, 0, len(rows))
	for _, row := range rows {
		record := OwnershipRecord{
			Cursor:      row.Cursor,
			TerritoryID: row.TerritoryID,
			EventID:     row.EventID,
			OldOwner:    row.OldOwner,
			NewOwner:    row.NewOwner,
			Version:     row.Version,
			Reason:      domain.ReasonCode(row.Reason),
			ChangedAt:   row.ChangedAt,
		}
		if len(row.Meta) > 0 {
			if err := json.Unmarshal(row.Meta, &record.Meta); err != nil {
				return nil, fmt.Errorf("failed to unmarshal ownership journal meta: %w", err)
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func toJournalRow(next *domain.Territory, change *OwnershipChange) (*schema.OwnershipJournal, error) {
	var meta []byte
	if len(change.Meta) > 0 {
		var err error
		meta, err = json.Marshal(change.Meta)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ownership journal meta: %w", err)
		}
	}

	return &schema.OwnershipJournal{
		TerritoryID: next.ID,
		EventID:     change.EventID,
		OldOwner:    change.OldOwner,
		NewOwner:    change.NewOwner,
		Version:     next.Version,
		Reason:      string(change.Reason),
		ChangedAt:   change.ChangedAt,
		Meta:        meta,
	}, nil
}

func toSchemaTerritory(t *domain.Territory) *schema.Territory {
	return &schema.Territory{
		ID:             t.ID,
		Name:           t.Name,
		Lat:            t.Center.Lat,
		Lon:            t.Center.Lon,
		RadiusMeters:   t.RadiusMeters,
		GeohashPrefix:  t.GeohashPrefix,
		OwnerID:        t.OwnerID,
		AllianceID:     t.AllianceID,
		Level:          t.Level,
		Version:        t.Version,
		LastClaimedAt:  t.LastClaimedAt,
		ContestedUntil: t.ContestedUntil,
	}
}

func toDomainTerritory(row *schema.Territory) *domain.Territory {
	return &domain.Territory{
		ID:             row.ID,
		Name:           row.Name,
		Center:         domain.Location{Lat: row.Lat, Lon: row.Lon},
		RadiusMeters:   row.RadiusMeters,
		GeohashPrefix:  row.GeohashPrefix,
		OwnerID:        row.OwnerID,
		AllianceID:     row.AllianceID,
		Level:          row.Level,
		Version:        row.Version,
		LastClaimedAt:  row.LastClaimedAt,
		ContestedUntil: row.ContestedUntil,
	}
}
