// Package directory implements DirectoryStore: CRUD and cursor-paginated
// iteration over the persistent tenant_shard_mapping table in the global
// database (spec.md §4.2). Grounded on the teacher's raw-SQL access style
// (internal/server/manager.go, pkg/router/router.go) upgraded to sqlx's
// named-parameter queries, per kirimku-smartseller-backend's repository
// conventions.
package directory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dberrors "github.com/sharding-system/internal/errors"
	"github.com/sharding-system/pkg/models"

	"github.com/jmoiron/sqlx"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// Store is the DirectoryStore.
type Store struct {
	db      *sqlx.DB
	dialect string
}

// Open connects to the global database, detects its dialect, and ensures
// tenant_shard_mapping (and its indexes) exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	dialect := DetectDialect(dsn)

	db, err := sqlx.ConnectContext(ctx, dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to connect to global database: %w", err)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	for _, stmt := range createTableSQL(s.dialect) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("directory: failed to create tenant_shard_mapping: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Find returns the mapping for tenantID, or ok=false if no row exists.
func (s *Store) Find(ctx context.Context, tenantID int64) (models.TenantShardMapping, bool, error) {
	query := s.db.Rebind(`SELECT tenant_id, shard_id, region, shard_status, created_at
		FROM tenant_shard_mapping WHERE tenant_id = ?`)

	var m models.TenantShardMapping
	err := s.db.GetContext(ctx, &m, query, tenantID)
	if err == sql.ErrNoRows {
		return models.TenantShardMapping{}, false, nil
	}
	if err != nil {
		return models.TenantShardMapping{}, false, fmt.Errorf("directory: find tenant %d: %w", tenantID, err)
	}
	return m, true, nil
}

// Create inserts a new mapping. It fails with KindAlreadyExists if a row
// for tenantID already exists (spec.md §4.2: "create fails with
// AlreadyExists if a row is present").
func (s *Store) Create(ctx context.Context, tenantID int64, shardID, region string) (models.TenantShardMapping, error) {
	now := time.Now().UTC()
	query := s.db.Rebind(`INSERT INTO tenant_shard_mapping (tenant_id, shard_id, region, shard_status, created_at)
		SELECT ?, ?, ?, ?, ?
		WHERE NOT EXISTS (SELECT 1 FROM tenant_shard_mapping WHERE tenant_id = ?)`)

	result, err := s.db.ExecContext(ctx, query, tenantID, shardID, region, models.ShardActive, now, tenantID)
	if err != nil {
		return models.TenantShardMapping{}, fmt.Errorf("directory: create tenant %d: %w", tenantID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return models.TenantShardMapping{}, fmt.Errorf("directory: create tenant %d: %w", tenantID, err)
	}
	if affected == 0 {
		return models.TenantShardMapping{}, dberrors.New(dberrors.KindAlreadyExists,
			fmt.Sprintf("tenant %d already mapped", tenantID))
	}

	return models.TenantShardMapping{
		TenantID: tenantID, ShardID: shardID, Region: region,
		Status: models.ShardActive, CreatedAt: now,
	}, nil
}

// UpdateParams carries the optional fields an Update call may change.
type UpdateParams struct {
	ShardID string
	Region  string
	Status  models.ShardStatus
}

// Update conditionally writes a new shard_id/region/status for tenantID.
// Returns ok=false if no row existed (spec.md §4.4: updateMapping
// "returns false if no row existed").
func (s *Store) Update(ctx context.Context, tenantID int64, params UpdateParams) (bool, error) {
	query := s.db.Rebind(`UPDATE tenant_shard_mapping
		SET shard_id = ?, region = ?, shard_status = ?
		WHERE tenant_id = ?`)

	result, err := s.db.ExecContext(ctx, query, params.ShardID, params.Region, params.Status, tenantID)
	if err != nil {
		return false, fmt.Errorf("directory: update tenant %d: %w", tenantID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("directory: update tenant %d: %w", tenantID, err)
	}
	return affected > 0, nil
}

// IteratePage is one page of a cursor-paginated iteration.
type IteratePage struct {
	Mappings   []models.TenantShardMapping
	NextCursor int64
	HasMore    bool
}

// IterateAll returns up to limit mappings with tenant_id > cursor, ordered
// by tenant_id, for TenantIterator's batch enumeration (spec.md §4.10).
func (s *Store) IterateAll(ctx context.Context, cursor int64, limit int) (IteratePage, error) {
	return s.iterate(ctx, "", cursor, limit)
}

// IterateByShard is IterateAll restricted to one shard.
func (s *Store) IterateByShard(ctx context.Context, shardID string, cursor int64, limit int) (IteratePage, error) {
	return s.iterate(ctx, shardID, cursor, limit)
}

func (s *Store) iterate(ctx context.Context, shardID string, cursor int64, limit int) (IteratePage, error) {
	if limit <= 0 {
		limit = 500
	}

	var (
		query string
		args  []interface{}
	)
	if shardID == "" {
		query = s.db.Rebind(`SELECT tenant_id, shard_id, region, shard_status, created_at
			FROM tenant_shard_mapping WHERE tenant_id > ? ORDER BY tenant_id ASC LIMIT ?`)
		args = []interface{}{cursor, limit + 1}
	} else {
		query = s.db.Rebind(`SELECT tenant_id, shard_id, region, shard_status, created_at
			FROM tenant_shard_mapping WHERE tenant_id > ? AND shard_id = ? ORDER BY tenant_id ASC LIMIT ?`)
		args = []interface{}{cursor, shardID, limit + 1}
	}

	var rows []models.TenantShardMapping
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return IteratePage{}, fmt.Errorf("directory: iterate: %w", err)
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	next := cursor
	if len(rows) > 0 {
		next = rows[len(rows)-1].TenantID
	}

	return IteratePage{Mappings: rows, NextCursor: next, HasMore: hasMore}, nil
}
