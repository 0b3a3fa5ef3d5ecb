package topology

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Repository persists committed upgrade steps so they survive restarts.
// Implementations must be safe for concurrent use.
type Repository interface {
	// AppliedVersions returns the step indices recorded for a shard.
	AppliedVersions(ctx context.Context, space string, shardID int) (Versions, error)

	// ListEntries returns the entries recorded for a shard, in commit order.
	ListEntries(ctx context.Context, space string, shardID int) ([]Entry, error)

	// ListUpgrades returns the applied-step history of a shard, ordered by version.
	ListUpgrades(ctx context.Context, space string, shardID int) ([]UpgradeRecord, error)

	// CommitStep records a step and the entries it added atomically.
	// Either everything is stored or nothing is.
	CommitStep(ctx context.Context, rec UpgradeRecord, entries []Entry) error
}

// UpgradeRecord is one applied step of a shard.
type UpgradeRecord struct {
	Space     string    `json:"space"`
	ShardID   int       `json:"shard_id"`
	Version   int       `json:"version"`
	Name      string    `json:"name"`
	RunID     string    `json:"run_id"`
	AppliedAt time.Time `json:"applied_at"`
}

// SQLiteRepository implements Repository using SQLite.
// The schema lives in migrations/*_topology_schema.up.sql.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open, migrated SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// AppliedVersions returns the step indices recorded for a shard.
func (r *SQLiteRepository) AppliedVersions(ctx context.Context, space string, shardID int) (Versions, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT version FROM topology_upgrades WHERE space = ? AND shard_id = ?`,
		space, shardID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying applied versions: %w", err)
	}
	defer rows.Close()

	versions := NewVersions()
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning applied version: %w", err)
		}
		versions.Add(v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applied versions: %w", err)
	}
	return versions, nil
}

// ListEntries returns the entries recorded for a shard, in commit order.
func (r *SQLiteRepository) ListEntries(ctx context.Context, space string, shardID int) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT alias, kind, attrs
		FROM topology_entries
		WHERE space = ? AND shard_id = ?
		ORDER BY seq`,
		space, shardID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var attrsJSON string
		if err := rows.Scan(&e.Alias, &e.Kind, &attrsJSON); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		attrs, err := decodeAttrs([]byte(attrsJSON))
		if err != nil {
			return nil, fmt.Errorf("unmarshalling attrs of entry %q: %w", e.Alias, err)
		}
		e.Attrs = attrs
		if e.Attrs == nil {
			e.Attrs = Attributes{}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating entries: %w", err)
	}
	return entries, nil
}

// ListUpgrades returns the applied-step history of a shard, ordered by version.
func (r *SQLiteRepository) ListUpgrades(ctx context.Context, space string, shardID int) ([]UpgradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT space, shard_id, version, name, run_id, applied_at
		FROM topology_upgrades
		WHERE space = ? AND shard_id = ?
		ORDER BY version`,
		space, shardID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying upgrades: %w", err)
	}
	defer rows.Close()

	var records []UpgradeRecord
	for rows.Next() {
		var rec UpgradeRecord
		var appliedAt string
		if err := rows.Scan(&rec.Space, &rec.ShardID, &rec.Version, &rec.Name, &rec.RunID, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning upgrade: %w", err)
		}
		rec.AppliedAt, _ = time.Parse(time.RFC3339Nano, appliedAt) //nolint:errcheck // Format is controlled
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating upgrades: %w", err)
	}
	return records, nil
}

// CommitStep records a step and its entries in a single transaction.
func (r *SQLiteRepository) CommitStep(ctx context.Context, rec UpgradeRecord, entries []Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now().UTC()
	}

	for _, e := range entries {
		attrsJSON, err := json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("marshalling attrs of entry %q: %w", e.Alias, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO topology_entries (space, shard_id, alias, kind, attrs, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.Space, rec.ShardID, e.Alias, e.Kind, string(attrsJSON), rec.Version,
			rec.AppliedAt.Format(time.RFC3339Nano),
		); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %q", ErrDuplicateEntryAlias, e.Alias)
			}
			return fmt.Errorf("inserting entry %q: %w", e.Alias, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO topology_upgrades (space, shard_id, version, name, run_id, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Space, rec.ShardID, rec.Version, rec.Name, rec.RunID,
		rec.AppliedAt.Format(time.RFC3339Nano),
	); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("step %d already recorded for shard %d", rec.Version, rec.ShardID)
		}
		return fmt.Errorf("recording upgrade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upgrade: %w", err)
	}
	return nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY constraint failed"))
}
