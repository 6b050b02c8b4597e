// Package records provides the per-entity repository for synced domain
// records. One repository instance is bound to one entity table; all tables
// share the same shape (id, fields JSON, last_modified_at, _status).
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/pensieve-app/pensieve/internal/dbx"
	"github.com/pensieve-app/pensieve/internal/syncerr"
)

// Status markers for soft deletion. Records are never hard-deleted: a
// tombstone must survive locally until its deletion has propagated.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Record is a generic synced domain record. Domain-specific columns live
// inside Fields; the sync protocol only interprets the envelope.
type Record struct {
	ID             string                     `json:"id"`
	Fields         map[string]json.RawMessage `json:"fields"`
	LastModifiedAt int64                      `json:"lastModifiedAt"`
	Status         string                     `json:"_status"`
}

// Deleted reports whether the record is a tombstone.
func (r Record) Deleted() bool { return r.Status == StatusDeleted }

var tableName = regexp.MustCompile(`^[a-z_]+$`)

// Repository gives row access to one entity table.
type Repository struct {
	db     dbx.DBTX
	entity string
}

// NewRepository binds a repository to the given entity table. The entity name
// is interpolated into SQL, so it must be a plain lowercase identifier.
func NewRepository(db dbx.DBTX, entity string) (*Repository, error) {
	if !tableName.MatchString(entity) {
		return nil, fmt.Errorf("invalid entity name %q", entity)
	}
	return &Repository{db: db, entity: entity}, nil
}

// WithTx returns a copy of the repository bound to tx, for applying a pull
// batch atomically.
func (r *Repository) WithTx(tx dbx.DBTX) *Repository {
	return &Repository{db: tx, entity: r.entity}
}

// Entity returns the entity name this repository serves.
func (r *Repository) Entity() string { return r.entity }

// Get returns the record with the given id, tombstones included.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	query := fmt.Sprintf(
		`SELECT id, fields, last_modified_at, _status FROM %s WHERE id = ?`, r.entity)
	row := r.db.QueryRowContext(ctx, query, id)

	var rec Record
	var fields []byte
	err := row.Scan(&rec.ID, &fields, &rec.LastModifiedAt, &rec.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, syncerr.New(syncerr.KindNotFound, fmt.Sprintf("%s/%s", r.entity, id))
	}
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindDatabase, "failed to get record", err)
	}
	if err := json.Unmarshal(fields, &rec.Fields); err != nil {
		return nil, syncerr.Wrap(syncerr.KindDatabase, "failed to decode record fields", err)
	}
	return &rec, nil
}

// Upsert writes rec exactly as given. It is the apply primitive for pulled
// batches and conflict resolutions: applying the same record twice leaves the
// table in the same state.
func (r *Repository) Upsert(ctx context.Context, rec *Record) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return syncerr.Wrap(syncerr.KindValidation, "failed to encode record fields", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, fields, last_modified_at, _status)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			fields = excluded.fields,
			last_modified_at = excluded.last_modified_at,
			_status = excluded._status
	`, r.entity)
	_, err = r.db.ExecContext(ctx, query, rec.ID, fields, rec.LastModifiedAt, rec.Status)
	if err != nil {
		return syncerr.Wrap(syncerr.KindDatabase, "failed to upsert record", err)
	}
	return nil
}

// Save is the domain write path: it upserts rec with last_modified_at set to
// now, which is what marks the record as pending for the next push. Every
// domain mutation must come through here (or bump the timestamp itself).
func (r *Repository) Save(ctx context.Context, rec *Record, now int64) error {
	rec.LastModifiedAt = now
	if rec.Status == "" {
		rec.Status = StatusActive
	}
	return r.Upsert(ctx, rec)
}

// SoftDelete turns the record into a tombstone and bumps its modification
// time so the deletion propagates on the next push.
func (r *Repository) SoftDelete(ctx context.Context, id string, now int64) error {
	query := fmt.Sprintf(
		`UPDATE %s SET _status = ?, last_modified_at = ? WHERE id = ?`, r.entity)
	res, err := r.db.ExecContext(ctx, query, StatusDeleted, now, id)
	if err != nil {
		return syncerr.Wrap(syncerr.KindDatabase, "failed to soft-delete record", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return syncerr.Wrap(syncerr.KindDatabase, "failed to get rows affected", err)
	}
	if ra == 0 {
		return syncerr.New(syncerr.KindNotFound, fmt.Sprintf("%s/%s", r.entity, id))
	}
	return nil
}

// ModifiedSince returns the delta window: records with last_modified_at
// strictly greater than since, tombstones included, oldest first.
func (r *Repository) ModifiedSince(ctx context.Context, since int64) ([]Record, error) {
	query := fmt.Sprintf(`
		SELECT id, fields, last_modified_at, _status FROM %s
		WHERE last_modified_at > ?
		ORDER BY last_modified_at ASC
	`, r.entity)
	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, syncerr.Wrap(syncerr.KindDatabase, "failed to select delta window", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var rec Record
		var fields []byte
		if err := rows.Scan(&rec.ID, &fields, &rec.LastModifiedAt, &rec.Status); err != nil {
			return nil, syncerr.Wrap(syncerr.KindDatabase, "failed to scan record", err)
		}
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return nil, syncerr.Wrap(syncerr.KindDatabase, "failed to decode record fields", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, syncerr.Wrap(syncerr.KindDatabase, "failed to iterate records", err)
	}
	return result, nil
}

// CountModifiedSince reports how many records are pending relative to the
// given cursor. Used for the UI's pending count.
func (r *Repository) CountModifiedSince(ctx context.Context, since int64) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE last_modified_at > ?`, r.entity)
	var n int
	if err := r.db.QueryRowContext(ctx, query, since).Scan(&n); err != nil {
		return 0, syncerr.Wrap(syncerr.KindDatabase, "failed to count pending records", err)
	}
	return n, nil
}
