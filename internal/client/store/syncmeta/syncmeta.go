// Package syncmeta persists per-entity sync cursors in the sync_metadata
// table. Reads are deliberately forgiving (a failed or empty read means "no
// cursor", which triggers a safe full resync); writes propagate errors, since
// a caller must know persistence did not happen.
package syncmeta

import (
	"context"
	"database/sql"
	"time"

	"github.com/pensieve-app/pensieve/internal/dbx"
	"github.com/pensieve-app/pensieve/internal/syncerr"
)

// Status values for last_sync_status.
const (
	StatusSuccess    = "success"
	StatusError      = "error"
	StatusInProgress = "in_progress"
)

// Metadata is one sync_metadata row. A zero LastPulledAt means the entity has
// never been pulled and needs a full sync.
type Metadata struct {
	Entity       string
	LastPulledAt int64
	LastPushedAt int64
	LastStatus   string
	LastError    string
	UpdatedAt    int64
}

// Repository gives durable access to sync_metadata rows. Rows are created
// lazily on first write; there is no pre-seeding step.
type Repository struct {
	db  dbx.DBTX
	now func() int64
}

func NewRepository(db dbx.DBTX) *Repository {
	return &Repository{db: db, now: func() int64 { return time.Now().UnixMilli() }}
}

// WithTx returns a copy bound to tx so cursor advancement can commit
// atomically with the batch it acknowledges.
func (r *Repository) WithTx(tx dbx.DBTX) *Repository {
	return &Repository{db: tx, now: r.now}
}

// Get returns the metadata row for entity, or nil when the row does not exist
// or the read fails. It never returns an error: metadata reads are
// best-effort and must not abort a sync cycle.
func (r *Repository) Get(ctx context.Context, entity string) *Metadata {
	row := r.db.QueryRowContext(ctx, `
		SELECT entity, last_pulled_at, last_pushed_at, last_sync_status, last_sync_error, updated_at
		FROM sync_metadata WHERE entity = ?
	`, entity)

	var m Metadata
	var lastErr sql.NullString
	err := row.Scan(&m.Entity, &m.LastPulledAt, &m.LastPushedAt, &m.LastStatus, &lastErr, &m.UpdatedAt)
	if err != nil {
		return nil
	}
	m.LastError = lastErr.String
	return &m
}

// LastPulledAt returns the pull cursor for entity, or 0 when no row exists.
// Zero is the explicit "perform a full sync" signal, not an error condition.
func (r *Repository) LastPulledAt(ctx context.Context, entity string) int64 {
	if m := r.Get(ctx, entity); m != nil {
		return m.LastPulledAt
	}
	return 0
}

// LastPushedAt returns the push cursor for entity, or 0 when no row exists.
func (r *Repository) LastPushedAt(ctx context.Context, entity string) int64 {
	if m := r.Get(ctx, entity); m != nil {
		return m.LastPushedAt
	}
	return 0
}

// Set upserts the full metadata row for entity.
func (r *Repository) Set(ctx context.Context, m *Metadata) error {
	var lastErr any
	if m.LastError != "" {
		lastErr = m.LastError
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (entity, last_pulled_at, last_pushed_at, last_sync_status, last_sync_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity) DO UPDATE SET
			last_pulled_at = excluded.last_pulled_at,
			last_pushed_at = excluded.last_pushed_at,
			last_sync_status = excluded.last_sync_status,
			last_sync_error = excluded.last_sync_error,
			updated_at = excluded.updated_at
	`, m.Entity, m.LastPulledAt, m.LastPushedAt, m.LastStatus, lastErr, r.now())
	if err != nil {
		return syncerr.Wrap(syncerr.KindDatabase, "failed to set sync metadata", err)
	}
	return nil
}

// UpdateLastPulledAt advances the pull cursor, marks the last sync
// successful, and clears any stored error. The push cursor is preserved.
func (r *Repository) UpdateLastPulledAt(ctx context.Context, entity string, ts int64) error {
	m := r.Get(ctx, entity)
	if m == nil {
		m = &Metadata{Entity: entity}
	}
	m.LastPulledAt = ts
	m.LastStatus = StatusSuccess
	m.LastError = ""
	return r.Set(ctx, m)
}

// UpdateLastPushedAt advances the push cursor, preserving the pull cursor.
func (r *Repository) UpdateLastPushedAt(ctx context.Context, entity string, ts int64) error {
	m := r.Get(ctx, entity)
	if m == nil {
		m = &Metadata{Entity: entity}
	}
	m.LastPushedAt = ts
	m.LastStatus = StatusSuccess
	m.LastError = ""
	return r.Set(ctx, m)
}

// UpdateStatus records the sync outcome without touching either cursor.
func (r *Repository) UpdateStatus(ctx context.Context, entity, status, errMsg string) error {
	m := r.Get(ctx, entity)
	if m == nil {
		m = &Metadata{Entity: entity}
	}
	m.LastStatus = status
	m.LastError = errMsg
	if status != StatusError {
		m.LastError = ""
	}
	return r.Set(ctx, m)
}

// ClearAll wipes every row in one statement. Used on logout/account switch;
// deliberately not enumerated per entity so it covers entities added later.
func (r *Repository) ClearAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_metadata`)
	if err != nil {
		return syncerr.Wrap(syncerr.KindDatabase, "failed to clear sync metadata", err)
	}
	return nil
}
