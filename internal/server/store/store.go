// Package store owns the server's PostgreSQL persistence: the per-account
// record table the sync protocol reads and writes, and the conflict audit
// trail clients report into.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/pensieve-app/pensieve/internal/dbx"
	"github.com/pensieve-app/pensieve/internal/server/store/migrations"
)

// Record is the server-side view of one synced record. The JSON shape is the
// wire contract shared with clients.
type Record struct {
	ID             string                     `json:"id"`
	Fields         map[string]json.RawMessage `json:"fields"`
	LastModifiedAt int64                      `json:"lastModifiedAt"`
	Status         string                     `json:"_status"`
}

// Conflict is one client-reported resolution audit.
type Conflict struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"-"`
	Entity        string          `json:"entity"`
	RecordID      string          `json:"recordId"`
	ConflictType  string          `json:"conflictType"`
	Strategy      string          `json:"strategy"`
	ClientValue   json.RawMessage `json:"clientValue"`
	ServerValue   json.RawMessage `json:"serverValue"`
	ResolvedValue json.RawMessage `json:"resolvedValue"`
	Notes         string          `json:"notes,omitempty"`
	ResolvedAt    int64           `json:"resolvedAt"`
}

// Store wraps the PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

// New opens the database at dsn via the pgx stdlib driver and applies the
// embedded migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ApplySync runs one entity's sync exchange atomically: incoming changes are
// applied last-writer-wins with their timestamps rewritten to serverTime, and
// the response window is read inside the same transaction so the client
// cannot miss a write that lands between apply and select.
//
// The returned records include the caller's own changes (now carrying the
// server timestamp); clients treat that echo as an acknowledgment.
func (s *Store) ApplySync(ctx context.Context, accountID, entity string, changes []Record, since, serverTime int64) ([]Record, error) {
	var updated []Record
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for i := range changes {
			if err := applyChange(ctx, tx, accountID, entity, changes[i], serverTime); err != nil {
				return err
			}
		}
		var err error
		updated, err = selectUpdated(ctx, tx, accountID, entity, since)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// applyChange upserts one incoming record, last push wins. Client clocks are
// never stored: the row takes serverTime, so pull windows compare server
// timestamps only. When two clients race on the same record, the loser pulls
// the winner's version later and resolves the conflict locally.
func applyChange(ctx context.Context, tx dbx.DBTX, accountID, entity string, rec Record, serverTime int64) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode record fields: %w", err)
	}
	status := rec.Status
	if status == "" {
		status = "active"
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (account_id, entity, id, fields, last_modified_at, _status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, entity, id) DO UPDATE SET
			fields = excluded.fields,
			last_modified_at = excluded.last_modified_at,
			_status = excluded._status
	`, accountID, entity, rec.ID, fields, serverTime, status)
	if err != nil {
		return fmt.Errorf("failed to apply change: %w", err)
	}
	return nil
}

func selectUpdated(ctx context.Context, tx dbx.DBTX, accountID, entity string, since int64) ([]Record, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, fields, last_modified_at, _status FROM records
		WHERE account_id = $1 AND entity = $2 AND last_modified_at > $3
		ORDER BY last_modified_at ASC
	`, accountID, entity, since)
	if err != nil {
		return nil, fmt.Errorf("failed to select updated records: %w", err)
	}
	defer rows.Close()

	var result []Record
	for rows.Next() {
		var rec Record
		var fields []byte
		if err := rows.Scan(&rec.ID, &fields, &rec.LastModifiedAt, &rec.Status); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if err := json.Unmarshal(fields, &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to decode record fields: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// SaveConflicts appends client-reported audits. Duplicate IDs are ignored so
// a client retrying its report does not double-write.
func (s *Store) SaveConflicts(ctx context.Context, accountID string, conflicts []Conflict) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, c := range conflicts {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sync_conflicts
					(id, account_id, entity, record_id, conflict_type, strategy,
					 client_value, server_value, resolved_value, notes, resolved_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (id) DO NOTHING
			`, c.ID, accountID, c.Entity, c.RecordID, c.ConflictType, c.Strategy,
				nullableJSON(c.ClientValue), nullableJSON(c.ServerValue), nullableJSON(c.ResolvedValue),
				c.Notes, c.ResolvedAt)
			if err != nil {
				return fmt.Errorf("failed to save conflict audit: %w", err)
			}
		}
		return nil
	})
}

// ListConflicts returns the account's most recent audits, newest first.
func (s *Store) ListConflicts(ctx context.Context, accountID string, limit int) ([]Conflict, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity, record_id, conflict_type, strategy,
		       client_value, server_value, resolved_value, notes, resolved_at
		FROM sync_conflicts
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var result []Conflict
	for rows.Next() {
		var c Conflict
		var client, server, resolved []byte
		if err := rows.Scan(&c.ID, &c.Entity, &c.RecordID, &c.ConflictType, &c.Strategy,
			&client, &server, &resolved, &c.Notes, &c.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		c.AccountID = accountID
		c.ClientValue = client
		c.ServerValue = server
		c.ResolvedValue = resolved
		result = append(result, c)
	}
	return result, rows.Err()
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
