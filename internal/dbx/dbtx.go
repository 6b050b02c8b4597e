// Package dbx provides the small database plumbing shared by the client's
// SQLite repositories and the server's Postgres store: a minimal interface
// (DBTX) implemented by both *sql.DB and *sql.Tx, and a WithTx helper the
// sync engine uses to commit pull batches atomically with cursor advancement.
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the subset of database/sql used by the record, sync-metadata and
// conflict repositories. Both *sql.DB and *sql.Tx satisfy it, so a repository
// can be rebound to a transaction via its WithTx constructor.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    // use tx instead of db
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
