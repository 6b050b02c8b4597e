// Package store owns the client's local SQLite database: opening it, running
// embedded migrations, and handing out the repositories built on top of it.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/pensieve-app/pensieve/internal/client/store/appstate"
	"github.com/pensieve-app/pensieve/internal/client/store/migrations"
	"github.com/pensieve-app/pensieve/internal/client/store/records"
	"github.com/pensieve-app/pensieve/internal/client/store/syncmeta"
)

// Entities is the fixed registry of synced entity types. Entities are
// provisioned together at account creation; order here is not a sync-order
// guarantee.
var Entities = []string{"captures", "thoughts", "ideas", "todos"}

// BellwetherEntity is the single entity whose cursor decides whether this
// account has ever synced.
const BellwetherEntity = "captures"

// Repositories bundles the repositories backed by one local database.
type Repositories struct {
	DB       *sql.DB
	Meta     *syncmeta.Repository
	AppState *appstate.Repository
	Records  map[string]*records.Repository
}

// RunMigrations applies the embedded migrations to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, db, ".")
}

// Open opens (or creates) the local database at dsn, migrates it, and returns
// the repository set. Use ":memory:" in tests.
func Open(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open local db: %w", err)
	}

	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate local db: %w", err)
	}

	recs := make(map[string]*records.Repository, len(Entities))
	for _, entity := range Entities {
		repo, err := records.NewRepository(db, entity)
		if err != nil {
			db.Close()
			return nil, err
		}
		recs[entity] = repo
	}

	return &Repositories{
		DB:       db,
		Meta:     syncmeta.NewRepository(db),
		AppState: appstate.NewRepository(db),
		Records:  recs,
	}, nil
}

// Close closes the underlying database.
func (r *Repositories) Close() error {
	return r.DB.Close()
}
