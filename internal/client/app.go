// Package client wires the local store, the HTTP transport, and the sync
// engine into the application the CLI drives.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pensieve-app/pensieve/internal/client/config"
	"github.com/pensieve-app/pensieve/internal/client/store"
	"github.com/pensieve-app/pensieve/internal/client/sync"
	"github.com/pensieve-app/pensieve/internal/client/transport"
	"github.com/pensieve-app/pensieve/internal/events"
	"github.com/pensieve-app/pensieve/internal/logging"
)

const tokenKey = "auth.token"

type App struct {
	Config   *config.Config
	Logger   logging.Logger
	Repos    *store.Repositories
	Bus      *events.Bus
	Status   *sync.StatusStore
	Service  *sync.Service
	Initial  *sync.InitialSync
	Reminder *sync.Reminder
	Uploads  *sync.AudioUploads

	endpoint *transport.HTTPClient
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	repos, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("local db init error: %w", err)
	}

	endpoint := transport.NewHTTPClient(cfg.ServerURL)
	bus := events.NewBus()
	status := sync.NewStatusStore()
	status.Attach(bus)

	svc := sync.NewService(repos, endpoint, bus, logger)
	svc.SetTimeout(cfg.SyncTimeout)

	now := func() int64 { return time.Now().UnixMilli() }

	return &App{
		Config:   cfg,
		Logger:   logger,
		Repos:    repos,
		Bus:      bus,
		Status:   status,
		Service:  svc,
		Initial:  sync.NewInitialSync(svc),
		Reminder: sync.NewReminder(repos),
		Uploads:  sync.NewAudioUploads(repos, endpoint, logger, now),
		endpoint: endpoint,
	}, nil
}

func (a *App) Close() error { return a.Repos.Close() }

// SetToken persists the bearer token for subsequent runs.
func (a *App) SetToken(ctx context.Context, token string) error {
	return a.Repos.AppState.Set(ctx, tokenKey, []byte(token))
}

// Logout clears the stored token and every sync cursor. Records stay; the
// next login re-pulls everything and reconciles against them idempotently.
func (a *App) Logout(ctx context.Context) error {
	if err := a.Repos.AppState.Delete(ctx, tokenKey); err != nil {
		return err
	}
	return a.Repos.Meta.ClearAll(ctx)
}

// Token returns the stored bearer token, or "" when not logged in.
func (a *App) Token(ctx context.Context) string {
	b, err := a.Repos.AppState.Get(ctx, tokenKey)
	if err != nil || b == nil {
		return ""
	}
	return string(b)
}

// RunSync performs one full cycle: pending audio uploads first, then the
// record sync. A first-ever sync goes through the initial-sync path with
// progress reporting.
func (a *App) RunSync(ctx context.Context, onProgress sync.ProgressFunc) (sync.Result, error) {
	token := a.Token(ctx)
	if token == "" {
		return sync.Result{}, fmt.Errorf("not logged in: run 'pensieve login <token>' first")
	}

	if n, err := a.Uploads.Run(ctx); err != nil {
		a.Logger.Warn(ctx, "audio upload pass failed", "error", err)
	} else if n > 0 {
		a.Logger.Info(ctx, "uploaded pending audio", "count", n)
	}

	a.Status.SetSyncing()

	if a.Initial.IsFirstSync(ctx) {
		return a.Initial.Run(ctx, token, onProgress)
	}

	a.endpoint.SetToken(token)
	res, err := a.Service.Sync(ctx, sync.Options{Priority: sync.PriorityHigh})
	if err != nil {
		return res, err
	}
	a.Status.SetPendingCount(a.Service.TotalPending(ctx))
	return res, nil
}

// RunDaemon syncs on a fixed interval until ctx is cancelled. Each tick is
// treated as a foreground signal through the auto-sync policy, so the
// wifi-only preference is honored.
func (a *App) RunDaemon(ctx context.Context, interval time.Duration, network func() sync.NetworkType) error {
	if network == nil {
		// Without a platform probe assume a plain online connection.
		network = func() sync.NetworkType { return sync.NetworkWifi }
	}

	orch := sync.NewOrchestrator(a.Service, func() bool { return a.Config.WifiOnlySync }, a.Logger)

	token := a.Token(ctx)
	if token == "" {
		return fmt.Errorf("not logged in: run 'pensieve login <token>' first")
	}
	a.endpoint.SetToken(token)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	orch.HandleEvent(ctx, sync.EventForegrounded, network())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Uploads.Run(ctx); err != nil {
				a.Logger.Warn(ctx, "audio upload pass failed", "error", err)
			}
			orch.HandleEvent(ctx, sync.EventForegrounded, network())

			if a.Reminder.ShouldShow(ctx) {
				a.Logger.Warn(ctx, "no successful sync in over 24 hours")
				if err := a.Reminder.MarkShown(ctx); err != nil {
					a.Logger.Warn(ctx, "failed to persist reminder marker", "error", err)
				}
			}
		}
	}
}
