package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensieve-app/pensieve/internal/client/config"
	"github.com/pensieve-app/pensieve/internal/client/store"
)

func setupApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DatabasePath = ":memory:"

	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	app := setupApp(t)

	assert.Empty(t, app.Token(ctx))

	require.NoError(t, app.SetToken(ctx, "tok-1"))
	assert.Equal(t, "tok-1", app.Token(ctx))
}

func TestRunSyncWithoutTokenFails(t *testing.T) {
	app := setupApp(t)

	_, err := app.RunSync(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestLogoutClearsTokenAndCursors(t *testing.T) {
	ctx := context.Background()
	app := setupApp(t)

	require.NoError(t, app.SetToken(ctx, "tok-1"))
	require.NoError(t, app.Repos.Meta.UpdateLastPulledAt(ctx, store.BellwetherEntity, 5000))

	require.NoError(t, app.Logout(ctx))

	assert.Empty(t, app.Token(ctx))
	assert.Zero(t, app.Repos.Meta.LastPulledAt(ctx, store.BellwetherEntity))
	assert.True(t, app.Initial.IsFirstSync(ctx))
}
