package sync

import (
	"context"
	"strconv"
	"time"

	"github.com/pensieve-app/pensieve/internal/client/store"
)

// StaleThreshold is how long the engine tolerates no successful sync before
// nudging the user once.
const StaleThreshold = 24 * time.Hour

const reminderShownKey = "sync.reminder_shown_at"

// Reminder decides whether to surface the "you haven't synced in a while"
// notice. The shown-marker is persisted so the reminder does not re-fire on
// every app launch; it re-arms only after a successful sync.
type Reminder struct {
	repos *store.Repositories
	now   func() time.Time
}

func NewReminder(repos *store.Repositories) *Reminder {
	return &Reminder{repos: repos, now: time.Now}
}

// ShouldShow reports whether the reminder is due: the last successful pull of
// the bellwether entity is older than StaleThreshold (or absent entirely for
// an account that has synced before is impossible, so absent means a fresh
// install and no reminder), and the reminder has not been shown since then.
func (r *Reminder) ShouldShow(ctx context.Context) bool {
	m := r.repos.Meta.Get(ctx, store.BellwetherEntity)
	if m == nil || m.LastPulledAt == 0 {
		return false
	}
	lastSync := time.UnixMilli(m.LastPulledAt)
	if r.now().Sub(lastSync) < StaleThreshold {
		return false
	}

	shownAt, err := r.repos.AppState.Get(ctx, reminderShownKey)
	if err != nil || shownAt == nil {
		return err == nil
	}
	ts, perr := strconv.ParseInt(string(shownAt), 10, 64)
	if perr != nil {
		return true
	}
	// Already reminded for this stale period.
	return time.UnixMilli(ts).Before(lastSync)
}

// MarkShown records that the reminder was displayed (or dismissed).
func (r *Reminder) MarkShown(ctx context.Context) error {
	ts := strconv.FormatInt(r.now().UnixMilli(), 10)
	return r.repos.AppState.Set(ctx, reminderShownKey, []byte(ts))
}
