package sync

import (
	"context"

	"github.com/pensieve-app/pensieve/internal/client/store"
)

// InitialSync drives the full pull performed on first login. It wraps the
// regular service with first-sync detection and coarse progress reporting.
type InitialSync struct {
	svc *Service
}

func NewInitialSync(svc *Service) *InitialSync {
	return &InitialSync{svc: svc}
}

// IsFirstSync reports whether this account has ever completed a pull, by
// checking the bellwether entity's cursor. A single entity suffices because
// all entities are provisioned together at account creation.
func (i *InitialSync) IsFirstSync(ctx context.Context) bool {
	return i.svc.repos.Meta.LastPulledAt(ctx, store.BellwetherEntity) == 0
}

// ProgressFunc receives percentages in [0,100]. 100 is reported only after
// the underlying sync succeeded in full.
type ProgressFunc func(percent int)

// Run installs the auth token, forces a full pull across all entities, and
// reports progress at well-defined checkpoints: 0 at start, an increment per
// completed entity, 100 only on overall success.
//
// Entities sync independently, so a partial run can leave some cursors
// advanced and others empty. When that happens on a first sync the cursors
// are rolled back wholesale: the retry must start from "never synced", not
// from a half-provisioned account.
func (i *InitialSync) Run(ctx context.Context, token string, onProgress ProgressFunc) (Result, error) {
	if onProgress == nil {
		onProgress = func(int) {}
	}

	first := i.IsFirstSync(ctx)
	i.svc.endpoint.SetToken(token)
	onProgress(0)

	total := len(store.Entities)
	done := 0
	result, err := i.svc.Sync(ctx, Options{
		ForceFull: true,
		Priority:  PriorityHigh,
		OnEntityDone: func(EntityResult) {
			done++
			// Intermediate checkpoints stay below 100 even when every
			// entity reported in, until the aggregate outcome is known.
			onProgress(done * 100 / (total + 1))
		},
	})
	if err != nil {
		return result, err
	}
	if result.Outcome != OutcomeSuccess {
		if first {
			if cerr := i.svc.repos.Meta.ClearAll(ctx); cerr != nil {
				i.svc.log.Warn(ctx, "failed to reset cursors after incomplete initial sync", "error", cerr)
			}
		}
		return result, nil
	}
	onProgress(100)
	return result, nil
}
