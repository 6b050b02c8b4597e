// Package sync implements the offline-first synchronization engine: the
// per-entity push/pull cycle, conflict resolution, initial-sync and auto-sync
// policies, and the observable status store the UI subscribes to.
package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/pensieve-app/pensieve/internal/client/store"
	"github.com/pensieve-app/pensieve/internal/client/store/records"
	"github.com/pensieve-app/pensieve/internal/client/store/syncmeta"
	"github.com/pensieve-app/pensieve/internal/dbx"
	"github.com/pensieve-app/pensieve/internal/events"
	"github.com/pensieve-app/pensieve/internal/logging"
	"github.com/pensieve-app/pensieve/internal/syncerr"
)

// Priority hints how urgently a cycle was requested. High is used for
// user-visible triggers (pull-to-refresh, reconnect).
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Options controls one sync cycle.
type Options struct {
	// ForceFull ignores stored cursors and pulls everything.
	ForceFull bool

	Priority Priority

	// OnEntityDone, when set, is called after each entity finishes its part
	// of the cycle, in completion order.
	OnEntityDone func(EntityResult)
}

// Outcome aggregates the per-entity results of one cycle.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// EntityResult is one entity's independent outcome within a cycle.
type EntityResult struct {
	Entity    string
	Pushed    int
	Pulled    int
	Conflicts int

	// ServerTime is the server clock value acknowledged for this entity, in
	// ms since epoch. Zero when the entity failed.
	ServerTime int64

	Err error
}

// Result is the aggregate outcome of a sync cycle.
type Result struct {
	Outcome  Outcome
	Entities []EntityResult
}

// Changes returns the total number of records moved in either direction.
func (r Result) Changes() int {
	n := 0
	for _, e := range r.Entities {
		n += e.Pushed + e.Pulled
	}
	return n
}

// FirstError returns the first per-entity error, or nil.
func (r Result) FirstError() error {
	for _, e := range r.Entities {
		if e.Err != nil {
			return e.Err
		}
	}
	return nil
}

// Endpoint is the remote sync contract consumed by the engine. One call
// covers both directions for one entity: local pending changes go up, remote
// changes since lastPulledAt come back together with the server's
// authoritative clock value.
type Endpoint interface {
	// SetToken installs the bearer token used for subsequent calls.
	SetToken(token string)

	// Sync pushes changes and pulls records modified after lastPulledAt.
	// The returned timestamp is the server's clock, to be stored as the new
	// cursor; client clocks are never trusted for cursors.
	Sync(ctx context.Context, entity string, lastPulledAt int64, changes []records.Record) (pulled []records.Record, serverTime int64, err error)

	// ReportConflicts ships resolution audits to the server-side audit
	// trail. Best-effort: a failure must not fail the cycle.
	ReportConflicts(ctx context.Context, entity string, audits []Audit) error
}

// DefaultTimeout bounds one whole sync cycle.
const DefaultTimeout = 2 * time.Minute

// Service runs sync cycles against the local store and the remote endpoint.
// At most one cycle is in flight at a time; concurrent calls are rejected
// with syncerr.ErrSyncInProgress rather than queued.
type Service struct {
	repos    *store.Repositories
	endpoint Endpoint
	bus      *events.Bus
	log      logging.Logger
	strategy Strategy
	timeout  time.Duration
	now      func() int64

	mu gosync.Mutex
}

// NewService wires a sync service. bus may be nil when no observer cares;
// logger may be nil in tests.
func NewService(repos *store.Repositories, endpoint Endpoint, bus *events.Bus, log logging.Logger) *Service {
	return &Service{
		repos:    repos,
		endpoint: endpoint,
		bus:      bus,
		log:      logging.OrNoop(log),
		strategy: StrategyPerColumnMerge,
		timeout:  DefaultTimeout,
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Sync runs one cycle over all known entities. Entities are independent: one
// entity's failure does not abort the others, and the aggregate outcome
// reports success, partial, or failed. The only hard error is
// syncerr.ErrSyncInProgress when another cycle is still running.
func (s *Service) Sync(ctx context.Context, opts Options) (Result, error) {
	if !s.mu.TryLock() {
		return Result{}, syncerr.ErrSyncInProgress
	}
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.log.Info(ctx, "sync cycle starting", "forceFull", opts.ForceFull, "priority", opts.Priority)

	result := Result{}
	for _, entity := range store.Entities {
		er := s.syncEntity(ctx, entity, opts)
		result.Entities = append(result.Entities, er)
		if opts.OnEntityDone != nil {
			opts.OnEntityDone(er)
		}
	}

	failed := 0
	for _, er := range result.Entities {
		if er.Err != nil {
			failed++
		}
	}
	switch {
	case failed == 0:
		result.Outcome = OutcomeSuccess
	case failed == len(result.Entities):
		result.Outcome = OutcomeFailed
	default:
		result.Outcome = OutcomePartial
	}

	s.publish(result)
	s.log.Info(ctx, "sync cycle finished", "outcome", result.Outcome, "changes", result.Changes())
	return result, nil
}

// TotalPending counts records modified since each entity's push cursor,
// summed over all entities. Used to feed the UI's pending count.
func (s *Service) TotalPending(ctx context.Context) int {
	total := 0
	for _, entity := range store.Entities {
		cursor := s.repos.Meta.LastPushedAt(ctx, entity)
		n, err := s.repos.Records[entity].CountModifiedSince(ctx, cursor)
		if err != nil {
			continue
		}
		total += n
	}
	return total
}

func (s *Service) publish(result Result) {
	if s.bus == nil {
		return
	}
	if result.Outcome == OutcomeSuccess {
		// The completion timestamp is the server's clock, not ours: the
		// latest acknowledged server time across the cycle's entities.
		var ts int64
		for _, e := range result.Entities {
			if e.ServerTime > ts {
				ts = e.ServerTime
			}
		}
		if ts == 0 {
			ts = s.now()
		}
		s.bus.Publish(events.SyncCompleted{
			Entities:     store.Entities,
			Direction:    events.DirectionBoth,
			ChangesCount: result.Changes(),
			Timestamp:    ts,
		})
		return
	}
	err := result.FirstError()
	s.bus.Publish(events.SyncFailed{
		Error:     err.Error(),
		Retryable: syncerr.Retryable(err),
		Timestamp: s.now(),
	})
}

// syncEntity runs one entity's push→pull→reconcile sequence. Push precedes
// pull so the pull already reflects the server's acknowledgment of what was
// just pushed, and a record can never conflict with itself.
func (s *Service) syncEntity(ctx context.Context, entity string, opts Options) EntityResult {
	res := EntityResult{Entity: entity}
	recs := s.repos.Records[entity]

	var lastPulled, lastPushed int64
	if !opts.ForceFull {
		if m := s.repos.Meta.Get(ctx, entity); m != nil {
			lastPulled, lastPushed = m.LastPulledAt, m.LastPushedAt
		}
	}

	if err := s.repos.Meta.UpdateStatus(ctx, entity, syncmeta.StatusInProgress, ""); err != nil {
		res.Err = err
		return res
	}

	pending, err := recs.ModifiedSince(ctx, lastPushed)
	if err != nil {
		return s.failEntity(ctx, res, err)
	}

	pulled, serverTime, err := s.endpoint.Sync(ctx, entity, lastPulled, pending)
	if err != nil {
		return s.failEntity(ctx, res, err)
	}
	res.Pushed = len(pending)

	pushed := make(map[string]records.Record, len(pending))
	for _, p := range pending {
		pushed[p.ID] = p
	}

	var audits []Audit
	err = dbx.WithTx(ctx, s.repos.DB, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRecs := recs.WithTx(tx)
		for i := range pulled {
			remote := pulled[i]
			var pushedRec *records.Record
			if p, ok := pushed[remote.ID]; ok {
				pushedRec = &p
			}
			applied, audit, err := s.applyRemote(ctx, txRecs, remote, lastPushed, pushedRec)
			if err != nil {
				return err
			}
			if applied {
				res.Pulled++
			}
			if audit != nil {
				audits = append(audits, *audit)
			}
		}

		// Cursors advance inside the same transaction as the batch: a crash
		// mid-apply rolls both back, and the retry re-fetches the same
		// window idempotently.
		txMeta := s.repos.Meta.WithTx(tx)
		if err := txMeta.UpdateLastPulledAt(ctx, entity, serverTime); err != nil {
			return err
		}
		return txMeta.UpdateLastPushedAt(ctx, entity, serverTime)
	})
	if err != nil {
		return s.failEntity(ctx, res, syncerr.Wrap(syncerr.KindTransaction, "failed to apply pull batch", err))
	}

	res.ServerTime = serverTime
	res.Conflicts = len(audits)
	if len(audits) > 0 {
		if err := s.endpoint.ReportConflicts(ctx, entity, audits); err != nil {
			s.log.Warn(ctx, "failed to report conflict audits", "entity", entity, "error", err)
		}
	}

	return res
}

// applyRemote folds one pulled record into the local store. pushed is the
// version sent up in this cycle's batch, or nil when the record was not
// pushed. Returns whether the record changed local state and the conflict
// audit, if any.
func (s *Service) applyRemote(ctx context.Context, recs *records.Repository, remote records.Record, lastPushed int64, pushed *records.Record) (bool, *Audit, error) {
	local, err := recs.Get(ctx, remote.ID)
	if err != nil {
		if syncerr.KindOf(err) == syncerr.KindNotFound {
			// New from the server: insert as-is.
			return true, nil, recs.Upsert(ctx, &remote)
		}
		return false, nil, err
	}

	if pushed != nil {
		if equalRecords(*pushed, remote) {
			// The server echoing back exactly what we pushed is an
			// acknowledgment, not a conflict; adopt the server-canonical
			// copy with its authoritative timestamp.
			return true, nil, recs.Upsert(ctx, &remote)
		}
		// The echo carries different content: another client's write
		// superseded ours on the server since the last cycle. Fall through
		// to conflict resolution.
	} else if local.LastModifiedAt <= lastPushed {
		// Unmodified locally since the last common sync point: overwrite.
		return true, nil, recs.Upsert(ctx, &remote)
	}

	// Both sides changed since the last common sync point.
	resolution := ResolveConflict(recs.Entity(), *local, remote, s.strategy, s.now())
	if err := recs.Upsert(ctx, &resolution.Merged); err != nil {
		return false, nil, err
	}
	return true, &resolution.Audit, nil
}

func (s *Service) failEntity(ctx context.Context, res EntityResult, err error) EntityResult {
	res.Err = err
	s.log.Error(ctx, "entity sync failed", "entity", res.Entity, "error", err)
	if uerr := s.repos.Meta.UpdateStatus(ctx, res.Entity, syncmeta.StatusError, err.Error()); uerr != nil {
		s.log.Warn(ctx, "failed to record sync error", "entity", res.Entity, "error", uerr)
	}
	return res
}

// SetStrategy overrides the default per_column_merge resolution strategy.
func (s *Service) SetStrategy(st Strategy) { s.strategy = st }

// SetTimeout overrides the per-cycle timeout.
func (s *Service) SetTimeout(d time.Duration) { s.timeout = d }
