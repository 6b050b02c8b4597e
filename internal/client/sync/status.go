package sync

import (
	gosync "sync"
	"time"

	"github.com/pensieve-app/pensieve/internal/events"
)

// Status is the UI-facing sync state. It is a runtime cache driven by domain
// events, deliberately decoupled from the durable cursors in sync_metadata.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusSyncing Status = "syncing"
	StatusPending Status = "pending"
	StatusError   Status = "error"
)

// StatusSnapshot is the immutable view handed to subscribers.
type StatusSnapshot struct {
	Status       Status
	LastSyncTime time.Time
	PendingCount int
	ErrorMessage string
}

// StatusStore is a small finite state machine over sync domain events,
// exposed to observers through plain callbacks.
type StatusStore struct {
	mu     gosync.Mutex
	snap   StatusSnapshot
	nextID int
	subs   map[int]func(StatusSnapshot)
}

func NewStatusStore() *StatusStore {
	return &StatusStore{
		snap: StatusSnapshot{Status: StatusSynced},
		subs: make(map[int]func(StatusSnapshot)),
	}
}

// Attach subscribes the store to the bus and returns the unsubscribe func.
func (s *StatusStore) Attach(bus *events.Bus) func() {
	return bus.Subscribe(func(e events.Event) {
		s.Apply(e)
	})
}

// Apply advances the state machine with one domain event. Transitions are
// driven exclusively by events; nothing else mutates the terminal states.
func (s *StatusStore) Apply(e events.Event) {
	s.mu.Lock()
	switch ev := e.(type) {
	case events.SyncCompleted:
		s.snap.Status = StatusSynced
		s.snap.LastSyncTime = time.UnixMilli(ev.Timestamp)
		s.snap.ErrorMessage = ""
		s.snap.PendingCount = 0
	case events.SyncFailed:
		if ev.Retryable {
			// Outstanding changes are still outstanding: keep the count.
			s.snap.Status = StatusPending
		} else {
			s.snap.Status = StatusError
			s.snap.ErrorMessage = ev.Error
		}
	default:
		s.mu.Unlock()
		return
	}
	snap := s.snap
	subs := s.handlers()
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

// SetSyncing flips the store to syncing immediately. Manual triggers
// (pull-to-refresh) call this before starting the cycle so the UI reflects
// progress without waiting for a round trip.
func (s *StatusStore) SetSyncing() {
	s.update(func(snap *StatusSnapshot) {
		snap.Status = StatusSyncing
	})
}

// SetPendingCount records how many local changes await the next push.
func (s *StatusStore) SetPendingCount(n int) {
	s.update(func(snap *StatusSnapshot) {
		snap.PendingCount = n
		if n > 0 && snap.Status == StatusSynced {
			snap.Status = StatusPending
		}
	})
}

// Snapshot returns the current state.
func (s *StatusStore) Snapshot() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers cb for every state change and returns an unsubscribe
// function. The current snapshot is delivered immediately.
func (s *StatusStore) Subscribe(cb func(StatusSnapshot)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = cb
	snap := s.snap
	s.mu.Unlock()

	cb(snap)

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *StatusStore) update(fn func(*StatusSnapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	snap := s.snap
	subs := s.handlers()
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

// handlers must be called with mu held.
func (s *StatusStore) handlers() []func(StatusSnapshot) {
	out := make([]func(StatusSnapshot), 0, len(s.subs))
	for _, f := range s.subs {
		out = append(out, f)
	}
	return out
}
