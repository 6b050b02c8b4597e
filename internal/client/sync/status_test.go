package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensieve-app/pensieve/internal/events"
)

func TestStatusStoreInitialState(t *testing.T) {
	s := NewStatusStore()
	snap := s.Snapshot()
	assert.Equal(t, StatusSynced, snap.Status)
	assert.Zero(t, snap.PendingCount)
	assert.Empty(t, snap.ErrorMessage)
}

func TestStatusStoreSyncCompleted(t *testing.T) {
	s := NewStatusStore()
	s.SetPendingCount(3)
	s.SetSyncing()

	s.Apply(events.SyncCompleted{ChangesCount: 3, Timestamp: 1_700_000_000_000})

	snap := s.Snapshot()
	assert.Equal(t, StatusSynced, snap.Status)
	assert.Equal(t, 0, snap.PendingCount)
	assert.Equal(t, time.UnixMilli(1_700_000_000_000), snap.LastSyncTime)
	assert.Empty(t, snap.ErrorMessage)
}

func TestStatusStoreRetryableFailurePreservesPendingCount(t *testing.T) {
	s := NewStatusStore()
	s.SetPendingCount(5)
	s.SetSyncing()

	s.Apply(events.SyncFailed{Error: "connection reset", Retryable: true})

	snap := s.Snapshot()
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, 5, snap.PendingCount)
	assert.Empty(t, snap.ErrorMessage)
}

func TestStatusStoreNonRetryableFailure(t *testing.T) {
	s := NewStatusStore()
	s.SetSyncing()

	s.Apply(events.SyncFailed{Error: "schema mismatch", Retryable: false})

	snap := s.Snapshot()
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "schema mismatch", snap.ErrorMessage)
}

func TestStatusStorePendingCountFlipsSyncedToPending(t *testing.T) {
	s := NewStatusStore()
	s.SetPendingCount(2)
	assert.Equal(t, StatusPending, s.Snapshot().Status)

	// An in-flight cycle is not demoted by a pending-count refresh.
	s.SetSyncing()
	s.SetPendingCount(4)
	assert.Equal(t, StatusSyncing, s.Snapshot().Status)
}

func TestStatusStoreSubscribe(t *testing.T) {
	s := NewStatusStore()

	var got []StatusSnapshot
	unsub := s.Subscribe(func(snap StatusSnapshot) { got = append(got, snap) })

	// Current state arrives immediately.
	require.Len(t, got, 1)
	assert.Equal(t, StatusSynced, got[0].Status)

	s.SetSyncing()
	require.Len(t, got, 2)
	assert.Equal(t, StatusSyncing, got[1].Status)

	unsub()
	s.Apply(events.SyncCompleted{Timestamp: 1})
	assert.Len(t, got, 2)
}

func TestStatusStoreAttachToBus(t *testing.T) {
	s := NewStatusStore()
	bus := events.NewBus()
	detach := s.Attach(bus)

	bus.Publish(events.SyncFailed{Error: "offline", Retryable: true})
	assert.Equal(t, StatusPending, s.Snapshot().Status)

	detach()
	bus.Publish(events.SyncCompleted{Timestamp: 1})
	assert.Equal(t, StatusPending, s.Snapshot().Status)
}

func TestStatusStoreIgnoresUnknownEvents(t *testing.T) {
	s := NewStatusStore()
	s.SetSyncing()

	var calls int
	s.Subscribe(func(StatusSnapshot) { calls++ })
	require.Equal(t, 1, calls)

	s.Apply(nil)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusSyncing, s.Snapshot().Status)
}
