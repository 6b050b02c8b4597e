package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	var got1, got2 []Event
	b.Subscribe(func(e Event) { got1 = append(got1, e) })
	b.Subscribe(func(e Event) { got2 = append(got2, e) })

	ev := SyncCompleted{Entities: []string{"captures"}, ChangesCount: 3, Timestamp: 100}
	b.Publish(ev)

	require.Len(t, got1, 1)
	require.Len(t, got2, 1)
	assert.Equal(t, ev, got1[0])
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	var got []Event
	unsub := b.Subscribe(func(e Event) { got = append(got, e) })

	b.Publish(SyncFailed{Error: "boom", Retryable: true})
	unsub()
	unsub() // second call is a no-op
	b.Publish(SyncFailed{Error: "boom again", Retryable: false})

	assert.Len(t, got, 1)
}

func TestBus_PublishWithoutSubscribersIsSafe(t *testing.T) {
	b := NewBus()
	assert.NotPanics(t, func() {
		b.Publish(SyncCompleted{})
	})
}
