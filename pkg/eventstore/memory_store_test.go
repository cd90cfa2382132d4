package eventstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingkit/pkg/eventstore"
)

func TestMemoryStore_Append(t *testing.T) {
	t.Parallel()

	t.Run("first append wins, second reports duplicate", func(t *testing.T) {
		t.Parallel()
		store := eventstore.NewMemoryStore()
		ev := &eventstore.Event{
			Provider:        "paddle",
			ProviderEventID: "evt_1",
			EventType:       "payment.succeeded",
			Payload:         []byte(`{"amount":"99.99"}`),
		}
		require.NoError(t, store.Append(context.Background(), ev))
		assert.NotEqual(t, uuid.Nil, ev.ID)

		dup := &eventstore.Event{Provider: "paddle", ProviderEventID: "evt_1"}
		require.ErrorIs(t, store.Append(context.Background(), dup), eventstore.ErrDuplicateEvent)
	})

	t.Run("same identifier from different providers is distinct", func(t *testing.T) {
		t.Parallel()
		store := eventstore.NewMemoryStore()
		require.NoError(t, store.Append(context.Background(), &eventstore.Event{Provider: "paddle", ProviderEventID: "evt_1"}))
		require.NoError(t, store.Append(context.Background(), &eventstore.Event{Provider: "stripe", ProviderEventID: "evt_1"}))
	})

	t.Run("concurrent appends resolve with one winner", func(t *testing.T) {
		t.Parallel()
		store := eventstore.NewMemoryStore()

		const attempts = 50
		var wins, dups atomic.Int64
		var wg sync.WaitGroup
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.Append(context.Background(), &eventstore.Event{
					Provider:        "paddle",
					ProviderEventID: "evt_contended",
				})
				switch {
				case err == nil:
					wins.Add(1)
				case err == eventstore.ErrDuplicateEvent:
					dups.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(1), wins.Load())
		assert.Equal(t, int64(attempts-1), dups.Load())
	})
}

func TestMemoryStore_ProcessingLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("mark processed sets flag and timestamp", func(t *testing.T) {
		t.Parallel()
		store := eventstore.NewMemoryStore()
		ev := &eventstore.Event{Provider: "paddle", ProviderEventID: "evt_1"}
		require.NoError(t, store.Append(context.Background(), ev))

		require.NoError(t, store.MarkProcessed(context.Background(), ev.ID, ""))

		got, err := store.Get(context.Background(), ev.ID)
		require.NoError(t, err)
		assert.True(t, got.Processed)
		require.NotNil(t, got.ProcessedAt)
	})

	t.Run("mark failed increments retry count and keeps event pending", func(t *testing.T) {
		t.Parallel()
		store := eventstore.NewMemoryStore()
		ev := &eventstore.Event{Provider: "paddle", ProviderEventID: "evt_1"}
		require.NoError(t, store.Append(context.Background(), ev))

		require.NoError(t, store.MarkFailed(context.Background(), ev.ID, "store unavailable"))
		require.NoError(t, store.MarkFailed(context.Background(), ev.ID, "store unavailable"))

		got, err := store.Get(context.Background(), ev.ID)
		require.NoError(t, err)
		assert.False(t, got.Processed)
		assert.Equal(t, 2, got.RetryCount)
		assert.Equal(t, "store unavailable", got.LastError)
	})

	t.Run("unknown event id", func(t *testing.T) {
		t.Parallel()
		store := eventstore.NewMemoryStore()
		require.ErrorIs(t, store.MarkProcessed(context.Background(), uuid.New(), ""), eventstore.ErrEventNotFound)
		require.ErrorIs(t, store.MarkFailed(context.Background(), uuid.New(), "x"), eventstore.ErrEventNotFound)
	})
}

func TestMemoryStore_ListUnprocessed(t *testing.T) {
	t.Parallel()

	store := eventstore.NewMemoryStore()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})

	ids := make([]uuid.UUID, 0, 3)
	for _, evtID := range []string{"evt_a", "evt_b", "evt_c"} {
		ev := &eventstore.Event{Provider: "paddle", ProviderEventID: evtID}
		require.NoError(t, store.Append(context.Background(), ev))
		ids = append(ids, ev.ID)
	}
	require.NoError(t, store.MarkProcessed(context.Background(), ids[1], ""))

	t.Run("returns pending oldest first", func(t *testing.T) {
		events, err := store.ListUnprocessed(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "evt_a", events[0].ProviderEventID)
		assert.Equal(t, "evt_c", events[1].ProviderEventID)
	})

	t.Run("honors limit", func(t *testing.T) {
		events, err := store.ListUnprocessed(context.Background(), 1)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "evt_a", events[0].ProviderEventID)
	})

	t.Run("quarantined events are excluded", func(t *testing.T) {
		require.NoError(t, store.Quarantine(context.Background(), ids[0], "malformed payload"))

		events, err := store.ListUnprocessed(context.Background(), 10)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "evt_c", events[0].ProviderEventID)

		got, err := store.Get(context.Background(), ids[0])
		require.NoError(t, err)
		assert.False(t, got.Processed)
		assert.True(t, got.Quarantined)
		assert.Equal(t, "malformed payload", got.LastError)
	})
}
