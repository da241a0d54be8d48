package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishNoSubscribers(t *testing.T) {
	b := NewBus(4)
	b.Publish(Event{Type: BatchFetched, Batch: "catalog"})
}

func TestBus_SubscriberReceives(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe("s1")

	b.Publish(Event{Type: BatchFailed, Batch: "catalog", Failed: []string{"students"}})

	select {
	case ev := <-sub.C():
		assert.Equal(t, BatchFailed, ev.Type)
		assert.Equal(t, []string{"students"}, ev.Failed)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_PrefixFilter(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe("s1", "admin-")

	b.Publish(Event{Batch: "catalog"})
	b.Publish(Event{Batch: "admin-users"})

	require.Len(t, sub.C(), 1)
	assert.Equal(t, "admin-users", (<-sub.C()).Batch)
}

func TestBus_FullChannelDrops(t *testing.T) {
	b := NewBus(1)
	sub := b.Subscribe("s1")

	b.Publish(Event{Batch: "a"})
	b.Publish(Event{Batch: "b"})

	assert.Equal(t, 1, sub.Dropped())
	assert.Equal(t, "a", (<-sub.C()).Batch)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus(4)
	sub := b.Subscribe("s1")
	b.Unsubscribe("s1")
	b.Unsubscribe("s1")

	_, open := <-sub.C()
	assert.False(t, open)
	b.Publish(Event{Batch: "catalog"})
}

func TestBus_ResubscribeClosesPrevious(t *testing.T) {
	b := NewBus(4)
	first := b.Subscribe("s1")
	second := b.Subscribe("s1")

	_, open := <-first.C()
	assert.False(t, open)

	b.Publish(Event{Batch: "catalog"})
	assert.Len(t, second.C(), 1)
}

func TestBus_AutoID(t *testing.T) {
	b := NewBus(4)
	a, c := b.Subscribe(""), b.Subscribe("")
	assert.NotEqual(t, a.ID, c.ID)
}

func TestBus_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	b := NewBus(8)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(Event{Batch: "catalog"})
			}
		}()
	}
	for i := 0; i < 10; i++ {
		sub := b.Subscribe("")
		b.Unsubscribe(sub.ID)
	}
	wg.Wait()
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "fetched", BatchFetched.String())
	assert.Equal(t, "invalidated", BatchInvalidated.String())
	assert.Equal(t, "unknown", Type(42).String())
}
