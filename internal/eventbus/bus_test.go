package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFiltersByPrefix(t *testing.T) {
	t.Parallel()
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	timers, unsubTimers := b.Subscribe(4, "timer.")
	defer unsubTimers()

	b.Publish(Event{Type: TimerFired, Data: 1})
	b.Publish(Event{Type: EventFired, Data: 2})

	require.Len(t, all, 2)
	require.Len(t, timers, 1)
	got := <-timers
	assert.Equal(t, TimerFired, got.Type)
	assert.False(t, got.Time.IsZero())
}

func TestPublishNeverBlocksOnSlowSubscriber(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	for i := 0; i < 10; i++ {
		b.Publish(Event{Type: EventScheduled})
	}
	assert.Len(t, ch, 1)

	unsub()
	unsub()
	b.Publish(Event{Type: EventScheduled})
	_, ok := <-ch
	assert.True(t, ok)
	_, ok = <-ch
	assert.False(t, ok)
}
