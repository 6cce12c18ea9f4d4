package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishDeliversInOrder(t *testing.T) {
	b := NewBus()
	var mu sync.Mutex
	var got []EventType

	b.Subscribe(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.Type)
	})

	b.Publish(New(JobAdded, "web"))
	b.Publish(New(JobStarted, "web"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 2)
	assert.Equal(t, JobAdded, got[0])
	assert.Equal(t, JobStarted, got[1])
}

func TestBusStampsTime(t *testing.T) {
	b := NewBus()
	var seen Event
	b.Subscribe(func(e Event) { seen = e })
	b.Publish(New(JobStarted, "web"))
	assert.False(t, seen.Time.IsZero())
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	calls := 0
	sub := b.Subscribe(func(e Event) { calls++ })
	b.Publish(New(JobStarted, "web"))
	sub.Unsubscribe()
	b.Publish(New(JobStarted, "web"))
	assert.Equal(t, 1, calls)
}

func TestBusSubscriberPanicIsolated(t *testing.T) {
	b := NewBus()
	second := 0
	b.Subscribe(func(e Event) { panic("boom") })
	b.Subscribe(func(e Event) { second++ })

	assert.NotPanics(t, func() {
		b.Publish(New(JobStarted, "web"))
	})
	assert.Equal(t, 1, second)
}

func TestBusPublishAfterCloseIsNoop(t *testing.T) {
	b := NewBus()
	calls := 0
	b.Subscribe(func(e Event) { calls++ })
	require.NoError(t, b.Close())
	b.Publish(New(JobStarted, "web"))
	assert.Equal(t, 0, calls)
}

func TestBusCloseDropsSubscriptions(t *testing.T) {
	b := NewBus()
	calls := 0
	b.Subscribe(func(e Event) { calls++ })
	require.NoError(t, b.Close())

	sub := b.Subscribe(func(e Event) { calls++ })
	sub.Unsubscribe()

	b.Publish(New(JobStarted, "web"))
	assert.Equal(t, 0, calls)
}

func TestEventBuilders(t *testing.T) {
	e := New(ProcessExit, "web").WithPID(42).WithPayload(map[string]int{"code": 1})
	assert.Equal(t, 42, *e.PID)
	assert.NotNil(t, e.Payload)
	assert.False(t, e.IsFailure())

	e = e.WithError(assertErr{})
	assert.True(t, e.IsFailure())
	assert.Contains(t, e.String(), "pid=42")
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
