package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a subscriber that keeps every event it receives.
type recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (r *recorder) Send(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func startBroker(t *testing.T) (*Broker, context.CancelFunc) {
	t.Helper()
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(cancel)
	return b, cancel
}

func TestBrokerDeliversInOrder(t *testing.T) {
	b, _ := startBroker(t)
	sub := &recorder{}
	b.Subscribe(sub)
	require.Equal(t, 1, b.SubscriberCount())

	b.Publish(RunStarted, map[string]any{"run_id": "r1"})
	b.Publish(RunPhase, map[string]any{"phase": "fetching"})
	b.Publish(RunCompleted, map[string]any{"run_id": "r1"})

	require.Eventually(t, func() bool { return len(sub.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	got := sub.snapshot()
	assert.Equal(t, []EventType{RunStarted, RunPhase, RunCompleted}, []EventType{got[0].Type, got[1].Type, got[2].Type})
	assert.Less(t, got[0].Seq, got[1].Seq)
	assert.Less(t, got[1].Seq, got[2].Seq)
	assert.Equal(t, uint64(3), b.EventsPublished())
	assert.Zero(t, b.EventsDropped())
}

func TestBrokerFansOut(t *testing.T) {
	b, _ := startBroker(t)
	subs := []*recorder{{}, {}, {}}
	for _, s := range subs {
		b.Subscribe(s)
	}
	require.Equal(t, 3, b.SubscriberCount())

	b.Publish(OverrideSet, nil)

	for _, s := range subs {
		require.Eventually(t, func() bool { return len(s.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	}
}

func TestBrokerUnsubscribeClosesSubscriber(t *testing.T) {
	b, _ := startBroker(t)
	sub := &recorder{}
	b.Subscribe(sub)
	require.Equal(t, 1, b.SubscriberCount())

	b.Unsubscribe(sub)
	assert.Zero(t, b.SubscriberCount())
	assert.True(t, sub.isClosed())
}

func TestBrokerShutdownClosesSubscribers(t *testing.T) {
	b, cancel := startBroker(t)
	sub := &recorder{}
	b.Subscribe(sub)
	require.Equal(t, 1, b.SubscriberCount())

	cancel()
	require.Eventually(t, sub.isClosed, time.Second, 5*time.Millisecond)
}

func TestBrokerDeliversToSubscribersAddedBeforeRun(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger)
	first, second := &recorder{}, &recorder{}
	b.Subscribe(first)
	b.Subscribe(second)

	// queued before the loop starts
	b.Publish(RunStarted, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go b.Run(ctx)

	for _, s := range []*recorder{first, second} {
		require.Eventually(t, func() bool { return len(s.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	}
}

func TestBrokerDropsWhenQueueFull(t *testing.T) {
	logger := zerolog.Nop()
	b := NewBroker(&logger) // not running, so nothing drains the queue

	for range queueSize + 5 {
		b.Publish(RunPhase, nil)
	}

	assert.Equal(t, uint64(queueSize), b.EventsPublished())
	assert.Equal(t, uint64(5), b.EventsDropped())
	assert.Equal(t, queueSize, b.QueueDepth())
}
