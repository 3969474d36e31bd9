package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// queueSize bounds the events waiting for delivery.
const queueSize = 256

// Broker manages event distribution to multiple subscribers.
// Publish never blocks: when the queue is full the event is dropped and
// counted. Subscribe and Unsubscribe take effect before they return, so an
// event published afterwards reaches exactly the subscribers present then.
type Broker struct {
	subscribers []Subscriber
	events      chan Event
	mu          sync.RWMutex
	logger      *zerolog.Logger

	seq       atomic.Uint64
	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBroker creates a new event broker.
func NewBroker(logger *zerolog.Logger) *Broker {
	return &Broker{
		subscribers: make([]Subscriber, 0),
		events:      make(chan Event, queueSize),
		logger:      logger,
	}
}

// Run starts the broker's event loop. Should be called in a goroutine.
// The broker will run until the context is cancelled.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown: close all subscribers
			b.mu.Lock()
			for _, sub := range b.subscribers {
				_ = sub.Close()
			}
			b.subscribers = nil
			b.mu.Unlock()
			b.logger.Info().Msg("Event broker shut down")
			return

		case event := <-b.events:
			b.mu.RLock()
			subs := make([]Subscriber, len(b.subscribers))
			copy(subs, b.subscribers)
			b.mu.RUnlock()

			// Deliver in order; subscribers buffer internally
			for _, sub := range subs {
				if err := sub.Send(event); err != nil {
					b.logger.Warn().
						Err(err).
						Str("event_type", string(event.Type)).
						Msg("Failed to send event to subscriber")
				}
			}

			b.logger.Debug().
				Uint64("seq", event.Seq).
				Str("event_type", string(event.Type)).
				Int("subscribers", len(subs)).
				Msg("Event broadcasted")
		}
	}
}

// Publish queues an event for all subscribers.
func (b *Broker) Publish(eventType EventType, data any) {
	event := Event{
		Seq:       b.seq.Add(1),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	select {
	case b.events <- event:
		b.published.Add(1)
	default:
		b.dropped.Add(1)
		b.logger.Warn().
			Str("event_type", string(eventType)).
			Msg("Event queue full, event dropped")
	}
}

// Subscribe registers a new subscriber to receive events.
func (b *Broker) Subscribe(sub Subscriber) {
	b.mu.Lock()
	b.subscribers = append(b.subscribers, sub)
	total := len(b.subscribers)
	b.mu.Unlock()
	b.logger.Debug().Int("total_subscribers", total).Msg("Subscriber registered")
}

// Unsubscribe removes a subscriber and closes it.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	var found bool
	for i, s := range b.subscribers {
		if s == sub {
			b.subscribers = append(b.subscribers[:i], b.subscribers[i+1:]...)
			found = true
			break
		}
	}
	total := len(b.subscribers)
	b.mu.Unlock()

	if found {
		_ = sub.Close()
	}
	b.logger.Debug().Int("total_subscribers", total).Msg("Subscriber unregistered")
}

// SubscriberCount returns the current number of subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// EventsPublished returns how many events were queued.
func (b *Broker) EventsPublished() uint64 {
	return b.published.Load()
}

// EventsDropped returns how many events were dropped on a full queue.
func (b *Broker) EventsDropped() uint64 {
	return b.dropped.Load()
}

// QueueDepth returns how many events are waiting for delivery.
func (b *Broker) QueueDepth() int {
	return len(b.events)
}
