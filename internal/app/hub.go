// Package app holds the core streaming logic: the broadcast hub, the
// monitor pipeline and the trend aggregator.
package app

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/authtail/authtail/internal/domain"
)

// Subscriber is one registered recipient of hub events, bound to one live
// viewer connection. Events returns the receive side of its outbound
// channel; the channel closes when the subscriber is removed.
type Subscriber struct {
	ID           string
	RegisteredAt time.Time
	ch           chan *domain.Event
}

func (s *Subscriber) Events() <-chan *domain.Event {
	return s.ch
}

// Hub is the process-wide fan-out point. Producers publish classified
// events; every currently registered subscriber gets its own copy. The
// subscriber registry is the only shared mutable state in the core and is
// guarded by a single mutex.
//
// Delivery uses a non-blocking send into each subscriber's buffered
// channel. A subscriber whose buffer is full is evicted on the spot: its
// channel is closed and its entry removed, which terminates the attached
// connection without stalling the publisher or other subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]*Subscriber

	bufferSize int
	published  atomic.Int64
	dropped    atomic.Int64

	onCountChange func(count int)
}

const DefaultSubscriberBuffer = 256

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:       make(map[string]*Subscriber),
		bufferSize: bufferSize,
	}
}

// OnCountChange registers a callback invoked, under no lock, whenever the
// subscriber count changes. Used to keep the subscriber gauge current.
func (h *Hub) OnCountChange(fn func(count int)) {
	h.mu.Lock()
	h.onCountChange = fn
	h.mu.Unlock()
}

// Subscribe registers a new subscriber and returns its handle. Safe to
// call concurrently with Publish and other Subscribe/Unsubscribe calls.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{
		ID:           uuid.NewString(),
		RegisteredAt: time.Now().UTC(),
		ch:           make(chan *domain.Event, h.bufferSize),
	}

	h.mu.Lock()
	h.subs[sub.ID] = sub
	count := len(h.subs)
	notify := h.onCountChange
	h.mu.Unlock()

	if notify != nil {
		notify(count)
	}
	log.Debug().Str("subscriber", sub.ID).Int("total", count).Msg("Subscriber registered")
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. Idempotent:
// unknown or already-removed handles are a no-op.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(sub.ch)
	}
	count := len(h.subs)
	notify := h.onCountChange
	h.mu.Unlock()

	if !ok {
		return
	}
	if notify != nil {
		notify(count)
	}
	log.Debug().Str("subscriber", id).Int("total", count).Msg("Subscriber removed")
}

// Publish delivers the event to every currently registered subscriber.
// Holding the lock across the sends keeps per-subscriber delivery in
// publish order and makes eviction safe against concurrent publishers;
// every send is non-blocking, so the critical section is bounded.
//
// A subscriber registered after Publish returns never sees this event:
// the hub keeps no history.
func (h *Hub) Publish(event *domain.Event) {
	if event == nil {
		return
	}
	h.published.Add(1)

	var evicted []string

	h.mu.Lock()
	for id, sub := range h.subs {
		select {
		case sub.ch <- event:
		default:
			// Buffer full: the peer stopped draining. Tear it down rather
			// than let one slow viewer hold events for everyone else.
			delete(h.subs, id)
			close(sub.ch)
			evicted = append(evicted, id)
		}
	}
	count := len(h.subs)
	notify := h.onCountChange
	h.mu.Unlock()

	if len(evicted) > 0 {
		h.dropped.Add(int64(len(evicted)))
		if notify != nil {
			notify(count)
		}
		for _, id := range evicted {
			log.Warn().Str("subscriber", id).Msg("Slow subscriber evicted")
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Published returns the total number of events published to the hub.
func (h *Hub) Published() int64 {
	return h.published.Load()
}

// Evicted returns how many subscribers were dropped for falling behind.
func (h *Hub) Evicted() int64 {
	return h.dropped.Load()
}

// Close removes every subscriber, closing their channels.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	notify := h.onCountChange
	h.mu.Unlock()

	if notify != nil {
		notify(0)
	}
	log.Info().Msg("Hub closed")
}
