// Package store provides the narrow adapters against the persistence
// collaborator: a bounded in-memory recent-event store and a Postgres
// record source for trend aggregation.
package store

import (
	"container/ring"
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/authtail/authtail/internal/domain"
)

// MemoryStore keeps the most recent classified events in a ring buffer
// with LRU deduplication by event id. It serves the recent-events view
// and doubles as the dev-mode trend source.
type MemoryStore struct {
	mu       sync.RWMutex
	events   *ring.Ring
	dedupe   *lru.Cache[string, bool]
	capacity int
}

func NewMemoryStore(capacity, dedupeCap int) *MemoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	if dedupeCap <= 0 {
		dedupeCap = capacity * 2
	}
	dedupeCache, _ := lru.New[string, bool](dedupeCap)

	return &MemoryStore{
		events:   ring.New(capacity),
		dedupe:   dedupeCache,
		capacity: capacity,
	}
}

// Publish records an event, dropping duplicates by id. Implements the
// EventSink port so the store can sit on the hub's publish path.
func (s *MemoryStore) Publish(event *domain.Event) {
	if event == nil || event.ID == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.dedupe.Get(event.ID); seen {
		return
	}
	s.dedupe.Add(event.ID, true)

	s.events.Value = event
	s.events = s.events.Next()
}

// Recent returns up to limit events, newest first.
func (s *MemoryStore) Recent(limit int) []*domain.Event {
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Event, 0, limit)
	r := s.events
	for i := 0; i < s.capacity && len(out) < limit; i++ {
		r = r.Prev()
		if r.Value == nil {
			break
		}
		out = append(out, r.Value.(*domain.Event))
	}
	return out
}

// EventsSince implements the TrendSource port over the retained window.
func (s *MemoryStore) EventsSince(_ context.Context, since time.Time) ([]domain.TrendRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []domain.TrendRecord
	r := s.events
	for i := 0; i < s.capacity; i++ {
		if ev, ok := r.Value.(*domain.Event); ok && !ev.Timestamp.Before(since) {
			records = append(records, domain.TrendRecord{
				Timestamp: ev.Timestamp,
				Bytes:     int64(len(ev.Message)),
			})
		}
		r = r.Next()
	}
	return records, nil
}

// Len reports how many events are currently retained.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	s.events.Do(func(v interface{}) {
		if v != nil {
			n++
		}
	})
	return n
}
