package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/authtail/authtail/internal/domain"
)

func storeEvent(msg string) *domain.Event {
	return domain.NewEvent(msg, "test", domain.NoMatch("10.0.0.1", ""))
}

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	s := NewMemoryStore(10, 0)

	for i := 0; i < 5; i++ {
		s.Publish(storeEvent(fmt.Sprintf("event-%d", i)))
	}
	require.Equal(t, 5, s.Len())

	got := s.Recent(3)
	require.Len(t, got, 3)
	assert.Equal(t, "event-4", got[0].Message)
	assert.Equal(t, "event-3", got[1].Message)
	assert.Equal(t, "event-2", got[2].Message)
}

func TestMemoryStore_CapacityWraps(t *testing.T) {
	s := NewMemoryStore(3, 0)

	for i := 0; i < 10; i++ {
		s.Publish(storeEvent(fmt.Sprintf("event-%d", i)))
	}

	assert.Equal(t, 3, s.Len())
	got := s.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "event-9", got[0].Message)
	assert.Equal(t, "event-7", got[2].Message)
}

func TestMemoryStore_DeduplicatesByID(t *testing.T) {
	s := NewMemoryStore(10, 0)

	ev := storeEvent("seen once")
	s.Publish(ev)
	s.Publish(ev)
	s.Publish(ev)

	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_IgnoresNilAndUnidentified(t *testing.T) {
	s := NewMemoryStore(10, 0)

	s.Publish(nil)
	s.Publish(&domain.Event{Message: "no id"})

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Recent(10))
}

func TestMemoryStore_EventsSince(t *testing.T) {
	s := NewMemoryStore(10, 0)

	old := storeEvent("old event")
	old.Timestamp = time.Now().UTC().Add(-2 * time.Hour)
	s.Publish(old)

	fresh := storeEvent("fresh event")
	s.Publish(fresh)

	records, err := s.EventsSince(context.Background(), time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(len("fresh event")), records[0].Bytes)
	assert.Equal(t, fresh.Timestamp, records[0].Timestamp)
}
