// Package ports defines the primary and secondary port interfaces following
// hexagonal architecture (ports and adapters pattern).
//
// This package contains interfaces that define the contract between the core
// streaming/classification logic and external infrastructure (line sources,
// event sinks, historical record stores).
//
// Design Principles:
//   - Interfaces are small and focused (Interface Segregation Principle)
//   - Dependencies flow inward (core domain has no external dependencies)
//   - Implementations provided by adapters in internal/adapters/
package ports

import (
	"context"
	"time"

	"github.com/authtail/authtail/internal/domain"
)

// LineSource streams raw log lines from somewhere: an SSH session following
// a remote file, a local tailed file, or a synthetic generator.
//
// Thread Safety: Start must be safe to call once; Stop may race with Start.
type LineSource interface {
	// Start begins streaming and returns a line channel and an error channel.
	// Both channels are closed when the source stops. Transport errors are
	// reported on the error channel and the source keeps retrying; only a
	// configuration fault prevents streaming entirely.
	Start(ctx context.Context) (<-chan domain.RawLine, <-chan error)

	// Stop terminates streaming and releases the underlying transport.
	// Idempotent.
	Stop() error
}

// RuleMatcher classifies one raw line against the ordered signature rules.
//
// Contract:
//   - First matching rule wins; evaluation stops at the first hit.
//   - An unmatched line classifies as INFO with no threat type, never an error.
//   - Pure: same input always yields the same Classification.
//
// Thread Safety: Match must be safe for concurrent calls.
type RuleMatcher interface {
	Match(line string) domain.Classification

	// RuleCount reports how many rules are currently loaded.
	RuleCount() int
}

// EventSink receives classified events from the pipeline. The in-process
// hub, the NATS forwarder and the JSON console writer all implement it.
//
// Thread Safety: Publish must be safe for concurrent calls and must not
// block indefinitely on a slow downstream.
type EventSink interface {
	Publish(event *domain.Event)
}

// TrendSource is the narrow contract against the persistence collaborator:
// hand back every record observed at or after the given instant. The trend
// aggregator owns all bucketing; implementations just fetch.
type TrendSource interface {
	EventsSince(ctx context.Context, since time.Time) ([]domain.TrendRecord, error)
}
