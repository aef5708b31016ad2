package app

import (
	"context"
	"fmt"
	"time"

	"github.com/authtail/authtail/internal/domain"
	"github.com/authtail/authtail/internal/ports"
)

// ParseTrendRange maps a range selector to an hour count. Anything other
// than the recognized selectors, including an empty value, means 24.
func ParseTrendRange(selector string) int {
	switch selector {
	case "6h":
		return 6
	case "12h":
		return 12
	default:
		return 24
	}
}

// AggregateTrend folds historical records into rangeHours contiguous
// one-hour buckets ending at the hour containing now, oldest first. The
// output length is always exactly rangeHours; buckets with no records
// carry zero metrics. Pure: identical inputs yield identical output.
func AggregateTrend(now time.Time, rangeHours int, records []domain.TrendRecord) []domain.TrendBucket {
	if rangeHours < 0 {
		rangeHours = 0
	}
	buckets := make([]domain.TrendBucket, rangeHours)
	if rangeHours == 0 {
		return buckets
	}

	base := now.Truncate(time.Hour).Add(-time.Duration(rangeHours-1) * time.Hour)

	index := make(map[int64]int, rangeHours)
	for i := range buckets {
		bucketStart := base.Add(time.Duration(i) * time.Hour)
		buckets[i] = domain.TrendBucket{
			Start: bucketStart,
			Label: fmt.Sprintf("%d:00", bucketStart.Hour()),
		}
		index[bucketStart.Unix()] = i
	}

	type sums struct {
		events int64
		bytes  int64
	}
	acc := make([]sums, rangeHours)

	for _, rec := range records {
		if rec.Timestamp.Before(base) || rec.Timestamp.After(now) {
			continue
		}
		// A truncated hour with no bucket can only come from a clock or
		// boundary edge; drop it rather than fail the whole series.
		i, ok := index[rec.Timestamp.Truncate(time.Hour).Unix()]
		if !ok {
			continue
		}
		acc[i].events++
		acc[i].bytes += rec.Bytes
	}

	for i := range buckets {
		buckets[i].Events = acc[i].events
		buckets[i].IngressKB = acc[i].bytes / 1024
		// Processing traffic tracks ingest at roughly 1.2x; integer math
		// keeps repeated runs bit-identical.
		buckets[i].EgressKB = buckets[i].IngressKB * 12 / 10
	}

	return buckets
}

// TrendService answers trend queries against the persistence collaborator.
type TrendService struct {
	source ports.TrendSource
	now    func() time.Time
}

func NewTrendService(source ports.TrendSource) *TrendService {
	return &TrendService{source: source, now: time.Now}
}

// Query fetches the records for the selected range and aggregates them.
func (s *TrendService) Query(ctx context.Context, selector string) ([]domain.TrendBucket, error) {
	hours := ParseTrendRange(selector)
	now := s.now().UTC()
	since := now.Add(-time.Duration(hours) * time.Hour)

	records, err := s.source.EventsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fetch trend records: %w", err)
	}
	return AggregateTrend(now, hours, records), nil
}
