package storage

import (
	"context"
	"errors"
	"time"

	"uptimizer/internal/models"
)

var (
	// ErrUnavailable is returned by every operation when the backing
	// store is unreachable or was never initialized. Callers degrade
	// gracefully instead of crashing the check cycle.
	ErrUnavailable = errors.New("history store unavailable")
)

// HistoryStore is the append-only log of meaningful status-change
// events, partitioned by endpoint id. Record ordering by timestamp
// within a partition is load-bearing for uptime aggregation.
type HistoryStore interface {
	// Ready reports whether the underlying store is usable, so the
	// check cycle can skip persistence attempts cheaply.
	Ready() bool

	// Append durably inserts one record.
	Append(ctx context.Context, rec models.HistoryRecord) error

	// MostRecentBefore returns the latest record strictly before the
	// given instant, or (nil, nil) when none exists.
	MostRecentBefore(ctx context.Context, endpointID string, before time.Time) (*models.HistoryRecord, error)

	// Range returns all records with start <= timestamp <= end,
	// ascending by timestamp, with no row cap.
	Range(ctx context.Context, endpointID string, start, end time.Time) ([]models.HistoryPoint, error)

	// DistinctEndpointIDs returns every endpoint id ever recorded.
	DistinctEndpointIDs(ctx context.Context) ([]string, error)

	// Purge deletes all records for an endpoint id and reports
	// whether anything was deleted.
	Purge(ctx context.Context, endpointID string) (bool, error)
}
