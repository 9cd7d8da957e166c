// Package stats computes availability statistics from persisted
// status-change history. It reads only the history store, never live
// state.
package stats

import (
	"context"
	"errors"
	"math"
	"time"

	"uptimizer/internal/models"
	"uptimizer/internal/storage"
)

// ErrNoData is returned when an endpoint has no history at all, so no
// percentage can be stated.
var ErrNoData = errors.New("no data available")

// UptimeWindow is the statistics window for the uptime percentage.
const UptimeWindow = 24 * time.Hour

// Aggregator answers statistics queries over the history store.
type Aggregator struct {
	store storage.HistoryStore
}

// New creates an Aggregator.
func New(store storage.HistoryStore) *Aggregator {
	return &Aggregator{store: store}
}

// UptimePct24h computes the fractional uptime percentage over the last
// 24 hours, rounded to two decimals.
func (a *Aggregator) UptimePct24h(ctx context.Context, endpointID string) (float64, error) {
	end := time.Now().UTC()
	return a.uptimePct(ctx, endpointID, end.Add(-UptimeWindow), end)
}

// uptimePct integrates up-time over [start, end] by walking the
// ordered change events. Each event's timestamp is the instant the
// status changed to that event's value; the interval before the event
// carries the previous status.
func (a *Aggregator) uptimePct(ctx context.Context, endpointID string, start, end time.Time) (float64, error) {
	prev, err := a.store.MostRecentBefore(ctx, endpointID, start)
	if err != nil {
		return 0, err
	}
	events, err := a.store.Range(ctx, endpointID, start, end)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 && prev == nil {
		return 0, ErrNoData
	}

	currentStatus := models.StatusUnknown
	if prev != nil {
		currentStatus = prev.Status
	}
	currentTime := start
	var up time.Duration

	for _, ev := range events {
		if currentStatus == models.StatusUp {
			up += ev.Timestamp.Sub(currentTime)
		}
		currentTime = ev.Timestamp
		currentStatus = ev.Status
	}
	if currentStatus == models.StatusUp {
		up += end.Sub(currentTime)
	}

	total := end.Sub(start)
	if total <= 0 {
		return 0, errors.New("zero-length window")
	}
	pct := 100 * up.Seconds() / total.Seconds()
	return math.Round(pct*100) / 100, nil
}

// History returns the raw chronological sample series for charting, a
// direct passthrough of the store's range query.
func (a *Aggregator) History(ctx context.Context, endpointID string, start, end time.Time) ([]models.HistoryPoint, error) {
	return a.store.Range(ctx, endpointID, start, end)
}
