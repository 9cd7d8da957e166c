package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"uptimizer/internal/models"
	"uptimizer/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s := Open(context.Background(), filepath.Join(t.TempDir(), "history.db"), zap.NewNop())
	require.True(t, s.Ready())
	t.Cleanup(func() { s.Close() })
	return s
}

func record(endpointID string, ts time.Time, status models.Status, details string) models.HistoryRecord {
	return models.HistoryRecord{
		EndpointID: endpointID,
		Timestamp:  ts,
		Status:     status,
		Details:    details,
	}
}

func TestAppendAndRange(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	code := 200
	ms := int64(12)
	require.NoError(t, s.Append(ctx, models.HistoryRecord{
		EndpointID:     "e1",
		Timestamp:      base,
		Status:         models.StatusUp,
		StatusCode:     &code,
		ResponseTimeMS: &ms,
	}))
	require.NoError(t, s.Append(ctx, record("e1", base.Add(time.Minute), models.StatusDown, "HTTP 500")))
	require.NoError(t, s.Append(ctx, record("e2", base, models.StatusUp, "")))

	points, err := s.Range(ctx, "e1", base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, models.StatusUp, points[0].Status)
	assert.Equal(t, models.StatusDown, points[1].Status)
	assert.True(t, points[0].Timestamp.Before(points[1].Timestamp), "range must be ascending")
	require.NotNil(t, points[0].ResponseTimeMS)
	assert.Equal(t, int64(12), *points[0].ResponseTimeMS)
}

func TestRangeBoundsAreInclusive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, record("e1", base, models.StatusUp, "")))
	require.NoError(t, s.Append(ctx, record("e1", base.Add(time.Hour), models.StatusDown, "HTTP 500")))

	points, err := s.Range(ctx, "e1", base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, points, 2)

	points, err = s.Range(ctx, "e1", base.Add(time.Second), base.Add(time.Hour-time.Second))
	require.NoError(t, err)
	assert.Empty(t, points)
}

func TestOrderingAcrossFractionalSeconds(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	// A whole-second timestamp and a fractional one inside the same
	// second: stored text must still sort chronologically.
	whole := time.Date(2026, 8, 1, 12, 0, 5, 0, time.UTC)
	frac := whole.Add(500 * time.Millisecond)

	require.NoError(t, s.Append(ctx, record("e1", frac, models.StatusDown, "HTTP 500")))
	require.NoError(t, s.Append(ctx, record("e1", whole, models.StatusUp, "")))

	points, err := s.Range(ctx, "e1", whole.Add(-time.Minute), whole.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, models.StatusUp, points[0].Status)
	assert.Equal(t, models.StatusDown, points[1].Status)

	rec, err := s.MostRecentBefore(ctx, "e1", frac)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusUp, rec.Status)
	assert.True(t, rec.Timestamp.Equal(whole))
}

func TestMostRecentBeforeIsStrict(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, record("e1", base.Add(-2*time.Hour), models.StatusDown, "HTTP 500")))
	require.NoError(t, s.Append(ctx, record("e1", base.Add(-time.Hour), models.StatusUp, "")))
	require.NoError(t, s.Append(ctx, record("e1", base, models.StatusDown, "HTTP 503")))

	rec, err := s.MostRecentBefore(ctx, "e1", base)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusUp, rec.Status, "record at the boundary instant is excluded")

	rec, err = s.MostRecentBefore(ctx, "e1", base.Add(-3*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, rec)

	rec, err = s.MostRecentBefore(ctx, "never-seen", base)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDistinctEndpointIDsAndPurge(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Append(ctx, record("e1", now, models.StatusUp, "")))
	require.NoError(t, s.Append(ctx, record("e1", now.Add(time.Second), models.StatusUp, "")))
	require.NoError(t, s.Append(ctx, record("e2", now, models.StatusDown, "HTTP 500")))

	ids, err := s.DistinctEndpointIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e1", "e2"}, ids)

	purged, err := s.Purge(ctx, "e1")
	require.NoError(t, err)
	assert.True(t, purged)

	purged, err = s.Purge(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, purged, "second purge has nothing to delete")

	ids, err = s.DistinctEndpointIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"e2"}, ids)
}

func TestUnreadyStoreReturnsUnavailable(t *testing.T) {
	s := &Store{logger: zap.NewNop()}
	assert.False(t, s.Ready())

	ctx := context.Background()
	assert.ErrorIs(t, s.Append(ctx, record("e1", time.Now(), models.StatusUp, "")), storage.ErrUnavailable)

	_, err := s.MostRecentBefore(ctx, "e1", time.Now())
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = s.Range(ctx, "e1", time.Now().Add(-time.Hour), time.Now())
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = s.DistinctEndpointIDs(ctx)
	assert.ErrorIs(t, err, storage.ErrUnavailable)

	_, err = s.Purge(ctx, "e1")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
