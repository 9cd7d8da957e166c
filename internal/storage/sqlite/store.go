package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"

	"uptimizer/internal/models"
	"uptimizer/internal/storage"
)

const (
	openAttempts   = 3
	openRetryDelay = 2 * time.Second

	// timeLayout pads fractional seconds to a fixed width so the TEXT
	// column's lexical order equals chronological order. RFC3339Nano
	// trims trailing zeros, which breaks that equivalence within a
	// second ('Z' sorts after '.').
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Store implements storage.HistoryStore on SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	ready  atomic.Bool
}

// Open connects to the database file, retrying a few times, and runs
// migrations. It never fails hard: on persistent failure it returns a
// Store whose Ready() is false and whose operations report
// storage.ErrUnavailable, so the rest of the process can run degraded.
func Open(ctx context.Context, dataSourceName string, logger *zap.Logger) *Store {
	s := &Store{logger: logger}
	var lastErr error
	for attempt := 1; attempt <= openAttempts; attempt++ {
		db, err := sql.Open("sqlite", fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", dataSourceName))
		if err == nil {
			err = db.PingContext(ctx)
		}
		if err == nil {
			s.db = db
			if err = s.migrate(ctx); err == nil {
				s.ready.Store(true)
				return s
			}
			db.Close()
			s.db = nil
		}
		lastErr = err
		logger.Warn("history store open failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < openAttempts {
			select {
			case <-time.After(openRetryDelay):
			case <-ctx.Done():
				attempt = openAttempts
			}
		}
	}
	logger.Error("history store unavailable, persistence disabled", zap.Error(lastErr))
	return s
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.ready.Store(false)
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ready reports whether the store accepted its connection and schema.
func (s *Store) Ready() bool { return s.ready.Load() }

// migrate ensures the history schema exists.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS status_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	endpoint_id      TEXT NOT NULL,
	timestamp        TEXT NOT NULL,
	status           TEXT NOT NULL,
	status_code      INTEGER,
	response_time_ms INTEGER,
	details          TEXT
);
CREATE INDEX IF NOT EXISTS idx_status_history_endpoint_ts ON status_history (endpoint_id, timestamp DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Append inserts one status-change record.
func (s *Store) Append(ctx context.Context, rec models.HistoryRecord) error {
	if !s.Ready() {
		return storage.ErrUnavailable
	}
	query := `INSERT INTO status_history (endpoint_id, timestamp, status, status_code, response_time_ms, details)
VALUES (?, ?, ?, ?, ?, ?)`
	var details *string
	if rec.Details != "" {
		details = &rec.Details
	}
	_, err := s.db.ExecContext(ctx, query,
		rec.EndpointID,
		rec.Timestamp.UTC().Format(timeLayout),
		string(rec.Status),
		rec.StatusCode,
		rec.ResponseTimeMS,
		details,
	)
	if err != nil {
		return fmt.Errorf("failed to append history record: %w", err)
	}
	return nil
}

// MostRecentBefore returns the latest record strictly before the given
// instant, or nil when the endpoint has no earlier history.
func (s *Store) MostRecentBefore(ctx context.Context, endpointID string, before time.Time) (*models.HistoryRecord, error) {
	if !s.Ready() {
		return nil, storage.ErrUnavailable
	}
	query := `SELECT endpoint_id, timestamp, status, status_code, response_time_ms, details
FROM status_history WHERE endpoint_id = ? AND timestamp < ?
ORDER BY timestamp DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, endpointID, before.UTC().Format(timeLayout))

	var rec models.HistoryRecord
	var ts string
	var status string
	var details sql.NullString
	err := row.Scan(&rec.EndpointID, &ts, &status, &rec.StatusCode, &rec.ResponseTimeMS, &details)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query previous record: %w", err)
	}
	rec.Status = models.Status(status)
	rec.Details = details.String
	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	return &rec, nil
}

// Range returns all records within [start, end], ascending. No row cap:
// callers may request arbitrarily long windows.
func (s *Store) Range(ctx context.Context, endpointID string, start, end time.Time) ([]models.HistoryPoint, error) {
	if !s.Ready() {
		return nil, storage.ErrUnavailable
	}
	query := `SELECT timestamp, status, response_time_ms
FROM status_history WHERE endpoint_id = ? AND timestamp >= ? AND timestamp <= ?
ORDER BY timestamp ASC`
	rows, err := s.db.QueryContext(ctx, query, endpointID,
		start.UTC().Format(timeLayout), end.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query history range: %w", err)
	}
	defer rows.Close()

	var points []models.HistoryPoint
	for rows.Next() {
		var p models.HistoryPoint
		var ts, status string
		if err := rows.Scan(&ts, &status, &p.ResponseTimeMS); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		p.Status = models.Status(status)
		p.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		points = append(points, p)
	}
	return points, rows.Err()
}

// DistinctEndpointIDs returns every endpoint id ever recorded.
func (s *Store) DistinctEndpointIDs(ctx context.Context) ([]string, error) {
	if !s.Ready() {
		return nil, storage.ErrUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT endpoint_id FROM status_history ORDER BY endpoint_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query distinct endpoint ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Purge deletes all records for an endpoint id.
func (s *Store) Purge(ctx context.Context, endpointID string) (bool, error) {
	if !s.Ready() {
		return false, storage.ErrUnavailable
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM status_history WHERE endpoint_id = ?`, endpointID)
	if err != nil {
		return false, fmt.Errorf("failed to purge history: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
