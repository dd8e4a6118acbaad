package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// advisoryClassID namespaces this store's PostgreSQL advisory locks. The
// value is arbitrary but must be consistent across all writer instances.
const advisoryClassID = int32(7_431_002)

// Schema creates the trust_events table. Run once at startup.
const Schema = `
CREATE TABLE IF NOT EXISTS trust_events (
	event_id    TEXT PRIMARY KEY,
	event_date  TEXT NOT NULL,
	agent_id    TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL,
	payload     JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS trust_events_date_idx ON trust_events (event_date, recorded_at);
CREATE INDEX IF NOT EXISTS trust_events_agent_idx ON trust_events (agent_id, recorded_at DESC);
`

// PostgresStore persists trust events to PostgreSQL. It implements Store.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore creates a PostgresStore backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// EnsureSchema creates the backing table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure trust_events schema: %w", err)
	}
	return nil
}

// partitionLockKey derives a stable advisory-lock key for a date partition,
// so concurrent appends to the same day are serialised while different days
// proceed in parallel.
func partitionLockKey(date string) int32 {
	h := fnv.New32a()
	h.Write([]byte(date))
	return int32(h.Sum32())
}

// Append implements Store. It takes a transaction-scoped advisory lock on
// the event's date partition and inserts the signed record.
func (s *PostgresStore) Append(ctx context.Context, e *TrustEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		"SELECT pg_advisory_xact_lock($1, $2)",
		advisoryClassID, partitionLockKey(e.Date()),
	); err != nil {
		return fmt.Errorf("acquire partition lock: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO trust_events (event_id, event_date, agent_id, recorded_at, payload)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.EventID, e.Date(), e.AgentID, time.Now().UTC(), payload,
	); err != nil {
		return fmt.Errorf("insert trust event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit trust event: %w", err)
	}

	s.logger.Debug("trust event appended",
		zap.String("event_id", e.EventID),
		zap.String("date", e.Date()),
		zap.String("agent_id", e.AgentID),
	)
	return nil
}

// GetByID implements Store.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*TrustEvent, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		"SELECT payload FROM trust_events WHERE event_id = $1", id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get trust event %s: %w", id, err)
	}

	e := &TrustEvent{}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("decode trust event %s: %w", id, err)
	}
	return e, nil
}

// ScanByDate implements Store. Rows are streamed in append order; the whole
// partition is never materialised in memory.
func (s *PostgresStore) ScanByDate(ctx context.Context, date string, fn func(*TrustEvent) error) error {
	rows, err := s.pool.Query(ctx,
		"SELECT payload FROM trust_events WHERE event_date = $1 ORDER BY recorded_at ASC", date,
	)
	if err != nil {
		return fmt.Errorf("scan partition %s: %w", date, err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return fmt.Errorf("scan event row: %w", err)
		}
		e := &TrustEvent{}
		if err := json.Unmarshal(payload, e); err != nil {
			return fmt.Errorf("decode event row: %w", err)
		}
		if err := fn(e); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return rows.Err()
}

// Dates implements Store.
func (s *PostgresStore) Dates(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT DISTINCT event_date FROM trust_events ORDER BY event_date DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	defer rows.Close()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan partition date: %w", err)
		}
		dates = append(dates, d)
	}
	return dates, rows.Err()
}
