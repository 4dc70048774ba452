package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/storefront-notify/internal/models"
)

// PostgresEventStore implements EventStore using PostgreSQL.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

// NewPostgresEventStore creates a new PostgreSQL-backed event store.
func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

// Append stores one event. The seq column breaks ties between equal timestamps.
func (s *PostgresEventStore) Append(ctx context.Context, e *models.NotificationEvent) error {
	if e == nil {
		return nil
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TS.IsZero() {
		e.TS = time.Now().UTC()
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO notification_events
			(id, user_id, notification_id, session_id, type, path, url, ref, meta, ua, ip, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING seq
	`, e.ID, e.UserID, e.NotificationID, e.SessionID, string(e.Type), e.Path, e.URL, e.Ref,
		e.Meta, e.UA, e.IP, e.TS,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) CountByDay(ctx context.Context, since time.Time) ([]models.DayTypeCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(ts AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, type, count(*)
		FROM notification_events
		WHERE ts >= $1
		GROUP BY day, type
		ORDER BY day, type
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count events by day: %w", err)
	}
	defer rows.Close()

	var out []models.DayTypeCount
	for rows.Next() {
		var (
			dc  models.DayTypeCount
			typ string
		)
		if err := rows.Scan(&dc.Day, &typ, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		dc.Type = models.EventType(typ)
		out = append(out, dc)
	}
	return out, rows.Err()
}

// ScanSessions streams rows straight from the cursor so only the caller's
// current bucket is held in memory.
func (s *PostgresEventStore) ScanSessions(ctx context.Context, f models.EventFilter, fn func(*models.NotificationEvent) error) error {
	rows, err := s.pool.Query(ctx, `
		SELECT id, seq, user_id, notification_id, session_id, type, path, url, ref, meta, ua, ip, ts
		FROM notification_events
		WHERE user_id IS NOT NULL
			AND ts >= $1
			AND ($2::text = '' OR user_id = $2::text)
		ORDER BY user_id, session_id, ts, seq
	`, f.Since, f.UserID)
	if err != nil {
		return fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e   models.NotificationEvent
			typ string
		)
		if err := rows.Scan(&e.ID, &e.Seq, &e.UserID, &e.NotificationID, &e.SessionID, &typ,
			&e.Path, &e.URL, &e.Ref, &e.Meta, &e.UA, &e.IP, &e.TS); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = models.EventType(typ)
		if err := fn(&e); err != nil {
			return err
		}
	}
	return rows.Err()
}
