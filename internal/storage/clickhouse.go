package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/google/uuid"
	"github.com/radiusdt/storefront-notify/internal/models"
)

// ClickHouseEventStore implements EventStore on a MergeTree table ordered for
// session scans. Null user and notification references are stored as ''.
type ClickHouseEventStore struct {
	conn driver.Conn
}

func NewClickHouseEventStore(conn driver.Conn) *ClickHouseEventStore {
	return &ClickHouseEventStore{conn: conn}
}

// InitSchema creates the events table.
func (s *ClickHouseEventStore) InitSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS notification_events (
		id String,
		seq UInt64,
		user_id String,
		notification_id String,
		session_id String,
		type LowCardinality(String),
		path String,
		url String,
		ref String,
		meta String,
		ua String,
		ip String,
		ts DateTime64(3, 'UTC')
	) ENGINE = MergeTree
	PARTITION BY toYYYYMM(ts)
	ORDER BY (user_id, session_id, ts, seq)
	`
	if err := s.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create notification_events table: %w", err)
	}
	return nil
}

func (s *ClickHouseEventStore) Append(ctx context.Context, e *models.NotificationEvent) error {
	return s.AppendBatch(ctx, []*models.NotificationEvent{e})
}

// AppendBatch inserts events in a single block.
func (s *ClickHouseEventStore) AppendBatch(ctx context.Context, events []*models.NotificationEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO notification_events")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, e := range events {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.TS.IsZero() {
			e.TS = time.Now().UTC()
		}
		if e.Seq == 0 {
			e.Seq = time.Now().UnixNano()
		}
		meta := "{}"
		if len(e.Meta) > 0 {
			b, err := json.Marshal(e.Meta)
			if err != nil {
				return fmt.Errorf("failed to encode event meta: %w", err)
			}
			meta = string(b)
		}
		if err := batch.Append(
			e.ID,
			uint64(e.Seq),
			models.Deref(e.UserID),
			models.Deref(e.NotificationID),
			e.SessionID,
			string(e.Type),
			e.Path,
			e.URL,
			e.Ref,
			meta,
			e.UA,
			e.IP,
			e.TS,
		); err != nil {
			return fmt.Errorf("failed to append event to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

func (s *ClickHouseEventStore) CountByDay(ctx context.Context, since time.Time) ([]models.DayTypeCount, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT formatDateTime(toStartOfDay(ts, 'UTC'), '%Y-%m-%d') AS day, type, count() AS c
		FROM notification_events
		WHERE ts >= ?
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
			day, typ string
			count    uint64
		)
		if err := rows.Scan(&day, &typ, &count); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		out = append(out, models.DayTypeCount{Day: day, Type: models.EventType(typ), Count: int64(count)})
	}
	return out, rows.Err()
}

func (s *ClickHouseEventStore) ScanSessions(ctx context.Context, f models.EventFilter, fn func(*models.NotificationEvent) error) error {
	rows, err := s.conn.Query(ctx, `
		SELECT id, seq, user_id, notification_id, session_id, type, path, url, ref, meta, ua, ip, ts
		FROM notification_events
		WHERE user_id != '' AND ts >= ? AND (? = '' OR user_id = ?)
		ORDER BY user_id, session_id, ts, seq
	`, f.Since, f.UserID, f.UserID)
	if err != nil {
		return fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e                    models.NotificationEvent
			seq                  uint64
			userID, nid, typ, mj string
		)
		if err := rows.Scan(&e.ID, &seq, &userID, &nid, &e.SessionID, &typ,
			&e.Path, &e.URL, &e.Ref, &mj, &e.UA, &e.IP, &e.TS); err != nil {
			return fmt.Errorf("failed to scan event: %w", err)
		}
		e.Seq = int64(seq)
		e.UserID = models.StringPtr(userID)
		e.NotificationID = models.StringPtr(nid)
		e.Type = models.EventType(typ)
		if mj != "" && mj != "{}" {
			_ = json.Unmarshal([]byte(mj), &e.Meta)
		}
		if err := fn(&e); err != nil {
			return err
		}
	}
	return rows.Err()
}
