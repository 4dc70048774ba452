package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/radiusdt/storefront-notify/internal/models"
)

// schema holds the tables owned by this service. users and products belong
// to the storefront and are only read.
const schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	sender      TEXT NOT NULL DEFAULT '',
	title       TEXT NOT NULL,
	body        TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL DEFAULT 'promo',
	icon        TEXT NOT NULL DEFAULT '',
	product_id  TEXT,
	link        TEXT,
	read_at     TIMESTAMPTZ,
	open_count  BIGINT NOT NULL DEFAULT 0,
	click_count BIGINT NOT NULL DEFAULT 0,
	campaign_id TEXT,
	audience    TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_campaign ON notifications (campaign_id) WHERE campaign_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_notifications_created ON notifications (created_at);

CREATE TABLE IF NOT EXISTS notification_events (
	id              TEXT PRIMARY KEY,
	seq             BIGSERIAL,
	user_id         TEXT,
	notification_id TEXT,
	session_id      TEXT NOT NULL DEFAULT '',
	type            TEXT NOT NULL,
	path            TEXT NOT NULL DEFAULT '',
	url             TEXT NOT NULL DEFAULT '',
	ref             TEXT NOT NULL DEFAULT '',
	meta            JSONB,
	ua              TEXT NOT NULL DEFAULT '',
	ip              TEXT NOT NULL DEFAULT '',
	ts              TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON notification_events (ts);
CREATE INDEX IF NOT EXISTS idx_events_session ON notification_events (user_id, session_id, ts, seq);
`

// Migrate creates the service's tables if they do not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// PostgresNotificationStore implements NotificationStore using PostgreSQL.
type PostgresNotificationStore struct {
	pool *pgxpool.Pool
}

// NewPostgresNotificationStore creates a new PostgreSQL-backed notification store.
func NewPostgresNotificationStore(pool *pgxpool.Pool) *PostgresNotificationStore {
	return &PostgresNotificationStore{pool: pool}
}

const notificationColumns = `id, user_id, sender, title, body, type, icon, product_id, link, read_at,
	open_count, click_count, campaign_id, audience, created_at, updated_at`

var notificationCopyColumns = []string{
	"id", "user_id", "sender", "title", "body", "type", "icon", "product_id", "link", "read_at",
	"open_count", "click_count", "campaign_id", "audience", "created_at", "updated_at",
}

// CreateMany bulk-inserts a dispatch batch with COPY.
func (s *PostgresNotificationStore) CreateMany(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"notifications"},
		notificationCopyColumns,
		pgx.CopyFromSlice(len(ns), func(i int) ([]any, error) {
			n := ns[i]
			return []any{
				n.ID, n.UserID, n.Sender, n.Title, n.Body, string(n.Type), n.Icon, n.ProductID, n.Link, n.ReadAt,
				n.OpenCount, n.ClickCount, n.CampaignID, string(n.Audience), n.CreatedAt, n.UpdatedAt,
			}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to insert notifications: %w", err)
	}
	return nil
}

func (s *PostgresNotificationStore) Get(ctx context.Context, id string) (*models.Notification, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return n, nil
}

func (s *PostgresNotificationStore) List(ctx context.Context, f models.NotificationFilter) ([]*models.Notification, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.CampaignID != "" {
		args = append(args, f.CampaignID)
		where = append(where, fmt.Sprintf("campaign_id = $%d", len(args)))
	}
	if f.UnreadOnly {
		where = append(where, "read_at IS NULL")
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, normalizeLimit(f.Limit), max(f.Offset, 0))
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []*models.Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Update applies an admin patch. Empty product or link strings clear the column.
func (s *PostgresNotificationStore) Update(ctx context.Context, id string, p models.NotificationPatch) (*models.Notification, error) {
	var typ *string
	if p.Type != nil {
		t := string(*p.Type)
		typ = &t
	}
	row := s.pool.QueryRow(ctx, `
		UPDATE notifications SET
			sender     = COALESCE($2, sender),
			title      = COALESCE($3, title),
			body       = COALESCE($4, body),
			type       = COALESCE($5, type),
			icon       = COALESCE($6, icon),
			product_id = CASE WHEN $7::text IS NULL THEN product_id ELSE NULLIF($7::text, '') END,
			link       = CASE WHEN $8::text IS NULL THEN link ELSE NULLIF($8::text, '') END,
			updated_at = now()
		WHERE id = $1
		RETURNING `+notificationColumns,
		id, p.Sender, p.Title, p.Body, typ, p.Icon, p.ProductID, p.Link,
	)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update notification: %w", err)
	}
	return n, nil
}

func (s *PostgresNotificationStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresNotificationStore) IncrementOpen(ctx context.Context, id string) (string, error) {
	return s.increment(ctx, "open_count", id)
}

func (s *PostgresNotificationStore) IncrementClick(ctx context.Context, id string) (string, error) {
	return s.increment(ctx, "click_count", id)
}

func (s *PostgresNotificationStore) increment(ctx context.Context, column, id string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx,
		`UPDATE notifications SET `+column+` = `+column+` + 1 WHERE id = $1 RETURNING user_id`, id,
	).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to increment %s: %w", column, err)
	}
	return userID, nil
}

func (s *PostgresNotificationStore) MarkRead(ctx context.Context, userID, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND user_id = $2
	`, id, userID, at)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresNotificationStore) MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET read_at = $2
		WHERE user_id = $1 AND read_at IS NULL
	`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresNotificationStore) CountUnread(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND read_at IS NULL`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread: %w", err)
	}
	return count, nil
}

func (s *PostgresNotificationStore) CountSentByDay(ctx context.Context, since time.Time) ([]models.DayCount, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*)
		FROM notifications
		WHERE created_at >= $1
		GROUP BY day
		ORDER BY day
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count sent by day: %w", err)
	}
	defer rows.Close()

	var out []models.DayCount
	for rows.Next() {
		var dc models.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan day count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// CampaignRollup groups global campaigns, taking title and body from the
// earliest row of each campaign.
func (s *PostgresNotificationStore) CampaignRollup(ctx context.Context) ([]models.CampaignSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT campaign_id,
			(array_agg(title ORDER BY created_at, id))[1],
			(array_agg(body ORDER BY created_at, id))[1],
			min(created_at),
			count(*),
			sum(open_count)::bigint,
			sum(click_count)::bigint
		FROM notifications
		WHERE audience = 'global' AND campaign_id IS NOT NULL
		GROUP BY campaign_id
		ORDER BY min(created_at) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to roll up campaigns: %w", err)
	}
	defer rows.Close()

	out := []models.CampaignSummary{}
	for rows.Next() {
		var c models.CampaignSummary
		if err := rows.Scan(&c.CampaignID, &c.Title, &c.Body, &c.CreatedAt, &c.Recipients, &c.Opens, &c.Clicks); err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanNotification(row pgx.Row) (*models.Notification, error) {
	var (
		n        models.Notification
		typ, aud string
	)
	err := row.Scan(
		&n.ID, &n.UserID, &n.Sender, &n.Title, &n.Body, &typ, &n.Icon, &n.ProductID, &n.Link, &n.ReadAt,
		&n.OpenCount, &n.ClickCount, &n.CampaignID, &aud, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	n.Type = models.NotificationType(typ)
	n.Audience = models.Audience(aud)
	return &n, nil
}

// =============================================
// DIRECTORIES
// =============================================

// PostgresUserDirectory reads the storefront's users table.
type PostgresUserDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresUserDirectory(pool *pgxpool.Pool) *PostgresUserDirectory {
	return &PostgresUserDirectory{pool: pool}
}

func (d *PostgresUserDirectory) Get(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := d.pool.QueryRow(ctx,
		`SELECT id, COALESCE(name, ''), COALESCE(email, '') FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// GetMany resolves ids in one round trip. Unknown ids are absent from the result.
func (d *PostgresUserDirectory) GetMany(ctx context.Context, ids []string) (map[string]*models.User, error) {
	out := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := d.pool.Query(ctx,
		`SELECT id, COALESCE(name, ''), COALESCE(email, '') FROM users WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out[u.ID] = &u
	}
	return out, rows.Err()
}

func (d *PostgresUserDirectory) ListAll(ctx context.Context) ([]*models.User, error) {
	rows, err := d.pool.Query(ctx, `SELECT id, COALESCE(name, ''), COALESCE(email, '') FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Email); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

// PostgresProductDirectory reads the storefront's products table.
type PostgresProductDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresProductDirectory(pool *pgxpool.Pool) *PostgresProductDirectory {
	return &PostgresProductDirectory{pool: pool}
}

func (d *PostgresProductDirectory) Get(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, COALESCE(category, ''), COALESCE(image_url, ''), COALESCE(price, 0)::float8
		FROM products WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.ImageURL, &p.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}
