package storage

import (
	"context"
	"errors"
	"time"

	"github.com/radiusdt/storefront-notify/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// DayLayout formats UTC calendar days in aggregate results.
const DayLayout = "2006-01-02"

// =============================================
// NOTIFICATION STORE
// =============================================

// NotificationStore defines operations for notification storage.
type NotificationStore interface {
	// Basic CRUD
	CreateMany(ctx context.Context, ns []*models.Notification) error
	Get(ctx context.Context, id string) (*models.Notification, error)
	List(ctx context.Context, f models.NotificationFilter) ([]*models.Notification, error)
	Update(ctx context.Context, id string, p models.NotificationPatch) (*models.Notification, error)
	Delete(ctx context.Context, id string) error

	// Tracking counters. Both return the recipient of the notification or ErrNotFound.
	IncrementOpen(ctx context.Context, id string) (string, error)
	IncrementClick(ctx context.Context, id string) (string, error)

	// Inbox
	MarkRead(ctx context.Context, userID, id string, at time.Time) error
	MarkAllRead(ctx context.Context, userID string, at time.Time) (int64, error)
	CountUnread(ctx context.Context, userID string) (int64, error)

	// Aggregates
	CountSentByDay(ctx context.Context, since time.Time) ([]models.DayCount, error)
	CampaignRollup(ctx context.Context) ([]models.CampaignSummary, error)
}

// =============================================
// EVENT STORE
// =============================================

// EventStore is the append-only notification event log.
type EventStore interface {
	Append(ctx context.Context, e *models.NotificationEvent) error
	CountByDay(ctx context.Context, since time.Time) ([]models.DayTypeCount, error)

	// ScanSessions streams events with a non-null user ordered by
	// (user, session, ts, insertion order). Returning an error from fn stops the scan.
	ScanSessions(ctx context.Context, f models.EventFilter, fn func(*models.NotificationEvent) error) error
}

// =============================================
// DIRECTORIES (read-only collaborators)
// =============================================

// UserDirectory reads storefront accounts.
type UserDirectory interface {
	Get(ctx context.Context, id string) (*models.User, error)
	GetMany(ctx context.Context, ids []string) (map[string]*models.User, error)
	ListAll(ctx context.Context) ([]*models.User, error)
}

// ProductDirectory reads catalog items.
type ProductDirectory interface {
	Get(ctx context.Context, id string) (*models.Product, error)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
