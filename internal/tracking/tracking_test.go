package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/storefront-notify/internal/geo"
	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenNotifications struct {
	storage.NotificationStore
}

func (brokenNotifications) IncrementOpen(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}

func (brokenNotifications) IncrementClick(context.Context, string) (string, error) {
	panic("driver bug")
}

type brokenEvents struct {
	storage.InMemoryEventStore
}

func (*brokenEvents) Append(context.Context, *models.NotificationEvent) error {
	return errors.New("disk full")
}

type staticGeo struct{}

func (staticGeo) Lookup(string) (*geo.Info, error) {
	return &geo.Info{CountryCode: "BR", City: "Recife"}, nil
}

func setupTracker(t *testing.T) (*Tracker, *storage.InMemoryNotificationStore, *storage.InMemoryEventStore, string) {
	t.Helper()
	ns := storage.NewInMemoryNotificationStore()
	es := storage.NewInMemoryEventStore()
	nid := uuid.NewString()
	require.NoError(t, ns.CreateMany(context.Background(), []*models.Notification{{
		ID: nid, UserID: "u1", Title: "t", Type: models.TypePromo, Audience: models.AudienceList,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}}))
	logger := zap.NewNop()
	tr := NewTracker(ns, es, nil, NewBestEffort(logger, nil, time.Second), nil, logger)
	return tr, ns, es, nid
}

func collect(t *testing.T, es *storage.InMemoryEventStore) []*models.NotificationEvent {
	t.Helper()
	var out []*models.NotificationEvent
	require.NoError(t, es.ScanSessions(context.Background(), models.EventFilter{}, func(e *models.NotificationEvent) error {
		out = append(out, e)
		return nil
	}))
	return out
}

func TestRecordOpenCountsEveryHit(t *testing.T) {
	tr, ns, es, nid := setupTracker(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		tr.RecordOpen(ctx, nid, Client{IP: "1.2.3.4", UA: "Mail"})
	}

	n, err := ns.Get(ctx, nid)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n.OpenCount)

	events := collect(t, es)
	require.Len(t, events, 4)
	for _, e := range events {
		assert.Equal(t, models.EventEmailOpen, e.Type)
		assert.Equal(t, "u1", *e.UserID)
		assert.Equal(t, nid, *e.NotificationID)
	}
}

func TestRecordOpenUnknownNotification(t *testing.T) {
	tr, _, es, _ := setupTracker(t)
	ctx := context.Background()

	tr.RecordOpen(ctx, uuid.NewString(), Client{})
	tr.RecordOpen(ctx, "not-a-uuid", Client{})

	assert.Equal(t, 1, es.Len())
	assert.Empty(t, collect(t, es), "event without a user is not part of any session")
}

func TestRecordClick(t *testing.T) {
	tr, ns, es, nid := setupTracker(t)
	ctx := context.Background()

	tr.RecordClick(ctx, nid, "https://loja.com/p/1", "cupom", Client{IP: "1.2.3.4"})

	n, _ := ns.Get(ctx, nid)
	assert.EqualValues(t, 1, n.ClickCount)
	events := collect(t, es)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventEmailClick, events[0].Type)
	assert.Equal(t, "https://loja.com/p/1", events[0].URL)
	assert.Equal(t, "cupom", events[0].Meta["utm_campaign"])
}

func TestTrackingSurvivesStoreFailures(t *testing.T) {
	logger := zap.NewNop()
	es := &brokenEvents{}
	tr := NewTracker(brokenNotifications{}, es, nil, NewBestEffort(logger, nil, time.Second), nil, logger)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		tr.RecordOpen(ctx, uuid.NewString(), Client{})
		tr.RecordClick(ctx, uuid.NewString(), "https://loja.com", "", Client{})
	})
}

func TestRecordSiteEvent(t *testing.T) {
	tr, ns, es, nid := setupTracker(t)
	tr.geo = geo.NewResolver(staticGeo{}, 10, time.Minute, nil)
	ctx := context.Background()

	err := tr.RecordSiteEvent(ctx, "u1", models.TrackRequest{
		SessionID:      "s1",
		Type:           models.EventClick,
		Path:           "/produto/42",
		NotificationID: nid,
		Meta:           map[string]any{"button": "buy"},
	}, Client{IP: "200.1.1.1"})
	require.NoError(t, err)

	n, _ := ns.Get(ctx, nid)
	assert.EqualValues(t, 1, n.ClickCount)

	events := collect(t, es)
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, "s1", e.SessionID)
	assert.Equal(t, "/produto/42", e.Path)
	assert.Equal(t, "buy", e.Meta["button"])
	assert.Equal(t, "BR", e.Meta["country"])
	assert.True(t, e.FromNotification())
}

func TestRecordSiteEventValidation(t *testing.T) {
	tr, _, es, _ := setupTracker(t)
	ctx := context.Background()

	tests := []models.TrackRequest{
		{Type: models.EventView},
		{SessionID: "s1"},
		{SessionID: "s1", Type: models.EventEmailOpen},
		{SessionID: "s1", Type: "scroll"},
	}
	for _, req := range tests {
		err := tr.RecordSiteEvent(ctx, "u1", req, Client{})
		assert.ErrorIs(t, err, ErrInvalidEvent)
	}
	assert.Zero(t, es.Len())
}

func TestRecordSiteViewDoesNotTouchCounters(t *testing.T) {
	tr, ns, _, nid := setupTracker(t)
	ctx := context.Background()

	require.NoError(t, tr.RecordSiteEvent(ctx, "u1", models.TrackRequest{
		SessionID: "s1", Type: models.EventView, NotificationID: nid,
	}, Client{}))

	n, _ := ns.Get(ctx, nid)
	assert.Zero(t, n.ClickCount)
	assert.Zero(t, n.OpenCount)
}
