package analytics

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

func newService(ns storage.NotificationStore, es storage.EventStore, users storage.UserDirectory, cache Cache) *Service {
	s := NewService(ns, es, users, cache, nil, zap.NewNop())
	s.now = func() time.Time { return fixedNow }
	return s
}

func ptr(s string) *string { return &s }

func TestClampDays(t *testing.T) {
	assert.Equal(t, 30, ClampDays(0, 30, 180))
	assert.Equal(t, 1, ClampDays(-5, 30, 180))
	assert.Equal(t, 7, ClampDays(7, 30, 180))
	assert.Equal(t, 180, ClampDays(400, 30, 180))
}

func TestDailyStatsIsSparse(t *testing.T) {
	ctx := context.Background()
	ns := storage.NewInMemoryNotificationStore()
	es := storage.NewInMemoryEventStore()

	sentDay := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, ns.CreateMany(ctx, []*models.Notification{
		{ID: "n1", UserID: "u1", Title: "t", Audience: models.AudienceList, CreatedAt: sentDay},
		{ID: "n2", UserID: "u2", Title: "t", Audience: models.AudienceList, CreatedAt: sentDay},
	}))
	clickDay := time.Date(2024, 6, 12, 23, 59, 0, 0, time.UTC)
	require.NoError(t, es.Append(ctx, &models.NotificationEvent{Type: models.EventEmailClick, TS: clickDay}))
	require.NoError(t, es.Append(ctx, &models.NotificationEvent{UserID: ptr("u1"), SessionID: "s", Type: models.EventView, TS: sentDay}))
	require.NoError(t, es.Append(ctx, &models.NotificationEvent{Type: models.EventEmailOpen, TS: fixedNow.AddDate(0, 0, -60)}))

	report, err := newService(ns, es, nil, nil).DailyStats(ctx, 30)
	require.NoError(t, err)

	assert.Equal(t, 30, report.Days)
	assert.Equal(t, []models.DayStats{
		{Day: "2024-06-10", Sent: 2, SiteView: 1},
		{Day: "2024-06-12", EmailClick: 1},
	}, report.ByDay)
	assert.Equal(t, models.StatTotals{Sent: 2, SiteView: 1, EmailClick: 1}, report.Totals)
}

func TestDailyStatsEmpty(t *testing.T) {
	report, err := newService(storage.NewInMemoryNotificationStore(), storage.NewInMemoryEventStore(), nil, nil).
		DailyStats(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultDays, report.Days)
	assert.Empty(t, report.ByDay)
	assert.Zero(t, report.Totals)
}

func TestMergeDays(t *testing.T) {
	rows := MergeDays(
		[]models.DayCount{{Day: "2024-01-02", Count: 3}, {Day: "2024-01-01", Count: 0}},
		[]models.DayTypeCount{
			{Day: "2024-01-03", Type: models.EventPanelOpen, Count: 2},
			{Day: "2024-01-02", Type: models.EventClick, Count: 1},
			{Day: "2024-01-02", Type: "bogus", Count: 9},
		},
	)
	assert.Equal(t, []models.DayStats{
		{Day: "2024-01-02", Sent: 3, SiteClick: 1},
		{Day: "2024-01-03", PanelOpen: 2},
	}, rows)
}

func TestSessionsGroupingIgnoresInputOrder(t *testing.T) {
	base := fixedNow.Add(-time.Hour)
	events := []*models.NotificationEvent{
		{UserID: ptr("A"), SessionID: "s1", Type: models.EventView, Path: "/", TS: base.Add(1 * time.Second)},
		{UserID: ptr("A"), SessionID: "s2", Type: models.EventView, Path: "/outlet", TS: base.Add(2 * time.Second)},
		{UserID: ptr("A"), SessionID: "s1", Type: models.EventClick, TS: base.Add(3 * time.Second)},
	}

	for _, perm := range [][]int{{0, 1, 2}, {2, 1, 0}, {1, 2, 0}, {2, 0, 1}} {
		es := storage.NewInMemoryEventStore()
		for _, i := range perm {
			require.NoError(t, es.Append(context.Background(), events[i]))
		}
		users := storage.NewInMemoryUserDirectory(&models.User{ID: "A", Name: "Ana", Email: "ana@x.com"})

		report, err := newService(storage.NewInMemoryNotificationStore(), es, users, nil).Sessions(context.Background(), 1, "")
		require.NoError(t, err)
		require.Len(t, report.Sessions, 2)

		byID := map[string]models.SessionSummary{}
		for _, s := range report.Sessions {
			byID[s.SessionID] = s
			assert.Equal(t, "Ana", s.User.Name)
		}
		s1, s2 := byID["s1"], byID["s2"]
		assert.EqualValues(t, 2, s1.Events)
		assert.EqualValues(t, 1, s1.Counts[models.EventView])
		assert.EqualValues(t, 1, s1.Counts[models.EventClick])
		assert.Equal(t, []string{"/"}, s1.PageFlow)
		assert.Equal(t, base.Add(time.Second), s1.Start)
		assert.Equal(t, base.Add(3*time.Second), s1.Last)
		assert.EqualValues(t, 1, s2.Events)
		assert.Equal(t, []string{"/outlet"}, s2.PageFlow)

		assert.Equal(t, "s1", report.Sessions[0].SessionID, "most recent activity first")
	}
}

func TestSessionsFilterAndAttribution(t *testing.T) {
	ctx := context.Background()
	es := storage.NewInMemoryEventStore()
	at := fixedNow.Add(-time.Hour)
	require.NoError(t, es.Append(ctx, &models.NotificationEvent{UserID: ptr("A"), SessionID: "s1", Type: models.EventView, Ref: "email", TS: at}))
	require.NoError(t, es.Append(ctx, &models.NotificationEvent{UserID: ptr("B"), SessionID: "s1", Type: models.EventView, TS: at}))
	require.NoError(t, es.Append(ctx, &models.NotificationEvent{UserID: ptr("B"), SessionID: "s2", Type: models.EventPanelOpen, NotificationID: ptr("n1"), TS: at}))
	require.NoError(t, es.Append(ctx, &models.NotificationEvent{SessionID: "", Type: models.EventEmailOpen, TS: at}))

	svc := newService(storage.NewInMemoryNotificationStore(), es, storage.NewInMemoryUserDirectory(), nil)

	all, err := svc.Sessions(ctx, 7, "")
	require.NoError(t, err)
	assert.Len(t, all.Sessions, 3, "same session id under different users are different sessions")

	onlyB, err := svc.Sessions(ctx, 7, "B")
	require.NoError(t, err)
	require.Len(t, onlyB.Sessions, 2)
	for _, s := range onlyB.Sessions {
		assert.Equal(t, "B", s.User.ID)
		assert.Empty(t, s.User.Name)
		assert.Equal(t, s.SessionID == "s2", s.FromNotification)
	}

	onlyA, err := svc.Sessions(ctx, 7, "A")
	require.NoError(t, err)
	require.Len(t, onlyA.Sessions, 1)
	assert.True(t, onlyA.Sessions[0].FromNotification)
}

func TestGroupSessionsLargeShuffledInput(t *testing.T) {
	es := storage.NewInMemoryEventStore()
	base := fixedNow.Add(-2 * time.Hour)
	users := []string{"u1", "u2", "u3"}
	sessions := []string{"a", "b"}

	var events []*models.NotificationEvent
	for i := 0; i < 60; i++ {
		events = append(events, &models.NotificationEvent{
			UserID:    ptr(users[i%3]),
			SessionID: sessions[i%2],
			Type:      models.EventView,
			Path:      "/p",
			TS:        base.Add(time.Duration(i) * time.Second),
		})
	}
	rand.New(rand.NewSource(42)).Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })
	for _, e := range events {
		require.NoError(t, es.Append(context.Background(), e))
	}

	report, err := newService(storage.NewInMemoryNotificationStore(), es, nil, nil).Sessions(context.Background(), 1, "")
	require.NoError(t, err)
	require.Len(t, report.Sessions, 6)
	for _, s := range report.Sessions {
		assert.EqualValues(t, 10, s.Events)
		assert.Len(t, s.PageFlow, 10)
	}
}

func TestCampaigns(t *testing.T) {
	ctx := context.Background()
	ns := storage.NewInMemoryNotificationStore()
	require.NoError(t, ns.CreateMany(ctx, []*models.Notification{
		{ID: "1", UserID: "a", Title: "Black Friday", Body: "b", Audience: models.AudienceGlobal, CampaignID: ptr("c1"), OpenCount: 2, CreatedAt: fixedNow},
		{ID: "2", UserID: "b", Title: "Black Friday", Body: "b", Audience: models.AudienceGlobal, CampaignID: ptr("c1"), ClickCount: 1, CreatedAt: fixedNow},
		{ID: "3", UserID: "a", Title: "VIP", Audience: models.AudienceList, CampaignID: ptr("c2"), CreatedAt: fixedNow},
	}))

	out, err := newService(ns, storage.NewInMemoryEventStore(), nil, nil).Campaigns(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c1", out[0].CampaignID)
	assert.EqualValues(t, 2, out[0].Recipients)
	assert.EqualValues(t, 2, out[0].Opens)
	assert.EqualValues(t, 1, out[0].Clicks)
}

func TestRedisCache(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	cache := NewRedisCache(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	ns := storage.NewInMemoryNotificationStore()
	svc := newService(ns, storage.NewInMemoryEventStore(), nil, cache)

	require.NoError(t, ns.CreateMany(ctx, []*models.Notification{
		{ID: "1", UserID: "a", Title: "t", Audience: models.AudienceList, CreatedAt: fixedNow.Add(-time.Hour)},
	}))
	first, err := svc.DailyStats(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Totals.Sent)
	assert.True(t, mr.Exists("notify:analytics:stats:7"))

	require.NoError(t, ns.CreateMany(ctx, []*models.Notification{
		{ID: "2", UserID: "b", Title: "t", Audience: models.AudienceList, CreatedAt: fixedNow.Add(-time.Hour)},
	}))
	cached, err := svc.DailyStats(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cached.Totals.Sent, "served from cache")

	svc.Invalidate(ctx)
	assert.False(t, mr.Exists("notify:analytics:stats:7"))

	fresh, err := svc.DailyStats(ctx, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 2, fresh.Totals.Sent)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("notify:analytics:stats:7"))
}

func TestRedisCacheUnavailableIsMiss(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	cache := NewRedisCache(client, time.Minute, zap.NewNop())
	svc := newService(storage.NewInMemoryNotificationStore(), storage.NewInMemoryEventStore(), nil, cache)

	report, err := svc.DailyStats(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, report.ByDay)
	assert.NotPanics(t, func() { svc.Invalidate(context.Background()) })
}
