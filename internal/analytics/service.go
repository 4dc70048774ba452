package analytics

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/radiusdt/storefront-notify/internal/metrics"
	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultDays = 30
	MaxDays     = 180
)

// ClampDays bounds a requested window to [1, max]. Zero means the default.
func ClampDays(days, def, max int) int {
	switch {
	case days == 0:
		return def
	case days < 1:
		return 1
	case days > max:
		return max
	}
	return days
}

// Service builds the admin reports. All queries are plain reads; results may
// lag concurrent tracking writes.
type Service struct {
	notifications storage.NotificationStore
	events        storage.EventStore
	users         storage.UserDirectory
	cache         Cache
	metrics       *metrics.Metrics
	logger        *zap.Logger

	defaultDays int
	maxDays     int
	now         func() time.Time
}

func NewService(
	notifications storage.NotificationStore,
	events storage.EventStore,
	users storage.UserDirectory,
	cache Cache,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	return &Service{
		notifications: notifications,
		events:        events,
		users:         users,
		cache:         cache,
		metrics:       m,
		logger:        logger,
		defaultDays:   DefaultDays,
		maxDays:       MaxDays,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SetWindow overrides the default and maximum report windows.
func (s *Service) SetWindow(def, max int) {
	s.defaultDays, s.maxDays = def, max
}

// Invalidate drops cached reports.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

func (s *Service) window(days int) (int, time.Time) {
	days = ClampDays(days, s.defaultDays, s.maxDays)
	return days, s.now().Add(-time.Duration(days) * 24 * time.Hour)
}

// DailyStats counts notifications sent and events by type per UTC day.
// Days without any activity are omitted.
func (s *Service) DailyStats(ctx context.Context, days int) (*models.DailyReport, error) {
	days, since := s.window(days)
	key := "stats:" + strconv.Itoa(days)

	var cached models.DailyReport
	if s.cacheGet(ctx, "stats", key, &cached) {
		return &cached, nil
	}

	start := time.Now()
	sent, err := s.notifications.CountSentByDay(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count sent notifications: %w", err)
	}
	events, err := s.events.CountByDay(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}

	report := &models.DailyReport{
		Days:  days,
		Since: since,
		ByDay: MergeDays(sent, events),
	}
	for _, d := range report.ByDay {
		report.Totals.Add(d)
	}

	if s.metrics != nil {
		s.metrics.RecordAnalytics("stats", time.Since(start))
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, report)
	}
	return report, nil
}

// MergeDays combines per-day aggregates into sorted rows, one per active day.
func MergeDays(sent []models.DayCount, events []models.DayTypeCount) []models.DayStats {
	byDay := make(map[string]*models.DayStats)
	row := func(day string) *models.DayStats {
		r, ok := byDay[day]
		if !ok {
			r = &models.DayStats{Day: day}
			byDay[day] = r
		}
		return r
	}

	for _, s := range sent {
		if s.Count > 0 {
			row(s.Day).Sent += s.Count
		}
	}
	for _, e := range events {
		if e.Count > 0 && e.Type.Valid() {
			row(e.Day).Add(e.Type, e.Count)
		}
	}

	out := make([]models.DayStats, 0, len(byDay))
	for _, r := range byDay {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out
}

// Sessions reconstructs browsing sessions from the event log, optionally for
// a single user. User names and emails are resolved in one batch.
func (s *Service) Sessions(ctx context.Context, days int, userID string) (*models.SessionReport, error) {
	days, since := s.window(days)
	start := time.Now()

	var b sessionBuilder
	err := s.events.ScanSessions(ctx, models.EventFilter{Since: since, UserID: userID}, func(e *models.NotificationEvent) error {
		b.add(e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	sessions := b.finish()

	s.enrichUsers(ctx, sessions)
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].Last.After(sessions[j].Last) })

	if s.metrics != nil {
		s.metrics.RecordAnalytics("sessions", time.Since(start))
	}
	return &models.SessionReport{Days: days, Since: since, Sessions: sessions}, nil
}

// enrichUsers fills names and emails. Unknown or unreachable users keep only their id.
func (s *Service) enrichUsers(ctx context.Context, sessions []models.SessionSummary) {
	if len(sessions) == 0 || s.users == nil {
		return
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, ss := range sessions {
		if _, ok := seen[ss.User.ID]; !ok {
			seen[ss.User.ID] = struct{}{}
			ids = append(ids, ss.User.ID)
		}
	}

	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		s.logger.Warn("failed to resolve session users", zap.Int("users", len(ids)), zap.Error(err))
		return
	}
	for i := range sessions {
		if u, ok := users[sessions[i].User.ID]; ok {
			sessions[i].User = *u
		}
	}
}

// Campaigns rolls up global campaigns, newest first.
func (s *Service) Campaigns(ctx context.Context) ([]models.CampaignSummary, error) {
	const key = "campaigns"

	var cached []models.CampaignSummary
	if s.cacheGet(ctx, "campaigns", key, &cached) {
		return cached, nil
	}

	start := time.Now()
	out, err := s.notifications.CampaignRollup(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to roll up campaigns: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordAnalytics("campaigns", time.Since(start))
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, out)
	}
	return out, nil
}

func (s *Service) cacheGet(ctx context.Context, report, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	hit := s.cache.Get(ctx, key, dest)
	if s.metrics != nil {
		s.metrics.RecordCache(report, hit)
	}
	return hit
}
