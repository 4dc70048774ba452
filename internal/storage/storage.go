package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/radiusdt/storefront-notify/internal/models"
)

// In-memory implementations, used in development when PostgreSQL is
// unreachable and by tests.

// InMemoryNotificationStore stores notifications in memory.
type InMemoryNotificationStore struct {
	mu    sync.RWMutex
	rows  map[string]*models.Notification
	order []string
}

func NewInMemoryNotificationStore() *InMemoryNotificationStore {
	return &InMemoryNotificationStore{
		rows: make(map[string]*models.Notification),
	}
}

func (s *InMemoryNotificationStore) CreateMany(_ context.Context, ns []*models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range ns {
		cp := *n
		if _, exists := s.rows[n.ID]; !exists {
			s.order = append(s.order, n.ID)
		}
		s.rows[n.ID] = &cp
	}
	return nil
}

func (s *InMemoryNotificationStore) Get(_ context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *InMemoryNotificationStore) List(_ context.Context, f models.NotificationFilter) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Notification
	for i := len(s.order) - 1; i >= 0; i-- {
		n, ok := s.rows[s.order[i]]
		if !ok {
			continue
		}
		if f.UserID != "" && n.UserID != f.UserID {
			continue
		}
		if f.CampaignID != "" && models.Deref(n.CampaignID) != f.CampaignID {
			continue
		}
		if f.UnreadOnly && n.ReadAt != nil {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if f.Offset >= len(out) {
		return []*models.Notification{}, nil
	}
	out = out[f.Offset:]
	if limit := normalizeLimit(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryNotificationStore) Update(_ context.Context, id string, p models.NotificationPatch) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Apply(n)
	n.UpdatedAt = time.Now().UTC()
	cp := *n
	return &cp, nil
}

func (s *InMemoryNotificationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[id]; !ok {
		return ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func (s *InMemoryNotificationStore) IncrementOpen(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return "", ErrNotFound
	}
	n.OpenCount++
	return n.UserID, nil
}

func (s *InMemoryNotificationStore) IncrementClick(_ context.Context, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok {
		return "", ErrNotFound
	}
	n.ClickCount++
	return n.UserID, nil
}

func (s *InMemoryNotificationStore) MarkRead(_ context.Context, userID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.rows[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	if n.ReadAt == nil {
		t := at.UTC()
		n.ReadAt = &t
	}
	return nil
}

func (s *InMemoryNotificationStore) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var updated int64
	t := at.UTC()
	for _, n := range s.rows {
		if n.UserID == userID && n.ReadAt == nil {
			n.ReadAt = &t
			updated++
		}
	}
	return updated, nil
}

func (s *InMemoryNotificationStore) CountUnread(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, n := range s.rows {
		if n.UserID == userID && n.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryNotificationStore) CountSentByDay(_ context.Context, since time.Time) ([]models.DayCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int64)
	for _, n := range s.rows {
		if n.CreatedAt.Before(since) {
			continue
		}
		counts[n.CreatedAt.UTC().Format(DayLayout)]++
	}
	out := make([]models.DayCount, 0, len(counts))
	for day, c := range counts {
		out = append(out, models.DayCount{Day: day, Count: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day < out[j].Day })
	return out, nil
}

func (s *InMemoryNotificationStore) CampaignRollup(_ context.Context) ([]models.CampaignSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[string]*models.CampaignSummary)
	var ids []string
	for _, id := range s.order {
		n, ok := s.rows[id]
		if !ok || n.Audience != models.AudienceGlobal || n.CampaignID == nil {
			continue
		}
		sum, ok := byID[*n.CampaignID]
		if !ok {
			sum = &models.CampaignSummary{
				CampaignID: *n.CampaignID,
				Title:      n.Title,
				Body:       n.Body,
				CreatedAt:  n.CreatedAt,
			}
			byID[*n.CampaignID] = sum
			ids = append(ids, *n.CampaignID)
		}
		sum.Recipients++
		sum.Opens += n.OpenCount
		sum.Clicks += n.ClickCount
	}

	out := make([]models.CampaignSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, *byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// InMemoryEventStore keeps the event log in insertion order.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events []*models.NotificationEvent
	seq    int64
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{}
}

func (s *InMemoryEventStore) Append(_ context.Context, e *models.NotificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	cp := *e
	cp.Seq = s.seq
	if cp.TS.IsZero() {
		cp.TS = time.Now().UTC()
	}
	s.events = append(s.events, &cp)
	return nil
}

func (s *InMemoryEventStore) CountByDay(_ context.Context, since time.Time) ([]models.DayTypeCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct {
		day string
		t   models.EventType
	}
	counts := make(map[key]int64)
	for _, e := range s.events {
		if e.TS.Before(since) {
			continue
		}
		counts[key{e.TS.UTC().Format(DayLayout), e.Type}]++
	}
	out := make([]models.DayTypeCount, 0, len(counts))
	for k, c := range counts {
		out = append(out, models.DayTypeCount{Day: k.day, Type: k.t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Day != out[j].Day {
			return out[i].Day < out[j].Day
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

func (s *InMemoryEventStore) ScanSessions(ctx context.Context, f models.EventFilter, fn func(*models.NotificationEvent) error) error {
	s.mu.RLock()
	selected := make([]*models.NotificationEvent, 0, len(s.events))
	for _, e := range s.events {
		if e.UserID == nil || e.TS.Before(f.Since) {
			continue
		}
		if f.UserID != "" && *e.UserID != f.UserID {
			continue
		}
		cp := *e
		selected = append(selected, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(selected, func(i, j int) bool {
		a, b := selected[i], selected[j]
		if c := strings.Compare(*a.UserID, *b.UserID); c != 0 {
			return c < 0
		}
		if a.SessionID != b.SessionID {
			return a.SessionID < b.SessionID
		}
		if !a.TS.Equal(b.TS) {
			return a.TS.Before(b.TS)
		}
		return a.Seq < b.Seq
	})

	for _, e := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored events.
func (s *InMemoryEventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// InMemoryUserDirectory is a fixed set of users.
type InMemoryUserDirectory struct {
	mu    sync.RWMutex
	users map[string]*models.User
	order []string
}

func NewInMemoryUserDirectory(users ...*models.User) *InMemoryUserDirectory {
	d := &InMemoryUserDirectory{users: make(map[string]*models.User)}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put adds or replaces a user.
func (d *InMemoryUserDirectory) Put(u *models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[u.ID]; !ok {
		d.order = append(d.order, u.ID)
	}
	cp := *u
	d.users[u.ID] = &cp
}

func (d *InMemoryUserDirectory) Get(_ context.Context, id string) (*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *InMemoryUserDirectory) GetMany(_ context.Context, ids []string) (map[string]*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (d *InMemoryUserDirectory) ListAll(_ context.Context) ([]*models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*models.User, 0, len(d.order))
	for _, id := range d.order {
		cp := *d.users[id]
		out = append(out, &cp)
	}
	return out, nil
}

// InMemoryProductDirectory is a fixed set of products.
type InMemoryProductDirectory struct {
	mu       sync.RWMutex
	products map[string]*models.Product
}

func NewInMemoryProductDirectory(products ...*models.Product) *InMemoryProductDirectory {
	d := &InMemoryProductDirectory{products: make(map[string]*models.Product)}
	for _, p := range products {
		cp := *p
		d.products[p.ID] = &cp
	}
	return d
}

func (d *InMemoryProductDirectory) Get(_ context.Context, id string) (*models.Product, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.products[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}
