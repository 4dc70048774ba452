package analytics

import (
	"github.com/radiusdt/storefront-notify/internal/models"
)

// sessionBuilder groups events that arrive sorted by (user, session, ts).
// A bucket closes as soon as the (user, session) key changes, so only one
// bucket is open at a time.
type sessionBuilder struct {
	cur     *models.SessionSummary
	curUser string
	out     []models.SessionSummary
}

func (b *sessionBuilder) add(e *models.NotificationEvent) {
	if e.UserID == nil {
		return
	}
	user := *e.UserID
	if b.cur == nil || user != b.curUser || e.SessionID != b.cur.SessionID {
		b.flush()
		b.curUser = user
		b.cur = &models.SessionSummary{
			User:      models.User{ID: user},
			SessionID: e.SessionID,
			Start:     e.TS,
			PageFlow:  []string{},
			Counts:    make(map[models.EventType]int64),
		}
	}

	s := b.cur
	if e.TS.Before(s.Start) {
		s.Start = e.TS
	}
	if e.TS.After(s.Last) {
		s.Last = e.TS
	}
	s.Events++
	s.Counts[e.Type]++
	if e.Type == models.EventView && e.Path != "" {
		s.PageFlow = append(s.PageFlow, e.Path)
	}
	if e.FromNotification() {
		s.FromNotification = true
	}
}

func (b *sessionBuilder) flush() {
	if b.cur != nil {
		b.out = append(b.out, *b.cur)
		b.cur = nil
	}
}

// finish closes the open bucket and returns all sessions in scan order.
func (b *sessionBuilder) finish() []models.SessionSummary {
	b.flush()
	if b.out == nil {
		return []models.SessionSummary{}
	}
	return b.out
}

// GroupSessions groups events already sorted by (user, session, ts).
func GroupSessions(events []*models.NotificationEvent) []models.SessionSummary {
	var b sessionBuilder
	for _, e := range events {
		b.add(e)
	}
	return b.finish()
}
