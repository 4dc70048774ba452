package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/storefront-notify/internal/geo"
	"github.com/radiusdt/storefront-notify/internal/metrics"
	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"go.uber.org/zap"
)

// TransparentPixel is a 1x1 transparent GIF.
var TransparentPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// ErrInvalidEvent is returned for site events missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

// Client describes who made a tracking request.
type Client struct {
	IP  string
	UA  string
	Ref string
}

// Tracker records engagement: email opens and clicks from the public
// endpoints, and site events from the authenticated ingestion endpoint.
type Tracker struct {
	notifications storage.NotificationStore
	events        storage.EventStore
	geo           *geo.Resolver
	bestEffort    *BestEffort
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

func NewTracker(
	notifications storage.NotificationStore,
	events storage.EventStore,
	resolver *geo.Resolver,
	bestEffort *BestEffort,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		notifications: notifications,
		events:        events,
		geo:           resolver,
		bestEffort:    bestEffort,
		metrics:       m,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// ValidNotificationID reports whether nid can reference a notification.
func ValidNotificationID(nid string) bool {
	if nid == "" {
		return false
	}
	_, err := uuid.Parse(nid)
	return err == nil
}

// RecordOpen counts an email pixel hit. Invalid ids record nothing.
func (t *Tracker) RecordOpen(ctx context.Context, nid string, c Client) {
	if !ValidNotificationID(nid) {
		return
	}
	user := t.increment(ctx, "open.increment", nid, t.notifications.IncrementOpen)
	t.append(ctx, "open.append", &models.NotificationEvent{
		UserID:         user,
		NotificationID: &nid,
		Type:           models.EventEmailOpen,
		Ref:            c.Ref,
		UA:             c.UA,
		IP:             c.IP,
		Meta:           t.baseMeta(c.IP, nil),
	})
}

// RecordClick counts an email link click. target is the destination the
// visitor is redirected to.
func (t *Tracker) RecordClick(ctx context.Context, nid, target, campaign string, c Client) {
	if !ValidNotificationID(nid) {
		return
	}
	user := t.increment(ctx, "click.increment", nid, t.notifications.IncrementClick)

	var meta map[string]any
	if campaign != "" {
		meta = map[string]any{"utm_campaign": campaign}
	}
	t.append(ctx, "click.append", &models.NotificationEvent{
		UserID:         user,
		NotificationID: &nid,
		Type:           models.EventEmailClick,
		URL:            target,
		Ref:            c.Ref,
		UA:             c.UA,
		IP:             c.IP,
		Meta:           t.baseMeta(c.IP, meta),
	})
}

// RecordSiteEvent stores a storefront event for userID. A click carrying a
// resolvable notification also bumps that notification's click counter, so a
// visitor arriving via the email redirect and clicking again is counted twice.
func (t *Tracker) RecordSiteEvent(ctx context.Context, userID string, req models.TrackRequest, c Client) error {
	if req.SessionID == "" || req.Type == "" {
		return fmt.Errorf("%w: sessionId and type are required", ErrInvalidEvent)
	}
	if !req.Type.SiteEvent() {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidEvent, req.Type)
	}

	var nid *string
	if req.NotificationID != "" {
		id := req.NotificationID
		nid = &id
		if req.Type == models.EventClick && ValidNotificationID(id) {
			t.increment(ctx, "site.increment", id, t.notifications.IncrementClick)
		}
	}

	uid := userID
	e := &models.NotificationEvent{
		ID:             uuid.NewString(),
		UserID:         &uid,
		NotificationID: nid,
		SessionID:      req.SessionID,
		Type:           req.Type,
		Path:           req.Path,
		URL:            req.URL,
		Ref:            req.Ref,
		UA:             c.UA,
		IP:             c.IP,
		Meta:           t.baseMeta(c.IP, req.Meta),
		TS:             t.now(),
	}
	if err := t.events.Append(ctx, e); err != nil {
		return fmt.Errorf("failed to record site event: %w", err)
	}
	if t.metrics != nil {
		t.metrics.RecordTrackingEvent(string(e.Type))
	}
	return nil
}

// increment bumps a counter and returns the recipient, or nil when the
// notification is unknown or the write failed.
func (t *Tracker) increment(ctx context.Context, op, nid string, inc func(context.Context, string) (string, error)) *string {
	user, ok := Attempt(t.bestEffort, ctx, op, func(ctx context.Context) (string, error) {
		u, err := inc(ctx, nid)
		if errors.Is(err, storage.ErrNotFound) {
			t.logger.Debug("tracking hit for unknown notification", zap.String("nid", nid))
			return "", nil
		}
		return u, err
	})
	if !ok || user == "" {
		return nil
	}
	return &user
}

func (t *Tracker) append(ctx context.Context, op string, e *models.NotificationEvent) {
	e.ID = uuid.NewString()
	e.TS = t.now()
	if t.bestEffort.Do(ctx, op, func(ctx context.Context) error { return t.events.Append(ctx, e) }) && t.metrics != nil {
		t.metrics.RecordTrackingEvent(string(e.Type))
	}
}

// baseMeta copies meta and adds the caller's location when known.
func (t *Tracker) baseMeta(ip string, meta map[string]any) map[string]any {
	info := t.geo.Resolve(ip)
	if info == nil {
		return meta
	}
	out := make(map[string]any, len(meta)+2)
	for k, v := range meta {
		out[k] = v
	}
	out["country"] = info.CountryCode
	if info.City != "" {
		out["city"] = info.City
	}
	return out
}
