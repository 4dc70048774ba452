package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/storefront-notify/internal/metrics"
	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"github.com/radiusdt/storefront-notify/internal/tracking"
	"go.uber.org/zap"
)

var (
	ErrInvalidCampaign = errors.New("invalid campaign")
	ErrUnknownUser     = errors.New("unknown user")
)

// Invalidator drops cached reports after new notifications are written.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Dispatcher creates notification rows for a campaign's recipients and then
// emails each recipient.
type Dispatcher struct {
	notifications storage.NotificationStore
	users         storage.UserDirectory
	products      storage.ProductDirectory
	mailer        Mailer
	renderer      *Renderer
	links         *tracking.LinkBuilder
	invalidator   Invalidator
	metrics       *metrics.Metrics
	logger        *zap.Logger

	defaultSender string
	siteURL       string
	now           func() time.Time
}

// Deps groups the Dispatcher's collaborators. Products, Invalidator and Metrics may be nil.
type Deps struct {
	Notifications storage.NotificationStore
	Users         storage.UserDirectory
	Products      storage.ProductDirectory
	Mailer        Mailer
	Renderer      *Renderer
	Links         *tracking.LinkBuilder
	Invalidator   Invalidator
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
	DefaultSender string
	SiteURL       string
}

func NewDispatcher(d Deps) *Dispatcher {
	return &Dispatcher{
		notifications: d.Notifications,
		users:         d.Users,
		products:      d.Products,
		mailer:        d.Mailer,
		renderer:      d.Renderer,
		links:         d.Links,
		invalidator:   d.Invalidator,
		metrics:       d.Metrics,
		logger:        d.Logger,
		defaultSender: d.DefaultSender,
		siteURL:       d.SiteURL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

type content struct {
	sender, title, body, icon, link, productID, ctaLabel string
	typ                                                  models.NotificationType
}

// Send dispatches a campaign. Every created row shares one campaign id; email
// failures are logged and counted but never undo created rows.
func (d *Dispatcher) Send(ctx context.Context, c models.Campaign) (*models.DispatchResult, error) {
	start := time.Now()
	cnt, err := d.validate(c.Title, c.Type)
	if err != nil {
		return nil, err
	}
	cnt.sender = firstNonEmpty(c.Sender, d.defaultSender)
	cnt.body, cnt.icon, cnt.link, cnt.productID, cnt.ctaLabel = c.Body, c.Icon, c.Link, c.ProductID, c.CTALabel

	recipients, skipped, audience, err := d.recipients(ctx, c)
	if err != nil {
		return nil, err
	}

	campaignID := uuid.NewString()
	result := &models.DispatchResult{CampaignID: campaignID, Skipped: skipped}
	if len(recipients) == 0 {
		return result, nil
	}

	now := d.now()
	rows := make([]*models.Notification, 0, len(recipients))
	for _, u := range recipients {
		rows = append(rows, d.build(cnt, u, audience, &campaignID, now))
	}
	if err := d.notifications.CreateMany(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to create notifications: %w", err)
	}
	result.CreatedCount = len(rows)
	if d.metrics != nil {
		d.metrics.RecordNotificationsCreated(string(audience), len(rows))
	}
	if d.invalidator != nil {
		d.invalidator.Invalidate(ctx)
	}

	d.logger.Info("campaign created",
		zap.String("campaign_id", campaignID),
		zap.String("audience", string(audience)),
		zap.Int("recipients", len(rows)),
		zap.Int("skipped", len(skipped)),
	)

	// Rows are durable; delivery must not stop if the admin's request goes away.
	mailCtx := context.WithoutCancel(ctx)
	product := d.loadProduct(mailCtx, cnt.productID)
	for i, n := range rows {
		if d.deliver(mailCtx, n, recipients[i], cnt, product) {
			result.EmailsSent++
		} else if recipients[i].Email != "" {
			result.EmailsFailed++
		}
	}

	if d.metrics != nil {
		d.metrics.RecordDispatch(string(audience), time.Since(start))
	}
	d.logger.Info("campaign delivered",
		zap.String("campaign_id", campaignID),
		zap.Int("emails_sent", result.EmailsSent),
		zap.Int("emails_failed", result.EmailsFailed),
	)
	return result, nil
}

// Push creates a single ad hoc notification outside any campaign.
func (d *Dispatcher) Push(ctx context.Context, p models.Push) (*models.Notification, error) {
	cnt, err := d.validate(p.Title, p.Type)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.UserID) == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidCampaign)
	}
	cnt.sender = firstNonEmpty(p.Sender, d.defaultSender)
	cnt.body, cnt.icon, cnt.link, cnt.productID = p.Body, p.Icon, p.Link, p.ProductID

	u, err := d.users.Get(ctx, p.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, p.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	n := d.build(cnt, u, models.AudienceSingle, nil, d.now())
	if err := d.notifications.CreateMany(ctx, []*models.Notification{n}); err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	if d.metrics != nil {
		d.metrics.RecordNotificationsCreated(string(models.AudienceSingle), 1)
	}
	if d.invalidator != nil {
		d.invalidator.Invalidate(ctx)
	}

	if p.Email {
		mailCtx := context.WithoutCancel(ctx)
		d.deliver(mailCtx, n, u, cnt, d.loadProduct(mailCtx, cnt.productID))
	}
	return n, nil
}

func (d *Dispatcher) validate(title string, typ models.NotificationType) (content, error) {
	if strings.TrimSpace(title) == "" {
		return content{}, fmt.Errorf("%w: title is required", ErrInvalidCampaign)
	}
	if typ == "" {
		typ = models.TypePromo
	}
	if !typ.Valid() {
		return content{}, fmt.Errorf("%w: unknown type %q", ErrInvalidCampaign, typ)
	}
	return content{title: title, typ: typ}, nil
}

// recipients resolves the campaign target. Unknown ids in a user list are
// returned as skipped.
func (d *Dispatcher) recipients(ctx context.Context, c models.Campaign) ([]*models.User, []string, models.Audience, error) {
	switch c.Target {
	case models.TargetAll:
		users, err := d.users.ListAll(ctx)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to list users: %w", err)
		}
		return users, nil, models.AudienceGlobal, nil

	case models.TargetUsers:
		ids := dedupe(c.UserIDs)
		if len(ids) == 0 {
			return nil, nil, "", fmt.Errorf("%w: userIds is required when target is users", ErrInvalidCampaign)
		}
		found, err := d.users.GetMany(ctx, ids)
		if err != nil {
			return nil, nil, "", fmt.Errorf("failed to load users: %w", err)
		}
		users := make([]*models.User, 0, len(ids))
		var skipped []string
		for _, id := range ids {
			if u, ok := found[id]; ok {
				users = append(users, u)
			} else {
				skipped = append(skipped, id)
			}
		}
		return users, skipped, models.AudienceList, nil

	default:
		return nil, nil, "", fmt.Errorf("%w: target must be all or users", ErrInvalidCampaign)
	}
}

func (d *Dispatcher) build(c content, u *models.User, audience models.Audience, campaignID *string, now time.Time) *models.Notification {
	name := DisplayName(u)
	return &models.Notification{
		ID:         uuid.NewString(),
		UserID:     u.ID,
		Sender:     c.sender,
		Title:      Personalize(c.title, name),
		Body:       Personalize(c.body, name),
		Type:       c.typ,
		Icon:       c.icon,
		ProductID:  models.StringPtr(c.productID),
		Link:       models.StringPtr(c.link),
		CampaignID: campaignID,
		Audience:   audience,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// deliver emails one recipient. It reports whether a message was handed to the mailer.
func (d *Dispatcher) deliver(ctx context.Context, n *models.Notification, u *models.User, c content, product *ProductView) bool {
	if u.Email == "" {
		return false
	}
	label := c.ctaLabel
	if label == "" {
		label = CTALabel(c.title)
	}

	htmlBody, textBody, err := d.renderer.Render(EmailView{
		Sender:   n.Sender,
		Title:    n.Title,
		Body:     n.Body,
		CTALabel: label,
		CTAURL:   d.links.RedirectURL(n.ID, c.link, c.title),
		PixelURL: d.links.PixelURL(n.ID),
		SiteURL:  d.siteURL,
		Product:  product,
	})
	if err == nil {
		err = d.mailer.Send(ctx, &Message{
			To:             u.Email,
			Subject:        n.Title,
			HTML:           htmlBody,
			Text:           textBody,
			NotificationID: n.ID,
			CampaignID:     models.Deref(n.CampaignID),
		})
	}

	if d.metrics != nil {
		d.metrics.RecordEmail(err == nil)
	}
	if err != nil {
		d.logger.Warn("notification email failed",
			zap.String("notification_id", n.ID),
			zap.String("user_id", u.ID),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (d *Dispatcher) loadProduct(ctx context.Context, id string) *ProductView {
	if id == "" || d.products == nil {
		return nil
	}
	p, err := d.products.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			d.logger.Warn("failed to load product for email", zap.String("product_id", id), zap.Error(err))
		}
		return nil
	}
	return &ProductView{Name: p.Name, Image: p.ImageURL, Price: p.Price}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
