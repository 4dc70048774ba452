package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/radiusdt/storefront-notify/internal/storage"
	"github.com/radiusdt/storefront-notify/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg *Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

type fixture struct {
	dispatcher    *Dispatcher
	notifications *storage.InMemoryNotificationStore
	mailer        *mockMailer
	invalidator   *countingInvalidator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	renderer, err := NewRenderer()
	require.NoError(t, err)

	users := storage.NewInMemoryUserDirectory(
		&models.User{ID: "a", Name: "Ana Souza", Email: "ana@x.com"},
		&models.User{ID: "b", Email: "joao@x.com"},
		&models.User{ID: "c", Name: "Caio"},
	)
	products := storage.NewInMemoryProductDirectory(&models.Product{ID: "p1", Name: "Tênis Runner", Price: 299.9})

	f := &fixture{
		notifications: storage.NewInMemoryNotificationStore(),
		mailer:        &mockMailer{},
		invalidator:   &countingInvalidator{},
	}
	f.dispatcher = NewDispatcher(Deps{
		Notifications: f.notifications,
		Users:         users,
		Products:      products,
		Mailer:        f.mailer,
		Renderer:      renderer,
		Links:         tracking.NewLinkBuilder("https://api.loja.com", "https://loja.com"),
		Invalidator:   f.invalidator,
		Logger:        zap.NewNop(),
		DefaultSender: "Loja",
		SiteURL:       "https://loja.com",
	})
	return f
}

func (f *fixture) rows(t *testing.T) []*models.Notification {
	t.Helper()
	rows, err := f.notifications.List(context.Background(), models.NotificationFilter{Limit: 200})
	require.NoError(t, err)
	return rows
}

func TestSendToUserList(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	res, err := f.dispatcher.Send(context.Background(), models.Campaign{
		Title:   "Oi {first_name}, cupom para você",
		Body:    "Use o código BEMVINDO",
		Target:  models.TargetUsers,
		UserIDs: []string{"a", "b", "c"},
		Link:    "/outlet",
	})
	require.NoError(t, err)

	assert.Equal(t, 3, res.CreatedCount)
	assert.Equal(t, 2, res.EmailsSent, "user c has no email")
	assert.Zero(t, res.EmailsFailed)
	assert.Equal(t, 1, f.invalidator.calls)

	rows := f.rows(t)
	require.Len(t, rows, 3)
	titles := map[string]string{}
	for _, n := range rows {
		require.NotNil(t, n.CampaignID)
		assert.Equal(t, res.CampaignID, *n.CampaignID)
		assert.Equal(t, models.AudienceList, n.Audience)
		assert.Equal(t, models.TypePromo, n.Type)
		assert.Equal(t, "Loja", n.Sender)
		assert.Equal(t, "/outlet", *n.Link)
		titles[n.UserID] = n.Title
	}
	assert.Equal(t, "Oi Ana, cupom para você", titles["a"])
	assert.Equal(t, "Oi joao, cupom para você", titles["b"])
	assert.Equal(t, "Oi Caio, cupom para você", titles["c"])

	var msg *Message
	for _, call := range f.mailer.Calls {
		if m := call.Arguments.Get(1).(*Message); m.To == "ana@x.com" {
			msg = m
		}
	}
	require.NotNil(t, msg)
	assert.Equal(t, "Oi Ana, cupom para você", msg.Subject)
	assert.Contains(t, msg.HTML, "https://api.loja.com/api/notification/t/o?nid="+msg.NotificationID)
	assert.Contains(t, msg.HTML, "Usar cupom agora")
	assert.Contains(t, msg.HTML, "utm_campaign=oi-first-name-cupom-para-voce")
	assert.Contains(t, msg.Text, "url=https%3A%2F%2Floja.com%2Foutlet")
	assert.Equal(t, res.CampaignID, msg.CampaignID)
}

func TestSendToAll(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	res, err := f.dispatcher.Send(context.Background(), models.Campaign{
		Title:     "Novidades",
		Type:      models.TypeTip,
		Target:    models.TargetAll,
		ProductID: "p1",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.CreatedCount)

	for _, n := range f.rows(t) {
		assert.Equal(t, models.AudienceGlobal, n.Audience)
		assert.Equal(t, models.TypeTip, n.Type)
		assert.Equal(t, "p1", *n.ProductID)
	}
	msg := f.mailer.Calls[0].Arguments.Get(1).(*Message)
	assert.Contains(t, msg.HTML, "Tênis Runner")
	assert.Contains(t, msg.HTML, "R$ 299,90")
}

func TestSendEmailFailureDoesNotStopBatch(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m *Message) bool { return m.To == "ana@x.com" })).
		Return(errors.New("throttled"))
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	res, err := f.dispatcher.Send(context.Background(), models.Campaign{
		Title:   "Oferta",
		Target:  models.TargetUsers,
		UserIDs: []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.CreatedCount)
	assert.Equal(t, 1, res.EmailsSent)
	assert.Equal(t, 1, res.EmailsFailed)
	assert.Len(t, f.rows(t), 2)
	f.mailer.AssertNumberOfCalls(t, "Send", 2)
}

func TestSendSkipsUnknownAndDuplicateIDs(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	res, err := f.dispatcher.Send(context.Background(), models.Campaign{
		Title:   "Oferta",
		Target:  models.TargetUsers,
		UserIDs: []string{"a", "ghost", "a", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.CreatedCount)
	assert.Equal(t, []string{"ghost"}, res.Skipped)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		c    models.Campaign
	}{
		{"missing title", models.Campaign{Title: "  ", Target: models.TargetAll}},
		{"empty user list", models.Campaign{Title: "x", Target: models.TargetUsers}},
		{"unknown target", models.Campaign{Title: "x", Target: "vip"}},
		{"unknown type", models.Campaign{Title: "x", Type: "alert", Target: models.TargetAll}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dispatcher.Send(context.Background(), tt.c)
			assert.ErrorIs(t, err, ErrInvalidCampaign)
		})
	}
	assert.Empty(t, f.rows(t))
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestPush(t *testing.T) {
	f := newFixture(t)
	f.mailer.On("Send", mock.Anything, mock.Anything).Return(nil)

	n, err := f.dispatcher.Push(context.Background(), models.Push{
		UserID: "a",
		Title:  "Seu pedido saiu para entrega, {name}",
		Type:   models.TypeSystem,
		Email:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, models.AudienceSingle, n.Audience)
	assert.Nil(t, n.CampaignID)
	assert.True(t, strings.HasSuffix(n.Title, "Ana"))
	f.mailer.AssertNumberOfCalls(t, "Send", 1)

	_, err = f.dispatcher.Push(context.Background(), models.Push{UserID: "ghost", Title: "x"})
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestRendererDefaultsAndEscaping(t *testing.T) {
	r, err := NewRenderer()
	require.NoError(t, err)

	htmlBody, text, err := r.Render(EmailView{
		Title:    "Promo <b>já</b>",
		Body:     "linha 1\nlinha 2",
		CTALabel: "Ver agora",
		CTAURL:   "https://api/t/c?nid=1&url=x",
		PixelURL: "https://api/t/o?nid=1",
	})
	require.NoError(t, err)
	assert.Contains(t, htmlBody, "Promo &lt;b&gt;já&lt;/b&gt;")
	assert.Contains(t, htmlBody, "linha 1<br>linha 2")
	assert.Contains(t, htmlBody, `href="https://api/t/c?nid=1&amp;url=x"`)
	assert.NotContains(t, htmlBody, "R$")
	assert.Contains(t, text, "Ver agora: https://api/t/c?nid=1&url=x")
}

func TestFormatBRL(t *testing.T) {
	assert.Equal(t, "R$ 0,99", formatBRL(0.99))
	assert.Equal(t, "R$ 1.234,50", formatBRL(1234.5))
	assert.Equal(t, "R$ 1.000.000,00", formatBRL(1e6))
}
