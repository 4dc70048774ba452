package notify

import (
	"testing"

	"github.com/radiusdt/storefront-notify/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user *models.User
		want string
	}{
		{"full name", &models.User{Name: "Ana Souza", Email: "ana@x.com"}, "Ana"},
		{"padded name", &models.User{Name: "  Bia  "}, "Bia"},
		{"email only", &models.User{Email: "joao@x.com"}, "joao"},
		{"blank name falls back to email", &models.User{Name: "   ", Email: "carla.m@x.com"}, "carla.m"},
		{"nothing", &models.User{}, FallbackName},
		{"nil", nil, FallbackName},
		{"malformed email", &models.User{Email: "@x.com"}, FallbackName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.user))
		})
	}
}

func TestPersonalize(t *testing.T) {
	tmpl := "Oi {first_name}, aproveite!"
	assert.Equal(t, "Oi Ana, aproveite!", Personalize(tmpl, DisplayName(&models.User{Name: "Ana Souza"})))
	assert.Equal(t, "Oi joao, aproveite!", Personalize(tmpl, DisplayName(&models.User{Email: "joao@x.com"})))
	assert.Equal(t, "{name} e {name}", Personalize("{name} e {name}", "{name}"))
	assert.Equal(t, "Ana e Ana", Personalize("{name} e {first_name}", "Ana"))
	assert.Equal(t, "sem marcador", Personalize("sem marcador", "Ana"))
}

func TestCTALabel(t *testing.T) {
	tests := map[string]string{
		"Cupom relâmpago":              CTACoupon,
		"20% em tudo":                  CTACoupon,
		"Black Friday: 50 OFF":         CTACoupon,
		"Últimas unidades":             CTAOutlet,
		"Novidades no outlet":          CTAOutlet,
		"Tênis novos chegaram":         "Ver Tênis",
		"Coleção de vestidos de verão": "Ver Vestidos",
		"Moda feminina":                "Ver Feminino",
		"Chegou a nova coleção":        CTADefault,
		"Café offline":                 CTADefault,
		"":                             CTADefault,
	}
	for title, want := range tests {
		assert.Equal(t, want, CTALabel(title), title)
	}
}
