package tracking

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkBuilder(t *testing.T) {
	b := NewLinkBuilder("https://api.loja.com/", "https://loja.com")

	assert.Equal(t, "https://api.loja.com/api/notification/t/o?nid=abc", b.PixelURL("abc"))

	raw := b.RedirectURL("abc", "/produto/42?cor=azul", "Cupom Relâmpago: 20% OFF!")
	assert.Equal(t,
		"https://api.loja.com/api/notification/t/c?nid=abc&url=https%3A%2F%2Floja.com%2Fproduto%2F42%3Fcor%3Dazul&utm_source=email&utm_medium=notification&utm_campaign=cupom-relampago-20-off",
		raw)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "https://loja.com/produto/42?cor=azul", u.Query().Get("url"))
}

func TestAbsolute(t *testing.T) {
	b := NewLinkBuilder("https://api.loja.com", "https://loja.com/")
	assert.Equal(t, "https://loja.com/", b.Absolute(""))
	assert.Equal(t, "https://loja.com/outlet", b.Absolute("/outlet"))
	assert.Equal(t, "https://loja.com/outlet", b.Absolute("outlet"))
	assert.Equal(t, "https://other.com/x", b.Absolute("https://other.com/x"))
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Últimas peças no Outlet":   "ultimas-pecas-no-outlet",
		"  --Black   Friday!!-- ":   "black-friday",
		"":                          "notification",
		"🔥🔥":                        "notification",
		"Promoção de Verão 2024 ☀️": "promocao-de-verao-2024",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}

	long := Slugify("a very long campaign title that keeps going and going and going forever and ever")
	assert.LessOrEqual(t, len(long), 60)
	assert.NotEqual(t, '-', rune(long[len(long)-1]))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "ultimas unidades", Fold("ÚLTIMAS Unidades"))
	assert.Equal(t, "calcados", Fold("Calçados"))
}

func TestSafeRedirect(t *testing.T) {
	assert.Equal(t, "https://loja.com/p/1", SafeRedirect("https://loja.com/p/1"))
	assert.Equal(t, "/carrinho", SafeRedirect("/carrinho"))
	assert.Equal(t, "/", SafeRedirect(""))
	assert.Equal(t, "/", SafeRedirect("javascript:alert(1)"))
	assert.Equal(t, "/", SafeRedirect("//evil.com"))
}
