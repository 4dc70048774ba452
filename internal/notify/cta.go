package notify

import (
	"strings"
	"unicode"

	"github.com/radiusdt/storefront-notify/internal/tracking"
)

const (
	CTACoupon  = "Usar cupom agora"
	CTAOutlet  = "Garantir no Outlet"
	CTADefault = "Ver agora"
)

// category maps folded keyword prefixes found in a title to the label shown
// in "Ver {Label}". Checked in order.
type category struct {
	prefixes []string
	label    string
}

var categories = []category{
	{[]string{"tenis"}, "Tênis"},
	{[]string{"calcado", "sapato", "sandalia", "bota"}, "Calçados"},
	{[]string{"vestido"}, "Vestidos"},
	{[]string{"camiseta", "camisa", "blusa"}, "Camisetas"},
	{[]string{"calca", "jeans", "bermuda", "short"}, "Calças"},
	{[]string{"bolsa", "mochila"}, "Bolsas"},
	{[]string{"acessorio", "oculos", "relogio", "bone"}, "Acessórios"},
	{[]string{"feminin"}, "Feminino"},
	{[]string{"masculin"}, "Masculino"},
	{[]string{"infantil", "kids"}, "Infantil"},
}

// CTALabel derives the email button label from the campaign title.
func CTALabel(title string) string {
	folded := tracking.Fold(title)
	words := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	has := func(targets ...string) bool {
		for _, w := range words {
			for _, t := range targets {
				if w == t {
					return true
				}
			}
		}
		return false
	}

	switch {
	case strings.Contains(folded, "%") || has("cupom", "cupons", "off"):
		return CTACoupon
	case has("outlet", "ultimas", "ultima"):
		return CTAOutlet
	}

	for _, c := range categories {
		for _, w := range words {
			for _, p := range c.prefixes {
				if strings.HasPrefix(w, p) {
					return "Ver " + c.label
				}
			}
		}
	}
	return CTADefault
}
