package notify

import (
	"fmt"
	"html"
	"strings"

	"github.com/osteele/liquid"
)

const htmlLayout = `<!DOCTYPE html>
<html lang="pt-BR">
<head><meta charset="utf-8"><title>{{ title | escape }}</title></head>
<body style="margin:0;padding:0;background:#f4f4f5;font-family:Arial,sans-serif;">
<table role="presentation" width="100%" cellpadding="0" cellspacing="0">
<tr><td align="center" style="padding:24px;">
<table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background:#ffffff;border-radius:8px;">
<tr><td style="padding:24px;font-size:13px;color:#71717a;">{{ sender | escape }}</td></tr>
<tr><td style="padding:0 24px;"><h1 style="font-size:22px;color:#18181b;">{{ title | escape }}</h1></td></tr>
{% if product %}<tr><td style="padding:0 24px;">
{% if product.image %}<img src="{{ product.image }}" alt="{{ product.name | escape }}" width="552" style="display:block;border-radius:6px;">{% endif %}
<p style="font-size:15px;color:#18181b;"><strong>{{ product.name | escape }}</strong>{% if product.price %} · {{ product.price | brl }}{% endif %}</p>
</td></tr>{% endif %}
<tr><td style="padding:0 24px;font-size:15px;line-height:22px;color:#3f3f46;">{{ body | html_lines }}</td></tr>
<tr><td align="center" style="padding:24px;">
<a href="{{ cta_url | escape }}" style="background:#18181b;color:#ffffff;text-decoration:none;padding:12px 28px;border-radius:6px;display:inline-block;">{{ cta_label | escape }}</a>
</td></tr>
<tr><td style="padding:0 24px 24px;font-size:11px;color:#a1a1aa;">Você recebeu este email porque tem uma conta em <a href="{{ site_url }}" style="color:#a1a1aa;">{{ site_url }}</a>.</td></tr>
</table>
</td></tr>
</table>
<img src="{{ pixel_url | escape }}" width="1" height="1" alt="" style="display:block;border:0;">
</body>
</html>`

const textLayout = `{{ title }}

{{ body }}
{% if product %}
{{ product.name }}{% if product.price %} - {{ product.price | brl }}{% endif %}
{% endif %}
{{ cta_label }}: {{ cta_url }}
`

// EmailView is the data bound into the layouts.
type EmailView struct {
	Sender   string
	Title    string
	Body     string
	CTALabel string
	CTAURL   string
	PixelURL string
	SiteURL  string
	Product  *ProductView
}

type ProductView struct {
	Name  string
	Image string
	Price float64
}

func (v EmailView) bindings() map[string]any {
	b := map[string]any{
		"sender":    v.Sender,
		"title":     v.Title,
		"body":      v.Body,
		"cta_label": v.CTALabel,
		"cta_url":   v.CTAURL,
		"pixel_url": v.PixelURL,
		"site_url":  v.SiteURL,
	}
	// Liquid treats "" and 0 as truthy, so optional keys are omitted instead.
	if v.Product != nil {
		p := map[string]any{"name": v.Product.Name}
		if v.Product.Image != "" {
			p["image"] = v.Product.Image
		}
		if v.Product.Price > 0 {
			p["price"] = v.Product.Price
		}
		b["product"] = p
	}
	return b
}

// Renderer renders notification emails from the Liquid layouts, parsed once.
type Renderer struct {
	html *liquid.Template
	text *liquid.Template
}

func NewRenderer() (*Renderer, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("html_lines", func(s string) string {
		return strings.ReplaceAll(html.EscapeString(s), "\n", "<br>")
	})
	engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})
	engine.RegisterFilter("brl", formatBRL)

	htmlTpl, err := engine.ParseString(htmlLayout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html layout: %w", err)
	}
	textTpl, err := engine.ParseString(textLayout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text layout: %w", err)
	}
	return &Renderer{html: htmlTpl, text: textTpl}, nil
}

// Render returns the HTML and plain text bodies.
func (r *Renderer) Render(v EmailView) (string, string, error) {
	b := v.bindings()
	htmlOut, err := r.html.RenderString(b)
	if err != nil {
		return "", "", fmt.Errorf("failed to render html: %w", err)
	}
	textOut, err := r.text.RenderString(b)
	if err != nil {
		return "", "", fmt.Errorf("failed to render text: %w", err)
	}
	return htmlOut, strings.TrimSpace(textOut) + "\n", nil
}

// formatBRL renders 1234.5 as "R$ 1.234,50".
func formatBRL(v float64) string {
	cents := int64(v*100 + 0.5)
	whole, frac := cents/100, cents%100

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return fmt.Sprintf("R$ %s,%02d", b.String(), frac)
}
