package notify

import (
	"strings"

	"github.com/radiusdt/storefront-notify/internal/models"
)

// FallbackName is used when a user has neither a name nor an email.
const FallbackName = "Cliente"

var placeholders = []string{"{first_name}", "{name}"}

// DisplayName is the first word of the user's name, else the local part of
// their email, else FallbackName.
func DisplayName(u *models.User) string {
	if u == nil {
		return FallbackName
	}
	if fields := strings.Fields(u.Name); len(fields) > 0 {
		return fields[0]
	}
	if local, _, ok := strings.Cut(strings.TrimSpace(u.Email), "@"); ok && local != "" {
		return local
	}
	return FallbackName
}

// Personalize substitutes the name placeholders in text.
func Personalize(text, name string) string {
	if !strings.Contains(text, "{") {
		return text
	}
	pairs := make([]string, 0, len(placeholders)*2)
	for _, p := range placeholders {
		pairs = append(pairs, p, name)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
