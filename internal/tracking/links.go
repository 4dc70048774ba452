package tracking

import (
	"net/url"
	"strings"
)

const (
	// RoutePrefix is where the notification API is mounted.
	RoutePrefix = "/api/notification"

	PixelPath    = RoutePrefix + "/t/o"
	RedirectPath = RoutePrefix + "/t/c"
)

// LinkBuilder builds the public tracking URLs embedded in emails.
type LinkBuilder struct {
	apiBase string
	siteURL string
}

func NewLinkBuilder(apiBase, siteURL string) *LinkBuilder {
	return &LinkBuilder{
		apiBase: strings.TrimRight(apiBase, "/"),
		siteURL: strings.TrimRight(siteURL, "/"),
	}
}

// PixelURL is {API_BASE}/api/notification/t/o?nid={id}.
func (b *LinkBuilder) PixelURL(nid string) string {
	q := url.Values{}
	q.Set("nid", nid)
	return b.apiBase + PixelPath + "?" + q.Encode()
}

// RedirectURL wraps link in the click redirect, tagging it with email UTM parameters.
func (b *LinkBuilder) RedirectURL(nid, link, title string) string {
	// url.Values.Encode sorts keys; the order here is kept for readability of emails.
	var sb strings.Builder
	sb.WriteString(b.apiBase)
	sb.WriteString(RedirectPath)
	sb.WriteString("?nid=")
	sb.WriteString(url.QueryEscape(nid))
	sb.WriteString("&url=")
	sb.WriteString(url.QueryEscape(b.Absolute(link)))
	sb.WriteString("&utm_source=email&utm_medium=notification&utm_campaign=")
	sb.WriteString(url.QueryEscape(Slugify(title)))
	return sb.String()
}

// Absolute resolves storefront-relative links against the site URL.
// An empty link points at the site root.
func (b *LinkBuilder) Absolute(link string) string {
	switch {
	case link == "":
		return b.siteURL + "/"
	case strings.HasPrefix(link, "http://"), strings.HasPrefix(link, "https://"):
		return link
	case strings.HasPrefix(link, "/"):
		return b.siteURL + link
	default:
		return b.siteURL + "/" + link
	}
}

// SafeRedirect returns target when it is an absolute http(s) URL or a
// site-relative path, and "/" otherwise.
func SafeRedirect(target string) string {
	if target == "" {
		return "/"
	}
	u, err := url.Parse(target)
	if err != nil {
		return "/"
	}
	if u.Scheme == "" && u.Host == "" && strings.HasPrefix(u.Path, "/") && !strings.HasPrefix(target, "//") {
		return target
	}
	if (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return target
	}
	return "/"
}
