package models

import (
	"time"
)

// NotificationType classifies a notification for display.
type NotificationType string

const (
	TypeTip    NotificationType = "tip"
	TypePromo  NotificationType = "promo"
	TypeSystem NotificationType = "system"
)

// Valid reports whether t is one of the known types.
func (t NotificationType) Valid() bool {
	switch t {
	case TypeTip, TypePromo, TypeSystem:
		return true
	}
	return false
}

// Audience records how a notification's recipient was selected.
type Audience string

const (
	AudienceGlobal Audience = "global"
	AudienceList   Audience = "list"
	AudienceSingle Audience = "single"
)

// Notification is one row per (campaign, recipient). OpenCount and ClickCount
// are cached aggregates of the email_open / email_click events that reference it.
type Notification struct {
	ID         string           `json:"id"`
	UserID     string           `json:"user"`
	Sender     string           `json:"sender"`
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	Type       NotificationType `json:"type"`
	Icon       string           `json:"icon,omitempty"`
	ProductID  *string          `json:"product,omitempty"`
	Link       *string          `json:"link,omitempty"`
	ReadAt     *time.Time       `json:"readAt,omitempty"`
	OpenCount  int64            `json:"openCount"`
	ClickCount int64            `json:"clickCount"`
	CampaignID *string          `json:"campaignId,omitempty"`
	Audience   Audience         `json:"audience"`
	CreatedAt  time.Time        `json:"createdAt"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// IsRead reports whether the recipient has opened the notification in-app.
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// NotificationPatch is an admin edit. Nil fields are left untouched; the
// recipient, counters and campaign are never editable.
type NotificationPatch struct {
	Sender    *string           `json:"sender,omitempty"`
	Title     *string           `json:"title,omitempty"`
	Body      *string           `json:"body,omitempty"`
	Type      *NotificationType `json:"type,omitempty"`
	Icon      *string           `json:"icon,omitempty"`
	ProductID *string           `json:"product,omitempty"`
	Link      *string           `json:"link,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p NotificationPatch) Empty() bool {
	return p.Sender == nil && p.Title == nil && p.Body == nil && p.Type == nil &&
		p.Icon == nil && p.ProductID == nil && p.Link == nil
}

// Apply copies the set fields onto n.
func (p NotificationPatch) Apply(n *Notification) {
	if p.Sender != nil {
		n.Sender = *p.Sender
	}
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Body != nil {
		n.Body = *p.Body
	}
	if p.Type != nil {
		n.Type = *p.Type
	}
	if p.Icon != nil {
		n.Icon = *p.Icon
	}
	if p.ProductID != nil {
		n.ProductID = nilIfEmpty(*p.ProductID)
	}
	if p.Link != nil {
		n.Link = nilIfEmpty(*p.Link)
	}
}

// NotificationFilter narrows admin and inbox listings.
type NotificationFilter struct {
	UserID     string
	CampaignID string
	UnreadOnly bool
	Limit      int
	Offset     int
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StringPtr returns a pointer to s, or nil when s is empty.
func StringPtr(s string) *string {
	return nilIfEmpty(s)
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
