package models

import (
	"time"
)

// EventType is the kind of engagement signal recorded in the event log.
type EventType string

const (
	EventEmailOpen  EventType = "email_open"
	EventEmailClick EventType = "email_click"
	EventView       EventType = "view"
	EventClick      EventType = "click"
	EventPanelOpen  EventType = "panel_open"
)

// EventTypes lists every known event type in reporting order.
var EventTypes = []EventType{EventEmailOpen, EventEmailClick, EventView, EventClick, EventPanelOpen}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SiteEvent reports whether the event comes from the storefront rather than an email.
func (t EventType) SiteEvent() bool {
	return t == EventView || t == EventClick || t == EventPanelOpen
}

// ===========================================
// NOTIFICATION EVENT
// ===========================================

// NotificationEvent is an append-only engagement signal. UserID is nil for
// email events whose notification could not be resolved.
type NotificationEvent struct {
	ID             string    `json:"id"`
	Seq            int64     `json:"-"`
	UserID         *string   `json:"user,omitempty"`
	NotificationID *string   `json:"notification,omitempty"`
	SessionID      string    `json:"sessionId"`
	Type           EventType `json:"type"`

	// Page context
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
	Ref  string `json:"ref,omitempty"`

	Meta map[string]any `json:"meta,omitempty"`

	// Client info
	UA string `json:"ua,omitempty"`
	IP string `json:"ip,omitempty"`

	TS time.Time `json:"ts"`
}

// FromNotification reports whether the event is attributable to a notification.
func (e *NotificationEvent) FromNotification() bool {
	return (e.NotificationID != nil && *e.NotificationID != "") || e.Ref != ""
}

// TrackRequest is the body accepted by the site ingestion endpoint.
type TrackRequest struct {
	SessionID      string         `json:"sessionId"`
	Type           EventType      `json:"type"`
	Path           string         `json:"path,omitempty"`
	URL            string         `json:"url,omitempty"`
	NotificationID string         `json:"notificationId,omitempty"`
	Ref            string         `json:"ref,omitempty"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// EventFilter selects events for session reconstruction.
type EventFilter struct {
	Since  time.Time
	UserID string
}
