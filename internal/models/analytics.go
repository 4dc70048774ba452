package models

import (
	"time"
)

// DayStats is one row of the daily report. Only days with activity appear.
type DayStats struct {
	Day        string `json:"day"`
	Sent       int64  `json:"sent"`
	EmailOpen  int64  `json:"email_open"`
	EmailClick int64  `json:"email_click"`
	SiteView   int64  `json:"site_view"`
	SiteClick  int64  `json:"site_click"`
	PanelOpen  int64  `json:"panel_open"`
}

// Add accumulates count events of type t into the row.
func (d *DayStats) Add(t EventType, count int64) {
	switch t {
	case EventEmailOpen:
		d.EmailOpen += count
	case EventEmailClick:
		d.EmailClick += count
	case EventView:
		d.SiteView += count
	case EventClick:
		d.SiteClick += count
	case EventPanelOpen:
		d.PanelOpen += count
	}
}

// StatTotals sums DayStats over the whole window.
type StatTotals struct {
	Sent       int64 `json:"sent"`
	EmailOpen  int64 `json:"email_open"`
	EmailClick int64 `json:"email_click"`
	SiteView   int64 `json:"site_view"`
	SiteClick  int64 `json:"site_click"`
	PanelOpen  int64 `json:"panel_open"`
}

func (t *StatTotals) Add(d DayStats) {
	t.Sent += d.Sent
	t.EmailOpen += d.EmailOpen
	t.EmailClick += d.EmailClick
	t.SiteView += d.SiteView
	t.SiteClick += d.SiteClick
	t.PanelOpen += d.PanelOpen
}

// DailyReport is the response of the daily stats query.
type DailyReport struct {
	Days   int        `json:"days"`
	Since  time.Time  `json:"since"`
	ByDay  []DayStats `json:"byDay"`
	Totals StatTotals `json:"totals"`
}

// DayCount is a single (day, count) aggregate returned by storage.
type DayCount struct {
	Day   string
	Count int64
}

// DayTypeCount is a single (day, type, count) aggregate returned by storage.
type DayTypeCount struct {
	Day   string
	Type  EventType
	Count int64
}

// SessionSummary describes one (user, sessionId) bucket of events.
type SessionSummary struct {
	User             User                `json:"user"`
	SessionID        string              `json:"sessionId"`
	Start            time.Time           `json:"start"`
	Last             time.Time           `json:"last"`
	PageFlow         []string            `json:"pageFlow"`
	Counts           map[EventType]int64 `json:"counts"`
	Events           int64               `json:"events"`
	FromNotification bool                `json:"fromNotification"`
}

// SessionReport is the response of the sessions query.
type SessionReport struct {
	Days     int              `json:"days"`
	Since    time.Time        `json:"since"`
	Sessions []SessionSummary `json:"sessions"`
}
