package models

import (
	"time"
)

// Target selects the recipients of a campaign.
type Target string

const (
	TargetAll   Target = "all"
	TargetUsers Target = "users"
)

// Campaign is an admin dispatch request.
type Campaign struct {
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Type      NotificationType `json:"type"`
	Icon      string           `json:"icon,omitempty"`
	Link      string           `json:"link,omitempty"`
	ProductID string           `json:"productId,omitempty"`
	Sender    string           `json:"sender,omitempty"`
	CTALabel  string           `json:"ctaLabel,omitempty"`
	Target    Target           `json:"target"`
	UserIDs   []string         `json:"userIds,omitempty"`
}

// Push is an ad hoc notification to a single user, outside any campaign.
type Push struct {
	UserID    string           `json:"userId"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Type      NotificationType `json:"type"`
	Icon      string           `json:"icon,omitempty"`
	Link      string           `json:"link,omitempty"`
	ProductID string           `json:"productId,omitempty"`
	Sender    string           `json:"sender,omitempty"`
	Email     bool             `json:"email"`
}

// DispatchResult summarizes one dispatch call.
type DispatchResult struct {
	CreatedCount int      `json:"createdCount"`
	CampaignID   string   `json:"campaignId,omitempty"`
	EmailsSent   int      `json:"emailsSent"`
	EmailsFailed int      `json:"emailsFailed"`
	Skipped      []string `json:"skipped,omitempty"`
}

// CampaignSummary is the rollup of all rows sharing a campaign id.
type CampaignSummary struct {
	CampaignID string    `json:"campaignId"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	CreatedAt  time.Time `json:"createdAt"`
	Recipients int64     `json:"recipients"`
	Opens      int64     `json:"opens"`
	Clicks     int64     `json:"clicks"`
}
