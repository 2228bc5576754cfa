package models

import "time"

// AttackModeSettings controls the per-site spike protection.
type AttackModeSettings struct {
	Enabled      bool       `json:"enabled"`
	AutoActivate bool       `json:"autoActivate"`
	Threshold    int        `json:"threshold"` // requests per minute, 0 = service default
	ActivatedAt  *time.Time `json:"activatedAt,omitempty"`
}

// SiteSettings is the settings bag configured in the dashboard.
// This core only reads it, except for AttackMode activation.
type SiteSettings struct {
	ExcludeIPs       []string           `json:"excludeIps"`
	ExcludePaths     []string           `json:"excludePaths"` // trailing * matches a prefix
	ExcludeHostnames []string           `json:"excludeHostnames"`
	ExcludeCountries []string           `json:"excludeCountries"`
	HashPaths        bool               `json:"hashPaths"`
	AttackMode       AttackModeSettings `json:"attackMode"`
}

// Site is a tracked website. Resolved once per request and never
// mutated by the ingestion pipeline except for attack-mode activation.
type Site struct {
	ID           string       `json:"id"`
	TrackingCode string       `json:"trackingCode"` // 24 lowercase hex chars
	Domains      []string     `json:"domains"`
	Settings     SiteSettings `json:"settings"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Session is one visit: a bounded sequence of pageviews from one
// visitor, keyed by (SiteID, SessionID) and mutated in place on every hit.
type Session struct {
	SiteID         string    `json:"siteId"`
	SessionID      string    `json:"sessionId"`
	VisitorID      string    `json:"visitorId"`
	FirstVisitAt   time.Time `json:"firstVisitAt"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
	PageViews      int       `json:"pageViews"`
	Bounce         bool      `json:"bounce"`
	Duration       int       `json:"duration"` // seconds, lastSeenAt - firstVisitAt
	Referrer       string    `json:"referrer"`
	ReferrerDomain string    `json:"referrerDomain"`
	UTMSource      string    `json:"utmSource"`
	UTMMedium      string    `json:"utmMedium"`
	UTMCampaign    string    `json:"utmCampaign"`
	UTMTerm        string    `json:"utmTerm"`
	UTMContent     string    `json:"utmContent"`
	DeviceType     string    `json:"deviceType"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	Country        string    `json:"country"`
	Region         string    `json:"region"`
	City           string    `json:"city"`
}

// Touch records another hit on the session and keeps the derived fields
// consistent. Duration never goes negative even if clocks skew.
func (s *Session) Touch(now time.Time) {
	s.PageViews++
	s.Bounce = false
	s.LastSeenAt = now
	s.Duration = int(now.Sub(s.FirstVisitAt).Seconds())
	if s.Duration < 0 {
		s.Duration = 0
	}
}

// PageView is one immutable record per accepted hit.
type PageView struct {
	SiteID         string    `json:"siteId"`
	SessionID      string    `json:"sessionId"`
	VisitorID      string    `json:"visitorId"`
	Path           string    `json:"path"`
	Hostname       string    `json:"hostname"`
	Title          string    `json:"title"`
	Goal           string    `json:"goal,omitempty"`
	Referrer       string    `json:"referrer"`
	ReferrerDomain string    `json:"referrerDomain"`
	ReferrerPath   string    `json:"referrerPath"`
	UTMSource      string    `json:"utmSource"`
	UTMMedium      string    `json:"utmMedium"`
	UTMCampaign    string    `json:"utmCampaign"`
	UTMTerm        string    `json:"utmTerm"`
	UTMContent     string    `json:"utmContent"`
	DeviceType     string    `json:"deviceType"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	Country        string    `json:"country"`
	Region         string    `json:"region"`
	City           string    `json:"city"`
	Latitude       float64   `json:"latitude,omitempty"`
	Longitude      float64   `json:"longitude,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
