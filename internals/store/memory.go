package store

import (
	"context"
	"sync"
	"time"

	"github.com/hushmetrics/hushmetrics/internals/models"
)

// MemoryStore keeps everything in maps behind an RWMutex. It backs the
// pipeline in tests and in database-less development mode.
type MemoryStore struct {
	mu        sync.RWMutex
	sites     map[string]*models.Site    // tracking code -> site
	sessions  map[string]*models.Session // siteID + "/" + sessionID -> session
	pageviews []models.PageView
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sites:    make(map[string]*models.Site),
		sessions: make(map[string]*models.Session),
	}
}

// AddSite registers a site for lookup by tracking code.
func (m *MemoryStore) AddSite(site *models.Site) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[site.TrackingCode] = site
}

func (m *MemoryStore) GetByTrackingCode(_ context.Context, code string) (*models.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	site, ok := m.sites[code]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *site
	return &copied, nil
}

func (m *MemoryStore) MarkAttackModeActivated(_ context.Context, siteID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, site := range m.sites {
		if site.ID != siteID {
			continue
		}
		if site.Settings.AttackMode.Enabled {
			return nil
		}
		site.Settings.AttackMode.Enabled = true
		stamped := at
		site.Settings.AttackMode.ActivatedAt = &stamped
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, siteID, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[siteID+"/"+sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *MemoryStore) LatestForVisitor(_ context.Context, siteID, visitorID string, since time.Time) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *models.Session
	for _, session := range m.sessions {
		if session.SiteID != siteID || session.VisitorID != visitorID {
			continue
		}
		if session.LastSeenAt.Before(since) {
			continue
		}
		if latest == nil || session.LastSeenAt.After(latest.LastSeenAt) {
			latest = session
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (m *MemoryStore) Upsert(_ context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *session
	m.sessions[session.SiteID+"/"+session.SessionID] = &copied
	return nil
}

func (m *MemoryStore) Insert(_ context.Context, view *models.PageView) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pageviews = append(m.pageviews, *view)
	return nil
}

// PageViews returns a snapshot of the recorded pageviews.
func (m *MemoryStore) PageViews() []models.PageView {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.PageView, len(m.pageviews))
	copy(out, m.pageviews)
	return out
}

// SessionCount returns the number of stored sessions.
func (m *MemoryStore) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
