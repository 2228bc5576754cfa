package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hushmetrics/hushmetrics/internals/models"
	"github.com/hushmetrics/hushmetrics/internals/store"
)

var testSite = &models.Site{ID: "site-1", TrackingCode: "a1b2c3d4e5f6a7b8c9d0e1f2"}

func seedSession(t *testing.T, mem *store.MemoryStore, sessionID, visitorID string, firstVisit, lastSeen time.Time, pageViews int) {
	t.Helper()
	err := mem.Upsert(context.Background(), &models.Session{
		SiteID:       testSite.ID,
		SessionID:    sessionID,
		VisitorID:    visitorID,
		FirstVisitAt: firstVisit,
		LastSeenAt:   lastSeen,
		PageViews:    pageViews,
		Bounce:       pageViews == 1,
		Duration:     int(lastSeen.Sub(firstVisit).Seconds()),
	})
	require.NoError(t, err)
}

func TestReconcileStartsNewSession(t *testing.T) {
	mem := store.NewMemoryStore()
	reconciler := NewReconciler(mem, 5*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	id := ResolveIdentity("", "", Payload{})
	attr := Attribution{ReferrerDomain: "example.org", UTMSource: "newsletter", DeviceType: "desktop"}
	loc := Location{Country: "DE", City: "Berlin"}

	session, err := reconciler.Reconcile(context.Background(), testSite, &id, attr, loc, now)
	require.NoError(t, err)

	assert.Equal(t, 1, session.PageViews)
	assert.True(t, session.Bounce)
	assert.Equal(t, 0, session.Duration)
	assert.Equal(t, now, session.FirstVisitAt)
	assert.Equal(t, now, session.LastSeenAt)
	assert.Equal(t, "example.org", session.ReferrerDomain)
	assert.Equal(t, "newsletter", session.UTMSource)
	assert.Equal(t, "DE", session.Country)

	// the identity got the generated session id so the cookie matches
	assert.Regexp(t, "^[0-9a-f]{24}$", id.SessionID)
	assert.Equal(t, id.SessionID, session.SessionID)
	assert.Equal(t, 1, mem.SessionCount())
}

func TestReconcileContinuesExistingSession(t *testing.T) {
	mem := store.NewMemoryStore()
	reconciler := NewReconciler(mem, 5*time.Minute)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedSession(t, mem, "bbbbbbbbbbbbbbbbbbbbbbbb", "aaaaaaaaaaaaaaaaaaaaaaaa", start, start, 1)

	id := Identity{VisitorID: "aaaaaaaaaaaaaaaaaaaaaaaa", SessionID: "bbbbbbbbbbbbbbbbbbbbbbbb"}
	now := start.Add(90 * time.Second)

	session, err := reconciler.Reconcile(context.Background(), testSite, &id, Attribution{}, Location{}, now)
	require.NoError(t, err)

	assert.Equal(t, 2, session.PageViews)
	assert.False(t, session.Bounce)
	assert.Equal(t, 90, session.Duration)
	assert.Equal(t, now, session.LastSeenAt)
	assert.Equal(t, start, session.FirstVisitAt)
	assert.Equal(t, 1, mem.SessionCount())
}

func TestReconcileAdoptsRecentSessionAfterCookieLoss(t *testing.T) {
	mem := store.NewMemoryStore()
	reconciler := NewReconciler(mem, 5*time.Minute)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedSession(t, mem, "bbbbbbbbbbbbbbbbbbbbbbbb", "aaaaaaaaaaaaaaaaaaaaaaaa", start, start.Add(time.Minute), 2)

	// session cookie lost mid-visit, visitor cookie survived
	id := Identity{VisitorID: "aaaaaaaaaaaaaaaaaaaaaaaa", IsNewSession: true}
	now := start.Add(3 * time.Minute)

	session, err := reconciler.Reconcile(context.Background(), testSite, &id, Attribution{}, Location{}, now)
	require.NoError(t, err)

	assert.Equal(t, "bbbbbbbbbbbbbbbbbbbbbbbb", session.SessionID)
	assert.Equal(t, "bbbbbbbbbbbbbbbbbbbbbbbb", id.SessionID, "outgoing cookie must match the adopted session")
	assert.False(t, id.IsNewSession)
	assert.Equal(t, 3, session.PageViews)
	assert.False(t, session.Bounce)
	assert.Equal(t, 180, session.Duration)
	assert.Equal(t, 1, mem.SessionCount(), "no duplicate session may be created")
}

func TestReconcileStartsFreshAfterWindowExpires(t *testing.T) {
	mem := store.NewMemoryStore()
	reconciler := NewReconciler(mem, 5*time.Minute)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedSession(t, mem, "bbbbbbbbbbbbbbbbbbbbbbbb", "aaaaaaaaaaaaaaaaaaaaaaaa", start, start, 4)

	id := Identity{VisitorID: "aaaaaaaaaaaaaaaaaaaaaaaa", IsNewSession: true}
	now := start.Add(6 * time.Minute)

	session, err := reconciler.Reconcile(context.Background(), testSite, &id, Attribution{}, Location{}, now)
	require.NoError(t, err)

	assert.NotEqual(t, "bbbbbbbbbbbbbbbbbbbbbbbb", session.SessionID)
	assert.Equal(t, 1, session.PageViews)
	assert.True(t, session.Bounce)
	assert.Equal(t, 0, session.Duration)
	assert.Equal(t, 2, mem.SessionCount())
}

func TestReconcileReusesCookieSessionIDWhenRecordIsGone(t *testing.T) {
	mem := store.NewMemoryStore()
	reconciler := NewReconciler(mem, 5*time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// cookie still references a session that was never stored (its first
	// hit was suppressed); no recent session to adopt either
	id := Identity{VisitorID: "aaaaaaaaaaaaaaaaaaaaaaaa", SessionID: "cccccccccccccccccccccccc"}

	session, err := reconciler.Reconcile(context.Background(), testSite, &id, Attribution{}, Location{}, now)
	require.NoError(t, err)

	assert.Equal(t, "cccccccccccccccccccccccc", session.SessionID)
	assert.Equal(t, 1, session.PageViews)
	assert.True(t, session.Bounce)
}

func TestTouchNeverProducesNegativeDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := &models.Session{FirstVisitAt: start, LastSeenAt: start, PageViews: 1, Bounce: true}

	// clock skew: update arrives "before" the first visit
	session.Touch(start.Add(-30 * time.Second))
	assert.Equal(t, 0, session.Duration)
	assert.Equal(t, 2, session.PageViews)
}
