package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hushmetrics/hushmetrics/internals/models"
	"github.com/hushmetrics/hushmetrics/internals/store"
)

// Reconciler decides whether a hit continues an existing session, is
// re-attached to a recently active one, or starts a new one.
type Reconciler struct {
	sessions store.SessionStore
	window   time.Duration // how far back a session stays adoptable
}

func NewReconciler(sessions store.SessionStore, window time.Duration) *Reconciler {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &Reconciler{sessions: sessions, window: window}
}

// Reconcile applies the session state machine for one hit and upserts
// the resulting session. It may rewrite id.SessionID: on adoption the
// outgoing id is overwritten with the adopted session's id so the
// response cookie matches the session the hit was attached to.
//
// Store failures propagate to the caller; the ingestion handler converts
// them into the usual success response.
func (r *Reconciler) Reconcile(ctx context.Context, site *models.Site, id *Identity, attr Attribution, loc Location, now time.Time) (*models.Session, error) {
	// CONTINUE: the session cookie still resolves to a live session.
	if id.SessionID != "" && !id.IsNewSession {
		session, err := r.sessions.Get(ctx, site.ID, id.SessionID)
		if err == nil {
			session.Touch(now)
			if err := r.sessions.Upsert(ctx, session); err != nil {
				return nil, fmt.Errorf("failed to update session: %w", err)
			}
			return session, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to load session: %w", err)
		}
		// cookie references a session we never stored; fall through
	}

	// Re-adoption: the session cookie was lost mid-visit (privacy
	// blockers, multi-tab navigation) but the visitor was active within
	// the window. Attaching to that session keeps session counts honest.
	recent, err := r.sessions.LatestForVisitor(ctx, site.ID, id.VisitorID, now.Add(-r.window))
	if err == nil {
		id.SessionID = recent.SessionID
		id.IsNewSession = false
		recent.Touch(now)
		if err := r.sessions.Upsert(ctx, recent); err != nil {
			return nil, fmt.Errorf("failed to update adopted session: %w", err)
		}
		return recent, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up recent session: %w", err)
	}

	// START: first hit of a new session.
	if id.SessionID == "" {
		id.SessionID = NewToken()
	}
	session := &models.Session{
		SiteID:         site.ID,
		SessionID:      id.SessionID,
		VisitorID:      id.VisitorID,
		FirstVisitAt:   now,
		LastSeenAt:     now,
		PageViews:      1,
		Bounce:         true,
		Duration:       0,
		Referrer:       attr.Referrer,
		ReferrerDomain: attr.ReferrerDomain,
		UTMSource:      attr.UTMSource,
		UTMMedium:      attr.UTMMedium,
		UTMCampaign:    attr.UTMCampaign,
		UTMTerm:        attr.UTMTerm,
		UTMContent:     attr.UTMContent,
		DeviceType:     attr.DeviceType,
		Browser:        attr.Browser,
		OS:             attr.OS,
		Country:        loc.Country,
		Region:         loc.Region,
		City:           loc.City,
	}
	if err := r.sessions.Upsert(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}
