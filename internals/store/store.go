package store

import (
	"context"
	"errors"
	"time"

	"github.com/hushmetrics/hushmetrics/internals/models"
)

// ErrNotFound is returned when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// SiteStore resolves sites by tracking code and records attack-mode
// activation. Sites are otherwise read-only to the ingestion pipeline.
type SiteStore interface {
	GetByTrackingCode(ctx context.Context, code string) (*models.Site, error)
	MarkAttackModeActivated(ctx context.Context, siteID string, at time.Time) error
}

// SessionStore reads and upserts visit sessions. Upsert must be atomic
// per (siteID, sessionID); the pipeline holds no locks around it.
type SessionStore interface {
	Get(ctx context.Context, siteID, sessionID string) (*models.Session, error)
	// LatestForVisitor returns the most recently seen session for the
	// visitor with lastSeenAt >= since, or ErrNotFound.
	LatestForVisitor(ctx context.Context, siteID, visitorID string, since time.Time) (*models.Session, error)
	Upsert(ctx context.Context, session *models.Session) error
}

// PageViewStore appends immutable pageview records.
type PageViewStore interface {
	Insert(ctx context.Context, view *models.PageView) error
}
