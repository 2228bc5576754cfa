package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hushmetrics/hushmetrics/internals/models"
)

// PostgresStore implements SiteStore, SessionStore and PageViewStore on
// top of the shared pgx pool. Session upserts rely on ON CONFLICT so no
// application-level locking is needed.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetByTrackingCode(ctx context.Context, code string) (*models.Site, error) {
	var (
		site        models.Site
		settingsRaw []byte
	)

	err := s.pool.QueryRow(ctx,
		`SELECT id, tracking_code, domains, settings, created_at
		 FROM sites
		 WHERE tracking_code = $1`,
		code,
	).Scan(&site.ID, &site.TrackingCode, &site.Domains, &settingsRaw, &site.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query site: %w", err)
	}

	if len(settingsRaw) > 0 {
		if err := json.Unmarshal(settingsRaw, &site.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode site settings: %w", err)
		}
	}

	return &site, nil
}

// MarkAttackModeActivated flips the site into attack mode and stamps the
// activation time. The WHERE clause makes re-triggering a no-op, so the
// transition is monotonic under concurrent requests.
func (s *PostgresStore) MarkAttackModeActivated(ctx context.Context, siteID string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sites
		 SET settings = jsonb_set(
		         jsonb_set(settings, '{attackMode,enabled}', 'true'::jsonb),
		         '{attackMode,activatedAt}', to_jsonb($2::timestamptz))
		 WHERE id = $1
		   AND (settings->'attackMode'->>'enabled')::boolean IS DISTINCT FROM true`,
		siteID, at,
	)
	if err != nil {
		return fmt.Errorf("failed to activate attack mode: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, siteID, sessionID string) (*models.Session, error) {
	row := s.pool.QueryRow(ctx,
		sessionSelect+` WHERE site_id = $1 AND session_id = $2`,
		siteID, sessionID,
	)
	return scanSession(row)
}

func (s *PostgresStore) LatestForVisitor(ctx context.Context, siteID, visitorID string, since time.Time) (*models.Session, error) {
	row := s.pool.QueryRow(ctx,
		sessionSelect+`
		 WHERE site_id = $1 AND visitor_id = $2 AND last_seen_at >= $3
		 ORDER BY last_seen_at DESC
		 LIMIT 1`,
		siteID, visitorID, since,
	)
	return scanSession(row)
}

func (s *PostgresStore) Upsert(ctx context.Context, session *models.Session) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (
		     site_id, session_id, visitor_id, first_visit_at, last_seen_at,
		     page_views, bounce, duration, referrer, referrer_domain,
		     utm_source, utm_medium, utm_campaign, utm_term, utm_content,
		     device_type, browser, os, country, region, city)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		         $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
		 ON CONFLICT (site_id, session_id) DO UPDATE SET
		     last_seen_at = EXCLUDED.last_seen_at,
		     page_views   = EXCLUDED.page_views,
		     bounce       = EXCLUDED.bounce,
		     duration     = EXCLUDED.duration`,
		session.SiteID, session.SessionID, session.VisitorID,
		session.FirstVisitAt, session.LastSeenAt,
		session.PageViews, session.Bounce, session.Duration,
		session.Referrer, session.ReferrerDomain,
		session.UTMSource, session.UTMMedium, session.UTMCampaign,
		session.UTMTerm, session.UTMContent,
		session.DeviceType, session.Browser, session.OS,
		session.Country, session.Region, session.City,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, view *models.PageView) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pageviews (
		     site_id, session_id, visitor_id, path, hostname, title, goal,
		     referrer, referrer_domain, referrer_path,
		     utm_source, utm_medium, utm_campaign, utm_term, utm_content,
		     device_type, browser, os, country, region, city,
		     latitude, longitude, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		         $11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
		         $21, $22, $23, $24)`,
		view.SiteID, view.SessionID, view.VisitorID,
		view.Path, view.Hostname, view.Title, view.Goal,
		view.Referrer, view.ReferrerDomain, view.ReferrerPath,
		view.UTMSource, view.UTMMedium, view.UTMCampaign,
		view.UTMTerm, view.UTMContent,
		view.DeviceType, view.Browser, view.OS,
		view.Country, view.Region, view.City,
		view.Latitude, view.Longitude, view.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pageview: %w", err)
	}
	return nil
}

const sessionSelect = `
	SELECT site_id, session_id, visitor_id, first_visit_at, last_seen_at,
	       page_views, bounce, duration, referrer, referrer_domain,
	       utm_source, utm_medium, utm_campaign, utm_term, utm_content,
	       device_type, browser, os, country, region, city
	FROM sessions`

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.SiteID, &s.SessionID, &s.VisitorID, &s.FirstVisitAt, &s.LastSeenAt,
		&s.PageViews, &s.Bounce, &s.Duration, &s.Referrer, &s.ReferrerDomain,
		&s.UTMSource, &s.UTMMedium, &s.UTMCampaign, &s.UTMTerm, &s.UTMContent,
		&s.DeviceType, &s.Browser, &s.OS, &s.Country, &s.Region, &s.City,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return &s, nil
}
