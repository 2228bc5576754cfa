package ingest

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hushmetrics/hushmetrics/internals/models"
	"github.com/hushmetrics/hushmetrics/internals/monitoring"
	"github.com/hushmetrics/hushmetrics/internals/store"
)

// visitorCookieMaxAge keeps the visitor token for a year.
const visitorCookieMaxAge = 365 * 24 * 60 * 60

// trackingCodePattern is the only accepted tracking code shape. Anything
// else is treated the same as an unknown code.
var trackingCodePattern = regexp.MustCompile(`^[0-9a-f]{24}$`)

// ValidTrackingCode reports whether code has the accepted shape.
func ValidTrackingCode(code string) bool {
	return trackingCodePattern.MatchString(code)
}

// pixelGIF is the fixed 1x1 transparent response body, decoded once.
var pixelGIF, _ = base64.StdEncoding.DecodeString(
	"R0lGODlhAQABAIAAAAAAAP///yH5BAEAAAAALAAAAAABAAEAAAIBRAA7")

// outcome tags how a pipeline step ended. Suppress and Fail both render
// the success pixel; they differ only in logging and counters, which
// keeps the "never break the host page" contract in one place.
type outcomeKind int

const (
	outcomeProceed outcomeKind = iota
	outcomeSuppress
	outcomeFail
)

type outcome struct {
	kind   outcomeKind
	reason string
	err    error
}

func proceed() outcome                        { return outcome{kind: outcomeProceed} }
func suppress(reason string) outcome          { return outcome{kind: outcomeSuppress, reason: reason} }
func fail(reason string, err error) outcome {
	return outcome{kind: outcomeFail, reason: reason, err: err}
}

// Handler orchestrates the ingestion pipeline for one beacon hit.
type Handler struct {
	sites      store.SiteStore
	pageviews  store.PageViewStore
	reconciler *Reconciler
	guard      *Guard
	geo        GeoResolver
	geoTimeout time.Duration
	logger     *slog.Logger
	stats      *monitoring.IngestStats
}

// HandlerOptions wires the pipeline dependencies.
type HandlerOptions struct {
	Sites      store.SiteStore
	PageViews  store.PageViewStore
	Reconciler *Reconciler
	Guard      *Guard
	Geo        GeoResolver
	GeoTimeout time.Duration
	Logger     *slog.Logger
	Stats      *monitoring.IngestStats
}

func NewHandler(opts HandlerOptions) *Handler {
	if opts.Geo == nil {
		opts.Geo = NullResolver{}
	}
	if opts.GeoTimeout <= 0 {
		opts.GeoTimeout = 150 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Stats == nil {
		opts.Stats = monitoring.GetStats()
	}
	return &Handler{
		sites:      opts.Sites,
		pageviews:  opts.PageViews,
		reconciler: opts.Reconciler,
		guard:      opts.Guard,
		geo:        opts.Geo,
		geoTimeout: opts.GeoTimeout,
		logger:     opts.Logger.With("component", "ingest"),
		stats:      opts.Stats,
	}
}

// Collect handles a pageview/goal beacon. Every path through here ends
// in the same 200 pixel response; the only variation the browser can
// observe is the identity cookies.
func (h *Handler) Collect(c *gin.Context) {
	ctx := c.Request.Context()
	payload := parsePayload(c)

	if !trackingCodePattern.MatchString(payload.TrackingCode) {
		h.finish(c, nil, suppress("malformed tracking code"))
		return
	}

	site, err := h.sites.GetByTrackingCode(ctx, payload.TrackingCode)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.finish(c, nil, suppress("unknown tracking code"))
		} else {
			h.finish(c, nil, fail("site lookup", err))
		}
		return
	}

	path := SanitizePath(payload.Path)
	title := SanitizeTitle(payload.Title)
	hostname := payload.Hostname
	if hostname == "" {
		hostname = stripPort(c.Request.Host)
	}
	referrer := payload.Referrer
	if referrer == "" {
		referrer = c.Request.Referer()
	}
	clientIP := c.ClientIP()

	// Identity is resolved before any policy decision so suppressed hits
	// still get cookies and stay indistinguishable from recorded ones.
	id := ResolveIdentity(
		cookieValue(c, VisitorCookie),
		cookieValue(c, SessionCookie),
		payload,
	)

	h.guard.CheckTrafficSpike(ctx, site)
	if !h.guard.Admit(site, clientIP) {
		h.finish(c, &id, suppress("attack mode admission"))
		return
	}

	geoCtx, cancel := context.WithTimeout(ctx, h.geoTimeout)
	location := h.geo.Locate(geoCtx, clientIP)
	cancel()

	if ShouldExclude(site, clientIP, location.Country, hostname, path) {
		h.finish(c, &id, suppress("exclusion rule"))
		return
	}

	attr := ExtractAttribution(payload.Path, referrer, c.Request.UserAgent())

	now := time.Now()
	session, err := h.reconciler.Reconcile(ctx, site, &id, attr, location, now)
	if err != nil {
		h.finish(c, &id, fail("session reconciliation", err))
		return
	}

	storedPath := path
	if site.Settings.HashPaths {
		storedPath = HashPath(path)
	}

	view := &models.PageView{
		SiteID:         site.ID,
		SessionID:      session.SessionID,
		VisitorID:      session.VisitorID,
		Path:           storedPath,
		Hostname:       hostname,
		Title:          title,
		Goal:           payload.Goal,
		Referrer:       attr.Referrer,
		ReferrerDomain: attr.ReferrerDomain,
		ReferrerPath:   attr.ReferrerPath,
		UTMSource:      attr.UTMSource,
		UTMMedium:      attr.UTMMedium,
		UTMCampaign:    attr.UTMCampaign,
		UTMTerm:        attr.UTMTerm,
		UTMContent:     attr.UTMContent,
		DeviceType:     attr.DeviceType,
		Browser:        attr.Browser,
		OS:             attr.OS,
		Country:        location.Country,
		Region:         location.Region,
		City:           location.City,
		Latitude:       location.Latitude,
		Longitude:      location.Longitude,
		Timestamp:      now,
	}
	if err := h.pageviews.Insert(ctx, view); err != nil {
		h.finish(c, &id, fail("pageview insert", err))
		return
	}

	h.finish(c, &id, proceed())
}

// Preflight answers the CORS preflight for cross-origin beacons. The
// CORS middleware adds the actual headers; no body processing happens.
func (h *Handler) Preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// finish logs the outcome and renders the pixel. id may be nil when the
// hit never resolved a site (no cookies are issued then).
func (h *Handler) finish(c *gin.Context, id *Identity, out outcome) {
	switch out.kind {
	case outcomeProceed:
		h.stats.HitRecorded()
	case outcomeSuppress:
		h.stats.HitSuppressed()
		h.logger.Debug("hit suppressed", slog.String("reason", out.reason))
	case outcomeFail:
		h.stats.HitFailed()
		h.logger.Error("hit dropped",
			slog.String("reason", out.reason),
			slog.String("error", out.err.Error()))
	}
	h.respondPixel(c, id)
}

func (h *Handler) respondPixel(c *gin.Context, id *Identity) {
	h.stats.PixelServed()

	c.Header("Cache-Control", "no-cache, no-store, must-revalidate, private")

	if id != nil {
		// a suppressed hit may still carry an unset session id
		if id.SessionID == "" {
			id.SessionID = NewToken()
		}
		secure := isSecure(c.Request)
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(VisitorCookie, id.VisitorID, visitorCookieMaxAge, "/", "", secure, false)
		c.SetCookie(SessionCookie, id.SessionID, 0, "/", "", secure, false)
	}

	c.Data(http.StatusOK, "image/gif", pixelGIF)
}

// parsePayload reads beacon fields from the JSON body (POST) with query
// parameters filling any gaps, so GET pixels and sendBeacon POSTs share
// one shape. Malformed bodies are ignored, never rejected.
func parsePayload(c *gin.Context) Payload {
	var payload Payload
	if c.Request.Method == http.MethodPost &&
		strings.Contains(c.ContentType(), "json") {
		_ = c.ShouldBindJSON(&payload)
	}

	query := c.Request.URL.Query()
	merge := func(dst *string, key string) {
		if *dst == "" {
			*dst = query.Get(key)
		}
	}
	merge(&payload.TrackingCode, "site")
	merge(&payload.Path, "path")
	merge(&payload.Title, "title")
	merge(&payload.Hostname, "hostname")
	merge(&payload.Referrer, "referrer")
	merge(&payload.VisitorID, "visitorId")
	merge(&payload.SessionID, "sessionId")
	merge(&payload.Goal, "goal")

	return payload
}

func cookieValue(c *gin.Context, name string) string {
	value, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return value
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}
