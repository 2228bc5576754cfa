package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hushmetrics/hushmetrics/internals/models"
	"github.com/hushmetrics/hushmetrics/internals/store"
)

// counterWindow is how much per-minute history the in-memory counter
// keeps: one bucket for the current rate plus a trailing baseline.
const counterWindow = 10 * time.Minute

// TrafficCounter tracks recent hit counts per site. Implementations must
// be safe for concurrent increments from many requests for the same site.
type TrafficCounter interface {
	Incr(siteID string, now time.Time)
	// CountSince returns the number of hits recorded within the window
	// ending at now.
	CountSince(siteID string, window time.Duration, now time.Time) int
}

// SpikePolicy decides whether the current rate constitutes a spike. It
// is pluggable so the comparison can be replaced with a statistical
// model without touching the guard.
type SpikePolicy interface {
	IsSpike(currentPerMinute, baselinePerMinute, threshold int) bool
}

// DefaultSpikePolicy fires when the last minute both exceeds the
// configured threshold and triples the trailing baseline, so a busy but
// steady site does not activate protection on its normal traffic.
type DefaultSpikePolicy struct{}

func (DefaultSpikePolicy) IsSpike(currentPerMinute, baselinePerMinute, threshold int) bool {
	return currentPerMinute > threshold && currentPerMinute > 3*baselinePerMinute
}

// Guard implements attack-mode protection: spike detection with
// auto-activation, and per-IP admission control while a site is under
// attack.
type Guard struct {
	counter   TrafficCounter
	policy    SpikePolicy
	sites     store.SiteStore
	logger    *slog.Logger
	threshold int // default requests/minute when the site has none configured

	admitRate  rate.Limit
	admitBurst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter // siteID|ip -> limiter

	onActivate func()
}

// GuardOptions configures a Guard.
type GuardOptions struct {
	Counter          TrafficCounter
	Policy           SpikePolicy
	Sites            store.SiteStore
	Logger           *slog.Logger
	DefaultThreshold int
	AdmissionRate    float64 // per-IP requests per second while active
	AdmissionBurst   int
	OnActivate       func() // optional activation hook, used for counters
}

func NewGuard(opts GuardOptions) *Guard {
	if opts.Counter == nil {
		opts.Counter = NewMinuteCounter()
	}
	if opts.Policy == nil {
		opts.Policy = DefaultSpikePolicy{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DefaultThreshold <= 0 {
		opts.DefaultThreshold = 200
	}
	if opts.AdmissionRate <= 0 {
		opts.AdmissionRate = 2
	}
	if opts.AdmissionBurst <= 0 {
		opts.AdmissionBurst = 10
	}

	g := &Guard{
		counter:    opts.Counter,
		policy:     opts.Policy,
		sites:      opts.Sites,
		logger:     opts.Logger.With("component", "attack_guard"),
		threshold:  opts.DefaultThreshold,
		admitRate:  rate.Limit(opts.AdmissionRate),
		admitBurst: opts.AdmissionBurst,
		limiters:   make(map[string]*rate.Limiter),
		onActivate: opts.OnActivate,
	}
	go g.cleanupLimiters()
	return g
}

// CheckTrafficSpike records the hit and auto-activates attack mode when
// the site's recent rate spikes. The transition is monotonic: once the
// site is active, re-triggering is a no-op and ActivatedAt keeps its
// original stamp.
func (g *Guard) CheckTrafficSpike(ctx context.Context, site *models.Site) {
	now := time.Now()
	g.counter.Incr(site.ID, now)

	am := &site.Settings.AttackMode
	if am.Enabled || !am.AutoActivate {
		return
	}

	current := g.counter.CountSince(site.ID, time.Minute, now)
	baseline := g.baseline(site.ID, now)

	threshold := am.Threshold
	if threshold <= 0 {
		threshold = g.threshold
	}

	if !g.policy.IsSpike(current, baseline, threshold) {
		return
	}

	// Flip the in-memory copy first so admission control applies to this
	// request, then stamp the store. The store write is conditional on
	// the flag still being off, so concurrent activations collapse to one.
	am.Enabled = true
	activatedAt := now
	am.ActivatedAt = &activatedAt

	storeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := g.sites.MarkAttackModeActivated(storeCtx, site.ID, now); err != nil {
		g.logger.Error("failed to persist attack mode activation",
			slog.String("site", site.ID),
			slog.String("error", err.Error()))
	}

	if g.onActivate != nil {
		g.onActivate()
	}

	g.logger.Warn("attack mode activated",
		slog.String("site", site.ID),
		slog.Int("current_per_minute", current),
		slog.Int("baseline_per_minute", baseline),
		slog.Int("threshold", threshold))
}

// Admit applies per-IP admission control. Outside attack mode every hit
// is admitted. While active, each source IP gets a small token bucket so
// hammering sources are sampled down while normal visitors mostly pass.
func (g *Guard) Admit(site *models.Site, ip string) bool {
	if !site.Settings.AttackMode.Enabled {
		return true
	}
	return g.limiterFor(site.ID + "|" + ip).Allow()
}

// baseline is the trailing average per-minute rate over the counter
// window, excluding the current minute.
func (g *Guard) baseline(siteID string, now time.Time) int {
	total := g.counter.CountSince(siteID, counterWindow, now)
	current := g.counter.CountSince(siteID, time.Minute, now)
	minutes := int(counterWindow/time.Minute) - 1
	if minutes <= 0 {
		return 0
	}
	return (total - current) / minutes
}

func (g *Guard) limiterFor(key string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	limiter, exists := g.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(g.admitRate, g.admitBurst)
		g.limiters[key] = limiter
	}
	return limiter
}

// cleanupLimiters drops all per-IP limiters periodically to prevent the
// map growing without bound during long attacks.
func (g *Guard) cleanupLimiters() {
	for {
		time.Sleep(10 * time.Minute)
		g.mu.Lock()
		g.limiters = make(map[string]*rate.Limiter)
		g.mu.Unlock()
	}
}

// MinuteCounter is the in-memory TrafficCounter: a rotating ring of
// per-minute buckets per site, safe for concurrent increments.
type MinuteCounter struct {
	mu    sync.Mutex
	sites map[string]*minuteRing
}

const ringMinutes = int(counterWindow / time.Minute)

type minuteRing struct {
	counts [ringMinutes]int
	stamps [ringMinutes]int64 // unix minute each bucket belongs to
}

func NewMinuteCounter() *MinuteCounter {
	return &MinuteCounter{sites: make(map[string]*minuteRing)}
}

func (c *MinuteCounter) Incr(siteID string, now time.Time) {
	minute := now.Unix() / 60

	c.mu.Lock()
	defer c.mu.Unlock()

	ring := c.sites[siteID]
	if ring == nil {
		ring = &minuteRing{}
		c.sites[siteID] = ring
	}

	idx := int(minute) % ringMinutes
	if ring.stamps[idx] != minute {
		// bucket is from an old rotation, reclaim it
		ring.counts[idx] = 0
		ring.stamps[idx] = minute
	}
	ring.counts[idx]++
}

func (c *MinuteCounter) CountSince(siteID string, window time.Duration, now time.Time) int {
	minute := now.Unix() / 60
	oldest := minute - int64(window/time.Minute) + 1

	c.mu.Lock()
	defer c.mu.Unlock()

	ring := c.sites[siteID]
	if ring == nil {
		return 0
	}

	total := 0
	for i := 0; i < ringMinutes; i++ {
		if ring.stamps[i] >= oldest && ring.stamps[i] <= minute {
			total += ring.counts[i]
		}
	}
	return total
}
