package monitoring

import (
	"sync"
	"time"
)

// IngestStats counts pipeline outcomes for the admin stats endpoint.
// Counters only; per-site analytics live in the event store.
type IngestStats struct {
	mu                sync.RWMutex
	pixelsServed      int64
	hitsRecorded      int64
	hitsSuppressed    int64
	hitsFailed        int64
	attackActivations int64
	started           time.Time
}

var (
	globalStats *IngestStats
	statsOnce   sync.Once
)

// GetStats returns the singleton stats collector.
func GetStats() *IngestStats {
	statsOnce.Do(func() {
		globalStats = &IngestStats{started: time.Now()}
	})
	return globalStats
}

func (s *IngestStats) PixelServed() {
	s.mu.Lock()
	s.pixelsServed++
	s.mu.Unlock()
}

func (s *IngestStats) HitRecorded() {
	s.mu.Lock()
	s.hitsRecorded++
	s.mu.Unlock()
}

func (s *IngestStats) HitSuppressed() {
	s.mu.Lock()
	s.hitsSuppressed++
	s.mu.Unlock()
}

func (s *IngestStats) HitFailed() {
	s.mu.Lock()
	s.hitsFailed++
	s.mu.Unlock()
}

func (s *IngestStats) AttackModeActivated() {
	s.mu.Lock()
	s.attackActivations++
	s.mu.Unlock()
}

// Snapshot returns the current counters for the stats endpoint.
func (s *IngestStats) Snapshot() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return map[string]interface{}{
		"pixels_served":      s.pixelsServed,
		"hits_recorded":      s.hitsRecorded,
		"hits_suppressed":    s.hitsSuppressed,
		"hits_failed":        s.hitsFailed,
		"attack_activations": s.attackActivations,
		"uptime_seconds":     int64(time.Since(s.started).Seconds()),
	}
}
