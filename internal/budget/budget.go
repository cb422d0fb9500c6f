// Package budget implements the cooperative resource-yield signal (§4.14)
// shared by the long-process runner and the behaviour workflow runner:
// resources_exceeded() is true once wall-clock elapsed since start passes
// a ceiling, or process memory usage passes a fraction of a configured cap.
package budget

import (
	"runtime"
	"time"
)

// Config carries the two resource ceilings (§6 "runner" configuration).
type Config struct {
	MaxExecution        time.Duration
	MemoryLimitPercent  float64
	MemoryCapBytes      uint64
}

// DefaultConfig returns 25s / 0.8, with a 512MiB memory cap.
func DefaultConfig() Config {
	return Config{
		MaxExecution:       25 * time.Second,
		MemoryLimitPercent: 0.8,
		MemoryCapBytes:     512 * 1024 * 1024,
	}
}

// Tracker measures elapsed time since it was started, against Config.
type Tracker struct {
	cfg       Config
	startedAt time.Time
}

// NewTracker starts a Tracker at the given instant (callers pass the
// process/workflow's own started_at so a resumed run keeps its original
// clock).
func NewTracker(cfg Config, startedAt time.Time) *Tracker {
	return &Tracker{cfg: cfg, startedAt: startedAt}
}

// Exceeded implements resources_exceeded().
func (t *Tracker) Exceeded() bool {
	if t.cfg.MaxExecution > 0 && time.Since(t.startedAt) >= t.cfg.MaxExecution {
		return true
	}
	if t.cfg.MemoryLimitPercent > 0 && t.cfg.MemoryCapBytes > 0 {
		var mem runtime.MemStats
		runtime.ReadMemStats(&mem)
		limit := float64(t.cfg.MemoryCapBytes) * t.cfg.MemoryLimitPercent
		if float64(mem.Alloc) >= limit {
			return true
		}
	}
	return false
}
