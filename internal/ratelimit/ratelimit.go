// Package ratelimit implements the sliding-window admission gate that
// throttles outbound platform requests. One Limiter exists per resource class
// (one class per search platform); all callers sharing a class share one
// admission schedule.
package ratelimit

import (
	"context"
	"time"

	"sync"

	"github.com/raysh454/dorkrecon/internal/logging"
)

// Config holds the window parameters for one resource class.
type Config struct {
	// Window is the trailing interval within which at most MaxRequests
	// admissions are granted.
	Window time.Duration `yaml:"window"`

	// MaxRequests is the admission budget per window. Zero is a degenerate
	// but accepted configuration: Admit never grants a slot and blocks a
	// full window per attempt (it still unblocks on context cancellation).
	MaxRequests int `yaml:"max_requests"`
}

// Limiter is a sliding-window rate limiter for a single resource class.
// It keeps the ordered admission timestamps of the current window and
// serializes the prune-check-record sequence under a mutex so concurrent
// callers can never overshoot the budget.
type Limiter struct {
	class  string
	cfg    Config
	logger logging.Logger

	mu         sync.Mutex
	admissions []time.Time
}

// NewLimiter creates a limiter for the given resource class.
func NewLimiter(class string, cfg Config, logger logging.Logger) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		class:  class,
		cfg:    cfg,
		logger: logger.With(logging.Field{Key: "component", Value: "ratelimit." + class}),
	}
}

// prune drops timestamps that have aged out of the window.
// Caller must hold l.mu.
func (l *Limiter) prune(now time.Time) {
	i := 0
	for i < len(l.admissions) && now.Sub(l.admissions[i]) > l.cfg.Window {
		i++
	}
	if i > 0 {
		l.admissions = append(l.admissions[:0], l.admissions[i:]...)
	}
}

// reserve attempts to record an admission. It returns ok=true when the slot
// was granted, otherwise the duration the caller should suspend before
// retrying. The returned wait is always positive so retry loops cannot spin.
func (l *Limiter) reserve() (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)

	if l.cfg.MaxRequests > 0 && len(l.admissions) < l.cfg.MaxRequests {
		l.admissions = append(l.admissions, now)
		return 0, true
	}

	if len(l.admissions) == 0 {
		// MaxRequests == 0: nothing to age out, wait a whole window.
		return l.cfg.Window, false
	}

	wait = l.cfg.Window - now.Sub(l.admissions[0])
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// Admit blocks the calling goroutine until an admission slot is free or the
// context is canceled. The wait-and-retry is an explicit loop; every
// iteration shrinks the wait because the oldest timestamp keeps aging out.
func (l *Limiter) Admit(ctx context.Context) error {
	for {
		wait, ok := l.reserve()
		if ok {
			return nil
		}

		l.logger.Info("rate limit reached, waiting",
			logging.Field{Key: "class", Value: l.class},
			logging.Field{Key: "wait", Value: wait.String()})

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// AdmitBlocking is the uncancellable variant for plain worker goroutines.
// It shares the exact window bookkeeping with Admit.
func (l *Limiter) AdmitBlocking() {
	for {
		wait, ok := l.reserve()
		if ok {
			return
		}
		l.logger.Info("rate limit reached, waiting",
			logging.Field{Key: "class", Value: l.class},
			logging.Field{Key: "wait", Value: wait.String()})
		time.Sleep(wait)
	}
}

// Snapshot reports the current in-window admission count, the budget and the
// time at which the oldest admission leaves the window.
func (l *Limiter) Snapshot() (current int, max int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	l.prune(now)

	reset = now
	if len(l.admissions) > 0 {
		reset = l.admissions[0].Add(l.cfg.Window)
	}
	return len(l.admissions), l.cfg.MaxRequests, reset
}

// Registry is an explicitly constructed keyed set of limiters. Components get
// the shared limiter for a class through the registry instead of package
// globals, so tests can build isolated instances.
type Registry struct {
	defaults Config
	perClass map[string]Config
	logger   logging.Logger

	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewRegistry creates a registry. perClass overrides the default config for
// the named classes; classes never mentioned fall back to defaults.
func NewRegistry(defaults Config, perClass map[string]Config, logger logging.Logger) *Registry {
	if defaults.Window <= 0 {
		defaults.Window = time.Minute
	}
	if defaults.MaxRequests < 0 {
		defaults.MaxRequests = 0
	}
	return &Registry{
		defaults: defaults,
		perClass: perClass,
		logger:   logger,
		limiters: make(map[string]*Limiter),
	}
}

// Limiter returns the shared limiter for a resource class, creating it
// lazily on first use.
func (r *Registry) Limiter(class string) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[class]; ok {
		return l
	}
	cfg := r.defaults
	if c, ok := r.perClass[class]; ok {
		if c.Window > 0 {
			cfg.Window = c.Window
		}
		cfg.MaxRequests = c.MaxRequests
	}
	l := NewLimiter(class, cfg, r.logger)
	r.limiters[class] = l
	return l
}
