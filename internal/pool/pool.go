// Package pool manages rotation pools of interchangeable remote-access
// resources: outbound proxies and GitHub API tokens. The selector decides
// WHICH transport resource a request uses; whether the request may proceed at
// all is the rate limiter's concern.
package pool

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/raysh454/dorkrecon/internal/logging"
)

// Kind distinguishes the two resource pools.
type Kind string

const (
	KindProxy Kind = "proxy"
	KindToken Kind = "token"
)

// Resource is one pooled proxy or credential. A resource whose failure
// counter reaches the configured threshold is marked inactive and is never
// selected again until Reset.
type Resource struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	// Proxy fields.
	Protocol string `json:"protocol,omitempty"`
	Address  string `json:"address,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"-"`

	// Token fields.
	Token string `json:"-"`
	Owner string `json:"owner,omitempty"`

	LastUsed     time.Time `json:"last_used,omitzero"`
	FailureCount int       `json:"failure_count"`
	Active       bool      `json:"active"`
}

// URL returns the full proxy URL, including credentials when present.
func (r *Resource) URL() string {
	if r.Username != "" && r.Password != "" {
		return fmt.Sprintf("%s://%s:%s@%s:%d", r.Protocol, r.Username, r.Password, r.Address, r.Port)
	}
	return fmt.Sprintf("%s://%s:%d", r.Protocol, r.Address, r.Port)
}

// Store persists selector-driven mutations. Implementations may be a durable
// database or a no-op for purely in-memory pools.
type Store interface {
	// TouchResource records that a resource was handed out.
	TouchResource(ctx context.Context, id string, lastUsed time.Time) error

	// UpdateResourceHealth records the failure counter and active flag.
	UpdateResourceHealth(ctx context.Context, id string, failureCount int, active bool) error

	// ResetResourceFailures zeroes every resource counter of a kind and
	// reactivates them.
	ResetResourceFailures(ctx context.Context, kind Kind) error
}

// Config controls one selector.
type Config struct {
	// Enabled gates the whole pool; a disabled selector always returns nil
	// from Acquire. Mirrors the use_proxies switch.
	Enabled bool `yaml:"enabled"`

	// FailureThreshold is the consecutive-failure count at which a resource
	// is deactivated.
	FailureThreshold int `yaml:"failure_threshold"`
}

// DefaultConfig returns the selector defaults.
func DefaultConfig() Config {
	return Config{Enabled: false, FailureThreshold: 3}
}

// Selector rotates resources of one kind: eligible resources are ordered by
// last use and one of the three least recently used is picked at random, so
// rotation is fair without herding onto a single oldest entry.
type Selector struct {
	kind   Kind
	cfg    Config
	store  Store
	logger logging.Logger

	mu        sync.Mutex
	resources []*Resource
}

// NewSelector builds a selector over the given resources. store may be nil
// for in-memory pools (tests, CLI one-shots).
func NewSelector(kind Kind, cfg Config, resources []*Resource, store Store, logger logging.Logger) *Selector {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	return &Selector{
		kind:      kind,
		cfg:       cfg,
		store:     store,
		resources: resources,
		logger:    logger.With(logging.Field{Key: "component", Value: "pool." + string(kind)}),
	}
}

// Add appends a resource to the pool.
func (s *Selector) Add(r *Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Kind = s.kind
	s.resources = append(s.resources, r)
}

// Acquire returns the next resource to use, or nil when the pool is disabled,
// empty, or fully exhausted. A nil return is not an error; callers proceed
// without a resource.
func (s *Selector) Acquire() *Resource {
	if !s.cfg.Enabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	eligible := make([]*Resource, 0, len(s.resources))
	for _, r := range s.resources {
		if r.Active && r.FailureCount < s.cfg.FailureThreshold {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		s.logger.Warn("no active resources available", logging.Field{Key: "kind", Value: string(s.kind)})
		return nil
	}

	// Oldest first; never-used resources sort before everything.
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].LastUsed.Before(eligible[j].LastUsed)
	})

	n := len(eligible)
	if n > 3 {
		n = 3
	}
	chosen := eligible[rand.Intn(n)]
	chosen.LastUsed = time.Now().UTC()

	if s.store != nil {
		if err := s.store.TouchResource(context.Background(), chosen.ID, chosen.LastUsed); err != nil {
			s.logger.Warn("persisting resource usage",
				logging.Field{Key: "id", Value: chosen.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}

	s.logger.Info("selected resource",
		logging.Field{Key: "id", Value: chosen.ID},
		logging.Field{Key: "kind", Value: string(s.kind)})
	return chosen
}

// Release reports the outcome of using a resource. A failed use bumps the
// failure counter; reaching the threshold deactivates the resource.
func (s *Selector) Release(r *Resource, ok bool) {
	if r == nil || ok {
		return
	}

	s.mu.Lock()
	r.FailureCount++
	if r.FailureCount >= s.cfg.FailureThreshold {
		r.Active = false
		s.logger.Warn("resource deactivated after repeated failures",
			logging.Field{Key: "id", Value: r.ID},
			logging.Field{Key: "failures", Value: r.FailureCount})
	}
	failures, active := r.FailureCount, r.Active
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpdateResourceHealth(context.Background(), r.ID, failures, active); err != nil {
			s.logger.Warn("persisting resource health",
				logging.Field{Key: "id", Value: r.ID},
				logging.Field{Key: "error", Value: err.Error()})
		}
	}
}

// Reset zeroes every failure counter and reactivates the whole pool.
func (s *Selector) Reset() {
	s.mu.Lock()
	for _, r := range s.resources {
		r.FailureCount = 0
		r.Active = true
	}
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.ResetResourceFailures(context.Background(), s.kind); err != nil {
			s.logger.Warn("persisting pool reset", logging.Field{Key: "error", Value: err.Error()})
		}
	}
	s.logger.Info("reset failure counters", logging.Field{Key: "kind", Value: string(s.kind)})
}

// Resources returns a snapshot copy of the pool for read-only reporting.
func (s *Selector) Resources() []Resource {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, *r)
	}
	return out
}
