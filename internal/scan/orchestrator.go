// Package scan runs dork scans end to end: it expands the catalog into work
// items, paces each platform through its rate limiter, executes the search
// clients, classifies findings, and persists results while publishing live
// progress.
package scan

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/net/idna"

	"github.com/raysh454/dorkrecon/internal/catalog"
	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/pool"
	"github.com/raysh454/dorkrecon/internal/ratelimit"
	"github.com/raysh454/dorkrecon/internal/searcher"
	"github.com/raysh454/dorkrecon/internal/severity"
	"github.com/raysh454/dorkrecon/internal/store"
)

var (
	ErrEmptyTarget     = errors.New("target must not be empty")
	ErrInvalidTarget   = errors.New("target is not a valid domain or organization")
	ErrInvalidPlatform = errors.New("platform must be google, github or both")
	ErrScanNotRunning  = errors.New("scan is not running")
)

// Platform selections accepted by StartScan.
const (
	SelectionGoogle = "google"
	SelectionGitHub = "github"
	SelectionBoth   = "both"
)

// DelayRange bounds the randomized pause between consecutive work items on
// one platform.
type DelayRange struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

func (d DelayRange) pick() time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(rand.Int63n(int64(d.Max-d.Min)))
}

// Config carries the orchestrator's pacing knobs.
type Config struct {
	Delays map[string]DelayRange `yaml:"delays"`
}

// DefaultConfig spaces Google requests further apart than GitHub ones.
func DefaultConfig() Config {
	return Config{
		Delays: map[string]DelayRange{
			catalog.PlatformGoogle: {Min: 1 * time.Second, Max: 2 * time.Second},
			catalog.PlatformGitHub: {Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
		},
	}
}

// ScanRequest is the validated intake for one scan run.
type ScanRequest struct {
	Target     string             `json:"target"`
	TargetKind catalog.TargetKind `json:"target_kind,omitempty"`
	Platforms  string             `json:"platforms"`
	Categories []string           `json:"categories,omitempty"`
}

// Observer is called after each completed work item. Used by the websocket
// layer to push progress without polling.
type Observer func(sessionID string, item catalog.WorkItem, findings int)

// Deps are the orchestrator's collaborators, injected at wiring time.
type Deps struct {
	Store     *store.Store
	Catalog   *catalog.Catalog
	Limiters  *ratelimit.Registry
	Searchers map[string]searcher.Searcher
	Selectors map[string]*pool.Selector
	Tracker   *Tracker
	Logger    logging.Logger
}

// Orchestrator coordinates scan runs. One instance serves the whole process;
// each run gets a background goroutine and a cancel handle.
type Orchestrator struct {
	cfg      Config
	store    *store.Store
	catalog  *catalog.Catalog
	limiters *ratelimit.Registry
	search   map[string]searcher.Searcher
	pools    map[string]*pool.Selector
	tracker  *Tracker
	logger   logging.Logger
	observer Observer

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewOrchestrator creates an orchestrator over its dependencies.
func NewOrchestrator(cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		store:    deps.Store,
		catalog:  deps.Catalog,
		limiters: deps.Limiters,
		search:   deps.Searchers,
		pools:    deps.Selectors,
		tracker:  deps.Tracker,
		logger:   deps.Logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// SetObserver installs the per-item progress hook. Must be called before the
// first StartScan.
func (o *Orchestrator) SetObserver(obs Observer) {
	o.observer = obs
}

func platformsOf(selection string) ([]string, error) {
	switch selection {
	case SelectionGoogle:
		return []string{catalog.PlatformGoogle}, nil
	case SelectionGitHub:
		return []string{catalog.PlatformGitHub}, nil
	case SelectionBoth:
		return []string{catalog.PlatformGoogle, catalog.PlatformGitHub}, nil
	default:
		return nil, ErrInvalidPlatform
	}
}

// normalizeTarget validates the target and, for domains, folds it to its
// ASCII (punycode) form so stored queries match what the platforms expect.
func normalizeTarget(target string, kind catalog.TargetKind) (string, error) {
	if target == "" {
		return "", ErrEmptyTarget
	}
	if kind != catalog.TargetDomain {
		return target, nil
	}
	ascii, err := idna.Lookup.ToASCII(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	return ascii, nil
}

// StartScan validates the request, persists a new session, moves it to
// running and launches the run goroutine. The returned id identifies the
// session for progress polling, cancellation and result retrieval.
func (o *Orchestrator) StartScan(ctx context.Context, req ScanRequest) (string, error) {
	kind := req.TargetKind
	if kind == "" {
		kind = catalog.KindOf(req.Target)
	}
	target, err := normalizeTarget(req.Target, kind)
	if err != nil {
		return "", err
	}
	platforms, err := platformsOf(req.Platforms)
	if err != nil {
		return "", err
	}

	sess := &store.Session{
		Target:     target,
		TargetKind: string(kind),
		Platforms:  req.Platforms,
		Categories: req.Categories,
		Status:     store.StatusPending,
	}
	if err := o.store.CreateSession(ctx, sess); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	if err := o.store.SetSessionStatus(ctx, sess.ID, store.StatusRunning, ""); err != nil {
		return "", fmt.Errorf("starting session: %w", err)
	}
	o.tracker.Create(sess.ID)

	// The run outlives the HTTP request that started it, so it gets its own
	// context; Cancel reaches it through the stored cancel func.
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[sess.ID] = cancel
	o.mu.Unlock()

	o.logger.Info("scan started",
		logging.Field{Key: "session_id", Value: sess.ID},
		logging.Field{Key: "target", Value: target},
		logging.Field{Key: "platforms", Value: req.Platforms})

	go o.run(runCtx, sess, kind, platforms)
	return sess.ID, nil
}

// Cancel stops a running scan. The run finalizes itself as failed with the
// cancellation error.
func (o *Orchestrator) Cancel(sessionID string) error {
	o.mu.Lock()
	cancel, ok := o.cancels[sessionID]
	o.mu.Unlock()
	if !ok {
		return ErrScanNotRunning
	}
	cancel()
	return nil
}

func (o *Orchestrator) releaseCancel(sessionID string) {
	o.mu.Lock()
	if cancel, ok := o.cancels[sessionID]; ok {
		cancel()
		delete(o.cancels, sessionID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) run(ctx context.Context, sess *store.Session, kind catalog.TargetKind, platforms []string) {
	defer o.releaseCancel(sess.ID)

	items := make(map[string][]catalog.WorkItem, len(platforms))
	total := 0
	for _, p := range platforms {
		list, err := o.catalog.WorkItems(ctx, p, sess.Target, kind, sess.Categories)
		if err != nil {
			o.fail(sess.ID, err)
			return
		}
		items[p] = list
		total += len(list)
	}

	o.tracker.Update(sess.ID, func(st *ProgressState) {
		st.TotalSteps = total
		for _, p := range platforms {
			st.Platforms[p] = PlatformProgress{Total: len(items[p])}
		}
	})

	completed := 0
	for _, p := range platforms {
		sc, ok := o.search[p]
		if !ok {
			o.fail(sess.ID, fmt.Errorf("no search client for platform %s", p))
			return
		}
		limiter := o.limiters.Limiter(p)
		selector := o.pools[p]
		delay := o.cfg.Delays[p]

		o.tracker.Update(sess.ID, func(st *ProgressState) {
			st.CurrentStep = fmt.Sprintf("Executing %s dorks...", p)
		})

		for _, item := range items[p] {
			if err := limiter.Admit(ctx); err != nil {
				o.fail(sess.ID, err)
				return
			}

			var res *pool.Resource
			if selector != nil {
				res = selector.Acquire()
			}
			findings, err := sc.Search(ctx, item, res)
			if selector != nil && res != nil {
				selector.Release(res, err == nil)
			}
			if err != nil {
				o.fail(sess.ID, fmt.Errorf("%s search %q: %w", p, item.Query, err))
				return
			}

			for _, f := range findings {
				r := &store.Result{
					SessionID: sess.ID,
					Dork:      f.Dork,
					Platform:  p,
					Category:  f.Category,
					ResultURL: f.URL,
					Snippet:   f.Snippet,
					Severity:  string(severity.Classify(p, f.Category, f.Dork)),
				}
				if err := o.store.AppendResult(ctx, r); err != nil {
					o.fail(sess.ID, fmt.Errorf("persisting result: %w", err))
					return
				}
			}

			completed++
			o.tracker.Update(sess.ID, func(st *ProgressState) {
				st.CompletedSteps = completed
				pp := st.Platforms[p]
				pp.Completed++
				st.Platforms[p] = pp
				if total > 0 {
					st.Progress = 100 * completed / total
				}
				st.CurrentStep = fmt.Sprintf("Processing %s dork: %s", p, truncate(item.Query, 40))
			})
			if o.observer != nil {
				o.observer(sess.ID, item, len(findings))
			}

			if err := sleepCtx(ctx, delay.pick()); err != nil {
				o.fail(sess.ID, err)
				return
			}
		}
	}

	if err := o.store.SetSessionStatus(context.Background(), sess.ID, store.StatusCompleted, ""); err != nil {
		o.logger.Error("finalizing session", logging.Field{Key: "error", Value: err.Error()})
	}
	o.tracker.Update(sess.ID, func(st *ProgressState) {
		st.Status = store.StatusCompleted
		st.Progress = 100
		st.CurrentStep = "Scan completed successfully"
	})
	o.logger.Info("scan completed",
		logging.Field{Key: "session_id", Value: sess.ID},
		logging.Field{Key: "items", Value: completed})
}

// fail finalizes a run that cannot continue. It deliberately ignores the
// run's context so the failure still reaches the database after cancellation.
func (o *Orchestrator) fail(sessionID string, cause error) {
	o.logger.Error("scan failed",
		logging.Field{Key: "session_id", Value: sessionID},
		logging.Field{Key: "error", Value: cause.Error()})
	if err := o.store.SetSessionStatus(context.Background(), sessionID, store.StatusFailed, cause.Error()); err != nil {
		o.logger.Error("recording failure", logging.Field{Key: "error", Value: err.Error()})
	}
	o.tracker.Update(sessionID, func(st *ProgressState) {
		st.Status = store.StatusFailed
		st.CurrentStep = "Error: " + cause.Error()
	})
}

// GetProgress reports live progress when the run is tracked in memory and
// falls back to the durable session otherwise, so finished scans stay
// queryable across restarts.
func (o *Orchestrator) GetProgress(ctx context.Context, sessionID string) (*ProgressState, error) {
	if st, ok := o.tracker.Snapshot(sessionID); ok {
		return &st, nil
	}
	sess, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	st := &ProgressState{
		SessionID:   sessionID,
		Status:      sess.Status,
		CurrentStep: "Scan not in progress",
		Platforms:   map[string]PlatformProgress{},
	}
	if sess.Status == store.StatusCompleted {
		st.Progress = 100
		st.CurrentStep = "Scan completed successfully"
	}
	return st, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
