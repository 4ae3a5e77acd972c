package ratelimit_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/ratelimit"
)

func newTestLimiter(t *testing.T, window time.Duration, max int) *ratelimit.Limiter {
	t.Helper()
	return ratelimit.NewLimiter("test", ratelimit.Config{Window: window, MaxRequests: max}, logging.NewTestLogger(false))
}

func TestLimiter_AdmitsUpToBudgetImmediately(t *testing.T) {
	l := newTestLimiter(t, time.Second, 3)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("first %d admissions should not block, took %v", 3, elapsed)
	}

	current, max, _ := l.Snapshot()
	if current != 3 || max != 3 {
		t.Fatalf("snapshot = (%d, %d), want (3, 3)", current, max)
	}
}

func TestLimiter_BlocksWhenWindowFull(t *testing.T) {
	window := 300 * time.Millisecond
	l := newTestLimiter(t, window, 2)

	for i := 0; i < 2; i++ {
		if err := l.Admit(context.Background()); err != nil {
			t.Fatalf("Admit %d: %v", i, err)
		}
	}

	start := time.Now()
	if err := l.Admit(context.Background()); err != nil {
		t.Fatalf("third Admit: %v", err)
	}
	if elapsed := time.Since(start); elapsed < window/2 {
		t.Fatalf("third admission returned after %v, expected to wait roughly %v", elapsed, window)
	}
}

// The window property: for an arbitrary concurrent call pattern, no trailing
// window interval ever contains more admissions than the budget.
func TestLimiter_WindowPropertyUnderConcurrency(t *testing.T) {
	window := 250 * time.Millisecond
	const max = 3
	const callers = 10

	l := newTestLimiter(t, window, max)

	var mu sync.Mutex
	var admitted []time.Time

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.AdmitBlocking()
			mu.Lock()
			admitted = append(admitted, time.Now())
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(admitted) != callers {
		t.Fatalf("expected %d admissions, got %d", callers, len(admitted))
	}

	sort.Slice(admitted, func(i, j int) bool { return admitted[i].Before(admitted[j]) })

	// Sliding check: admission i and admission i+max must be more than a
	// window apart. A slack factor absorbs the gap between the limiter
	// recording its timestamp and the test recording its own.
	slack := 20 * time.Millisecond
	for i := 0; i+max < len(admitted); i++ {
		gap := admitted[i+max].Sub(admitted[i])
		if gap+slack < window {
			t.Fatalf("admissions %d..%d within %v, window is %v", i, i+max, gap, window)
		}
	}
}

func TestLimiter_AdmitHonorsContextCancel(t *testing.T) {
	l := newTestLimiter(t, time.Minute, 1)
	if err := l.Admit(context.Background()); err != nil {
		t.Fatalf("first Admit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := l.Admit(ctx)
	if err == nil {
		t.Fatal("expected error from canceled Admit")
	}
	if err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestLimiter_ZeroBudgetNeverAdmits(t *testing.T) {
	l := newTestLimiter(t, 100*time.Millisecond, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()

	// Degenerate config: must block for the whole context lifetime without
	// spinning, then surface the cancellation.
	if err := l.Admit(ctx); err == nil {
		t.Fatal("zero-budget limiter granted admission")
	}

	current, max, _ := l.Snapshot()
	if current != 0 || max != 0 {
		t.Fatalf("snapshot = (%d, %d), want (0, 0)", current, max)
	}
}

func TestRegistry_SharesLimiterPerClass(t *testing.T) {
	reg := ratelimit.NewRegistry(
		ratelimit.Config{Window: time.Minute, MaxRequests: 5},
		map[string]ratelimit.Config{"github": {MaxRequests: 30}},
		logging.NewTestLogger(false),
	)

	a := reg.Limiter("google")
	b := reg.Limiter("google")
	if a != b {
		t.Fatal("registry returned distinct limiters for the same class")
	}

	if c := reg.Limiter("github"); c == a {
		t.Fatal("registry returned the same limiter for different classes")
	}

	_, max, _ := reg.Limiter("github").Snapshot()
	if max != 30 {
		t.Fatalf("github budget = %d, want per-class override 30", max)
	}
}
