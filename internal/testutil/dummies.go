// Package testutil provides shared test doubles for use across package tests.
// All dummies implement the corresponding interfaces from the production code,
// allowing injection into components under test without real I/O or side effects.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/dorkrecon/internal/catalog"
	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/pool"
	"github.com/raysh454/dorkrecon/internal/searcher"
	"github.com/raysh454/dorkrecon/internal/webclient"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── WebClient ─────────────────────────────────────────────────────────

// DummyWebClient implements webclient.WebClient.
// By default it returns body "ok:<url>" with status 200.
// Set FailURLs[url] = true to force an error for a specific URL.
type DummyWebClient struct {
	ResponseDelay time.Duration
	FailURLs      map[string]bool
	mu            sync.Mutex
	Requests      []*webclient.Request
}

func (d *DummyWebClient) Do(ctx context.Context, req *webclient.Request) (*webclient.Response, error) {
	if d.ResponseDelay > 0 {
		select {
		case <-time.After(d.ResponseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	d.Requests = append(d.Requests, req)
	d.mu.Unlock()

	if d.FailURLs != nil && d.FailURLs[req.URL] {
		return nil, &errString{"dummy fetch fail for " + req.URL}
	}

	return &webclient.Response{
		Request:    req,
		Body:       []byte("ok:" + req.URL),
		StatusCode: 200,
		FetchedAt:  time.Now(),
	}, nil
}

func (d *DummyWebClient) Close() error { return nil }

// ─── Searcher ──────────────────────────────────────────────────────────

// StubSearcher implements searcher.Searcher with scripted behavior. By
// default each call yields one finding derived from the work item. Set
// FailOnCall to a 1-based call index to return Err (or a default error) on
// that call, or Findings to override result generation.
type StubSearcher struct {
	PlatformName string
	FailOnCall   int
	Err          error
	Findings     func(item catalog.WorkItem) []searcher.Finding

	mu        sync.Mutex
	Calls     int
	Items     []catalog.WorkItem
	Resources []*pool.Resource
}

func (s *StubSearcher) Platform() string { return s.PlatformName }

func (s *StubSearcher) Search(ctx context.Context, item catalog.WorkItem, res *pool.Resource) ([]searcher.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.Calls++
	call := s.Calls
	s.Items = append(s.Items, item)
	s.Resources = append(s.Resources, res)
	s.mu.Unlock()

	if s.FailOnCall > 0 && call == s.FailOnCall {
		if s.Err != nil {
			return nil, s.Err
		}
		return nil, &errString{fmt.Sprintf("stub search fail on call %d", call)}
	}
	if s.Findings != nil {
		return s.Findings(item), nil
	}
	return []searcher.Finding{{
		Dork:     item.Template,
		Platform: item.Platform,
		Category: item.Category,
		URL:      "https://results.example/" + item.Platform + "/" + item.Query,
		Snippet:  "match for " + item.Query,
	}}, nil
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
