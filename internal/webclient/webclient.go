// Package webclient abstracts how search result pages are fetched. The
// default backend is plain net/http; a chromedp backend renders JS-gated
// pages in headless Chrome for platforms that refuse unrendered clients.
package webclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/raysh454/dorkrecon/internal/logging"
)

// Request describes one outbound fetch.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte

	// ProxyURL routes this single request through a pooled proxy.
	// Empty means direct.
	ProxyURL string
}

// Response is the backend-agnostic fetch result.
type Response struct {
	Request    *Request
	Headers    http.Header
	Body       []byte
	StatusCode int
	FetchedAt  time.Time
}

// WebClient executes requests against one backend.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}

// Backend names a fetch implementation.
type Backend string

const (
	BackendNetHTTP  Backend = "nethttp"
	BackendChromedp Backend = "chromedp"
)

// Config selects and tunes the backend.
type Config struct {
	Backend Backend       `yaml:"backend"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the nethttp backend with a 30 second timeout.
func DefaultConfig() Config {
	return Config{Backend: BackendNetHTTP, Timeout: 30 * time.Second}
}

// New constructs the configured backend.
func New(cfg Config, logger logging.Logger) (WebClient, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	switch cfg.Backend {
	case "", BackendNetHTTP:
		return NewNetHTTPClient(cfg, logger), nil
	case BackendChromedp:
		return NewChromedpClient(cfg, logger), nil
	}
	return nil, fmt.Errorf("unknown webclient backend %q", cfg.Backend)
}
