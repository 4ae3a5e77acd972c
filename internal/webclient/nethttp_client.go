package webclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"context"

	"github.com/raysh454/dorkrecon/internal/logging"
)

// NetHTTPClient is the net/http backed fetch implementation.
type NetHTTPClient struct {
	client  *http.Client
	timeout time.Duration
	logger  logging.Logger
}

// NewNetHTTPClient creates the default backend.
func NewNetHTTPClient(cfg Config, logger logging.Logger) *NetHTTPClient {
	componentLogger := logger.With(logging.Field{Key: "component", Value: "webclient.nethttp"})
	return &NetHTTPClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		timeout: cfg.Timeout,
		logger:  componentLogger,
	}
}

// Do executes the request. A per-request proxy gets its own transport so
// pooled proxies can rotate call by call without rebuilding the client.
func (nhc *NetHTTPClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}

	nhc.logger.Debug("sending http request",
		logging.Field{Key: "method", Value: method},
		logging.Field{Key: "url", Value: req.URL})

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if req.Headers != nil {
		for k, vs := range req.Headers {
			for _, v := range vs {
				httpReq.Header.Add(k, v)
			}
		}
	}

	client := nhc.client
	if req.ProxyURL != "" {
		proxyURL, err := url.Parse(req.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		client = &http.Client{
			Timeout:   nhc.timeout,
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		nhc.logger.Warn("http request failed",
			logging.Field{Key: "method", Value: method},
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("http do: %w", err)
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		nhc.logger.Warn("failed to read response body",
			logging.Field{Key: "url", Value: req.URL},
			logging.Field{Key: "error", Value: err.Error()})
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		Request:    req,
		Body:       body,
		Headers:    resp.Header,
		StatusCode: resp.StatusCode,
		FetchedAt:  time.Now(),
	}, nil
}

// Close implements WebClient; the nethttp backend holds no resources.
func (nhc *NetHTTPClient) Close() error { return nil }
