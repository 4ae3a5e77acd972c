package searcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/raysh454/dorkrecon/internal/catalog"
	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/pool"
	"github.com/raysh454/dorkrecon/internal/webclient"
)

// GitHubClient runs dorks against the GitHub code search API. A pooled token,
// when supplied, authenticates the request and lifts the anonymous quota.
type GitHubClient struct {
	cfg    Config
	wc     webclient.WebClient
	logger logging.Logger
}

// NewGitHubClient builds the GitHub search client.
func NewGitHubClient(cfg Config, wc webclient.WebClient, logger logging.Logger) *GitHubClient {
	return &GitHubClient{
		cfg:    cfg,
		wc:     wc,
		logger: logger.With(logging.Field{Key: "component", Value: "searcher.github"}),
	}
}

func (g *GitHubClient) Platform() string { return catalog.PlatformGitHub }

// codeSearchResponse is the subset of the API response we consume.
type codeSearchResponse struct {
	TotalCount int `json:"total_count"`
	Items      []struct {
		Path       string `json:"path"`
		HTMLURL    string `json:"html_url"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	} `json:"items"`
}

// Search runs one code-search query.
func (g *GitHubClient) Search(ctx context.Context, item catalog.WorkItem, res *pool.Resource) ([]Finding, error) {
	if g.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.RequestTimeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("q", item.Query)
	if g.cfg.ResultsPerQuery > 0 {
		q.Set("per_page", fmt.Sprintf("%d", g.cfg.ResultsPerQuery))
	}
	searchURL := g.cfg.GitHubAPIBaseURL + "/search/code?" + q.Encode()

	headers := http.Header{}
	headers.Set("Accept", "application/vnd.github.v3+json")
	if res != nil && res.Kind == pool.KindToken && res.Token != "" {
		headers.Set("Authorization", "token "+res.Token)
	}

	g.logger.Info("executing github dork", logging.Field{Key: "query", Value: item.Query})

	resp, err := g.wc.Do(ctx, &webclient.Request{Method: http.MethodGet, URL: searchURL, Headers: headers})
	if err != nil {
		return nil, fmt.Errorf("github search: %w", err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusTooManyRequests:
		return nil, fmt.Errorf("github search: rate limited (status %d)", resp.StatusCode)
	default:
		return nil, fmt.Errorf("github search: unexpected status %d", resp.StatusCode)
	}

	var parsed codeSearchResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, fmt.Errorf("github search: decode response: %w", err)
	}

	findings := make([]Finding, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		findings = append(findings, Finding{
			Dork:     item.Query,
			Platform: item.Platform,
			Category: item.Category,
			URL:      it.HTMLURL,
			Snippet:  fmt.Sprintf("%s: %s", it.Repository.FullName, it.Path),
		})
	}

	g.logger.Info("github dork finished",
		logging.Field{Key: "query", Value: item.Query},
		logging.Field{Key: "total", Value: parsed.TotalCount},
		logging.Field{Key: "returned", Value: len(findings)})
	return findings, nil
}
