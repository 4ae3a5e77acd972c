// Package searcher holds the per-platform search clients. Each client
// executes one resolved work item against its platform and returns raw
// findings; transient platform failures surface as errors and are the
// orchestrator's problem.
package searcher

import (
	"context"
	"math/rand"
	"time"

	"github.com/raysh454/dorkrecon/internal/catalog"
	"github.com/raysh454/dorkrecon/internal/pool"
)

// Finding is one raw result for a work item, before classification.
type Finding struct {
	Dork     string `json:"dork"`
	Platform string `json:"platform"`
	Category string `json:"category"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet,omitempty"`
}

// Searcher executes one work item. res is the pooled resource chosen for the
// call (proxy for Google, token for GitHub) and may be nil.
type Searcher interface {
	Platform() string

	Search(ctx context.Context, item catalog.WorkItem, res *pool.Resource) ([]Finding, error)
}

// Config tunes both clients. The URLs are configurable so tests can point
// clients at local servers.
type Config struct {
	GoogleSearchURL  string        `yaml:"google_search_url"`
	GitHubAPIBaseURL string        `yaml:"github_api_base_url"`
	ResultsPerQuery  int           `yaml:"results_per_query"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	UserAgents       []string      `yaml:"user_agents"`
}

// DefaultConfig returns the production endpoints and the rotation set of
// browser user agents.
func DefaultConfig() Config {
	return Config{
		GoogleSearchURL:  "https://www.google.com/search",
		GitHubAPIBaseURL: "https://api.github.com",
		ResultsPerQuery:  10,
		RequestTimeout:   30 * time.Second,
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.127 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.4 Safari/605.1.15",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:99.0) Gecko/20100101 Firefox/99.0",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.127 Safari/537.36",
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/99.0.4844.51 Safari/537.36 Edg/99.0.1150.30",
		},
	}
}

// userAgent picks a rotation user agent, or "" when none are configured.
func (c Config) userAgent() string {
	if len(c.UserAgents) == 0 {
		return ""
	}
	return c.UserAgents[rand.Intn(len(c.UserAgents))]
}
