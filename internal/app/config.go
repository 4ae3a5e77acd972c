package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raysh454/dorkrecon/internal/pool"
	"github.com/raysh454/dorkrecon/internal/ratelimit"
	"github.com/raysh454/dorkrecon/internal/scan"
	"github.com/raysh454/dorkrecon/internal/searcher"
	"github.com/raysh454/dorkrecon/internal/webclient"
)

// Config aggregates the runtime configuration for all components. Zero values
// fall back to DefaultConfig at load time, so a partial YAML file is enough.
type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string `yaml:"listen_addr"`

	// StorageRoot is the base path where the database is kept. A leading ~
	// expands to the user's home directory.
	StorageRoot string `yaml:"storage_root"`

	RateLimitDefaults ratelimit.Config            `yaml:"rate_limit_defaults"`
	RateLimits        map[string]ratelimit.Config `yaml:"rate_limits"`

	Proxies pool.Config `yaml:"proxies"`
	Tokens  pool.Config `yaml:"tokens"`

	Searcher  searcher.Config  `yaml:"searcher"`
	WebClient webclient.Config `yaml:"webclient"`
	Scan      scan.Config      `yaml:"scan"`
}

// DefaultConfig returns a Config populated with production defaults. Google
// gets the small request budget, GitHub's code search API tolerates more.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:        ":8080",
		StorageRoot:       "~/.config/dorkrecon",
		RateLimitDefaults: ratelimit.Config{Window: time.Minute, MaxRequests: 10},
		RateLimits: map[string]ratelimit.Config{
			"google": {Window: time.Minute, MaxRequests: 10},
			"github": {Window: time.Minute, MaxRequests: 30},
		},
		Proxies:   pool.DefaultConfig(),
		Tokens:    pool.DefaultConfig(),
		Searcher:  searcher.DefaultConfig(),
		WebClient: webclient.DefaultConfig(),
		Scan:      scan.DefaultConfig(),
	}
}

// LoadConfig reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

func expandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
