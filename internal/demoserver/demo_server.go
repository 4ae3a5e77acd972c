// Package demoserver runs a local stand-in for the Google and GitHub search
// surfaces. Pointing the searcher config at it allows full scans without
// touching the real platforms, and switching the corpus version between scans
// produces diffable result sets.
package demoserver

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"sync"
)

// DemoServer is a simple HTTP server imitating both search platforms.
type DemoServer struct {
	cfg     Config
	mu      sync.RWMutex
	version int
}

// NewDemoServer creates a new demo server instance.
func NewDemoServer(cfg Config) *DemoServer {
	version := cfg.InitialVersion
	if version < 1 {
		version = 1
	}
	return &DemoServer{cfg: cfg, version: version}
}

// Handler returns the demo server's routes.
func (s *DemoServer) Handler() http.Handler {
	mux := http.NewServeMux()

	// Platform imitations
	mux.HandleFunc("/search", s.googleHandler)
	mux.HandleFunc("/search/code", s.githubHandler)

	// Control panel for version switching
	mux.HandleFunc("/demo/set-version", s.setVersionHandler)
	mux.HandleFunc("/demo/get-version", s.getVersionHandler)
	mux.HandleFunc("/demo/bump", s.bumpVersionHandler)
	mux.HandleFunc("/demo/reset", s.resetVersionHandler)

	return mux
}

// Start starts the demo server.
func (s *DemoServer) Start() error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	fmt.Printf("Demo server starting on http://localhost%s\n", addr)
	fmt.Printf("Google imitation at /search, GitHub imitation at /search/code\n")
	return http.ListenAndServe(addr, s.Handler())
}

func (s *DemoServer) currentVersion() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

var googlePage = template.Must(template.New("results").Parse(`<!DOCTYPE html>
<html><head><title>{{.Query}} - Search</title></head>
<body>
<div id="search">
{{range .Results}}<div class="g">
  <a href="{{.URL}}"><h3>{{.Title}}</h3></a>
  <div class="VwiC3b">{{.Snippet}}</div>
</div>
{{end}}</div>
</body></html>
`))

func (s *DemoServer) googleHandler(w http.ResponseWriter, r *http.Request) {
	fixture := fixtureFor(s.currentVersion())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := googlePage.Execute(w, map[string]any{
		"Query":   r.URL.Query().Get("q"),
		"Results": fixture.Google,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *DemoServer) githubHandler(w http.ResponseWriter, r *http.Request) {
	fixture := fixtureFor(s.currentVersion())

	type repository struct {
		FullName string `json:"full_name"`
	}
	type item struct {
		Path       string     `json:"path"`
		HTMLURL    string     `json:"html_url"`
		Repository repository `json:"repository"`
		TextMatch  string     `json:"text_match,omitempty"`
	}
	items := make([]item, 0, len(fixture.GitHub))
	for _, res := range fixture.GitHub {
		items = append(items, item{
			Path:       res.FilePath,
			HTMLURL:    res.URL,
			Repository: repository{FullName: res.RepoName},
			TextMatch:  res.Snippet,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_count": len(items),
		"items":       items,
	})
}

func (s *DemoServer) setVersionHandler(w http.ResponseWriter, r *http.Request) {
	v, err := strconv.Atoi(r.URL.Query().Get("version"))
	if err != nil || v < 1 || v > MaxVersion {
		http.Error(w, fmt.Sprintf("version must be between 1 and %d", MaxVersion), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.version = v
	s.mu.Unlock()
	fmt.Fprintf(w, "version set to %d\n", v)
}

func (s *DemoServer) getVersionHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "%d\n", s.currentVersion())
}

func (s *DemoServer) bumpVersionHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.version < MaxVersion {
		s.version++
	}
	v := s.version
	s.mu.Unlock()
	fmt.Fprintf(w, "version set to %d\n", v)
}

func (s *DemoServer) resetVersionHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.version = 1
	s.mu.Unlock()
	fmt.Fprintln(w, "version set to 1")
}
