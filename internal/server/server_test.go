package server_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "modernc.org/sqlite"

	"github.com/raysh454/dorkrecon/internal/app"
	"github.com/raysh454/dorkrecon/internal/catalog"
	"github.com/raysh454/dorkrecon/internal/pool"
	"github.com/raysh454/dorkrecon/internal/ratelimit"
	"github.com/raysh454/dorkrecon/internal/scan"
	"github.com/raysh454/dorkrecon/internal/searcher"
	"github.com/raysh454/dorkrecon/internal/server"
	"github.com/raysh454/dorkrecon/internal/store"
	"github.com/raysh454/dorkrecon/internal/testutil"
)

type testEnv struct {
	server *server.Server
	store  *store.Store
	google *testutil.StubSearcher
	github *testutil.StubSearcher
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	db, err := sql.Open("sqlite", "file:"+t.Name()+"?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	logger := &testutil.DummyLogger{}
	st, err := store.New(db, logger)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	defaults, err := catalog.DefaultDorks()
	if err != nil {
		t.Fatalf("loading default dorks: %v", err)
	}
	if err := st.SeedDorks(context.Background(), defaults); err != nil {
		t.Fatalf("seeding dorks: %v", err)
	}

	google := &testutil.StubSearcher{PlatformName: "google"}
	github := &testutil.StubSearcher{PlatformName: "github"}
	proxies := pool.NewSelector(pool.KindProxy, pool.Config{Enabled: true}, nil, st, logger)
	tokens := pool.NewSelector(pool.KindToken, pool.Config{Enabled: true}, nil, st, logger)
	tracker := scan.NewTracker()
	orch := scan.NewOrchestrator(scan.Config{}, scan.Deps{
		Store:    st,
		Catalog:  catalog.New(st, logger),
		Limiters: ratelimit.NewRegistry(ratelimit.Config{Window: time.Minute, MaxRequests: 1000}, nil, logger),
		Searchers: map[string]searcher.Searcher{
			"google": google,
			"github": github,
		},
		Selectors: map[string]*pool.Selector{"google": proxies, "github": tokens},
		Tracker:   tracker,
		Logger:    logger,
	})

	application := &app.Application{
		Config:       app.DefaultConfig(),
		Logger:       logger,
		Store:        st,
		Catalog:      catalog.New(st, logger),
		Proxies:      proxies,
		Tokens:       tokens,
		Tracker:      tracker,
		Orchestrator: orch,
	}

	s := server.NewServer(server.Config{ListenAddr: ":0", Logger: logger}, application)
	return &testEnv{server: s, store: st, google: google, github: github}
}

func doJSON(t *testing.T, s http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON response: %v (body: %s)", err, rec.Body.String())
	}
}

func startAndFinishScan(t *testing.T, env *testEnv, body string) string {
	t.Helper()
	rec := doJSON(t, env.server, "POST", "/api/scan", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start scan status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp server.StartScanResponse
	decodeJSON(t, rec, &resp)
	if resp.SessionID == "" {
		t.Fatal("empty session id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		prog := doJSON(t, env.server, "GET", "/api/scan/progress/"+resp.SessionID, "")
		var st scan.ProgressState
		decodeJSON(t, prog, &st)
		if st.Status.Terminal() {
			return resp.SessionID
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scan did not finish in time")
	return ""
}

// ─── CORS ──────────────────────────────────────────────────────────────

func TestServer_CORS_HeaderPresent(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "GET", "/api/sessions", "")
	if origin := rec.Header().Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("expected CORS origin *, got %q", origin)
	}
}

// ─── Scans ─────────────────────────────────────────────────────────────

func TestServer_StartScanAndFetchResults(t *testing.T) {
	env := newTestServer(t)

	id := startAndFinishScan(t, env, `{"target":"example.com","platforms":"google"}`)

	rec := doJSON(t, env.server, "GET", "/api/sessions/"+id, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get session status = %d", rec.Code)
	}
	var resp struct {
		Session store.Session  `json:"session"`
		Results []store.Result `json:"results"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Session.Status != store.StatusCompleted {
		t.Errorf("session status = %s, want completed", resp.Session.Status)
	}
	if len(resp.Results) == 0 {
		t.Error("expected results from the stubbed searcher")
	}
	for _, r := range resp.Results {
		if r.Platform != "google" {
			t.Errorf("result platform = %s, want google", r.Platform)
		}
	}
}

func TestServer_StartScanRejectsBadPlatform(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "POST", "/api/scan", `{"target":"example.com","platforms":"bing"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_StartScanRejectsEmptyTarget(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "POST", "/api/scan", `{"target":"","platforms":"google"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_ProgressUnknownSession(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "GET", "/api/scan/progress/no-such-session", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_CancelUnknownScan(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "DELETE", "/api/scan/no-such-session", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestServer_ListSessionsIncludesCounts(t *testing.T) {
	env := newTestServer(t)
	startAndFinishScan(t, env, `{"target":"example.com","platforms":"google"}`)

	rec := doJSON(t, env.server, "GET", "/api/sessions", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sessions []struct {
		ID     string                `json:"id"`
		Counts *store.SeverityCounts `json:"severity_counts"`
	}
	decodeJSON(t, rec, &sessions)
	if len(sessions) != 1 {
		t.Fatalf("got %d sessions, want 1", len(sessions))
	}
	if sessions[0].Counts == nil {
		t.Error("missing severity counts")
	}
}

// ─── Export ────────────────────────────────────────────────────────────

func TestServer_ExportCSV(t *testing.T) {
	env := newTestServer(t)
	id := startAndFinishScan(t, env, `{"target":"example.com","platforms":"google"}`)

	rec := doJSON(t, env.server, "GET", "/api/sessions/"+id+"/export?format=csv", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("content type = %s, want text/csv", ct)
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) < 2 {
		t.Fatalf("csv has %d lines, want header plus rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "id,platform,category") {
		t.Errorf("unexpected csv header: %s", lines[0])
	}
}

func TestServer_ExportUnsupportedFormat(t *testing.T) {
	env := newTestServer(t)
	id := startAndFinishScan(t, env, `{"target":"example.com","platforms":"google"}`)

	rec := doJSON(t, env.server, "GET", "/api/sessions/"+id+"/export?format=xml", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// ─── Dork catalog ──────────────────────────────────────────────────────

func TestServer_DorkCRUD(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "GET", "/api/dorks?platform=google", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var dorks []catalog.Dork
	decodeJSON(t, rec, &dorks)
	if len(dorks) == 0 {
		t.Fatal("expected seeded dorks")
	}

	rec = doJSON(t, env.server, "POST", "/api/dorks",
		`{"platform":"google","category":"custom","template":"site:{{DOMAIN}} inurl:debug"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var added catalog.Dork
	decodeJSON(t, rec, &added)
	if added.ID == 0 {
		t.Error("added dork has no id")
	}

	rec = doJSON(t, env.server, "DELETE", "/api/dorks/"+jsonInt(added.ID), "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
	rec = doJSON(t, env.server, "DELETE", "/api/dorks/999999", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", rec.Code)
	}
}

func TestServer_AddDorkValidation(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "POST", "/api/dorks", `{"platform":"bing","category":"x","template":"y"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad platform status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, env.server, "POST", "/api/dorks", `{"platform":"google","category":"","template":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty fields status = %d, want 400", rec.Code)
	}
}

func TestServer_ListCategories(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "GET", "/api/categories?platform=github", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Platform   string   `json:"platform"`
		Categories []string `json:"categories"`
	}
	decodeJSON(t, rec, &resp)
	if resp.Platform != "github" || len(resp.Categories) == 0 {
		t.Errorf("categories = %+v, want seeded github categories", resp)
	}
}

// ─── Result review ─────────────────────────────────────────────────────

func TestServer_ResultReview(t *testing.T) {
	env := newTestServer(t)
	id := startAndFinishScan(t, env, `{"target":"example.com","platforms":"google"}`)

	results, err := env.store.ListResults(context.Background(), id)
	if err != nil || len(results) == 0 {
		t.Fatalf("listing results: %v (%d results)", err, len(results))
	}
	resultID := jsonInt(results[0].ID)

	rec := doJSON(t, env.server, "PUT", "/api/results/"+resultID+"/severity", `{"severity":"low"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("severity status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, env.server, "PUT", "/api/results/"+resultID+"/severity", `{"severity":"critical"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid severity status = %d, want 400", rec.Code)
	}
	rec = doJSON(t, env.server, "PUT", "/api/results/999999/severity", `{"severity":"low"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing result status = %d, want 404", rec.Code)
	}

	rec = doJSON(t, env.server, "PUT", "/api/results/"+resultID+"/false-positive",
		`{"is_false_positive":true,"notes":"staging host"}`)
	if rec.Code != http.StatusOK {
		t.Errorf("false positive status = %d", rec.Code)
	}

	updated, err := env.store.ListResults(context.Background(), id)
	if err != nil {
		t.Fatalf("relisting results: %v", err)
	}
	if updated[0].Severity != "low" || !updated[0].IsFalsePositive {
		t.Errorf("result = %+v, want low severity false positive", updated[0])
	}
}

// ─── Resource pools ────────────────────────────────────────────────────

func TestServer_ProxyCRUD(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "POST", "/api/proxies",
		`{"protocol":"http","address":"10.0.0.5","port":8080}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var added pool.Resource
	decodeJSON(t, rec, &added)
	if added.ID == "" {
		t.Fatal("added proxy has no id")
	}

	rec = doJSON(t, env.server, "GET", "/api/proxies", "")
	var proxies []pool.Resource
	decodeJSON(t, rec, &proxies)
	if len(proxies) != 1 {
		t.Errorf("got %d proxies, want 1", len(proxies))
	}

	rec = doJSON(t, env.server, "POST", "/api/proxies", `{"protocol":"http"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing address status = %d, want 400", rec.Code)
	}

	rec = doJSON(t, env.server, "DELETE", "/api/proxies/"+added.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", rec.Code)
	}
}

func TestServer_TokensAreMasked(t *testing.T) {
	env := newTestServer(t)

	rec := doJSON(t, env.server, "POST", "/api/tokens", `{"token":"ghp_supersecretvalue123","owner":"sec"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "supersecretvalue") {
		t.Error("create response leaked the raw token")
	}

	rec = doJSON(t, env.server, "GET", "/api/tokens", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "supersecretvalue") {
		t.Error("list response leaked the raw token")
	}
	if !strings.Contains(rec.Body.String(), "ghp_...") {
		t.Errorf("list response missing masked token: %s", rec.Body.String())
	}
}

// ─── Diff ──────────────────────────────────────────────────────────────

func TestServer_DiffSessions(t *testing.T) {
	env := newTestServer(t)

	base := startAndFinishScan(t, env, `{"target":"example.com","platforms":"google"}`)
	head := startAndFinishScan(t, env, `{"target":"example.com","platforms":"google"}`)

	rec := doJSON(t, env.server, "GET", "/api/sessions/"+base+"/diff/"+head, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d (body: %s)", rec.Code, rec.Body.String())
	}
	var diff scan.SessionDiff
	decodeJSON(t, rec, &diff)
	if diff.BaseID != base || diff.HeadID != head {
		t.Errorf("diff ids = %s/%s", diff.BaseID, diff.HeadID)
	}

	rec = doJSON(t, env.server, "GET", "/api/sessions/"+base+"/diff/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown head status = %d, want 404", rec.Code)
	}
}

// ─── WebSocket ─────────────────────────────────────────────────────────

func TestServer_ScanWebSocket(t *testing.T) {
	env := newTestServer(t)

	ts := httptest.NewServer(env.server)
	defer ts.Close()

	rec := doJSON(t, env.server, "POST", "/api/scan", `{"target":"example.com","platforms":"google"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start scan status = %d", rec.Code)
	}
	var resp server.StartScanResponse
	decodeJSON(t, rec, &resp)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/scan/" + resp.SessionID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing websocket: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var last scan.ProgressState
	for {
		var st scan.ProgressState
		if err := conn.ReadJSON(&st); err != nil {
			break
		}
		last = st
	}
	if !last.Status.Terminal() {
		t.Errorf("last streamed status = %s, want terminal", last.Status)
	}
	if last.Status == store.StatusCompleted && last.Progress != 100 {
		t.Errorf("final progress = %d, want 100", last.Progress)
	}
}

func TestServer_ScanWebSocketUnknownSession(t *testing.T) {
	env := newTestServer(t)

	ts := httptest.NewServer(env.server)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/scan/no-such-session"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("handshake response = %+v, want 404", resp)
	}
}

func jsonInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
