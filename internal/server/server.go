// Package server exposes the scan orchestrator over HTTP and WebSocket.
package server

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/dorkrecon/internal/app"
	"github.com/raysh454/dorkrecon/internal/catalog"
	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/pool"
	"github.com/raysh454/dorkrecon/internal/scan"
	"github.com/raysh454/dorkrecon/internal/severity"
	"github.com/raysh454/dorkrecon/internal/store"
)

// Server is the HTTP + WebSocket API surface for DorkRecon.
type Server struct {
	cfg      Config
	app      *app.Application
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer creates a Server over an already wired application.
func NewServer(cfg Config, application *app.Application) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("Server")
	}

	s := &Server{
		cfg:    cfg,
		app:    application,
		router: chi.NewRouter(),
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// TODO: tighten for production
				return true
			},
		},
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// Scans
	r.Post("/api/scan", s.handleStartScan)
	r.Delete("/api/scan/{sessionID}", s.handleCancelScan)
	r.Get("/api/scan/progress/{sessionID}", s.handleGetProgress)

	// Sessions and results
	r.Get("/api/sessions", s.handleListSessions)
	r.Get("/api/sessions/{sessionID}", s.handleGetSession)
	r.Get("/api/sessions/{baseID}/diff/{headID}", s.handleDiffSessions)
	r.Get("/api/sessions/{sessionID}/export", s.handleExportSession)
	r.Put("/api/results/{resultID}/severity", s.handleUpdateSeverity)
	r.Put("/api/results/{resultID}/false-positive", s.handleFalsePositive)

	// Dork catalog
	r.Get("/api/categories", s.handleListCategories)
	r.Get("/api/dorks", s.handleListDorks)
	r.Post("/api/dorks", s.handleAddDork)
	r.Delete("/api/dorks/{dorkID}", s.handleDeleteDork)

	// Resource pools
	r.Get("/api/proxies", s.handleListProxies)
	r.Post("/api/proxies", s.handleAddProxy)
	r.Delete("/api/proxies/{proxyID}", s.handleDeleteProxy)
	r.Post("/api/proxies/reset", s.handleResetProxies)
	r.Get("/api/tokens", s.handleListTokens)
	r.Post("/api/tokens", s.handleAddToken)
	r.Delete("/api/tokens/{tokenID}", s.handleDeleteToken)
	r.Post("/api/tokens/reset", s.handleResetTokens)

	// WebSocket for live scan progress
	r.Get("/ws/scan/{sessionID}", s.handleScanWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}

	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}

	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}

	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeStoreError maps domain errors to status codes.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrResultNotFound),
		errors.Is(err, store.ErrDorkNotFound),
		errors.Is(err, store.ErrProxyNotFound),
		errors.Is(err, store.ErrTokenNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, scan.ErrEmptyTarget),
		errors.Is(err, scan.ErrInvalidTarget),
		errors.Is(err, scan.ErrInvalidPlatform),
		errors.Is(err, scan.ErrDiffTargetMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// --- Scan handlers ---

func (s *Server) handleStartScan(w http.ResponseWriter, r *http.Request) {
	var body StartScanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Platforms == "" {
		body.Platforms = scan.SelectionBoth
	}

	id, err := s.app.Orchestrator.StartScan(r.Context(), scan.ScanRequest{
		Target:     body.Target,
		TargetKind: catalog.TargetKind(body.TargetKind),
		Platforms:  body.Platforms,
		Categories: body.Categories,
	})
	if err != nil {
		s.logger.Warn("starting scan", logging.Field{Key: "error", Value: err.Error()})
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("started scan", logging.Field{Key: "session_id", Value: id})
	writeJSON(w, http.StatusAccepted, StartScanResponse{SessionID: id})
}

func (s *Server) handleCancelScan(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := s.app.Orchestrator.Cancel(sessionID); err != nil {
		s.logger.Warn("canceling scan", logging.Field{Key: "session_id", Value: sessionID}, logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.logger.Info("canceled scan", logging.Field{Key: "session_id", Value: sessionID})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	prog, err := s.app.Orchestrator.GetProgress(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

// --- Session handlers ---

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.app.Store.ListSessions(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	type sessionWithCounts struct {
		store.Session
		Counts *store.SeverityCounts `json:"severity_counts"`
	}
	out := make([]sessionWithCounts, 0, len(sessions))
	for _, sess := range sessions {
		counts, err := s.app.Store.SessionSeverityCounts(r.Context(), sess.ID)
		if err != nil {
			s.writeStoreError(w, err)
			return
		}
		out = append(out, sessionWithCounts{Session: sess, Counts: counts})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.app.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	results, err := s.app.Store.ListResults(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session": sess,
		"results": results,
	})
}

func (s *Server) handleDiffSessions(w http.ResponseWriter, r *http.Request) {
	baseID := chi.URLParam(r, "baseID")
	headID := chi.URLParam(r, "headID")
	diff, err := s.app.Orchestrator.DiffSessions(r.Context(), baseID, headID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Server) handleExportSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	sess, err := s.app.Store.GetSession(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	results, err := s.app.Store.ListResults(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	switch format {
	case "json":
		w.Header().Set("Content-Disposition", `attachment; filename="dorkrecon-`+sessionID+`.json"`)
		writeJSON(w, http.StatusOK, map[string]any{
			"session": sess,
			"results": results,
		})
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="dorkrecon-`+sessionID+`.csv"`)
		cw := csv.NewWriter(w)
		_ = cw.Write([]string{"id", "platform", "category", "dork", "result_url", "snippet", "severity", "is_false_positive", "notes"})
		for _, res := range results {
			_ = cw.Write([]string{
				strconv.FormatInt(res.ID, 10),
				res.Platform,
				res.Category,
				res.Dork,
				res.ResultURL,
				res.Snippet,
				res.Severity,
				strconv.FormatBool(res.IsFalsePositive),
				res.Notes,
			})
		}
		cw.Flush()
	default:
		writeError(w, http.StatusBadRequest, "unsupported export format: "+format)
	}
}

// --- Result review handlers ---

func (s *Server) handleUpdateSeverity(w http.ResponseWriter, r *http.Request) {
	resultID, err := strconv.ParseInt(chi.URLParam(r, "resultID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid result id")
		return
	}
	var body UpdateSeverityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !severity.Valid(body.Severity) {
		writeError(w, http.StatusBadRequest, "severity must be high, medium or low")
		return
	}
	if err := s.app.Store.UpdateResultSeverity(r.Context(), resultID, body.Severity); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": resultID, "severity": body.Severity})
}

func (s *Server) handleFalsePositive(w http.ResponseWriter, r *http.Request) {
	resultID, err := strconv.ParseInt(chi.URLParam(r, "resultID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid result id")
		return
	}
	var body FalsePositiveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.app.Store.SetResultFalsePositive(r.Context(), resultID, body.IsFalsePositive, body.Notes); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": resultID, "is_false_positive": body.IsFalsePositive})
}

// --- Catalog handlers ---

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	if platform == "" {
		platform = catalog.PlatformGoogle
	}
	cats, err := s.app.Store.ListCategories(r.Context(), platform)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"platform": platform, "categories": cats})
}

func (s *Server) handleListDorks(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	if platform == "" {
		platform = catalog.PlatformGoogle
	}
	category := r.URL.Query().Get("category")

	var (
		dorks []catalog.Dork
		err   error
	)
	if category != "" {
		dorks, err = s.app.Store.FilterDorks(r.Context(), platform, category)
	} else {
		dorks, err = s.app.Store.ListDorks(r.Context(), platform)
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dorks)
}

func (s *Server) handleAddDork(w http.ResponseWriter, r *http.Request) {
	var body AddDorkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Platform != catalog.PlatformGoogle && body.Platform != catalog.PlatformGitHub {
		writeError(w, http.StatusBadRequest, "platform must be google or github")
		return
	}
	if body.Category == "" || body.Template == "" {
		writeError(w, http.StatusBadRequest, "category and template are required")
		return
	}

	d := &catalog.Dork{Platform: body.Platform, Category: body.Category, Template: body.Template}
	if err := s.app.Store.AddDork(r.Context(), d); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.logger.Info("added dork", logging.Field{Key: "platform", Value: d.Platform}, logging.Field{Key: "category", Value: d.Category})
	writeJSON(w, http.StatusCreated, d)
}

func (s *Server) handleDeleteDork(w http.ResponseWriter, r *http.Request) {
	dorkID, err := strconv.ParseInt(chi.URLParam(r, "dorkID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid dork id")
		return
	}
	if err := s.app.Store.DeleteDork(r.Context(), dorkID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// --- Resource pool handlers ---

func (s *Server) handleListProxies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.app.Proxies.Resources())
}

func (s *Server) handleAddProxy(w http.ResponseWriter, r *http.Request) {
	var body AddProxyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Address == "" || body.Port == 0 {
		writeError(w, http.StatusBadRequest, "address and port are required")
		return
	}

	res := &pool.Resource{
		Protocol: body.Protocol,
		Address:  body.Address,
		Port:     body.Port,
		Username: body.Username,
		Password: body.Password,
	}
	if err := s.app.Store.AddProxy(r.Context(), res); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.app.Proxies.Add(res)
	s.logger.Info("added proxy", logging.Field{Key: "id", Value: res.ID})
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleDeleteProxy(w http.ResponseWriter, r *http.Request) {
	proxyID := chi.URLParam(r, "proxyID")
	if err := s.app.Store.DeleteProxy(r.Context(), proxyID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleResetProxies(w http.ResponseWriter, r *http.Request) {
	s.app.Proxies.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	resources := s.app.Tokens.Resources()
	// Full token values stay server-side.
	type maskedToken struct {
		ID           string `json:"id"`
		Token        string `json:"token"`
		Owner        string `json:"owner,omitempty"`
		FailureCount int    `json:"failure_count"`
		Active       bool   `json:"is_active"`
	}
	out := make([]maskedToken, 0, len(resources))
	for _, res := range resources {
		out = append(out, maskedToken{
			ID:           res.ID,
			Token:        maskToken(res.Token),
			Owner:        res.Owner,
			FailureCount: res.FailureCount,
			Active:       res.Active,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	var body AddTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	res := &pool.Resource{Token: body.Token, Owner: body.Owner}
	if err := s.app.Store.AddToken(r.Context(), res); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.app.Tokens.Add(res)
	s.logger.Info("added token", logging.Field{Key: "id", Value: res.ID})
	writeJSON(w, http.StatusCreated, map[string]string{"id": res.ID, "token": maskToken(res.Token)})
}

func (s *Server) handleDeleteToken(w http.ResponseWriter, r *http.Request) {
	tokenID := chi.URLParam(r, "tokenID")
	if err := s.app.Store.DeleteToken(r.Context(), tokenID); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleResetTokens(w http.ResponseWriter, r *http.Request) {
	s.app.Tokens.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "********"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

// --- WebSocket ---

// handleScanWS streams progress snapshots until the scan reaches a terminal
// status or the client goes away.
func (s *Server) handleScanWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	// Resolve before upgrading so unknown ids get a proper HTTP status.
	prog, err := s.app.Orchestrator.GetProgress(r.Context(), sessionID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(prog); err != nil {
		return
	}
	if prog.Status.Terminal() {
		return
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			prog, err := s.app.Orchestrator.GetProgress(r.Context(), sessionID)
			if err != nil {
				_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
				return
			}
			if err := conn.WriteJSON(prog); err != nil {
				return
			}
			if prog.Status.Terminal() {
				return
			}
		}
	}
}
