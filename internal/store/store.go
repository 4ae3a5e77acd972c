// Package store is the durable session/result/template/resource store backed
// by SQLite. It serializes its own writes through database/sql; every record
// append is its own transaction boundary.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raysh454/dorkrecon/internal/catalog"
	"github.com/raysh454/dorkrecon/internal/logging"
	"github.com/raysh454/dorkrecon/internal/pool"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrSessionNotFound = errors.New("scan session not found")
	ErrResultNotFound  = errors.New("result not found")
	ErrDorkNotFound    = errors.New("dork not found")
	ErrProxyNotFound   = errors.New("proxy not found")
	ErrTokenNotFound   = errors.New("token not found")
)

// Store wraps the SQLite database holding sessions, results, dork templates
// and the proxy/token pools.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// New returns a Store and applies the schema. db is typically the SQLite DB
// at <storage root>/dorkrecon.db.
func New(db *sql.DB, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if err := applySchema(db); err != nil {
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// applySchema applies pragmas and the embedded schema.
func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-Ahead Logging for better concurrency
		"PRAGMA synchronous=NORMAL", // Balance between safety and performance
		"PRAGMA foreign_keys=ON",    // Enable foreign key constraints
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds on locked database
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// ─── Sessions ──────────────────────────────────────────────────────────

// CreateSession inserts a new session. The caller supplies the id (uuid) and
// status; CreatedAt is stamped here.
func (s *Store) CreateSession(ctx context.Context, sess *Session) error {
	if sess.ID == "" {
		sess.ID = uuid.New().String()
	}
	if sess.Status == "" {
		sess.Status = StatusPending
	}
	sess.CreatedAt = time.Now().Unix()

	cats, err := json.Marshal(sess.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scan_sessions (id, target, target_kind, platforms, categories, status, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Target, sess.TargetKind, sess.Platforms, string(cats), string(sess.Status), sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// SetSessionStatus transitions a session. Terminal statuses stamp
// completed_at; errorMessage is only persisted for failed sessions, keeping
// the invariant that error detail exists iff the session failed.
func (s *Store) SetSessionStatus(ctx context.Context, id string, status Status, errorMessage string) error {
	var completedAt sql.NullInt64
	if status.Terminal() {
		completedAt = sql.NullInt64{Int64: time.Now().Unix(), Valid: true}
	}
	var errMsg sql.NullString
	if status == StatusFailed && errorMessage != "" {
		errMsg = sql.NullString{String: errorMessage, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE scan_sessions SET status = ?, completed_at = ?, error_message = ? WHERE id = ?`,
		string(status), completedAt, errMsg, id,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func scanSessionRow(row interface{ Scan(...any) error }) (*Session, error) {
	var sess Session
	var cats string
	var errMsg sql.NullString
	var completed sql.NullInt64
	if err := row.Scan(&sess.ID, &sess.Target, &sess.TargetKind, &sess.Platforms,
		&cats, &sess.Status, &errMsg, &sess.CreatedAt, &completed); err != nil {
		return nil, err
	}
	if errMsg.Valid {
		sess.ErrorMessage = errMsg.String
	}
	if completed.Valid {
		sess.CompletedAt = completed.Int64
	}
	if cats != "" {
		if err := json.Unmarshal([]byte(cats), &sess.Categories); err != nil {
			return nil, fmt.Errorf("unmarshal categories: %w", err)
		}
	}
	return &sess, nil
}

const sessionColumns = `id, target, target_kind, platforms, categories, status, error_message, created_at, completed_at`

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM scan_sessions WHERE id = ? LIMIT 1`, id)
	sess, err := scanSessionRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return sess, nil
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM scan_sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSessionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// ─── Results ───────────────────────────────────────────────────────────

// AppendResult inserts one result row and fills in its assigned id.
func (s *Store) AppendResult(ctx context.Context, r *Result) error {
	if r.Severity == "" {
		r.Severity = "medium"
	}
	r.CreatedAt = time.Now().Unix()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO results (session_id, dork, platform, category, result_url, snippet, severity, is_false_positive, notes, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Dork, r.Platform, r.Category, r.ResultURL, r.Snippet, r.Severity,
		boolToInt(r.IsFalsePositive), r.Notes, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("result insert id: %w", err)
	}
	r.ID = id
	return nil
}

// ListResults returns a session's results in processing (insertion) order.
func (s *Store) ListResults(ctx context.Context, sessionID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, dork, platform, category, result_url, snippet, severity, is_false_positive, notes, created_at
         FROM results WHERE session_id = ? ORDER BY id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var r Result
		var snippet, notes sql.NullString
		var fp int
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Dork, &r.Platform, &r.Category,
			&r.ResultURL, &snippet, &r.Severity, &fp, &notes, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Snippet = snippet.String
		r.Notes = notes.String
		r.IsFalsePositive = fp != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateResultSeverity re-grades one result.
func (s *Store) UpdateResultSeverity(ctx context.Context, id int64, sev string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE results SET severity = ? WHERE id = ?`, sev, id)
	if err != nil {
		return fmt.Errorf("update result severity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrResultNotFound
	}
	return nil
}

// SetResultFalsePositive flags a result as (not) a false positive with
// reviewer notes.
func (s *Store) SetResultFalsePositive(ctx context.Context, id int64, fp bool, notes string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE results SET is_false_positive = ?, notes = ? WHERE id = ?`,
		boolToInt(fp), notes, id)
	if err != nil {
		return fmt.Errorf("update result false positive: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrResultNotFound
	}
	return nil
}

// SessionSeverityCounts tallies a session's results by severity tier plus the
// false-positive count.
func (s *Store) SessionSeverityCounts(ctx context.Context, sessionID string) (*SeverityCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT severity, is_false_positive, COUNT(*) FROM results WHERE session_id = ? GROUP BY severity, is_false_positive`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var c SeverityCounts
	for rows.Next() {
		var sev string
		var fp, n int
		if err := rows.Scan(&sev, &fp, &n); err != nil {
			return nil, err
		}
		switch sev {
		case "high":
			c.High += n
		case "medium":
			c.Medium += n
		case "low":
			c.Low += n
		}
		if fp != 0 {
			c.FalsePositive += n
		}
	}
	return &c, rows.Err()
}

// ─── Dorks ─────────────────────────────────────────────────────────────

// ListDorks returns all templates for a platform in insertion order. This is
// the catalog.Source contract.
func (s *Store) ListDorks(ctx context.Context, platform string) ([]catalog.Dork, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, category, template FROM dorks WHERE platform = ? ORDER BY id ASC`, platform)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDorks(rows)
}

// FilterDorks lists templates, optionally narrowed by platform and category.
// Empty arguments match everything.
func (s *Store) FilterDorks(ctx context.Context, platform, category string) ([]catalog.Dork, error) {
	q := `SELECT id, platform, category, template FROM dorks WHERE 1=1`
	var args []any
	if platform != "" && platform != "both" {
		q += ` AND platform = ?`
		args = append(args, platform)
	}
	if category != "" {
		q += ` AND category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDorks(rows)
}

func collectDorks(rows *sql.Rows) ([]catalog.Dork, error) {
	var out []catalog.Dork
	for rows.Next() {
		var d catalog.Dork
		if err := rows.Scan(&d.ID, &d.Platform, &d.Category, &d.Template); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ListCategories returns the distinct categories for a platform, sorted.
// Platform "both" (or empty) spans both platforms.
func (s *Store) ListCategories(ctx context.Context, platform string) ([]string, error) {
	q := `SELECT DISTINCT category FROM dorks`
	var args []any
	if platform != "" && platform != "both" {
		q += ` WHERE platform = ?`
		args = append(args, platform)
	}
	q += ` ORDER BY category ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddDork inserts a template and fills in its assigned id.
func (s *Store) AddDork(ctx context.Context, d *catalog.Dork) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO dorks (platform, category, template) VALUES (?, ?, ?)`,
		d.Platform, d.Category, d.Template)
	if err != nil {
		return fmt.Errorf("insert dork: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("dork insert id: %w", err)
	}
	d.ID = id
	return nil
}

// DeleteDork removes a template by id.
func (s *Store) DeleteDork(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM dorks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete dork: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDorkNotFound
	}
	return nil
}

// SeedDorks fills an empty dork table with the given defaults. A non-empty
// table is left untouched.
func (s *Store) SeedDorks(ctx context.Context, dorks []catalog.Dork) error {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dorks`).Scan(&n); err != nil {
		return fmt.Errorf("count dorks: %w", err)
	}
	if n > 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, d := range dorks {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dorks (platform, category, template) VALUES (?, ?, ?)`,
			d.Platform, d.Category, d.Template); err != nil {
			tx.Rollback()
			return fmt.Errorf("seed dork: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.Info("seeded dork templates", logging.Field{Key: "count", Value: len(dorks)})
	return nil
}

// ─── Proxies ───────────────────────────────────────────────────────────

// AddProxy inserts a proxy, assigning an id when missing.
func (s *Store) AddProxy(ctx context.Context, r *pool.Resource) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.Kind = pool.KindProxy
	r.Active = true
	if r.Protocol == "" {
		r.Protocol = "http"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO proxies (id, protocol, address, port, username, password, failure_count, is_active)
         VALUES (?, ?, ?, ?, ?, ?, 0, 1)`,
		r.ID, r.Protocol, r.Address, r.Port, r.Username, r.Password)
	if err != nil {
		return fmt.Errorf("insert proxy: %w", err)
	}
	return nil
}

// ListProxies returns all proxies in insertion order.
func (s *Store) ListProxies(ctx context.Context) ([]*pool.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, protocol, address, port, username, password, last_used, failure_count, is_active
         FROM proxies ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*pool.Resource
	for rows.Next() {
		r := &pool.Resource{Kind: pool.KindProxy}
		var user, pass sql.NullString
		var lastUsed sql.NullInt64
		var active int
		if err := rows.Scan(&r.ID, &r.Protocol, &r.Address, &r.Port, &user, &pass,
			&lastUsed, &r.FailureCount, &active); err != nil {
			return nil, err
		}
		r.Username = user.String
		r.Password = pass.String
		if lastUsed.Valid {
			r.LastUsed = time.Unix(lastUsed.Int64, 0).UTC()
		}
		r.Active = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteProxy removes a proxy by id.
func (s *Store) DeleteProxy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM proxies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete proxy: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProxyNotFound
	}
	return nil
}

// ─── GitHub tokens ─────────────────────────────────────────────────────

// AddToken inserts a GitHub token, assigning an id when missing.
func (s *Store) AddToken(ctx context.Context, r *pool.Resource) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.Kind = pool.KindToken
	r.Active = true
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO github_tokens (id, token, owner, failure_count, is_active) VALUES (?, ?, ?, 0, 1)`,
		r.ID, r.Token, r.Owner)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// ListTokens returns all tokens in insertion order.
func (s *Store) ListTokens(ctx context.Context) ([]*pool.Resource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, token, owner, last_used, failure_count, is_active FROM github_tokens ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*pool.Resource
	for rows.Next() {
		r := &pool.Resource{Kind: pool.KindToken}
		var owner sql.NullString
		var lastUsed sql.NullInt64
		var active int
		if err := rows.Scan(&r.ID, &r.Token, &owner, &lastUsed, &r.FailureCount, &active); err != nil {
			return nil, err
		}
		r.Owner = owner.String
		if lastUsed.Valid {
			r.LastUsed = time.Unix(lastUsed.Int64, 0).UTC()
		}
		r.Active = active != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteToken removes a token by id.
func (s *Store) DeleteToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM github_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// ─── pool.Store implementation ─────────────────────────────────────────

// TouchResource stamps a resource's last-used time. Resource ids are uuids,
// unique across both pool tables, so the update is tried on each in turn.
func (s *Store) TouchResource(ctx context.Context, id string, lastUsed time.Time) error {
	ts := lastUsed.Unix()
	res, err := s.db.ExecContext(ctx, `UPDATE proxies SET last_used = ? WHERE id = ?`, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	res, err = s.db.ExecContext(ctx, `UPDATE github_tokens SET last_used = ? WHERE id = ?`, ts, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("touch resource %s: no such resource", id)
	}
	return nil
}

// UpdateResourceHealth persists a resource's failure counter and active flag.
func (s *Store) UpdateResourceHealth(ctx context.Context, id string, failureCount int, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE proxies SET failure_count = ?, is_active = ? WHERE id = ?`,
		failureCount, boolToInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	res, err = s.db.ExecContext(ctx,
		`UPDATE github_tokens SET failure_count = ?, is_active = ? WHERE id = ?`,
		failureCount, boolToInt(active), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update resource %s: no such resource", id)
	}
	return nil
}

// ResetResourceFailures zeroes counters and reactivates every resource of the
// given kind.
func (s *Store) ResetResourceFailures(ctx context.Context, kind pool.Kind) error {
	table := "proxies"
	if kind == pool.KindToken {
		table = "github_tokens"
	}
	_, err := s.db.ExecContext(ctx, `UPDATE `+table+` SET failure_count = 0, is_active = 1`)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
