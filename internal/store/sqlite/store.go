// Package sqlite keeps the analysis run history in a local sqlite file.
package sqlite

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"aidiagnos/internal/model"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("dbPath is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// Connection-scoped pragmas below must hold for every statement.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record stores a run and its findings in one transaction. A run without an
// ID gets a fresh one.
func (s *Store) Record(run model.Run) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is not open")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertRun(tx, run); err != nil {
		return err
	}
	if err := replaceFindings(tx, run.ID, run.Findings); err != nil {
		return err
	}
	return tx.Commit()
}

// RecentRuns returns the newest runs first. An empty key lists every
// document.
func (s *Store) RecentRuns(key model.DocumentKey, limit int) ([]model.Run, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	if limit <= 0 {
		limit = 20
	}

	q := `SELECT id, doc_key, model, started_at, duration_ms, outcome, error, total, dropped
	      FROM runs`
	args := []any{}
	if strings.TrimSpace(string(key)) != "" {
		q += ` WHERE doc_key = ?`
		args = append(args, string(key))
	}
	q += ` ORDER BY started_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Run
	for rows.Next() {
		var (
			r         model.Run
			key       string
			startedMS int64
			durMS     int64
		)
		if err := rows.Scan(&r.ID, &key, &r.Model, &startedMS, &durMS, &r.Outcome, &r.Error, &r.Total, &r.Dropped); err != nil {
			return nil, err
		}
		r.Key = model.DocumentKey(key)
		r.Started = time.UnixMilli(startedMS)
		r.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Findings(runID string) (model.ParsedResult, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is not open")
	}
	rows, err := s.db.Query(
		`SELECT lnum, col, end_lnum, end_col, severity, message, code, source
		 FROM findings
		 WHERE run_id = ?
		 ORDER BY seq`,
		strings.TrimSpace(runID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := model.ParsedResult{}
	for rows.Next() {
		var (
			f   model.RangedFinding
			sev string
		)
		if err := rows.Scan(&f.Range.StartLine, &f.Range.StartCol, &f.Range.EndLine, &f.Range.EndCol, &sev, &f.Message, &f.Code, &f.Source); err != nil {
			return nil, err
		}
		f.Severity = model.Severity(sev)
		out = append(out, f)
	}
	return out, rows.Err()
}

// CountRuns reports how many runs the history holds.
func (s *Store) CountRuns() (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is not open")
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM runs`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// upsertRun overwrites a run with the same ID, so recording a run again
// replaces it.
func upsertRun(tx *sql.Tx, run model.Run) error {
	key := strings.TrimSpace(string(run.Key))
	if key == "" {
		return fmt.Errorf("document key is required")
	}
	outcome := strings.TrimSpace(run.Outcome)
	if outcome == "" {
		outcome = "unknown"
	}
	_, err := tx.Exec(
		`INSERT INTO runs (id, doc_key, model, started_at, duration_ms, outcome, error, total, dropped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   doc_key=excluded.doc_key,
		   model=excluded.model,
		   started_at=excluded.started_at,
		   duration_ms=excluded.duration_ms,
		   outcome=excluded.outcome,
		   error=excluded.error,
		   total=excluded.total,
		   dropped=excluded.dropped`,
		run.ID,
		key,
		run.Model,
		run.Started.UnixMilli(),
		run.Duration.Milliseconds(),
		outcome,
		run.Error,
		run.Total,
		run.Dropped,
	)
	return err
}

func replaceFindings(tx *sql.Tx, runID string, findings []model.RangedFinding) error {
	if _, err := tx.Exec(`DELETE FROM findings WHERE run_id = ?`, runID); err != nil {
		return err
	}
	for i, f := range findings {
		if _, err := tx.Exec(
			`INSERT INTO findings (run_id, seq, lnum, col, end_lnum, end_col, severity, message, code, source)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID,
			i,
			f.Range.StartLine,
			f.Range.StartCol,
			f.Range.EndLine,
			f.Range.EndCol,
			string(f.Severity),
			f.Message,
			f.Code,
			f.Source,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) init() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}
	_, _ = s.db.Exec("PRAGMA journal_mode = WAL")

	return execStatements(s.db, schemaSQL)
}

func execStatements(db *sql.DB, sqlText string) error {
	if db == nil {
		return fmt.Errorf("db is nil")
	}
	sqlText = strings.ReplaceAll(sqlText, "\r\n", "\n")

	var cleaned strings.Builder
	for _, line := range strings.Split(sqlText, "\n") {
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		if strings.HasPrefix(trim, "--") {
			continue
		}
		cleaned.WriteString(line)
		cleaned.WriteString("\n")
	}

	parts := strings.Split(cleaned.String(), ";")
	for _, raw := range parts {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}
