package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fentz26/greenlight/internal/models"
)

// Local is the sqlite-backed local cache tier. Entry metadata lives in the
// database; captured output lives in the sibling BlobStore.
type Local struct {
	db *sql.DB
}

// NewLocal opens (or creates) the local tier database and runs migrations.
func NewLocal(dbPath string) (*Local, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	// WAL mode for concurrent readers during a run.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	l := &Local{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return l, nil
}

// Close closes the database connection.
func (l *Local) Close() error {
	return l.db.Close()
}

func (l *Local) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		task_id TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		outcome TEXT NOT NULL,
		exit_code INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		summary TEXT,
		output_ref TEXT,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (task_id, fingerprint)
	);

	CREATE TABLE IF NOT EXISTS audit (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		task_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS green_runs (
		tree_fingerprint TEXT PRIMARY KEY,
		report TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_task ON audit(task_id);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Get returns the entry for key, or nil on miss.
func (l *Local) Get(key Key) (*Entry, error) {
	e := &Entry{TaskID: key.TaskID, Fingerprint: key.Fingerprint}
	var durationMS int64
	var summary, outputRef sql.NullString

	err := l.db.QueryRow(
		`SELECT outcome, exit_code, duration_ms, summary, output_ref, created_at
		 FROM entries WHERE task_id = ? AND fingerprint = ?`,
		key.TaskID, key.Fingerprint,
	).Scan(&e.Outcome, &e.ExitCode, &durationMS, &summary, &outputRef, &e.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query cache entry: %w", err)
	}
	e.Duration = time.Duration(durationMS) * time.Millisecond
	if outputRef.Valid {
		e.OutputRef = outputRef.String
	}
	if summary.Valid && summary.String != "" {
		var s models.Summary
		if err := json.Unmarshal([]byte(summary.String), &s); err == nil {
			e.Summary = &s
		}
	}
	return e, nil
}

// Put upserts an entry. The upsert makes concurrent writers to the same key
// last-write-wins without ever exposing a partial row.
func (l *Local) Put(e *Entry) error {
	var summary any
	if e.Summary != nil {
		b, err := json.Marshal(e.Summary)
		if err != nil {
			return fmt.Errorf("encode summary: %w", err)
		}
		summary = string(b)
	}

	_, err := l.db.Exec(
		`INSERT INTO entries (task_id, fingerprint, outcome, exit_code, duration_ms, summary, output_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(task_id, fingerprint) DO UPDATE SET
			outcome = excluded.outcome,
			exit_code = excluded.exit_code,
			duration_ms = excluded.duration_ms,
			summary = excluded.summary,
			output_ref = excluded.output_ref,
			created_at = excluded.created_at`,
		e.TaskID, e.Fingerprint, string(e.Outcome), e.ExitCode,
		e.Duration.Milliseconds(), summary, e.OutputRef, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}
	return nil
}

// Prune removes entries older than maxAge and, beyond that, the oldest
// entries past maxEntries. Returns the refs of removed entries so the
// caller can drop their blobs.
func (l *Local) Prune(maxAge time.Duration, maxEntries int) ([]string, error) {
	var removed []string

	collect := func(query string, args ...any) error {
		rows, err := l.db.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ref sql.NullString
			if err := rows.Scan(&ref); err != nil {
				return err
			}
			if ref.Valid && ref.String != "" {
				removed = append(removed, ref.String)
			}
		}
		return rows.Err()
	}

	if maxAge > 0 {
		cutoff := time.Now().Add(-maxAge)
		if err := collect(`SELECT output_ref FROM entries WHERE created_at < ?`, cutoff); err != nil {
			return nil, fmt.Errorf("prune by age: %w", err)
		}
		if _, err := l.db.Exec(`DELETE FROM entries WHERE created_at < ?`, cutoff); err != nil {
			return nil, fmt.Errorf("prune by age: %w", err)
		}
	}
	if maxEntries > 0 {
		victims := `SELECT output_ref FROM entries ORDER BY created_at DESC LIMIT -1 OFFSET ?`
		if err := collect(victims, maxEntries); err != nil {
			return nil, fmt.Errorf("prune by count: %w", err)
		}
		_, err := l.db.Exec(
			`DELETE FROM entries WHERE (task_id, fingerprint) IN (
				SELECT task_id, fingerprint FROM entries ORDER BY created_at DESC LIMIT -1 OFFSET ?
			)`, maxEntries)
		if err != nil {
			return nil, fmt.Errorf("prune by count: %w", err)
		}
	}
	return removed, nil
}

// Count returns the number of cached entries.
func (l *Local) Count() (int, error) {
	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

// Clear drops all entries, returning their blob refs.
func (l *Local) Clear() ([]string, error) {
	var removed []string
	rows, err := l.db.Query(`SELECT output_ref FROM entries WHERE output_ref IS NOT NULL AND output_ref != ''`)
	if err != nil {
		return nil, fmt.Errorf("clear cache: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		removed = append(removed, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if _, err := l.db.Exec(`DELETE FROM entries`); err != nil {
		return nil, fmt.Errorf("clear cache: %w", err)
	}
	return removed, nil
}

// WriteAudit appends a decision record to the audit journal.
func (l *Local) WriteAudit(id, action, inputsHash, outcome, taskID, details string) error {
	_, err := l.db.Exec(
		`INSERT INTO audit (id, action, inputs_hash, outcome, task_id, details, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, action, inputsHash, outcome, taskID, details, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// SaveGreen records the report of a fully passing run keyed by the aggregate
// tree fingerprint.
func (l *Local) SaveGreen(treeFingerprint, reportJSON string) error {
	_, err := l.db.Exec(
		`INSERT INTO green_runs (tree_fingerprint, report, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(tree_fingerprint) DO UPDATE SET report = excluded.report, created_at = excluded.created_at`,
		treeFingerprint, reportJSON, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save green run: %w", err)
	}
	return nil
}

// LoadGreen returns the recorded report for a tree fingerprint, if any.
func (l *Local) LoadGreen(treeFingerprint string) (string, bool, error) {
	var report string
	err := l.db.QueryRow(
		`SELECT report FROM green_runs WHERE tree_fingerprint = ?`, treeFingerprint,
	).Scan(&report)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load green run: %w", err)
	}
	return report, true, nil
}
