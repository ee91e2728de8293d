// Package history keeps an sqlite journal of every agent exchange so a
// collaboration can be audited after the fact.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Exchange is one prompt sent to one agent and the reply it produced.
type Exchange struct {
	ID        string
	Role      string
	Agent     string
	Phase     string
	Iteration int
	Template  string
	Prompt    string
	Response  string
	Err       string
	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether the exchange ended with an error.
func (e Exchange) Failed() bool {
	return e.Err != ""
}

// Filter narrows List results.
type Filter struct {
	Role  string
	Limit int
}

// Store persists exchanges.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating when needed) the history database at dbPath.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("history: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: ping database: %w", err)
	}
	store := &Store{db: db, path: dbPath}
	if err := store.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("history: create migrations table: %w", err)
	}
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("history: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		var applied int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, name).Scan(&applied); err != nil {
			return fmt.Errorf("history: check migration %s: %w", name, err)
		}
		if applied > 0 {
			continue
		}
		script, err := migrationsFS.ReadFile(path.Join("migrations", name))
		if err != nil {
			return fmt.Errorf("history: read migration %s: %w", name, err)
		}
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("history: begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(script)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("history: apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`,
			name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("history: record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("history: commit migration %s: %w", name, err)
		}
	}
	return nil
}

// Record stores an exchange, assigning an id when it has none.
func (s *Store) Record(ctx context.Context, ex Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.StartedAt.IsZero() {
		ex.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO exchanges
		(id, role, agent, phase, iteration, template, prompt, response, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Role, ex.Agent, ex.Phase, ex.Iteration, ex.Template, ex.Prompt, ex.Response, ex.Err,
		ex.StartedAt.UTC().Format(timeLayout), ex.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("history: record exchange: %w", err)
	}
	return nil
}

// List returns exchanges newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Exchange, error) {
	query := `SELECT id, role, agent, phase, iteration, template, prompt, response, error, started_at, duration_ms
		FROM exchanges`
	var args []any
	if filter.Role != "" {
		query += ` WHERE role = ?`
		args = append(args, filter.Role)
	}
	query += ` ORDER BY started_at DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list exchanges: %w", err)
	}
	defer rows.Close()

	var out []Exchange
	for rows.Next() {
		var (
			ex         Exchange
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(&ex.ID, &ex.Role, &ex.Agent, &ex.Phase, &ex.Iteration, &ex.Template,
			&ex.Prompt, &ex.Response, &ex.Err, &startedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("history: scan exchange: %w", err)
		}
		ex.StartedAt, err = time.Parse(timeLayout, startedAt)
		if err != nil {
			return nil, fmt.Errorf("history: parse started_at for %s: %w", ex.ID, err)
		}
		ex.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate exchanges: %w", err)
	}
	return out, nil
}

// Count returns the number of stored exchanges.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges`).Scan(&n); err != nil {
		return 0, fmt.Errorf("history: count exchanges: %w", err)
	}
	return n, nil
}
