package persistence

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

// RecordRound appends one round to the ledger and returns its row id.
func (s *SQLiteStore) RecordRound(ctx context.Context, r Round) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO translation_rounds
		(project, round_no, started_at, finished_at,
		 batches_completed, batches_failed, batches_blocked,
		 items_translated, input_tokens, output_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Project, r.RoundNo, r.StartedAt.UTC(), r.FinishedAt.UTC(),
		r.BatchesCompleted, r.BatchesFailed, r.BatchesBlocked,
		r.ItemsTranslated, r.InputTokens, r.OutputTokens)
	if err != nil {
		return 0, fmt.Errorf("record round: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("round id: %w", err)
	}
	return id, nil
}

// ListRounds returns a project's rounds in execution order.
func (s *SQLiteStore) ListRounds(ctx context.Context, project string) ([]Round, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, project, round_no, started_at, finished_at,
		batches_completed, batches_failed, batches_blocked,
		items_translated, input_tokens, output_tokens
		FROM translation_rounds WHERE project = ? ORDER BY round_no, id`, project)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []Round
	for rows.Next() {
		var r Round
		if err := rows.Scan(&r.ID, &r.Project, &r.RoundNo, &r.StartedAt, &r.FinishedAt,
			&r.BatchesCompleted, &r.BatchesFailed, &r.BatchesBlocked,
			&r.ItemsTranslated, &r.InputTokens, &r.OutputTokens); err != nil {
			return nil, fmt.Errorf("scan round: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TokenUsage sums token spend across every recorded round of a project.
func (s *SQLiteStore) TokenUsage(ctx context.Context, project string) (TokenUsage, error) {
	var u TokenUsage
	err := s.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(input_tokens), 0),
		COALESCE(SUM(output_tokens), 0),
		COUNT(*)
		FROM translation_rounds WHERE project = ?`, project).
		Scan(&u.InputTokens, &u.OutputTokens, &u.Rounds)
	if err != nil {
		return TokenUsage{}, fmt.Errorf("token usage: %w", err)
	}
	return u, nil
}

// NextRoundNo returns 1 plus the highest recorded round number.
func (s *SQLiteStore) NextRoundNo(ctx context.Context, project string) (int, error) {
	var last sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(round_no) FROM translation_rounds WHERE project = ?`, project).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("next round: %w", err)
	}
	return int(last.Int64) + 1, nil
}
