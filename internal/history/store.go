package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Attempt is one stage invocation against one work unit.
type Attempt struct {
	ID         string
	UnitID     string
	Stage      string
	Outcome    string
	ExitCode   int
	LogPath    string
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is the wall time of the attempt.
func (a Attempt) Duration() time.Duration {
	if a.FinishedAt.Before(a.StartedAt) {
		return 0
	}
	return a.FinishedAt.Sub(a.StartedAt)
}

// UnitSummary aggregates every attempt recorded for one unit.
type UnitSummary struct {
	UnitID      string
	Attempts    int
	Failures    int
	LastStage   string
	LastOutcome string
	LastExit    int
	LastAt      time.Time
}

// Store persists stage attempts in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or connects to the ledger at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string {
	return s.path
}

// Record inserts a finished attempt.
func (s *Store) Record(ctx context.Context, attempt Attempt) error {
	if attempt.ID == "" {
		return errors.New("attempt id is required")
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_attempts (
            id, unit_id, stage, outcome, exit_code, log_path, message, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ID,
		attempt.UnitID,
		attempt.Stage,
		attempt.Outcome,
		attempt.ExitCode,
		nullableString(attempt.LogPath),
		nullableString(attempt.Message),
		formatTime(attempt.StartedAt),
		formatTime(attempt.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// ForUnit returns the attempts for unitID, oldest first.
func (s *Store) ForUnit(ctx context.Context, unitID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, unit_id, stage, outcome, exit_code, log_path, message, started_at, finished_at
         FROM stage_attempts WHERE unit_id = ? ORDER BY started_at, rowid`, unitID)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// Recent returns up to limit attempts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, unit_id, stage, outcome, exit_code, log_path, message, started_at, finished_at
         FROM stage_attempts ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// Summaries returns one row per unit describing its latest attempt.
func (s *Store) Summaries(ctx context.Context) ([]UnitSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT a.unit_id, c.total, c.failures, a.stage, a.outcome, a.exit_code, a.finished_at
        FROM stage_attempts a
        JOIN (
            SELECT unit_id,
                   COUNT(*) AS total,
                   SUM(CASE WHEN outcome = 'succeeded' THEN 0 ELSE 1 END) AS failures,
                   MAX(rowid) AS last_row
            FROM stage_attempts
            GROUP BY unit_id
        ) c ON a.rowid = c.last_row
        ORDER BY a.unit_id`)
	if err != nil {
		return nil, fmt.Errorf("query summaries: %w", err)
	}
	defer rows.Close()

	var summaries []UnitSummary
	for rows.Next() {
		var summary UnitSummary
		var finished string
		if err := rows.Scan(&summary.UnitID, &summary.Attempts, &summary.Failures,
			&summary.LastStage, &summary.LastOutcome, &summary.LastExit, &finished); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summary.LastAt = parseTime(finished)
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

func scanAttempts(rows *sql.Rows) ([]Attempt, error) {
	var attempts []Attempt
	for rows.Next() {
		var attempt Attempt
		var logPath, message sql.NullString
		var started, finished string
		if err := rows.Scan(&attempt.ID, &attempt.UnitID, &attempt.Stage, &attempt.Outcome,
			&attempt.ExitCode, &logPath, &message, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempt.LogPath = logPath.String
		attempt.Message = message.String
		attempt.StartedAt = parseTime(started)
		attempt.FinishedAt = parseTime(finished)
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
