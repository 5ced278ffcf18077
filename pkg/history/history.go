package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/adlens-ai/adlens/pkg/models"
)

// History records and queries answered questions.
type History interface {
	// Record stores one answered question.
	Record(ctx context.Context, rec models.QARecord) error
	// Recent returns the most recent records, optionally filtered by scope.
	Recent(ctx context.Context, scope string, limit int) ([]models.QARecord, error)
	// BackendCalls returns the number of backend questions for a scope
	// since a given time. Cache, shared, and store answers do not count.
	BackendCalls(ctx context.Context, scope string, since time.Time) (int64, error)
	// Summary returns per-scope aggregates, optionally filtered by scope.
	Summary(ctx context.Context, scope string) ([]models.QASummary, error)
	// Close releases resources.
	Close() error
}

// SQLiteHistory implements History with a SQLite database.
type SQLiteHistory struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS qa_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	scope TEXT NOT NULL,
	question TEXT NOT NULL,
	source TEXT NOT NULL,
	answer_len INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_history_scope_time ON qa_history(scope, created_at);
`

// New creates a SQLiteHistory and runs auto-migration.
func New(dbPath string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	return &SQLiteHistory{db: db}, nil
}

// Record stores one answered question.
func (h *SQLiteHistory) Record(ctx context.Context, rec models.QARecord) error {
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO qa_history (scope, question, source, answer_len, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Scope, rec.Question, string(rec.Source), rec.AnswerLen, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record question: %w", err)
	}
	return nil
}

// Recent returns the most recent records, optionally filtered by scope.
func (h *SQLiteHistory) Recent(ctx context.Context, scope string, limit int) ([]models.QARecord, error) {
	query := `SELECT id, scope, question, source, answer_len, latency_ms, created_at FROM qa_history`
	var args []any
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent questions: %w", err)
	}
	defer rows.Close()

	var records []models.QARecord
	for rows.Next() {
		var r models.QARecord
		var source string
		if err := rows.Scan(&r.ID, &r.Scope, &r.Question, &source, &r.AnswerLen, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		r.Source = models.AnswerSource(source)
		records = append(records, r)
	}
	return records, rows.Err()
}

// BackendCalls returns the number of backend questions for a scope since
// a given time.
func (h *SQLiteHistory) BackendCalls(ctx context.Context, scope string, since time.Time) (int64, error) {
	var total int64
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM qa_history WHERE scope = ? AND source = ? AND created_at >= ?`,
		scope, string(models.SourceBackend), since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("backend calls: %w", err)
	}
	return total, nil
}

// Summary returns per-scope aggregates, optionally filtered by scope.
func (h *SQLiteHistory) Summary(ctx context.Context, scope string) ([]models.QASummary, error) {
	query := `SELECT scope, COUNT(*),
		SUM(CASE WHEN source = 'backend' THEN 1 ELSE 0 END),
		AVG(latency_ms)
		FROM qa_history`
	var args []any
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, scope)
	}
	query += ` GROUP BY scope ORDER BY scope`

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.QASummary
	for rows.Next() {
		var s models.QASummary
		if err := rows.Scan(&s.Scope, &s.Questions, &s.BackendCalls, &s.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		if s.Questions > 0 {
			s.HitRate = 1 - float64(s.BackendCalls)/float64(s.Questions)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Close releases the database connection.
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}
