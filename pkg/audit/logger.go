package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/adlens-ai/adlens/pkg/models"
	_ "modernc.org/sqlite"
)

// Logger writes and queries ask audit entries in a dedicated SQLite database.
type Logger struct {
	db      *sql.DB
	cfg     models.AuditConfig
	done    chan struct{}
	wg      sync.WaitGroup
	include map[string]bool
	exclude map[string]bool
}

// New opens the audit SQLite database and creates the schema.
func New(cfg models.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	inc := make(map[string]bool)
	for _, v := range cfg.Include {
		inc[v] = true
	}
	exc := make(map[string]bool)
	for _, v := range cfg.ExcludeScopes {
		exc[v] = true
	}

	l := &Logger{
		db:      db,
		cfg:     cfg,
		done:    make(chan struct{}),
		include: inc,
		exclude: exc,
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ask_audit (
		request_id     TEXT PRIMARY KEY,
		api_key_hash   TEXT NOT NULL,
		api_key_prefix TEXT NOT NULL,
		scope          TEXT NOT NULL,
		question       TEXT,
		answer         TEXT,
		source         TEXT,
		status_code    INTEGER,
		latency_ms     INTEGER,
		created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_scope ON ask_audit(scope)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON ask_audit(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_prefix ON ask_audit(api_key_prefix)`)
	return err
}

// Log inserts an audit entry, respecting include/exclude configuration.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if l.exclude[entry.Scope] {
		return nil
	}

	question := entry.Question
	answer := entry.Answer

	if !l.include["questions"] {
		question = ""
	}
	if !l.include["answers"] {
		answer = ""
	}

	if l.cfg.MaxBodySize > 0 {
		if len(question) > l.cfg.MaxBodySize {
			question = question[:l.cfg.MaxBodySize]
		}
		if len(answer) > l.cfg.MaxBodySize {
			answer = answer[:l.cfg.MaxBodySize]
		}
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO ask_audit
		(request_id, api_key_hash, api_key_prefix, scope, question, answer,
		 source, status_code, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.APIKeyHash, entry.APIKeyPrefix,
		entry.Scope, question, answer,
		string(entry.Source), entry.StatusCode, entry.LatencyMs, entry.CreatedAt,
	)
	return err
}

// Query returns audit entries matching the given options.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT request_id, api_key_hash, api_key_prefix, scope, question, answer,
		source, status_code, latency_ms, created_at
		FROM ask_audit WHERE 1=1`
	var args []any

	if opts.RequestID != "" {
		q += " AND request_id = ?"
		args = append(args, opts.RequestID)
	}
	if opts.Scope != "" {
		q += " AND scope = ?"
		args = append(args, opts.Scope)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since)
	}
	if opts.APIKeyPrefix != "" {
		q += " AND api_key_prefix = ?"
		args = append(args, opts.APIKeyPrefix)
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var question, answer, source sql.NullString
		if err := rows.Scan(
			&e.RequestID, &e.APIKeyHash, &e.APIKeyPrefix, &e.Scope,
			&question, &answer, &source,
			&e.StatusCode, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Question = question.String
		e.Answer = answer.String
		e.Source = models.AnswerSource(source.String)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts grouped by scope and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT scope, date(created_at) as day, count(*) as cnt
		 FROM ask_audit GROUP BY scope, day ORDER BY day DESC, scope`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var day sql.NullString
		if err := rows.Scan(&s.Scope, &day, &s.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM ask_audit WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

// HashAPIKey returns the SHA-256 hex hash and 8-char prefix for an API key.
func HashAPIKey(key string) (hash, prefix string) {
	h := sha256.Sum256([]byte(key))
	hash = hex.EncodeToString(h[:])
	if len(key) > 8 {
		prefix = key[:8]
	} else {
		prefix = key
	}
	return hash, prefix
}
