// Package sqlite persists insight answers across gateway restarts,
// backing the in-memory cache in pkg/qa.
package sqlite

import (
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/adlens-ai/adlens/pkg/models"
	"github.com/adlens-ai/adlens/pkg/qa"
)

// Store is an exact-match answer cache backed by SQLite.
type Store struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
}

const createStoreTable = `
CREATE TABLE IF NOT EXISTS answer_cache (
	question_hash TEXT NOT NULL,
	scope TEXT NOT NULL,
	answer BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	ttl_seconds INTEGER NOT NULL,
	PRIMARY KEY (question_hash, scope)
);
`

// New creates a Store with the given database path and default TTL.
func New(dbPath string, ttl time.Duration) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open answer db: %w", err)
	}

	if _, err := db.Exec(createStoreTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate answer db: %w", err)
	}

	return &Store{db: db, ttl: ttl}, nil
}

// HashQuestion computes a SHA-256 hash of the scope and the normalized
// question text.
func HashQuestion(scope, question string) string {
	h := sha256.New()
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(qa.Normalize(question)))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get retrieves a cached answer. Returns false if not found or expired.
func (s *Store) Get(scope, question string) (*models.Answer, bool) {
	var raw []byte
	var createdAt time.Time
	var ttlSeconds int64

	err := s.db.QueryRow(
		`SELECT answer, created_at, ttl_seconds FROM answer_cache WHERE question_hash = ? AND scope = ?`,
		HashQuestion(scope, question), scope,
	).Scan(&raw, &createdAt, &ttlSeconds)

	if err != nil {
		s.misses.Add(1)
		return nil, false
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if time.Since(createdAt) > ttl {
		s.misses.Add(1)
		return nil, false
	}

	var answer models.Answer
	if err := json.Unmarshal(raw, &answer); err != nil {
		log.Printf("answer store: corrupt entry for scope %s: %v", scope, err)
		s.misses.Add(1)
		return nil, false
	}

	s.hits.Add(1)
	return &answer, true
}

// Put stores an answer for the scope and question.
func (s *Store) Put(scope, question string, answer *models.Answer) error {
	raw, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode answer: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO answer_cache (question_hash, scope, answer, created_at, ttl_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		HashQuestion(scope, question), scope, raw, time.Now().UTC(), int64(s.ttl.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("answer store put: %w", err)
	}
	return nil
}

// InvalidateScope removes every stored answer for a scope.
func (s *Store) InvalidateScope(scope string) error {
	_, err := s.db.Exec(`DELETE FROM answer_cache WHERE scope = ?`, scope)
	if err != nil {
		return fmt.Errorf("answer store invalidate scope: %w", err)
	}
	return nil
}

// Stats returns store performance metrics.
func (s *Store) Stats() (models.StoreStats, error) {
	var count int64
	err := s.db.QueryRow(`SELECT COUNT(*) FROM answer_cache`).Scan(&count)
	if err != nil {
		return models.StoreStats{}, fmt.Errorf("answer store stats: %w", err)
	}
	return models.StoreStats{
		Entries: count,
		Hits:    s.hits.Load(),
		Misses:  s.misses.Load(),
	}, nil
}

// Clear removes entries. If expiredOnly is true, only expired entries are removed.
func (s *Store) Clear(expiredOnly bool) error {
	var query string
	if expiredOnly {
		query = `DELETE FROM answer_cache WHERE (julianday('now') - julianday(created_at)) * 86400 > ttl_seconds`
	} else {
		query = `DELETE FROM answer_cache`
	}
	_, err := s.db.Exec(query)
	if err != nil {
		return fmt.Errorf("answer store clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
