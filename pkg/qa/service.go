package qa

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/adlens-ai/adlens/pkg/models"
)

// Asker is the expensive question-answering operation the service
// memoizes, normally the upstream insights API.
type Asker interface {
	Ask(ctx context.Context, scope, question string) (*models.Answer, error)
}

// Store is an optional persistent answer cache checked between the
// in-memory cache and the backend.
type Store interface {
	Get(scope, question string) (*models.Answer, bool)
	Put(scope, question string, answer *models.Answer) error
}

// Recorder persists question history. Failures are logged, never fatal.
type Recorder interface {
	Record(ctx context.Context, rec models.QARecord) error
}

// QuotaChecker gates backend calls. Cached and deduplicated answers are
// never charged against a quota.
type QuotaChecker interface {
	Check(ctx context.Context, scope string) error
}

// Service is the read-through ask path: memory cache, then in-flight
// join, then persistent store, then backend.
type Service struct {
	mu      sync.Mutex
	cache   *Cache
	store   Store
	backend Asker
	history Recorder
	quota   QuotaChecker
	memTTL  time.Duration
}

// NewService wires a Service. store, history, and quota may be nil.
func NewService(backend Asker, cache *Cache, store Store, history Recorder, quota QuotaChecker, memTTL time.Duration) *Service {
	if cache == nil {
		cache = NewCache()
	}
	if memTTL <= 0 {
		memTTL = DefaultTTL
	}
	return &Service{
		cache:   cache,
		store:   store,
		backend: backend,
		history: history,
		quota:   quota,
		memTTL:  memTTL,
	}
}

// Cache exposes the in-memory cache for stats and invalidation.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Ask answers a question for a scope, consulting caches and joining any
// identical in-flight request before calling the backend.
func (s *Service) Ask(ctx context.Context, scope, question string) (*models.Answer, models.AnswerSource, error) {
	start := time.Now()

	// The hit / join / launch decision must be atomic so two concurrent
	// identical questions cannot both reach the backend.
	s.mu.Lock()
	if answer, ok := s.cache.Get(scope, question); ok {
		s.mu.Unlock()
		s.record(ctx, scope, question, models.SourceCache, answer, start)
		return answer, models.SourceCache, nil
	}
	if fl, ok := s.cache.GetInFlight(scope, question); ok {
		s.mu.Unlock()
		answer, err := fl.Wait(ctx)
		if err != nil {
			return nil, models.SourceShared, err
		}
		s.record(ctx, scope, question, models.SourceShared, answer, start)
		return answer, models.SourceShared, nil
	}
	fl := s.cache.SetInFlight(scope, question)
	s.mu.Unlock()

	answer, source, err := s.fetch(ctx, scope, question)
	if err != nil {
		fl.Reject(err)
		return nil, source, err
	}
	fl.Resolve(answer)

	s.record(ctx, scope, question, source, answer, start)
	return answer, source, nil
}

// fetch resolves a miss: persistent store first, then the backend.
func (s *Service) fetch(ctx context.Context, scope, question string) (*models.Answer, models.AnswerSource, error) {
	if s.store != nil {
		if answer, ok := s.store.Get(scope, question); ok {
			s.cache.Set(scope, question, answer, s.memTTL)
			return answer, models.SourceStore, nil
		}
	}

	if s.quota != nil {
		if err := s.quota.Check(ctx, scope); err != nil {
			return nil, models.SourceBackend, err
		}
	}

	answer, err := s.backend.Ask(ctx, scope, question)
	if err != nil {
		return nil, models.SourceBackend, err
	}

	s.cache.Set(scope, question, answer, s.memTTL)
	if s.store != nil {
		if err := s.store.Put(scope, question, answer); err != nil {
			log.Printf("answer store put: %v", err)
		}
	}
	return answer, models.SourceBackend, nil
}

func (s *Service) record(ctx context.Context, scope, question string, source models.AnswerSource, answer *models.Answer, start time.Time) {
	if s.history == nil {
		return
	}
	rec := models.QARecord{
		Scope:     scope,
		Question:  Normalize(question),
		Source:    source,
		LatencyMs: time.Since(start).Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if answer != nil {
		rec.AnswerLen = len(answer.Text)
	}
	if err := s.history.Record(ctx, rec); err != nil {
		log.Printf("history record: %v", err)
	}
}
