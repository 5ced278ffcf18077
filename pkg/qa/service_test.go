package qa

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adlens-ai/adlens/pkg/models"
)

// slowBackend answers after release is closed, counting calls.
type slowBackend struct {
	calls   atomic.Int64
	release chan struct{}
	err     error
}

func (b *slowBackend) Ask(ctx context.Context, scope, question string) (*models.Answer, error) {
	b.calls.Add(1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if b.err != nil {
		return nil, b.err
	}
	return &models.Answer{Text: "roas is 3.2x", GeneratedAt: time.Now().UTC()}, nil
}

type mapStore struct {
	mu   sync.Mutex
	data map[string]*models.Answer
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string]*models.Answer)}
}

func (s *mapStore) Get(scope, question string) (*models.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.data[Key(scope, question)]
	return a, ok
}

func (s *mapStore) Put(scope, question string, answer *models.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[Key(scope, question)] = answer
	return nil
}

func TestAskCachesBackendAnswer(t *testing.T) {
	backend := &slowBackend{}
	svc := NewService(backend, nil, nil, nil, nil, time.Minute)
	ctx := context.Background()

	_, source, err := svc.Ask(ctx, "ws_1", "What is my ROAS?")
	if err != nil {
		t.Fatal(err)
	}
	if source != models.SourceBackend {
		t.Errorf("expected backend source, got %s", source)
	}

	_, source, err = svc.Ask(ctx, "ws_1", "what is my roas?  ")
	if err != nil {
		t.Fatal(err)
	}
	if source != models.SourceCache {
		t.Errorf("expected cache source, got %s", source)
	}
	if got := backend.calls.Load(); got != 1 {
		t.Errorf("expected 1 backend call, got %d", got)
	}
}

func TestAskDeduplicatesConcurrentCallers(t *testing.T) {
	backend := &slowBackend{release: make(chan struct{})}
	svc := NewService(backend, nil, nil, nil, nil, time.Minute)
	ctx := context.Background()

	const callers = 5
	sources := make([]models.AnswerSource, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, sources[0], errs[0] = svc.Ask(ctx, "ws_1", "What is my ROAS?")
	}()

	// Once the first request is in flight, every later caller must join it.
	waitForInFlight(t, svc.Cache())
	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, sources[i], errs[i] = svc.Ask(ctx, "ws_1", "What is my ROAS?")
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
	}
	if got := backend.calls.Load(); got != 1 {
		t.Errorf("expected 1 backend call, got %d", got)
	}

	var shared int
	for _, s := range sources {
		if s == models.SourceShared {
			shared++
		}
	}
	if shared == 0 {
		t.Error("expected at least one caller to join the in-flight request")
	}
	if stats := svc.Cache().Stats(); stats.InFlight != 0 {
		t.Errorf("expected in-flight registry drained, got %+v", stats)
	}
}

func waitForInFlight(t *testing.T, c *Cache) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if c.Stats().InFlight > 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no request went in-flight")
}

func TestAskFailureSharedAndRetriable(t *testing.T) {
	backend := &slowBackend{err: errors.New("insights api unavailable")}
	svc := NewService(backend, nil, nil, nil, nil, time.Minute)
	ctx := context.Background()

	if _, _, err := svc.Ask(ctx, "ws_1", "q"); err == nil {
		t.Fatal("expected backend error")
	}

	// Failure cleared the registration; the next ask retries the backend.
	backend.err = nil
	_, source, err := svc.Ask(ctx, "ws_1", "q")
	if err != nil {
		t.Fatal(err)
	}
	if source != models.SourceBackend {
		t.Errorf("expected fresh backend call, got %s", source)
	}
	if got := backend.calls.Load(); got != 2 {
		t.Errorf("expected 2 backend calls, got %d", got)
	}
}

func TestAskReadsThroughStore(t *testing.T) {
	store := newMapStore()
	_ = store.Put("ws_1", "q", &models.Answer{Text: "persisted"})

	backend := &slowBackend{}
	svc := NewService(backend, nil, store, nil, nil, time.Minute)

	got, source, err := svc.Ask(context.Background(), "ws_1", "q")
	if err != nil {
		t.Fatal(err)
	}
	if source != models.SourceStore {
		t.Errorf("expected store source, got %s", source)
	}
	if got.Text != "persisted" {
		t.Errorf("unexpected answer: %s", got.Text)
	}
	if backend.calls.Load() != 0 {
		t.Error("store hit must not call the backend")
	}

	// Store hit warmed the memory cache.
	if _, source, _ := svc.Ask(context.Background(), "ws_1", "q"); source != models.SourceCache {
		t.Errorf("expected cache source on second ask, got %s", source)
	}
}

func TestAskPopulatesStore(t *testing.T) {
	store := newMapStore()
	backend := &slowBackend{}
	svc := NewService(backend, nil, store, nil, nil, time.Minute)

	if _, _, err := svc.Ask(context.Background(), "ws_1", "q"); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get("ws_1", "q"); !ok {
		t.Error("expected backend answer written to store")
	}
}

type denyQuota struct{ err error }

func (q denyQuota) Check(ctx context.Context, scope string) error { return q.err }

func TestAskQuotaOnlyGatesBackend(t *testing.T) {
	quotaErr := errors.New("quota exceeded")
	backend := &slowBackend{}
	svc := NewService(backend, nil, nil, nil, denyQuota{err: quotaErr}, time.Minute)
	ctx := context.Background()

	if _, _, err := svc.Ask(ctx, "ws_1", "q"); !errors.Is(err, quotaErr) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if backend.calls.Load() != 0 {
		t.Error("quota denial must prevent the backend call")
	}

	// A cached answer is free even under a denying quota.
	svc.Cache().Set("ws_1", "q", &models.Answer{Text: "cached"}, time.Minute)
	if _, source, err := svc.Ask(ctx, "ws_1", "q"); err != nil || source != models.SourceCache {
		t.Errorf("expected free cache hit, got %s, %v", source, err)
	}
}

type recordSink struct {
	mu   sync.Mutex
	recs []models.QARecord
}

func (r *recordSink) Record(ctx context.Context, rec models.QARecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func TestAskRecordsHistory(t *testing.T) {
	sink := &recordSink{}
	svc := NewService(&slowBackend{}, nil, nil, sink, nil, time.Minute)
	ctx := context.Background()

	_, _, _ = svc.Ask(ctx, "ws_1", "What is my ROAS?")
	_, _, _ = svc.Ask(ctx, "ws_1", "what is my roas?")

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(sink.recs))
	}
	if sink.recs[0].Source != models.SourceBackend || sink.recs[1].Source != models.SourceCache {
		t.Errorf("unexpected sources: %s, %s", sink.recs[0].Source, sink.recs[1].Source)
	}
	if sink.recs[0].Question != "what is my roas?" {
		t.Errorf("expected normalized question, got %q", sink.recs[0].Question)
	}
}
