package sqlite

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/adlens-ai/adlens/pkg/models"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "answers_test.db")
	s, err := New(dbPath, ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHashQuestion(t *testing.T) {
	h1 := HashQuestion("ws_1", "What is my ROAS?")
	h2 := HashQuestion("ws_1", "  what is  my roas?")
	h3 := HashQuestion("ws_2", "What is my ROAS?")

	if h1 != h2 {
		t.Error("normalized questions should produce the same hash")
	}
	if h1 == h3 {
		t.Error("different scopes should produce different hashes")
	}
}

func TestPutAndGet(t *testing.T) {
	s := newTestStore(t, time.Hour)

	want := &models.Answer{Text: "ROAS is 3.2x", Confidence: 0.9}
	if err := s.Put("ws_1", "What is my ROAS?", want); err != nil {
		t.Fatal(err)
	}

	got, ok := s.Get("ws_1", "what is my roas?")
	if !ok {
		t.Fatal("expected store hit")
	}
	if got.Text != want.Text || got.Confidence != want.Confidence {
		t.Errorf("unexpected answer: %+v", got)
	}

	// Miss for a different scope.
	if _, ok := s.Get("ws_2", "What is my ROAS?"); ok {
		t.Error("expected miss for different scope")
	}
}

func TestTTLExpiration(t *testing.T) {
	s := newTestStore(t, 1*time.Millisecond)

	if err := s.Put("ws_1", "q", &models.Answer{Text: "a"}); err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, ok := s.Get("ws_1", "q"); ok {
		t.Error("expected miss after TTL expiration")
	}
}

func TestInvalidateScope(t *testing.T) {
	s := newTestStore(t, time.Hour)

	_ = s.Put("ws_1", "q1", &models.Answer{Text: "a1"})
	_ = s.Put("ws_1", "q2", &models.Answer{Text: "a2"})
	_ = s.Put("ws_2", "q1", &models.Answer{Text: "a3"})

	if err := s.InvalidateScope("ws_1"); err != nil {
		t.Fatal(err)
	}

	if _, ok := s.Get("ws_1", "q1"); ok {
		t.Error("expected ws_1 entries removed")
	}
	if _, ok := s.Get("ws_2", "q1"); !ok {
		t.Error("expected ws_2 entry untouched")
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t, time.Hour)

	_ = s.Put("ws_1", "q1", &models.Answer{Text: "a"})
	s.Get("ws_1", "q1") // hit
	s.Get("ws_1", "q2") // miss

	stats, err := s.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("expected 1 hit / 1 miss, got %+v", stats)
	}
}

func TestClear(t *testing.T) {
	s := newTestStore(t, time.Hour)

	_ = s.Put("ws_1", "q1", &models.Answer{Text: "a"})
	_ = s.Put("ws_1", "q2", &models.Answer{Text: "b"})

	if err := s.Clear(false); err != nil {
		t.Fatal(err)
	}

	stats, _ := s.Stats()
	if stats.Entries != 0 {
		t.Errorf("expected 0 entries after clear, got %d", stats.Entries)
	}
}
