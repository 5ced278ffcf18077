package qa

import (
	"context"
	"sync"

	"github.com/adlens-ai/adlens/pkg/models"
)

// InFlight is the shared handle for one pending backend question. The
// caller that launched the request settles it exactly once; every other
// caller waits on it and receives the same outcome.
type InFlight struct {
	done     chan struct{}
	once     sync.Once
	answer   *models.Answer
	err      error
	onSettle func()
}

func newInFlight() *InFlight {
	return &InFlight{done: make(chan struct{})}
}

// Resolve settles the handle with an answer.
func (f *InFlight) Resolve(answer *models.Answer) {
	f.settle(answer, nil)
}

// Reject settles the handle with an error.
func (f *InFlight) Reject(err error) {
	f.settle(nil, err)
}

func (f *InFlight) settle(answer *models.Answer, err error) {
	f.once.Do(func() {
		f.answer = answer
		f.err = err
		close(f.done)
		if f.onSettle != nil {
			f.onSettle()
		}
	})
}

// Done is closed once the handle has settled.
func (f *InFlight) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the handle settles or ctx is cancelled.
func (f *InFlight) Wait(ctx context.Context) (*models.Answer, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.answer, f.err
	}
}
