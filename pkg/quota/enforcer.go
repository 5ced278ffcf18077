package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adlens-ai/adlens/pkg/history"
	"github.com/adlens-ai/adlens/pkg/models"
)

// ErrQuotaExceeded is returned when a scope has used up its ask quota.
var ErrQuotaExceeded = errors.New("quota exceeded")

// Enforcer checks backend question counts against quota policies.
type Enforcer struct {
	policies []models.QuotaPolicy
	history  history.History
}

// New creates an Enforcer with the given policies and history.
func New(policies []models.QuotaPolicy, h history.History) *Enforcer {
	return &Enforcer{policies: policies, history: h}
}

// Check returns ErrQuotaExceeded if the scope has exceeded any applicable
// policy. Only backend calls count; cached answers are free.
func (e *Enforcer) Check(ctx context.Context, scope string) error {
	for _, p := range e.policiesForScope(scope) {
		used, err := e.history.BackendCalls(ctx, scope, periodStart(p.Period))
		if err != nil {
			return fmt.Errorf("quota check: %w", err)
		}
		if used >= p.MaxQuestions {
			return fmt.Errorf("scope %s: %w", scope, ErrQuotaExceeded)
		}
	}
	return nil
}

// Status returns the quota status for a scope across all applicable policies.
func (e *Enforcer) Status(ctx context.Context, scope string) ([]models.QuotaStatus, error) {
	policies := e.policiesForScope(scope)
	statuses := make([]models.QuotaStatus, 0, len(policies))

	for _, p := range policies {
		used, err := e.history.BackendCalls(ctx, scope, periodStart(p.Period))
		if err != nil {
			return nil, fmt.Errorf("quota status: %w", err)
		}
		remaining := p.MaxQuestions - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.QuotaStatus{
			Policy:    p,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

func (e *Enforcer) policiesForScope(scope string) []models.QuotaPolicy {
	var result []models.QuotaPolicy
	for _, p := range e.policies {
		if p.Scope == "*" || p.Scope == scope {
			result = append(result, p)
		}
	}
	return result
}

func periodStart(period models.QuotaPeriod) time.Time {
	now := time.Now().UTC()
	switch period {
	case models.QuotaMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
