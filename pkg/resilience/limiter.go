// Package resilience provides the client-side protection primitives the
// backend API client is composed from: rolling-window rate limiting, retry
// with backoff, a circuit breaker, request batching and trailing debounce.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBudgetExhausted is returned by Wait when the context expires before a
// slot frees up.
var ErrBudgetExhausted = errors.New("rate limit budget exhausted")

// Budget is a rolling-window request allowance.
type Budget struct {
	Limit  int
	Window time.Duration
}

// Named budgets for the backend API surface. Uploads are the most expensive
// calls and get the tightest budget.
const (
	BudgetGeneral = "general"
	BudgetUpload  = "upload"
	BudgetChat    = "chat"
)

// DefaultBudgets returns the standard per-minute allowances.
func DefaultBudgets() map[string]Budget {
	return map[string]Budget{
		BudgetGeneral: {Limit: 100, Window: time.Minute},
		BudgetUpload:  {Limit: 10, Window: time.Minute},
		BudgetChat:    {Limit: 30, Window: time.Minute},
	}
}

// RateLimiter enforces named rolling-window budgets. Unknown budget names
// fall back to the general budget.
type RateLimiter struct {
	mu      sync.Mutex
	budgets map[string]Budget
	stamps  map[string][]time.Time

	now    func() time.Time
	logger *slog.Logger
}

// NewRateLimiter builds a limiter over the given budgets; nil means
// DefaultBudgets.
func NewRateLimiter(budgets map[string]Budget, logger *slog.Logger) *RateLimiter {
	if budgets == nil {
		budgets = DefaultBudgets()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &RateLimiter{
		budgets: budgets,
		stamps:  make(map[string][]time.Time),
		now:     time.Now,
		logger:  logger.With("module", "resilience"),
	}
}

func (l *RateLimiter) budget(name string) (string, Budget) {
	if b, ok := l.budgets[name]; ok {
		return name, b
	}

	return BudgetGeneral, l.budgets[BudgetGeneral]
}

// Allow consumes one slot from the named budget if available.
func (l *RateLimiter) Allow(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.allowLocked(name)
}

func (l *RateLimiter) allowLocked(name string) bool {
	name, budget := l.budget(name)
	if budget.Limit <= 0 {
		return false
	}

	now := l.now()
	cutoff := now.Add(-budget.Window)

	kept := l.stamps[name][:0]

	for _, stamp := range l.stamps[name] {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}

	l.stamps[name] = kept

	if len(kept) >= budget.Limit {
		l.logger.Debug("rate limit hit", "budget", name, "limit", budget.Limit)

		return false
	}

	l.stamps[name] = append(l.stamps[name], now)

	return true
}

// Remaining reports the free slots left in the named budget's window.
func (l *RateLimiter) Remaining(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	name, budget := l.budget(name)
	cutoff := l.now().Add(-budget.Window)

	used := 0

	for _, stamp := range l.stamps[name] {
		if stamp.After(cutoff) {
			used++
		}
	}

	if used >= budget.Limit {
		return 0
	}

	return budget.Limit - used
}

// Wait blocks until a slot frees up or the context expires.
func (l *RateLimiter) Wait(ctx context.Context, name string) error {
	for {
		if l.Allow(name) {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrBudgetExhausted, name)
		case <-time.After(50 * time.Millisecond):
		}
	}
}
