// Package quota enforces the monthly provider-call allowance.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/seren/internal/domain"
	"github.com/ashureev/seren/internal/store"
)

// Gate answers whether a user may spend another provider call and records
// consumption. Unrestricted tiers bypass both checks.
type Gate interface {
	// HasRemaining reports whether the user has allowance left this period.
	HasRemaining(ctx context.Context, user *domain.User) (bool, error)

	// Consume records one provider call against the user's allowance.
	Consume(ctx context.Context, user *domain.User) error
}

// MonthlyGate implements Gate over per-user, per-calendar-month counters in
// the repository.
type MonthlyGate struct {
	repo  store.Repository
	limit int
}

// NewMonthlyGate creates a gate with the given monthly limit.
func NewMonthlyGate(repo store.Repository, limit int) *MonthlyGate {
	return &MonthlyGate{repo: repo, limit: limit}
}

// currentPeriod returns the UTC calendar month key, e.g. "2026-09".
func currentPeriod() string {
	return time.Now().UTC().Format("2006-01")
}

// HasRemaining reports whether the user is under their monthly limit.
func (g *MonthlyGate) HasRemaining(ctx context.Context, user *domain.User) (bool, error) {
	if user.Tier.Unrestricted() {
		return true, nil
	}
	count, err := g.repo.UsageCount(ctx, user.UserID, currentPeriod())
	if err != nil {
		return false, fmt.Errorf("read usage counter: %w", err)
	}
	return count < g.limit, nil
}

// Consume records one provider call. No-op for unrestricted tiers.
func (g *MonthlyGate) Consume(ctx context.Context, user *domain.User) error {
	if user.Tier.Unrestricted() {
		return nil
	}
	if err := g.repo.IncrementUsage(ctx, user.UserID, currentPeriod()); err != nil {
		return fmt.Errorf("consume usage: %w", err)
	}
	return nil
}
