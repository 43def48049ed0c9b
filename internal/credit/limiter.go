// Package credit decides whether a user may paint a cell. Every user gets one
// free paint per cooldown window; between windows paints spend credits.
package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pixelcanvas/internal/domain"
)

// DefaultCooldown is the length of the free paint window.
const DefaultCooldown = 12 * time.Hour

// ErrUnconsumable is returned when the user has neither a free paint nor credits.
var ErrUnconsumable = errors.New("cannot consume a token at this time")

// CanConsume reports whether u may paint at now without changing any state.
func CanConsume(u *domain.User, now time.Time) bool {
	return !now.Before(u.NextFreeCredit) || u.Credits > 0
}

// Limiter applies the credit policy and persists its effects through a
// domain.CreditRepository before mutating the caller's copy of the user.
type Limiter struct {
	ledger   domain.CreditRepository
	cooldown time.Duration
	now      func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithCooldown overrides DefaultCooldown.
func WithCooldown(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.cooldown = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a Limiter backed by ledger.
func NewLimiter(ledger domain.CreditRepository, opts ...Option) *Limiter {
	l := &Limiter{
		ledger:   ledger,
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the limiter's current time.
func (l *Limiter) Now() time.Time {
	return l.now()
}

// Cooldown returns the free window length.
func (l *Limiter) Cooldown() time.Duration {
	return l.cooldown
}

// CanConsume is the pure pre-check used before Consume.
func (l *Limiter) CanConsume(u *domain.User, now time.Time) bool {
	return CanConsume(u, now)
}

// Consume grants one paint. Before the free window opens it spends a credit,
// failing with ErrUnconsumable and leaving u untouched when none are left.
// Once the window is open the paint is free and the next window starts at
// now plus the cooldown.
func (l *Limiter) Consume(ctx context.Context, u *domain.User, now time.Time) error {
	if now.Before(u.NextFreeCredit) {
		if u.Credits <= 0 {
			return ErrUnconsumable
		}

		spent, err := l.ledger.SpendCredit(ctx, u.ID)
		if err != nil {
			return fmt.Errorf("spend credit: %w", err)
		}
		if !spent {
			// Another connection of the same user drained the balance.
			u.Credits = 0
			return ErrUnconsumable
		}
		u.Credits--
		return nil
	}

	next := now.Add(l.cooldown)
	if err := l.ledger.SetNextFreeCredit(ctx, u.ID, next); err != nil {
		return fmt.Errorf("reset free credit: %w", err)
	}
	u.NextFreeCredit = next
	return nil
}
