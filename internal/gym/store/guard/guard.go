// Package guard wraps the stores the access engine reads from and writes to
// in circuit breakers. When a backing store keeps failing the breaker opens
// and calls fail immediately, so kiosks get a fast SYSTEM_ERROR instead of
// waiting out the decision timeout on every swipe.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
)

// ErrUnavailable wraps breaker rejections.
var ErrUnavailable = errors.New("guard: store unavailable")

type Settings struct {
	// MaxFailures is the number of consecutive failures that opens a breaker.
	MaxFailures uint32
	// OpenTimeout is how long an open breaker waits before probing again.
	OpenTimeout time.Duration
	Logger      *slog.Logger
}

func (s Settings) withDefaults() Settings {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 15 * time.Second
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	return s
}

func newBreaker(name string, s Settings) *gobreaker.CircuitBreaker[any] {
	s = s.withDefaults()
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		// Lookups that miss and slots already taken are answers, not outages.
		// A caller giving up says nothing about the store either.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, store.ErrNotFound) ||
				errors.Is(err, store.ErrConflict) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.Logger.Warn("store breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
}

func run[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (any, error) {
		r, err := fn()
		return r, err
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: %s: %w", ErrUnavailable, cb.Name(), err)
		}
		return zero, err
	}
	return v.(T), nil
}

type Members struct {
	next store.MemberStore
	cb   *gobreaker.CircuitBreaker[any]
}

func NewMembers(next store.MemberStore, s Settings) *Members {
	return &Members{next: next, cb: newBreaker("members", s)}
}

func (g *Members) ResolveMember(ctx context.Context, externalKey string) (types.Member, error) {
	return run(g.cb, func() (types.Member, error) { return g.next.ResolveMember(ctx, externalKey) })
}

type Plans struct {
	next store.PlanStore
	cb   *gobreaker.CircuitBreaker[any]
}

func NewPlans(next store.PlanStore, s Settings) *Plans {
	return &Plans{next: next, cb: newBreaker("plans", s)}
}

func (g *Plans) GetPlan(ctx context.Context, planRef string) (types.Plan, error) {
	return run(g.cb, func() (types.Plan, error) { return g.next.GetPlan(ctx, planRef) })
}

type Billing struct {
	next store.BillingStore
	cb   *gobreaker.CircuitBreaker[any]
}

func NewBilling(next store.BillingStore, s Settings) *Billing {
	return &Billing{next: next, cb: newBreaker("billing", s)}
}

func (g *Billing) GetPaymentHistory(ctx context.Context, memberID string) ([]types.PaymentEvent, error) {
	return run(g.cb, func() ([]types.PaymentEvent, error) { return g.next.GetPaymentHistory(ctx, memberID) })
}

type Ledger struct {
	next store.AccessLedger
	cb   *gobreaker.CircuitBreaker[any]
}

func NewLedger(next store.AccessLedger, s Settings) *Ledger {
	return &Ledger{next: next, cb: newBreaker("access_ledger", s)}
}

func (g *Ledger) GrantedAttempts(ctx context.Context, memberID string, from, to time.Time) ([]types.AccessAttempt, error) {
	return run(g.cb, func() ([]types.AccessAttempt, error) { return g.next.GrantedAttempts(ctx, memberID, from, to) })
}

func (g *Ledger) AppendAttempt(ctx context.Context, rec types.AccessAttempt) error {
	_, err := run(g.cb, func() (struct{}, error) { return struct{}{}, g.next.AppendAttempt(ctx, rec) })
	return err
}

func (g *Ledger) Reserve(ctx context.Context, memberID string, window types.CycleWindow, decide store.ReserveFunc) (types.AccessAttempt, error) {
	return run(g.cb, func() (types.AccessAttempt, error) { return g.next.Reserve(ctx, memberID, window, decide) })
}
