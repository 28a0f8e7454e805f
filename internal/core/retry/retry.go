// Package retry holds the single retry policy shared by the persistence
// gateway (deadlock, lock-wait, connection-reset) and the deployer
// (device-not-active). Both eventual-consistency paths run through the same
// explicit state machine instead of nested error handlers.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Class is the terminal classification of a failure.
type Class int

const (
	// ClassRetryable marks a transient infrastructure failure worth another
	// attempt after backoff.
	ClassRetryable Class = iota
	// ClassPermanent marks a failure that retrying cannot fix (constraint
	// violation, syntax error, hard API rejection).
	ClassPermanent
)

// Classifier decides the class of an attempt's error.
type Classifier func(error) Class

// Always treats every error as retryable.
func Always(error) Class { return ClassRetryable }

// Policy is one bounded retry schedule. Multiplier 1 yields a fixed delay
// (deploy retry), multiplier 2 the base*2^(attempt-1) schedule (DB retry).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultDB mirrors the gateway defaults: 3 attempts, 2s base, doubling.
func DefaultDB() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Multiplier: 2}
}

// Notify observes each retryable failure before its backoff sleep.
type Notify func(err error, attempt int, delay time.Duration)

// Do runs op until it succeeds, fails permanently, exhausts MaxAttempts, or
// the context is cancelled. Backoff sleeps are cooperative: they select on
// the context, they never busy-wait.
func (p Policy) Do(ctx context.Context, classify Classifier, notify Notify, op func() error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2
	}
	if classify == nil {
		classify = Always
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = 10 * time.Minute

	attempt := 0
	wrapped := func() (struct{}, error) {
		attempt++
		err := op()
		if err == nil {
			return struct{}{}, nil
		}
		if classify(err) == ClassPermanent {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, delay time.Duration) {
			notify(err, attempt, delay)
		}))
	}

	_, err := backoff.Retry(ctx, wrapped, opts...)
	return err
}
