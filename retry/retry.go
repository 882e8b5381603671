// Package retry provides bounded exponential backoff for unreliable remote
// calls such as model invocations. A Policy is immutable once constructed and
// may be shared freely between goroutines.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"
)

// ErrExhausted matches an ExhaustedError.
var ErrExhausted = errors.New("retry budget exhausted")

// ExhaustedError is returned once every attempt failed with a retryable error.
// It carries the last underlying error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempt(s): %v", e.Attempts, e.Last)
}

// Is reports whether target is ErrExhausted.
func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Unwrap returns the last attempt's error.
func (e *ExhaustedError) Unwrap() error { return e.Last }

// StatusCoder is implemented by errors that carry a remote status code.
type StatusCoder interface {
	StatusCode() int
}

// Classifier reports whether err is transient and may be retried.
type Classifier func(err error) bool

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config defines the retry behaviour. Zero values are replaced by defaults in New.
type Config struct {
	MaxAttempts     int           `yaml:"max_attempts" json:"max_attempts"`         // total attempts, including the first
	BaseDelay       time.Duration `yaml:"base_delay" json:"base_delay"`             // delay before the first retry
	Multiplier      float64       `yaml:"multiplier" json:"multiplier"`             // exponential growth factor
	MaxDelay        time.Duration `yaml:"max_delay" json:"max_delay"`               // 0 = uncapped
	Jitter          float64       `yaml:"jitter" json:"jitter"`                     // fraction in [0,1), 0 = deterministic
	RetryableStatus []int         `yaml:"retryable_status" json:"retryable_status"` // transient status codes
}

// DefaultConfig mirrors the HTTP retry options used by the original agents:
// five attempts, one second initial delay growing by a factor of seven, and
// rate-limited / internal / unavailable / timeout statuses treated as transient.
var DefaultConfig = Config{
	MaxAttempts:     5,
	BaseDelay:       time.Second,
	Multiplier:      7,
	RetryableStatus: []int{429, 500, 503, 504},
}

// Attempt describes one failed attempt, reported to the notify callback of Do.
type Attempt struct {
	Number int           // 1-based attempt number that failed
	Err    error         // the attempt's error
	Delay  time.Duration // wait before the next attempt (0 when not retrying)
	Retry  bool          // whether another attempt follows
}

// Policy applies a Config to individual calls.
type Policy struct {
	cfg        Config
	classifier Classifier
	sleep      Sleeper
}

// Option customizes a Policy at construction.
type Option func(p *Policy)

// WithClassifier replaces the status-code based classification.
func WithClassifier(c Classifier) Option {
	return func(p *Policy) { p.classifier = c }
}

// WithSleeper replaces the timer based wait, mainly for tests.
func WithSleeper(s Sleeper) Option {
	return func(p *Policy) { p.sleep = s }
}

// WithJitter sets the jitter fraction applied to every delay.
func WithJitter(fraction float64) Option {
	return func(p *Policy) {
		if fraction >= 0 && fraction < 1 {
			p.cfg.Jitter = fraction
		}
	}
}

// New builds an immutable Policy from cfg.
func New(cfg Config, opts ...Option) *Policy {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1
	}
	if cfg.Jitter < 0 || cfg.Jitter >= 1 {
		cfg.Jitter = 0
	}
	cfg.RetryableStatus = slices.Clone(cfg.RetryableStatus)

	p := &Policy{cfg: cfg, sleep: sleepContext}
	p.classifier = p.statusRetryable

	for _, o := range opts {
		o(p)
	}

	return p
}

// Default returns a Policy built from DefaultConfig.
func Default() *Policy { return New(DefaultConfig) }

// None returns a Policy performing exactly one attempt.
func None() *Policy { return New(Config{MaxAttempts: 1}) }

// Config returns a copy of the policy's configuration.
func (p *Policy) Config() Config {
	c := p.cfg
	c.RetryableStatus = slices.Clone(p.cfg.RetryableStatus)
	return c
}

// MaxAttempts returns the total number of attempts allowed.
func (p *Policy) MaxAttempts() int { return p.cfg.MaxAttempts }

// Retryable reports whether err is classified as transient.
func (p *Policy) Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return p.classifier(err)
}

func (p *Policy) statusRetryable(err error) bool {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return false
	}
	return slices.Contains(p.cfg.RetryableStatus, sc.StatusCode())
}

// Delay returns the wait before retry number retryIndex (0-based):
// BaseDelay * Multiplier^retryIndex, capped at MaxDelay, with optional jitter.
func (p *Policy) Delay(retryIndex int) time.Duration {
	d := float64(p.cfg.BaseDelay) * math.Pow(p.cfg.Multiplier, float64(retryIndex))
	if p.cfg.MaxDelay > 0 && d > float64(p.cfg.MaxDelay) {
		d = float64(p.cfg.MaxDelay)
	}
	if p.cfg.Jitter > 0 && d > 0 {
		d += d * p.cfg.Jitter * (2*rand.Float64() - 1)
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Do calls fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Cancellation is checked before every attempt and
// during every wait; it returns the context error without consuming budget.
// notify (optional) observes each failed attempt.
func Do[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error), notify func(Attempt)) (T, error) {
	var zero T

	if p == nil {
		p = None()
	}

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		if !p.Retryable(err) {
			if notify != nil {
				notify(Attempt{Number: attempt, Err: err})
			}
			return zero, err
		}

		if attempt >= p.cfg.MaxAttempts {
			if notify != nil {
				notify(Attempt{Number: attempt, Err: err})
			}
			return zero, &ExhaustedError{Attempts: attempt, Last: err}
		}

		delay := p.Delay(attempt - 1)
		if notify != nil {
			notify(Attempt{Number: attempt, Err: err, Delay: delay, Retry: true})
		}

		if err := p.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
