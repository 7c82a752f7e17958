package notify

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker rejects a delivery without
// attempting it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig holds the circuit breaker settings.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that trip the breaker.
	MaxFailures uint32

	// Timeout is how long the breaker stays open before allowing a trial.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of trial deliveries allowed while
	// half-open.
	HalfOpenMaxSuccesses uint32
}

// Breaker wraps gobreaker so a failing webhook endpoint is not hammered with
// deliveries it cannot accept.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewBreaker creates a breaker named name. Zero fields take the defaults of
// 3 failures, a 30s timeout and 1 half-open trial.
func NewBreaker(name string, cfg BreakerConfig, logger *log.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 1
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Printf("breaker %s: %s -> %s", name, from, to)
			}
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. An open breaker returns
// ErrCircuitOpen without calling fn.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State returns "closed", "half-open" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}
