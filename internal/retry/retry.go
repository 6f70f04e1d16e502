// Package retry provides a generic exponential-backoff-with-jitter retry
// wrapper for broker calls, generalized from a single close operation to
// any broker.Broker call. Backoff defaults to a 0.5s/1s/2s sequence over 3
// retries (InitialBackoff=500ms, Multiplier=2.0, MaxBackoff=2s) with jitter
// layered on top of that sequence (see DESIGN.md).
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/tradeoracle/engine/internal/models"
)

// Config controls the retry/backoff behavior.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

// DefaultConfig uses a 0.5s, 1s, 2s backoff sequence over 3 retries.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 500 * time.Millisecond,
	Multiplier:     2.0,
	MaxBackoff:     2 * time.Second,
}

// Do retries fn while it returns an error classified as transient by
// IsTransient, backing off with jitter between attempts, up to
// cfg.MaxRetries additional tries beyond the first. A BrokerRejected or any
// other non-transient error is returned immediately without retry.
func Do(ctx context.Context, cfg Config, logger *log.Logger, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = log.Default()
	}
	backoff := cfg.InitialBackoff

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) || attempt == cfg.MaxRetries {
			return lastErr
		}
		logger.Printf("retry: transient error on attempt %d/%d: %v (retrying in %v)", attempt+1, cfg.MaxRetries+1, lastErr, backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, cfg)
	}
	return lastErr
}

func nextBackoff(current time.Duration, cfg Config) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxBackoff {
		next = cfg.MaxBackoff
	}
	maxJitter := int64(next / 4)
	if maxJitter <= 0 {
		return next
	}
	j, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
	if err != nil {
		return next
	}
	return next + time.Duration(j.Int64())
}

var transientPatterns = []string{
	"timeout", "i/o timeout", "connection refused", "connection reset",
	"temporary failure", "temporarily unavailable", "server error",
	"rate limit", "429", "502", "503", "504", "network", "dns", "tcp",
	"no such host", "deadline exceeded", "tls handshake", "broken pipe", "eof",
}

// IsTransient classifies an error as BrokerTransient (network/5xx, eligible
// for retry) versus BrokerRejected/other (terminal, not retried).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrBrokerTransient) {
		return true
	}
	if errors.Is(err, models.ErrBrokerRejected) {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
