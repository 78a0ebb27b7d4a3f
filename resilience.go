package livevoice

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ReconnectDelay is the wait before reconnect attempt n (1-based): n × base.
// With the default base this gives 1s, 2s and 3s.
func ReconnectDelay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * base
}

// reconnector owns one reconnect loop. Cancelling it stops the loop at the
// next suspension point.
type reconnector struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func newReconnector() *reconnector {
	ctx, cancel := context.WithCancel(context.Background())
	return &reconnector{ctx: ctx, cancel: cancel}
}

// superviseReconnect re-runs the full handshake on fresh transports after an
// abnormal closure of a connected session. The state stays connecting between
// attempts. The loop ends on success, on a server error frame (state error),
// on Disconnect, or when attempts are exhausted, in which case the session
// settles to disconnected and OnDisconnected fires once with the last known
// close reason.
func (s *Session) superviseReconnect(r *reconnector, reason string) {
	defer func() {
		s.mu.Lock()
		if s.supervisor == r {
			s.supervisor = nil
		}
		s.mu.Unlock()
		r.cancel()
	}()

	for {
		s.mu.Lock()
		if r.ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		if s.attempts >= s.cfg.MaxReconnectAttempts {
			attempts := s.attempts
			s.state = StateDisconnected
			fx := s.disconnectedLocked(reason)
			s.mu.Unlock()
			s.logger.Warn("reconnect_exhausted", map[string]any{"attempts": attempts, "reason": reason})
			fx.run()
			return
		}
		s.attempts++
		attempt := s.attempts
		delay := ReconnectDelay(attempt, s.cfg.ReconnectBaseDelay)
		s.mu.Unlock()

		s.logger.Info("reconnect_scheduled", map[string]any{"attempt": attempt, "delay": delay.String()})
		t := time.NewTimer(delay)
		select {
		case <-r.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		s.mu.Lock()
		if r.ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		p, dialCtx := s.beginLocked(r.ctx, true)
		s.mu.Unlock()

		err := s.await(r.ctx, dialCtx, p)
		if err == nil {
			s.logger.Info("reconnected", map[string]any{"attempt": attempt})
			return
		}
		if errors.Is(err, ErrServer) || r.ctx.Err() != nil {
			return
		}
		var ce *CloseError
		if errors.As(err, &ce) {
			reason = closeReason(ce)
		}
		s.logger.Warn("reconnect_failed", map[string]any{"attempt": attempt, "err": err})
	}
}

// RetryConfig configures retry behavior for request/response collaborators
// such as the credential endpoint. Session reconnects use ReconnectDelay.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts.
	// Set to 0 to disable retries.
	MaxRetries int

	// BaseDelay is the initial delay between retries.
	// Default: 1 second
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	// Default: 30 seconds
	MaxDelay time.Duration

	// Multiplier is used for exponential backoff.
	// Default: 2.0
	Multiplier float64

	// RetryableErrors decides whether an error should trigger a retry.
	// If nil, all errors are considered retryable.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns a sensible default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		RetryableErrors: func(err error) bool {
			// Configuration errors never heal on their own.
			if errors.Is(err, ErrInvalidConfig) {
				return false
			}
			return errors.Is(err, ErrConnectionFailed)
		},
	}
}

// RetryableOperation represents an operation that can be retried.
type RetryableOperation func() error

// WithRetry executes an operation with retry logic based on the provided configuration.
func WithRetry(ctx context.Context, config RetryConfig, op RetryableOperation) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		// Don't delay after the last attempt
		if attempt == config.MaxRetries {
			break
		}

		t := time.NewTimer(calculateDelay(attempt, config))
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-t.C:
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxRetries+1, lastErr)
}

// calculateDelay computes the exponential backoff delay for a retry attempt.
func calculateDelay(attempt int, config RetryConfig) time.Duration {
	multiplier := config.Multiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	delay := float64(config.BaseDelay) * math.Pow(multiplier, float64(attempt))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
