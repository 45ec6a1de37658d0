package question

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/victornm/chatquiz/internal/domain"
	"github.com/victornm/chatquiz/internal/telemetry"
)

// RetryPolicy bounds retries of transient failures. Delays double from InitialInterval.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
}

// DefaultRetryPolicy retries three times after 1s, 2s and 4s.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      3,
	InitialInterval: time.Second,
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as worth retrying: timeouts, rate limits, unavailable upstreams.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Retry runs op until it succeeds, fails permanently or the retries are used up.
// Only errors marked Transient are retried.
func Retry(ctx context.Context, p RetryPolicy, provider string, op func(ctx context.Context) ([]domain.Question, error)) ([]domain.Question, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0

	attempt := 0
	return backoff.Retry(ctx, func() ([]domain.Question, error) {
		attempt++
		qs, err := op(ctx)
		switch {
		case err == nil:
			telemetry.GenerationAttempts.WithLabelValues(provider, "ok").Inc()
			return qs, nil
		case IsTransient(err):
			telemetry.GenerationAttempts.WithLabelValues(provider, "transient").Inc()
			slog.WarnContext(ctx, "question: transient generation failure",
				"provider", provider,
				"attempt", attempt,
				"error", err,
			)
			return nil, err
		default:
			telemetry.GenerationAttempts.WithLabelValues(provider, "permanent").Inc()
			return nil, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.MaxRetries+1)),
	)
}

// StatusError classifies a non-200 reply from a model API.
func StatusError(provider string, status int, body []byte) error {
	const maxBody = 512
	if len(body) > maxBody {
		body = body[:maxBody]
	}

	err := fmt.Errorf("%s: API returned status %d: %s", provider, status, body)
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return Transient(err)
	default:
		return err
	}
}
