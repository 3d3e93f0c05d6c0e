// Package retry wraps OpenAI API calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultMaxRetries is used when a caller passes zero.
const DefaultMaxRetries = 3

// Do runs op until it succeeds, returns a permanent error, or maxRetries
// retries are spent. Waits grow exponentially and stop early when ctx is
// done.
func Do(ctx context.Context, maxRetries uint64, log *zap.Logger, what string, op func() error) error {
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if log == nil {
		log = zap.NewNop()
	}

	wrapped := func() error {
		err := op()
		if err != nil && !Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn(what+" failed, retrying",
			zap.Error(err),
			zap.Duration("wait", wait))
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx)
	return backoff.RetryNotify(wrapped, b, notify)
}

// Retryable reports whether err is worth another attempt: rate limits,
// server errors and transport failures are, client errors and
// cancellation are not.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return transientStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
