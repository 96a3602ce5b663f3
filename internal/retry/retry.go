// Package retry implements the bounded exponential-backoff-with-jitter retry
// budget required by spec.md §7 for transient errors, in the shape of
// libs/backoff.Retry: a retryable Operation run under a cenkalti/backoff
// policy until it succeeds, the error is classified non-retriable, or the
// policy's budget is exhausted.
package retry

import (
	"context"

	"github.com/cenkalti/backoff/v4"
)

// Operation is a unit of work that may fail transiently.
type Operation func() (interface{}, error)

// IsRetriable classifies whether err is worth retrying.
type IsRetriable func(error) bool

// Do runs operation under an exponential backoff policy bounded by ctx,
// retrying only errors that isRetriable accepts.
func Do(ctx context.Context, operation Operation, isRetriable IsRetriable) (interface{}, error) {
	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	var result interface{}
	err := backoff.Retry(func() error {
		res, err := operation()
		if err != nil {
			if !isRetriable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}, bo)

	if err != nil {
		return nil, err
	}
	return result, nil
}
