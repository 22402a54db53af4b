package downloader

import (
	"context"
	"errors"

	"github.com/italolelis/ytaudio_archiver/internal/logctx"
	"github.com/italolelis/ytaudio_archiver/internal/transfer"
)

// Retrier runs an operation up to MaxAttempts times. Failures are classified
// from their message; an auth-classified failure triggers one credential
// refresh before the next attempt, any other failure is retried immediately.
// Fatal failures and a cancelled context stop the loop early.
type Retrier struct {
	maxAttempts int
	classifier  transfer.Classifier
	credentials transfer.CredentialSource
}

// NewRetrier creates a Retrier. credentials may be nil, in which case auth
// failures are retried without a refresh.
func NewRetrier(maxAttempts int, classifier transfer.Classifier, credentials transfer.CredentialSource) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	return &Retrier{
		maxAttempts: maxAttempts,
		classifier:  classifier,
		credentials: credentials,
	}
}

// Do runs fn until it succeeds or the attempts run out. When the last failure
// was auth-classified the returned error is an *transfer.AuthenticationError.
func (r *Retrier) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	logger := logctx.LoggerFromContext(ctx)

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		kind := r.classifier.Classify(transfer.BackendMessage(err))

		if kind == transfer.KindFatal || attempt >= r.maxAttempts || ctx.Err() != nil {
			if kind == transfer.KindAuth {
				return &transfer.AuthenticationError{Operation: operation, Err: err}
			}

			return err
		}

		logger.Warn("operation failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", r.maxAttempts,
			"kind", kind.String(),
			"err", err,
		)

		if kind == transfer.KindAuth && r.credentials != nil {
			if rErr := r.credentials.Refresh(ctx); rErr != nil {
				logger.Error("failed to refresh credentials", "operation", operation, "err", rErr)
			}
		}
	}
}

// IsAuthFailure reports whether err came out of Do with an auth classification.
func IsAuthFailure(err error) bool {
	var authErr *transfer.AuthenticationError

	return errors.As(err, &authErr)
}
