package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// complete asks the completer for the next message, retrying transient failures
// up to MaxAttempts times. Permanent failures and cancellation of ctx stop at once.
func (a *Agent) complete(ctx context.Context, req Request) (*Response, error) {
	attempt := 0
	op := func() (*Response, error) {
		attempt++
		resp, err := a.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(a.newBackOff()),
		backoff.WithMaxTries(uint(a.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			a.logger.WarnContext(ctx, "completion failed, retrying",
				"agent_id", a.id, "attempt", attempt, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		if IsTransient(err) {
			return nil, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, err)
		}
		return nil, err
	}
	return resp, nil
}

// attempt runs one completion under RequestTimeout. Expiry of that timeout, but
// not of ctx itself, is reported as a transient timeout.
func (a *Agent) attempt(ctx context.Context, req Request) (*Response, error) {
	actx := ctx
	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}
	resp, err := a.completer.Complete(actx, req)
	if err != nil {
		if !IsTransient(err) && errors.Is(err, context.DeadlineExceeded) && actx.Err() != nil && ctx.Err() == nil {
			return nil, &TransientError{Kind: TransientTimeout, Err: err}
		}
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("agent: completer returned no response")
	}
	return resp, nil
}
