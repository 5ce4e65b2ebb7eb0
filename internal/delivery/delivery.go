// Package delivery sends reply text back to senders.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Deliverer sends text to a recipient.
type Deliverer interface {
	Deliver(ctx context.Context, recipient, text string) error
}

// DeliveryError is returned once every attempt to deliver a message has failed.
type DeliveryError struct {
	Recipient string
	Attempts  int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s failed after %d attempts: %v", e.Recipient, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Retrying retries a Deliverer with exponential backoff.
type Retrying struct {
	next     Deliverer
	attempts int
	base     time.Duration
	max      time.Duration
}

// NewRetrying wraps next. attempts counts the first try; base is the first
// backoff and doubles after each failure, capped at 30 seconds.
func NewRetrying(next Deliverer, attempts int, base time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	return &Retrying{next: next, attempts: attempts, base: base, max: 30 * time.Second}
}

// Deliver tries to deliver text, backing off between failed attempts. It
// stops early on a permanent error or when ctx is done.
func (r *Retrying) Deliver(ctx context.Context, recipient, text string) error {
	wait := r.base
	var err error
	attempt := 0
	for attempt < r.attempts {
		attempt++
		err = r.next.Deliver(ctx, recipient, text)
		if err == nil {
			if attempt > 1 {
				slog.Info("message delivered after retry", "recipient", recipient, "attempt", attempt)
			}
			return nil
		}
		if IsPermanent(err) || attempt == r.attempts {
			break
		}
		slog.Warn("delivery failed, retrying", "recipient", recipient, "attempt", attempt, "wait", wait, "error", err)

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return &DeliveryError{Recipient: recipient, Attempts: attempt, Err: ctx.Err()}
		case <-t.C:
		}
		wait = min(wait*2, r.max)
	}
	return &DeliveryError{Recipient: recipient, Attempts: attempt, Err: err}
}

// Writer prints replies to W, one per line. The chat command uses it in
// place of a real messaging channel.
type Writer struct {
	W io.Writer
}

// Deliver writes text to W.
func (w Writer) Deliver(_ context.Context, recipient, text string) error {
	slog.Debug("reply", "recipient", recipient, "bytes", len(text))
	if _, err := fmt.Fprintln(w.W, text); err != nil {
		return Permanent(err)
	}
	return nil
}
