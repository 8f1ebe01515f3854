// Package notify delivers report mail with synchronous retry and writes an
// audit record for every dispatch, success or not.
package notify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/salusworks/recall-cli/internal/model"
)

// AuditLog receives the final outcome of each dispatch.
type AuditLog interface {
	LogMail(ctx context.Context, entry *model.MailLogEntry) error
}

// Dispatcher sends messages through a Transport with retries. Sends are
// synchronous: the caller blocks until the message is delivered or the
// attempt budget is exhausted.
type Dispatcher struct {
	transport Transport
	audit     AuditLog
	policy    RetryPolicy
	sleep     func(ctx context.Context, d time.Duration) error
}

type DispatcherOption func(*Dispatcher)

// WithRetryPolicy substitutes the delay schedule. The default is a flat
// pause between attempts.
func WithRetryPolicy(p RetryPolicy) DispatcherOption {
	return func(d *Dispatcher) { d.policy = p }
}

func NewDispatcher(transport Transport, audit AuditLog, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		audit:     audit,
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Send delivers msg, retrying up to maxAttempts total attempts with delay
// between them. The outcome is recorded in the mail log either way; an
// audit write failure is logged but does not mask the send result.
func (d *Dispatcher) Send(ctx context.Context, msg Message, maxAttempts int, delay time.Duration) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	policy := d.policy
	if policy == nil {
		policy = FlatPolicy{Interval: delay}
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		lastErr = d.transport.Send(msg)
		if lastErr == nil {
			break
		}
		zap.L().Warn("mail send failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Strings("recipients", msg.Recipients),
			zap.Error(lastErr))
		if attempt == maxAttempts {
			break
		}
		if err := d.sleep(ctx, policy.Delay(attempt)); err != nil {
			lastErr = eris.Wrap(err, "notify: retry interrupted")
			break
		}
	}

	entry := &model.MailLogEntry{
		Recipients: msg.Recipients,
		Subject:    msg.Subject,
		Sent:       lastErr == nil,
		RowCount:   msg.RowCount,
		Attempts:   attempts,
	}
	for _, att := range msg.Attachments {
		entry.Attachments = append(entry.Attachments, att.FileName)
	}
	if lastErr != nil {
		entry.ErrorClass = "send_failed"
		entry.Error = lastErr.Error()
	}
	if err := d.audit.LogMail(ctx, entry); err != nil {
		zap.L().Error("mail audit write failed", zap.Error(err))
	}

	if lastErr != nil {
		return eris.Wrapf(lastErr, "notify: send failed after %d attempts", attempts)
	}
	return nil
}
