package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salusworks/recall-cli/internal/model"
)

type fakeTransport struct {
	failures int
	calls    int
}

func (f *fakeTransport) Send(Message) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("relay refused connection")
	}
	return nil
}

type fakeAudit struct {
	entries []*model.MailLogEntry
	err     error
}

func (f *fakeAudit) LogMail(_ context.Context, entry *model.MailLogEntry) error {
	f.entries = append(f.entries, entry)
	return f.err
}

func newTestDispatcher(transport Transport, audit AuditLog, opts ...DispatcherOption) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(transport, audit, opts...)
	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}
	return d, &slept
}

func TestSend_SucceedsThirdAttempt(t *testing.T) {
	transport := &fakeTransport{failures: 2}
	audit := &fakeAudit{}
	d, slept := newTestDispatcher(transport, audit)

	msg := Message{
		Recipients: []string{"rh@acme.example"},
		Subject:    "Convocação de exames",
		HTMLBody:   "<p>segue anexo</p>",
		RowCount:   17,
	}
	err := d.Send(context.Background(), msg, 3, 100*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, 3, transport.calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 100 * time.Millisecond}, *slept)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.True(t, entry.Sent)
	assert.Equal(t, 3, entry.Attempts)
	assert.Equal(t, 17, entry.RowCount)
	assert.Empty(t, entry.ErrorClass)
}

func TestSend_ExhaustsAttempts(t *testing.T) {
	transport := &fakeTransport{failures: 10}
	audit := &fakeAudit{}
	d, slept := newTestDispatcher(transport, audit)

	err := d.Send(context.Background(), Message{Recipients: []string{"x@y"}}, 3, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")

	assert.Equal(t, 3, transport.calls)
	assert.Len(t, *slept, 2)

	require.Len(t, audit.entries, 1)
	entry := audit.entries[0]
	assert.False(t, entry.Sent)
	assert.Equal(t, "send_failed", entry.ErrorClass)
	assert.Contains(t, entry.Error, "relay refused")
}

func TestSend_SingleAttemptNoSleep(t *testing.T) {
	transport := &fakeTransport{failures: 1}
	audit := &fakeAudit{}
	d, slept := newTestDispatcher(transport, audit)

	err := d.Send(context.Background(), Message{Recipients: []string{"x@y"}}, 1, time.Second)
	require.Error(t, err)
	assert.Equal(t, 1, transport.calls)
	assert.Empty(t, *slept)
}

func TestSend_AuditFailureDoesNotMaskSuccess(t *testing.T) {
	transport := &fakeTransport{}
	audit := &fakeAudit{err: errors.New("mail_log insert failed")}
	d, _ := newTestDispatcher(transport, audit)

	err := d.Send(context.Background(), Message{Recipients: []string{"x@y"}}, 3, time.Second)
	assert.NoError(t, err)
}

func TestSend_CustomPolicyDelays(t *testing.T) {
	transport := &fakeTransport{failures: 2}
	audit := &fakeAudit{}
	d, slept := newTestDispatcher(transport, audit,
		WithRetryPolicy(BackoffPolicy{Initial: time.Second, Multiplier: 2, Max: time.Minute}))

	err := d.Send(context.Background(), Message{Recipients: []string{"x@y"}}, 3, 0)
	require.NoError(t, err)
	require.Len(t, *slept, 2)
	assert.Equal(t, time.Second, (*slept)[0])
	assert.Equal(t, 2*time.Second, (*slept)[1])
}

func TestSend_RecordsAttachmentNames(t *testing.T) {
	transport := &fakeTransport{}
	audit := &fakeAudit{}
	d, _ := newTestDispatcher(transport, audit)

	msg := Message{
		Recipients:  []string{"x@y"},
		Attachments: []Attachment{{FileName: "matriz_1740830400.zip", Content: []byte("zipzip")}},
	}
	require.NoError(t, d.Send(context.Background(), msg, 1, 0))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, []string{"matriz_1740830400.zip"}, audit.entries[0].Attachments)
}

func TestBackoffPolicy_CapsAtMax(t *testing.T) {
	p := BackoffPolicy{Initial: time.Second, Multiplier: 10, Max: 5 * time.Second}
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 5*time.Second, p.Delay(2))
	assert.Equal(t, 5*time.Second, p.Delay(8))
}

func TestComposeMIME(t *testing.T) {
	msg := Message{
		Recipients:  []string{"rh@acme.example", "sst@acme.example"},
		Subject:     "Relatório",
		HTMLBody:    "<h1>olá</h1>",
		Attachments: []Attachment{{FileName: "/tmp/out/report.xlsx", Content: []byte("sheet")}},
	}
	raw, err := composeMIME("noreply@salus.example", msg)
	require.NoError(t, err)
	body := string(raw)

	assert.Contains(t, body, "From: noreply@salus.example")
	assert.Contains(t, body, "To: rh@acme.example, sst@acme.example")
	assert.Contains(t, body, "multipart/mixed")
	// Attachment name is the base name, never the local path.
	assert.Contains(t, body, `filename="report.xlsx"`)
	assert.NotContains(t, body, "/tmp/out")
	// Non-ASCII subject is Q-encoded.
	assert.Contains(t, body, "Subject: =?utf-8?q?")
	assert.Equal(t, 2, strings.Count(body, "Content-Transfer-Encoding: base64"))
}

func TestSMTPTransport_RequiresRecipients(t *testing.T) {
	tr := NewSMTPTransport(SMTPConfig{Host: "localhost", Port: 25})
	err := tr.Send(Message{Subject: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipients")
}
