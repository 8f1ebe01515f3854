package soc

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const submitPath = "/ws/recall/submit"

// SelectionMode chooses which employee population the recall computation
// scans. The service defines exactly two values.
type SelectionMode int

const (
	SelectionActiveEmployees SelectionMode = 1
	SelectionAllEmployees    SelectionMode = 2
)

// SubmitRequest is the typed body of a recall submission. Optional flags
// are omitted from the wire entirely when false: the service treats an
// explicit false differently from an absent element on some tenants, so
// never send nulls or zero values for flags that are off.
type SubmitRequest struct {
	CompanyCode string
	PeriodStart time.Time
	PeriodEnd   time.Time

	ConvokeClinic          bool
	NeverPerformed         bool
	PeriodicNeverPerformed bool
	Pending                bool
	PendingPCMSO           bool

	SelectionMode SelectionMode
}

// Validate rejects requests the remote would refuse anyway, with a message
// naming the missing piece of recall configuration.
func (r SubmitRequest) Validate() error {
	if r.CompanyCode == "" {
		return eris.New("soc: submit: company code is required")
	}
	if r.PeriodStart.IsZero() || r.PeriodEnd.IsZero() {
		return eris.Errorf("soc: submit: period window is required for company %s", r.CompanyCode)
	}
	if r.PeriodEnd.Before(r.PeriodStart) {
		return eris.Errorf("soc: submit: period window ends before it starts for company %s", r.CompanyCode)
	}
	if r.SelectionMode != SelectionActiveEmployees && r.SelectionMode != SelectionAllEmployees {
		return eris.Errorf("soc: submit: selection mode must be 1 or 2, got %d", r.SelectionMode)
	}
	// The service documents these two flags as mutually exclusive but has
	// never been observed rejecting the combination. Pass it through and
	// leave a trace for the operator.
	if r.NeverPerformed && r.PeriodicNeverPerformed {
		zap.L().Warn("submit flags never_performed and periodic_never_performed set together; remote behavior unconfirmed",
			zap.String("company_code", r.CompanyCode),
		)
	}
	return nil
}

// submitRequestXML is the wire shape. Pointer flags give the
// omit-rather-than-send-null behavior the protocol expects.
type submitRequestXML struct {
	CompanyCode            string `xml:"CompanyCode"`
	PeriodStart            string `xml:"PeriodStart"`
	PeriodEnd              string `xml:"PeriodEnd"`
	ConvokeClinic          *bool  `xml:"ConvokeClinic,omitempty"`
	NeverPerformed         *bool  `xml:"NeverPerformed,omitempty"`
	PeriodicNeverPerformed *bool  `xml:"PeriodicNeverPerformed,omitempty"`
	Pending                *bool  `xml:"Pending,omitempty"`
	PendingPCMSO           *bool  `xml:"PendingPCMSO,omitempty"`
	SelectionMode          int    `xml:"SelectionMode"`
}

type submitResponseXML struct {
	RequestID string `xml:"RequestId"`
}

// wireDateLayout is the day-first date format of the legacy protocol.
const wireDateLayout = "02/01/2006"

func flagPtr(b bool) *bool {
	if !b {
		return nil
	}
	return &b
}

// SubmitRecallJob submits the recall computation and returns the external
// request id used later to fetch results.
func (c *httpClient) SubmitRecallJob(ctx context.Context, req SubmitRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	body := envelopeBody{Submit: &submitRequestXML{
		CompanyCode:            req.CompanyCode,
		PeriodStart:            req.PeriodStart.Format(wireDateLayout),
		PeriodEnd:              req.PeriodEnd.Format(wireDateLayout),
		ConvokeClinic:          flagPtr(req.ConvokeClinic),
		NeverPerformed:         flagPtr(req.NeverPerformed),
		PeriodicNeverPerformed: flagPtr(req.PeriodicNeverPerformed),
		Pending:                flagPtr(req.Pending),
		PendingPCMSO:           flagPtr(req.PendingPCMSO),
		SelectionMode:          int(req.SelectionMode),
	}}

	out, err := c.call(ctx, "submit recall", submitPath, body)
	if err != nil {
		return "", err
	}
	if out.SubmitResult == nil || out.SubmitResult.RequestID == "" {
		return "", &TransportError{Op: "submit recall", Err: eris.New("response missing request id")}
	}
	return out.SubmitResult.RequestID, nil
}
