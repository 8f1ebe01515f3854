// Package soc talks to the legacy SOC-style occupational-health record
// service over its XML-envelope HTTP protocol: one endpoint submits an
// asynchronous recall computation, another exports its tabular result.
package soc

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the two remote operations the pipeline depends on.
type Client interface {
	SubmitRecallJob(ctx context.Context, req SubmitRequest) (string, error)
	FetchJobResult(ctx context.Context, externalRequestID, companyCode string) ([]ResultRow, error)
}

// envelope is the outer XML document on both requests and responses.
type envelope struct {
	XMLName xml.Name       `xml:"Envelope"`
	Header  envelopeHeader `xml:"Header"`
	Body    envelopeBody   `xml:"Body"`
}

type envelopeHeader struct {
	Security *securityHeader `xml:"Security,omitempty"`
}

type envelopeBody struct {
	Submit *submitRequestXML `xml:"SubmitRecallRequest,omitempty"`
	Export *exportRequestXML `xml:"ExportResultRequest,omitempty"`

	// Response elements.
	SubmitResult *submitResponseXML `xml:"SubmitRecallResponse,omitempty"`
	ExportResult *exportResponseXML `xml:"ExportResultResponse,omitempty"`
	Fault        *faultXML          `xml:"Fault,omitempty"`
}

type faultXML struct {
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit paces outgoing calls. The default allows 2 req/s which is
// what the service tolerates before throttling whole principal orgs.
func WithRateLimit(l *rate.Limiter) Option {
	return func(c *httpClient) { c.limiter = l }
}

// WithClock overrides the time source used for security header stamps.
func WithClock(now func() time.Time) Option {
	return func(c *httpClient) { c.now = now }
}

type httpClient struct {
	baseURL string
	creds   Credentials
	http    *http.Client
	limiter *rate.Limiter
	now     func() time.Time
}

// NewClient creates a SOC client for one principal organization's
// credentials. baseURL is the service root; the two operation paths are
// fixed by the protocol.
func NewClient(baseURL string, creds Credentials, opts ...Option) Client {
	c := &httpClient{
		baseURL: baseURL,
		creds:   creds,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(2, 1),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call posts an envelope and decodes the response envelope. A fault in the
// response body becomes a *BusinessError; anything preventing a decodable
// 2xx response becomes a *TransportError.
func (c *httpClient) call(ctx context.Context, op, path string, body envelopeBody) (*envelopeBody, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Op: op, Err: err}
		}
	}

	header := buildSecurityHeader(c.creds, c.now())
	env := envelope{
		Header: envelopeHeader{Security: &header},
		Body:   body,
	}

	buf, err := xml.Marshal(env)
	if err != nil {
		return nil, eris.Wrapf(err, "soc: %s: marshal envelope", op)
	}
	payload := append([]byte(xml.Header), buf...)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrapf(err, "soc: %s: create request", op)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: op, StatusCode: resp.StatusCode}
	}

	var out envelope
	if err := xml.Unmarshal(data, &out); err != nil {
		return nil, &TransportError{Op: op, Err: eris.Wrap(err, "decode envelope")}
	}

	if out.Body.Fault != nil {
		return nil, &BusinessError{
			Op:      op,
			Code:    out.Body.Fault.Code,
			Message: out.Body.Fault.Message,
		}
	}
	return &out.Body, nil
}
