package soc

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = Credentials{Username: "org-principal", Password: "secret"}

func testSubmitRequest() SubmitRequest {
	return SubmitRequest{
		CompanyCode:   "EMP042",
		PeriodStart:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Pending:       true,
		SelectionMode: SelectionActiveEmployees,
	}
}

func respond(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "text/xml")
	_, err := io.WriteString(w, xml.Header+body)
	require.NoError(t, err)
}

func TestSubmitRecallJob_Success(t *testing.T) {
	var captured []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/recall/submit", r.URL.Path)
		captured, _ = io.ReadAll(r.Body)
		respond(t, w, `<Envelope><Body><SubmitRecallResponse><RequestId>REQ-881</RequestId></SubmitRecallResponse></Body></Envelope>`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds)
	id, err := c.SubmitRecallJob(context.Background(), testSubmitRequest())
	require.NoError(t, err)
	assert.Equal(t, "REQ-881", id)

	body := string(captured)
	assert.Contains(t, body, "<Username>org-principal</Username>")
	assert.Contains(t, body, "<PasswordDigest>")
	assert.Contains(t, body, "<PeriodStart>01/01/2026</PeriodStart>")
	assert.Contains(t, body, "<Pending>true</Pending>")
	// Flags that are off must be absent, not false.
	assert.NotContains(t, body, "NeverPerformed")
	assert.NotContains(t, body, "ConvokeClinic")
}

func TestSubmitRecallJob_Validation(t *testing.T) {
	c := NewClient("http://unused", testCreds)

	req := testSubmitRequest()
	req.CompanyCode = ""
	_, err := c.SubmitRecallJob(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "company code")

	req = testSubmitRequest()
	req.PeriodEnd = time.Time{}
	_, err = c.SubmitRecallJob(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "period window")

	req = testSubmitRequest()
	req.SelectionMode = 7
	_, err = c.SubmitRecallJob(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "selection mode")
}

func TestSubmitRecallJob_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds)
	_, err := c.SubmitRecallJob(context.Background(), testSubmitRequest())
	require.Error(t, err)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadGateway, te.StatusCode)
}

func TestSubmitRecallJob_BusinessError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, `<Envelope><Body><Fault><Code>COMPANY_BLOCKED</Code><Message>company 42 is blocked</Message></Fault></Body></Envelope>`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds)
	_, err := c.SubmitRecallJob(context.Background(), testSubmitRequest())
	require.Error(t, err)

	var be *BusinessError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "COMPANY_BLOCKED", be.Code)
	assert.Contains(t, be.Message, "blocked")
}

func TestFetchJobResult_PayloadDecoding(t *testing.T) {
	payload := `[{"codigoEmpresa":"42","codigoUnidade":7,"codigoFuncionario":"F001","codigoExame":"AUDIO","periodicidade":12,"dataAdmissao":"01-02-2020","dataUltimoPedido":"10-01-2026","dataResultado":"","dataRefazer":"10-01-2027"}]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/recall/export", r.URL.Path)
		env := envelope{Body: envelopeBody{ExportResult: &exportResponseXML{Payload: payload}}}
		buf, err := xml.Marshal(env)
		require.NoError(t, err)
		respond(t, w, string(buf))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds)
	rows, err := c.FetchJobResult(context.Background(), "REQ-881", "EMP042")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "42", row.CompanyCode.String())
	assert.Equal(t, "7", row.UnitCode.String(), "bare numbers coerce to strings")
	assert.Equal(t, "AUDIO", row.ExamCode.String())
	assert.Equal(t, "", row.ResultDate)

	n, ok := row.UnitCode.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok = row.ExamCode.Int64()
	assert.False(t, ok)
}

func TestFetchJobResult_NoDataFaultIsEmptySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, `<Envelope><Body><Fault><Code>NO_DATA_FOUND</Code><Message>no rows</Message></Fault></Body></Envelope>`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds)
	rows, err := c.FetchJobResult(context.Background(), "REQ-881", "EMP042")
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestFetchJobResult_ConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, testCreds)
	_, err := c.FetchJobResult(context.Background(), "REQ-881", "EMP042")
	require.Error(t, err)

	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestBuildSecurityHeader_WindowClamping(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	parseExpires := func(h securityHeader) time.Time {
		exp, err := time.Parse(wireTimeLayout, h.Expires)
		require.NoError(t, err)
		return exp
	}

	h := buildSecurityHeader(Credentials{Username: "u", Password: "p"}, now)
	assert.Equal(t, "2026-06-01T12:00:00Z", h.Created)
	assert.Equal(t, now.Add(30*time.Minute), parseExpires(h), "zero window defaults to 30m")

	h = buildSecurityHeader(Credentials{Username: "u", Password: "p", TokenWindow: time.Minute}, now)
	assert.Equal(t, now.Add(10*time.Minute), parseExpires(h), "short windows clamp up to 10m")

	h = buildSecurityHeader(Credentials{Username: "u", Password: "p", TokenWindow: 4 * time.Hour}, now)
	assert.Equal(t, now.Add(60*time.Minute), parseExpires(h), "long windows clamp down to 60m")
}

func TestBuildSecurityHeader_DigestVariesWithCreated(t *testing.T) {
	creds := Credentials{Username: "u", Password: "p"}
	h1 := buildSecurityHeader(creds, time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	h2 := buildSecurityHeader(creds, time.Date(2026, 6, 1, 12, 0, 1, 0, time.UTC))
	assert.NotEqual(t, h1.PasswordDigest, h2.PasswordDigest)
	assert.Len(t, h1.PasswordDigest, 64)
}
