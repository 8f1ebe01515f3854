package soc

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

const exportPath = "/ws/recall/export"

type exportRequestXML struct {
	RequestID   string `xml:"RequestId"`
	CompanyCode string `xml:"CompanyCode"`
	Format      string `xml:"Format"`
}

// exportResponseXML carries the tabular result as a JSON array embedded as
// a string inside the XML body. That is the protocol, not a choice.
type exportResponseXML struct {
	Payload string `xml:"Payload"`
}

// LooseString decodes a JSON value that the legacy export emits
// inconsistently as either a string or a bare number.
type LooseString string

func (s *LooseString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = LooseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*s = LooseString(n.String())
	return nil
}

func (s LooseString) String() string { return string(s) }

// Int64 coerces the value to an integer id, reporting false for blanks and
// non-numeric garbage.
func (s LooseString) Int64() (int64, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ResultRow is one exported row, untouched: blank-field filtering, numeric
// coercion and date parsing happen in the importer.
type ResultRow struct {
	CompanyCode       LooseString `json:"codigoEmpresa"`
	UnitCode          LooseString `json:"codigoUnidade"`
	EmployeeCode      LooseString `json:"codigoFuncionario"`
	ExamCode          LooseString `json:"codigoExame"`
	PeriodicityMonths LooseString `json:"periodicidade"`
	AdmissionDate     string      `json:"dataAdmissao"`
	LastRequestDate   string      `json:"dataUltimoPedido"`
	ResultDate        string      `json:"dataResultado"`
	DueDate           string      `json:"dataRefazer"`
}

// FetchJobResult exports the computed rows for a previously submitted
// request. The remote's no-data fault is success with zero rows.
func (c *httpClient) FetchJobResult(ctx context.Context, externalRequestID, companyCode string) ([]ResultRow, error) {
	body := envelopeBody{Export: &exportRequestXML{
		RequestID:   externalRequestID,
		CompanyCode: companyCode,
		Format:      "json",
	}}

	out, err := c.call(ctx, "fetch result", exportPath, body)
	if err != nil {
		if IsNoData(err) {
			return nil, nil
		}
		return nil, err
	}
	if out.ExportResult == nil {
		return nil, &TransportError{Op: "fetch result", Err: eris.New("response missing export payload")}
	}
	if out.ExportResult.Payload == "" {
		return nil, nil
	}

	var rows []ResultRow
	if err := json.Unmarshal([]byte(out.ExportResult.Payload), &rows); err != nil {
		return nil, &TransportError{Op: "fetch result", Err: eris.Wrap(err, "decode payload json")}
	}
	return rows, nil
}
