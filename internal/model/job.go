// Package model defines the persisted entities of the exam-recall pipeline.
package model

import "time"

// RecallJob tracks one recall computation submitted to the remote record
// system. The external request id is the handle used to fetch results later;
// raw_params keeps the serialized submit request for auditability.
type RecallJob struct {
	ID                string    `json:"id"`
	PrincipalOrgCode  string    `json:"principal_org_code"`
	CompanyID         int64     `json:"company_id"`
	CompanyCode       string    `json:"company_code"`
	ExternalRequestID string    `json:"external_request_id"`
	CreatedAt         time.Time `json:"created_at"`
	ResultImported    bool      `json:"result_imported"`
	ReportSent        bool      `json:"report_sent"`
	RawParams         string    `json:"raw_params,omitempty"`
	Note              string    `json:"note,omitempty"`
}

// RecallResultRow is one imported row of a recall computation. Rows are
// immutable after import and cascade-deleted with their parent job.
type RecallResultRow struct {
	JobID             string     `json:"job_id"`
	CompanyID         int64      `json:"company_id"`
	UnitID            int64      `json:"unit_id"`
	EmployeeID        int64      `json:"employee_id"`
	ExamID            int64      `json:"exam_id"`
	PeriodicityMonths int        `json:"periodicity_months"`
	AdmissionDate     *time.Time `json:"admission_date,omitempty"`
	LastRequestDate   *time.Time `json:"last_request_date,omitempty"`
	ResultDate        *time.Time `json:"result_date,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
}

// QuarantinedRow records an imported row that failed foreign-key resolution
// and was diverted instead of silently dropped.
type QuarantinedRow struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	Reason    string    `json:"reason"`
	RawRow    []byte    `json:"raw_row"`
	CreatedAt time.Time `json:"created_at"`
}
