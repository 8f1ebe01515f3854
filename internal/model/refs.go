package model

// Reference entities live in external read-only tables maintained by the
// main platform. The pipeline only joins against them to resolve foreign
// keys and to find notification targets.

// Company is a client company under a principal organization.
type Company struct {
	ID               int64  `json:"id"`
	PrincipalOrgCode string `json:"principal_org_code"`
	Code             string `json:"code"`
	Name             string `json:"name"`
	RecallEnabled    bool   `json:"recall_enabled"`
}

// Unit is a physical site of a company. RecallEmails is the configured
// recall-notification address list; empty means the unit gets no reports.
type Unit struct {
	ID            int64    `json:"id"`
	CompanyID     int64    `json:"company_id"`
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	RecallEnabled bool     `json:"recall_enabled"`
	RecallEmails  []string `json:"recall_emails,omitempty"`
}

// Employee is keyed remotely by (company, employee code).
type Employee struct {
	ID        int64  `json:"id"`
	CompanyID int64  `json:"company_id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
}

// Exam is a catalog entry keyed remotely by (principal org, exam code).
type Exam struct {
	ID               int64  `json:"id"`
	PrincipalOrgCode string `json:"principal_org_code"`
	Code             string `json:"code"`
	Name             string `json:"name"`
}
