package model

import "time"

// MailLogEntry is the audit record of one notification dispatch. One row is
// written per Send call with the final outcome after all retry attempts.
type MailLogEntry struct {
	ID          string    `json:"id"`
	Recipients  []string  `json:"recipients"`
	Subject     string    `json:"subject"`
	Attachments []string  `json:"attachments,omitempty"`
	Sent        bool      `json:"sent"`
	ErrorClass  string    `json:"error_class,omitempty"`
	Error       string    `json:"error,omitempty"`
	RowCount    int       `json:"row_count"`
	Attempts    int       `json:"attempts"`
	CreatedAt   time.Time `json:"created_at"`
}
