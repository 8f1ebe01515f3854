// Package store persists recall jobs, their imported result rows, task
// locks and the notification audit log, and resolves foreign keys against
// the platform's read-only reference tables.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/salusworks/recall-cli/internal/model"
)

// ErrDuplicateLock is returned by InsertLock when a running lock already
// exists for the job type. The partial unique index makes this check
// atomic; callers translate it into lock.ErrLockHeld.
var ErrDuplicateLock = errors.New("store: running lock already exists for job type")

// JobFilter specifies criteria for listing recall jobs.
type JobFilter struct {
	CompanyID      int64
	ResultImported *bool
	CreatedAfter   *time.Time
	Limit          int
}

// ResultFilter narrows result-row queries. JobID is required; CompanyID and
// UnitID are optional refinements.
type ResultFilter struct {
	JobID     string
	CompanyID int64
	UnitID    int64
}

// Store is the persistence interface for the recall pipeline.
type Store interface {
	// Recall jobs
	CreateJob(ctx context.Context, job *model.RecallJob) error
	GetJob(ctx context.Context, id string) (*model.RecallJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.RecallJob, error)
	LatestImportedJob(ctx context.Context, companyID int64) (*model.RecallJob, error)
	MarkResultImported(ctx context.Context, jobID, note string) error
	MarkReportSent(ctx context.Context, jobID string) error

	// Result rows
	InsertResults(ctx context.Context, jobID, note string, rows []model.RecallResultRow) (int64, error)
	ListResults(ctx context.Context, filter ResultFilter) ([]model.RecallResultRow, error)

	// Import quarantine
	AddQuarantined(ctx context.Context, rows []model.QuarantinedRow) error
	ListQuarantined(ctx context.Context, jobID string) ([]model.QuarantinedRow, error)

	// Reference lookups (read-only platform tables)
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	GetUnit(ctx context.Context, id int64) (*model.Unit, error)
	ListRecallUnits(ctx context.Context, companyIDs []int64) ([]model.Unit, error)
	LookupEmployeeID(ctx context.Context, companyID int64, code string) (int64, bool, error)
	LookupExamID(ctx context.Context, principalOrgCode, code string) (int64, bool, error)
	LookupUnitID(ctx context.Context, companyID int64, code string) (int64, bool, error)
	EmployeeNames(ctx context.Context, ids []int64) (map[int64]string, error)
	ExamNames(ctx context.Context, ids []int64) (map[int64]string, error)

	// Notification audit
	LogMail(ctx context.Context, entry *model.MailLogEntry) error

	// Task locks
	InsertLock(ctx context.Context, entry *model.TaskLockEntry) error
	ActiveLock(ctx context.Context, jobType model.JobType) (*model.TaskLockEntry, error)
	UpdateLockState(ctx context.Context, id string, state model.LockState, errMsg string) error
	TouchLock(ctx context.Context, id string, at time.Time) error
	CancelRunningLocks(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
