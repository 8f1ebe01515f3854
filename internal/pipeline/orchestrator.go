// Package pipeline orchestrates the recall workflow: load imported rows,
// classify, build report artifacts and dispatch them to a unit's recall
// contacts, then drive that sequence across every enabled unit in batch.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/salusworks/recall-cli/internal/classify"
	"github.com/salusworks/recall-cli/internal/model"
	"github.com/salusworks/recall-cli/internal/notify"
	"github.com/salusworks/recall-cli/internal/report"
	"github.com/salusworks/recall-cli/internal/store"
)

// Run statuses. These are operator-facing strings printed per unit and
// recorded in the batch summary.
const (
	StatusOK           = "ok"
	StatusEmptyQuery   = "empty query"
	StatusNoRecipients = "no recipients"
	StatusNoFile       = "no file"
	StatusSendFailed   = "send failed"
	StatusFailed       = "failed"
)

// Target scopes a run to a company and optionally one unit.
type Target struct {
	CompanyID int64
	UnitID    int64
}

// RunOutcome is the result of one orchestrator run.
type RunOutcome struct {
	Status          string
	FileName        string
	RowCount        int
	DurationSeconds float64
	Err             error
}

// Repository is the slice of the store the orchestrator reads.
type Repository interface {
	ListResults(ctx context.Context, filter store.ResultFilter) ([]model.RecallResultRow, error)
	GetUnit(ctx context.Context, id int64) (*model.Unit, error)
	GetCompany(ctx context.Context, id int64) (*model.Company, error)
	MarkReportSent(ctx context.Context, jobID string) error
	EmployeeNames(ctx context.Context, ids []int64) (map[int64]string, error)
	ExamNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// ArtifactBuilder renders the filtered report artifacts.
type ArtifactBuilder interface {
	Build(ctx context.Context, req report.BuildRequest) (report.BuildResult, error)
}

// Sender dispatches a report mail.
type Sender interface {
	Send(ctx context.Context, msg notify.Message, maxAttempts int, delay time.Duration) error
}

// Config carries the orchestrator tunables.
type Config struct {
	Filters          report.Filters
	IncludeDeck      bool
	MailMaxAttempts  int
	MailRetryDelay   time.Duration
	OperatorContacts []string
}

// Orchestrator runs the classify-report-notify sequence for one unit.
type Orchestrator struct {
	repo    Repository
	builder ArtifactBuilder
	sender  Sender
	cfg     Config
	now     func() time.Time
}

func NewOrchestrator(repo Repository, builder ArtifactBuilder, sender Sender, cfg Config) *Orchestrator {
	if cfg.MailMaxAttempts < 1 {
		cfg.MailMaxAttempts = 3
	}
	if cfg.MailRetryDelay <= 0 {
		cfg.MailRetryDelay = 30 * time.Second
	}
	return &Orchestrator{
		repo:    repo,
		builder: builder,
		sender:  sender,
		cfg:     cfg,
		now:     time.Now,
	}
}

// RunRecallForCompanyOrUnit executes the full sequence for one target and
// never panics: recovered panics become a failed outcome. A dispatch
// failure downgrades the status but the run itself still returns nil error,
// so one bad relay does not abort a batch.
func (o *Orchestrator) RunRecallForCompanyOrUnit(ctx context.Context, jobID string, target Target, emailBody string) (outcome RunOutcome) {
	started := o.now()
	defer func() {
		outcome.DurationSeconds = o.now().Sub(started).Seconds()
		if r := recover(); r != nil {
			zap.L().Error("recall run panicked",
				zap.String("job_id", jobID),
				zap.Int64("company_id", target.CompanyID),
				zap.Int64("unit_id", target.UnitID),
				zap.Any("panic", r))
			outcome.Status = StatusFailed
			outcome.Err = eris.Errorf("pipeline: run panicked: %v", r)
		}
	}()

	rows, err := o.repo.ListResults(ctx, store.ResultFilter{
		JobID:     jobID,
		CompanyID: target.CompanyID,
		UnitID:    target.UnitID,
	})
	if err != nil {
		return RunOutcome{Status: StatusFailed, Err: eris.Wrap(err, "pipeline: load results")}
	}
	if len(rows) == 0 {
		return RunOutcome{Status: StatusEmptyQuery}
	}

	recipients, unitName, err := o.resolveRecipients(ctx, target)
	if err != nil {
		return RunOutcome{Status: StatusFailed, Err: err}
	}
	if len(recipients) == 0 {
		return RunOutcome{Status: StatusNoRecipients, RowCount: len(rows)}
	}

	reportRows, err := o.classifyRows(ctx, unitName, rows)
	if err != nil {
		return RunOutcome{Status: StatusFailed, Err: err}
	}

	built, err := o.builder.Build(ctx, report.BuildRequest{
		Title:       unitName,
		Rows:        reportRows,
		Filters:     o.cfg.Filters,
		IncludeDeck: o.cfg.IncludeDeck,
	})
	if err != nil {
		return RunOutcome{Status: StatusFailed, Err: eris.Wrap(err, "pipeline: build artifacts")}
	}
	if built.ArchivePath == "" {
		return RunOutcome{Status: StatusNoFile, RowCount: len(rows)}
	}

	content, err := os.ReadFile(built.ArchivePath)
	if err != nil {
		return RunOutcome{Status: StatusFailed, Err: eris.Wrap(err, "pipeline: read archive")}
	}

	msg := notify.Message{
		Recipients: recipients,
		Subject:    fmt.Sprintf("Convocação de exames - %s", unitName),
		HTMLBody:   emailBody,
		RowCount:   built.RowCount,
		Attachments: []notify.Attachment{
			{FileName: filepath.Base(built.ArchivePath), Content: content},
		},
	}
	if err := o.sender.Send(ctx, msg, o.cfg.MailMaxAttempts, o.cfg.MailRetryDelay); err != nil {
		zap.L().Warn("report dispatch failed",
			zap.String("job_id", jobID),
			zap.String("unit", unitName),
			zap.Error(err))
		return RunOutcome{
			Status:   StatusSendFailed,
			FileName: built.ArchivePath,
			RowCount: built.RowCount,
			Err:      err,
		}
	}

	if err := o.repo.MarkReportSent(ctx, jobID); err != nil {
		// The mail went out; losing the flag is worth surfacing but not
		// worth reporting the unit as failed.
		zap.L().Error("mark report sent failed",
			zap.String("job_id", jobID), zap.Error(err))
	}

	return RunOutcome{
		Status:   StatusOK,
		FileName: built.ArchivePath,
		RowCount: built.RowCount,
	}
}

// resolveRecipients returns the notification addresses and display name for
// the target. With a unit set, the unit's recall contact list decides; a
// company-wide run falls back to the operator contacts.
func (o *Orchestrator) resolveRecipients(ctx context.Context, target Target) ([]string, string, error) {
	if target.UnitID != 0 {
		unit, err := o.repo.GetUnit(ctx, target.UnitID)
		if err != nil {
			return nil, "", eris.Wrap(err, "pipeline: load unit")
		}
		if unit == nil {
			return nil, "", eris.Errorf("pipeline: unit %d not found", target.UnitID)
		}
		return unit.RecallEmails, unit.Name, nil
	}

	company, err := o.repo.GetCompany(ctx, target.CompanyID)
	if err != nil {
		return nil, "", eris.Wrap(err, "pipeline: load company")
	}
	if company == nil {
		return nil, "", eris.Errorf("pipeline: company %d not found", target.CompanyID)
	}
	return o.cfg.OperatorContacts, company.Name, nil
}

// classifyRows turns stored rows into presentation rows with resolved names
// and computed status and bucket.
func (o *Orchestrator) classifyRows(ctx context.Context, unitName string, rows []model.RecallResultRow) ([]report.Row, error) {
	employeeIDs := make([]int64, 0, len(rows))
	examIDs := make([]int64, 0, len(rows))
	for _, r := range rows {
		employeeIDs = append(employeeIDs, r.EmployeeID)
		examIDs = append(examIDs, r.ExamID)
	}
	employeeNames, err := o.repo.EmployeeNames(ctx, employeeIDs)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve employee names")
	}
	examNames, err := o.repo.ExamNames(ctx, examIDs)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: resolve exam names")
	}

	today := o.now()
	out := make([]report.Row, 0, len(rows))
	for _, r := range rows {
		days := classify.DaysUntilDue(r.DueDate, today)
		out = append(out, report.Row{
			EmployeeName:      nameOrID(employeeNames, r.EmployeeID),
			ExamName:          nameOrID(examNames, r.ExamID),
			UnitName:          unitName,
			PeriodicityMonths: r.PeriodicityMonths,
			AdmissionDate:     r.AdmissionDate,
			LastRequestDate:   r.LastRequestDate,
			ResultDate:        r.ResultDate,
			DueDate:           r.DueDate,
			Status:            classify.ComputeStatus(r.LastRequestDate, r.ResultDate, r.DueDate, today),
			Bucket:            classify.ComputeBucket(days),
			DaysUntilDue:      days,
		})
	}
	return out, nil
}

func nameOrID(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("#%d", id)
}
