package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/salusworks/recall-cli/internal/model"
	"github.com/salusworks/recall-cli/internal/notify"
	"github.com/salusworks/recall-cli/internal/report"
)

// StatusNoJob marks units whose company has no imported job to report on.
const StatusNoJob = "no job"

// BatchRepository is the slice of the store the batch driver needs on top
// of the orchestrator's Repository.
type BatchRepository interface {
	Repository
	ListRecallUnits(ctx context.Context, companyIDs []int64) ([]model.Unit, error)
	LatestImportedJob(ctx context.Context, companyID int64) (*model.RecallJob, error)
}

// BatchOptions scope one batch run.
type BatchOptions struct {
	CompanyIDs []int64
	// StartDate, when set, skips jobs imported before it.
	StartDate *time.Time
	EmailBody string
	// Concurrency is the number of units processed at once. Zero or one
	// preserves the sequential unit-by-unit behavior.
	Concurrency int
	// DryRun walks the units and reports what would run without building
	// or mailing anything.
	DryRun bool
}

// BatchSummary is the aggregate outcome of a batch run.
type BatchSummary struct {
	Units     int
	Succeeded int
	Failed    int
	Rows      []report.SummaryRow
}

// Batch drives the orchestrator across every recall-enabled unit.
type Batch struct {
	repo         BatchRepository
	orchestrator *Orchestrator
	sender       Sender
	cfg          Config
	outDir       string
	progress     io.Writer
	now          func() time.Time
}

func NewBatch(repo BatchRepository, orchestrator *Orchestrator, sender Sender, cfg Config, outDir string, progress io.Writer) *Batch {
	if progress == nil {
		progress = os.Stdout
	}
	return &Batch{
		repo:         repo,
		orchestrator: orchestrator,
		sender:       sender,
		cfg:          cfg,
		outDir:       outDir,
		progress:     progress,
		now:          time.Now,
	}
}

// Run processes every enabled unit, prints one line per unit with a running
// total, then mails the consolidated summary workbook to the operators.
// Per-unit failures never abort the run or surface as a process failure;
// only being unable to enumerate the units does.
func (b *Batch) Run(ctx context.Context, opts BatchOptions) (*BatchSummary, error) {
	units, err := b.repo.ListRecallUnits(ctx, opts.CompanyIDs)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list recall units")
	}

	summary := &BatchSummary{Units: len(units)}
	if len(units) == 0 {
		fmt.Fprintln(b.progress, "no recall-enabled units matched")
		return summary, nil
	}

	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	var mu sync.Mutex
	done := 0
	rows := make([]report.SummaryRow, len(units))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, unit := range units {
		g.Go(func() error {
			row := b.runUnit(gctx, unit, opts)
			mu.Lock()
			rows[i] = row
			done++
			ok := row.Status == StatusOK
			if ok {
				summary.Succeeded++
			} else {
				summary.Failed++
			}
			marker := "FAIL"
			if ok {
				marker = "ok"
			}
			fmt.Fprintf(b.progress, "[%d/%d] %s / %s: %s (%d linhas, %.1fs)\n",
				done, len(units), row.CompanyName, row.UnitName, marker,
				row.RowCount, row.DurationSeconds)
			mu.Unlock()
			return nil
		})
	}
	// Workers only report; the group never carries an error.
	_ = g.Wait()
	summary.Rows = rows

	if opts.DryRun {
		fmt.Fprintf(b.progress, "dry run: %d units, nothing sent\n", len(units))
		return summary, nil
	}

	if err := b.dispatchSummary(ctx, summary); err != nil {
		zap.L().Error("batch summary dispatch failed", zap.Error(err))
	}

	fmt.Fprintf(b.progress, "done: %d ok, %d failed of %d units\n",
		summary.Succeeded, summary.Failed, summary.Units)
	return summary, nil
}

func (b *Batch) runUnit(ctx context.Context, unit model.Unit, opts BatchOptions) report.SummaryRow {
	row := report.SummaryRow{UnitName: unit.Name}

	company, err := b.repo.GetCompany(ctx, unit.CompanyID)
	if err == nil && company != nil {
		row.CompanyName = company.Name
	}

	job, err := b.repo.LatestImportedJob(ctx, unit.CompanyID)
	if err != nil {
		row.Status = StatusFailed
		row.Error = err.Error()
		return row
	}
	if job == nil || (opts.StartDate != nil && job.CreatedAt.Before(*opts.StartDate)) {
		row.Status = StatusNoJob
		return row
	}

	if opts.DryRun {
		row.Status = "would run"
		return row
	}

	outcome := b.orchestrator.RunRecallForCompanyOrUnit(ctx, job.ID,
		Target{CompanyID: unit.CompanyID, UnitID: unit.ID}, opts.EmailBody)

	row.Status = outcome.Status
	row.RowCount = outcome.RowCount
	row.DurationSeconds = outcome.DurationSeconds
	if outcome.FileName != "" {
		row.FileName = filepath.Base(outcome.FileName)
	}
	if outcome.Err != nil {
		row.Error = outcome.Err.Error()
	}
	return row
}

func (b *Batch) dispatchSummary(ctx context.Context, summary *BatchSummary) error {
	if len(b.cfg.OperatorContacts) == 0 {
		zap.L().Warn("no operator contacts configured, skipping batch summary mail")
		return nil
	}

	path := filepath.Join(b.outDir, report.ArtifactName("resumo_convocacao", b.now(), "xlsx"))
	if err := report.WriteSummaryWorkbook(path, summary.Rows); err != nil {
		return err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrap(err, "pipeline: read summary workbook")
	}

	msg := notify.Message{
		Recipients: b.cfg.OperatorContacts,
		Subject: fmt.Sprintf("Convocação em lote: %d ok, %d falhas",
			summary.Succeeded, summary.Failed),
		HTMLBody: fmt.Sprintf("<p>Unidades processadas: %d<br/>Sucesso: %d<br/>Falhas: %d</p>",
			summary.Units, summary.Succeeded, summary.Failed),
		RowCount: summary.Units,
		Attachments: []notify.Attachment{
			{FileName: filepath.Base(path), Content: content},
		},
	}
	return b.sender.Send(ctx, msg, b.cfg.MailMaxAttempts, b.cfg.MailRetryDelay)
}
