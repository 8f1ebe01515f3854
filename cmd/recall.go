package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/salusworks/recall-cli/internal/lock"
	"github.com/salusworks/recall-cli/internal/model"
	"github.com/salusworks/recall-cli/internal/pipeline"
)

// flagDateLayout is the day-first format accepted by --start-date.
const flagDateLayout = "02-01-2006"

var recallCmd = &cobra.Command{
	Use:   "recall",
	Short: "Run the recall report pipeline",
}

var (
	runJobID     string
	runCompanyID int64
	runUnitID    int64
	runDeck      bool
	runEmailBody string
)

var recallRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline for one company or unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if runJobID == "" || runCompanyID == 0 {
			return eris.New("--job-id and --company-id are required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		o := initOrchestrator(st, runDeck)
		outcome := o.RunRecallForCompanyOrUnit(ctx, runJobID,
			pipeline.Target{CompanyID: runCompanyID, UnitID: runUnitID}, runEmailBody)

		fmt.Fprintf(cmd.OutOrStdout(), "%s (%d rows, %.1fs)\n",
			outcome.Status, outcome.RowCount, outcome.DurationSeconds)
		if outcome.Err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "error: %v\n", outcome.Err)
		}
		return nil
	},
}

var (
	batchCompanyIDs []int64
	batchStartDate  string
	batchDeck       bool
	batchDryRun     bool
)

var recallBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the pipeline for every recall-enabled unit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		opts := pipeline.BatchOptions{
			CompanyIDs:  batchCompanyIDs,
			EmailBody:   cfg.Batch.EmailBody,
			Concurrency: cfg.Batch.Concurrency,
			DryRun:      batchDryRun,
		}
		if batchStartDate != "" {
			start, err := time.Parse(flagDateLayout, batchStartDate)
			if err != nil {
				return eris.Wrapf(err, "parse --start-date %q (expected dd-mm-yyyy)", batchStartDate)
			}
			opts.StartDate = &start
		}

		locks := initLocks(st)
		held, err := locks.Acquire(ctx, model.JobTypeRecallBatch)
		if err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				return eris.Wrap(err, "another batch run is in progress")
			}
			return err
		}
		lockOutcome := model.LockStateCompleted
		defer func() {
			if err := locks.Release(ctx, held.ID, lockOutcome, ""); err != nil {
				zap.L().Error("release batch lock failed", zap.Error(err))
			}
		}()

		o := initOrchestrator(st, batchDeck)
		b := pipeline.NewBatch(st, o, initDispatcher(st), pipelineConfig(batchDeck),
			cfg.Report.OutDir, cmd.OutOrStdout())

		// Per-unit failures are reported in the summary, never as a
		// process failure: the exit code stays zero.
		if _, err := b.Run(ctx, opts); err != nil {
			lockOutcome = model.LockStateFailed
			return err
		}
		return nil
	},
}

func init() {
	recallRunCmd.Flags().StringVar(&runJobID, "job-id", "", "imported job to report on")
	recallRunCmd.Flags().Int64Var(&runCompanyID, "company-id", 0, "company id")
	recallRunCmd.Flags().Int64Var(&runUnitID, "unit-id", 0, "restrict to one unit")
	recallRunCmd.Flags().BoolVar(&runDeck, "deck", false, "render a slide deck when the row count reaches the trigger")
	recallRunCmd.Flags().StringVar(&runEmailBody, "email-body", "", "HTML body for the report mail")

	recallBatchCmd.Flags().Int64SliceVar(&batchCompanyIDs, "company-id", nil, "restrict to company (repeatable)")
	recallBatchCmd.Flags().StringVar(&batchStartDate, "start-date", "", "skip jobs imported before this date (dd-mm-yyyy)")
	recallBatchCmd.Flags().BoolVar(&batchDeck, "deck", false, "render slide decks when row counts reach the trigger")
	recallBatchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "walk the units without building or mailing")

	recallCmd.AddCommand(recallRunCmd)
	recallCmd.AddCommand(recallBatchCmd)
	rootCmd.AddCommand(recallCmd)
}
