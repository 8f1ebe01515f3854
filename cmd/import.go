package main

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/salusworks/recall-cli/internal/importer"
	"github.com/salusworks/recall-cli/internal/lock"
	"github.com/salusworks/recall-cli/internal/model"
	"github.com/salusworks/recall-cli/internal/store"
)

var (
	importJobID      string
	importAllPending bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import remote results for submitted recall jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if importJobID == "" && !importAllPending {
			return eris.New("either --job-id or --all-pending is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client, err := initSOCClient()
		if err != nil {
			return err
		}

		locks := initLocks(st)
		held, err := locks.Acquire(ctx, model.JobTypeRecallImport)
		if err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				return eris.Wrap(err, "another import run is in progress")
			}
			return err
		}
		outcome := model.LockStateCompleted
		errMsg := ""
		defer func() {
			if err := locks.Release(ctx, held.ID, outcome, errMsg); err != nil {
				zap.L().Error("release import lock failed", zap.Error(err))
			}
		}()

		var jobs []model.RecallJob
		if importJobID != "" {
			job, err := st.GetJob(ctx, importJobID)
			if err != nil {
				return err
			}
			if job.ResultImported {
				fmt.Fprintf(cmd.OutOrStdout(), "job %s already imported (note: %s)\n", job.ID, job.Note)
				return nil
			}
			jobs = []model.RecallJob{*job}
		} else {
			pending := false
			jobs, err = st.ListJobs(ctx, store.JobFilter{ResultImported: &pending})
			if err != nil {
				return err
			}
		}

		im := importer.New(client, st)
		failures := 0
		for i := range jobs {
			out, err := im.ImportResults(ctx, &jobs[i])
			if err != nil {
				failures++
				fmt.Fprintf(cmd.OutOrStdout(), "job %s: FAIL: %v\n", jobs[i].ID, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s: %s (%d inserted, %d dropped, %d quarantined)\n",
				jobs[i].ID, out.Note, out.Inserted, out.Dropped, len(out.Quarantined))
		}
		if failures > 0 {
			outcome = model.LockStateFailed
			errMsg = fmt.Sprintf("%d of %d jobs failed", failures, len(jobs))
			return eris.Errorf("import failed for %d of %d jobs", failures, len(jobs))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importJobID, "job-id", "", "import a single job")
	importCmd.Flags().BoolVar(&importAllPending, "all-pending", false, "import every job without results")
	rootCmd.AddCommand(importCmd)
}
