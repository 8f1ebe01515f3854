package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/salusworks/recall-cli/internal/model"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and recover task locks",
}

var locksStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running lock for each job type",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		jobTypes := []model.JobType{
			model.JobTypeRecallSubmit,
			model.JobTypeRecallImport,
			model.JobTypeRecallBatch,
		}
		now := time.Now().UTC()
		for _, jt := range jobTypes {
			entry, err := st.ActiveLock(ctx, jt)
			if err != nil {
				return err
			}
			if entry == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%-15s free\n", jt)
				continue
			}
			state := "running"
			if entry.LeaseExpired(now) {
				state = "running (lease expired)"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-15s %s since %s, heartbeat %s, id %s\n",
				jt, state,
				entry.AcquiredAt.Format(time.RFC3339),
				entry.HeartbeatAt.Format(time.RFC3339),
				entry.ID)
		}
		return nil
	},
}

var locksRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Force-cancel every running lock",
	Long:  "Manual crash recovery. Cancels all running lock entries regardless of lease state; use after confirming no pipeline process is alive.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := initLocks(st).RecoverAll(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d running lock(s)\n", n)
		return nil
	},
}

func init() {
	locksCmd.AddCommand(locksStatusCmd)
	locksCmd.AddCommand(locksRecoverCmd)
	rootCmd.AddCommand(locksCmd)
}
