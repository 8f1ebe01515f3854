package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/salusworks/recall-cli/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect stored recall jobs",
}

var (
	jobsListCompanyID int64
	jobsListPending   bool
	jobsListLimit     int
)

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recall jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.JobFilter{CompanyID: jobsListCompanyID, Limit: jobsListLimit}
		if jobsListPending {
			pending := false
			filter.ResultImported = &pending
		}
		jobs, err := st.ListJobs(ctx, filter)
		if err != nil {
			return err
		}

		if len(jobs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no jobs")
			return nil
		}
		for _, j := range jobs {
			flags := ""
			if j.ResultImported {
				flags += " imported"
			}
			if j.ReportSent {
				flags += " sent"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  company=%d  %s %s%s\n",
				j.ID, j.CompanyID, j.CreatedAt.Format(time.RFC3339), j.ExternalRequestID, flags)
		}
		return nil
	},
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job with its quarantined rows",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job, err := st.GetJob(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "job %s", args[0])
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "id:                %s\n", job.ID)
		fmt.Fprintf(out, "company:           %d (%s)\n", job.CompanyID, job.CompanyCode)
		fmt.Fprintf(out, "principal org:     %s\n", job.PrincipalOrgCode)
		fmt.Fprintf(out, "external request:  %s\n", job.ExternalRequestID)
		fmt.Fprintf(out, "created:           %s\n", job.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "result imported:   %t\n", job.ResultImported)
		fmt.Fprintf(out, "report sent:       %t\n", job.ReportSent)
		if job.Note != "" {
			fmt.Fprintf(out, "note:              %s\n", job.Note)
		}

		quarantined, err := st.ListQuarantined(ctx, job.ID)
		if err != nil {
			return err
		}
		if len(quarantined) > 0 {
			fmt.Fprintf(out, "quarantined rows:  %d\n", len(quarantined))
			for _, q := range quarantined {
				fmt.Fprintf(out, "  - %s: %s\n", q.Reason, string(q.RawRow))
			}
		}
		return nil
	},
}

func init() {
	jobsListCmd.Flags().Int64Var(&jobsListCompanyID, "company-id", 0, "filter by company")
	jobsListCmd.Flags().BoolVar(&jobsListPending, "pending", false, "only jobs without imported results")
	jobsListCmd.Flags().IntVar(&jobsListLimit, "limit", 50, "maximum rows")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	rootCmd.AddCommand(jobsCmd)
}
