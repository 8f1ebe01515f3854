package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/salusworks/recall-cli/internal/lock"
	"github.com/salusworks/recall-cli/internal/model"
	"github.com/salusworks/recall-cli/internal/store"
	"github.com/salusworks/recall-cli/pkg/soc"
)

var (
	submitCompanyIDs   []int64
	submitWindowMonths int
	submitSelection    int
	submitConvoke      bool
	submitNeverDone    bool
	submitPeriodicNew  bool
	submitPending      bool
	submitPendingPCMSO bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit recall computations to the remote record system",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if len(submitCompanyIDs) == 0 {
			return eris.New("at least one --company-id is required")
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
		held, err := locks.Acquire(ctx, model.JobTypeRecallSubmit)
		if err != nil {
			if errors.Is(err, lock.ErrLockHeld) {
				return eris.Wrap(err, "another submit run is in progress")
			}
			return err
		}
		outcome := model.LockStateCompleted
		errMsg := ""
		defer func() {
			if err := locks.Release(ctx, held.ID, outcome, errMsg); err != nil {
				zap.L().Error("release submit lock failed", zap.Error(err))
			}
		}()

		failures := 0
		for _, companyID := range submitCompanyIDs {
			if err := submitForCompany(cmd, st, client, companyID); err != nil {
				failures++
				fmt.Fprintf(cmd.OutOrStdout(), "company %d: FAIL: %v\n", companyID, err)
			}
		}
		if failures > 0 {
			outcome = model.LockStateFailed
			errMsg = fmt.Sprintf("%d of %d companies failed", failures, len(submitCompanyIDs))
			return eris.Errorf("submit failed for %d of %d companies", failures, len(submitCompanyIDs))
		}
		return nil
	},
}

func submitForCompany(cmd *cobra.Command, st store.Store, client soc.Client, companyID int64) error {
	ctx := cmd.Context()

	company, err := st.GetCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if company == nil {
		return eris.Errorf("company %d not found", companyID)
	}
	if !company.RecallEnabled {
		return eris.Errorf("company %d (%s) has recall disabled", companyID, company.Name)
	}

	start := time.Now().UTC().Truncate(24 * time.Hour)
	req := soc.SubmitRequest{
		CompanyCode:            company.Code,
		PeriodStart:            start,
		PeriodEnd:              start.AddDate(0, submitWindowMonths, 0),
		ConvokeClinic:          submitConvoke,
		NeverPerformed:         submitNeverDone,
		PeriodicNeverPerformed: submitPeriodicNew,
		Pending:                submitPending,
		PendingPCMSO:           submitPendingPCMSO,
		SelectionMode:          soc.SelectionMode(submitSelection),
	}

	externalID, err := client.SubmitRecallJob(ctx, req)
	if err != nil {
		// No RecallJob row on remote failure: a job only exists once the
		// remote accepted it.
		return err
	}

	rawParams, err := json.Marshal(req)
	if err != nil {
		return eris.Wrap(err, "marshal submit params")
	}
	job := &model.RecallJob{
		PrincipalOrgCode:  company.PrincipalOrgCode,
		CompanyID:         company.ID,
		CompanyCode:       company.Code,
		ExternalRequestID: externalID,
		RawParams:         string(rawParams),
	}
	if err := st.CreateJob(ctx, job); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "company %d (%s): job %s, remote request %s\n",
		companyID, company.Name, job.ID, externalID)
	return nil
}

func init() {
	submitCmd.Flags().Int64SliceVar(&submitCompanyIDs, "company-id", nil, "company id (repeatable)")
	submitCmd.Flags().IntVar(&submitWindowMonths, "window-months", 12, "recall period window in months")
	submitCmd.Flags().IntVar(&submitSelection, "selection-mode", int(soc.SelectionActiveEmployees), "employee selection mode (1=active, 2=all)")
	submitCmd.Flags().BoolVar(&submitConvoke, "convoke-clinic", false, "include clinic convocation")
	submitCmd.Flags().BoolVar(&submitNeverDone, "never-performed", false, "include exams never performed")
	submitCmd.Flags().BoolVar(&submitPeriodicNew, "periodic-never-performed", false, "include periodic exams never performed")
	submitCmd.Flags().BoolVar(&submitPending, "pending", false, "include pending exams")
	submitCmd.Flags().BoolVar(&submitPendingPCMSO, "pending-pcmso", false, "include exams pending in the PCMSO plan")
	rootCmd.AddCommand(submitCmd)
}
