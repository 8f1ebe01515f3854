package pipeline

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salusworks/recall-cli/internal/model"
)

func newBatchRepo() *fakeRepo {
	repo := newPipelineRepo()
	repo.units[8] = &model.Unit{ID: 8, CompanyID: 42, Name: "Filial", RecallEnabled: true,
		RecallEmails: []string{"filial@acme.example"}}
	repo.recallUnits = []model.Unit{*repo.units[7], *repo.units[8]}
	repo.latestJobs[42] = &model.RecallJob{
		ID: "job-1", CompanyID: 42, CompanyCode: "90001",
		CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), ResultImported: true,
	}
	return repo
}

func newBatch(t *testing.T, repo *fakeRepo, sender *fakeSender, cfg Config) (*Batch, *bytes.Buffer) {
	t.Helper()
	builder := &fakeBuilder{dir: t.TempDir()}
	o := NewOrchestrator(repo, builder, sender, cfg)
	var progress bytes.Buffer
	return NewBatch(repo, o, sender, cfg, t.TempDir(), &progress), &progress
}

func TestBatchRun_AllUnits(t *testing.T) {
	repo := newBatchRepo()
	sender := &fakeSender{}
	b, progress := newBatch(t, repo, sender, Config{
		OperatorContacts: []string{"ops@salus.example"},
	})

	summary, err := b.Run(context.Background(), BatchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Units)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Zero(t, summary.Failed)
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, "Matriz", summary.Rows[0].UnitName)
	assert.Equal(t, "Acme", summary.Rows[0].CompanyName)

	out := progress.String()
	assert.Contains(t, out, "[1/2]")
	assert.Contains(t, out, "[2/2]")
	assert.Contains(t, out, "done: 2 ok, 0 failed of 2 units")

	// Two unit reports plus the operator summary.
	require.Len(t, sender.messages, 3)
	last := sender.messages[2]
	assert.Equal(t, []string{"ops@salus.example"}, last.Recipients)
	assert.Contains(t, last.Subject, "2 ok")
	require.Len(t, last.Attachments, 1)
	assert.Contains(t, last.Attachments[0].FileName, "resumo_convocacao_")
	assert.NotContains(t, last.Attachments[0].FileName, string(os.PathSeparator))
}

func TestBatchRun_NoImportedJobSkipsUnit(t *testing.T) {
	repo := newBatchRepo()
	delete(repo.latestJobs, 42)
	sender := &fakeSender{}
	b, _ := newBatch(t, repo, sender, Config{})

	summary, err := b.Run(context.Background(), BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	for _, row := range summary.Rows {
		assert.Equal(t, StatusNoJob, row.Status)
	}
}

func TestBatchRun_StartDateFiltersOldJobs(t *testing.T) {
	repo := newBatchRepo()
	sender := &fakeSender{}
	b, _ := newBatch(t, repo, sender, Config{})

	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	summary, err := b.Run(context.Background(), BatchOptions{StartDate: &cutoff})
	require.NoError(t, err)
	assert.Zero(t, summary.Succeeded)
	assert.Equal(t, StatusNoJob, summary.Rows[0].Status)
}

func TestBatchRun_PerUnitFailureDoesNotAbort(t *testing.T) {
	repo := newBatchRepo()
	// The orchestrator sees no recipients for unit 8 only.
	repo.units[8].RecallEmails = nil
	repo.recallUnits = []model.Unit{*repo.units[7], *repo.units[8]}
	sender := &fakeSender{}
	b, progress := newBatch(t, repo, sender, Config{})

	summary, err := b.Run(context.Background(), BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, StatusNoRecipients, summary.Rows[1].Status)
	assert.Contains(t, progress.String(), "FAIL")
}

func TestBatchRun_NoUnits(t *testing.T) {
	repo := newBatchRepo()
	repo.recallUnits = nil
	sender := &fakeSender{}
	b, progress := newBatch(t, repo, sender, Config{})

	summary, err := b.Run(context.Background(), BatchOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Units)
	assert.Empty(t, sender.messages)
	assert.Contains(t, progress.String(), "no recall-enabled units")
}

func TestBatchRun_DryRun(t *testing.T) {
	repo := newBatchRepo()
	sender := &fakeSender{}
	b, progress := newBatch(t, repo, sender, Config{
		OperatorContacts: []string{"ops@salus.example"},
	})

	summary, err := b.Run(context.Background(), BatchOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Units)
	assert.Empty(t, sender.messages)
	assert.Contains(t, progress.String(), "dry run")
	for _, row := range summary.Rows {
		assert.Equal(t, "would run", row.Status)
	}
}

func TestBatchRun_ConcurrencyPreservesRowOrder(t *testing.T) {
	repo := newBatchRepo()
	sender := &fakeSender{}
	b, _ := newBatch(t, repo, sender, Config{})

	summary, err := b.Run(context.Background(), BatchOptions{Concurrency: 4})
	require.NoError(t, err)
	require.Len(t, summary.Rows, 2)
	assert.Equal(t, "Matriz", summary.Rows[0].UnitName)
	assert.Equal(t, "Filial", summary.Rows[1].UnitName)
}
