package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salusworks/recall-cli/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "recall.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedReference(t *testing.T, s *SQLiteStore) {
	t.Helper()
	ctx := context.Background()
	stmts := []string{
		`INSERT INTO companies (id, principal_org_code, code, name, recall_enabled) VALUES (42, '417', '90001', 'Acme', 1)`,
		`INSERT INTO units (id, company_id, code, name, recall_enabled, recall_emails) VALUES (7, 42, 'U01', 'Matriz', 1, '["rh@acme.example"]')`,
		`INSERT INTO employees (id, company_id, code, name) VALUES (100, 42, 'EMP01', 'Maria José')`,
		`INSERT INTO exams (id, principal_org_code, code, name) VALUES (5, '417', 'AUDIO', 'Audiometria')`,
	}
	for _, stmt := range stmts {
		_, err := s.db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
}

func sqliteJob() *model.RecallJob {
	return &model.RecallJob{
		PrincipalOrgCode:  "417",
		CompanyID:         42,
		CompanyCode:       "90001",
		ExternalRequestID: "req-1",
	}
}

func TestSQLite_JobRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	job := sqliteJob()
	require.NoError(t, s.CreateJob(ctx, job))
	require.NotEmpty(t, job.ID)

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.CompanyCode, got.CompanyCode)
	assert.False(t, got.ResultImported)

	jobs, err := s.ListJobs(ctx, JobFilter{CompanyID: 42})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	require.NoError(t, s.MarkResultImported(ctx, job.ID, "inserted"))
	got, err = s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.ResultImported)
	assert.Equal(t, "inserted", got.Note)

	latest, err := s.LatestImportedJob(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, job.ID, latest.ID)

	latest, err = s.LatestImportedJob(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSQLite_InsertResultsIsIdempotent(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	job := sqliteJob()
	require.NoError(t, s.CreateJob(ctx, job))

	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.RecallResultRow{
		{CompanyID: 42, UnitID: 7, EmployeeID: 100, ExamID: 5, PeriodicityMonths: 12, DueDate: &due},
	}

	n, err := s.InsertResults(ctx, job.ID, "inserted", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Re-import of the same rows must not duplicate.
	_, err = s.InsertResults(ctx, job.ID, "inserted", rows)
	require.NoError(t, err)

	stored, err := s.ListResults(ctx, ResultFilter{JobID: job.ID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].DueDate)
	assert.Equal(t, due, stored[0].DueDate.UTC())

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.ResultImported)
}

func TestSQLite_ReferenceLookups(t *testing.T) {
	s := newSQLiteStore(t)
	seedReference(t, s)
	ctx := context.Background()

	c, err := s.GetCompany(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "Acme", c.Name)
	assert.True(t, c.RecallEnabled)

	missing, err := s.GetCompany(ctx, 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	u, err := s.GetUnit(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, []string{"rh@acme.example"}, u.RecallEmails)

	units, err := s.ListRecallUnits(ctx, []int64{42})
	require.NoError(t, err)
	require.Len(t, units, 1)

	id, ok, err := s.LookupEmployeeID(ctx, 42, "EMP01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), id)

	_, ok, err = s.LookupEmployeeID(ctx, 42, "GHOST")
	require.NoError(t, err)
	assert.False(t, ok)

	id, ok, err = s.LookupExamID(ctx, "417", "AUDIO")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)

	names, err := s.EmployeeNames(ctx, []int64{100, 999})
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{100: "Maria José"}, names)
}

func TestSQLite_QuarantineRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	job := sqliteJob()
	require.NoError(t, s.CreateJob(ctx, job))

	require.NoError(t, s.AddQuarantined(ctx, []model.QuarantinedRow{
		{JobID: job.ID, Reason: "unknown employee code GHOST", RawRow: []byte(`{"codigoFuncionario":"GHOST"}`)},
	}))

	rows, err := s.ListQuarantined(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Reason, "GHOST")
	assert.Contains(t, string(rows[0].RawRow), "codigoFuncionario")
}

func TestSQLite_RunningLockIsExclusive(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := &model.TaskLockEntry{
		JobType: model.JobTypeRecallBatch, State: model.LockStateRunning,
		AcquiredAt: now, HeartbeatAt: now, LeaseSeconds: 900,
	}
	require.NoError(t, s.InsertLock(ctx, first))

	second := &model.TaskLockEntry{
		JobType: model.JobTypeRecallBatch, State: model.LockStateRunning,
		AcquiredAt: now, HeartbeatAt: now,
	}
	assert.ErrorIs(t, s.InsertLock(ctx, second), ErrDuplicateLock)

	// A different job type is unaffected.
	other := &model.TaskLockEntry{
		JobType: model.JobTypeRecallImport, State: model.LockStateRunning,
		AcquiredAt: now, HeartbeatAt: now,
	}
	require.NoError(t, s.InsertLock(ctx, other))

	active, err := s.ActiveLock(ctx, model.JobTypeRecallBatch)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, first.ID, active.ID)

	require.NoError(t, s.UpdateLockState(ctx, first.ID, model.LockStateCompleted, ""))
	active, err = s.ActiveLock(ctx, model.JobTypeRecallBatch)
	require.NoError(t, err)
	assert.Nil(t, active)

	// Released means a new lock can be taken.
	require.NoError(t, s.InsertLock(ctx, &model.TaskLockEntry{
		JobType: model.JobTypeRecallBatch, State: model.LockStateRunning,
		AcquiredAt: now, HeartbeatAt: now,
	}))

	n, err := s.CancelRunningLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLite_MailLog(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	entry := &model.MailLogEntry{
		Recipients:  []string{"rh@acme.example"},
		Subject:     "Convocação de exames",
		Attachments: []string{"matriz_1.zip"},
		Sent:        false,
		ErrorClass:  "send_failed",
		Error:       "relay down",
		RowCount:    17,
		Attempts:    3,
	}
	require.NoError(t, s.LogMail(ctx, entry))
	assert.NotEmpty(t, entry.ID)

	var recipients string
	var sent bool
	err := s.db.QueryRowContext(ctx,
		`SELECT recipients, sent FROM mail_log WHERE id = ?`, entry.ID,
	).Scan(&recipients, &sent)
	require.NoError(t, err)
	assert.Contains(t, recipients, "rh@acme.example")
	assert.False(t, sent)
}
