package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salusworks/recall-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })
	return &PostgresStore{pool: mock}, mock
}

func TestCreateJob_AssignsIDAndTimestamp(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO recall_jobs").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	job := &model.RecallJob{
		PrincipalOrgCode:  "417",
		CompanyID:         42,
		CompanyCode:       "90001",
		ExternalRequestID: "req-1",
	}
	require.NoError(t, s.CreateJob(context.Background(), job))
	assert.NotEmpty(t, job.ID)
	assert.False(t, job.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJob(t *testing.T) {
	s, mock := newMockStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := `{"companyCode":"90001"}`
	mock.ExpectQuery("SELECT .+ FROM recall_jobs WHERE id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "principal_org_code", "company_id", "company_code", "external_request_id",
			"created_at", "result_imported", "report_sent", "raw_params", "note",
		}).AddRow("job-1", "417", int64(42), "90001", "req-1", created, true, false, &raw, (*string)(nil)))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, int64(42), job.CompanyID)
	assert.True(t, job.ResultImported)
	assert.Equal(t, raw, job.RawParams)
	assert.Empty(t, job.Note)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestImportedJob_NoneReturnsNil(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM recall_jobs").
		WithArgs(int64(42)).
		WillReturnError(pgx.ErrNoRows)

	job, err := s.LatestImportedJob(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListJobs_AppliesFilters(t *testing.T) {
	s, mock := newMockStore(t)

	imported := true
	mock.ExpectQuery("SELECT .+ FROM recall_jobs WHERE true AND company_id = .+ AND result_imported = ").
		WithArgs(int64(42), true, 25).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "principal_org_code", "company_id", "company_code", "external_request_id",
			"created_at", "result_imported", "report_sent", "raw_params", "note",
		}))

	jobs, err := s.ListJobs(context.Background(), JobFilter{
		CompanyID:      42,
		ResultImported: &imported,
		Limit:          25,
	})
	require.NoError(t, err)
	assert.Empty(t, jobs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertResults_SingleTransaction(t *testing.T) {
	s, mock := newMockStore(t)

	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []model.RecallResultRow{
		{CompanyID: 42, UnitID: 7, EmployeeID: 100, ExamID: 5, PeriodicityMonths: 12, DueDate: &due},
		{CompanyID: 42, UnitID: 7, EmployeeID: 101, ExamID: 5, PeriodicityMonths: 12, DueDate: &due},
	}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_recall_job_results"}, resultColumns).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectExec("UPDATE recall_jobs SET result_imported").
		WithArgs("inserted", "job-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	n, err := s.InsertResults(context.Background(), "job-1", "inserted", rows)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertResults_RollbackOnFailure(t *testing.T) {
	s, mock := newMockStore(t)

	rows := []model.RecallResultRow{{CompanyID: 42, UnitID: 7, EmployeeID: 100, ExamID: 5}}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := s.InsertResults(context.Background(), "job-1", "inserted", rows)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupEmployeeID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT id FROM employees").
		WithArgs(int64(42), "EMP01").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(100)))

	id, ok, err := s.LookupEmployeeID(context.Background(), 42, "EMP01")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), id)

	mock.ExpectQuery("SELECT id FROM employees").
		WithArgs(int64(42), "GHOST").
		WillReturnError(pgx.ErrNoRows)

	_, ok, err = s.LookupEmployeeID(context.Background(), 42, "GHOST")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCompany_NotFoundReturnsNil(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM companies").
		WithArgs(int64(99)).
		WillReturnError(pgx.ErrNoRows)

	c, err := s.GetCompany(context.Background(), 99)
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnit_DecodesEmailList(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM units WHERE id").
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "company_id", "code", "name", "recall_enabled", "recall_emails",
		}).AddRow(int64(7), int64(42), "U01", "Matriz", true, []byte(`["rh@acme.example","sst@acme.example"]`)))

	u, err := s.GetUnit(context.Background(), 7)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, []string{"rh@acme.example", "sst@acme.example"}, u.RecallEmails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLock_UniqueViolationIsDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO task_locks").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "uq_task_locks_running"})

	err := s.InsertLock(context.Background(), &model.TaskLockEntry{
		JobType:     model.JobTypeRecallBatch,
		State:       model.LockStateRunning,
		AcquiredAt:  time.Now().UTC(),
		HeartbeatAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, ErrDuplicateLock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveLock_NoneReturnsNil(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .+ FROM task_locks").
		WithArgs(string(model.JobTypeRecallBatch)).
		WillReturnError(pgx.ErrNoRows)

	entry, err := s.ActiveLock(context.Background(), model.JobTypeRecallBatch)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateLockState_MissingLock(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE task_locks SET state").
		WithArgs(string(model.LockStateCompleted), "", "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateLockState(context.Background(), "ghost", model.LockStateCompleted, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelRunningLocks(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec("UPDATE task_locks SET state = 'cancelled'").
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := s.CancelRunningLocks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
