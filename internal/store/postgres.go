package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/salusworks/recall-cli/internal/db"
	"github.com/salusworks/recall-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS recall_jobs (
	id                  TEXT PRIMARY KEY,
	principal_org_code  TEXT NOT NULL,
	company_id          BIGINT NOT NULL,
	company_code        TEXT NOT NULL,
	external_request_id TEXT NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	result_imported     BOOLEAN NOT NULL DEFAULT false,
	report_sent         BOOLEAN NOT NULL DEFAULT false,
	raw_params          TEXT,
	note                TEXT
);

CREATE INDEX IF NOT EXISTS idx_recall_jobs_company ON recall_jobs(company_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_recall_jobs_imported ON recall_jobs(result_imported);

CREATE TABLE IF NOT EXISTS recall_job_results (
	job_id             TEXT NOT NULL REFERENCES recall_jobs(id) ON DELETE CASCADE,
	company_id         BIGINT NOT NULL,
	unit_id            BIGINT NOT NULL,
	employee_id        BIGINT NOT NULL,
	exam_id            BIGINT NOT NULL,
	periodicity_months INTEGER NOT NULL DEFAULT 0,
	admission_date     DATE,
	last_request_date  DATE,
	result_date        DATE,
	due_date           DATE,
	UNIQUE (job_id, employee_id, exam_id)
);

CREATE INDEX IF NOT EXISTS idx_recall_job_results_job ON recall_job_results(job_id, company_id, unit_id);

CREATE TABLE IF NOT EXISTS import_quarantine (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES recall_jobs(id) ON DELETE CASCADE,
	reason     TEXT NOT NULL,
	raw_row    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_import_quarantine_job ON import_quarantine(job_id);

CREATE TABLE IF NOT EXISTS mail_log (
	id          TEXT PRIMARY KEY,
	recipients  JSONB NOT NULL,
	subject     TEXT NOT NULL,
	attachments JSONB,
	sent        BOOLEAN NOT NULL,
	error_class TEXT,
	error       TEXT,
	row_count   INTEGER NOT NULL DEFAULT 0,
	attempts    INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS task_locks (
	id            TEXT PRIMARY KEY,
	job_type      TEXT NOT NULL,
	state         TEXT NOT NULL DEFAULT 'running',
	error         TEXT,
	acquired_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	heartbeat_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	lease_seconds INTEGER NOT NULL DEFAULT 0,
	released_at   TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_task_locks_running
	ON task_locks(job_type) WHERE state = 'running';
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Recall jobs

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.RecallJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO recall_jobs
		 (id, principal_org_code, company_id, company_code, external_request_id, created_at, result_imported, report_sent, raw_params, note)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, job.PrincipalOrgCode, job.CompanyID, job.CompanyCode,
		job.ExternalRequestID, job.CreatedAt, job.ResultImported, job.ReportSent,
		job.RawParams, job.Note,
	)
	return eris.Wrap(err, "postgres: insert recall job")
}

const jobColumns = `id, principal_org_code, company_id, company_code, external_request_id, created_at, result_imported, report_sent, raw_params, note`

func scanJob(row pgx.Row) (*model.RecallJob, error) {
	var j model.RecallJob
	var rawParams, note *string
	err := row.Scan(&j.ID, &j.PrincipalOrgCode, &j.CompanyID, &j.CompanyCode,
		&j.ExternalRequestID, &j.CreatedAt, &j.ResultImported, &j.ReportSent,
		&rawParams, &note)
	if err != nil {
		return nil, err
	}
	if rawParams != nil {
		j.RawParams = *rawParams
	}
	if note != nil {
		j.Note = *note
	}
	return &j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*model.RecallJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM recall_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", id)
	}
	return j, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.RecallJob, error) {
	query := `SELECT ` + jobColumns + ` FROM recall_jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.CompanyID != 0 {
		query += fmt.Sprintf(` AND company_id = $%d`, argIdx)
		args = append(args, filter.CompanyID)
		argIdx++
	}
	if filter.ResultImported != nil {
		query += fmt.Sprintf(` AND result_imported = $%d`, argIdx)
		args = append(args, *filter.ResultImported)
		argIdx++
	}
	if filter.CreatedAfter != nil {
		query += fmt.Sprintf(` AND created_at >= $%d`, argIdx)
		args = append(args, *filter.CreatedAfter)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.RecallJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func (s *PostgresStore) LatestImportedJob(ctx context.Context, companyID int64) (*model.RecallJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM recall_jobs
		 WHERE company_id = $1 AND result_imported = true
		 ORDER BY created_at DESC LIMIT 1`,
		companyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: latest imported job for company %d", companyID)
	}
	return j, nil
}

func (s *PostgresStore) MarkResultImported(ctx context.Context, jobID, note string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recall_jobs SET result_imported = true, note = $1 WHERE id = $2`,
		note, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark result imported %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) MarkReportSent(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE recall_jobs SET report_sent = true WHERE id = $1`, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark report sent %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

// Result rows

var resultColumns = []string{
	"job_id", "company_id", "unit_id", "employee_id", "exam_id",
	"periodicity_months", "admission_date", "last_request_date", "result_date", "due_date",
}

// InsertResults upserts the rows keyed by (job_id, employee_id, exam_id) and
// flips result_imported in the same transaction, so a re-run can neither
// duplicate rows nor leave the flag behind the data.
func (s *PostgresStore) InsertResults(ctx context.Context, jobID, note string, rows []model.RecallResultRow) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert results: begin tx")
	}
	defer tx.Rollback(ctx)

	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		values = append(values, []any{
			jobID, r.CompanyID, r.UnitID, r.EmployeeID, r.ExamID,
			r.PeriodicityMonths, r.AdmissionDate, r.LastRequestDate, r.ResultDate, r.DueDate,
		})
	}

	n, err := db.BulkUpsert(ctx, tx, db.UpsertSpec{
		Table:        "recall_job_results",
		Columns:      resultColumns,
		ConflictKeys: []string{"job_id", "employee_id", "exam_id"},
	}, values)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx,
		`UPDATE recall_jobs SET result_imported = true, note = $1 WHERE id = $2`,
		note, jobID,
	); err != nil {
		return 0, eris.Wrapf(err, "postgres: insert results: mark imported %s", jobID)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: insert results: commit tx")
	}
	return n, nil
}

func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.RecallResultRow, error) {
	query := `SELECT job_id, company_id, unit_id, employee_id, exam_id,
	          periodicity_months, admission_date, last_request_date, result_date, due_date
	          FROM recall_job_results WHERE job_id = $1`
	args := []any{filter.JobID}
	argIdx := 2

	if filter.CompanyID != 0 {
		query += fmt.Sprintf(` AND company_id = $%d`, argIdx)
		args = append(args, filter.CompanyID)
		argIdx++
	}
	if filter.UnitID != 0 {
		query += fmt.Sprintf(` AND unit_id = $%d`, argIdx)
		args = append(args, filter.UnitID)
		argIdx++
	}
	query += ` ORDER BY employee_id, exam_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []model.RecallResultRow
	for rows.Next() {
		var r model.RecallResultRow
		if err := rows.Scan(&r.JobID, &r.CompanyID, &r.UnitID, &r.EmployeeID, &r.ExamID,
			&r.PeriodicityMonths, &r.AdmissionDate, &r.LastRequestDate, &r.ResultDate, &r.DueDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan result row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list results iterate")
}

// Import quarantine

func (s *PostgresStore) AddQuarantined(ctx context.Context, rows []model.QuarantinedRow) error {
	for _, q := range rows {
		id := q.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := q.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO import_quarantine (id, job_id, reason, raw_row, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, q.JobID, q.Reason, q.RawRow, createdAt,
		); err != nil {
			return eris.Wrapf(err, "postgres: quarantine row for job %s", q.JobID)
		}
	}
	return nil
}

func (s *PostgresStore) ListQuarantined(ctx context.Context, jobID string) ([]model.QuarantinedRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, job_id, reason, raw_row, created_at FROM import_quarantine
		 WHERE job_id = $1 ORDER BY created_at`,
		jobID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quarantined")
	}
	defer rows.Close()

	var out []model.QuarantinedRow
	for rows.Next() {
		var q model.QuarantinedRow
		if err := rows.Scan(&q.ID, &q.JobID, &q.Reason, &q.RawRow, &q.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quarantined row")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list quarantined iterate")
}

// Reference lookups

func (s *PostgresStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := s.pool.QueryRow(ctx,
		`SELECT id, principal_org_code, code, name, recall_enabled FROM companies WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.PrincipalOrgCode, &c.Code, &c.Name, &c.RecallEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get company %d", id)
	}
	return &c, nil
}

func (s *PostgresStore) GetUnit(ctx context.Context, id int64) (*model.Unit, error) {
	var u model.Unit
	var emailsJSON []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, company_id, code, name, recall_enabled, recall_emails FROM units WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.CompanyID, &u.Code, &u.Name, &u.RecallEnabled, &emailsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get unit %d", id)
	}
	if emailsJSON != nil {
		if err := json.Unmarshal(emailsJSON, &u.RecallEmails); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal unit emails")
		}
	}
	return &u, nil
}

func (s *PostgresStore) ListRecallUnits(ctx context.Context, companyIDs []int64) ([]model.Unit, error) {
	query := `SELECT id, company_id, code, name, recall_enabled, recall_emails
	          FROM units WHERE recall_enabled = true`
	args := []any{}
	if len(companyIDs) > 0 {
		query += ` AND company_id = ANY($1)`
		args = append(args, companyIDs)
	}
	query += ` ORDER BY company_id, id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recall units")
	}
	defer rows.Close()

	var out []model.Unit
	for rows.Next() {
		var u model.Unit
		var emailsJSON []byte
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Code, &u.Name, &u.RecallEnabled, &emailsJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan unit")
		}
		if emailsJSON != nil {
			if err := json.Unmarshal(emailsJSON, &u.RecallEmails); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal unit emails")
			}
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list recall units iterate")
}

func (s *PostgresStore) LookupEmployeeID(ctx context.Context, companyID int64, code string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM employees WHERE company_id = $1 AND code = $2`,
		companyID, code,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, eris.Wrapf(err, "postgres: lookup employee %s in company %d", code, companyID)
	}
	return id, true, nil
}

func (s *PostgresStore) LookupExamID(ctx context.Context, principalOrgCode, code string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM exams WHERE principal_org_code = $1 AND code = $2`,
		principalOrgCode, code,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, eris.Wrapf(err, "postgres: lookup exam %s for org %s", code, principalOrgCode)
	}
	return id, true, nil
}

func (s *PostgresStore) LookupUnitID(ctx context.Context, companyID int64, code string) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM units WHERE company_id = $1 AND code = $2`,
		companyID, code,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, eris.Wrapf(err, "postgres: lookup unit %s in company %d", code, companyID)
	}
	return id, true, nil
}

func (s *PostgresStore) nameMap(ctx context.Context, query string, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, query, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		out[id] = name
	}
	return out, rows.Err()
}

func (s *PostgresStore) EmployeeNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	m, err := s.nameMap(ctx, `SELECT id, name FROM employees WHERE id = ANY($1)`, ids)
	return m, eris.Wrap(err, "postgres: employee names")
}

func (s *PostgresStore) ExamNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	m, err := s.nameMap(ctx, `SELECT id, name FROM exams WHERE id = ANY($1)`, ids)
	return m, eris.Wrap(err, "postgres: exam names")
}

// Notification audit

func (s *PostgresStore) LogMail(ctx context.Context, entry *model.MailLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	recipientsJSON, err := json.Marshal(entry.Recipients)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal mail recipients")
	}
	var attachmentsJSON []byte
	if entry.Attachments != nil {
		attachmentsJSON, err = json.Marshal(entry.Attachments)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal mail attachments")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO mail_log (id, recipients, subject, attachments, sent, error_class, error, row_count, attempts, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID, recipientsJSON, entry.Subject, attachmentsJSON, entry.Sent,
		entry.ErrorClass, entry.Error, entry.RowCount, entry.Attempts, entry.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert mail log")
}

// Task locks

func (s *PostgresStore) InsertLock(ctx context.Context, entry *model.TaskLockEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_locks (id, job_type, state, error, acquired_at, heartbeat_at, lease_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, string(entry.JobType), string(entry.State), entry.Error,
		entry.AcquiredAt, entry.HeartbeatAt, entry.LeaseSeconds,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateLock
		}
		return eris.Wrapf(err, "postgres: insert lock for %s", entry.JobType)
	}
	return nil
}

func (s *PostgresStore) ActiveLock(ctx context.Context, jobType model.JobType) (*model.TaskLockEntry, error) {
	var e model.TaskLockEntry
	var errMsg *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, job_type, state, error, acquired_at, heartbeat_at, lease_seconds, released_at
		 FROM task_locks WHERE job_type = $1 AND state = 'running'`,
		string(jobType),
	).Scan(&e.ID, &e.JobType, &e.State, &errMsg, &e.AcquiredAt, &e.HeartbeatAt, &e.LeaseSeconds, &e.ReleasedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: active lock for %s", jobType)
	}
	if errMsg != nil {
		e.Error = *errMsg
	}
	return &e, nil
}

func (s *PostgresStore) UpdateLockState(ctx context.Context, id string, state model.LockState, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE task_locks SET state = $1, error = $2, released_at = now() WHERE id = $3`,
		string(state), errMsg, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lock %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("lock not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) TouchLock(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE task_locks SET heartbeat_at = $1 WHERE id = $2 AND state = 'running'`,
		at, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch lock %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("running lock not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CancelRunningLocks(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE task_locks SET state = 'cancelled', released_at = now() WHERE state = 'running'`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: cancel running locks")
	}
	return int(tag.RowsAffected()), nil
}
