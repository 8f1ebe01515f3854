package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/salusworks/recall-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for
// local and development runs; production uses postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS recall_jobs (
	id                  TEXT PRIMARY KEY,
	principal_org_code  TEXT NOT NULL,
	company_id          INTEGER NOT NULL,
	company_code        TEXT NOT NULL,
	external_request_id TEXT NOT NULL,
	created_at          DATETIME NOT NULL,
	result_imported     INTEGER NOT NULL DEFAULT 0,
	report_sent         INTEGER NOT NULL DEFAULT 0,
	raw_params          TEXT,
	note                TEXT
);

CREATE TABLE IF NOT EXISTS recall_job_results (
	job_id             TEXT NOT NULL REFERENCES recall_jobs(id) ON DELETE CASCADE,
	company_id         INTEGER NOT NULL,
	unit_id            INTEGER NOT NULL,
	employee_id        INTEGER NOT NULL,
	exam_id            INTEGER NOT NULL,
	periodicity_months INTEGER NOT NULL DEFAULT 0,
	admission_date     DATETIME,
	last_request_date  DATETIME,
	result_date        DATETIME,
	due_date           DATETIME,
	UNIQUE (job_id, employee_id, exam_id)
);

CREATE TABLE IF NOT EXISTS import_quarantine (
	id         TEXT PRIMARY KEY,
	job_id     TEXT NOT NULL REFERENCES recall_jobs(id) ON DELETE CASCADE,
	reason     TEXT NOT NULL,
	raw_row    TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS mail_log (
	id          TEXT PRIMARY KEY,
	recipients  TEXT NOT NULL,
	subject     TEXT NOT NULL,
	attachments TEXT,
	sent        INTEGER NOT NULL,
	error_class TEXT,
	error       TEXT,
	row_count   INTEGER NOT NULL DEFAULT 0,
	attempts    INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS task_locks (
	id            TEXT PRIMARY KEY,
	job_type      TEXT NOT NULL,
	state         TEXT NOT NULL DEFAULT 'running',
	error         TEXT,
	acquired_at   DATETIME NOT NULL,
	heartbeat_at  DATETIME NOT NULL,
	lease_seconds INTEGER NOT NULL DEFAULT 0,
	released_at   DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_task_locks_running
	ON task_locks(job_type) WHERE state = 'running';

CREATE TABLE IF NOT EXISTS companies (
	id                 INTEGER PRIMARY KEY,
	principal_org_code TEXT NOT NULL,
	code               TEXT NOT NULL,
	name               TEXT NOT NULL,
	recall_enabled     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS units (
	id             INTEGER PRIMARY KEY,
	company_id     INTEGER NOT NULL,
	code           TEXT NOT NULL,
	name           TEXT NOT NULL,
	recall_enabled INTEGER NOT NULL DEFAULT 0,
	recall_emails  TEXT
);

CREATE TABLE IF NOT EXISTS employees (
	id         INTEGER PRIMARY KEY,
	company_id INTEGER NOT NULL,
	code       TEXT NOT NULL,
	name       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS exams (
	id                 INTEGER PRIMARY KEY,
	principal_org_code TEXT NOT NULL,
	code               TEXT NOT NULL,
	name               TEXT NOT NULL
);
`

// Migrate creates the pipeline tables. Unlike postgres, the sqlite schema
// also carries the reference tables so a local environment can be seeded
// without the main platform.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(sqliteMigration, ";\n\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrap(err, "sqlite: migrate")
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Recall jobs

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.RecallJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO recall_jobs
		 (id, principal_org_code, company_id, company_code, external_request_id, created_at, result_imported, report_sent, raw_params, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.PrincipalOrgCode, job.CompanyID, job.CompanyCode,
		job.ExternalRequestID, job.CreatedAt, job.ResultImported, job.ReportSent,
		job.RawParams, job.Note,
	)
	return eris.Wrap(err, "sqlite: insert recall job")
}

func (s *SQLiteStore) scanJobRow(row *sql.Row) (*model.RecallJob, error) {
	var j model.RecallJob
	var rawParams, note sql.NullString
	err := row.Scan(&j.ID, &j.PrincipalOrgCode, &j.CompanyID, &j.CompanyCode,
		&j.ExternalRequestID, &j.CreatedAt, &j.ResultImported, &j.ReportSent,
		&rawParams, &note)
	if err != nil {
		return nil, err
	}
	j.RawParams = rawParams.String
	j.Note = note.String
	return &j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.RecallJob, error) {
	j, err := s.scanJobRow(s.db.QueryRowContext(ctx,
		`SELECT id, principal_org_code, company_id, company_code, external_request_id,
		 created_at, result_imported, report_sent, raw_params, note
		 FROM recall_jobs WHERE id = ?`, id))
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", id)
	}
	return j, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.RecallJob, error) {
	query := `SELECT id, principal_org_code, company_id, company_code, external_request_id,
	          created_at, result_imported, report_sent, raw_params, note
	          FROM recall_jobs WHERE 1=1`
	args := []any{}

	if filter.CompanyID != 0 {
		query += ` AND company_id = ?`
		args = append(args, filter.CompanyID)
	}
	if filter.ResultImported != nil {
		query += ` AND result_imported = ?`
		args = append(args, *filter.ResultImported)
	}
	if filter.CreatedAfter != nil {
		query += ` AND created_at >= ?`
		args = append(args, *filter.CreatedAfter)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.RecallJob
	for rows.Next() {
		var j model.RecallJob
		var rawParams, note sql.NullString
		if err := rows.Scan(&j.ID, &j.PrincipalOrgCode, &j.CompanyID, &j.CompanyCode,
			&j.ExternalRequestID, &j.CreatedAt, &j.ResultImported, &j.ReportSent,
			&rawParams, &note); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		j.RawParams = rawParams.String
		j.Note = note.String
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

func (s *SQLiteStore) LatestImportedJob(ctx context.Context, companyID int64) (*model.RecallJob, error) {
	j, err := s.scanJobRow(s.db.QueryRowContext(ctx,
		`SELECT id, principal_org_code, company_id, company_code, external_request_id,
		 created_at, result_imported, report_sent, raw_params, note
		 FROM recall_jobs WHERE company_id = ? AND result_imported = 1
		 ORDER BY created_at DESC LIMIT 1`, companyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: latest imported job for company %d", companyID)
	}
	return j, nil
}

func (s *SQLiteStore) MarkResultImported(ctx context.Context, jobID, note string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recall_jobs SET result_imported = 1, note = ? WHERE id = ?`, note, jobID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark result imported %s", jobID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

func (s *SQLiteStore) MarkReportSent(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE recall_jobs SET report_sent = 1 WHERE id = ?`, jobID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark report sent %s", jobID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("job not found: %s", jobID)
	}
	return nil
}

// Result rows

func (s *SQLiteStore) InsertResults(ctx context.Context, jobID, note string, rows []model.RecallResultRow) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert results: begin tx")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recall_job_results
		 (job_id, company_id, unit_id, employee_id, exam_id, periodicity_months,
		  admission_date, last_request_date, result_date, due_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (job_id, employee_id, exam_id) DO UPDATE SET
		   company_id = excluded.company_id,
		   unit_id = excluded.unit_id,
		   periodicity_months = excluded.periodicity_months,
		   admission_date = excluded.admission_date,
		   last_request_date = excluded.last_request_date,
		   result_date = excluded.result_date,
		   due_date = excluded.due_date`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: insert results: prepare")
	}
	defer stmt.Close()

	var n int64
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx,
			jobID, r.CompanyID, r.UnitID, r.EmployeeID, r.ExamID, r.PeriodicityMonths,
			r.AdmissionDate, r.LastRequestDate, r.ResultDate, r.DueDate,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert result row for job %s", jobID)
		}
		n++
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE recall_jobs SET result_imported = 1, note = ? WHERE id = ?`,
		note, jobID,
	); err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert results: mark imported %s", jobID)
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: insert results: commit tx")
	}
	return n, nil
}

func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]model.RecallResultRow, error) {
	query := `SELECT job_id, company_id, unit_id, employee_id, exam_id,
	          periodicity_months, admission_date, last_request_date, result_date, due_date
	          FROM recall_job_results WHERE job_id = ?`
	args := []any{filter.JobID}

	if filter.CompanyID != 0 {
		query += ` AND company_id = ?`
		args = append(args, filter.CompanyID)
	}
	if filter.UnitID != 0 {
		query += ` AND unit_id = ?`
		args = append(args, filter.UnitID)
	}
	query += ` ORDER BY employee_id, exam_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close()

	var out []model.RecallResultRow
	for rows.Next() {
		var r model.RecallResultRow
		if err := rows.Scan(&r.JobID, &r.CompanyID, &r.UnitID, &r.EmployeeID, &r.ExamID,
			&r.PeriodicityMonths, &r.AdmissionDate, &r.LastRequestDate, &r.ResultDate, &r.DueDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list results iterate")
}

// Import quarantine

func (s *SQLiteStore) AddQuarantined(ctx context.Context, rows []model.QuarantinedRow) error {
	for _, q := range rows {
		id := q.ID
		if id == "" {
			id = uuid.New().String()
		}
		createdAt := q.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO import_quarantine (id, job_id, reason, raw_row, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id, q.JobID, q.Reason, string(q.RawRow), createdAt,
		); err != nil {
			return eris.Wrapf(err, "sqlite: quarantine row for job %s", q.JobID)
		}
	}
	return nil
}

func (s *SQLiteStore) ListQuarantined(ctx context.Context, jobID string) ([]model.QuarantinedRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, job_id, reason, raw_row, created_at FROM import_quarantine
		 WHERE job_id = ? ORDER BY created_at`, jobID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quarantined")
	}
	defer rows.Close()

	var out []model.QuarantinedRow
	for rows.Next() {
		var q model.QuarantinedRow
		var raw string
		if err := rows.Scan(&q.ID, &q.JobID, &q.Reason, &raw, &q.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quarantined row")
		}
		q.RawRow = []byte(raw)
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list quarantined iterate")
}

// Reference lookups

func (s *SQLiteStore) GetCompany(ctx context.Context, id int64) (*model.Company, error) {
	var c model.Company
	err := s.db.QueryRowContext(ctx,
		`SELECT id, principal_org_code, code, name, recall_enabled FROM companies WHERE id = ?`,
		id,
	).Scan(&c.ID, &c.PrincipalOrgCode, &c.Code, &c.Name, &c.RecallEnabled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get company %d", id)
	}
	return &c, nil
}

func (s *SQLiteStore) GetUnit(ctx context.Context, id int64) (*model.Unit, error) {
	var u model.Unit
	var emails sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, company_id, code, name, recall_enabled, recall_emails FROM units WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.CompanyID, &u.Code, &u.Name, &u.RecallEnabled, &emails)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get unit %d", id)
	}
	if emails.Valid && emails.String != "" {
		if err := json.Unmarshal([]byte(emails.String), &u.RecallEmails); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal unit emails")
		}
	}
	return &u, nil
}

func (s *SQLiteStore) ListRecallUnits(ctx context.Context, companyIDs []int64) ([]model.Unit, error) {
	query := `SELECT id, company_id, code, name, recall_enabled, recall_emails
	          FROM units WHERE recall_enabled = 1`
	args := []any{}
	if len(companyIDs) > 0 {
		placeholders := make([]string, len(companyIDs))
		for i, id := range companyIDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		query += fmt.Sprintf(` AND company_id IN (%s)`, strings.Join(placeholders, ","))
	}
	query += ` ORDER BY company_id, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recall units")
	}
	defer rows.Close()

	var out []model.Unit
	for rows.Next() {
		var u model.Unit
		var emails sql.NullString
		if err := rows.Scan(&u.ID, &u.CompanyID, &u.Code, &u.Name, &u.RecallEnabled, &emails); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan unit")
		}
		if emails.Valid && emails.String != "" {
			if err := json.Unmarshal([]byte(emails.String), &u.RecallEmails); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal unit emails")
			}
		}
		out = append(out, u)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list recall units iterate")
}

func (s *SQLiteStore) lookupID(ctx context.Context, query string, args ...any) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

func (s *SQLiteStore) LookupEmployeeID(ctx context.Context, companyID int64, code string) (int64, bool, error) {
	id, ok, err := s.lookupID(ctx,
		`SELECT id FROM employees WHERE company_id = ? AND code = ?`, companyID, code)
	return id, ok, eris.Wrap(err, "sqlite: lookup employee")
}

func (s *SQLiteStore) LookupExamID(ctx context.Context, principalOrgCode, code string) (int64, bool, error) {
	id, ok, err := s.lookupID(ctx,
		`SELECT id FROM exams WHERE principal_org_code = ? AND code = ?`, principalOrgCode, code)
	return id, ok, eris.Wrap(err, "sqlite: lookup exam")
}

func (s *SQLiteStore) LookupUnitID(ctx context.Context, companyID int64, code string) (int64, bool, error) {
	id, ok, err := s.lookupID(ctx,
		`SELECT id FROM units WHERE company_id = ? AND code = ?`, companyID, code)
	return id, ok, eris.Wrap(err, "sqlite: lookup unit")
}

func (s *SQLiteStore) nameMap(ctx context.Context, table string, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, name FROM %s WHERE id IN (%s)`,
		table, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) EmployeeNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	m, err := s.nameMap(ctx, "employees", ids)
	return m, eris.Wrap(err, "sqlite: employee names")
}

func (s *SQLiteStore) ExamNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	m, err := s.nameMap(ctx, "exams", ids)
	return m, eris.Wrap(err, "sqlite: exam names")
}

// Notification audit

func (s *SQLiteStore) LogMail(ctx context.Context, entry *model.MailLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	recipientsJSON, err := json.Marshal(entry.Recipients)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal mail recipients")
	}
	var attachmentsJSON []byte
	if entry.Attachments != nil {
		attachmentsJSON, err = json.Marshal(entry.Attachments)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal mail attachments")
		}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO mail_log (id, recipients, subject, attachments, sent, error_class, error, row_count, attempts, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(recipientsJSON), entry.Subject, string(attachmentsJSON), entry.Sent,
		entry.ErrorClass, entry.Error, entry.RowCount, entry.Attempts, entry.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert mail log")
}

// Task locks

func (s *SQLiteStore) InsertLock(ctx context.Context, entry *model.TaskLockEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_locks (id, job_type, state, error, acquired_at, heartbeat_at, lease_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.JobType), string(entry.State), entry.Error,
		entry.AcquiredAt, entry.HeartbeatAt, entry.LeaseSeconds,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateLock
		}
		return eris.Wrapf(err, "sqlite: insert lock for %s", entry.JobType)
	}
	return nil
}

func (s *SQLiteStore) ActiveLock(ctx context.Context, jobType model.JobType) (*model.TaskLockEntry, error) {
	var e model.TaskLockEntry
	var errMsg sql.NullString
	var releasedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, job_type, state, error, acquired_at, heartbeat_at, lease_seconds, released_at
		 FROM task_locks WHERE job_type = ? AND state = 'running'`,
		string(jobType),
	).Scan(&e.ID, &e.JobType, &e.State, &errMsg, &e.AcquiredAt, &e.HeartbeatAt, &e.LeaseSeconds, &releasedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: active lock for %s", jobType)
	}
	e.Error = errMsg.String
	if releasedAt.Valid {
		e.ReleasedAt = &releasedAt.Time
	}
	return &e, nil
}

func (s *SQLiteStore) UpdateLockState(ctx context.Context, id string, state model.LockState, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_locks SET state = ?, error = ?, released_at = ? WHERE id = ?`,
		string(state), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lock %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("lock not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) TouchLock(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_locks SET heartbeat_at = ? WHERE id = ? AND state = 'running'`,
		at, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch lock %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return eris.Errorf("running lock not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) CancelRunningLocks(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE task_locks SET state = 'cancelled', released_at = ? WHERE state = 'running'`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: cancel running locks")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
