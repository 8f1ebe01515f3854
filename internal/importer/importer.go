// Package importer pulls computed recall rows from the remote record system,
// normalizes them and lands them in the store. Rows that cannot be resolved
// against the platform's reference tables go to the quarantine table instead
// of being dropped.
package importer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/salusworks/recall-cli/internal/model"
	"github.com/salusworks/recall-cli/pkg/soc"
)

// wireDateLayout is the day-first format the legacy export emits.
const wireDateLayout = "02-01-2006"

// Fetcher is the slice of the remote client the importer needs.
type Fetcher interface {
	FetchJobResult(ctx context.Context, externalRequestID, companyCode string) ([]soc.ResultRow, error)
}

// Repository is the slice of the store the importer needs.
type Repository interface {
	InsertResults(ctx context.Context, jobID, note string, rows []model.RecallResultRow) (int64, error)
	MarkResultImported(ctx context.Context, jobID, note string) error
	AddQuarantined(ctx context.Context, rows []model.QuarantinedRow) error
	LookupEmployeeID(ctx context.Context, companyID int64, code string) (int64, bool, error)
	LookupExamID(ctx context.Context, principalOrgCode, code string) (int64, bool, error)
	LookupUnitID(ctx context.Context, companyID int64, code string) (int64, bool, error)
}

// Outcome summarizes one import run.
type Outcome struct {
	Inserted    int64
	Dropped     int
	Quarantined []model.QuarantinedRow
	Note        string
}

// Importer coordinates fetch, normalize, resolve and persist for one job.
type Importer struct {
	fetcher Fetcher
	repo    Repository
}

func New(fetcher Fetcher, repo Repository) *Importer {
	return &Importer{fetcher: fetcher, repo: repo}
}

// ImportResults imports the remote result set for a submitted job. Rows with
// blank identifying codes are dropped, rows whose employee or exam cannot be
// resolved are quarantined, and the survivors are upserted keyed by
// (job_id, employee_id, exam_id), so running the import twice for the same
// job changes nothing.
func (im *Importer) ImportResults(ctx context.Context, job *model.RecallJob) (*Outcome, error) {
	if job == nil {
		return nil, eris.New("importer: nil job")
	}

	raw, err := im.fetcher.FetchJobResult(ctx, job.ExternalRequestID, job.CompanyCode)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: fetch results for job %s", job.ID)
	}

	out := &Outcome{}
	var resolved []model.RecallResultRow
	for _, row := range raw {
		normalized, ok := normalize(row)
		if !ok {
			out.Dropped++
			continue
		}
		entry, reason, err := im.resolve(ctx, job, normalized, row)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			q, err := quarantineRow(job.ID, reason, row)
			if err != nil {
				return nil, err
			}
			out.Quarantined = append(out.Quarantined, q)
			continue
		}
		resolved = append(resolved, *entry)
	}

	if len(out.Quarantined) > 0 {
		if err := im.repo.AddQuarantined(ctx, out.Quarantined); err != nil {
			return nil, eris.Wrapf(err, "importer: quarantine rows for job %s", job.ID)
		}
		zap.L().Warn("quarantined unresolved rows",
			zap.String("job_id", job.ID),
			zap.Int("count", len(out.Quarantined)))
	}

	if len(resolved) == 0 {
		out.Note = "empty"
		if err := im.repo.MarkResultImported(ctx, job.ID, out.Note); err != nil {
			return nil, eris.Wrapf(err, "importer: mark empty import for job %s", job.ID)
		}
		return out, nil
	}

	out.Note = "inserted"
	n, err := im.repo.InsertResults(ctx, job.ID, out.Note, resolved)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: insert results for job %s", job.ID)
	}
	out.Inserted = n

	zap.L().Info("imported recall results",
		zap.String("job_id", job.ID),
		zap.Int64("inserted", n),
		zap.Int("dropped", out.Dropped),
		zap.Int("quarantined", len(out.Quarantined)))
	return out, nil
}

// normalizedRow is a wire row after blank filtering and date parsing, still
// carrying codes rather than resolved ids.
type normalizedRow struct {
	unitCode          string
	employeeCode      string
	examCode          string
	periodicityMonths int
	admissionDate     *time.Time
	lastRequestDate   *time.Time
	resultDate        *time.Time
	dueDate           *time.Time
}

// normalize applies the blank-code filter and coerces the loose fields. It
// never fails: malformed dates and periodicities degrade to nil/zero.
func normalize(row soc.ResultRow) (normalizedRow, bool) {
	if row.CompanyCode.String() == "" || row.UnitCode.String() == "" ||
		row.EmployeeCode.String() == "" || row.ExamCode.String() == "" {
		return normalizedRow{}, false
	}
	periodicity := 0
	if n, ok := row.PeriodicityMonths.Int64(); ok {
		periodicity = int(n)
	}

	return normalizedRow{
		unitCode:          row.UnitCode.String(),
		employeeCode:      row.EmployeeCode.String(),
		examCode:          row.ExamCode.String(),
		periodicityMonths: periodicity,
		admissionDate:     parseWireDate(row.AdmissionDate),
		lastRequestDate:   parseWireDate(row.LastRequestDate),
		resultDate:        parseWireDate(row.ResultDate),
		dueDate:           parseWireDate(row.DueDate),
	}, true
}

// parseWireDate parses a day-first date, returning nil for blanks and
// anything unparseable.
func parseWireDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(wireDateLayout, s)
	if err != nil {
		return nil
	}
	return &t
}

// resolve maps wire codes onto platform ids. A non-empty reason marks the
// row for quarantine.
func (im *Importer) resolve(ctx context.Context, job *model.RecallJob, row normalizedRow, _ soc.ResultRow) (*model.RecallResultRow, string, error) {
	employeeID, ok, err := im.repo.LookupEmployeeID(ctx, job.CompanyID, row.employeeCode)
	if err != nil {
		return nil, "", eris.Wrapf(err, "importer: resolve employee %s", row.employeeCode)
	}
	if !ok {
		return nil, "unknown employee code " + row.employeeCode, nil
	}

	examID, ok, err := im.repo.LookupExamID(ctx, job.PrincipalOrgCode, row.examCode)
	if err != nil {
		return nil, "", eris.Wrapf(err, "importer: resolve exam %s", row.examCode)
	}
	if !ok {
		return nil, "unknown exam code " + row.examCode, nil
	}

	unitID, ok, err := im.repo.LookupUnitID(ctx, job.CompanyID, row.unitCode)
	if err != nil {
		return nil, "", eris.Wrapf(err, "importer: resolve unit %s", row.unitCode)
	}
	if !ok {
		return nil, "unknown unit code " + row.unitCode, nil
	}

	return &model.RecallResultRow{
		JobID:             job.ID,
		CompanyID:         job.CompanyID,
		UnitID:            unitID,
		EmployeeID:        employeeID,
		ExamID:            examID,
		PeriodicityMonths: row.periodicityMonths,
		AdmissionDate:     row.admissionDate,
		LastRequestDate:   row.lastRequestDate,
		ResultDate:        row.resultDate,
		DueDate:           row.dueDate,
	}, "", nil
}

func quarantineRow(jobID, reason string, raw soc.ResultRow) (model.QuarantinedRow, error) {
	payload, err := json.Marshal(raw)
	if err != nil {
		return model.QuarantinedRow{}, eris.Wrap(err, "importer: marshal quarantined row")
	}
	return model.QuarantinedRow{
		JobID:  jobID,
		Reason: reason,
		RawRow: payload,
	}, nil
}
