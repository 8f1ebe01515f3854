package importer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salusworks/recall-cli/internal/model"
	"github.com/salusworks/recall-cli/pkg/soc"
)

type fakeFetcher struct {
	rows []soc.ResultRow
	err  error
}

func (f *fakeFetcher) FetchJobResult(_ context.Context, _, _ string) ([]soc.ResultRow, error) {
	return f.rows, f.err
}

// fakeRepo resolves codes from fixed maps and stores inserts keyed the way
// the real upsert does.
type fakeRepo struct {
	employees map[string]int64
	exams     map[string]int64
	units     map[string]int64

	inserted    map[string]model.RecallResultRow
	quarantined []model.QuarantinedRow
	markedNote  string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		employees: map[string]int64{"EMP01": 100, "EMP02": 101},
		exams:     map[string]int64{"AUDIO": 5, "VISUAL": 6},
		units:     map[string]int64{"U01": 7},
		inserted:  map[string]model.RecallResultRow{},
	}
}

func (f *fakeRepo) InsertResults(_ context.Context, jobID, note string, rows []model.RecallResultRow) (int64, error) {
	var n int64
	for _, r := range rows {
		key := fmt.Sprintf("%s/%d/%d", jobID, r.EmployeeID, r.ExamID)
		if _, exists := f.inserted[key]; !exists {
			n++
		}
		f.inserted[key] = r
	}
	f.markedNote = note
	return n, nil
}

func (f *fakeRepo) MarkResultImported(_ context.Context, _, note string) error {
	f.markedNote = note
	return nil
}

func (f *fakeRepo) AddQuarantined(_ context.Context, rows []model.QuarantinedRow) error {
	f.quarantined = append(f.quarantined, rows...)
	return nil
}

func (f *fakeRepo) LookupEmployeeID(_ context.Context, _ int64, code string) (int64, bool, error) {
	id, ok := f.employees[code]
	return id, ok, nil
}

func (f *fakeRepo) LookupExamID(_ context.Context, _, code string) (int64, bool, error) {
	id, ok := f.exams[code]
	return id, ok, nil
}

func (f *fakeRepo) LookupUnitID(_ context.Context, _ int64, code string) (int64, bool, error) {
	id, ok := f.units[code]
	return id, ok, nil
}

func testJob() *model.RecallJob {
	return &model.RecallJob{
		ID:                "job-1",
		PrincipalOrgCode:  "417",
		CompanyID:         42,
		CompanyCode:       "90001",
		ExternalRequestID: "req-1",
	}
}

func wireRow(employee, exam string) soc.ResultRow {
	return soc.ResultRow{
		CompanyCode:       "90001",
		UnitCode:          "U01",
		EmployeeCode:      soc.LooseString(employee),
		ExamCode:          soc.LooseString(exam),
		PeriodicityMonths: "12",
		AdmissionDate:     "15-03-2020",
		LastRequestDate:   "10-01-2026",
		ResultDate:        "20-01-2026",
		DueDate:           "20-01-2027",
	}
}

func TestImportResults_HappyPath(t *testing.T) {
	fetcher := &fakeFetcher{rows: []soc.ResultRow{wireRow("EMP01", "AUDIO"), wireRow("EMP02", "VISUAL")}}
	repo := newFakeRepo()
	im := New(fetcher, repo)

	out, err := im.ImportResults(context.Background(), testJob())
	require.NoError(t, err)

	assert.Equal(t, int64(2), out.Inserted)
	assert.Zero(t, out.Dropped)
	assert.Empty(t, out.Quarantined)
	assert.Equal(t, "inserted", out.Note)
	assert.Equal(t, "inserted", repo.markedNote)

	row := repo.inserted["job-1/100/5"]
	assert.Equal(t, int64(7), row.UnitID)
	assert.Equal(t, 12, row.PeriodicityMonths)
	require.NotNil(t, row.AdmissionDate)
	assert.Equal(t, time.Date(2020, 3, 15, 0, 0, 0, 0, time.UTC), *row.AdmissionDate)
	require.NotNil(t, row.DueDate)
	assert.Equal(t, time.Date(2027, 1, 20, 0, 0, 0, 0, time.UTC), *row.DueDate)
}

func TestImportResults_ReimportIsIdempotent(t *testing.T) {
	fetcher := &fakeFetcher{rows: []soc.ResultRow{wireRow("EMP01", "AUDIO")}}
	repo := newFakeRepo()
	im := New(fetcher, repo)
	ctx := context.Background()

	first, err := im.ImportResults(ctx, testJob())
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Inserted)

	second, err := im.ImportResults(ctx, testJob())
	require.NoError(t, err)
	assert.Zero(t, second.Inserted)
	assert.Len(t, repo.inserted, 1)
}

func TestImportResults_BlankCodesDropped(t *testing.T) {
	blank := wireRow("EMP01", "AUDIO")
	blank.UnitCode = ""
	noExam := wireRow("EMP02", "VISUAL")
	noExam.ExamCode = ""

	fetcher := &fakeFetcher{rows: []soc.ResultRow{blank, noExam, wireRow("EMP01", "AUDIO")}}
	repo := newFakeRepo()
	im := New(fetcher, repo)

	out, err := im.ImportResults(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Dropped)
	assert.Equal(t, int64(1), out.Inserted)
	assert.Empty(t, out.Quarantined)
}

func TestImportResults_UnresolvedRowsQuarantined(t *testing.T) {
	fetcher := &fakeFetcher{rows: []soc.ResultRow{
		wireRow("GHOST", "AUDIO"),
		wireRow("EMP01", "UNKNOWN_EXAM"),
		wireRow("EMP01", "AUDIO"),
	}}
	repo := newFakeRepo()
	im := New(fetcher, repo)

	out, err := im.ImportResults(context.Background(), testJob())
	require.NoError(t, err)

	assert.Equal(t, int64(1), out.Inserted)
	require.Len(t, out.Quarantined, 2)
	assert.Contains(t, out.Quarantined[0].Reason, "unknown employee code GHOST")
	assert.Contains(t, out.Quarantined[1].Reason, "unknown exam code UNKNOWN_EXAM")
	assert.Len(t, repo.quarantined, 2)
	// The raw wire row survives for later inspection.
	assert.Contains(t, string(repo.quarantined[0].RawRow), "GHOST")
}

func TestImportResults_EmptyResultMarksJob(t *testing.T) {
	fetcher := &fakeFetcher{}
	repo := newFakeRepo()
	im := New(fetcher, repo)

	out, err := im.ImportResults(context.Background(), testJob())
	require.NoError(t, err)
	assert.Equal(t, "empty", out.Note)
	assert.Equal(t, "empty", repo.markedNote)
	assert.Zero(t, out.Inserted)
}

func TestImportResults_FetchFailurePropagates(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("gateway timeout")}
	repo := newFakeRepo()
	im := New(fetcher, repo)

	_, err := im.ImportResults(context.Background(), testJob())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch results")
	assert.Empty(t, repo.markedNote)
}

func TestNormalize_MalformedDatesAndPeriodicityDegrade(t *testing.T) {
	row := wireRow("EMP01", "AUDIO")
	row.PeriodicityMonths = "annual"
	row.AdmissionDate = "31-02-2020"
	row.DueDate = ""

	normalized, ok := normalize(row)
	require.True(t, ok)
	assert.Zero(t, normalized.periodicityMonths)
	assert.Nil(t, normalized.admissionDate)
	assert.Nil(t, normalized.dueDate)
	require.NotNil(t, normalized.lastRequestDate)
}

func TestParseWireDate_DayFirst(t *testing.T) {
	got := parseWireDate("02-01-2026")
	require.NotNil(t, got)
	// Day-first: the 2nd of January, not the 1st of February.
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), *got)
}
