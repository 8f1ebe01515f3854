// Package report renders filtered recall results into spreadsheet and slide
// deck artifacts and packages them for mailing.
package report

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/salusworks/recall-cli/internal/classify"
)

// Row is one classified recall line ready for presentation.
type Row struct {
	EmployeeName      string
	ExamName          string
	UnitName          string
	PeriodicityMonths int
	AdmissionDate     *time.Time
	LastRequestDate   *time.Time
	ResultDate        *time.Time
	DueDate           *time.Time
	Status            classify.Status
	Bucket            classify.Bucket
	DaysUntilDue      *int
}

// Filters narrows the rows included in an artifact. Empty slices match
// everything; both dimensions must match when set.
type Filters struct {
	Statuses []classify.Status
	Buckets  []classify.Bucket
}

func (f Filters) match(r Row) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
		return false
	}
	if len(f.Buckets) > 0 && !containsBucket(f.Buckets, r.Bucket) {
		return false
	}
	return true
}

func containsStatus(set []classify.Status, s classify.Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsBucket(set []classify.Bucket, b classify.Bucket) bool {
	for _, v := range set {
		if v == b {
			return true
		}
	}
	return false
}

// BuildRequest is one artifact build.
type BuildRequest struct {
	// Title names the artifacts, typically the unit name.
	Title       string
	Rows        []Row
	Filters     Filters
	IncludeDeck bool
}

// BuildResult reports what was produced.
type BuildResult struct {
	ArchivePath string
	RowCount    int
	DeckBuilt   bool
}

const defaultDeckTrigger = 50

// Builder renders report artifacts into an output directory.
type Builder struct {
	outDir      string
	deckTrigger int
	deck        DeckRenderer
	now         func() time.Time
}

type BuilderOption func(*Builder)

// WithDeckTrigger sets the filtered row count at and above which a slide
// deck is rendered alongside the spreadsheet.
func WithDeckTrigger(n int) BuilderOption {
	return func(b *Builder) { b.deckTrigger = n }
}

func WithDeckRenderer(r DeckRenderer) BuilderOption {
	return func(b *Builder) { b.deck = r }
}

func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func NewBuilder(outDir string, opts ...BuilderOption) *Builder {
	b := &Builder{
		outDir:      outDir,
		deckTrigger: defaultDeckTrigger,
		deck:        &pptxRenderer{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the filtered rows. It returns a zero-value result with an
// empty ArchivePath when no rows survive the filters; the spreadsheet is
// always produced otherwise, the deck only when the filtered count reaches
// the trigger and the request asks for it.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	var filtered []Row
	for _, r := range req.Rows {
		if req.Filters.match(r) {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		zap.L().Info("no rows after filters, skipping artifacts",
			zap.String("title", req.Title), zap.Int("input_rows", len(req.Rows)))
		return BuildResult{}, nil
	}

	if err := os.MkdirAll(b.outDir, 0o755); err != nil {
		return BuildResult{}, eris.Wrap(err, "report: create output dir")
	}
	now := b.now()

	xlsxPath := filepath.Join(b.outDir, ArtifactName(req.Title, now, "xlsx"))
	if err := writeWorkbook(xlsxPath, req.Title, filtered); err != nil {
		return BuildResult{}, err
	}
	artifacts := []string{xlsxPath}

	deckBuilt := false
	if req.IncludeDeck && len(filtered) >= b.deckTrigger {
		if err := ctx.Err(); err != nil {
			return BuildResult{}, eris.Wrap(err, "report: build cancelled")
		}
		pptxPath := filepath.Join(b.outDir, ArtifactName(req.Title, now, "pptx"))
		if err := b.deck.Render(pptxPath, req.Title, filtered); err != nil {
			return BuildResult{}, eris.Wrap(err, "report: render deck")
		}
		artifacts = append(artifacts, pptxPath)
		deckBuilt = true
	}

	archivePath := filepath.Join(b.outDir, ArtifactName(req.Title, now, "zip"))
	if err := packageArchive(archivePath, artifacts); err != nil {
		return BuildResult{}, err
	}

	return BuildResult{
		ArchivePath: archivePath,
		RowCount:    len(filtered),
		DeckBuilt:   deckBuilt,
	}, nil
}

const dateDisplayLayout = "02/01/2006"

var workbookHeader = []string{
	"Funcionário", "Exame", "Unidade", "Periodicidade (meses)",
	"Admissão", "Último pedido", "Resultado", "Refazer em",
	"Situação", "Faixa", "Dias até vencer",
}

func writeWorkbook(path, title string, rows []Row) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet(sheetTitle(title))
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range workbookHeader {
		cell := header.AddCell()
		cell.Value = h
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().Value = r.EmployeeName
		row.AddCell().Value = r.ExamName
		row.AddCell().Value = r.UnitName
		row.AddCell().SetInt(r.PeriodicityMonths)
		row.AddCell().Value = formatDate(r.AdmissionDate)
		row.AddCell().Value = formatDate(r.LastRequestDate)
		row.AddCell().Value = formatDate(r.ResultDate)
		row.AddCell().Value = formatDate(r.DueDate)
		row.AddCell().Value = string(r.Status)
		row.AddCell().Value = bucketLabel(r.Bucket)
		if r.DaysUntilDue != nil {
			row.AddCell().SetInt(*r.DaysUntilDue)
		} else {
			row.AddCell().Value = ""
		}
	}

	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "report: save workbook")
	}
	return nil
}

// sheetTitle trims to the 31-character sheet name limit.
func sheetTitle(title string) string {
	if title == "" {
		return "Convocação"
	}
	runes := []rune(title)
	if len(runes) > 31 {
		runes = runes[:31]
	}
	return string(runes)
}

func bucketLabel(b classify.Bucket) string {
	switch b {
	case classify.Bucket30:
		return "0-30"
	case classify.Bucket60:
		return "31-60"
	case classify.Bucket90:
		return "61-90"
	case classify.Bucket365:
		return "91-365"
	default:
		return ""
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateDisplayLayout)
}

func packageArchive(archivePath string, files []string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return eris.Wrap(err, "report: create archive")
	}
	defer out.Close() //nolint:errcheck

	zw := zip.NewWriter(out)
	for _, path := range files {
		if err := addArchiveEntry(zw, path); err != nil {
			zw.Close() //nolint:errcheck
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return eris.Wrap(err, "report: close archive")
	}
	return out.Close()
}

func addArchiveEntry(zw *zip.Writer, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "report: open artifact %s", path)
	}
	defer in.Close() //nolint:errcheck

	w, err := zw.Create(filepath.Base(path))
	if err != nil {
		return eris.Wrapf(err, "report: add archive entry %s", path)
	}
	if _, err := io.Copy(w, in); err != nil {
		return eris.Wrapf(err, "report: write archive entry %s", path)
	}
	return nil
}
