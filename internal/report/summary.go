package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// SummaryRow is one unit's outcome in a batch run.
type SummaryRow struct {
	CompanyName     string
	UnitName        string
	Status          string
	FileName        string
	RowCount        int
	DurationSeconds float64
	Error           string
}

var summaryHeader = []string{
	"Empresa", "Unidade", "Situação", "Arquivo", "Linhas", "Duração (s)", "Erro",
}

// WriteSummaryWorkbook renders the consolidated batch outcome sheet mailed
// to operators at the end of a run.
func WriteSummaryWorkbook(path string, rows []SummaryRow) error {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Resumo")
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}

	header := sheet.AddRow()
	for _, h := range summaryHeader {
		header.AddCell().Value = h
	}

	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().Value = r.CompanyName
		row.AddCell().Value = r.UnitName
		row.AddCell().Value = r.Status
		row.AddCell().Value = r.FileName
		row.AddCell().SetInt(r.RowCount)
		row.AddCell().SetFloat(r.DurationSeconds)
		row.AddCell().Value = r.Error
	}

	if err := file.Save(path); err != nil {
		return eris.Wrap(err, "report: save summary workbook")
	}
	return nil
}
