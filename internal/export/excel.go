// Package export renders the grading dashboard data as an Excel workbook
// for offline review and record keeping.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/grademark/grademark/internal/triage"
)

const (
	sheetOverview  = "Overview"
	sheetQuestions = "Questions"
	sheetTriage    = "Triage"
)

var categoryColumns = []triage.Category{
	triage.AILow,
	triage.LowScore,
	triage.AIHigh,
	triage.GradedOnce,
	triage.GradedTwicePlus,
}

// Workbook builds the three-sheet grading report: the global weighted
// breakdown, the per-question percentage rows, and the sorted worklist.
func Workbook(stats *triage.Stats, items []triage.Item) (*excelize.File, error) {
	if stats == nil {
		return nil, fmt.Errorf("stats are required")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetOverview); err != nil {
		return nil, fmt.Errorf("naming overview sheet: %w", err)
	}

	if err := writeOverview(f, stats); err != nil {
		return nil, err
	}
	if err := writeQuestions(f, stats); err != nil {
		return nil, err
	}
	if err := writeTriage(f, items); err != nil {
		return nil, err
	}

	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, stats *triage.Stats, items []triage.Item) error {
	f, err := Workbook(stats, items)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func writeOverview(f *excelize.File, stats *triage.Stats) error {
	rows := [][]any{
		{"Category", "Weighted %"},
	}
	for _, cat := range categoryColumns {
		rows = append(rows, []any{cat.String(), stats.Global.Get(cat)})
	}
	rows = append(rows, []any{"totalWeight", stats.Global.TotalWeight})

	return writeRows(f, sheetOverview, rows)
}

func writeQuestions(f *excelize.File, stats *triage.Stats) error {
	if _, err := f.NewSheet(sheetQuestions); err != nil {
		return fmt.Errorf("creating questions sheet: %w", err)
	}

	header := []any{"Question"}
	for _, cat := range categoryColumns {
		header = append(header, cat.String()+" %")
	}
	rows := [][]any{header}

	// Stable row order for a reproducible report.
	ids := make([]string, 0, len(stats.Questions))
	for id := range stats.Questions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		b := stats.Questions[id]
		row := []any{id}
		for _, cat := range categoryColumns {
			row = append(row, b.Get(cat))
		}
		rows = append(rows, row)
	}

	return writeRows(f, sheetQuestions, rows)
}

func writeTriage(f *excelize.File, items []triage.Item) error {
	if _, err := f.NewSheet(sheetTriage); err != nil {
		return fmt.Errorf("creating triage sheet: %w", err)
	}

	rows := [][]any{
		{"Task", "Student", "Question", "Category", "Confidence"},
	}
	for _, it := range items {
		rows = append(rows, []any{
			it.TaskLabel, it.StudentName, it.QuestionID, it.Category.String(), it.Confidence,
		})
	}

	return writeRows(f, sheetTriage, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return fmt.Errorf("cell name for row %d: %w", r+1, err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sheet, r+1, err)
		}
	}
	return nil
}
