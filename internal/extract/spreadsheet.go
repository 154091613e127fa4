package extract

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet renders the first sheet as a right-aligned text table,
// header row first.
func extractSpreadsheet(path string) (Result, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Result{}, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return Result{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}

	var warns []string
	if len(sheets) > 1 {
		warns = append(warns, fmt.Sprintf("only the first of %d sheets was read", len(sheets)))
	}
	return Result{
		Text:       renderTable(rows),
		SourceType: SourceSpreadsheet,
		Method:     "excelize",
		Pages:      1,
		Warnings:   warns,
	}, nil
}

// renderTable pads ragged rows and right-aligns every column to its widest
// cell, separating columns with one space.
func renderTable(rows [][]string) string {
	cols := 0
	for _, row := range rows {
		if len(row) > cols {
			cols = len(row)
		}
	}
	if cols == 0 {
		return ""
	}

	widths := make([]int, cols)
	for _, row := range rows {
		for i, cell := range row {
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	var b strings.Builder
	for r, row := range rows {
		if r > 0 {
			b.WriteByte('\n')
		}
		for i := 0; i < cols; i++ {
			if i > 0 {
				b.WriteByte(' ')
			}
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.WriteString(strings.Repeat(" ", widths[i]-utf8.RuneCountInString(cell)))
			b.WriteString(cell)
		}
	}
	return b.String()
}
