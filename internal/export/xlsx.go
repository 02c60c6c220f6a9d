// Package export writes ledger reports to local files.
package export

import (
	"fmt"
	"io"
	"os"

	"github.com/Veraticus/tally/internal/report"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// WriteXLSX renders every report table as its own worksheet.
func WriteXLSX(w io.Writer, l *report.Ledger) error {
	f, err := Workbook(l)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteXLSXFile writes the workbook to path, replacing any existing file.
func WriteXLSXFile(path string, l *report.Ledger) error {
	out, err := os.Create(path) // #nosec G304
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := WriteXLSX(out, l); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Workbook builds the in-memory workbook for l. Callers must Close it.
func Workbook(l *report.Ledger) (*excelize.File, error) {
	f := excelize.NewFile()

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	tables := l.Tables()
	for _, t := range tables {
		if _, err := f.NewSheet(t.Name); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to add sheet %s: %w", t.Name, err)
		}
		if err := writeTable(f, t, header); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to write sheet %s: %w", t.Name, err)
		}
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(tables[0].Name); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

func writeTable(f *excelize.File, t report.Table, headerStyle int) error {
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(t.Name, 1, 1, headerStyle); err != nil {
		return err
	}

	for r, row := range t.Rows {
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = report.Cell(v)
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Name, cell, &cells); err != nil {
			return err
		}
	}

	if len(t.Header) > 0 {
		last, err := excelize.ColumnNumberToName(len(t.Header))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(t.Name, "A", last, 16); err != nil {
			return err
		}
	}

	return f.SetPanes(t.Name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
