package report

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// Fixed sheet names of the workbook layout.
const (
	SheetFieldOverview = "Field Overview"
	SheetTableOverview = "Table Overview"
	SheetParameters    = "Scan Parameters"
)

// fieldOverviewHeader is shared with the workbook loader.
var fieldOverviewHeader = []string{
	"Table", "Field", "Description", "Type", "Declared type", "Max length",
	"N rows", "N rows checked", "Fraction empty", "N unique values", "Fraction unique",
	"Average length", "Average", "Standard deviation", "Min", "25%", "Median", "75%", "Max",
}

var tableOverviewHeader = []string{
	"Table", "Description", "N rows", "N rows checked", "N fields", "N fields empty", "Skipped rows", "Stopped early", "Sheet",
}

// XLSXSink writes the scan report as an Excel workbook. Tables are laid out
// as they arrive; the overview and parameter sheets are completed on Close,
// which also saves the file.
type XLSXSink struct {
	path  string
	meta  Meta
	f     *excelize.File
	names *sheetNamer
	bold  int

	fieldRow int
	tables   []tableOverviewRow
	closed   bool
}

type tableOverviewRow struct {
	t     TableReport
	sheet string
}

// NewXLSXSink prepares a workbook that will be saved to path.
func NewXLSXSink(path string, meta Meta) (*XLSXSink, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetFieldOverview); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx: style: %w", err)
	}

	s := &XLSXSink{
		path:     path,
		meta:     meta,
		f:        f,
		names:    newSheetNamer(SheetFieldOverview, SheetTableOverview, SheetParameters),
		bold:     bold,
		fieldRow: 2,
	}
	if err := s.header(SheetFieldOverview, fieldOverviewHeader); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *XLSXSink) header(sheet string, cols []string) error {
	row := make([]any, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	if err := s.f.SetSheetRow(sheet, "A1", &row); err != nil {
		return fmt.Errorf("xlsx: %s header: %w", sheet, err)
	}
	last, _ := excelize.CoordinatesToCellName(len(cols), 1)
	if err := s.f.SetCellStyle(sheet, "A1", last, s.bold); err != nil {
		return fmt.Errorf("xlsx: %s header style: %w", sheet, err)
	}
	return nil
}

// WriteTable appends t to the field overview and adds a value sheet for it.
func (s *XLSXSink) WriteTable(ctx context.Context, t TableReport) error {
	if s.closed {
		return fmt.Errorf("xlsx: write after close")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, fr := range t.Fields {
		cell, _ := excelize.CoordinatesToCellName(1, s.fieldRow)
		row := fieldOverviewRow(t, fr)
		if err := s.f.SetSheetRow(SheetFieldOverview, cell, &row); err != nil {
			return fmt.Errorf("xlsx: field overview %s.%s: %w", t.Name, fr.Name, err)
		}
		s.fieldRow++
	}

	sheet := s.names.name(t.Name)
	if _, err := s.f.NewSheet(sheet); err != nil {
		return fmt.Errorf("xlsx: new sheet %q: %w", sheet, err)
	}
	for i, fr := range t.Fields {
		if err := s.valueColumns(sheet, 2*i+1, fr); err != nil {
			return fmt.Errorf("xlsx: %s.%s: %w", t.Name, fr.Name, err)
		}
	}

	s.tables = append(s.tables, tableOverviewRow{t: t, sheet: sheet})
	return nil
}

func fieldOverviewRow(t TableReport, fr FieldReport) []any {
	row := []any{
		t.Name, fr.Name, fr.Label, fr.Type, fr.DeclaredType, fr.MaxLength,
		fr.RowCount, fr.Processed, fr.FractionEmpty, uniqueCell(fr), fr.FractionUnique,
		fr.AverageLength,
	}
	if n := fr.Numeric; n != nil {
		row = append(row, n.Average, n.Stdev, n.Min, n.Q1, n.Median, n.Q3, n.Max)
	}
	return row
}

// uniqueCell renders "at least" counts as text so they are not mistaken for
// exact figures.
func uniqueCell(fr FieldReport) any {
	if fr.UniqueAtLeast {
		return ">= " + strconv.Itoa(fr.UniqueCount)
	}
	return fr.UniqueCount
}

// valueColumns writes the field name and "Frequency" headers in columns col
// and col+1, followed by one row per reported value.
func (s *XLSXSink) valueColumns(sheet string, col int, fr FieldReport) error {
	set := func(c, r int, v any) error {
		cell, err := excelize.CoordinatesToCellName(c, r)
		if err != nil {
			return err
		}
		return s.f.SetCellValue(sheet, cell, v)
	}

	if err := set(col, 1, fr.Name); err != nil {
		return err
	}
	if err := set(col+1, 1, "Frequency"); err != nil {
		return err
	}
	h1, _ := excelize.CoordinatesToCellName(col, 1)
	h2, _ := excelize.CoordinatesToCellName(col+1, 1)
	if err := s.f.SetCellStyle(sheet, h1, h2, s.bold); err != nil {
		return err
	}

	for i, vc := range fr.Values {
		r := i + 2
		if err := set(col, r, vc.Value); err != nil {
			return err
		}
		if fr.ValuesTruncated && i == len(fr.Values)-1 && vc.Value == TruncatedMarker {
			continue
		}
		if err := set(col+1, r, vc.Count); err != nil {
			return err
		}
	}
	return nil
}

// Close writes the overview and parameter sheets and saves the workbook.
// The workbook is released even when saving fails.
func (s *XLSXSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.f.Close()

	if err := s.writeTableOverview(); err != nil {
		return err
	}
	if err := s.writeParameters(); err != nil {
		return err
	}
	s.f.SetActiveSheet(0)
	if err := s.f.SaveAs(s.path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", s.path, err)
	}
	return nil
}

func (s *XLSXSink) writeTableOverview() error {
	if _, err := s.f.NewSheet(SheetTableOverview); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := s.header(SheetTableOverview, tableOverviewHeader); err != nil {
		return err
	}
	for i, tr := range s.tables {
		empty := 0
		for _, fr := range tr.t.Fields {
			if fr.Processed > 0 && fr.Processed == fr.EmptyCount {
				empty++
			}
		}
		row := []any{
			tr.t.Name, tr.t.Comment, tr.t.RowCount, tr.t.RowsChecked, len(tr.t.Fields), empty,
			tr.t.SkippedRows, tr.t.StoppedEarly, tr.sheet,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := s.f.SetSheetRow(SheetTableOverview, cell, &row); err != nil {
			return fmt.Errorf("xlsx: table overview %s: %w", tr.t.Name, err)
		}
	}
	return nil
}

func (s *XLSXSink) writeParameters() error {
	if _, err := s.f.NewSheet(SheetParameters); err != nil {
		return fmt.Errorf("xlsx: %w", err)
	}
	if err := s.header(SheetParameters, []string{"Parameter", "Value"}); err != nil {
		return err
	}
	rows := []Param{
		{Name: "scan_id", Value: s.meta.ScanID},
		{Name: "generated_at", Value: s.meta.GeneratedAt.UTC().Format("2006-01-02 15:04:05")},
	}
	rows = append(rows, s.meta.Parameters...)
	for i, p := range rows {
		row := []any{p.Name, p.Value}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := s.f.SetSheetRow(SheetParameters, cell, &row); err != nil {
			return fmt.Errorf("xlsx: parameters: %w", err)
		}
	}
	return nil
}

var _ Sink = (*XLSXSink)(nil)
