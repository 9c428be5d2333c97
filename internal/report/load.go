package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Load reads a report written by JSONSink (.json) or XLSXSink (.xlsx).
func Load(path string) (*Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return loadJSON(path)
	case ".xlsx":
		return loadXLSX(path)
	default:
		return nil, fmt.Errorf("load report: unsupported file type %q", filepath.Ext(path))
	}
}

func loadJSON(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	defer f.Close()

	var doc Document
	if err := json.NewDecoder(f).Decode(&doc); err != nil {
		return nil, fmt.Errorf("load report: decode %s: %w", path, err)
	}
	return &doc, nil
}

func loadXLSX(path string) (*Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("load report: open %s: %w", path, err)
	}
	defer f.Close()

	doc := &Document{}
	if err := readParameters(f, &doc.Meta); err != nil {
		return nil, err
	}

	overview, err := f.GetRows(SheetTableOverview)
	if err != nil {
		return nil, fmt.Errorf("load report: %s: %w", SheetTableOverview, err)
	}
	byName := map[string]int{}
	sheets := map[string]string{}
	for _, row := range skipHeader(overview) {
		t := TableReport{
			Name:         cellAt(row, 0),
			Comment:      cellAt(row, 1),
			RowCount:     atoi64(cellAt(row, 2)),
			RowsChecked:  atoi64(cellAt(row, 3)),
			SkippedRows:  atoi64(cellAt(row, 6)),
			StoppedEarly: strings.EqualFold(cellAt(row, 7), "true"),
		}
		byName[t.Name] = len(doc.Tables)
		sheets[t.Name] = cellAt(row, 8)
		doc.Tables = append(doc.Tables, t)
	}

	fields, err := f.GetRows(SheetFieldOverview)
	if err != nil {
		return nil, fmt.Errorf("load report: %s: %w", SheetFieldOverview, err)
	}
	for _, row := range skipHeader(fields) {
		idx, ok := byName[cellAt(row, 0)]
		if !ok {
			return nil, fmt.Errorf("load report: field %q refers to unknown table %q", cellAt(row, 1), cellAt(row, 0))
		}
		doc.Tables[idx].Fields = append(doc.Tables[idx].Fields, parseFieldRow(row))
	}

	for i := range doc.Tables {
		t := &doc.Tables[i]
		if err := readValues(f, sheets[t.Name], t); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

func readParameters(f *excelize.File, meta *Meta) error {
	rows, err := f.GetRows(SheetParameters)
	if err != nil {
		return fmt.Errorf("load report: %s: %w", SheetParameters, err)
	}
	for _, row := range skipHeader(rows) {
		name, value := cellAt(row, 0), cellAt(row, 1)
		switch name {
		case "scan_id":
			meta.ScanID = value
		case "generated_at":
			// Informational only; a malformed timestamp is not worth failing the load.
			if ts, err := parseTimestamp(value); err == nil {
				meta.GeneratedAt = ts
			}
		default:
			meta.Parameters = append(meta.Parameters, Param{Name: name, Value: value})
		}
	}
	return nil
}

func parseFieldRow(row []string) FieldReport {
	fr := FieldReport{
		Name:           cellAt(row, 1),
		Label:          cellAt(row, 2),
		Type:           cellAt(row, 3),
		DeclaredType:   cellAt(row, 4),
		MaxLength:      atoi(cellAt(row, 5)),
		RowCount:       atoi64(cellAt(row, 6)),
		Processed:      atoi64(cellAt(row, 7)),
		FractionEmpty:  atof(cellAt(row, 8)),
		FractionUnique: atof(cellAt(row, 10)),
		AverageLength:  atof(cellAt(row, 11)),
	}
	fr.EmptyCount = int64(fr.FractionEmpty*float64(fr.Processed) + 0.5)

	unique := cellAt(row, 9)
	if strings.HasPrefix(unique, ">=") {
		fr.UniqueAtLeast = true
		unique = strings.TrimSpace(strings.TrimPrefix(unique, ">="))
	}
	fr.UniqueCount = atoi(unique)

	if len(row) > 12 && cellAt(row, 12) != "" {
		fr.Numeric = &Numeric{
			Average: atof(cellAt(row, 12)),
			Stdev:   atof(cellAt(row, 13)),
			Min:     atof(cellAt(row, 14)),
			Q1:      atof(cellAt(row, 15)),
			Median:  atof(cellAt(row, 16)),
			Q3:      atof(cellAt(row, 17)),
			Max:     atof(cellAt(row, 18)),
		}
	}
	return fr
}

// readValues fills the value lists of t from its sheet, matching field
// columns by position.
func readValues(f *excelize.File, sheet string, t *TableReport) error {
	if sheet == "" {
		return nil
	}
	cols, err := f.GetCols(sheet)
	if err != nil {
		return fmt.Errorf("load report: sheet %q: %w", sheet, err)
	}
	for i := range t.Fields {
		vi, ci := 2*i, 2*i+1
		if ci >= len(cols) {
			break
		}
		values, counts := cols[vi], cols[ci]
		fr := &t.Fields[i]
		n := max(len(values), len(counts))
		for r := 1; r < n; r++ {
			v, c := cellAt(values, r), cellAt(counts, r)
			if c == "" {
				// Padding below a shorter column, or the truncation marker.
				if v == TruncatedMarker {
					fr.Values = append(fr.Values, ValueCount{Value: TruncatedMarker})
					fr.ValuesTruncated = true
				}
				continue
			}
			fr.Values = append(fr.Values, ValueCount{Value: v, Count: atoi64(c)})
		}
	}
	return nil
}

func skipHeader(rows [][]string) [][]string {
	if len(rows) == 0 {
		return nil
	}
	return rows[1:]
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}

func atoi64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f
}

func parseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
}
