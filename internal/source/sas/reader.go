package sas

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/kshedden/datareader"

	"datascan/internal/source"
)

// fileReader adapts a datareader SAS7BDAT decoder to chunkReader.
type fileReader struct {
	sas  *datareader.SAS7BDAT
	cols []source.Column
	read int
}

func openFile(path string) (chunkReader, io.Closer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	sas, err := datareader.NewSAS7BDATReader(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	sas.ConvertDates = true
	sas.TrimStrings = true

	names := sas.ColumnNames()
	types := sas.ColumnTypes()
	var labels []string
	if l, ok := any(sas).(interface{ ColumnLabels() []string }); ok {
		labels = l.ColumnLabels()
	}

	cols := make([]source.Column, len(names))
	for i, name := range names {
		cols[i] = source.Column{Name: name}
		if i < len(labels) {
			cols[i].Label = labels[i]
		}
		if i < len(types) {
			switch types[i] {
			case datareader.SASNumericType:
				cols[i].DeclaredType = "numeric"
			case datareader.SASStringType:
				cols[i].DeclaredType = "character"
			}
		}
	}
	return &fileReader{sas: sas, cols: cols}, f, nil
}

func (fr *fileReader) columns() []source.Column { return fr.cols }

func (fr *fileReader) rowCount() int64 { return int64(fr.sas.RowCount()) }

func (fr *fileReader) readChunk(n int) ([][]string, error) {
	if fr.read >= fr.sas.RowCount() {
		return nil, io.EOF
	}
	series, err := fr.sas.Read(n)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, io.EOF
	}

	out := make([][]string, len(series))
	rows := 0
	for i, s := range series {
		if s == nil {
			continue
		}
		col, err := seriesStrings(s.Data(), s.Missing())
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		out[i] = col
		if len(col) > rows {
			rows = len(col)
		}
	}
	if rows == 0 {
		return nil, io.EOF
	}
	fr.read += rows
	return out, nil
}

// seriesStrings converts a decoded column. Missing entries become "".
func seriesStrings(data any, missing []bool) ([]string, error) {
	var out []string
	switch d := data.(type) {
	case []float64:
		out = make([]string, len(d))
		for i, v := range d {
			out[i] = source.Stringify(v)
		}
	case []string:
		out = make([]string, len(d))
		copy(out, d)
	case []time.Time:
		out = make([]string, len(d))
		for i, v := range d {
			out[i] = source.FormatTime(v)
		}
	default:
		return nil, fmt.Errorf("unsupported column data %T", data)
	}
	for i, m := range missing {
		if m && i < len(out) {
			out[i] = ""
		}
	}
	return out, nil
}
