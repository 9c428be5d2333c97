package storage

import (
	"strings"

	"datascan/internal/profile"
	"datascan/internal/report"
)

// Logical is the backend-independent type of a generated column.
type Logical string

const (
	Integer Logical = "integer"
	Real    Logical = "real"
	Date    Logical = "date"
	Text    Logical = "text"
)

// TableSpec describes a table to create and load.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// ColumnSpec describes one generated column.
type ColumnSpec struct {
	Name    string
	Logical Logical
	// Length is the maximum value length for text columns. Zero means
	// unbounded.
	Length int
}

// ColumnNames returns the column names in order.
func (t TableSpec) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// SpecFromReport derives the destination layout of a scanned table.
//
// Profiled type descriptions map to logical types; anything else (free text,
// empty fields, declared types of a structure-only scan) becomes text.
func SpecFromReport(t report.TableReport) TableSpec {
	spec := TableSpec{Name: t.Name, Columns: make([]ColumnSpec, 0, len(t.Fields))}
	for _, f := range t.Fields {
		c := ColumnSpec{Name: f.Name, Logical: logicalFor(f.Type)}
		if c.Logical == Text && f.Type != profile.TypeFreeText {
			c.Length = f.MaxLength
		}
		spec.Columns = append(spec.Columns, c)
	}
	return spec
}

func logicalFor(typ string) Logical {
	switch typ {
	case profile.TypeInteger:
		return Integer
	case profile.TypeReal:
		return Real
	case profile.TypeDate:
		return Date
	}
	switch strings.ToUpper(typ) {
	case "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "INT2", "INT4", "INT8":
		return Integer
	case "REAL", "FLOAT", "DOUBLE", "FLOAT4", "FLOAT8", "NUMERIC", "DECIMAL":
		return Real
	case "DATE":
		return Date
	}
	return Text
}
