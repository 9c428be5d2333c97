package storage

import (
	"fmt"
	"strconv"
	"strings"

	"datascan/internal/profile"
)

// ConvertValue turns a generated string into the Go value a database driver
// expects for c. Empty (or blank) strings become nil.
//
// Errors:
//   - Returns an error when s does not parse as c's logical type.
func ConvertValue(c ColumnSpec, s string) (any, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil, nil
	}
	switch c.Logical {
	case Integer:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %q is not an integer", c.Name, s)
		}
		return n, nil
	case Real:
		x, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, fmt.Errorf("column %s: %q is not a number", c.Name, s)
		}
		return x, nil
	case Date:
		d, ok := profile.ParseDate(t)
		if !ok {
			return nil, fmt.Errorf("column %s: %q is not a date", c.Name, s)
		}
		return d, nil
	default:
		return s, nil
	}
}

// ConvertRows applies ConvertValue to every cell. Rows shorter than the
// column list are padded with nil.
func ConvertRows(t TableSpec, rows [][]string) ([][]any, error) {
	out := make([][]any, len(rows))
	for i, r := range rows {
		vals := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			if j >= len(r) {
				continue
			}
			v, err := ConvertValue(c, r[j])
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			vals[j] = v
		}
		out[i] = vals
	}
	return out, nil
}

// Batches splits n rows into consecutive [start,end) ranges of at most size.
func Batches(n, size int) [][2]int {
	if size < 1 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
