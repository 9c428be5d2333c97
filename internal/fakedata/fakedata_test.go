package fakedata

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datascan/internal/profile"
	"datascan/internal/report"
	"datascan/internal/storage"
	"datascan/internal/storage/sqlite"
)

func personsReport() report.TableReport {
	return report.TableReport{
		Name:        "persons",
		RowCount:    1000,
		RowsChecked: 1000,
		Fields: []report.FieldReport{
			{Name: "id", Type: profile.TypeInteger, MaxLength: 4, RowCount: 1000, Processed: 1000, UniqueCount: 1000},
			{
				Name: "gender", Type: profile.TypeVarChar, MaxLength: 1, RowCount: 1000, Processed: 1000,
				EmptyCount: 100, FractionEmpty: 0.1, UniqueCount: 3,
				Values: []report.ValueCount{{Value: "F", Count: 500}, {Value: "M", Count: 400}, {Value: "", Count: 100}},
			},
			{
				Name: "age", Type: profile.TypeInteger, MaxLength: 2, RowCount: 1000, Processed: 1000, UniqueCount: 80,
				Values:          []report.ValueCount{{Value: "30", Count: 20}, {Value: report.TruncatedMarker}},
				ValuesTruncated: true,
				Numeric:         &report.Numeric{Min: 18, Max: 90},
			},
			{Name: "born", Type: profile.TypeDate, MaxLength: 10, RowCount: 1000, Processed: 1000, UniqueCount: 900, UniqueAtLeast: true},
			{Name: "unused", Type: profile.TypeEmpty, RowCount: 1000, Processed: 1000, EmptyCount: 1000, FractionEmpty: 1},
			{
				Name: "notes", Type: profile.TypeFreeText, MaxLength: 300, RowCount: 1000, Processed: 1000, AverageLength: 40,
				Values: []report.ValueCount{{Value: "patient", Count: 50}, {Value: "stable", Count: 30}},
			},
		},
	}
}

func TestGenerateShapes(t *testing.T) {
	t.Parallel()

	ds := Generator{Rows: 2000, Seed: 7}.Generate(personsReport())
	require.Equal(t, "persons", ds.Table)
	require.Equal(t, []string{"id", "gender", "age", "born", "unused", "notes"}, ds.Columns)
	require.Len(t, ds.Rows, 2000)

	genders := map[string]int{}
	for i, r := range ds.Rows {
		require.Len(t, r, 6)
		assert.Equal(t, strconv.Itoa(i+1), r[0], "id must be a sequence")

		genders[r[1]]++

		age, err := strconv.Atoi(r[2])
		require.NoError(t, err)
		assert.GreaterOrEqual(t, age, 18)
		assert.LessOrEqual(t, age, 90)

		_, ok := profile.ParseDate(r[3])
		assert.True(t, ok, "born=%q is not a date", r[3])

		assert.Equal(t, "", r[4])

		assert.GreaterOrEqual(t, len(r[5]), 40)
		for _, w := range strings.Fields(r[5]) {
			assert.Contains(t, []string{"patient", "stable"}, w)
		}
	}

	assert.Len(t, genders, 3, "only F, M and empty are reported for gender")
	assert.InDelta(t, 0.1, float64(genders[""])/2000, 0.04)
	assert.Greater(t, genders["F"], genders["M"])
}

func TestGenerateReproducible(t *testing.T) {
	t.Parallel()

	a := Generator{Rows: 50, Seed: 3}.Generate(personsReport())
	b := Generator{Rows: 50, Seed: 3}.Generate(personsReport())
	c := Generator{Rows: 50, Seed: 4}.Generate(personsReport())
	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Rows, c.Rows)
}

func TestGenerateRowCountFallback(t *testing.T) {
	t.Parallel()

	tr := report.TableReport{Name: "t", RowCount: -1, RowsChecked: 12, Fields: []report.FieldReport{{Name: "x", Type: profile.TypeVarChar, MaxLength: 3}}}
	ds := Generator{}.Generate(tr)
	require.Len(t, ds.Rows, 12)
	for _, r := range ds.Rows {
		assert.Len(t, r[0], 3)
	}

	tr.RowCount = 5
	assert.Len(t, Generator{}.Generate(tr).Rows, 5)
}

func TestRareValuesReplaced(t *testing.T) {
	t.Parallel()

	f := report.FieldReport{
		Name: "code", Type: profile.TypeVarChar, MaxLength: 5, RowCount: 100, Processed: 100, UniqueCount: 40,
		Values:          []report.ValueCount{{Value: "AAAAA", Count: 50}, {Value: report.TruncatedMarker}},
		ValuesTruncated: true,
	}
	ds := Generator{Rows: 4000, Seed: 1}.Generate(report.TableReport{Name: "codes", Fields: []report.FieldReport{f}})

	common := 0
	for _, r := range ds.Rows {
		require.NotEqual(t, report.TruncatedMarker, r[0])
		if r[0] == "AAAAA" {
			common++
		} else {
			assert.Len(t, r[0], 5)
		}
	}
	assert.InDelta(t, 0.5, float64(common)/4000, 0.05)
}

func TestIsKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		f    report.FieldReport
		want bool
	}{
		{name: "unique_integer", f: report.FieldReport{Type: profile.TypeInteger, RowCount: 10, Processed: 10, UniqueCount: 10}, want: true},
		{name: "unique_varchar_unknown_rows", f: report.FieldReport{Type: profile.TypeVarChar, RowCount: -1, Processed: 10, UniqueCount: 10}, want: true},
		{name: "sampled", f: report.FieldReport{Type: profile.TypeInteger, RowCount: 100, Processed: 10, UniqueCount: 10}, want: false},
		{name: "truncated", f: report.FieldReport{Type: profile.TypeInteger, RowCount: 10, Processed: 10, UniqueCount: 10, UniqueAtLeast: true}, want: false},
		{name: "real", f: report.FieldReport{Type: profile.TypeReal, RowCount: 10, Processed: 10, UniqueCount: 10}, want: false},
		{name: "with_empties", f: report.FieldReport{Type: profile.TypeInteger, RowCount: 10, Processed: 10, UniqueCount: 10, EmptyCount: 1}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, isKey(tt.f))
		})
	}
}

func TestLoadIntoSQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	w, err := sqlite.New(ctx, storage.Config{Path: filepath.Join(t.TempDir(), "fake.db")})
	require.NoError(t, err)
	defer w.Close()

	tr := personsReport()
	ds := Generator{Rows: 250, Seed: 11}.Generate(tr)
	n, err := Load(ctx, w, tr, ds, 100)
	require.NoError(t, err)
	assert.EqualValues(t, 250, n)

	var count, maxID int
	require.NoError(t, w.DB().QueryRowContext(ctx, `SELECT COUNT(*), MAX(id) FROM persons`).Scan(&count, &maxID))
	assert.Equal(t, 250, count)
	assert.Equal(t, 250, maxID)
}

func TestLoadRolledOverDates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f := profile.NewField("d", profile.Options{})
	for i := 0; i < 20; i++ {
		f.ProcessValue("2020-02-31")
	}
	f.SetRowCount(20)
	f.Trim()
	tr := report.TableReport{
		Name:     "events",
		RowCount: 20,
		Fields:   []report.FieldReport{report.BuildField(f, report.BuildOptions{ScanValues: true, MinCellCount: 5, MaxValues: 100})},
	}
	require.Equal(t, profile.TypeDate, tr.Fields[0].Type)

	w, err := sqlite.New(ctx, storage.Config{Path: filepath.Join(t.TempDir(), "fake.db")})
	require.NoError(t, err)
	defer w.Close()

	ds := Generator{Rows: 10, Seed: 3}.Generate(tr)
	assert.Equal(t, "2020-02-31", ds.Rows[0][0])
	n, err := Load(ctx, w, tr, ds, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 10, n)

	var got string
	require.NoError(t, w.DB().QueryRowContext(ctx, `SELECT MIN(d) FROM events`).Scan(&got))
	assert.Equal(t, "2020-03-02", got)
}
