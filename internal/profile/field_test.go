package profile

import (
	"math/rand"
	"strings"
	"testing"
)

func feed(f *Field, values ...string) {
	for _, v := range values {
		f.ProcessValue(v)
	}
}

func TestField_PureIntegers(t *testing.T) {
	t.Parallel()

	f := NewField("id", DefaultOptions())
	feed(f, "1", "2", "3", "", "4")

	if !f.IsInteger() || !f.IsReal() || f.IsDate() {
		t.Fatalf("flags int=%v real=%v date=%v, want true/true/false", f.IsInteger(), f.IsReal(), f.IsDate())
	}
	if f.EmptyCount() != 1 || f.Processed() != 5 {
		t.Fatalf("empty=%d processed=%d, want 1/5", f.EmptyCount(), f.Processed())
	}
	if got := f.TypeDescription(); got != TypeInteger {
		t.Fatalf("TypeDescription() = %q, want %q", got, TypeInteger)
	}
}

func TestField_TypeDescriptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"dates iso", []string{"2020-01-15", "2021-06-01"}, TypeDate},
		{"dates us short", []string{"01/15/20", "12/31/99"}, TypeDate},
		{"mixed garbage", []string{"abc", "123", "2020-01-15"}, TypeVarChar},
		{"reals", []string{"1.5", "2", "-3e2"}, TypeReal},
		{"all empty", []string{"", "  ", ""}, TypeEmpty},
		{"no values", nil, TypeEmpty},
		{"timestamp is not a date", []string{"2020-01-15 10:00:00"}, TypeVarChar},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := NewField("c", DefaultOptions())
			feed(f, tt.values...)
			if got := f.TypeDescription(); got != tt.want {
				t.Fatalf("TypeDescription(%v) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}

func TestField_MixedGarbageClearsAllFlags(t *testing.T) {
	t.Parallel()

	f := NewField("c", DefaultOptions())
	feed(f, "abc", "123", "2020-01-15")
	if f.IsInteger() || f.IsReal() || f.IsDate() {
		t.Fatalf("flags int=%v real=%v date=%v, want all false", f.IsInteger(), f.IsReal(), f.IsDate())
	}
	if f.IsFreeText() {
		t.Fatalf("short values must not be free text")
	}
}

func TestField_TypeFlagsAreMonotonic(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	pool := []string{"1", "2.5", "2020-01-15", "abc", "", "07/04/21", "-8", "x y z", "99999999999999999999"}
	f := NewField("c", DefaultOptions())

	prevInt, prevReal, prevDate := f.IsInteger(), f.IsReal(), f.IsDate()
	for i := 0; i < 2000; i++ {
		f.ProcessValue(pool[rng.Intn(len(pool))])
		if (!prevInt && f.IsInteger()) || (!prevReal && f.IsReal()) || (!prevDate && f.IsDate()) {
			t.Fatalf("type flag went false->true at value %d", i)
		}
		prevInt, prevReal, prevDate = f.IsInteger(), f.IsReal(), f.IsDate()
	}
}

func TestField_FrequencyConservation(t *testing.T) {
	t.Parallel()

	f := NewField("c", DefaultOptions())
	for i := 0; i < 500; i++ {
		f.ProcessValue([]string{"a", "b", " c ", "", "dd"}[i%5])
	}
	if f.IsFreeText() || f.TooManyValues() {
		t.Fatalf("unexpected latch: freeText=%v tooMany=%v", f.IsFreeText(), f.TooManyValues())
	}
	if got, want := f.TotalValueWeight(), f.Processed(); got != want {
		t.Fatalf("sum(valueCounts) = %d, want nProcessed %d", got, want)
	}
	if f.EmptyCount() > f.Processed() {
		t.Fatalf("empty %d > processed %d", f.EmptyCount(), f.Processed())
	}
	// untrimmed values are counted verbatim
	if got := f.ValueCount(" c "); got != 100 {
		t.Fatalf("ValueCount(\" c \") = %d, want 100", got)
	}
}

func freeTextOptions() Options {
	o := DefaultOptions()
	o.FreeTextCheckAt = 3
	o.MinAverageFreeTextLength = 10
	return o
}

func TestField_FreeTextDetection(t *testing.T) {
	t.Parallel()

	f := NewField("notes", freeTextOptions())
	feed(f, "The quick brown fox", "the lazy dog", "A quick test")

	if !f.IsFreeText() {
		t.Fatalf("expected free text after checkpoint (avg length %.1f)", f.AverageLength())
	}
	if got := f.ValueCount("the"); got != 2 {
		t.Fatalf("word count for %q = %d, want 2", "the", got)
	}
	if got := f.ValueCount("quick"); got != 2 {
		t.Fatalf("word count for %q = %d, want 2", "quick", got)
	}

	feed(f, "Quick, QUICK!", "1")
	if !f.IsFreeText() {
		t.Fatalf("free text latch reverted")
	}
	if got := f.ValueCount("quick"); got != 4 {
		t.Fatalf("word count for %q = %d, want 4", "quick", got)
	}
	if got := f.ValueCount("1"); got != 1 {
		t.Fatalf("word count for %q = %d, want 1", "1", got)
	}
	if got := f.TypeDescription(); got != TypeFreeText {
		t.Fatalf("TypeDescription() = %q, want %q", got, TypeFreeText)
	}
}

func TestField_FreeTextPreservesWeights(t *testing.T) {
	t.Parallel()

	f := NewField("notes", freeTextOptions())
	feed(f, "hello wonderful world", "hello wonderful world", "goodbye cruel world")
	if !f.IsFreeText() {
		t.Fatalf("expected free text")
	}
	if got := f.ValueCount("hello"); got != 2 {
		t.Fatalf("hello = %d, want 2", got)
	}
	if got := f.ValueCount("world"); got != 3 {
		t.Fatalf("world = %d, want 3", got)
	}
}

func TestField_ShortValuesNeverFreeText(t *testing.T) {
	t.Parallel()

	f := NewField("code", freeTextOptions())
	feed(f, "ab", "cd", "ef", strings.Repeat("long text ", 50))
	if f.IsFreeText() {
		t.Fatalf("checkpoint passed with short values; must not become free text later")
	}
}

func TestField_TypedValuesNeverFreeText(t *testing.T) {
	t.Parallel()

	f := NewField("amount", freeTextOptions())
	feed(f, "12345678901", "12345678902", "12345678903")
	if f.IsFreeText() {
		t.Fatalf("integer field must not become free text")
	}
}

func TestField_InMemoryCeiling(t *testing.T) {
	t.Parallel()

	o := DefaultOptions()
	o.MaxValues = 2
	o.MaxValuesInMemory = 3
	f := NewField("c", o)
	feed(f, "a", "a", "b", "c")
	if f.TooManyValues() {
		t.Fatalf("ceiling not exceeded yet")
	}
	feed(f, "d")
	if !f.TooManyValues() {
		t.Fatalf("expected TooManyValues after exceeding ceiling")
	}
	got := f.ValueCounts()
	if len(got) != 2 || got[0].Key != "a" || got[1].Key != "b" {
		t.Fatalf("ValueCounts() = %v, want [a b]", got)
	}

	feed(f, "e", "f", "g")
	if !f.TooManyValues() {
		t.Fatalf("TooManyValues latch reverted")
	}
	if f.UniqueCount() > o.MaxValuesInMemory {
		t.Fatalf("distinct keys %d above ceiling %d", f.UniqueCount(), o.MaxValuesInMemory)
	}
}

func TestField_TrimToReportingCeiling(t *testing.T) {
	t.Parallel()

	o := DefaultOptions()
	o.MaxValues = 2
	f := NewField("c", o)
	feed(f, "a", "a", "b", "c", "c", "c")
	f.Trim()

	if got := f.UniqueCount(); got != 3 {
		t.Fatalf("UniqueCount() = %d, want 3 (measured before trim)", got)
	}
	if !f.ValuesTrimmed() {
		t.Fatalf("expected ValuesTrimmed")
	}
	got := f.ValueCounts()
	if len(got) != 2 || got[0].Key != "c" || got[1].Key != "a" {
		t.Fatalf("ValueCounts() = %v, want [c a]", got)
	}

	// second call has no effect
	f.Trim()
	if got := f.UniqueCount(); got != 3 {
		t.Fatalf("UniqueCount() after second Trim = %d, want 3", got)
	}
}

func TestField_NumericStats(t *testing.T) {
	t.Parallel()

	o := DefaultOptions()
	o.NumericStats = true
	f := NewField("n", o)
	feed(f, "1", "2", "3", "4", "5", "")

	st, ok := f.NumericStats()
	if !ok {
		t.Fatalf("expected numeric stats")
	}
	if st.Min != 1 || st.Max != 5 || st.Median != 3 || st.Average < 2.999999 || st.Average > 3.000001 {
		t.Fatalf("stats = %+v, want min=1 max=5 median=3 avg=3", st)
	}
	if !(st.Min <= st.Q1 && st.Q1 <= st.Median && st.Median <= st.Q3 && st.Q3 <= st.Max) {
		t.Fatalf("quartiles out of order: %+v", st)
	}

	txt := NewField("t", o)
	feed(txt, "1", "x")
	if _, ok := txt.NumericStats(); ok {
		t.Fatalf("non-numeric field must not report numeric stats")
	}

	off := NewField("n", DefaultOptions())
	feed(off, "1", "2")
	if _, ok := off.NumericStats(); ok {
		t.Fatalf("numeric stats must be off by default")
	}
}

func TestField_LengthsAndFractions(t *testing.T) {
	t.Parallel()

	f := NewField("c", DefaultOptions())
	feed(f, "ab", "", "abcd", "ab")
	if f.MaxLength() != 4 {
		t.Fatalf("MaxLength() = %d, want 4", f.MaxLength())
	}
	if got := f.AverageLength(); got != 8.0/3.0 {
		t.Fatalf("AverageLength() = %v, want %v", got, 8.0/3.0)
	}
	if got := f.FractionEmpty(); got != 0.25 {
		t.Fatalf("FractionEmpty() = %v, want 0.25", got)
	}
	if got := f.FractionUnique(); got != 0.75 {
		t.Fatalf("FractionUnique() = %v, want 0.75", got)
	}
	// multibyte runes count once
	u := NewField("u", DefaultOptions())
	u.ProcessValue("żółw")
	if u.MaxLength() != 4 {
		t.Fatalf("MaxLength(żółw) = %d, want 4", u.MaxLength())
	}
}
