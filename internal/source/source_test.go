package source

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type stubSource struct{}

func (stubSource) Tables(context.Context) ([]Table, error)                { return nil, nil }
func (stubSource) Open(context.Context, Table, OpenOptions) (Rows, error) { return nil, nil }
func (stubSource) Close() error                                           { return nil }

func TestRegisterAndNew(t *testing.T) {
	Register("stub-test", func(ctx context.Context, cfg Config) (Source, error) {
		if cfg.DSN == "bad" {
			return nil, errors.New("boom")
		}
		return stubSource{}, nil
	})

	if _, err := New(context.Background(), Config{Kind: "stub-test"}); err != nil {
		t.Fatalf("New(stub-test) error = %v, want nil", err)
	}
	if _, err := New(context.Background(), Config{Kind: "stub-test", DSN: "bad"}); err == nil {
		t.Fatalf("New(stub-test, bad) error = nil, want factory error")
	}
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("New(empty kind) error = nil, want error")
	}
	_, err := New(context.Background(), Config{Kind: "nope"})
	if err == nil || !strings.Contains(err.Error(), "unsupported source kind=nope") {
		t.Fatalf("New(nope) error = %v, want unsupported kind", err)
	}

	found := false
	for _, k := range Kinds() {
		if k == "stub-test" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Kinds() = %v, want to contain stub-test", Kinds())
	}
}

func TestRegisterPanics(t *testing.T) {
	f := func(context.Context, Config) (Source, error) { return stubSource{}, nil }
	Register("stub-dup", f)

	tests := []struct {
		name string
		kind string
		f    Factory
	}{
		{"empty kind", "", f},
		{"nil factory", "stub-nil", nil},
		{"duplicate", "stub-dup", f},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Fatalf("Register(%q) did not panic", tt.kind)
				}
			}()
			Register(tt.kind, tt.f)
		})
	}
}

func TestStringify(t *testing.T) {
	t.Parallel()

	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "abc", "abc"},
		{"bytes", []byte("xyz"), "xyz"},
		{"bool", true, "true"},
		{"int64", int64(-42), "-42"},
		{"uint8", uint8(7), "7"},
		{"float integral", 3.0, "3"},
		{"float", 2.5, "2.5"},
		{"float32", float32(0.25), "0.25"},
		{"nan", math.NaN(), ""},
		{"date", time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC), "2021-03-04"},
		{"datetime", time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC), "2021-03-04 05:06:07"},
		{"uuid array", [16]byte(id), id.String()},
		{"uuid", id, id.String()},
		{"valid null string", sql.NullString{String: "v", Valid: true}, "v"},
		{"invalid null string", sql.NullString{}, ""},
		{"null int", sql.NullInt64{Int64: 9, Valid: true}, "9"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Stringify(tt.in); got != tt.want {
				t.Fatalf("Stringify(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
