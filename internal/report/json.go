package report

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Document is the JSON report layout.
type Document struct {
	Meta
	Tables []TableReport `json:"tables"`
}

// JSONSink streams a Document: the header is written up front and each table
// as it arrives, so memory stays bounded by one table.
type JSONSink struct {
	w      *bufio.Writer
	closer io.Closer
	n      int
	closed bool
}

// NewJSONSink creates path and writes the document header.
func NewJSONSink(path string, meta Meta) (*JSONSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("json report: create %s: %w", path, err)
	}
	s, err := NewJSONWriterSink(f, meta)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewJSONWriterSink streams to w. Close does not close w.
func NewJSONWriterSink(w io.Writer, meta Meta) (*JSONSink, error) {
	head, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("json report: meta: %w", err)
	}
	s := &JSONSink{w: bufio.NewWriter(w)}
	// Reopen the meta object and continue it with the tables array.
	s.w.Write(head[:len(head)-1])
	s.w.WriteString(`,"tables":[`)
	return s, nil
}

func (s *JSONSink) WriteTable(ctx context.Context, t TableReport) error {
	if s.closed {
		return fmt.Errorf("json report: write after close")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("json report: table %s: %w", t.Name, err)
	}
	if s.n > 0 {
		s.w.WriteByte(',')
	}
	s.w.WriteByte('\n')
	if _, err := s.w.Write(b); err != nil {
		return fmt.Errorf("json report: table %s: %w", t.Name, err)
	}
	s.n++
	return nil
}

// Close terminates the document and flushes it.
func (s *JSONSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	s.w.WriteString("\n]}\n")
	err := s.w.Flush()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("json report: %w", err)
	}
	return nil
}

var _ Sink = (*JSONSink)(nil)
