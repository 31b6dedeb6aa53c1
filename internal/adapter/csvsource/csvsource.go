// Package csvsource extracts source rows from delimited text.
package csvsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/case-data-etl/internal/domain"
	"github.com/couchcryptid/case-data-etl/internal/pipeline"
)

// Extractor reads rows from a CSV stream whose first row names the columns.
// It implements pipeline.BatchExtractor.
type Extractor struct {
	r      *csv.Reader
	closer io.Closer
	header []string
	done   bool
}

// NewExtractor reads and validates the header row of r. closer, if not nil,
// is closed by Close.
func NewExtractor(r io.Reader, closer io.Closer) (*Extractor, error) {
	cr := csv.NewReader(r)
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &domain.MalformedRowError{Line: 1, Reason: "missing header"}
	}
	if err != nil {
		return nil, &domain.MalformedRowError{Line: 1, Reason: "unreadable header", Err: err}
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(h)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")
	if err := domain.ValidateHeader(header); err != nil {
		return nil, err
	}
	cr.FieldsPerRecord = len(header)

	return &Extractor{r: cr, closer: closer, header: header}, nil
}

// ExtractBatch returns up to batchSize rows keyed by column name. It returns
// io.EOF with the final, possibly empty, batch.
func (e *Extractor) ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawRecord, error) {
	if e.done {
		return nil, io.EOF
	}

	batch := make([]domain.RawRecord, 0, batchSize)
	for len(batch) < batchSize {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		row, err := e.r.Read()
		if errors.Is(err, io.EOF) {
			e.done = true
			return batch, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return batch, &domain.MalformedRowError{Line: pe.Line, Reason: "unreadable row", Err: err}
			}
			return batch, err
		}

		line, _ := e.r.FieldPos(0)
		fields := make(map[string]string, len(e.header))
		for i, name := range e.header {
			fields[name] = row[i]
		}
		batch = append(batch, domain.RawRecord{Line: line, Fields: fields})
	}
	return batch, nil
}

// Close releases the underlying stream.
func (e *Extractor) Close() error {
	if e.closer == nil {
		return nil
	}
	return e.closer.Close()
}

// File is a pipeline.Source reading a local CSV file on every run.
type File struct {
	Path string
}

// Open opens the file and reads its header.
func (f File) Open(_ context.Context) (pipeline.BatchExtractor, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open source file: %w", err)
	}
	ext, err := NewExtractor(fh, fh)
	if err != nil {
		fh.Close()
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return ext, nil
}
