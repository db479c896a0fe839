// Package tabular turns a directory of extracted files into a stream of
// normalized text records.
//
// The walker discovers CSV files recursively (case-insensitive suffix match),
// parses each in bounded row chunks so multi-gigabyte exports never load into
// memory at once, repairs scientific-notation fields, and hands chunks of
// serialized rows to a caller-supplied sink. A file that fails to parse is
// recorded and skipped; it never aborts the rest of the walk.
package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Delimiter joins the fields of one row into a single record.
const Delimiter = ", "

// DefaultChunkRows is the number of rows parsed per chunk when the caller
// does not configure one. Large enough to amortize per-chunk overhead, small
// enough to bound memory on wide rows.
const DefaultChunkRows = 50000

// contextCheckRows is how often (in rows) cancellation is checked inside a
// single file. Per-row checks are measurable overhead on big files.
const contextCheckRows = 1000

// FileFailure records one CSV file that could not be parsed.
type FileFailure struct {
	Path string
	Err  error
}

// Stats summarizes one walk.
type Stats struct {
	FilesFound  int
	FilesParsed int
	Rows        int64
	Failures    []FileFailure
}

// FilesSkipped returns the number of files dropped due to parse failures.
func (s Stats) FilesSkipped() int {
	return len(s.Failures)
}

// ChunkFunc receives successive chunks of serialized records. Returning an
// error aborts the walk.
type ChunkFunc func(chunk []string) error

// Walker streams normalized records out of a directory tree.
type Walker struct {
	// ChunkRows is the per-chunk row count; DefaultChunkRows when <= 0.
	ChunkRows int
}

// Walk recursively parses every .csv file under root and passes serialized
// records to fn in chunks. Row order within a file is preserved regardless of
// chunk boundaries; no order is defined across files.
//
// Parse failures are contained per file and reported in Stats. The returned
// error is non-nil only for walk-level problems (unreadable root, cancelled
// context, or an error returned by fn).
func (w *Walker) Walk(ctx context.Context, root string, fn ChunkFunc) (Stats, error) {
	chunkRows := w.ChunkRows
	if chunkRows <= 0 {
		chunkRows = DefaultChunkRows
	}

	var stats Stats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".csv") {
			return nil
		}

		stats.FilesFound++

		rows, ferr := w.walkFile(ctx, path, chunkRows, fn)
		if ferr != nil {
			var abort *abortError
			if errors.As(ferr, &abort) {
				return abort.err
			}
			stats.Failures = append(stats.Failures, FileFailure{Path: path, Err: ferr})
			return nil
		}

		stats.FilesParsed++
		stats.Rows += rows
		return nil
	})

	return stats, err
}

// abortError marks errors that must stop the whole walk (sink failures,
// cancellation) as opposed to per-file parse errors, which are contained.
type abortError struct {
	err error
}

func (e *abortError) Error() string { return e.err.Error() }
func (e *abortError) Unwrap() error { return e.err }

// walkFile parses one CSV file in chunks, returning the number of data rows
// emitted. The header row is consumed and never emitted as a record.
//
// The file is fully parsed once before anything reaches the sink: a file
// that breaks mid-stream must contribute zero records, and chunks flushed
// before the breakage cannot be taken back out of the sink.
func (w *Walker) walkFile(ctx context.Context, path string, chunkRows int, fn ChunkFunc) (int64, error) {
	if err := validateCSV(ctx, path); err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(wrapReader(f))
	reader.FieldsPerRecord = -1 // ragged exports are common; rows keep their own width
	reader.ReuseRecord = true

	// Header row. An empty file yields zero records, not an error.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("read header: %w", err)
	}

	var (
		rows  int64
		chunk = make([]string, 0, chunkRows)
	)

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := fn(chunk); err != nil {
			return &abortError{err: err}
		}
		chunk = chunk[:0]
		return nil
	}

	for {
		if rows%contextCheckRows == 0 && ctx.Err() != nil {
			return rows, &abortError{err: ctx.Err()}
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("parse csv: %w", err)
		}

		chunk = append(chunk, Serialize(row))
		rows++

		if len(chunk) >= chunkRows {
			if err := flush(); err != nil {
				return rows, err
			}
		}
	}

	return rows, flush()
}

// validateCSV parses the whole file without emitting anything.
func validateCSV(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(wrapReader(f))
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	for rows := int64(0); ; rows++ {
		if rows%contextCheckRows == 0 && ctx.Err() != nil {
			return &abortError{err: ctx.Err()}
		}
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("parse csv: %w", err)
		}
	}
}

// Serialize repairs a row's fields and joins them into one record. Missing
// fields stay empty strings so downstream substring search never deals with
// null markers.
func Serialize(row []string) string {
	repaired := repairRow(append([]string(nil), row...))
	return strings.Join(repaired, Delimiter)
}
