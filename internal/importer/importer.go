// Package importer runs the one-shot ingestion pipeline: acquire an archive,
// extract it, normalize the tabular data inside, and load the rows into the
// record store as a fresh generation.
//
// One import runs at a time; concurrent requests are rejected with
// ErrImportInProgress. Searches keep working throughout, reading the
// previous generation until the new one is committed.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/seekdata/seekbot/internal/acquire"
	"github.com/seekdata/seekbot/internal/archive"
	"github.com/seekdata/seekbot/internal/logging"
	"github.com/seekdata/seekbot/internal/store"
	"github.com/seekdata/seekbot/internal/tabular"
)

// Archive taxonomy errors, surfaced so the front-end can tell the user
// whether to fix the file or supply a different one.
var (
	ErrUnsupportedArchive = errors.New("file is not a recognized archive format")
	ErrProtectedArchive   = errors.New("archive is password-protected or corrupted")
)

// StoreError wraps a record store failure. Fatal to the current import; the
// previous generation stays intact because imports build into a staging
// table and only swap on commit.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// Request describes one import source: either a remote URL or an already
// open upload stream with a suggested name.
type Request struct {
	// URL of the archive; used when Upload is nil.
	URL string

	// Upload is the raw payload of a chat file upload.
	Upload io.Reader
	// Name is the upload's suggested file name.
	Name string
	// Size is the upload's total size in bytes, 0 if unknown.
	Size int64
}

// Summary reports one completed import.
type Summary struct {
	ImportID     string
	Format       archive.Format
	ArchiveFiles int
	TabularFiles int
	FilesParsed  int
	FilesSkipped int
	Rows         int64
	Duration     time.Duration
}

// Options configures a Service.
type Options struct {
	StagingDir      string
	WorkDir         string
	ClearWorkDir    bool
	ChunkRows       int
	BatchSize       int
	Timeout         time.Duration
	MaxDownloadSize int64
}

// Service owns the ingestion pipeline.
type Service struct {
	store    *store.Store
	acquirer *acquire.Acquirer
	opts     Options
	limiter  *importLimiter
}

// NewService wires the pipeline around an open store.
func NewService(st *store.Store, opts Options) *Service {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1000
	}
	return &Service{
		store: st,
		acquirer: &acquire.Acquirer{
			StagingDir: opts.StagingDir,
			MaxSize:    opts.MaxDownloadSize,
		},
		opts:    opts,
		limiter: newImportLimiter(),
	}
}

// Store exposes the underlying record store for the query path.
func (s *Service) Store() *store.Store {
	return s.store
}

// Busy reports whether an import is currently running.
func (s *Service) Busy() bool {
	return s.limiter.Active()
}

// Run executes one import end to end and returns its summary. A second
// concurrent call fails immediately with ErrImportInProgress. Acquisition,
// extraction, and store failures abort the import with the cause preserved;
// per-file parse failures only reduce the summary counts.
func (s *Service) Run(ctx context.Context, req Request, sink acquire.Sink) (*Summary, error) {
	if !s.limiter.tryAcquire() {
		return nil, ErrImportInProgress
	}
	defer s.limiter.release()

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	importID := uuid.NewString()
	logger := logging.WithFields(ctx, "import_id", importID)
	start := time.Now()

	// 1. Acquire.
	var (
		localPath string
		err       error
	)
	if req.Upload != nil {
		localPath, err = s.acquirer.SaveUpload(ctx, req.Upload, req.Name, req.Size, sink)
	} else {
		localPath, err = s.acquirer.FetchURL(ctx, req.URL, sink)
	}
	if err != nil {
		logger.Error("acquisition failed", "error", err)
		return nil, err
	}
	logger.Info("archive staged", "path", localPath)

	// 2. Reset the work directory so stale files from earlier imports
	// cannot re-enter the new generation.
	if s.opts.ClearWorkDir {
		if err := os.RemoveAll(s.opts.WorkDir); err != nil {
			return nil, fmt.Errorf("clear work dir: %w", err)
		}
	}
	if err := os.MkdirAll(s.opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}

	// 3. Extract.
	res := archive.Extract(ctx, localPath, s.opts.WorkDir)
	switch res.Outcome {
	case archive.Success:
	case archive.Unsupported:
		return nil, ErrUnsupportedArchive
	case archive.Protected:
		if res.Err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("archive not readable", "format", res.Format.String(), "error", res.Err)
		return nil, fmt.Errorf("%w: %v", ErrProtectedArchive, res.Err)
	}
	logger.Info("archive extracted", "format", res.Format.String(), "files", len(res.Files))

	// 4. Normalize and load into a fresh generation.
	gen, err := s.store.BeginImport(ctx)
	if err != nil {
		return nil, &StoreError{Op: "begin import", Err: err}
	}

	walker := &tabular.Walker{ChunkRows: s.opts.ChunkRows}
	stats, err := walker.Walk(ctx, s.opts.WorkDir, func(chunk []string) error {
		for start := 0; start < len(chunk); start += s.opts.BatchSize {
			end := start + s.opts.BatchSize
			if end > len(chunk) {
				end = len(chunk)
			}
			if err := gen.Insert(ctx, chunk[start:end]); err != nil {
				return &StoreError{Op: "insert", Err: err}
			}
		}
		return nil
	})
	if err != nil {
		gen.Abort()
		return nil, fmt.Errorf("load records: %w", err)
	}

	if err := gen.Commit(ctx); err != nil {
		gen.Abort()
		return nil, &StoreError{Op: "commit", Err: err}
	}

	for _, failure := range stats.Failures {
		logger.Warn("tabular file skipped", "path", failure.Path, "error", failure.Err)
	}

	summary := &Summary{
		ImportID:     importID,
		Format:       res.Format,
		ArchiveFiles: len(res.Files),
		TabularFiles: stats.FilesFound,
		FilesParsed:  stats.FilesParsed,
		FilesSkipped: stats.FilesSkipped(),
		Rows:         stats.Rows,
		Duration:     time.Since(start),
	}
	logger.Info("import complete",
		"format", summary.Format.String(),
		"archive_files", summary.ArchiveFiles,
		"tabular_files", summary.TabularFiles,
		"files_skipped", summary.FilesSkipped,
		"rows", summary.Rows,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}
