package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

// Outcome is the three-way result of an extraction attempt.
type Outcome int

const (
	// Success: the archive was recognized and fully expanded.
	Success Outcome = iota
	// Unsupported: the content matches no supported container format.
	Unsupported
	// Protected: the format was recognized but password protection or
	// corruption prevented opening it. Callers should ask the user for a
	// different file rather than retry.
	Protected
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Unsupported:
		return "unsupported"
	case Protected:
		return "protected"
	default:
		return "invalid"
	}
}

// Result describes one extraction.
type Result struct {
	Outcome Outcome
	Format  Format
	// Files lists the extracted paths relative to destDir, in archive order.
	Files []string
	// Err carries the underlying cause for Protected results, for diagnostics.
	Err error
}

// Extract sniffs the archive at localPath and expands it into destDir,
// preserving the archive's internal directory structure. The source file is
// left in place. Re-extracting into the same directory overwrites silently.
//
// Once the content has been positively classified, any failure to open or
// decode it (password prompt, CRC mismatch, truncation) reports Protected:
// at that point the bytes are definitely the claimed format and retrying an
// identical upload cannot help.
func Extract(ctx context.Context, localPath, destDir string) Result {
	format := Sniff(localPath)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return Result{Outcome: Protected, Format: format, Err: fmt.Errorf("create dest dir: %w", err)}
	}

	var (
		files []string
		err   error
	)
	switch format {
	case FormatZip:
		files, err = extractZip(ctx, localPath, destDir)
	case FormatRar:
		files, err = extractRar(ctx, localPath, destDir)
	case FormatSevenZip:
		files, err = extractSevenZip(ctx, localPath, destDir)
	case FormatCSV:
		files, err = stageCSV(localPath, destDir)
	default:
		return Result{Outcome: Unsupported, Format: FormatUnknown}
	}

	if err != nil {
		return Result{Outcome: Protected, Format: format, Err: err}
	}
	return Result{Outcome: Success, Format: format, Files: files}
}

func extractZip(ctx context.Context, localPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(localPath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	var files []string
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if zipEntryEncrypted(&f.FileHeader) {
			return nil, fmt.Errorf("zip entry %q is encrypted", f.Name)
		}
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open zip entry %q: %w", f.Name, err)
		}
		rel, err := writeEntry(destDir, f.Name, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		if rel != "" {
			files = append(files, rel)
		}
	}
	return files, nil
}

// zipEntryEncrypted reports whether the entry's general-purpose flag has the
// encryption bit set. archive/zip cannot decrypt, so such entries always mean
// a password-protected archive.
func zipEntryEncrypted(h *zip.FileHeader) bool {
	return h.Flags&0x1 != 0
}

func extractRar(ctx context.Context, localPath, destDir string) ([]string, error) {
	r, err := rardecode.OpenReader(localPath)
	if err != nil {
		return nil, fmt.Errorf("open rar: %w", err)
	}
	defer r.Close()

	var files []string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hdr, err := r.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read rar entry: %w", err)
		}
		if hdr.IsDir {
			continue
		}

		rel, err := writeEntry(destDir, hdr.Name, r)
		if err != nil {
			return nil, err
		}
		if rel != "" {
			files = append(files, rel)
		}
	}
}

func extractSevenZip(ctx context.Context, localPath, destDir string) ([]string, error) {
	r, err := sevenzip.OpenReader(localPath)
	if err != nil {
		return nil, fmt.Errorf("open 7z: %w", err)
	}
	defer r.Close()

	var files []string
	for _, f := range r.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.FileInfo().IsDir() {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open 7z entry %q: %w", f.Name, err)
		}
		rel, err := writeEntry(destDir, f.Name, rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		if rel != "" {
			files = append(files, rel)
		}
	}
	return files, nil
}

// stageCSV copies a bare tabular file into destDir so the walker finds it
// alongside extracted archive contents.
func stageCSV(localPath, destDir string) ([]string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer src.Close()

	name := filepath.Base(localPath)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		name += ".csv"
	}
	rel, err := writeEntry(destDir, name, src)
	if err != nil {
		return nil, err
	}
	return []string{rel}, nil
}

// writeEntry writes one archive member under destDir, creating intermediate
// directories. Members whose path would escape destDir are skipped (zip-slip
// guard) and reported as an empty relative path.
func writeEntry(destDir, name string, r io.Reader) (string, error) {
	rel := filepath.FromSlash(strings.TrimPrefix(name, "/"))
	if !safeRelPath(rel) {
		return "", nil
	}

	target := filepath.Join(destDir, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("create entry dir: %w", err)
	}

	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create entry %q: %w", rel, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		// A decode or checksum failure mid-copy leaves a truncated file;
		// remove it so the walker never parses half an archive member.
		os.Remove(target)
		return "", fmt.Errorf("write entry %q: %w", rel, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close entry %q: %w", rel, err)
	}
	return rel, nil
}

// safeRelPath rejects member paths that could climb out of the extraction
// root.
func safeRelPath(p string) bool {
	if p == "" || filepath.IsAbs(p) {
		return false
	}
	cleaned := filepath.ToSlash(filepath.Clean(p))
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}
