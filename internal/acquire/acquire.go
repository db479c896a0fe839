// Package acquire obtains archive bytes — from a remote URL or an uploaded
// stream — and stages them on disk for extraction.
//
// Transfers run in fixed-size chunks so archives sized in the gigabytes never
// occupy memory, with decile progress events emitted along the way when the
// total size is known up front.
package acquire

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// chunkSize is the copy buffer size for staging transfers.
const chunkSize = 256 * 1024

// Error is the acquisition failure taxonomy: network errors, bad status
// codes, and interstitial HTML responses all surface as *Error with the
// underlying cause wrapped.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("acquire %s: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Acquirer stages archive payloads into a local directory.
type Acquirer struct {
	// StagingDir receives the staged files; created on demand.
	StagingDir string

	// MaxSize caps accepted payloads in bytes; 0 means unlimited.
	MaxSize int64

	// Client is the HTTP client for URL fetches; http.DefaultClient-like
	// with a generous timeout when nil.
	Client *http.Client
}

func (a *Acquirer) client() *http.Client {
	if a.Client != nil {
		return a.Client
	}
	return &http.Client{Timeout: 30 * time.Minute}
}

// FetchURL downloads rawURL to the staging directory and returns the local
// path. Cloud-sharing links are normalized to direct-download form first.
//
// A response with unknown length that advertises text/html is rejected:
// large-file hosts serve an HTML confirmation page in exactly that shape,
// and loading it as an archive would silently import garbage.
func (a *Acquirer) FetchURL(ctx context.Context, rawURL string, sink Sink) (string, error) {
	target := NormalizeLink(rawURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", &Error{Source: rawURL, Err: err}
	}

	resp, err := a.client().Do(req)
	if err != nil {
		return "", &Error{Source: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &Error{Source: rawURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	if resp.ContentLength < 0 && isHTML(resp.Header.Get("Content-Type")) {
		return "", &Error{Source: rawURL, Err: fmt.Errorf("response is an HTML page, not a file; the link may need manual confirmation")}
	}

	name := remoteFileName(resp, target)
	local, err := a.stage(ctx, resp.Body, name, resp.ContentLength, sink)
	if err != nil {
		return "", &Error{Source: rawURL, Err: err}
	}
	return local, nil
}

// SaveUpload stages an already-open payload (a chat file upload) under the
// suggested name. total may be 0 when the size is unknown; progress events
// are then suppressed.
func (a *Acquirer) SaveUpload(ctx context.Context, r io.Reader, name string, total int64, sink Sink) (string, error) {
	local, err := a.stage(ctx, r, name, total, sink)
	if err != nil {
		return "", &Error{Source: name, Err: err}
	}
	return local, nil
}

// stage streams r to a uniquely named file in StagingDir, emitting decile
// progress and checking for cancellation between chunks.
func (a *Acquirer) stage(ctx context.Context, r io.Reader, name string, total int64, sink Sink) (string, error) {
	if err := os.MkdirAll(a.StagingDir, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	// uuid prefix keeps concurrent or repeated uploads of the same file
	// from clobbering each other.
	local := filepath.Join(a.StagingDir, uuid.NewString()[:8]+"_"+sanitizeName(name))

	out, err := os.Create(local)
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}

	notifier := newDecileNotifier(sink, total)
	var written int64
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			out.Close()
			os.Remove(local)
			return "", err
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			if a.MaxSize > 0 && written+int64(n) > a.MaxSize {
				out.Close()
				os.Remove(local)
				return "", fmt.Errorf("payload exceeds size limit of %d bytes", a.MaxSize)
			}
			if _, werr := out.Write(buf[:n]); werr != nil {
				out.Close()
				os.Remove(local)
				return "", fmt.Errorf("write staging file: %w", werr)
			}
			written += int64(n)
			notifier.observe(written)
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			out.Close()
			os.Remove(local)
			return "", fmt.Errorf("read payload: %w", rerr)
		}
	}

	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close staging file: %w", err)
	}

	// A transfer that stopped short of the advertised length is a dropped
	// connection the body reader did not flag itself.
	if total > 0 && written < total {
		os.Remove(local)
		return "", fmt.Errorf("transfer truncated at %d of %d bytes", written, total)
	}

	return local, nil
}

func isHTML(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// remoteFileName picks a file name for the staged download: the
// Content-Disposition name when present, then the URL path base, then a
// generic fallback.
func remoteFileName(resp *http.Response, rawURL string) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}

	if u := resp.Request.URL; u != nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			return base
		}
	}

	if base := path.Base(rawURL); base != "" && base != "/" && base != "." {
		return base
	}
	return "download.bin"
}

// sanitizeName strips path components from a client-supplied name so it
// cannot escape the staging directory.
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return "upload.bin"
	}
	return name
}
