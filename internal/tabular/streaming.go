package tabular

// streaming.go wraps file readers so multi-gigabyte CSV exports can be
// parsed in constant memory:
//
//   - bomSkippingReader drops the UTF-8 BOM Windows exports prepend
//   - utf8SanitizingReader replaces invalid byte sequences with '?'
//
// wrapReader applies both in the required order (BOM first).

import (
	"io"
	"unicode/utf8"
)

// bomSkippingReader skips a leading UTF-8 BOM (0xEF 0xBB 0xBF) if present.
type bomSkippingReader struct {
	reader  io.Reader
	checked bool
	pending []byte
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{reader: r}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true

		var head [3]byte
		n, err := io.ReadFull(r.reader, head[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n > 0 {
			if n == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
				// BOM found, swallow it
			} else {
				r.pending = append(r.pending, head[:n]...)
			}
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}

	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	return r.reader.Read(p)
}

// utf8SanitizingReader replaces invalid UTF-8 bytes with '?' on the fly.
// Multi-byte sequences split across read boundaries are carried over to the
// next read rather than mangled.
type utf8SanitizingReader struct {
	reader  io.Reader
	pending []byte
}

func newUTF8SanitizingReader(r io.Reader) *utf8SanitizingReader {
	return &utf8SanitizingReader{
		reader:  r,
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8SanitizingReader) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax {
		return 0, io.ErrShortBuffer
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.reader.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}

	// Fast path: pure ASCII needs no inspection.
	if allASCII(p[:n]) {
		return n, err
	}

	return s.sanitize(p[:n], err == io.EOF), err
}

// sanitize rewrites data in place, replacing invalid bytes with '?'.
// Returns the number of bytes kept; an incomplete trailing sequence is moved
// to pending unless we are at EOF.
func (s *utf8SanitizingReader) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])

		if r == utf8.RuneError && size == 1 {
			rest := data[read:]
			if !atEOF && expectedRuneLen(rest[0]) > len(rest) {
				// Possible start of a sequence cut off by the read boundary.
				s.pending = append(s.pending, rest...)
				return write
			}
			// '?' keeps the output the same length as the input, which the
			// in-place rewrite depends on.
			data[write] = '?'
			write++
			read++
			continue
		}

		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

func allASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// expectedRuneLen returns the sequence length implied by a UTF-8 lead byte,
// or 0 for a bare continuation byte.
func expectedRuneLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// wrapReader prepares a raw file reader for CSV parsing: BOM stripped first,
// then invalid UTF-8 sanitized.
func wrapReader(r io.Reader) io.Reader {
	return newUTF8SanitizingReader(newBOMSkippingReader(r))
}
