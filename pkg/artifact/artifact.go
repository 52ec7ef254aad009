// Package artifact implements the file formats exchanged between pipeline
// stages: streaming JSON arrays for record sets and plain UTF-8 text for
// summaries and reports.
package artifact

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Stage suffixes appended to the base name of the raw artifact.
const (
	SuffixCleaned  = "_level_1_cleaned.json"
	SuffixFiltered = "_level_2_filtered.json"
	SuffixSummary  = "_level_3_summary.txt"
)

// ErrClosed is returned when writing to a committed or aborted writer.
var ErrClosed = errors.New("artifact writer is closed")

// BaseName strips directory and extension: "dir/20240101_parsed.json" -> "20240101_parsed".
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Writer streams items into a JSON array file. Nothing written before Commit
// is considered valid output; Abort removes the file.
type Writer[T any] struct {
	path   string
	f      *os.File
	buf    *bufio.Writer
	enc    *json.Encoder
	count  int
	closed bool
}

// Create opens path for writing and emits the opening bracket.
func Create[T any](path string) (*Writer[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "failed to create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to create %s", path)
	}
	buf := bufio.NewWriter(f)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	w := &Writer[T]{path: path, f: f, buf: buf, enc: enc}
	if _, err := buf.WriteString("[\n"); err != nil {
		w.Abort()
		return nil, eris.Wrapf(err, "failed to write %s", path)
	}
	return w, nil
}

// Path returns the output location.
func (w *Writer[T]) Path() string { return w.path }

// Count returns the number of items written so far.
func (w *Writer[T]) Count() int { return w.count }

// Write appends one item. The caller should Abort on error.
func (w *Writer[T]) Write(item T) error {
	if w.closed {
		return ErrClosed
	}
	if w.count > 0 {
		if _, err := w.buf.WriteString(",\n"); err != nil {
			return eris.Wrapf(err, "failed to write %s", w.path)
		}
	}
	if err := w.enc.Encode(item); err != nil {
		return eris.Wrapf(err, "failed to encode item %d into %s", w.count, w.path)
	}
	w.count++
	// flush per item so a crash keeps every completed record on disk
	if err := w.buf.Flush(); err != nil {
		return eris.Wrapf(err, "failed to flush %s", w.path)
	}
	return nil
}

// Commit closes the array and the file.
func (w *Writer[T]) Commit() error {
	if w.closed {
		return ErrClosed
	}
	if _, err := w.buf.WriteString("]\n"); err != nil {
		w.Abort()
		return eris.Wrapf(err, "failed to finish %s", w.path)
	}
	if err := w.buf.Flush(); err != nil {
		w.Abort()
		return eris.Wrapf(err, "failed to flush %s", w.path)
	}
	w.closed = true
	if err := w.f.Close(); err != nil {
		_ = os.Remove(w.path)
		return eris.Wrapf(err, "failed to close %s", w.path)
	}
	return nil
}

// Abort closes and deletes the partial file. Safe to call more than once.
func (w *Writer[T]) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.f.Close()
	_ = os.Remove(w.path)
}

// Reader yields the items of a JSON array file one by one. It is finite and
// not restartable.
type Reader[T any] struct {
	path string
	f    *os.File
	dec  *json.Decoder
	err  error
	done bool
}

// Open starts reading path and consumes the opening bracket.
func Open[T any](path string) (*Reader[T], error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}
	dec := json.NewDecoder(bufio.NewReader(f))
	tok, err := dec.Token()
	if err != nil {
		f.Close()
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		f.Close()
		return nil, eris.Errorf("%s: expected a JSON array", path)
	}
	return &Reader[T]{path: path, f: f, dec: dec}, nil
}

// Next decodes the following item. It returns false at the end of the array
// or on error; check Err afterwards.
func (r *Reader[T]) Next() (T, bool) {
	var item T
	if r.done {
		return item, false
	}
	if !r.dec.More() {
		r.done = true
		if _, err := r.dec.Token(); err != nil {
			r.err = eris.Wrapf(err, "%s: unterminated array", r.path)
		}
		return item, false
	}
	if err := r.dec.Decode(&item); err != nil {
		r.done = true
		r.err = eris.Wrapf(err, "failed to decode item from %s", r.path)
		return item, false
	}
	return item, true
}

// Err reports the first decoding error.
func (r *Reader[T]) Err() error { return r.err }

// Close releases the file.
func (r *Reader[T]) Close() error {
	return r.f.Close()
}

// ReadAll loads the full array into memory.
func ReadAll[T any](path string) ([]T, error) {
	r, err := Open[T](path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var items []T
	for {
		item, ok := r.Next()
		if !ok {
			break
		}
		items = append(items, item)
	}
	return items, r.Err()
}

// WriteAll writes items as one JSON array, removing the file on failure.
func WriteAll[T any](path string, items []T) error {
	w, err := Create[T](path)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := w.Write(item); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Commit()
}

// WriteText persists a text artifact. The content lands under a temporary
// name first so readers never see a truncated file.
func WriteText(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrapf(err, "failed to create temp file for %s", path)
	}
	// CreateTemp is owner-only; match the mode of the JSON artifacts
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "failed to set mode of %s", path)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "failed to close %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return eris.Wrapf(err, "failed to move %s into place", path)
	}
	return nil
}

// ReadText returns the trimmed content of a text artifact.
func ReadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "failed to read %s", path)
	}
	return strings.TrimSpace(string(data)), nil
}

// Exists reports whether path is an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
