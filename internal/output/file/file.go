// Package file writes canopy records as NDJSON, one file per record kind.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hejijunhao/canopy/internal/output"
)

const (
	defaultBufSize = 64 * 1024
	maxRotated     = 10 // keep {path}.1 through {path}.10
)

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize sets the size in bytes at which an append-only stream rotates.
// 0 (default) disables size rotation.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithBufSize sets the per-stream write buffer. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// PathFor returns the file a record kind is written to: suggestions go to
// path itself, other kinds to a sibling named after the kind, so out.jsonl
// gets out.reports.jsonl and out.runs.jsonl.
func PathFor(path, kind string) string {
	if kind == output.KindSuggestions || kind == "" {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + kind + "s" + ext
}

// Output routes records to per-kind NDJSON streams, opened on first use.
// Suggestion and run streams are append-only logs that rotate by size.
// The report stream is a snapshot: reports are regenerated wholesale, so the
// first report written through an Output rotates the previous export away
// and the file always holds one complete set.
type Output struct {
	mu        sync.Mutex
	path      string
	verbosity output.Verbosity
	maxSize   int64
	bufSize   int
	streams   map[string]*stream
}

// New creates a file output rooted at path. The directory must exist.
func New(path string, verbosity output.Verbosity, opts ...Option) (*Output, error) {
	if info, err := os.Stat(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("file output: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("file output: %s is not a directory", filepath.Dir(path))
	}
	o := &Output{
		path:      path,
		verbosity: verbosity,
		bufSize:   defaultBufSize,
		streams:   make(map[string]*stream),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Write appends rec to the stream of its kind.
func (o *Output) Write(_ context.Context, rec output.Record) error {
	data, err := json.Marshal(output.FormatRecord(rec, o.verbosity))
	if err != nil {
		return fmt.Errorf("file output: marshal %s %s: %w", rec.Kind, rec.ID, err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.stream(rec.Kind)
	if err != nil {
		return err
	}
	if o.maxSize > 0 && s.size > 0 && s.size+int64(len(data)) > o.maxSize {
		if err := s.rotate(o.bufSize); err != nil {
			return fmt.Errorf("file output: rotate %s: %w", s.path, err)
		}
	}
	if err := s.write(data); err != nil {
		return fmt.Errorf("file output: write %s: %w", s.path, err)
	}
	return nil
}

// Close flushes and closes every open stream.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	kinds := make([]string, 0, len(o.streams))
	for k := range o.streams {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	var errs []error
	for _, k := range kinds {
		if err := o.streams[k].close(); err != nil {
			errs = append(errs, fmt.Errorf("file output: close %s: %w", o.streams[k].path, err))
		}
	}
	o.streams = make(map[string]*stream)
	return errors.Join(errs...)
}

func (o *Output) stream(kind string) (*stream, error) {
	if s, ok := o.streams[kind]; ok {
		return s, nil
	}
	s := &stream{path: PathFor(o.path, kind)}
	if kind == output.KindReport {
		if info, err := os.Stat(s.path); err == nil && info.Size() > 0 {
			if err := shift(s.path); err != nil {
				return nil, fmt.Errorf("file output: rotate %s: %w", s.path, err)
			}
		}
	}
	if err := s.open(o.bufSize); err != nil {
		return nil, fmt.Errorf("file output: %w", err)
	}
	o.streams[kind] = s
	return s, nil
}

// stream is one open NDJSON file.
type stream struct {
	path string
	f    *os.File
	w    *bufio.Writer
	size int64
}

func (s *stream) open(bufSize int) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	s.f, s.w, s.size = f, bufio.NewWriterSize(f, bufSize), info.Size()
	return nil
}

func (s *stream) write(data []byte) error {
	n, err := s.w.Write(data)
	s.size += int64(n)
	return err
}

func (s *stream) rotate(bufSize int) error {
	if err := s.close(); err != nil {
		return err
	}
	if err := shift(s.path); err != nil {
		return err
	}
	return s.open(bufSize)
}

func (s *stream) close() error {
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}

// shift renames path to path.1, moving older generations up one and
// dropping the oldest beyond maxRotated.
func shift(path string) error {
	for i := maxRotated - 1; i >= 1; i-- {
		os.Rename(fmt.Sprintf("%s.%d", path, i), fmt.Sprintf("%s.%d", path, i+1)) // may not exist
	}
	return os.Rename(path, path+".1")
}
