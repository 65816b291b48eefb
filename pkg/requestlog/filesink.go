package requestlog

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileSink appends entries to a JSON-lines file with size-based
// rotation. Rotated files are named path.1 (newest) through path.N.
type FileSink struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	size    int64
	maxSize int64
	keep    int
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithMaxSize sets the rotation threshold in bytes. Default 10MB.
func WithMaxSize(n int64) FileSinkOption {
	return func(s *FileSink) { s.maxSize = n }
}

// WithKeep sets how many rotated files are retained. Default 3.
func WithKeep(n int) FileSinkOption {
	return func(s *FileSink) { s.keep = n }
}

// NewFileSink opens (or creates) the log file for appending.
func NewFileSink(path string, opts ...FileSinkOption) (*FileSink, error) {
	s := &FileSink{
		path:    path,
		maxSize: 10 * 1024 * 1024,
		keep:    3,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log sink: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log sink: %w", err)
	}
	s.f = f
	s.size = info.Size()
	return nil
}

// Append writes one entry as a JSON line, rotating first if the file
// has reached the size threshold.
func (s *FileSink) Append(e *Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode log entry: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return fmt.Errorf("log sink %s is closed", s.path)
	}
	if s.size > 0 && s.size+int64(len(data)) > s.maxSize {
		if err := s.rotate(); err != nil {
			return err
		}
	}
	n, err := s.f.Write(data)
	s.size += int64(n)
	if err != nil {
		return fmt.Errorf("write log entry: %w", err)
	}
	return nil
}

// rotate shifts path.N-1 → path.N, path → path.1 and reopens a fresh
// file. Called with the lock held.
func (s *FileSink) rotate() error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close for rotation: %w", err)
	}
	s.f = nil

	if s.keep > 0 {
		os.Remove(fmt.Sprintf("%s.%d", s.path, s.keep))
		for i := s.keep - 1; i >= 1; i-- {
			os.Rename(fmt.Sprintf("%s.%d", s.path, i), fmt.Sprintf("%s.%d", s.path, i+1))
		}
		if err := os.Rename(s.path, s.path+".1"); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("rotate log sink: %w", err)
		}
	} else {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("truncate log sink: %w", err)
		}
	}
	return s.open()
}

// Close flushes and closes the underlying file. Further Appends fail.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

var _ Sink = (*FileSink)(nil)
