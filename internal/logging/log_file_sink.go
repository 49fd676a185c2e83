package logging

import (
	"fmt"
	"os"
	"sync"
)

// logFileSink appends to a single log file and truncates it in place
// once the size cap would be exceeded, so a long-running engine cannot
// fill the disk with its own chatter. The file is opened with O_APPEND,
// so writes after an in-place truncate land back at offset zero.
type logFileSink struct {
	mu       sync.Mutex
	path     string
	maxBytes int64
	file     *os.File
	written  int64
}

func newLogFileSink(path string, maxBytes int64) (*logFileSink, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("log file size cap must be positive, got %d", maxBytes)
	}
	s := &logFileSink{path: path, maxBytes: maxBytes}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *logFileSink) open() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	s.file = f
	s.written = info.Size()
	return nil
}

func (s *logFileSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		if err := s.open(); err != nil {
			return 0, err
		}
	}
	if s.written+int64(len(p)) > s.maxBytes {
		if err := s.file.Truncate(0); err != nil {
			return 0, err
		}
		s.written = 0
	}
	n, err := s.file.Write(p)
	s.written += int64(n)
	return n, err
}

func (s *logFileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
