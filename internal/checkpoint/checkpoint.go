// Package checkpoint implements the append-only log of completed downloads.
package checkpoint

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log is an append-only, newline-delimited set of canonical file names.
// It is safe for concurrent use within one process.
type Log struct {
	mu   sync.Mutex
	f    *os.File
	path string
	done map[string]struct{}
}

// Open loads the existing entries at path and opens it for append.
// Failing to open the log for append is fatal to a run.
func Open(path string) (*Log, error) {
	done, err := load(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("checkpoint: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open for append: %w", err)
	}
	return &Log{f: f, path: path, done: done}, nil
}

func load(path string) (map[string]struct{}, error) {
	done := make(map[string]struct{})
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return done, nil
		}
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		done[normalize(line)] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: scan: %w", err)
	}
	return done, nil
}

// normalize reduces legacy "downloads/name.jpg" style entries to the file name.
func normalize(entry string) string {
	return filepath.Base(filepath.Clean(entry))
}

// Contains reports whether name has been recorded as completed.
func (l *Log) Contains(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.done[normalize(name)]
	return ok
}

// Append durably records name as completed. Callers must only append after
// the file itself has been durably written.
func (l *Log) Append(name string) error {
	name = normalize(name)
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.done[name]; ok {
		return nil
	}
	if _, err := l.f.WriteString(name + "\n"); err != nil {
		return fmt.Errorf("checkpoint: append: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("checkpoint: fsync: %w", err)
	}
	l.done[name] = struct{}{}
	return nil
}

// Len returns the number of recorded entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.done)
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
