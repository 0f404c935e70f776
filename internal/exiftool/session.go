package exiftool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

const readyMarker = "{ready}"

// ErrSessionClosed is returned by a Session after Close or a fatal error.
var ErrSessionClosed = errors.New("exiftool: session closed")

// Session keeps one exiftool process running in -stay_open mode and feeds it
// commands over stdin. Commands are serialized.
type Session struct {
	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	closed bool
	logger *slog.Logger
}

// Start launches a stay-open exiftool process.
func (t *Tool) Start(logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cmd := exec.Command(t.Binary, "-stay_open", "True", "-@", "-") //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("exiftool: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("exiftool: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("exiftool: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exiftool: start: %w", err)
	}

	s := &Session{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewScanner(stdout),
		logger: logger.With(slog.String("component", "exiftool")),
	}
	s.stdout.Buffer(make([]byte, 64*1024), 1<<20)

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			s.logger.Warn("exiftool stderr", slog.String("line", sc.Text()))
		}
	}()
	return s, nil
}

// Execute sends one command and returns its stdout up to the ready marker.
// If ctx ends first the process is killed and the session becomes unusable.
func (s *Session) Execute(ctx context.Context, args ...string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrSessionClosed
	}

	var b strings.Builder
	for _, arg := range args {
		b.WriteString(arg)
		b.WriteByte('\n')
	}
	b.WriteString("-execute\n")
	if _, err := io.WriteString(s.stdin, b.String()); err != nil {
		s.closed = true
		return "", fmt.Errorf("exiftool: write command: %w", err)
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		var out strings.Builder
		for s.stdout.Scan() {
			line := s.stdout.Text()
			if strings.HasPrefix(line, readyMarker) {
				done <- result{out: out.String()}
				return
			}
			out.WriteString(line)
			out.WriteByte('\n')
		}
		err := s.stdout.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		done <- result{err: fmt.Errorf("exiftool: read output: %w", err)}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			s.closed = true
		}
		return r.out, r.err
	case <-ctx.Done():
		s.closed = true
		_ = s.cmd.Process.Kill()
		<-done
		return "", ctx.Err()
	}
}

// ReadTags implements Reader.
func (s *Session) ReadTags(ctx context.Context, path string) (map[string]string, error) {
	out, err := s.Execute(ctx, ReadArgs(path)...)
	if err != nil {
		return nil, err
	}
	return ParseTabular(out, ReadTags)
}

// WriteTags implements Writer.
func (s *Session) WriteTags(ctx context.Context, path string, tags []Tag) error {
	out, err := s.Execute(ctx, WriteArgs(path, tags)...)
	if err != nil {
		return err
	}
	return checkUpdated(out)
}

// Close asks exiftool to exit and waits for it.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = s.stdin.Close()
		_ = s.cmd.Wait()
		return nil
	}
	s.closed = true
	if _, err := io.WriteString(s.stdin, "-stay_open\nFalse\n"); err != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.stdin.Close()
	return s.cmd.Wait()
}
