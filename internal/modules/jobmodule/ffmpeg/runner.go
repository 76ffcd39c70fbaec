// Package ffmpeg invokes the external ffmpeg and ffprobe binaries: probing
// uploads, building transcode arguments and tracking engine progress.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// CommandRunner interface for command execution (enables mocking in tests)
type CommandRunner interface {
	// Run executes a command and returns its standard output.
	Run(ctx context.Context, cmd string, args ...string) ([]byte, error)

	// Stream executes a command and calls onLine for every line written to
	// standard error. Carriage returns count as line breaks.
	Stream(ctx context.Context, onLine func(line string), cmd string, args ...string) error
}

// DefaultCommandRunner implements CommandRunner using os/exec
type DefaultCommandRunner struct{}

// Run executes a command using os/exec
func (r *DefaultCommandRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	command := exec.CommandContext(ctx, cmd, args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	out, err := command.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return out, fmt.Errorf("%s failed: %w: %s", cmd, err, lastLines(stderr.String(), 3))
	}
	return out, nil
}

// Stream executes a command and forwards its stderr line by line
func (r *DefaultCommandRunner) Stream(ctx context.Context, onLine func(line string), cmd string, args ...string) error {
	command := exec.CommandContext(ctx, cmd, args...)

	stderr, err := command.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := command.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", cmd, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanLines(stderr, onLine)
	}()

	// Wait closes the pipe, so the scanner must finish first.
	wg.Wait()
	if err := command.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s process failed: %w", cmd, err)
	}
	return nil
}

func scanLines(r io.Reader, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitCRLF)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			onLine(line)
		}
	}
}

// splitCRLF is bufio.ScanLines that also breaks on a bare '\r', which ffmpeg
// uses to redraw its status line.
func splitCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
