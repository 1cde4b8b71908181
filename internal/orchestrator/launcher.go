package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
)

// Request names one variation for the run command.
type Request struct {
	Benchmark   string
	Query       string
	Concurrency int
	// Args are extra flags forwarded to the run command.
	Args []string
	// Env is appended to the orchestrator's own environment.
	Env []string
}

// Launcher runs one variation in isolation and returns what it printed on
// stdout together with its exit code.
type Launcher interface {
	Launch(ctx context.Context, req Request) (stdout []byte, code int, err error)
}

// ProcessLauncher starts the run command of this very binary.
type ProcessLauncher struct {
	Executable string
	Stderr     io.Writer
}

func NewProcessLauncher() (*ProcessLauncher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to locate executable: %w", err)
	}
	return &ProcessLauncher{Executable: exe, Stderr: os.Stderr}, nil
}

func (l *ProcessLauncher) args(req Request) []string {
	args := []string{
		"run", req.Benchmark, req.Query,
		"--concurrency", strconv.Itoa(req.Concurrency),
		"--output-format", "json",
	}
	return append(args, req.Args...)
}

func (l *ProcessLauncher) Launch(ctx context.Context, req Request) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, l.Executable, l.args(req)...) //nolint:gosec // executable is this binary
	cmd.Env = append(os.Environ(), req.Env...)
	cmd.Stderr = l.Stderr

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to run %s %s: %w", req.Benchmark, req.Query, err)
	}
	return stdout.Bytes(), 0, nil
}
