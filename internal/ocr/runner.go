package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Runner executes the external text tools (pdftotext, pdftoppm, tesseract).
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ToolError is a tool that ran but failed, or could not be started.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Missing reports whether the binary is not installed.
func (e *ToolError) Missing() bool { return errors.Is(e.Err, exec.ErrNotFound) }

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		terr := &ToolError{Tool: name, Stderr: truncate(stderr.String(), 2<<10), Err: err}
		r.logger.Warn("ocr.tool.failed", "tool", name, "elapsed_ms", elapsed, "missing", terr.Missing(), "err", terr)
		return stdout.Bytes(), stderr.Bytes(), terr
	}
	r.logger.Debug("ocr.tool.ok", "tool", name, "elapsed_ms", elapsed, "stdout_bytes", stdout.Len())
	return stdout.Bytes(), stderr.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
