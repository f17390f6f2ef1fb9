// Package converter drives an external headless 3D tool to turn a scaled
// model into a USDZ package.
package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Bridge launches the converter tool once per job
type Bridge struct {
	// ToolPath is the converter executable
	ToolPath string
	// ScriptDir receives the temporary control scripts; empty means the OS
	// temp directory
	ScriptDir string
	Log       *zap.Logger
}

// NewBridge creates a bridge for the tool at toolPath
func NewBridge(toolPath, scriptDir string, log *zap.Logger) *Bridge {
	return &Bridge{ToolPath: toolPath, ScriptDir: scriptDir, Log: log}
}

func (b *Bridge) logger() *zap.Logger {
	if b.Log == nil {
		return zap.NewNop()
	}
	return b.Log
}

// NewJob creates a job with absolute paths and a fresh id. Paths must be
// valid UTF-8 to survive the trip through the control script.
func NewJob(input, output string) (Job, error) {
	for _, p := range []string{input, output} {
		if err := checkPath(p); err != nil {
			return Job{}, err
		}
	}
	absInput, err := filepath.Abs(input)
	if err != nil {
		return Job{}, fmt.Errorf("failed to resolve path %s: %w", input, err)
	}
	absOutput, err := filepath.Abs(output)
	if err != nil {
		return Job{}, fmt.Errorf("failed to resolve path %s: %w", output, err)
	}
	return Job{ID: uuid.NewString(), Input: absInput, Output: absOutput}, nil
}

// Available reports whether the tool exists at the configured location
func (b *Bridge) Available() error {
	if b.ToolPath == "" {
		return fmt.Errorf("%w: no tool path configured", ErrToolNotFound)
	}
	info, err := os.Stat(b.ToolPath)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrToolNotFound, b.ToolPath)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrToolNotFound, b.ToolPath)
	}
	return nil
}

// Convert renders input into output. Tool failures are reported in the
// Result; the only error is one wrapping ErrToolNotFound.
func (b *Bridge) Convert(ctx context.Context, input, output string) (Result, error) {
	job, err := NewJob(input, output)
	if err != nil {
		return Result{Output: output, Outcome: ToolReportedFailure, ExitCode: -1, Diagnostic: err.Error()}, nil
	}
	return b.Run(ctx, job)
}

// Run executes a prepared job. The context bounds the tool's run time.
func (b *Bridge) Run(ctx context.Context, job Job) (Result, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	log := b.logger().With(zap.String("job", job.ID))
	result := Result{JobID: job.ID, Output: job.Output, ExitCode: -1}

	if err := b.Available(); err != nil {
		result.Outcome = ToolMissing
		result.Diagnostic = err.Error()
		log.Warn("Converter tool not available", zap.String("tool", b.ToolPath))
		return result, err
	}

	start := time.Now()
	// the tool writes next to the final output and the result is moved into
	// place only once it passed verification, so a failed run leaves an
	// earlier artifact untouched
	staged := stagingPath(job)
	defer func() {
		for _, leftover := range []string{staged, intermediatePath(staged)} {
			if err := os.Remove(leftover); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn("Failed to remove staged output", zap.String("path", leftover), zap.Error(err))
			}
		}
	}()

	scriptJob := job
	scriptJob.Output = staged
	script, err := b.writeScript(scriptJob)
	if err != nil {
		result.Outcome = ToolReportedFailure
		result.Diagnostic = err.Error()
		return finish(result, start), nil
	}
	defer func() {
		if err := os.Remove(script); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to remove control script", zap.String("script", script), zap.Error(err))
		}
	}()

	log.Info("Starting converter",
		zap.String("tool", b.ToolPath),
		zap.String("input", job.Input),
		zap.String("output", job.Output))

	cmd := exec.CommandContext(ctx, b.ToolPath, "--background", "--python", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		result.Outcome = ToolReportedFailure
		result.Diagnostic = diagnostic(err, stderr.String(), stdout.String())
		log.Warn("Converter failed",
			zap.Int("exit_code", result.ExitCode),
			zap.String("stderr", stderr.String()),
			zap.String("stdout", stdout.String()))
		return finish(result, start), nil
	}
	result.ExitCode = 0

	outcome, reason := verifyOutput(ctx, staged)
	result.Outcome = outcome
	if outcome != Succeeded {
		result.Diagnostic = diagnostic(errors.New(reason), stderr.String(), stdout.String())
		log.Warn("Converter output rejected",
			zap.Stringer("outcome", outcome),
			zap.String("reason", reason))
		return finish(result, start), nil
	}

	if err := os.Rename(staged, job.Output); err != nil {
		result.Outcome = OutputMissing
		result.Diagnostic = fmt.Sprintf("failed to move converted output into place: %v", err)
		log.Warn("Converter output not published", zap.Error(err))
		return finish(result, start), nil
	}

	result.Succeeded = true
	log.Info("Converter finished", zap.String("output", job.Output))
	return finish(result, start), nil
}

// stagingPath is the per-job file the tool writes to. It keeps the output's
// extension because the tool picks the container from it.
func stagingPath(job Job) string {
	ext := filepath.Ext(job.Output)
	return strings.TrimSuffix(job.Output, ext) + "." + job.ID + ".partial" + ext
}

func finish(result Result, start time.Time) Result {
	result.Duration = time.Since(start)
	return result
}

// writeScript materializes the control script and closes it before launch
func (b *Bridge) writeScript(job Job) (string, error) {
	content, err := renderScript(job)
	if err != nil {
		return "", fmt.Errorf("failed to render control script: %w", err)
	}

	f, err := os.CreateTemp(b.ScriptDir, "gofit-"+job.ID+"-*.py")
	if err != nil {
		return "", fmt.Errorf("failed to create control script: %w", err)
	}
	name := f.Name()

	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to write control script: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("failed to sync control script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("failed to close control script: %w", err)
	}
	return name, nil
}

// diagnostic keeps the tool output verbatim behind a one-line reason
func diagnostic(reason error, stderr, stdout string) string {
	var msg strings.Builder
	msg.WriteString(reason.Error())
	if stderr != "" {
		msg.WriteString("\nstderr:\n")
		msg.WriteString(stderr)
	}
	if stdout != "" {
		msg.WriteString("\nstdout:\n")
		msg.WriteString(stdout)
	}
	return msg.String()
}
