// Package pipeline runs the scale step and the conversion step for one model
// or a batch of models.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/philipparndt/gofit/pkg/asset"
	"github.com/philipparndt/gofit/pkg/converter"
	"github.com/philipparndt/gofit/pkg/scale"
	"go.uber.org/zap"
)

const (
	DefaultSuffix       = "_resized"
	DefaultSecondaryExt = ".usdz"
)

var (
	// ErrInputMissing is returned when the input model does not exist
	ErrInputMissing = errors.New("input file not found")
	// ErrDuplicateOutput is returned when two batch jobs write to the same directory
	ErrDuplicateOutput = errors.New("duplicate output directory")
)

// Converter produces the secondary artifact from the scaled model
type Converter interface {
	Convert(ctx context.Context, input, output string) (converter.Result, error)
}

// Job describes one model to process
type Job struct {
	Input string
	Dims  scale.Dims
	// OutputDir overrides <dir(input)>/<base><suffix>/; it is not wiped
	OutputDir string
	// Format overrides the primary output format, FormatUnknown keeps the input's
	Format asset.Format
}

// Result of one pipeline run. A failed conversion does not fail the run.
type Result struct {
	JobID     string
	OutputDir string
	Primary   string
	Secondary string
	Scale     *scale.Report

	Conversion    *converter.Result
	ConversionErr error
}

// SecondaryProduced reports whether the converted artifact exists
func (r *Result) SecondaryProduced() bool {
	return r.Conversion != nil && r.Conversion.Succeeded
}

// Runner chains the scaler and the converter
type Runner struct {
	Scaler *scale.Scaler
	// Bridge may be nil to skip conversion
	Bridge       Converter
	Log          *zap.Logger
	Suffix       string
	SecondaryExt string
}

// NewRunner creates a runner with the default output naming
func NewRunner(scaler *scale.Scaler, bridge Converter, log *zap.Logger) *Runner {
	return &Runner{
		Scaler:       scaler,
		Bridge:       bridge,
		Log:          log,
		Suffix:       DefaultSuffix,
		SecondaryExt: DefaultSecondaryExt,
	}
}

func (r *Runner) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// Layout returns the output directory and the primary and secondary paths
// for a job. Without an explicit Format the primary keeps the input's
// extension; inputs with an unknown extension are sniffed so the scaled
// model is written in the format it was read in.
func (r *Runner) Layout(job Job) (dir, primary, secondary string, err error) {
	input, err := filepath.Abs(job.Input)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to resolve path %s: %w", job.Input, err)
	}

	secondaryExt := r.SecondaryExt
	if secondaryExt == "" {
		secondaryExt = DefaultSecondaryExt
	}

	ext := filepath.Ext(input)
	base := strings.TrimSuffix(filepath.Base(input), ext)
	if job.Format != asset.FormatUnknown {
		ext = job.Format.Ext()
	} else if _, err := asset.FormatFromPath(input); err != nil {
		format, err := asset.DetectFormat(input)
		if err != nil {
			return "", "", "", err
		}
		ext = format.Ext()
	}

	if dir, err = r.outputDir(job); err != nil {
		return "", "", "", err
	}
	name := base + r.suffix()
	return dir, filepath.Join(dir, name+ext), filepath.Join(dir, name+secondaryExt), nil
}

func (r *Runner) suffix() string {
	if r.Suffix == "" {
		return DefaultSuffix
	}
	return r.Suffix
}

// outputDir is the job's output directory, <input dir>/<base><suffix> by default
func (r *Runner) outputDir(job Job) (string, error) {
	if job.OutputDir != "" {
		dir, err := filepath.Abs(job.OutputDir)
		if err != nil {
			return "", fmt.Errorf("failed to resolve path %s: %w", job.OutputDir, err)
		}
		return dir, nil
	}
	input, err := filepath.Abs(job.Input)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %s: %w", job.Input, err)
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return filepath.Join(filepath.Dir(input), base+r.suffix()), nil
}

// Run scales the input and converts the scaled model. Only validation and
// scaling errors are returned; conversion problems are recorded in the Result.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	if err := job.Dims.Validate(); err != nil {
		return nil, err
	}
	info, err := os.Stat(job.Input)
	if err != nil || info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrInputMissing, job.Input)
	}

	dir, primary, secondary, err := r.Layout(job)
	if err != nil {
		return nil, err
	}

	result := &Result{JobID: uuid.NewString(), OutputDir: dir, Primary: primary}
	log := r.logger().With(zap.String("job", result.JobID))

	if job.OutputDir == "" {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to clear output directory %s: %w", dir, err)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	log.Info("Scaling model",
		zap.String("input", job.Input),
		zap.String("dims_cm", job.Dims.String()),
		zap.String("output", primary))
	report, err := r.Scaler.ScaleToFit(job.Input, job.Dims, primary)
	if err != nil {
		return nil, err
	}
	result.Scale = report

	if r.Bridge == nil {
		log.Info("No converter configured, skipping secondary output")
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		result.ConversionErr = err
		return result, nil
	}

	conversion, err := r.Bridge.Convert(ctx, primary, secondary)
	result.Conversion = &conversion
	result.ConversionErr = err
	switch {
	case err != nil:
		log.Warn("Conversion unavailable, keeping scaled model only", zap.Error(err))
	case !conversion.Succeeded:
		log.Warn("Conversion failed, keeping scaled model only",
			zap.Stringer("outcome", conversion.Outcome),
			zap.String("diagnostic", conversion.Diagnostic))
	default:
		result.Secondary = secondary
		log.Info("Conversion finished", zap.String("output", secondary))
	}

	return result, nil
}
