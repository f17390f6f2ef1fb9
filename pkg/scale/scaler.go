// Package scale fits a model's bounding box to target dimensions with one
// non-uniform scale transform.
package scale

import (
	"fmt"

	"github.com/philipparndt/gofit/pkg/asset"
	"github.com/philipparndt/gofit/pkg/geometry"
	"go.uber.org/zap"
)

// Report describes one scaling run; all sizes are in meters
type Report struct {
	Input    string
	Output   string
	Shape    asset.Shape
	Format   asset.Format
	Original geometry.Vector3
	Target   geometry.Vector3
	Factors  geometry.Vector3
	Final    geometry.Vector3
}

// Scaler fits assets to target dimensions
type Scaler struct {
	Log *zap.Logger
}

// NewScaler creates a scaler that reports progress to log
func NewScaler(log *zap.Logger) *Scaler {
	return &Scaler{Log: log}
}

func (s *Scaler) logger() *zap.Logger {
	if s == nil || s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// ScaleToFit loads input, scales it so its bounding box matches dims and
// writes the result to output. Decoding failures are *asset.LoadError,
// write failures *asset.ExportError.
func (s *Scaler) ScaleToFit(input string, dims Dims, output string) (*Report, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	log := s.logger().With(zap.String("input", input))

	a, err := asset.Load(input)
	if err != nil {
		return nil, err
	}
	log.Info("Loaded model",
		zap.String("model", a.Describe()),
		zap.Stringer("format", a.Format()),
		zap.Stringer("shape", a.Shape()))

	report, err := s.Fit(a, dims)
	if err != nil {
		return nil, err
	}

	if err := a.Save(output); err != nil {
		return nil, err
	}
	report.Output = output
	log.Info("Saved scaled model", zap.String("output", output))

	return report, nil
}

// Fit scales an already decoded asset in place
func (s *Scaler) Fit(a *asset.Asset, dims Dims) (*Report, error) {
	if err := dims.Validate(); err != nil {
		return nil, err
	}
	log := s.logger().With(zap.String("input", a.Path))

	before, err := a.Bounds()
	if err != nil {
		return nil, &asset.LoadError{Path: a.Path, Err: err}
	}
	if !before.Min.IsFinite() || !before.Max.IsFinite() {
		return nil, &asset.LoadError{Path: a.Path, Err: fmt.Errorf("model has non-finite vertex coordinates")}
	}

	report := &Report{
		Input:    a.Path,
		Shape:    a.Shape(),
		Format:   a.Format(),
		Original: before.Size(),
		Target:   dims.Meters(),
	}
	log.Info("Original dimensions",
		zap.Float64("x_m", report.Original.X),
		zap.Float64("y_m", report.Original.Y),
		zap.Float64("z_m", report.Original.Z))
	log.Info("Target dimensions",
		zap.String("cm", dims.String()),
		zap.Float64("x_m", report.Target.X),
		zap.Float64("y_m", report.Target.Y),
		zap.Float64("z_m", report.Target.Z))

	report.Factors = Factors(report.Original, report.Target)
	log.Info("Scale factors",
		zap.Float64("x", report.Factors.X),
		zap.Float64("y", report.Factors.Y),
		zap.Float64("z", report.Factors.Z))

	if err := a.Apply(Transform(report.Factors)); err != nil {
		return nil, &asset.LoadError{Path: a.Path, Err: fmt.Errorf("failed to apply scale: %w", err)}
	}

	after, err := a.Bounds()
	if err != nil {
		return nil, &asset.LoadError{Path: a.Path, Err: err}
	}
	report.Final = after.Size()
	final := report.Final.Mul(100)
	log.Info("Final dimensions",
		zap.Float64("x_cm", final.X),
		zap.Float64("y_cm", final.Y),
		zap.Float64("z_cm", final.Z))

	return report, nil
}
