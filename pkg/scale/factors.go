package scale

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/philipparndt/gofit/pkg/geometry"
)

// Factors computes per-axis scale factors that map current onto target.
// An axis without extent keeps factor 1.
func Factors(current, target geometry.Vector3) geometry.Vector3 {
	factor := func(extent, want float64) float64 {
		if extent > 0 {
			return want / extent
		}
		return 1.0
	}
	return geometry.NewVector3(
		factor(current.X, target.X),
		factor(current.Y, target.Y),
		factor(current.Z, target.Z),
	)
}

// Transform returns the diagonal affine transform for the factors
func Transform(f geometry.Vector3) mgl64.Mat4 {
	return mgl64.Scale3D(f.X, f.Y, f.Z)
}
