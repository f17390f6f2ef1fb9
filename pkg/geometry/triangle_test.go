package geometry

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestTriangleArea(t *testing.T) {
	// Create a right triangle with sides 3, 4, 5
	tri := NewTriangle(
		NewVector3(0, 0, 1),
		NewVector3(0, 0, 0),
		NewVector3(3, 0, 0),
		NewVector3(0, 4, 0),
	)

	area := tri.Area()
	expected := 6.0 // (3 * 4) / 2 = 6

	if math.Abs(area-expected) > 1e-10 {
		t.Errorf("Area failed: expected %v, got %v", expected, area)
	}
}

func TestTriangleCenter(t *testing.T) {
	tri := NewTriangle(
		NewVector3(0, 0, 1),
		NewVector3(0, 0, 0),
		NewVector3(3, 0, 0),
		NewVector3(0, 3, 0),
	)

	center := tri.Center()
	expected := NewVector3(1, 1, 0)

	if center != expected {
		t.Errorf("Center failed: expected %v, got %v", expected, center)
	}
}

func TestTriangleTransformScalesVertices(t *testing.T) {
	tri := NewTriangle(
		NewVector3(0, 0, 1),
		NewVector3(0, 0, 0),
		NewVector3(2, 0, 0),
		NewVector3(0, 2, 0),
	)

	scaled := tri.Transform(mgl64.Scale3D(0.5, 2, 1))

	if scaled.V2 != NewVector3(1, 0, 0) {
		t.Errorf("V2 failed: expected (1,0,0), got %v", scaled.V2)
	}
	if scaled.V3 != NewVector3(0, 4, 0) {
		t.Errorf("V3 failed: expected (0,4,0), got %v", scaled.V3)
	}
	if math.Abs(scaled.Area()-2.0) > 1e-10 {
		t.Errorf("Area failed: expected 2, got %v", scaled.Area())
	}
}

func TestTriangleTransformRecomputesNormal(t *testing.T) {
	// Sloped facet: normal must stay perpendicular after a non-uniform stretch
	tri := NewTriangle(
		NewVector3(0, 0, 0),
		NewVector3(1, 0, 0),
		NewVector3(0, 1, 1),
		NewVector3(0, 0, 0),
	)
	tri.Normal = tri.CalculateNormal()

	scaled := tri.Transform(mgl64.Scale3D(1, 4, 0.25))

	edge := scaled.V3.Sub(scaled.V1)
	if math.Abs(scaled.Normal.Dot(edge)) > 1e-10 {
		t.Errorf("normal not perpendicular to edge: %v . %v", scaled.Normal, edge)
	}
	if math.Abs(scaled.Normal.Length()-1) > 1e-10 {
		t.Errorf("normal not unit length: %v", scaled.Normal.Length())
	}
}
