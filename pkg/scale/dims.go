package scale

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/philipparndt/gofit/pkg/geometry"
)

// ErrInvalidDims is returned for target dimensions that are not positive finite numbers
var ErrInvalidDims = errors.New("invalid target dimensions")

// Dims are target dimensions in centimeters
type Dims struct {
	Width  float64
	Height float64
	Depth  float64
}

// Validate rejects zero, negative, NaN and infinite dimensions
func (d Dims) Validate() error {
	for _, axis := range []struct {
		name  string
		value float64
	}{
		{"width", d.Width},
		{"height", d.Height},
		{"depth", d.Depth},
	} {
		if math.IsNaN(axis.value) || math.IsInf(axis.value, 0) || axis.value <= 0 {
			return fmt.Errorf("%w: %s must be a positive number, got %v", ErrInvalidDims, axis.name, axis.value)
		}
	}
	return nil
}

// Vector returns the dimensions as a vector in centimeters
func (d Dims) Vector() geometry.Vector3 {
	return geometry.NewVector3(d.Width, d.Height, d.Depth)
}

// Meters converts the dimensions to the native model unit
func (d Dims) Meters() geometry.Vector3 {
	return d.Vector().Mul(0.01)
}

func (d Dims) String() string {
	return fmt.Sprintf("%g,%g,%g", d.Width, d.Height, d.Depth)
}

// ParseDims parses "width,height,depth" in centimeters
func ParseDims(s string) (Dims, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return Dims{}, fmt.Errorf("%w: expected width,height,depth but got %q", ErrInvalidDims, s)
	}

	var values [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return Dims{}, fmt.Errorf("%w: %q is not a number", ErrInvalidDims, strings.TrimSpace(part))
		}
		values[i] = v
	}

	d := Dims{Width: values[0], Height: values[1], Depth: values[2]}
	if err := d.Validate(); err != nil {
		return Dims{}, err
	}
	return d, nil
}
