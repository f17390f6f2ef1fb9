package analysis

import (
	"fmt"
	"math"
	"sort"

	"github.com/philipparndt/gofit/pkg/asset"
	"github.com/philipparndt/gofit/pkg/geometry"
)

// EdgeInfo contains information about an edge in the model
type EdgeInfo struct {
	Start      geometry.Vector3
	End        geometry.Vector3
	Length     float64
	TriangleID int
}

// MeasurementResult contains the world-space measurements of a model
type MeasurementResult struct {
	Shape         asset.Shape
	Format        asset.Format
	BoundingBox   geometry.BoundingBox
	Dimensions    geometry.Vector3
	Volume        float64
	SurfaceArea   float64
	TriangleCount int
	EdgeCount     int
	MinEdgeLength float64
	MaxEdgeLength float64
	AvgEdgeLength float64
	AllEdges      []EdgeInfo
}

// AnalyzeAsset measures a decoded asset in world space
func AnalyzeAsset(a *asset.Asset) (*MeasurementResult, error) {
	triangles, err := a.Triangles()
	if err != nil {
		return nil, fmt.Errorf("failed to read triangles of %s: %w", a.Path, err)
	}
	bbox, err := a.Bounds()
	if err != nil {
		return nil, fmt.Errorf("failed to compute bounds of %s: %w", a.Path, err)
	}

	result := AnalyzeTriangles(triangles)
	result.Shape = a.Shape()
	result.Format = a.Format()
	result.BoundingBox = bbox
	result.Dimensions = bbox.Size()
	result.Volume = bbox.Volume()
	return result, nil
}

// AnalyzeTriangles performs the triangle and edge statistics
func AnalyzeTriangles(triangles []geometry.Triangle) *MeasurementResult {
	result := &MeasurementResult{
		BoundingBox:   geometry.NewBoundingBox(),
		TriangleCount: len(triangles),
		AllEdges:      make([]EdgeInfo, 0, len(triangles)*3),
	}

	minLength := math.MaxFloat64
	maxLength := 0.0
	totalLength := 0.0

	for i, triangle := range triangles {
		result.SurfaceArea += triangle.Area()
		result.BoundingBox.Extend(triangle.V1)
		result.BoundingBox.Extend(triangle.V2)
		result.BoundingBox.Extend(triangle.V3)

		edges := []struct {
			start, end geometry.Vector3
		}{
			{triangle.V1, triangle.V2},
			{triangle.V2, triangle.V3},
			{triangle.V3, triangle.V1},
		}

		for _, edge := range edges {
			length := edge.start.Distance(edge.end)
			result.AllEdges = append(result.AllEdges, EdgeInfo{
				Start:      edge.start,
				End:        edge.end,
				Length:     length,
				TriangleID: i,
			})

			totalLength += length
			minLength = math.Min(minLength, length)
			maxLength = math.Max(maxLength, length)
		}
	}

	result.Dimensions = result.BoundingBox.Size()
	result.Volume = result.BoundingBox.Volume()
	result.EdgeCount = len(result.AllEdges)
	if result.EdgeCount > 0 {
		result.MinEdgeLength = minLength
		result.MaxEdgeLength = maxLength
		result.AvgEdgeLength = totalLength / float64(result.EdgeCount)
	}

	return result
}

// FindLongestEdges returns the N longest edges in the model
func FindLongestEdges(result *MeasurementResult, count int) []EdgeInfo {
	return sortedEdges(result, count, func(a, b float64) bool { return a > b })
}

// FindShortestEdges returns the N shortest edges in the model
func FindShortestEdges(result *MeasurementResult, count int) []EdgeInfo {
	return sortedEdges(result, count, func(a, b float64) bool { return a < b })
}

func sortedEdges(result *MeasurementResult, count int, less func(a, b float64) bool) []EdgeInfo {
	edges := make([]EdgeInfo, len(result.AllEdges))
	copy(edges, result.AllEdges)

	sort.SliceStable(edges, func(i, j int) bool {
		return less(edges[i].Length, edges[j].Length)
	})

	count = max(0, min(count, len(edges)))
	return edges[:count]
}

// FormatMeasurement formats a measurement with appropriate units
func FormatMeasurement(value float64, unit string) string {
	if unit == "" {
		unit = "units"
	}
	return fmt.Sprintf("%.6f %s", value, unit)
}

// FormatVector formats a 3D vector
func FormatVector(v geometry.Vector3) string {
	return fmt.Sprintf("(%.6f, %.6f, %.6f)", v.X, v.Y, v.Z)
}

// FormatCentimeters formats a size given in meters as centimeters
func FormatCentimeters(v geometry.Vector3) string {
	cm := v.Mul(100)
	return fmt.Sprintf("%.2f x %.2f x %.2f cm", cm.X, cm.Y, cm.Z)
}
