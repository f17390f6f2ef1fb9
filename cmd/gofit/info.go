package main

import (
	"fmt"

	"github.com/philipparndt/gofit/pkg/analysis"
	"github.com/philipparndt/gofit/pkg/asset"
	"github.com/spf13/cobra"
)

var infoEdges int

var infoCmd = &cobra.Command{
	Use:   "info [file]",
	Short: "Display general information about a model file",
	Long:  "Show format, detected shape, bounding box, dimensions, triangle count, surface area and edge statistics.",
	Args:  cobra.ExactArgs(1),
	Run:   runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().IntVarP(&infoEdges, "edges", "e", 0, "Also list the N longest edges")
}

func runInfo(cmd *cobra.Command, args []string) {
	filename := args[0]

	a, err := asset.Load(filename)
	if err != nil {
		fail("%v", err)
	}

	result, err := analysis.AnalyzeAsset(a)
	if err != nil {
		fail("%v", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, "Model Information")
	fmt.Fprintln(w, "=================")
	fmt.Fprintf(w, "File: %s\n", filename)
	fmt.Fprintf(w, "Model: %s\n", a.Describe())
	if m := a.Model(); m != nil && m.Name != "" {
		fmt.Fprintf(w, "Solid: %s\n", m.Name)
	}
	fmt.Fprintf(w, "Format: %s\n", result.Format)
	fmt.Fprintf(w, "Shape: %s\n\n", result.Shape)

	fmt.Fprintln(w, "Model Statistics:")
	fmt.Fprintf(w, "  Triangles: %d\n", result.TriangleCount)
	fmt.Fprintf(w, "  Edges: %d\n", result.EdgeCount)
	fmt.Fprintf(w, "  Surface Area: %.6f m²\n\n", result.SurfaceArea)

	fmt.Fprintln(w, "Bounding Box:")
	fmt.Fprintf(w, "  Min: %s\n", analysis.FormatVector(result.BoundingBox.Min))
	fmt.Fprintf(w, "  Max: %s\n", analysis.FormatVector(result.BoundingBox.Max))
	fmt.Fprintf(w, "  Center: %s\n\n", analysis.FormatVector(result.BoundingBox.Center()))

	fmt.Fprintln(w, "Dimensions:")
	fmt.Fprintf(w, "  Width (X): %s\n", analysis.FormatMeasurement(result.Dimensions.X, "m"))
	fmt.Fprintf(w, "  Height (Y): %s\n", analysis.FormatMeasurement(result.Dimensions.Y, "m"))
	fmt.Fprintf(w, "  Depth (Z): %s\n", analysis.FormatMeasurement(result.Dimensions.Z, "m"))
	fmt.Fprintf(w, "  Size: %s\n", analysis.FormatCentimeters(result.Dimensions))
	fmt.Fprintf(w, "  Diagonal: %s\n\n", analysis.FormatMeasurement(result.BoundingBox.Diagonal(), "m"))

	fmt.Fprintln(w, "Edge Lengths:")
	fmt.Fprintf(w, "  Minimum: %.6f m\n", result.MinEdgeLength)
	fmt.Fprintf(w, "  Maximum: %.6f m\n", result.MaxEdgeLength)
	fmt.Fprintf(w, "  Average: %.6f m\n", result.AvgEdgeLength)

	if infoEdges > 0 {
		edges := analysis.FindLongestEdges(result, infoEdges)
		fmt.Fprintf(w, "\nTop %d Longest Edges:\n", len(edges))
		for i, edge := range edges {
			fmt.Fprintf(w, "  %d. %.6f m  %s -> %s\n", i+1, edge.Length,
				analysis.FormatVector(edge.Start), analysis.FormatVector(edge.End))
		}
	}
}
