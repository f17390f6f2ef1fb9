package main

import (
	"fmt"

	"github.com/philipparndt/gofit/pkg/scale"
	"github.com/spf13/cobra"
)

var scaleCmd = &cobra.Command{
	Use:   "scale <input> <width,height,depth> <output>",
	Short: "Scale a model to the given dimensions without converting it",
	Long: `Scale a GLB, glTF or STL model so its bounding box matches the given
dimensions in centimeters. The output format follows the output extension,
so this also converts between glTF and STL.`,
	Args: cobra.ExactArgs(3),
	Run:  runScale,
}

func init() {
	rootCmd.AddCommand(scaleCmd)
}

func runScale(cmd *cobra.Command, args []string) {
	dims, err := scale.ParseDims(args[1])
	if err != nil {
		fail("%v", err)
	}

	report, err := newScaler().ScaleToFit(args[0], dims, args[2])
	if err != nil {
		fail("%v", err)
	}

	printReport(cmd.OutOrStdout(), report)
	fmt.Fprintf(cmd.OutOrStdout(), "Scaled model: %s\n", report.Output)
}
