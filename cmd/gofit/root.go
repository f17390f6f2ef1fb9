package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/philipparndt/gofit/pkg/analysis"
	"github.com/philipparndt/gofit/pkg/pipeline"
	"github.com/philipparndt/gofit/pkg/scale"
	"github.com/spf13/cobra"
)

func runRoot(cmd *cobra.Command, args []string) {
	job, err := jobFromArgs(args[0], args[1])
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := newRunner().Run(ctx, job)
	if err != nil {
		fail("%v", err)
	}

	printResult(cmd.OutOrStdout(), result)
}

func jobFromArgs(input, dims string) (pipeline.Job, error) {
	d, err := scale.ParseDims(dims)
	if err != nil {
		return pipeline.Job{}, err
	}
	format, err := parseFormat(flagFormat)
	if err != nil {
		return pipeline.Job{}, err
	}
	return pipeline.Job{Input: input, Dims: d, OutputDir: flagOutputDir, Format: format}, nil
}

func printReport(w io.Writer, report *scale.Report) {
	fmt.Fprintf(w, "Model: %s (%s, %s)\n", report.Input, report.Format, report.Shape)
	fmt.Fprintf(w, "  Original: %s\n", analysis.FormatCentimeters(report.Original))
	fmt.Fprintf(w, "  Target:   %s\n", analysis.FormatCentimeters(report.Target))
	fmt.Fprintf(w, "  Factors:  %s\n", analysis.FormatVector(report.Factors))
	fmt.Fprintf(w, "  Final:    %s\n", analysis.FormatCentimeters(report.Final))
}

func printResult(w io.Writer, result *pipeline.Result) {
	printReport(w, result.Scale)
	fmt.Fprintf(w, "Scaled model: %s\n", result.Primary)

	switch {
	case result.SecondaryProduced():
		fmt.Fprintf(w, "USDZ: %s\n", result.Secondary)
	case result.ConversionErr != nil:
		fmt.Fprintf(w, "USDZ: skipped (%v)\n", result.ConversionErr)
	case result.Conversion != nil:
		fmt.Fprintf(w, "USDZ: failed (%s)\n", result.Conversion.Outcome)
		if result.Conversion.Diagnostic != "" {
			fmt.Fprintln(w, result.Conversion.Diagnostic)
		}
	}
}
