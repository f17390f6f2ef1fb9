package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/philipparndt/gofit/pkg/pipeline"
	"github.com/philipparndt/gofit/pkg/scale"
	"github.com/spf13/cobra"
)

var batchConcurrency int

var batchCmd = &cobra.Command{
	Use:   "batch <width,height,depth> <input>...",
	Short: "Scale and convert several models to the same dimensions",
	Long: `Run every input through the full pipeline. Jobs run in parallel and a
failing model does not stop the others. Exits with 1 when any model could not
be scaled.`,
	Args: cobra.MinimumNArgs(2),
	Run:  runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "j", 0, "Number of models processed at once (default from config)")
}

func runBatch(cmd *cobra.Command, args []string) {
	if flagOutputDir != "" {
		fail("--output-dir cannot be used with batch, every model gets its own directory")
	}

	dims, err := scale.ParseDims(args[0])
	if err != nil {
		fail("%v", err)
	}
	format, err := parseFormat(flagFormat)
	if err != nil {
		fail("%v", err)
	}

	jobs := make([]pipeline.Job, 0, len(args)-1)
	for _, input := range args[1:] {
		jobs = append(jobs, pipeline.Job{Input: input, Dims: dims, Format: format})
	}

	concurrency := batchConcurrency
	if concurrency <= 0 {
		concurrency = cfg.Batch.Concurrency
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	items, err := newRunner().RunBatch(ctx, jobs, concurrency)
	if err != nil {
		fail("%v", err)
	}

	w := cmd.OutOrStdout()
	for _, item := range items {
		if item.Err != nil {
			fmt.Fprintf(w, "FAILED %s: %v\n", item.Job.Input, item.Err)
			continue
		}
		secondary := "no usdz"
		if item.Result.SecondaryProduced() {
			secondary = item.Result.Secondary
		}
		fmt.Fprintf(w, "OK     %s -> %s, %s\n", item.Job.Input, item.Result.Primary, secondary)
	}

	failed := pipeline.Failed(items)
	fmt.Fprintf(w, "\n%d of %d models scaled\n", len(items)-len(failed), len(items))
	if len(failed) > 0 {
		os.Exit(1)
	}
}
