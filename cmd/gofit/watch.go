package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"

	"github.com/philipparndt/gofit/internal/logger"
	"github.com/philipparndt/gofit/pkg/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch <input> <width,height,depth>",
	Short: "Re-run the pipeline whenever the input model changes",
	Args:  cobra.ExactArgs(2),
	Run:   runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) {
	job, err := jobFromArgs(args[0], args[1])
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner := newRunner()
	w := cmd.OutOrStdout()

	// runs never overlap, a change during a run waits for it
	var mu sync.Mutex
	run := func(ctx context.Context) {
		mu.Lock()
		defer mu.Unlock()

		result, err := runner.Run(ctx, job)
		if err != nil {
			logger.Log.Error("Pipeline failed", zap.String("input", job.Input), zap.Error(err))
			fmt.Fprintf(w, "Error: %v\n", err)
			return
		}
		printResult(w, result)
	}

	fw, err := watcher.NewFileWatcher(cfg.Watch.Debounce, logger.Log.Named("watcher"))
	if err != nil {
		fail("%v", err)
	}
	if err := fw.Watch([]string{job.Input}, func(string) { run(ctx) }); err != nil {
		fw.Close()
		fail("%v", err)
	}

	run(ctx)
	fmt.Fprintf(w, "Watching %s, press Ctrl+C to stop\n", job.Input)

	if err := fw.Run(ctx); err != nil {
		fail("%v", err)
	}
}
