package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/philipparndt/gofit/pkg/converter"
	"github.com/spf13/cobra"
)

var convertTimeout time.Duration

var convertCmd = &cobra.Command{
	Use:   "convert <input> <output.usdz>",
	Short: "Convert a model to USDZ with Blender",
	Args:  cobra.ExactArgs(2),
	Run:   runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().DurationVar(&convertTimeout, "timeout", 10*time.Minute, "Abort the conversion after this long (0 disables)")
}

func runConvert(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if convertTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, convertTimeout)
		defer cancel()
	}

	result, err := newBridge().Convert(ctx, args[0], args[1])
	if errors.Is(err, converter.ErrToolNotFound) {
		fail("%v (set --tool or GOFIT_TOOL_PATH)", err)
	}
	if !result.Succeeded {
		fail("conversion %s\n%s", result.Outcome, result.Diagnostic)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "USDZ: %s (%s)\n", result.Output, result.Duration.Round(time.Millisecond))
}
