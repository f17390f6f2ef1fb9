package main

import (
	"fmt"
	"os"

	"github.com/philipparndt/gofit/internal/config"
	"github.com/philipparndt/gofit/internal/logger"
	"github.com/philipparndt/gofit/pkg/asset"
	"github.com/philipparndt/gofit/pkg/converter"
	"github.com/philipparndt/gofit/pkg/pipeline"
	"github.com/philipparndt/gofit/pkg/scale"
	"github.com/philipparndt/gofit/version"
	"github.com/spf13/cobra"
)

var (
	flagConfig    string
	flagTool      string
	flagLogLevel  string
	flagLogFile   string
	flagOutputDir string
	flagFormat    string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gofit <input-model-path> <width,height,depth>",
	Short: "Scale 3D models to exact dimensions and convert them to USDZ",
	Long: `gofit scales a GLB, glTF or STL model so its bounding box matches the
given width, height and depth in centimeters, writes the scaled model into
<name>_resized/ next to the input and converts it to USDZ with Blender.

A failed USDZ conversion is reported but does not fail the run.`,
	Version:           version.GetFullVersion(),
	Args:              cobra.ExactArgs(2),
	PersistentPreRunE: setup,
	Run:               runRoot,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagConfig, "config", "", "Path to config file")
	flags.StringVar(&flagTool, "tool", "", "Path to the Blender executable")
	flags.StringVar(&flagLogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.StringVar(&flagLogFile, "log-file", "", "Also write logs to this file")
	flags.StringVarP(&flagOutputDir, "output-dir", "o", "", "Write outputs here instead of <name>_resized/")
	flags.StringVarP(&flagFormat, "format", "f", "", "Output model format (glb, gltf, stl); default keeps the input format")
}

// setup loads the config, applies flag overrides and starts logging
func setup(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagTool != "" {
		loaded.Converter.ToolPath = flagTool
	}
	if flagLogLevel != "" {
		loaded.Logging.Level = flagLogLevel
	}
	if flagLogFile != "" {
		loaded.Logging.LogFile = flagLogFile
	}
	cfg = loaded

	return logger.Init(cfg.Logging.Level, cfg.Logging.LogFile)
}

func newScaler() *scale.Scaler {
	return scale.NewScaler(logger.Log.Named("scale"))
}

func newBridge() *converter.Bridge {
	return converter.NewBridge(cfg.Converter.ToolPath, cfg.Converter.ScriptDir, logger.Log.Named("converter"))
}

func newRunner() *pipeline.Runner {
	r := pipeline.NewRunner(newScaler(), newBridge(), logger.Log.Named("pipeline"))
	r.Suffix = cfg.Output.Suffix
	r.SecondaryExt = cfg.Output.SecondaryExt
	return r
}

// parseFormat maps the --format flag to a model format
func parseFormat(name string) (asset.Format, error) {
	if name == "" {
		return asset.FormatUnknown, nil
	}
	return asset.FormatFromPath("model." + name)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	logger.Sync()
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger.Sync()
}
