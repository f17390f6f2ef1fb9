package converter

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"
)

// usdLayerExts are the layer files a USDZ package may carry as its root layer
var usdLayerExts = map[string]bool{
	".usdc": true,
	".usda": true,
	".usd":  true,
}

// intermediatePath is where the tool puts a crate file when it does not
// produce the packaged output
func intermediatePath(output string) string {
	return strings.TrimSuffix(output, filepath.Ext(output)) + ".usdc"
}

// verifyOutput checks that the tool produced the requested artifact. A
// successful exit status alone is not enough.
func verifyOutput(ctx context.Context, output string) (Outcome, string) {
	info, err := os.Stat(output)
	if err != nil {
		if sibling := intermediatePath(output); sibling != output {
			if _, err := os.Stat(sibling); err == nil {
				return ToolReportedFailure, fmt.Sprintf("tool wrote intermediate %s instead of %s", sibling, output)
			}
		}
		return OutputMissing, fmt.Sprintf("tool exited successfully but %s was not created", output)
	}
	if !info.Mode().IsRegular() {
		return WrongFormat, fmt.Sprintf("%s is not a regular file", output)
	}
	if info.Size() == 0 {
		return OutputMissing, fmt.Sprintf("%s is empty", output)
	}

	if strings.EqualFold(filepath.Ext(output), ".usdz") {
		if err := verifyPackage(ctx, output); err != nil {
			return WrongFormat, err.Error()
		}
	}
	return Succeeded, ""
}

// verifyPackage checks that path is a zip package containing a USD layer
func verifyPackage(ctx context.Context, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(path), file)
	if err != nil {
		return fmt.Errorf("%s is not a USDZ package: %w", path, err)
	}
	if _, ok := format.(archives.Zip); !ok {
		return fmt.Errorf("%s is a %s archive, not a USDZ package", path, format.Extension())
	}

	fsys, err := archives.FileSystem(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("failed to open package %s: %w", path, err)
	}

	found := false
	err = fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && usdLayerExts[strings.ToLower(filepath.Ext(name))] {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.SkipAll) {
		return fmt.Errorf("failed to read package %s: %w", path, err)
	}
	if !found {
		return fmt.Errorf("package %s contains no USD layer", path)
	}
	return nil
}
