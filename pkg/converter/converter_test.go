package converter

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeTool writes a shell script that behaves like the converter: it checks
// its arguments, reads OUTPUT_PATH from the control script into $out and then
// runs body
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake converter needs a POSIX shell")
	}

	path := filepath.Join(t.TempDir(), "blender")
	script := strings.Join([]string{
		"#!/bin/sh",
		`[ "$1" = "--background" ] && [ "$2" = "--python" ] || { echo "unexpected arguments: $*" >&2; exit 64; }`,
		`test -f "$3" || { echo "control script missing" >&2; exit 65; }`,
		`out=$(sed -n 's/^OUTPUT_PATH = "\(.*\)"$/\1/p' "$3")`,
		body,
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

// writePackage creates a zip file holding the named entries
func writePackage(t *testing.T, entries ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.usdz")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte("PXR-USDC"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

type fixture struct {
	bridge    *Bridge
	scriptDir string
	input     string
	output    string
}

func newFixture(t *testing.T, tool string) fixture {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "model_resized.glb")
	require.NoError(t, os.WriteFile(input, []byte("glTF"), 0o644))

	scriptDir := t.TempDir()
	return fixture{
		bridge:    NewBridge(tool, scriptDir, nil),
		scriptDir: scriptDir,
		input:     input,
		output:    filepath.Join(dir, "model_resized.usdz"),
	}
}

func (f fixture) assertNoScripts(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.scriptDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "control scripts left behind")
}

// assertArtifacts checks that the output directory holds exactly names
func (f fixture) assertArtifacts(t *testing.T, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Dir(f.output))
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.ElementsMatch(t, names, got)
}

func TestRenderScript(t *testing.T) {
	content, err := renderScript(Job{ID: "1", Input: "/models/chair.glb", Output: `/out/say "hi".usdz`})
	require.NoError(t, err)

	script := string(content)
	assert.Contains(t, script, `INPUT_PATH = "/models/chair.glb"`)
	assert.Contains(t, script, `OUTPUT_PATH = "/out/say \"hi\".usdz"`)
	assert.Contains(t, script, "bpy.ops.wm.read_factory_settings(use_empty=True)")
	assert.Contains(t, script, "bpy.ops.import_scene.gltf(filepath=INPUT_PATH)")
	assert.Contains(t, script, "bpy.ops.wm.usd_export(filepath=OUTPUT_PATH)")

	content, err = renderScript(Job{Input: "/models/part.STL", Output: "/out/part.usdz"})
	require.NoError(t, err)
	assert.Contains(t, string(content), "bpy.ops.import_mesh.stl(filepath=INPUT_PATH)")
}

func TestNewJobMakesPathsAbsolute(t *testing.T) {
	job, err := NewJob("in.glb", "out.usdz")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(job.Input))
	assert.True(t, filepath.IsAbs(job.Output))
	assert.NotEmpty(t, job.ID)
}

func TestNewJobRejectsInvalidUTF8(t *testing.T) {
	_, err := NewJob("/models/caf\xe9.glb", "/out/cafe.usdz")
	assert.ErrorContains(t, err, "not valid UTF-8")
	_, err = NewJob("/models/cafe.glb", "/out/caf\xe9.usdz")
	assert.ErrorContains(t, err, "not valid UTF-8")

	_, err = renderScript(Job{Input: "/models/caf\xe9.glb", Output: "/out/cafe.usdz"})
	assert.Error(t, err)

	job, err := NewJob("/models/café.glb", "/out/café.usdz")
	require.NoError(t, err)
	content, err := renderScript(job)
	require.NoError(t, err)
	assert.Contains(t, string(content), "INPUT_PATH = "+strconv.Quote(job.Input))
}

func TestConvertRejectsInvalidUTF8(t *testing.T) {
	f := newFixture(t, fakeTool(t, "exit 0"))

	result, err := f.bridge.Convert(context.Background(), f.input, filepath.Join(filepath.Dir(f.output), "caf\xe9.usdz"))
	require.NoError(t, err)
	assert.Equal(t, ToolReportedFailure, result.Outcome)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Diagnostic, "not valid UTF-8")
	f.assertNoScripts(t)
}

func TestConvertToolMissing(t *testing.T) {
	f := newFixture(t, filepath.Join(t.TempDir(), "no-such-blender"))

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.ErrorIs(t, err, ErrToolNotFound)
	assert.Equal(t, ToolMissing, result.Outcome)
	assert.False(t, result.Succeeded)
	f.assertNoScripts(t)
}

func TestConvertToolIsDirectory(t *testing.T) {
	f := newFixture(t, t.TempDir())

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.ErrorIs(t, err, ErrToolNotFound)
	assert.Equal(t, ToolMissing, result.Outcome)
}

func TestConvertSucceeds(t *testing.T) {
	pkg := writePackage(t, "model.usdc", "textures/base.png")
	f := newFixture(t, fakeTool(t, `cp "`+pkg+`" "$out"`))

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.NoError(t, err)

	assert.True(t, result.Succeeded, result.Diagnostic)
	assert.Equal(t, Succeeded, result.Outcome)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, f.output, result.Output)
	assert.FileExists(t, f.output)
	f.assertArtifacts(t, "model_resized.glb", "model_resized.usdz")
	f.assertNoScripts(t)
}

func TestConvertToolNotExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("execute permission is not a file mode on windows")
	}
	tool := filepath.Join(t.TempDir(), "blender")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\nexit 0\n"), 0o644))
	f := newFixture(t, tool)

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.Equal(t, ToolReportedFailure, result.Outcome)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Diagnostic, "permission denied")
	f.assertArtifacts(t, "model_resized.glb")
	f.assertNoScripts(t)
}

func TestConvertExitZeroWithoutOutput(t *testing.T) {
	f := newFixture(t, fakeTool(t, "exit 0"))

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.NoError(t, err)
	assert.False(t, result.Succeeded)
	assert.Equal(t, OutputMissing, result.Outcome)
	assert.Equal(t, 0, result.ExitCode)
	f.assertNoScripts(t)
}

func TestConvertFailureKeepsPreviousOutput(t *testing.T) {
	previous, err := os.ReadFile(writePackage(t, "previous.usdc"))
	require.NoError(t, err)

	for name, body := range map[string]string{
		"no output":   "exit 0",
		"tool failed": `echo "partial" > "$out"; exit 1`,
		"not usdz":    `echo "not a package" > "$out"`,
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, fakeTool(t, body))
			require.NoError(t, os.WriteFile(f.output, previous, 0o644))

			result, err := f.bridge.Convert(context.Background(), f.input, f.output)
			require.NoError(t, err)
			assert.False(t, result.Succeeded)

			kept, err := os.ReadFile(f.output)
			require.NoError(t, err)
			assert.Equal(t, previous, kept)
			f.assertArtifacts(t, "model_resized.glb", "model_resized.usdz")
			f.assertNoScripts(t)
		})
	}
}

func TestConvertReplacesPreviousOutput(t *testing.T) {
	pkg := writePackage(t, "model.usdc")
	f := newFixture(t, fakeTool(t, `cp "`+pkg+`" "$out"`))
	require.NoError(t, os.WriteFile(f.output, []byte("old"), 0o644))

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.NoError(t, err)
	require.True(t, result.Succeeded, result.Diagnostic)

	want, err := os.ReadFile(pkg)
	require.NoError(t, err)
	got, err := os.ReadFile(f.output)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestConvertEmptyOutput(t *testing.T) {
	f := newFixture(t, fakeTool(t, `: > "$out"`))

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.NoError(t, err)
	assert.Equal(t, OutputMissing, result.Outcome)
}

func TestConvertToolReportsFailure(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, fakeTool(t, `echo "Error: cannot import file" >&2; echo "Blender 3.6.5"; exit 1`))
	f.bridge.Log = zap.New(core)

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.NoError(t, err)

	assert.False(t, result.Succeeded)
	assert.Equal(t, ToolReportedFailure, result.Outcome)
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, result.Diagnostic, "Error: cannot import file\n")
	assert.Contains(t, result.Diagnostic, "Blender 3.6.5\n")
	f.assertNoScripts(t)

	entries := logs.FilterMessage("Converter failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "Error: cannot import file\n", entries[0].ContextMap()["stderr"])
}

func TestConvertIntermediateSiblingIsNotPromoted(t *testing.T) {
	f := newFixture(t, fakeTool(t, `echo crate > "${out%.usdz}.usdc"`))

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.NoError(t, err)

	assert.False(t, result.Succeeded)
	assert.Equal(t, ToolReportedFailure, result.Outcome)
	assert.Contains(t, result.Diagnostic, "intermediate")
	assert.Contains(t, result.Diagnostic, ".usdc")
	assert.NoFileExists(t, f.output)
	f.assertArtifacts(t, "model_resized.glb")
	f.assertNoScripts(t)
}

func TestConvertOutputNotAPackage(t *testing.T) {
	f := newFixture(t, fakeTool(t, `echo "not a package" > "$out"`))

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.NoError(t, err)
	assert.Equal(t, WrongFormat, result.Outcome)
}

func TestConvertPackageWithoutLayer(t *testing.T) {
	pkg := writePackage(t, "readme.txt")
	f := newFixture(t, fakeTool(t, `cp "`+pkg+`" "$out"`))

	result, err := f.bridge.Convert(context.Background(), f.input, f.output)
	require.NoError(t, err)
	assert.Equal(t, WrongFormat, result.Outcome)
	assert.Contains(t, result.Diagnostic, "no USD layer")
}

func TestConvertHonorsContext(t *testing.T) {
	f := newFixture(t, fakeTool(t, "exec sleep 30"))
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	result, err := f.bridge.Convert(ctx, f.input, f.output)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, ToolReportedFailure, result.Outcome)
	assert.Equal(t, -1, result.ExitCode)
	f.assertNoScripts(t)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "succeeded", Succeeded.String())
	assert.Equal(t, "wrong format", WrongFormat.String())
	assert.Equal(t, "Outcome(42)", Outcome(42).String())
}
