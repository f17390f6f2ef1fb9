package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/philipparndt/gofit/pkg/asset"
	"github.com/philipparndt/gofit/pkg/converter"
	"github.com/philipparndt/gofit/pkg/geometry"
	"github.com/philipparndt/gofit/pkg/scale"
	"github.com/philipparndt/gofit/pkg/stl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverter struct {
	mu     sync.Mutex
	inputs []string
	result converter.Result
	err    error
	write  bool
}

func (f *fakeConverter) Convert(_ context.Context, input, output string) (converter.Result, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()

	if f.write {
		if err := os.WriteFile(output, []byte("PK"), 0o644); err != nil {
			return converter.Result{Outcome: converter.OutputMissing}, nil
		}
	}
	res := f.result
	res.Output = output
	return res, f.err
}

func (f *fakeConverter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func writeModel(t *testing.T, dir, name string) string {
	t.Helper()
	model := stl.NewModel(name)
	o := geometry.Vector3{}
	model.AddTriangle(geometry.NewTriangle(o, o, geometry.NewVector3(2, 0, 0), geometry.NewVector3(2, 1, 0.5)))
	path := filepath.Join(dir, name)
	require.NoError(t, stl.WriteFile(path, model))
	return path
}

var dims = scale.Dims{Width: 100, Height: 50, Depth: 25}

func succeeding() *fakeConverter {
	return &fakeConverter{write: true, result: converter.Result{Succeeded: true, Outcome: converter.Succeeded}}
}

func TestLayout(t *testing.T) {
	r := NewRunner(scale.NewScaler(nil), nil, nil)

	dir, primary, secondary, err := r.Layout(Job{Input: "/models/chair.glb"})
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/models/chair_resized"), dir)
	assert.Equal(t, filepath.FromSlash("/models/chair_resized/chair_resized.glb"), primary)
	assert.Equal(t, filepath.FromSlash("/models/chair_resized/chair_resized.usdz"), secondary)

	_, primary, _, err = r.Layout(Job{Input: "/models/chair.stl", Format: asset.GLB, OutputDir: "/out"})
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/out/chair_resized.glb"), primary)
}

func TestRunProducesBothArtifacts(t *testing.T) {
	dir := t.TempDir()
	input := writeModel(t, dir, "box.stl")
	conv := succeeding()

	result, err := NewRunner(scale.NewScaler(nil), conv, nil).Run(context.Background(), Job{Input: input, Dims: dims})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "box_resized"), result.OutputDir)
	assert.Equal(t, filepath.Join(dir, "box_resized", "box_resized.stl"), result.Primary)
	assert.Equal(t, filepath.Join(dir, "box_resized", "box_resized.usdz"), result.Secondary)
	assert.FileExists(t, result.Primary)
	assert.FileExists(t, result.Secondary)
	assert.True(t, result.SecondaryProduced())
	assert.NotEmpty(t, result.JobID)
	assert.Equal(t, []string{result.Primary}, conv.inputs)
	assert.InDelta(t, 1.0, result.Scale.Final.X, 1e-6)
}

func TestRunKeepsPrimaryWhenConversionFails(t *testing.T) {
	dir := t.TempDir()
	input := writeModel(t, dir, "box.stl")
	conv := &fakeConverter{result: converter.Result{Outcome: converter.ToolReportedFailure, ExitCode: 1, Diagnostic: "boom"}}

	result, err := NewRunner(scale.NewScaler(nil), conv, nil).Run(context.Background(), Job{Input: input, Dims: dims})
	require.NoError(t, err)

	assert.FileExists(t, result.Primary)
	assert.Empty(t, result.Secondary)
	assert.False(t, result.SecondaryProduced())
	require.NotNil(t, result.Conversion)
	assert.Equal(t, "boom", result.Conversion.Diagnostic)
}

func TestRunWithMissingTool(t *testing.T) {
	dir := t.TempDir()
	input := writeModel(t, dir, "box.stl")
	bridge := converter.NewBridge(filepath.Join(dir, "no-blender"), t.TempDir(), nil)

	result, err := NewRunner(scale.NewScaler(nil), bridge, nil).Run(context.Background(), Job{Input: input, Dims: dims})
	require.NoError(t, err)

	assert.ErrorIs(t, result.ConversionErr, converter.ErrToolNotFound)
	assert.Equal(t, converter.ToolMissing, result.Conversion.Outcome)
	assert.FileExists(t, result.Primary)
}

func TestRunWithoutConverter(t *testing.T) {
	input := writeModel(t, t.TempDir(), "box.stl")

	result, err := NewRunner(scale.NewScaler(nil), nil, nil).Run(context.Background(), Job{Input: input, Dims: dims})
	require.NoError(t, err)
	assert.Nil(t, result.Conversion)
	assert.FileExists(t, result.Primary)
}

func TestRunRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	conv := succeeding()
	r := NewRunner(scale.NewScaler(nil), conv, nil)

	_, err := r.Run(context.Background(), Job{Input: filepath.Join(dir, "missing.glb"), Dims: dims})
	assert.ErrorIs(t, err, ErrInputMissing)

	input := writeModel(t, dir, "box.stl")
	_, err = r.Run(context.Background(), Job{Input: input, Dims: scale.Dims{Width: 0, Height: 1, Depth: 1}})
	assert.ErrorIs(t, err, scale.ErrInvalidDims)

	garbage := filepath.Join(dir, "broken.glb")
	require.NoError(t, os.WriteFile(garbage, []byte("{ not json"), 0o644))
	_, err = r.Run(context.Background(), Job{Input: garbage, Dims: dims})
	var loadErr *asset.LoadError
	assert.True(t, errors.As(err, &loadErr))

	assert.Equal(t, 0, conv.calls())
}

func TestRunRecreatesOutputDirectory(t *testing.T) {
	dir := t.TempDir()
	input := writeModel(t, dir, "box.stl")
	stale := filepath.Join(dir, "box_resized", "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	_, err := NewRunner(scale.NewScaler(nil), nil, nil).Run(context.Background(), Job{Input: input, Dims: dims})
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestRunFormatOverride(t *testing.T) {
	input := writeModel(t, t.TempDir(), "box.stl")
	out := t.TempDir()

	result, err := NewRunner(scale.NewScaler(nil), nil, nil).Run(context.Background(),
		Job{Input: input, Dims: dims, Format: asset.GLB, OutputDir: out})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(out, "box_resized.glb"), result.Primary)
	loaded, err := asset.Load(result.Primary)
	require.NoError(t, err)
	assert.Equal(t, asset.GLB, loaded.Format())
}

func TestRunUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	input := writeModel(t, dir, "chair.model")
	r := NewRunner(scale.NewScaler(nil), nil, nil)

	result, err := r.Run(context.Background(), Job{Input: input, Dims: dims})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "chair_resized", "chair_resized.stl"), result.Primary)
	loaded, err := asset.Load(result.Primary)
	require.NoError(t, err)
	assert.Equal(t, asset.STL, loaded.Format())

	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o644))
	_, err = r.Run(context.Background(), Job{Input: notes, Dims: dims})
	assert.ErrorIs(t, err, asset.ErrUnsupportedFormat)
	assert.NoDirExists(t, filepath.Join(dir, "notes_resized"))
}

func TestRunBatch(t *testing.T) {
	dir := t.TempDir()
	jobs := []Job{
		{Input: writeModel(t, dir, "a.stl"), Dims: dims},
		{Input: filepath.Join(dir, "missing.stl"), Dims: dims},
		{Input: writeModel(t, dir, "c.stl"), Dims: dims},
	}
	conv := succeeding()

	items, err := NewRunner(scale.NewScaler(nil), conv, nil).RunBatch(context.Background(), jobs, 2)
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.NoError(t, items[0].Err)
	assert.ErrorIs(t, items[1].Err, ErrInputMissing)
	assert.NoError(t, items[2].Err)
	assert.Equal(t, jobs[2].Input, items[2].Job.Input)
	assert.FileExists(t, items[2].Result.Primary)
	assert.Len(t, Failed(items), 1)
	assert.Equal(t, 2, conv.calls())
}

func TestRunBatchRejectsDuplicateOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeModel(t, dir, "a.stl")
	conv := succeeding()

	_, err := NewRunner(scale.NewScaler(nil), conv, nil).RunBatch(context.Background(),
		[]Job{{Input: input, Dims: dims}, {Input: input, Dims: dims}}, 2)
	assert.ErrorIs(t, err, ErrDuplicateOutput)
	assert.Equal(t, 0, conv.calls())
}
