package converter

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"unicode/utf8"
)

// controlScript drives Blender: reset to an empty scene, import, export USD.
// Any exception during import or export ends the process with exit code 1.
var controlScript = template.Must(template.New("convert.py").Parse(`import sys

import bpy

INPUT_PATH = {{ .Input }}
OUTPUT_PATH = {{ .Output }}


def convert():
    bpy.ops.wm.read_factory_settings(use_empty=True)

    try:
        bpy.ops.{{ .Importer }}(filepath=INPUT_PATH)
    except Exception as exc:
        print("import failed:", exc, file=sys.stderr)
        sys.exit(1)

    try:
        bpy.ops.wm.usd_export(filepath=OUTPUT_PATH)
    except Exception as exc:
        print("export failed:", exc, file=sys.stderr)
        sys.exit(1)


convert()
`))

type scriptData struct {
	Input    string
	Output   string
	Importer string
}

// importerFor returns the Blender operator that imports the given file
func importerFor(input string) string {
	if strings.EqualFold(filepath.Ext(input), ".stl") {
		return "import_mesh.stl"
	}
	return "import_scene.gltf"
}

// checkPath rejects paths that cannot be written as a script string literal
// without changing their bytes
func checkPath(path string) error {
	if !utf8.ValidString(path) {
		return fmt.Errorf("path %q is not valid UTF-8", path)
	}
	return nil
}

// renderScript renders the control script for a job; paths are embedded as
// quoted string literals
func renderScript(job Job) ([]byte, error) {
	for _, p := range []string{job.Input, job.Output} {
		if err := checkPath(p); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	err := controlScript.Execute(&buf, scriptData{
		Input:    strconv.Quote(job.Input),
		Output:   strconv.Quote(job.Output),
		Importer: importerFor(job.Input),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
