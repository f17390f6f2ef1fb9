// Package asset decodes, measures, transforms and re-encodes 3D model files.
//
// A decoded Asset is tagged with the Shape the decoder found: a SingleMesh
// has one set of vertices that transforms are baked into, a Scene is a node
// hierarchy that transforms are applied to through a new root node.
package asset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/philipparndt/gofit/pkg/geometry"
	"github.com/philipparndt/gofit/pkg/stl"
	"github.com/qmuntal/gltf"
)

// Shape is the logical layout of a decoded asset
type Shape int

const (
	SingleMesh Shape = iota
	Scene
)

func (s Shape) String() string {
	switch s {
	case SingleMesh:
		return "single mesh"
	case Scene:
		return "scene"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// Format is an on-disk container format
type Format int

const (
	FormatUnknown Format = iota
	GLB
	GLTF
	STL
)

func (f Format) String() string {
	switch f {
	case GLB:
		return "glb"
	case GLTF:
		return "gltf"
	case STL:
		return "stl"
	default:
		return "unknown"
	}
}

// Ext returns the canonical file extension including the dot
func (f Format) Ext() string {
	if f == FormatUnknown {
		return ""
	}
	return "." + f.String()
}

var (
	// ErrUnsupportedFormat is returned for files that are not GLB, glTF or STL
	ErrUnsupportedFormat = errors.New("unsupported model format")
	// ErrNoGeometry is returned for files that decode but contain no mesh data
	ErrNoGeometry = errors.New("model contains no geometry")
)

// LoadError reports a file that could not be decoded as a supported model
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ExportError reports a model that could not be written to its destination
type ExportError struct {
	Path string
	Err  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("failed to export %s: %v", e.Path, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// FormatFromPath infers the container format from a file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".glb":
		return GLB, nil
	case ".gltf":
		return GLTF, nil
	case ".stl":
		return STL, nil
	default:
		return FormatUnknown, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// DetectFormat returns the format named by the extension of path, falling
// back to the leading bytes of the file when the extension is not known
func DetectFormat(path string) (Format, error) {
	if format, err := FormatFromPath(path); err == nil {
		return format, nil
	}
	format, err := sniffFormat(path)
	if err != nil {
		return FormatUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}
	return format, nil
}

// sniffFormat looks at the leading bytes of files with an unknown extension
func sniffFormat(path string) (Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer file.Close()

	head := make([]byte, 128)
	n, _ := file.Read(head)
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, []byte("glTF")):
		return GLB, nil
	case bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n\ufeff"), []byte("{")):
		return GLTF, nil
	case bytes.HasPrefix(bytes.TrimLeft(head, " \t\r\n"), []byte("solid")) || n >= 84:
		return STL, nil
	}
	return FormatUnknown, ErrUnsupportedFormat
}

// Asset is a decoded model together with the shape the decoder detected
type Asset struct {
	Path string

	format Format
	shape  Shape

	doc      *gltf.Document
	meshNode int

	model *stl.Model
}

// Load decodes a model file and detects its shape
func Load(path string) (*Asset, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	var a *Asset
	switch format {
	case STL:
		a, err = loadSTL(path)
	default:
		a, err = loadGLTF(path, format)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return a, nil
}

func loadSTL(path string) (*Asset, error) {
	model, err := stl.Parse(path)
	if err != nil {
		return nil, err
	}
	if model.TriangleCount() == 0 {
		return nil, ErrNoGeometry
	}
	return FromSTL(path, model), nil
}

func loadGLTF(path string, format Format) (*Asset, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, err
	}
	a, err := FromDocument(path, doc)
	if err != nil {
		return nil, err
	}
	a.format = format
	return a, nil
}

// FromSTL wraps an already parsed STL model; STL files are always a single mesh
func FromSTL(path string, model *stl.Model) *Asset {
	return &Asset{Path: path, format: STL, shape: SingleMesh, model: model}
}

// FromDocument wraps a glTF document and detects its shape
func FromDocument(path string, doc *gltf.Document) (*Asset, error) {
	instances := meshInstances(doc)
	if len(instances) == 0 {
		return nil, ErrNoGeometry
	}

	a := &Asset{Path: path, format: GLB, shape: Scene, doc: doc, meshNode: -1}
	if node, ok := singleMeshNode(doc, instances); ok {
		a.shape = SingleMesh
		a.meshNode = node
	}
	return a, nil
}

// Shape returns the detected layout
func (a *Asset) Shape() Shape { return a.shape }

// Format returns the container format the asset was decoded from
func (a *Asset) Format() Format { return a.format }

// Document returns the underlying glTF document, nil for STL assets
func (a *Asset) Document() *gltf.Document { return a.doc }

// Model returns the underlying STL model, nil for glTF assets
func (a *Asset) Model() *stl.Model { return a.model }

// Bounds returns the world-space axis-aligned bounding box over all primitives
func (a *Asset) Bounds() (geometry.BoundingBox, error) {
	if a.model != nil {
		return a.model.BoundingBox(), nil
	}
	return documentBounds(a.doc)
}

// Triangles returns every triangle of the asset in world space
func (a *Asset) Triangles() ([]geometry.Triangle, error) {
	if a.model != nil {
		return a.model.Triangles, nil
	}
	return documentTriangles(a.doc)
}

// Apply transforms every primitive of the asset by m in a single step.
// Single meshes get m baked into their vertex data, scenes get a new root
// node carrying m above the previous roots.
func (a *Asset) Apply(m mgl64.Mat4) error {
	switch {
	case a.model != nil:
		a.model.Transform(m)
		return nil
	case a.shape == SingleMesh:
		return bakeMesh(a.doc, a.meshNode, m)
	default:
		wrapScenes(a.doc, m)
		return nil
	}
}
