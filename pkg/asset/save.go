package asset

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/philipparndt/gofit/pkg/geometry"
	"github.com/philipparndt/gofit/pkg/stl"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// Generator is written into the asset header of glTF documents built here
const Generator = "gofit"

// Save encodes the asset into path, picking the container from the extension.
// glTF assets saved as STL are flattened to world-space triangles; STL assets
// saved as glTF become a single node document.
func (a *Asset) Save(path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return &ExportError{Path: path, Err: err}
	}

	switch format {
	case STL:
		model, err := a.stlModel()
		if err != nil {
			return &ExportError{Path: path, Err: err}
		}
		if err := stl.WriteFile(path, model); err != nil {
			return &ExportError{Path: path, Err: err}
		}
	case GLB:
		doc := a.document()
		packImages(doc, a.sourceDir(), true)
		packBuffers(doc, true)
		if err := gltf.SaveBinary(doc, path); err != nil {
			return &ExportError{Path: path, Err: err}
		}
	case GLTF:
		doc := a.document()
		packImages(doc, a.sourceDir(), false)
		packBuffers(doc, false)
		if err := gltf.Save(doc, path); err != nil {
			return &ExportError{Path: path, Err: err}
		}
	}
	return nil
}

// stlModel returns the asset as an STL model
func (a *Asset) stlModel() (*stl.Model, error) {
	if a.model != nil {
		return a.model, nil
	}
	triangles, err := documentTriangles(a.doc)
	if err != nil {
		return nil, err
	}
	model := stl.NewModel(modelName(a.Path))
	model.Triangles = triangles
	return model, nil
}

// document returns the asset as a glTF document
func (a *Asset) document() *gltf.Document {
	if a.doc != nil {
		return a.doc
	}
	return documentFromTriangles(modelName(a.Path), a.model.Triangles)
}

// documentFromTriangles builds a one-mesh, one-node document with flat normals
func documentFromTriangles(name string, triangles []geometry.Triangle) *gltf.Document {
	doc := gltf.NewDocument()
	doc.Asset.Generator = Generator

	positions := make([][3]float32, 0, len(triangles)*3)
	normals := make([][3]float32, 0, len(triangles)*3)
	for _, t := range triangles {
		n := t.Normal
		if n.Length() == 0 {
			n = t.CalculateNormal()
		}
		for _, v := range [3]geometry.Vector3{t.V1, t.V2, t.V3} {
			positions = append(positions, v.Float32())
			normals = append(normals, n.Normalize().Float32())
		}
	}

	attributes := map[string]int{
		gltf.POSITION: modeler.WritePosition(doc, positions),
		gltf.NORMAL:   modeler.WriteNormal(doc, normals),
	}
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{
		Name:       name,
		Primitives: []*gltf.Primitive{{Attributes: attributes, Mode: gltf.PrimitiveTriangles}},
	})
	doc.Nodes = append(doc.Nodes, &gltf.Node{Name: name, Mesh: gltf.Index(len(doc.Meshes) - 1)})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	return doc
}

// packBuffers makes the document self-contained. A GLB keeps its first
// buffer in the binary chunk; everything else is embedded as a data URI.
func packBuffers(doc *gltf.Document, binary bool) {
	for i, b := range doc.Buffers {
		if binary && i == 0 {
			b.URI = ""
			continue
		}
		if !b.IsEmbeddedResource() {
			b.EmbeddedResource()
		}
	}
}

// packImages pulls external textures into the document, since the saved
// file usually lands in a different directory than its source. A GLB
// carries them as buffer views of the binary chunk, a .gltf as data URIs.
// Images that cannot be read are left as they are.
func packImages(doc *gltf.Document, dir string, binary bool) {
	for _, img := range doc.Images {
		if img.BufferView != nil || img.URI == "" || strings.HasPrefix(img.URI, "data:") {
			continue
		}
		data, ok := readImage(dir, img.URI)
		if !ok {
			continue
		}
		if img.MimeType == "" {
			img.MimeType = imageMimeType(img.URI)
		}
		if !binary {
			img.URI = "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
			continue
		}
		img.URI = ""
		img.BufferView = gltf.Index(appendBufferView(doc, data))
	}
}

func readImage(dir, uri string) ([]byte, bool) {
	if strings.Contains(uri, "://") {
		return nil, false
	}
	name, err := url.PathUnescape(uri)
	if err != nil {
		name = uri
	}
	if !filepath.IsAbs(name) {
		name = filepath.Join(dir, filepath.FromSlash(name))
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, false
	}
	return data, true
}

func imageMimeType(uri string) string {
	switch strings.ToLower(filepath.Ext(uri)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	}
	if t := mime.TypeByExtension(filepath.Ext(uri)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// appendBufferView stores data at the 4-byte aligned end of the first buffer
func appendBufferView(doc *gltf.Document, data []byte) int {
	if len(doc.Buffers) == 0 {
		doc.Buffers = append(doc.Buffers, &gltf.Buffer{})
	}
	buf := doc.Buffers[0]
	if pad := len(buf.Data) % 4; pad != 0 {
		buf.Data = append(buf.Data, make([]byte, 4-pad)...)
	}
	offset := len(buf.Data)
	buf.Data = append(buf.Data, data...)
	buf.ByteLength = len(buf.Data)
	doc.BufferViews = append(doc.BufferViews, &gltf.BufferView{
		Buffer:     0,
		ByteOffset: offset,
		ByteLength: len(data),
	})
	return len(doc.BufferViews) - 1
}

func (a *Asset) sourceDir() string {
	return filepath.Dir(a.Path)
}

func modelName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Describe returns a one-line summary used in progress output
func (a *Asset) Describe() string {
	return fmt.Sprintf("%s (%s, %s)", filepath.Base(a.Path), a.format, a.shape)
}
