package asset

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/philipparndt/gofit/pkg/geometry"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// ScaleNodeName names the root node inserted when a scene is transformed
const ScaleNodeName = "gofit_scale"

// meshInstance is one node referencing a mesh, with its world transform
type meshInstance struct {
	node  int
	depth int
	world mgl64.Mat4
}

// activeScene returns the index of the scene a viewer would display, or -1
func activeScene(doc *gltf.Document) int {
	if doc.Scene != nil && *doc.Scene >= 0 && *doc.Scene < len(doc.Scenes) {
		return *doc.Scene
	}
	if len(doc.Scenes) > 0 {
		return 0
	}
	return -1
}

// sceneRoots returns the root nodes of the active scene. Documents without
// scenes treat every node that is nobody's child as a root.
func sceneRoots(doc *gltf.Document) []int {
	if s := activeScene(doc); s >= 0 {
		return doc.Scenes[s].Nodes
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !isChild[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

// localMatrix returns the node transform relative to its parent
func localMatrix(n *gltf.Node) mgl64.Mat4 {
	if m := n.MatrixOrDefault(); m != gltf.DefaultMatrix {
		return mgl64.Mat4(m)
	}
	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	q := mgl64.Quat{W: r[3], V: mgl64.Vec3{r[0], r[1], r[2]}}
	return mgl64.Translate3D(t[0], t[1], t[2]).
		Mul4(q.Normalize().Mat4()).
		Mul4(mgl64.Scale3D(s[0], s[1], s[2]))
}

// meshInstances walks the active scene and lists every node that draws a mesh
func meshInstances(doc *gltf.Document) []meshInstance {
	var out []meshInstance
	visited := make(map[int]bool)

	var walk func(idx, depth int, parent mgl64.Mat4)
	walk = func(idx, depth int, parent mgl64.Mat4) {
		if idx < 0 || idx >= len(doc.Nodes) || visited[idx] {
			return
		}
		visited[idx] = true

		node := doc.Nodes[idx]
		world := parent.Mul4(localMatrix(node))
		if node.Mesh != nil && *node.Mesh >= 0 && *node.Mesh < len(doc.Meshes) {
			out = append(out, meshInstance{node: idx, depth: depth, world: world})
		}
		for _, child := range node.Children {
			walk(child, depth+1, world)
		}
	}

	for _, root := range sceneRoots(doc) {
		walk(root, 0, mgl64.Ident4())
	}
	return out
}

// singleMeshNode decides whether the document can be handled as one mesh
// whose vertex data is rewritten in place.
func singleMeshNode(doc *gltf.Document, instances []meshInstance) (int, bool) {
	if len(instances) != 1 || len(doc.Skins) > 0 || len(doc.Animations) > 0 {
		return 0, false
	}
	inst := instances[0]
	node := doc.Nodes[inst.node]
	if inst.depth != 0 || len(node.Children) > 0 || node.Skin != nil {
		return 0, false
	}

	// Mirroring or collapsing node transforms would flip or destroy winding
	// once baked, keep those as scenes.
	if localMatrix(node).Det() <= 0 {
		return 0, false
	}

	meshIdx := *node.Mesh
	users := 0
	for _, n := range doc.Nodes {
		if n.Mesh != nil && *n.Mesh == meshIdx {
			users++
		}
	}
	if users != 1 {
		return 0, false
	}

	owned := accessorOwners(doc)
	for _, prim := range doc.Meshes[meshIdx].Primitives {
		if len(prim.Targets) > 0 {
			return 0, false
		}
		if _, ok := prim.Attributes[gltf.POSITION]; !ok {
			return 0, false
		}
		for name, comps := range bakedAttributes {
			idx, ok := prim.Attributes[name]
			if !ok {
				continue
			}
			if owned[idx] != meshIdx || !plainFloatAccessor(doc, idx, comps) {
				return 0, false
			}
		}
	}
	return inst.node, true
}

// bakedAttributes lists the vertex attributes rewritten when baking, with
// their component count
var bakedAttributes = map[string]int{
	gltf.POSITION: 3,
	gltf.NORMAL:   3,
	gltf.TANGENT:  4,
}

// accessorOwners maps each accessor to the mesh using it, or -2 when more
// than one mesh shares it
func accessorOwners(doc *gltf.Document) map[int]int {
	owners := make(map[int]int)
	claim := func(acc, mesh int) {
		if prev, ok := owners[acc]; ok && prev != mesh {
			owners[acc] = -2
			return
		}
		owners[acc] = mesh
	}
	for mi, mesh := range doc.Meshes {
		for _, prim := range mesh.Primitives {
			for _, acc := range prim.Attributes {
				claim(acc, mi)
			}
			if prim.Indices != nil {
				claim(*prim.Indices, mi)
			}
			for _, target := range prim.Targets {
				for _, acc := range target {
					claim(acc, mi)
				}
			}
		}
	}
	return owners
}

// plainFloatAccessor reports whether the accessor is dense float data
// held in a loaded buffer, the only layout rewritten in place
func plainFloatAccessor(doc *gltf.Document, idx, comps int) bool {
	if idx < 0 || idx >= len(doc.Accessors) {
		return false
	}
	acr := doc.Accessors[idx]
	if acr.ComponentType != gltf.ComponentFloat || acr.Normalized || acr.Sparse != nil || acr.BufferView == nil {
		return false
	}
	if (comps == 3 && acr.Type != gltf.AccessorVec3) || (comps == 4 && acr.Type != gltf.AccessorVec4) {
		return false
	}
	if *acr.BufferView < 0 || *acr.BufferView >= len(doc.BufferViews) {
		return false
	}
	bv := doc.BufferViews[*acr.BufferView]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return false
	}
	_, _, _, err := floatSpan(doc, acr, comps)
	return err == nil
}

// floatSpan returns the buffer, the first byte and the stride of a float accessor
func floatSpan(doc *gltf.Document, acr *gltf.Accessor, comps int) ([]byte, int, int, error) {
	bv := doc.BufferViews[*acr.BufferView]
	data := doc.Buffers[bv.Buffer].Data
	stride := bv.ByteStride
	if stride == 0 {
		stride = comps * 4
	}
	base := bv.ByteOffset + acr.ByteOffset
	if acr.Count > 0 {
		last := base + (acr.Count-1)*stride + comps*4
		if base < 0 || last > len(data) {
			return nil, 0, 0, fmt.Errorf("accessor data exceeds buffer (%d > %d)", last, len(data))
		}
	}
	return data, base, stride, nil
}

// readPositions returns the positions of an accessor. Compressed accessors
// without a buffer view fall back to the corners of their declared min/max.
func readPositions(doc *gltf.Document, idx int) ([][3]float32, error) {
	if idx < 0 || idx >= len(doc.Accessors) {
		return nil, fmt.Errorf("position accessor %d out of range", idx)
	}
	acr := doc.Accessors[idx]
	if acr.BufferView == nil && acr.Sparse == nil {
		if len(acr.Min) < 3 || len(acr.Max) < 3 {
			return nil, fmt.Errorf("position accessor %d has neither data nor bounds", idx)
		}
		var corners [][3]float32
		for i := 0; i < 8; i++ {
			c := [3]float32{float32(acr.Min[0]), float32(acr.Min[1]), float32(acr.Min[2])}
			for axis := 0; axis < 3; axis++ {
				if i&(1<<axis) != 0 {
					c[axis] = float32(acr.Max[axis])
				}
			}
			corners = append(corners, c)
		}
		return corners, nil
	}
	return modeler.ReadPosition(doc, acr, nil)
}

// documentBounds measures the active scene in world space
func documentBounds(doc *gltf.Document) (geometry.BoundingBox, error) {
	bbox := geometry.NewBoundingBox()
	for _, inst := range meshInstances(doc) {
		mesh := doc.Meshes[*doc.Nodes[inst.node].Mesh]
		box := geometry.NewBoundingBox()
		for pi, prim := range mesh.Primitives {
			idx, ok := prim.Attributes[gltf.POSITION]
			if !ok {
				continue
			}
			positions, err := readPositions(doc, idx)
			if err != nil {
				return bbox, fmt.Errorf("mesh %q primitive %d: %w", mesh.Name, pi, err)
			}
			for _, p := range positions {
				box.Extend(geometry.FromFloat32(p).Transform(inst.world))
			}
		}
		bbox.Merge(box)
	}
	return bbox, nil
}

// documentTriangles flattens the triangle primitives of the active scene
// into world space. Point and line primitives are skipped.
func documentTriangles(doc *gltf.Document) ([]geometry.Triangle, error) {
	var out []geometry.Triangle
	for _, inst := range meshInstances(doc) {
		mesh := doc.Meshes[*doc.Nodes[inst.node].Mesh]
		for pi, prim := range mesh.Primitives {
			idx, ok := prim.Attributes[gltf.POSITION]
			if !ok {
				continue
			}
			switch prim.Mode {
			case gltf.PrimitiveTriangles, gltf.PrimitiveTriangleStrip, gltf.PrimitiveTriangleFan:
			default:
				continue
			}

			if idx < 0 || idx >= len(doc.Accessors) || doc.Accessors[idx].BufferView == nil {
				return nil, fmt.Errorf("mesh %q primitive %d: position data not readable", mesh.Name, pi)
			}
			positions, err := modeler.ReadPosition(doc, doc.Accessors[idx], nil)
			if err != nil {
				return nil, fmt.Errorf("mesh %q primitive %d: %w", mesh.Name, pi, err)
			}
			world := make([]geometry.Vector3, len(positions))
			for i, p := range positions {
				world[i] = geometry.FromFloat32(p).Transform(inst.world)
			}

			indices, err := primitiveIndices(doc, prim, len(positions))
			if err != nil {
				return nil, fmt.Errorf("mesh %q primitive %d: %w", mesh.Name, pi, err)
			}
			for _, tri := range triangleList(prim.Mode, indices) {
				if int(tri[0]) >= len(world) || int(tri[1]) >= len(world) || int(tri[2]) >= len(world) {
					return nil, fmt.Errorf("mesh %q primitive %d: index out of range", mesh.Name, pi)
				}
				t := geometry.Triangle{V1: world[tri[0]], V2: world[tri[1]], V3: world[tri[2]]}
				t.Normal = t.CalculateNormal()
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func primitiveIndices(doc *gltf.Document, prim *gltf.Primitive, vertexCount int) ([]uint32, error) {
	if prim.Indices == nil {
		indices := make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
		return indices, nil
	}
	if *prim.Indices < 0 || *prim.Indices >= len(doc.Accessors) {
		return nil, fmt.Errorf("index accessor %d out of range", *prim.Indices)
	}
	return modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
}

// triangleList expands strips and fans into separate triangles
func triangleList(mode gltf.PrimitiveMode, indices []uint32) [][3]uint32 {
	var tris [][3]uint32
	switch mode {
	case gltf.PrimitiveTriangleStrip:
		for i := 2; i < len(indices); i++ {
			if i%2 == 0 {
				tris = append(tris, [3]uint32{indices[i-2], indices[i-1], indices[i]})
			} else {
				tris = append(tris, [3]uint32{indices[i-1], indices[i-2], indices[i]})
			}
		}
	case gltf.PrimitiveTriangleFan:
		for i := 2; i < len(indices); i++ {
			tris = append(tris, [3]uint32{indices[0], indices[i-1], indices[i]})
		}
	default:
		for i := 0; i+2 < len(indices); i += 3 {
			tris = append(tris, [3]uint32{indices[i], indices[i+1], indices[i+2]})
		}
	}
	return tris
}

// bakeMesh rewrites the vertex data of a root mesh node with m applied after
// the node's own transform, then resets the node to identity.
func bakeMesh(doc *gltf.Document, nodeIdx int, m mgl64.Mat4) error {
	node := doc.Nodes[nodeIdx]
	full := m.Mul4(localMatrix(node))
	linear := full.Mat3()
	normalMat := linear.Inv().Transpose()

	done := make(map[int]bool)
	for _, prim := range doc.Meshes[*node.Mesh].Primitives {
		for name := range bakedAttributes {
			idx, ok := prim.Attributes[name]
			if !ok || done[idx] {
				continue
			}
			done[idx] = true

			var err error
			switch name {
			case gltf.POSITION:
				err = bakeVectors(doc, doc.Accessors[idx], 3, func(v mgl64.Vec3) mgl64.Vec3 {
					return mgl64.TransformCoordinate(v, full)
				})
				if err == nil {
					err = refreshMinMax(doc, doc.Accessors[idx])
				}
			case gltf.NORMAL:
				err = bakeVectors(doc, doc.Accessors[idx], 3, func(v mgl64.Vec3) mgl64.Vec3 {
					return safeNormalize(normalMat.Mul3x1(v))
				})
			case gltf.TANGENT:
				err = bakeVectors(doc, doc.Accessors[idx], 4, func(v mgl64.Vec3) mgl64.Vec3 {
					return safeNormalize(linear.Mul3x1(v))
				})
			}
			if err != nil {
				return fmt.Errorf("baking %s accessor %d: %w", name, idx, err)
			}
		}
	}

	node.Matrix = gltf.DefaultMatrix
	node.Translation = [3]float64{}
	node.Rotation = gltf.DefaultRotation
	node.Scale = gltf.DefaultScale
	return nil
}

func safeNormalize(v mgl64.Vec3) mgl64.Vec3 {
	if l := v.Len(); l > 0 {
		return v.Mul(1 / l)
	}
	return v
}

// bakeVectors rewrites the xyz part of every element of a float accessor in place
func bakeVectors(doc *gltf.Document, acr *gltf.Accessor, comps int, fn func(mgl64.Vec3) mgl64.Vec3) error {
	data, base, stride, err := floatSpan(doc, acr, comps)
	if err != nil {
		return err
	}
	for i := 0; i < acr.Count; i++ {
		off := base + i*stride
		var v mgl64.Vec3
		for c := 0; c < 3; c++ {
			v[c] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[off+c*4:])))
		}
		v = fn(v)
		for c := 0; c < 3; c++ {
			binary.LittleEndian.PutUint32(data[off+c*4:], math.Float32bits(float32(v[c])))
		}
	}
	return nil
}

// refreshMinMax recomputes the mandatory POSITION bounds after a rewrite
func refreshMinMax(doc *gltf.Document, acr *gltf.Accessor) error {
	positions, err := modeler.ReadPosition(doc, acr, nil)
	if err != nil {
		return err
	}
	bbox := geometry.NewBoundingBox()
	for _, p := range positions {
		bbox.Extend(geometry.FromFloat32(p))
	}
	if bbox.IsEmpty() {
		return nil
	}
	lo, hi := bbox.Min.Float32(), bbox.Max.Float32()
	acr.Min = []float64{float64(lo[0]), float64(lo[1]), float64(lo[2])}
	acr.Max = []float64{float64(hi[0]), float64(hi[1]), float64(hi[2])}
	return nil
}

// wrapScenes inserts a node carrying m above the roots of every scene.
// Scenes listing the same roots share one wrapper. When scenes overlap in
// only some roots, each root gets its own wrapper so that no node ends up
// with two parents.
func wrapScenes(doc *gltf.Document, m mgl64.Mat4) {
	if len(doc.Scenes) == 0 {
		doc.Scenes = append(doc.Scenes, &gltf.Scene{Nodes: sceneRoots(doc)})
		doc.Scene = gltf.Index(0)
	}

	addWrapper := func(children []int) int {
		wrapper := &gltf.Node{
			Name:     ScaleNodeName,
			Children: append([]int(nil), children...),
			Matrix:   gltf.DefaultMatrix,
			Rotation: gltf.DefaultRotation,
			Scale:    gltf.DefaultScale,
		}
		if s, ok := pureScale(m); ok {
			wrapper.Scale = s
		} else {
			wrapper.Matrix = [16]float64(m)
		}
		doc.Nodes = append(doc.Nodes, wrapper)
		return len(doc.Nodes) - 1
	}

	if !partiallyShared(doc.Scenes) {
		wrappers := make(map[string]int)
		for _, scene := range doc.Scenes {
			key := fmt.Sprint(scene.Nodes)
			idx, ok := wrappers[key]
			if !ok {
				idx = addWrapper(scene.Nodes)
				wrappers[key] = idx
			}
			scene.Nodes = []int{idx}
		}
		return
	}

	wrappers := make(map[int]int)
	for _, scene := range doc.Scenes {
		roots := make([]int, len(scene.Nodes))
		for i, root := range scene.Nodes {
			idx, ok := wrappers[root]
			if !ok {
				idx = addWrapper([]int{root})
				wrappers[root] = idx
			}
			roots[i] = idx
		}
		scene.Nodes = roots
	}
}

// partiallyShared reports whether a root node appears in two scenes whose
// root lists differ
func partiallyShared(scenes []*gltf.Scene) bool {
	owner := make(map[int]string)
	for _, scene := range scenes {
		key := fmt.Sprint(scene.Nodes)
		for _, root := range scene.Nodes {
			if k, ok := owner[root]; ok && k != key {
				return true
			}
			owner[root] = key
		}
	}
	return false
}

// pureScale extracts the diagonal of m when it has no other terms
func pureScale(m mgl64.Mat4) ([3]float64, bool) {
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			if row != col && m.At(row, col) != 0 {
				return [3]float64{}, false
			}
		}
	}
	if m.At(3, 3) != 1 {
		return [3]float64{}, false
	}
	return [3]float64{m.At(0, 0), m.At(1, 1), m.At(2, 2)}, true
}
