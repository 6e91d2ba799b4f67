package remix

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// ReadGLTFStage reads a .gltf or .glb export into a Stage, so glTF scenes
// flow through the same pattern detection and material mapping as USD text
// scenes. Node custom properties (Blender writes them into extras) become
// userProperties attributes; materials become Material prims with a
// UsdPreviewSurface-style shader, with texture references resolved to
// their image URIs.
func ReadGLTFStage(path string) (*Stage, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening gltf scene: %w", err)
	}

	stage := NewStage()
	stage.SourcePath = path
	stage.UpAxis = "Y"

	matPaths := make([]string, len(doc.Materials))
	if len(doc.Materials) > 0 {
		looks := stage.DefinePrim("/Looks", "Scope")
		for i, gltfMat := range doc.Materials {
			name := gltfMat.Name
			if name == "" {
				name = fmt.Sprintf("material_%d", i)
			}
			mat := looks.AddChild(NewPrim(primNameFor(name), "Material"))
			matPaths[i] = mat.Path()
			buildGLTFMaterial(doc, mat, gltfMat)
		}
	}

	for _, rootIndex := range gltfRootNodes(doc) {
		addGLTFNode(doc, stage.Root(), rootIndex, matPaths)
	}
	return stage, nil
}

// gltfRootNodes returns the default scene's root node indices, or every
// unparented node when the file declares no scene.
func gltfRootNodes(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		scene := doc.Scenes[0]
		if doc.Scene != nil {
			scene = doc.Scenes[*doc.Scene]
		}
		roots := make([]int, 0, len(scene.Nodes))
		for _, n := range scene.Nodes {
			roots = append(roots, int(n))
		}
		return roots
	}

	childSet := map[int]bool{}
	for _, node := range doc.Nodes {
		for _, child := range node.Children {
			childSet[int(child)] = true
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !childSet[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

func addGLTFNode(doc *gltf.Document, parent *Prim, index int, matPaths []string) {
	node := doc.Nodes[index]

	typeName := "Xform"
	if node.Mesh != nil {
		typeName = "Mesh"
	}
	name := node.Name
	if name == "" {
		name = fmt.Sprintf("node_%d", index)
	}
	prim := parent.AddChild(NewPrim(primNameFor(name), typeName))
	prim.Attributes().Get("xformOp:translate").Set(Color{
		R: float64(node.Translation[0]),
		G: float64(node.Translation[1]),
		B: float64(node.Translation[2]),
	})

	if node.Mesh != nil {
		addGLTFMeshData(doc, prim, int(*node.Mesh), matPaths)
	}

	if extras, ok := node.Extras.(map[string]interface{}); ok {
		for key, value := range extras {
			prim.Attributes().Get(userPropertyName(key)).Set(extraValue(value))
		}
	}

	for _, child := range node.Children {
		addGLTFNode(doc, prim, int(child), matPaths)
	}
}

// addGLTFMeshData authors the geometry attributes reverse grouping hashes
// over, plus the material binding, from the mesh's first primitive.
func addGLTFMeshData(doc *gltf.Document, prim *Prim, meshIndex int, matPaths []string) {
	mesh := doc.Meshes[meshIndex]
	if len(mesh.Primitives) == 0 {
		return
	}
	primitive := mesh.Primitives[0]

	if primitive.Material != nil {
		if i := int(*primitive.Material); i < len(matPaths) {
			prim.Attributes().Get("material:binding").Set(matPaths[i])
		}
	}

	if posAccessor, ok := primitive.Attributes[gltf.POSITION]; ok {
		if points, err := modeler.ReadPosition(doc, doc.Accessors[posAccessor], nil); err == nil {
			prim.Attributes().Get("points").Set(formatPointList(points))
		}
	}
	if primitive.Indices != nil {
		if indices, err := modeler.ReadIndices(doc, doc.Accessors[*primitive.Indices], nil); err == nil {
			prim.Attributes().Get("faceVertexIndices").Set(formatIndexList(indices))
		}
	}
}

// buildGLTFMaterial authors a UsdPreviewSurface-style shader under the
// Material prim from the glTF PBR parameters, wiring each referenced
// texture through a UsdUVTexture-style reader prim the way USD exports
// structure their materials.
func buildGLTFMaterial(doc *gltf.Document, mat *Prim, gltfMat *gltf.Material) {
	shader := mat.AddChild(NewPrim("Principled_BSDF", "Shader"))
	attrs := shader.Attributes()
	attrs.Get("info:id").Set("UsdPreviewSurface")

	pbr := gltfMat.PBRMetallicRoughness
	if pbr != nil {
		base := pbr.BaseColorFactorOrDefault()
		attrs.Get("inputs:diffuseColor").Set(Color{R: float64(base[0]), G: float64(base[1]), B: float64(base[2])})
		attrs.Get("inputs:roughness").Set(pbr.RoughnessFactorOrDefault())
		attrs.Get("inputs:metallic").Set(pbr.MetallicFactorOrDefault())
		if base[3] < 1 {
			attrs.Get("inputs:opacity").Set(float64(base[3]))
		}

		if pbr.BaseColorTexture != nil {
			connectGLTFTexture(doc, mat, shader, "inputs:diffuseColor", "base_color_tex", int(pbr.BaseColorTexture.Index))
		}
		if pbr.MetallicRoughnessTexture != nil {
			connectGLTFTexture(doc, mat, shader, "inputs:roughness", "roughness_tex", int(pbr.MetallicRoughnessTexture.Index))
		}
	}

	emissive := gltfMat.EmissiveFactor
	if emissive[0] > 0 || emissive[1] > 0 || emissive[2] > 0 {
		attrs.Get("inputs:emissiveColor").Set(Color{
			R: float64(emissive[0]),
			G: float64(emissive[1]),
			B: float64(emissive[2]),
		})
	}
	if gltfMat.EmissiveTexture != nil {
		connectGLTFTexture(doc, mat, shader, "inputs:emissiveColor", "emissive_tex", int(gltfMat.EmissiveTexture.Index))
	}
}

// connectGLTFTexture creates a texture reader prim for the image behind a
// glTF texture index and connects the shader input to it. Embedded images
// (buffer views without a URI) are skipped; the compressor needs a file on
// disk.
func connectGLTFTexture(doc *gltf.Document, mat, shader *Prim, input, readerName string, texIndex int) {
	if texIndex >= len(doc.Textures) {
		return
	}
	tex := doc.Textures[texIndex]
	if tex.Source == nil || int(*tex.Source) >= len(doc.Images) {
		return
	}
	uri := doc.Images[*tex.Source].URI
	if uri == "" || strings.HasPrefix(uri, "data:") {
		logger.Warn("skipping embedded texture, only file-backed images convert",
			"material", mat.Name(), "input", input)
		return
	}

	reader := mat.AddChild(NewPrim(readerName, "Shader"))
	reader.Attributes().Get("info:id").Set("UsdUVTexture")
	reader.Attributes().Get("inputs:file").Set(uri)

	target := reader.Path() + ".outputs:rgb"
	shader.Attributes().Get(input).Connection = target
	shader.Attributes().Get(input + ".connect").Set(target)
}

var primNameInvalidRe = regexp.MustCompile(`[^A-Za-z0-9_]`)

// primNameFor converts an arbitrary object name into a legal prim name.
func primNameFor(name string) string {
	name = primNameInvalidRe.ReplaceAllString(name, "_")
	if name == "" {
		return "node"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// userPropertyName namespaces a bare extras key the way Blender's USD
// exporter writes object custom properties.
func userPropertyName(key string) string {
	if strings.Contains(key, ":") {
		return key
	}
	return "userProperties:blender:" + key
}

func extraValue(value interface{}) any {
	switch v := value.(type) {
	case string, bool, float64:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func formatPointList(points [][3]float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range points {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "(%s, %s, %s)",
			formatFloat(float64(p[0])), formatFloat(float64(p[1])), formatFloat(float64(p[2])))
	}
	b.WriteByte(']')
	return b.String()
}

func formatIndexList(indices []uint32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, idx := range indices {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%d", idx)
	}
	b.WriteByte(']')
	return b.String()
}
