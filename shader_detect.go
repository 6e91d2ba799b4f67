package remix

import (
	"errors"
	"strings"
)

// ErrUnknownShaderFamily is returned when a material's shader cannot be
// classified into a supported authoring family.
var ErrUnknownShaderFamily = errors.New("unknown shader family")

// DetectShaderFamily classifies a Material prim's surface shader into one of
// the supported authoring families and returns the Shader prim it decided
// on. Classification checks, in order: a UsdPreviewSurface info:id, a shader
// child named Principled_BSDF, and an MDL source asset referencing OmniPBR.
// A shader with an unrecognized .mdl source asset is still treated as
// OmniPBR-like, since MDL materials share its parameter vocabulary.
func DetectShaderFamily(material *Prim) (ShaderFamily, *Prim, error) {
	if material == nil {
		return FamilyUnknown, nil, ErrUnknownShaderFamily
	}

	var (
		family = FamilyUnknown
		shader *Prim
	)

	material.SearchTree(func(prim *Prim) bool {
		if !prim.IsA("Shader") {
			return true
		}

		if id, ok := prim.Attributes().Lookup("info:id"); ok && id.IsString() {
			if id.AsString() == "UsdPreviewSurface" {
				family, shader = FamilyPrincipledBSDF, prim
				return false
			}
		}

		if prim.Name() == "Principled_BSDF" {
			family, shader = FamilyPrincipledBSDF, prim
			return false
		}

		if asset, ok := prim.Attributes().Lookup("info:mdl:sourceAsset"); ok && asset.IsString() {
			source := asset.AsString()
			if strings.Contains(source, "OmniPBR") || strings.HasSuffix(strings.ToLower(source), ".mdl") {
				family, shader = FamilyOmniPBR, prim
				return false
			}
		}

		return true
	})

	if family == FamilyUnknown {
		return FamilyUnknown, nil, ErrUnknownShaderFamily
	}
	return family, shader, nil
}

// CollectShaderParameters reads a Shader prim's authored inputs into a
// SourceParameterSet in the vocabulary of the detected family. Connected
// inputs become ".connect" texture entries carrying the connected file path
// when one can be resolved, or the raw connection target otherwise.
// Asset-valued *_texture inputs are marked as textures directly, and a
// constant authored next to a connection is kept alongside it.
func CollectShaderParameters(family ShaderFamily, shader *Prim) *SourceParameterSet {
	params := NewSourceParameterSet()
	if shader == nil {
		return params
	}

	shader.Attributes().ForEach(func(name string, attr *Attribute) {
		if strings.HasPrefix(name, "info:") || strings.HasPrefix(name, "outputs:") {
			return
		}
		if strings.HasSuffix(name, ".connect") {
			params.SetTexture(name, resolveConnectedTexture(shader, attr))
			return
		}
		if attr.Connection != "" && attr.Value == nil {
			return // connection only, covered by the .connect entry
		}
		key := sourceParamName(family, name)
		if s, ok := attr.Value.(string); ok && strings.HasSuffix(key, "_texture") {
			// MDL shaders author textures as asset inputs, not connections
			params.SetTexture(key, s)
			return
		}
		params.Set(key, attr.Value)
	})

	return params
}

// sourceParamName trims the family-specific namespace differences: OmniPBR
// shaders author inputs:diffuse_texture, but the family tables use the bare
// MDL parameter names.
func sourceParamName(family ShaderFamily, name string) string {
	if family == FamilyOmniPBR {
		return strings.TrimPrefix(name, "inputs:")
	}
	return name
}

// resolveConnectedTexture follows a shader input connection to a texture
// file path. Connections into a UsdUVTexture-style reader resolve to that
// reader's inputs:file; anything else keeps the connection target so the
// mapper can recognize it as unusable.
func resolveConnectedTexture(shader *Prim, attr *Attribute) string {
	target := attr.Connection
	if target == "" {
		if s, ok := attr.Value.(string); ok {
			target = s
		}
	}
	if target == "" {
		return ""
	}

	// target looks like /root/Looks/mat/tex.outputs:rgb
	primPath := target
	if idx := strings.LastIndex(primPath, "."); idx > 0 {
		primPath = primPath[:idx]
	}

	// walk up to the stage root through the shader's ancestry
	root := shader
	for root.Parent() != nil {
		root = root.Parent()
	}

	texPrim := findPrimAtPath(root, primPath)
	if texPrim == nil {
		return "</" + strings.TrimPrefix(target, "/") + ">"
	}
	if file, ok := texPrim.Attributes().Lookup("inputs:file"); ok && file.IsString() {
		return file.AsString()
	}
	return "</" + strings.TrimPrefix(target, "/") + ">"
}

func findPrimAtPath(root *Prim, path string) *Prim {
	prim := root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		prim = prim.Child(part)
		if prim == nil {
			return nil
		}
	}
	return prim
}
