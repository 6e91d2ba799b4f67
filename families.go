package remix

import (
	"sort"
	"strings"
)

// familyMapping describes one shader family: the set of source parameter
// names it recognizes and the translation of each into the target schema. A
// mapped name of "" means the parameter is consumed by a derived rule rather
// than copied across (specular feeds the roughness fallback, opacity drives
// blend-mode activation).
type familyMapping struct {
	parameters map[string]bool
	toTarget   map[string]string
	// connectSuffix widens the parameter set to accept texture-connection
	// variants of any known name.
	connectSuffix bool
}

var principledFamily = familyMapping{
	parameters: map[string]bool{
		"diffuseColor":              true,
		"inputs:diffuseColor":       true,
		"metallic":                  true,
		"inputs:metallic":           true,
		"roughness":                 true,
		"inputs:roughness":          true,
		"specular":                  true,
		"inputs:specular":           true,
		"anisotropy":                true,
		"inputs:anisotropy":         true,
		"normal":                    true,
		"inputs:normal":             true,
		"emissiveColor":             true,
		"inputs:emissiveColor":      true,
		"opacity":                   true,
		"inputs:opacity":            true,
		"ior":                       true,
		"inputs:ior":                true,
		"clearcoat":                 true,
		"inputs:clearcoat":          true,
		"clearcoatRoughness":        true,
		"inputs:clearcoatRoughness": true,
	},
	toTarget: map[string]string{
		"diffuseColor":                 "diffuse_color_constant",
		"inputs:diffuseColor":          "diffuse_color_constant",
		"diffuseColor.connect":         "diffuse_texture",
		"inputs:diffuseColor.connect":  "diffuse_texture",
		"metallic":                     "metallic_constant",
		"inputs:metallic":              "metallic_constant",
		"metallic.connect":             "metallic_texture",
		"inputs:metallic.connect":      "metallic_texture",
		"roughness":                    "reflection_roughness_constant",
		"inputs:roughness":             "reflection_roughness_constant",
		"roughness.connect":            "reflectionroughness_texture",
		"inputs:roughness.connect":     "reflectionroughness_texture",
		"specular":                     "",
		"inputs:specular":              "",
		"specular.connect":             "",
		"inputs:specular.connect":      "",
		"anisotropy":                   "anisotropy_constant",
		"inputs:anisotropy":            "anisotropy_constant",
		"anisotropy.connect":           "anisotropy_texture",
		"inputs:anisotropy.connect":    "anisotropy_texture",
		"normal":                       "normalmap_texture",
		"inputs:normal":                "normalmap_texture",
		"normal.connect":               "normalmap_texture",
		"inputs:normal.connect":        "normalmap_texture",
		"emissiveColor":                "emissive_color_constant",
		"inputs:emissiveColor":         "emissive_color_constant",
		"emissiveColor.connect":        "emissive_mask_texture",
		"inputs:emissiveColor.connect": "emissive_mask_texture",
		"opacity":                      "",
		"inputs:opacity":               "",
		"opacity.connect":              "",
		"inputs:opacity.connect":       "",
	},
	connectSuffix: true,
}

var omniPBRFamily = familyMapping{
	parameters: map[string]bool{
		"diffuse_texture":                        true,
		"diffuse_color_constant":                 true,
		"diffuse_tint":                           true,
		"albedo_add":                             true,
		"albedo_brightness":                      true,
		"albedo_desaturation":                    true,
		"metallic_texture":                       true,
		"metallic_constant":                      true,
		"metallic_texture_influence":             true,
		"reflectionroughness_texture":            true,
		"reflection_roughness_constant":          true,
		"reflection_roughness_texture_influence": true,
		"specular_level":                         true,
		"specular_texture":                       true,
		"anisotropy_constant":                    true,
		"anisotropy_texture":                     true,
		"normalmap_texture":                      true,
		"bump_factor":                            true,
		"detail_normalmap_texture":               true,
		"detail_bump_factor":                     true,
		"emissive_mask_texture":                  true,
		"emissive_color":                         true,
		"emissive_intensity":                     true,
		"enable_emission":                        true,
		"opacity_constant":                       true,
		"opacity_texture":                        true,
		"enable_ORM_texture":                     true,
		"ORM_texture":                            true,
		"ao_texture":                             true,
		"ao_to_diffuse":                          true,
		"project_uvw":                            true,
		"world_or_object":                        true,
		"uv_space_index":                         true,
		"texture_translate":                      true,
		"texture_rotate":                         true,
		"texture_scale":                          true,
		"detail_texture_translate":               true,
		"detail_texture_rotate":                  true,
		"detail_texture_scale":                   true,
	},
	toTarget: map[string]string{
		"diffuse_color_constant":        "diffuse_color_constant",
		"diffuse_texture":               "diffuse_texture",
		"diffuse_tint":                  "diffuse_color_constant",
		"metallic_constant":             "metallic_constant",
		"metallic_texture":              "metallic_texture",
		"reflection_roughness_constant": "reflection_roughness_constant",
		"reflectionroughness_texture":   "reflectionroughness_texture",
		"anisotropy_constant":           "anisotropy_constant",
		"anisotropy_texture":            "anisotropy_texture",
		"normalmap_texture":             "normalmap_texture",
		"enable_emission":               "enable_emission",
		"emissive_color":                "emissive_color_constant",
		"emissive_mask_texture":         "emissive_mask_texture",
		"emissive_intensity":            "emissive_intensity",
		"opacity_constant":              "opacity_constant",
		"opacity_texture":               "opacity_texture",
		"specular_level":                "",
		"specular_texture":              "",
	},
}

func mappingForFamily(family ShaderFamily) (familyMapping, bool) {
	switch family {
	case FamilyPrincipledBSDF:
		return principledFamily, true
	case FamilyOmniPBR:
		return omniPBRFamily, true
	}
	return familyMapping{}, false
}

// knows reports whether the family recognizes the source parameter name.
func (m familyMapping) knows(name string) bool {
	if m.parameters[name] {
		return true
	}
	return m.connectSuffix && strings.HasSuffix(name, ".connect") &&
		m.parameters[strings.TrimSuffix(name, ".connect")]
}

// ValidateSourceParameters splits params into those the family recognizes
// and the leftover unknown names. Keys with the reserved "_" prefix always
// pass.
func ValidateSourceParameters(family ShaderFamily, params map[string]any) (map[string]any, []string) {
	mapping, ok := mappingForFamily(family)
	if !ok {
		return nil, nil
	}
	valid := map[string]any{}
	var invalid []string
	for name, value := range params {
		switch {
		case strings.HasPrefix(name, "_"):
			valid[name] = value
		case mapping.knows(name):
			valid[name] = value
		default:
			invalid = append(invalid, name)
		}
	}
	sort.Strings(invalid)
	return valid, invalid
}
