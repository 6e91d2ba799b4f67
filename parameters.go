package remix

import (
	"math"
	"sort"
)

// GammaMode describes whether a texture's sampled values need sRGB decoding
// before use (color data) or are used as-is (data textures).
type GammaMode string

const (
	GammaSRGB   GammaMode = "srgb"
	GammaLinear GammaMode = "linear"
	GammaNone   GammaMode = "none"
)

// ShaderFamily identifies the authoring schema of a source material.
type ShaderFamily int

const (
	FamilyUnknown ShaderFamily = iota
	FamilyPrincipledBSDF
	FamilyOmniPBR
)

func (family ShaderFamily) String() string {
	switch family {
	case FamilyPrincipledBSDF:
		return "principled_bsdf"
	case FamilyOmniPBR:
		return "omnipbr"
	}
	return "unknown"
}

// TargetParameterSet maps target parameter names to typed values
// (float64 | bool | int | Color | string). Texture-valued parameters hold a
// texture_2d(...) string; the empty-path form texture_2d("", ...) means
// "present but unusable", distinct from a never-assigned parameter.
type TargetParameterSet map[string]any

// SourceParameterSet holds the raw parameters collected from one material in
// one scene, before mapping into the target schema.
type SourceParameterSet struct {
	Values map[string]any
	// Textures marks which keys carry a texture path rather than a constant.
	Textures map[string]bool
	// BaseDir is the directory of the originating material-definition file,
	// used to resolve relative texture paths.
	BaseDir string
	// AutoBlendAlpha enables automatic blend-mode activation for materials
	// with alpha/opacity textures.
	AutoBlendAlpha bool
}

// NewSourceParameterSet returns an empty SourceParameterSet with auto-blend
// enabled, matching the converter's default behavior.
func NewSourceParameterSet() *SourceParameterSet {
	return &SourceParameterSet{
		Values:         map[string]any{},
		Textures:       map[string]bool{},
		AutoBlendAlpha: true,
	}
}

// Set stores a constant parameter value.
func (s *SourceParameterSet) Set(name string, value any) {
	s.Values[name] = value
}

// SetTexture stores a texture-valued parameter.
func (s *SourceParameterSet) SetTexture(name, path string) {
	s.Values[name] = path
	s.Textures[name] = true
}

// targetParameterNames is the complete parameter set of the target material
// schema (AperturePBR_Opacity). Unknown keys never survive validation.
var targetParameterNames = map[string]bool{
	"diffuse_texture":                       true,
	"diffuse_color_constant":                true,
	"albedo_add":                            true,
	"albedo_brightness":                     true,
	"albedo_desaturation":                   true,
	"metallic_texture":                      true,
	"metallic_constant":                     true,
	"reflectionroughness_texture":           true,
	"reflection_roughness_constant":         true,
	"reflection_roughness_texture_influence": true,
	"anisotropy_constant":                   true,
	"anisotropy_texture":                    true,
	"normalmap_texture":                     true,
	"normalmap_strength":                    true,
	"normalmap_encoding":                    true,
	"height_texture":                        true,
	"height_offset":                         true,
	"height_scale":                          true,
	"emissive_mask_texture":                 true,
	"emissive_color_constant":               true,
	"emissive_intensity":                    true,
	"enable_emission":                       true,
	"opacity_constant":                      true,
	"opacity_texture":                       true,
	"opacity_mode":                          true,
	"enable_thin_film":                      true,
	"thin_film_thickness_constant":          true,
	"subsurface_transmittance_color":        true,
	"subsurface_transmittance_texture":      true,
	"subsurface_measurement_distance":       true,
	"subsurface_thickness_texture":          true,
	"subsurface_single_scattering_albedo":   true,
	"subsurface_volumetric_anisotropy":      true,
	"use_legacy_alpha_state":                true,
	"blend_enabled":                         true,
	"cutout_opacity":                        true,
	"preload_textures":                      true,
	"ignore_material":                       true,
}

// targetDefaults holds the default value of every target parameter. Texture
// parameters default to the empty string so that a mapped set is always
// fully populated.
var targetDefaults = map[string]any{
	"diffuse_texture":                       "",
	"diffuse_color_constant":                NewColor(0.8, 0.8, 0.8),
	"albedo_add":                            0.0,
	"albedo_brightness":                     0.0,
	"albedo_desaturation":                   0.0,
	"metallic_texture":                      "",
	"metallic_constant":                     0.0,
	"reflectionroughness_texture":           "",
	"reflection_roughness_constant":         0.5,
	"reflection_roughness_texture_influence": 1.0,
	"anisotropy_constant":                   0.0,
	"anisotropy_texture":                    "",
	"normalmap_texture":                     "",
	"normalmap_strength":                    1.0,
	"normalmap_encoding":                    0,
	"height_texture":                        "",
	"height_offset":                         0.0,
	"height_scale":                          1.0,
	"emissive_mask_texture":                 "",
	"emissive_color_constant":               NewColor(0, 0, 0),
	"emissive_intensity":                    1.0,
	"enable_emission":                       false,
	"opacity_constant":                      1.0,
	"opacity_texture":                       "",
	"opacity_mode":                          1,
	"enable_thin_film":                      false,
	"thin_film_thickness_constant":          200.0,
	"subsurface_transmittance_color":        NewColor(1, 1, 1),
	"subsurface_transmittance_texture":      "",
	"subsurface_measurement_distance":       0.0,
	"subsurface_thickness_texture":          "",
	"subsurface_single_scattering_albedo":   NewColor(0.5, 0.5, 0.5),
	"subsurface_volumetric_anisotropy":      0.0,
	"use_legacy_alpha_state":                true,
	"blend_enabled":                         false,
	"cutout_opacity":                        0.5,
	"preload_textures":                      false,
	"ignore_material":                       false,
}

// textureGammaModes classifies each texture parameter of the target schema.
// Anything not listed here is linear.
var textureGammaModes = map[string]GammaMode{
	"diffuse_texture":                  GammaSRGB,
	"metallic_texture":                 GammaLinear,
	"reflectionroughness_texture":      GammaLinear,
	"anisotropy_texture":               GammaLinear,
	"normalmap_texture":                GammaLinear,
	"height_texture":                   GammaLinear,
	"emissive_mask_texture":            GammaSRGB,
	"opacity_texture":                  GammaLinear,
	"subsurface_transmittance_texture": GammaSRGB,
	"subsurface_thickness_texture":     GammaLinear,
}

// TextureGammaMode returns the gamma mode for a target texture parameter
// name, defaulting to linear for unlisted parameters.
func TextureGammaMode(param string) GammaMode {
	if mode, ok := textureGammaModes[param]; ok {
		return mode
	}
	return GammaLinear
}

// IsTargetParameter reports whether name belongs to the target schema.
func IsTargetParameter(name string) bool {
	return targetParameterNames[name]
}

// TargetParameterCount returns the size of the target registry.
func TargetParameterCount() int {
	return len(targetParameterNames)
}

// TargetParameterList returns the sorted names of all target parameters.
func TargetParameterList() []string {
	names := make([]string, 0, len(targetParameterNames))
	for name := range targetParameterNames {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewTargetParameterSet returns a TargetParameterSet seeded with the default
// value of every target parameter.
func NewTargetParameterSet() TargetParameterSet {
	params := make(TargetParameterSet, len(targetDefaults))
	for name, value := range targetDefaults {
		params[name] = value
	}
	return params
}

// DefaultValue returns the registered default for a target parameter.
func DefaultValue(name string) (any, bool) {
	v, ok := targetDefaults[name]
	return v, ok
}

// ValidateTargetParameters partitions a parameter set by target-schema
// membership. Keys with the reserved "_" prefix pass through untouched;
// everything else not in the registry is returned as invalid.
func ValidateTargetParameters(params TargetParameterSet) (valid TargetParameterSet, invalid []string) {
	valid = TargetParameterSet{}
	for name, value := range params {
		switch {
		case len(name) > 0 && name[0] == '_':
			valid[name] = value
		case targetParameterNames[name]:
			valid[name] = value
		default:
			invalid = append(invalid, name)
		}
	}
	sort.Strings(invalid)
	return valid, invalid
}

// CleanTargetParameters validates params and fills in defaults for every
// missing target parameter, so the result always covers the full registry.
func CleanTargetParameters(params TargetParameterSet) (TargetParameterSet, []string) {
	cleaned, invalid := ValidateTargetParameters(params)
	for name, def := range targetDefaults {
		if _, ok := cleaned[name]; !ok {
			cleaned[name] = def
		}
	}
	return cleaned, invalid
}

// MatchesDefault reports whether a value equals the target default for the
// named parameter, using an epsilon compare for floats and colors.
func MatchesDefault(name string, value any) bool {
	def, ok := targetDefaults[name]
	if !ok {
		return false
	}

	const eps = 0.001

	switch d := def.(type) {
	case Color:
		switch v := value.(type) {
		case Color:
			return d.Equals(v)
		case string:
			if c, ok := ParseColor(v); ok {
				return d.Equals(c)
			}
		case [3]float64:
			return d.Equals(Color{v[0], v[1], v[2]})
		}
		return false
	case float64:
		if v, ok := toFloat(value); ok {
			return math.Abs(v-d) < eps
		}
		return false
	case int:
		if v, ok := toFloat(value); ok {
			return math.Abs(v-float64(d)) < eps
		}
		return false
	case bool:
		v, ok := value.(bool)
		return ok && v == d
	}

	return value == def
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
