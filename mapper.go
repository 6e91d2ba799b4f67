package remix

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// TextureProcess names the extra processing a texture needs beyond plain
// format conversion.
type TextureProcess int

const (
	// ProcessNone: straight conversion to the output format.
	ProcessNone TextureProcess = iota
	// ProcessGrayscale: collapse a color texture to grayscale (diffuse
	// reused as roughness).
	ProcessGrayscale
	// ProcessInvert: grayscale then invert (specular used as roughness).
	ProcessInvert
	// ProcessBumpToNormal: generate a tangent-space normal map from a
	// height/bump map.
	ProcessBumpToNormal
	// ProcessCombineAlpha: merge a separate opacity texture into the diffuse
	// texture's alpha channel.
	ProcessCombineAlpha
)

func (proc TextureProcess) String() string {
	switch proc {
	case ProcessGrayscale:
		return "grayscale"
	case ProcessInvert:
		return "invert"
	case ProcessBumpToNormal:
		return "bump_to_normal"
	case ProcessCombineAlpha:
		return "combine_alpha"
	}
	return "convert"
}

// TextureTask describes one texture the converter must produce: a source
// image, the output file name it maps to, and any processing step.
type TextureTask struct {
	// Param is the target parameter the texture feeds.
	Param string
	// Source is the source image path, resolved against the material file's
	// directory.
	Source string
	// AlphaSource is the secondary image whose luminance becomes the output
	// alpha channel, for ProcessCombineAlpha.
	AlphaSource string
	// Output is the output file name (always .dds).
	Output string
	Process TextureProcess
}

// MapResult is the outcome of mapping one source material into the target
// schema.
type MapResult struct {
	// Params covers the complete target parameter registry (defaults filled
	// in for everything the source didn't author).
	Params TargetParameterSet
	// Authored marks the parameters that came from the source material or
	// its derived rules, as opposed to seeded defaults.
	Authored map[string]bool
	// Textures lists the conversion work the material needs.
	Textures []TextureTask
	// Warnings records dropped parameters and other non-fatal findings.
	Warnings []string
}

// AuthoredParams returns the authored subset of Params, which is what gets
// written into the output document.
func (result MapResult) AuthoredParams() TargetParameterSet {
	params := TargetParameterSet{}
	for name := range result.Authored {
		if v, ok := result.Params[name]; ok {
			params[name] = v
		}
	}
	return params
}

// mapper carries the intermediate state of a single material mapping.
type mapper struct {
	family  ShaderFamily
	mapping familyMapping
	src     *SourceParameterSet
	result  MapResult

	// texture sources by target parameter, pre-resolution
	textureSources map[string]string

	invertForRoughness   bool
	roughnessFromDiffuse bool
	bumpToNormal         bool
	specularSource       string
	combineOpacitySource string
	opacityConstant      float64
	hasOpacityConstant   bool
}

// MapMaterial translates the parameters of one source material into the
// target schema: family-table mapping, value normalization, the derived
// rules (emission gating, blend activation, specular-to-roughness
// inversion, bump/normal splitting, opacity-alpha combination), and finally
// default completion so the result always covers the whole registry.
func MapMaterial(family ShaderFamily, src *SourceParameterSet) (MapResult, error) {
	mapping, ok := mappingForFamily(family)
	if !ok {
		return MapResult{}, fmt.Errorf("mapping material: %w", ErrUnknownShaderFamily)
	}

	m := &mapper{
		family:  family,
		mapping: mapping,
		src:     src,
		result: MapResult{
			Params:   TargetParameterSet{},
			Authored: map[string]bool{},
		},
		textureSources: map[string]string{},
	}

	valid, invalid := ValidateSourceParameters(family, src.Values)
	for _, name := range invalid {
		m.warnf("dropped unknown parameter %q", name)
	}

	m.scan(valid)
	m.applyRoughnessFallbacks()
	m.mapParameters(valid)
	m.applyEmissionRule()
	m.applyOpacityRules()
	m.applyBumpSplit()
	m.buildTextureTasks()

	params, _ := CleanTargetParameters(m.result.Params)
	m.result.Params = params

	sort.Slice(m.result.Textures, func(i, j int) bool {
		return m.result.Textures[i].Output < m.result.Textures[j].Output
	})
	return m.result, nil
}

func (m *mapper) warnf(format string, args ...any) {
	m.result.Warnings = append(m.result.Warnings, fmt.Sprintf(format, args...))
}

func (m *mapper) set(name string, value any) {
	m.result.Params[name] = value
	m.result.Authored[name] = true
}

func (m *mapper) unset(name string) {
	delete(m.result.Params, name)
	delete(m.result.Authored, name)
}

// scan does the pre-pass over the source for the opacity constant, which
// the blend rule needs regardless of how the main pass treats it.
func (m *mapper) scan(valid map[string]any) {
	for name, value := range valid {
		base := strings.TrimSuffix(name, ".connect")
		if base != "opacity" && base != "inputs:opacity" && base != "opacity_constant" {
			continue
		}
		if m.src.Textures[name] {
			continue
		}
		if f, ok := toFloat(FixFloatParameter(value)); ok {
			m.opacityConstant = f
			m.hasOpacityConstant = true
		}
	}
}

// sourceTexture returns the raw texture value for any of the given source
// parameter names, or "".
func (m *mapper) sourceTexture(names ...string) string {
	for _, name := range names {
		for _, key := range []string{name, name + ".connect", "inputs:" + name, "inputs:" + name + ".connect"} {
			if m.src.Textures[key] {
				if s, ok := m.src.Values[key].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// applyRoughnessFallbacks decides where the roughness texture comes from
// when the material plays Blender's texture-reuse tricks: diffuse reused as
// roughness needs a grayscale pass, and a specular texture standing in for
// roughness needs inversion.
func (m *mapper) applyRoughnessFallbacks() {
	roughness := m.sourceTexture("roughness", "reflectionroughness_texture")
	specular := m.sourceTexture("specular", "specular_texture")
	diffuse := m.sourceTexture("diffuseColor", "diffuse_texture")

	diffuseFile := NormalizeTextureFile(diffuse)

	switch {
	case roughness != "" && diffuse != "" && NormalizeTextureFile(roughness) == diffuseFile:
		m.roughnessFromDiffuse = true
		m.specularSource = diffuse
	case roughness == "" && specular != "":
		m.invertForRoughness = true
		if diffuse != "" && NormalizeTextureFile(specular) == diffuseFile {
			m.specularSource = diffuse
		} else {
			m.specularSource = specular
		}
	}

	if m.roughnessFromDiffuse || m.invertForRoughness {
		base := textureBaseName(m.specularSource)
		m.set("reflectionroughness_texture",
			fmt.Sprintf(`texture_2d("./textures/%s_roughness.dds", tex::gamma_linear)`, base))
		m.textureSources["reflectionroughness_texture"] = m.specularSource
	}
}

// mapParameters runs the family table over every valid source parameter.
func (m *mapper) mapParameters(valid map[string]any) {
	names := make([]string, 0, len(valid))
	for name := range valid {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if strings.HasPrefix(name, "_") {
			continue
		}
		value := valid[name]

		target, known := m.mapping.toTarget[name]
		if !known {
			// present in the family's parameter set but intentionally
			// unmapped (ior, clearcoat, uv transforms)
			m.warnf("parameter %q has no equivalent in the target schema", name)
			continue
		}
		if target == "" {
			m.mapDerivedOnly(name, value)
			continue
		}

		if m.src.Textures[name] || strings.HasSuffix(name, ".connect") {
			m.mapTexture(name, target, value)
			continue
		}
		m.mapConstant(name, target, value)
	}
}

// mapDerivedOnly handles source parameters whose mapping entry is empty:
// they never copy across, but feed derived rules.
func (m *mapper) mapDerivedOnly(name string, value any) {
	base := strings.TrimPrefix(strings.TrimSuffix(name, ".connect"), "inputs:")
	switch base {
	case "specular", "specular_level":
		if m.src.Textures[name] {
			return // handled by applyRoughnessFallbacks
		}
		specular, ok := toFloat(FixFloatParameter(value))
		if !ok || m.invertForRoughness || m.roughnessFromDiffuse {
			return
		}
		roughness, hasRoughness := m.sourceConstant("roughness", "reflection_roughness_constant")
		if hasRoughness && roughness == 1.0 && specular != 0.0 {
			m.set("reflection_roughness_constant", 1.0-specular)
		}
	case "opacity":
		// constants feed the blend rule in applyOpacityRules; textures map
		// through opacity_texture handling below
		if m.src.Textures[name] {
			m.mapTexture(name, "opacity_texture", value)
		}
	case "specular_texture":
		// consumed by applyRoughnessFallbacks
	}
}

func (m *mapper) sourceConstant(names ...string) (float64, bool) {
	for _, name := range names {
		for _, key := range []string{name, "inputs:" + name} {
			if m.src.Textures[key] {
				continue
			}
			if v, ok := m.src.Values[key]; ok {
				if f, okF := toFloat(FixFloatParameter(v)); okF {
					return f, true
				}
			}
		}
	}
	return 0, false
}

func (m *mapper) mapTexture(name, target string, value any) {
	raw, _ := value.(string)
	if target == "reflectionroughness_texture" && (m.invertForRoughness || m.roughnessFromDiffuse) {
		return // fallback already claimed the slot
	}
	fixed := FixTextureParameter(raw, target)
	m.set(target, fixed)
	if !strings.Contains(fixed, `texture_2d(""`) {
		m.textureSources[target] = raw
	}
}

func (m *mapper) mapConstant(name, target string, value any) {
	value = FixFloatParameter(value)

	// a texture claimed the same slot already
	if strings.HasSuffix(target, "_texture") {
		return
	}
	if target == "diffuse_color_constant" {
		if m.sourceTexture("diffuseColor", "diffuse_texture") != "" {
			return
		}
	}
	if target == "reflection_roughness_constant" && (m.invertForRoughness || m.roughnessFromDiffuse) {
		return
	}

	if c, isColor := asColorValue(value); isColor {
		m.set(target, c)
		return
	}

	if f, ok := toFloat(value); ok {
		if MatchesDefault(target, f) {
			return
		}
		m.set(target, f)
		return
	}
	if b, ok := value.(bool); ok {
		if MatchesDefault(target, b) {
			return
		}
		m.set(target, b)
		return
	}
	if s, ok := value.(string); ok {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			if !MatchesDefault(target, f) {
				m.set(target, f)
			}
			return
		}
		m.set(target, s)
		return
	}
	m.set(target, value)
}

func asColorValue(value any) (string, bool) {
	switch v := value.(type) {
	case Color:
		return v.String(), true
	case [3]float64:
		return Color{v[0], v[1], v[2]}.String(), true
	case string:
		if c, ok := ParseColor(v); ok {
			return c.String(), true
		}
	}
	return "", false
}

// applyEmissionRule gates emission on actual emissive content: a mask
// texture always enables it, a non-black color constant enables it, and
// anything else disables it and drops the dangling emissive parameters.
func (m *mapper) applyEmissionRule() {
	if _, hasTex := m.result.Params["emissive_mask_texture"]; hasTex {
		m.set("enable_emission", true)
		if !m.result.Authored["emissive_intensity"] {
			m.set("emissive_intensity", 1.0)
		}
		return
	}

	if v, ok := m.result.Params["emissive_color_constant"]; ok {
		if s, okS := v.(string); okS {
			if c, okC := ParseColor(s); okC && !c.IsBlack() {
				m.set("enable_emission", true)
				return
			}
		}
		if c, okC := v.(Color); okC && !c.IsBlack() {
			m.set("enable_emission", true)
			return
		}
	}

	m.unset("emissive_color_constant")
	m.unset("emissive_intensity")
	m.result.Params["enable_emission"] = false
}

// applyOpacityRules activates alpha blending for translucent materials and
// folds a separate opacity texture into the diffuse alpha channel, since
// the target renderer reads opacity only from there. Without a separate
// opacity texture, the diffuse texture itself is sniffed for alpha content.
func (m *mapper) applyOpacityRules() {
	if m.hasOpacityConstant && m.opacityConstant < 1.0 {
		m.set("blend_enabled", true)
		if m.family == FamilyOmniPBR {
			m.set("opacity_constant", m.opacityConstant)
		}
	}

	if !m.src.AutoBlendAlpha {
		return
	}

	if _, hasOpacityTex := m.result.Params["opacity_texture"]; hasOpacityTex {
		m.set("blend_enabled", true)
		if _, hasDiffuseTex := m.result.Params["diffuse_texture"]; hasDiffuseTex {
			// opacity merges into the diffuse alpha channel; the standalone
			// parameter goes away
			m.set("use_legacy_alpha_state", false)
			m.combineOpacitySource = m.textureSources["opacity_texture"]
			m.unset("opacity_texture")
			delete(m.textureSources, "opacity_texture")
		} else {
			m.set("use_legacy_alpha_state", true)
		}
		return
	}

	// no separate opacity texture: a diffuse texture carrying a real alpha
	// channel still needs blending
	if raw, ok := m.textureSources["diffuse_texture"]; ok {
		if source := ResolveTextureSource(raw, m.src.BaseDir); source != "" && TextureHasAlpha(source) {
			m.set("blend_enabled", true)
		}
	}
}

// applyBumpSplit recognizes bump/height/displacement maps wired into the
// normal input and splits them: a generated normal map plus the original
// data as a height texture.
func (m *mapper) applyBumpSplit() {
	source, ok := m.textureSources["normalmap_texture"]
	if !ok {
		return
	}
	base := textureBaseName(source)
	lower := strings.ToLower(base)

	suffix := ""
	for _, s := range []string{"_bump", "_height", "_displacement", "bump", "height", "displacement"} {
		if strings.HasSuffix(lower, s) {
			suffix = s
			break
		}
	}
	if suffix == "" {
		return
	}

	trimmed := base
	for _, s := range []string{"_bump", "_height", "_displacement"} {
		if strings.HasSuffix(lower, s) {
			trimmed = base[:len(base)-len(s)]
			break
		}
	}

	m.set("normalmap_texture",
		fmt.Sprintf(`texture_2d("./textures/%s_normal.dds", tex::gamma_linear)`, trimmed))
	m.set("height_texture",
		fmt.Sprintf(`texture_2d("./textures/%s_height.dds", tex::gamma_linear)`, trimmed))
	m.textureSources["height_texture"] = source
	m.bumpToNormal = true
}

// buildTextureTasks turns the collected texture sources into conversion
// tasks with resolved source paths.
func (m *mapper) buildTextureTasks() {
	for param, raw := range m.textureSources {
		source := ResolveTextureSource(raw, m.src.BaseDir)
		if source == "" {
			continue
		}
		output := outputNameFromParam(m.result.Params, param)
		task := TextureTask{
			Param:  param,
			Source: source,
			Output: output,
		}
		switch {
		case param == "reflectionroughness_texture" && m.roughnessFromDiffuse:
			task.Process = ProcessGrayscale
		case param == "reflectionroughness_texture" && m.invertForRoughness:
			task.Process = ProcessInvert
		case param == "normalmap_texture" && m.bumpToNormal:
			task.Process = ProcessBumpToNormal
		case param == "height_texture" && m.bumpToNormal:
			task.Process = ProcessNone
		case param == "diffuse_texture" && m.combineOpacitySource != "":
			task.Process = ProcessCombineAlpha
			task.AlphaSource = ResolveTextureSource(m.combineOpacitySource, m.src.BaseDir)
		}
		m.result.Textures = append(m.result.Textures, task)
	}
}

// outputNameFromParam extracts the output .dds file name from the authored
// texture_2d value for the parameter.
func outputNameFromParam(params TargetParameterSet, param string) string {
	v, _ := params[param].(string)
	p := ExtractTexturePath(v)
	if p == "" {
		return ""
	}
	return strings.TrimPrefix(p, "./textures/")
}

func textureBaseName(raw string) string {
	p := ExtractTexturePath(raw)
	p = strings.TrimPrefix(p, "./textures/")
	base := p
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return base
}
