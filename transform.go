package remix

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// pbrSuffixes are filename endings that already identify a texture's slot.
// A texture carrying one of these keeps its name through conversion instead
// of having a slot suffix appended.
var pbrSuffixes = []string{
	"_diffuse", "_albedo", "_basecolor", "_color",
	"_normal", "_norm", "_bump", "_height",
	"_roughness", "_rough", "_gloss", "_glossiness",
	"_metallic", "_metal", "_metalness",
	"_ao", "_occlusion", "_ambient",
	"_emissive", "_emission", "_glow",
	"_opacity", "_alpha", "_transparency",
}

// HasPBRSuffix reports whether the file's base name (extension excluded)
// already ends in a recognized PBR slot suffix.
func HasPBRSuffix(filename string) bool {
	lower := strings.ToLower(filename)
	for _, suffix := range pbrSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

var texture2DRe = regexp.MustCompile(`texture_2d\("([^"]*)"`)

// ExtractTexturePath pulls the raw path out of a texture_2d(...) expression.
// If value is not a texture_2d expression it is returned unchanged, with
// surrounding @ markers stripped and path separators normalized.
func ExtractTexturePath(value string) string {
	if strings.Contains(value, "texture_2d(") {
		if m := texture2DRe.FindStringSubmatch(value); m != nil {
			value = m[1]
		}
	}
	return strings.ReplaceAll(strings.Trim(value, "@"), "\\", "/")
}

// FixColorParameter normalizes a color value to its canonical string form
// "color(r, g, b)". Strings are passed through; Color values and float
// triples are formatted.
func FixColorParameter(value any) any {
	switch v := value.(type) {
	case string:
		return v
	case Color:
		return v.String()
	case [3]float64:
		return Color{v[0], v[1], v[2]}.String()
	case []float64:
		if len(v) >= 3 {
			return Color{v[0], v[1], v[2]}.String()
		}
	}
	return value
}

// FixFloatParameter converts MDL-style float literals such as "0.5f" into
// numeric values. Non-string and unparsable values pass through.
func FixFloatParameter(value any) any {
	s, ok := value.(string)
	if !ok || !strings.HasSuffix(s, "f") {
		return value
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(s, "f"), 64)
	if err != nil {
		return value
	}
	return f
}

// FixTextureParameter formats a texture reference for the target parameter
// name: the output references a .dds file under ./textures/ carrying a slot
// suffix when the source name lacks a PBR suffix, wrapped in texture_2d()
// with the parameter's gamma mode. Empty or unconnected sources yield the
// texture_2d("", ...) sentinel.
func FixTextureParameter(value, targetParam string) string {
	gamma := "tex::gamma_linear"
	if TextureGammaMode(targetParam) == GammaSRGB {
		gamma = "tex::gamma_srgb"
	}

	if value == "" || value == `""` ||
		(strings.HasPrefix(value, "</") && strings.HasSuffix(value, ".outputs:rgb>")) {
		return fmt.Sprintf(`texture_2d("", %s)`, gamma)
	}

	texturePath := ExtractTexturePath(value)
	if texturePath == "" {
		return fmt.Sprintf(`texture_2d("", %s)`, gamma)
	}

	return fmt.Sprintf(`texture_2d("./textures/%s", %s)`, ConvertedTextureName(texturePath, targetParam), gamma)
}

// ConvertedTextureName returns the output file name a source texture maps to
// for the given target parameter: base name, slot suffix when needed, .dds
// extension.
func ConvertedTextureName(texturePath, targetParam string) string {
	clean := strings.TrimPrefix(texturePath, "./textures/")
	base := strings.TrimSuffix(path.Base(clean), path.Ext(clean))

	if HasPBRSuffix(base) {
		return base + ".dds"
	}

	slot := strings.ReplaceAll(strings.TrimSuffix(targetParam, "_texture"), "map", "")
	switch slot {
	case "diffuse":
		return base + "_albedo.dds"
	case "reflectionroughness":
		return base + "_roughness.dds"
	default:
		return base + "_" + slot + ".dds"
	}
}

// ResolveTextureSource resolves a raw texture reference to a source file
// path relative to the material file's directory. Empty references resolve
// to "". Absolute paths are kept as-is. The result always uses forward
// slashes.
func ResolveTextureSource(raw, baseDir string) string {
	p := ExtractTexturePath(raw)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.ToSlash(p)
	}
	if baseDir == "" {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(filepath.Join(baseDir, p))
}

// NormalizeTextureFile reduces a texture reference to its lowercased base
// file name, used when comparing whether two parameters point at the same
// source image.
func NormalizeTextureFile(value string) string {
	p := ExtractTexturePath(value)
	if p == "" {
		return ""
	}
	return strings.ToLower(path.Base(strings.TrimPrefix(p, "./textures/")))
}
