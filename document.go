package remix

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

// MaterialOverride is one material block in an override layer: the block
// name (mat_<hash> for captured materials) and the authored parameters to
// write into its shader.
type MaterialOverride struct {
	Name   string
	Params TargetParameterSet
}

// OverrideDocument is a material override layer: a set of material blocks
// under the mod's RootNode/Looks scope.
type OverrideDocument struct {
	UpAxis    string
	Materials []MaterialOverride
}

// NewOverrideDocument returns an empty document with the renderer's
// expected Z up axis.
func NewOverrideDocument() *OverrideDocument {
	return &OverrideDocument{UpAxis: "Z"}
}

// Add appends a material block to the document.
func (doc *OverrideDocument) Add(name string, params TargetParameterSet) {
	doc.Materials = append(doc.Materials, MaterialOverride{Name: name, Params: params})
}

// Encode writes the document as layer text: header, RootNode/Looks
// containers, and one over block per material in name order.
func (doc *OverrideDocument) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprint(bw, "#usda 1.0\n")
	fmt.Fprint(bw, "(\n")
	fmt.Fprint(bw, "    customLayerData = {\n")
	fmt.Fprint(bw, "        dictionary omni_layer = {\n")
	fmt.Fprint(bw, "            dictionary muteness = {\n")
	fmt.Fprint(bw, "            }\n")
	fmt.Fprint(bw, "        }\n")
	fmt.Fprint(bw, "    }\n")
	fmt.Fprintf(bw, "    upAxis = %q\n", doc.UpAxis)
	fmt.Fprint(bw, ")\n")
	fmt.Fprint(bw, "def \"RootNode\"\n")
	fmt.Fprint(bw, "{\n")
	fmt.Fprint(bw, "    def \"Looks\"\n")
	fmt.Fprint(bw, "    {\n")

	materials := make([]MaterialOverride, len(doc.Materials))
	copy(materials, doc.Materials)
	sort.Slice(materials, func(i, j int) bool { return materials[i].Name < materials[j].Name })

	for _, mat := range materials {
		fmt.Fprintf(bw, "        over %q\n", mat.Name)
		fmt.Fprint(bw, "        {\n")
		fmt.Fprint(bw, "            over \"Shader\"\n")
		fmt.Fprint(bw, "            {\n")
		for _, line := range parameterLines(mat.Params) {
			fmt.Fprintf(bw, "                %s\n", line)
		}
		fmt.Fprint(bw, "            }\n")
		fmt.Fprint(bw, "        }\n")
	}

	fmt.Fprint(bw, "    }\n")
	fmt.Fprint(bw, "}\n")
	return bw.Flush()
}

// WriteFile encodes the document to path, merging with any existing layer
// there: blocks for materials this document doesn't cover are preserved.
func (doc *OverrideDocument) WriteFile(path string) error {
	merged := doc
	if existing, err := os.ReadFile(path); err == nil {
		merged = doc.mergeExisting(string(existing))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing override layer: %w", err)
	}
	if err := merged.Encode(f); err != nil {
		f.Close()
		return fmt.Errorf("writing override layer: %w", err)
	}
	return f.Close()
}

// mergeExisting folds override blocks from an existing layer into a copy of
// the document. Blocks the document already covers are replaced by the new
// content; everything else survives as raw lines.
func (doc *OverrideDocument) mergeExisting(existing string) *OverrideDocument {
	merged := &OverrideDocument{UpAxis: doc.UpAxis}
	merged.Materials = append(merged.Materials, doc.Materials...)

	covered := map[string]bool{}
	for _, mat := range doc.Materials {
		covered[mat.Name] = true
	}

	for name, block := range extractOverrideBlocks(existing) {
		if covered[name] {
			continue
		}
		merged.Materials = append(merged.Materials, MaterialOverride{
			Name:   name,
			Params: parseShaderBlock(block),
		})
	}
	return merged
}

var overrideHeaderRe = regexp.MustCompile(`^\s*over\s+"([^"]+)"\s*$`)

// extractOverrideBlocks returns the material-level over blocks of a layer
// keyed by block name, each value holding the block's body text.
func extractOverrideBlocks(content string) map[string]string {
	blocks := map[string]string{}

	lines := strings.Split(content, "\n")
	for i := 0; i < len(lines); i++ {
		m := overrideHeaderRe.FindStringSubmatch(lines[i])
		if m == nil || !strings.HasPrefix(m[1], "mat_") {
			continue
		}
		name := m[1]
		depth := 0
		var body []string
		j := i + 1
		for ; j < len(lines); j++ {
			trimmed := strings.TrimSpace(lines[j])
			if trimmed == "{" {
				depth++
				if depth == 1 {
					continue
				}
			}
			if trimmed == "}" {
				depth--
				if depth == 0 {
					break
				}
			}
			if depth >= 1 {
				body = append(body, lines[j])
			}
		}
		blocks[name] = strings.Join(body, "\n")
		i = j
	}
	return blocks
}

var shaderInputRe = regexp.MustCompile(`^\s*(?:\w+\s+)?inputs:([\w]+)\s*=\s*(.+?)\s*$`)

// parseShaderBlock reads the inputs: lines of an override block back into a
// parameter set so a merge can re-emit them.
func parseShaderBlock(body string) TargetParameterSet {
	params := TargetParameterSet{}
	for _, line := range strings.Split(body, "\n") {
		m := shaderInputRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, raw := m[1], m[2]
		switch {
		case strings.HasPrefix(raw, "@"):
			gamma := "tex::gamma_linear"
			if TextureGammaMode(name) == GammaSRGB {
				gamma = "tex::gamma_srgb"
			}
			params[name] = fmt.Sprintf(`texture_2d(%q, %s)`, strings.Trim(raw, "@"), gamma)
		default:
			params[name] = parseAttrValue(raw)
		}
	}
	return params
}

// parameterLines renders a parameter set as typed shader input lines in
// name order. Empty texture slots are omitted rather than written as
// dangling asset references.
func parameterLines(params TargetParameterSet) []string {
	names := make([]string, 0, len(params))
	for name := range params {
		if strings.HasPrefix(name, "_") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var lines []string
	for _, name := range names {
		if line, ok := FormatParameterLine(name, params[name]); ok {
			lines = append(lines, line)
		}
	}
	return lines
}

// FormatParameterLine renders one shader input as a typed layer line,
// returning false for values that should not be written (empty textures,
// unknown types).
func FormatParameterLine(name string, value any) (string, bool) {
	if strings.HasSuffix(name, "_texture") {
		s, _ := value.(string)
		p := ExtractTexturePath(s)
		if p == "" {
			return "", false
		}
		return fmt.Sprintf("asset inputs:%s = @%s@", name, p), true
	}

	switch v := value.(type) {
	case bool:
		b := 0
		if v {
			b = 1
		}
		return fmt.Sprintf("bool inputs:%s = %d", name, b), true
	case int:
		return fmt.Sprintf("int inputs:%s = %d", name, v), true
	case float64:
		return fmt.Sprintf("float inputs:%s = %s", name, formatFloat(v)), true
	case Color:
		return fmt.Sprintf("color3f inputs:%s = (%s, %s, %s)", name,
			formatFloat(v.R), formatFloat(v.G), formatFloat(v.B)), true
	case string:
		if c, ok := ParseColor(v); ok {
			return fmt.Sprintf("color3f inputs:%s = (%s, %s, %s)", name,
				formatFloat(c.R), formatFloat(c.G), formatFloat(c.B)), true
		}
		return fmt.Sprintf("string inputs:%s = %q", name, v), true
	}
	return "", false
}
