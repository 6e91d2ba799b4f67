package remix

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// The stage reader understands the text scene-description subset that DCC
// exporters actually produce: layer metadata, nested prim definitions with
// per-prim metadata (references, instanceable), and attribute lines with
// scalar, color, asset, and connection values. Anything it doesn't
// recognize is skipped, not rejected.

var (
	primHeaderRe = regexp.MustCompile(`^(def|over|class)(?:\s+(\w+))?\s+"([^"]+)"\s*(\(?)\s*(\{?)$`)
	attrLineRe   = regexp.MustCompile(`^(?:custom\s+|uniform\s+)?([\w\[\]]+(?:\s+[\w\[\]]+)*?)\s+([\w:.]+)\s*=\s*(.+)$`)
	relLineRe    = regexp.MustCompile(`^(?:custom\s+)?(?:prepend\s+|append\s+)?rel\s+([\w:.]+)\s*=\s*(.+)$`)
	refTargetRe  = regexp.MustCompile(`(?:@([^@]+)@)?(<[^>]+>)?`)
	tupleRe      = regexp.MustCompile(`^\(\s*([-\d.eE+]+)\s*,\s*([-\d.eE+]+)\s*,\s*([-\d.eE+]+)\s*\)$`)
)

// ReadStageFile opens and parses a text stage file.
func ReadStageFile(path string) (*Stage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading stage: %w", err)
	}
	defer f.Close()

	stage, err := ReadStage(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	stage.SourcePath = path
	return stage, nil
}

// ReadStage parses a text stage from r.
func ReadStage(r io.Reader) (*Stage, error) {
	stage := NewStage()
	p := &stageParser{stage: stage, stack: []*Prim{stage.Root()}}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if first {
			first = false
			if !strings.HasPrefix(line, "#usda") {
				return nil, fmt.Errorf("missing #usda header")
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := p.line(line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(p.stack) != 1 {
		return nil, fmt.Errorf("unbalanced braces: %d prims left open", len(p.stack)-1)
	}
	return stage, nil
}

type parserMode int

const (
	modeBody parserMode = iota
	modeLayerMeta
	modePrimMeta
)

type stageParser struct {
	stage *Stage
	stack []*Prim
	mode  parserMode
	// pending holds a prim whose metadata block is being read before its
	// body opens.
	pending *Prim
	// seenPrim flips once the first prim header is parsed; a bare "(" before
	// that opens the layer metadata block.
	seenPrim    bool
	inSubLayers bool
}

func (p *stageParser) current() *Prim {
	return p.stack[len(p.stack)-1]
}

func (p *stageParser) line(line string) error {
	switch p.mode {
	case modeLayerMeta:
		return p.layerMetaLine(line)
	case modePrimMeta:
		return p.primMetaLine(line)
	}

	if line == "(" && !p.seenPrim && len(p.stack) == 1 {
		p.mode = modeLayerMeta
		return nil
	}

	if m := primHeaderRe.FindStringSubmatch(line); m != nil {
		p.seenPrim = true
		prim := p.current().AddChild(NewPrim(m[3], m[2]))
		switch m[1] {
		case "over":
			prim.SetSpecifier(SpecifierOver)
		case "class":
			prim.SetSpecifier(SpecifierClass)
		}
		if m[4] == "(" {
			p.pending = prim
			p.mode = modePrimMeta
			return nil
		}
		if m[5] == "{" {
			p.stack = append(p.stack, prim)
			return nil
		}
		p.pending = prim
		return nil
	}

	switch line {
	case "{":
		if p.pending != nil {
			p.stack = append(p.stack, p.pending)
			p.pending = nil
		}
		return nil
	case "}":
		if len(p.stack) == 1 {
			return fmt.Errorf("unexpected closing brace")
		}
		p.stack = p.stack[:len(p.stack)-1]
		return nil
	case "(":
		if p.pending != nil {
			p.mode = modePrimMeta
		}
		return nil
	}

	if len(p.stack) > 1 {
		p.attributeLine(line)
	}
	return nil
}

func (p *stageParser) layerMetaLine(line string) error {
	if line == ")" {
		p.mode = modeBody
		p.inSubLayers = false
		return nil
	}
	if p.inSubLayers {
		if strings.HasPrefix(line, "]") {
			p.inSubLayers = false
			return nil
		}
		p.stage.SubLayers = append(p.stage.SubLayers, parseAssetList(line)...)
		return nil
	}
	key, value, found := strings.Cut(line, "=")
	if !found {
		return nil
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	switch key {
	case "upAxis":
		p.stage.UpAxis = strings.Trim(value, `"`)
	case "metersPerUnit":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			p.stage.MetersPerUnit = f
		}
	case "subLayers":
		if strings.HasSuffix(value, "]") {
			p.stage.SubLayers = append(p.stage.SubLayers, parseAssetList(strings.Trim(value, "[]"))...)
		} else {
			p.inSubLayers = true
		}
	}
	return nil
}

func (p *stageParser) primMetaLine(line string) error {
	prim := p.pending
	if prim == nil {
		return fmt.Errorf("prim metadata outside a prim header")
	}

	if strings.HasSuffix(line, "{") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "{"))
		defer func() {
			p.stack = append(p.stack, prim)
			p.pending = nil
			p.mode = modeBody
		}()
	}
	if line == ")" || strings.HasPrefix(line, ")") {
		if p.mode == modePrimMeta && !strings.HasSuffix(line, "{") {
			p.mode = modeBody
		}
		return nil
	}
	if line == "" {
		return nil
	}

	key, value, found := strings.Cut(line, "=")
	if !found {
		return nil
	}
	key = strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(key), "prepend "), "append "))
	value = strings.TrimSpace(value)

	switch key {
	case "instanceable":
		prim.Instanceable = value == "true" || value == "1"
	case "references":
		for _, target := range parseReferenceTargets(value) {
			prim.References = append(prim.References, target)
		}
	}
	return nil
}

func (p *stageParser) attributeLine(line string) {
	prim := p.current()

	if m := relLineRe.FindStringSubmatch(line); m != nil {
		name, value := m[1], strings.TrimSpace(m[2])
		if strings.HasPrefix(value, "[") {
			prim.Attributes().Get(name).Set(parsePathList(value))
		} else {
			prim.Attributes().Get(name).Set(strings.Trim(value, "<>"))
		}
		return
	}

	line = stripAttrMetadata(line)

	m := attrLineRe.FindStringSubmatch(line)
	if m == nil {
		return
	}
	name, raw := m[2], strings.TrimSpace(m[3])

	if strings.HasSuffix(name, ".connect") {
		base := strings.TrimSuffix(name, ".connect")
		attr := prim.Attributes().Get(base)
		attr.Connection = strings.Trim(raw, "<>")
		prim.Attributes().Get(name).Set(attr.Connection)
		return
	}

	prim.Attributes().Get(name).Set(parseAttrValue(raw))
}

// stripAttrMetadata removes a trailing per-attribute metadata block from an
// attribute line: name = value ( ... ). The parenthesized block only counts
// as metadata when it follows a complete value; tuple values start with "("
// themselves and keep their first balanced group.
func stripAttrMetadata(line string) string {
	if !strings.HasSuffix(line, ")") {
		return line
	}
	eq := strings.Index(line, "=")
	if eq < 0 {
		return line
	}
	value := strings.TrimSpace(line[eq+1:])
	if strings.HasPrefix(value, "(") {
		end := strings.Index(value, ")")
		if end < 0 || end == len(value)-1 {
			return line
		}
		if rest := strings.TrimSpace(value[end+1:]); !strings.HasPrefix(rest, "(") {
			return line
		}
		return strings.TrimSpace(line[:eq+1]) + " " + value[:end+1]
	}
	if idx := strings.LastIndex(line, " ("); idx > eq {
		return strings.TrimSpace(line[:idx])
	}
	return line
}

func parseAttrValue(raw string) any {
	switch {
	case raw == "true":
		return true
	case raw == "false":
		return false
	case strings.HasPrefix(raw, `"`):
		return strings.Trim(raw, `"`)
	case strings.HasPrefix(raw, "@"):
		return strings.Trim(raw, "@")
	case strings.HasPrefix(raw, "<"):
		return strings.Trim(raw, "<>")
	}
	if m := tupleRe.FindStringSubmatch(raw); m != nil {
		r, _ := strconv.ParseFloat(m[1], 64)
		g, _ := strconv.ParseFloat(m[2], 64)
		b, _ := strconv.ParseFloat(m[3], 64)
		return Color{r, g, b}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	// arrays and anything else are kept verbatim
	return raw
}

// parseReferenceTargets extracts reference targets from a references
// metadata value: @asset.usda@</prim>, bare </prim>, or lists of either.
func parseReferenceTargets(value string) []string {
	value = strings.Trim(value, "[]")
	var targets []string
	for _, part := range splitTopLevel(value) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := refTargetRe.FindStringSubmatch(part)
		if m == nil {
			continue
		}
		switch {
		case m[1] != "" && m[2] != "":
			targets = append(targets, m[1]+m[2])
		case m[1] != "":
			targets = append(targets, m[1])
		case m[2] != "":
			targets = append(targets, strings.Trim(m[2], "<>"))
		}
	}
	return targets
}

func parseAssetList(value string) []string {
	var assets []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		assets = append(assets, strings.Trim(part, "@"))
	}
	return assets
}

func parsePathList(value string) []string {
	var paths []string
	for _, part := range strings.Split(strings.Trim(value, "[]"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		paths = append(paths, strings.Trim(part, "<>"))
	}
	return paths
}

// splitTopLevel splits on commas that are not inside <> or @@ pairs.
func splitTopLevel(value string) []string {
	var parts []string
	depth := 0
	inAsset := false
	start := 0
	for i, r := range value {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case '@':
			inAsset = !inAsset
		case ',':
			if depth == 0 && !inAsset {
				parts = append(parts, value[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, value[start:])
	return parts
}
