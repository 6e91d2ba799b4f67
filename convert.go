package remix

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ConvertOptions configures one conversion run.
type ConvertOptions struct {
	// InputPath is the scene to convert (.usda/.usd text, or .gltf/.glb).
	InputPath string
	// OutputPath is the material override layer to write. Defaults to the
	// input's name with a _remix.usda suffix, under OutputDir.
	OutputPath string
	// OutputDir is where outputs land. Defaults to the input's directory.
	OutputDir string
	// ManifestPath is an existing mod.usda to register the output into as a
	// sublayer. Empty skips registration.
	ManifestPath string
	// ConvertTextures runs the texture compressor on referenced textures.
	ConvertTextures bool
	// AutoBlendAlpha enables alpha blending when a diffuse texture carries
	// an alpha channel.
	AutoBlendAlpha bool
	// Workers bounds concurrent texture conversions. Defaults to 4.
	Workers int
	// Converter overrides the texture converter. Nil builds a default one.
	Converter *TextureConverter
	// CompressorPath locates the texture compressor binary when Converter
	// is nil.
	CompressorPath string
	// UseGPU enables CUDA compression when Converter is nil.
	UseGPU bool
	// ReportPath writes a JSON conversion report when set.
	ReportPath string
	// ExternalRefs keeps prototype references pointing at their source
	// files instead of expecting everything inlined in one layer.
	ExternalRefs bool
	// Binary requests crate (binary) output. Only text output is
	// implemented; the flag is accepted and downgraded with a warning.
	Binary bool
	// Interpolation is the primvar interpolation mode for emitted
	// geometry: "faceVarying", "vertex", or "none". Empty means
	// "faceVarying".
	Interpolation string
	// GenerateUVs authors fallback UV coordinates on prototypes missing
	// them.
	GenerateUVs bool
}

// interpolationModes are the accepted --interpolation values.
var interpolationModes = map[string]bool{
	"faceVarying": true,
	"vertex":      true,
	"none":        true,
}

func (opts *ConvertOptions) fillDefaults() {
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Dir(opts.InputPath)
	}
	if opts.OutputPath == "" {
		base := filepath.Base(opts.InputPath)
		stem := strings.TrimSuffix(base, filepath.Ext(base))
		opts.OutputPath = filepath.Join(opts.OutputDir, stem+"_remix.usda")
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
}

// LoadStage reads a scene file into a Stage, picking the reader by
// extension.
func LoadStage(path string) (*Stage, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".usda", ".usd":
		return ReadStageFile(path)
	case ".gltf", ".glb":
		return ReadGLTFStage(path)
	default:
		return nil, fmt.Errorf("unsupported scene format %q", filepath.Ext(path))
	}
}

// Convert runs the full pipeline on one scene: classify its instancing
// pattern, collect instance and material data, map materials into the
// target schema, convert referenced textures, write the override layer,
// and register it with the mod manifest.
//
// Per-material and per-texture failures are recorded in the report and do
// not abort the run. Structural failures (unreadable input, unclassifiable
// scene, missing prerequisites, unwritable output) return an error.
func Convert(ctx context.Context, opts ConvertOptions) (*ConversionReport, error) {
	opts.fillDefaults()
	if opts.Interpolation == "" {
		opts.Interpolation = "faceVarying"
	}
	if !interpolationModes[opts.Interpolation] {
		return nil, fmt.Errorf("invalid interpolation mode %q (want faceVarying, vertex, or none)", opts.Interpolation)
	}
	if opts.Binary {
		logger.Warn("binary output is not supported, writing text instead", "output", opts.OutputPath)
	}

	stage, err := LoadStage(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("loading scene: %w", err)
	}

	detection, err := DetectInstancingPattern(stage)
	if err != nil {
		return nil, fmt.Errorf("classifying scene: %w", err)
	}
	logger.Info("scene classified",
		"input", opts.InputPath,
		"pattern", detection.Pattern.String(),
		"evidence", detection.Evidence.String())

	if err := CheckPrerequisites(stage, detection.Pattern); err != nil {
		return nil, err
	}

	data, err := CollectInstanceData(stage, detection.Pattern)
	if err != nil {
		return nil, fmt.Errorf("collecting instances: %w", err)
	}

	report := newConversionReport(opts.InputPath, opts.OutputPath, detection.Pattern)
	report.Interpolation = opts.Interpolation
	report.ExternalRefs = opts.ExternalRefs
	report.GenerateUVs = opts.GenerateUVs
	report.InstanceGroups = len(data.Groups)
	for _, group := range data.Groups {
		report.Instances += len(group.Instances)
	}
	report.UniqueObjects = len(data.Singles)
	report.Warnings = append(report.Warnings, data.Warnings...)

	doc := NewOverrideDocument()
	var tasks []TextureTask
	seenOutputs := map[string]bool{}

	for _, mat := range sortedByPath(data.Materials) {
		entry := MaterialReport{Name: mat.Name()}

		family, shader, err := DetectShaderFamily(mat)
		if err != nil {
			logger.Warn("skipping material with unrecognized shader", "material", mat.Path(), "err", err)
			entry.Family = FamilyUnknown.String()
			entry.Skipped = true
			entry.SkipReason = err.Error()
			report.Materials = append(report.Materials, entry)
			continue
		}
		entry.Family = family.String()

		src := CollectShaderParameters(family, shader)
		src.BaseDir = filepath.Dir(opts.InputPath)
		src.AutoBlendAlpha = opts.AutoBlendAlpha

		result, err := MapMaterial(family, src)
		if err != nil {
			logger.Warn("skipping unmappable material", "material", mat.Path(), "err", err)
			entry.Skipped = true
			entry.SkipReason = err.Error()
			report.Materials = append(report.Materials, entry)
			continue
		}

		authored := result.AuthoredParams()
		doc.Add(MaterialOverrideName(mat.Name()), authored)
		entry.Parameters = stringifyParameters(authored)
		entry.Warnings = result.Warnings
		report.Materials = append(report.Materials, entry)

		for _, task := range result.Textures {
			if seenOutputs[task.Output] {
				continue
			}
			seenOutputs[task.Output] = true
			tasks = append(tasks, task)
		}
	}

	if opts.ConvertTextures && len(tasks) > 0 {
		conv := opts.Converter
		if conv == nil {
			conv = NewTextureConverter(opts.CompressorPath, opts.UseGPU)
		}
		texturesDir := filepath.Join(opts.OutputDir, "textures")
		sort.Slice(tasks, func(i, j int) bool { return tasks[i].Output < tasks[j].Output })

		for i, outcome := range convertTextures(ctx, conv, tasks, texturesDir, opts.Workers) {
			task := tasks[i]
			tex := TextureReport{
				Source:   task.Source,
				Output:   task.Output,
				Process:  task.Process.String(),
				SizeTier: sizeTierLabel(task.Source),
			}
			if outcome.err != nil {
				tex.Error = outcome.err.Error()
				tex.Fallback = outcome.produced
			}
			report.Textures = append(report.Textures, tex)
		}
	}

	if err := doc.WriteFile(opts.OutputPath); err != nil {
		return report, fmt.Errorf("writing override layer: %w", err)
	}
	logger.Info("override layer written",
		"output", opts.OutputPath,
		"materials", len(doc.Materials),
		"textures", len(tasks))

	if opts.ManifestPath != "" {
		rel := manifestRelativePath(opts.ManifestPath, opts.OutputPath)
		if err := EnsureSubLayer(opts.ManifestPath, rel); err != nil {
			return report, fmt.Errorf("registering sublayer: %w", err)
		}
	}

	if opts.ReportPath != "" {
		if err := report.WriteFile(opts.ReportPath); err != nil {
			return report, err
		}
	}
	return report, nil
}

// MaterialOverrideName returns the output block name for a source
// material. Capture-style names already carrying the mat_ prefix pass
// through; anything else gets a stable hash-derived name.
func MaterialOverrideName(name string) string {
	if strings.HasPrefix(name, "mat_") {
		return name
	}
	sum := md5.Sum([]byte(name))
	return "mat_" + strings.ToUpper(hex.EncodeToString(sum[:8]))
}

type textureOutcome struct {
	// produced reports that an output file exists, via conversion or
	// fallback copy.
	produced bool
	err      error
}

// convertTextures runs the tasks through the converter with at most
// workers in flight, returning outcomes in task order.
func convertTextures(ctx context.Context, conv *TextureConverter, tasks []TextureTask, outputDir string, workers int) []textureOutcome {
	outcomes := make([]textureOutcome, len(tasks))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task TextureTask) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			produced, err := conv.Convert(ctx, task, outputDir)
			outcomes[i] = textureOutcome{produced: produced, err: err}
		}(i, task)
	}
	wg.Wait()
	return outcomes
}

func sortedByPath(prims []*Prim) []*Prim {
	out := append([]*Prim(nil), prims...)
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// manifestRelativePath expresses the output layer's path relative to the
// manifest's directory, ./-prefixed the way hand-authored mod files list
// their sublayers.
func manifestRelativePath(manifestPath, outputPath string) string {
	rel, err := filepath.Rel(filepath.Dir(manifestPath), outputPath)
	if err != nil {
		return filepath.ToSlash(outputPath)
	}
	rel = filepath.ToSlash(rel)
	if !strings.HasPrefix(rel, ".") {
		rel = "./" + rel
	}
	return rel
}
