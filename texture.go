package remix

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// TextureType is the semantic classification that drives compression format
// and gamma handling.
type TextureType string

const (
	TextureAlbedo    TextureType = "albedo"
	TextureRoughness TextureType = "roughness"
	TextureMetallic  TextureType = "metallic"
	TextureNormal    TextureType = "normal"
	TextureEmissive  TextureType = "emissive"
	TextureHeight    TextureType = "height"
	TextureAO        TextureType = "ao"
	TextureAlpha     TextureType = "alpha"
)

// typeKeywords maps filename keywords to texture types. Detection matches
// the longest keyword first so specific names beat generic ones.
var typeKeywords = map[string]TextureType{
	"albedo":       TextureAlbedo,
	"basecolor":    TextureAlbedo,
	"diffuse":      TextureAlbedo,
	"color":        TextureAlbedo,
	"roughness":    TextureRoughness,
	"rough":        TextureRoughness,
	"gloss":        TextureRoughness,
	"glossiness":   TextureRoughness,
	"metallic":     TextureMetallic,
	"metalness":    TextureMetallic,
	"metal":        TextureMetallic,
	"normal":       TextureNormal,
	"norm":         TextureNormal,
	"bump":         TextureHeight,
	"height":       TextureHeight,
	"displacement": TextureHeight,
	"emissive":     TextureEmissive,
	"emission":     TextureEmissive,
	"glow":         TextureEmissive,
	"occlusion":    TextureAO,
	"ambient":      TextureAO,
	"ao":           TextureAO,
	"opacity":      TextureAlpha,
	"alpha":        TextureAlpha,
	"transparency": TextureAlpha,
	"mask":         TextureAlpha,
}

// DetectTextureType classifies a texture by its filename stem. Keywords are
// tried longest first; unmatched names default to albedo.
func DetectTextureType(filename string) TextureType {
	stem := strings.ToLower(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))

	keywords := make([]string, 0, len(typeKeywords))
	for k := range typeKeywords {
		keywords = append(keywords, k)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if len(keywords[i]) != len(keywords[j]) {
			return len(keywords[i]) > len(keywords[j])
		}
		return keywords[i] < keywords[j]
	})

	for _, k := range keywords {
		if strings.Contains(stem, k) {
			return typeKeywords[k]
		}
	}
	return TextureAlbedo
}

// TextureTypeForParam classifies a texture by the target parameter it
// feeds, which is authoritative when known.
func TextureTypeForParam(param string) TextureType {
	switch {
	case strings.Contains(param, "diffuse"):
		return TextureAlbedo
	case strings.Contains(param, "roughness"):
		return TextureRoughness
	case strings.Contains(param, "metallic"):
		return TextureMetallic
	case strings.Contains(param, "normal"):
		return TextureNormal
	case strings.Contains(param, "emissive"):
		return TextureEmissive
	case strings.Contains(param, "height"):
		return TextureHeight
	case strings.Contains(param, "opacity"):
		return TextureAlpha
	case strings.Contains(param, "subsurface"):
		return TextureAlbedo
	}
	return TextureAlbedo
}

// CompressionFormat returns the block-compression format for a texture
// type: two-channel for normals, single-channel for mask-like data, and
// high quality for color.
func CompressionFormat(texType TextureType) string {
	switch texType {
	case TextureNormal:
		return "bc5"
	case TextureRoughness, TextureMetallic, TextureHeight, TextureAO, TextureAlpha:
		return "bc4"
	default:
		return "bc7"
	}
}

// GammaCorrectMips reports whether mip generation should gamma-correct for
// a texture type. Color data needs it; single- and two-channel data must
// not have it.
func GammaCorrectMips(texType TextureType) bool {
	switch texType {
	case TextureAlbedo, TextureEmissive:
		return true
	}
	return false
}

// ConversionTimeout sizes the external-process timeout by input file size.
func ConversionTimeout(fileSize int64) time.Duration {
	const mb = 1 << 20
	switch {
	case fileSize < 1*mb:
		return 30 * time.Second
	case fileSize < 10*mb:
		return 60 * time.Second
	default:
		return 120 * time.Second
	}
}

// CommandRunner invokes an external command, honoring ctx cancellation by
// killing the process.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands through os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// RetryPolicy bounds the converter's retry loop. Timeouts back off longer
// than plain failures because the compressor tends to need GPU recovery
// time after a hang.
type RetryPolicy struct {
	MaxAttempts    int
	FailureBackoff time.Duration
	TimeoutBackoff time.Duration
}

// DefaultRetryPolicy mirrors the converter's shipped settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		FailureBackoff: 2 * time.Second,
		TimeoutBackoff: 5 * time.Second,
	}
}

// TextureFailure records a texture that could not be converted properly,
// fallback copy or not.
type TextureFailure struct {
	Source string
	Output string
	Err    string
}

// TextureConverter drives the external block compressor: per-texture format
// and gamma selection, size-tiered timeouts, bounded retries with backoff,
// and a fallback copy so output references never dangle.
type TextureConverter struct {
	// CompressorPath is the compressor executable.
	CompressorPath string
	// UseGPU leaves CUDA acceleration on; when false the compressor is told
	// to stay on the CPU.
	UseGPU bool
	// Quality is the compressor quality preset.
	Quality string
	// NormalFormat forces the normal-map green channel convention ("ogl" or
	// "dx"); empty or "auto" detects it from file names.
	NormalFormat string

	Runner CommandRunner
	Retry  RetryPolicy
	Logger *slog.Logger

	// Sleep is the backoff sleeper, replaceable in tests.
	Sleep func(time.Duration)
	// KillOrphans terminates leftover compressor processes after a timeout,
	// best effort.
	KillOrphans func()

	mu       sync.Mutex
	failures []TextureFailure
}

// NewTextureConverter returns a converter with the default runner, retry
// policy, and logger.
func NewTextureConverter(compressorPath string, useGPU bool) *TextureConverter {
	conv := &TextureConverter{
		CompressorPath: compressorPath,
		UseGPU:         useGPU,
		Quality:        "normal",
		Runner:         ExecRunner{},
		Retry:          DefaultRetryPolicy(),
		Logger:         slog.Default(),
		Sleep:          time.Sleep,
	}
	conv.KillOrphans = func() { killProcessesNamed(filepath.Base(compressorPath)) }
	return conv
}

// Failures returns the textures that failed conversion so far, in record
// order.
func (conv *TextureConverter) Failures() []TextureFailure {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	out := make([]TextureFailure, len(conv.failures))
	copy(out, conv.failures)
	return out
}

func (conv *TextureConverter) recordFailure(source, output string, err error) {
	conv.mu.Lock()
	defer conv.mu.Unlock()
	conv.failures = append(conv.failures, TextureFailure{
		Source: source,
		Output: output,
		Err:    err.Error(),
	})
}

// Convert produces task.Output (a .dds next to outputDir) from task.Source.
// It preprocesses per the task (grayscale, inversion, bump-to-normal and
// octahedral encoding, alpha combination), then invokes the compressor with
// retries. After exhausting retries it copies the source to the output path
// so the reference resolves, returns true, and records the failure; the
// returned error carries the diagnostic in that case.
func (conv *TextureConverter) Convert(ctx context.Context, task TextureTask, outputDir string) (bool, error) {
	outputPath := filepath.Join(outputDir, task.Output)
	if filepath.Ext(outputPath) != ".dds" {
		outputPath = strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".dds"
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return false, fmt.Errorf("creating texture output dir: %w", err)
	}

	texType := TextureTypeForParam(task.Param)
	if task.Param == "" {
		texType = DetectTextureType(task.Source)
	}

	inputPath, cleanup, err := conv.preprocess(task, texType)
	if err != nil {
		conv.Logger.Warn("texture preprocessing failed, converting source directly",
			"source", task.Source, "error", err)
		inputPath = task.Source
	}
	if cleanup != nil {
		defer cleanup()
	}

	if err := conv.compress(ctx, inputPath, outputPath, texType); err != nil {
		fallbackErr := copyFile(task.Source, outputPath)
		if fallbackErr != nil {
			conv.recordFailure(task.Source, outputPath, errors.Join(err, fallbackErr))
			return false, fmt.Errorf("converting %s: %w", filepath.Base(task.Source), errors.Join(err, fallbackErr))
		}
		conv.recordFailure(task.Source, outputPath, err)
		conv.Logger.Warn("texture conversion failed, copied original as fallback",
			"source", task.Source, "output", outputPath, "error", err)
		return true, fmt.Errorf("converting %s (fallback copy used): %w", filepath.Base(task.Source), err)
	}
	return true, nil
}

// compress runs the retry loop around the external compressor.
func (conv *TextureConverter) compress(ctx context.Context, inputPath, outputPath string, texType TextureType) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	timeout := ConversionTimeout(info.Size())
	args := conv.buildArgs(inputPath, outputPath, texType)

	attempts := conv.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := conv.Runner.Run(attemptCtx, conv.CompressorPath, args...)
		cancel()

		if err == nil {
			if _, statErr := os.Stat(outputPath); statErr == nil {
				return nil
			}
			err = fmt.Errorf("compressor reported success but produced no output")
		}
		lastErr = err

		// partial output would shadow the next attempt's result
		os.Remove(outputPath)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == attempts {
			break
		}

		timedOut := errors.Is(err, context.DeadlineExceeded)
		if timedOut && conv.KillOrphans != nil {
			conv.KillOrphans()
		}
		backoff := conv.Retry.FailureBackoff
		if timedOut {
			backoff = conv.Retry.TimeoutBackoff
		}
		conv.Logger.Warn("texture compression attempt failed",
			"input", filepath.Base(inputPath), "attempt", attempt, "timeout", timedOut, "error", err)
		if conv.Sleep != nil && backoff > 0 {
			conv.Sleep(backoff)
		}
	}
	return lastErr
}

func (conv *TextureConverter) buildArgs(inputPath, outputPath string, texType TextureType) []string {
	var args []string
	if !conv.UseGPU {
		args = append(args, "--no-cuda")
	}
	args = append(args, inputPath, "-o", outputPath)
	args = append(args, "-f", CompressionFormat(texType))
	args = append(args, "-q", conv.Quality)
	if GammaCorrectMips(texType) {
		args = append(args, "--mip-gamma-correct")
	} else {
		args = append(args, "--no-mip-gamma-correct")
	}
	args = append(args, "--mips")
	return args
}

// preprocess materializes the task's intermediate image when processing is
// needed, returning the path the compressor should read. Normal maps are
// octahedrally re-encoded even without an explicit processing step.
func (conv *TextureConverter) preprocess(task TextureTask, texType TextureType) (string, func(), error) {
	switch task.Process {
	case ProcessGrayscale:
		return conv.writeTemp(task, func(img *imageRGBA) (*imageRGBA, error) {
			return grayscaleImage(img), nil
		})
	case ProcessInvert:
		return conv.writeTemp(task, func(img *imageRGBA) (*imageRGBA, error) {
			return invertImage(grayscaleImage(img)), nil
		})
	case ProcessBumpToNormal:
		return conv.writeTemp(task, func(img *imageRGBA) (*imageRGBA, error) {
			return encodeOctahedral(normalFromHeight(img), NormalFormatOGL), nil
		})
	case ProcessCombineAlpha:
		return conv.writeTemp(task, func(img *imageRGBA) (*imageRGBA, error) {
			mask, err := loadImage(task.AlphaSource)
			if err != nil {
				return nil, fmt.Errorf("loading alpha source: %w", err)
			}
			return combineAlpha(img, mask), nil
		})
	}

	if texType == TextureNormal {
		format := conv.normalFormat(task.Source)
		return conv.writeTemp(task, func(img *imageRGBA) (*imageRGBA, error) {
			return encodeOctahedral(img, format), nil
		})
	}
	return task.Source, nil, nil
}

// normalFormat resolves the normal-map convention for a source file: the
// converter's forced setting when one is configured, filename detection
// otherwise. Bump-derived maps skip this since they are generated green-up.
func (conv *TextureConverter) normalFormat(path string) NormalFormat {
	switch conv.NormalFormat {
	case "ogl", "gl", "opengl":
		return NormalFormatOGL
	case "dx", "directx":
		return NormalFormatDX
	}
	return DetectNormalFormat(path)
}

func (conv *TextureConverter) writeTemp(task TextureTask, process func(*imageRGBA) (*imageRGBA, error)) (string, func(), error) {
	img, err := loadImage(task.Source)
	if err != nil {
		return "", nil, err
	}
	out, err := process(img)
	if err != nil {
		return "", nil, err
	}

	f, err := os.CreateTemp("", "remix-tex-*.png")
	if err != nil {
		return "", nil, err
	}
	if err := savePNG(f, out); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	name := f.Name()
	return name, func() { os.Remove(name) }, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("fallback copy: %w", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("fallback copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("fallback copy: %w", err)
	}
	return out.Close()
}

// killProcessesNamed terminates stray processes by executable name, best
// effort. Compressor instances can outlive a timed-out parent when the
// driver hangs.
func killProcessesNamed(name string) {
	if name == "" || name == "." {
		return
	}
	_ = exec.Command("pkill", "-9", "-f", name).Run()
}
