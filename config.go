package remix

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Settings is the persisted converter configuration, stored as TOML next
// to the project it converts.
type Settings struct {
	// CompressorPath locates the block compressor executable.
	CompressorPath string `toml:"compressor_path"`
	// UseGPU enables CUDA compression.
	UseGPU bool `toml:"use_gpu"`
	// Quality is the compressor quality preset.
	Quality string `toml:"quality"`
	// NormalFormat forces the normal-map green channel convention: "ogl",
	// "dx", or "auto" to detect from file names.
	NormalFormat string `toml:"normal_format"`
	// ConvertTextures toggles the texture pipeline.
	ConvertTextures bool `toml:"convert_textures"`
	// AutoBlendAlpha enables alpha blending when the diffuse texture
	// carries an alpha channel.
	AutoBlendAlpha bool `toml:"auto_blend_alpha"`
	// Workers bounds concurrent texture conversions.
	Workers int `toml:"workers"`
	// MaxAttempts bounds compressor retries per texture.
	MaxAttempts int `toml:"max_attempts"`
	// FailureBackoffSeconds is the wait between failed attempts.
	FailureBackoffSeconds int `toml:"failure_backoff_seconds"`
}

// DefaultSettings returns the out-of-the-box configuration.
func DefaultSettings() Settings {
	return Settings{
		CompressorPath:        "nvtt_export",
		Quality:               "normal",
		NormalFormat:          "auto",
		ConvertTextures:       true,
		Workers:               4,
		MaxAttempts:           3,
		FailureBackoffSeconds: 2,
	}
}

// LoadSettings reads the TOML settings file. A missing file is not an
// error: it yields the defaults, so a first run needs no setup.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("reading settings: %w", err)
	}
	if err := toml.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return settings, nil
}

// Save writes the settings as TOML.
func (settings Settings) Save(path string) error {
	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

// NewConverter builds a texture converter from the settings.
func (settings Settings) NewConverter() *TextureConverter {
	conv := NewTextureConverter(settings.CompressorPath, settings.UseGPU)
	if settings.Quality != "" {
		conv.Quality = settings.Quality
	}
	conv.NormalFormat = settings.NormalFormat
	if settings.MaxAttempts > 0 {
		conv.Retry.MaxAttempts = settings.MaxAttempts
	}
	if settings.FailureBackoffSeconds > 0 {
		conv.Retry.FailureBackoff = time.Duration(settings.FailureBackoffSeconds) * time.Second
	}
	return conv
}

// Apply folds the settings into conversion options, leaving anything the
// caller already set alone.
func (settings Settings) Apply(opts ConvertOptions) ConvertOptions {
	if opts.CompressorPath == "" {
		opts.CompressorPath = settings.CompressorPath
	}
	if !opts.UseGPU {
		opts.UseGPU = settings.UseGPU
	}
	if opts.Workers == 0 {
		opts.Workers = settings.Workers
	}
	if opts.Converter == nil && settings.ConvertTextures {
		opts.Converter = settings.NewConverter()
	}
	return opts
}
