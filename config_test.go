package remix

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
}

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")

	settings := DefaultSettings()
	settings.CompressorPath = "/opt/nvtt/nvtt_export"
	settings.UseGPU = true
	settings.Workers = 8
	require.NoError(t, settings.Save(path))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, settings, loaded)
}

func TestLoadSettingsPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("compressor_path = \"custom\"\n"), 0o644))

	settings, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", settings.CompressorPath)
	assert.Equal(t, DefaultSettings().Workers, settings.Workers)
	assert.Equal(t, DefaultSettings().MaxAttempts, settings.MaxAttempts)
}

func TestSettingsNewConverter(t *testing.T) {
	settings := DefaultSettings()
	settings.CompressorPath = "compressor"
	settings.Quality = "production"
	settings.MaxAttempts = 5
	settings.FailureBackoffSeconds = 1
	settings.NormalFormat = "dx"

	conv := settings.NewConverter()
	assert.Equal(t, "compressor", conv.CompressorPath)
	assert.Equal(t, "production", conv.Quality)
	assert.Equal(t, 5, conv.Retry.MaxAttempts)
	assert.Equal(t, time.Second, conv.Retry.FailureBackoff)
	assert.Equal(t, "dx", conv.NormalFormat)
	assert.Equal(t, NormalFormatDX, conv.normalFormat("rock_normal_ogl.png"))
}

func TestSettingsApplyRespectsCallerValues(t *testing.T) {
	settings := DefaultSettings()
	settings.Workers = 8

	opts := settings.Apply(ConvertOptions{InputPath: "scene.usda"})
	assert.Equal(t, 8, opts.Workers)
	assert.NotNil(t, opts.Converter)

	pinned := settings.Apply(ConvertOptions{InputPath: "scene.usda", Workers: 2})
	assert.Equal(t, 2, pinned.Workers)
}
