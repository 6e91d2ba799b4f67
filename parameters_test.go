package remix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetDefaultsCoverRegistry(t *testing.T) {
	require.Equal(t, TargetParameterCount(), len(targetDefaults))
	for _, name := range TargetParameterList() {
		_, ok := DefaultValue(name)
		assert.True(t, ok, "missing default for %s", name)
	}
}

func TestNewTargetParameterSetIsComplete(t *testing.T) {
	params := NewTargetParameterSet()
	require.Equal(t, TargetParameterCount(), len(params))
	assert.Equal(t, 0.5, params["reflection_roughness_constant"])
	assert.Equal(t, NewColor(0.8, 0.8, 0.8), params["diffuse_color_constant"])
	assert.Equal(t, true, params["use_legacy_alpha_state"])
	assert.Equal(t, "", params["diffuse_texture"])
}

func TestValidateTargetParameters(t *testing.T) {
	params := TargetParameterSet{
		"metallic_constant": 1.0,
		"_invert_for_roughness": true,
		"bogus_param":       42,
	}
	valid, invalid := ValidateTargetParameters(params)
	assert.Contains(t, valid, "metallic_constant")
	assert.Contains(t, valid, "_invert_for_roughness")
	assert.Equal(t, []string{"bogus_param"}, invalid)
}

func TestCleanTargetParametersFillsDefaults(t *testing.T) {
	cleaned, invalid := CleanTargetParameters(TargetParameterSet{
		"opacity_constant": 0.4,
	})
	assert.Empty(t, invalid)
	assert.Equal(t, 0.4, cleaned["opacity_constant"])
	// everything else picks up its default
	assert.Equal(t, 200.0, cleaned["thin_film_thickness_constant"])
	assert.GreaterOrEqual(t, len(cleaned), TargetParameterCount())
}

func TestMatchesDefault(t *testing.T) {
	assert.True(t, MatchesDefault("reflection_roughness_constant", 0.5))
	assert.True(t, MatchesDefault("reflection_roughness_constant", 0.5004))
	assert.False(t, MatchesDefault("reflection_roughness_constant", 0.502))
	assert.True(t, MatchesDefault("diffuse_color_constant", "color(0.8, 0.8, 0.8)"))
	assert.False(t, MatchesDefault("diffuse_color_constant", "color(1, 0, 0)"))
	assert.True(t, MatchesDefault("blend_enabled", false))
	assert.False(t, MatchesDefault("blend_enabled", true))
	assert.True(t, MatchesDefault("opacity_mode", 1))
	assert.False(t, MatchesDefault("no_such_param", 1))
}

func TestTextureGammaModes(t *testing.T) {
	assert.Equal(t, GammaSRGB, TextureGammaMode("diffuse_texture"))
	assert.Equal(t, GammaSRGB, TextureGammaMode("emissive_mask_texture"))
	assert.Equal(t, GammaLinear, TextureGammaMode("normalmap_texture"))
	assert.Equal(t, GammaLinear, TextureGammaMode("reflectionroughness_texture"))
	assert.Equal(t, GammaLinear, TextureGammaMode("unlisted_texture"))
}

func TestValidateSourceParameters(t *testing.T) {
	valid, invalid := ValidateSourceParameters(FamilyPrincipledBSDF, map[string]any{
		"inputs:roughness":            0.3,
		"inputs:diffuseColor.connect": "./textures/wall.png",
		"_marker":                     true,
		"made_up":                     1,
	})
	assert.Len(t, valid, 3)
	assert.Equal(t, []string{"made_up"}, invalid)

	valid, invalid = ValidateSourceParameters(FamilyOmniPBR, map[string]any{
		"diffuse_tint":   "color(1, 0, 0)",
		"specular_level": 0.5,
		"weird":          0,
	})
	assert.Len(t, valid, 2)
	assert.Equal(t, []string{"weird"}, invalid)
}
