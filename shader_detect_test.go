package remix

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func materialFixture(t *testing.T, body string) *Prim {
	t.Helper()
	doc := "#usda 1.0\n" + body
	stage, err := ReadStage(strings.NewReader(doc))
	require.NoError(t, err)
	mats := stage.FindByType("Material")
	require.Len(t, mats, 1)
	return mats[0]
}

func TestDetectShaderFamilyPreviewSurface(t *testing.T) {
	mat := materialFixture(t, `
def Material "m"
{
    def Shader "surface"
    {
        uniform token info:id = "UsdPreviewSurface"
        float inputs:roughness = 0.3
    }
}
`)
	family, shader, err := DetectShaderFamily(mat)
	require.NoError(t, err)
	assert.Equal(t, FamilyPrincipledBSDF, family)
	assert.Equal(t, "surface", shader.Name())
}

func TestDetectShaderFamilyPrincipledName(t *testing.T) {
	mat := materialFixture(t, `
def Material "m"
{
    def Shader "Principled_BSDF"
    {
        float inputs:metallic = 1
    }
}
`)
	family, _, err := DetectShaderFamily(mat)
	require.NoError(t, err)
	assert.Equal(t, FamilyPrincipledBSDF, family)
}

func TestDetectShaderFamilyOmniPBR(t *testing.T) {
	mat := materialFixture(t, `
def Material "m"
{
    def Shader "mdl_shader"
    {
        uniform asset info:mdl:sourceAsset = @OmniPBR.mdl@
        float inputs:reflection_roughness_constant = 0.25
    }
}
`)
	family, _, err := DetectShaderFamily(mat)
	require.NoError(t, err)
	assert.Equal(t, FamilyOmniPBR, family)
}

func TestDetectShaderFamilyGenericMDL(t *testing.T) {
	mat := materialFixture(t, `
def Material "m"
{
    def Shader "mdl_shader"
    {
        uniform asset info:mdl:sourceAsset = @CustomSurface.mdl@
    }
}
`)
	family, _, err := DetectShaderFamily(mat)
	require.NoError(t, err)
	assert.Equal(t, FamilyOmniPBR, family)
}

func TestDetectShaderFamilyUnknown(t *testing.T) {
	mat := materialFixture(t, `
def Material "m"
{
    def Shader "something"
    {
        uniform token info:id = "UsdUVTexture"
    }
}
`)
	_, _, err := DetectShaderFamily(mat)
	assert.ErrorIs(t, err, ErrUnknownShaderFamily)

	_, _, err = DetectShaderFamily(nil)
	assert.ErrorIs(t, err, ErrUnknownShaderFamily)
}

func TestCollectShaderParameters(t *testing.T) {
	mat := materialFixture(t, `
def Material "m"
{
    def Shader "Principled_BSDF"
    {
        uniform token info:id = "UsdPreviewSurface"
        float inputs:roughness = 0.3
        color3f inputs:diffuseColor = (0.8, 0.2, 0.2)
        color3f inputs:emissiveColor.connect = </m/emissive_tex.outputs:rgb>
    }

    def Shader "emissive_tex"
    {
        uniform token info:id = "UsdUVTexture"
        asset inputs:file = @./textures/glow.png@
    }
}
`)
	family, shader, err := DetectShaderFamily(mat)
	require.NoError(t, err)

	params := CollectShaderParameters(family, shader)
	assert.Equal(t, 0.3, params.Values["inputs:roughness"])
	assert.Equal(t, Color{0.8, 0.2, 0.2}, params.Values["inputs:diffuseColor"])
	assert.Equal(t, "./textures/glow.png", params.Values["inputs:emissiveColor.connect"])
	assert.True(t, params.Textures["inputs:emissiveColor.connect"])
}

func TestCollectShaderParametersOmniPBRTextures(t *testing.T) {
	mat := materialFixture(t, `
def Material "m"
{
    def Shader "mdl_shader"
    {
        uniform asset info:mdl:sourceAsset = @OmniPBR.mdl@
        asset inputs:diffuse_texture = @./textures/wall.png@
        float inputs:reflection_roughness_constant = 0.25
    }
}
`)
	family, shader, err := DetectShaderFamily(mat)
	require.NoError(t, err)
	require.Equal(t, FamilyOmniPBR, family)

	params := CollectShaderParameters(family, shader)
	assert.Equal(t, "./textures/wall.png", params.Values["diffuse_texture"])
	assert.True(t, params.Textures["diffuse_texture"])
	assert.Equal(t, 0.25, params.Values["reflection_roughness_constant"])
	assert.False(t, params.Textures["reflection_roughness_constant"])
}

// A constant authored next to a connection survives collection; the mapper
// decides which one wins.
func TestCollectShaderParametersConstantBesideConnection(t *testing.T) {
	mat := materialFixture(t, `
def Material "m"
{
    def Shader "Principled_BSDF"
    {
        uniform token info:id = "UsdPreviewSurface"
        color3f inputs:diffuseColor = (0.8, 0.2, 0.2)
        color3f inputs:diffuseColor.connect = </m/tex.outputs:rgb>
    }

    def Shader "tex"
    {
        uniform token info:id = "UsdUVTexture"
        asset inputs:file = @./textures/wall.png@
    }
}
`)
	family, shader, err := DetectShaderFamily(mat)
	require.NoError(t, err)

	params := CollectShaderParameters(family, shader)
	assert.Equal(t, Color{0.8, 0.2, 0.2}, params.Values["inputs:diffuseColor"])
	assert.Equal(t, "./textures/wall.png", params.Values["inputs:diffuseColor.connect"])
	assert.True(t, params.Textures["inputs:diffuseColor.connect"])
}

func TestCollectShaderParametersUnresolvedConnection(t *testing.T) {
	mat := materialFixture(t, `
def Material "m"
{
    def Shader "Principled_BSDF"
    {
        uniform token info:id = "UsdPreviewSurface"
        color3f inputs:diffuseColor.connect = </m/missing_tex.outputs:rgb>
    }
}
`)
	family, shader, err := DetectShaderFamily(mat)
	require.NoError(t, err)

	params := CollectShaderParameters(family, shader)
	v := params.Values["inputs:diffuseColor.connect"].(string)
	assert.True(t, strings.HasSuffix(v, ".outputs:rgb>"), "got %q", v)
}
