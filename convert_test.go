package remix

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const forwardScene = `#usda 1.0
(
    upAxis = "Z"
)

def Xform "World"
{
    def Xform "rock_a"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (12, 0, 3)
    }

    def Xform "rock_b"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (20, 4, 0)
    }

    def Scope "Looks"
    {
        def Material "mat_AB12CD34EF567890"
        {
            def Shader "Principled_BSDF"
            {
                uniform token info:id = "UsdPreviewSurface"
                float inputs:roughness = 0.3
            }
        }
    }
}
`

func writeScene(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestConvertEndToEnd(t *testing.T) {
	dir := t.TempDir()
	input := writeScene(t, dir, "scene.usda", forwardScene)
	reportPath := filepath.Join(dir, "report.json")

	report, err := Convert(context.Background(), ConvertOptions{
		InputPath:  input,
		ReportPath: reportPath,
	})
	require.NoError(t, err)

	assert.Equal(t, "forward_instanceable_refs", report.Pattern)
	assert.Equal(t, 1, report.InstanceGroups)
	assert.Equal(t, 2, report.Instances)
	require.Len(t, report.Materials, 1)
	assert.Equal(t, "principled_bsdf", report.Materials[0].Family)
	assert.Equal(t, "0.3", report.Materials[0].Parameters["reflection_roughness_constant"])

	out, err := os.ReadFile(filepath.Join(dir, "scene_remix.usda"))
	require.NoError(t, err)
	assert.Contains(t, string(out), `over "mat_AB12CD34EF567890"`)
	assert.Contains(t, string(out), "float inputs:reflection_roughness_constant = 0.3")

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var decoded ConversionReport
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, report.Pattern, decoded.Pattern)
	assert.NotEmpty(t, decoded.Timestamp)
}

func TestConvertUnclassifiableSceneFails(t *testing.T) {
	dir := t.TempDir()
	input := writeScene(t, dir, "scene.usda", `#usda 1.0
def Xform "World"
{
    def Mesh "Lonely"
    {
    }
}
`)
	_, err := Convert(context.Background(), ConvertOptions{InputPath: input})
	require.ErrorIs(t, err, ErrUnknownPattern)
}

func TestConvertUnflattenedParticlesFails(t *testing.T) {
	dir := t.TempDir()
	input := writeScene(t, dir, "scene.usda", `#usda 1.0
def Xform "World"
{
    def PointInstancer "particles"
    {
    }
}
`)
	_, err := Convert(context.Background(), ConvertOptions{InputPath: input})
	require.ErrorIs(t, err, ErrMalformedScene)
	assert.Contains(t, err.Error(), "Realize Instances")
}

func TestConvertSkipsUnrecognizedShader(t *testing.T) {
	dir := t.TempDir()
	input := writeScene(t, dir, "scene.usda", `#usda 1.0
def Xform "World"
{
    def Xform "rock_a"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (12, 0, 3)
    }

    def Xform "rock_b"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (20, 4, 0)
    }

    def Material "weird"
    {
        def Shader "s"
        {
            uniform token info:id = "UsdUVTexture"
        }
    }
}
`)
	report, err := Convert(context.Background(), ConvertOptions{InputPath: input})
	require.NoError(t, err)
	require.Len(t, report.Materials, 1)
	assert.True(t, report.Materials[0].Skipped)
	assert.Equal(t, "unknown", report.Materials[0].Family)

	// a skipped material authors nothing
	out, err := os.ReadFile(filepath.Join(dir, "scene_remix.usda"))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "weird")
}

func TestConvertRegistersSubLayer(t *testing.T) {
	dir := t.TempDir()
	input := writeScene(t, dir, "scene.usda", forwardScene)
	manifest := writeScene(t, dir, "mod.usda", `#usda 1.0
(
    subLayers = [
        @./existing.usda@
    ]
)
`)

	_, err := Convert(context.Background(), ConvertOptions{
		InputPath:    input,
		ManifestPath: manifest,
	})
	require.NoError(t, err)

	content, err := os.ReadFile(manifest)
	require.NoError(t, err)
	assert.Contains(t, string(content), "@./scene_remix.usda@")
	assert.Contains(t, string(content), "@./existing.usda@")
}

func TestConvertRunsTexturePipeline(t *testing.T) {
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "rock.png"))
	input := writeScene(t, dir, "scene.usda", `#usda 1.0
def Xform "World"
{
    def Xform "rock_a"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (12, 0, 3)
    }

    def Xform "rock_b"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (20, 4, 0)
    }

    def Material "stone"
    {
        def Shader "Principled_BSDF"
        {
            uniform token info:id = "UsdPreviewSurface"
            color3f inputs:diffuseColor.connect = </World/stone/tex.outputs:rgb>
        }

        def Shader "tex"
        {
            uniform token info:id = "UsdUVTexture"
            asset inputs:file = @./rock.png@
        }
    }
}
`)
	runner := &fakeRunner{}
	report, err := Convert(context.Background(), ConvertOptions{
		InputPath:       input,
		ConvertTextures: true,
		Converter:       testConverter(runner),
		Workers:         2,
	})
	require.NoError(t, err)
	require.Len(t, report.Textures, 1)
	assert.Equal(t, "rock_albedo.dds", report.Textures[0].Output)
	assert.Equal(t, "small", report.Textures[0].SizeTier)
	assert.Empty(t, report.Textures[0].Error)
	assert.Equal(t, 1, runner.calls)
}

func TestMaterialOverrideName(t *testing.T) {
	assert.Equal(t, "mat_AB12CD34EF567890", MaterialOverrideName("mat_AB12CD34EF567890"))

	hashed := MaterialOverrideName("stone")
	assert.Regexp(t, `^mat_[0-9A-F]{16}$`, hashed)
	// stable across calls
	assert.Equal(t, hashed, MaterialOverrideName("stone"))
}
