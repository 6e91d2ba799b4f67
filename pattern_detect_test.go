package remix

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageFixture(t *testing.T, body string) *Stage {
	t.Helper()
	stage, err := ReadStage(strings.NewReader("#usda 1.0\n" + body))
	require.NoError(t, err)
	return stage
}

func TestDetectPatternExistingInstancer(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def PointInstancer "instances"
    {
        rel prototypes = [</prototypes/cube>]
    }
}
`)
	result, err := DetectInstancingPattern(stage)
	require.NoError(t, err)
	assert.Equal(t, PatternExistingInstancer, result.Pattern)
	assert.Equal(t, 1, result.Evidence.PointInstancers)
}

func TestDetectPatternBlenderGrouped(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def PointInstancer "instances"
    {
    }

    def Xform "Cube"
    {
        custom string userProperties:blender:data_name = "Cube"
    }
}
`)
	result, err := DetectInstancingPattern(stage)
	require.NoError(t, err)
	assert.Equal(t, PatternBlenderGrouped, result.Pattern)
}

func TestDetectPatternForwardRefs(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Xform "rock_a"
    (
        instanceable = true
        references = </prototypes/rock>
    )
    {
    }

    def Xform "rock_b"
    (
        references = </prototypes/rock>
    )
    {
    }
}
`)
	result, err := DetectInstancingPattern(stage)
	require.NoError(t, err)
	assert.Equal(t, PatternForwardRefs, result.Pattern)
	assert.Equal(t, 2, result.Evidence.InstanceableRefs)
}

func TestDetectPatternReverseDataName(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Mesh "TreeTall"
    {
        custom string userProperties:blender:data_name = "Tree"
    }

    def Mesh "TreeShort"
    {
        custom string userProperties:blender:data_name = "Tree"
    }
}
`)
	result, err := DetectInstancingPattern(stage)
	require.NoError(t, err)
	assert.Equal(t, PatternReverseDataName, result.Pattern)
	assert.Equal(t, 2, result.Evidence.DuplicateDataNames)
}

// Numbered duplicates alone, with no tags or references, fall through to
// name-based grouping.
func TestDetectPatternReverseXformName(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Xform "Cube_001"
    {
    }

    def Xform "Cube_002"
    {
    }

    def Xform "Sphere__1"
    {
    }

    def Xform "Sphere__2"
    {
    }
}
`)
	result, err := DetectInstancingPattern(stage)
	require.NoError(t, err)
	assert.Equal(t, PatternReverseXformName, result.Pattern)
	assert.Equal(t, 4, result.Evidence.DuplicateXformNames)
}

// A lone numbered name is not evidence of duplication.
func TestDetectPatternSingleNumberedNameIsUnknown(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Xform "Cube_001"
    {
    }
}
`)
	result, err := DetectInstancingPattern(stage)
	assert.ErrorIs(t, err, ErrUnknownPattern)
	assert.Equal(t, PatternUnknown, result.Pattern)
	assert.Contains(t, err.Error(), "duplicate_xform_names=0")
}

// Numbered leaves deep in a hierarchy are exporter-generated mesh data and
// must not count as duplicated objects.
func TestDetectPatternIgnoresDeepNumberedNames(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Xform "building"
    {
        def Xform "floor"
        {
            def Mesh "mesh_001"
            {
            }

            def Mesh "mesh_002"
            {
            }
        }
    }
}
`)
	result, err := DetectInstancingPattern(stage)
	assert.ErrorIs(t, err, ErrUnknownPattern)
	assert.Equal(t, PatternUnknown, result.Pattern)
}

// Priority: an instancer wins over every reverse signal, and forward
// references win over duplicate names.
func TestDetectPatternPriority(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Xform "rock_001"
    (
        references = </prototypes/rock>
    )
    {
    }

    def Xform "rock_002"
    (
        references = </prototypes/rock>
    )
    {
    }
}
`)
	result, err := DetectInstancingPattern(stage)
	require.NoError(t, err)
	assert.Equal(t, PatternForwardRefs, result.Pattern)
	// the lower-priority evidence is still counted
	assert.Equal(t, 2, result.Evidence.DuplicateXformNames)
}

func TestIsInstanceable(t *testing.T) {
	flag := NewPrim("a", "Xform")
	flag.Instanceable = true
	assert.True(t, IsInstanceable(flag))

	attr := NewPrim("b", "Xform")
	attr.Attributes().Get("instanceable").Set(true)
	assert.True(t, IsInstanceable(attr))

	ref := NewPrim("c", "Xform")
	ref.References = []string{"/prototypes/rock"}
	assert.True(t, IsInstanceable(ref))

	plain := NewPrim("d", "Xform")
	assert.False(t, IsInstanceable(plain))
}
