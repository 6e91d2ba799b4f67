package remix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectForwardGroupsByReference(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Xform "rock_a"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (10, 0, 5)
    }

    def Xform "rock_b"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (20, 0, -3)
    }

    def Xform "tree_a"
    (
        references = </prototypes/tree>
    )
    {
        double3 xformOp:translate = (4, 1, 1)
    }
}
`)
	data, err := CollectInstanceData(stage, PatternForwardRefs)
	require.NoError(t, err)
	require.Len(t, data.Groups, 2)

	// sorted by key
	rock := data.Groups[0]
	assert.Equal(t, "/prototypes/rock", rock.Key)
	require.Len(t, rock.Instances, 2)
	assert.Equal(t, "/root/rock_a", rock.Instances[0].Path)
	assert.Equal(t, [3]float64{10, 0, 5}, rock.Instances[0].Position)

	tree := data.Groups[1]
	assert.Equal(t, "/prototypes/tree", tree.Key)
	assert.Len(t, tree.Instances, 1)
}

func TestCollectForwardFiltersWorldOrigin(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Xform "rock_base"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (0, 0, 0.5)
    }

    def Xform "rock_a"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (15, 2, 0)
    }
}
`)
	data, err := CollectInstanceData(stage, PatternForwardRefs)
	require.NoError(t, err)
	require.Len(t, data.Groups, 1)
	require.Len(t, data.Groups[0].Instances, 1)
	assert.Equal(t, "/root/rock_a", data.Groups[0].Instances[0].Path)
	require.Len(t, data.Warnings, 1)
	assert.Contains(t, data.Warnings[0], "world-origin")
}

func TestCollectReverseByDataName(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Mesh "Tree_001"
    {
        custom string userProperties:blender:data_name = "Tree"
        point3f[] points = [(0, 0, 0), (1, 0, 0), (0, 1, 0)]
        int[] faceVertexCounts = [3]
        int[] faceVertexIndices = [0, 1, 2]
        double3 xformOp:translate = (5, 0, 0)
    }

    def Mesh "Tree_002"
    {
        custom string userProperties:blender:data_name = "Tree"
        point3f[] points = [(0, 0, 0), (1, 0, 0), (0, 1, 0)]
        int[] faceVertexCounts = [3]
        int[] faceVertexIndices = [0, 1, 2]
        double3 xformOp:translate = (9, 0, 0)
    }

    def Mesh "Rock"
    {
        custom string userProperties:blender:data_name = "Rock"
        point3f[] points = [(0, 0, 0), (2, 0, 0), (0, 2, 0)]
        int[] faceVertexCounts = [3]
        int[] faceVertexIndices = [0, 1, 2]
    }
}
`)
	data, err := CollectInstanceData(stage, PatternReverseDataName)
	require.NoError(t, err)

	require.Len(t, data.Groups, 1)
	group := data.Groups[0]
	assert.Equal(t, "Tree", group.Key)
	assert.Equal(t, "/root/Tree_001", group.Prototype)
	assert.Len(t, group.Instances, 2)

	// the unduplicated mesh passes through as a unique object
	require.Len(t, data.Singles, 1)
	assert.Equal(t, "/root/Rock", data.Singles[0].Path)
}

// Same data name but different geometry must not collapse into one group.
func TestCollectReverseDataNameHashSeparatesEditedMeshes(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Mesh "Tree_001"
    {
        custom string userProperties:blender:data_name = "Tree"
        point3f[] points = [(0, 0, 0), (1, 0, 0), (0, 1, 0)]
    }

    def Mesh "Tree_002"
    {
        custom string userProperties:blender:data_name = "Tree"
        point3f[] points = [(0, 0, 0), (3, 0, 0), (0, 3, 0)]
    }
}
`)
	data, err := CollectInstanceData(stage, PatternReverseDataName)
	require.NoError(t, err)
	assert.Empty(t, data.Groups)
	assert.Len(t, data.Singles, 2)
}

func TestCollectReverseByName(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Xform "Cube_001"
    {
        double3 xformOp:translate = (1, 2, 3)
    }

    def Xform "Cube_002"
    {
        double3 xformOp:translate = (4, 5, 6)
    }

    def Xform "Lamp_001"
    {
    }
}
`)
	data, err := CollectInstanceData(stage, PatternReverseXformName)
	require.NoError(t, err)

	require.Len(t, data.Groups, 1)
	assert.Equal(t, "Cube", data.Groups[0].Key)
	assert.Len(t, data.Groups[0].Instances, 2)
	require.Len(t, data.Singles, 1)
	assert.Equal(t, "Lamp_001", data.Singles[0].Name)
}

func TestCollectExistingInstancers(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def PointInstancer "scatter"
    {
        rel prototypes = [</prototypes/grass>]
        point3f[] positions = [(0, 0, 0), (1, 1, 0)]
    }
}
`)
	data, err := CollectInstanceData(stage, PatternExistingInstancer)
	require.NoError(t, err)
	require.Len(t, data.Groups, 1)
	assert.Equal(t, "/root/scatter", data.Groups[0].Key)
	assert.Equal(t, "/prototypes/grass", data.Groups[0].Prototype)
}

func TestCollectGathersMaterials(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def Material "mat_rock"
    {
    }

    def Xform "rock_a"
    (
        references = </prototypes/rock>
    )
    {
        double3 xformOp:translate = (15, 0, 0)
    }
}
`)
	data, err := CollectInstanceData(stage, PatternForwardRefs)
	require.NoError(t, err)
	require.Len(t, data.Materials, 1)
	assert.Equal(t, "mat_rock", data.Materials[0].Name())
}

func TestCheckPrerequisitesFlattenedInstancer(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def PointInstancer "scatter"
    {
        rel prototypes = [</prototypes/grass>]
        point3f[] positions = [(0, 0, 0)]
    }
}
`)
	assert.NoError(t, CheckPrerequisites(stage, PatternExistingInstancer))
}

func TestCheckPrerequisitesUnflattenedParticles(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
    def PointInstancer "particles"
    {
    }
}
`)
	err := CheckPrerequisites(stage, PatternExistingInstancer)
	require.ErrorIs(t, err, ErrMalformedScene)
	assert.Contains(t, err.Error(), "Realize Instances")
	assert.Contains(t, err.Error(), "/root/particles")
}

func TestCheckPrerequisitesSkipsNonInstancerPatterns(t *testing.T) {
	stage := stageFixture(t, `
def Xform "root"
{
}
`)
	assert.NoError(t, CheckPrerequisites(stage, PatternForwardRefs))
}

func TestMeshGeometryHash(t *testing.T) {
	a := NewPrim("a", "Mesh")
	a.Attributes().Get("points").Set("[(0, 0, 0), (1, 0, 0)]")
	b := NewPrim("b", "Mesh")
	b.Attributes().Get("points").Set("[(0, 0, 0), (1, 0, 0)]")
	c := NewPrim("c", "Mesh")
	c.Attributes().Get("points").Set("[(9, 9, 9)]")

	assert.Equal(t, MeshGeometryHash(a), MeshGeometryHash(b))
	assert.NotEqual(t, MeshGeometryHash(a), MeshGeometryHash(c))
	assert.Empty(t, MeshGeometryHash(NewPrim("d", "Mesh")))
}
