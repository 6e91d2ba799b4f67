package remix

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
)

// ErrMalformedScene marks scene prerequisite failures: the input was
// recognized but is not in a convertible state.
var ErrMalformedScene = errors.New("scene prerequisites not met")

// InstanceRecord is one placed instance of a shared piece of geometry.
type InstanceRecord struct {
	// Path is the instance prim's scene path.
	Path string
	// Name is the prim name.
	Name string
	// Position is the authored translation, world-origin instances having
	// been filtered out for forward collection.
	Position [3]float64
	// MaterialBinding is the bound material's path, when one is authored.
	MaterialBinding string
}

// InstanceGroup is a set of instances sharing one prototype, ready to
// become a single instancer in the output.
type InstanceGroup struct {
	// Key identifies the group: the prototype reference path (forward), the
	// shared data name (reverse), the shared base name (name-based
	// grouping), or the instancer path (existing instancers).
	Key string
	// Prototype is the path of the prim holding the shared geometry.
	Prototype string
	Instances []InstanceRecord
}

// CollectedData is everything the conversion needs from one scene: instance
// groups per the detected pattern, ungrouped single objects, and the
// scene's materials.
type CollectedData struct {
	Pattern InstancingPattern
	Groups  []InstanceGroup
	// Singles are objects that looked groupable but have no duplicates;
	// they pass through as unique geometry.
	Singles   []InstanceRecord
	Materials []*Prim
	Warnings  []string
}

// CheckPrerequisites verifies the scene is in a convertible state for the
// detected pattern. Instancer-based patterns require each instancer to
// carry flattened point data; a particle-style export without it cannot be
// converted and gets an actionable message.
func CheckPrerequisites(stage *Stage, pattern InstancingPattern) error {
	if pattern != PatternExistingInstancer && pattern != PatternBlenderGrouped {
		return nil
	}

	var bad []string
	for _, pi := range stage.FindByType("PointInstancer") {
		attrs := pi.Attributes()
		_, hasPositions := attrs.Lookup("positions")
		_, hasProtos := attrs.Lookup("prototypes")
		if !hasPositions || !hasProtos {
			bad = append(bad, pi.Path())
		}
	}
	if len(bad) == 0 {
		return nil
	}
	return fmt.Errorf("%w: instancer(s) %v missing point positions or prototypes; "+
		"realize the particle system to a point cloud before exporting (in Blender: "+
		"apply Realize Instances in the geometry nodes modifier, then re-export)",
		ErrMalformedScene, bad)
}

// CollectInstanceData gathers instance groups from the scene using the
// strategy for the detected pattern.
func CollectInstanceData(stage *Stage, pattern InstancingPattern) (*CollectedData, error) {
	data := &CollectedData{Pattern: pattern}
	data.Materials = stage.FindByType("Material")

	switch pattern {
	case PatternForwardRefs:
		data.collectForward(stage)
	case PatternReverseDataName:
		data.collectReverseByDataName(stage)
	case PatternReverseXformName:
		data.collectReverseByName(stage)
	case PatternExistingInstancer, PatternBlenderGrouped:
		data.collectExistingInstancers(stage)
	default:
		return nil, fmt.Errorf("collecting instances: %w", ErrUnknownPattern)
	}

	sort.Slice(data.Groups, func(i, j int) bool { return data.Groups[i].Key < data.Groups[j].Key })
	for g := range data.Groups {
		instances := data.Groups[g].Instances
		sort.Slice(instances, func(i, j int) bool { return instances[i].Path < instances[j].Path })
	}
	sort.Slice(data.Singles, func(i, j int) bool { return data.Singles[i].Path < data.Singles[j].Path })
	return data, nil
}

func (data *CollectedData) warnf(format string, args ...any) {
	data.Warnings = append(data.Warnings, fmt.Sprintf(format, args...))
}

// collectForward groups instanceable prims by their prototype reference.
// Instances sitting at the world origin are the base prototype placements
// themselves and are excluded.
func (data *CollectedData) collectForward(stage *Stage) {
	groups := map[string][]InstanceRecord{}

	stage.Traverse(func(prim *Prim) bool {
		if !IsInstanceable(prim) || len(prim.References) == 0 {
			return true
		}
		ref := prim.References[0]

		rec := instanceRecordFor(prim)
		if nearWorldOrigin(rec.Position) {
			data.warnf("excluding world-origin instance %s (base prototype placement)", prim.Path())
			return true
		}
		groups[ref] = append(groups[ref], rec)
		return true
	})

	for ref, instances := range groups {
		data.Groups = append(data.Groups, InstanceGroup{
			Key:       ref,
			Prototype: ref,
			Instances: instances,
		})
	}
}

// collectReverseByDataName groups duplicated meshes by their shared data
// name, confirmed by a geometry hash so same-named but edited meshes don't
// collapse together. Hash-unique meshes pass through as singles.
func (data *CollectedData) collectReverseByDataName(stage *Stage) {
	type candidate struct {
		rec      InstanceRecord
		dataName string
		protoKey string
	}
	var candidates []candidate

	stage.Traverse(func(prim *Prim) bool {
		if !prim.IsA("Mesh", "Xform") {
			return true
		}
		attr, ok := prim.Attributes().Lookup(groupingTagAttr)
		if !ok || !attr.IsString() {
			return true
		}
		dataName := attr.AsString()
		hash := MeshGeometryHash(meshPrimFor(prim))
		if hash == "" {
			data.warnf("no geometry to hash for %s, grouping by name only", prim.Path())
		}
		candidates = append(candidates, candidate{
			rec:      instanceRecordFor(prim),
			dataName: dataName,
			protoKey: dataName + "_" + hash,
		})
		return true
	})

	groups := map[string][]candidate{}
	for _, c := range candidates {
		groups[c.protoKey] = append(groups[c.protoKey], c)
	}

	for _, members := range groups {
		if len(members) < 2 {
			data.Singles = append(data.Singles, members[0].rec)
			continue
		}
		group := InstanceGroup{
			Key:       members[0].dataName,
			Prototype: members[0].rec.Path,
		}
		for _, c := range members {
			group.Instances = append(group.Instances, c.rec)
		}
		data.Groups = append(data.Groups, group)
	}
}

// collectReverseByName groups duplicated objects by the base of their
// numbered names when no richer signal exists.
func (data *CollectedData) collectReverseByName(stage *Stage) {
	groups := map[string][]InstanceRecord{}

	stage.Traverse(func(prim *Prim) bool {
		if !prim.IsA("Xform", "Mesh") || !topLevelObject(prim) {
			return true
		}
		m := numberedNameRe.FindStringSubmatch(prim.Name())
		if m == nil {
			return true
		}
		groups[m[1]] = append(groups[m[1]], instanceRecordFor(prim))
		return true
	})

	for base, instances := range groups {
		if len(instances) < 2 {
			data.Singles = append(data.Singles, instances[0])
			continue
		}
		data.Groups = append(data.Groups, InstanceGroup{
			Key:       base,
			Prototype: instances[0].Path,
			Instances: instances,
		})
	}
}

// collectExistingInstancers reuses the scene's own instancers: each one
// becomes a group keyed by its path, with its prototype targets carried
// through.
func (data *CollectedData) collectExistingInstancers(stage *Stage) {
	for _, pi := range stage.FindByType("PointInstancer") {
		group := InstanceGroup{Key: pi.Path()}

		if protos, ok := pi.Attributes().Lookup("prototypes"); ok {
			if targets, okT := protos.Value.([]string); okT && len(targets) > 0 {
				group.Prototype = targets[0]
			} else if target, okS := protos.Value.(string); okS {
				group.Prototype = target
			}
		}

		group.Instances = append(group.Instances, instanceRecordFor(pi))
		data.Groups = append(data.Groups, group)
	}
}

func instanceRecordFor(prim *Prim) InstanceRecord {
	rec := InstanceRecord{
		Path: prim.Path(),
		Name: prim.Name(),
	}
	if attr, ok := prim.Attributes().Lookup("xformOp:translate"); ok && attr.IsColor() {
		c := attr.AsColor()
		rec.Position = [3]float64{c.R, c.G, c.B}
	}
	if attr, ok := prim.Attributes().Lookup("material:binding"); ok {
		if s, okS := attr.Value.(string); okS {
			rec.MaterialBinding = s
		}
	}
	return rec
}

// meshPrimFor returns the prim carrying geometry attributes: the prim
// itself for a Mesh, or its first Mesh child for an Xform wrapper.
func meshPrimFor(prim *Prim) *Prim {
	if prim.IsA("Mesh") {
		return prim
	}
	for _, child := range prim.Children() {
		if child.IsA("Mesh") {
			return child
		}
	}
	return prim
}

// nearWorldOrigin reports whether a position sits within one unit of the
// world origin on every axis.
func nearWorldOrigin(p [3]float64) bool {
	abs := func(v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	}
	return abs(p[0]) < 1 && abs(p[1]) < 1 && abs(p[2]) < 1
}

// MeshGeometryHash digests a mesh's point and topology attributes so
// identical geometry can be recognized across duplicated prims. Returns ""
// when the prim has no geometry attributes.
func MeshGeometryHash(prim *Prim) string {
	attrs := prim.Attributes()
	points, hasPoints := attrs.Lookup("points")
	counts, hasCounts := attrs.Lookup("faceVertexCounts")
	indices, hasIndices := attrs.Lookup("faceVertexIndices")
	if !hasPoints && !hasCounts && !hasIndices {
		return ""
	}

	raw := func(a *Attribute, ok bool) string {
		if !ok {
			return ""
		}
		return fmt.Sprint(a.Value)
	}

	sum := md5.Sum([]byte(raw(points, hasPoints) + "|" + raw(counts, hasCounts) + "|" + raw(indices, hasIndices)))
	return hex.EncodeToString(sum[:])
}
