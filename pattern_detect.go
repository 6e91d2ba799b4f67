package remix

import (
	"errors"
	"fmt"
	"regexp"
)

// InstancingPattern identifies how a scene expresses geometry instancing,
// which decides the strategy used to collect instance data from it.
type InstancingPattern int

const (
	PatternUnknown InstancingPattern = iota
	// PatternExistingInstancer: the scene already contains PointInstancer
	// prims; their data is reused directly.
	PatternExistingInstancer
	// PatternBlenderGrouped: PointInstancer prims plus per-object grouping
	// tags, as produced by newer Blender exporters; instances are regrouped
	// by shared object data.
	PatternBlenderGrouped
	// PatternForwardRefs: instanceable prims referencing shared prototypes;
	// instances are grouped by their prototype reference.
	PatternForwardRefs
	// PatternReverseDataName: duplicated objects tagged with a shared
	// data-name user property; instances are grouped by that tag.
	PatternReverseDataName
	// PatternReverseXformName: duplicated objects recognizable only by
	// numbered name suffixes (Cube_001, Cube_002); instances are grouped by
	// the base name.
	PatternReverseXformName
)

func (pattern InstancingPattern) String() string {
	switch pattern {
	case PatternExistingInstancer:
		return "existing_instancer"
	case PatternBlenderGrouped:
		return "blender_grouped_instancer"
	case PatternForwardRefs:
		return "forward_instanceable_refs"
	case PatternReverseDataName:
		return "reverse_duplicate_data_name"
	case PatternReverseXformName:
		return "reverse_duplicate_xform_name"
	}
	return "unknown"
}

// ErrUnknownPattern is returned when a scene matches none of the known
// instancing patterns. Conversion cannot proceed without one.
var ErrUnknownPattern = errors.New("no recognizable instancing pattern")

// groupingTagAttr is the user property newer Blender exporters write on each
// object, naming the shared object data it instances.
const groupingTagAttr = "userProperties:blender:data_name"

// prototypesPrefix is the conventional scene path housing shared prototype
// prims.
const prototypesPrefix = "/prototypes/"

// numberedNameRe matches duplicate-object names of the form base_001 or
// base__2.
var numberedNameRe = regexp.MustCompile(`^(.+?)(?:__|_)(\d+)$`)

// topLevelObject reports whether a prim sits at the scene's object level:
// directly under the stage root, or one scene-root prim below it. Numbered
// names deeper in a hierarchy are exporter-generated mesh data, not
// duplicated objects, and must not count as name-grouping evidence.
func topLevelObject(prim *Prim) bool {
	depth := 0
	for p := prim.Parent(); p != nil; p = p.Parent() {
		depth++
	}
	return depth <= 2
}

// PatternEvidence holds the per-pattern signal counts gathered in a single
// stage traversal. When no pattern matches, these counts are the diagnostic
// the user gets.
type PatternEvidence struct {
	PointInstancers     int
	InstanceableRefs    int
	DuplicateDataNames  int
	DuplicateXformNames int
	GroupingTags        int
}

func (ev PatternEvidence) String() string {
	return fmt.Sprintf("point_instancers=%d instanceable_refs=%d duplicate_data_names=%d duplicate_xform_names=%d",
		ev.PointInstancers, ev.InstanceableRefs, ev.DuplicateDataNames, ev.DuplicateXformNames)
}

// DetectionResult is the outcome of pattern detection: the chosen pattern
// and the evidence that led to it.
type DetectionResult struct {
	Pattern  InstancingPattern
	Evidence PatternEvidence
}

// IsInstanceable reports whether a prim participates in forward instancing:
// it carries the instanceable metadata flag, an explicit instance attribute,
// or a reference into the shared prototypes scope.
func IsInstanceable(prim *Prim) bool {
	if prim.Instanceable {
		return true
	}
	if attr, ok := prim.Attributes().Lookup("instanceable"); ok && attr.IsBool() && attr.AsBool() {
		return true
	}
	return prim.HasReferenceInto(prototypesPrefix)
}

// DetectInstancingPattern classifies the scene's instancing pattern in one
// traversal. Patterns are checked in strict priority order; the first one
// with evidence wins:
//
//  1. existing PointInstancer prims (upgraded to the Blender grouped
//     variant when grouping tags are also present)
//  2. instanceable prims referencing prototypes
//  3. duplicates sharing a data-name tag
//  4. duplicates recognizable by numbered name suffixes
//
// A scene matching none of these returns ErrUnknownPattern wrapped with the
// collected evidence counts.
func DetectInstancingPattern(stage *Stage) (DetectionResult, error) {
	var ev PatternEvidence

	dataNames := map[string]int{}
	baseNames := map[string]int{}

	stage.Traverse(func(prim *Prim) bool {
		if prim.IsA("PointInstancer") {
			ev.PointInstancers++
		}
		if IsInstanceable(prim) {
			ev.InstanceableRefs++
		}
		if attr, ok := prim.Attributes().Lookup(groupingTagAttr); ok && attr.IsString() {
			ev.GroupingTags++
			dataNames[attr.AsString()]++
		}
		if prim.IsA("Xform", "Mesh") && topLevelObject(prim) {
			if m := numberedNameRe.FindStringSubmatch(prim.Name()); m != nil {
				baseNames[m[1]]++
			}
		}
		return true
	})

	for _, n := range dataNames {
		if n >= 2 {
			ev.DuplicateDataNames += n
		}
	}
	for _, n := range baseNames {
		if n >= 2 {
			ev.DuplicateXformNames += n
		}
	}

	result := DetectionResult{Evidence: ev}
	switch {
	case ev.PointInstancers > 0 && ev.GroupingTags > 0:
		result.Pattern = PatternBlenderGrouped
	case ev.PointInstancers > 0:
		result.Pattern = PatternExistingInstancer
	case ev.InstanceableRefs > 0:
		result.Pattern = PatternForwardRefs
	case ev.DuplicateDataNames > 0:
		result.Pattern = PatternReverseDataName
	case ev.DuplicateXformNames > 0:
		result.Pattern = PatternReverseXformName
	default:
		return result, fmt.Errorf("%w (%s)", ErrUnknownPattern, ev)
	}
	return result, nil
}
