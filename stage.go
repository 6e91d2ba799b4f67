package remix

import (
	"strings"
)

// Specifier indicates how a prim contributes to the composed scene: a full
// definition, an override of an existing prim, or an inactive placeholder.
type Specifier int

const (
	SpecifierDef Specifier = iota
	SpecifierOver
	SpecifierClass
)

func (spec Specifier) String() string {
	switch spec {
	case SpecifierOver:
		return "over"
	case SpecifierClass:
		return "class"
	}
	return "def"
}

// Prim is a single node in a Stage's namespace hierarchy. Prims carry a type
// name (Xform, Mesh, Material, Shader, PointInstancer), a set of attributes,
// and references to other prims or layers.
type Prim struct {
	name      string
	typeName  string
	specifier Specifier
	parent    *Prim
	children  []*Prim
	attrs     *Attributes

	// References lists composition arcs to other prim paths or external
	// assets, in authored order.
	References []string
	// Instanceable mirrors the prim's instanceable metadata flag.
	Instanceable bool
}

// NewPrim returns a new unparented Prim of the given name and type.
func NewPrim(name, typeName string) *Prim {
	return &Prim{
		name:     name,
		typeName: typeName,
		attrs:    NewAttributes(),
	}
}

// Name returns the Prim's name (the last element of its path).
func (prim *Prim) Name() string {
	return prim.name
}

// TypeName returns the Prim's schema type name, which may be empty for
// typeless overs.
func (prim *Prim) TypeName() string {
	return prim.typeName
}

// SetTypeName sets the Prim's schema type name.
func (prim *Prim) SetTypeName(typeName string) {
	prim.typeName = typeName
}

// Specifier returns the Prim's specifier (def, over, or class).
func (prim *Prim) Specifier() Specifier {
	return prim.specifier
}

// SetSpecifier sets the Prim's specifier.
func (prim *Prim) SetSpecifier(spec Specifier) {
	prim.specifier = spec
}

// IsA reports whether the Prim's type name matches any of the given type
// names.
func (prim *Prim) IsA(typeNames ...string) bool {
	for _, t := range typeNames {
		if prim.typeName == t {
			return true
		}
	}
	return false
}

// Attributes returns the Prim's attribute set.
func (prim *Prim) Attributes() *Attributes {
	return prim.attrs
}

// Parent returns the Prim's parent, or nil for the stage root.
func (prim *Prim) Parent() *Prim {
	return prim.parent
}

// Children returns the Prim's direct children in authored order.
func (prim *Prim) Children() []*Prim {
	return prim.children
}

// AddChild parents the given Prim underneath this one and returns it.
func (prim *Prim) AddChild(child *Prim) *Prim {
	child.parent = prim
	prim.children = append(prim.children, child)
	return child
}

// Child returns the direct child with the given name, or nil if none exists.
func (prim *Prim) Child(name string) *Prim {
	for _, child := range prim.children {
		if child.name == name {
			return child
		}
	}
	return nil
}

// Path returns the Prim's absolute namespace path, e.g. "/World/Cube_01".
func (prim *Prim) Path() string {
	if prim.parent == nil {
		return "/"
	}
	parentPath := prim.parent.Path()
	if parentPath == "/" {
		return "/" + prim.name
	}
	return parentPath + "/" + prim.name
}

// SearchTree walks the subtree rooted at this Prim in depth-first order,
// calling onPrim for each prim visited (this one included). Returning false
// from onPrim stops the walk.
func (prim *Prim) SearchTree(onPrim func(*Prim) bool) bool {
	if !onPrim(prim) {
		return false
	}
	for _, child := range prim.children {
		if !child.SearchTree(onPrim) {
			return false
		}
	}
	return true
}

// HasReferenceInto reports whether any of the Prim's references target a
// path under the given prefix.
func (prim *Prim) HasReferenceInto(prefix string) bool {
	for _, ref := range prim.References {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

// Stage is an in-memory composed scene: a prim hierarchy with an anonymous
// root whose children are the scene's top-level prims.
type Stage struct {
	root *Prim
	// SourcePath records the file the stage was read from, if any.
	SourcePath string
	// UpAxis is the stage's declared up axis ("Y" or "Z").
	UpAxis string
	// MetersPerUnit is the stage's declared linear unit scale.
	MetersPerUnit float64
	// SubLayers lists the stage's sublayer asset paths in strength order.
	SubLayers []string
}

// NewStage returns an empty Stage with a Z up axis.
func NewStage() *Stage {
	return &Stage{
		root:          NewPrim("", ""),
		UpAxis:        "Z",
		MetersPerUnit: 1,
	}
}

// Root returns the Stage's pseudo-root prim.
func (stage *Stage) Root() *Prim {
	return stage.root
}

// DefinePrim creates (or returns, if it already exists) the prim at the
// given absolute path, creating typeless ancestors as needed. The type name
// applies to the leaf prim.
func (stage *Stage) DefinePrim(path, typeName string) *Prim {
	prim := stage.root
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		child := prim.Child(part)
		if child == nil {
			child = prim.AddChild(NewPrim(part, ""))
		}
		if i == len(parts)-1 && typeName != "" {
			child.typeName = typeName
		}
		prim = child
	}
	return prim
}

// GetPrimAtPath returns the prim at the given absolute path, or nil if no
// such prim exists.
func (stage *Stage) GetPrimAtPath(path string) *Prim {
	prim := stage.root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		prim = prim.Child(part)
		if prim == nil {
			return nil
		}
	}
	return prim
}

// Traverse walks every prim in the stage in depth-first order, excluding the
// pseudo-root. Returning false from onPrim stops the walk.
func (stage *Stage) Traverse(onPrim func(*Prim) bool) {
	for _, child := range stage.root.children {
		if !child.SearchTree(onPrim) {
			return
		}
	}
}

// FindByType returns every prim in the stage whose type name matches any of
// the given type names, in traversal order.
func (stage *Stage) FindByType(typeNames ...string) []*Prim {
	var prims []*Prim
	stage.Traverse(func(prim *Prim) bool {
		if prim.IsA(typeNames...) {
			prims = append(prims, prim)
		}
		return true
	})
	return prims
}
