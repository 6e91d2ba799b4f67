package remix

import "strings"

// Attributes is an unordered set of attribute names to values carried by a
// Prim, covering both schema attributes (inputs:roughness) and user
// properties exported by the DCC (userProperties:blender:data_name).
type Attributes struct {
	attrs map[string]*Attribute
}

// NewAttributes returns a new Attributes object.
func NewAttributes() *Attributes {
	return &Attributes{map[string]*Attribute{}}
}

func (attrs *Attributes) Clone() *Attributes {
	newAttrs := NewAttributes()
	for k, v := range attrs.attrs {
		a := newAttrs.Get(k)
		a.Set(v.Value)
		a.Connection = v.Connection
	}
	return newAttrs
}

// Clear clears the Attributes object of all attributes.
func (attrs *Attributes) Clear() {
	attrs.attrs = map[string]*Attribute{}
}

// Remove removes the named attribute from the Attributes object.
func (attrs *Attributes) Remove(name string) {
	delete(attrs.attrs, name)
}

// Has returns true if the Attributes object has attributes by all of the names
// specified, and false otherwise.
func (attrs *Attributes) Has(names ...string) bool {
	for _, n := range names {
		if _, exists := attrs.attrs[n]; !exists {
			return false
		}
	}
	return true
}

// Count returns the number of attributes in the set.
func (attrs *Attributes) Count() int {
	return len(attrs.attrs)
}

// Get returns the Attribute associated with the specified name, creating an
// empty one if it doesn't exist yet.
func (attrs *Attributes) Get(name string) *Attribute {
	if _, ok := attrs.attrs[name]; !ok {
		attrs.attrs[name] = &Attribute{}
	}
	return attrs.attrs[name]
}

// Lookup returns the Attribute associated with the specified name without
// creating it, and whether it exists.
func (attrs *Attributes) Lookup(name string) (*Attribute, bool) {
	a, ok := attrs.attrs[name]
	return a, ok
}

// ForEach calls f for every attribute in the set.
func (attrs *Attributes) ForEach(f func(name string, attr *Attribute)) {
	for name, attr := range attrs.attrs {
		f(name, attr)
	}
}

// WithPrefix returns the names of all attributes starting with the given
// prefix.
func (attrs *Attributes) WithPrefix(prefix string) []string {
	var names []string
	for name := range attrs.attrs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names
}

// Attribute represents a single named value on a Prim.
type Attribute struct {
	Value any
	// Connection holds the target path when the attribute is connected to
	// another prim's output instead of carrying a value.
	Connection string
}

// Set sets the attribute's value to the given value.
func (attr *Attribute) Set(value any) {
	attr.Value = value
}

// IsBool returns true if the Attribute is a boolean value.
func (attr *Attribute) IsBool() bool {
	_, ok := attr.Value.(bool)
	return ok
}

// AsBool returns the value associated with the Attribute as a bool.
// Note that this does not sanity check to ensure the Attribute is a bool first.
func (attr *Attribute) AsBool() bool {
	return attr.Value.(bool)
}

// IsString returns true if the Attribute is a string.
func (attr *Attribute) IsString() bool {
	_, ok := attr.Value.(string)
	return ok
}

// AsString returns the value associated with the Attribute as a string.
func (attr *Attribute) AsString() string {
	return attr.Value.(string)
}

// IsFloat returns true if the Attribute is a float64.
func (attr *Attribute) IsFloat() bool {
	_, ok := attr.Value.(float64)
	return ok
}

// AsFloat returns the value associated with the Attribute as a float64.
func (attr *Attribute) AsFloat() float64 {
	return attr.Value.(float64)
}

// IsColor returns true if the Attribute is a Color.
func (attr *Attribute) IsColor() bool {
	_, ok := attr.Value.(Color)
	return ok
}

// AsColor returns the value associated with the Attribute as a Color.
func (attr *Attribute) AsColor() Color {
	return attr.Value.(Color)
}
