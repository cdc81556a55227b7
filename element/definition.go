package element

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrDuplicateName is returned when a definition would contain two elements of the same name.
	ErrDuplicateName = errors.New("duplicate element name")
	// ErrUnknownName is returned when looking up an element name which is not defined.
	ErrUnknownName = errors.New("unknown element name")
	// ErrTypeMismatch is returned when element types disagree.
	ErrTypeMismatch = errors.New("element type mismatch")
	// ErrDimensionMismatch is returned when a tangent vector size does not match a definition.
	ErrDimensionMismatch = errors.New("tangent dimension mismatch")
	// ErrDefinitionMismatch is returned when two element vectors do not share a definition.
	ErrDefinitionMismatch = errors.New("element vector definitions differ")
)

// Spec names a single element and its manifold traits.
type Spec struct {
	Name   string
	Traits Traits
}

// Definition is an ordered list of named, typed elements. It fixes the
// layout of an element vector: the tangent offset of each element is the
// prefix sum of the preceding element dimensions.
type Definition struct {
	specs   []Spec
	index   map[string]int
	offsets []int
	dim     int
}

// NewDefinition creates a new definition from the given element specs.
// It returns error if two specs share a name.
func NewDefinition(specs ...Spec) (*Definition, error) {
	d := &Definition{index: make(map[string]int)}
	for _, s := range specs {
		if err := d.push(s); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// MustDefinition is like NewDefinition but panics on error.
func MustDefinition(specs ...Spec) *Definition {
	d, err := NewDefinition(specs...)
	if err != nil {
		panic(err)
	}

	return d
}

func (d *Definition) push(s Spec) error {
	if _, ok := d.index[s.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateName, s.Name)
	}
	d.index[s.Name] = len(d.specs)
	d.specs = append(d.specs, s)
	d.offsets = append(d.offsets, d.dim)
	d.dim += s.Traits.Dim()

	return nil
}

// Len returns the number of elements.
func (d *Definition) Len() int { return len(d.specs) }

// Dim returns the total tangent dimension.
func (d *Definition) Dim() int { return d.dim }

// Spec returns the i-th element spec.
func (d *Definition) Spec(i int) Spec { return d.specs[i] }

// Name returns the name of the i-th element.
func (d *Definition) Name(i int) string { return d.specs[i].Name }

// TraitsAt returns the traits of the i-th element.
func (d *Definition) TraitsAt(i int) Traits { return d.specs[i].Traits }

// Offset returns the tangent offset of the i-th element.
func (d *Definition) Offset(i int) int { return d.offsets[i] }

// IndexOf returns the index of the named element and whether it exists.
func (d *Definition) IndexOf(name string) (int, bool) {
	i, ok := d.index[name]
	return i, ok
}

// OffsetOf returns the tangent offset of the named element.
// It returns error if the name is not defined.
func (d *Definition) OffsetOf(name string) (int, error) {
	i, ok := d.index[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}

	return d.offsets[i], nil
}

// Clone returns a copy of the definition which can be extended without
// affecting d.
func (d *Definition) Clone() *Definition {
	out := &Definition{index: make(map[string]int, len(d.specs))}
	for _, s := range d.specs {
		out.push(s)
	}

	return out
}

// Extend adds all elements of other which d does not define yet.
// It returns error if a shared name carries incompatible traits.
func (d *Definition) Extend(other *Definition) error {
	for _, s := range other.specs {
		i, ok := d.index[s.Name]
		if !ok {
			if err := d.push(s); err != nil {
				return err
			}
			continue
		}
		if !compatibleTraits(d.specs[i].Traits, s.Traits) {
			return fmt.Errorf("%w: %q", ErrTypeMismatch, s.Name)
		}
	}

	return nil
}

// Same reports whether a and b describe the same layout: equal names,
// compatible traits and equal offsets, in order.
func Same(a, b *Definition) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil || len(a.specs) != len(b.specs) {
		return false
	}
	for i := range a.specs {
		if a.specs[i].Name != b.specs[i].Name {
			return false
		}
		if !compatibleTraits(a.specs[i].Traits, b.specs[i].Traits) {
			return false
		}
	}

	return true
}

func compatibleTraits(a, b Traits) bool {
	return reflect.TypeOf(a) == reflect.TypeOf(b) && a.Dim() == b.Dim()
}
