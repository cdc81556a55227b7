package element

import (
	"fmt"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// Vector is a bound instance of a Definition holding one value per
// element. It exposes boxplus/boxminus over the flat tangent space of the
// whole tuple, dispatching per element to the element traits.
type Vector struct {
	def    *Definition
	values []any
}

// NewVector creates an identity-initialised vector over def.
func NewVector(def *Definition) *Vector {
	v := &Vector{
		def:    def,
		values: make([]any, def.Len()),
	}
	v.SetIdentity()

	return v
}

// Definition returns the vector definition.
func (v *Vector) Definition() *Definition { return v.def }

// Dim returns the total tangent dimension.
func (v *Vector) Dim() int { return v.def.Dim() }

// At returns the raw value of the i-th element.
func (v *Vector) At(i int) any { return v.values[i] }

// SetAt stores val as the i-th element value without a type check.
// Prefer Set for name-keyed, type-checked assignment.
func (v *Vector) SetAt(i int, val any) { v.values[i] = val }

// SetIdentity resets every element to its identity.
func (v *Vector) SetIdentity() {
	for i, s := range v.def.specs {
		v.values[i] = s.Traits.Identity()
	}
}

// SetRandom draws every element from rng.
func (v *Vector) SetRandom(rng *rand.Rand) {
	for i, s := range v.def.specs {
		v.values[i] = s.Traits.Random(rng)
	}
}

// Clone returns a deep copy of the vector sharing the definition.
func (v *Vector) Clone() *Vector {
	out := &Vector{
		def:    v.def,
		values: make([]any, len(v.values)),
	}
	for i, s := range v.def.specs {
		out.values[i] = s.Traits.Clone(v.values[i])
	}

	return out
}

// Copy overwrites the vector values with those of src.
// It returns error if the definitions differ.
func (v *Vector) Copy(src *Vector) error {
	if !Same(v.def, src.def) {
		return ErrDefinitionMismatch
	}
	for i, s := range v.def.specs {
		v.values[i] = s.Traits.Clone(src.values[i])
	}

	return nil
}

// AssignSubset copies the values of all elements whose name exists in both
// vectors and whose traits are compatible. Unmatched elements keep their
// value.
func (v *Vector) AssignSubset(src *Vector) {
	for i, s := range v.def.specs {
		j, ok := src.def.IndexOf(s.Name)
		if !ok || !compatibleTraits(s.Traits, src.def.specs[j].Traits) {
			continue
		}
		v.values[i] = s.Traits.Clone(src.values[j])
	}
}

// BoxPlus writes v boxplus vec into out, element-wise over the tangent
// slices. It is safe for out to alias v.
// It returns error if vec length or the out definition does not match.
func (v *Vector) BoxPlus(vec mat.Vector, out *Vector) error {
	if vec.Len() != v.def.Dim() {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, vec.Len(), v.def.Dim())
	}
	if !Same(v.def, out.def) {
		return ErrDefinitionMismatch
	}
	for i, s := range v.def.specs {
		d := s.Traits.Dim()
		if d == 0 {
			out.values[i] = s.Traits.Clone(v.values[i])
			continue
		}
		out.values[i] = s.Traits.Boxplus(v.values[i], sliceVec(vec, v.def.offsets[i], d))
	}

	return nil
}

// BoxMinus writes the tangent v boxminus ref into dst.
// It returns error if the definitions or the dst length do not match.
func (v *Vector) BoxMinus(ref *Vector, dst *mat.VecDense) error {
	if !Same(v.def, ref.def) {
		return ErrDefinitionMismatch
	}
	if dst.Len() != v.def.Dim() {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, dst.Len(), v.def.Dim())
	}
	for i, s := range v.def.specs {
		d := s.Traits.Dim()
		if d == 0 {
			continue
		}
		off := v.def.offsets[i]
		s.Traits.Boxminus(v.values[i], ref.values[i], dst.SliceVec(off, off+d).(*mat.VecDense))
	}

	return nil
}

// String renders the vector for diagnostics.
func (v *Vector) String() string {
	var b strings.Builder
	for i, s := range v.def.specs {
		fmt.Fprintf(&b, "%s: %s\n", s.Name, s.Traits.Print(v.values[i]))
	}

	return b.String()
}

// Value returns the named element value as type T.
// It returns error if the name is unknown or the stored type is not T.
func Value[T any](v *Vector, name string) (T, error) {
	var zero T
	i, ok := v.def.IndexOf(name)
	if !ok {
		return zero, fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	val, ok := v.values[i].(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T", ErrTypeMismatch, name, v.values[i])
	}

	return val, nil
}

// MustValue is like Value but panics on error. Lookup failures are
// programmer errors: the definition is known statically at the call site.
func MustValue[T any](v *Vector, name string) T {
	val, err := Value[T](v, name)
	if err != nil {
		panic(err)
	}

	return val
}

// Set stores val as the named element value.
// It returns error if the name is unknown or val has a different type than
// the stored value.
func Set[T any](v *Vector, name string, val T) error {
	i, ok := v.def.IndexOf(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownName, name)
	}
	if _, ok := v.values[i].(T); !ok {
		return fmt.Errorf("%w: %q holds %T", ErrTypeMismatch, name, v.values[i])
	}
	v.values[i] = v.def.specs[i].Traits.Clone(val)

	return nil
}

// MustSet is like Set but panics on error.
func MustSet[T any](v *Vector, name string, val T) {
	if err := Set(v, name, val); err != nil {
		panic(err)
	}
}
