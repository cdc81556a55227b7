package residual

import "github.com/milosgajdos/go-gif/element"

// NewUnaryBase creates the shared state of a unary update: a binary
// residual with an empty previous state definition, evaluated at most once
// per update interval.
func NewUnaryBase(name string, inn, cur, noi *element.Definition) (*Base, error) {
	pre, err := element.NewDefinition()
	if err != nil {
		return nil, err
	}

	return NewBase(name, inn, pre, cur, noi, true, false, false)
}
