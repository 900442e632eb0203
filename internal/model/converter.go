package model

import (
	"errors"
	"fmt"

	"energy-dispatch/internal/sequence"
)

// Converter transforms its inputs into its outputs at fixed ratios. Every
// adjacent bus has a conversion factor; unlisted buses default to 1.
type Converter struct {
	core
	ConversionFactors map[Node]sequence.Sequence
}

func NewConverter(label string, inputs, outputs []Port, factors map[Node]sequence.Sequence) (*Converter, error) {
	if err := checkLabel(label); err != nil {
		return nil, &ConfigurationError{Label: label, Err: err}
	}
	c := &Converter{core: newCore(label)}
	if err := c.init(c, inputs, outputs, factors); err != nil {
		return nil, err
	}
	return c, nil
}

// init wires self, the outermost node type embedding c.
func (c *Converter) init(self Node, inputs, outputs []Port, factors map[Node]sequence.Sequence) error {
	if len(inputs) == 0 {
		Warn(c.label, "converter has no inputs")
	}
	if len(outputs) == 0 {
		Warn(c.label, "converter has no outputs")
	}
	if err := wire(self, inputs, outputs); err != nil {
		return err
	}
	c.ConversionFactors = make(map[Node]sequence.Sequence, len(factors))
	for n, s := range factors {
		if !c.inputs.Has(n) && !c.outputs.Has(n) {
			return topologyErr(c.label, "conversion factor for %s which is not connected", n.Label())
		}
		if err := validFactor(s); err != nil {
			return &ConfigurationError{Label: c.label, Err: fmt.Errorf("conversion factor for %s: %w", n.Label(), err)}
		}
		c.ConversionFactors[n] = s
	}
	for _, n := range append(c.inputs.Nodes(), c.outputs.Nodes()...) {
		if _, ok := c.ConversionFactors[n]; !ok {
			c.ConversionFactors[n] = sequence.Scalar(1)
		}
	}
	return nil
}

// Factor returns the conversion factor of bus n at step t.
func (c *Converter) Factor(n Node, t int) float64 {
	s, ok := c.ConversionFactors[n]
	if !ok {
		return 1
	}
	return s.At(t)
}

func (c *Converter) ConstraintGroup() Group { return ConverterGroup }

func validFactor(s sequence.Sequence) error {
	if err := s.CheckFinite(); err != nil {
		return err
	}
	if s.IsSet() && s.Min() <= 0 {
		return errors.New("must be > 0")
	}
	return nil
}
