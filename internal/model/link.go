package model

import (
	"fmt"

	"energy-dispatch/internal/sequence"
)

// LinkKey names one direction of a Link: power enters from From and leaves
// towards To.
type LinkKey struct {
	From Node
	To   Node
}

// Link connects two buses in both directions with a loss factor per
// direction: P(link, to, t) = c(from, to, t) * P(from, link, t).
type Link struct {
	core
	ConversionFactors map[LinkKey]sequence.Sequence
	// keys in the order they were given, for deterministic enumeration
	keys []LinkKey
}

// LinkFactor pairs a direction with its conversion factor.
type LinkFactor struct {
	From   Node
	To     Node
	Factor sequence.Sequence
}

func NewLink(label string, inputs, outputs []Port, factors []LinkFactor) (*Link, error) {
	if err := checkLabel(label); err != nil {
		return nil, &ConfigurationError{Label: label, Err: err}
	}
	l := &Link{core: newCore(label), ConversionFactors: map[LinkKey]sequence.Sequence{}}
	if err := wire(l, inputs, outputs); err != nil {
		return nil, err
	}
	for _, f := range factors {
		key := LinkKey{From: f.From, To: f.To}
		if f.From == nil || f.To == nil {
			return nil, topologyErr(label, "link factor without buses")
		}
		if !l.inputs.Has(f.From) {
			return nil, topologyErr(label, "no input flow from %s", f.From.Label())
		}
		if !l.outputs.Has(f.To) {
			return nil, topologyErr(label, "no output flow to %s", f.To.Label())
		}
		if _, dup := l.ConversionFactors[key]; dup {
			return nil, configErr(label, "duplicate conversion factor %s -> %s", f.From.Label(), f.To.Label())
		}
		if err := validFactor(f.Factor); err != nil {
			return nil, &ConfigurationError{Label: label, Err: fmt.Errorf("conversion factor %s -> %s: %w", f.From.Label(), f.To.Label(), err)}
		}
		l.ConversionFactors[key] = f.Factor.OrScalar(1)
		l.keys = append(l.keys, key)
	}
	if l.inputs.Len() != 2 || l.outputs.Len() != 2 || len(l.keys) != 2 {
		Warn(label, "a link should have exactly 2 inputs, 2 outputs and 2 conversion factors")
	}
	return l, nil
}

// Directions lists the conversion keys in the order they were given.
func (l *Link) Directions() []LinkKey { return append([]LinkKey(nil), l.keys...) }

func (l *Link) ConstraintGroup() Group { return LinkGroup }
