package model

import (
	"energy-dispatch/internal/sequence"
)

// ExtractionTurbineCHP is a steam-extraction plant with one fuel input and
// two outputs. The main (electrical) output is the bus carrying the
// full-condensation efficiency; the other output is the tapped heat output.
type ExtractionTurbineCHP struct {
	Converter
	// ConversionFactorFullCondensation is the electrical efficiency when no
	// heat is extracted, keyed by the main output bus.
	ConversionFactorFullCondensation map[Node]sequence.Sequence

	mainOutput   Node
	tappedOutput Node
}

func NewExtractionTurbineCHP(label string, fuel Port, outputs []Port, factors map[Node]sequence.Sequence, fullCondensation map[Node]sequence.Sequence) (*ExtractionTurbineCHP, error) {
	if err := checkLabel(label); err != nil {
		return nil, &ConfigurationError{Label: label, Err: err}
	}
	chp := &ExtractionTurbineCHP{Converter: Converter{core: newCore(label)}}
	if len(outputs) != 2 {
		return nil, configErr(label, "extraction turbine needs exactly 2 outputs, got %d", len(outputs))
	}
	if len(fullCondensation) != 1 {
		return nil, configErr(label, "exactly one full-condensation efficiency is required")
	}
	if err := chp.init(chp, []Port{fuel}, outputs, factors); err != nil {
		return nil, err
	}
	chp.ConversionFactorFullCondensation = map[Node]sequence.Sequence{}
	for n, s := range fullCondensation {
		if !chp.outputs.Has(n) {
			return nil, topologyErr(label, "full-condensation efficiency refers to %s which is not an output", n.Label())
		}
		if err := validFactor(s); err != nil {
			return nil, configErr(label, "full-condensation efficiency: %v", err)
		}
		chp.ConversionFactorFullCondensation[n] = s
		chp.mainOutput = n
	}
	for _, n := range chp.outputs.Nodes() {
		if n != chp.mainOutput {
			chp.tappedOutput = n
		}
	}
	if _, ok := factors[chp.mainOutput]; !ok {
		return nil, configErr(label, "conversion factor for the main output %s is required", chp.mainOutput.Label())
	}
	if _, ok := factors[chp.tappedOutput]; !ok {
		return nil, configErr(label, "conversion factor for the tapped output %s is required", chp.tappedOutput.Label())
	}
	return chp, nil
}

// FuelInput returns the single input bus.
func (c *ExtractionTurbineCHP) FuelInput() Node {
	n, _ := c.inputs.First()
	return n
}

func (c *ExtractionTurbineCHP) MainOutput() Node   { return c.mainOutput }
func (c *ExtractionTurbineCHP) TappedOutput() Node { return c.tappedOutput }

// Beta is the power loss index (η_cond − η_el) / η_heat at step t.
func (c *ExtractionTurbineCHP) Beta(t int) float64 {
	cond := c.ConversionFactorFullCondensation[c.mainOutput].At(t)
	return (cond - c.Factor(c.mainOutput, t)) / c.Factor(c.tappedOutput, t)
}

// FlowRelation is η_el / η_heat at step t, the back-pressure slope.
func (c *ExtractionTurbineCHP) FlowRelation(t int) float64 {
	return c.Factor(c.mainOutput, t) / c.Factor(c.tappedOutput, t)
}

// CondensationEfficiency is η_cond at step t.
func (c *ExtractionTurbineCHP) CondensationEfficiency(t int) float64 {
	return c.ConversionFactorFullCondensation[c.mainOutput].At(t)
}

func (c *ExtractionTurbineCHP) ConstraintGroup() Group { return CHPGroup }
