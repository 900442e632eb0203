package model

import (
	"errors"

	"energy-dispatch/internal/sequence"
)

// OffsetConverter is a converter whose output is affine in its input while
// running: P_out(t) = a1(t)·P_in(t) + a0(t)·status(t). The status comes from
// the NonConvex option of the input flow.
type OffsetConverter struct {
	core
	// Coefficients holds (a0, a1): offset in output units and slope.
	Coefficients [2]sequence.Sequence
}

func NewOffsetConverter(label string, input, output Port, coefficients [2]sequence.Sequence) (*OffsetConverter, error) {
	if err := checkLabel(label); err != nil {
		return nil, &ConfigurationError{Label: label, Err: err}
	}
	if !coefficients[0].IsSet() || !coefficients[1].IsSet() {
		return nil, configErr(label, "two coefficients (offset, slope) are required")
	}
	for _, c := range coefficients {
		if err := c.CheckFinite(); err != nil {
			return nil, configErr(label, "coefficient: %v", err)
		}
	}
	if input.Flow == nil || input.Flow.NonConvex == nil {
		return nil, configErr(label, "the input flow must have a NonConvex option")
	}
	oc := &OffsetConverter{core: newCore(label), Coefficients: coefficients}
	if err := wire(oc, []Port{input}, []Port{output}); err != nil {
		return nil, err
	}
	return oc, nil
}

// InputFlow returns the single (nonconvex) input flow.
func (c *OffsetConverter) InputFlow() *Flow {
	_, f := c.inputs.First()
	return f
}

func (c *OffsetConverter) OutputFlow() *Flow {
	_, f := c.outputs.First()
	return f
}

func (c *OffsetConverter) ConstraintGroup() Group { return OffsetConverterGroup }

// SlopeOffset fits (offset, slope) for an OffsetConverter from two operating
// points of the input capacity: efficiency etaMin at load fraction minLoad
// and etaMax at maxLoad.
func SlopeOffset(nominalInput, minLoad, maxLoad, etaMin, etaMax float64) (offset, slope float64, err error) {
	if nominalInput <= 0 {
		return 0, 0, errors.New("nominal input must be > 0")
	}
	if maxLoad <= minLoad {
		return 0, 0, errors.New("max load must exceed min load")
	}
	inMin, inMax := minLoad*nominalInput, maxLoad*nominalInput
	outMin, outMax := etaMin*inMin, etaMax*inMax
	slope = (outMax - outMin) / (inMax - inMin)
	offset = outMin - slope*inMin
	return offset, slope, nil
}
