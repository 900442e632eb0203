package model

// Bus is a commodity balance node. Balanced buses conserve their flows in
// every timestep; unbalanced buses are free junctions.
type Bus struct {
	core
	Balanced bool
}

// NewBus returns a balanced bus.
func NewBus(label string) *Bus {
	return &Bus{core: newCore(label), Balanced: true}
}

// NewUnbalancedBus returns a bus without a balance constraint.
func NewUnbalancedBus(label string) *Bus {
	return &Bus{core: newCore(label)}
}

func (b *Bus) ConstraintGroup() Group {
	if b.Balanced {
		return BusGroup
	}
	return NoGroup
}

// Source only has outputs.
type Source struct {
	core
}

func NewSource(label string, outputs ...Port) (*Source, error) {
	if err := checkLabel(label); err != nil {
		return nil, &ConfigurationError{Label: label, Err: err}
	}
	s := &Source{core: newCore(label)}
	if len(outputs) == 0 {
		Warn(label, "source has no outputs")
	}
	if err := wire(s, nil, outputs); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) ConstraintGroup() Group { return NoGroup }

// Sink only has inputs.
type Sink struct {
	core
}

func NewSink(label string, inputs ...Port) (*Sink, error) {
	if err := checkLabel(label); err != nil {
		return nil, &ConfigurationError{Label: label, Err: err}
	}
	s := &Sink{core: newCore(label)}
	if len(inputs) == 0 {
		Warn(label, "sink has no inputs")
	}
	if err := wire(s, inputs, nil); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) ConstraintGroup() Group { return NoGroup }
