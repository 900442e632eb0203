package model

import (
	"errors"
	"strings"
)

// Node is a vertex of the energy-system graph: a bus or a component.
type Node interface {
	Label() string
	// Inputs maps each upstream node to the flow arriving from it.
	Inputs() *Edges
	// Outputs maps each downstream node to the flow leaving towards it.
	Outputs() *Edges
	// ConstraintGroup names the block that builds this node's constraints,
	// or NoGroup when its flows carry all of its behaviour.
	ConstraintGroup() Group
	base() *core
}

// Tuple builds a tuple-like label from its parts.
func Tuple(parts ...string) string {
	return "(" + strings.Join(parts, ", ") + ")"
}

type core struct {
	label   string
	inputs  Edges
	outputs Edges
	owner   *EnergySystem
}

func newCore(label string) core {
	return core{
		label:   label,
		inputs:  Edges{flows: map[Node]*Flow{}},
		outputs: Edges{flows: map[Node]*Flow{}},
	}
}

func (c *core) Label() string   { return c.label }
func (c *core) Inputs() *Edges  { return &c.inputs }
func (c *core) Outputs() *Edges { return &c.outputs }
func (c *core) String() string  { return c.label }
func (c *core) base() *core     { return c }

// Edges is an insertion-ordered adjacency map from neighbour to flow.
type Edges struct {
	nodes []Node
	flows map[Node]*Flow
}

func (e *Edges) Len() int { return len(e.nodes) }

// Nodes returns the neighbours in insertion order.
func (e *Edges) Nodes() []Node { return append([]Node(nil), e.nodes...) }

// Flows returns the flows in insertion order.
func (e *Edges) Flows() []*Flow {
	out := make([]*Flow, len(e.nodes))
	for i, n := range e.nodes {
		out[i] = e.flows[n]
	}
	return out
}

func (e *Edges) Flow(n Node) (*Flow, bool) {
	f, ok := e.flows[n]
	return f, ok
}

func (e *Edges) Has(n Node) bool {
	_, ok := e.flows[n]
	return ok
}

// First returns the first neighbour and its flow.
func (e *Edges) First() (Node, *Flow) {
	if len(e.nodes) == 0 {
		return nil, nil
	}
	return e.nodes[0], e.flows[e.nodes[0]]
}

func (e *Edges) add(n Node, f *Flow) {
	e.nodes = append(e.nodes, n)
	e.flows[n] = f
}

// Port attaches a flow between a component and a neighbouring bus. Used as
// an input the flow runs Node -> component, as an output component -> Node.
type Port struct {
	Node Node
	Flow *Flow
}

// Connect is shorthand for Port{Node: n, Flow: f}.
func Connect(n Node, f *Flow) Port { return Port{Node: n, Flow: f} }

// wire validates every port of n and then registers them on both ends.
// Nothing is registered when any port is rejected.
func wire(n Node, inputs, outputs []Port) error {
	type edge struct {
		from, to Node
		f        *Flow
	}
	edges := make([]edge, 0, len(inputs)+len(outputs))
	seen := map[*Flow]bool{}
	check := func(from, to Node, f *Flow) error {
		if from == nil || to == nil {
			return topologyErr(n.Label(), "port without a node")
		}
		if f == nil {
			f = &Flow{}
		}
		if f.from != nil || seen[f] {
			return configErr(f.Label(), "flow is already connected")
		}
		if to.Inputs().Has(from) {
			return topologyErr(n.Label(), "duplicate flow %s -> %s", from.Label(), to.Label())
		}
		for _, e := range edges {
			if e.from == from && e.to == to {
				return topologyErr(n.Label(), "duplicate flow %s -> %s", from.Label(), to.Label())
			}
		}
		f.from, f.to = from, to
		err := f.Validate()
		lbl := f.Label()
		f.from, f.to = nil, nil
		if err != nil {
			return &ConfigurationError{Label: lbl, Err: err}
		}
		seen[f] = true
		edges = append(edges, edge{from, to, f})
		return nil
	}
	for _, p := range inputs {
		if err := check(p.Node, n, p.Flow); err != nil {
			return err
		}
	}
	for _, p := range outputs {
		if err := check(n, p.Node, p.Flow); err != nil {
			return err
		}
	}

	for _, e := range edges {
		e.f.from, e.f.to = e.from, e.to
		for _, w := range e.f.Warnings() {
			Warn(e.f.Label(), "%s", w)
		}
		e.from.base().outputs.add(e.to, e.f)
		e.to.base().inputs.add(e.from, e.f)
	}
	return nil
}

func checkLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return errors.New("label must not be empty")
	}
	return nil
}
