package model

import (
	"errors"
	"fmt"

	"energy-dispatch/internal/timeindex"
)

// EnergySystem owns the nodes of one model together with its time axis.
type EnergySystem struct {
	TimeIndex *timeindex.TimeIndex

	nodes   []Node
	byLabel map[string]Node
}

func NewEnergySystem(ti *timeindex.TimeIndex) *EnergySystem {
	return &EnergySystem{TimeIndex: ti, byLabel: map[string]Node{}}
}

// Add registers nodes in order. Labels must be unique and a node can belong
// to one energy system only.
func (es *EnergySystem) Add(nodes ...Node) error {
	for _, n := range nodes {
		if n == nil {
			return errors.New("cannot add a nil node")
		}
		if _, dup := es.byLabel[n.Label()]; dup {
			return configErr(n.Label(), "label is not unique")
		}
		c := n.base()
		if c.owner != nil && c.owner != es {
			return topologyErr(n.Label(), "node already belongs to another energy system")
		}
		c.owner = es
		es.nodes = append(es.nodes, n)
		es.byLabel[n.Label()] = n
	}
	return nil
}

// Nodes returns all nodes in insertion order.
func (es *EnergySystem) Nodes() []Node { return append([]Node(nil), es.nodes...) }

func (es *EnergySystem) Node(label string) (Node, bool) {
	n, ok := es.byLabel[label]
	return n, ok
}

// Contains reports whether n itself (not only its label) was added.
func (es *EnergySystem) Contains(n Node) bool {
	m, ok := es.byLabel[n.Label()]
	return ok && m == n
}

// Flows lists every flow once, ordered by the insertion order of its source
// node and then by that node's output order.
func (es *EnergySystem) Flows() []*Flow {
	var out []*Flow
	for _, n := range es.nodes {
		out = append(out, n.Outputs().Flows()...)
	}
	return out
}

// Validate checks the time axis and that every flow connects two nodes of
// this energy system.
func (es *EnergySystem) Validate() error {
	if es.TimeIndex == nil {
		return errors.New("energy system has no time index")
	}
	if len(es.nodes) == 0 {
		return errors.New("energy system has no nodes")
	}
	for _, n := range es.nodes {
		for _, f := range append(n.Inputs().Flows(), n.Outputs().Flows()...) {
			for _, end := range []Node{f.From(), f.To()} {
				if !es.Contains(end) {
					return topologyErr(f.Label(), "node %q is not part of the energy system", end.Label())
				}
			}
		}
	}
	return nil
}

// Groups partitions nodes and flows by their constraint group, preserving
// insertion order.
func (es *EnergySystem) Groups() Groups {
	g := Groups{Nodes: map[Group][]Node{}, Flows: map[Group][]*Flow{}}
	for _, n := range es.nodes {
		if tag := n.ConstraintGroup(); tag != NoGroup {
			g.Nodes[tag] = append(g.Nodes[tag], n)
		}
	}
	for _, f := range es.Flows() {
		tag := f.ConstraintGroup()
		g.Flows[tag] = append(g.Flows[tag], f)
	}
	return g
}

func (es *EnergySystem) String() string {
	return fmt.Sprintf("EnergySystem(%d nodes, %d flows)", len(es.nodes), len(es.Flows()))
}
