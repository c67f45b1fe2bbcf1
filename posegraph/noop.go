package posegraph

import (
	"github.com/golang/geo/r2"

	"github.com/mapward/pgslam/spatial"
)

// NoOp is the append-only back-end: it keeps node values exactly as given
// and never optimizes, so the front-end's pull-back step echoes the poses it
// pushed in. Use it for builds without loop closure.
type NoOp struct {
	nodes []*spatial.Pose2D
}

// NewNoOp returns an empty append-only back-end.
func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) ensure(id int) {
	if id < 0 {
		return
	}
	for len(n.nodes) <= id {
		n.nodes = append(n.nodes, &spatial.Pose2D{})
	}
	if n.nodes[id] == nil {
		n.nodes[id] = &spatial.Pose2D{}
	}
}

// AddPrior records pose as the value of node id.
func (n *NoOp) AddPrior(id int, pose spatial.Pose2D, cov float64) {
	if id < 0 {
		return
	}
	n.ensure(id)
	n.nodes[id] = &pose
}

// AddRelative records the value of node id as ref's value composed with the
// measurement.
func (n *NoOp) AddRelative(ref, id int, relative spatial.Pose2D, cov float64) {
	if ref < 0 || id < 0 {
		return
	}
	n.ensure(ref)
	n.ensure(id)
	composed := n.nodes[ref].Compose(relative)
	n.nodes[id] = &composed
}

// Remove tombstones node id.
func (n *NoOp) Remove(id int) {
	if id < 0 || id >= len(n.nodes) {
		return
	}
	n.nodes[id] = nil
}

// Clear resets the node table.
func (n *NoOp) Clear() {
	n.nodes = nil
}

// Optimize does nothing.
func (n *NoOp) Optimize() {}

// Nodes returns the recorded node values in id order.
func (n *NoOp) Nodes() []Node {
	nodes := make([]Node, 0, len(n.nodes))
	for id, pose := range n.nodes {
		if pose == nil {
			continue
		}
		nodes = append(nodes, Node{ID: id, Pose: *pose})
	}
	return nodes
}

// Factors returns no factors; the append-only back-end keeps none.
func (n *NoOp) Factors() [][2]r2.Point { return nil }
