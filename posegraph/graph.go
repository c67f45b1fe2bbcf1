// Package posegraph maintains the sparse pose graph behind the SLAM
// front-end: nodes addressed by integer id, unary priors, binary relative
// factors, and batch optimization over all of them. The front-end depends
// only on Interface so the optimizer can be swapped out; NoOp provides the
// append-only variant for builds without loop closure.
package posegraph

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"

	"github.com/mapward/pgslam/spatial"
)

// Node is one optimized graph entry.
type Node struct {
	ID   int
	Pose spatial.Pose2D
}

// Interface is the capability set the front-end requires from a back-end.
type Interface interface {
	// AddPrior anchors a node at pose with isotropic information cov.
	AddPrior(id int, pose spatial.Pose2D, cov float64)
	// AddRelative constrains node to sit at relative in ref's frame with
	// isotropic information cov.
	AddRelative(ref, id int, relative spatial.Pose2D, cov float64)
	// Remove tombstones a node, detaches its factors and re-optimizes.
	Remove(id int)
	// Clear resets nodes and factors.
	Clear()
	// Optimize runs batch nonlinear least squares over the graph.
	Optimize()
	// Nodes returns the current value of every live node in id order.
	Nodes() []Node
	// Factors returns the endpoint positions of every binary factor.
	Factors() [][2]r2.Point
}

type priorFactor struct {
	node int
	pose spatial.Pose2D
	info float64
}

type relativeFactor struct {
	ref, node int
	relative  spatial.Pose2D
	info      float64
}

// Graph is the gonum-backed batch optimizer. Nodes live in a dense table
// indexed by id; removed nodes leave tombstones so ids stay stable.
type Graph struct {
	logger    golog.Logger
	nodes     []*spatial.Pose2D
	priors    []priorFactor
	relatives []relativeFactor
}

// NewGraph returns an empty graph.
func NewGraph(logger golog.Logger) *Graph {
	return &Graph{logger: logger}
}

// ensure grows the node table to cover id, instantiating fresh default
// nodes for any gap, and revives a tombstoned id. It reports whether the
// node at id was (re)created by this call.
func (g *Graph) ensure(id int) bool {
	if id < len(g.nodes) {
		if g.nodes[id] == nil {
			g.nodes[id] = &spatial.Pose2D{}
			return true
		}
		return false
	}
	for len(g.nodes) <= id {
		g.nodes = append(g.nodes, &spatial.Pose2D{})
	}
	return true
}

// AddPrior anchors node id at pose. cov <= 0 is coerced to 1 before it is
// used as the information weight.
func (g *Graph) AddPrior(id int, pose spatial.Pose2D, cov float64) {
	if id < 0 {
		return
	}
	if cov <= 0 {
		cov = 1.0
	}
	g.ensure(id)
	g.priors = append(g.priors, priorFactor{node: id, pose: pose, info: cov})
}

// AddRelative constrains node id relative to node ref. cov <= 0 is coerced
// to 1. A node created by this call is seeded from the reference value
// composed with the measurement so optimization starts near the solution.
func (g *Graph) AddRelative(ref, id int, relative spatial.Pose2D, cov float64) {
	if ref < 0 || id < 0 {
		return
	}
	if cov <= 0 {
		cov = 1.0
	}
	g.ensure(ref)
	if g.ensure(id) {
		seeded := g.nodes[ref].Compose(relative)
		g.nodes[id] = &seeded
	}
	g.relatives = append(g.relatives, relativeFactor{ref: ref, node: id, relative: relative, info: cov})
}

// Remove tombstones node id, drops every factor attached to it and
// re-optimizes the remaining graph.
func (g *Graph) Remove(id int) {
	if id < 0 || id >= len(g.nodes) || g.nodes[id] == nil {
		return
	}
	g.nodes[id] = nil

	priors := g.priors[:0]
	for _, f := range g.priors {
		if f.node != id {
			priors = append(priors, f)
		}
	}
	g.priors = priors

	relatives := g.relatives[:0]
	for _, f := range g.relatives {
		if f.ref != id && f.node != id {
			relatives = append(relatives, f)
		}
	}
	g.relatives = relatives

	g.Optimize()
}

// Clear resets nodes and factors.
func (g *Graph) Clear() {
	g.nodes = nil
	g.priors = nil
	g.relatives = nil
}

// Nodes returns the current value of every live node in id order.
func (g *Graph) Nodes() []Node {
	nodes := make([]Node, 0, len(g.nodes))
	for id, pose := range g.nodes {
		if pose == nil {
			continue
		}
		nodes = append(nodes, Node{ID: id, Pose: *pose})
	}
	return nodes
}

// Factors returns the endpoint positions of every binary factor whose nodes
// are both live.
func (g *Graph) Factors() [][2]r2.Point {
	factors := make([][2]r2.Point, 0, len(g.relatives))
	for _, f := range g.relatives {
		if f.ref >= len(g.nodes) || f.node >= len(g.nodes) {
			continue
		}
		first, second := g.nodes[f.ref], g.nodes[f.node]
		if first == nil || second == nil {
			continue
		}
		factors = append(factors, [2]r2.Point{first.Pos(), second.Pos()})
	}
	return factors
}
