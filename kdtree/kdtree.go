// Package kdtree provides a static two-dimensional k-d tree used as the
// correspondence index during scan matching. The tree is built once over a
// fixed point slice and answers nearest-neighbor queries by index into that
// slice; there are no insertions or deletions after construction.
package kdtree

import (
	"sort"

	"github.com/golang/geo/r2"
)

type node struct {
	point       r2.Point
	index       int
	axis        int
	left, right *node
}

// Tree is a build-once spatial index over a point slice.
type Tree struct {
	root *node
	size int
}

type entry struct {
	point r2.Point
	index int
}

// New builds a tree over points. The original slice indices are retained so
// query results can be traced back to the input ordering.
func New(points []r2.Point) *Tree {
	entries := make([]entry, len(points))
	for i, p := range points {
		entries[i] = entry{point: p, index: i}
	}
	return &Tree{root: build(entries, 0), size: len(points)}
}

// Size returns the number of indexed points.
func (t *Tree) Size() int { return t.size }

// build splits entries at the median of the current axis and recurses with
// the axis alternated. Equal coordinates are ordered by original index so
// duplicate points produce a deterministic tree.
func build(entries []entry, axis int) *node {
	if len(entries) == 0 {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := coord(entries[i].point, axis), coord(entries[j].point, axis)
		if a != b {
			return a < b
		}
		return entries[i].index < entries[j].index
	})

	mid := len(entries) / 2
	return &node{
		point: entries[mid].point,
		index: entries[mid].index,
		axis:  axis,
		left:  build(entries[:mid], 1-axis),
		right: build(entries[mid+1:], 1-axis),
	}
}

func coord(p r2.Point, axis int) float64 {
	if axis == 0 {
		return p.X
	}
	return p.Y
}

// NearestIndex returns the construction index of the point closest to q.
// ok is false when the tree is empty. Ties in distance resolve to the
// lowest index.
func (t *Tree) NearestIndex(q r2.Point) (int, bool) {
	if t.root == nil {
		return 0, false
	}
	best := &nearest{index: -1}
	t.root.search(q, best)
	return best.index, true
}

type nearest struct {
	index int
	dist2 float64
}

func (n *node) search(q r2.Point, best *nearest) {
	d := q.Sub(n.point)
	dist2 := d.X*d.X + d.Y*d.Y
	if best.index == -1 || dist2 < best.dist2 ||
		(dist2 == best.dist2 && n.index < best.index) {
		best.index = n.index
		best.dist2 = dist2
	}

	delta := coord(q, n.axis) - coord(n.point, n.axis)
	first, second := n.left, n.right
	if delta > 0 {
		first, second = n.right, n.left
	}
	if first != nil {
		first.search(q, best)
	}
	// The far subtree can only hold a closer point if the splitting plane
	// is within the best radius.
	if second != nil && delta*delta <= best.dist2 {
		second.search(q, best)
	}
}
