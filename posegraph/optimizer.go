package posegraph

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/mapward/pgslam/spatial"
)

const (
	// maxSolverIterations bounds the Gauss-Newton loop; typical graphs
	// converge in two or three rounds.
	maxSolverIterations = 10

	// stepTolerance is the update norm below which the solve stops early.
	stepTolerance = 1e-9

	// gaugeInfo is the information weight of the synthetic prior pinning
	// the gauge when the graph carries no prior of its own.
	gaugeInfo = 1e6
)

// Optimize runs batch Gauss-Newton over all live nodes and factors. A
// failed linear solve leaves the node values untouched and is logged; the
// back-end contract keeps every error non-fatal.
func (g *Graph) Optimize() {
	live := make([]int, 0, len(g.nodes))
	index := make(map[int]int, len(g.nodes))
	for id, pose := range g.nodes {
		if pose == nil {
			continue
		}
		index[id] = len(live)
		live = append(live, id)
	}
	if len(live) == 0 {
		return
	}

	// Three state entries (x, y, theta) per live node.
	dim := 3 * len(live)
	state := make([]spatial.Pose2D, len(live))
	for i, id := range live {
		state[i] = *g.nodes[id]
	}

	priors := g.priors
	if len(priors) == 0 {
		// No prior means the graph floats; pin the lowest live id at its
		// current value to fix the gauge for this solve.
		priors = append(priors, priorFactor{node: live[0], pose: state[0], info: gaugeInfo})
	}

	for iter := 0; iter < maxSolverIterations; iter++ {
		h := mat.NewDense(dim, dim, nil)
		b := mat.NewVecDense(dim, nil)

		for _, f := range priors {
			i, ok := index[f.node]
			if !ok {
				continue
			}
			x := state[i]
			// Residual of a unary prior is the plain state difference;
			// its Jacobian is the identity.
			r := []float64{
				x.X() - f.pose.X(),
				x.Y() - f.pose.Y(),
				wrapAngle(x.Theta() - f.pose.Theta()),
			}
			for a := 0; a < 3; a++ {
				h.Set(3*i+a, 3*i+a, h.At(3*i+a, 3*i+a)+f.info)
				b.SetVec(3*i+a, b.AtVec(3*i+a)+f.info*r[a])
			}
		}

		for _, f := range g.relatives {
			i, iok := index[f.ref]
			j, jok := index[f.node]
			if !iok || !jok {
				continue
			}
			xi, xj := state[i], state[j]
			sin, cos := math.Sincos(xi.Theta())
			dx := xj.X() - xi.X()
			dy := xj.Y() - xi.Y()

			// Predicted relative pose R(theta_i)^T (t_j - t_i).
			r := []float64{
				cos*dx + sin*dy - f.relative.X(),
				-sin*dx + cos*dy - f.relative.Y(),
				wrapAngle(xj.Theta() - xi.Theta() - f.relative.Theta()),
			}

			// Jacobian blocks with respect to (x_i, x_j); rows follow the
			// residual order above.
			ji := [3][3]float64{
				{-cos, -sin, -sin*dx + cos*dy},
				{sin, -cos, -cos*dx - sin*dy},
				{0, 0, -1},
			}
			jj := [3][3]float64{
				{cos, sin, 0},
				{-sin, cos, 0},
				{0, 0, 1},
			}

			accumulate(h, b, f.info, r, [2]int{3 * i, 3 * j}, [2][3][3]float64{ji, jj})
		}

		dxVec := mat.NewVecDense(dim, nil)
		if err := dxVec.SolveVec(h, b); err != nil {
			g.logger.Warnw("pose graph solve failed, keeping current estimates", "error", err)
			return
		}

		stepNorm := 0.0
		for i := range state {
			sx := dxVec.AtVec(3 * i)
			sy := dxVec.AtVec(3*i + 1)
			st := dxVec.AtVec(3*i + 2)
			state[i] = spatial.NewPose2D(state[i].X()-sx, state[i].Y()-sy, state[i].Theta()-st)
			stepNorm += sx*sx + sy*sy + st*st
		}
		if math.Sqrt(stepNorm) < stepTolerance {
			break
		}
	}

	for i, id := range live {
		pose := state[i]
		g.nodes[id] = &pose
	}
}

// accumulate folds one weighted factor into the normal equations
// H += w J^T J, b += w J^T r for each of the two Jacobian blocks.
func accumulate(h *mat.Dense, b *mat.VecDense, w float64, r []float64, offsets [2]int, blocks [2][3][3]float64) {
	for bi := 0; bi < 2; bi++ {
		for bj := 0; bj < 2; bj++ {
			for a := 0; a < 3; a++ {
				for c := 0; c < 3; c++ {
					sum := 0.0
					for k := 0; k < 3; k++ {
						sum += blocks[bi][k][a] * blocks[bj][k][c]
					}
					row, col := offsets[bi]+a, offsets[bj]+c
					h.Set(row, col, h.At(row, col)+w*sum)
				}
			}
		}
		for a := 0; a < 3; a++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += blocks[bi][k][a] * r[k]
			}
			row := offsets[bi] + a
			b.SetVec(row, b.AtVec(row)+w*sum)
		}
	}
}

// wrapAngle brings theta into (-pi, pi].
func wrapAngle(theta float64) float64 {
	for theta <= -math.Pi {
		theta += 2 * math.Pi
	}
	for theta > math.Pi {
		theta -= 2 * math.Pi
	}
	return theta
}
