package sensors

import (
	"math"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"

	"github.com/mapward/pgslam/kdtree"
	"github.com/mapward/pgslam/spatial"
)

const (
	// DefaultICPIterations is the fixed iteration count of the matcher.
	DefaultICPIterations = 20

	// densifyFactor is the linear up-sampling factor applied to the
	// reference scan before indexing it.
	densifyFactor = 7

	// dampKnee is the pair distance below which corrections are applied at
	// full length; above it the magnitude is sqrt-attenuated.
	dampKnee = 0.05

	// collisionLimit is the number of queries that may share one reference
	// point before the whole group is rejected as ambiguous.
	collisionLimit = 3

	// epsilon is the double-precision machine epsilon; points closer than
	// twice this to the centroid contribute no usable rotation signal.
	epsilon = 2.220446049250313e-16
)

// ICP aligns other against s and returns the pose of other expressed in s's
// frame together with the match ratio: the fraction of other's points that
// ended up within MatchThreshold of a reference point. The ratio is the
// value observed on the final iteration.
//
// The initial estimate is the current relative belief, other's pose
// expressed in s's frame. Degenerate
// inputs do not abort: a scan with fewer than two points returns the initial
// estimate, an empty neighborhood returns the identity, and an iteration
// that rejects every pair returns the initial estimate, all with ratio 0.
// Callers must check the ratio before trusting the pose.
func (s *LaserScan) ICP(other *LaserScan) (spatial.Pose2D, float64) {
	scanRef := s.pointsSelf
	scanOrigin := other.pointsSelf
	referencePose := other.pose.RelativeTo(s.pose)

	if len(scanRef) < 2 || len(scanOrigin) < 2 {
		golog.Global().Debugw("icp: scan has fewer than 2 points, returning initial estimate",
			"reference", len(scanRef), "query", len(scanOrigin))
		return referencePose, 0
	}

	scanRef = densify(scanRef)
	tree := kdtree.New(scanRef)

	iterations := s.Iterations
	if iterations <= 0 {
		iterations = DefaultICPIterations
	}

	ratio := 0.0
	pose := referencePose
	for iter := 0; iter < iterations; iter++ {
		scan := transformPoints(scanOrigin, pose)

		// near holds the accepted reference point per query; rejected
		// queries keep their own position so their pair distance is 0.
		near := make([]r2.Point, len(scan))
		copy(near, scan)
		traceBack := make([][]int, len(scanRef))
		mask := make([]bool, len(scan))

		matchCount := 0
		for i, point := range scan {
			index, ok := tree.NearestIndex(point)
			if !ok {
				return spatial.Pose2D{}, 0
			}
			traceBack[index] = append(traceBack[index], i)
			closest := scanRef[index]

			distance := point.Sub(closest).Norm()
			if distance < s.MatchThreshold {
				matchCount++
			}
			if distance < s.DistThreshold {
				near[i] = closest
				mask[i] = true
			} else {
				mask[i] = false
			}
		}
		ratio = float64(matchCount) / float64(len(scan))

		// A reference point chosen by many queries indicates a cluster
		// collapsing onto a single feature; drop the whole group.
		for _, group := range traceBack {
			if len(group) > collisionLimit {
				for _, i := range group {
					mask[i] = false
					near[i] = scan[i]
				}
			}
		}

		if s.StrictTrimming {
			trimWorstStrict(scan, near, mask)
		} else {
			trimWorst(scan, near, mask)
		}

		center := r2.Point{}
		count := 0
		for i := range scan {
			if mask[i] {
				center = center.Add(scan[i])
				count++
			}
		}
		if count == 0 {
			golog.Global().Debug("icp: no valid point pair, returning initial estimate")
			return referencePose, 0
		}
		center = center.Mul(1 / float64(count))

		var move r2.Point
		rot := 0.0
		for i := range scan {
			if !mask[i] {
				continue
			}
			delta := near[i].Sub(scan[i])
			length := delta.Norm()
			if length > 0 {
				delta = delta.Mul(dampen(length) / length)
			}
			move = move.Add(delta)

			p := scan[i].Sub(center)
			q := near[i].Sub(center)
			pNorm := p.Norm()
			if pNorm < 2*epsilon {
				continue
			}
			rot += p.Cross(q) / pNorm / math.Sqrt(pNorm)
		}
		move = move.Mul(1 / float64(count))
		rot /= float64(count)

		// Translation overshoot speeds convergence; rotation is applied as is.
		move = move.Mul(2.0)

		poseDelta := spatial.NewPose2D(move.X, move.Y, rot)
		poseDelta = pose.Inverse().Compose(poseDelta).Compose(pose)
		pose = pose.Compose(poseDelta)
	}
	return pose, ratio
}

// dampen limits the pull of a distant pair: full length below the knee,
// sqrt-attenuated above it.
func dampen(length float64) float64 {
	if length < dampKnee {
		return length
	}
	return math.Sqrt(length*20) / 20
}

// densify linearly up-samples points, inserting densifyFactor interpolants
// per consecutive pair (left endpoint included) plus the final endpoint.
func densify(points []r2.Point) []r2.Point {
	out := make([]r2.Point, 0, (len(points)-1)*densifyFactor+1)
	for i := 0; i < len(points)-1; i++ {
		step := points[i+1].Sub(points[i]).Mul(1.0 / densifyFactor)
		for j := 0; j < densifyFactor; j++ {
			out = append(out, points[i].Add(step.Mul(float64(j))))
		}
	}
	return append(out, points[len(points)-1])
}

// trimWorst disables roughly the worst tenth of the pairs by distance. The
// shifting insertion below misorders the running top-k when a distance
// falls below the smallest tracked value, so a few well-matched pairs can
// be dropped alongside the worst ones; the tuned thresholds assume this
// behavior. trimWorstStrict is the corrected variant.
func trimWorst(scan, near []r2.Point, mask []bool) {
	k := len(scan) / 10
	if k == 0 {
		return
	}
	maxDistance := make([]float64, k)
	maxIndex := make([]int, k)
	for i := range scan {
		distance := scan[i].Sub(near[i]).Norm()
		for j := 1; j < k; j++ {
			if distance > maxDistance[j] {
				maxDistance[j-1] = maxDistance[j]
				maxIndex[j-1] = maxIndex[j]
				if j == k-1 {
					maxDistance[j] = distance
					maxIndex[j] = i
				}
			} else {
				maxDistance[j-1] = distance
				maxIndex[j-1] = i
				break
			}
		}
	}
	for i := 1; i < k; i++ {
		mask[maxIndex[i]] = false
	}
}

// trimWorstStrict disables exactly the len/10 largest-distance pairs.
func trimWorstStrict(scan, near []r2.Point, mask []bool) {
	k := len(scan) / 10
	if k == 0 {
		return
	}
	order := make([]int, len(scan))
	distances := make([]float64, len(scan))
	for i := range scan {
		order[i] = i
		distances[i] = scan[i].Sub(near[i]).Norm()
	}
	sort.Slice(order, func(a, b int) bool { return distances[order[a]] > distances[order[b]] })
	for _, i := range order[:k] {
		mask[i] = false
	}
}
