package sensors

import (
	"github.com/golang/geo/r2"

	"github.com/mapward/pgslam/spatial"
)

// Default point-pair thresholds for scan matching, in meters. A pair counts
// toward the match ratio below MatchThreshold and is accepted as an ICP
// correspondence below DistThreshold.
const (
	DefaultMatchThreshold = 0.1
	DefaultDistThreshold  = 1.0
)

// LaserScan owns the sensor-frame projection of one sweep of echoes plus the
// scan's world-frame pose. The world-frame points and their bounds are cached
// and lazily recomputed whenever the pose changes.
type LaserScan struct {
	pointsSelf  []r2.Point
	pose        spatial.Pose2D
	pointsWorld []r2.Point
	worldValid  bool

	minX, maxX, minY, maxY float64

	// MatchThreshold and DistThreshold parameterize ICP pair selection.
	MatchThreshold float64
	DistThreshold  float64

	// Iterations overrides the fixed ICP iteration count when positive.
	Iterations int

	// StrictTrimming selects the corrected worst-pair rejection instead of
	// the historical running top-k.
	StrictTrimming bool
}

// NewLaserScan projects echoes into the sensor frame. The echoes themselves
// are not retained.
func NewLaserScan(echos []Echo) *LaserScan {
	scan := &LaserScan{
		pointsSelf:     make([]r2.Point, 0, len(echos)),
		MatchThreshold: DefaultMatchThreshold,
		DistThreshold:  DefaultDistThreshold,
	}
	for _, e := range echos {
		scan.pointsSelf = append(scan.pointsSelf, e.Point())
	}
	return scan
}

// NewLaserScanWithPose projects echoes and stamps the scan with a world pose.
func NewLaserScanWithPose(echos []Echo, pose spatial.Pose2D) *LaserScan {
	scan := NewLaserScan(echos)
	scan.pose = pose
	return scan
}

// Pose returns the scan's pose in the world frame.
func (s *LaserScan) Pose() spatial.Pose2D { return s.pose }

// SetPose replaces the scan's world pose and invalidates the world cache.
func (s *LaserScan) SetPose(pose spatial.Pose2D) {
	s.pose = pose
	s.worldValid = false
}

// NumPoints returns the number of points in the scan.
func (s *LaserScan) NumPoints() int { return len(s.pointsSelf) }

// PointsSelf returns the sensor-frame points. The slice is shared; callers
// must not mutate it.
func (s *LaserScan) PointsSelf() []r2.Point { return s.pointsSelf }

// Points returns the points transformed into the world frame.
func (s *LaserScan) Points() []r2.Point {
	s.updateToWorld()
	return s.pointsWorld
}

// MaxXInWorld returns the largest world-frame x over the scan.
func (s *LaserScan) MaxXInWorld() float64 {
	s.updateToWorld()
	return s.maxX
}

// MinXInWorld returns the smallest world-frame x over the scan.
func (s *LaserScan) MinXInWorld() float64 {
	s.updateToWorld()
	return s.minX
}

// MaxYInWorld returns the largest world-frame y over the scan.
func (s *LaserScan) MaxYInWorld() float64 {
	s.updateToWorld()
	return s.maxY
}

// MinYInWorld returns the smallest world-frame y over the scan.
func (s *LaserScan) MinYInWorld() float64 {
	s.updateToWorld()
	return s.minY
}

// updateToWorld rebuilds the world-frame cache and its bounds in one pass.
// The bounds are the componentwise extent of the world points; an empty scan
// reports a zero box.
func (s *LaserScan) updateToWorld() {
	if s.worldValid {
		return
	}

	s.pointsWorld = make([]r2.Point, 0, len(s.pointsSelf))
	s.maxX, s.minX, s.maxY, s.minY = 0, 0, 0, 0
	if len(s.pointsSelf) > 0 {
		first := s.pose.TransformPoint(s.pointsSelf[0])
		s.maxX, s.minX, s.maxY, s.minY = first.X, first.X, first.Y, first.Y
	}

	for _, p := range s.pointsSelf {
		w := s.pose.TransformPoint(p)
		s.pointsWorld = append(s.pointsWorld, w)
		if w.X > s.maxX {
			s.maxX = w.X
		}
		if w.X < s.minX {
			s.minX = w.X
		}
		if w.Y > s.maxY {
			s.maxY = w.Y
		}
		if w.Y < s.minY {
			s.minY = w.Y
		}
	}

	s.worldValid = true
}

// transformPoints maps every point by pose into the parent frame.
func transformPoints(points []r2.Point, pose spatial.Pose2D) []r2.Point {
	out := make([]r2.Point, len(points))
	for i, p := range points {
		out[i] = pose.TransformPoint(p)
	}
	return out
}
