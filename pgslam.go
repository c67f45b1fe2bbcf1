// Package pgslam implements online 2D pose-graph SLAM from planar
// range-bearing scans and optional wheel odometry. The service tracks the
// robot pose in the world frame, elevates observations to key scans, matches
// scans with ICP and, when a pose-graph back-end is attached, folds the
// matches into batch optimization over all key-scan poses.
package pgslam

import (
	"math"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"go.uber.org/zap/zapcore"

	"github.com/mapward/pgslam/config"
	"github.com/mapward/pgslam/posegraph"
	"github.com/mapward/pgslam/sensors"
	"github.com/mapward/pgslam/spatial"
)

// Service is the SLAM front-end. It is driven by one producer calling the
// UpdatePoseWith methods in sequence; callbacks run inline on the caller's
// goroutine and must not re-enter the service.
type Service struct {
	logger  golog.Logger
	backend posegraph.Interface

	pose  spatial.Pose2D
	scans []*sensors.LaserScan

	keyscanThreshold float64
	factorThreshold  float64
	matchThreshold   float64
	distThreshold    float64
	icpIterations    int
	strictTrimming   bool

	poseUpdateCallback func(spatial.Pose2D)
	mapUpdateCallback  func()
}

// New returns a SLAM service configured by cfg. A nil cfg uses defaults
// throughout. backend may be nil, in which case key scans are appended at
// the current pose without matching, factors or optimization.
func New(cfg *config.Config, backend posegraph.Interface, logger golog.Logger) (*Service, error) {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if err := cfg.Validate("pgslam"); err != nil {
		return nil, err
	}
	params := config.GetOptionalParameters(cfg, logger)

	if logger.Desugar().Core().Enabled(zapcore.DebugLevel) {
		logger.Debugf("resolved config: keyscan_threshold=%v factor_threshold=%v match_threshold=%v dist_threshold=%v icp_iterations=%v strict_trimming=%v",
			params.KeyscanThreshold, params.FactorThreshold, params.MatchThreshold,
			params.DistThreshold, params.ICPIterations, params.StrictTrimming)
	}

	return &Service{
		logger:           logger,
		backend:          backend,
		keyscanThreshold: params.KeyscanThreshold,
		factorThreshold:  params.FactorThreshold,
		matchThreshold:   params.MatchThreshold,
		distThreshold:    params.DistThreshold,
		icpIterations:    params.ICPIterations,
		strictTrimming:   params.StrictTrimming,
	}, nil
}

// SetKeyscanThreshold replaces the key-scan admission threshold, raising the
// factor threshold if needed to keep it at twice the admission threshold.
func (s *Service) SetKeyscanThreshold(keyscanThreshold float64) {
	s.keyscanThreshold = keyscanThreshold
	if s.keyscanThreshold*2 > s.factorThreshold {
		s.factorThreshold = s.keyscanThreshold * 2
	}
}

// SetFactorThreshold replaces the factor search radius, lowering the
// key-scan threshold if needed to keep the radius at twice it.
func (s *Service) SetFactorThreshold(factorThreshold float64) {
	s.factorThreshold = factorThreshold
	if s.keyscanThreshold*2 > s.factorThreshold {
		s.keyscanThreshold = s.factorThreshold / 2
	}
}

// KeyscanThreshold returns the admission threshold.
func (s *Service) KeyscanThreshold() float64 { return s.keyscanThreshold }

// FactorThreshold returns the factor search radius.
func (s *Service) FactorThreshold() float64 { return s.factorThreshold }

// Pose returns the current world-frame pose estimate.
func (s *Service) Pose() spatial.Pose2D { return s.pose }

// Scans returns the key scans in admission order. The slice is shared;
// callers must not mutate it.
func (s *Service) Scans() []*sensors.LaserScan { return s.scans }

// Factors returns the endpoint positions of the back-end's binary factors,
// or nil without a back-end.
func (s *Service) Factors() [][2]r2.Point {
	if s.backend == nil {
		return nil
	}
	return s.backend.Factors()
}

// RegisterPoseUpdateCallback installs fn as the single pose subscriber.
// Registering again replaces the previous subscriber.
func (s *Service) RegisterPoseUpdateCallback(fn func(spatial.Pose2D)) {
	s.poseUpdateCallback = fn
}

// RegisterMapUpdateCallback installs fn as the single map subscriber.
// Registering again replaces the previous subscriber.
func (s *Service) RegisterMapUpdateCallback(fn func()) {
	s.mapUpdateCallback = fn
}

// EncoderToPose2D converts differential-drive arc increments to the local
// SE(2) delta they produce: a straight segment when both wheels travel the
// same distance, otherwise the chord of the turned arc at half the turn
// angle.
func EncoderToPose2D(left, right, tread float64) spatial.Pose2D {
	theta := (right - left) / tread
	arc := (right + left) / 2
	secant := arc
	if theta != 0 {
		secant = 2 * math.Sin(theta/2) * (arc / theta)
	}
	sin, cos := math.Sincos(theta / 2)
	return spatial.NewPose2D(secant*cos, secant*sin, theta)
}

// UpdatePoseWithPose composes an externally computed delta with the current
// pose.
func (s *Service) UpdatePoseWithPose(delta spatial.Pose2D) {
	s.pose = s.pose.Compose(delta)
}

// UpdatePoseWithEncoder folds one pair of wheel arc increments into the
// current pose and notifies the pose subscriber.
func (s *Service) UpdatePoseWithEncoder(left, right, tread float64) {
	s.pose = s.pose.Compose(EncoderToPose2D(left, right, tread))
	if s.poseUpdateCallback != nil {
		s.poseUpdateCallback(s.pose)
	}
}

// UpdatePoseWithLaserScan processes one observation: the first scan
// bootstraps the map, later scans either track against the closest key scan
// or are admitted as new key scans, feeding factors into the back-end when
// one is attached. The service takes ownership of the scan.
func (s *Service) UpdatePoseWithLaserScan(scan *sensors.LaserScan) {
	scan.MatchThreshold = s.matchThreshold
	scan.DistThreshold = s.distThreshold
	scan.Iterations = s.icpIterations
	scan.StrictTrimming = s.strictTrimming
	scan.SetPose(s.pose)

	if len(s.scans) == 0 {
		s.scans = append(s.scans, scan)
		if s.backend != nil {
			s.backend.AddPrior(0, s.pose, 1)
		}
		s.logger.Infof("add key scan %d: %s", len(s.scans), s.pose)
		if s.mapUpdateCallback != nil {
			s.mapUpdateCallback()
		}
		return
	}

	closest, minDist := s.closestScan(scan)

	if minDist < s.keyscanThreshold {
		relative, _ := s.scans[closest].ICP(scan)
		s.pose = s.scans[closest].Pose().Compose(relative)
	} else {
		s.admitKeyScan(scan)
		s.logger.Infof("add key scan %d: %s", len(s.scans), s.pose)
		if s.mapUpdateCallback != nil {
			s.mapUpdateCallback()
		}
	}

	if s.poseUpdateCallback != nil {
		s.poseUpdateCallback(s.pose)
	}
}

// compositeDistance folds the wrapped heading difference into translational
// units, scaled by the admission threshold over 3*pi/4 radians.
func (s *Service) compositeDistance(keyScan, scan *sensors.LaserScan) float64 {
	dist := keyScan.Pose().Pos().Sub(scan.Pose().Pos()).Norm()
	deltaTheta := math.Abs(keyScan.Pose().Theta() - scan.Pose().Theta())
	// Wrap loops as the matcher has always run them; the first cannot fire
	// on an absolute value.
	for deltaTheta < -math.Pi {
		deltaTheta += 2 * math.Pi
	}
	for deltaTheta > math.Pi {
		deltaTheta -= 2 * math.Pi
	}
	deltaTheta *= s.keyscanThreshold / (3 * math.Pi / 4)
	return math.Sqrt(dist*dist + deltaTheta*deltaTheta)
}

// closestScan returns the index of the key scan minimizing the composite
// distance to scan, together with that distance. The index stays valid
// across appends, unlike a pointer into the growing slice.
func (s *Service) closestScan(scan *sensors.LaserScan) (int, float64) {
	closest := 0
	minDist := math.MaxFloat64
	for i, keyScan := range s.scans {
		if d := s.compositeDistance(keyScan, scan); d < minDist {
			minDist = d
			closest = i
		}
	}
	return closest, minDist
}

// admitKeyScan elevates scan to a key scan. With a back-end attached, every
// key scan within the factor radius is matched against the scan and the
// result inserted as a binary factor weighted by its match ratio; two or
// more factors trigger a batch optimization, and the optimized node values
// are pulled back onto the stored scans before the new scan is appended
// with the back-end's value for it.
func (s *Service) admitKeyScan(scan *sensors.LaserScan) {
	if s.backend == nil {
		s.scans = append(s.scans, scan)
		return
	}

	newID := len(s.scans)
	constrainCount := 0
	for i, keyScan := range s.scans {
		distance := s.pose.Pos().Sub(keyScan.Pose().Pos()).Norm()
		if distance >= s.factorThreshold {
			continue
		}
		constrainCount++
		relative, ratio := keyScan.ICP(scan)
		s.backend.AddRelative(i, newID, relative, ratio)
		if s.poseUpdateCallback != nil {
			s.poseUpdateCallback(s.pose)
		}
	}
	if constrainCount > 1 {
		s.backend.Optimize()
	}

	for _, node := range s.backend.Nodes() {
		if node.ID < newID {
			s.scans[node.ID].SetPose(node.Pose)
			continue
		}
		if node.ID == newID {
			s.pose = node.Pose
			scan.SetPose(node.Pose)
			s.scans = append(s.scans, scan)
		}
	}
}
