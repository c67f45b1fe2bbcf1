package pgslam_test

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/mapward/pgslam"
	"github.com/mapward/pgslam/config"
	"github.com/mapward/pgslam/posegraph"
	"github.com/mapward/pgslam/spatial"
	"github.com/mapward/pgslam/testhelper"
)

func newService(t *testing.T, backend posegraph.Interface) *pgslam.Service {
	t.Helper()
	svc, err := pgslam.New(&config.Config{}, backend, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	return svc
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := pgslam.New(&config.Config{KeyscanThreshold: -1}, nil, golog.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestThresholdCoupling(t *testing.T) {
	svc := newService(t, nil)

	svc.SetKeyscanThreshold(1.0)
	test.That(t, svc.FactorThreshold(), test.ShouldBeGreaterThanOrEqualTo, 2.0)

	svc.SetFactorThreshold(0.2)
	test.That(t, svc.KeyscanThreshold(), test.ShouldBeLessThanOrEqualTo, 0.1)
}

func TestEncoderToPose2D(t *testing.T) {
	t.Run("straight", func(t *testing.T) {
		delta := pgslam.EncoderToPose2D(0.7, 0.7, 0.5)
		test.That(t, delta.X(), test.ShouldAlmostEqual, 0.7, 1e-12)
		test.That(t, delta.Y(), test.ShouldAlmostEqual, 0, 1e-12)
		test.That(t, delta.Theta(), test.ShouldAlmostEqual, 0, 1e-12)
	})

	t.Run("turn in place", func(t *testing.T) {
		delta := pgslam.EncoderToPose2D(-0.1, 0.1, 0.5)
		test.That(t, delta.X(), test.ShouldAlmostEqual, 0, 1e-12)
		test.That(t, delta.Y(), test.ShouldAlmostEqual, 0, 1e-12)
		test.That(t, delta.Theta(), test.ShouldAlmostEqual, 0.4, 1e-12)
	})

	t.Run("arc", func(t *testing.T) {
		delta := pgslam.EncoderToPose2D(0.9, 1.1, 0.5)
		theta := 0.4
		arc := 1.0
		secant := 2 * math.Sin(theta/2) * (arc / theta)
		test.That(t, delta.Theta(), test.ShouldAlmostEqual, theta, 1e-12)
		test.That(t, delta.X(), test.ShouldAlmostEqual, secant*math.Cos(theta/2), 1e-12)
		test.That(t, delta.Y(), test.ShouldAlmostEqual, secant*math.Sin(theta/2), 1e-12)
	})
}

func TestUpdatePoseWithEncoderFiresCallback(t *testing.T) {
	svc := newService(t, nil)

	var got []spatial.Pose2D
	svc.RegisterPoseUpdateCallback(func(p spatial.Pose2D) { got = append(got, p) })

	svc.UpdatePoseWithEncoder(0.3, 0.3, 0.5)
	test.That(t, len(got), test.ShouldEqual, 1)
	test.That(t, got[0].X(), test.ShouldAlmostEqual, 0.3, 1e-12)
	test.That(t, svc.Pose().X(), test.ShouldAlmostEqual, 0.3, 1e-12)
}

func TestUpdatePoseWithPose(t *testing.T) {
	svc := newService(t, nil)
	svc.UpdatePoseWithPose(spatial.NewPose2D(1, 0, math.Pi/2))
	svc.UpdatePoseWithPose(spatial.NewPose2D(1, 0, 0))

	test.That(t, svc.Pose().X(), test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, svc.Pose().Y(), test.ShouldAlmostEqual, 1, 1e-12)
}

func TestBootstrap(t *testing.T) {
	svc := newService(t, posegraph.NewGraph(golog.NewTestLogger(t)))

	mapUpdates := 0
	poseUpdates := 0
	svc.RegisterMapUpdateCallback(func() { mapUpdates++ })
	svc.RegisterPoseUpdateCallback(func(spatial.Pose2D) { poseUpdates++ })

	svc.UpdatePoseWithLaserScan(testhelper.ScanAt(testhelper.SquareWorldPoints(), spatial.Pose2D{}))

	test.That(t, len(svc.Scans()), test.ShouldEqual, 1)
	test.That(t, mapUpdates, test.ShouldEqual, 1)
	test.That(t, poseUpdates, test.ShouldEqual, 0)
}

func TestHysteresis(t *testing.T) {
	svc := newService(t, nil)
	room := testhelper.RoomWorldPoints(2, 0.1)

	// All observations come from poses well inside the admission
	// threshold of the first; only the bootstrap scan becomes a key scan.
	for i := 0; i < 5; i++ {
		truePose := spatial.NewPose2D(0.05*float64(i), 0, 0)
		svc.UpdatePoseWithLaserScan(testhelper.ScanAt(room, truePose))
	}

	test.That(t, len(svc.Scans()), test.ShouldEqual, 1)
}

func TestAdmissionWithoutBackend(t *testing.T) {
	svc := newService(t, nil)
	room := testhelper.RoomWorldPoints(2, 0.1)

	svc.UpdatePoseWithLaserScan(testhelper.ScanAt(room, spatial.Pose2D{}))
	svc.UpdatePoseWithPose(spatial.NewPose2D(0.8, 0, 0))
	svc.UpdatePoseWithLaserScan(testhelper.ScanAt(room, spatial.NewPose2D(0.8, 0, 0)))

	test.That(t, len(svc.Scans()), test.ShouldEqual, 2)
	test.That(t, svc.Factors(), test.ShouldBeNil)
}

func TestAdmissionWithBackend(t *testing.T) {
	svc := newService(t, posegraph.NewGraph(golog.NewTestLogger(t)))
	room := testhelper.RoomWorldPoints(2, 0.1)

	svc.UpdatePoseWithLaserScan(testhelper.ScanAt(room, spatial.Pose2D{}))
	svc.UpdatePoseWithPose(spatial.NewPose2D(0.8, 0, 0))
	svc.UpdatePoseWithLaserScan(testhelper.ScanAt(room, spatial.NewPose2D(0.8, 0, 0)))

	test.That(t, len(svc.Scans()), test.ShouldEqual, 2)
	test.That(t, len(svc.Factors()), test.ShouldEqual, 1)
}

func TestCallbackReplacement(t *testing.T) {
	svc := newService(t, nil)

	first, second := 0, 0
	svc.RegisterPoseUpdateCallback(func(spatial.Pose2D) { first++ })
	svc.RegisterPoseUpdateCallback(func(spatial.Pose2D) { second++ })

	svc.UpdatePoseWithEncoder(0.1, 0.1, 0.5)
	test.That(t, first, test.ShouldEqual, 0)
	test.That(t, second, test.ShouldEqual, 1)
}

func TestCorridorEndToEnd(t *testing.T) {
	svc := newService(t, posegraph.NewGraph(golog.NewTestLogger(t)))
	corridor := testhelper.CorridorWorldPoints(0.1)

	mapUpdates := 0
	svc.RegisterMapUpdateCallback(func() { mapUpdates++ })

	for step := 0; step < 4; step++ {
		if step > 0 {
			svc.UpdatePoseWithPose(spatial.NewPose2D(0.2, 0, 0))
		}
		truePose := spatial.NewPose2D(0.2*float64(step), 0, 0)
		scan := testhelper.ScanAt(corridor, truePose)
		svc.UpdatePoseWithLaserScan(scan)
	}

	test.That(t, len(svc.Scans()), test.ShouldEqual, 2)
	test.That(t, mapUpdates, test.ShouldEqual, 2)
	test.That(t, svc.Pose().X(), test.ShouldAlmostEqual, 0.6, 0.05)
	test.That(t, svc.Pose().Y(), test.ShouldAlmostEqual, 0, 0.05)
}
