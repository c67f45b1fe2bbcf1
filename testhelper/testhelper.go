// Package testhelper provides synthetic scan fixtures shared by the pgslam
// tests.
package testhelper

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/mapward/pgslam/sensors"
	"github.com/mapward/pgslam/spatial"
)

// EchosFromWorldPoints converts world-frame points into the echoes a sensor
// at sensorPose would measure: each point is mapped into the sensor frame
// and expressed as range and bearing.
func EchosFromWorldPoints(points []r2.Point, sensorPose spatial.Pose2D) []sensors.Echo {
	inverse := sensorPose.Inverse()
	echos := make([]sensors.Echo, 0, len(points))
	for i, p := range points {
		local := inverse.TransformPoint(p)
		echos = append(echos, sensors.NewEcho(local.Norm(), math.Atan2(local.Y, local.X), 1, int64(i)))
	}
	return echos
}

// ScanAt returns the laser scan a sensor at sensorPose would record of the
// given world points, stamped with that pose.
func ScanAt(points []r2.Point, sensorPose spatial.Pose2D) *sensors.LaserScan {
	return sensors.NewLaserScanWithPose(EchosFromWorldPoints(points, sensorPose), sensorPose)
}

// SquareWorldPoints returns the four unit-axis points used by the rotation
// fixtures.
func SquareWorldPoints() []r2.Point {
	return []r2.Point{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: -1, Y: 0}, {X: 0, Y: -1}}
}

// RoomWorldPoints samples the walls of an axis-aligned square room centered
// on the origin with the given half width, at the given point spacing. All
// four wall normals are represented, so both translation axes and rotation
// are observable to the matcher. The walls are walked one after another,
// counterclockwise, as a sweeping sensor at the center sees them, so
// consecutive points lie on the same wall.
func RoomWorldPoints(halfWidth, spacing float64) []r2.Point {
	var points []r2.Point
	for wall := 0; wall < 4; wall++ {
		for v := -halfWidth; v <= halfWidth; v += spacing {
			p := r2.Point{X: halfWidth, Y: v}
			for r := 0; r < wall; r++ {
				p = r2.Point{X: -p.Y, Y: p.X}
			}
			points = append(points, p)
		}
	}
	return points
}

// CorridorWorldPoints samples two parallel walls at y = ±1 extending over
// x in [0, 5] at the given spacing.
func CorridorWorldPoints(spacing float64) []r2.Point {
	var points []r2.Point
	for x := 0.0; x <= 5.0; x += spacing {
		points = append(points,
			r2.Point{X: x, Y: 1},
			r2.Point{X: x, Y: -1},
		)
	}
	return points
}
