// Package sensors defines the observation types consumed by pgslam: laser
// echoes, laser scans with their world-frame cache, and the timed sources
// the streaming driver polls.
package sensors

import (
	"math"

	"github.com/golang/geo/r2"
)

// Echo is a single range-bearing-intensity sample. Range is in meters,
// angle in radians (0 = sensor forward, counterclockwise positive), the
// timestamp in nanoseconds. Echoes are immutable.
type Echo struct {
	rangeMeters float64
	angle       float64
	intensity   float64
	timestamp   int64
}

// NewEcho returns an echo with the given range, bearing, intensity and
// timestamp.
func NewEcho(rangeMeters, angle, intensity float64, timestamp int64) Echo {
	return Echo{
		rangeMeters: rangeMeters,
		angle:       angle,
		intensity:   intensity,
		timestamp:   timestamp,
	}
}

// Range returns the measured range in meters.
func (e Echo) Range() float64 { return e.rangeMeters }

// Angle returns the bearing in radians.
func (e Echo) Angle() float64 { return e.angle }

// Intensity returns the return intensity.
func (e Echo) Intensity() float64 { return e.intensity }

// Timestamp returns the acquisition time in unix nanoseconds.
func (e Echo) Timestamp() int64 { return e.timestamp }

// Point projects the echo into the sensor frame.
func (e Echo) Point() r2.Point {
	sin, cos := math.Sincos(e.angle)
	return r2.Point{X: e.rangeMeters * cos, Y: e.rangeMeters * sin}
}
