// Package spatial implements the planar rigid-transform algebra used by pgslam.
package spatial

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
)

// Pose2D is an element of SE(2): a translation in the plane plus a heading.
// The heading is kept in (-pi, pi]. The zero value is the identity pose.
type Pose2D struct {
	x, y, theta float64
}

// NewPose2D returns the pose (x, y, theta) with theta wrapped.
func NewPose2D(x, y, theta float64) Pose2D {
	return Pose2D{x: x, y: y, theta: wrapAngle(theta)}
}

// wrapAngle brings theta into (-pi, pi] by repeated shifts of 2*pi. The
// headings composed here accumulate over seconds of drift at most, so the
// loop runs a handful of times in the worst case.
func wrapAngle(theta float64) float64 {
	for theta <= -math.Pi {
		theta += 2 * math.Pi
	}
	for theta > math.Pi {
		theta -= 2 * math.Pi
	}
	return theta
}

// X returns the x component of the translation.
func (p Pose2D) X() float64 { return p.x }

// Y returns the y component of the translation.
func (p Pose2D) Y() float64 { return p.y }

// Theta returns the heading in (-pi, pi].
func (p Pose2D) Theta() float64 { return p.theta }

// Pos returns the translation as a plane vector.
func (p Pose2D) Pos() r2.Point {
	return r2.Point{X: p.x, Y: p.y}
}

// SetX replaces the x component.
func (p *Pose2D) SetX(x float64) { p.x = x }

// SetY replaces the y component.
func (p *Pose2D) SetY(y float64) { p.y = y }

// SetTheta replaces the heading, wrapping it into (-pi, pi].
func (p *Pose2D) SetTheta(theta float64) { p.theta = wrapAngle(theta) }

// Compose applies q in the frame of p: the translation of q is rotated by
// p's heading and added to p's translation, the headings add.
func (p Pose2D) Compose(q Pose2D) Pose2D {
	sin, cos := math.Sincos(p.theta)
	return NewPose2D(
		p.x+cos*q.x-sin*q.y,
		p.y+sin*q.x+cos*q.y,
		p.theta+q.theta,
	)
}

// Inverse returns the pose that composes with p to the identity.
func (p Pose2D) Inverse() Pose2D {
	sin, cos := math.Sincos(-p.theta)
	return NewPose2D(
		cos*-p.x-sin*-p.y,
		sin*-p.x+cos*-p.y,
		-p.theta,
	)
}

// RelativeTo returns p expressed in the frame of q, i.e. q.Inverse().Compose(p).
func (p Pose2D) RelativeTo(q Pose2D) Pose2D {
	return q.Inverse().Compose(p)
}

// Rotate rotates v by p's heading without translating it.
func (p Pose2D) Rotate(v r2.Point) r2.Point {
	sin, cos := math.Sincos(p.theta)
	return r2.Point{X: cos*v.X - sin*v.Y, Y: sin*v.X + cos*v.Y}
}

// TransformPoint maps a point from p's frame into the parent frame.
func (p Pose2D) TransformPoint(v r2.Point) r2.Point {
	sin, cos := math.Sincos(p.theta)
	return r2.Point{
		X: p.x + cos*v.X - sin*v.Y,
		Y: p.y + sin*v.X + cos*v.Y,
	}
}

func (p Pose2D) String() string {
	return fmt.Sprintf("x:%7.4f y:%7.4f theta:%7.4f", p.x, p.y, p.theta)
}
