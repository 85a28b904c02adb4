package spatial

import (
	"math"
)

// Epsilon is the default tolerance used when comparing positions produced by
// frame conversions.
const Epsilon = 1e-6

// TwoPi is a full turn in radians.
const TwoPi = 2 * math.Pi

// Mode selects planar or volumetric geometry.
type Mode int

const (
	// Mode2D ignores z: elevation is always 0 and distances are planar.
	Mode2D Mode = iota
	// Mode3D uses full Euclidean geometry including elevation.
	Mode3D
)

// String returns the textual form used in configuration files.
func (m Mode) String() string {
	if m == Mode3D {
		return "3d"
	}
	return "2d"
}

// Position is an absolute position in the world frame.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// RelativePosition locates a point relative to an observer. Bearing and
// elevation are radians; bearing is counter-clockwise from the observer heading.
type RelativePosition struct {
	Distance  float64 `json:"distance" yaml:"distance"`
	Bearing   float64 `json:"bearing" yaml:"bearing"`
	Elevation float64 `json:"elevation" yaml:"elevation"`
}

// IsFinite reports whether every coordinate is a finite number.
func (p Position) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

// IsFinite reports whether every component is a finite number.
func (r RelativePosition) IsFinite() bool {
	return isFinite(r.Distance) && isFinite(r.Bearing) && isFinite(r.Elevation)
}

// Sub returns p - q.
func (p Position) Sub(q Position) Position {
	return Position{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Distance returns the distance between a and b under the given mode.
func Distance(a, b Position, mode Mode) float64 {
	d := a.Sub(b)
	if mode == Mode3D {
		return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
	}
	return math.Hypot(d.X, d.Y)
}

// ApproxEqual reports whether a and b are within eps of each other on every axis.
func ApproxEqual(a, b Position, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}

// ValidOrientation reports whether a heading lies in [0, 2π).
func ValidOrientation(orientation float64) bool {
	return isFinite(orientation) && orientation >= 0 && orientation < TwoPi
}

// NormalizeBearing maps an angle into (-π, π].
func NormalizeBearing(angle float64) float64 {
	a := math.Mod(angle, TwoPi)
	if a <= -math.Pi {
		a += TwoPi
	} else if a > math.Pi {
		a -= TwoPi
	}
	return a
}

// ToRelative expresses an absolute position in the frame of an observer standing
// at observerPose with the given heading.
func ToRelative(absolute, observerPose Position, orientation float64, mode Mode) RelativePosition {
	d := absolute.Sub(observerPose)
	planar := math.Hypot(d.X, d.Y)

	var bearing float64
	if planar > 0 {
		bearing = NormalizeBearing(math.Atan2(d.Y, d.X) - orientation)
	}

	if mode != Mode3D {
		return RelativePosition{Distance: planar, Bearing: bearing}
	}

	return RelativePosition{
		Distance:  math.Sqrt(planar*planar + d.Z*d.Z),
		Bearing:   bearing,
		Elevation: math.Atan2(d.Z, planar),
	}
}

// ToAbsolute is the inverse of ToRelative. In 2D mode the result takes the
// observer's z.
func ToAbsolute(relative RelativePosition, observerPose Position, orientation float64, mode Mode) Position {
	heading := orientation + relative.Bearing

	if mode != Mode3D {
		return Position{
			X: observerPose.X + relative.Distance*math.Cos(heading),
			Y: observerPose.Y + relative.Distance*math.Sin(heading),
			Z: observerPose.Z,
		}
	}

	planar := relative.Distance * math.Cos(relative.Elevation)
	return Position{
		X: observerPose.X + planar*math.Cos(heading),
		Y: observerPose.Y + planar*math.Sin(heading),
		Z: observerPose.Z + relative.Distance*math.Sin(relative.Elevation),
	}
}

// WeightedAverage blends a (weight wa) with b (weight wb). When both weights are
// zero the midpoint is returned.
func WeightedAverage(a Position, wa float64, b Position, wb float64) Position {
	total := wa + wb
	if total <= 0 {
		wa, wb, total = 1, 1, 2
	}
	return Position{
		X: (a.X*wa + b.X*wb) / total,
		Y: (a.Y*wa + b.Y*wb) / total,
		Z: (a.Z*wa + b.Z*wb) / total,
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
