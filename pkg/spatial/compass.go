package spatial

import "math"

// CardinalDirection is one of the eight compass points. The world frame treats
// +y as north and +x as east.
type CardinalDirection string

const (
	North     CardinalDirection = "north"
	NorthEast CardinalDirection = "northeast"
	East      CardinalDirection = "east"
	SouthEast CardinalDirection = "southeast"
	South     CardinalDirection = "south"
	SouthWest CardinalDirection = "southwest"
	West      CardinalDirection = "west"
	NorthWest CardinalDirection = "northwest"
)

// counter-clockwise from east, 45° apart
var compassPoints = [8]CardinalDirection{East, NorthEast, North, NorthWest, West, SouthWest, South, SouthEast}

var relativePoints = [8]string{"ahead", "ahead-left", "left", "behind-left", "behind", "behind-right", "right", "ahead-right"}

// Compass returns the compass point nearest to a world-frame angle measured
// counter-clockwise from +x.
func Compass(angle float64) CardinalDirection {
	return compassPoints[octant(angle)]
}

// RelativeDirection names a bearing in the observer frame ("ahead", "left", ...).
func RelativeDirection(bearing float64) string {
	return relativePoints[octant(bearing)]
}

// Heading returns the world-frame direction from one position to another.
func Heading(from, to Position) float64 {
	return math.Atan2(to.Y-from.Y, to.X-from.X)
}

func octant(angle float64) int {
	a := math.Mod(angle, TwoPi)
	if a < 0 {
		a += TwoPi
	}
	return int(math.Floor(a/(math.Pi/4)+0.5)) % 8
}
