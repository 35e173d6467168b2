// Package canvas holds the data model shared by the pixelwire protocol: the
// pixel Color, the integer Coordinate it sits at, and the rectangular Area a
// session may subscribe to.
package canvas

// Color is a pixel color with three 5-bit channels. Channels are always in
// range [0, 31] after a decode; constructing one out of range directly is
// the caller's mistake, not the codec's.
type Color struct {
	R, G, B uint8
}

// Coordinate is a signed 2D point. Both axes fit in [-32767, 32767]; -32768
// is never produced by the wire codec, see package wire.
type Coordinate struct {
	X, Y int16
}

// Area is an inclusive rectangle.
type Area struct {
	TopLeft, BottomRight Coordinate
}

// NewArea returns the rectangle spanned by topLeft and bottomRight, or false
// if the two corners don't form a valid rectangle (top-left must not be
// right of or below bottom-right).
func NewArea(topLeft, bottomRight Coordinate) (Area, bool) {
	if topLeft.X > bottomRight.X || topLeft.Y > bottomRight.Y {
		return Area{}, false
	}
	return Area{TopLeft: topLeft, BottomRight: bottomRight}, true
}

func (a Area) Left() int16   { return a.TopLeft.X }
func (a Area) Right() int16  { return a.BottomRight.X }
func (a Area) Top() int16    { return a.TopLeft.Y }
func (a Area) Bottom() int16 { return a.BottomRight.Y }

// Contains reports whether c lies within a, inclusive on all four sides.
func (a Area) Contains(c Coordinate) bool {
	return a.Left() <= c.X && c.X <= a.Right() &&
		a.Top() <= c.Y && c.Y <= a.Bottom()
}

// Intersects reports whether a and o share at least one cell.
func (a Area) Intersects(o Area) bool {
	return !(o.Right() < a.Left() || a.Right() < o.Left() ||
		o.Bottom() < a.Top() || a.Bottom() < o.Top())
}
