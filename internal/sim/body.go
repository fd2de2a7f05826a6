package sim

import "math"

// Body is an axis-aligned box centred on (X, Y) with half extents. PrevX and
// PrevY hold the position at the start of the current tick so collision can
// sweep the motion instead of testing only the end point.
type Body struct {
	X, Y         float64
	VX, VY       float64
	HalfW, HalfH float64
	PrevX, PrevY float64
}

func (b *Body) top() float64    { return b.Y - b.HalfH }
func (b *Body) bottom() float64 { return b.Y + b.HalfH }
func (b *Body) left() float64   { return b.X - b.HalfW }
func (b *Body) right() float64  { return b.X + b.HalfW }

func (b *Body) prevBottom() float64 { return b.PrevY + b.HalfH }

// sweptOverlaps tests the boxes covering each body's motion over the current
// tick, so a fast mover cannot step across a slow one between positions.
func (b *Body) sweptOverlaps(o *Body) bool {
	bx, bw := sweptAxis(b.PrevX, b.X, b.HalfW)
	by, bh := sweptAxis(b.PrevY, b.Y, b.HalfH)
	ox, ow := sweptAxis(o.PrevX, o.X, o.HalfW)
	oy, oh := sweptAxis(o.PrevY, o.Y, o.HalfH)
	return math.Abs(bx-ox) < bw+ow && math.Abs(by-oy) < bh+oh
}

// sweptAxis returns the centre and half extent of the interval covered by a
// half-extent box moving from prev to cur along one axis.
func sweptAxis(prev, cur, half float64) (float64, float64) {
	lo := math.Min(prev, cur) - half
	hi := math.Max(prev, cur) + half
	return (lo + hi) / 2, (hi - lo) / 2
}

// horizontalOverlap reports whether the two boxes share any horizontal span.
func (b *Body) horizontalOverlap(o *Body) bool {
	return math.Abs(b.X-o.X) < b.HalfW+o.HalfW
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// validPosition rejects non-finite coordinates before they enter the world.
func (b *Body) validPosition() bool {
	return finite(b.X) && finite(b.Y) && finite(b.VX) && finite(b.VY)
}
