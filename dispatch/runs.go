package dispatch

import (
	"bytes"

	"github.com/hollowcrest/pixelwire/canvas"
	"github.com/hollowcrest/pixelwire/wire"
)

// maxRunWidth is the widest row run a single message can carry: the frame
// header's width nibble is 4 bits, and this implementation never emits
// height > 1, so the cap is exactly 15.
const maxRunWidth = 15

// rowRun is a maximal horizontal sequence of up to maxRunWidth adjacent
// cells sharing one y, in ascending x order.
type rowRun struct {
	y     int16
	cells []Cell
}

// extractRuns splits group — already in (y, x) ascending order, a subslice
// of the flush's global sort — into maximal contiguous row runs. A run
// ends when the next x isn't exactly previous+1, the row changes, or the
// run has reached maxRunWidth cells.
func extractRuns(group []Cell) []rowRun {
	var runs []rowRun
	var cur []Cell

	flush := func() {
		if len(cur) > 0 {
			runs = append(runs, rowRun{y: cur[0].Coord.Y, cells: cur})
			cur = nil
		}
	}

	for _, cell := range group {
		if len(cur) > 0 {
			last := cur[len(cur)-1].Coord
			if last.Y != cell.Coord.Y || len(cur) >= maxRunWidth || cell.Coord.X != last.X+1 {
				flush()
			}
		}
		cur = append(cur, cell)
	}
	flush()

	return runs
}

// Run is one dispatch record: the framed message bytes for a row run, and
// the bounding Area a subscriber's region must intersect to receive it.
type Run struct {
	Area    canvas.Area
	Message []byte
}

// frame builds the wire message for a row run: 0xFF, the nibble-packed
// size byte (height-1 high nibble, width low nibble — this implementation
// only ever emits height 1), the run's first coordinate, then each color
// in ascending-x order.
func (r rowRun) frame() Run {
	first := r.cells[0].Coord
	last := r.cells[len(r.cells)-1].Coord

	var buf bytes.Buffer
	const height = 1
	width := len(r.cells)
	buf.WriteByte(0xFF)
	buf.WriteByte(byte((height-1)&0x0F)<<4 | byte(width&0x0F))

	// errors are impossible: bytes.Buffer.Write never fails.
	wire.EncodeCoordinate(&buf, canvas.Coordinate{X: first.X, Y: r.y})
	for _, cell := range r.cells {
		wire.EncodeColor(&buf, cell.Color)
	}

	return Run{
		Area: canvas.Area{
			TopLeft:     canvas.Coordinate{X: first.X, Y: r.y},
			BottomRight: canvas.Coordinate{X: last.X, Y: r.y},
		},
		Message: buf.Bytes(),
	}
}
