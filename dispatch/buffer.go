// Package dispatch accumulates recently written pixels, debounces for a
// short window, groups adjacent writes into horizontal runs of up to 15
// cells, and hands the framed runs to every subscriber whose area
// intersects them.
package dispatch

import (
	"sort"
	"sync"

	"github.com/hollowcrest/pixelwire/canvas"
)

// Cell is one buffered write.
type Cell struct {
	Coord canvas.Coordinate
	Color canvas.Color
}

// UpdateBuffer is the latest-write-wins map of recently modified pixels.
// Safe for concurrent use.
type UpdateBuffer struct {
	mu    sync.Mutex
	cells map[canvas.Coordinate]canvas.Color
}

// NewUpdateBuffer returns an empty UpdateBuffer.
func NewUpdateBuffer() *UpdateBuffer {
	return &UpdateBuffer{cells: make(map[canvas.Coordinate]canvas.Color)}
}

// Put records the latest color for coord, overwriting any earlier write.
func (b *UpdateBuffer) Put(coord canvas.Coordinate, color canvas.Color) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cells[coord] = color
}

// DrainSorted atomically takes every buffered cell and clears the buffer,
// returning the cells ordered by (y, x) ascending — the order the
// connectivity-grouping step in this package depends on.
func (b *UpdateBuffer) DrainSorted() []Cell {
	b.mu.Lock()
	snapshot := b.cells
	b.cells = make(map[canvas.Coordinate]canvas.Color)
	b.mu.Unlock()

	cells := make([]Cell, 0, len(snapshot))
	for coord, color := range snapshot {
		cells = append(cells, Cell{Coord: coord, Color: color})
	}
	sort.Slice(cells, func(i, j int) bool {
		a, c := cells[i].Coord, cells[j].Coord
		if a.Y != c.Y {
			return a.Y < c.Y
		}
		return a.X < c.X
	})
	return cells
}
