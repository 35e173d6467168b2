package dispatch

import "github.com/hollowcrest/pixelwire/canvas"

// groupConnected partitions cells (already sorted by (y, x) ascending) into
// 4-connected groups, each itself kept in (y, x) order since it is a
// subsequence of the sorted input. A disjoint-set over the coordinates
// present in this flush gives O(n·α(n)) grouping without the duplicated
// entries a naive "merge on first match" scan can produce — see the design
// notes on the open question this resolves.
func groupConnected(cells []Cell) [][]Cell {
	if len(cells) == 0 {
		return nil
	}

	present := make(map[canvas.Coordinate]canvas.Color, len(cells))
	for _, c := range cells {
		present[c.Coord] = c.Color
	}

	uf := newUnionFind()
	for _, c := range cells {
		uf.add(c.Coord)
	}
	for _, c := range cells {
		for _, n := range neighbors(c.Coord) {
			if _, ok := present[n]; ok {
				uf.union(c.Coord, n)
			}
		}
	}

	byRoot := make(map[canvas.Coordinate][]Cell)
	var roots []canvas.Coordinate
	for _, c := range cells {
		root := uf.find(c.Coord)
		if _, seen := byRoot[root]; !seen {
			roots = append(roots, root)
		}
		byRoot[root] = append(byRoot[root], c)
	}

	groups := make([][]Cell, 0, len(roots))
	for _, root := range roots {
		groups = append(groups, byRoot[root])
	}
	return groups
}

// neighbors returns the four orthogonal neighbors of c, skipping any that
// would overflow int16 at the canvas edge.
func neighbors(c canvas.Coordinate) []canvas.Coordinate {
	var out []canvas.Coordinate
	if c.X > -32768 {
		out = append(out, canvas.Coordinate{X: c.X - 1, Y: c.Y})
	}
	if c.X < 32767 {
		out = append(out, canvas.Coordinate{X: c.X + 1, Y: c.Y})
	}
	if c.Y > -32768 {
		out = append(out, canvas.Coordinate{X: c.X, Y: c.Y - 1})
	}
	if c.Y < 32767 {
		out = append(out, canvas.Coordinate{X: c.X, Y: c.Y + 1})
	}
	return out
}

// unionFind is a disjoint-set over canvas.Coordinate, keyed directly
// instead of by integer index since cells arrive sparse over a 2D plane.
type unionFind struct {
	parent map[canvas.Coordinate]canvas.Coordinate
	rank   map[canvas.Coordinate]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[canvas.Coordinate]canvas.Coordinate),
		rank:   make(map[canvas.Coordinate]int),
	}
}

func (u *unionFind) add(c canvas.Coordinate) {
	if _, ok := u.parent[c]; !ok {
		u.parent[c] = c
	}
}

func (u *unionFind) find(c canvas.Coordinate) canvas.Coordinate {
	parent, ok := u.parent[c]
	if !ok || parent == c {
		return c
	}
	root := u.find(parent)
	u.parent[c] = root
	return root
}

func (u *unionFind) union(a, b canvas.Coordinate) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
