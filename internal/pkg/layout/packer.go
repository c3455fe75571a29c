package layout

import "sort"

// Grid bounds for rendered field cards.
const (
	DefaultCols = 10
	MinW        = 2
	MaxW        = DefaultCols
	MinH        = 2
	MaxH        = 8
)

// Item is one card on the grid. Coordinates are 0-based cells.
type Item struct {
	ID string `json:"i"`
	X  int    `json:"x"`
	Y  int    `json:"y"`
	W  int    `json:"w"`
	H  int    `json:"h"`
}

// Normalize packs items into a gap-free, non-overlapping arrangement on a grid
// cols wide. Items are visited top-to-bottom then left-to-right, and each one
// takes the first free cell scanning rows left to right from the origin.
// Widths above cols are clamped to cols; missing sizes become 1.
func Normalize(items []Item, cols int) []Item {
	if cols < 1 {
		cols = DefaultCols
	}
	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].Y != sorted[b].Y {
			return sorted[a].Y < sorted[b].Y
		}
		return sorted[a].X < sorted[b].X
	})

	g := grid{cols: cols}
	out := make([]Item, len(sorted))
	for i, it := range sorted {
		w, h := it.W, it.H
		if w < 1 {
			w = 1
		}
		if w > cols {
			w = cols
		}
		if h < 1 {
			h = 1
		}
		x, y := 0, 0
		for {
			if x+w > cols {
				x = 0
				y++
				continue
			}
			if g.free(x, y, w, h) {
				g.occupy(x, y, w, h)
				break
			}
			x++
		}
		it.X, it.Y, it.W, it.H = x, y, w, h
		out[i] = it
	}
	return out
}

// ClampSize bounds a card size to the grid limits.
func ClampSize(w, h int) (int, int) {
	return clamp(w, MinW, MaxW), clamp(h, MinH, MaxH)
}

// Overlaps reports whether any two items share a cell.
func Overlaps(items []Item) bool {
	for i := range items {
		for j := i + 1; j < len(items); j++ {
			a, b := items[i], items[j]
			if a.X < b.X+b.W && b.X < a.X+a.W && a.Y < b.Y+b.H && b.Y < a.Y+a.H {
				return true
			}
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

type grid struct {
	cols int
	rows [][]bool
}

func (g *grid) free(x, y, w, h int) bool {
	for yy := y; yy < y+h; yy++ {
		if yy >= len(g.rows) {
			return true
		}
		for xx := x; xx < x+w; xx++ {
			if g.rows[yy][xx] {
				return false
			}
		}
	}
	return true
}

func (g *grid) occupy(x, y, w, h int) {
	for len(g.rows) < y+h {
		g.rows = append(g.rows, make([]bool, g.cols))
	}
	for yy := y; yy < y+h; yy++ {
		for xx := x; xx < x+w; xx++ {
			g.rows[yy][xx] = true
		}
	}
}
