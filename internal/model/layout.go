package model

// Layout is the single active venue shape.  Exactly one layout exists at a
// time; regenerating it discards every hold and booking.
//
// Fields:
//  Rows – number of seat rows (A, B, C, ...).
//  Cols – number of seats per row, numbered from 1.
type Layout struct {
	Rows int // layout.seat_rows
	Cols int // layout.seat_cols
}

// Contains reports whether the seat lies inside the layout grid.
func (l Layout) Contains(s Seat) bool {
	return s.Row >= 1 && s.Row <= l.Rows && s.Col >= 1 && s.Col <= l.Cols
}

// Size returns the number of seats in the grid.
func (l Layout) Size() int { return l.Rows * l.Cols }

// Seats enumerates every seat row by row, column by column.
func (l Layout) Seats() []Seat {
	out := make([]Seat, 0, l.Size())
	for r := 1; r <= l.Rows; r++ {
		for c := 1; c <= l.Cols; c++ {
			out = append(out, Seat{Row: r, Col: c})
		}
	}
	return out
}
