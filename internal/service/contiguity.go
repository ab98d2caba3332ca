package service

import (
	"sort"

	"github.com/iliyamo/venue-seat-hold/internal/model"
)

// Contiguous reports whether seats form one gap-free run inside a single
// row.  An empty list and a single seat are contiguous; a repeated seat is
// not.
func Contiguous(seats []model.Seat) bool {
	if len(seats) <= 1 {
		return true
	}
	row := seats[0].Row
	cols := make([]int, 0, len(seats))
	for _, s := range seats {
		if s.Row != row {
			return false
		}
		cols = append(cols, s.Col)
	}
	sort.Ints(cols)
	for i := 1; i < len(cols); i++ {
		if cols[i]-cols[i-1] != 1 {
			return false
		}
	}
	return true
}
