package model

import (
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidSeatID is returned by ParseSeatID for identifiers that do not
// follow the row-letters + column-number format.
var ErrInvalidSeatID = errors.New("invalid seat id")

// Seat is the canonical internal key of a seat: a 1-based (row, col) pair.
// The display identifier ("A1", "C12", "AA3") only exists at I/O boundaries.
type Seat struct {
	Row int
	Col int
}

// ID encodes the seat as its display identifier.
func (s Seat) ID() string {
	return RowLabel(s.Row) + strconv.Itoa(s.Col)
}

func (s Seat) String() string { return s.ID() }

// RowLabel converts a 1-based row number to an alphabetical label like A, Z, AA.
func RowLabel(row int) string {
	if row < 1 {
		return ""
	}
	i := row - 1
	res := []rune{}
	for {
		res = append(res, rune('A'+i%26))
		i = i/26 - 1
		if i < 0 {
			break
		}
	}
	for j, k := 0, len(res)-1; j < k; j, k = j+1, k-1 {
		res[j], res[k] = res[k], res[j]
	}
	return string(res)
}

// ParseSeatID decodes a display identifier.  Lower-case row letters are
// accepted (at most three of them); the column must be a positive integer
// without sign or zero padding.
func ParseSeatID(id string) (Seat, error) {
	s := strings.ToUpper(strings.TrimSpace(id))
	split := 0
	for split < len(s) && s[split] >= 'A' && s[split] <= 'Z' {
		split++
	}
	if split == 0 || split > 3 || split == len(s) || s[split] == '0' {
		return Seat{}, ErrInvalidSeatID
	}
	row := 0
	for i := 0; i < split; i++ {
		row = row*26 + int(s[i]-'A'+1)
	}
	col, err := strconv.Atoi(s[split:])
	if err != nil || col < 1 || strings.ContainsAny(s[split:], "+-") {
		return Seat{}, ErrInvalidSeatID
	}
	return Seat{Row: row, Col: col}, nil
}
