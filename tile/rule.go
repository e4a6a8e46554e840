/*
Package tile implements the cell storage owned by one rank.

This file contains halo packing and the Life rule over the tile.
*/
package tile

import "github.com/RylanYancey/game-of-life-mpi/grid"

// PackOutgoing copies the border cells facing each active neighbour into
// that direction's outgoing buffer.
func (s *Store) PackOutgoing() {
	w := s.width - 1
	for _, d := range s.active.Directions() {
		buf := s.out[d]
		switch d {
		case grid.N:
			copy(buf, s.cur[0:s.width])
		case grid.S:
			copy(buf, s.cur[w*s.width:])
		case grid.W:
			for row := range buf {
				buf[row] = s.Get(row, 0)
			}
		case grid.E:
			for row := range buf {
				buf[row] = s.Get(row, w)
			}
		case grid.NW:
			buf[0] = s.Get(0, 0)
		case grid.NE:
			buf[0] = s.Get(0, w)
		case grid.SW:
			buf[0] = s.Get(w, 0)
		case grid.SE:
			buf[0] = s.Get(w, w)
		}
	}
}

// cell returns the value at (row, col) where the position may fall one step
// outside the tile, in which case the incoming halo of that side is used.
// Inactive sides read as dead.
func (s *Store) cell(row, col int) byte {
	var dr, dc int
	switch {
	case row < 0:
		dr = -1
	case row >= s.width:
		dr = 1
	}
	switch {
	case col < 0:
		dc = -1
	case col >= s.width:
		dc = 1
	}
	if dr == 0 && dc == 0 {
		return s.cur[row*s.width+col]
	}

	var d grid.Direction
	idx := 0
	switch {
	case dr == -1 && dc == -1:
		d = grid.NW
	case dr == -1 && dc == 1:
		d = grid.NE
	case dr == 1 && dc == -1:
		d = grid.SW
	case dr == 1 && dc == 1:
		d = grid.SE
	case dr == -1:
		d, idx = grid.N, col
	case dr == 1:
		d, idx = grid.S, col
	case dc == -1:
		d, idx = grid.W, row
	default:
		d, idx = grid.E, row
	}
	halo := s.in[d]
	if halo == nil {
		return 0
	}
	return halo[idx]
}

// NeighborCount returns the number of live neighbours of the cell at
// (row, col), taking cells beyond the tile border from the incoming halos.
func (s *Store) NeighborCount(row, col int) int {
	count := 0
	for dr := -1; dr <= 1; dr++ {
		for dc := -1; dc <= 1; dc++ {
			if dr == 0 && dc == 0 {
				continue
			}
			count += int(s.cell(row+dr, col+dc))
		}
	}
	return count
}

// ApplyRule writes the next generation of every cell into the next buffer.
// The current buffer and the halos are only read.
func (s *Store) ApplyRule() {
	for row := 0; row < s.width; row++ {
		for col := 0; col < s.width; col++ {
			n := s.NeighborCount(row, col)
			var next byte
			if n == 3 || (n == 2 && s.cur[row*s.width+col] == 1) {
				next = 1
			}
			s.next[row*s.width+col] = next
		}
	}
}

// Swap makes the next generation current.
func (s *Store) Swap() {
	s.cur, s.next = s.next, s.cur
}
