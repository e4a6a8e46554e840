/*
Package tile implements the cell storage owned by one rank.

This file contains the unit tests for the tile store and the Life rule.
*/
package tile

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/RylanYancey/game-of-life-mpi/grid"
)

func all() grid.DirectionSet {
	var set grid.DirectionSet
	for _, d := range grid.Directions {
		set = set.With(d)
	}
	return set
}

func TestNewStoreSizes(t *testing.T) {
	s, err := NewStore(5, all())
	if err != nil {
		t.Fatalf("[TEST] NewStore failed: %s", err.Error())
	}
	for _, d := range grid.Directions {
		want := 5
		if d.IsCorner() {
			want = 1
		}
		if len(s.Outgoing(d)) != want || len(s.Incoming(d)) != want {
			t.Errorf("[TEST] %s halo sizes got %d/%d expected %d", d, len(s.Outgoing(d)), len(s.Incoming(d)), want)
		}
	}
	if want := 2*25 + 2*(4*5+4*1); len(s.arena) != want {
		t.Errorf("[TEST] arena size got %d expected %d", len(s.arena), want)
	}

	edge, _ := NewStore(4, grid.DirectionSet(0).With(grid.E))
	if edge.Outgoing(grid.W) != nil || edge.Incoming(grid.N) != nil {
		t.Errorf("[TEST] inactive directions should have no halo buffers")
	}

	for _, w := range []int{0, -1, MaxWidth + 1} {
		_, err := NewStore(w, all())
		var resErr ResourceError
		if !errors.As(err, &resErr) {
			t.Errorf("[TEST] NewStore(%d) got %v expected ResourceError", w, err)
		}
	}
}

func TestHalosDoNotAlias(t *testing.T) {
	s, _ := NewStore(3, all())
	s.Fill(1)
	s.PackOutgoing()
	for _, d := range grid.Directions {
		for _, c := range s.Incoming(d) {
			if c != 0 {
				t.Fatalf("[TEST] packing wrote into incoming %s halo", d)
			}
		}
	}
	s.ApplyRule()
	s.Swap()
	if s.Alive() != 4 {
		t.Errorf("[TEST] full 3x3 with dead halos got %d alive expected 4", s.Alive())
	}
}

func TestPackOutgoing(t *testing.T) {
	s, _ := NewStore(3, all())
	// cells numbered 1..9 so every border is distinct
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			s.cur[row*3+col] = byte(row*3 + col + 1)
		}
	}
	s.PackOutgoing()
	want := map[grid.Direction][]byte{
		grid.N:  {1, 2, 3},
		grid.S:  {7, 8, 9},
		grid.W:  {1, 4, 7},
		grid.E:  {3, 6, 9},
		grid.NW: {1},
		grid.NE: {3},
		grid.SW: {7},
		grid.SE: {9},
	}
	for d, w := range want {
		if !bytes.Equal(s.Outgoing(d), w) {
			t.Errorf("[TEST] outgoing %s got %v expected %v", d, s.Outgoing(d), w)
		}
	}
}

func TestAllDeadStaysDead(t *testing.T) {
	s, _ := NewStore(6, all())
	for row := 0; row < 6; row++ {
		for col := 0; col < 6; col++ {
			if n := s.NeighborCount(row, col); n != 0 {
				t.Fatalf("[TEST] dead tile has count %d at (%d,%d)", n, row, col)
			}
		}
	}
	s.ApplyRule()
	s.Swap()
	if s.Alive() != 0 {
		t.Errorf("[TEST] dead tile got %d alive cells expected 0", s.Alive())
	}
}

func TestBlockStillLife(t *testing.T) {
	s, _ := NewStore(8, all())
	for _, p := range [][2]int{{3, 3}, {3, 4}, {4, 3}, {4, 4}} {
		s.Set(p[0], p[1], 1)
	}
	for _, p := range [][2]int{{3, 3}, {3, 4}, {4, 3}, {4, 4}} {
		if n := s.NeighborCount(p[0], p[1]); n != 3 {
			t.Errorf("[TEST] block cell (%d,%d) count got %d expected 3", p[0], p[1], n)
		}
	}
	before := s.Cells()
	for gen := 0; gen < 4; gen++ {
		s.ApplyRule()
		s.Swap()
	}
	after := s.Cells()
	for row := range before {
		if !bytes.Equal(before[row], after[row]) {
			t.Fatalf("[TEST] block changed at row %d: %v -> %v", row, before[row], after[row])
		}
	}
}

func TestBlinkerOscillates(t *testing.T) {
	s, _ := NewStore(5, 0)
	s.Set(2, 1, 1)
	s.Set(2, 2, 1)
	s.Set(2, 3, 1)
	s.ApplyRule()
	s.Swap()
	for row := 0; row < 5; row++ {
		for col := 0; col < 5; col++ {
			want := byte(0)
			if col == 2 && row >= 1 && row <= 3 {
				want = 1
			}
			if s.Get(row, col) != want {
				t.Errorf("[TEST] blinker cell (%d,%d) got %d expected %d", row, col, s.Get(row, col), want)
			}
		}
	}
}

func TestHaloContributions(t *testing.T) {
	s, _ := NewStore(4, all())

	// edge halo directly across the border
	s.Incoming(grid.N)[2] = 1
	if n := s.NeighborCount(0, 2); n != 1 {
		t.Errorf("[TEST] north halo count at (0,2) got %d expected 1", n)
	}
	if n := s.NeighborCount(0, 1); n != 1 {
		t.Errorf("[TEST] north halo diagonal count at (0,1) got %d expected 1", n)
	}
	if n := s.NeighborCount(1, 2); n != 0 {
		t.Errorf("[TEST] north halo leaked to row 1, got %d", n)
	}

	// corner halo only reaches the corner cell
	s.Incoming(grid.SE)[0] = 1
	if n := s.NeighborCount(3, 3); n != 1 {
		t.Errorf("[TEST] south east corner count got %d expected 1", n)
	}
	if n := s.NeighborCount(3, 2); n != 0 {
		t.Errorf("[TEST] south east corner leaked to (3,2), got %d", n)
	}

	// east halo indexed by row
	s.Incoming(grid.E)[0] = 1
	s.Incoming(grid.E)[1] = 1
	s.Incoming(grid.E)[2] = 1
	if n := s.NeighborCount(1, 3); n != 3 {
		t.Errorf("[TEST] east halo count at (1,3) got %d expected 3", n)
	}
	s.ApplyRule()
	s.Swap()
	if s.Get(1, 3) != 1 {
		t.Errorf("[TEST] cell (1,3) with three east neighbours should be born")
	}
}

func TestSeed(t *testing.T) {
	s, _ := NewStore(32, 0)
	s.Seed(rand.New(rand.NewSource(1)), 6)
	alive := s.Alive()
	if alive == 0 || alive == 32*32 {
		t.Errorf("[TEST] seeding gave %d alive cells", alive)
	}
	s.Seed(rand.New(rand.NewSource(1)), 1)
	if s.Alive() != 32*32 {
		t.Errorf("[TEST] one in one seeding got %d alive expected %d", s.Alive(), 32*32)
	}
}

func TestString(t *testing.T) {
	s, _ := NewStore(2, 0)
	s.Set(0, 1, 1)
	if got := s.String(); got != ".#\n..\n" {
		t.Errorf("[TEST] String got %q", got)
	}
}
