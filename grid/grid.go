/*
Package grid maps ranks onto the square process grid.

This file contains the process grid topology: the position of a rank in the
grid, its active neighbour directions and the ranks of those neighbours.
*/
package grid

import (
	"fmt"
	"math"
)

// ConfigurationError contains the process count that could not be arranged
// into a square grid.
type ConfigurationError int

func (e ConfigurationError) Error() string {
	return fmt.Sprintf("Grid: process count %d is not a perfect square: 1, 4, 9, 16, etc.", int(e))
}

// Topology describes where a rank sits in the process grid. It is computed
// once at startup and never changes.
type Topology struct {
	Rank   int          // rank of this process
	Size   int          // number of processes in the world
	Width  int          // width (and height) of the process grid
	Row    int          // row of this rank in the process grid
	Col    int          // column of this rank in the process grid
	Active DirectionSet // directions with a real neighbour
}

// Validate computes the width of the process grid for size processes. It
// fails with a ConfigurationError when size is not a perfect square.
func Validate(size int) (int, error) {
	if size < 1 {
		return 0, ConfigurationError(size)
	}
	width := int(math.Sqrt(float64(size)))
	// correct for float rounding on large counts
	for width*width > size {
		width--
	}
	for (width+1)*(width+1) <= size {
		width++
	}
	if width*width != size {
		return 0, ConfigurationError(size)
	}
	return width, nil
}

// Position returns the row and column of rank in a grid of the given width.
func Position(rank, width int) (row, col int) {
	return rank / width, rank % width
}

// ActiveDirections returns the directions for which the neighbour of
// (row, col) lies inside the grid. There is no wraparound.
func ActiveDirections(row, col, width int) DirectionSet {
	var set DirectionSet
	for _, d := range Directions {
		dr, dc := d.Offset()
		r, c := row+dr, col+dc
		if r >= 0 && r < width && c >= 0 && c < width {
			set = set.With(d)
		}
	}
	return set
}

// NeighborRank returns the rank of the neighbour of rank in direction d. The
// caller must check that d is active; no bounds are checked here.
func NeighborRank(rank int, d Direction, width int) int {
	dr, dc := d.Offset()
	return rank + dr*width + dc
}

// New derives the topology of rank in a world of size processes.
func New(rank, size int) (*Topology, error) {
	width, err := Validate(size)
	if err != nil {
		return nil, err
	}
	if rank < 0 || rank >= size {
		return nil, fmt.Errorf("grid: rank %d outside world of %d processes", rank, size)
	}
	row, col := Position(rank, width)
	return &Topology{
		Rank:   rank,
		Size:   size,
		Width:  width,
		Row:    row,
		Col:    col,
		Active: ActiveDirections(row, col, width),
	}, nil
}

// Neighbor returns the rank of the neighbour in direction d and whether that
// neighbour exists.
func (t *Topology) Neighbor(d Direction) (int, bool) {
	if !t.Active.Has(d) {
		return -1, false
	}
	return NeighborRank(t.Rank, d, t.Width), true
}

// Neighbors returns the neighbour rank for every direction, -1 where the
// direction is inactive.
func (t *Topology) Neighbors() [NumDirections]int {
	var ranks [NumDirections]int
	for _, d := range Directions {
		ranks[d], _ = t.Neighbor(d)
	}
	return ranks
}

func (t *Topology) String() string {
	return fmt.Sprintf("rank %d/%d at (%d,%d) of %dx%d, neighbours %v",
		t.Rank, t.Size, t.Row, t.Col, t.Width, t.Width, t.Active)
}
