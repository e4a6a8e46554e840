/*
Package tile implements the cell storage owned by one rank.

The tile is a square block of cells, double buffered so the next generation is
computed from an untouched copy of the current one. Next to the cells the
store keeps one outgoing and one incoming halo buffer per active direction.
All buffers are carved from one arena that is allocated once and never grows.
*/
package tile

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/RylanYancey/game-of-life-mpi/grid"
)

// MaxWidth is the widest tile a store will allocate.
const MaxWidth = 1 << 14

// ResourceError contains the tile width that could not be allocated.
type ResourceError int

func (e ResourceError) Error() string {
	return fmt.Sprintf("Tile: can not allocate tile of width [%d]", int(e))
}

// Store holds the tile of one rank and its halo buffers.
type Store struct {
	width  int
	active grid.DirectionSet
	arena  []byte                     // backing memory for cells and halos
	cur    []byte                     // current generation, row major
	next   []byte                     // next generation, row major
	out    [grid.NumDirections][]byte // outgoing halo per direction, nil if inactive
	in     [grid.NumDirections][]byte // incoming halo per direction, nil if inactive
}

// HaloSize returns the number of cells exchanged in direction d for a tile
// of the given width.
func HaloSize(d grid.Direction, width int) int {
	if d.IsCorner() {
		return 1
	}
	return width
}

// NewStore allocates a tile of width x width dead cells with halo buffers for
// the active directions.
func NewStore(width int, active grid.DirectionSet) (*Store, error) {
	if width < 1 || width > MaxWidth {
		return nil, ResourceError(width)
	}
	size := 2 * width * width
	for _, d := range active.Directions() {
		size += 2 * HaloSize(d, width)
	}

	s := &Store{width: width, active: active, arena: make([]byte, size)}
	off := 0
	carve := func(n int) []byte {
		b := s.arena[off : off+n : off+n]
		off += n
		return b
	}
	s.cur = carve(width * width)
	s.next = carve(width * width)
	for _, d := range active.Directions() {
		s.out[d] = carve(HaloSize(d, width))
		s.in[d] = carve(HaloSize(d, width))
	}
	return s, nil
}

// Width returns the width of the tile.
func (s *Store) Width() int {
	return s.width
}

// Active returns the directions this store has halos for.
func (s *Store) Active() grid.DirectionSet {
	return s.active
}

// Get returns the current value of the cell at (row, col).
func (s *Store) Get(row, col int) byte {
	return s.cur[row*s.width+col]
}

// Set sets the current value of the cell at (row, col). Any non zero value is
// stored as alive.
func (s *Store) Set(row, col int, val byte) {
	if val != 0 {
		val = 1
	}
	s.cur[row*s.width+col] = val
}

// Fill sets every current cell to val.
func (s *Store) Fill(val byte) {
	for row := 0; row < s.width; row++ {
		for col := 0; col < s.width; col++ {
			s.Set(row, col, val)
		}
	}
}

// Cells returns a copy of the current generation as rows.
func (s *Store) Cells() [][]byte {
	rows := make([][]byte, s.width)
	for row := range rows {
		rows[row] = append([]byte(nil), s.cur[row*s.width:(row+1)*s.width]...)
	}
	return rows
}

// Alive returns the number of live cells in the current generation.
func (s *Store) Alive() int {
	n := 0
	for _, c := range s.cur {
		n += int(c)
	}
	return n
}

// Outgoing returns the outgoing halo buffer of direction d, nil when d is
// not active.
func (s *Store) Outgoing(d grid.Direction) []byte {
	return s.out[d]
}

// Incoming returns the incoming halo buffer of direction d, nil when d is
// not active.
func (s *Store) Incoming(d grid.Direction) []byte {
	return s.in[d]
}

// Seed makes each cell alive with a chance of one in oneIn.
func (s *Store) Seed(r *rand.Rand, oneIn int) {
	if oneIn < 1 {
		oneIn = 1
	}
	for i := range s.cur {
		if r.Intn(oneIn) == 0 {
			s.cur[i] = 1
		} else {
			s.cur[i] = 0
		}
	}
}

func (s *Store) String() string {
	var sb strings.Builder
	for row := 0; row < s.width; row++ {
		for col := 0; col < s.width; col++ {
			if s.Get(row, col) == 1 {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
