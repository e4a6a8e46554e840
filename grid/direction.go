/*
Package grid maps ranks onto the square process grid.

This file contains the Direction enumeration and the fixed DirectionSet.
*/
package grid

import "strings"

// Direction names a neighbour relationship between two tiles.
type Direction uint8

// The four edge directions come first so that ordinals < NW are edges.
const (
	N Direction = iota
	S
	E
	W
	NW
	NE
	SW
	SE
)

// NumDirections is the number of neighbour directions of a tile
const NumDirections = 8

// Directions lists every direction in ordinal order.
var Directions = [NumDirections]Direction{N, S, E, W, NW, NE, SW, SE}

var dirName = [NumDirections]string{"N", "S", "E", "W", "NW", "NE", "SW", "SE"}

var opposite = [NumDirections]Direction{S, N, W, E, SE, SW, NE, NW}

// row and column steps, north is up (row-1), west is left (col-1)
var offsets = [NumDirections][2]int{
	{-1, 0}, {1, 0}, {0, 1}, {0, -1},
	{-1, -1}, {-1, 1}, {1, -1}, {1, 1},
}

func (d Direction) String() string {
	if int(d) >= NumDirections {
		return "?"
	}
	return dirName[d]
}

// IsCorner reports whether d is one of the diagonal directions.
func (d Direction) IsCorner() bool {
	return d >= NW
}

// Opposite returns the direction pointing back from the neighbour.
func (d Direction) Opposite() Direction {
	return opposite[d]
}

// Offset returns the row and column step towards the neighbour.
func (d Direction) Offset() (dr, dc int) {
	return offsets[d][0], offsets[d][1]
}

// DirectionSet is a fixed set of directions stored as a bitmask over the
// direction ordinals.
type DirectionSet uint8

// With returns a copy of the set including d.
func (s DirectionSet) With(d Direction) DirectionSet {
	return s | 1<<d
}

// Has reports whether d is in the set.
func (s DirectionSet) Has(d Direction) bool {
	return s&(1<<d) != 0
}

// Len returns the number of directions in the set.
func (s DirectionSet) Len() int {
	n := 0
	for _, d := range Directions {
		if s.Has(d) {
			n++
		}
	}
	return n
}

// Directions returns the members of the set in ordinal order.
func (s DirectionSet) Directions() []Direction {
	dirs := make([]Direction, 0, NumDirections)
	for _, d := range Directions {
		if s.Has(d) {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

func (s DirectionSet) String() string {
	names := make([]string, 0, NumDirections)
	for _, d := range s.Directions() {
		names = append(names, d.String())
	}
	return "{" + strings.Join(names, ",") + "}"
}
