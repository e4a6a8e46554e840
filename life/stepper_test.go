/*
Package life runs the tiled Game of Life on one rank.

This file contains the unit tests for the generation stepper. Every test runs
a whole world of ranks as goroutines over the in-memory transport.
*/
package life

import (
	"bytes"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/RylanYancey/game-of-life-mpi/comm"
	"github.com/RylanYancey/game-of-life-mpi/grid"
	"github.com/RylanYancey/game-of-life-mpi/halo"
	"github.com/RylanYancey/game-of-life-mpi/tile"
)

// runWorld runs n generations on size ranks. seed is called on every rank
// before the run. It returns the steppers (nil where New failed) and the
// error of every rank.
func runWorld(t *testing.T, size int, opts func(rank int) Options, seed func(rank int, s *tile.Store), n int) ([]*Stepper, []error) {
	w := comm.NewWorld(size)
	steppers := make([]*Stepper, size)
	errs := make([]error, size)

	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			s, err := New(w.Rank(r), opts(r))
			if err != nil {
				errs[r] = err
				return
			}
			steppers[r] = s
			if seed != nil {
				seed(r, s.Store())
			}
			errs[r] = s.Run(n)
		}(r)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(20 * time.Second):
		t.Fatalf("[TEST] world of %d ranks did not finish", size)
	}
	return steppers, errs
}

func width(w int) func(int) Options {
	return func(int) Options { return Options{TileWidth: w} }
}

// sequentialStep is the reference step over the whole world with dead cells
// beyond the border.
func sequentialStep(world [][]byte) [][]byte {
	h := len(world)
	next := make([][]byte, h)
	for y := range world {
		next[y] = make([]byte, len(world[y]))
		for x := range world[y] {
			count := 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					if dx == 0 && dy == 0 {
						continue
					}
					ny, nx := y+dy, x+dx
					if ny >= 0 && ny < h && nx >= 0 && nx < len(world[y]) {
						count += int(world[ny][nx])
					}
				}
			}
			if count == 3 || (count == 2 && world[y][x] == 1) {
				next[y][x] = 1
			}
		}
	}
	return next
}

func TestRunCountsGenerations(t *testing.T) {
	const n = 7
	calls := make([]int, 9)
	opts := func(rank int) Options {
		return Options{TileWidth: 4, OnGeneration: func(gen int, _ *tile.Store) {
			calls[rank]++
			if gen != calls[rank] {
				t.Errorf("[TEST] rank %d hook got generation %d expected %d", rank, gen, calls[rank])
			}
		}}
	}
	steppers, errs := runWorld(t, 9, opts, nil, n)
	for r, s := range steppers {
		if errs[r] != nil {
			t.Fatalf("[TEST] rank %d failed: %s", r, errs[r].Error())
		}
		if s.Generation() != n {
			t.Errorf("[TEST] rank %d ran %d generations expected %d", r, s.Generation(), n)
		}
		if calls[r] != n {
			t.Errorf("[TEST] rank %d hook called %d times expected %d", r, calls[r], n)
		}
		if s.State() != Terminal {
			t.Errorf("[TEST] rank %d ended in state %s expected Terminal", r, s.State())
		}
		if err := s.Run(1); err == nil {
			t.Errorf("[TEST] rank %d ran again from Terminal", r)
		}
		if err := s.Close(); err != nil {
			t.Errorf("[TEST] rank %d Close failed: %s", r, err.Error())
		}
	}
}

func TestSingleRankWorld(t *testing.T) {
	steppers, errs := runWorld(t, 1, width(6), func(_ int, s *tile.Store) {
		// blinker in the middle
		s.Set(2, 1, 1)
		s.Set(2, 2, 1)
		s.Set(2, 3, 1)
	}, 2)
	if errs[0] != nil {
		t.Fatalf("[TEST] single rank failed: %s", errs[0].Error())
	}
	s := steppers[0].Store()
	if s.Get(2, 1) != 1 || s.Get(2, 2) != 1 || s.Get(2, 3) != 1 || s.Alive() != 3 {
		t.Errorf("[TEST] blinker did not return after two generations:\n%s", s)
	}
}

func TestMatchesSequentialWorld(t *testing.T) {
	const k, w, n = 3, 5, 15
	size := k * w
	r := rand.New(rand.NewSource(42))
	world := make([][]byte, size)
	for y := range world {
		world[y] = make([]byte, size)
		for x := range world[y] {
			if r.Intn(3) == 0 {
				world[y][x] = 1
			}
		}
	}

	seed := func(rank int, s *tile.Store) {
		row, col := grid.Position(rank, k)
		for y := 0; y < w; y++ {
			for x := 0; x < w; x++ {
				s.Set(y, x, world[row*w+y][col*w+x])
			}
		}
	}
	steppers, errs := runWorld(t, k*k, width(w), seed, n)

	for i := 0; i < n; i++ {
		world = sequentialStep(world)
	}
	for rank, s := range steppers {
		if errs[rank] != nil {
			t.Fatalf("[TEST] rank %d failed: %s", rank, errs[rank].Error())
		}
		row, col := grid.Position(rank, k)
		cells := s.Store().Cells()
		for y := 0; y < w; y++ {
			want := world[row*w+y][col*w : (col+1)*w]
			if !bytes.Equal(cells[y], want) {
				t.Fatalf("[TEST] rank %d row %d got %v expected %v", rank, y, cells[y], want)
			}
		}
	}
}

func TestFullTileNextToDeadTiles(t *testing.T) {
	seed := func(rank int, s *tile.Store) {
		if rank == 0 {
			s.Fill(1)
		}
	}
	steppers, errs := runWorld(t, 4, width(4), seed, 1)
	for r, err := range errs {
		if err != nil {
			t.Fatalf("[TEST] rank %d failed: %s", r, err.Error())
		}
	}

	want := map[int][][]byte{
		0: {
			{1, 0, 0, 1},
			{0, 0, 0, 0},
			{0, 0, 0, 0},
			{1, 0, 0, 1},
		},
		1: {
			{0, 0, 0, 0},
			{1, 0, 0, 0},
			{1, 0, 0, 0},
			{0, 0, 0, 0},
		},
		2: {
			{0, 1, 1, 0},
			{0, 0, 0, 0},
			{0, 0, 0, 0},
			{0, 0, 0, 0},
		},
		3: {
			{0, 0, 0, 0},
			{0, 0, 0, 0},
			{0, 0, 0, 0},
			{0, 0, 0, 0},
		},
	}
	for rank, rows := range want {
		got := steppers[rank].Store().Cells()
		for y := range rows {
			if !bytes.Equal(got[y], rows[y]) {
				t.Errorf("[TEST] rank %d row %d got %v expected %v", rank, y, got[y], rows[y])
			}
		}
	}
}

func TestNonSquareWorldFailsEverywhere(t *testing.T) {
	for _, size := range []int{2, 3, 5} {
		steppers, errs := runWorld(t, size, width(4), nil, 3)
		for r := 0; r < size; r++ {
			var cfgErr grid.ConfigurationError
			if !errors.As(errs[r], &cfgErr) {
				t.Errorf("[TEST] size %d rank %d got %v expected ConfigurationError", size, r, errs[r])
			}
			if steppers[r] != nil {
				t.Errorf("[TEST] size %d rank %d created a stepper", size, r)
			}
		}
	}
}

func TestBadTileWidth(t *testing.T) {
	_, errs := runWorld(t, 4, width(0), nil, 1)
	for r, err := range errs {
		var resErr tile.ResourceError
		if !errors.As(err, &resErr) {
			t.Errorf("[TEST] rank %d got %v expected ResourceError", r, err)
		}
	}
}

func TestMismatchedTileAbortsWorld(t *testing.T) {
	opts := func(rank int) Options {
		if rank == 3 {
			return Options{TileWidth: 3}
		}
		return Options{TileWidth: 4}
	}
	steppers, errs := runWorld(t, 4, opts, nil, 5)

	sawComm := false
	for r, err := range errs {
		if err == nil {
			t.Errorf("[TEST] rank %d finished despite mismatched neighbour", r)
			continue
		}
		var commErr *halo.CommunicationError
		if errors.As(err, &commErr) && !errors.Is(err, comm.ErrAborted) {
			sawComm = true
		}
	}
	if !sawComm {
		t.Errorf("[TEST] no rank reported the size mismatch: %v", errs)
	}
	for r, s := range steppers {
		if err := s.Close(); err != nil {
			t.Errorf("[TEST] rank %d could not release its channels after the failure: %s", r, err.Error())
		}
	}
}

func TestSetupFailureAbortsWorld(t *testing.T) {
	opts := func(rank int) Options {
		if rank == 3 {
			return Options{TileWidth: 0}
		}
		return Options{TileWidth: 4}
	}
	// runWorld fails the test if any rank is left blocked
	steppers, errs := runWorld(t, 4, opts, nil, 3)

	var resErr tile.ResourceError
	if !errors.As(errs[3], &resErr) || steppers[3] != nil {
		t.Errorf("[TEST] rank 3 got %v expected ResourceError", errs[3])
	}
	for r := 0; r < 3; r++ {
		if !errors.Is(errs[r], comm.ErrAborted) {
			t.Errorf("[TEST] rank %d got %v expected ErrAborted", r, errs[r])
		}
		if steppers[r].State() != Terminal {
			t.Errorf("[TEST] rank %d ended in state %s expected Terminal", r, steppers[r].State())
		}
	}
}

func TestPace(t *testing.T) {
	const pace = 10 * time.Millisecond
	opts := func(int) Options { return Options{TileWidth: 2, Pace: pace} }
	start := time.Now()
	_, errs := runWorld(t, 4, opts, nil, 3)
	for r, err := range errs {
		if err != nil {
			t.Fatalf("[TEST] rank %d failed: %s", r, err.Error())
		}
	}
	if elapsed := time.Since(start); elapsed < 3*pace {
		t.Errorf("[TEST] paced run took %s expected at least %s", elapsed, 3*pace)
	}
}

func TestStateNames(t *testing.T) {
	for st, name := range map[State]string{Idle: "Idle", Exchanging: "Exchanging", Computing: "Computing", Terminal: "Terminal"} {
		if st.String() != name {
			t.Errorf("[TEST] state %d got name %q expected %q", st, st.String(), name)
		}
	}
}
