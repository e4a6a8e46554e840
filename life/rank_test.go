package life

import (
	"bytes"
	"sync"
	"testing"

	"github.com/RylanYancey/game-of-life-mpi/comm"
	"github.com/RylanYancey/game-of-life-mpi/configs"
)

func runRanks(t *testing.T, cfg configs.Config, size int) ([]*Stepper, []error) {
	w := comm.NewWorld(size)
	steppers := make([]*Stepper, size)
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			steppers[r], errs[r] = RunRank(w.Rank(r), cfg, nil)
		}(r)
	}
	wg.Wait()
	return steppers, errs
}

func TestRunRankIsReproducible(t *testing.T) {
	cfg := configs.Default()
	cfg.TileWidth = 5
	cfg.Runtime = 6
	cfg.Seed = 99

	first, errs := runRanks(t, cfg, 4)
	for r, err := range errs {
		if err != nil {
			t.Fatalf("[TEST] rank %d failed: %s", r, err.Error())
		}
	}
	second, _ := runRanks(t, cfg, 4)
	for r := range first {
		if first[r].Generation() != cfg.Runtime {
			t.Errorf("[TEST] rank %d ran %d generations expected %d", r, first[r].Generation(), cfg.Runtime)
		}
		a, b := first[r].Store().Cells(), second[r].Store().Cells()
		for y := range a {
			if !bytes.Equal(a[y], b[y]) {
				t.Fatalf("[TEST] rank %d differs between runs with seed %d", r, cfg.Seed)
			}
		}
	}
}

func TestRunRankNonSquare(t *testing.T) {
	steppers, errs := runRanks(t, configs.Default(), 3)
	for r := range errs {
		if errs[r] == nil || steppers[r] != nil {
			t.Errorf("[TEST] rank %d of 3 got stepper %v error %v", r, steppers[r], errs[r])
		}
	}
}
