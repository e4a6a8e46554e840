package life

import (
	"math/rand"
	"time"

	"github.com/RylanYancey/game-of-life-mpi/comm"
	"github.com/RylanYancey/game-of-life-mpi/configs"
	"github.com/RylanYancey/game-of-life-mpi/hlog"
)

// RunRank runs the configured world on the rank behind tr. The tile is
// seeded at random, cfg.Runtime generations are run and the channels are
// released. The stepper is returned even when the run fails, nil when it
// could not be created.
func RunRank(tr comm.Transport, cfg configs.Config, log *hlog.Logger) (*Stepper, error) {
	s, err := New(tr, Options{TileWidth: cfg.TileWidth, Pace: cfg.Pace(), Log: log})
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s.Store().Seed(rand.New(rand.NewSource(seed+int64(tr.Rank()))), cfg.Density)
	log.LogInfo("Seeded %d of %d cells", s.Store().Alive(), cfg.TileWidth*cfg.TileWidth)

	if err := s.Run(cfg.Runtime); err != nil {
		s.Close()
		return s, err
	}
	log.LogInfo("Final tile of rank %d:\n%s", tr.Rank(), s.Store())
	return s, s.Close()
}
