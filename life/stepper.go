/*
Package life runs the tiled Game of Life on one rank.

This file contains the generation stepper. Every generation all ranks meet at
a barrier, exchange halos, apply the rule to their own tile, swap buffers and
meet at a second barrier. No rank starts exchanging generation g before every
rank has finished computing generation g-1.
*/
package life

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/RylanYancey/game-of-life-mpi/comm"
	"github.com/RylanYancey/game-of-life-mpi/grid"
	"github.com/RylanYancey/game-of-life-mpi/halo"
	"github.com/RylanYancey/game-of-life-mpi/hlog"
	"github.com/RylanYancey/game-of-life-mpi/tile"
)

// State of the stepper
type State int32

const (
	Idle State = iota
	Exchanging
	Computing
	Terminal
)

var stateName = map[State]string{
	Idle: "Idle", Exchanging: "Exchanging", Computing: "Computing", Terminal: "Terminal",
}

func (s State) String() string {
	return stateName[s]
}

// Options configure a Stepper.
type Options struct {
	TileWidth int           // width of the tile owned by every rank
	Pace      time.Duration // delay on rank 0 before each generation
	Log       *hlog.Logger  // logger of this rank, nil for none

	// OnGeneration, when set, is called after each generation with the
	// number of generations completed and the store.
	OnGeneration func(gen int, store *tile.Store)
}

// Stepper runs the generation cycle of one rank.
type Stepper struct {
	tr         comm.Transport
	topo       *grid.Topology
	store      *tile.Store
	xchg       *halo.Exchanger
	opts       Options
	log        *hlog.Logger
	generation int64
	state      int32
}

// New sets up the stepper of the rank behind tr: it derives the topology,
// allocates the tile and opens the halo channels. Every rank of a world whose
// size is not a perfect square returns a grid.ConfigurationError before
// reaching any barrier. Any later setup failure aborts the world.
func New(tr comm.Transport, opts Options) (*Stepper, error) {
	log := opts.Log
	topo, err := grid.New(tr.Rank(), tr.Size())
	if err != nil {
		var cfgErr grid.ConfigurationError
		if errors.As(err, &cfgErr) && tr.Rank() == 0 {
			log.LogError("%s", err)
		}
		return nil, err
	}
	log.LogInfo("Topology: %s", topo)

	store, err := tile.NewStore(opts.TileWidth, topo.Active)
	if err != nil {
		return nil, abort(tr, log, err)
	}

	xchg := halo.NewExchanger(tr, topo, store, log)
	if err := xchg.Open(); err != nil {
		return nil, abort(tr, log, err)
	}

	return &Stepper{
		tr:    tr,
		topo:  topo,
		store: store,
		xchg:  xchg,
		opts:  opts,
		log:   log,
	}, nil
}

// Topology returns the position of this rank.
func (s *Stepper) Topology() *grid.Topology {
	return s.topo
}

// Store returns the tile of this rank. It may be seeded before Run.
func (s *Stepper) Store() *tile.Store {
	return s.store
}

// Generation returns the number of generations completed.
func (s *Stepper) Generation() int {
	return int(atomic.LoadInt64(&s.generation))
}

// State returns the current state of the stepper.
func (s *Stepper) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Stepper) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Run performs n generations and leaves the stepper Terminal. Any error is
// fatal: the world is aborted when the transport supports it and the error
// is returned.
func (s *Stepper) Run(n int) error {
	if st := s.State(); st != Idle {
		return fmt.Errorf("life: run from state %s", st)
	}
	start := time.Now()
	for i := 0; i < n; i++ {
		if err := s.step(); err != nil {
			return s.fail(err)
		}
	}
	s.setState(Terminal)
	s.log.LogInfo("Finished %d generations in %s, %d alive", n, time.Since(start), s.store.Alive())
	return nil
}

func (s *Stepper) step() error {
	s.pace()

	if err := s.tr.Barrier(); err != nil {
		return fmt.Errorf("life: entry barrier: %w", err)
	}

	s.setState(Exchanging)
	if err := s.xchg.Begin(); err != nil {
		return err
	}
	if err := s.xchg.Wait(); err != nil {
		return err
	}

	s.setState(Computing)
	s.store.ApplyRule()
	s.store.Swap()
	gen := int(atomic.AddInt64(&s.generation, 1))
	s.log.LogDebug("Generation %d: %d alive\n%s", gen, s.store.Alive(), s.store)
	if s.opts.OnGeneration != nil {
		s.opts.OnGeneration(gen, s.store)
	}

	if err := s.tr.Barrier(); err != nil {
		return fmt.Errorf("life: exit barrier: %w", err)
	}
	s.setState(Idle)
	return nil
}

// pace delays rank 0 so the other ranks wait for it at the entry barrier.
func (s *Stepper) pace() {
	if s.opts.Pace <= 0 || s.topo.Rank != 0 {
		return
	}
	start := time.Now()
	for time.Since(start) < s.opts.Pace {
		time.Sleep(s.opts.Pace - time.Since(start))
	}
}

func (s *Stepper) fail(err error) error {
	s.setState(Terminal)
	if !errors.Is(err, comm.ErrAborted) {
		s.log.LogError("Generation %d failed: %s", s.Generation()+1, err)
	}
	return abort(s.tr, nil, err)
}

// abort stops every rank of the world after a fatal error on this one, so
// no rank is left waiting in a barrier. Errors caused by an abort elsewhere
// are returned as they are.
func abort(tr comm.Transport, log *hlog.Logger, err error) error {
	if errors.Is(err, comm.ErrAborted) {
		return err
	}
	log.LogError("%s", err)
	if a, ok := tr.(comm.Aborter); ok {
		a.Abort(err)
	}
	return err
}

// Close releases the halo channels. After a failed generation it first
// collects the requests still armed, which the abort has completed.
func (s *Stepper) Close() error {
	s.xchg.Wait()
	return s.xchg.Close()
}
