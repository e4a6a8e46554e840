/*
Lifelocal runs every rank of the tiled Game of Life inside one process, one
goroutine per rank, over the in-memory transport or over TCP on loopback.

	lifelocal -np 9 -width 16 -runtime 100 -print
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/RylanYancey/game-of-life-mpi/comm"
	"github.com/RylanYancey/game-of-life-mpi/configs"
	"github.com/RylanYancey/game-of-life-mpi/hlog"
	"github.com/RylanYancey/game-of-life-mpi/life"
	"github.com/RylanYancey/game-of-life-mpi/tipc"
)

func main() {
	cfg := configs.Default()
	file := flag.String("config", "", "JSON config file")
	np := flag.Int("np", 4, "number of ranks, a perfect square")
	width := flag.Int("width", 0, "tile width, overrides the config")
	runtime := flag.Int("runtime", -1, "generations to run, overrides the config")
	transport := flag.String("transport", "", "local or tipc, overrides the config")
	debug := flag.Int("debug", -1, "debug level 0-4, overrides the config")
	show := flag.Bool("print", false, "print every final tile")
	flag.Parse()

	if *file != "" {
		var err error
		if cfg, err = configs.ReadConfig(*file); err != nil {
			fmt.Fprintln(os.Stderr, "lifelocal:", err)
			os.Exit(2)
		}
	}
	if *width > 0 {
		cfg.TileWidth = *width
	}
	if *runtime >= 0 {
		cfg.Runtime = *runtime
	}
	if *transport != "" {
		cfg.Transport = *transport
	}
	if *debug >= 0 {
		cfg.Debug = *debug
	}

	logDone := make(chan struct{})
	go func() {
		hlog.DumpLog()
		close(logDone)
	}()

	trs, err := openWorld(cfg, *np)
	if err != nil {
		fmt.Fprintln(os.Stderr, "lifelocal:", err)
		os.Exit(1)
	}

	steppers := make([]*life.Stepper, *np)
	errs := make([]error, *np)
	var wg sync.WaitGroup
	for r, tr := range trs {
		wg.Add(1)
		go func(r int, tr comm.Transport) {
			defer wg.Done()
			log := hlog.New(r, cfg.Debug)
			steppers[r], errs[r] = life.RunRank(tr, cfg, log)
		}(r, tr)
	}
	wg.Wait()
	for _, tr := range trs {
		tr.Close()
	}
	hlog.CloseLog()
	<-logDone

	failed := false
	for r, err := range errs {
		if err != nil {
			failed = true
			fmt.Fprintf(os.Stderr, "rank %d: %s\n", r, err)
		}
	}
	if failed {
		os.Exit(1)
	}
	if *show {
		for r, s := range steppers {
			fmt.Printf("rank %d %s generation %d, %d alive\n%s\n", r, s.Topology(), s.Generation(), s.Store().Alive(), s.Store())
		}
	}
}

// openWorld creates the transports of all np ranks
func openWorld(cfg configs.Config, np int) ([]comm.Transport, error) {
	switch cfg.Transport {
	case "local":
		return comm.NewWorld(np).Transports(), nil
	case "tipc":
		conns := make([]*tipc.IpcConn, np)
		addrs := make([]string, np)
		for r := range conns {
			c, err := tipc.Listen(r, np, "127.0.0.1:0", hlog.New(r, cfg.Debug))
			if err != nil {
				return nil, err
			}
			if cfg.VecLog != "" {
				c.EnableVecLog(cfg.VecLog)
			}
			conns[r] = c
			addrs[r] = c.Addr()
		}
		trs := make([]comm.Transport, np)
		for r, c := range conns {
			if err := c.Connect(addrs, tipc.ConnectTimeout); err != nil {
				return nil, err
			}
			trs[r] = c
		}
		return trs, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
