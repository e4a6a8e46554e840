/*
Lifetile runs one rank of the tiled Game of Life. Every rank is started with
the same config and its own rank, by hand, by lifedeploy or, for the mpi
transport, by mpirun.

	lifetile -config config.json -rank 3
*/
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/RylanYancey/game-of-life-mpi/comm"
	"github.com/RylanYancey/game-of-life-mpi/configs"
	"github.com/RylanYancey/game-of-life-mpi/hlog"
	"github.com/RylanYancey/game-of-life-mpi/life"
	_ "github.com/RylanYancey/game-of-life-mpi/tipc"
)

func main() {
	file := flag.String("config", "config.json", "JSON config file")
	rank := flag.Int("rank", -1, "rank of this process, ignored by mpi")
	np := flag.Int("np", 0, "number of ranks for mpi, 0 to accept the launcher's")
	flag.Parse()

	cfg, err := configs.ReadConfig(*file)
	if err == nil {
		err = cfg.ValidateProcess()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "lifetile:", err)
		os.Exit(2)
	}
	addrs, err := cfg.Addrs()
	if err != nil {
		fmt.Fprintln(os.Stderr, "lifetile:", err)
		os.Exit(2)
	}
	size := len(addrs)
	if cfg.Transport == "mpi" {
		size = *np
	}

	logDone := make(chan struct{})
	go func() {
		hlog.DumpLog()
		close(logDone)
	}()
	log := hlog.New(*rank, cfg.Debug)
	tr, err := comm.Open(cfg.Transport, comm.Options{Rank: *rank, Size: size, Addrs: addrs, VecLog: cfg.VecLog, Log: log})
	if err != nil {
		fmt.Fprintln(os.Stderr, "lifetile:", err)
		os.Exit(1)
	}
	if tr.Rank() != *rank {
		log = hlog.New(tr.Rank(), cfg.Debug)
	}

	s, err := life.RunRank(tr, cfg, log)
	tr.Close()
	hlog.CloseLog()
	<-logDone
	if err != nil {
		fmt.Fprintf(os.Stderr, "rank %d: %s\n", tr.Rank(), err)
		os.Exit(1)
	}
	fmt.Printf("rank %d %s: %d generations, %d alive\n", tr.Rank(), s.Topology(), s.Generation(), s.Store().Alive())
}
