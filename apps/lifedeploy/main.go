/*
Lifedeploy starts a tipc world of lifetile ranks, one per configured drone
over ssh, or np ranks as processes on this machine.

	lifedeploy -config deploy.json -binary ./lifetile
	lifedeploy -local 4 -binary ./lifetile
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RylanYancey/game-of-life-mpi/configs"
	"github.com/RylanYancey/game-of-life-mpi/deploy"
	"github.com/RylanYancey/game-of-life-mpi/hlog"
)

func main() {
	file := flag.String("config", "", "JSON config file")
	binary := flag.String("binary", "./lifetile", "lifetile binary to run")
	local := flag.Int("local", 0, "start this many ranks on this machine instead of the drones")
	timeout := flag.Duration("timeout", 30*time.Second, "time allowed for the drones to start")
	flag.Parse()

	cfg := configs.Default()
	if *file != "" {
		var err error
		if cfg, err = configs.ReadConfig(*file); err != nil {
			fail(err)
		}
	}

	go hlog.DumpLog()
	log := hlog.New(0, cfg.Debug)

	if *local > 0 {
		dir, err := os.MkdirTemp("", "lifedeploy")
		if err != nil {
			fail(err)
		}
		cfg.Transport = "tipc"
		cfg.Hosts = make([]string, *local)
		for i := range cfg.Hosts {
			cfg.Hosts[i] = "127.0.0.1"
		}
		conf := filepath.Join(dir, "config.json")
		if err := configs.WriteConfig(conf, cfg); err != nil {
			fail(err)
		}
		cmds, err := deploy.StartLocal(*binary, conf, *local, dir, log)
		if err != nil {
			fail(err)
		}
		fmt.Println("ranks running, logs in", dir)
		if err := deploy.Wait(cmds); err != nil {
			fail(err)
		}
		return
	}

	results, err := deploy.Remote(cfg, *binary, *timeout, log)
	for _, res := range results {
		status := "running"
		if res.Err != nil {
			status = res.Err.Error()
		}
		fmt.Printf("rank %d on %s: %s\n", res.Rank, res.Address, status)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "lifedeploy:", err)
	os.Exit(1)
}
