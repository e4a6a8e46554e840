/*
Package configs reads and writes the run configuration.

This file contains structs and functions to manipulate configuration JSONs
*/
package configs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// DefaultPort is the first listen port; rank r listens on DefaultPort+r
const DefaultPort = 6464

//for each machine we intend to deploy ranks on,
//we need these to connect to it
type DroneManagerConfig struct {
	Address  string
	Port     string
	Username string
	Password string
}

//this is the struct for config.json
//the same file is handed to every rank, which picks its own
//address out of Hosts by rank
type Config struct {
	TileWidth  int                  //width of the tile owned by each rank
	Runtime    int                  //number of generations to simulate
	Transport  string               //"local", "tipc" or "mpi"
	Hosts      []string             //host or host:port of every rank, indexed by rank
	Port       int                  //base port for hosts given without a port
	PaceMillis int                  //delay on rank 0 between generations
	Density    int                  //seed cells alive with a chance of 1 in Density
	Seed       int64                //random seed, 0 picks one from the clock
	Debug      int                  //hlog debug level
	VecLog     string               //GoVector log prefix, empty to disable
	Drones     []DroneManagerConfig //machines to deploy on, one rank each
	RemoteDir  string               //working directory on deployed machines
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		TileWidth: 16,
		Runtime:   100,
		Transport: "local",
		Port:      DefaultPort,
		Density:   6,
		Debug:     1,
		RemoteDir: "/tmp/lifetile",
	}
}

// Validate checks the fields every launcher relies on.
func (c Config) Validate() error {
	if c.TileWidth < 1 {
		return fmt.Errorf("configs: tile width %d must be positive", c.TileWidth)
	}
	if c.Runtime < 0 {
		return fmt.Errorf("configs: runtime %d must not be negative", c.Runtime)
	}
	if c.Density < 1 {
		return fmt.Errorf("configs: density %d must be positive", c.Density)
	}
	if c.PaceMillis < 0 {
		return fmt.Errorf("configs: pace %d must not be negative", c.PaceMillis)
	}
	if c.Transport == "tipc" && len(c.Hosts) == 0 {
		return errors.New("configs: tipc transport needs Hosts")
	}
	return nil
}

// ValidateProcess checks a config for launchers that run one rank per
// process. The local transport only connects ranks inside one process.
func (c Config) ValidateProcess() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Transport == "local" {
		return errors.New("configs: local transport needs every rank in one process, use tipc or mpi")
	}
	return nil
}

// Pace returns the pacing delay.
func (c Config) Pace() time.Duration {
	return time.Duration(c.PaceMillis) * time.Millisecond
}

// Addrs returns the listen address of every rank. Hosts without a port get
// Port+rank.
func (c Config) Addrs() ([]string, error) {
	addrs := make([]string, len(c.Hosts))
	for rank, h := range c.Hosts {
		if _, _, err := net.SplitHostPort(h); err == nil {
			addrs[rank] = h
			continue
		}
		if c.Port < 1 {
			return nil, fmt.Errorf("configs: host %q has no port and no base port is set", h)
		}
		addrs[rank] = net.JoinHostPort(h, strconv.Itoa(c.Port+rank))
	}
	return addrs, nil
}

//reads configuration from filename, starting from the defaults
func ReadConfig(filename string) (Config, error) {
	c := Default()
	cfFile, err := os.ReadFile(filename)
	if err != nil {
		//fail to read config
		return c, err
	}
	err = json.Unmarshal(cfFile, &c)
	if err != nil {
		//unable to decode the config
		return c, fmt.Errorf("configs: decode %s: %w", filename, err)
	}

	return c, nil
}

//writes configuration to filename,
//used to hand configs to deployed ranks
func WriteConfig(filename string, c Config) error {
	cfArr, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		//failed to encode the config
		return err
	}
	return os.WriteFile(filename, cfArr, 0644)
}
