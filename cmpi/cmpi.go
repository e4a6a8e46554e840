//go:build mpi

/*
Package cmpi runs ranks over a native MPI library through gompi.

The package is only built with the mpi build tag, since it needs cgo and an
installed MPI. Ranks are started by mpirun, which assigns rank and size.
*/
package cmpi

import (
	"errors"
	"fmt"
	"sync"

	mpi "github.com/sbromberger/gompi"

	"github.com/RylanYancey/game-of-life-mpi/comm"
	"github.com/RylanYancey/game-of-life-mpi/hlog"
)

var startOnce sync.Once

func init() {
	comm.Register("mpi", open)
}

// Conn is the MPI transport of the calling process.
type Conn struct {
	o     *mpi.Communicator
	log   *hlog.Logger
	mutex sync.Mutex
	done  bool
}

// Open initialises MPI once per process and returns the world communicator.
func Open(log *hlog.Logger) *Conn {
	startOnce.Do(func() { mpi.Start(true) })
	return &Conn{o: mpi.NewCommunicator(nil), log: log}
}

func open(opts comm.Options) (comm.Transport, error) {
	c := Open(opts.Log)
	if opts.Size > 0 && opts.Size != c.Size() {
		c.Close()
		return nil, fmt.Errorf("cmpi: launched with %d ranks, expected %d", c.Size(), opts.Size)
	}
	return c, nil
}

func (c *Conn) Rank() int {
	return c.o.Rank()
}

func (c *Conn) Size() int {
	return c.o.Size()
}

func (c *Conn) Send(dest, tag int, data []byte) error {
	if err := comm.CheckPeer(c, dest); err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("cmpi: empty message")
	}
	c.o.SendBytes(data, dest, tag)
	return nil
}

func (c *Conn) Recv(src, tag int) ([]byte, error) {
	if err := comm.CheckPeer(c, src); err != nil {
		return nil, err
	}
	data, _ := c.o.MrecvBytes(src, tag)
	return data, nil
}

func (c *Conn) Barrier() error {
	c.o.Barrier()
	return nil
}

// Abort calls MPI_Abort, which terminates every rank of the world.
func (c *Conn) Abort(err error) {
	c.log.LogError("Aborting MPI world: %s", err)
	c.o.Abort(1)
}

// Close finalises MPI. No transport can be opened afterwards.
func (c *Conn) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.done {
		c.done = true
		mpi.Stop()
	}
	return nil
}
