package tipc

import (
	"errors"
	"net"
	"time"

	"github.com/RylanYancey/game-of-life-mpi/comm"
)

// ConnectTimeout bounds how long a rank waits for the others to come up.
var ConnectTimeout = 30 * time.Second

func init() {
	comm.Register("tipc", open)
}

func open(opts comm.Options) (comm.Transport, error) {
	if len(opts.Addrs) == 0 {
		return nil, errors.New("tipc: no rank addresses")
	}
	if opts.Rank < 0 || opts.Rank >= len(opts.Addrs) {
		return nil, comm.RankError(opts.Rank)
	}
	_, port, err := net.SplitHostPort(opts.Addrs[opts.Rank])
	if err != nil {
		return nil, err
	}
	ipc, err := Listen(opts.Rank, len(opts.Addrs), ":"+port, opts.Log)
	if err != nil {
		return nil, err
	}
	if opts.VecLog != "" {
		ipc.EnableVecLog(opts.VecLog)
	}
	if err := ipc.Connect(opts.Addrs, ConnectTimeout); err != nil {
		ipc.Close()
		return nil, err
	}
	return ipc, nil
}
