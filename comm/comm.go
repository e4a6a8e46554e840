/*
Package comm defines the message passing substrate used by the ranks.

A Transport gives a rank its identity in the world, reliable FIFO
point-to-point messages keyed by (peer, tag) and a collective barrier. On top
of it this package builds persistent requests: created once, armed every
generation and freed at shutdown. Implementations live in this package
(in-memory world), in tipc (TCP) and in cmpi (native MPI).
*/
package comm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/RylanYancey/game-of-life-mpi/hlog"
)

// Transport is the point-to-point and collective interface of one rank.
type Transport interface {
	// Rank returns the id of this process, 0 <= Rank() < Size().
	Rank() int

	// Size returns the number of processes in the world.
	Size() int

	// Send delivers a copy of data to dest under tag. Messages between the
	// same pair of ranks with the same tag arrive in order.
	Send(dest, tag int, data []byte) error

	// Recv blocks until a message from src with tag arrives.
	Recv(src, tag int) ([]byte, error)

	// Barrier blocks until every rank in the world has called Barrier.
	Barrier() error

	// Close releases the resources of this rank.
	Close() error
}

// Aborter is implemented by transports that can bring down every rank of
// the world after a fatal error.
type Aborter interface {
	Abort(err error)
}

// ErrAborted is returned by operations interrupted by an abort.
var ErrAborted = errors.New("comm: world aborted")

// ErrClosed is returned by operations on a closed transport.
var ErrClosed = errors.New("comm: transport closed")

// RankError contains a peer rank outside the world.
type RankError int

func (e RankError) Error() string {
	return fmt.Sprintf("Comm: Invalid peer rank [%d]", int(e))
}

// SizeError describes a received message whose length does not match the
// buffer of the request it completes.
type SizeError struct {
	Src, Tag  int
	Got, Want int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("Comm: message from %d tag %d has %d bytes, expected %d", e.Src, e.Tag, e.Got, e.Want)
}

// CheckPeer returns a RankError if peer is not a rank of t's world.
func CheckPeer(t Transport, peer int) error {
	if peer < 0 || peer >= t.Size() {
		return RankError(peer)
	}
	return nil
}

// Factory opens the transport of one rank from launch options.
type Factory func(opts Options) (Transport, error)

// Options are the launch options handed to a Factory. Implementations use
// what they need and ignore the rest.
type Options struct {
	Rank   int      // rank requested by the launcher, -1 if the runtime assigns it
	Size   int      // world size requested by the launcher
	Addrs  []string // listen address of every rank
	VecLog string   // prefix of the vector clock log, empty to disable
	Log    *hlog.Logger
}

var (
	regMutex  sync.Mutex
	factories = map[string]Factory{}
)

// Register makes a transport available under name. It panics if name is
// registered twice.
func Register(name string, f Factory) {
	regMutex.Lock()
	defer regMutex.Unlock()
	if _, ok := factories[name]; ok {
		panic("comm: transport " + name + " registered twice")
	}
	factories[name] = f
}

// Open opens the transport registered under name.
func Open(name string, opts Options) (Transport, error) {
	regMutex.Lock()
	f, ok := factories[name]
	regMutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("comm: unknown transport %q (have %v)", name, Registered())
	}
	return f(opts)
}

// Registered lists the registered transport names.
func Registered() []string {
	regMutex.Lock()
	defer regMutex.Unlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
