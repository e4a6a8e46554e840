/*
Package halo exchanges tile borders between neighbouring ranks.

One persistent channel is opened per active direction. A channel sends this
tile's border facing direction D to the neighbour in D, tagged D, and receives
that neighbour's border tagged Opposite(D), since the neighbour labels the
message with the direction in which it sees this rank.
*/
package halo

import (
	"errors"
	"fmt"

	"github.com/RylanYancey/game-of-life-mpi/comm"
	"github.com/RylanYancey/game-of-life-mpi/grid"
	"github.com/RylanYancey/game-of-life-mpi/hlog"
	"github.com/RylanYancey/game-of-life-mpi/tile"
)

// CommunicationError reports a failed channel setup or exchange in one
// direction. It is always fatal for the run.
type CommunicationError struct {
	Dir  grid.Direction
	Peer int
	Err  error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("Halo: exchange %s with rank %d failed: %s", e.Dir, e.Peer, e.Err)
}

func (e *CommunicationError) Unwrap() error {
	return e.Err
}

// Channel is the persistent association with the neighbour in one
// direction.
type Channel struct {
	Dir  grid.Direction
	Peer int
	send *comm.Request
	recv *comm.Request
}

// Exchanger drives the halo exchange of one rank.
type Exchanger struct {
	tr       comm.Transport
	topo     *grid.Topology
	store    *tile.Store
	log      *hlog.Logger
	channels [grid.NumDirections]*Channel
	open     bool
	armed    bool
}

// NewExchanger creates an exchanger for store. The store must have been
// created for topo's active directions.
func NewExchanger(tr comm.Transport, topo *grid.Topology, store *tile.Store, log *hlog.Logger) *Exchanger {
	return &Exchanger{tr: tr, topo: topo, store: store, log: log}
}

// Open creates one persistent channel per active direction.
func (x *Exchanger) Open() error {
	if x.open {
		return errors.New("halo: channels already open")
	}
	if x.store.Active() != x.topo.Active {
		return fmt.Errorf("halo: store directions %v do not match topology %v", x.store.Active(), x.topo.Active)
	}
	for _, d := range x.topo.Active.Directions() {
		peer, _ := x.topo.Neighbor(d)
		send, err := comm.SendInit(x.tr, x.store.Outgoing(d), peer, int(d))
		if err != nil {
			x.release()
			return &CommunicationError{Dir: d, Peer: peer, Err: err}
		}
		recv, err := comm.RecvInit(x.tr, x.store.Incoming(d), peer, int(d.Opposite()))
		if err != nil {
			x.release()
			return &CommunicationError{Dir: d, Peer: peer, Err: err}
		}
		x.channels[d] = &Channel{Dir: d, Peer: peer, send: send, recv: recv}
		x.log.LogDebug("Halo: channel %s <-> rank %d (send tag %d, recv tag %d)", d, peer, int(d), int(d.Opposite()))
	}
	x.open = true
	return nil
}

// Channels returns the open channels in direction order.
func (x *Exchanger) Channels() []*Channel {
	chans := make([]*Channel, 0, grid.NumDirections)
	for _, c := range x.channels {
		if c != nil {
			chans = append(chans, c)
		}
	}
	return chans
}

// Begin packs the outgoing halos and arms every send and receive. If arming
// fails partway the exchange stays in progress and Wait must still be called
// to collect the requests already started.
func (x *Exchanger) Begin() error {
	if !x.open {
		return errors.New("halo: exchange on closed channels")
	}
	if x.armed {
		return errors.New("halo: exchange already in progress")
	}
	x.store.PackOutgoing()
	x.armed = true
	for _, c := range x.Channels() {
		if err := c.send.Start(); err != nil {
			return &CommunicationError{Dir: c.Dir, Peer: c.Peer, Err: err}
		}
		if err := c.recv.Start(); err != nil {
			return &CommunicationError{Dir: c.Dir, Peer: c.Peer, Err: err}
		}
		x.log.LogMsg("Halo: armed %s with rank %d", c.Dir, c.Peer)
	}
	return nil
}

// Wait blocks until every armed send and receive of this exchange has
// completed. On success every incoming halo holds the neighbour's border.
// All requests are waited for even when one fails.
func (x *Exchanger) Wait() error {
	if !x.armed {
		return nil
	}
	var first error
	for _, c := range x.Channels() {
		if err := c.send.Wait(); err != nil && first == nil {
			first = &CommunicationError{Dir: c.Dir, Peer: c.Peer, Err: err}
		}
		if err := c.recv.Wait(); err != nil && first == nil {
			first = &CommunicationError{Dir: c.Dir, Peer: c.Peer, Err: err}
		}
	}
	x.armed = false
	return first
}

// Close frees every channel. It is called once at shutdown after the last
// exchange has completed.
func (x *Exchanger) Close() error {
	if !x.open {
		return nil
	}
	if x.armed {
		return errors.New("halo: close during exchange")
	}
	err := x.release()
	x.open = false
	return err
}

func (x *Exchanger) release() error {
	var first error
	for d, c := range x.channels {
		if c == nil {
			continue
		}
		if err := c.send.Free(); err != nil && first == nil {
			first = err
		}
		if err := c.recv.Free(); err != nil && first == nil {
			first = err
		}
		x.channels[d] = nil
	}
	return first
}
