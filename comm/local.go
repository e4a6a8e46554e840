/*
Package comm defines the message passing substrate used by the ranks.

This file contains the in-memory world. Every rank is a goroutine of the same
binary and messages travel over buffered channels, one mailbox per
(source, tag) at each destination.
*/
package comm

import "sync"

// how many messages a mailbox buffers before Send blocks
const mailboxDepth = 16

type mailboxKey struct {
	src, tag int
}

// World is a set of in-memory transports that can talk to each other.
type World struct {
	ranks []*Local

	abortOnce sync.Once
	abortCh   chan struct{}
	abortErr  error

	barMutex sync.Mutex
	barCount int
	release  chan struct{}
}

// Local is the in-memory transport of one rank of a World.
type Local struct {
	world     *World
	rank      int
	mutex     sync.Mutex
	boxes     map[mailboxKey]chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

// NewWorld creates an in-memory world of size ranks.
func NewWorld(size int) *World {
	w := &World{
		ranks:   make([]*Local, size),
		abortCh: make(chan struct{}),
		release: make(chan struct{}),
	}
	for i := range w.ranks {
		w.ranks[i] = &Local{
			world:  w,
			rank:   i,
			boxes:  make(map[mailboxKey]chan []byte),
			closed: make(chan struct{}),
		}
	}
	return w
}

// Rank returns the transport of rank i.
func (w *World) Rank(i int) *Local {
	return w.ranks[i]
}

// Transports returns the transports of every rank, indexed by rank.
func (w *World) Transports() []Transport {
	trs := make([]Transport, len(w.ranks))
	for i, l := range w.ranks {
		trs[i] = l
	}
	return trs
}

// Abort fails every blocked and future operation in the world.
func (w *World) Abort(err error) {
	w.abortOnce.Do(func() {
		w.abortErr = err
		close(w.abortCh)
	})
}

// Err returns the error the world was aborted with, nil if it was not.
func (w *World) Err() error {
	select {
	case <-w.abortCh:
		return w.abortErr
	default:
		return nil
	}
}

func (l *Local) mailbox(src, tag int) chan []byte {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	key := mailboxKey{src, tag}
	box, ok := l.boxes[key]
	if !ok {
		box = make(chan []byte, mailboxDepth)
		l.boxes[key] = box
	}
	return box
}

func (l *Local) Rank() int {
	return l.rank
}

func (l *Local) Size() int {
	return len(l.world.ranks)
}

func (l *Local) Send(dest, tag int, data []byte) error {
	if err := CheckPeer(l, dest); err != nil {
		return err
	}
	peer := l.world.ranks[dest]
	box := peer.mailbox(l.rank, tag)
	msg := append([]byte(nil), data...)
	select {
	case box <- msg:
		return nil
	case <-l.world.abortCh:
		return ErrAborted
	case <-l.closed:
		return ErrClosed
	case <-peer.closed:
		return ErrClosed
	}
}

func (l *Local) Recv(src, tag int) ([]byte, error) {
	if err := CheckPeer(l, src); err != nil {
		return nil, err
	}
	box := l.mailbox(src, tag)
	select {
	case msg := <-box:
		return msg, nil
	case <-l.world.abortCh:
		return nil, ErrAborted
	case <-l.closed:
		return nil, ErrClosed
	}
}

func (l *Local) Barrier() error {
	w := l.world
	w.barMutex.Lock()
	ch := w.release
	w.barCount++
	if w.barCount == len(w.ranks) {
		w.barCount = 0
		w.release = make(chan struct{})
		close(ch)
		w.barMutex.Unlock()
		return nil
	}
	w.barMutex.Unlock()

	select {
	case <-ch:
		return nil
	case <-w.abortCh:
		return ErrAborted
	case <-l.closed:
		return ErrClosed
	}
}

// Abort aborts the whole world.
func (l *Local) Abort(err error) {
	l.world.Abort(err)
}

func (l *Local) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
	return nil
}
