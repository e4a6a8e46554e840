/*
Package comm defines the message passing substrate used by the ranks.

This file contains persistent requests. A request is bound once to a buffer,
a peer and a tag. Start arms it for one transfer, Wait blocks until that
transfer is done. The transfer itself runs on its own goroutine so a rank can
arm all of its sends and receives before waiting on any of them.
*/
package comm

import (
	"errors"
	"fmt"
)

// Request is a persistent send or receive.
type Request struct {
	tr     Transport
	buf    []byte
	peer   int
	tag    int
	recv   bool
	active bool
	freed  bool
	done   chan error
}

// SendInit creates a persistent send of buf to dest under tag. The contents
// of buf are captured when the request is started.
func SendInit(tr Transport, buf []byte, dest, tag int) (*Request, error) {
	return newRequest(tr, buf, dest, tag, false)
}

// RecvInit creates a persistent receive from src under tag into buf. A
// message whose length differs from len(buf) fails the request with a
// SizeError.
func RecvInit(tr Transport, buf []byte, src, tag int) (*Request, error) {
	return newRequest(tr, buf, src, tag, true)
}

func newRequest(tr Transport, buf []byte, peer, tag int, recv bool) (*Request, error) {
	if tr == nil {
		return nil, errors.New("comm: nil transport")
	}
	if err := CheckPeer(tr, peer); err != nil {
		return nil, err
	}
	return &Request{
		tr:   tr,
		buf:  buf,
		peer: peer,
		tag:  tag,
		recv: recv,
		done: make(chan error, 1),
	}, nil
}

// Peer returns the rank the request talks to.
func (r *Request) Peer() int {
	return r.peer
}

// Tag returns the tag of the request.
func (r *Request) Tag() int {
	return r.tag
}

// Start arms the request for one transfer.
func (r *Request) Start() error {
	if r.freed {
		return fmt.Errorf("comm: start of freed request to %d tag %d", r.peer, r.tag)
	}
	if r.active {
		return fmt.Errorf("comm: request to %d tag %d already active", r.peer, r.tag)
	}
	r.active = true

	if !r.recv {
		data := append([]byte(nil), r.buf...)
		go func() {
			r.done <- r.tr.Send(r.peer, r.tag, data)
		}()
		return nil
	}

	go func() {
		data, err := r.tr.Recv(r.peer, r.tag)
		if err == nil && len(data) != len(r.buf) {
			err = &SizeError{Src: r.peer, Tag: r.tag, Got: len(data), Want: len(r.buf)}
		}
		if err == nil {
			copy(r.buf, data)
		}
		r.done <- err
	}()
	return nil
}

// Wait blocks until the armed transfer completes. Waiting on a request that
// is not active returns immediately.
func (r *Request) Wait() error {
	if !r.active {
		return nil
	}
	err := <-r.done
	r.active = false
	return err
}

// Free releases the request. An active request can not be freed.
func (r *Request) Free() error {
	if r.active {
		return fmt.Errorf("comm: free of active request to %d tag %d", r.peer, r.tag)
	}
	r.freed = true
	return nil
}

// StartAll starts every request, stopping at the first failure.
func StartAll(reqs []*Request) error {
	for _, r := range reqs {
		if err := r.Start(); err != nil {
			return err
		}
	}
	return nil
}

// WaitAll waits for every request, even after a failure, and returns the
// first error seen.
func WaitAll(reqs []*Request) error {
	var first error
	for _, r := range reqs {
		if err := r.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
