/*
Package tipc implements the TCP transport between ranks.

This file contains the connection handling. Each rank listens on its own
address and dials every other rank, so every ordered pair of ranks has one
connection that carries messages in one direction. Messages are framed as a
4 byte length followed by a kind byte and the encoded Frame. A single
receive task per accepted connection keeps messages from one rank in order.
*/
package tipc

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/DistributedClocks/GoVector/govec"

	"github.com/RylanYancey/game-of-life-mpi/comm"
	"github.com/RylanYancey/game-of-life-mpi/hlog"
)

// List of message kinds sent between ranks
const (
	HELLO   = 1  /* Dialer 		  ->	Listener (first frame on a conn) */
	DATA    = 10 /* Sender 		  ->	Receiver 			 */
	BARRREQ = 40 /* Barrier Client   ->	Barrier Manager 	 */
	BARRRSP = 41 /* Barrier Manager  ->	Barrier Client 		 */
	ABORT   = 60 /* Failing rank 	  ->	Every rank 			 */
)

var msgName = map[uint8]string{
	HELLO: "HELLO", DATA: "DATA", BARRREQ: "BARRREQ", BARRRSP: "BARRRSP", ABORT: "ABORT",
}

// the barrier manager is always rank 0
const barrierManager = 0

// largest frame accepted from a peer
const maxFrame = 64 << 20

// how many messages a mailbox buffers before the receive task blocks
const mailboxDepth = 16

// Frame is the body of every message.
type Frame struct {
	Src    int
	Dst    int
	Tag    int
	Data   []byte
	Reason string
}

type boxKey struct {
	src, tag int
}

type peer struct {
	rank  int
	addr  string
	conn  net.Conn
	mutex sync.Mutex // serialises writes on conn
}

// IpcConn is the TCP transport of one rank.
type IpcConn struct {
	rank     int
	size     int
	listener *net.TCPListener
	peers    []*peer
	log      *hlog.Logger

	boxMutex sync.Mutex
	boxes    map[boxKey]chan []byte

	barMutex   sync.Mutex
	barrierCnt int
	barrierRsp chan struct{}

	connMutex sync.Mutex
	accepted  []net.Conn

	vecMutex sync.Mutex
	vecLog   *govec.GoLog

	abortOnce sync.Once
	abortCh   chan struct{}
	abortErr  error

	closeOnce sync.Once
	closed    chan struct{}
}

// Listen creates the transport of rank in a world of size ranks, listening
// on addr. Peers are dialed later with Connect.
func Listen(rank, size int, addr string, log *hlog.Logger) (*IpcConn, error) {
	if rank < 0 || rank >= size {
		return nil, comm.RankError(rank)
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.LogError("Error opening listener %s: %s", addr, err)
		return nil, err
	}

	ipc := &IpcConn{
		rank:       rank,
		size:       size,
		listener:   listener.(*net.TCPListener),
		peers:      make([]*peer, size),
		log:        log,
		boxes:      make(map[boxKey]chan []byte),
		barrierRsp: make(chan struct{}, 1),
		abortCh:    make(chan struct{}),
		closed:     make(chan struct{}),
	}
	go ipc.listenTask()
	return ipc, nil
}

// Addr returns the address the rank listens on.
func (ipc *IpcConn) Addr() string {
	return ipc.listener.Addr().String()
}

// EnableVecLog records every frame in a GoVector log named prefix+rank.
// Every rank of the world must enable it, since it changes the encoding.
func (ipc *IpcConn) EnableVecLog(prefix string) {
	process := prefix + strconv.Itoa(ipc.rank)
	ipc.vecLog = govec.InitGoVector(process, process, govec.GetDefaultConfig())
}

// Connect dials every other rank, retrying until timeout runs out.
func (ipc *IpcConn) Connect(addrs []string, timeout time.Duration) error {
	if len(addrs) != ipc.size {
		return fmt.Errorf("tipc: %d addresses for a world of %d", len(addrs), ipc.size)
	}
	deadline := time.Now().Add(timeout)
	for id, addr := range addrs {
		if id == ipc.rank {
			continue
		}
		conn, err := net.DialTimeout("tcp", addr, time.Second*5)
		for err != nil {
			if time.Now().After(deadline) {
				return fmt.Errorf("tipc: dial rank %d at %s: %w", id, addr, err)
			}
			time.Sleep(100 * time.Millisecond)
			conn, err = net.DialTimeout("tcp", addr, time.Second*5)
		}
		p := &peer{rank: id, addr: addr, conn: conn}
		if err := ipc.writeFrame(p, HELLO, Frame{Src: ipc.rank, Dst: id}); err != nil {
			conn.Close()
			return fmt.Errorf("tipc: hello to rank %d: %w", id, err)
		}
		ipc.peers[id] = p
		ipc.log.LogDebug("Connected to rank %d at %s", id, addr)
	}
	return nil
}

func (ipc *IpcConn) Rank() int {
	return ipc.rank
}

func (ipc *IpcConn) Size() int {
	return ipc.size
}

func (ipc *IpcConn) Send(dest, tag int, data []byte) error {
	if err := comm.CheckPeer(ipc, dest); err != nil {
		return err
	}
	f := Frame{Src: ipc.rank, Dst: dest, Tag: tag, Data: append([]byte(nil), data...)}
	return ipc.send(DATA, f)
}

func (ipc *IpcConn) Recv(src, tag int) ([]byte, error) {
	if err := comm.CheckPeer(ipc, src); err != nil {
		return nil, err
	}
	box := ipc.mailbox(src, tag)
	select {
	case msg := <-box:
		return msg, nil
	case <-ipc.abortCh:
		return nil, comm.ErrAborted
	case <-ipc.closed:
		return nil, comm.ErrClosed
	}
}

// Barrier sends a request to the barrier manager and blocks until the
// manager has heard from every rank.
func (ipc *IpcConn) Barrier() error {
	if err := ipc.send(BARRREQ, Frame{Src: ipc.rank, Dst: barrierManager}); err != nil {
		return err
	}
	select {
	case <-ipc.barrierRsp:
		return nil
	case <-ipc.abortCh:
		return comm.ErrAborted
	case <-ipc.closed:
		return comm.ErrClosed
	}
}

// Abort tells every rank that the run failed and fails local operations.
func (ipc *IpcConn) Abort(err error) {
	for id := range ipc.peers {
		if id == ipc.rank {
			continue
		}
		ipc.send(ABORT, Frame{Src: ipc.rank, Dst: id, Reason: err.Error()})
	}
	ipc.abort(err)
}

// Err returns the error the world was aborted with, nil if it was not.
func (ipc *IpcConn) Err() error {
	select {
	case <-ipc.abortCh:
		return ipc.abortErr
	default:
		return nil
	}
}

func (ipc *IpcConn) abort(err error) {
	ipc.abortOnce.Do(func() {
		ipc.abortErr = err
		close(ipc.abortCh)
	})
}

func (ipc *IpcConn) Close() error {
	ipc.closeOnce.Do(func() {
		close(ipc.closed)
		ipc.listener.Close()
		for _, p := range ipc.peers {
			if p != nil {
				p.conn.Close()
			}
		}
		ipc.connMutex.Lock()
		for _, conn := range ipc.accepted {
			conn.Close()
		}
		ipc.connMutex.Unlock()
	})
	return nil
}

func (ipc *IpcConn) isClosed() bool {
	select {
	case <-ipc.closed:
		return true
	default:
		return false
	}
}

func (ipc *IpcConn) mailbox(src, tag int) chan []byte {
	ipc.boxMutex.Lock()
	defer ipc.boxMutex.Unlock()
	key := boxKey{src, tag}
	box, ok := ipc.boxes[key]
	if !ok {
		box = make(chan []byte, mailboxDepth)
		ipc.boxes[key] = box
	}
	return box
}

// Route outgoing messages either to ourselves or the peer connection
func (ipc *IpcConn) send(kind uint8, f Frame) error {
	ipc.log.LogMsg("Send[%d]:Msg[%s] tag %d, %d bytes", f.Dst, msgName[kind], f.Tag, len(f.Data))
	if f.Dst == ipc.rank {
		ipc.dispatch(kind, f)
		return nil
	}
	p := ipc.peers[f.Dst]
	if p == nil {
		return fmt.Errorf("tipc: rank %d is not connected", f.Dst)
	}
	return ipc.writeFrame(p, kind, f)
}

// dispatch handles one message addressed to this rank
func (ipc *IpcConn) dispatch(kind uint8, f Frame) {
	switch kind {
	case DATA:
		box := ipc.mailbox(f.Src, f.Tag)
		select {
		case box <- f.Data:
		case <-ipc.closed:
		}
	case BARRREQ:
		ipc.handleBarrierRequest(f)
	case BARRRSP:
		select {
		case ipc.barrierRsp <- struct{}{}:
		case <-ipc.closed:
		}
	case ABORT:
		ipc.log.LogError("Rank %d aborted the run: %s", f.Src, f.Reason)
		ipc.abort(fmt.Errorf("tipc: rank %d aborted: %s", f.Src, f.Reason))
	default:
		ipc.log.LogError("Unknown message kind %d from rank %d", kind, f.Src)
	}
}

// handleBarrierRequest counts barrier requests on the manager. Once every
// rank has arrived the count is reset and every rank is released.
func (ipc *IpcConn) handleBarrierRequest(f Frame) {
	ipc.barMutex.Lock()
	defer ipc.barMutex.Unlock()

	ipc.barrierCnt++
	if ipc.barrierCnt < ipc.size {
		return
	}
	ipc.barrierCnt = 0
	for id := 0; id < ipc.size; id++ {
		if err := ipc.send(BARRRSP, Frame{Src: ipc.rank, Dst: id}); err != nil {
			ipc.log.LogError("Barrier response to %d failed: %s", id, err)
		}
	}
}

// Listen for incoming connections and setup connection
func (ipc *IpcConn) listenTask() {
	for {
		conn, err := ipc.listener.AcceptTCP()
		if err != nil {
			if !ipc.isClosed() {
				ipc.log.LogError("Error accepting TCP: %s", err)
			}
			return
		}
		ipc.connMutex.Lock()
		ipc.accepted = append(ipc.accepted, conn)
		ipc.connMutex.Unlock()
		go ipc.receiveTask(conn)
	}
}

// Read messages from connection and dispatch them in arrival order
func (ipc *IpcConn) receiveTask(conn net.Conn) {
	defer conn.Close()
	kind, hello, err := ipc.readFrame(conn)
	if err != nil || kind != HELLO {
		ipc.log.LogError("Invalid msg received when connecting: kind %d, %v", kind, err)
		return
	}
	src := hello.Src
	ipc.log.LogDebug("Accepted connection from rank %d", src)

	for {
		kind, f, err := ipc.readFrame(conn)
		if err != nil {
			if !ipc.isClosed() && !errors.Is(err, io.EOF) {
				ipc.log.LogError("Receive from rank %d failed: %s", src, err)
			}
			return
		}
		ipc.log.LogMsg("Recv[%d]:Msg[%s] tag %d, %d bytes", f.Src, msgName[kind], f.Tag, len(f.Data))
		ipc.dispatch(kind, f)
	}
}

func (ipc *IpcConn) encode(kind uint8, f Frame) ([]byte, error) {
	if ipc.vecLog != nil {
		ipc.vecMutex.Lock()
		defer ipc.vecMutex.Unlock()
		event := "Tx " + msgName[kind]
		return ipc.vecLog.PrepareSend(event, f, govec.GetDefaultLogOptions()), nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (ipc *IpcConn) decode(kind uint8, body []byte) (Frame, error) {
	var f Frame
	if ipc.vecLog != nil {
		ipc.vecMutex.Lock()
		defer ipc.vecMutex.Unlock()
		event := "Rx " + msgName[kind]
		ipc.vecLog.UnpackReceive(event, body, &f, govec.GetDefaultLogOptions())
		return f, nil
	}
	err := gob.NewDecoder(bytes.NewReader(body)).Decode(&f)
	return f, err
}

func (ipc *IpcConn) writeFrame(p *peer, kind uint8, f Frame) error {
	body, err := ipc.encode(kind, f)
	if err != nil {
		return err
	}
	msg := make([]byte, 5, 5+len(body))
	binary.BigEndian.PutUint32(msg, uint32(len(body)+1))
	msg[4] = kind
	msg = append(msg, body...)

	p.mutex.Lock()
	defer p.mutex.Unlock()
	_, err = p.conn.Write(msg)
	return err
}

func (ipc *IpcConn) readFrame(conn net.Conn) (uint8, Frame, error) {
	lbuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, lbuf); err != nil {
		return 0, Frame{}, err
	}
	ml := binary.BigEndian.Uint32(lbuf)
	if ml < 1 || ml > maxFrame {
		return 0, Frame{}, fmt.Errorf("tipc: invalid frame length %d", ml)
	}
	msg := make([]byte, ml)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return 0, Frame{}, err
	}
	f, err := ipc.decode(msg[0], msg[1:])
	return msg[0], f, err
}
