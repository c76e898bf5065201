// Copyright 2026 The CQL Connection Core Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conn

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/rs/zerolog/log"
)

// Connection is the single-host connection core: C5 (state machine), C6
// (dispatcher) and C7 (router) are all driven from its owner goroutine; C8
// (the public facade) is the set of exported methods below.
//
// All fields below the "Owner-goroutine-only" marker are touched only by the
// owner goroutine (run), apart from stateVal's atomic reads. External goroutines interact exclusively through submissions,
// stopCh and the atomic state snapshot.
type Connection struct {
	cfg Config

	submissions chan sendRequest
	incomingCh  chan incomingMsg
	ioErrCh     chan ioErrorMsg
	stopCh      chan struct{}
	stoppedCh   chan struct{}
	stopOnce    sync.Once

	initDone     chan struct{}
	initDoneOnce sync.Once
	initErr      error

	correlationSeq int64

	// Owner-goroutine-only state from here down.
	state          State
	stateVal       atomic.Value
	netConn        net.Conn
	codec          frame.RawCodec
	streams        *streamTable
	generation     int
	reconnectTimer *time.Timer
}

type incomingMsg struct {
	gen   int
	frame *frame.Frame
}

type ioErrorMsg struct {
	gen int
	err error
}

// New constructs a Connection in the Init state. Call Connect to dial and
// run it, or use New directly in tests that drive the owner loop manually.
func New(cfg Config) *Connection {
	cfg = cfg.withDefaults()
	c := &Connection{
		cfg:         cfg,
		submissions: make(chan sendRequest, cfg.MaxInFlight),
		incomingCh:  make(chan incomingMsg, cfg.MaxInFlight),
		ioErrCh:     make(chan ioErrorMsg, 4),
		stopCh:      make(chan struct{}),
		stoppedCh:   make(chan struct{}),
		initDone:    make(chan struct{}),
		streams:     newStreamTable(),
	}
	c.setState(StateInit)
	return c
}

// Connect builds a Connection and starts its owner goroutine. With
// AsyncInit=false it blocks until the handshake resolves, returning the
// handshake error (if any) to the caller, matching the Init ->
// Ready-or-fail transition. With AsyncInit=true it returns immediately in
// the Connecting state; use WaitReady to block on the first attempt.
func Connect(cfg Config) (*Connection, error) {
	c := New(cfg)
	go c.run()
	if !c.cfg.AsyncInit {
		<-c.initDone
		if c.initErr != nil {
			return nil, c.initErr
		}
	}
	return c, nil
}

// WaitReady blocks until the connection's first connect attempt has
// resolved (successfully or not), or ctx is done.
func (c *Connection) WaitReady(ctx context.Context) error {
	select {
	case <-c.initDone:
		return c.initErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) String() string {
	return fmt.Sprintf("cql connection [%v:%v]", c.cfg.Host, c.cfg.Port)
}

// State returns a snapshot of the connection's lifecycle state. Safe to
// call from any goroutine.
func (c *Connection) State() State {
	if v := c.stateVal.Load(); v != nil {
		return v.(State)
	}
	return StateInit
}

func (c *Connection) setState(s State) {
	c.state = s
	c.stateVal.Store(s)
	log.Debug().Msgf("%v: state -> %v", c, s)
}

// ---- C8: public API facade ----------------------------------------------

// Send blocks the caller until a single reply is delivered or ctx is done,
// or the connection's configured response timeout elapses (0 means
// unbounded). A call-level timeout never frees the request's stream slot;
// if the response eventually arrives, it is routed and discarded (§9).
func (c *Connection) Send(ctx context.Context, msg message.Message) (Reply, error) {
	return c.send(ctx, sendRequest{message: msg})
}

// SendRaw behaves exactly like Send, except raw is an already wire-encoded
// request (codec set_stream_id path) instead of a structured message.Message
// (codec encode path). Use it when the caller has its own pre-built frame
// bytes, e.g. a replayed or cached request; the dispatcher rewrites raw's
// stream id in place rather than re-encoding it.
func (c *Connection) SendRaw(ctx context.Context, raw *RawRequest) (Reply, error) {
	return c.send(ctx, sendRequest{raw: raw})
}

// send is the shared blocking-submission path for Send and SendRaw; only
// the waiter it installs and the request variant it carries differ between
// the two.
func (c *Connection) send(ctx context.Context, req sendRequest) (Reply, error) {
	w := newSyncWaiter()
	req.waiter = w
	select {
	case c.submissions <- req:
	case <-c.stoppedCh:
		return Reply{}, ErrClosed
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
	var timeoutC <-chan time.Time
	if c.cfg.ResponseTimeout > 0 {
		timer := time.NewTimer(c.cfg.ResponseTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}
	select {
	case r := <-w.ch:
		return r.reply, r.err
	case <-timeoutC:
		return Reply{}, ErrCallTimeout
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// SendAsync submits msg and returns immediately with a fresh correlation
// token; the eventual result is delivered to sink, tagged with that token.
// SendAsync never blocks: if the submission queue is full it reports that
// failure back to sink instead of enqueuing.
func (c *Connection) SendAsync(msg message.Message, sink AsyncSink) string {
	return c.sendAsync(sendRequest{message: msg}, sink)
}

// SendRawAsync behaves exactly like SendAsync, but for an already
// wire-encoded request; see SendRaw.
func (c *Connection) SendRawAsync(raw *RawRequest, sink AsyncSink) string {
	return c.sendAsync(sendRequest{raw: raw}, sink)
}

func (c *Connection) sendAsync(req sendRequest, sink AsyncSink) string {
	correlation := strconv.FormatInt(atomic.AddInt64(&c.correlationSeq, 1), 10)
	req.waiter = &asyncWaiter{correlation: correlation, sink: sink}
	select {
	case c.submissions <- req:
	default:
		sink.Deliver(correlation, Reply{}, fmt.Errorf("cqlconn: submission queue full"))
	}
	return correlation
}

// Stop performs an orderly shutdown: every pending waiter is woken with
// ErrClosed, the session sink (if any) is notified, and the socket is
// closed. Stop blocks until shutdown has completed.
func (c *Connection) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.stoppedCh
}

// ---- owner goroutine -----------------------------------------------------

func (c *Connection) run() {
	defer close(c.stoppedCh)
	if !c.bootstrap() {
		return
	}
	for {
		var timerC <-chan time.Time
		if c.reconnectTimer != nil {
			timerC = c.reconnectTimer.C
		}
		select {
		case <-c.stopCh:
			c.shutdown()
			return
		case req := <-c.submissions:
			c.dispatchSend(req)
		case im := <-c.incomingCh:
			if im.gen != c.generation {
				continue // stale message from a socket we've already torn down
			}
			if c.handleIncoming(im.frame) {
				c.onSocketFailure(fmt.Errorf("cqlconn: protocol violation: response for unknown stream id"))
			}
		case em := <-c.ioErrCh:
			if em.gen != c.generation {
				continue
			}
			c.onSocketFailure(em.err)
		case <-timerC:
			c.reconnectTimer = nil
			c.setState(StateConnecting)
			c.attemptConnect()
		}
		if c.state == StateTerminated {
			return
		}
	}
}

// bootstrap runs the Init state's transition and reports its outcome on
// initDone exactly once.
func (c *Connection) bootstrap() bool {
	defer c.initDoneOnce.Do(func() { close(c.initDone) })
	c.setState(StateConnecting)
	if !c.cfg.AsyncInit {
		if err := c.connectOnce(); err != nil {
			c.initErr = err
			c.setState(StateTerminated)
			return false
		}
		c.cfg.Reconnect.Reset()
		c.setState(StateReady)
		c.notifyOpened()
		return true
	}
	c.attemptConnect()
	if c.state == StateTerminated {
		c.initErr = ErrMaxAttempts
		return false
	}
	return true
}

// attemptConnect runs one C4 handshake attempt and applies C3 on failure.
// Used both for the first asynchronous attempt and for every
// reconnect-timer-triggered retry.
func (c *Connection) attemptConnect() {
	if err := c.connectOnce(); err != nil {
		log.Error().Err(err).Msgf("%v: connect attempt failed", c)
		backoffDuration, ok := c.cfg.Reconnect.Next()
		if !ok {
			c.setState(StateTerminated)
			return
		}
		c.setState(StateReconnecting)
		c.reconnectTimer = time.NewTimer(backoffDuration)
		return
	}
	c.cfg.Reconnect.Reset()
	c.setState(StateReady)
	c.notifyOpened()
}

// onSocketFailure implements the Ready -> Disconnected -> Reconnecting
// transition: close the socket, wake every waiter with ErrClosed, notify
// the session, then consult C3.
func (c *Connection) onSocketFailure(err error) {
	if c.state == StateTerminated {
		return
	}
	log.Error().Err(err).Msgf("%v: socket failure, disconnecting", c)
	c.setState(StateDisconnected)
	c.closeSocket()
	for _, slot := range c.streams.drain() {
		slot.waiter.deliver(Reply{}, ErrClosed)
	}
	c.notifyClosed()
	backoffDuration, ok := c.cfg.Reconnect.Next()
	if !ok {
		c.setState(StateTerminated)
		return
	}
	c.setState(StateReconnecting)
	c.reconnectTimer = time.NewTimer(backoffDuration)
}

// shutdown implements the explicit-stop transition to Terminated.
func (c *Connection) shutdown() {
	c.setState(StateTerminated)
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.closeSocket()
	for _, slot := range c.streams.drain() {
		slot.waiter.deliver(Reply{}, ErrClosed)
	}
	c.notifyStopped()
}

func (c *Connection) notifyOpened() {
	if c.cfg.Session != nil && c.cfg.HostID != "" {
		c.cfg.Session.ConnectionOpened(c.cfg.HostID)
	}
}

func (c *Connection) notifyClosed() {
	if c.cfg.Session != nil && c.cfg.HostID != "" {
		c.cfg.Session.ConnectionClosed(c.cfg.HostID)
	}
}

func (c *Connection) notifyStopped() {
	if c.cfg.Session != nil && c.cfg.HostID != "" {
		c.cfg.Session.ConnectionStopped(c.cfg.HostID)
	}
}

func (c *Connection) closeSocket() {
	c.generation++ // invalidate any in-flight messages from the old reader
	if c.netConn != nil {
		_ = c.netConn.Close()
		c.netConn = nil
	}
}

// connectOnce dials a fresh socket, runs the blocking handshake (C4), and on
// success starts the reader goroutine and resets the stream table for the
// new socket generation.
func (c *Connection) connectOnce() error {
	dialer := net.Dialer{}
	dialCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout)
	defer cancel()
	address := net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
	netConn, err := dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return fmt.Errorf("cqlconn: dial %v: %w", address, err)
	}
	codec := frame.NewRawCodecWithCompression(nil)
	if err := performHandshake(netConn, c.cfg.ProtocolVersion, codec, c.cfg.Keyspace, c.cfg.ConnectTimeout); err != nil {
		_ = netConn.Close()
		return err
	}
	c.netConn = netConn
	c.codec = codec
	c.generation++
	c.streams = newStreamTable()
	c.startReader(c.generation)
	return nil
}

// startReader spawns the goroutine that reads raw bytes off netConn,
// accumulates them in a framingBuffer (C1), and pushes whole frames to the
// owner loop. gen identifies the socket this reader belongs to so the owner
// can discard messages from a socket it has already torn down.
func (c *Connection) startReader(gen int) {
	netConn := c.netConn
	buffer := newFramingBuffer(c.cfg.ProtocolVersion, c.codec)
	go func() {
		chunk := make([]byte, 4096)
		for {
			n, readErr := netConn.Read(chunk)
			if n > 0 {
				buffer.append(chunk[:n])
				drainErr := buffer.drainFrames(func(f *frame.Frame) bool {
					select {
					case c.incomingCh <- incomingMsg{gen: gen, frame: f}:
						return true
					case <-c.stopCh:
						return false
					}
				})
				if drainErr != nil {
					c.reportIOError(gen, fmt.Errorf("cqlconn: decoding inbound frame: %w", drainErr))
					return
				}
			}
			if readErr != nil {
				c.reportIOError(gen, fmt.Errorf("cqlconn: reading socket: %w", readErr))
				return
			}
		}
	}()
}

func (c *Connection) reportIOError(gen int, err error) {
	select {
	case c.ioErrCh <- ioErrorMsg{gen: gen, err: err}:
	case <-c.stopCh:
	}
}
