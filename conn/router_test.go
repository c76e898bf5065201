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
	"net"
	"testing"
	"time"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestConnection builds a Connection whose owner-goroutine-only state is
// set up by hand (no run() goroutine), wired to one end of a net.Pipe so C6
// writes (paging continuation) have somewhere to go. The caller must drain
// the returned peer, or writes on it will block.
func newTestConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	peer, local := net.Pipe()
	cfg := Config{MaxInFlight: 16}.withDefaults()
	c := New(cfg)
	c.netConn = local
	c.codec = frame.NewRawCodecWithCompression(nil)
	c.setState(StateReady)
	t.Cleanup(func() {
		_ = local.Close()
		_ = peer.Close()
	})
	return c, peer
}

// drainPeer reads and discards whatever the connection under test writes, so
// dispatchSend's blocking net.Pipe write never stalls the test.
func drainPeer(peer net.Conn) {
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := peer.Read(buf); err != nil {
				return
			}
		}
	}()
}

type capturingWaiter struct {
	reply Reply
	err   error
	got   chan struct{}
}

func newCapturingWaiter() *capturingWaiter {
	return &capturingWaiter{got: make(chan struct{}, 1)}
}

func (w *capturingWaiter) deliver(reply Reply, err error) {
	w.reply = reply
	w.err = err
	select {
	case w.got <- struct{}{}:
	default:
	}
}

func TestHandleIncoming_EventWithNoSinkIsDroppedWithoutTouchingWaiters(t *testing.T) {
	c, peer := newTestConnection(t)
	drainPeer(peer)

	id := c.streams.allocate()
	w := newCapturingWaiter()
	c.streams.insert(id, nil, w)

	f := frame.NewFrame(primitive.ProtocolVersion4, EventStreamId, &message.Ready{})
	disconnect := c.handleIncoming(f)

	assert.False(t, disconnect)
	assert.True(t, c.streams.occupied(id), "event delivery must not touch pending waiters")
}

func TestHandleIncoming_UnknownUserStreamIsProtocolViolation(t *testing.T) {
	c, peer := newTestConnection(t)
	drainPeer(peer)

	f := frame.NewFrame(primitive.ProtocolVersion4, 42, &message.VoidResult{})
	disconnect := c.handleIncoming(f)
	assert.True(t, disconnect)
}

func TestHandleIncoming_ReservedStreamOneNeverCorrelatesToWaiter(t *testing.T) {
	c, peer := newTestConnection(t)
	drainPeer(peer)

	f := frame.NewFrame(primitive.ProtocolVersion4, LoggedStreamId, &message.VoidResult{})
	disconnect := c.handleIncoming(f)
	assert.False(t, disconnect)
}

func TestDispatchResult_Variants(t *testing.T) {
	c, peer := newTestConnection(t)
	drainPeer(peer)

	cases := []struct {
		name string
		body message.Message
		want Reply
	}{
		{"ready", &message.Ready{}, Reply{Ready: true}},
		{"void", &message.VoidResult{}, Reply{Done: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id := c.streams.allocate()
			w := newCapturingWaiter()
			c.streams.insert(id, frame.NewFrame(primitive.ProtocolVersion4, id, &message.Query{Query: "select 1"}), w)

			disconnect := c.routeUserStream(frame.NewFrame(primitive.ProtocolVersion4, id, tc.body))
			require.False(t, disconnect)
			assert.Equal(t, tc.want, w.reply)
			assert.NoError(t, w.err)
		})
	}
}

func TestDispatchResult_ServerErrorIsWrapped(t *testing.T) {
	c, peer := newTestConnection(t)
	drainPeer(peer)

	id := c.streams.allocate()
	w := newCapturingWaiter()
	c.streams.insert(id, nil, w)

	errBody := &message.ServerError{ErrorMessage: "boom"}
	disconnect := c.routeUserStream(frame.NewFrame(primitive.ProtocolVersion4, id, errBody))

	require.False(t, disconnect)
	var serverErr *ServerError
	require.ErrorAs(t, w.err, &serverErr)
	assert.Equal(t, "boom", serverErr.Message)
	assert.Equal(t, primitive.ErrorCodeServerError, serverErr.Code)
}

func TestDispatchRows_NoContinuationTokenRepliesOnce(t *testing.T) {
	c, peer := newTestConnection(t)
	drainPeer(peer)

	id := c.streams.allocate()
	w := newCapturingWaiter()
	c.streams.insert(id, nil, w)

	rows := &message.RowsResult{
		Metadata: &message.RowsMetadata{},
		Data:     message.RowSet{{[]byte("1")}},
	}
	disconnect := c.routeUserStream(frame.NewFrame(primitive.ProtocolVersion4, id, rows))

	require.False(t, disconnect)
	require.Same(t, rows, w.reply.Value)
}

func TestDispatchRows_ContinuationTokenHandsCallerASink(t *testing.T) {
	c, peer := newTestConnection(t)
	drainPeer(peer)

	id := c.streams.allocate()
	w := newCapturingWaiter()
	original := frame.NewFrame(primitive.ProtocolVersion4, id, &message.Query{
		Query:   "select * from t",
		Options: &message.QueryOptions{},
	})
	c.streams.insert(id, original, w)

	rows := &message.RowsResult{
		Metadata: &message.RowsMetadata{PagingState: []byte("token-1")},
		Data:     message.RowSet{{[]byte("a")}, {[]byte("b")}},
	}
	disconnect := c.routeUserStream(frame.NewFrame(primitive.ProtocolVersion4, id, rows))
	require.False(t, disconnect)

	sink, ok := w.reply.Value.(*RowsSink)
	require.True(t, ok, "expected the waiter to receive a *RowsSink")

	// continuePaging re-dispatched a cloned Query with the continuation
	// token through dispatchSend, consuming a fresh stream id and parking a
	// *pagingWaiter targeting the same sink.
	require.Eventually(t, func() bool {
		return !c.streams.empty()
	}, time.Second, time.Millisecond)

	var pageRows []message.Row
	timeout := time.After(time.Second)
	for i := 0; i < 2; i++ {
		select {
		case row := <-sink.Rows():
			pageRows = append(pageRows, row)
		case <-timeout:
			t.Fatal("timed out waiting for first page's rows")
		}
	}
	assert.Len(t, pageRows, 2)

	// Now complete the continuation with a final, token-less page.
	for _, slot := range c.streams.drain() {
		finalRows := &message.RowsResult{
			Metadata: &message.RowsMetadata{},
			Data:     message.RowSet{{[]byte("c")}},
		}
		c.dispatchResult(slot, frame.NewFrame(primitive.ProtocolVersion4, slot.id, finalRows))
	}

	select {
	case row := <-sink.Rows():
		pageRows = append(pageRows, row)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second page's row")
	}
	<-sink.Done()
	assert.NoError(t, sink.Err())
	assert.Len(t, pageRows, 3)
}
