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
	"errors"
	"fmt"

	"github.com/datastax/go-cassandra-native-protocol/primitive"
)

// The result alphabet a caller can observe from Send or an AsyncSink delivery.
// Exactly one of these is ever surfaced per submitted request.
var (
	// ErrClosed is returned to every pending waiter when the socket drops or the
	// connection is stopped.
	ErrClosed = errors.New("cqlconn: connection closed")

	// ErrNotConnected is returned immediately when a request is submitted while
	// no socket is open.
	ErrNotConnected = errors.New("cqlconn: not connected")

	// ErrInvalid is returned when the codec rejects a request, or when stream id
	// allocation collides with an occupied slot.
	ErrInvalid = errors.New("cqlconn: invalid request")

	// ErrSendTimeout is returned to the submitting waiter when writing the
	// encoded frame to the socket stalls past the connection's send deadline.
	// It is always followed by a disconnect.
	ErrSendTimeout = errors.New("cqlconn: send timeout")

	// ErrCallTimeout is returned by Send when the configured ResponseTimeout
	// elapses before a reply arrives (a ctx deadline instead yields ctx.Err()).
	// It never touches the stream table: the
	// slot is freed only when the connection eventually routes or discards the
	// late response (see ErrClosed) or the socket drops.
	ErrCallTimeout = errors.New("cqlconn: call timeout")

	// ErrHandshake is returned by Connect when the startup handshake does not
	// complete with a Ready frame.
	ErrHandshake = errors.New("cqlconn: handshake failed")

	// ErrKeyspace is returned by Connect when the configured keyspace could not
	// be bound after a successful handshake.
	ErrKeyspace = errors.New("cqlconn: keyspace bind failed")

	// ErrMaxAttempts is returned when the reconnection policy gives up.
	ErrMaxAttempts = errors.New("cqlconn: reconnection attempts exhausted")

	// ErrSinkAbandoned is reported by RowsSink.Err when a paging consumer
	// falls far enough behind to fill the sink's bounded page queue; the
	// connection stops pushing further pages rather than blocking the owner
	// goroutine behind an unread channel.
	ErrSinkAbandoned = errors.New("cqlconn: paging sink consumer too slow, abandoning result")
)

// ServerError wraps a CQL protocol error frame: {code, message}.
type ServerError struct {
	Code    primitive.ErrorCode
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("cqlconn: server error %v: %v", e.Code, e.Message)
}
