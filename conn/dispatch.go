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
	"bytes"
	"fmt"
	"time"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/rs/zerolog/log"
)

// sendRequest is the message submitted to the owner goroutine's run loop,
// either from an external caller (Send, SendAsync, SendRaw, SendRawAsync) or
// re-dispatched internally by the router while draining a paged result.
// Exactly one of message or raw is set: message takes the structured
// encode(request, id) path, raw takes the already-encoded
// set_stream_id(bytes, id) path described by SPEC_FULL §4.6 step 3.
type sendRequest struct {
	message message.Message
	raw     *RawRequest
	waiter  waiter
}

// dispatchSend is C6. It must only ever run on the owner goroutine.
func (c *Connection) dispatchSend(req sendRequest) {
	if c.state != StateReady {
		req.waiter.deliver(Reply{}, ErrNotConnected)
		return
	}

	id := c.streams.allocate()
	if c.streams.occupied(id) {
		// Faithful default per §4.2: surface invalid rather than evict or
		// search forward for a free id.
		log.Error().Msgf("%v: stream id collision on allocation: %d", c, id)
		req.waiter.deliver(Reply{}, ErrInvalid)
		return
	}

	var encoded []byte
	var storedFrame *frame.Frame
	if req.raw != nil {
		patched, err := setStreamID(req.raw.Encoded, id, c.cfg.ProtocolVersion)
		if err != nil {
			// Failure to patch the stream id never advances lastStreamId or
			// stores a slot, same as a structured encode failure.
			req.waiter.deliver(Reply{}, fmt.Errorf("%w: %v", ErrInvalid, err))
			return
		}
		encoded = patched
		// storedFrame stays nil: a pre-encoded request has no structured
		// body to clone a paging continuation from or hash for a prepared
		// notification (see router.go's nil checks).
	} else {
		f := frame.NewFrame(c.cfg.ProtocolVersion, id, req.message)
		buf := &bytes.Buffer{}
		if err := c.codec.EncodeFrame(f, buf); err != nil {
			// Encoding failure never advances lastStreamId or stores a slot.
			req.waiter.deliver(Reply{}, fmt.Errorf("%w: %v", ErrInvalid, err))
			return
		}
		encoded = buf.Bytes()
		storedFrame = f
	}

	if err := c.writeFrame(encoded); err != nil {
		if isTimeoutErr(err) {
			req.waiter.deliver(Reply{}, ErrSendTimeout)
		} else {
			req.waiter.deliver(Reply{}, fmt.Errorf("cqlconn: %v", err))
		}
		c.onSocketFailure(err)
		return
	}

	c.streams.insert(id, storedFrame, req.waiter)
}

// writeFrame writes already-encoded bytes to the socket under the
// connection's send deadline.
func (c *Connection) writeFrame(encoded []byte) error {
	if c.cfg.ConnectTimeout > 0 {
		_ = c.netConn.SetWriteDeadline(time.Now().Add(c.sendTimeout()))
	}
	_, err := c.netConn.Write(encoded)
	return err
}

func (c *Connection) sendTimeout() time.Duration {
	if c.cfg.ResponseTimeout > 0 {
		return c.cfg.ResponseTimeout
	}
	return 30 * time.Second
}

func isTimeoutErr(err error) bool {
	type timeout interface{ Timeout() bool }
	if t, ok := err.(timeout); ok {
		return t.Timeout()
	}
	return false
}
