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
	"crypto/md5"
	"fmt"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/rs/zerolog/log"
)

// handleIncoming is C7. It returns true when the frame constitutes a
// protocol violation that must disconnect the connection; false otherwise.
// Only ever called on the owner goroutine.
func (c *Connection) handleIncoming(f *frame.Frame) (disconnect bool) {
	switch f.Header.StreamId {
	case EventStreamId:
		c.deliverEvent(f)
		return false
	case HandshakeStreamId:
		// Handshake leftover: accept silently.
		return false
	case LoggedStreamId:
		c.logReservedStream(f)
		return false
	default:
		return c.routeUserStream(f)
	}
}

func (c *Connection) deliverEvent(f *frame.Frame) {
	if c.cfg.Events == nil {
		log.Warn().Msgf("%v: server event received with no event sink configured, dropping: %v", c, f.Body.Message)
		return
	}
	c.cfg.Events.Notify(f)
}

func (c *Connection) logReservedStream(f *frame.Frame) {
	if errMsg, ok := f.Body.Message.(message.Error); ok {
		log.Error().Msgf("%v: reserved stream id 1 carried an error: %v", c, errMsg.GetErrorMessage())
	} else {
		log.Info().Msgf("%v: reserved stream id 1 carried: %T", c, f.Body.Message)
	}
}

// routeUserStream pops the slot for f's stream id and dispatches on the body
// variant. A response for a stream id with no slot is a protocol violation
// (§4.7) and disconnects the connection.
func (c *Connection) routeUserStream(f *frame.Frame) (disconnect bool) {
	slot, found := c.streams.release(f.Header.StreamId)
	if !found {
		log.Error().Msgf("%v: response for unknown stream id %d, disconnecting", c, f.Header.StreamId)
		return true
	}
	c.dispatchResult(slot, f)
	return false
}

func (c *Connection) dispatchResult(slot *streamSlot, f *frame.Frame) {
	switch body := f.Body.Message.(type) {
	case *message.RowsResult:
		c.dispatchRows(slot, body)
	case message.Error:
		slot.waiter.deliver(Reply{}, &ServerError{Code: body.GetErrorCode(), Message: body.GetErrorMessage()})
	case *message.Ready:
		slot.waiter.deliver(Reply{Ready: true}, nil)
	case *message.VoidResult:
		slot.waiter.deliver(Reply{Done: true}, nil)
	case *message.PreparedResult:
		c.notifyPrepared(slot.request, body)
		slot.waiter.deliver(Reply{Value: body}, nil)
	default:
		slot.waiter.deliver(Reply{Value: body}, nil)
	}
}

// dispatchRows implements the Rows branch of §4.7, including the paging
// hand-off: a Rows reply carrying a continuation token hands the caller a
// RowsSink (or, if the waiter already is one, keeps draining into it) and
// re-dispatches a clone of the original request with paging_state
// overwritten, targeting the same sink.
func (c *Connection) dispatchRows(slot *streamSlot, rows *message.RowsResult) {
	token := rows.Metadata.PagingState
	if paging, ok := slot.waiter.(*pagingWaiter); ok {
		if !paging.sink.pushPage(rows.Data) {
			// Consumer fell behind and the sink was abandoned; don't issue a
			// continuation request nobody will ever read the rows of.
			return
		}
		if len(token) == 0 {
			paging.sink.closeSink(nil)
			return
		}
		c.continuePaging(slot.request, token, paging.sink)
		return
	}
	if len(token) == 0 {
		slot.waiter.deliver(Reply{Value: rows}, nil)
		return
	}
	sink := newRowsSink()
	slot.waiter.deliver(Reply{Value: sink}, nil)
	if !sink.pushPage(rows.Data) {
		return
	}
	c.continuePaging(slot.request, token, sink)
}

// continuePaging clones the original request, overwrites its paging_state
// with token, and re-dispatches it straight through C6 with a PagingSink
// waiter targeting sink. It runs on the owner goroutine, so dispatchSend can
// be called directly instead of going through the submissions channel.
func (c *Connection) continuePaging(original *frame.Frame, token []byte, sink *RowsSink) {
	if original == nil {
		// A pre-encoded (set-stream-id) request has no structured body to
		// clone a continuation from.
		log.Error().Msgf("%v: cannot continue paging: original request was pre-encoded, not structured", c)
		sink.closeSink(fmt.Errorf("cqlconn: continuation requires a structured original request"))
		return
	}
	cloned := original.Body.Message.DeepCopyMessage()
	query, ok := cloned.(*message.Query)
	if !ok {
		log.Error().Msgf("%v: cannot continue paging: original request was not a Query: %T", c, cloned)
		sink.closeSink(fmt.Errorf("cqlconn: continuation request has no paging_state field: %T", cloned))
		return
	}
	if query.Options == nil {
		query.Options = &message.QueryOptions{}
	}
	query.Options.PagingState = token
	c.dispatchSend(sendRequest{message: query, waiter: &pagingWaiter{sink: sink}})
}

func (c *Connection) notifyPrepared(original *frame.Frame, prepared *message.PreparedResult) {
	if c.cfg.Session == nil || c.cfg.HostID == "" {
		return
	}
	if original == nil {
		log.Warn().Msgf("%v: cannot hash a pre-encoded prepared request for session notification", c)
		return
	}
	// Hash a fixed-stream-id encoding of the request, not the one it actually
	// went out on: the stream id is per-submission bookkeeping, not part of
	// the statement's identity, and two PREPAREs of the same CQL text on
	// different stream ids must hash identically for a session-level
	// prepared-statement cache keyed on this value to ever hit.
	hashFrame := frame.NewFrame(original.Header.Version, HandshakeStreamId, original.Body.Message)
	buf := &bytes.Buffer{}
	if err := c.codec.EncodeFrame(hashFrame, buf); err != nil {
		log.Error().Err(err).Msgf("%v: cannot hash prepared request for session notification", c)
		return
	}
	hash := md5.Sum(buf.Bytes())
	preparedFrame := frame.NewFrame(original.Header.Version, original.Header.StreamId, prepared)
	c.cfg.Session.Prepared(c.cfg.HostID, hash, preparedFrame)
}
