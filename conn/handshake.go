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
	"net"
	"time"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"github.com/rs/zerolog/log"
)

// performHandshake is C4. It runs in blocking mode on a freshly-dialed
// socket, before any multiplexing starts: a single Startup/Ready exchange on
// HandshakeStreamId, optionally followed by a USE <keyspace> exchange. It
// never touches the stream table or the framing buffer; those only come
// alive once the connection reaches Ready.
func performHandshake(netConn net.Conn, version primitive.ProtocolVersion, codec frame.RawCodec, keyspace string, timeout time.Duration) error {
	startup := message.NewStartup()
	startupFrame := frame.NewFrame(version, HandshakeStreamId, startup)
	reply, err := handshakeRoundTrip(netConn, codec, startupFrame, timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	switch body := reply.Body.Message.(type) {
	case *message.Ready:
		log.Debug().Msg("cqlconn: handshake: received READY")
	case message.Error:
		return fmt.Errorf("%w: %v", ErrHandshake, &ServerError{Code: body.GetErrorCode(), Message: body.GetErrorMessage()})
	default:
		return fmt.Errorf("%w: unexpected response to STARTUP: %T", ErrHandshake, body)
	}
	if keyspace == "" {
		return nil
	}
	useQuery := &message.Query{Query: fmt.Sprintf("USE %s", keyspace), Options: &message.QueryOptions{}}
	useFrame := frame.NewFrame(version, HandshakeStreamId, useQuery)
	reply, err = handshakeRoundTrip(netConn, codec, useFrame, timeout)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyspace, err)
	}
	switch body := reply.Body.Message.(type) {
	case *message.SetKeyspaceResult:
		if body.Keyspace != keyspace {
			return fmt.Errorf("%w: requested %q, server bound %q", ErrKeyspace, keyspace, body.Keyspace)
		}
	case message.Error:
		return fmt.Errorf("%w: %v", ErrKeyspace, &ServerError{Code: body.GetErrorCode(), Message: body.GetErrorMessage()})
	default:
		return fmt.Errorf("%w: unexpected response to USE: %T", ErrKeyspace, body)
	}
	return nil
}

// handshakeRoundTrip encodes and writes req, then blocks for one whole frame
// within timeout. It deliberately bypasses the framing buffer: during the
// handshake there is exactly one request in flight on a fixed stream id, so
// a direct blocking decode off the socket is simpler and matches §4.4's
// "runs in blocking mode... no multiplexing yet".
func handshakeRoundTrip(netConn net.Conn, codec frame.RawCodec, req *frame.Frame, timeout time.Duration) (*frame.Frame, error) {
	if err := netConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	defer func() { _ = netConn.SetDeadline(time.Time{}) }()
	buf := &bytes.Buffer{}
	if err := codec.EncodeFrame(req, buf); err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	if _, err := netConn.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}
	reply, err := codec.DecodeFrame(netConn)
	if err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return reply, nil
}
