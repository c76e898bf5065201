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

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
)

// framingBuffer is C1: it accumulates inbound bytes and yields whole frames.
// It holds no parsing state beyond the trailing partial frame; the codec
// (an external collaborator) is consulted fresh on every pull attempt.
//
// framingBuffer is owned by the connection's read goroutine only; nothing
// else ever touches data.
type framingBuffer struct {
	data    []byte
	version primitive.ProtocolVersion
	codec   frame.RawCodec
}

func newFramingBuffer(version primitive.ProtocolVersion, codec frame.RawCodec) *framingBuffer {
	return &framingBuffer{version: version, codec: codec}
}

// append adds newly-read bytes to the buffer.
func (b *framingBuffer) append(p []byte) {
	b.data = append(b.data, p...)
}

// tryPull attempts to decode one whole frame from the head of the buffer.
// It returns (frame, true, nil) on success, consuming those bytes; (nil,
// false, nil) when the buffer holds an incomplete frame (the caller should
// read more bytes and try again); or (nil, false, err) when the header or
// the whole frame fails to decode, which is always fatal to the connection.
func (b *framingBuffer) tryPull() (*frame.Frame, bool, error) {
	headerLen := b.version.FrameHeaderLengthInBytes()
	if len(b.data) < headerLen {
		return nil, false, nil
	}
	header, err := b.codec.DecodeHeader(bytes.NewReader(b.data[:headerLen]))
	if err != nil {
		return nil, false, err
	}
	total := headerLen + int(header.BodyLength)
	if len(b.data) < total {
		return nil, false, nil
	}
	f, err := b.codec.DecodeFrame(bytes.NewReader(b.data[:total]))
	if err != nil {
		return nil, false, err
	}
	// Retain only the trailing partial frame; copy it out so the retained
	// slice doesn't keep the whole, possibly much larger, backing array
	// alive (invariant 4: the buffer holds only the unconsumed suffix).
	remainder := make([]byte, len(b.data)-total)
	copy(remainder, b.data[total:])
	b.data = remainder
	return f, true, nil
}

// drainFrames repeatedly pulls whole frames out of the buffer after newly
// read bytes have been appended, per §4.1: "the router repeatedly pulls
// frames until the codec reports incomplete". deliver is invoked once per
// decoded frame, in order; if it returns false, or tryPull reports a decode
// error, drainFrames stops and returns that error (nil on a clean pause for
// more bytes).
func (b *framingBuffer) drainFrames(deliver func(*frame.Frame) bool) error {
	for {
		f, ok, err := b.tryPull()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if !deliver(f) {
			return nil
		}
	}
}
