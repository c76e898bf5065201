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
	"fmt"
	"math"

	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
)

// NewQuery builds a simple Query request with the given page size (every
// other query option keeps its zero value), ready to hand to Send or
// SendAsync. It is a convenience
// constructor only; any message.Message built by the caller works just as
// well.
func NewQuery(cql string, pageSize int32) *message.Query {
	return &message.Query{
		Query: cql,
		Options: &message.QueryOptions{
			PageSize: pageSize,
		},
	}
}

// RawRequest is an already wire-encoded CQL request frame (header and body
// both present), submitted via SendRaw/SendRawAsync instead of a structured
// message.Message. The dispatcher rewrites its stream id in place with
// setStreamID rather than running it through the structured encoder, per
// SPEC_FULL §4.6 step 3's "call the codec's set_stream_id(bytes, id)"
// alternate path. Any stream id already present in Encoded is a placeholder;
// it is overwritten before the frame is written to the socket.
type RawRequest struct {
	Encoded []byte
}

// setStreamID returns a copy of encoded with its frame header's stream id
// field overwritten with id. Protocol v3 and above carry a 2-byte
// big-endian stream id at header offset 2; v1/v2 carry a signed 1-byte
// stream id at the same offset, matching primitive.WriteStreamId's own
// version split.
func setStreamID(encoded []byte, id int16, version primitive.ProtocolVersion) ([]byte, error) {
	if len(encoded) < version.FrameHeaderLengthInBytes() {
		return nil, fmt.Errorf("cqlconn: encoded request too short to carry a frame header: %d bytes", len(encoded))
	}
	patched := make([]byte, len(encoded))
	copy(patched, encoded)
	if version >= primitive.ProtocolVersion3 {
		patched[2] = byte(uint16(id) >> 8)
		patched[3] = byte(uint16(id))
	} else {
		if id > math.MaxInt8 || id < math.MinInt8 {
			return nil, fmt.Errorf("cqlconn: stream id out of range for %v: %v", version, id)
		}
		patched[2] = byte(int8(id))
	}
	return patched, nil
}
