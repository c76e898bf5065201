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
	"testing"

	"github.com/datastax/go-cassandra-native-protocol/frame"
	"github.com/datastax/go-cassandra-native-protocol/message"
	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"github.com/stretchr/testify/require"
)

// framingBuffer is internal, so this file stays in package conn rather than
// conn_test; only connection_test.go and reconnect_test.go use the external
// conn_test package.

func encodeFrameForTest(t *testing.T, codec frame.RawCodec, streamId int16, msg message.Message) []byte {
	t.Helper()
	f := frame.NewFrame(primitive.ProtocolVersion4, streamId, msg)
	buf := &bytes.Buffer{}
	require.NoError(t, codec.EncodeFrame(f, buf))
	return buf.Bytes()
}

func TestFramingBuffer_PullsWholeFrameAcrossMultipleAppends(t *testing.T) {
	codec := frame.NewRawCodecWithCompression(nil)
	encoded := encodeFrameForTest(t, codec, 2, &message.Ready{})

	buffer := newFramingBuffer(primitive.ProtocolVersion4, codec)

	split := len(encoded) / 2
	buffer.append(encoded[:split])

	f, ok, err := buffer.tryPull()
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, f)

	buffer.append(encoded[split:])
	f, ok, err = buffer.tryPull()
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, f)
	require.Equal(t, int16(2), f.Header.StreamId)
	require.IsType(t, &message.Ready{}, f.Body.Message)
}

func TestFramingBuffer_RetainsOnlyResidualSuffix(t *testing.T) {
	codec := frame.NewRawCodecWithCompression(nil)
	first := encodeFrameForTest(t, codec, 2, &message.Ready{})
	second := encodeFrameForTest(t, codec, 3, &message.VoidResult{})

	buffer := newFramingBuffer(primitive.ProtocolVersion4, codec)
	partialSecond := second[:len(second)-2]
	buffer.append(append(append([]byte{}, first...), partialSecond...))

	var pulled []*frame.Frame
	err := buffer.drainFrames(func(f *frame.Frame) bool {
		pulled = append(pulled, f)
		return true
	})
	require.NoError(t, err)
	require.Len(t, pulled, 1)
	require.Equal(t, int16(2), pulled[0].Header.StreamId)

	require.Equal(t, partialSecond, buffer.data)

	buffer.append(second[len(second)-2:])
	f, ok, err := buffer.tryPull()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int16(3), f.Header.StreamId)
	require.Empty(t, buffer.data)
}

func TestFramingBuffer_DrainFramesStopsOnIncomplete(t *testing.T) {
	codec := frame.NewRawCodecWithCompression(nil)
	first := encodeFrameForTest(t, codec, 2, &message.Ready{})
	second := encodeFrameForTest(t, codec, 3, &message.Ready{})

	buffer := newFramingBuffer(primitive.ProtocolVersion4, codec)
	buffer.append(first)
	buffer.append(second[:len(second)-1])

	var count int
	err := buffer.drainFrames(func(f *frame.Frame) bool {
		count++
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
