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
	"testing"

	"github.com/datastax/go-cassandra-native-protocol/primitive"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetStreamID_V3AndHigherUsesTwoByteBigEndianOffset(t *testing.T) {
	encoded := []byte{0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	patched, err := setStreamID(encoded, 12345, primitive.ProtocolVersion4)
	require.NoError(t, err)
	assert.Equal(t, byte(12345>>8), patched[2])
	assert.Equal(t, byte(12345&0xff), patched[3])
	// The original slice must be untouched.
	assert.Equal(t, byte(0), encoded[2])
	assert.Equal(t, byte(0), encoded[3])
}

func TestSetStreamID_V2AndLowerUsesOneSignedByteOffset(t *testing.T) {
	encoded := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	patched, err := setStreamID(encoded, 42, primitive.ProtocolVersion2)
	require.NoError(t, err)
	assert.Equal(t, byte(42), patched[2])
}

func TestSetStreamID_V2AndLowerRejectsOutOfRangeId(t *testing.T) {
	encoded := []byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	_, err := setStreamID(encoded, 200, primitive.ProtocolVersion2)
	assert.Error(t, err)
}

func TestSetStreamID_TooShortIsInvalid(t *testing.T) {
	_, err := setStreamID([]byte{0x04, 0x00}, 2, primitive.ProtocolVersion4)
	assert.Error(t, err)
}
