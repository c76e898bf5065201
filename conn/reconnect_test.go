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

package conn_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mariner-cql/cqlconn/conn"
)

func TestExponentialReconnectPolicy_NextIncreasesAndNeverStops(t *testing.T) {
	policy := conn.NewExponentialReconnectPolicy()

	var prev int64
	for i := 0; i < 5; i++ {
		d, ok := policy.Next()
		require.True(t, ok)
		assert.GreaterOrEqual(t, int64(d), prev)
		assert.Equal(t, d, policy.Current())
		prev = int64(d)
	}
}

func TestExponentialReconnectPolicy_ResetReturnsToZeroCurrent(t *testing.T) {
	policy := conn.NewExponentialReconnectPolicy()
	_, ok := policy.Next()
	require.True(t, ok)
	require.NotZero(t, policy.Current())

	policy.Reset()
	assert.Zero(t, policy.Current())
}
