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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncWaiter_DeliverIsReceivedOnce(t *testing.T) {
	w := newSyncWaiter()
	w.deliver(Reply{Done: true}, nil)

	select {
	case r := <-w.ch:
		assert.True(t, r.reply.Done)
		assert.NoError(t, r.err)
	default:
		t.Fatal("expected a buffered delivery")
	}
}

func TestSyncWaiter_SecondDeliveryNeverBlocks(t *testing.T) {
	w := newSyncWaiter()
	w.deliver(Reply{Done: true}, nil)
	// A second delivery after the single buffered slot is full must not
	// block the caller (simulates a late response after the caller gave up).
	done := make(chan struct{})
	go func() {
		w.deliver(Reply{}, errors.New("late"))
		close(done)
	}()
	select {
	case <-done:
	default:
	}
	<-done
}

type fakeAsyncSink struct {
	correlation string
	reply       Reply
	err         error
	delivered   bool
}

func (s *fakeAsyncSink) Deliver(correlation string, reply Reply, err error) {
	s.correlation = correlation
	s.reply = reply
	s.err = err
	s.delivered = true
}

func TestAsyncWaiter_ForwardsToSinkWithCorrelation(t *testing.T) {
	sink := &fakeAsyncSink{}
	w := &asyncWaiter{correlation: "tok-1", sink: sink}

	w.deliver(Reply{Value: 42}, nil)

	require.True(t, sink.delivered)
	assert.Equal(t, "tok-1", sink.correlation)
	assert.Equal(t, 42, sink.reply.Value)
}

func TestPagingWaiter_OnlyPropagatesErrors(t *testing.T) {
	sink := newRowsSink()
	w := &pagingWaiter{sink: sink}

	w.deliver(Reply{Done: true}, nil)
	select {
	case <-sink.Done():
		t.Fatal("successful delivery must not close the sink")
	default:
	}

	w.deliver(Reply{}, errors.New("boom"))
	<-sink.Done()
	assert.EqualError(t, sink.Err(), "boom")
}
