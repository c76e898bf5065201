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

import "github.com/datastax/go-cassandra-native-protocol/frame"

// Reserved stream ids. EventStreamId is used by the wire protocol itself for
// server-initiated events; HandshakeStreamId is reused during the blocking
// bootstrap handshake; LoggedStreamId is never allocated to a user request,
// only logged if a server ever replies on it (see router.go).
const (
	EventStreamId     int16 = -1
	HandshakeStreamId int16 = 0
	LoggedStreamId    int16 = 1

	minStreamId int16 = 2
	maxStreamId int16 = 32000
)

// streamSlot is the {id, original_request, waiter} triple the data model
// describes. It lives in the table from allocation until its terminal
// response is routed, the connection drops, or it is re-dispatched (paging
// continuations reuse a fresh slot, not this one).
type streamSlot struct {
	id      int16
	request *frame.Frame
	waiter  waiter
}

// streamTable is C2: it owns the bounded stream-id space and the map from
// id to pending request. It is only ever touched by the connection's owner
// goroutine, so it needs no internal locking.
type streamTable struct {
	lastStreamId int16
	slots        map[int16]*streamSlot
}

func newStreamTable() *streamTable {
	return &streamTable{
		// One below the lowest assignable id, so the first allocate() call
		// produces minStreamId without special-casing an empty table.
		lastStreamId: minStreamId - 1,
		slots:        make(map[int16]*streamSlot),
	}
}

// allocate returns the next candidate stream id per the monotone hint, with
// wraparound to minStreamId at maxStreamId. It does not mutate the table and
// does not check for collisions: callers must check occupied and, on
// success, call insert to commit the hint forward. This split lets the
// dispatcher fail an encode without ever advancing lastStreamId.
func (t *streamTable) allocate() int16 {
	if t.lastStreamId == maxStreamId {
		return minStreamId
	}
	return t.lastStreamId + 1
}

// occupied reports whether id already has a slot in the table.
func (t *streamTable) occupied(id int16) bool {
	_, found := t.slots[id]
	return found
}

// insert commits a newly-dispatched request to the table and advances the
// allocation hint to id.
func (t *streamTable) insert(id int16, request *frame.Frame, w waiter) {
	t.slots[id] = &streamSlot{id: id, request: request, waiter: w}
	t.lastStreamId = id
}

// release removes and returns the slot for id, if any.
func (t *streamTable) release(id int16) (*streamSlot, bool) {
	slot, found := t.slots[id]
	if found {
		delete(t.slots, id)
	}
	return slot, found
}

// drain removes every slot from the table and returns them, for waking all
// pending waiters when the socket dies.
func (t *streamTable) drain() []*streamSlot {
	slots := make([]*streamSlot, 0, len(t.slots))
	for id, slot := range t.slots {
		slots = append(slots, slot)
		delete(t.slots, id)
	}
	return slots
}

func (t *streamTable) empty() bool {
	return len(t.slots) == 0
}
