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


// Reply is the successful half of the result alphabet delivered to a waiter.
// Exactly one of Ready, Done or Value is meaningful for a given delivery;
// Value holds the result's Go-native payload: a message.Message for a single
// reply, or a *RowsSink when the reply transfers ownership of a paging
// stream to the caller.
type Reply struct {
	Ready bool
	Done  bool
	Value interface{}
}

// AsyncSink receives the result of a request submitted through
// Connection.SendAsync. Deliver must never block the connection's owner
// goroutine; implementations that forward to a slow consumer should buffer
// or drop internally.
type AsyncSink interface {
	Deliver(correlation string, reply Reply, err error)
}

// waiter is the target a routed response (or a synthesized failure) is
// delivered to. The three concrete implementations mirror the Waiter
// variants from the data model: SyncReply, AsyncReply and PagingSink.
type waiter interface {
	deliver(reply Reply, err error)
}

// syncWaiter is a single-reply rendezvous used by the blocking Send facade.
// The channel is buffered with capacity one so a late delivery (after the
// caller gave up on a call-level timeout) never blocks the owner goroutine.
type syncWaiter struct {
	ch chan result
}

type result struct {
	reply Reply
	err   error
}

func newSyncWaiter() *syncWaiter {
	return &syncWaiter{ch: make(chan result, 1)}
}

func (w *syncWaiter) deliver(reply Reply, err error) {
	select {
	case w.ch <- result{reply: reply, err: err}:
	default:
		// Already delivered once (or abandoned); the result alphabet promises
		// exactly one reply, so a second delivery attempt is discarded rather
		// than blocking the owner goroutine.
	}
}

// asyncWaiter forwards the eventual reply to a caller-supplied sink, tagged
// with the correlation token handed back from SendAsync.
type asyncWaiter struct {
	correlation string
	sink        AsyncSink
}

func (w *asyncWaiter) deliver(reply Reply, err error) {
	w.sink.Deliver(w.correlation, reply, err)
}

// pagingWaiter targets an already-open RowsSink: used only for the internal
// continuation re-dispatch issued by the response router while draining a
// multi-page result (see router.go).
type pagingWaiter struct {
	sink *RowsSink
}

func (w *pagingWaiter) deliver(reply Reply, err error) {
	if err != nil {
		w.sink.closeSink(err)
	}
	// A successful delivery never reaches here: rows are pushed straight into
	// the sink by the router (see dispatchRows), which also issues the
	// continuation request directly instead of routing back through deliver.
}
