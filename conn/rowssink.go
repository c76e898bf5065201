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
	"sync"

	"github.com/datastax/go-cassandra-native-protocol/message"
)

// RowsSink is the caller-visible half of paging-as-stream (see §4.7 of the
// connection design: a Rows response carrying a continuation token hands the
// caller a sink instead of a row slice, and the core keeps pushing rows into
// it as later pages decode). Rows is closed once the page without a
// continuation token has been drained.
//
// A RowsSink is never touched by more than one goroutine at a time: pages
// are pushed by the connection's owner goroutine, one at a time, in wire
// order; a forwarding goroutine owned by the sink itself drains each page
// into the public channel so a slow consumer never stalls the owner loop.
// The page queue is bounded and pushPage never blocks: once a consumer has
// fallen far enough behind to fill it, the sink is abandoned (closed with
// ErrSinkAbandoned) instead of risking a wedge of the owner goroutine, and
// transitively of Stop(), behind a send nobody is there to receive.
type RowsSink struct {
	rows  chan message.Row
	pages chan []message.Row
	done  chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	closed    bool // owner-goroutine-only; guards pushPage against a send on a closed pages channel
}

func newRowsSink() *RowsSink {
	s := &RowsSink{
		rows:  make(chan message.Row),
		pages: make(chan []message.Row, 4),
		done:  make(chan struct{}),
	}
	go s.forward()
	return s
}

func (s *RowsSink) forward() {
	defer close(s.rows)
	defer close(s.done)
	for page := range s.pages {
		for _, row := range page {
			s.rows <- row
		}
	}
}

// Rows returns the channel rows are delivered on, in wire order, across all
// pages of the result. The channel is closed once the last page has been
// drained or the sink is closed because of a connection failure.
func (s *RowsSink) Rows() <-chan message.Row { return s.rows }

// Done is closed at the same time as Rows, after the last row (if any) has
// been sent. Use it to distinguish "channel closed" from "channel empty".
func (s *RowsSink) Done() <-chan struct{} { return s.done }

// Err returns the reason the sink was closed abnormally, or nil if every
// page was delivered and the result set simply ran out of continuation
// tokens.
func (s *RowsSink) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// pushPage enqueues one page's rows for delivery. Called only by the
// connection's owner goroutine. It never blocks: when the bounded queue is
// already full, or the sink was already closed, the page is dropped and the
// sink is abandoned, reporting ok=false so the caller (dispatchRows in
// router.go) stops issuing any further continuation request instead of
// draining an abandoned result to nowhere.
func (s *RowsSink) pushPage(rows []message.Row) (ok bool) {
	if s.closed {
		return false
	}
	select {
	case s.pages <- rows:
		return true
	default:
		s.closeSink(ErrSinkAbandoned)
		return false
	}
}

// closeSink stops accepting further pages. err is nil when the result set
// was exhausted normally (no continuation token on the last page); non-nil
// when the sink ends early: the connection dropped mid-paging, the consumer
// fell behind (ErrSinkAbandoned), or no continuation request could be built.
// Only the first call's err is kept; later calls change nothing. A page that
// arrives after the sink is closed is discarded by pushPage.
func (s *RowsSink) closeSink(err error) {
	s.mu.Lock()
	if !s.closed {
		s.err = err
	}
	s.mu.Unlock()
	s.closed = true
	s.closeOnce.Do(func() { close(s.pages) })
}
