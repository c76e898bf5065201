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

/*

Package conn implements the single-host connection core of a native-protocol
Cassandra client: a request/response multiplexer over one TCP connection.

A Connection owns exactly one socket to one node. Callers submit CQL frames
through Send or SendAsync (or, for an already wire-encoded request, SendRaw
or SendRawAsync); the connection assigns stream ids, writes the encoded
frame, and correlates the eventual response back to the caller through the
waiter abstraction described in waiter.go; a paged result is handed over as
a RowsSink. Server-pushed events go to the configured EventSink instead.

The connection is single-owner: one goroutine (run) owns the mutable
connection state (the stream table, the socket, the current lifecycle state)
and is the only goroutine that ever mutates it. A per-socket reader
goroutine owns the framing buffer and passes whole frames to run over a
channel. Callers interact exclusively by sending values over channels and
waiting for a reply; no lock guards the connection's core state.

*/
package conn
