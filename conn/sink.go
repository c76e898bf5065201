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

// SessionSink is the optional external collaborator notified of connection
// lifecycle events and prepared-statement results. It is a no-op when
// either the sink or the host id is absent from the connection config.
type SessionSink interface {
	ConnectionOpened(hostID string)
	ConnectionClosed(hostID string)
	ConnectionStopped(hostID string)
	Prepared(hostID string, hash [16]byte, prepared *frame.Frame)
}

// EventSink is the optional external collaborator that receives every
// server-initiated event frame (stream id EventStreamId). When absent, an
// event frame is logged and dropped.
type EventSink interface {
	Notify(event *frame.Frame)
}
