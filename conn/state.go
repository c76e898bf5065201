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

// State is one of the connection lifecycle states from C5. Ready is the
// only state that accepts request submissions.
type State int

const (
	StateInit State = iota
	StateConnecting
	StateReady
	StateDisconnected
	StateReconnecting
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateConnecting:
		return "Connecting"
	case StateReady:
		return "Ready"
	case StateDisconnected:
		return "Disconnected"
	case StateReconnecting:
		return "Reconnecting"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}
