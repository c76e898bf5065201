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
	"time"

	"github.com/datastax/go-cassandra-native-protocol/primitive"
)

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 9042
	DefaultConnectTimeout = 5 * time.Second
	// DefaultResponseTimeout of zero means unbounded: Send blocks until a
	// reply is routed or the connection closes, per §6's defaults.
	DefaultResponseTimeout = 0
)

// Config is the connection's immutable configuration, fixed for the
// lifetime of a Connection (data model §3). HostID, Keyspace, Session and
// Events are all optional.
type Config struct {
	// Host is either a resolved address or a literal hostname; Port defaults
	// to DefaultPort when zero.
	Host string
	Port int

	// HostID identifies this host to the session sink. Session
	// notifications are a no-op when HostID is empty, even if Session is set.
	HostID string

	ProtocolVersion primitive.ProtocolVersion

	ConnectTimeout  time.Duration
	ResponseTimeout time.Duration // 0 means unbounded.

	// Keyspace, if non-empty, is bound with USE <keyspace> right after a
	// successful handshake.
	Keyspace string

	Session SessionSink
	Events  EventSink

	// AsyncInit selects between the Init->Connecting (async_init=true) and
	// Init->Ready-or-fail (async_init=false) transitions of C5.
	AsyncInit bool

	// Reconnect is consulted by C5 after every failed connect attempt.
	// Defaults to NewExponentialReconnectPolicy when nil.
	Reconnect ReconnectPolicy

	// MaxInFlight bounds the submission queue depth; it does not bound the
	// stream-id space, which is always [2, 32000].
	MaxInFlight int
}

// withDefaults returns a copy of cfg with every zero-valued optional field
// replaced by its documented default.
func (cfg Config) withDefaults() Config {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ProtocolVersion == 0 {
		cfg.ProtocolVersion = primitive.ProtocolVersion4
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Reconnect == nil {
		cfg.Reconnect = NewExponentialReconnectPolicy()
	}
	if cfg.MaxInFlight == 0 {
		cfg.MaxInFlight = 1024
	}
	return cfg
}
