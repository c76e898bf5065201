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
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ReconnectPolicy is the external collaborator consulted by the connection
// state machine after every failed connect attempt (C3). Implementations
// live outside this package; ExponentialReconnectPolicy below is the
// default.
type ReconnectPolicy interface {
	// Next is called after each failed connect attempt. ok is false when the
	// policy has given up, which the state machine treats as fatal.
	Next() (backoffDuration time.Duration, ok bool)

	// Current returns the backoff most recently returned by Next (zero before
	// the first call and after Reset), for observability; it does not advance
	// the policy.
	Current() time.Duration

	// Reset is called exactly once, right after a successful handshake
	// reaches Ready.
	Reset()
}

// ExponentialReconnectPolicy adapts backoff.ExponentialBackOff to
// ReconnectPolicy. NewExponentialReconnectPolicy sets MaxElapsedTime to
// zero, so Next never reports ok=false; the wrapped backoff is unexported and
// cannot be reconfigured after construction.
type ExponentialReconnectPolicy struct {
	mu      sync.Mutex
	backoff *backoff.ExponentialBackOff
	current time.Duration
}

// NewExponentialReconnectPolicy builds a policy with the package defaults
// (500ms initial interval, factor 1.5, 60s cap) except that randomization is
// turned off and there is no elapsed-time limit, so successive Next values
// never decrease; matching "exponential reconnection with empty args" from §6.
func NewExponentialReconnectPolicy() *ExponentialReconnectPolicy {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return &ExponentialReconnectPolicy{backoff: b}
}

func (p *ExponentialReconnectPolicy) Next() (time.Duration, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.backoff.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	p.current = d
	return d, true
}

func (p *ExponentialReconnectPolicy) Current() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *ExponentialReconnectPolicy) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.backoff.Reset()
	p.current = 0
}
