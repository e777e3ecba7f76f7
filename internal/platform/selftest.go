/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package platform

import (
	"time"

	"github.com/stratum1/gnssntpd/internal/hw"
)

// StaticLinkStatus implements hw.LinkStatus with fixed values,
// standing in for the external Ethernet MAC driver on a dev host
// where the process's own reachability is the only signal worth
// reporting.
type StaticLinkStatus struct {
	Up       bool
	Assigned bool
}

// LinkUp implements hw.LinkStatus.
func (s StaticLinkStatus) LinkUp() bool { return s.Up }

// IPAssigned implements hw.LinkStatus.
func (s StaticLinkStatus) IPAssigned() bool { return s.Assigned }

// NoopSelfTester implements hw.SelfTester with an always-passing,
// near-zero-latency result, standing in for a board-level hardware
// self-test routine.
type NoopSelfTester struct{}

// SelfTest implements hw.SelfTester.
func (NoopSelfTester) SelfTest() error { return nil }

// ProbeLatency implements hw.SelfTester.
func (NoopSelfTester) ProbeLatency() time.Duration { return 0 }

// NoopButtonSource implements hw.ButtonSource with a channel that never
// fires, standing in for the front-panel button on a dev host where no
// debouncer drives real presses.
type NoopButtonSource struct{}

// Events implements hw.ButtonSource.
func (NoopButtonSource) Events() <-chan hw.ButtonEvent {
	return make(chan hw.ButtonEvent)
}
