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

/*
Package platform provides the host-side reference implementations of
the hw collaborator interfaces: a monotonic clock, a file-backed flash
region, and a UDP datagram source/sink. On the freestanding Cortex-M33
target these would be register-level drivers; cmd/ntpd links against
these instead so the same core logic in internal/clock,
internal/configstore and internal/ntpserver can run and be exercised
on a development host.
*/
package platform

import (
	"time"

	"github.com/stratum1/gnssntpd/internal/hw"
)

// monotonicHz is the tick rate SystemMonotonicClock reports: one tick
// per nanosecond, matching time.Duration's native resolution.
const monotonicHz = uint64(time.Second)

// SystemMonotonicClock implements hw.MonotonicClock over the Go
// runtime's monotonic clock reading (time.Now(), which on every
// supported OS carries a monotonic component also used internally for
// Sub/Since per the time package's documentation).
type SystemMonotonicClock struct{}

// monoEpoch is the process-local origin SystemMonotonicClock counts
// ticks from; time.Since uses its monotonic component.
var monoEpoch = time.Now()

// Now implements hw.MonotonicClock.
func (SystemMonotonicClock) Now() hw.Tick {
	return hw.Tick(time.Since(monoEpoch)) // #nosec G115 -- monotonic reading, sign irrelevant to callers
}

// TickRate implements hw.MonotonicClock.
func (SystemMonotonicClock) TickRate() uint64 { return monotonicHz }

// Sub implements hw.MonotonicClock. The host's int64 nanosecond
// counter does not wrap within any realistic uptime, but the
// subtraction is still done the way a wrapping 32/64-bit hardware
// counter would require, so the same arithmetic exercises both paths.
func (SystemMonotonicClock) Sub(a, b hw.Tick) int64 {
	return int64(a) - int64(b)
}

// Width implements hw.MonotonicClock.
func (SystemMonotonicClock) Width() uint { return 64 }
