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
	"context"
	"time"

	"github.com/stratum1/gnssntpd/internal/hw"
)

// SimulateGNSS runs a development-host stand-in for the external GNSS
// UART/UBX parser and its PPS hardware edge. It never decodes UBX
// framing; it only calls the same two public entry points —
// HandleEdge/HandleWallFix — that the real parser would call, once
// per wall-clock second, so cmd/ntpd is exercisable end-to-end on a
// machine with no GNSS receiver attached.
func SimulateGNSS(ctx context.Context, mono func() hw.Tick, onEdge func(mono hw.Tick, wallAt time.Time), onFix func(unixSeconds int64, wallAt time.Time)) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			tick := mono()
			onEdge(tick, now)
			// A real receiver reports the second that just elapsed;
			// the clock's fuse step already adds one to land on the
			// edge's wall second, so report now-1 here.
			onFix(now.Unix()-1, now)
		}
	}
}
