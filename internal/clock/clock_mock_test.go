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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stratum1/gnssntpd/internal/hw"
	"github.com/stratum1/gnssntpd/internal/ntptime"
)

// These exercise Now/Precision against hw.MockMonotonicClock rather
// than the package's own fakeMono, to pin down that Now reads the tick
// counter exactly once per call instead of sampling it repeatedly
// mid-computation (a hand-rolled fake can't assert a call count).
func TestNow_ReadsMonotonicClockExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	mono := hw.NewMockMonotonicClock(ctrl)

	mono.EXPECT().Now().Return(hw.Tick(500)).Times(1)
	mono.EXPECT().Sub(hw.Tick(500), hw.Tick(0)).Return(int64(500)).Times(1)
	mono.EXPECT().TickRate().Return(uint64(1000)).Times(1)

	c := New(mono, DefaultConfig())
	t0 := time.Unix(1700000000, 0)
	c.HandleEdge(0, t0)
	c.HandleWallFix(validFix(1699999999, t0))

	ts := c.Now()
	unixSeconds, _ := ntptime.ToUnix(ts)
	require.Equal(t, int64(1700000000), unixSeconds)
}

func TestPrecision_DerivesFromMockedTickRate(t *testing.T) {
	ctrl := gomock.NewController(t)
	mono := hw.NewMockMonotonicClock(ctrl)
	mono.EXPECT().TickRate().Return(uint64(1024)).Times(1)

	c := New(mono, DefaultConfig())
	require.Equal(t, int8(-10), c.Precision())
}
