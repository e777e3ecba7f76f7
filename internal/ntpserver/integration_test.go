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

package ntpserver_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratum1/gnssntpd/internal/clock"
	"github.com/stratum1/gnssntpd/internal/hw"
	"github.com/stratum1/gnssntpd/internal/ntppacket"
	"github.com/stratum1/gnssntpd/internal/ntpserver"
)

// These drive the responder against the real PPS-disciplined clock
// instead of a fixed fake, covering the full path from an edge/fix
// fusion to the bytes a client receives.

type tickCounter struct {
	now  hw.Tick
	rate uint64
}

func (c *tickCounter) Now() hw.Tick          { return c.now }
func (c *tickCounter) TickRate() uint64      { return c.rate }
func (c *tickCounter) Width() uint           { return 64 }
func (c *tickCounter) Sub(a, b hw.Tick) int64 { return int64(a) - int64(b) }

type captureNet struct {
	sent [][]byte
}

func (n *captureNet) Recv() (hw.Datagram, bool) { return hw.Datagram{}, false }
func (n *captureNet) Send(dstAddr [4]byte, dstPort uint16, payload []byte) hw.SendResult {
	n.sent = append(n.sent, payload)
	return hw.SendSent
}

func request(txSec uint32) hw.Datagram {
	var req ntppacket.Packet
	req.SetLIVNMode(ntppacket.LeapNone, 4, ntppacket.ModeClient)
	req.Poll = 6
	req.TxTimeSec = txSec
	data, err := req.Bytes()
	if err != nil {
		panic(err)
	}
	return hw.Datagram{SrcAddr: [4]byte{192, 0, 2, 7}, SrcPort: 123, Payload: data}
}

func lastResponse(t *testing.T, net *captureNet) ntppacket.Packet {
	t.Helper()
	require.NotEmpty(t, net.sent)
	var resp ntppacket.Packet
	require.NoError(t, resp.Unmarshal(net.sent[len(net.sent)-1]))
	return resp
}

// TestColdStartFirstLock walks the clock from boot through its first
// edge/fix fusion and checks the responder's view at each step: no
// valid stratum before lock, stratum 1 with leap 0 after.
func TestColdStartFirstLock(t *testing.T) {
	mono := &tickCounter{rate: 1_000_000}
	clk := clock.New(mono, clock.DefaultConfig())
	net := &captureNet{}
	srv := ntpserver.New(clk, net, ntpserver.DefaultConfig())

	t0 := time.Unix(1_700_000_100, 0)

	// Before any edge: unsynchronized, default policy still responds
	// but with stratum 16 and leap alarm.
	srv.HandleDatagram(request(1), t0)
	resp := lastResponse(t, net)
	require.Equal(t, uint8(16), resp.Stratum)
	require.Equal(t, uint8(ntppacket.LeapAlarm), resp.LI())

	// One PPS edge at mono=1_000_000, then a valid fix 10ms later.
	mono.now = 1_000_000
	clk.HandleEdge(1_000_000, t0)
	clk.HandleWallFix(clock.WallFix{
		UnixSeconds: 1_700_000_000,
		TimeValid:   true,
		DateValid:   true,
		LeapHint:    0,
		ReceivedAt:  t0.Add(10 * time.Millisecond),
	})
	require.Equal(t, uint8(1), clk.StratumFromState())

	mono.now = 1_500_000 // half a second past the edge
	srv.HandleDatagram(request(2), t0.Add(500*time.Millisecond))
	resp = lastResponse(t, net)
	require.Equal(t, uint8(1), resp.Stratum)
	require.Equal(t, uint8(ntppacket.LeapNone), resp.LI())
	require.Equal(t, uint8(4), resp.Mode())
	require.NotZero(t, resp.RxTimeSec)
	require.NotZero(t, resp.TxTimeSec)
}

// TestHoldoverDegradesStratumAndGrowsDispersion suppresses PPS edges
// after a lock and checks that responses move to stratum 2 and report
// a root dispersion that keeps growing second by second.
func TestHoldoverDegradesStratumAndGrowsDispersion(t *testing.T) {
	mono := &tickCounter{rate: 1_000_000}
	clk := clock.New(mono, clock.DefaultConfig())
	net := &captureNet{}
	srv := ntpserver.New(clk, net, ntpserver.DefaultConfig())

	t0 := time.Unix(1_700_000_100, 0)
	mono.now = 1_000_000
	clk.HandleEdge(1_000_000, t0)
	clk.HandleWallFix(clock.WallFix{
		UnixSeconds: 1_700_000_000,
		TimeValid:   true,
		DateValid:   true,
		ReceivedAt:  t0,
	})
	require.Equal(t, clock.StateLocked, clk.Snapshot().State)

	// No edges for 4 seconds: past the 3s grace, into holdover.
	clk.Tick(t0.Add(4 * time.Second))
	require.Equal(t, clock.StateHoldover, clk.Snapshot().State)

	mono.now = 5_000_000
	srv.HandleDatagram(request(1), t0.Add(4*time.Second))
	first := lastResponse(t, net)
	require.Equal(t, uint8(2), first.Stratum)
	require.Equal(t, uint8(ntppacket.LeapAlarm), first.LI())

	mono.now = 6_000_000
	srv.HandleDatagram(request(2), t0.Add(5*time.Second))
	second := lastResponse(t, net)
	require.Equal(t, uint8(2), second.Stratum)
	require.Greater(t, second.RootDispersion, first.RootDispersion,
		"dispersion must keep growing while no fresh edge arrives")

	// An edge resuming snaps straight back to Locked and stratum 1.
	clk.HandleEdge(6_000_000, t0.Add(5*time.Second))
	mono.now = 6_100_000
	srv.HandleDatagram(request(3), t0.Add(5*time.Second+100*time.Millisecond))
	resumed := lastResponse(t, net)
	require.Equal(t, uint8(1), resumed.Stratum)
}

// TestTimestampsAdvanceBetweenResponses: two responses half a second
// apart must carry strictly advancing transmit timestamps sourced from
// the disciplined clock, not the host clock.
func TestTimestampsAdvanceBetweenResponses(t *testing.T) {
	mono := &tickCounter{rate: 1_000_000}
	clk := clock.New(mono, clock.DefaultConfig())
	net := &captureNet{}
	srv := ntpserver.New(clk, net, ntpserver.DefaultConfig())

	t0 := time.Unix(1_700_000_100, 0)
	mono.now = 1_000_000
	clk.HandleEdge(1_000_000, t0)
	clk.HandleWallFix(clock.WallFix{UnixSeconds: 1_700_000_000, TimeValid: true, DateValid: true, ReceivedAt: t0})

	mono.now = 1_250_000
	srv.HandleDatagram(request(1), t0.Add(250*time.Millisecond))
	first := lastResponse(t, net)

	mono.now = 1_750_000
	srv.HandleDatagram(request(2), t0.Add(750*time.Millisecond))
	second := lastResponse(t, net)

	firstTx := uint64(first.TxTimeSec)<<32 | uint64(first.TxTimeFrac)
	secondTx := uint64(second.TxTimeSec)<<32 | uint64(second.TxTimeFrac)
	require.Greater(t, secondTx, firstTx)
}
