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

package ntpserver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stratum1/gnssntpd/internal/configstore"
	"github.com/stratum1/gnssntpd/internal/hw"
	"github.com/stratum1/gnssntpd/internal/ntppacket"
	"github.com/stratum1/gnssntpd/internal/ntptime"
)

// fakeClock is a fixed clockSource for testing the server pipeline in
// isolation from internal/clock's state machine.
type fakeClock struct {
	now        int64 // unix seconds, advanced by nowCalls
	nowCalls   int
	precision  int8
	leap       uint8
	stratum    uint8
	refTime    ntptime.Timestamp
	sinceEdge  time.Duration
}

func (f *fakeClock) Now() ntptime.Timestamp {
	f.nowCalls++
	// Each call advances by one microsecond so Rx and Tx timestamps
	// within one response are distinct and non-decreasing.
	ts := ntptime.FromUnix(f.now, int64(f.nowCalls)*1000)
	return ts
}
func (f *fakeClock) Precision() int8                                { return f.precision }
func (f *fakeClock) LeapIndicator() uint8                           { return f.leap }
func (f *fakeClock) StratumFromState() uint8                        { return f.stratum }
func (f *fakeClock) ReferenceTimestamp() ntptime.Timestamp          { return f.refTime }
func (f *fakeClock) TimeSinceLastEdge(now time.Time) time.Duration  { return f.sinceEdge }

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:       1700000000,
		precision: -20,
		leap:      ntppacket.LeapNone,
		stratum:   1,
		refTime:   ntptime.FromUnix(1700000000, 0),
		sinceEdge: 200 * time.Millisecond,
	}
}

// fakeNet records every Send call and returns a fixed result.
type fakeNet struct {
	sendResult hw.SendResult
	sent       [][]byte
}

func (f *fakeNet) Recv() (hw.Datagram, bool) { return hw.Datagram{}, false }
func (f *fakeNet) Send(dstAddr [4]byte, dstPort uint16, payload []byte) hw.SendResult {
	f.sent = append(f.sent, payload)
	return f.sendResult
}

func clientRequest(txSec, txFrac uint32) hw.Datagram {
	var req ntppacket.Packet
	req.SetLIVNMode(ntppacket.LeapNone, 4, ntppacket.ModeClient)
	req.Poll = 6
	req.TxTimeSec = txSec
	req.TxTimeFrac = txFrac
	data, err := req.Bytes()
	if err != nil {
		panic(err)
	}
	return hw.Datagram{SrcAddr: [4]byte{192, 0, 2, 1}, SrcPort: 123, Payload: data}
}

func TestHandleDatagramRespondsToValidRequest(t *testing.T) {
	clk := newFakeClock()
	net := &fakeNet{sendResult: hw.SendSent}
	s := New(clk, net, DefaultConfig())

	d := clientRequest(0xE4000000, 0x80000000)
	s.HandleDatagram(d, time.Now())

	require.Len(t, net.sent, 1)
	snap := s.Stats().Snapshot()
	require.EqualValues(t, 1, snap.RequestsTotal)
	require.EqualValues(t, 1, snap.RequestsValid)
	require.EqualValues(t, 1, snap.ResponsesSent)
	require.EqualValues(t, 0, snap.RequestsInvalid)
}

// TestOriginTimestampIsVerbatimCopy: origin_timestamp in the reply
// must byte-for-byte match the client's transmit_timestamp, and rx/tx
// timestamps must be non-zero and non-decreasing.
func TestOriginTimestampIsVerbatimCopy(t *testing.T) {
	clk := newFakeClock()
	net := &fakeNet{sendResult: hw.SendSent}
	s := New(clk, net, DefaultConfig())

	const wantTxSec, wantTxFrac = 0xE4112233, 0x80445566
	d := clientRequest(wantTxSec, wantTxFrac)
	s.HandleDatagram(d, time.Now())

	require.Len(t, net.sent, 1)
	var resp ntppacket.Packet
	require.NoError(t, resp.Unmarshal(net.sent[0]))

	require.Equal(t, uint32(wantTxSec), resp.OrigTimeSec)
	require.Equal(t, uint32(wantTxFrac), resp.OrigTimeFrac)

	require.NotZero(t, resp.RxTimeSec)
	require.NotZero(t, resp.TxTimeSec)
	// Tx is sampled after Rx within the same response, so it is never
	// smaller.
	require.GreaterOrEqual(t, resp.TxTimeFrac, resp.RxTimeFrac)
	require.Equal(t, uint8(1), resp.Stratum)
	require.Equal(t, uint32(0x47505300), resp.ReferenceID)
}

func TestHandleDatagramRejectsWrongSize(t *testing.T) {
	clk := newFakeClock()
	net := &fakeNet{sendResult: hw.SendSent}
	s := New(clk, net, DefaultConfig())

	d := hw.Datagram{SrcAddr: [4]byte{1, 2, 3, 4}, SrcPort: 1, Payload: make([]byte, 40)}
	s.HandleDatagram(d, time.Now())

	require.Empty(t, net.sent)
	snap := s.Stats().Snapshot()
	require.EqualValues(t, 1, snap.RequestsInvalid)
	require.EqualValues(t, 1, snap.InvalidSize)
}

func TestHandleDatagramRejectsWrongMode(t *testing.T) {
	clk := newFakeClock()
	net := &fakeNet{sendResult: hw.SendSent}
	s := New(clk, net, DefaultConfig())

	var req ntppacket.Packet
	req.SetLIVNMode(ntppacket.LeapNone, 4, ntppacket.ModeServer)
	data, err := req.Bytes()
	require.NoError(t, err)

	s.HandleDatagram(hw.Datagram{SrcAddr: [4]byte{1, 2, 3, 4}, SrcPort: 1, Payload: data}, time.Now())

	require.Empty(t, net.sent)
	snap := s.Stats().Snapshot()
	require.EqualValues(t, 1, snap.InvalidMode)
}

// TestUnsynchronizedDropPolicy covers the stratum-16 + DropRequest
// path: no response at all, no counters bumped for invalid/sent.
func TestUnsynchronizedDropPolicy(t *testing.T) {
	clk := newFakeClock()
	clk.stratum = 16
	net := &fakeNet{sendResult: hw.SendSent}
	cfg := DefaultConfig()
	cfg.UnsyncPolicy = configstore.DropRequest
	s := New(clk, net, cfg)

	s.HandleDatagram(clientRequest(1, 1), time.Now())

	require.Empty(t, net.sent)
	snap := s.Stats().Snapshot()
	require.EqualValues(t, 1, snap.RequestsValid)
	require.EqualValues(t, 0, snap.ResponsesSent)
}

// TestUnsynchronizedRespondPolicy covers the stratum-16 +
// RespondStratum16 path: a response is still sent, carrying
// stratum 16.
func TestUnsynchronizedRespondPolicy(t *testing.T) {
	clk := newFakeClock()
	clk.stratum = 16
	net := &fakeNet{sendResult: hw.SendSent}
	cfg := DefaultConfig()
	cfg.UnsyncPolicy = configstore.RespondStratum16
	s := New(clk, net, cfg)

	s.HandleDatagram(clientRequest(1, 1), time.Now())

	require.Len(t, net.sent, 1)
	var resp ntppacket.Packet
	require.NoError(t, resp.Unmarshal(net.sent[0]))
	require.Equal(t, uint8(16), resp.Stratum)
}

// TestRateLimitScenario: 16 requests from one source within one
// second, bucket capacity 8 refilling at 1/s, must yield exactly 8
// accepted and 8 rate-limited.
func TestRateLimitScenario(t *testing.T) {
	clk := newFakeClock()
	net := &fakeNet{sendResult: hw.SendSent}
	cfg := DefaultConfig()
	cfg.RateLimitCapacity = 8
	cfg.RateLimitRefillPerSec = 1
	s := New(clk, net, cfg)

	base := time.Now()
	for i := 0; i < 16; i++ {
		s.HandleDatagram(clientRequest(uint32(i), 0), base)
	}

	snap := s.Stats().Snapshot()
	require.EqualValues(t, 8, snap.ResponsesSent)
	require.EqualValues(t, 8, snap.RateLimited)
}

func TestSendFailureIncrementsSendFailed(t *testing.T) {
	clk := newFakeClock()
	net := &fakeNet{sendResult: hw.SendError}
	s := New(clk, net, DefaultConfig())

	s.HandleDatagram(clientRequest(1, 1), time.Now())

	snap := s.Stats().Snapshot()
	require.EqualValues(t, 1, snap.SendFailed)
	require.EqualValues(t, 0, snap.ResponsesSent)
}

func TestRootDispersionGrowsWithTimeSinceEdge(t *testing.T) {
	clk := newFakeClock()
	clk.sinceEdge = 0
	s := New(clk, &fakeNet{}, DefaultConfig())
	d0 := s.rootDispersionSeconds(time.Now())

	clk.sinceEdge = 10 * time.Second
	d1 := s.rootDispersionSeconds(time.Now())

	require.Greater(t, d1, d0)
}

func TestEncode16Dot16ClampsNegativeAndOverflow(t *testing.T) {
	require.Equal(t, uint32(0), encode16dot16(-1))
	require.Equal(t, uint32(1<<32-1), encode16dot16(1e9))
}

func TestProcessingDuration(t *testing.T) {
	rx := ntptime.FromUnix(1700000000, 0)
	tx := ntptime.FromUnix(1700000000, 500_000_000)
	d := processingDuration(rx, tx)
	require.InDelta(t, 500*time.Millisecond, d, float64(time.Millisecond))
}
