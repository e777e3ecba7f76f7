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
Package ntpserver implements the RFC 5905 stratum-1 responder: the
receive-side validation pipeline, response synthesis, per-source rate
limiting, and operational counters. It is a decode/validate/respond
pipeline feeding a stats sink, built on a single-reader, non-blocking
I/O model rather than a blocking-socket worker pool, since the target
platform has neither goroutines-as-OS-threads nor a kernel socket
layer.
*/
package ntpserver

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/stratum1/gnssntpd/internal/configstore"
	"github.com/stratum1/gnssntpd/internal/hw"
	"github.com/stratum1/gnssntpd/internal/ntppacket"
	"github.com/stratum1/gnssntpd/internal/ntptime"
)

// referenceID is the ASCII "GPS\0" reference identifier RFC 5905
// assigns to a GPS-derived stratum-1 source.
var referenceID = [4]byte{'G', 'P', 'S', 0}

// clockSource is the subset of clock.Clock the server needs, kept as
// an interface so tests can supply a fixed fake without depending on
// the clock package's internals.
type clockSource interface {
	Now() ntptime.Timestamp
	Precision() int8
	LeapIndicator() uint8
	StratumFromState() uint8
	ReferenceTimestamp() ntptime.Timestamp
	// TimeSinceLastEdge feeds root_dispersion's growth term; kept as a
	// raw input here rather than a baked-in seconds value so clock
	// stays independent of any NTP-specific dispersion formula.
	TimeSinceLastEdge(now time.Time) time.Duration
}

// Config bundles the server's tunables, normally sourced from a
// configstore.ConfigRecord snapshot.
type Config struct {
	RateLimitCapacity     int
	RateLimitRefillPerSec int
	RateLimitTableSize    int
	UnsyncPolicy          configstore.UnsyncPolicy
	BaseDispersion        time.Duration // sigma0, defaults to ~100us
	// AssumedDriftPPB is sigma_drift: a fixed worst-case oscillator
	// drift-rate assumption (parts per billion) used to grow
	// root_dispersion monotonically the longer the clock runs without
	// a fresh PPS edge, independent of whatever drift the clock has
	// actually measured so far.
	AssumedDriftPPB float64
}

// DefaultConfig returns the stock tunables. 20 ppm is a typical
// uncompensated crystal tolerance, used here as the assumed worst-case
// free-running drift rate during holdover.
func DefaultConfig() Config {
	return Config{
		RateLimitCapacity:     DefaultBucketCapacity,
		RateLimitRefillPerSec: DefaultRefillPerSecond,
		RateLimitTableSize:    MinTableEntries,
		UnsyncPolicy:          configstore.RespondStratum16,
		BaseDispersion:        100 * time.Microsecond,
		AssumedDriftPPB:       20000,
	}
}

// Server holds everything needed to answer one datagram at a time. It
// does not own a socket: the caller (cmd/ntpd's event loop) pulls
// datagrams from hw.NetworkIO and hands them to HandleDatagram — the
// inversion of control a cooperative, non-blocking runtime needs.
type Server struct {
	clock   clockSource
	limiter *RateLimiter
	stats   *Stats
	cfg     Config
	net     hw.NetworkIO
}

// New constructs a Server. net is used only to send responses;
// datagrams are pulled by the caller and passed to HandleDatagram.
func New(clock clockSource, net hw.NetworkIO, cfg Config) *Server {
	return &Server{
		clock:   clock,
		limiter: NewRateLimiter(float64(cfg.RateLimitCapacity), float64(cfg.RateLimitRefillPerSec), cfg.RateLimitTableSize),
		stats:   NewStats(),
		cfg:     cfg,
		net:     net,
	}
}

// Stats exposes the counters for metrics/CLI consumers.
func (s *Server) Stats() *Stats { return s.stats }

// HandleDatagram runs one inbound UDP datagram through the full
// receive-side pipeline: ingress timestamp, length check, header
// validation, rate limit, then response synthesis. wallNow (a
// host/loop time) drives the rate limiter's refill clock, the idle
// tracker behind Stats.IdleSince and the root-dispersion age; the NTP
// timestamps come exclusively from s.clock.
func (s *Server) HandleDatagram(d hw.Datagram, wallNow time.Time) {
	// Ingress timestamp T_rx, captured before any parsing so
	// parse-time skew is never attributed to the server.
	rxTS := s.clock.Now()
	s.stats.IncRequestsTotal()
	s.stats.MarkRequestSeen(wallNow)

	if len(d.Payload) != ntppacket.SizeBytes {
		s.stats.IncInvalidSize()
		s.stats.IncRequestsInvalid()
		return
	}

	var req ntppacket.Packet
	if err := req.Unmarshal(d.Payload); err != nil {
		s.stats.IncInvalidSize()
		s.stats.IncRequestsInvalid()
		return
	}
	if !req.ValidRequest() {
		s.stats.IncInvalidMode()
		s.stats.IncRequestsInvalid()
		return
	}

	// Rate-limit check, keyed by source address. Refill and
	// consumption both use wallNow so the deny decision stays
	// monotonic.
	if !s.limiter.Allow(d.SrcAddr, d.SrcPort, wallNow) {
		s.stats.IncRateLimited()
		s.stats.IncRequestsInvalid()
		return
	}

	s.stats.IncRequestsValid()

	// Unsynchronized refusal: when the clock cannot vouch for its
	// time, either drop silently or answer with stratum 16 — never
	// claim a valid stratum. The choice is a documented config option.
	stratum := s.clock.StratumFromState()
	if stratum == 16 && s.cfg.UnsyncPolicy == configstore.DropRequest {
		return
	}

	resp, txTS := s.buildResponse(&req, rxTS, stratum, wallNow)
	respBytes, err := resp.Bytes()
	if err != nil {
		log.Errorf("[ntpserver] failed to serialize response: %v", err)
		s.stats.IncSendFailed()
		return
	}

	// Send failures are counted and never retried — NTP clients
	// retransmit on their own schedule.
	switch s.net.Send(d.SrcAddr, d.SrcPort, respBytes) {
	case hw.SendSent:
		s.stats.IncResponsesSent()
		s.stats.ObserveProcessingTime(processingDuration(rxTS, txTS))
	case hw.SendBusy, hw.SendError:
		s.stats.IncSendFailed()
	}
}

// processingDuration computes T_tx - T_rx from two NTP timestamps
// produced by the same disciplined clock, the end-to-end processing
// time fed into the moving average.
func processingDuration(rx, tx ntptime.Timestamp) time.Duration {
	rxSec, rxNanos := ntptime.ToUnix(rx)
	txSec, txNanos := ntptime.ToUnix(tx)
	return time.Duration(txSec-rxSec)*time.Second + time.Duration(txNanos-rxNanos)
}

// buildResponse synthesizes the 48-byte reply. Transmit timestamp is
// sampled as late as possible, immediately before this function
// returns the packet to be serialized and sent. It returns the
// transmit timestamp alongside the packet so the caller can derive the
// end-to-end processing time without a third clock read.
func (s *Server) buildResponse(req *ntppacket.Packet, rxTS ntptime.Timestamp, stratum uint8, wallNow time.Time) (*ntppacket.Packet, ntptime.Timestamp) {
	var resp ntppacket.Packet
	resp.SetLIVNMode(s.clock.LeapIndicator(), req.VN(), ntppacket.ModeServer)
	resp.Stratum = stratum
	resp.Poll = req.Poll
	resp.Precision = s.clock.Precision()
	resp.RootDelay = 0 // primary reference

	dispersion := s.rootDispersionSeconds(wallNow)
	resp.RootDispersion = encode16dot16(dispersion)

	resp.ReferenceID = uint32(referenceID[0])<<24 | uint32(referenceID[1])<<16 | uint32(referenceID[2])<<8 | uint32(referenceID[3])

	refTS := s.clock.ReferenceTimestamp()
	resp.RefTimeSec, resp.RefTimeFrac = refTS.Seconds, refTS.Fraction

	// origin_timestamp is a verbatim copy of the client's
	// transmit_timestamp — the client matches replies on it.
	resp.OrigTimeSec, resp.OrigTimeFrac = req.TxTimeSec, req.TxTimeFrac

	resp.RxTimeSec, resp.RxTimeFrac = rxTS.Seconds, rxTS.Fraction

	txTS := s.clock.Now()
	resp.TxTimeSec, resp.TxTimeFrac = txTS.Seconds, txTS.Fraction

	return &resp, txTS
}

// rootDispersionSeconds computes sigma0 + sigma_drift * (now -
// last_edge): a server that has gone longer without a fresh PPS edge
// reports proportionally less confidence. sigma_drift is the
// configured worst-case drift assumption rather than the clock's live
// estimate, so dispersion keeps growing monotonically through holdover
// even before two fused edges exist to estimate drift from.
func (s *Server) rootDispersionSeconds(wallNow time.Time) float64 {
	sinceEdge := s.clock.TimeSinceLastEdge(wallNow).Seconds()
	driftSeconds := (s.cfg.AssumedDriftPPB / 1e9) * sinceEdge
	return s.cfg.BaseDispersion.Seconds() + driftSeconds
}

// encode16dot16 converts a duration expressed in seconds to unsigned
// 16.16 fixed point, clamping to the representable range rather than
// wrapping, since a dispersion value can never legitimately be
// negative or need more than 16 bits of whole seconds.
func encode16dot16(seconds float64) uint32 {
	if seconds < 0 {
		seconds = 0
	}
	const maxVal = float64(1<<32-1) / 65536.0
	if seconds > maxVal {
		seconds = maxVal
	}
	return uint32(seconds * 65536.0)
}
