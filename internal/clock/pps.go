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
Package clock implements the PPS-disciplined clock model: it fuses a
hardware PPS edge timestamp with GNSS wall-clock fixes into an NTP
timestamp. There is no local-oscillator servo loop to steer — only an
anchor to re-publish on every edge, and a state machine to track how
stale that anchor is.
*/
package clock

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/stratum1/gnssntpd/internal/hw"
	"github.com/stratum1/gnssntpd/internal/ntptime"
)

// State is the PPS discipline state: how trustworthy the current
// anchor is, not a servo convergence state.
type State uint8

const (
	// StateUnknown is the state at boot, before any PPS edge has been seen.
	StateUnknown State = iota
	// StateWarming is entered on the first PPS edge, before a UBX time
	// fix has been fused with it.
	StateWarming
	// StateLocked means the anchor is fresh: a PPS edge and a matching
	// UBX time fix have been fused.
	StateLocked
	// StateHoldover means PPS edges stopped arriving recently, but a
	// Locked anchor is still being used to extrapolate time.
	StateHoldover
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateWarming:
		return "WARMING"
	case StateLocked:
		return "LOCKED"
	case StateHoldover:
		return "HOLDOVER"
	default:
		return "INVALID"
	}
}

// Stratum derives the NTP stratum to advertise from the PPS state:
// a fresh anchor is a stratum-1 primary reference, holdover degrades
// to 2, and anything else is unsynchronized (16).
func (s State) Stratum() uint8 {
	switch s {
	case StateLocked:
		return 1
	case StateHoldover:
		return 2
	default:
		return 16
	}
}

// Default timing parameters.
const (
	DefaultHoldoverGrace  = 3 * time.Second   // Locked -> Holdover if no edge within this
	DefaultHoldoverMax    = 600 * time.Second // Holdover -> Unknown after this much total loss
	DefaultUbxMatchWindow = 50 * time.Millisecond
)

// PpsAnchor is the central clock state. It is updated only by the PPS
// edge handler and its deferred fuse step, and is read by any reader
// through Clock.Snapshot, a cheap value copy — never a pointer into
// live state.
type PpsAnchor struct {
	MonoAtEdge      hw.Tick
	WallSecondsEdge int64
	LastEdgeMono    hw.Tick
	LastEdgeAt      time.Time // wall-clock time .Now() was called for LastEdgeMono's host tick, used only to drive the state machine's wall-clock timeouts
	State           State
	DriftPPB        float64
	LeapHint        uint8
}

// WallFix is a GNSS time fix delivered by the (external) UBX parser on
// each time-bearing message. It carries exactly the fields the
// deferred PPS handler needs to decide whether to fuse with the most
// recent edge.
type WallFix struct {
	UnixSeconds   int64
	Nanos         int64
	TimeValid     bool
	DateValid     bool
	LeapHint      uint8
	StratumSource uint8
	ReceivedAt    time.Time
}

// Valid reports whether this fix carries a usable wall time: both the
// receiver's time and date valid flags must be set.
func (f WallFix) Valid() bool { return f.TimeValid && f.DateValid }

// Config bundles the configurable tolerance windows rather than
// burying them as constants: the edge/fix match window is
// receiver-dependent and worth tuning at the system boundary.
type Config struct {
	UbxMatchWindow time.Duration
	HoldoverGrace  time.Duration
	HoldoverMax    time.Duration
}

// DefaultConfig returns the default tolerances.
func DefaultConfig() Config {
	return Config{
		UbxMatchWindow: DefaultUbxMatchWindow,
		HoldoverGrace:  DefaultHoldoverGrace,
		HoldoverMax:    DefaultHoldoverMax,
	}
}

// Clock owns the PpsAnchor behind a mutex standing in for the
// interrupt-masked critical section a bare-metal port would use
// (disabling the PPS interrupt for the handful of cycles needed to
// publish a new anchor). On real hardware the ISR captures MonoAtEdge
// with a bounded-cycle-count handler and hands off to this deferred
// fuse step; here both halves are plain methods since there is no
// interrupt context in this Go model.
type Clock struct {
	mono hw.MonotonicClock
	cfg  Config

	mu       sync.Mutex
	anchor   PpsAnchor
	lastFix  *WallFix
	prevMono hw.Tick
	prevWall int64
	havePrev bool
}

// driftSmoothing is the low-pass filter weight given to each new
// one-second drift sample: small enough that one noisy UBX fix cannot
// swing the published estimate, large enough to track a real
// oscillator trend within a few tens of seconds.
const driftSmoothing = 0.1

// leapAlarmHint is the NTP leap-indicator "alarm" value (clock not
// synchronized), kept local so this package does not need to import
// ntppacket just for one constant.
const leapAlarmHint = 3

// New creates a Clock reading from the given monotonic counter.
func New(mono hw.MonotonicClock, cfg Config) *Clock {
	return &Clock{mono: mono, cfg: cfg, anchor: PpsAnchor{State: StateUnknown, LeapHint: leapAlarmHint}}
}

// HandleEdge is the deferred half of the PPS edge handler contract:
// the ISR captures monoAtEdge with minimum latency and this call
// advances the state machine. mono is the tick captured at the rising
// edge; wallAt is the host-side time.Now() used purely to drive the
// wall-clock holdover timeouts (never the source of truth for NTP
// timestamps).
func (c *Clock) HandleEdge(mono hw.Tick, wallAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.anchor.LastEdgeMono = mono
	c.anchor.LastEdgeAt = wallAt

	switch c.anchor.State {
	case StateUnknown:
		c.anchor.State = StateWarming
		log.Debug("[clock] first PPS edge seen, entering WARMING")
	case StateHoldover:
		c.anchor.State = StateLocked
		log.Info("[clock] PPS edge resumed, returning to LOCKED")
	}

	c.tryFuse(mono, wallAt)
}

// HandleWallFix is invoked on every time-bearing UBX message and
// attempts to fuse with the most recent PPS edge.
func (c *Clock) HandleWallFix(fix WallFix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFix = &fix
	if c.anchor.State == StateWarming {
		c.tryFuse(c.anchor.LastEdgeMono, c.anchor.LastEdgeAt)
	}
	if fix.Valid() {
		c.anchor.LeapHint = fix.LeapHint
	}
}

// tryFuse correlates the latest fix with the given edge. The PPS edge
// is treated as marking the START of a wall second (u-blox receivers
// pulse at the boundary of the second about to begin), so a valid UBX
// fix whose ReceivedAt lands within UbxMatchWindow of the edge commits
// second_of_fix+1 as the anchored wall second. Caller must hold c.mu.
func (c *Clock) tryFuse(edgeMono hw.Tick, edgeAt time.Time) {
	fix := c.lastFix
	if fix == nil || !fix.Valid() {
		return
	}
	delta := fix.ReceivedAt.Sub(edgeAt)
	if delta < 0 {
		delta = -delta
	}
	if delta > c.cfg.UbxMatchWindow {
		return
	}

	c.updateDrift(edgeMono, fix.UnixSeconds+1)

	c.anchor.MonoAtEdge = edgeMono
	c.anchor.WallSecondsEdge = fix.UnixSeconds + 1
	c.anchor.LeapHint = fix.LeapHint
	if c.anchor.State != StateLocked {
		log.Infof("[clock] fused PPS edge with UBX fix, wall_seconds_at_edge=%d, entering LOCKED", c.anchor.WallSecondsEdge)
	}
	c.anchor.State = StateLocked
}

// updateDrift maintains PpsAnchor.DriftPPB, a low-pass-filtered
// estimate of oscillator drift in parts-per-billion, derived from how
// many ticks elapsed between consecutive anchors versus how many the
// nominal TickRate predicted for the wall seconds elapsed. Caller must
// hold c.mu.
func (c *Clock) updateDrift(newMono hw.Tick, newWall int64) {
	defer func() {
		c.prevMono, c.prevWall, c.havePrev = newMono, newWall, true
	}()
	if !c.havePrev {
		return
	}
	wallElapsed := newWall - c.prevWall
	if wallElapsed <= 0 {
		return
	}
	rate := int64(c.mono.TickRate())
	if rate <= 0 {
		return
	}
	ticksElapsed := c.mono.Sub(newMono, c.prevMono)
	expectedTicks := wallElapsed * rate
	sampledPPB := float64(ticksElapsed-expectedTicks) / float64(expectedTicks) * 1e9

	c.anchor.DriftPPB = c.anchor.DriftPPB + driftSmoothing*(sampledPPB-c.anchor.DriftPPB)
}

// Tick re-evaluates the wall-clock timeouts (Locked->Holdover after
// HoldoverGrace with no edge, Holdover->Unknown after HoldoverMax total
// loss). Intended to be called from the high-priority task band
// alongside timestamp sampling.
func (c *Clock) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.anchor.LastEdgeAt.IsZero() {
		return
	}
	sinceEdge := now.Sub(c.anchor.LastEdgeAt)

	switch c.anchor.State {
	case StateLocked:
		if sinceEdge > c.cfg.HoldoverGrace {
			c.anchor.State = StateHoldover
			log.Warningf("[clock] no PPS edge for %s, entering HOLDOVER", sinceEdge)
		}
	case StateHoldover:
		if sinceEdge > c.cfg.HoldoverMax {
			c.anchor.State = StateUnknown
			log.Errorf("[clock] no PPS edge for %s (> holdover max), entering UNKNOWN", sinceEdge)
		}
	}
}

// Snapshot returns a consistent copy of the PPS anchor. The mutex
// stands in for the sequence-lock retry pattern a bare-metal port
// would use (readers retrying on a torn read); a mutex is the
// straightforward equivalent in this cooperative, non-ISR Go model.
func (c *Clock) Snapshot() PpsAnchor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.anchor
}

// Precision returns the precision exponent e such that 2^e seconds
// bounds the read-to-read resolution of Now.
func (c *Clock) Precision() int8 {
	rate := c.mono.TickRate()
	if rate == 0 {
		return 0
	}
	e := int8(0)
	for r := rate; r > 1; r >>= 1 {
		e--
	}
	return e
}

// Now is the sole read path: it converts a current read of the
// monotonic counter into an NTP timestamp using the most recent PPS
// edge as anchor.
func (c *Clock) Now() ntptime.Timestamp {
	anchor := c.Snapshot()
	nowMono := c.mono.Now()

	if anchor.State != StateLocked && anchor.State != StateHoldover {
		// Unsynchronized: still return a timestamp so callers always
		// have something to log, but they must honor Stratum()==16 and
		// refuse/flag the response.
		return ntptime.FromUnix(0, 0)
	}

	delta := c.mono.Sub(nowMono, anchor.MonoAtEdge)
	rate := int64(c.mono.TickRate())
	if rate <= 0 {
		rate = 1
	}

	wholeSeconds := delta / rate
	remainder := delta % rate
	if remainder < 0 {
		// mono.Sub should never go negative for nowMono >= edge, but
		// guard against a racing edge update.
		remainder = 0
		wholeSeconds = 0
	}

	unixSeconds := anchor.WallSecondsEdge + wholeSeconds
	fraction := (remainder << 32) / rate
	if fraction >= 1<<32 {
		fraction = 1<<32 - 1
	}

	return ntptime.Timestamp{
		Seconds:  uint32(unixSeconds + ntptime.UnixToNTPEpochSeconds), // #nosec G115 -- 32-bit wire width
		Fraction: uint32(fraction),
	}
}

// LeapIndicator returns the current NTP leap indicator value: the
// latest GNSS leap hint while Locked, LeapAlarm(3) otherwise.
func (c *Clock) LeapIndicator() uint8 {
	anchor := c.Snapshot()
	if anchor.State == StateLocked {
		return anchor.LeapHint
	}
	return leapAlarmHint
}

// StratumFromState returns the NTP stratum the server should
// advertise right now.
func (c *Clock) StratumFromState() uint8 {
	return c.Snapshot().State.Stratum()
}

// ReferenceTimestamp returns the last PPS-anchor wall time converted
// to NTP, for the response's reference_timestamp field.
func (c *Clock) ReferenceTimestamp() ntptime.Timestamp {
	anchor := c.Snapshot()
	return ntptime.FromUnix(anchor.WallSecondsEdge, 0)
}

// TimeSinceLastEdge returns how long it has been since the last PPS
// edge was observed, using the same host-time basis HandleEdge and
// Tick use to drive the state machine's timeouts.
func (c *Clock) TimeSinceLastEdge(now time.Time) time.Duration {
	anchor := c.Snapshot()
	if anchor.LastEdgeAt.IsZero() {
		return 0
	}
	return now.Sub(anchor.LastEdgeAt)
}

// DriftPPB returns the current low-pass-filtered oscillator drift
// estimate, in parts-per-billion.
func (c *Clock) DriftPPB() float64 {
	return c.Snapshot().DriftPPB
}
