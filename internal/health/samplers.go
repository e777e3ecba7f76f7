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

package health

import (
	"time"

	"github.com/stratum1/gnssntpd/internal/hw"
)

// Sampler produces one service's health sample per poll. Each
// supervised service is wired to the Supervisor through one of these,
// never through a mutable back-reference.
type Sampler interface {
	Sample(now time.Time) Status
}

// FuncSampler adapts a plain function to Sampler, for services whose
// health check is a single expression (e.g. Display, Logging).
type FuncSampler func(now time.Time) Status

// Sample implements Sampler.
func (f FuncSampler) Sample(now time.Time) Status { return f(now) }

// AlwaysHealthy is a stub Sampler for services this module does not
// itself observe (Display and Logging render/transport live outside
// it); wiring it keeps the composite score's fixed 8-service
// denominator meaningful instead of silently excluding a service from
// the formula.
func AlwaysHealthy(time.Time) Status { return StatusHealthy }

// clockSource is the subset of *clock.Clock a GnssSampler needs. Kept
// as a local interface, mirroring ntpserver's clockSource, so this
// package never imports clock's concrete type.
type clockSource interface {
	StratumFromState() uint8
}

// statusFromStratum maps the PPS discipline state to a health status
// (Locked->Healthy, Holdover->Warning, Unknown/Warming->Critical)
// without importing the clock package: StratumFromState already
// encodes exactly that distinction as 1 / 2 / 16.
func statusFromStratum(stratum uint8) Status {
	switch stratum {
	case 1:
		return StatusHealthy
	case 2:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// GnssSampler derives the Gnss service's health from the clock's PPS
// discipline state. The GNSS UART/UBX parser itself lives outside
// this module; this is the Health Supervisor's only window onto it,
// via the clock's derived stratum.
type GnssSampler struct {
	Clock clockSource
}

// Sample implements Sampler.
func (g GnssSampler) Sample(time.Time) Status {
	return statusFromStratum(g.Clock.StratumFromState())
}

// NetworkSampler derives the Network service's health from the
// link-state collaborator: link-up with an address assigned is
// Healthy, link-up alone is Warning, anything else Critical.
type NetworkSampler struct {
	Link hw.LinkStatus
}

// Sample implements Sampler.
func (n NetworkSampler) Sample(time.Time) Status {
	if !n.Link.LinkUp() {
		return StatusCritical
	}
	if n.Link.IPAssigned() {
		return StatusHealthy
	}
	return StatusWarning
}

// NtpSampler derives the Ntp service's health from the responder's
// counters: a rising responses_sent (or a short quiet spell) is
// Healthy, send failures past a threshold are Warning, an
// invalid-request storm is Critical. It reads the counters through
// plain func fields rather than by importing ntpserver directly, so
// this package has no dependency cycle risk and can be unit tested
// with funcs returning bare ints.
type NtpSampler struct {
	// IdleSince returns how long it has been since the last request was
	// received (ntpserver.Stats.IdleSince).
	IdleSince func(now time.Time) time.Duration
	// ResponsesSent and SendFailed and RequestsInvalid are read fresh on
	// every Sample call; the sampler keeps its own previous-value state
	// to detect a rising responses_sent counter and a request-invalid
	// storm between polls.
	ResponsesSent   func() int64
	SendFailed      func() int64
	RequestsInvalid func() int64

	SendFailedWarnThreshold   int64
	InvalidStormPerPollThresh int64
	IdleHealthyWindow         time.Duration

	prevResponsesSent   int64
	prevSendFailed      int64
	prevRequestsInvalid int64
	havePrev            bool
}

// DefaultIdleHealthyWindow is how long the responder may sit idle
// before quiet stops counting as healthy.
const DefaultIdleHealthyWindow = 30 * time.Second

// Sample implements Sampler.
func (n *NtpSampler) Sample(now time.Time) Status {
	responses := n.ResponsesSent()
	failed := n.SendFailed()
	invalid := n.RequestsInvalid()

	window := n.IdleHealthyWindow
	if window == 0 {
		window = DefaultIdleHealthyWindow
	}

	var rising bool
	var failedDelta, invalidDelta int64
	if n.havePrev {
		rising = responses > n.prevResponsesSent
		failedDelta = failed - n.prevSendFailed
		invalidDelta = invalid - n.prevRequestsInvalid
	}
	n.prevResponsesSent, n.prevSendFailed, n.prevRequestsInvalid, n.havePrev = responses, failed, invalid, true

	stormThresh := n.InvalidStormPerPollThresh
	if stormThresh == 0 {
		stormThresh = 50
	}
	if invalidDelta > stormThresh {
		return StatusCritical
	}

	warnThresh := n.SendFailedWarnThreshold
	if warnThresh == 0 {
		warnThresh = 5
	}
	if failedDelta > warnThresh {
		return StatusWarning
	}

	if rising || n.IdleSince(now) < window {
		return StatusHealthy
	}
	return StatusWarning
}

// ConfigSampler derives the Config service's health: a valid
// in-memory record is Healthy, a failed last commit Warning, detected
// corruption Critical.
type ConfigSampler struct {
	// Health returns the store's current health flags
	// (configstore.Store.HealthStatus, adapted by the caller so this
	// package does not need to import configstore for one struct).
	Health func() (lastCommitFailed, corruptionFallback bool)
}

// Sample implements Sampler.
func (c ConfigSampler) Sample(time.Time) Status {
	failed, corrupt := c.Health()
	switch {
	case corrupt:
		return StatusCritical
	case failed:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// HardwareSampler derives the Hardware service's health from a
// self-test collaborator: a pass is Healthy, a response-time probe
// over 2ms Warning, over 5ms Critical.
type HardwareSampler struct {
	Tester hw.SelfTester

	WarnLatency     time.Duration
	CriticalLatency time.Duration
}

const (
	defaultHardwareWarnLatency     = 2 * time.Millisecond
	defaultHardwareCriticalLatency = 5 * time.Millisecond
)

// Sample implements Sampler.
func (h HardwareSampler) Sample(time.Time) Status {
	if err := h.Tester.SelfTest(); err != nil {
		return StatusCritical
	}
	warn, crit := h.WarnLatency, h.CriticalLatency
	if warn == 0 {
		warn = defaultHardwareWarnLatency
	}
	if crit == 0 {
		crit = defaultHardwareCriticalLatency
	}
	latency := h.Tester.ProbeLatency()
	switch {
	case latency > crit:
		return StatusCritical
	case latency > warn:
		return StatusWarning
	default:
		return StatusHealthy
	}
}
