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
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// RecoveryActionKind enumerates the bounded recovery actions the
// supervisor can request.
type RecoveryActionKind uint8

const (
	ActionGnssReinit RecoveryActionKind = iota
	ActionNetworkRenegotiate
	ActionConfigFactoryReset
	ActionLogOnly
	ActionRequestRestart
)

func (a RecoveryActionKind) String() string {
	switch a {
	case ActionGnssReinit:
		return "gnss-reinit"
	case ActionNetworkRenegotiate:
		return "network-renegotiate"
	case ActionConfigFactoryReset:
		return "config-factory-reset"
	case ActionRequestRestart:
		return "request-restart"
	default:
		return "log-only"
	}
}

// RecoveryCommand is sent over Supervisor.Commands() rather than
// invoked via a direct back-reference into the failing service: the
// supervisor only ever reads snapshots, it never holds a mutable
// handle on what it supervises.
type RecoveryCommand struct {
	Service ServiceName
	Action  RecoveryActionKind
	Attempt int
}

// actionForService maps a Critical service to its recovery action.
// There is no memory-low service among the fixed eight; that condition
// is log-only by the time it is observable anyway.
func actionForService(name ServiceName) RecoveryActionKind {
	switch name {
	case Gnss:
		return ActionGnssReinit
	case Network:
		return ActionNetworkRenegotiate
	case Config:
		return ActionConfigFactoryReset
	case Hardware:
		return ActionRequestRestart
	default:
		return ActionLogOnly
	}
}

// Notifier is the process-supervisor readiness/watchdog collaborator.
// The real implementation wraps sd_notify; tests use a no-op.
type Notifier interface {
	NotifyReady()
	NotifyWatchdog()
}

// NoopNotifier implements Notifier with no effect, for hosts with no
// supervising init system and for tests.
type NoopNotifier struct{}

// NotifyReady implements Notifier.
func (NoopNotifier) NotifyReady() {}

// NotifyWatchdog implements Notifier.
func (NoopNotifier) NotifyWatchdog() {}

// Config bundles the Supervisor's tunables.
type Config struct {
	// DegradedThreshold and ErrorThreshold are the composite-health
	// crossing points (default 70 and 30).
	DegradedThreshold int
	ErrorThreshold    int
	// AutoRecoveryEnabled gates the Error->Recovery transition.
	AutoRecoveryEnabled bool
	// RecoveryCooldown is the minimum wait between recovery attempts.
	RecoveryCooldown time.Duration
	// MaxRetries bounds per-service recovery attempts before
	// downgrading to Log-Only.
	MaxRetries int
	Notifier   Notifier
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		DegradedThreshold:   70,
		ErrorThreshold:      30,
		AutoRecoveryEnabled: true,
		RecoveryCooldown:    30 * time.Second,
		MaxRetries:          3,
		Notifier:            NoopNotifier{},
	}
}

// Snapshot is a point-in-time copy of the supervisor's state, consumed
// by the admin surface and by cmd/ntpctl.
type Snapshot struct {
	State           SystemState
	CompositeHealth int
	SafeMode        bool
	Services        map[ServiceName]ServiceHealth
}

// Supervisor polls every registered service on a fixed cadence,
// derives a composite score, and drives SystemState transitions and
// bounded recovery commands.
type Supervisor struct {
	cfg Config

	mu           sync.Mutex
	samplers     map[ServiceName]Sampler
	records      map[ServiceName]ServiceHealth
	state        SystemState
	composite    int
	safeMode     bool
	safeModeWhy  string
	retryCounts  map[ServiceName]int
	lastRecovery time.Time

	commands chan RecoveryCommand
}

// NewSupervisor constructs a Supervisor with every one of the eight
// fixed services defaulted to AlwaysHealthy; callers override specific
// services with RegisterService before the first Poll.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.Notifier == nil {
		cfg.Notifier = NoopNotifier{}
	}
	s := &Supervisor{
		cfg:         cfg,
		samplers:    make(map[ServiceName]Sampler, len(services)),
		records:     make(map[ServiceName]ServiceHealth, len(services)),
		retryCounts: make(map[ServiceName]int, len(services)),
		state:       StateInitializing,
		commands:    make(chan RecoveryCommand, len(services)),
	}
	for _, name := range services {
		s.samplers[name] = FuncSampler(AlwaysHealthy)
		s.records[name] = ServiceHealth{Name: name, Status: StatusUnknown}
	}
	return s
}

// RegisterService wires a concrete Sampler for one of the eight fixed
// services, replacing the AlwaysHealthy default.
func (s *Supervisor) RegisterService(name ServiceName, sampler Sampler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samplers[name] = sampler
}

// Commands returns the channel recovery commands are sent on. The
// caller (cmd/ntpd) is expected to drain it and perform the named
// action against the concrete service.
func (s *Supervisor) Commands() <-chan RecoveryCommand { return s.commands }

// MarkInitialized drives Initializing -> Startup once construction and
// wiring have completed.
func (s *Supervisor) MarkInitialized() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateInitializing {
		s.state = StateStartup
		log.Info("[health] initialization complete, entering STARTUP")
	}
}

// TriggerFatal enters Safe Mode: clock and config become read-only and
// the NTP server stops responding from the caller's perspective. This
// package only records the state; cmd/ntpd is responsible for actually
// stopping those services when IsSafeMode() is true.
func (s *Supervisor) TriggerFatal(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.safeMode = true
	s.safeModeWhy = reason
	s.state = StateShutdown
	log.Errorf("[health] FATAL: %s, entering Safe Mode", reason)
}

// IsSafeMode reports whether a Fatal error has put the system in Safe
// Mode.
func (s *Supervisor) IsSafeMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.safeMode
}

// SafeModeReason returns the cause recorded by TriggerFatal, for the
// display/status surface.
func (s *Supervisor) SafeModeReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.safeModeWhy
}

// State returns the current SystemState.
func (s *Supervisor) State() SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CompositeHealth returns the most recently computed composite score.
func (s *Supervisor) CompositeHealth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.composite
}

// ReportError attaches an error description to one service's record;
// the text rides along with the next Snapshot so operators see what
// failed last, not just how often.
func (s *Supervisor) ReportError(name ServiceName, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[name]
	rec.LastErrorText = text
	rec.ErrorCount++
	s.records[name] = rec
}

// Snapshot returns a point-in-time copy safe to hand to an unrelated
// reader.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := Snapshot{State: s.state, CompositeHealth: s.composite, SafeMode: s.safeMode, Services: make(map[ServiceName]ServiceHealth, len(s.records))}
	for name, rec := range s.records {
		out.Services[name] = rec
	}
	return out
}

// Poll samples every registered service, recomputes the composite
// score, advances the SystemState machine, and dispatches bounded
// recovery commands for any Critical service. Intended to be called on
// a fixed 5-second cadence.
func (s *Supervisor) Poll(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.safeMode {
		return
	}

	sum := 0
	for _, name := range services {
		st := s.samplers[name].Sample(now)
		rec := s.records[name]
		if st != rec.Status {
			log.Infof("[health] %s: %s -> %s", name, rec.Status, st)
		}
		if st == StatusCritical {
			rec.ErrorCount++
		}
		rec.Status = st
		rec.LastSampleAt = now.UnixNano()
		s.records[name] = rec
		sum += st.weight()
	}

	s.composite = sum * 100 / (len(services) * 4)

	s.advanceState(now)
	s.dispatchRecovery(now)

	if s.composite >= s.cfg.ErrorThreshold {
		s.cfg.Notifier.NotifyWatchdog()
	}
}

// integrityCheckPass is the gate on Startup->Running and
// Recovery->Running: network and config fully healthy, GNSS at least
// in holdover.
func (s *Supervisor) integrityCheckPass() bool {
	network := s.records[Network].Status
	config := s.records[Config].Status
	gnss := s.records[Gnss].Status
	return network == StatusHealthy && config == StatusHealthy && gnss.atLeastWarning()
}

// advanceState implements the SystemState transition table. Caller
// must hold s.mu.
func (s *Supervisor) advanceState(now time.Time) {
	switch s.state {
	case StateStartup:
		if s.integrityCheckPass() {
			s.state = StateRunning
			s.cfg.Notifier.NotifyReady()
			log.Info("[health] integrity check passed, entering RUNNING")
		}
	case StateRunning:
		if s.composite < s.cfg.DegradedThreshold {
			s.state = StateDegraded
			log.Warnf("[health] composite %d < %d, entering DEGRADED", s.composite, s.cfg.DegradedThreshold)
		}
	case StateDegraded:
		if s.composite >= s.cfg.DegradedThreshold {
			s.state = StateRunning
			log.Infof("[health] composite %d >= %d, returning to RUNNING", s.composite, s.cfg.DegradedThreshold)
		}
	case StateRecovery:
		if s.integrityCheckPass() {
			s.state = StateRunning
			log.Info("[health] recovery succeeded, entering RUNNING")
		} else if now.Sub(s.lastRecovery) > s.cfg.RecoveryCooldown {
			s.state = StateError
			log.Warn("[health] recovery attempt failed integrity check, returning to ERROR")
		}
	}

	// A collapse below the error threshold overrides whatever branch
	// ran above, except in Initializing or once already in
	// Error/Recovery/Shutdown.
	if s.composite < s.cfg.ErrorThreshold && s.state != StateError && s.state != StateRecovery && s.state != StateShutdown && s.state != StateInitializing {
		log.Errorf("[health] composite %d < %d, entering ERROR", s.composite, s.cfg.ErrorThreshold)
		s.state = StateError
	}

	if s.state == StateError && s.cfg.AutoRecoveryEnabled && now.Sub(s.lastRecovery) > s.cfg.RecoveryCooldown {
		s.state = StateRecovery
		s.lastRecovery = now
		log.Info("[health] auto-recovery cooldown elapsed, entering RECOVERY")
	}
}

// dispatchRecovery sends a bounded RecoveryCommand for every service
// currently sampled Critical. After MaxRetries attempts a service is
// downgraded to Log-Only. Caller must hold s.mu.
func (s *Supervisor) dispatchRecovery(now time.Time) {
	for _, name := range services {
		rec := s.records[name]
		if rec.Status != StatusCritical {
			s.retryCounts[name] = 0
			continue
		}
		action := actionForService(name)
		attempt := s.retryCounts[name] + 1
		if s.cfg.MaxRetries > 0 && attempt > s.cfg.MaxRetries {
			action = ActionLogOnly
		} else {
			s.retryCounts[name] = attempt
		}
		cmd := RecoveryCommand{Service: name, Action: action, Attempt: attempt}
		select {
		case s.commands <- cmd:
		default:
			log.Warnf("[health] recovery command channel full, dropping %s command for %s", action, name)
		}
	}
}
