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

package configstore

// Typed getters and setters for the fields an operator can change at
// runtime. Every setter validates its input first and returns a
// *ValidationError without touching in-memory state on failure;
// changes become durable only on the next CommitCurrent.

// Hostname returns the configured device hostname.
func (s *Store) Hostname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Network.Hostname
}

// SetHostname validates and stages a new hostname.
func (s *Store) SetHostname(hostname string) error {
	if len(hostname) == 0 || len(hostname) > 31 {
		return &ValidationError{Field: "network.hostname", Reason: "must be 1-31 characters"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Network.Hostname = hostname
	return nil
}

// LogLevel returns the configured syslog-style log level.
func (s *Store) LogLevel() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Logging.LogLevel
}

// SetLogLevel validates and stages a new log level.
func (s *Store) SetLogLevel(level int) error {
	if level < 0 || level > 7 {
		return &ValidationError{Field: "logging.log_level", Reason: "must be in 0..=7"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Logging.LogLevel = level
	return nil
}

// SetSyslogDestination stages the remote-syslog host and port; an
// empty host disables remote logging and ignores the port.
func (s *Store) SetSyslogDestination(host string, port int) error {
	if host != "" && (port <= 0 || port > 65535) {
		return &ValidationError{Field: "logging.syslog_port", Reason: "must be in 1..=65535"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Logging.SyslogServer = host
	if host != "" {
		s.record.Logging.SyslogPort = port
	}
	return nil
}

// GnssUpdateRate returns the configured receiver navigation rate in Hz.
func (s *Store) GnssUpdateRate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Gnss.UpdateRateHz
}

// SetGnssUpdateRate validates and stages a new receiver navigation
// rate.
func (s *Store) SetGnssUpdateRate(hz int) error {
	if hz < 1 || hz > 10 {
		return &ValidationError{Field: "gnss.update_rate_hz", Reason: "must be in 1..=10"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Gnss.UpdateRateHz = hz
	return nil
}

// SetConstellations stages the receiver constellation enable flags.
// At least one constellation must remain enabled — a receiver tracking
// nothing can never produce a fix.
func (s *Store) SetConstellations(g GnssConfig) error {
	if !g.GPSEnabled && !g.GLONASSEnabled && !g.GalileoEnabled && !g.BeiDouEnabled && !g.QZSSEnabled {
		return &ValidationError{Field: "gnss.constellations", Reason: "at least one constellation must be enabled"}
	}
	if g.QZSSL1SEnabled && !g.QZSSEnabled {
		return &ValidationError{Field: "gnss.qzss_l1s_enabled", Reason: "requires qzss_enabled"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Gnss.GPSEnabled = g.GPSEnabled
	s.record.Gnss.GLONASSEnabled = g.GLONASSEnabled
	s.record.Gnss.GalileoEnabled = g.GalileoEnabled
	s.record.Gnss.BeiDouEnabled = g.BeiDouEnabled
	s.record.Gnss.QZSSEnabled = g.QZSSEnabled
	s.record.Gnss.QZSSL1SEnabled = g.QZSSL1SEnabled
	return nil
}

// NtpPort returns the configured NTP listen port.
func (s *Store) NtpPort() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Ntp.Port
}

// SetNtpPort validates and stages a new NTP listen port. Takes effect
// on restart; the listening socket is bound once at startup.
func (s *Store) SetNtpPort(port int) error {
	if port <= 0 || port > 65535 {
		return &ValidationError{Field: "ntp.port", Reason: "must be in 1..=65535"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Ntp.Port = port
	return nil
}

// UnsyncPolicy returns how the server treats requests while
// unsynchronized.
func (s *Store) UnsyncPolicy() UnsyncPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.Ntp.UnsynchronizedBehavior
}

// SetUnsyncPolicy stages the unsynchronized-request policy.
func (s *Store) SetUnsyncPolicy(p UnsyncPolicy) error {
	if p != RespondStratum16 && p != DropRequest {
		return &ValidationError{Field: "ntp.unsynchronized_behavior", Reason: "unknown policy value"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.Ntp.UnsynchronizedBehavior = p
	return nil
}

// DisasterAlertPriority returns the configured QZSS L1S disaster-alert
// priority.
func (s *Store) DisasterAlertPriority() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.record.System.DisasterAlertPriority
}

// SetDisasterAlertPriority validates and stages a new disaster-alert
// priority.
func (s *Store) SetDisasterAlertPriority(priority int) error {
	if priority < 0 || priority > 2 {
		return &ValidationError{Field: "system.disaster_alert_priority", Reason: "must be in 0..=2"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record.System.DisasterAlertPriority = priority
	return nil
}

// CommitCurrent persists the in-memory record as it stands, making
// staged setter changes durable. Committing an unmodified record
// rewrites the inactive slot byte-identically aside from the commit
// timestamp.
func (s *Store) CommitCurrent() error {
	if !s.commitMu.TryLock() {
		return ErrBusy
	}
	defer s.commitMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.commitLocked(s.record)
	s.lastCommitFailed = err != nil
	return err
}
