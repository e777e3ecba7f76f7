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
Package health implements the Health Supervisor: it polls each of the
eight fixed services for a health sample, derives a composite score,
drives the SystemState machine, and issues bounded recovery commands
over a narrow channel rather than holding mutable references back into
the services it supervises.
*/
package health

import "fmt"

// ServiceName identifies one of the eight fixed supervised services.
type ServiceName uint8

const (
	Gnss ServiceName = iota
	Network
	Ntp
	Display
	Config
	Logging
	Metrics
	Hardware
)

// services is the fixed, ordered set of all supervised services.
var services = [...]ServiceName{Gnss, Network, Ntp, Display, Config, Logging, Metrics, Hardware}

func (n ServiceName) String() string {
	switch n {
	case Gnss:
		return "gnss"
	case Network:
		return "network"
	case Ntp:
		return "ntp"
	case Display:
		return "display"
	case Config:
		return "config"
	case Logging:
		return "logging"
	case Metrics:
		return "metrics"
	case Hardware:
		return "hardware"
	default:
		return fmt.Sprintf("service(%d)", uint8(n))
	}
}

// Status is a per-service health sample.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusCritical
	StatusWarning
	StatusHealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "HEALTHY"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// weight maps a Status to its share of the composite score:
// Healthy=4, Warning=2, Unknown=1, Critical=0.
func (s Status) weight() int {
	switch s {
	case StatusHealthy:
		return 4
	case StatusWarning:
		return 2
	case StatusUnknown:
		return 1
	default:
		return 0
	}
}

// atLeastWarning reports whether s is Warning or better, used for the
// Startup/Recovery integrity check's "gnss >= Warning" clause.
func (s Status) atLeastWarning() bool {
	return s == StatusWarning || s == StatusHealthy
}

// SystemState is the overall system state.
type SystemState uint8

const (
	StateInitializing SystemState = iota
	StateStartup
	StateRunning
	StateDegraded
	StateError
	StateRecovery
	StateShutdown
)

func (s SystemState) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StateStartup:
		return "STARTUP"
	case StateRunning:
		return "RUNNING"
	case StateDegraded:
		return "DEGRADED"
	case StateError:
		return "ERROR"
	case StateRecovery:
		return "RECOVERY"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "INVALID"
	}
}

// ServiceHealth is the per-service record the supervisor maintains.
type ServiceHealth struct {
	Name          ServiceName
	Status        Status
	LastSampleAt  int64 // unix nanos; 0 if never sampled
	ErrorCount    uint32
	LastErrorText string
}
