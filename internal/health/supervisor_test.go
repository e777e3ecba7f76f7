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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allHealthy(s *Supervisor) {
	for _, name := range services {
		s.RegisterService(name, FuncSampler(func(time.Time) Status { return StatusHealthy }))
	}
}

func TestSupervisor_StartupToRunning(t *testing.T) {
	s := NewSupervisor(DefaultConfig())
	allHealthy(s)
	s.MarkInitialized()
	require.Equal(t, StateStartup, s.State())

	s.Poll(time.Unix(1000, 0))
	assert.Equal(t, StateRunning, s.State())
	assert.Equal(t, 100, s.CompositeHealth())
}

func TestSupervisor_StartupStaysUntilIntegrityPasses(t *testing.T) {
	s := NewSupervisor(DefaultConfig())
	s.RegisterService(Network, FuncSampler(func(time.Time) Status { return StatusCritical }))
	s.MarkInitialized()

	s.Poll(time.Unix(1000, 0))
	assert.Equal(t, StateStartup, s.State(), "should not leave Startup while Network is Critical")
}

func TestSupervisor_RunningToDegradedAndBack(t *testing.T) {
	s := NewSupervisor(DefaultConfig())
	allHealthy(s)
	s.MarkInitialized()
	s.Poll(time.Unix(1000, 0))
	require.Equal(t, StateRunning, s.State())

	// Push composite below 70 by making half the services Unknown
	// (weight 1 instead of 4): (4*4 + 4*1)*100/32 = 62.
	count := 0
	for _, name := range services {
		count++
		if count > 4 {
			break
		}
		s.RegisterService(name, FuncSampler(func(time.Time) Status { return StatusUnknown }))
	}
	s.Poll(time.Unix(1001, 0))
	assert.Equal(t, StateDegraded, s.State())
	assert.Less(t, s.CompositeHealth(), 70)

	allHealthy(s)
	s.Poll(time.Unix(1002, 0))
	assert.Equal(t, StateRunning, s.State())
}

func TestSupervisor_ErrorAndAutoRecovery(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecoveryCooldown = 0
	s := NewSupervisor(cfg)
	allHealthy(s)
	s.MarkInitialized()
	s.Poll(time.Unix(1000, 0))
	require.Equal(t, StateRunning, s.State())

	// Drive every service Critical: composite 0, well under ErrorThreshold.
	for _, name := range services {
		s.RegisterService(name, FuncSampler(func(time.Time) Status { return StatusCritical }))
	}
	s.Poll(time.Unix(1001, 0))
	// With cooldown 0, Error immediately advances to Recovery in the same Poll.
	assert.Equal(t, StateRecovery, s.State())

	// Recovery commands should have been dispatched for Critical services.
	select {
	case cmd := <-s.Commands():
		assert.Equal(t, 1, cmd.Attempt)
	default:
		t.Fatal("expected a recovery command to be queued")
	}

	// Recover: all healthy again, integrity check passes -> Running.
	allHealthy(s)
	s.Poll(time.Unix(1002, 0))
	assert.Equal(t, StateRunning, s.State())
}

func TestSupervisor_RecoveryBoundedRetries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RecoveryCooldown = 0
	cfg.MaxRetries = 2
	s := NewSupervisor(cfg)
	allHealthy(s)
	s.MarkInitialized()
	s.Poll(time.Unix(0, 0))

	s.RegisterService(Hardware, FuncSampler(func(time.Time) Status { return StatusCritical }))

	var lastAction RecoveryActionKind
	for i := 0; i < 5; i++ {
		s.Poll(time.Unix(int64(i+1), 0))
	drain:
		for {
			select {
			case cmd := <-s.Commands():
				if cmd.Service == Hardware {
					lastAction = cmd.Action
				}
			default:
				break drain
			}
		}
	}
	assert.Equal(t, ActionLogOnly, lastAction, "after MaxRetries attempts, further commands should downgrade to log-only")
}

func TestSupervisor_SafeMode(t *testing.T) {
	s := NewSupervisor(DefaultConfig())
	allHealthy(s)
	s.MarkInitialized()
	s.Poll(time.Unix(0, 0))
	require.Equal(t, StateRunning, s.State())

	s.TriggerFatal("flash hardware failure")
	assert.True(t, s.IsSafeMode())
	assert.Equal(t, StateShutdown, s.State())

	// Further polls are no-ops once in Safe Mode.
	s.Poll(time.Unix(1, 0))
	assert.True(t, s.IsSafeMode())
}

func TestSupervisor_Snapshot(t *testing.T) {
	s := NewSupervisor(DefaultConfig())
	allHealthy(s)
	s.MarkInitialized()
	s.Poll(time.Unix(0, 0))

	snap := s.Snapshot()
	assert.Equal(t, StateRunning, snap.State)
	assert.Equal(t, 100, snap.CompositeHealth)
	assert.Len(t, snap.Services, 8)
	assert.Equal(t, StatusHealthy, snap.Services[Gnss].Status)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "HEALTHY", StatusHealthy.String())
	assert.Equal(t, "CRITICAL", StatusCritical.String())
	assert.Equal(t, "WARNING", StatusWarning.String())
	assert.Equal(t, "UNKNOWN", StatusUnknown.String())
}

func TestServiceName_String(t *testing.T) {
	assert.Equal(t, "gnss", Gnss.String())
	assert.Equal(t, "hardware", Hardware.String())
}
