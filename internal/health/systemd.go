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
	"github.com/coreos/go-systemd/daemon"
	log "github.com/sirupsen/logrus"
)

// SystemdNotifier implements Notifier via sd_notify, the same
// best-effort pattern ptp/c4u/c4u.go's SdNotify helper uses: readiness
// on Startup->Running, a watchdog pulse on every healthy poll tick.
type SystemdNotifier struct{}

// NotifyReady implements Notifier.
func (SystemdNotifier) NotifyReady() {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	switch {
	case !supported && err != nil:
		log.Warnf("[health] sd_notify ready failed: %v", err)
	case !supported:
		log.Debug("[health] sd_notify not supported, skipping readiness notification")
	default:
		log.Debug("[health] sent sd_notify READY=1")
	}
}

// NotifyWatchdog implements Notifier.
func (SystemdNotifier) NotifyWatchdog() {
	supported, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog)
	switch {
	case !supported && err != nil:
		log.Warnf("[health] sd_notify watchdog failed: %v", err)
	case !supported:
		// Not running under a supervisor with a watchdog configured;
		// nothing to do every 5s.
	default:
		log.Debug("[health] sent sd_notify WATCHDOG=1")
	}
}
