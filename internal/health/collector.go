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

import "github.com/prometheus/client_golang/prometheus"

// Collector exposes the Supervisor's snapshot as Prometheus gauges,
// the same registration pattern ntpserver.Collector uses for the
// responder's counters. cmd/ntpctl status scrapes these over /metrics
// instead of through a bespoke admin RPC.
type Collector struct {
	supervisor    *Supervisor
	stateDesc     *prometheus.Desc
	compositeDesc *prometheus.Desc
	safeModeDesc  *prometheus.Desc
	serviceDesc   *prometheus.Desc
}

// NewCollector wraps supervisor for Prometheus registration.
func NewCollector(supervisor *Supervisor) *Collector {
	return &Collector{
		supervisor:    supervisor,
		stateDesc:     prometheus.NewDesc("gnssntpd_health_state", "Current SystemState, as its integer ordinal", nil, nil),
		compositeDesc: prometheus.NewDesc("gnssntpd_health_composite", "Composite health score, 0-100", nil, nil),
		safeModeDesc:  prometheus.NewDesc("gnssntpd_health_safe_mode", "1 if the supervisor has entered Safe Mode", nil, nil),
		serviceDesc:   prometheus.NewDesc("gnssntpd_health_service_status", "Per-service health status (0=Unknown,1=Critical,2=Warning,3=Healthy)", []string{"service"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stateDesc
	ch <- c.compositeDesc
	ch <- c.safeModeDesc
	ch <- c.serviceDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.supervisor.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, float64(snap.State))
	ch <- prometheus.MustNewConstMetric(c.compositeDesc, prometheus.GaugeValue, float64(snap.CompositeHealth))
	safeMode := 0.0
	if snap.SafeMode {
		safeMode = 1.0
	}
	ch <- prometheus.MustNewConstMetric(c.safeModeDesc, prometheus.GaugeValue, safeMode)

	for _, name := range services {
		rec, ok := snap.Services[name]
		status := StatusUnknown
		if ok {
			status = rec.Status
		}
		ch <- prometheus.MustNewConstMetric(c.serviceDesc, prometheus.GaugeValue, float64(status), name.String())
	}
}
