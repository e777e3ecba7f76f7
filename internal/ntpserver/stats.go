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
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds the responder's operational counters: requests_total,
// requests_valid, requests_invalid, responses_sent, rate_limited,
// send_failed, plus a moving average of end-to-end processing time.
// Counters are plain atomics, monotonic within an uptime, exported
// through Prometheus since the rest of this module's observability is
// Prometheus native (see cmd/ntpd).
type Stats struct {
	requestsTotal   int64
	requestsValid   int64
	requestsInvalid int64
	responsesSent   int64
	rateLimited     int64
	sendFailed      int64
	invalidSize     int64
	invalidMode     int64

	// processingNanosEWMA is a low-pass-filtered moving average of
	// T_tx - T_rx, stored as an int64 nanosecond count so it can be
	// updated with a single atomic store.
	processingNanosEWMA int64

	// lastRequestUnixNano backs the Health Supervisor's NTP service
	// derivation: a quiet responder is healthy as long as the quiet
	// spell is short.
	lastRequestUnixNano int64
}

const processingEWMAWeight = 0.2

// NewStats constructs an empty counter set.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) IncRequestsTotal()   { atomic.AddInt64(&s.requestsTotal, 1) }

// MarkRequestSeen records when the most recent datagram arrived, for
// IdleSince.
func (s *Stats) MarkRequestSeen(now time.Time) {
	atomic.StoreInt64(&s.lastRequestUnixNano, now.UnixNano())
}

// IdleSince returns how long it has been since the last request was
// seen, or 0 if none has ever been seen.
func (s *Stats) IdleSince(now time.Time) time.Duration {
	last := atomic.LoadInt64(&s.lastRequestUnixNano)
	if last == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, last))
}
func (s *Stats) IncRequestsValid()   { atomic.AddInt64(&s.requestsValid, 1) }
func (s *Stats) IncRequestsInvalid() { atomic.AddInt64(&s.requestsInvalid, 1) }
func (s *Stats) IncResponsesSent()   { atomic.AddInt64(&s.responsesSent, 1) }
func (s *Stats) IncRateLimited()     { atomic.AddInt64(&s.rateLimited, 1) }
func (s *Stats) IncSendFailed()      { atomic.AddInt64(&s.sendFailed, 1) }
func (s *Stats) IncInvalidSize()     { atomic.AddInt64(&s.invalidSize, 1) }
func (s *Stats) IncInvalidMode()     { atomic.AddInt64(&s.invalidMode, 1) }

// ObserveProcessingTime folds one more T_tx - T_rx sample into the
// moving average.
func (s *Stats) ObserveProcessingTime(d time.Duration) {
	for {
		old := atomic.LoadInt64(&s.processingNanosEWMA)
		var next int64
		if old == 0 {
			next = d.Nanoseconds()
		} else {
			next = old + int64(processingEWMAWeight*float64(d.Nanoseconds()-old))
		}
		if atomic.CompareAndSwapInt64(&s.processingNanosEWMA, old, next) {
			return
		}
	}
}

// Snapshot is a point-in-time, non-atomic copy of the counters,
// suitable for rendering (cmd/ntpctl) or JSON export.
type Snapshot struct {
	RequestsTotal      int64
	RequestsValid      int64
	RequestsInvalid    int64
	ResponsesSent      int64
	RateLimited        int64
	SendFailed         int64
	InvalidSize        int64
	InvalidMode        int64
	ProcessingTimeEWMA time.Duration
}

// Snapshot reads every counter with a single atomic load each.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		RequestsTotal:      atomic.LoadInt64(&s.requestsTotal),
		RequestsValid:      atomic.LoadInt64(&s.requestsValid),
		RequestsInvalid:    atomic.LoadInt64(&s.requestsInvalid),
		ResponsesSent:      atomic.LoadInt64(&s.responsesSent),
		RateLimited:        atomic.LoadInt64(&s.rateLimited),
		SendFailed:         atomic.LoadInt64(&s.sendFailed),
		InvalidSize:        atomic.LoadInt64(&s.invalidSize),
		InvalidMode:        atomic.LoadInt64(&s.invalidMode),
		ProcessingTimeEWMA: time.Duration(atomic.LoadInt64(&s.processingNanosEWMA)),
	}
}

// Collector adapts Stats to prometheus.Collector so cmd/ntpd can
// register it on its /metrics registry alongside the health
// collector.
type Collector struct {
	stats *Stats
	descs map[string]*prometheus.Desc
}

// NewCollector wraps stats for Prometheus registration.
func NewCollector(stats *Stats) *Collector {
	mk := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("gnssntpd_"+name, help, nil, nil)
	}
	return &Collector{
		stats: stats,
		descs: map[string]*prometheus.Desc{
			"requests_total":       mk("requests_total", "Total NTP requests received"),
			"requests_valid":       mk("requests_valid", "Requests that passed validation"),
			"requests_invalid":     mk("requests_invalid", "Requests rejected by validation"),
			"responses_sent":       mk("responses_sent", "Responses successfully sent"),
			"rate_limited":         mk("rate_limited", "Requests dropped by the rate limiter"),
			"send_failed":          mk("send_failed", "Responses that failed to send"),
			"invalid_size":         mk("invalid_size", "Requests dropped for wrong datagram size"),
			"invalid_mode":         mk("invalid_mode", "Requests dropped for wrong mode/version"),
			"processing_time_ewma": mk("processing_time_seconds_ewma", "Smoothed end-to-end processing time"),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()
	ch <- prometheus.MustNewConstMetric(c.descs["requests_total"], prometheus.CounterValue, float64(snap.RequestsTotal))
	ch <- prometheus.MustNewConstMetric(c.descs["requests_valid"], prometheus.CounterValue, float64(snap.RequestsValid))
	ch <- prometheus.MustNewConstMetric(c.descs["requests_invalid"], prometheus.CounterValue, float64(snap.RequestsInvalid))
	ch <- prometheus.MustNewConstMetric(c.descs["responses_sent"], prometheus.CounterValue, float64(snap.ResponsesSent))
	ch <- prometheus.MustNewConstMetric(c.descs["rate_limited"], prometheus.CounterValue, float64(snap.RateLimited))
	ch <- prometheus.MustNewConstMetric(c.descs["send_failed"], prometheus.CounterValue, float64(snap.SendFailed))
	ch <- prometheus.MustNewConstMetric(c.descs["invalid_size"], prometheus.CounterValue, float64(snap.InvalidSize))
	ch <- prometheus.MustNewConstMetric(c.descs["invalid_mode"], prometheus.CounterValue, float64(snap.InvalidMode))
	ch <- prometheus.MustNewConstMetric(c.descs["processing_time_ewma"], prometheus.GaugeValue, snap.ProcessingTimeEWMA.Seconds())
}
