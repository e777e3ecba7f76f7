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
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestStatsCountersIncrement(t *testing.T) {
	s := NewStats()
	s.IncRequestsTotal()
	s.IncRequestsTotal()
	s.IncRequestsValid()
	s.IncResponsesSent()
	s.IncRateLimited()
	s.IncSendFailed()
	s.IncInvalidSize()
	s.IncInvalidMode()
	s.IncRequestsInvalid()

	snap := s.Snapshot()
	require.EqualValues(t, 2, snap.RequestsTotal)
	require.EqualValues(t, 1, snap.RequestsValid)
	require.EqualValues(t, 1, snap.ResponsesSent)
	require.EqualValues(t, 1, snap.RateLimited)
	require.EqualValues(t, 1, snap.SendFailed)
	require.EqualValues(t, 1, snap.InvalidSize)
	require.EqualValues(t, 1, snap.InvalidMode)
	require.EqualValues(t, 1, snap.RequestsInvalid)
}

func TestObserveProcessingTimeSeedsThenSmooths(t *testing.T) {
	s := NewStats()
	s.ObserveProcessingTime(100 * time.Millisecond)
	require.Equal(t, 100*time.Millisecond, s.Snapshot().ProcessingTimeEWMA)

	s.ObserveProcessingTime(200 * time.Millisecond)
	got := s.Snapshot().ProcessingTimeEWMA
	require.Greater(t, got, 100*time.Millisecond)
	require.Less(t, got, 200*time.Millisecond)
}

func TestCollectorExportsAllMetrics(t *testing.T) {
	s := NewStats()
	s.IncRequestsTotal()
	s.IncResponsesSent()

	c := NewCollector(s)
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, len(c.descs))

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	require.True(t, names["gnssntpd_requests_total"])
	require.True(t, names["gnssntpd_responses_sent"])
	require.True(t, names["gnssntpd_processing_time_seconds_ewma"])
}

func TestCollectorRequestsTotalValue(t *testing.T) {
	s := NewStats()
	s.IncRequestsTotal()
	s.IncRequestsTotal()
	s.IncRequestsTotal()

	c := NewCollector(s)
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "gnssntpd_requests_total" {
			continue
		}
		var m *dto.Metric
		for _, mm := range f.GetMetric() {
			m = mm
		}
		require.NotNil(t, m)
		require.Equal(t, float64(3), m.GetCounter().GetValue())
	}
}
