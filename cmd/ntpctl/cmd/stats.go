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

package cmd

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/common/expfmt"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var statsAddr string

func init() {
	RootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVarP(&statsAddr, "addr", "a", "http://localhost:9123/metrics", "gnssntpd /metrics endpoint to scrape")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the NTP responder's request/response counters",
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()
		if err := runStats(statsAddr); err != nil {
			log.Fatal(err)
		}
	},
}

// statsCounters lists the responder counters in display order, mapped
// from their exported metric names.
var statsCounters = []struct {
	metric string
	label  string
}{
	{"gnssntpd_requests_total", "requests total"},
	{"gnssntpd_requests_valid", "requests valid"},
	{"gnssntpd_requests_invalid", "requests invalid"},
	{"gnssntpd_invalid_size", "  bad size"},
	{"gnssntpd_invalid_mode", "  bad mode/version"},
	{"gnssntpd_rate_limited", "  rate limited"},
	{"gnssntpd_responses_sent", "responses sent"},
	{"gnssntpd_send_failed", "send failed"},
}

func runStats(addr string) error {
	resp, err := http.Get(addr) //nolint:gosec // operator-supplied diagnostic endpoint, not user input from an untrusted source
	if err != nil {
		return fmt.Errorf("fetching %s: %w", addr, err)
	}
	defer resp.Body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return fmt.Errorf("parsing metrics: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"counter", "value"})
	for _, c := range statsCounters {
		value := "-"
		if mf, ok := families[c.metric]; ok && len(mf.Metric) > 0 {
			m := mf.Metric[0]
			v := m.GetGauge().GetValue()
			if m.GetCounter() != nil {
				v = m.GetCounter().GetValue()
			}
			value = fmt.Sprintf("%.0f", v)
		}
		table.Append([]string{c.label, value})
	}
	table.Render()

	if mf, ok := families["gnssntpd_processing_time_seconds_ewma"]; ok && len(mf.Metric) > 0 {
		ewma := time.Duration(mf.Metric[0].GetGauge().GetValue() * float64(time.Second))
		fmt.Printf("Processing time (smoothed): %s\n", ewma)
	}
	return nil
}
