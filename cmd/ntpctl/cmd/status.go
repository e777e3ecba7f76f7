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
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var statusAddr string

func init() {
	RootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVarP(&statusAddr, "addr", "a", "http://localhost:9123/metrics", "gnssntpd /metrics endpoint to scrape")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the Health Supervisor's per-service status and composite score",
	Long:  "Print the Health Supervisor's per-service status and composite score.\nScrapes the same Prometheus /metrics endpoint Grafana/alertmanager would, not a separate admin RPC.",
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()
		if err := runStatus(statusAddr); err != nil {
			log.Fatal(err)
		}
	},
}

// serviceStatusName mirrors internal/health.Status's String() without
// importing the health package, keeping ntpctl decoupled from the
// daemon's internals the same way the daemon's /metrics contract
// decouples it from ntpctl.
func serviceStatusName(v float64) (string, func(string, ...interface{}) string) {
	switch v {
	case 3:
		return "HEALTHY", color.GreenString
	case 2:
		return "WARNING", color.YellowString
	case 1:
		return "CRITICAL", color.RedString
	default:
		return "UNKNOWN", color.HiBlackString
	}
}

func systemStateName(v float64) string {
	switch v {
	case 0:
		return "INITIALIZING"
	case 1:
		return "STARTUP"
	case 2:
		return "RUNNING"
	case 3:
		return "DEGRADED"
	case 4:
		return "ERROR"
	case 5:
		return "RECOVERY"
	case 6:
		return "SHUTDOWN"
	default:
		return "INVALID"
	}
}

func runStatus(addr string) error {
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

	composite := 0.0
	state := 0.0
	safeMode := false
	type serviceRow struct {
		name   string
		status float64
	}
	var rows []serviceRow

	if mf, ok := families["gnssntpd_health_composite"]; ok && len(mf.Metric) > 0 {
		composite = mf.Metric[0].GetGauge().GetValue()
	}
	if mf, ok := families["gnssntpd_health_state"]; ok && len(mf.Metric) > 0 {
		state = mf.Metric[0].GetGauge().GetValue()
	}
	if mf, ok := families["gnssntpd_health_safe_mode"]; ok && len(mf.Metric) > 0 {
		safeMode = mf.Metric[0].GetGauge().GetValue() > 0
	}
	if mf, ok := families["gnssntpd_health_service_status"]; ok {
		for _, m := range mf.Metric {
			rows = append(rows, serviceRow{name: labelValue(m, "service"), status: m.GetGauge().GetValue()})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].name < rows[j].name })

	fmt.Printf("System state:    %s\n", systemStateName(state))
	fmt.Printf("Composite score: %.0f/100\n", composite)
	if safeMode {
		fmt.Println(color.RedString("SAFE MODE: clock and config are read-only"))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"service", "status"})
	for _, r := range rows {
		name, colorFn := serviceStatusName(r.status)
		table.Append([]string{r.name, colorFn(name)})
	}
	table.Render()
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
