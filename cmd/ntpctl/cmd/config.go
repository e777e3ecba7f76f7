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
	"os"

	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stratum1/gnssntpd/internal/configstore"
	"github.com/stratum1/gnssntpd/internal/platform"
)

var configFlashFile string

func init() {
	RootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVarP(&configFlashFile, "flash-file", "f", "gnssntpd-flash.bin", "path to the flash file ntpd was started with")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the persisted ConfigRecord",
	Long:  "Open the flash-backed config store and print the currently active record.\nIt never calls Commit or FactoryReset, but if the flash file is missing or\nneither slot validates, opening the store creates the file and persists\nfactory defaults to slot A before printing them.",
	Run: func(cmd *cobra.Command, args []string) {
		ConfigureVerbosity()
		if err := runConfig(configFlashFile); err != nil {
			log.Fatal(err)
		}
	},
}

// constellationSummary renders which GNSS constellations the receiver
// is configured to track, reading-only: the Config store persists
// these flags, but applying them is the external GNSS/UBX parser's
// job.
func constellationSummary(g configstore.GnssConfig) string {
	var enabled []string
	for _, c := range []struct {
		name string
		on   bool
	}{
		{"GPS", g.GPSEnabled},
		{"GLONASS", g.GLONASSEnabled},
		{"Galileo", g.GalileoEnabled},
		{"BeiDou", g.BeiDouEnabled},
		{"QZSS", g.QZSSEnabled},
		{"QZSS-L1S", g.QZSSL1SEnabled},
	} {
		if c.on {
			enabled = append(enabled, c.name)
		}
	}
	if len(enabled) == 0 {
		return "none"
	}
	out := enabled[0]
	for _, n := range enabled[1:] {
		out += "," + n
	}
	return out
}

func runConfig(path string) error {
	flash, err := platform.OpenFileFlash(path)
	if err != nil {
		return fmt.Errorf("opening flash file: %w", err)
	}
	defer flash.Close()

	store, err := configstore.Open(flash)
	if err != nil {
		return fmt.Errorf("reading config store: %w", err)
	}
	rec := store.Snapshot()
	health := store.HealthStatus()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"field", "value"})
	table.Append([]string{"version", fmt.Sprintf("%d", rec.Version)})
	table.Append([]string{"network.hostname", rec.Network.Hostname})
	table.Append([]string{"network.use_dhcp", fmt.Sprintf("%v", rec.Network.UseDHCP)})
	table.Append([]string{"network.static_addr", rec.Network.StaticAddr})
	table.Append([]string{"gnss.update_rate_hz", fmt.Sprintf("%d", rec.Gnss.UpdateRateHz)})
	table.Append([]string{"gnss.disable_pps", fmt.Sprintf("%v", rec.Gnss.DisablePPS)})
	table.Append([]string{"gnss.constellations", constellationSummary(rec.Gnss)})
	table.Append([]string{"ntp.port", fmt.Sprintf("%d", rec.Ntp.Port)})
	table.Append([]string{"ntp.rate_limit_capacity", fmt.Sprintf("%d", rec.Ntp.RateLimitCapacity)})
	table.Append([]string{"ntp.rate_limit_refill_per_sec", fmt.Sprintf("%d", rec.Ntp.RateLimitRefillPerSec)})
	table.Append([]string{"ntp.unsynchronized_behavior", fmt.Sprintf("%d", rec.Ntp.UnsynchronizedBehavior)})
	table.Append([]string{"logging.log_level", fmt.Sprintf("%d", rec.Logging.LogLevel)})
	table.Append([]string{"logging.syslog_server", fmt.Sprintf("%s:%d", rec.Logging.SyslogServer, rec.Logging.SyslogPort)})
	table.Append([]string{"system.disaster_alert_priority", fmt.Sprintf("%d", rec.System.DisasterAlertPriority)})
	table.Append([]string{"system.auto_restart_enabled", fmt.Sprintf("%v (every %dh)", rec.System.AutoRestartEnabled, rec.System.RestartIntervalHours)})
	table.Append([]string{"system.metrics_enabled", fmt.Sprintf("%v", rec.System.MetricsEnabled)})
	table.Append([]string{"last_commit_failed", fmt.Sprintf("%v", health.LastCommitFailed)})
	table.Append([]string{"booted_from_factory_defaults", fmt.Sprintf("%v", health.CorruptionFallback)})
	table.Render()
	return nil
}
