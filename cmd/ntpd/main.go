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
Command ntpd is a GNSS/PPS-disciplined stratum-1 NTP server. It wires
internal/clock, internal/configstore, internal/ntpserver and
internal/health together over the internal/platform host adapters:
the clock fuses PPS edges with GNSS wall-time fixes, the responder
answers RFC 5905 client requests from that clock, configuration
persists to a flash-style sector file, and the Health Supervisor
watches all of it.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	syscall "golang.org/x/sys/unix"

	"github.com/stratum1/gnssntpd/internal/clock"
	"github.com/stratum1/gnssntpd/internal/configstore"
	"github.com/stratum1/gnssntpd/internal/health"
	"github.com/stratum1/gnssntpd/internal/hw"
	"github.com/stratum1/gnssntpd/internal/ntpserver"
	"github.com/stratum1/gnssntpd/internal/platform"
)

// highBandPoll is the loop interval for the high-priority task band
// (clock timeout re-evaluation, datagram drain). On a cooperative
// single-core scheduler this would be "every loop"; here it is a tight
// host-timer tick.
const highBandPoll = 500 * time.Microsecond

// healthPollInterval is the Health Supervisor's fixed cadence.
const healthPollInterval = 5 * time.Second

// factoryResetHoldThreshold is how long the front-panel button must be
// held before a release is treated as a factory-reset request rather
// than a display-mode rotation.
const factoryResetHoldThreshold = 5 * time.Second

func main() {
	var (
		logLevel     string
		flashFile    string
		metricsAddr  string
		pprofAddr    string
		enablePprof  bool
		simulateGnss bool
	)

	flag.StringVar(&logLevel, "loglevel", "info", "Set a log level. Can be: debug, info, warning, error")
	flag.StringVar(&flashFile, "flash-file", "gnssntpd-flash.bin", "Path to the file backing the simulated flash sector")
	flag.StringVar(&metricsAddr, "metrics-addr", ":9123", "Address to serve /metrics on")
	flag.StringVar(&pprofAddr, "pprof-addr", "localhost:6060", "Address to serve pprof on, if -pprof is set")
	flag.BoolVar(&enablePprof, "pprof", false, "Enable pprof")
	flag.BoolVar(&simulateGnss, "simulate-gnss", true, "Drive the clock from a simulated PPS/GNSS source instead of real receiver hardware")
	flag.Parse()

	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", logLevel)
	}

	if enablePprof {
		log.Warningf("Starting profiler on %s", pprofAddr)
		go func() {
			log.Println(http.ListenAndServe(pprofAddr, nil)) //nolint:gosec // dev-only diagnostic listener
		}()
	}

	if err := run(flashFile, metricsAddr, simulateGnss); err != nil {
		log.Fatalf("ntpd: %v", err)
	}
}

func run(flashFile, metricsAddr string, simulateGnss bool) error {
	flash, err := platform.OpenFileFlash(flashFile)
	if err != nil {
		return fmt.Errorf("opening flash: %w", err)
	}
	defer flash.Close()

	store, err := configstore.Open(flash)
	if err != nil {
		return fmt.Errorf("opening config store: %w", err)
	}
	cfg := store.Snapshot()
	log.Infof("[ntpd] loaded config: hostname=%s ntp_port=%d", cfg.Network.Hostname, cfg.Ntp.Port)

	mono := platform.SystemMonotonicClock{}
	clk := clock.New(mono, clock.DefaultConfig())

	netio, err := platform.ListenUDP(cfg.Ntp.Port)
	if err != nil {
		return fmt.Errorf("listening for NTP clients: %w", err)
	}
	defer netio.Close()

	srv := ntpserver.New(clk, netio, ntpserver.Config{
		RateLimitCapacity:     cfg.Ntp.RateLimitCapacity,
		RateLimitRefillPerSec: cfg.Ntp.RateLimitRefillPerSec,
		RateLimitTableSize:    ntpserver.MinTableEntries,
		UnsyncPolicy:          cfg.Ntp.UnsynchronizedBehavior,
		BaseDispersion:        ntpserver.DefaultConfig().BaseDispersion,
		AssumedDriftPPB:       ntpserver.DefaultConfig().AssumedDriftPPB,
	})

	supervisor := buildSupervisor(clk, store, srv)

	reg := prometheus.NewRegistry()
	reg.MustRegister(ntpserver.NewCollector(srv.Stats()))
	reg.MustRegister(health.NewCollector(supervisor))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigStop := make(chan os.Signal, 1)
	signal.Notify(sigStop, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	go func() {
		<-sigStop
		log.Warning("[ntpd] graceful shutdown requested")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return serveMetrics(gctx, metricsAddr, reg) })
	g.Go(func() error { return runHighBand(gctx, clk, srv, netio, supervisor) })
	g.Go(func() error { return runHealthBand(gctx, supervisor) })
	g.Go(func() error { return drainRecovery(gctx, supervisor, store) })
	g.Go(func() error { return runButtonBand(gctx, platform.NoopButtonSource{}, store) })

	if simulateGnss {
		g.Go(func() error {
			platform.SimulateGNSS(gctx, mono.Now,
				clk.HandleEdge,
				func(unixSeconds int64, wallAt time.Time) {
					clk.HandleWallFix(clock.WallFix{
						UnixSeconds: unixSeconds,
						TimeValid:   true,
						DateValid:   true,
						LeapHint:    0,
						ReceivedAt:  wallAt,
					})
				})
			return nil
		})
	}

	supervisor.MarkInitialized()

	if err := g.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// buildSupervisor wires Gnss, Network, Config, Hardware and Ntp to the
// concrete component that observes each. Display, Logging and Metrics
// are not wired to a sampler here (Display's rendering and Logging's
// transport live outside this module) and keep the Supervisor's
// AlwaysHealthy default.
func buildSupervisor(clk *clock.Clock, store *configstore.Store, srv *ntpserver.Server) *health.Supervisor {
	s := health.NewSupervisor(health.Config{
		DegradedThreshold:   70,
		ErrorThreshold:      30,
		AutoRecoveryEnabled: true,
		RecoveryCooldown:    30 * time.Second,
		MaxRetries:          3,
		Notifier:            health.SystemdNotifier{},
	})

	s.RegisterService(health.Gnss, health.GnssSampler{Clock: clk})
	s.RegisterService(health.Network, health.NetworkSampler{Link: platform.StaticLinkStatus{Up: true, Assigned: true}})
	s.RegisterService(health.Config, health.ConfigSampler{Health: func() (bool, bool) {
		h := store.HealthStatus()
		return h.LastCommitFailed, h.CorruptionFallback
	}})
	s.RegisterService(health.Hardware, health.HardwareSampler{Tester: platform.NoopSelfTester{}})
	s.RegisterService(health.Ntp, &health.NtpSampler{
		IdleSince:       srv.Stats().IdleSince,
		ResponsesSent:   func() int64 { return srv.Stats().Snapshot().ResponsesSent },
		SendFailed:      func() int64 { return srv.Stats().Snapshot().SendFailed },
		RequestsInvalid: func() int64 { return srv.Stats().Snapshot().RequestsInvalid },
	})

	return s
}

// runHighBand is the high-priority task band: on every iteration it
// re-evaluates the clock's holdover timeouts and drains any pending
// inbound datagram. The non-blocking pull from netio mirrors the
// ISR-enqueues/task-dequeues split of the target; parsing happens
// inside HandleDatagram, never here. In Safe Mode the responder goes
// silent: datagrams are still drained so the RX queue can't back up,
// but nothing is answered.
func runHighBand(ctx context.Context, clk *clock.Clock, srv *ntpserver.Server, netio hw.NetworkIO, supervisor *health.Supervisor) error {
	ticker := time.NewTicker(highBandPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			clk.Tick(now)
			if d, ok := netio.Recv(); ok && !supervisor.IsSafeMode() {
				srv.HandleDatagram(d, now)
			}
		}
	}
}

// runHealthBand runs the Health Supervisor's fixed 5-second poll
// cadence.
func runHealthBand(ctx context.Context, supervisor *health.Supervisor) error {
	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			supervisor.Poll(now)
		}
	}
}

// drainRecovery consumes RecoveryCommand values and performs the
// bounded action against the concrete service. The Supervisor never
// holds a mutable reference to the Config store itself; this is the
// only place recovery commands touch real components. A factory reset
// that fails against the flash hardware itself is escalated to Safe
// Mode — there is nothing left to fall back to.
func drainRecovery(ctx context.Context, supervisor *health.Supervisor, store *configstore.Store) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-supervisor.Commands():
			switch cmd.Action {
			case health.ActionConfigFactoryReset:
				log.Warnf("[ntpd] recovery: resetting config to factory defaults (attempt %d)", cmd.Attempt)
				if err := store.FactoryReset(); err != nil {
					log.Errorf("[ntpd] recovery: factory reset failed: %v", err)
					supervisor.ReportError(health.Config, err.Error())
					if !errors.Is(err, configstore.ErrBusy) && !errors.Is(err, configstore.ErrBrownout) {
						supervisor.TriggerFatal(fmt.Sprintf("config factory reset failed: %v", err))
					}
				}
			case health.ActionGnssReinit, health.ActionNetworkRenegotiate:
				log.Warnf("[ntpd] recovery: %s requested for %s (attempt %d); no in-scope driver to re-initialize", cmd.Action, cmd.Service, cmd.Attempt)
			case health.ActionRequestRestart:
				log.Errorf("[ntpd] recovery: %s requesting process restart after repeated hardware failure", cmd.Service)
			default:
				log.Warnf("[ntpd] recovery: %s for %s (attempt %d), log-only", cmd.Action, cmd.Service, cmd.Attempt)
			}
		}
	}
}

// runButtonBand consumes front-panel button events: a short press
// rotates the display mode, a long hold requests a factory reset of
// the config store. The debouncer that produces each ButtonEvent lives
// outside this module; this is the only consumer of that stream.
func runButtonBand(ctx context.Context, buttons hw.ButtonSource, store *configstore.Store) error {
	events := buttons.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Held >= factoryResetHoldThreshold {
				log.Warnf("[ntpd] button held %s: factory reset requested", ev.Held)
				if err := store.FactoryReset(); err != nil {
					log.Errorf("[ntpd] button-triggered factory reset failed: %v", err)
				}
				continue
			}
			// Display-mode rotation has no in-module collaborator; the
			// OLED rendering driver lives outside this module.
			log.Debugf("[ntpd] button pressed (held %s): rotating display mode", ev.Held)
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}
