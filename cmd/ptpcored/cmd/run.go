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
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zarfld/ptp-sync-engine/ptp/config"
	"github.com/zarfld/ptp-sync-engine/ptp/datasets"
	"github.com/zarfld/ptp-sync-engine/ptp/hal"
	"github.com/zarfld/ptp-sync-engine/ptp/instance"
	"github.com/zarfld/ptp-sync-engine/ptp/observability"
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

var runConfigFlag string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a clock instance against a loopback HAL",
	Run: func(_ *cobra.Command, _ []string) {
		configureVerbosity()
		if err := run(runConfigFlag); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	runCmd.Flags().StringVar(&runConfigFlag, "config", "", "path to a YAML config; an ordinary clock with built-in defaults runs without one")
}

func run(path string) error {
	cfg := config.Default()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = *loaded
	}
	if cfg.ClockIdentity == "" {
		cfg.ClockIdentity = "001122fffe334455"
	}
	identity, err := cfg.ParseClockIdentity()
	if err != nil {
		return err
	}

	cb := hal.NewLoopback()
	cb.Now = func() protocol.Timestamp {
		now := time.Now()
		return protocol.Timestamp{Seconds: protocol.NewPTPSeconds(now), Nanoseconds: uint32(now.Nanosecond())}
	}

	switch cfg.Kind {
	case config.KindTransparent:
		log.Info("ptpcored: running as a transparent clock (residence-time correction only, no tick loop)")
		select {}
	case config.KindBoundary:
		bc := instance.NewBoundaryClock(identity, cfg.ClockQuality(), cfg.NumPorts, cb)
		if bc == nil {
			return fmt.Errorf("invalid num_ports %d for a boundary clock", cfg.NumPorts)
		}
		bc.Default.Priority1, bc.Default.Priority2 = cfg.Priority1, cfg.Priority2
		bc.Default.DomainNumber, bc.Default.TwoStepFlag, bc.Default.SlaveOnly = cfg.DomainNumber, cfg.TwoStepFlag, cfg.SlaveOnly
		for i := 0; i < cfg.NumPorts; i++ {
			applyPortConfig(&bc.Ports[i].DS, cfg)
		}
		bc.Start()
		serveMetrics(cfg.MonitoringPort)
		tickLoop(bc.Tick)
	default:
		oc := instance.NewOrdinaryClock(identity, cfg.ClockQuality(), cb)
		oc.Default.Priority1, oc.Default.Priority2 = cfg.Priority1, cfg.Priority2
		oc.Default.DomainNumber, oc.Default.TwoStepFlag, oc.Default.SlaveOnly = cfg.DomainNumber, cfg.TwoStepFlag, cfg.SlaveOnly
		applyPortConfig(&oc.Port.DS, cfg)
		oc.Start()
		serveMetrics(cfg.MonitoringPort)
		tickLoop(oc.Tick)
	}
	return nil
}

func applyPortConfig(ds *datasets.PortDS, cfg config.Config) {
	ds.LogAnnounceInterval = protocol.LogInterval(cfg.LogAnnounceInterval)
	ds.AnnounceReceiptTimeout = cfg.AnnounceReceiptTimeout
	ds.LogSyncInterval = protocol.LogInterval(cfg.LogSyncInterval)
	ds.LogMinDelayReqInterval = protocol.LogInterval(cfg.LogMinDelayReqInterval)
}

func serveMetrics(port int) {
	exporter := observability.NewPrometheusExporter()
	mux := http.NewServeMux()
	mux.Handle("/metrics", exporter.Handler())
	go func() {
		log.Infof("ptpcored: serving metrics on :%d/metrics", port)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.Warningf("metrics server stopped: %v", err)
		}
	}()
}

func tickLoop(tick func(now int64)) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for now := range ticker.C {
		tick(now.UnixNano())
		report := observability.NewSelfTestReport()
		log.Debugf("ptpcored: offsetsComputed=%d validationsFailed=%d basicSynchronizedLikely=%v",
			report.Counters.OffsetsComputed, report.Counters.ValidationsFailed, report.BasicSynchronizedLikely)
	}
}
