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

// Package config loads the YAML that picks a clock kind and seeds its data
// sets at construction time. The core itself never reads a file or an
// environment variable: everything it needs arrives already parsed, the way
// an embedder's own config loader would hand it to instance.NewOrdinaryClock
// et al.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

// Kind selects which clock orchestrator a Config builds.
type Kind string

// Supported clock kinds.
const (
	KindOrdinary    Kind = "ordinary"
	KindBoundary    Kind = "boundary"
	KindTransparent Kind = "transparent"
)

// Config is the YAML-facing configuration for one clock instance.
type Config struct {
	Kind          Kind   `yaml:"kind"`
	ClockIdentity string `yaml:"clock_identity"` // 16 hex chars, e.g. "001122fffe334455"
	DomainNumber  uint8  `yaml:"domain_number"`
	NumPorts      int    `yaml:"num_ports"` // boundary only; ordinary/transparent ignore this

	Priority1 uint8 `yaml:"priority1"`
	Priority2 uint8 `yaml:"priority2"`

	ClockClass              uint8  `yaml:"clock_class"`
	ClockAccuracy           uint8  `yaml:"clock_accuracy"`
	OffsetScaledLogVariance uint16 `yaml:"offset_scaled_log_variance"`

	TwoStepFlag bool `yaml:"two_step"`
	SlaveOnly   bool `yaml:"slave_only"`

	LogAnnounceInterval    int8          `yaml:"log_announce_interval"`
	AnnounceReceiptTimeout uint8         `yaml:"announce_receipt_timeout"`
	LogSyncInterval        int8          `yaml:"log_sync_interval"`
	LogMinDelayReqInterval int8          `yaml:"log_min_delay_req_interval"`

	MonitoringPort int           `yaml:"monitoring_port"`
	ScrapeInterval time.Duration `yaml:"scrape_interval"`
}

// Default returns the configuration a new ordinary clock starts from absent
// an override file: domain 0, mid-range priorities, 2s announce, 1s sync.
func Default() Config {
	return Config{
		Kind:                   KindOrdinary,
		NumPorts:               1,
		Priority1:              128,
		Priority2:              128,
		ClockClass:             248,
		ClockAccuracy:          0xFE,
		LogAnnounceInterval:    1,
		AnnounceReceiptTimeout: 3,
		LogSyncInterval:        0,
		LogMinDelayReqInterval: 0,
		MonitoringPort:         9380,
		ScrapeInterval:         time.Second,
	}
}

// Load reads and parses a YAML config file, starting from Default so an
// override file only needs to set the fields it cares about.
func Load(path string) (*Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects a config that cannot seed a clock.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindOrdinary, KindBoundary, KindTransparent:
	default:
		return fmt.Errorf("config: unknown clock kind %q", c.Kind)
	}
	if c.Kind == KindBoundary && (c.NumPorts <= 0 || c.NumPorts > 16) {
		return fmt.Errorf("config: boundary clock num_ports %d out of range 1..16", c.NumPorts)
	}
	if _, err := c.ParseClockIdentity(); err != nil {
		return err
	}
	return nil
}

// ParseClockIdentity decodes the 16-hex-char ClockIdentity field.
func (c *Config) ParseClockIdentity() (protocol.ClockIdentity, error) {
	if len(c.ClockIdentity) != 16 {
		return 0, fmt.Errorf("config: clock_identity %q must be 16 hex characters", c.ClockIdentity)
	}
	var v uint64
	if _, err := fmt.Sscanf(c.ClockIdentity, "%016x", &v); err != nil {
		return 0, fmt.Errorf("config: clock_identity %q is not hex: %w", c.ClockIdentity, err)
	}
	return protocol.ClockIdentity(v), nil
}

// ClockQuality builds the protocol.ClockQuality this config describes.
func (c *Config) ClockQuality() protocol.ClockQuality {
	return protocol.ClockQuality{
		ClockClass:              protocol.ClockClass(c.ClockClass),
		ClockAccuracy:           protocol.ClockAccuracy(c.ClockAccuracy),
		OffsetScaledLogVariance: c.OffsetScaledLogVariance,
	}
}
