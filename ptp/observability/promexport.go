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

package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusExporter registers the nine process-wide counters as gauges on
// their own registry and serves them over /metrics. Unlike a daemon that
// scrapes a sibling process's JSON counters (ptp4u's exporter does that over
// HTTP), this one reads straight out of Global() on every scrape - there is
// no second process to fetch from.
type PrometheusExporter struct {
	registry *prometheus.Registry
}

// NewPrometheusExporter builds an exporter with one gauge per Counters
// field, each backed by a GaugeFunc reading Global() at scrape time.
func NewPrometheusExporter() *PrometheusExporter {
	e := &PrometheusExporter{registry: prometheus.NewRegistry()}
	counters := Global()
	gauges := map[string]func() float64{
		"ptp_bmca_selections_total":        func() float64 { return float64(counters.BMCASelections.Load()) },
		"ptp_bmca_local_wins_total":        func() float64 { return float64(counters.BMCALocalWins.Load()) },
		"ptp_bmca_foreign_wins_total":      func() float64 { return float64(counters.BMCAForeignWins.Load()) },
		"ptp_bmca_passive_wins_total":      func() float64 { return float64(counters.BMCAPassiveWins.Load()) },
		"ptp_bmca_candidate_updates_total": func() float64 { return float64(counters.BMCACandidateUpdates.Load()) },
		"ptp_offsets_computed_total":       func() float64 { return float64(counters.OffsetsComputed.Load()) },
		"ptp_validations_passed_total":     func() float64 { return float64(counters.ValidationsPassed.Load()) },
		"ptp_validations_failed_total":     func() float64 { return float64(counters.ValidationsFailed.Load()) },
		"ptp_resource_unavailable_total":   func() float64 { return float64(counters.ResourceUnavailable.Load()) },
	}
	for name, read := range gauges {
		e.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name}, read))
	}
	return e
}

// Handler returns the http.Handler to mount at /metrics.
func (e *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
