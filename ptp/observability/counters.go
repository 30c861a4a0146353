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

// Package observability implements the core's hooks back to the embedding
// runtime: atomic counters, a health snapshot, and a best-effort, non-I/O
// logging call-out. Nothing in this package allocates on a steady-state
// path and nothing here performs I/O directly - that's left to the Logger
// and metrics exporter the embedder supplies.
package observability

import "sync/atomic"

// Counters holds every counter the core increments. It is process-wide by
// design (see design notes on global mutable state): every clock and port
// in the process shares one set, the way ptp4u's JSONStats counters are
// shared across all of that daemon's workers.
type Counters struct {
	BMCASelections       atomic.Int64
	BMCALocalWins         atomic.Int64
	BMCAForeignWins       atomic.Int64
	BMCAPassiveWins       atomic.Int64
	BMCACandidateUpdates  atomic.Int64

	OffsetsComputed    atomic.Int64
	ValidationsPassed  atomic.Int64
	ValidationsFailed  atomic.Int64
	ResourceUnavailable atomic.Int64
}

// global is the single process-wide counters instance.
var global Counters

// Global returns the process-wide counters instance.
func Global() *Counters { return &global }

// Snapshot is a point-in-time copy of Counters suitable for JSON/Prometheus
// export, mirroring the report/live split in ptp4u's JSONStats.
type Snapshot struct {
	BMCASelections       int64
	BMCALocalWins        int64
	BMCAForeignWins      int64
	BMCAPassiveWins      int64
	BMCACandidateUpdates int64

	OffsetsComputed     int64
	ValidationsPassed   int64
	ValidationsFailed   int64
	ResourceUnavailable int64
}

// Snapshot atomically copies the live counters.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BMCASelections:       c.BMCASelections.Load(),
		BMCALocalWins:        c.BMCALocalWins.Load(),
		BMCAForeignWins:      c.BMCAForeignWins.Load(),
		BMCAPassiveWins:      c.BMCAPassiveWins.Load(),
		BMCACandidateUpdates: c.BMCACandidateUpdates.Load(),
		OffsetsComputed:      c.OffsetsComputed.Load(),
		ValidationsPassed:    c.ValidationsPassed.Load(),
		ValidationsFailed:    c.ValidationsFailed.Load(),
		ResourceUnavailable:  c.ResourceUnavailable.Load(),
	}
}

// Reset zeroes every counter. Intended for tests.
func (c *Counters) Reset() {
	c.BMCASelections.Store(0)
	c.BMCALocalWins.Store(0)
	c.BMCAForeignWins.Store(0)
	c.BMCAPassiveWins.Store(0)
	c.BMCACandidateUpdates.Store(0)
	c.OffsetsComputed.Store(0)
	c.ValidationsPassed.Store(0)
	c.ValidationsFailed.Store(0)
	c.ResourceUnavailable.Store(0)
}
