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

import "time"

// HealthSnapshot is the structured state a port reports on its heartbeat:
// the last observed offset, which BMCA candidate index won, and whether a
// forced tie was in play for the latest comparison.
type HealthSnapshot struct {
	LastOffsetNs      float64
	LastBMCAIndex     int
	ForcedTieOccurred bool
	LastHeartbeat     time.Time
}

// Health accumulates the fields a port's tick() updates between heartbeats,
// and throttles emission to at most once per second (spec 4.6 step 7).
type Health struct {
	snapshot    HealthSnapshot
	lastEmitted time.Time
}

// RecordOffset stores the last observed offset, in nanoseconds.
func (h *Health) RecordOffset(ns float64) {
	h.snapshot.LastOffsetNs = ns
}

// RecordBMCA stores the winning candidate index and forced-tie flag from
// the latest select_best invocation.
func (h *Health) RecordBMCA(index int, forcedTie bool) {
	h.snapshot.LastBMCAIndex = index
	h.snapshot.ForcedTieOccurred = forcedTie
}

// Heartbeat returns the current snapshot and true if at least one second
// has elapsed since the last heartbeat was emitted for this port, updating
// the internal throttle clock as a side effect. If less than a second has
// elapsed, it returns the zero snapshot and false without mutating state.
func (h *Health) Heartbeat(now time.Time) (HealthSnapshot, bool) {
	if !h.lastEmitted.IsZero() && now.Sub(h.lastEmitted) < time.Second {
		return HealthSnapshot{}, false
	}
	h.lastEmitted = now
	h.snapshot.LastHeartbeat = now
	return h.snapshot, true
}

// SelfTestReport aggregates counters plus a derived health indicator, the
// way a management GET of a synthetic "self test" management ID might
// respond.
type SelfTestReport struct {
	Counters Snapshot
	// BasicSynchronizedLikely is true when at least one offset has been
	// computed and no validation has ever failed.
	BasicSynchronizedLikely bool
}

// NewSelfTestReport builds a SelfTestReport from the process-wide counters.
func NewSelfTestReport() SelfTestReport {
	snap := Global().Snapshot()
	return SelfTestReport{
		Counters:                snap,
		BasicSynchronizedLikely: snap.OffsetsComputed > 0 && snap.ValidationsFailed == 0,
	}
}
