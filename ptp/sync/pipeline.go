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

// Package syncpipeline computes offsetFromMaster and meanPathDelay from the
// T1..T4 timestamp captures of an end-to-end or peer-to-peer exchange. It is
// named to avoid colliding with the standard library's sync package at
// import sites, even though its directory is ptp/sync.
package syncpipeline

import (
	"github.com/zarfld/ptp-sync-engine/ptp/observability"
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

// Capture holds the four timestamps a slave-role port collects for one
// synchronization cycle, plus the have_* flags marking which have arrived.
// T1 comes from Sync (one-step) or Follow_Up (two-step); T2 is the local hardware
// ingress timestamp for Sync; T3 is the local hardware egress timestamp for
// Delay_Req; T4 is the receiveTimestamp from a matching Delay_Resp.
type Capture struct {
	T1, T2, T3, T4                 protocol.Timestamp
	HaveT1, HaveT2, HaveT3, HaveT4 bool
	SyncCorrection                 protocol.TimeInterval
	DelayRespCorrection            protocol.TimeInterval
}

// Ready reports whether all four timestamps have been captured.
func (c *Capture) Ready() bool {
	return c.HaveT1 && c.HaveT2 && c.HaveT3 && c.HaveT4
}

// Reset clears the have_* flags after a cycle completes: compute first,
// then reset for the next cycle.
func (c *Capture) Reset() {
	*c = Capture{}
}

// OnT1 records the preciseOriginTimestamp from Sync or Follow_Up.
func (c *Capture) OnT1(t protocol.Timestamp, correction protocol.TimeInterval) {
	c.T1 = t
	c.SyncCorrection = correction
	c.HaveT1 = true
}

// OnT2 records the local hardware ingress timestamp for Sync.
func (c *Capture) OnT2(t protocol.Timestamp) {
	c.T2 = t
	c.HaveT2 = true
}

// OnT3 records the local hardware egress timestamp for Delay_Req.
func (c *Capture) OnT3(t protocol.Timestamp) {
	c.T3 = t
	c.HaveT3 = true
}

// OnT4 attempts to record the receiveTimestamp from a Delay_Resp. If
// requestingPortIdentity does not match the port's own identity, the
// message is silently dropped.
func (c *Capture) OnT4(t protocol.Timestamp, correction protocol.TimeInterval, requesting, self protocol.PortIdentity) bool {
	if requesting != self {
		return false
	}
	c.T4 = t
	c.DelayRespCorrection = correction
	c.HaveT4 = true
	return true
}

// Result is the outcome of a completed synchronization cycle.
type Result struct {
	OffsetFromMaster protocol.TimeInterval
	MeanPathDelay    protocol.TimeInterval
	OrderingViolated bool
	Clamped          bool
}

// Compute implements the offset/mean-path-delay formula: both (T2-T1) and
// (T4-T3) have their accumulated correctionField subtracted before halving,
// jitter is injected after halving, and OffsetFromMaster is clamped to
// +-MaxAbsScaled. updateMeanPathDelay controls whether the caller intends
// to publish MeanPathDelay into currentDS (false for a P2P port, whose
// Delay_Req/Delay_Resp pipeline must not mutate it — the computed value is
// still returned for callers that want it, but the flag tells them not to
// persist it). MeanPathDelay is clamped only when updateMeanPathDelay is
// true; with false it is returned unclamped and never sets Clamped.
func Compute(c Capture, updateMeanPathDelay bool) Result {
	masterToSlave := c.T2.Sub(c.T1).SubInterval(c.SyncCorrection)
	slaveToMaster := c.T4.Sub(c.T3).SubInterval(c.DelayRespCorrection)

	orderingViolated := masterToSlave < 0 || slaveToMaster < 0
	if orderingViolated {
		observability.Global().ValidationsFailed.Add(1)
	}

	offset := masterToSlave.SubInterval(slaveToMaster).DivideBy2(observability.UnbiasedRounding())
	meanPathDelay := masterToSlave.Add(slaveToMaster).DivideBy2(observability.UnbiasedRounding())

	if jitter := observability.FaultInjector().OffsetJitterNs(); jitter != 0 {
		offset = offset.AddJitterNs(jitter)
	}

	offset, offsetClamped := offset.Clamp()
	var mpdClamped bool
	if updateMeanPathDelay {
		meanPathDelay, mpdClamped = meanPathDelay.Clamp()
	}
	clamped := offsetClamped || mpdClamped

	if clamped {
		observability.Global().ValidationsFailed.Add(1)
	} else {
		observability.Global().ValidationsPassed.Add(1)
		observability.Global().OffsetsComputed.Add(1)
	}

	return Result{
		OffsetFromMaster: offset,
		MeanPathDelay:    meanPathDelay,
		OrderingViolated: orderingViolated,
		Clamped:          clamped,
	}
}
