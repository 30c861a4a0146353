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

package portsm

import (
	"fmt"
	"time"

	"github.com/zarfld/ptp-sync-engine/ptp/bmca"
	"github.com/zarfld/ptp-sync-engine/ptp/datasets"
	"github.com/zarfld/ptp-sync-engine/ptp/hal"
	"github.com/zarfld/ptp-sync-engine/ptp/observability"
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
	syncpipeline "github.com/zarfld/ptp-sync-engine/ptp/sync"
)

// nsPerSecond converts between the all-nanoseconds monotonic clock this
// package ticks on and the seconds that LogInterval expresses periods in.
const nsPerSecond = int64(1_000_000_000)

// Ticker drives one port's timer discipline: it decides, from the current
// time and the port's configured intervals, which messages to emit and
// which timeout events to inject into the attached StateMachine.
type Ticker struct {
	SM       *StateMachine
	PortDS   *datasets.PortDS
	Default  *datasets.DefaultDS
	Parent   *datasets.ParentDS
	Current  *datasets.CurrentDS
	Foreign  *datasets.ForeignMasterList
	Capture  *syncpipeline.Capture
	Callback hal.Callbacks

	// Health accumulates per-cycle offset/BMCA observations between
	// heartbeats; Logger is where the throttled heartbeat gets emitted.
	// Logger defaults to a discarding sink if left nil.
	Health observability.Health
	Logger observability.Logger

	lastAnnounceEmit  int64
	lastSyncEmit      int64
	lastDelayReqEmit  int64
	lastAnnounceSeen  int64
	qualificationDead int64
	sequenceID        uint16
}

func (t *Ticker) logger() observability.Logger {
	if t.Logger == nil {
		return observability.NopLogger{}
	}
	return t.Logger
}

// purgeForeignMasters drops foreignMasterList entries older than window
// nanoseconds before BMCA runs; the caller passes announceReceiptTimeout
// expressed in nanoseconds as window.
func (t *Ticker) purgeForeignMasters(now int64, window int64) {
	t.Foreign.PurgeOlderThan(now, window)
}

// NoteAnnounceReceived resets the announce-receipt-timeout clock; call this
// whenever an Announce arrives from the current parent.
func (t *Ticker) NoteAnnounceReceived(now int64) {
	t.lastAnnounceSeen = now
}

// EnterPreMaster arms the fixed 1s qualification timeout. Call this
// immediately after a transition into PreMaster fires.
func (t *Ticker) EnterPreMaster(now int64) {
	t.qualificationDead = now + nsPerSecond
}

// Tick runs the full timer discipline for one port at time now (nanoseconds
// on an arbitrary monotonic origin, consistent across all callers).
// announceReceiptTimeoutNs is announceReceiptTimeout * 2^logAnnounceInterval
// already expressed in nanoseconds, since that multiplication needs the
// caller's view of the configured receipt-timeout multiplier.
func (t *Ticker) Tick(now int64, announceReceiptTimeoutNs int64) {
	t.purgeForeignMasters(now, announceReceiptTimeoutNs)
	t.runBMCA()

	state := t.SM.State()

	switch state {
	case protocol.PortStatePreMaster, protocol.PortStateMaster:
		t.maybeEmitAnnounce(now)
	}
	if state == protocol.PortStateMaster {
		t.maybeEmitSync(now)
	}
	if state == protocol.PortStateUncalibrated || state == protocol.PortStateSlave {
		t.maybeEmitDelayReq(now)
	}

	switch state {
	case protocol.PortStateUncalibrated, protocol.PortStateSlave:
		if t.lastAnnounceSeen != 0 && now-t.lastAnnounceSeen > announceReceiptTimeoutNs {
			t.SM.HandleEvent(EventAnnounceReceiptTimeout)
		}
	}
	if state == protocol.PortStatePreMaster && t.qualificationDead != 0 && now >= t.qualificationDead {
		t.SM.HandleEvent(EventQualificationTimeout)
		t.qualificationDead = 0
	}

	t.maybeHeartbeat(now)
}

// runBMCA selects the best foreign candidate (if any) and recommends a role
// for the local clock, feeding an RS_* event into the state machine when the
// recommendation differs from a no-op. On a RoleSlave recommendation, the
// winning entry becomes the parent: parentDS/currentDS are updated from its
// Announce before RS_SLAVE is injected.
func (t *Ticker) runBMCA() {
	var candidates []bmca.Candidate
	var entries []*datasets.ForeignMasterEntry
	idx := 0
	t.Foreign.Iter(func(e *datasets.ForeignMasterEntry) bool {
		candidates = append(candidates, bmca.Candidate{Vector: bmca.VectorFromAnnounce(e.Announce), Index: idx})
		entries = append(entries, e)
		idx++
		return true
	})

	local := bmca.VectorFromDefaultDS(t.Default.Priority1, t.Default.Priority2, t.Default.ClockQuality, t.Default.ClockIdentity)

	if len(candidates) == 0 {
		return
	}
	winner, forcedTie := bmca.SelectBest(candidates)
	if winner < 0 {
		return
	}
	t.Health.RecordBMCA(winner, forcedTie)

	role, _ := bmca.Recommend(local, candidates[winner].Vector)
	switch role {
	case bmca.RoleMaster:
		t.SM.HandleEvent(EventRSMaster)
	case bmca.RoleSlave:
		if t.Parent != nil && t.Current != nil {
			t.Parent.AdoptParent(entries[winner].SourcePortIdentity, entries[winner].Announce)
			t.Current.AdoptStepsRemoved(entries[winner].Announce.StepsRemoved)
		}
		t.SM.HandleEvent(EventRSSlave)
	case bmca.RolePassive:
		t.SM.HandleEvent(EventRSPassive)
	}
}

func (t *Ticker) maybeEmitAnnounce(now int64) {
	period := t.PortDS.LogAnnounceInterval.Duration().Nanoseconds()
	if period <= 0 || now-t.lastAnnounceEmit < period {
		return
	}
	t.lastAnnounceEmit = now
	t.sequenceID++
	msg := &protocol.Announce{}
	msg.SequenceID = t.sequenceID
	msg.SourcePortIdentity = t.PortDS.PortIdentity
	if t.Parent != nil {
		msg.GrandmasterIdentity = t.Parent.GrandmasterIdentity
		msg.GrandmasterClockQuality = t.Parent.GrandmasterClockQuality
		msg.GrandmasterPriority1 = t.Parent.GrandmasterPriority1
		msg.GrandmasterPriority2 = t.Parent.GrandmasterPriority2
	}
	if t.Current != nil {
		msg.StepsRemoved = t.Current.StepsRemoved
	}
	if err := t.Callback.SendAnnounce(msg); err != nil {
		t.Callback.OnFault(err.Error())
	}
}

func (t *Ticker) maybeEmitSync(now int64) {
	period := t.PortDS.LogSyncInterval.Duration().Nanoseconds()
	if period <= 0 || now-t.lastSyncEmit < period {
		return
	}
	t.lastSyncEmit = now
	t.sequenceID++
	msg := &protocol.SyncDelayReq{}
	msg.SequenceID = t.sequenceID
	msg.SourcePortIdentity = t.PortDS.PortIdentity
	if err := t.Callback.SendSync(msg); err != nil {
		t.Callback.OnFault(err.Error())
		return
	}
	if t.Default.TwoStepFlag {
		fu := &protocol.FollowUp{}
		fu.SequenceID = msg.SequenceID
		fu.SourcePortIdentity = t.PortDS.PortIdentity
		fu.PreciseOriginTimestamp = t.Callback.GetTimestamp()
		if err := t.Callback.SendFollowUp(fu); err != nil {
			t.Callback.OnFault(err.Error())
		}
	}
}

func (t *Ticker) maybeEmitDelayReq(now int64) {
	period := t.PortDS.LogMinDelayReqInterval.Duration().Nanoseconds()
	if period <= 0 || now-t.lastDelayReqEmit < period {
		return
	}
	t.lastDelayReqEmit = now
	t.sequenceID++
	msg := &protocol.SyncDelayReq{}
	msg.SequenceID = t.sequenceID
	msg.SourcePortIdentity = t.PortDS.PortIdentity
	if err := t.Callback.SendDelayReq(msg); err != nil {
		t.Callback.OnFault(err.Error())
		return
	}
	if t.Capture == nil {
		return
	}
	if txTS, err := t.Callback.GetTxTimestamp(msg.SequenceID); err == nil {
		t.Capture.OnT3(txTS)
	}
}

func (t *Ticker) maybeHeartbeat(now int64) {
	snap, ok := t.Health.Heartbeat(time.Unix(0, now))
	if !ok {
		return
	}
	t.logger().Log(observability.LevelDebug, "portsm", "heartbeat",
		fmt.Sprintf("offsetNs=%.0f bmcaIndex=%d forcedTie=%v", snap.LastOffsetNs, snap.LastBMCAIndex, snap.ForcedTieOccurred))
}
