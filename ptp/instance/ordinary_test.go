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

package instance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zarfld/ptp-sync-engine/ptp/hal"
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

func newFixedLoopback(at protocol.Timestamp) *hal.Loopback {
	cb := hal.NewLoopback()
	cb.Now = func() protocol.Timestamp { return at }
	return cb
}

func TestOrdinaryClockForeignWinAdoptsParentAndStepsRemoved(t *testing.T) {
	cb := newFixedLoopback(ts(1000, 0))
	oc := NewOrdinaryClock(protocol.ClockIdentity(1), protocol.ClockQuality{ClockClass: 248}, cb)
	oc.Start()
	require.Equal(t, protocol.PortStateListening, oc.Port.SM.State())
	oc.Port.DS.AnnounceReceiptTimeout = 3

	foreignSource := protocol.PortIdentity{ClockIdentity: 2, PortNumber: 1}
	body := protocol.AnnounceBody{
		GrandmasterIdentity:     protocol.ClockIdentity(2),
		GrandmasterPriority1:    50, // better than the local 128
		GrandmasterPriority2:    128,
		GrandmasterClockQuality: protocol.ClockQuality{ClockClass: 6},
		StepsRemoved:            2,
	}
	require.Nil(t, oc.ProcessMessage(buildAnnounce(t, foreignSource, 1, body), ts(1000, 0)))

	oc.Tick(ts(1000, 0).Time().UnixNano())

	require.Equal(t, protocol.PortStateUncalibrated, oc.Port.SM.State())
	require.Equal(t, foreignSource, oc.Parent.ParentPortIdentity)
	require.Equal(t, body.GrandmasterIdentity, oc.Parent.GrandmasterIdentity)
	require.Equal(t, body.GrandmasterPriority1, oc.Parent.GrandmasterPriority1)
	require.Equal(t, uint16(3), oc.Current.StepsRemoved, "stepsRemoved must be the winning Announce's StepsRemoved+1")
	require.Len(t, cb.StateChanges, 2, "Start's Initializing->Listening, then Tick's Listening->Uncalibrated")
	require.Equal(t, protocol.PortStateUncalibrated, cb.StateChanges[1].New)
}

func TestOrdinaryClockLocalWinBecomesMasterAndResetsCurrentDS(t *testing.T) {
	cb := newFixedLoopback(ts(2000, 0))
	oc := NewOrdinaryClock(protocol.ClockIdentity(1), protocol.ClockQuality{ClockClass: 6}, cb)
	oc.Start()
	oc.Port.DS.AnnounceReceiptTimeout = 3
	oc.Current.StepsRemoved = 9 // prove ResetToMaster actually clears this

	foreignSource := protocol.PortIdentity{ClockIdentity: 2, PortNumber: 1}
	body := protocol.AnnounceBody{
		GrandmasterIdentity:  protocol.ClockIdentity(2),
		GrandmasterPriority1: 200, // worse than the local 128
	}
	require.Nil(t, oc.ProcessMessage(buildAnnounce(t, foreignSource, 1, body), ts(2000, 0)))

	now := ts(2000, 0).Time().UnixNano()
	oc.Tick(now)
	require.Equal(t, protocol.PortStatePreMaster, oc.Port.SM.State())

	// the fixed 1s qualification timeout armed on entry into PreMaster.
	oc.Tick(now + int64(time.Second) + 1)
	require.Equal(t, protocol.PortStateMaster, oc.Port.SM.State())
	require.Equal(t, uint16(0), oc.Current.StepsRemoved)
	require.Equal(t, protocol.TimeInterval(0), oc.Current.OffsetFromMaster)
}

func TestOrdinaryClockFullSyncCycleComputesOffsetAndRecordsHealth(t *testing.T) {
	cb := newFixedLoopback(ts(3000, 0))
	oc := NewOrdinaryClock(protocol.ClockIdentity(1), protocol.ClockQuality{}, cb)
	oc.Start()

	master := protocol.PortIdentity{ClockIdentity: 9, PortNumber: 1}
	t1 := ts(1000, 0)
	t2 := ts(1000, 500)
	t3 := ts(1000, 1000)
	t4 := ts(1000, 1300)

	require.Nil(t, oc.ProcessMessage(buildSync(t, master, 1, t1), t2))
	require.True(t, oc.Port.Capture.HaveT1 && oc.Port.Capture.HaveT2)

	oc.Port.Capture.OnT3(t3)

	require.Nil(t, oc.ProcessMessage(buildDelayResp(t, master, oc.Port.DS.PortIdentity, 1, t4), protocol.Timestamp{}))

	require.InDelta(t, 100.0, oc.Current.OffsetFromMaster.Nanoseconds(), 0.001)
	require.InDelta(t, 400.0, oc.Current.MeanPathDelay.Nanoseconds(), 0.001)

	snap, ok := oc.Port.Tick.Health.Heartbeat(time.Unix(0, 0))
	require.True(t, ok)
	require.InDelta(t, 100.0, snap.LastOffsetNs, 0.001)
}

func TestOrdinaryClockAnnounceReceiptTimeoutReturnsToListening(t *testing.T) {
	cb := newFixedLoopback(ts(4000, 0))
	oc := NewOrdinaryClock(protocol.ClockIdentity(1), protocol.ClockQuality{}, cb)
	oc.Start()
	oc.Port.DS.AnnounceReceiptTimeout = 3 // 3 * 2^0s = 3s

	foreignSource := protocol.PortIdentity{ClockIdentity: 2, PortNumber: 1}
	body := protocol.AnnounceBody{GrandmasterIdentity: protocol.ClockIdentity(2), GrandmasterPriority1: 50}
	require.Nil(t, oc.ProcessMessage(buildAnnounce(t, foreignSource, 1, body), ts(4000, 0)))

	start := ts(4000, 0).Time().UnixNano()
	oc.Tick(start)
	require.Equal(t, protocol.PortStateUncalibrated, oc.Port.SM.State())

	oc.Tick(start + 4*int64(time.Second))
	require.Equal(t, protocol.PortStateListening, oc.Port.SM.State())
}
