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

// Package datasets holds the mutable data sets a clock and its ports carry
// for the life of the process: defaultDS, currentDS, parentDS, portDS,
// timePropertiesDS, and the bounded per-port foreignMasterList. Every type
// here is POD-equivalent and fixed size; nothing in this package allocates
// once a clock is constructed.
package datasets

import (
	"github.com/zarfld/ptp-sync-engine/ptp/observability"
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

// ForeignMasterListSize bounds the number of tracked foreign masters per
// port, per the fixed-size-array resource efficiency requirement.
const ForeignMasterListSize = 16

// DefaultDS is the per-clock data set (Table 65).
type DefaultDS struct {
	TwoStepFlag   bool
	ClockIdentity protocol.ClockIdentity
	NumberPorts   uint16
	ClockQuality  protocol.ClockQuality
	Priority1     uint8
	Priority2     uint8
	DomainNumber  uint8
	SlaveOnly     bool
}

// CurrentDS is the per-clock data set describing the clock's current
// synchronization state (Table 66).
type CurrentDS struct {
	StepsRemoved     uint16
	OffsetFromMaster protocol.TimeInterval
	MeanPathDelay    protocol.TimeInterval
}

// ResetToMaster sets the fields required whenever a port is Master
// or Initializing: stepsRemoved = 0, offsetFromMaster = 0.
func (c *CurrentDS) ResetToMaster() {
	c.StepsRemoved = 0
	c.OffsetFromMaster = 0
}

// ParentDS is the per-clock data set describing the clock's parent and the
// grandmaster at the root of its synchronization tree (Table 67).
type ParentDS struct {
	ParentPortIdentity                    protocol.PortIdentity
	ParentStats                           bool
	ObservedParentOffsetScaledLogVariance uint16
	ObservedParentClockPhaseChangeRate    uint32
	GrandmasterIdentity                   protocol.ClockIdentity
	GrandmasterClockQuality               protocol.ClockQuality
	GrandmasterPriority1                  uint8
	GrandmasterPriority2                  uint8
}

// MirrorLocal sets parentDS fields to reflect that the local clock itself is
// the grandmaster, per the invariant: "when local clock is best,
// parentPortIdentity.clockIdentity = defaultDS.clockIdentity and
// grandmaster* mirror defaultDS".
func (p *ParentDS) MirrorLocal(d DefaultDS, portNumber uint16) {
	p.ParentPortIdentity = protocol.PortIdentity{ClockIdentity: d.ClockIdentity, PortNumber: portNumber}
	p.GrandmasterIdentity = d.ClockIdentity
	p.GrandmasterClockQuality = d.ClockQuality
	p.GrandmasterPriority1 = d.Priority1
	p.GrandmasterPriority2 = d.Priority2
}

// AdoptParent sets parentDS to reflect a winning foreign master's Announce:
// the parent port identity becomes the source of that Announce, and the
// grandmaster fields are copied from its AnnounceBody.
func (p *ParentDS) AdoptParent(source protocol.PortIdentity, announce protocol.AnnounceBody) {
	p.ParentPortIdentity = source
	p.GrandmasterIdentity = announce.GrandmasterIdentity
	p.GrandmasterClockQuality = announce.GrandmasterClockQuality
	p.GrandmasterPriority1 = announce.GrandmasterPriority1
	p.GrandmasterPriority2 = announce.GrandmasterPriority2
}

// AdoptStepsRemoved sets stepsRemoved to one more than the winning
// Announce advertised.
func (c *CurrentDS) AdoptStepsRemoved(announceStepsRemoved uint16) {
	c.StepsRemoved = announceStepsRemoved + 1
}

// TimePropertiesDS is the per-clock data set describing timescale properties
// of the domain (Table 68).
type TimePropertiesDS struct {
	CurrentUtcOffset      int16
	CurrentUtcOffsetValid bool
	Leap59                bool
	Leap61                bool
	TimeTraceable         bool
	FrequencyTraceable    bool
	PTPTimescale          bool
	TimeSource            protocol.TimeSource
}

// PortDS is the per-port data set (Table 77).
type PortDS struct {
	PortIdentity            protocol.PortIdentity
	PortState               protocol.PortState
	LogMinDelayReqInterval  protocol.LogInterval
	PeerMeanPathDelay       protocol.TimeInterval
	LogAnnounceInterval     protocol.LogInterval
	AnnounceReceiptTimeout  uint8
	LogSyncInterval         protocol.LogInterval
	DelayMechanism          DelayMechanism
	LogMinPDelayReqInterval protocol.LogInterval
	VersionNumber           uint8
}

// DelayMechanism selects which delay-measurement pipeline a port runs.
type DelayMechanism uint8

// Delay mechanisms as in Table 79.
const (
	DelayMechanismE2E DelayMechanism = 1
	DelayMechanismP2P DelayMechanism = 2
)

// ForeignMasterEntry is one tracked candidate master on a port.
type ForeignMasterEntry struct {
	SourcePortIdentity protocol.PortIdentity
	Announce           protocol.AnnounceBody
	SequenceID         uint16
	LastUpdate         int64 // scheduler-supplied monotonic nanoseconds
	occupied           bool
}

// ForeignMasterList is the bounded (N=16), fixed-size foreign-master tracker
// for one port. It never allocates after construction.
type ForeignMasterList struct {
	entries [ForeignMasterListSize]ForeignMasterEntry
	count   int
}

// Len returns the number of occupied entries.
func (f *ForeignMasterList) Len() int { return f.count }

// Upsert updates an existing entry keyed by sourcePortIdentity, or inserts a
// new one if there is room. On overflow it bumps both ResourceUnavailable
// and ValidationsFailed and returns a ResourceUnavailable error.
func (f *ForeignMasterList) Upsert(source protocol.PortIdentity, announce protocol.AnnounceBody, sequenceID uint16, now int64) *protocol.Error {
	for i := range f.entries {
		if f.entries[i].occupied && f.entries[i].SourcePortIdentity == source {
			f.entries[i].Announce = announce
			f.entries[i].SequenceID = sequenceID
			f.entries[i].LastUpdate = now
			return nil
		}
	}
	for i := range f.entries {
		if !f.entries[i].occupied {
			f.entries[i] = ForeignMasterEntry{
				SourcePortIdentity: source,
				Announce:           announce,
				SequenceID:         sequenceID,
				LastUpdate:         now,
				occupied:           true,
			}
			f.count++
			return nil
		}
	}
	observability.Global().ResourceUnavailable.Add(1)
	observability.Global().ValidationsFailed.Add(1)
	return protocol.NewError(protocol.KindResourceUnavailable, "foreignMasterList full at %d entries", ForeignMasterListSize)
}

// Iter calls fn for every occupied entry, in storage order. fn returning
// false stops iteration early.
func (f *ForeignMasterList) Iter(fn func(*ForeignMasterEntry) bool) {
	for i := range f.entries {
		if f.entries[i].occupied {
			if !fn(&f.entries[i]) {
				return
			}
		}
	}
}

// PurgeOlderThan removes entries whose LastUpdate is more than window
// nanoseconds before now, per the announceReceiptTimeout * 2^logAnnounceInterval
// rule applied by the port's tick.
func (f *ForeignMasterList) PurgeOlderThan(now int64, window int64) {
	for i := range f.entries {
		if f.entries[i].occupied && now-f.entries[i].LastUpdate > window {
			f.entries[i] = ForeignMasterEntry{}
		}
	}
	f.count = 0
	for i := range f.entries {
		if f.entries[i].occupied {
			f.count++
		}
	}
}
