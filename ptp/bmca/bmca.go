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

// Package bmca implements the Best Master Clock Algorithm: lexicographic
// priority-vector comparison, selection among tracked candidates, and the
// foreign-vs-local role recommendation a port's state machine consumes.
// Comparison style is grounded on sptp/bmc's Dscmp family, generalized to
// the seven-field vector this protocol core compares.
package bmca

import (
	"github.com/zarfld/ptp-sync-engine/ptp/observability"
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

// PriorityVector is the ordered seven-field tuple BMCA compares
// lexicographically; smaller is better in every position.
type PriorityVector struct {
	Priority1                     uint8
	GrandmasterClockClass         protocol.ClockClass
	GrandmasterClockAccuracy      protocol.ClockAccuracy
	GrandmasterOffsetScaledLogVar uint16
	Priority2                     uint8
	StepsRemoved                  uint16
	GrandmasterIdentity           protocol.ClockIdentity
}

// Result is the outcome of comparing two priority vectors.
type Result int8

// Results a comparison can return.
const (
	ABetter Result = 1
	Equal   Result = 0
	BBetter Result = -1
)

// Compare orders a against b lexicographically over the seven fields in
// PriorityVector's declared order. It is a total order: Compare(a,b) ==
// -Compare(b,a), and it is transitive across all seven fields.
func Compare(a, b PriorityVector) Result {
	if a.Priority1 != b.Priority1 {
		return cmpUint(uint64(a.Priority1), uint64(b.Priority1))
	}
	if a.GrandmasterClockClass != b.GrandmasterClockClass {
		return cmpUint(uint64(a.GrandmasterClockClass), uint64(b.GrandmasterClockClass))
	}
	if a.GrandmasterClockAccuracy != b.GrandmasterClockAccuracy {
		return cmpUint(uint64(a.GrandmasterClockAccuracy), uint64(b.GrandmasterClockAccuracy))
	}
	if a.GrandmasterOffsetScaledLogVar != b.GrandmasterOffsetScaledLogVar {
		return cmpUint(uint64(a.GrandmasterOffsetScaledLogVar), uint64(b.GrandmasterOffsetScaledLogVar))
	}
	if a.Priority2 != b.Priority2 {
		return cmpUint(uint64(a.Priority2), uint64(b.Priority2))
	}
	if a.StepsRemoved != b.StepsRemoved {
		return cmpUint(uint64(a.StepsRemoved), uint64(b.StepsRemoved))
	}
	if a.GrandmasterIdentity != b.GrandmasterIdentity {
		return cmpUint(uint64(a.GrandmasterIdentity), uint64(b.GrandmasterIdentity))
	}
	return Equal
}

func cmpUint(a, b uint64) Result {
	if a < b {
		return ABetter
	}
	if a > b {
		return BBetter
	}
	return Equal
}

// compareWithFaultInjection wraps Compare with the forced-tie token pool: if
// a token is available it is consumed and Equal is reported regardless of
// the vectors, with forced=true so callers can feed the health snapshot.
func compareWithFaultInjection(a, b PriorityVector) (Result, bool) {
	if observability.FaultInjector().ConsumeForcedTie() {
		return Equal, true
	}
	return Compare(a, b), false
}

// Candidate pairs a priority vector with the index its originating
// foreign-master entry occupies, so SelectBest's result can be traced back.
type Candidate struct {
	Vector PriorityVector
	Index  int
}

// SelectBest returns the index (into candidates, not the caller's storage)
// of the lexicographically smallest vector. Ties are broken by first
// occurrence (stable): a later candidate only displaces the incumbent when
// it compares strictly better. Each comparison that consumes a forced-tie
// token from the fault injector reports Equal, so the incumbent is kept for
// that comparison, and the call reports forcedTie=true.
//
// An empty candidate list returns -1 and bumps ValidationsFailed.
func SelectBest(candidates []Candidate) (winner int, forcedTie bool) {
	observability.Global().BMCASelections.Add(1)
	if len(candidates) == 0 {
		observability.Global().ValidationsFailed.Add(1)
		return -1, false
	}
	best := 0
	forced := false
	for i := 1; i < len(candidates); i++ {
		result, wasForced := compareWithFaultInjection(candidates[i].Vector, candidates[best].Vector)
		forced = forced || wasForced
		if result == ABetter {
			best = i
			observability.Global().BMCACandidateUpdates.Add(1)
		}
	}
	return best, forced
}

// Role is the port's recommended role following a foreign-vs-local
// comparison.
type Role uint8

// Roles a port can be recommended into by BMCA.
const (
	RoleMaster Role = iota
	RoleSlave
	RolePassive
)

// Recommend compares the local priority vector (built from defaultDS) to
// the best foreign vector and returns the role recommendation plus whether
// a forced tie occurred, bumping the matching BMCA.*Wins counter. A forced
// tie is reported as PassiveWins, per the documented behavior that
// BMCA_PassiveWins counts forced ties as well as genuine ones.
func Recommend(local, bestForeign PriorityVector) (Role, bool) {
	result, forced := compareWithFaultInjection(local, bestForeign)
	if forced {
		observability.Global().BMCAPassiveWins.Add(1)
		return RolePassive, true
	}
	switch result {
	case ABetter:
		observability.Global().BMCALocalWins.Add(1)
		return RoleMaster, false
	case BBetter:
		observability.Global().BMCAForeignWins.Add(1)
		return RoleSlave, false
	default:
		observability.Global().BMCAPassiveWins.Add(1)
		return RolePassive, false
	}
}

// VectorFromAnnounce builds the foreign priority vector BMCA compares
// against, from an Announce message's body.
func VectorFromAnnounce(a protocol.AnnounceBody) PriorityVector {
	return PriorityVector{
		Priority1:                     a.GrandmasterPriority1,
		GrandmasterClockClass:         a.GrandmasterClockQuality.ClockClass,
		GrandmasterClockAccuracy:      a.GrandmasterClockQuality.ClockAccuracy,
		GrandmasterOffsetScaledLogVar: a.GrandmasterClockQuality.OffsetScaledLogVariance,
		Priority2:                     a.GrandmasterPriority2,
		StepsRemoved:                  a.StepsRemoved,
		GrandmasterIdentity:           a.GrandmasterIdentity,
	}
}

// VectorFromDefaultDS builds the local priority vector a port compares
// against foreign candidates: stepsRemoved=0, grandmaster fields mirror the
// clock's own identity and quality, as a clock always advertises itself as
// its own grandmaster candidate.
func VectorFromDefaultDS(priority1, priority2 uint8, quality protocol.ClockQuality, identity protocol.ClockIdentity) PriorityVector {
	return PriorityVector{
		Priority1:                     priority1,
		GrandmasterClockClass:         quality.ClockClass,
		GrandmasterClockAccuracy:      quality.ClockAccuracy,
		GrandmasterOffsetScaledLogVar: quality.OffsetScaledLogVariance,
		Priority2:                     priority2,
		StepsRemoved:                  0,
		GrandmasterIdentity:           identity,
	}
}
