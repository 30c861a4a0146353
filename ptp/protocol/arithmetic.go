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

package protocol

import (
	"math"

	"github.com/zarfld/ptp-sync-engine/ptp/observability"
)

// MaxAbsTimestampDiff is the saturation bound (in TimeInterval scaled units,
// 2**-16 ns) applied to Timestamp subtraction and generic TimeInterval
// add/sub, per the "saturates at +-(2**62)" rule.
const MaxAbsTimestampDiff int64 = 1 << 62

// MaxAbsScaled is the clamp bound (in TimeInterval scaled units) applied to
// the synchronization pipeline's offsetFromMaster and meanPathDelay
// outputs. 2**46 scaled units is 2**30 ns, about 1.07s.
const MaxAbsScaled int64 = 1 << 46

// preShiftBound is MaxAbsTimestampDiff scaled back down by the 16-bit
// fractional shift Sub applies: the largest whole-nanosecond delta that can
// still be shifted left 16 without exceeding the saturation bound.
const preShiftBound = MaxAbsTimestampDiff >> 16

// secDiffBound is one more than the largest |secDiff| for which secDiff*1e9
// stays within preShiftBound. Up to and including this bound Sub performs
// the multiply directly in int64 (the product still fits, and the later
// total check saturates it if needed); above it Sub short-circuits to
// saturation rather than multiply seconds-scale values that could wrap a
// 64-bit accumulator.
const secDiffBound = preShiftBound/1_000_000_000 + 1

// saturateAdd computes a+b, clamped to +-bound, without relying on the
// wraparound behavior of a plain int64 overflow to detect when clamping is
// needed.
func saturateAdd(a, b, bound int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return bound, true
	}
	if b < 0 && a < math.MinInt64-b {
		return -bound, true
	}
	sum := a + b
	if sum > bound {
		return bound, true
	}
	if sum < -bound {
		return -bound, true
	}
	return sum, false
}

// saturateSub computes a-b, clamped to +-bound.
func saturateSub(a, b, bound int64) (int64, bool) {
	if b == math.MinInt64 {
		// -b is not representable; every TimeInterval this engine produces
		// sits far inside +-bound, so treat this as saturating toward +bound.
		return bound, true
	}
	return saturateAdd(a, -b, bound)
}

// Sub computes t-u as a TimeInterval: (seconds_diff*1e9 + ns_diff) shifted
// left 16. The computation saturates at +-MaxAbsTimestampDiff rather than
// risk silently overflowing int64, and bumps ValidationsFailed when it
// does. No heap allocation: the whole computation is int64 arithmetic with
// explicit range checks ahead of each step that could overflow.
func (t Timestamp) Sub(u Timestamp) TimeInterval {
	secDiff := int64(t.Seconds.Seconds()) - int64(u.Seconds.Seconds())
	nsDiff := int64(t.Nanoseconds) - int64(u.Nanoseconds)

	if secDiff > secDiffBound || secDiff < -secDiffBound {
		observability.Global().ValidationsFailed.Add(1)
		if secDiff > 0 {
			return TimeInterval(MaxAbsTimestampDiff)
		}
		return TimeInterval(-MaxAbsTimestampDiff)
	}

	total := secDiff*1_000_000_000 + nsDiff
	if total > preShiftBound || total < -preShiftBound {
		observability.Global().ValidationsFailed.Add(1)
		if total > 0 {
			return TimeInterval(MaxAbsTimestampDiff)
		}
		return TimeInterval(-MaxAbsTimestampDiff)
	}
	return TimeInterval(total << 16)
}

// Add returns a saturating sum of two TimeIntervals, bounded to
// +-MaxAbsTimestampDiff.
func (t TimeInterval) Add(u TimeInterval) TimeInterval {
	v, saturated := saturateAdd(int64(t), int64(u), MaxAbsTimestampDiff)
	if saturated {
		observability.Global().ValidationsFailed.Add(1)
	}
	return TimeInterval(v)
}

// SubInterval returns a saturating difference of two TimeIntervals, bounded
// to +-MaxAbsTimestampDiff.
func (t TimeInterval) SubInterval(u TimeInterval) TimeInterval {
	v, saturated := saturateSub(int64(t), int64(u), MaxAbsTimestampDiff)
	if saturated {
		observability.Global().ValidationsFailed.Add(1)
	}
	return TimeInterval(v)
}

// DivideBy2 halves a TimeInterval. By default it truncates toward zero.
// When unbiased is true it rounds half-to-even at the scaled LSB (the only
// position where a tie can occur when halving an integer). The two modes
// agree for every TimeInterval derived from an integral-nanosecond delta,
// since such values are always even in the scaled domain.
func (t TimeInterval) DivideBy2(unbiased bool) TimeInterval {
	v := int64(t)
	if !unbiased {
		return TimeInterval(v / 2) // Go's / truncates toward zero.
	}
	floor := v >> 1 // arithmetic shift == floor division for two's complement
	if v&1 == 0 {
		return TimeInterval(floor)
	}
	// Odd: the true half value ties between floor and floor+1. Round to
	// whichever is even.
	if floor%2 == 0 {
		return TimeInterval(floor)
	}
	return TimeInterval(floor + 1)
}

// Clamp bounds a TimeInterval to +-MaxAbsScaled, reporting whether clamping
// occurred so the caller can bump ValidationsFailed.
func (t TimeInterval) Clamp() (TimeInterval, bool) {
	v := int64(t)
	if v > MaxAbsScaled {
		return TimeInterval(MaxAbsScaled), true
	}
	if v < -MaxAbsScaled {
		return TimeInterval(-MaxAbsScaled), true
	}
	return t, false
}

// AddJitterNs adds jitter (expressed in whole nanoseconds, which may be
// negative) to a TimeInterval, in the scaled domain, saturating as usual.
func (t TimeInterval) AddJitterNs(jitterNs int64) TimeInterval {
	return t.Add(TimeInterval(jitterNs << 16))
}
