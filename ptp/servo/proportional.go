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

package servo

import "github.com/zarfld/ptp-sync-engine/ptp/hal"

// defaultAlpha is the proportional coefficient applied to every completed
// synchronization cycle.
const defaultAlpha = 0.5

// ProportionalServo is the reference clock discipline: on the first sample
// it either steps the clock (offset past FirstStepThreshold) or starts
// slewing; every sample after that multiplies the offset by Alpha and hands
// the result to the HAL as a frequency adjustment, except that a non-zero
// StepThreshold steps the clock on any sample past it. There is no integral
// term and no outlier filter - a large offset is always trusted and acted
// on immediately.
type ProportionalServo struct {
	Servo
	Alpha    float64
	count    int
	lastFreq float64
}

// NewProportionalServo returns a servo ready to sample, with Alpha at the
// reference coefficient. Callers that want a different coefficient can set
// Alpha after construction.
func NewProportionalServo(cfg Servo) *ProportionalServo {
	return &ProportionalServo{Servo: cfg, Alpha: defaultAlpha}
}

// Sample feeds one offsetFromMaster (nanoseconds) through the servo and
// returns the ppb frequency adjustment to apply and the resulting state.
// A StateJump result means the caller should step the clock by -offsetNs
// instead of adjusting frequency; Sample itself never calls the HAL.
func (s *ProportionalServo) Sample(offsetNs int64) (ppb float64, state State) {
	absOffset := offsetNs
	if absOffset < 0 {
		absOffset = -absOffset
	}

	if s.count == 0 && s.FirstUpdate && s.FirstStepThreshold > 0 && absOffset > s.FirstStepThreshold {
		s.count++
		s.FirstUpdate = false
		return 0, StateJump
	}
	if s.StepThreshold > 0 && absOffset > s.StepThreshold {
		s.count++
		return 0, StateJump
	}

	s.count++
	s.FirstUpdate = false
	ppb = s.Alpha * float64(offsetNs)
	if ppb > s.maxFreq {
		ppb = s.maxFreq
	} else if ppb < -s.maxFreq {
		ppb = -s.maxFreq
	}
	s.lastFreq = ppb
	return ppb, StateLocked
}

// Reset returns the servo to its pre-sample state, as if just constructed.
func (s *ProportionalServo) Reset() {
	s.count = 0
	s.lastFreq = 0
	s.FirstUpdate = true
}

// MeanFreq returns the last frequency adjustment this servo computed.
func (s *ProportionalServo) MeanFreq() float64 { return s.lastFreq }

// Discipline samples offsetNs and applies the result through cb: a step via
// AdjustClock on StateJump, a slew via AdjustFrequency on StateLocked.
func (s *ProportionalServo) Discipline(offsetNs int64, cb hal.Callbacks) (State, error) {
	ppb, state := s.Sample(offsetNs)
	if state == StateJump {
		return state, cb.AdjustClock(-offsetNs)
	}
	return state, cb.AdjustFrequency(ppb)
}
