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

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zarfld/ptp-sync-engine/ptp/hal"
)

func TestSampleStepsOnFirstLargeOffset(t *testing.T) {
	s := NewProportionalServo(DefaultServoConfig())
	ppb, state := s.Sample(50000) // > FirstStepThreshold (20000ns)
	require.Equal(t, StateJump, state)
	require.Zero(t, ppb)
}

func TestSampleSlewsProportionally(t *testing.T) {
	s := NewProportionalServo(DefaultServoConfig())
	s.FirstUpdate = false
	ppb, state := s.Sample(1000)
	require.Equal(t, StateLocked, state)
	require.InDelta(t, 500.0, ppb, 0.0001) // alpha 0.5 * 1000ns
}

func TestSampleClampsToMaxFreq(t *testing.T) {
	cfg := DefaultServoConfig()
	cfg.FirstUpdate = false
	s := NewProportionalServo(cfg)
	ppb, state := s.Sample(10_000_000_000)
	require.Equal(t, StateLocked, state)
	require.Equal(t, s.maxFreq, ppb)
}

func TestSampleStepsAboveStepThresholdAfterFirstUpdate(t *testing.T) {
	cfg := DefaultServoConfig()
	cfg.FirstUpdate = false
	cfg.StepThreshold = 500
	s := NewProportionalServo(cfg)
	_, state := s.Sample(600)
	require.Equal(t, StateJump, state)
}

func TestDisciplineStepsThroughCallback(t *testing.T) {
	s := NewProportionalServo(DefaultServoConfig())
	cb := hal.NewLoopback()
	state, err := s.Discipline(50000, cb)
	require.NoError(t, err)
	require.Equal(t, StateJump, state)
	require.Equal(t, int64(-50000), cb.LastClockAdjustmentNs())
}

func TestDisciplineSlewsThroughCallback(t *testing.T) {
	cfg := DefaultServoConfig()
	cfg.FirstUpdate = false
	s := NewProportionalServo(cfg)
	cb := hal.NewLoopback()
	state, err := s.Discipline(2000, cb)
	require.NoError(t, err)
	require.Equal(t, StateLocked, state)
	require.InDelta(t, 1000.0, cb.LastFrequencyAdjustmentPPB(), 0.0001)
}

func TestResetRestoresFirstUpdate(t *testing.T) {
	s := NewProportionalServo(DefaultServoConfig())
	s.Sample(50000)
	s.Reset()
	require.True(t, s.FirstUpdate)
	_, state := s.Sample(50000)
	require.Equal(t, StateJump, state)
}
