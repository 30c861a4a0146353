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

// Package portsm drives a single port through the nine PTP port states as
// events arrive, and separately houses the timer discipline (tick) that
// derives those events from a scheduler clock: announce/sync emission,
// announce-receipt and qualification timeouts, and the Uncalibrated->Slave
// qualification heuristic.
package portsm

import (
	"fmt"

	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

// Event is one of the inputs the transition table dispatches on.
type Event uint8

// Events a port's state machine reacts to.
const (
	EventPowerup Event = iota + 1
	EventInitialize
	EventFaultDetected
	EventFaultCleared
	EventDesignatedEnabled
	EventDesignatedDisabled
	EventRSMaster
	EventRSGrandMaster
	EventRSSlave
	EventRSPassive
	EventAnnounceReceiptTimeout
	EventSynchronizationFault
	EventQualificationTimeout
)

var eventNames = map[Event]string{
	EventPowerup:                "POWERUP",
	EventInitialize:             "INITIALIZE",
	EventFaultDetected:          "FAULT_DETECTED",
	EventFaultCleared:           "FAULT_CLEARED",
	EventDesignatedEnabled:      "DESIGNATED_ENABLED",
	EventDesignatedDisabled:     "DESIGNATED_DISABLED",
	EventRSMaster:               "RS_MASTER",
	EventRSGrandMaster:          "RS_GRAND_MASTER",
	EventRSSlave:                "RS_SLAVE",
	EventRSPassive:              "RS_PASSIVE",
	EventAnnounceReceiptTimeout: "ANNOUNCE_RECEIPT_TIMEOUT",
	EventSynchronizationFault:   "SYNCHRONIZATION_FAULT",
	EventQualificationTimeout:   "QUALIFICATION_TIMEOUT",
}

func (e Event) String() string { return eventNames[e] }

// transitions maps (fromState, event) to the resulting state. RS_MASTER and
// RS_GRAND_MASTER are equivalent everywhere the table allows RS_MASTER, so
// both are registered against the same target.
var transitions = map[protocol.PortState]map[Event]protocol.PortState{
	protocol.PortStateInitializing: {
		EventInitialize:         protocol.PortStateListening,
		EventFaultDetected:      protocol.PortStateFaulty,
		EventDesignatedDisabled: protocol.PortStateDisabled,
	},
	protocol.PortStateFaulty: {
		EventFaultCleared: protocol.PortStateInitializing,
	},
	protocol.PortStateDisabled: {
		EventDesignatedEnabled: protocol.PortStateListening,
	},
	protocol.PortStateListening: {
		EventRSMaster:            protocol.PortStatePreMaster,
		EventRSGrandMaster:       protocol.PortStatePreMaster,
		EventRSSlave:             protocol.PortStateUncalibrated,
		EventRSPassive:           protocol.PortStatePassive,
		EventFaultDetected:       protocol.PortStateFaulty,
		EventDesignatedDisabled:  protocol.PortStateDisabled,
	},
	protocol.PortStatePreMaster: {
		EventQualificationTimeout: protocol.PortStateMaster,
		EventRSSlave:              protocol.PortStateUncalibrated,
		EventRSPassive:            protocol.PortStatePassive,
	},
	protocol.PortStateMaster: {
		EventRSSlave:   protocol.PortStateUncalibrated,
		EventRSPassive: protocol.PortStatePassive,
	},
	protocol.PortStatePassive: {
		EventRSMaster: protocol.PortStatePreMaster,
		EventRSSlave:  protocol.PortStateUncalibrated,
	},
	protocol.PortStateUncalibrated: {
		EventRSPassive:              protocol.PortStatePassive,
		EventRSMaster:               protocol.PortStatePreMaster,
		EventSynchronizationFault:   protocol.PortStateListening,
		EventAnnounceReceiptTimeout: protocol.PortStateListening,
		// RS_SLAVE into Slave is not a table entry here: the transition out
		// of Uncalibrated is the FM-008 heuristic, driven by QualifyForSlave
		// rather than an externally injected event.
	},
	protocol.PortStateSlave: {
		EventRSMaster:               protocol.PortStatePreMaster,
		EventRSPassive:              protocol.PortStatePassive,
		EventSynchronizationFault:   protocol.PortStateUncalibrated,
		EventAnnounceReceiptTimeout: protocol.PortStateListening,
	},
}

// StateMachine holds the current state of one port. It never itself decides
// when to fire an event; a caller (a clock orchestrator or Tick) is
// responsible for observing the world and calling HandleEvent/QualifyForSlave.
type StateMachine struct {
	state protocol.PortState

	// qualification window for the FM-008 Uncalibrated->Slave heuristic.
	qualifyOffsetsComputed int64
	qualifyFailuresAtEntry int64
	qualifying             bool
}

// New returns a state machine starting in Initializing, per POWERUP.
func New() *StateMachine {
	return &StateMachine{state: protocol.PortStateInitializing}
}

// State returns the port's current state.
func (s *StateMachine) State() protocol.PortState { return s.state }

// HandleEvent applies the transition table entry for (current state, event).
// An event with no table entry for the current state is a no-op that
// reports false; the caller decides whether that is worth logging.
func (s *StateMachine) HandleEvent(e Event) (protocol.PortState, bool) {
	row, ok := transitions[s.state]
	if !ok {
		return s.state, false
	}
	next, ok := row[e]
	if !ok {
		return s.state, false
	}
	s.state = next
	if next == protocol.PortStateUncalibrated {
		s.qualifying = false // caller must call ArmQualificationWindow to start sampling
	}
	return s.state, true
}

// ArmQualificationWindow snapshots the process-wide ValidationsFailed count
// on entry to Uncalibrated. Call immediately after a transition into
// Uncalibrated fires.
func (s *StateMachine) ArmQualificationWindow(validationsFailedNow int64) {
	s.qualifyFailuresAtEntry = validationsFailedNow
	s.qualifyOffsetsComputed = 0
	s.qualifying = true
}

// NoteOffsetComputed records one more successful offset computation inside
// the current Uncalibrated qualification window. Call this only while in
// Uncalibrated; it is a no-op otherwise.
func (s *StateMachine) NoteOffsetComputed() {
	if s.state != protocol.PortStateUncalibrated || !s.qualifying {
		return
	}
	s.qualifyOffsetsComputed++
}

// QualifyForSlave implements the FM-008 gate: the port moves to Slave once
// it has produced at least three successful offset computations and the
// process-wide ValidationsFailed counter has not moved since the window was
// armed. The window closes (qualifying=false) the instant this returns true,
// per "the window is closed upon transition".
func (s *StateMachine) QualifyForSlave(validationsFailedNow int64) bool {
	if s.state != protocol.PortStateUncalibrated || !s.qualifying {
		return false
	}
	if s.qualifyOffsetsComputed < 3 {
		return false
	}
	if validationsFailedNow != s.qualifyFailuresAtEntry {
		return false
	}
	s.state = protocol.PortStateSlave
	s.qualifying = false
	return true
}

// Error describes an event the transition table has no entry for, for
// callers that want to surface a diagnostic rather than silently ignore it.
type Error struct {
	State protocol.PortState
	Event Event
}

func (e *Error) Error() string {
	return fmt.Sprintf("event %s has no transition from state %s", e.Event, e.State)
}
