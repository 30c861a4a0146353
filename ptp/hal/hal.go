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

// Package hal defines the callback set an embedding runtime supplies to the
// protocol core: transmission, hardware timestamping, clock discipline, and
// best-effort notifications. It is a typed interface rather than a struct of
// function pointers, so an embedder that wants a no-op for one operation
// says so explicitly instead of leaving a nil that the core would have to
// guard against on every call.
package hal

import (
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

// Callbacks is the full surface the core calls into. Send methods must be
// non-blocking and must not call back into the core that invoked them.
type Callbacks interface {
	SendAnnounce(msg *protocol.Announce) error
	SendSync(msg *protocol.SyncDelayReq) error
	SendFollowUp(msg *protocol.FollowUp) error
	SendDelayReq(msg *protocol.SyncDelayReq) error
	SendDelayResp(msg *protocol.DelayResp) error

	// GetTimestamp returns the local monotonic clock reading; it never fails.
	GetTimestamp() protocol.Timestamp
	// GetTxTimestamp returns the hardware TX timestamp for the egress frame
	// carrying sequenceID, once available.
	GetTxTimestamp(sequenceID uint16) (protocol.Timestamp, error)

	// AdjustClock steps the local clock by deltaNs (may be negative).
	AdjustClock(deltaNs int64) error
	// AdjustFrequency trims the local oscillator by ppb parts-per-billion.
	AdjustFrequency(ppb float64) error

	OnStateChange(old, new protocol.PortState)
	OnFault(reason string)
}

// Loopback is a Callbacks implementation useful for tests and the demo CLI:
// sends are recorded rather than transmitted, and GetTimestamp reads an
// injectable clock rather than the OS clock.
type Loopback struct {
	Now func() protocol.Timestamp

	Announces  []*protocol.Announce
	Syncs      []*protocol.SyncDelayReq
	FollowUps  []*protocol.FollowUp
	DelayReqs  []*protocol.SyncDelayReq
	DelayResps []*protocol.DelayResp

	TxTimestamps map[uint16]protocol.Timestamp

	StateChanges []StateChange
	Faults       []string

	lastAdjustNs  int64
	lastAdjustPPB float64
}

// StateChange records one OnStateChange notification.
type StateChange struct {
	Old, New protocol.PortState
}

// NewLoopback returns a Loopback whose clock reads zero until Now is set.
func NewLoopback() *Loopback {
	return &Loopback{
		Now:          func() protocol.Timestamp { return protocol.Timestamp{} },
		TxTimestamps: make(map[uint16]protocol.Timestamp),
	}
}

func (l *Loopback) SendAnnounce(msg *protocol.Announce) error {
	l.Announces = append(l.Announces, msg)
	return nil
}

func (l *Loopback) SendSync(msg *protocol.SyncDelayReq) error {
	l.Syncs = append(l.Syncs, msg)
	return nil
}

func (l *Loopback) SendFollowUp(msg *protocol.FollowUp) error {
	l.FollowUps = append(l.FollowUps, msg)
	return nil
}

func (l *Loopback) SendDelayReq(msg *protocol.SyncDelayReq) error {
	l.DelayReqs = append(l.DelayReqs, msg)
	return nil
}

func (l *Loopback) SendDelayResp(msg *protocol.DelayResp) error {
	l.DelayResps = append(l.DelayResps, msg)
	return nil
}

func (l *Loopback) GetTimestamp() protocol.Timestamp { return l.Now() }

func (l *Loopback) GetTxTimestamp(sequenceID uint16) (protocol.Timestamp, error) {
	ts, ok := l.TxTimestamps[sequenceID]
	if !ok {
		return protocol.Timestamp{}, &protocol.Error{Kind: protocol.KindResourceUnavailable, Message: "no tx timestamp recorded for sequence"}
	}
	return ts, nil
}

func (l *Loopback) AdjustClock(deltaNs int64) error {
	l.lastAdjustNs = deltaNs
	return nil
}

func (l *Loopback) AdjustFrequency(ppb float64) error {
	l.lastAdjustPPB = ppb
	return nil
}

func (l *Loopback) OnStateChange(old, newState protocol.PortState) {
	l.StateChanges = append(l.StateChanges, StateChange{Old: old, New: newState})
}

func (l *Loopback) OnFault(reason string) {
	l.Faults = append(l.Faults, reason)
}

// LastClockAdjustmentNs returns the delta passed to the most recent
// AdjustClock call.
func (l *Loopback) LastClockAdjustmentNs() int64 { return l.lastAdjustNs }

// LastFrequencyAdjustmentPPB returns the ppb passed to the most recent
// AdjustFrequency call.
func (l *Loopback) LastFrequencyAdjustmentPPB() float64 { return l.lastAdjustPPB }
