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

// Package instance wires the protocol core's pieces together into the
// three clock orchestrators an embedder actually constructs: OrdinaryClock
// (one port), BoundaryClock (up to 16 ports), and TransparentClock
// (residence-time correction, no state machine).
package instance

import (
	"github.com/zarfld/ptp-sync-engine/ptp/datasets"
	"github.com/zarfld/ptp-sync-engine/ptp/hal"
	"github.com/zarfld/ptp-sync-engine/ptp/observability"
	"github.com/zarfld/ptp-sync-engine/ptp/portsm"
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
	"github.com/zarfld/ptp-sync-engine/ptp/servo"
	syncpipeline "github.com/zarfld/ptp-sync-engine/ptp/sync"
)

// Port bundles the per-port mutable state an orchestrator dispatches
// against: the data set, the foreign-master tracker, the T1..T4 capture
// state, and the state machine/ticker pair driving it.
type Port struct {
	DS      datasets.PortDS
	Foreign datasets.ForeignMasterList
	Capture syncpipeline.Capture
	SM      *portsm.StateMachine
	Tick    *portsm.Ticker
}

// NewPort returns a port in Initializing with an empty foreign-master list.
// cur/par are the clock-wide currentDS/parentDS the port's BMCA/announce
// emission reads and updates; every port of a boundary clock shares the same
// pair.
func NewPort(identity protocol.PortIdentity, d *datasets.DefaultDS, cur *datasets.CurrentDS, par *datasets.ParentDS, cb hal.Callbacks) *Port {
	p := &Port{
		DS: datasets.PortDS{
			PortIdentity:   identity,
			PortState:      protocol.PortStateInitializing,
			DelayMechanism: datasets.DelayMechanismE2E,
			VersionNumber:  protocol.MajorVersion,
		},
		SM: portsm.New(),
	}
	p.Tick = &portsm.Ticker{
		SM: p.SM, PortDS: &p.DS, Default: d, Parent: par, Current: cur,
		Foreign: &p.Foreign, Capture: &p.Capture, Callback: cb,
		Logger: observability.NopLogger{},
	}
	return p
}

// OrdinaryClock is a single-port clock: it owns the clock-wide data sets and
// dispatches every ingress message to its one port.
type OrdinaryClock struct {
	Default        datasets.DefaultDS
	Current        datasets.CurrentDS
	Parent         datasets.ParentDS
	TimeProperties datasets.TimePropertiesDS
	Port           *Port
	Callback       hal.Callbacks
	Servo          *servo.ProportionalServo
}

// NewOrdinaryClock constructs a single-port clock already past POWERUP; the
// caller still has to fire INITIALIZE (or call Start) once the HAL is ready.
func NewOrdinaryClock(identity protocol.ClockIdentity, quality protocol.ClockQuality, cb hal.Callbacks) *OrdinaryClock {
	d := datasets.DefaultDS{
		ClockIdentity: identity,
		NumberPorts:   1,
		ClockQuality:  quality,
		Priority1:     128,
		Priority2:     128,
	}
	oc := &OrdinaryClock{Default: d, Callback: cb, Servo: servo.NewProportionalServo(servo.DefaultServoConfig())}
	oc.Port = NewPort(protocol.PortIdentity{ClockIdentity: identity, PortNumber: 1}, &oc.Default, &oc.Current, &oc.Parent, cb)
	oc.Parent.MirrorLocal(oc.Default, 1)
	return oc
}

// Start fires the port's INITIALIZE event, moving it from Initializing to
// Listening.
func (oc *OrdinaryClock) Start() {
	old := oc.Port.SM.State()
	next, ok := oc.Port.SM.HandleEvent(portsm.EventInitialize)
	if ok && oc.Callback != nil {
		oc.Callback.OnStateChange(old, next)
	}
}

// ProcessMessage decodes buf and dispatches it to the clock's one port.
// The message type is not a parameter: it is read from the decoded header.
func (oc *OrdinaryClock) ProcessMessage(buf []byte, ingressTS protocol.Timestamp) *protocol.Error {
	header, herr := protocol.DecodeHeader(buf, oc.Default.DomainNumber)
	if herr != nil {
		return herr
	}
	packet, derr := protocol.DecodeBody(buf)
	if derr != nil {
		return derr
	}
	return oc.dispatch(header, packet, ingressTS)
}

func (oc *OrdinaryClock) dispatch(header protocol.Header, packet protocol.Packet, ingressTS protocol.Timestamp) *protocol.Error {
	port := oc.Port
	switch msg := packet.(type) {
	case *protocol.Announce:
		now := oc.Callback.GetTimestamp().Time().UnixNano()
		port.Foreign.Upsert(header.SourcePortIdentity, msg.AnnounceBody, header.SequenceID, now)
		port.Tick.NoteAnnounceReceived(now)
	case *protocol.SyncDelayReq:
		if header.MessageType() == protocol.MessageSync {
			port.Capture.OnT2(ingressTS)
			if !oc.Default.TwoStepFlag {
				// One-step: the precise origin timestamp travels in the Sync
				// body itself rather than a separate Follow_Up.
				port.Capture.OnT1(msg.OriginTimestamp, protocol.TimeInterval(header.CorrectionField))
			}
		}
	case *protocol.FollowUp:
		port.Capture.OnT1(msg.PreciseOriginTimestamp, protocol.TimeInterval(header.CorrectionField))
	case *protocol.DelayResp:
		port.Capture.OnT4(msg.ReceiveTimestamp, protocol.TimeInterval(header.CorrectionField), msg.RequestingPortIdentity, port.DS.PortIdentity)
	case *protocol.ManagementRequest:
		return oc.handleManagement(header, msg)
	}

	if port.Capture.Ready() {
		updateMeanPathDelay := port.DS.DelayMechanism == datasets.DelayMechanismE2E
		res := syncpipeline.Compute(port.Capture, updateMeanPathDelay)
		port.Capture.Reset()
		if updateMeanPathDelay {
			oc.Current.MeanPathDelay = res.MeanPathDelay
		}
		oc.Current.OffsetFromMaster = res.OffsetFromMaster
		port.Tick.Health.RecordOffset(res.OffsetFromMaster.Nanoseconds())
		if port.SM.State() == protocol.PortStateUncalibrated {
			port.SM.NoteOffsetComputed()
			if port.SM.QualifyForSlave(observability.Global().ValidationsFailed.Load()) && oc.Callback != nil {
				oc.Callback.OnStateChange(protocol.PortStateUncalibrated, protocol.PortStateSlave)
			}
		}
		if port.SM.State() == protocol.PortStateSlave && oc.Servo != nil {
			if _, err := oc.Servo.Discipline(int64(res.OffsetFromMaster.Nanoseconds()), oc.Callback); err != nil {
				oc.Callback.OnFault(err.Error())
			}
		}
	}
	return nil
}

// handleManagement implements the minimal GET-only management surface:
// SET/COMMAND/ACKNOWLEDGE are rejected with NOT_SUPPORTED, and GET returns a
// snapshot of the requested data set.
func (oc *OrdinaryClock) handleManagement(header protocol.Header, req *protocol.ManagementRequest) *protocol.Error {
	buf := make([]byte, 256)
	if req.ActionField != protocol.GET {
		if _, err := protocol.WriteManagementError(buf, &req.ManagementMsgHead, req.RequestedID, protocol.ErrorNotSupported); err != nil {
			return protocol.NewError(protocol.KindInvalidMessageSize, "%v", err)
		}
		return nil
	}
	var body interface{}
	switch req.RequestedID {
	case protocol.IDDefaultDataSet:
		body = protocol.DefaultDataSetTLV{
			NumberPorts:   oc.Default.NumberPorts,
			Priority1:     oc.Default.Priority1,
			ClockQuality:  oc.Default.ClockQuality,
			Priority2:     oc.Default.Priority2,
			ClockIdentity: oc.Default.ClockIdentity,
			DomainNumber:  oc.Default.DomainNumber,
		}
	case protocol.IDCurrentDataSet:
		body = protocol.CurrentDataSetTLV{
			StepsRemoved:     oc.Current.StepsRemoved,
			OffsetFromMaster: oc.Current.OffsetFromMaster,
			MeanPathDelay:    oc.Current.MeanPathDelay,
		}
	case protocol.IDParentDataSet:
		body = protocol.ParentDataSetTLV{
			ParentPortIdentity:      oc.Parent.ParentPortIdentity,
			GrandmasterClockQuality: oc.Parent.GrandmasterClockQuality,
			GrandmasterPriority1:    oc.Parent.GrandmasterPriority1,
			GrandmasterPriority2:    oc.Parent.GrandmasterPriority2,
			GrandmasterIdentity:     oc.Parent.GrandmasterIdentity,
		}
	case protocol.IDTimePropertiesDataSet:
		tp := oc.TimeProperties
		var flags uint8
		for bit, set := range []bool{tp.Leap61, tp.Leap59, tp.CurrentUtcOffsetValid, tp.PTPTimescale, tp.TimeTraceable, tp.FrequencyTraceable} {
			if set {
				flags |= 1 << bit
			}
		}
		body = protocol.TimePropertiesDataSetTLV{CurrentUtcOffset: tp.CurrentUtcOffset, Flags: flags, TimeSource: tp.TimeSource}
	case protocol.IDPortDataSet:
		body = protocol.PortDataSetTLV{
			PortIdentity:            oc.Port.DS.PortIdentity,
			PortState:               oc.Port.SM.State(),
			LogMinDelayReqInterval:  oc.Port.DS.LogMinDelayReqInterval,
			PeerMeanPathDelay:       oc.Port.DS.PeerMeanPathDelay,
			LogAnnounceInterval:     oc.Port.DS.LogAnnounceInterval,
			AnnounceReceiptTimeout:  oc.Port.DS.AnnounceReceiptTimeout,
			LogSyncInterval:         oc.Port.DS.LogSyncInterval,
			DelayMechanism:          uint8(oc.Port.DS.DelayMechanism),
			LogMinPDelayReqInterval: oc.Port.DS.LogMinPDelayReqInterval,
			VersionNumber:           oc.Port.DS.VersionNumber,
		}
	default:
		if _, err := protocol.WriteManagementError(buf, &req.ManagementMsgHead, req.RequestedID, protocol.ErrorNoSuchID); err != nil {
			return protocol.NewError(protocol.KindInvalidMessageSize, "%v", err)
		}
		return nil
	}
	if _, err := protocol.WriteManagementResponse(buf, &req.ManagementMsgHead, req.RequestedID, body); err != nil {
		return protocol.NewError(protocol.KindInvalidMessageSize, "%v", err)
	}
	return nil
}

// Tick drives the port's timer discipline: BMCA, message emission, and
// timeout detection.
func (oc *OrdinaryClock) Tick(now int64) {
	announceReceiptTimeoutNs := int64(oc.Port.DS.AnnounceReceiptTimeout) * oc.Port.DS.LogAnnounceInterval.Duration().Nanoseconds()
	oldState := oc.Port.SM.State()
	oc.Port.Tick.Tick(now, announceReceiptTimeoutNs)
	newState := oc.Port.SM.State()
	if newState != oldState {
		if newState == protocol.PortStateMaster || newState == protocol.PortStateInitializing {
			oc.Current.ResetToMaster()
		}
		if newState == protocol.PortStatePreMaster {
			oc.Port.Tick.EnterPreMaster(now)
		}
		if newState == protocol.PortStateUncalibrated {
			oc.Port.SM.ArmQualificationWindow(observability.Global().ValidationsFailed.Load())
		}
		if oc.Callback != nil {
			oc.Callback.OnStateChange(oldState, newState)
		}
	}
}
