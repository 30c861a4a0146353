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
	"github.com/zarfld/ptp-sync-engine/ptp/datasets"
	"github.com/zarfld/ptp-sync-engine/ptp/hal"
	"github.com/zarfld/ptp-sync-engine/ptp/observability"
	"github.com/zarfld/ptp-sync-engine/ptp/portsm"
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
	"github.com/zarfld/ptp-sync-engine/ptp/servo"
	syncpipeline "github.com/zarfld/ptp-sync-engine/ptp/sync"
)

// MaxBoundaryPorts bounds the fixed-size port array a boundary clock owns.
const MaxBoundaryPorts = 16

// BoundaryClock owns up to MaxBoundaryPorts ports sharing one set of
// clock-wide data sets. When the best master is heard on one port (which
// becomes Slave), every other enabled port is driven into Master on the
// same domain and re-broadcasts Announce/Sync with stepsRemoved advanced by
// one and grandmaster fields inherited from parentDS.
type BoundaryClock struct {
	Default        datasets.DefaultDS
	Current        datasets.CurrentDS
	Parent         datasets.ParentDS
	TimeProperties datasets.TimePropertiesDS
	Ports          [MaxBoundaryPorts]*Port
	numPorts       int
	Callback       hal.Callbacks
	Servo          *servo.ProportionalServo
}

// NewBoundaryClock constructs a boundary clock with numPorts active ports
// (1-indexed PortNumber, matching PortIdentity.PortNumber convention).
// numPorts beyond MaxBoundaryPorts is rejected by returning nil.
func NewBoundaryClock(identity protocol.ClockIdentity, quality protocol.ClockQuality, numPorts int, cb hal.Callbacks) *BoundaryClock {
	if numPorts <= 0 || numPorts > MaxBoundaryPorts {
		return nil
	}
	d := datasets.DefaultDS{
		ClockIdentity: identity,
		NumberPorts:   uint16(numPorts),
		ClockQuality:  quality,
		Priority1:     128,
		Priority2:     128,
	}
	bc := &BoundaryClock{Default: d, numPorts: numPorts, Callback: cb, Servo: servo.NewProportionalServo(servo.DefaultServoConfig())}
	for i := 0; i < numPorts; i++ {
		bc.Ports[i] = NewPort(protocol.PortIdentity{ClockIdentity: identity, PortNumber: uint16(i + 1)}, &bc.Default, &bc.Current, &bc.Parent, cb)
	}
	bc.Parent.MirrorLocal(bc.Default, 1)
	return bc
}

// Start fires INITIALIZE on every configured port.
func (bc *BoundaryClock) Start() {
	for i := 0; i < bc.numPorts; i++ {
		bc.Ports[i].SM.HandleEvent(portsm.EventInitialize)
	}
}

// ProcessMessage decodes buf and dispatches it to portNumber (1-indexed),
// rejecting an out-of-range port with KindInvalidPort.
func (bc *BoundaryClock) ProcessMessage(portNumber uint16, buf []byte, ingressTS protocol.Timestamp) *protocol.Error {
	if portNumber == 0 || int(portNumber) > bc.numPorts {
		return protocol.NewError(protocol.KindInvalidPort, "port %d is out of range for a %d-port boundary clock", portNumber, bc.numPorts)
	}
	port := bc.Ports[portNumber-1]

	header, herr := protocol.DecodeHeader(buf, bc.Default.DomainNumber)
	if herr != nil {
		return herr
	}
	packet, derr := protocol.DecodeBody(buf)
	if derr != nil {
		return derr
	}

	wasSlave := port.SM.State() == protocol.PortStateSlave
	if err := bc.dispatchOnPort(port, header, packet, ingressTS); err != nil {
		return err
	}
	if !wasSlave && port.SM.State() == protocol.PortStateSlave {
		bc.becomeMasterOnOtherPorts(portNumber, bc.Callback.GetTimestamp().Time().UnixNano())
	}
	return nil
}

func (bc *BoundaryClock) dispatchOnPort(port *Port, header protocol.Header, packet protocol.Packet, ingressTS protocol.Timestamp) *protocol.Error {
	switch msg := packet.(type) {
	case *protocol.Announce:
		now := bc.Callback.GetTimestamp().Time().UnixNano()
		port.Foreign.Upsert(header.SourcePortIdentity, msg.AnnounceBody, header.SequenceID, now)
		port.Tick.NoteAnnounceReceived(now)
	case *protocol.SyncDelayReq:
		if header.MessageType() == protocol.MessageSync {
			port.Capture.OnT2(ingressTS)
			if !bc.Default.TwoStepFlag {
				port.Capture.OnT1(msg.OriginTimestamp, protocol.TimeInterval(header.CorrectionField))
			}
		}
	case *protocol.FollowUp:
		port.Capture.OnT1(msg.PreciseOriginTimestamp, protocol.TimeInterval(header.CorrectionField))
	case *protocol.DelayResp:
		port.Capture.OnT4(msg.ReceiveTimestamp, protocol.TimeInterval(header.CorrectionField), msg.RequestingPortIdentity, port.DS.PortIdentity)
	}

	if port.Capture.Ready() {
		updateMeanPathDelay := port.DS.DelayMechanism == datasets.DelayMechanismE2E
		res := syncpipeline.Compute(port.Capture, updateMeanPathDelay)
		port.Capture.Reset()
		if updateMeanPathDelay {
			bc.Current.MeanPathDelay = res.MeanPathDelay
		}
		bc.Current.OffsetFromMaster = res.OffsetFromMaster
		port.Tick.Health.RecordOffset(res.OffsetFromMaster.Nanoseconds())
		if port.SM.State() == protocol.PortStateUncalibrated {
			port.SM.NoteOffsetComputed()
			if port.SM.QualifyForSlave(observability.Global().ValidationsFailed.Load()) && bc.Callback != nil {
				bc.Callback.OnStateChange(protocol.PortStateUncalibrated, protocol.PortStateSlave)
			}
		}
		if port.SM.State() == protocol.PortStateSlave && bc.Servo != nil {
			if _, err := bc.Servo.Discipline(int64(res.OffsetFromMaster.Nanoseconds()), bc.Callback); err != nil {
				bc.Callback.OnFault(err.Error())
			}
		}
	}
	return nil
}

// becomeMasterOnOtherPorts drives every other enabled port to Master.
// stepsRemoved and the grandmaster fields were already adopted onto
// currentDS/parentDS by runBMCA's RS_SLAVE handling the moment the slave
// port won BMCA, so every other port's subsequent Announce emission (which
// reads parentDS/currentDS directly) inherits them without further updates
// here. A port that lands in PreMaster by this path still needs its
// qualification timeout armed, the same as Tick's own per-port transition
// handling does for a locally-driven RS_MASTER.
func (bc *BoundaryClock) becomeMasterOnOtherPorts(slavePortNumber uint16, now int64) {
	for i := 0; i < bc.numPorts; i++ {
		if uint16(i+1) == slavePortNumber {
			continue
		}
		p := bc.Ports[i]
		if p.SM.State() == protocol.PortStatePreMaster || p.SM.State() == protocol.PortStateMaster {
			continue
		}
		old := p.SM.State()
		next, ok := p.SM.HandleEvent(portsm.EventRSMaster)
		if !ok {
			continue
		}
		if next == protocol.PortStatePreMaster {
			p.Tick.EnterPreMaster(now)
		}
		if bc.Callback != nil {
			bc.Callback.OnStateChange(old, next)
		}
	}
}

// Tick drives the timer discipline (BMCA, message emission, timeouts) for
// every configured port, then propagates a fresh Slave win into Master on
// every other port, mirroring OrdinaryClock.Tick but fanned out across the
// whole port array.
func (bc *BoundaryClock) Tick(now int64) {
	for i := 0; i < bc.numPorts; i++ {
		port := bc.Ports[i]
		portNumber := uint16(i + 1)

		wasSlave := port.SM.State() == protocol.PortStateSlave
		announceReceiptTimeoutNs := int64(port.DS.AnnounceReceiptTimeout) * port.DS.LogAnnounceInterval.Duration().Nanoseconds()
		oldState := port.SM.State()
		port.Tick.Tick(now, announceReceiptTimeoutNs)
		newState := port.SM.State()

		if newState != oldState {
			if newState == protocol.PortStateMaster || newState == protocol.PortStateInitializing {
				// currentDS is shared: keep the adopted stepsRemoved while any
				// port still tracks a parent.
				tracking := false
				for j := 0; j < bc.numPorts; j++ {
					if s := bc.Ports[j].SM.State(); s == protocol.PortStateSlave || s == protocol.PortStateUncalibrated {
						tracking = true
					}
				}
				if !tracking {
					bc.Current.ResetToMaster()
				}
			}
			if newState == protocol.PortStatePreMaster {
				port.Tick.EnterPreMaster(now)
			}
			if newState == protocol.PortStateUncalibrated {
				port.SM.ArmQualificationWindow(observability.Global().ValidationsFailed.Load())
			}
			if bc.Callback != nil {
				bc.Callback.OnStateChange(oldState, newState)
			}
		}

		if !wasSlave && newState == protocol.PortStateSlave {
			bc.becomeMasterOnOtherPorts(portNumber, now)
		}
	}
}
