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
	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

// TransparentClockKind selects which residence-time accounting a
// TransparentClock runs.
type TransparentClockKind uint8

// Transparent clock flavors.
const (
	TransparentEndToEnd TransparentClockKind = iota
	TransparentPeerToPeer
)

// TransparentClock forwards event messages while accumulating the time it
// held each one in correctionField. It runs no port state machine and
// tracks no data sets beyond its own kind and, for a peer-to-peer clock,
// the link delay it measured on this port: residence time (and peer delay,
// for P2P) is the entirety of its job.
type TransparentClock struct {
	Kind TransparentClockKind

	// PeerMeanPathDelay is this port's most recently measured link delay.
	// Only a TransparentPeerToPeer clock consults it; an end-to-end clock
	// leaves it at zero and unused.
	PeerMeanPathDelay protocol.TimeInterval
}

// UpdatePeerDelay records the outcome of this port's Pdelay_Req/Pdelay_Resp
// exchange, for a peer-to-peer clock to fold into every subsequent Forward
// call on the same port.
func (tc *TransparentClock) UpdatePeerDelay(d protocol.TimeInterval) {
	tc.PeerMeanPathDelay = d
}

// Forward applies correctionField += (egress-ingress) to msg in place. A
// peer-to-peer clock additionally folds in PeerMeanPathDelay for every
// event message except the Pdelay exchange itself, which measures that
// delay rather than consuming it. It rejects a negative residence time
// (egress before ingress) by leaving msg unchanged and returning an error,
// per the non-negative residence time invariant.
func (tc *TransparentClock) Forward(header *protocol.Header, ingress, egress protocol.Timestamp) *protocol.Error {
	residence := egress.Sub(ingress)
	if residence < 0 {
		return protocol.NewError(protocol.KindNegativeResidence, "residence time %d is negative: egress preceded ingress", int64(residence))
	}
	correction := protocol.Correction(residence)
	if tc.Kind == TransparentPeerToPeer {
		switch header.MessageType() {
		case protocol.MessagePDelayReq, protocol.MessagePDelayResp, protocol.MessagePDelayRespFollowUp:
		default:
			correction += protocol.Correction(tc.PeerMeanPathDelay)
		}
	}
	header.CorrectionField += correction
	return nil
}
