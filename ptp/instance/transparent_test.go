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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

func syncHeader() *protocol.Header {
	return &protocol.Header{SdoIDAndMsgType: protocol.NewSdoIDAndMsgType(protocol.MessageSync, 0)}
}

func TestTransparentClockE2EAccumulatesResidence(t *testing.T) {
	tc := &TransparentClock{}
	h := syncHeader()
	require.Nil(t, tc.Forward(h, ts(100, 0), ts(100, 250)))
	require.Equal(t, protocol.Correction(250<<16), h.CorrectionField)
}

func TestTransparentClockNegativeResidenceLeavesCorrectionFieldUnchanged(t *testing.T) {
	tc := &TransparentClock{}
	h := syncHeader()
	h.CorrectionField = 42

	err := tc.Forward(h, ts(100, 500), ts(100, 100))
	require.NotNil(t, err)
	require.Equal(t, protocol.KindNegativeResidence, err.Kind)
	require.Equal(t, protocol.Correction(42), h.CorrectionField)
}

func TestTransparentClockP2PFoldsInPeerMeanPathDelayForOrdinaryMessages(t *testing.T) {
	tc := &TransparentClock{Kind: TransparentPeerToPeer}
	tc.UpdatePeerDelay(protocol.TimeInterval(75))

	h := syncHeader()
	require.Nil(t, tc.Forward(h, ts(200, 0), ts(200, 250)))
	require.Equal(t, protocol.Correction(250<<16+75), h.CorrectionField)
}

func TestTransparentClockP2PExcludesPeerMeanPathDelayForPdelayExchange(t *testing.T) {
	tc := &TransparentClock{Kind: TransparentPeerToPeer}
	tc.UpdatePeerDelay(protocol.TimeInterval(75))

	for _, mt := range []protocol.MessageType{
		protocol.MessagePDelayReq,
		protocol.MessagePDelayResp,
		protocol.MessagePDelayRespFollowUp,
	} {
		h := &protocol.Header{SdoIDAndMsgType: protocol.NewSdoIDAndMsgType(mt, 0)}
		require.Nil(t, tc.Forward(h, ts(300, 0), ts(300, 250)))
		require.Equal(t, protocol.Correction(250<<16), h.CorrectionField, "message type %s must not fold in PeerMeanPathDelay", mt)
	}
}
