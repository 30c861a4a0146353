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
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zarfld/ptp-sync-engine/ptp/protocol"
)

// buildAnnounce marshals a well-formed Announce from a foreign master.
func buildAnnounce(t *testing.T, source protocol.PortIdentity, seq uint16, body protocol.AnnounceBody) []byte {
	t.Helper()
	p := &protocol.Announce{
		Header: protocol.Header{
			SdoIDAndMsgType:    protocol.NewSdoIDAndMsgType(protocol.MessageAnnounce, 0),
			Version:            protocol.Version,
			SourcePortIdentity: source,
			SequenceID:         seq,
		},
		AnnounceBody: body,
	}
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	return b
}

// buildSync marshals a one-step Sync carrying originTimestamp as T1.
func buildSync(t *testing.T, source protocol.PortIdentity, seq uint16, origin protocol.Timestamp) []byte {
	t.Helper()
	p := &protocol.SyncDelayReq{
		Header: protocol.Header{
			SdoIDAndMsgType:    protocol.NewSdoIDAndMsgType(protocol.MessageSync, 0),
			Version:            protocol.Version,
			SourcePortIdentity: source,
			SequenceID:         seq,
		},
		SyncDelayReqBody: protocol.SyncDelayReqBody{OriginTimestamp: origin},
	}
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	return b
}

// buildDelayResp marshals a Delay_Resp answering requesting with T4 =
// receiveTS.
func buildDelayResp(t *testing.T, source, requesting protocol.PortIdentity, seq uint16, receiveTS protocol.Timestamp) []byte {
	t.Helper()
	p := &protocol.DelayResp{
		Header: protocol.Header{
			SdoIDAndMsgType:    protocol.NewSdoIDAndMsgType(protocol.MessageDelayResp, 0),
			Version:            protocol.Version,
			SourcePortIdentity: source,
			SequenceID:         seq,
		},
		DelayRespBody: protocol.DelayRespBody{
			ReceiveTimestamp:       receiveTS,
			RequestingPortIdentity: requesting,
		},
	}
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	return b
}

func ts(secs int64, nsec int64) protocol.Timestamp {
	return protocol.NewTimestamp(time.Unix(secs, nsec))
}
