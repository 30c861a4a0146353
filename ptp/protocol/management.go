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
	"bytes"
	"encoding/binary"
	"fmt"
)

// Action indicates the action to be taken on receipt of the PTP message, as
// defined in Table 57. The core only ever answers GET with RESPONSE; SET,
// COMMAND and ACKNOWLEDGE are echoed back as NOT_SUPPORTED.
type Action uint8

// actions as in Table 57 Values of the actionField
const (
	GET Action = iota
	SET
	RESPONSE
	COMMAND
	ACKNOWLEDGE
)

// ManagementID is the type for Management IDs (Table 59).
type ManagementID uint16

// Management IDs the core recognizes. Only the five data sets named by the
// spec are implemented; everything else answers ErrorNoSuchID.
const (
	IDNullPTPManagement     ManagementID = 0x0000
	IDClockDescription      ManagementID = 0x0001
	IDUserDescription       ManagementID = 0x0002
	IDDefaultDataSet        ManagementID = 0x2000
	IDCurrentDataSet        ManagementID = 0x2001
	IDParentDataSet         ManagementID = 0x2002
	IDTimePropertiesDataSet ManagementID = 0x2003
	IDPortDataSet           ManagementID = 0x2004
)

var managementIDToString = map[ManagementID]string{
	IDNullPTPManagement:     "NULL_PTP_MANAGEMENT",
	IDClockDescription:      "CLOCK_DESCRIPTION",
	IDUserDescription:       "USER_DESCRIPTION",
	IDDefaultDataSet:        "DEFAULT_DATA_SET",
	IDCurrentDataSet:        "CURRENT_DATA_SET",
	IDParentDataSet:         "PARENT_DATA_SET",
	IDTimePropertiesDataSet: "TIME_PROPERTIES_DATA_SET",
	IDPortDataSet:           "PORT_DATA_SET",
}

func (id ManagementID) String() string {
	if s, ok := managementIDToString[id]; ok {
		return s
	}
	return fmt.Sprintf("UNKNOWN_MANAGEMENT_ID(0x%04x)", uint16(id))
}

// ManagementErrorID enumerates Table 109 managementErrorId values.
type ManagementErrorID uint16

// The subset of Table 109 the core can return.
const (
	ErrorNoSuchID     ManagementErrorID = 0x0002
	ErrorNotSupported ManagementErrorID = 0x0006
)

func (id ManagementErrorID) Error() string {
	switch id {
	case ErrorNoSuchID:
		return "NO_SUCH_ID"
	case ErrorNotSupported:
		return "NOT_SUPPORTED"
	}
	return fmt.Sprintf("UNKNOWN_ERROR_ID(0x%04x)", uint16(id))
}

// ManagementTLVHead is Table 58's common management TLV prefix.
type ManagementTLVHead struct {
	TLVHead
	ManagementID ManagementID
}

// ManagementMsgHead is Table 56's common management message prefix.
type ManagementMsgHead struct {
	Header
	TargetPortIdentity   PortIdentity
	StartingBoundaryHops uint8
	BoundaryHops         uint8
	ActionField          Action
	Reserved             uint8
}

// DefaultDataSetTLV is Table 69's DEFAULT_DATA_SET management TLV data
// field: a wire projection of datasets.DefaultDS.
type DefaultDataSetTLV struct {
	SoTSC         uint8 // bit0: twoStepFlag, bit1: slaveOnly
	Reserved0     uint8
	NumberPorts   uint16
	Priority1     uint8
	ClockQuality  ClockQuality
	Priority2     uint8
	ClockIdentity ClockIdentity
	DomainNumber  uint8
	Reserved1     uint8
}

// CurrentDataSetTLV is Table 84's CURRENT_DATA_SET management TLV data
// field: a wire projection of datasets.CurrentDS.
type CurrentDataSetTLV struct {
	StepsRemoved     uint16
	OffsetFromMaster TimeInterval
	MeanPathDelay    TimeInterval
}

// ParentDataSetTLV is Table 85's PARENT_DATA_SET management TLV data field:
// a wire projection of datasets.ParentDS.
type ParentDataSetTLV struct {
	ParentPortIdentity                    PortIdentity
	PS                                     uint8
	Reserved                               uint8
	ObservedParentOffsetScaledLogVariance uint16
	ObservedParentClockPhaseChangeRate    uint32
	GrandmasterPriority1                  uint8
	GrandmasterClockQuality               ClockQuality
	GrandmasterPriority2                  uint8
	GrandmasterIdentity                   ClockIdentity
}

// TimePropertiesDataSetTLV is Table 86's TIME_PROPERTIES_DATA_SET
// management TLV data field: a wire projection of datasets.TimePropertiesDS.
type TimePropertiesDataSetTLV struct {
	CurrentUtcOffset      int16
	Flags                 uint8 // leap61|leap59|currentUtcOffsetValid|ptpTimescale|timeTraceable|frequencyTraceable
	TimeSource            TimeSource
}

// PortDataSetTLV is Table 78's PORT_DATA_SET management TLV data field: a
// wire projection of datasets.PortDS.
type PortDataSetTLV struct {
	PortIdentity            PortIdentity
	PortState               PortState
	LogMinDelayReqInterval  LogInterval
	PeerMeanPathDelay       TimeInterval
	LogAnnounceInterval     LogInterval
	AnnounceReceiptTimeout  uint8
	LogSyncInterval         LogInterval
	DelayMechanism          uint8
	LogMinPDelayReqInterval LogInterval
	VersionNumber           uint8
}

// WriteManagementResponse encodes a GET-response Management message whose
// TLV body is the given payload, which must already be in wire (big-endian
// struct) form.
func WriteManagementResponse(buf []byte, req *ManagementMsgHead, id ManagementID, body interface{}) (int, error) {
	var bodyBuf bytes.Buffer
	if err := binary.Write(&bodyBuf, binary.BigEndian, body); err != nil {
		return 0, NewError(KindInvalidMessageSize, "encoding management body: %v", err)
	}
	bodyBytes := bodyBuf.Bytes()
	tlvLen := 2 /*ManagementID*/ + len(bodyBytes)

	head := ManagementMsgHead{
		Header: Header{
			SdoIDAndMsgType:    NewSdoIDAndMsgType(MessageManagement, 0),
			Version:            Version,
			DomainNumber:       req.Header.DomainNumber,
			SourcePortIdentity: req.TargetPortIdentity,
			SequenceID:         req.Header.SequenceID,
			ControlField:       0,
			LogMessageInterval: MgmtLogMessageInterval,
		},
		TargetPortIdentity:   req.Header.SourcePortIdentity,
		StartingBoundaryHops: req.StartingBoundaryHops,
		BoundaryHops:         req.BoundaryHops,
		ActionField:          RESPONSE,
	}

	n := headerMarshalBinaryTo(&head.Header, buf)
	binary.BigEndian.PutUint64(buf[n:], uint64(head.TargetPortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(buf[n+8:], head.TargetPortIdentity.PortNumber)
	buf[n+10] = head.StartingBoundaryHops
	buf[n+11] = head.BoundaryHops
	buf[n+12] = byte(head.ActionField)
	buf[n+13] = 0
	n += 14

	binary.BigEndian.PutUint16(buf[n:], uint16(TLVManagement))
	binary.BigEndian.PutUint16(buf[n+2:], uint16(tlvLen))
	binary.BigEndian.PutUint16(buf[n+4:], uint16(id))
	copy(buf[n+6:], bodyBytes)
	n += 6 + len(bodyBytes)

	totalLen := n
	binary.BigEndian.PutUint16(buf[2:], uint16(totalLen))
	return totalLen, nil
}

// WriteManagementError encodes a MANAGEMENT_ERROR_STATUS response, used for
// unsupported management IDs and for any non-GET action field.
func WriteManagementError(buf []byte, req *ManagementMsgHead, id ManagementID, errID ManagementErrorID) (int, error) {
	head := ManagementMsgHead{
		Header: Header{
			SdoIDAndMsgType:    NewSdoIDAndMsgType(MessageManagement, 0),
			Version:            Version,
			DomainNumber:       req.Header.DomainNumber,
			SourcePortIdentity: req.TargetPortIdentity,
			SequenceID:         req.Header.SequenceID,
			LogMessageInterval: MgmtLogMessageInterval,
		},
		TargetPortIdentity:   req.Header.SourcePortIdentity,
		StartingBoundaryHops: req.StartingBoundaryHops,
		BoundaryHops:         req.BoundaryHops,
		ActionField:          RESPONSE,
	}
	n := headerMarshalBinaryTo(&head.Header, buf)
	binary.BigEndian.PutUint64(buf[n:], uint64(head.TargetPortIdentity.ClockIdentity))
	binary.BigEndian.PutUint16(buf[n+8:], head.TargetPortIdentity.PortNumber)
	buf[n+10] = head.StartingBoundaryHops
	buf[n+11] = head.BoundaryHops
	buf[n+12] = byte(head.ActionField)
	buf[n+13] = 0
	n += 14

	const tlvLen = 2 /*managementID*/ + 2 /*managementErrorID*/ + 4 /*reserved*/
	binary.BigEndian.PutUint16(buf[n:], uint16(TLVManagementErrorStatus))
	binary.BigEndian.PutUint16(buf[n+2:], uint16(tlvLen))
	binary.BigEndian.PutUint16(buf[n+4:], uint16(errID))
	binary.BigEndian.PutUint16(buf[n+6:], uint16(id))
	binary.BigEndian.PutUint32(buf[n+8:], 0)
	n += 12

	binary.BigEndian.PutUint16(buf[2:], uint16(n))
	return n, nil
}

// ManagementRequest is the decoded form of an incoming Management message
// DecodePacket hands back for the GET-only management surface: the caller
// inspects RequestedID and ActionField, then calls WriteManagementResponse
// or WriteManagementError to answer it.
type ManagementRequest struct {
	ManagementMsgHead
	RequestedID ManagementID
}

// decodeMgmtPacket implements the MessageManagement branch of DecodePacket.
func decodeMgmtPacket(b []byte) (Packet, error) {
	head, id, _, err := DecodeManagementRequest(b)
	if err != nil {
		return nil, err
	}
	return &ManagementRequest{ManagementMsgHead: head, RequestedID: id}, nil
}

// DecodeManagementRequest parses a Management message's head and tells the
// caller which data set (if any) was requested. Only GET is supported; any
// other action is reported via ok=false so the caller can answer
// ErrorNotSupported.
func DecodeManagementRequest(b []byte) (head ManagementMsgHead, id ManagementID, ok bool, err error) {
	if len(b) < headerSize+14+4 {
		return head, 0, false, NewError(KindInvalidMessageSize, "management request too short: %d bytes", len(b))
	}
	unmarshalHeader(&head.Header, b)
	n := headerSize
	head.TargetPortIdentity.ClockIdentity = ClockIdentity(binary.BigEndian.Uint64(b[n:]))
	head.TargetPortIdentity.PortNumber = binary.BigEndian.Uint16(b[n+8:])
	head.StartingBoundaryHops = b[n+10]
	head.BoundaryHops = b[n+11]
	head.ActionField = Action(b[n+12])
	n += 14

	tlvType := TLVType(binary.BigEndian.Uint16(b[n:]))
	if tlvType != TLVManagement {
		return head, 0, false, NewError(KindInvalidMessageSize, "expected MANAGEMENT TLV, got %s", tlvType)
	}
	id = ManagementID(binary.BigEndian.Uint16(b[n+4:]))
	ok = head.ActionField == GET
	return head, id, ok, nil
}
