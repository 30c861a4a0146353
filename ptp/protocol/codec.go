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

// This file is the narrow, allocation-free entry point a port uses to turn
// wire bytes into a Packet and back, wrapping DecodePacket, MarshalBinaryTo
// and Bytes so that every failure comes back as a tagged *Error.

// DecodeHeader reads only the common header (Table 35) out of b and checks
// version and domain before the caller bothers decoding a body. It never
// allocates.
func DecodeHeader(b []byte, expectedDomain uint8) (Header, *Error) {
	if len(b) < headerSize {
		return Header{}, NewError(KindInvalidMessageSize, "buffer of %d bytes shorter than header (%d)", len(b), headerSize)
	}
	var h Header
	unmarshalHeader(&h, b)
	if h.Version&MajorVersionMask != MajorVersion {
		return h, NewError(KindInvalidVersion, "unsupported version nibble 0x%x", h.Version&MajorVersionMask)
	}
	if h.DomainNumber != expectedDomain {
		return h, NewError(KindInvalidDomain, "domain %d does not match port domain %d", h.DomainNumber, expectedDomain)
	}
	return h, nil
}

// DecodeBody decodes the full message (header, body and any TLVs) for a
// buffer whose header has already passed DecodeHeader. It dispatches on
// messageType the same way DecodePacket does, but surfaces the tagged Error
// type instead of a bare error so advisory/hard-failure callers can switch
// on Kind. A messageType outside the defined set is reported as
// KindUnhandledMessageType; any other decode failure as
// KindInvalidMessageSize.
func DecodeBody(b []byte) (Packet, *Error) {
	p, err := DecodePacket(b)
	if err != nil {
		if len(b) > 0 {
			if _, known := MessageTypeToString[SdoIDAndMsgType(b[0]).MsgType()]; !known {
				return nil, NewError(KindUnhandledMessageType, "%v", err)
			}
		}
		return nil, NewError(KindInvalidMessageSize, "%v", err)
	}
	return p, nil
}

// Encode marshals p into buf, returning the number of bytes written. It
// reports KindInvalidMessageSize if buf is too small for the marshaled
// packet, mirroring the "BufferTooSmall" outcome of the encode contract.
func Encode(p Packet, buf []byte) (int, *Error) {
	if m, ok := p.(BinaryMarshalerTo); ok {
		n, err := m.MarshalBinaryTo(buf)
		if err != nil {
			return 0, NewError(KindInvalidMessageSize, "%v", err)
		}
		return n, nil
	}
	b, err := Bytes(p)
	if err != nil {
		return 0, NewError(KindInvalidMessageSize, "%v", err)
	}
	if len(buf) < len(b) {
		return 0, NewError(KindInvalidMessageSize, "buffer of %d bytes too small for %d-byte message", len(buf), len(b))
	}
	return copy(buf, b), nil
}
