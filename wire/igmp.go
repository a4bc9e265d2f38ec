// Copyright 2026 The dvmrpd Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package wire implements byte-exact encoding and decoding for every IGMP
// and DVMRP message this daemon sends or receives. Every function here
// operates on a plain []byte: there are no wire structs with implicit
// padding, matching the manual encoding/binary style the rest of this
// codebase's protocol layers use.
package wire

import (
	"encoding/binary"
	"fmt"
)

// IGMP message types this daemon recognizes on the wire.
const (
	TypeMembershipQuery      = 0x11
	TypeV1MembershipReport   = 0x12
	TypeDVMRP                = 0x13
	TypeV2MembershipReport   = 0x16
	TypeV2LeaveGroup         = 0x17
	TypeMtraceQuery          = 0x1e
	TypeMtraceReply          = 0x1f
	TypeV3MembershipReport   = 0x22
)

// DVMRP sub-codes, carried in the IGMP header's Code byte when Type is
// TypeDVMRP.
const (
	DVMRPProbe        = 1
	DVMRPReport       = 2
	DVMRPAskNeighbors = 3
	DVMRPNeighbors    = 4
	DVMRPAskNeighbors2 = 5
	DVMRPNeighbors2   = 6
	DVMRPPrune        = 7
	DVMRPGraft        = 8
	DVMRPGraftAck     = 9
	DVMRPInfoRequest  = 10
	DVMRPInfoReply    = 11
)

// IGMPv3 group record types (RFC 3376 §4.2.12).
const (
	ModeIsInclude        = 1
	ModeIsExclude        = 2
	ChangeToIncludeMode  = 3
	ChangeToExcludeMode  = 4
	AllowNewSources      = 5
	BlockOldSources      = 6
)

// RouterAlert is the 4-byte encoding of the IP Router Alert option
// (RFC 2113). The daemon's send path does not insert it into the
// packets it sends.
var RouterAlert = [4]byte{0x94, 0x04, 0x00, 0x00}

// MinLen is the smallest legal IGMP message: type, code, checksum, group.
const MinLen = 8

// Header is the common 8-byte prefix of every IGMP message: type, code,
// checksum and the group field (zero for messages that don't use it, such
// as DVMRP reports and probes, which repurpose the field as the 32-bit
// "level" — protocol version, major version, capability flags).
type Header struct {
	Type     uint8
	Code     uint8
	Checksum uint16
	Group    uint32
}

// DecodeHeader parses the common 8-byte IGMP header prefix from b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < MinLen {
		return Header{}, fmt.Errorf("wire: short IGMP header: %d bytes", len(b))
	}
	return Header{
		Type:     b[0],
		Code:     b[1],
		Checksum: binary.BigEndian.Uint16(b[2:4]),
		Group:    binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// EncodeHeader writes h's 8 bytes into b, which must be at least MinLen
// long. The checksum field is left as h.Checksum; callers that want an
// on-wire checksum should call Checksum on the fully assembled message and
// patch bytes [2:4] afterward, mirroring the original source's
// build-then-checksum ordering.
func EncodeHeader(b []byte, h Header) {
	b[0] = h.Type
	b[1] = h.Code
	binary.BigEndian.PutUint16(b[2:4], h.Checksum)
	binary.BigEndian.PutUint32(b[4:8], h.Group)
}

// Checksum computes the IP-style ones'-complement checksum of b, as used
// for both ICMP and IGMP message bodies.
func Checksum(b []byte) uint16 {
	var sum uint32
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
