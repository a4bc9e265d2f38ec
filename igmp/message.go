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

package igmp

import "github.com/openmcast/dvmrpd/wire"

// encodeQuery assembles a full membership query message: 8-byte common
// header followed by q's v1/v2/v3 tail, with the checksum patched in
// after the whole buffer is laid out (mirroring EncodeHeader's
// build-then-checksum contract).
func encodeQuery(q wire.Query) []byte {
	b := make([]byte, wire.MinLen)
	wire.EncodeHeader(b, wire.Header{Type: wire.TypeMembershipQuery, Code: q.MaxRespCode, Group: q.Group})
	b = wire.EncodeQuery(b, q)
	sum := wire.Checksum(b)
	b[2] = byte(sum >> 8)
	b[3] = byte(sum)
	return b
}

// BuildGeneralQuery encodes a general membership query in the shape v's
// mode calls for: a bare 8-byte v1/v2 header when forced down to legacy
// compatibility, or the full v3 tail (robustness/QQIC/source-count)
// otherwise.
func (v *VifState) BuildGeneralQuery() []byte {
	q := wire.Query{MaxRespCode: wire.FloatingPointEncode(v.QueryResponseInterval * 10)}
	if v.Mode == ModeV3 {
		q.V3 = true
		q.QRV = v.Robustness
		q.QQIC = wire.FloatingPointEncode(v.QueryInterval)
	}
	return encodeQuery(q)
}

// BuildGroupSpecificQuery encodes a last-member (group-specific) query
// for group, using the last-member query interval in place of the
// ordinary query response interval (RFC 3376 §6.6.3.1).
func (v *VifState) BuildGroupSpecificQuery(group uint32) []byte {
	q := wire.Query{
		MaxRespCode: wire.FloatingPointEncode(LastMemberQueryInterval * 10),
		Group:       group,
	}
	if v.Mode == ModeV3 {
		q.V3 = true
		q.QRV = v.Robustness
		q.QQIC = wire.FloatingPointEncode(v.QueryInterval)
	}
	return encodeQuery(q)
}
