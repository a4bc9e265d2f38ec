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

package daemon

import "encoding/binary"

// ipProtoIPIP is the outer IP header's protocol field for an
// encapsulated IP-in-IP datagram (RFC 2003).
const ipProtoIPIP = 4

// tunnelTTL is the outer envelope's TTL: the inner DVMRP packet's own
// TTL is unrelated (it is scoped by the virtual interface's threshold,
// not by the physical path to the tunnel peer).
const tunnelTTL = 64

// wrapIPinIP builds the minimal IP-in-IP envelope spec.md §1 scopes
// this daemon's tunnel support to: a bare 20-byte outer IPv4 header (no
// options — the inner packet already carries its own Router Alert
// option) whose payload is inner verbatim. ICMP error feedback on the
// encapsulated path (the "advisory collaborator" spec.md §1 excludes)
// is not handled here; a tunnel peer that becomes unreachable is only
// ever noticed through ordinary neighbor expiry.
func wrapIPinIP(inner []byte, localAddr, remoteAddr uint32) []byte {
	out := make([]byte, 20+len(inner))
	out[0] = 0x45 // version 4, IHL 5 (no options)
	out[1] = 0x00
	binary.BigEndian.PutUint16(out[2:4], uint16(len(out)))
	// out[4:8] identification/flags/fragment-offset left zero: this
	// daemon never sends a DVMRP/IGMP message large enough to fragment.
	out[8] = tunnelTTL
	out[9] = ipProtoIPIP
	binary.BigEndian.PutUint32(out[12:16], localAddr)
	binary.BigEndian.PutUint32(out[16:20], remoteAddr)
	copy(out[20:], inner)
	return out
}

// unwrapIPinIP strips a received IP-in-IP envelope, returning the
// encapsulated datagram. The daemon's receive loop does not call it:
// readLoop maps each packet to a vif by interface index and hands it
// to dispatch.Dispatcher.Dispatch as read, without unwrapping.
func unwrapIPinIP(pkt []byte) ([]byte, bool) {
	if len(pkt) < 20 {
		return nil, false
	}
	ihl := int(pkt[0]&0x0f) * 4
	if ihl < 20 || ihl > len(pkt) || pkt[9] != ipProtoIPIP {
		return nil, false
	}
	return pkt[ihl:], true
}
