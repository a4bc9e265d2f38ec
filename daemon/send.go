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

import (
	"net"

	"github.com/openmcast/dvmrpd/vif"
	"github.com/openmcast/dvmrpd/wire"
)

// allDVMRPRouters is 224.0.0.4, the group every DVMRP control message
// is multicast to on a physical subnet (spec.md §6.1).
const allDVMRPRouters = 0xe0000004

func ipOf(addr uint32) net.IP {
	return net.IPv4(byte(addr>>24), byte(addr>>16), byte(addr>>8), byte(addr))
}

// buildIGMP assembles a complete IGMP message: the 8-byte common
// header with typ/code/group, followed by body, with the checksum
// patched in over the whole buffer (spec.md §6.1's build-then-checksum
// convention, also used by igmp.encodeQuery).
func buildIGMP(typ, code uint8, group uint32, body []byte) []byte {
	b := make([]byte, wire.MinLen, wire.MinLen+len(body))
	wire.EncodeHeader(b, wire.Header{Type: typ, Code: code, Group: group})
	b = append(b, body...)
	sum := wire.Checksum(b)
	b[2] = byte(sum >> 8)
	b[3] = byte(sum)
	return b
}

// dvmrpDestAddr returns the address a DVMRP control message bound for
// vifIndex should carry as its IP destination when no more specific
// unicast destination applies: the vif's configured DVMRP destination
// (normally 224.0.0.4 on a subnet, the tunnel's remote endpoint for a
// tunnel).
func (d *Daemon) dvmrpDestAddr(v *vif.Vif) uint32 {
	if v.DstAddr != 0 {
		return v.DstAddr
	}
	if v.Kind == vif.Tunnel {
		return v.RemoteAddr
	}
	return allDVMRPRouters
}

// sendDVMRP writes one DVMRP control message (already-built body) out
// vifIndex toward dst. Tunnels get their payload IP-in-IP encapsulated
// (spec.md §1 "a simple send-side wrapper"); physical vifs are sent as
// a bare IGMP message. No IP Router Alert option is added on either
// path, and no per-packet TTL is set: the transport socket's default
// TTL applies.
func (d *Daemon) sendDVMRP(vifIndex int, dst uint32, code uint8, body []byte) {
	v := d.vifByIndex(vifIndex)
	if v == nil || !v.IsUp() || d.transport == nil {
		return
	}
	msg := buildIGMP(wire.TypeDVMRP, code, 0, body)
	if v.Kind == vif.Tunnel {
		msg = wrapIPinIP(msg, v.LocalAddr, v.RemoteAddr)
	}
	if err := d.transport.WriteTo(msg, v.Name, ipOf(dst)); err != nil {
		d.warnf("daemon: send vif %d (%s): %v", vifIndex, v.Name, err)
	}
}

func (d *Daemon) sendProbe(vifIndex int, neighbors []uint32) {
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return
	}
	body := wire.EncodeProbe(nil, wire.Probe{GenID: d.genID, Neighbors: neighbors})
	d.sendDVMRP(vifIndex, d.dvmrpDestAddr(v), wire.DVMRPProbe, body)
}

func (d *Daemon) sendPrune(vifIndex int, dst, origin, group uint32, lifetime uint32) {
	body := wire.EncodePrune(nil, wire.PruneMsg{Origin: origin, Group: group, Lifetime: lifetime})
	d.sendDVMRP(vifIndex, dst, wire.DVMRPPrune, body)
}

func (d *Daemon) sendGraft(vifIndex int, dst, origin, group uint32) {
	body := wire.EncodeGraft(nil, wire.GraftMsg{Origin: origin, Group: group})
	d.sendDVMRP(vifIndex, dst, wire.DVMRPGraft, body)
}

func (d *Daemon) sendGraftAck(vifIndex int, dst, origin, group uint32) {
	body := wire.EncodeGraft(nil, wire.GraftMsg{Origin: origin, Group: group})
	d.sendDVMRP(vifIndex, dst, wire.DVMRPGraftAck, body)
}

// sendReportChunk sends one paced chunk of the route table (spec.md
// §4.2's fast timer) to vifIndex's destination.
func (d *Daemon) sendReportChunk(vifIndex int, routes []wire.ReportRoute) {
	if len(routes) == 0 {
		return
	}
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return
	}
	body := wire.EncodeReport(nil, routes)
	d.sendDVMRP(vifIndex, d.dvmrpDestAddr(v), wire.DVMRPReport, body)
}

// sendFullTable immediately emits vifIndex's whole report table as one
// message (or a handful, if it would not fit in a single chunk),
// toward dst rather than the vif's normal destination — used both for
// the first-active-neighbor multicast advertisement and for the
// unicast full table sent to a newly Active neighbor or on genid
// change (spec.md §4.5 "Activation side-effects" / "Genid
// transitions").
func (d *Daemon) sendFullTable(vifIndex int, dst uint32) {
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return
	}
	routes := d.routes.ReportRoutes(vifIndex, v.Filter)
	const maxReportBytes = 20000
	for len(routes) > 0 {
		n := len(routes)
		// A single EncodeReport call handles arbitrarily many
		// sections; chunking here only bounds one write to
		// maxReportBytes, an order of magnitude above the fast-timer
		// pacer's reportChunkBytes.
		body := wire.EncodeReport(nil, routes[:n])
		for len(body) > maxReportBytes && n > 1 {
			n = n / 2
			body = wire.EncodeReport(nil, routes[:n])
		}
		d.sendDVMRP(vifIndex, dst, wire.DVMRPReport, body)
		routes = routes[n:]
	}
}
