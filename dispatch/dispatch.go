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

// Package dispatch implements spec.md §4.6's packet I/O dispatcher: it
// reads one raw IP datagram off the kernel socket, validates it, and
// classifies it by IGMP type and DVMRP sub-code, invoking at most one
// of the Deps callbacks per packet (none for a dropped packet). No handler here ever does protocol
// work itself; this package only routes.
package dispatch

import (
	"encoding/binary"

	"github.com/openmcast/dvmrpd/internal/logging"
	"github.com/openmcast/dvmrpd/wire"
)

// Deps are the subsystem entry points a decoded packet is routed to.
// The daemon wires these to the neighbor/routing/forwarding/igmp
// packages; Dispatcher itself depends on none of them, matching
// spec.md §4.6's framing as a pure classifier.
type Deps struct {
	OnUpcall func(source, group uint32)

	OnQuery      func(vifIndex int, srcAddr uint32, q wire.Query)
	OnV1V2Report func(vifIndex int, group, srcAddr uint32, isV1 bool)
	OnV3Report   func(vifIndex int, recs []wire.Grec, srcAddr uint32)
	OnLeave      func(vifIndex int, group, srcAddr uint32)

	// level is the IGMP header's Group field reinterpreted per spec.md
	// §6.1: for a DVMRP message it never carries a multicast group, only
	// the sender's protocol/minor version and capability flags
	// (neighbor.IsModernVersion, wire.ParseLevel).
	OnDVMRP func(vifIndex int, code uint8, srcAddr uint32, level uint32, body []byte)

	OnMtraceQuery func(vifIndex int, srcAddr uint32, body []byte)

	Logger *logging.Logger
}

// Dispatcher classifies raw IP datagrams delivered by the kernel
// socket.
type Dispatcher struct {
	deps Deps
}

// New constructs a Dispatcher.
func New(d Deps) *Dispatcher {
	return &Dispatcher{deps: d}
}

func (d *Dispatcher) warnf(format string, args ...interface{}) {
	if d.deps.Logger != nil {
		d.deps.Logger.Warningf(format, args...)
	}
}

// Dispatch classifies one raw IP datagram received on vifIndex.
// pkt is the full IP datagram as delivered on the raw socket,
// including the 20-byte (or larger, with IP options) header.
func (d *Dispatcher) Dispatch(vifIndex int, pkt []byte) {
	if len(pkt) < 20 {
		d.warnf("dispatch: short IP packet on vif %d: %d bytes", vifIndex, len(pkt))
		return
	}
	ihl := int(pkt[0]&0x0f) * 4
	if ihl < 20 || ihl > len(pkt) {
		d.warnf("dispatch: invalid IHL on vif %d: %d", vifIndex, ihl)
		return
	}
	protocol := pkt[9]
	srcAddr := binary.BigEndian.Uint32(pkt[12:16])
	dstAddr := binary.BigEndian.Uint32(pkt[16:20])

	if protocol == 0 {
		// Kernel cache-miss upcall: the kernel reuses the IP header's
		// source/destination fields to carry (origin, group) for the
		// packet that triggered it (spec.md §4.6).
		if d.deps.OnUpcall != nil {
			d.deps.OnUpcall(srcAddr, dstAddr)
		}
		return
	}
	if protocol != 2 {
		// Not IGMP: silently not our business (spec.md §7 drop-silent).
		return
	}

	payload := pkt[ihl:]
	if len(payload) < wire.MinLen {
		d.warnf("dispatch: short IGMP payload on vif %d: %d bytes", vifIndex, len(payload))
		return
	}
	hdr, err := wire.DecodeHeader(payload)
	if err != nil {
		d.warnf("dispatch: %v", err)
		return
	}
	body := payload[wire.MinLen:]

	switch hdr.Type {
	case wire.TypeMembershipQuery:
		d.dispatchQuery(vifIndex, srcAddr, hdr, body)
	case wire.TypeV1MembershipReport:
		if d.deps.OnV1V2Report != nil {
			d.deps.OnV1V2Report(vifIndex, hdr.Group, srcAddr, true)
		}
	case wire.TypeV2MembershipReport:
		if d.deps.OnV1V2Report != nil {
			d.deps.OnV1V2Report(vifIndex, hdr.Group, srcAddr, false)
		}
	case wire.TypeV2LeaveGroup:
		if d.deps.OnLeave != nil {
			d.deps.OnLeave(vifIndex, hdr.Group, srcAddr)
		}
	case wire.TypeV3MembershipReport:
		d.dispatchV3Report(vifIndex, srcAddr, body)
	case wire.TypeDVMRP:
		if d.deps.OnDVMRP != nil {
			d.deps.OnDVMRP(vifIndex, hdr.Code, srcAddr, hdr.Group, body)
		}
	case wire.TypeMtraceQuery:
		if d.deps.OnMtraceQuery != nil {
			d.deps.OnMtraceQuery(vifIndex, srcAddr, body)
		}
	case wire.TypeMtraceReply:
		// Ignored by the core: we never solicit a trace we don't also
		// walk ourselves to completion (spec.md §4.6).
	default:
		d.warnf("dispatch: unknown IGMP type %#x on vif %d", hdr.Type, vifIndex)
	}
}

func (d *Dispatcher) dispatchQuery(vifIndex int, srcAddr uint32, hdr wire.Header, body []byte) {
	q, err := wire.DecodeQuery(hdr.Code, hdr.Group, body)
	if err != nil {
		d.warnf("dispatch: %v", err)
		return
	}
	if d.deps.OnQuery != nil {
		d.deps.OnQuery(vifIndex, srcAddr, q)
	}
}

func (d *Dispatcher) dispatchV3Report(vifIndex int, srcAddr uint32, body []byte) {
	if len(body) < 4 {
		d.warnf("dispatch: short v3 report on vif %d", vifIndex)
		return
	}
	numGroups := int(binary.BigEndian.Uint16(body[2:4]))
	recs, err := wire.DecodeV3Report(body[4:], numGroups)
	if err != nil {
		d.warnf("dispatch: %v", err)
		return
	}
	if d.deps.OnV3Report != nil {
		d.deps.OnV3Report(vifIndex, recs, srcAddr)
	}
}
