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

package wire

import (
	"encoding/binary"
	"fmt"
)

// ParseLevel splits a DVMRP message's repurposed Group/"level" field into
// the sender's protocol version and minor version, the low two octets in
// that order (see mrinfo's accept_neighbors: majvers = level & 0xff,
// minvers = (level >> 8) & 0xff).
func ParseLevel(level uint32) (protocolVersion, minorVersion uint8) {
	return uint8(level), uint8(level >> 8)
}

// Probe is a decoded DVMRP probe message (code=1): our generation id plus
// the list of neighbors we currently have heard from on this vif. A
// DVMRPv3-speaking peer watches for its own address in this list to
// detect a bidirectional peering (see the neighbor package's Waiting
// state).
type Probe struct {
	GenID     uint32
	Neighbors []uint32
}

// DecodeProbe parses a probe body (everything after the 8-byte IGMP
// header). A truncated trailing neighbor address is an error; probes
// with zero neighbors are legal (a just-started router with no peers
// yet).
func DecodeProbe(b []byte) (Probe, error) {
	if len(b) < 4 {
		return Probe{}, fmt.Errorf("wire: truncated probe: %d bytes", len(b))
	}
	p := Probe{GenID: binary.BigEndian.Uint32(b[0:4])}
	b = b[4:]
	for len(b) > 0 {
		if len(b) < 4 {
			return Probe{}, fmt.Errorf("wire: truncated probe neighbor list: %d trailing bytes", len(b))
		}
		p.Neighbors = append(p.Neighbors, binary.BigEndian.Uint32(b[0:4]))
		b = b[4:]
	}
	return p, nil
}

// EncodeProbe appends the wire form of p to dst and returns the result.
func EncodeProbe(dst []byte, p Probe) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], p.GenID)
	dst = append(dst, buf[:]...)
	for _, n := range p.Neighbors {
		binary.BigEndian.PutUint32(buf[:], n)
		dst = append(dst, buf[:]...)
	}
	return dst
}

// PruneMsg is the decoded body of a DVMRP prune (code=7): the forwarding
// entry the sender wants upstream to stop sending, and how long the
// prune should remain in effect absent a graft.
type PruneMsg struct {
	Origin   uint32
	Group    uint32
	Lifetime uint32
}

// DecodePrune parses a prune body: origin | group | lifetime, each 4
// bytes network order.
func DecodePrune(b []byte) (PruneMsg, error) {
	if len(b) < 12 {
		return PruneMsg{}, fmt.Errorf("wire: short prune: %d bytes", len(b))
	}
	return PruneMsg{
		Origin:   binary.BigEndian.Uint32(b[0:4]),
		Group:    binary.BigEndian.Uint32(b[4:8]),
		Lifetime: binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

// EncodePrune appends the wire form of m to dst.
func EncodePrune(dst []byte, m PruneMsg) []byte {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], m.Origin)
	binary.BigEndian.PutUint32(buf[4:8], m.Group)
	binary.BigEndian.PutUint32(buf[8:12], m.Lifetime)
	return append(dst, buf[:]...)
}

// GraftMsg is the decoded body of a graft (code=8) or graft-ack
// (code=9): both share the same origin|group layout.
type GraftMsg struct {
	Origin uint32
	Group  uint32
}

// DecodeGraft parses a graft or graft-ack body: origin | group, 4 bytes
// each, network order.
func DecodeGraft(b []byte) (GraftMsg, error) {
	if len(b) < 8 {
		return GraftMsg{}, fmt.Errorf("wire: short graft: %d bytes", len(b))
	}
	return GraftMsg{
		Origin: binary.BigEndian.Uint32(b[0:4]),
		Group:  binary.BigEndian.Uint32(b[4:8]),
	}, nil
}

// EncodeGraft appends the wire form of m to dst.
func EncodeGraft(dst []byte, m GraftMsg) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], m.Origin)
	binary.BigEndian.PutUint32(buf[4:8], m.Group)
	return append(dst, buf[:]...)
}

// ReportRoute is one (origin, mask, metric) tuple from a decoded DVMRP
// report section. Metric carries the raw 7-bit wire value: ordinarily 0..UnreachableMetric,
// but a sender performing poison reverse adds UnreachableMetric again (see
// EncodeReport), so a decoded Metric up to 2*UnreachableMetric-1 is legal
// and must be treated as unreachable by the receiver regardless of which
// of the two ranges it falls in — the wire format does not distinguish
// "genuinely unreachable" from "poisoned" beyond that.
type ReportRoute struct {
	Origin uint32
	Mask   uint32
	Metric uint8
}

// UnreachableMetric is the metric value that denotes unreachability
// (infinity in this distance-vector protocol).
const UnreachableMetric = 32

// DecodeReport parses a DVMRP report body into its flattened list of
// (origin, mask, metric) tuples. Each section starts with 3 mask bytes
// (the mask's high byte is implied 0xff) followed by one or more
// (N-byte origin, 1-byte metric) pairs, N depending on how many mask
// bytes are non-zero; the metric's high bit marks the last pair of a
// section. A report with no sections (datalen==0, e.g. "nothing
// reachable yet") decodes to an empty, non-nil-error result.
func DecodeReport(b []byte) ([]ReportRoute, error) {
	var routes []ReportRoute
	for len(b) > 0 {
		if len(b) < 3 {
			return nil, fmt.Errorf("wire: truncated report section header: %d bytes", len(b))
		}
		var maskBytes [4]byte
		maskBytes[0] = 0xff
		width := 1
		if maskBytes[1] = b[0]; maskBytes[1] != 0 {
			width = 2
		}
		if maskBytes[2] = b[1]; maskBytes[2] != 0 {
			width = 3
		}
		if maskBytes[3] = b[2]; maskBytes[3] != 0 {
			width = 4
		}
		mask := binary.BigEndian.Uint32(maskBytes[:])
		b = b[3:]

		for {
			if len(b) < width+1 {
				return nil, fmt.Errorf("wire: truncated report (origin,metric) pair: %d bytes, want %d", len(b), width+1)
			}
			var originBytes [4]byte
			copy(originBytes[:width], b[:width])
			origin := binary.BigEndian.Uint32(originBytes[:])
			metric := b[width]
			b = b[width+1:]

			routes = append(routes, ReportRoute{
				Origin: origin,
				Mask:   mask,
				Metric: metric & 0x7f,
			})

			last := metric&0x80 != 0
			if last {
				break
			}
			if len(b) == 0 {
				return nil, fmt.Errorf("wire: report section missing terminator pair")
			}
		}
	}
	return routes, nil
}

// EncodeReport appends the wire form of routes to dst, grouping
// consecutive routes that share a mask into a single section and marking
// the metric's high bit on the final pair of each section as well as
// the final pair of the whole message. Callers are responsible for
// pre-sorting routes by decreasing mask so that sections are maximally
// coalesced (mirroring the routing table's storage order); EncodeReport
// itself does not reorder.
func EncodeReport(dst []byte, routes []ReportRoute) []byte {
	for i, rt := range routes {
		newSection := i == 0 || routes[i-1].Mask != rt.Mask
		if newSection {
			var maskBytes [4]byte
			binary.BigEndian.PutUint32(maskBytes[:], rt.Mask)
			dst = append(dst, maskBytes[1], maskBytes[2], maskBytes[3])
		}

		width := originWidth(rt.Mask)
		var originBytes [4]byte
		binary.BigEndian.PutUint32(originBytes[:], rt.Origin)
		dst = append(dst, originBytes[:width]...)

		metric := rt.Metric & 0x7f
		lastOfSection := i == len(routes)-1 || routes[i+1].Mask != rt.Mask
		if lastOfSection {
			metric |= 0x80
		}
		dst = append(dst, metric)
	}
	return dst
}

// originWidth returns how many origin bytes a route with the given mask
// needs on the wire: the mask's non-zero octets beyond the implied 0xff
// first byte determine it.
func originWidth(mask uint32) int {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], mask)
	width := 1
	if b[1] != 0 {
		width = 2
	}
	if b[2] != 0 {
		width = 3
	}
	if b[3] != 0 {
		width = 4
	}
	return width
}
