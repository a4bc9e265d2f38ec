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

// Forwarding-error codes carried in a mtrace response record's Rflags
// field.
const (
	TRNoError   = 0
	TRWrongIf   = 1
	TRPruned    = 2
	TROPruned   = 3
	TRScoped    = 4
	TRNoRoute   = 5
	TRNoFwd     = 7
	TRNoSpace   = 0x81
	TROldRouter = 0x82
)

// Routing protocol codes carried in a mtrace response record's Rproto
// field.
const (
	ProtoDVMRP = 1
	ProtoMOSPF = 2
	ProtoPIM   = 3
	ProtoCBT   = 4
)

// MtraceQuery is the fixed 16-byte body of a type-0x1e mtrace query that
// follows the common 8-byte IGMP header (whose Code byte doubles as the
// query's initial hop-limit TTL).
type MtraceQuery struct {
	Source   uint32
	Dest     uint32
	RespAddr uint32
	QueryID  uint32 // low 24 bits significant
	RespTTL  uint8
}

// DecodeMtraceQuery parses the 16 bytes following the common header:
// src | dst | resp-addr | ttl(8 bits):qid(24 bits), the ttl occupying
// the high-order byte of the last word (the struct tr_query big-endian
// bitfield layout).
func DecodeMtraceQuery(b []byte) (MtraceQuery, error) {
	if len(b) < 16 {
		return MtraceQuery{}, fmt.Errorf("wire: short mtrace query: %d bytes", len(b))
	}
	ttlQid := binary.BigEndian.Uint32(b[12:16])
	return MtraceQuery{
		Source:   binary.BigEndian.Uint32(b[0:4]),
		Dest:     binary.BigEndian.Uint32(b[4:8]),
		RespAddr: binary.BigEndian.Uint32(b[8:12]),
		RespTTL:  uint8(ttlQid >> 24),
		QueryID:  ttlQid & 0x00ffffff,
	}, nil
}

// EncodeMtraceQuery appends the wire form of q (everything after the
// common header) to dst.
func EncodeMtraceQuery(dst []byte, q MtraceQuery) []byte {
	var buf [16]byte
	binary.BigEndian.PutUint32(buf[0:4], q.Source)
	binary.BigEndian.PutUint32(buf[4:8], q.Dest)
	binary.BigEndian.PutUint32(buf[8:12], q.RespAddr)
	binary.BigEndian.PutUint32(buf[12:16], uint32(q.RespTTL)<<24|(q.QueryID&0x00ffffff))
	return append(dst, buf[:]...)
}

// MtraceHop is one 32-byte response record (struct tr_resp) appended by
// each hop along the path back toward Source in a type-0x1f mtrace
// response.
type MtraceHop struct {
	QArrival uint32
	InAddr   uint32
	OutAddr  uint32
	RmtAddr  uint32 // parent address in the source tree
	VifIn    uint32 // input packet count on the incoming interface
	VifOut   uint32 // output packet count on the outgoing interface
	PktCnt   uint32 // total incoming packets for this (source, group)
	Rproto   uint8
	Fttl     uint8 // ttl required to forward on the outgoing vif
	Smask    uint8 // subnet mask width for the source address
	Rflags   uint8
}

const mtraceHopLen = 32

// DecodeMtraceResponse parses zero or more 32-byte hop records from b.
func DecodeMtraceResponse(b []byte) ([]MtraceHop, error) {
	if len(b)%mtraceHopLen != 0 {
		return nil, fmt.Errorf("wire: mtrace response length %d not a multiple of %d", len(b), mtraceHopLen)
	}
	var hops []MtraceHop
	for len(b) > 0 {
		hops = append(hops, MtraceHop{
			QArrival: binary.BigEndian.Uint32(b[0:4]),
			InAddr:   binary.BigEndian.Uint32(b[4:8]),
			OutAddr:  binary.BigEndian.Uint32(b[8:12]),
			RmtAddr:  binary.BigEndian.Uint32(b[12:16]),
			VifIn:    binary.BigEndian.Uint32(b[16:20]),
			VifOut:   binary.BigEndian.Uint32(b[20:24]),
			PktCnt:   binary.BigEndian.Uint32(b[24:28]),
			Rproto:   b[28],
			Fttl:     b[29],
			Smask:    b[30],
			Rflags:   b[31],
		})
		b = b[mtraceHopLen:]
	}
	return hops, nil
}

// EncodeMtraceResponse appends the wire form of one hop record to dst.
func EncodeMtraceResponse(dst []byte, h MtraceHop) []byte {
	var buf [mtraceHopLen]byte
	binary.BigEndian.PutUint32(buf[0:4], h.QArrival)
	binary.BigEndian.PutUint32(buf[4:8], h.InAddr)
	binary.BigEndian.PutUint32(buf[8:12], h.OutAddr)
	binary.BigEndian.PutUint32(buf[12:16], h.RmtAddr)
	binary.BigEndian.PutUint32(buf[16:20], h.VifIn)
	binary.BigEndian.PutUint32(buf[20:24], h.VifOut)
	binary.BigEndian.PutUint32(buf[24:28], h.PktCnt)
	buf[28] = h.Rproto
	buf[29] = h.Fttl
	buf[30] = h.Smask
	buf[31] = h.Rflags
	return append(dst, buf[:]...)
}
