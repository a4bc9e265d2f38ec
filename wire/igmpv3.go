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

// Query is a decoded IGMP membership query, general or group-specific,
// in any of the v1/v2/v3 wire shapes a vif might be configured to speak.
// MaxRespCode and QQIC are the raw wire codes, not yet run through the
// RFC 3376 §4.1.1 floating-point decoder; FloatingPointDecode converts
// them to their represented values.
type Query struct {
	MaxRespCode uint8
	Group       uint32
	// V3 fields, zero-valued when the query is v1/v2 shaped (8 bytes).
	V3              bool
	SFlag           bool
	QRV             uint8
	QQIC            uint8
	Sources         []uint32
}

// DecodeQuery parses a membership query body (after the 8-byte common
// header, so b starts right after Group in a v1/v2 query, or carries the
// v3 robustness/QQIC/source-count/source-list tail).
func DecodeQuery(maxRespCode uint8, group uint32, b []byte) (Query, error) {
	q := Query{MaxRespCode: maxRespCode, Group: group}
	if len(b) == 0 {
		// v1/v2 query: nothing beyond the common 8-byte header.
		return q, nil
	}
	if len(b) < 4 {
		return Query{}, fmt.Errorf("wire: truncated v3 query tail: %d bytes", len(b))
	}
	q.V3 = true
	resv := b[0]
	q.SFlag = resv&0x08 != 0
	q.QRV = resv & 0x07
	q.QQIC = b[1]
	nsrc := binary.BigEndian.Uint16(b[2:4])
	b = b[4:]
	if len(b) < int(nsrc)*4 {
		return Query{}, fmt.Errorf("wire: v3 query claims %d sources but only %d bytes remain", nsrc, len(b))
	}
	for i := 0; i < int(nsrc); i++ {
		q.Sources = append(q.Sources, binary.BigEndian.Uint32(b[i*4:i*4+4]))
	}
	return q, nil
}

// EncodeQuery appends the v3-tail bytes of q to dst (the common 8-byte
// header is handled by the caller via EncodeHeader). If q is not V3,
// EncodeQuery returns dst unchanged — a v1/v2 query is exactly the
// common header.
func EncodeQuery(dst []byte, q Query) []byte {
	if !q.V3 {
		return dst
	}
	var resv uint8
	if q.SFlag {
		resv |= 0x08
	}
	resv |= q.QRV & 0x07
	dst = append(dst, resv, q.QQIC)
	var nsrc [2]byte
	binary.BigEndian.PutUint16(nsrc[:], uint16(len(q.Sources)))
	dst = append(dst, nsrc[:]...)
	for _, s := range q.Sources {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], s)
		dst = append(dst, b[:]...)
	}
	return dst
}

// FloatingPointDecode converts an RFC 3376 §4.1.1/§4.1.7 7-bit
// floating-point code (used for Max Resp Code and QQIC when the value
// exceeds 127) into its represented value. Codes below 128 are returned
// unchanged: the floating-point form only applies when the high bit is
// set. Grounded bit-for-bit on the original source's igmp_floating_point,
// which derives the decoded value as
// (mant | 0x10) << (exp + 3), mant the low 4 bits and exp the next 3.
func FloatingPointDecode(code uint8) int {
	if code&0x80 == 0 {
		return int(code)
	}
	mant := code & 0x0f
	exp := (code >> 4) & 0x07
	return (int(mant) | 0x10) << (uint(exp) + 3)
}

// FloatingPointEncode converts a raw value into its RFC 3376 wire code.
// Values that fit in 7 bits are returned unchanged. Larger values are
// normalized into the 3-bit-exponent/4-bit-mantissa floating-point form,
// losing precision the same way the original source's encoder does.
// Ported bit-for-bit from the original source's igmp_floating_point.
func FloatingPointEncode(value int) uint8 {
	mantissa := uint32(value) & 0x00007fff

	if mantissa&0x00007f80 == 0 {
		return uint8(mantissa)
	}

	mantissa >>= 3
	exponent := uint32(0x80)

	if mantissa&0x00000f00 != 0 {
		mantissa >>= 4
		exponent |= 0x40
	}
	if mantissa&0x000000c0 != 0 {
		mantissa >>= 2
		exponent |= 0x20
	}
	if mantissa&0x00000020 != 0 {
		mantissa >>= 1
		exponent |= 0x10
	}

	return uint8(exponent | (mantissa & 0x0f))
}

// Grec is one decoded IGMPv3 group record from a membership report.
type Grec struct {
	Type        uint8
	AuxDataLen  uint8
	Group       uint32
	Sources     []uint32
}

// DecodeV3Report parses an IGMPv3 membership report body (everything after
// the common 8-byte header, which for a v3 report is reserved(2) +
// ngroups(2) rather than a Group field — callers pass that ngroups count
// in separately since it overlaps the Header.Group slot this package's
// Header type doesn't model). Every record is bounds-checked against the
// remaining buffer before being consumed, per the mandatory
// bound-checking spec.md calls for the original's grec walk.
func DecodeV3Report(b []byte, numGroups int) ([]Grec, error) {
	var recs []Grec
	for i := 0; i < numGroups; i++ {
		if len(b) < 8 {
			return nil, fmt.Errorf("wire: truncated group record header: %d bytes", len(b))
		}
		typ := b[0]
		auxLen := b[1]
		nsrc := binary.BigEndian.Uint16(b[2:4])
		group := binary.BigEndian.Uint32(b[4:8])

		recordSize := 8 + int(nsrc)*4 + int(auxLen)*4
		if recordSize > len(b) {
			return nil, fmt.Errorf("wire: group record claims %d bytes but only %d remain", recordSize, len(b))
		}

		rec := Grec{Type: typ, AuxDataLen: auxLen, Group: group}
		srcBytes := b[8 : 8+int(nsrc)*4]
		for j := 0; j < int(nsrc); j++ {
			rec.Sources = append(rec.Sources, binary.BigEndian.Uint32(srcBytes[j*4:j*4+4]))
		}
		recs = append(recs, rec)

		b = b[recordSize:]
	}
	return recs, nil
}

// EncodeV3Report appends the wire form of recs (group records only; the
// caller is responsible for the common header and the ngroups field) to
// dst.
func EncodeV3Report(dst []byte, recs []Grec) []byte {
	for _, rec := range recs {
		var hdr [8]byte
		hdr[0] = rec.Type
		hdr[1] = rec.AuxDataLen
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(rec.Sources)))
		binary.BigEndian.PutUint32(hdr[4:8], rec.Group)
		dst = append(dst, hdr[:]...)
		for _, s := range rec.Sources {
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], s)
			dst = append(dst, b[:]...)
		}
		for i := 0; i < int(rec.AuxDataLen); i++ {
			dst = append(dst, 0, 0, 0, 0)
		}
	}
	return dst
}
