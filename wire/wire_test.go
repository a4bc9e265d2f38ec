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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Type: TypeDVMRP, Code: DVMRPProbe, Checksum: 0xbeef, Group: 0x0a0b0c0d}
	buf := make([]byte, MinLen)
	EncodeHeader(buf, h)

	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if diff := cmp.Diff(h, got); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeHeaderShort(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error on short header")
	}
}

func TestChecksumZeroForSelfConsistent(t *testing.T) {
	body := []byte{TypeDVMRP, DVMRPProbe, 0, 0, 1, 2, 3, 4}
	sum := Checksum(body)
	body[2] = byte(sum >> 8)
	body[3] = byte(sum)
	if Checksum(body) != 0 {
		t.Errorf("checksum of self-checksummed buffer = %#x, want 0", Checksum(body))
	}
}

func TestProbeRoundTrip(t *testing.T) {
	p := Probe{GenID: 0x12345678, Neighbors: []uint32{0x01020304, 0x05060708}}
	enc := EncodeProbe(nil, p)
	got, err := DecodeProbe(enc)
	if err != nil {
		t.Fatalf("DecodeProbe: %v", err)
	}
	if diff := cmp.Diff(p, got); diff != "" {
		t.Errorf("probe mismatch (-want +got):\n%s", diff)
	}
}

func TestProbeNoNeighbors(t *testing.T) {
	p := Probe{GenID: 7}
	got, err := DecodeProbe(EncodeProbe(nil, p))
	if err != nil {
		t.Fatalf("DecodeProbe: %v", err)
	}
	if got.GenID != 7 || len(got.Neighbors) != 0 {
		t.Errorf("got = %+v, want GenID=7 no neighbors", got)
	}
}

func TestDecodeProbeTruncated(t *testing.T) {
	if _, err := DecodeProbe([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error on truncated genid")
	}
	if _, err := DecodeProbe([]byte{1, 2, 3, 4, 5, 6}); err == nil {
		t.Fatalf("expected error on truncated neighbor")
	}
}

func TestPruneRoundTrip(t *testing.T) {
	m := PruneMsg{Origin: 0x0a000001, Group: 0xe0000001, Lifetime: 180}
	got, err := DecodePrune(EncodePrune(nil, m))
	if err != nil {
		t.Fatalf("DecodePrune: %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("prune mismatch (-want +got):\n%s", diff)
	}
}

func TestGraftRoundTrip(t *testing.T) {
	m := GraftMsg{Origin: 0x0a000001, Group: 0xe0000001}
	got, err := DecodeGraft(EncodeGraft(nil, m))
	if err != nil {
		t.Fatalf("DecodeGraft: %v", err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("graft mismatch (-want +got):\n%s", diff)
	}
}

func TestReportRoundTripSingleSection(t *testing.T) {
	routes := []ReportRoute{
		{Origin: 0x0a000000, Mask: 0xffffff00, Metric: 1},
		{Origin: 0x0a010000, Mask: 0xffffff00, Metric: 2},
	}
	enc := EncodeReport(nil, routes)
	got, err := DecodeReport(enc)
	if err != nil {
		t.Fatalf("DecodeReport: %v", err)
	}
	if diff := cmp.Diff(routes, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestReportMultipleSections(t *testing.T) {
	routes := []ReportRoute{
		{Origin: 0x0a000000, Mask: 0xff000000, Metric: 1},
		{Origin: 0xac100000, Mask: 0xffff0000, Metric: 3},
		{Origin: 0xac110000, Mask: 0xffff0000, Metric: 30},
	}
	enc := EncodeReport(nil, routes)

	// 2 sections: {8-bit mask, one pair} + {16-bit mask, two pairs}.
	// section1: 3 mask bytes + (1 origin byte + 1 metric byte) = 5
	// section2: 3 mask bytes + 2*(2 origin bytes + 1 metric byte) = 9
	if len(enc) != 5+9 {
		t.Fatalf("encoded length = %d, want 14", len(enc))
	}

	got, err := DecodeReport(enc)
	if err != nil {
		t.Fatalf("DecodeReport: %v", err)
	}
	if diff := cmp.Diff(routes, got); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestReportPoisonedMetricRoundTrips(t *testing.T) {
	// A poison-reversed route carries metric+UnreachableMetric on the
	// wire; the decoder must preserve that raw value rather than
	// collapsing it, since interpreting it is the routing layer's job.
	routes := []ReportRoute{
		{Origin: 0x0a000000, Mask: 0xffffff00, Metric: 5 + UnreachableMetric},
	}
	got, err := DecodeReport(EncodeReport(nil, routes))
	if err != nil {
		t.Fatalf("DecodeReport: %v", err)
	}
	if diff := cmp.Diff(routes, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeReportTruncated(t *testing.T) {
	if _, err := DecodeReport([]byte{0, 0}); err == nil {
		t.Fatalf("expected error on truncated section header")
	}
	if _, err := DecodeReport([]byte{0, 0, 0, 10}); err == nil {
		t.Fatalf("expected error on missing terminator pair")
	}
}

func TestFloatingPointRoundTripSmallValues(t *testing.T) {
	for v := 0; v < 128; v++ {
		code := FloatingPointEncode(v)
		if int(code) != v {
			t.Fatalf("FloatingPointEncode(%d) = %d, want unchanged", v, code)
		}
		if got := FloatingPointDecode(code); got != v {
			t.Fatalf("FloatingPointDecode(%d) = %d, want %d", code, got, v)
		}
	}
}

func TestFloatingPointKnownCode(t *testing.T) {
	// Ported from the original source's igmp_floating_point bit trace
	// for mantissa=200: exponent settles at 0x80, mantissa nibble 0x9.
	if got := FloatingPointEncode(200); got != 0x89 {
		t.Fatalf("FloatingPointEncode(200) = %#x, want 0x89", got)
	}
	if got := FloatingPointDecode(0x89); got != 200 {
		t.Fatalf("FloatingPointDecode(0x89) = %d, want 200", got)
	}
}

func TestFloatingPointLossyRoundTrip(t *testing.T) {
	// Large values lose precision; decoding the encoded form should at
	// least land within the representable granularity at that exponent.
	v := 20000
	code := FloatingPointEncode(v)
	got := FloatingPointDecode(code)
	// 20000 encodes at exponent 7, where one mantissa step is
	// 1<<(7+3) = 1024.
	if got < v-1024 || got > v {
		t.Fatalf("FloatingPointDecode(FloatingPointEncode(%d)) = %d, too far off", v, got)
	}
}

func TestQueryV1V2RoundTrip(t *testing.T) {
	q := Query{MaxRespCode: 0, Group: 0}
	got, err := DecodeQuery(q.MaxRespCode, q.Group, EncodeQuery(nil, q))
	if err != nil {
		t.Fatalf("DecodeQuery: %v", err)
	}
	if diff := cmp.Diff(q, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryV3RoundTrip(t *testing.T) {
	q := Query{
		MaxRespCode: 100,
		Group:       0xe0000001,
		V3:          true,
		SFlag:       true,
		QRV:         2,
		QQIC:        125,
		Sources:     []uint32{0x0a000001, 0x0a000002},
	}
	tail := EncodeQuery(nil, q)
	got, err := DecodeQuery(q.MaxRespCode, q.Group, tail)
	if err != nil {
		t.Fatalf("DecodeQuery: %v", err)
	}
	if diff := cmp.Diff(q, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeQueryTruncatedSourceList(t *testing.T) {
	tail := []byte{0x02, 125, 0x00, 0x02, 1, 2, 3, 4} // claims 2 sources, has 1
	if _, err := DecodeQuery(100, 0xe0000001, tail); err == nil {
		t.Fatalf("expected error on truncated source list")
	}
}

func TestV3ReportRoundTrip(t *testing.T) {
	recs := []Grec{
		{Type: ModeIsExclude, Group: 0xe0000001},
		{Type: ChangeToIncludeMode, Group: 0xe0000002, Sources: []uint32{0x0a000001}},
	}
	enc := EncodeV3Report(nil, recs)
	got, err := DecodeV3Report(enc, len(recs))
	if err != nil {
		t.Fatalf("DecodeV3Report: %v", err)
	}
	if diff := cmp.Diff(recs, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeV3ReportBoundsChecked(t *testing.T) {
	// A group record claiming more sources than remain in the buffer
	// must be rejected rather than read out of bounds.
	b := []byte{ModeIsExclude, 0, 0x00, 0x05, 0xe0, 0, 0, 1}
	if _, err := DecodeV3Report(b, 1); err == nil {
		t.Fatalf("expected error on oversized source count")
	}
}

func TestMtraceQueryRoundTrip(t *testing.T) {
	q := MtraceQuery{Source: 1, Dest: 2, RespAddr: 3, QueryID: 0x00abcdef, RespTTL: 64}
	got, err := DecodeMtraceQuery(EncodeMtraceQuery(nil, q))
	if err != nil {
		t.Fatalf("DecodeMtraceQuery: %v", err)
	}
	if diff := cmp.Diff(q, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestMtraceResponseRoundTrip(t *testing.T) {
	h := MtraceHop{
		QArrival: 1, InAddr: 2, OutAddr: 3, RmtAddr: 4,
		VifIn: 5, VifOut: 6, PktCnt: 7,
		Rproto: ProtoDVMRP, Fttl: 64, Smask: 24, Rflags: TRNoError,
	}
	enc := EncodeMtraceResponse(nil, h)
	got, err := DecodeMtraceResponse(enc)
	if err != nil {
		t.Fatalf("DecodeMtraceResponse: %v", err)
	}
	if diff := cmp.Diff([]MtraceHop{h}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMtraceResponseBadLength(t *testing.T) {
	if _, err := DecodeMtraceResponse(make([]byte, 31)); err == nil {
		t.Fatalf("expected error on non-multiple-of-32 length")
	}
}
