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

package neighbor

import "encoding/binary"

// VifReport is the subset of vif state AnswerAskNeighbors2 needs to
// describe one vif in a NEIGHBORS2 reply: the caller (daemon) assembles
// these from its own vif table rather than this package importing vif;
// the daemon owns that wiring.
type VifReport struct {
	LocalAddr uint32
	Metric    uint8
	Threshold uint8
	Flags     uint8 // vif flags encoded the way NEIGHBORS2 expects (leaf, down, ...)
	Neighbors []uint32
}

// AnswerAskNeighbors2 encodes a NEIGHBORS2 reply body (DVMRP code 6)
// describing this router's vifs and their neighbors, restoring the
// ASK_NEIGHBORS2 passive-responder feature the distillation dropped
// (SPEC_FULL.md's mapper supplement): a router must still answer a
// remote mrinfo/map-mbone probe even though this daemon never originates
// one. The wire shape mirrors the original mapper.c layout: per vif,
// local-addr(4) | metric(1) | threshold(1) | flags(1) | nbr-count(1),
// then nbr-count neighbor addresses (4 bytes each).
func AnswerAskNeighbors2(vifs []VifReport) []byte {
	var out []byte
	for _, v := range vifs {
		var hdr [8]byte
		binary.BigEndian.PutUint32(hdr[0:4], v.LocalAddr)
		hdr[4] = v.Metric
		hdr[5] = v.Threshold
		hdr[6] = v.Flags
		hdr[7] = uint8(len(v.Neighbors))
		out = append(out, hdr[:]...)
		for _, n := range v.Neighbors {
			var b [4]byte
			binary.BigEndian.PutUint32(b[:], n)
			out = append(out, b[:]...)
		}
	}
	return out
}
