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

package routing

import "github.com/openmcast/dvmrpd/wire"

// Chunker paces full-table advertisement over a report interval: the
// fast timer calls Next once a second, and a lap (the whole table, in
// reverse order per spec.md §5's ordering guarantee: "last origin
// first, so a chunk contains contiguous tail entries") completes over
// ReportInterval seconds.
type Chunker struct {
	snapshot []wire.ReportRoute
	pos      int
}

// NewChunker snapshots vifIndex's current report (already
// poison-reverse-rewritten and filtered) in reverse table order.
func (t *Table) NewChunker(vifIndex int, filterFn func(uint32, uint32) bool) *Chunker {
	routes := t.ReportRoutes(vifIndex, nil)
	if filterFn != nil {
		filtered := routes[:0:0]
		for _, r := range routes {
			if filterFn(r.Origin, r.Mask) {
				filtered = append(filtered, r)
			}
		}
		routes = filtered
	}
	rev := make([]wire.ReportRoute, len(routes))
	for i, r := range routes {
		rev[len(routes)-1-i] = r
	}
	return &Chunker{snapshot: rev}
}

// approxWireLen estimates the encoded byte cost of appending r to a
// section that last carried mask lastMask (0 meaning "no open
// section"). This is conservative (it never undercounts enough to
// overflow the caller's budget materially) rather than an exact
// replica of EncodeReport's section-coalescing arithmetic.
func approxWireLen(r wire.ReportRoute, lastMask uint32) int {
	n := 1 // metric byte
	if r.Mask != lastMask {
		n += 3 // new mask-prefix header
	}
	switch {
	case byte(r.Mask) != 0:
		n += 4
	case byte(r.Mask>>8) != 0:
		n += 3
	case byte(r.Mask>>16) != 0:
		n += 2
	default:
		n++
	}
	return n
}

// Next returns the next chunk of at most maxBytes encoded bytes (always
// at least one route, so a single oversized route cannot stall the
// pacer) and reports whether this chunk completed a lap over the whole
// table, meaning the next call restarts from the beginning.
func (c *Chunker) Next(maxBytes int) (chunk []wire.ReportRoute, lapDone bool) {
	if len(c.snapshot) == 0 {
		return nil, true
	}
	if c.pos >= len(c.snapshot) {
		c.pos = 0
	}
	start := c.pos
	size := 0
	var lastMask uint32
	for c.pos < len(c.snapshot) {
		r := c.snapshot[c.pos]
		add := approxWireLen(r, lastMask)
		if size+add > maxBytes && c.pos > start {
			break
		}
		size += add
		lastMask = r.Mask
		c.pos++
	}
	chunk = c.snapshot[start:c.pos]
	lapDone = c.pos >= len(c.snapshot)
	if lapDone {
		c.pos = 0
	}
	return chunk, lapDone
}
