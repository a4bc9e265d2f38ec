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

// Package neighbor implements the peer-discovery and adjacency state
// machine (Absent/Waiting/Active/One-way) described for DVMRP
// neighbors, plus the fixed-size arena that allocates the global
// neighbor indices route entries reference.
package neighbor

import (
	"fmt"

	"github.com/openmcast/dvmrpd/bitset"
)

// State is a neighbor's position in the adjacency state machine.
type State int

const (
	// Absent is not a state any live *Neighbor occupies; it is the
	// implicit state before an arena slot is allocated.
	Absent State = iota
	Waiting
	Active
	OneWay
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Active:
		return "active"
	case OneWay:
		return "one-way"
	default:
		return "absent"
	}
}

// Flags mirrors the original source's NBRF_* bits.
type Flags uint16

const (
	FlagLeaf Flags = 1 << iota
	_               // unused bit (NBRF bit 0x0002..0x0080 reserved in the original)
	_
	_
	_
	_
	_
	_
	FlagGenID          // we know this neighbor's generation id
	FlagWaiting        // waiting for the probe handshake to complete
	FlagOneWay         // suspected or confirmed one-way peering
	FlagTooOld         // too old a DVMRP version to peer with (policy)
	FlagTooManyRoutes  // neighbor is spouting an implausible number of routes
	FlagNotPruning     // neighbor doesn't appear to honor prunes
)

// DontPeer is the set of flags that, if any is set, means we must not
// treat this neighbor as a peer even though it has an arena slot —
// mirrors NBRF_DONTPEER.
const DontPeer = FlagWaiting | FlagOneWay | FlagTooOld | FlagTooManyRoutes | FlagNotPruning

// Has reports whether every bit in want is set in f.
func (f Flags) Has(want Flags) bool { return f&want == want }

// Modern DVMRP peers (IsModernVersion: protocol version 3 with minor
// version 255, or protocol version 4 through 9) must complete the
// probe handshake before a peering is established; legacy peers skip
// straight to Active.
const (
	legacyExpireSeconds = 140
	modernExpireSeconds = 35
	oneWayGraceSeconds  = 20
)

// A Neighbor is one adjacency: a peer DVMRP router heard on a specific
// vif.
type Neighbor struct {
	Addr  uint32
	VifIndex int

	Index int // global index (0..bitset.Size-1), stable for this slot's lifetime
	generation int

	ProtocolVersion uint8
	MinorVersion    uint8
	GenID           uint32
	HasGenID        bool

	State State
	Flags Flags

	// CreatedAgeSeconds tracks how long this slot has existed, used for
	// the 20-second "omitted our address" grace window after creation.
	CreatedAgeSeconds int
	AgeTimerSeconds    int
}

// IsModernVersion reports whether (pv, mv) identifies a DVMRPv3-spec
// peer, per the original source's dvmrpspec test: pv==3 && mv==255
// (reserved "spec compliant" marker) or any pv in (3,10).
func IsModernVersion(pv, mv uint8) bool {
	return (pv == 3 && mv == 255) || (pv > 3 && pv < 10)
}

// sendsGenID reports whether (pv, mv) identifies a peer whose probes
// carry a generation id and neighbor list, per update_neighbor's
// check: pv==3 && mv>2, or pv in (3,10).
func sendsGenID(pv, mv uint8) bool {
	return (pv == 3 && mv > 2) || (pv > 3 && pv < 10)
}

// ExpireSeconds returns how long this neighbor may stay silent before
// being declared Absent: the modern interval for genid-capable peers,
// the legacy interval otherwise.
func (n *Neighbor) ExpireSeconds() int {
	if n.HasGenID {
		return modernExpireSeconds
	}
	return legacyExpireSeconds
}

// ref is a (index, generation) pair identifying a specific arena slot
// occupancy, the non-owning-reference pattern route entries use to
// point at subordinate/dominant neighbors without holding a live
// pointer that could outlive the slot's reuse.
type Ref struct {
	Index      int
	generation int
}

// Valid reports whether r still refers to the arena slot it was minted
// against, i.e. the slot has not since been freed and reallocated.
func (r Ref) Valid(a *Arena) bool {
	if r.Index < 0 || r.Index >= len(a.slots) {
		return false
	}
	s := a.slots[r.Index]
	return s != nil && s.generation == r.generation
}

// Arena is a fixed-capacity pool of neighbor slots, indexed 0..Size-1,
// matching MAXNBRS. Route entries reference neighbors by Ref rather
// than by pointer so a freed-and-reused slot is detectable instead of
// silently aliasing a different neighbor.
type Arena struct {
	slots []*Neighbor
	free  []int
}

// NewArena returns an empty arena with bitset.Size slots.
func NewArena() *Arena {
	a := &Arena{slots: make([]*Neighbor, bitset.Size)}
	for i := bitset.Size - 1; i >= 0; i-- {
		a.free = append(a.free, i)
	}
	return a
}

// Alloc reserves a slot for a brand-new neighbor at addr on vifIndex.
// It returns an error if every index is already taken — the original
// source's "cannot handle Nth neighbor" restriction, since route
// subordinate bitmaps are fixed-width.
func (a *Arena) Alloc(addr uint32, vifIndex int) (*Neighbor, Ref, error) {
	if len(a.free) == 0 {
		return nil, Ref{}, fmt.Errorf("neighbor: no free arena slot (MAXNBRS=%d exhausted)", bitset.Size)
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	n := &Neighbor{Addr: addr, VifIndex: vifIndex, Index: idx}
	a.slots[idx] = n
	return n, Ref{Index: idx, generation: n.generation}, nil
}

// Free releases n's slot back to the pool and bumps its generation so
// any outstanding Ref against it becomes invalid.
func (a *Arena) Free(n *Neighbor) {
	if n == nil || a.slots[n.Index] != n {
		return
	}
	n.generation++
	a.slots[n.Index] = nil
	a.free = append(a.free, n.Index)
}

// Get resolves a Ref to its Neighbor, or nil if the ref is stale.
func (a *Arena) Get(r Ref) *Neighbor {
	if !r.Valid(a) {
		return nil
	}
	return a.slots[r.Index]
}

// Ref returns n's current Ref, used to hand a non-owning reference to
// the routing table.
func (n *Neighbor) Ref() Ref {
	return Ref{Index: n.Index, generation: n.generation}
}

// All returns every currently-occupied arena slot, in index order.
// Callers must not retain the returned slice across a Free/Alloc pair.
func (a *Arena) All() []*Neighbor {
	out := make([]*Neighbor, 0, len(a.slots)-len(a.free))
	for _, n := range a.slots {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// FindByAddr scans the arena for a neighbor already known on vifIndex
// at addr, mirroring update_neighbor's linear search of v->uv_neighbors
// (here flattened across the whole arena and filtered by vif, since the
// arena has no secondary per-vif index).
func (a *Arena) FindByAddr(vifIndex int, addr uint32) *Neighbor {
	for _, n := range a.slots {
		if n != nil && n.VifIndex == vifIndex && n.Addr == addr {
			return n
		}
	}
	return nil
}
