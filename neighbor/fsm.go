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

// Event reports a state transition HandleProbe caused,
// so callers (the daemon's dispatch glue) can drive the side effects
// spec.md §4.5 describes: vif bitmap updates, route resets, and
// unicast/multicast full-table advertisement.
type Event int

const (
	// EventNone means the message was absorbed with no state transition
	// worth reacting to (e.g. a routine Active-state age-timer reset).
	EventNone Event = iota
	// EventBecameActive fires the first time a neighbor completes the
	// probe handshake (Waiting -> Active) or, for a legacy peer, is
	// created directly Active.
	EventBecameActive
	// EventGenIDChanged names an already-known neighbor's generation
	// id changing between probes (a reboot indication). HandleProbe
	// never returns it; callers detect that change with CheckGenID.
	EventGenIDChanged
	// EventWentOneWay fires on Active -> OneWay.
	EventWentOneWay
	// EventReturnedActive fires on OneWay -> Active.
	EventReturnedActive
)

func containsAddr(addrs []uint32, want uint32) bool {
	for _, a := range addrs {
		if a == want {
			return true
		}
	}
	return false
}

// HandleProbe applies the effect of a received probe on an already
// Waiting/Active/OneWay neighbor: it resets the age timer, checks
// whether our address appears in the peer's reported neighbor list (the
// probe-handshake and one-way-detection test). The generation-id
// transition is reported separately by CheckGenID, since callers need
// to compare before updating GenID.
//
// Callers are responsible for creating the Neighbor (via Arena.Alloc) on
// the first probe/report from an unknown peer and for calling this only
// on subsequent messages; see NewFromProbe for the first-message path.
func (n *Neighbor) HandleProbe(ourAddr uint32, neighbors []uint32) Event {
	n.AgeTimerSeconds = 0
	heardUs := containsAddr(neighbors, ourAddr)

	switch n.State {
	case Waiting:
		if heardUs {
			n.State = Active
			n.Flags &^= FlagWaiting
			return EventBecameActive
		}
		return EventNone

	case Active:
		if !heardUs && n.CreatedAgeSeconds > oneWayGraceSeconds {
			n.State = OneWay
			n.Flags |= FlagOneWay
			return EventWentOneWay
		}
		return EventNone

	case OneWay:
		if heardUs {
			n.State = Active
			n.Flags &^= FlagOneWay
			return EventReturnedActive
		}
		return EventNone
	}
	return EventNone
}

// CheckGenID compares genID against the neighbor's recorded value,
// updates it, and reports whether this is a change on an already-known
// generation id (a reboot indication per spec.md §4.5). The first time a
// genid-capable neighbor is seen, HasGenID is false and this always
// reports no change — there is nothing to compare against yet.
func (n *Neighbor) CheckGenID(genID uint32) (changed bool) {
	if n.HasGenID && n.GenID != genID {
		changed = true
	}
	n.GenID = genID
	n.HasGenID = true
	return changed
}

// NewFromProbe allocates and initializes a Neighbor from the first probe
// or report heard from addr on vifIndex, choosing the Waiting or Active
// starting state per the peer's advertised protocol/minor version
// (IsModernVersion): spec-compliant peers must complete the
// probe-handshake before we trust them; legacy peers are trusted
// immediately.
func (a *Arena) NewFromProbe(addr uint32, vifIndex int, pv, mv uint8) (*Neighbor, Ref, error) {
	n, ref, err := a.Alloc(addr, vifIndex)
	if err != nil {
		return nil, Ref{}, err
	}
	n.ProtocolVersion = pv
	n.MinorVersion = mv
	if IsModernVersion(pv, mv) {
		n.State = Waiting
		n.Flags |= FlagWaiting
	} else {
		n.State = Active
	}
	return n, ref, nil
}

// Age advances n's age timer and CreatedAgeSeconds by elapsed seconds
// and reports whether n has now been silent for more than ExpireSeconds, meaning
// the caller must expire it: free the arena slot, clear the neighbor's
// bit from its vif's membership bitmap, and call
// routing.Table.DeleteNeighborFromRoutes for its Ref.
func (n *Neighbor) Age(elapsed int) (expired bool) {
	n.AgeTimerSeconds += elapsed
	n.CreatedAgeSeconds += elapsed
	return n.AgeTimerSeconds > n.ExpireSeconds()
}

// CanPeer reports whether n should ever be treated as a peer: it has no
// DontPeer bits set. A record that fails this check is retained for
// diagnostics (do-not-peer policy, §4.5) but never contributes a bit to
// any vif's neighbor bitmap.
func (n *Neighbor) CanPeer() bool {
	return n.Flags&DontPeer == 0
}
