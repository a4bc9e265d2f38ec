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

// Package routing implements the DVMRP distance-vector table: one best
// route per origin subnet, with poison-reverse, parent/child/dominant/
// subordinate bookkeeping, aging, and paced report generation (spec.md
// §4.2).
package routing

import (
	"github.com/openmcast/dvmrpd/bitset"
	"github.com/openmcast/dvmrpd/neighbor"
	"github.com/openmcast/dvmrpd/vif"
	"github.com/openmcast/dvmrpd/wire"
)

// Timing and metric constants from spec.md §4.2 and §8.
const (
	UnreachableMetric = wire.UnreachableMetric
	RouteSwitchTime   = 140 // seconds without a refresh before a tied route may be stolen
	ExpireTime        = 200 // seconds silent before a route is poisoned
	DiscardTime       = 280 // seconds silent (in total, like ExpireTime) before discard
	ReportInterval    = 35  // seconds to transmit the full table once
)

// ValidSubnet reports whether (origin, mask) is a legal subnet
// announcement: mask must be a contiguous run of high-order one bits and
// origin must have no bits set outside mask. Reports failing this check
// are logged and dropped rather than creating a route (spec.md §7).
func ValidSubnet(origin, mask uint32) bool {
	if mask == 0 {
		return false
	}
	inv := ^mask
	contiguous := inv&(inv+1) == 0
	return contiguous && origin&^mask == 0
}

// Entry is one row of the distance-vector table, keyed by (Origin, Mask).
type Entry struct {
	Origin uint32
	Mask   uint32
	Metric uint8

	// IsDirect marks a locally-connected subnet: it never expires and
	// has no gateway.
	IsDirect bool

	Parent      int // vif index toward the origin
	GatewayAddr uint32
	GatewayRef  neighbor.Ref

	// Children is the per-vif bitmap of vifs on which we are the
	// designated forwarder for traffic from this origin.
	Children bitset.Set

	// Dominants records, per non-parent vif, the address of a router
	// that currently beats us there (0 = none). Keyed by vif index
	// rather than a fixed array since the vif count is runtime
	// configured.
	Dominants map[int]uint32

	// Subordinates is the bitmap (by global neighbor index) of
	// downstream neighbors that depend on us via poison-reverse.
	// SubordAdv is the shadow bitmap of subordinates reaffirmed during
	// the current report-interval pair; bits not reaffirmed across two
	// intervals are timed out (spec.md §9 open question, resolved
	// authoritative).
	Subordinates bitset.Set
	SubordAdv    bitset.Set

	Age     int
	Changed bool
}

// Observer is notified of route lifecycle events so the forwarding
// package — which owns the group-table entries a route "owns" per
// spec.md §3 — can react without this package importing forwarding
// (which would create an import cycle, since forwarding naturally
// depends on routing.Entry to key its cache).
type Observer interface {
	// OnParentChange fires when an existing route adopts a new
	// parent/gateway: forwarding must "steal" every source entry under
	// the old path so the kernel re-upcalls and places them under the
	// new one.
	OnParentChange(e *Entry, oldGatewayAddr uint32)
	// OnRouteDiscarded fires when a route and all its cache entries
	// must be removed (DiscardTime elapsed).
	OnRouteDiscarded(e *Entry)
}

// Table is the ordered distance-vector table: decreasing mask, then
// decreasing origin, matching spec.md §3's ordering invariant.
type Table struct {
	entries  []*Entry
	observer Observer
}

// New returns an empty Table.
func New() *Table { return &Table{} }

// SetObserver installs the route-lifecycle observer.
func (t *Table) SetObserver(o Observer) { t.observer = o }

// less reports whether a sorts before b under the table's ordering
// invariant: decreasing mask, then decreasing origin.
func less(aMask, aOrigin, bMask, bOrigin uint32) bool {
	if aMask != bMask {
		return aMask > bMask
	}
	return aOrigin > bOrigin
}

// Find returns the route for (origin, mask), or nil.
func (t *Table) Find(origin, mask uint32) *Entry {
	for _, e := range t.entries {
		if e.Origin == origin && e.Mask == mask {
			return e
		}
	}
	return nil
}

// insert splices e into the table preserving ordering.
func (t *Table) insert(e *Entry) {
	for i, cur := range t.entries {
		if less(e.Mask, e.Origin, cur.Mask, cur.Origin) {
			t.entries = append(t.entries, nil)
			copy(t.entries[i+1:], t.entries[i:])
			t.entries[i] = e
			return
		}
	}
	t.entries = append(t.entries, e)
}

// Entries returns the table in its canonical order. Callers must not
// mutate the returned slice.
func (t *Table) Entries() []*Entry { return t.entries }

// AddDirect installs a directly-connected route for a locally attached
// subnet: it never expires (its age is reset every tick) and carries no
// gateway.
func (t *Table) AddDirect(origin, mask uint32, vifIndex int, metric uint8, childVifs []int) *Entry {
	e := &Entry{Origin: origin, Mask: mask, Metric: metric, IsDirect: true, Parent: vifIndex}
	for _, v := range childVifs {
		if v != vifIndex {
			e.Children.Set(v)
		}
	}
	t.insert(e)
	return e
}

// UpdateParams carries one received (origin, mask, metric) report, along
// with the vif-table context the update rule needs (spec.md §4.2) that
// this package does not itself own.
type UpdateParams struct {
	Origin    uint32
	Mask      uint32
	RawMetric uint8 // the wire metric byte, 0..63, before adding VifCost

	VifIndex     int
	VifCost      uint8
	VifLocalAddr uint32 // this vif's own local address, for the non-parent tie-break below

	GatewayAddr uint32
	GatewayRef  neighbor.Ref

	// ChildVifs and InitialSubordinates are used only when this report
	// creates a brand-new route: the candidate up, non-no-flood/
	// no-transit vifs, and the aggregated per-vif neighbor bitmaps
	// (excluding no-flood/no-transit vifs), respectively.
	ChildVifs           []int
	InitialSubordinates bitset.Set
}

// Update applies the per-report update rule. It returns the affected
// entry (nil if the report was for an unknown, already-unreachable
// origin and created nothing) and whether the raw metric carried a
// poison-reverse indication.
func (t *Table) Update(p UpdateParams) (entry *Entry, poisoned bool) {
	poisoned = p.RawMetric > UnreachableMetric
	adjusted := int(UnreachableMetric)
	if !poisoned {
		adjusted = int(p.RawMetric) + int(p.VifCost)
		if adjusted > UnreachableMetric {
			adjusted = UnreachableMetric
		}
	}

	e := t.Find(p.Origin, p.Mask)
	if e == nil {
		if adjusted >= UnreachableMetric || !ValidSubnet(p.Origin, p.Mask) {
			return nil, poisoned
		}
		e = &Entry{
			Origin:       p.Origin,
			Mask:         p.Mask,
			Metric:       uint8(adjusted),
			Parent:       p.VifIndex,
			GatewayAddr:  p.GatewayAddr,
			GatewayRef:   p.GatewayRef,
			Subordinates: p.InitialSubordinates,
			Changed:      true,
		}
		for _, v := range p.ChildVifs {
			if v != p.VifIndex {
				e.Children.Set(v)
			}
		}
		t.insert(e)
		return e, poisoned
	}

	sameGateway := e.Parent == p.VifIndex && e.GatewayAddr == p.GatewayAddr
	if sameGateway {
		e.Age = 0
		if int(e.Metric) != adjusted {
			e.Metric = uint8(adjusted)
			e.Changed = true
		}
		return e, poisoned
	}

	adopt := adjusted < int(e.Metric) ||
		(adjusted == int(e.Metric) && p.GatewayAddr < e.GatewayAddr) ||
		(adjusted == int(e.Metric) && e.Age >= RouteSwitchTime)

	if p.VifIndex == e.Parent || adopt {
		if adopt {
			oldGateway := e.GatewayAddr
			oldParent := e.Parent
			e.Parent = p.VifIndex
			e.GatewayAddr = p.GatewayAddr
			e.GatewayRef = p.GatewayRef
			e.Metric = uint8(adjusted)
			e.Age = 0
			e.Changed = true
			e.Children.Clear(p.VifIndex)
			if oldParent != p.VifIndex {
				e.Children.Set(oldParent)
			}
			if t.observer != nil {
				t.observer.OnParentChange(e, oldGateway)
			}
		}
		return e, poisoned
	}

	// V != parent: per-vif designation and subordinate bookkeeping.
	// original_source/src/route.c:556-558 compares the raw, uncosted
	// advertised metric against the route's metric and breaks ties
	// against this vif's own local address, not the route's (unrelated,
	// different-vif) current gateway address.
	beats := int(p.RawMetric) < int(e.Metric) || (int(p.RawMetric) == int(e.Metric) && p.GatewayAddr < p.VifLocalAddr)
	if beats {
		if e.Dominants == nil {
			e.Dominants = make(map[int]uint32)
		}
		e.Dominants[p.VifIndex] = p.GatewayAddr
		e.Children.Clear(p.VifIndex)
	} else if e.Dominants != nil && e.Dominants[p.VifIndex] == p.GatewayAddr {
		delete(e.Dominants, p.VifIndex)
		e.Children.Set(p.VifIndex)
	}

	if poisoned {
		e.Subordinates.Set(p.GatewayRef.Index)
		e.SubordAdv.Set(p.GatewayRef.Index)
	} else if e.Subordinates.IsSet(p.GatewayRef.Index) {
		e.Subordinates.Clear(p.GatewayRef.Index)
	}

	return e, poisoned
}

// AgeTick advances every route's age timer by elapsed seconds. Routes
// whose age reaches ExpireTime are poisoned; routes whose age reaches
// DiscardTime are removed (and their owner notified). Directly-connected
// routes never age. reportIntervalBoundary should be true on every
// *second* call at a report-interval boundary: spec.md §9 resolves the
// "two report intervals without reaffirmation" subordinate-timeout rule
// as authoritative, so this function itself does not track that
// counter — the caller (daemon's slow timer) does, passing true only
// every other interval.
func (t *Table) AgeTick(elapsed int, reportIntervalBoundary bool) {
	var kept []*Entry
	for _, e := range t.entries {
		if e.IsDirect {
			e.Age = 0
			kept = append(kept, e)
			continue
		}
		e.Age += elapsed

		if e.Age >= ExpireTime && e.Metric < UnreachableMetric {
			e.Metric = UnreachableMetric
			e.Changed = true
		}

		if e.Age >= DiscardTime {
			if t.observer != nil {
				t.observer.OnRouteDiscarded(e)
			}
			continue
		}
		kept = append(kept, e)

		if reportIntervalBoundary {
			stale := e.Subordinates.Subtract(e.SubordAdv)
			e.Subordinates = e.Subordinates.Subtract(stale)
			e.SubordAdv.ClearAll()
		}
	}
	t.entries = kept
}

// DeleteNeighborFromRoutes implements the neighbor-failure cascade
// (spec.md §4.5): every route whose gateway was ref is expired
// immediately, and on every other vif where this neighbor was recorded
// as dominant, that vif is restored as our child.
func (t *Table) DeleteNeighborFromRoutes(ref neighbor.Ref, addr uint32) {
	for _, e := range t.entries {
		if !e.IsDirect && e.GatewayRef.Index == ref.Index && e.GatewayAddr == addr {
			if e.Metric < UnreachableMetric {
				e.Metric = UnreachableMetric
				e.Changed = true
			}
			e.Age = ExpireTime
		}
		for vifIdx, dom := range e.Dominants {
			if dom == addr {
				delete(e.Dominants, vifIdx)
				e.Children.Set(vifIdx)
			}
		}
	}
}

// ReportRoutes returns vifIndex's outbound report: every route, in table
// order, poison-reverse-rewritten for routes parented on vifIndex, and
// passed through filter (nil means unfiltered).
func (t *Table) ReportRoutes(vifIndex int, filter *vif.Filter) []wire.ReportRoute {
	return t.reportRoutes(vifIndex, filter, false)
}

// ChangedReportRoutes is ReportRoutes restricted to routes whose Changed
// flag is set: the unsolicited coalesced change-report "delay_change_reports"
// sends on the fast timer once per route change, suppressed until the
// next slow tick clears every route's flag (ClearChanged).
func (t *Table) ChangedReportRoutes(vifIndex int, filter *vif.Filter) []wire.ReportRoute {
	return t.reportRoutes(vifIndex, filter, true)
}

func (t *Table) reportRoutes(vifIndex int, filter *vif.Filter, onlyChanged bool) []wire.ReportRoute {
	var out []wire.ReportRoute
	for _, e := range t.entries {
		if onlyChanged && !e.Changed {
			continue
		}
		metric := e.Metric
		if e.Parent == vifIndex {
			wide := int(metric) + UnreachableMetric
			if wide > 63 {
				wide = 63
			}
			metric = uint8(wide)
		}
		if filter != nil {
			match := filter.Matches(e.Origin, e.Mask)
			if !filter.Allows(match) {
				continue
			}
		}
		out = append(out, wire.ReportRoute{Origin: e.Origin, Mask: e.Mask, Metric: metric})
	}
	return out
}

// FindRouteForSource returns the route that should carry traffic from
// addr: the longest-prefix match over the table. Because the table is
// kept ordered by decreasing mask (and, within a mask, decreasing
// origin), the first entry whose (mask, origin) matches addr is
// necessarily the most specific one.
func (t *Table) FindRouteForSource(addr uint32) *Entry {
	for _, e := range t.entries {
		if addr&e.Mask == e.Origin {
			return e
		}
	}
	return nil
}

// ClearChanged resets every route's change flag, called after a
// coalesced change-report has been sent (spec.md §4.2
// "delay_change_reports").
func (t *Table) ClearChanged() {
	for _, e := range t.entries {
		e.Changed = false
	}
}

// AnyChanged reports whether at least one route has its change flag
// set.
func (t *Table) AnyChanged() bool {
	for _, e := range t.entries {
		if e.Changed {
			return true
		}
	}
	return false
}
