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

package daemon

import (
	"github.com/openmcast/dvmrpd/routing"
	"github.com/openmcast/dvmrpd/vif"
)

// Periodic intervals spec.md §4.2/§4.5/§9 hang every aging and
// advertisement task off of. fastTimerInterval/slowTimerInterval are
// the two ticks spec.md §5 names; neighborProbeInterval is
// NEIGHBOR_PROBE_INTERVAL; leafReconsiderSeconds is the grace period a
// vif whose last neighbor just disappeared waits, mirroring the
// one-way grace window's shape, before it is re-advertised as a leaf
// (spec.md §9 Open Question: no explicit constant is given for this,
// so the one-way grace interval is reused here rather than invented
// from nothing).
const (
	fastTimerInterval     = 1
	slowTimerInterval     = 10
	neighborProbeInterval = 10
	leafReconsiderSeconds = 20

	// reportChunkBytes bounds one paced report chunk; sendFullTable's
	// own one-shot budget is an order of magnitude larger since it
	// fires once, not every second.
	reportChunkBytes = 1400
)

// startTimers arms the fast and slow timers and, for every up,
// non-passive vif, its per-vif probe timer. Called once from Run
// before the event loop starts (spec.md §5).
func (d *Daemon) startTimers() {
	d.fastTimerID = d.timers.Set(fastTimerInterval, d.onFastTimer, nil)
	d.slowTimerID = d.timers.Set(slowTimerInterval, d.onSlowTimer, nil)
	for _, v := range d.vifs {
		if v.IsUp() && !v.Flags.Has(vif.FlagPassive) {
			d.armProbeTimer(v.Index)
		}
	}
}

func (d *Daemon) armProbeTimer(vifIndex int) {
	d.probeTimerID[vifIndex] = d.timers.Set(neighborProbeInterval, d.onProbeTimer, vifIndex)
}

// onProbeTimer re-sends vifIndex's probe and reschedules itself; a vif
// that has since gone down simply stops rearming (spec.md §4.5 probes
// are "emitted per vif at NEIGHBOR_PROBE_INTERVAL").
func (d *Daemon) onProbeTimer(arg interface{}) {
	vifIndex := arg.(int)
	v := d.vifByIndex(vifIndex)
	if v == nil || !v.IsUp() {
		delete(d.probeTimerID, vifIndex)
		return
	}
	d.sendProbe(vifIndex, d.neighborAddrsOnVif(vifIndex))
	d.armProbeTimer(vifIndex)
}

// armLeafTimer arms vifIndex's leaf-reconsideration timer: if no
// neighbor has reappeared on the vif by the time it fires, the vif is
// marked as a leaf (spec.md glossary "Leaf"). Re-arming an
// already-armed timer (Set never cancels a sibling) would leak a
// duplicate callout, so callers must only call this on the transition
// into "no neighbors", never unconditionally.
func (d *Daemon) armLeafTimer(vifIndex int) {
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return
	}
	v.LeafTimerID = d.timers.Set(leafReconsiderSeconds, d.onLeafTimer, vifIndex)
}

// clearLeafTimer cancels vifIndex's leaf-reconsideration timer, if
// any, and clears the leaf flag: a neighbor just became active there.
func (d *Daemon) clearLeafTimer(vifIndex int) {
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return
	}
	d.timers.Clear(v.LeafTimerID)
	v.LeafTimerID = 0
	v.Flags &^= vif.FlagLeaf
}

func (d *Daemon) onLeafTimer(arg interface{}) {
	vifIndex := arg.(int)
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return
	}
	v.LeafTimerID = 0
	if v.NeighborMap.IsEmpty() {
		v.Flags |= vif.FlagLeaf
	}
}

// onFastTimer paces one chunk of every up vif's full table (spec.md
// §4.2), recreating a vif's chunker on every lap boundary so the next
// lap reflects the table's current contents, then emits one coalesced
// change-report per vif if any route changed since the last slow tick
// ("delay_change_reports").
func (d *Daemon) onFastTimer(interface{}) {
	for _, v := range d.vifs {
		if !v.IsUp() {
			continue
		}
		c, ok := d.chunkers[v.Index]
		if !ok {
			c = d.newChunkerForVif(v)
			d.chunkers[v.Index] = c
		}
		chunk, lapDone := c.Next(reportChunkBytes)
		d.sendReportChunk(v.Index, chunk)
		if lapDone {
			d.chunkers[v.Index] = d.newChunkerForVif(v)
		}
	}

	if d.routes.AnyChanged() && !d.changeReportsSuppressed {
		for _, v := range d.vifs {
			if !v.IsUp() {
				continue
			}
			d.sendReportChunk(v.Index, d.routes.ChangedReportRoutes(v.Index, v.Filter))
		}
		d.changeReportsSuppressed = true
	}

	d.fastTimerID = d.timers.Set(fastTimerInterval, d.onFastTimer, nil)
}

func (d *Daemon) newChunkerForVif(v *vif.Vif) *routing.Chunker {
	var filterFn func(uint32, uint32) bool
	if v.Filter != nil {
		filterFn = func(origin, mask uint32) bool {
			return v.Filter.Allows(v.Filter.Matches(origin, mask))
		}
	}
	return d.routes.NewChunker(v.Index, filterFn)
}

// onSlowTimer ages every table this daemon owns (spec.md §4.2, §4.4,
// §4.5): routes, the forwarding cache, each vif's querier/membership
// state, and every neighbor, reacting to whichever of those report an
// expiry. reportIntervalBoundary is passed true every *other* tick
// (slowTickOdd), the "two report intervals without reaffirmation" rule
// spec.md §9 resolves as authoritative.
func (d *Daemon) onSlowTimer(interface{}) {
	const elapsed = slowTimerInterval
	d.slowTickOdd = !d.slowTickOdd

	d.routes.AgeTick(elapsed, d.slowTickOdd)
	d.routes.ClearChanged()
	d.changeReportsSuppressed = false

	d.cache.AgeTick(elapsed)

	for vifIndex, st := range d.igmpVifs {
		if st.Age(elapsed, d.ourAddrForVif(vifIndex)) {
			d.sendGeneralQuery(vifIndex)
		}
		for _, g := range st.AgeGroups(elapsed) {
			d.cache.GroupLeft(vifIndex, g)
		}
	}

	for _, n := range d.neighbors.All() {
		if n.Age(elapsed) {
			d.expireNeighbor(n)
		}
	}

	d.slowTimerID = d.timers.Set(slowTimerInterval, d.onSlowTimer, nil)
}

func (d *Daemon) ourAddrForVif(vifIndex int) uint32 {
	if v := d.vifByIndex(vifIndex); v != nil {
		return v.LocalAddr
	}
	return 0
}
