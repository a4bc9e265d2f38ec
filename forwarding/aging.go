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

package forwarding

// isPowerOfTwo reports whether n is an exact power of two (n > 0).
func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// AgeTick advances every cache entry's timers by elapsed seconds:
// cache-refresh, upstream-prune-sent, per-prune lifetimes, and the
// graft-retransmit backoff counter, per spec.md §4.3's aging rules.
func (c *Cache) AgeTick(elapsed int) {
	var toDelete []*Entry
	for _, e := range c.byKey {
		c.ageEntry(e, elapsed, &toDelete)
	}
	for _, e := range toDelete {
		c.remove(e)
	}
}

func (c *Cache) ageEntry(e *Entry, elapsed int, toDelete *[]*Entry) {
	c.ageUpstreamPrune(e, elapsed)
	c.ageDownstreamPrunes(e, elapsed)
	c.ageGraftRetransmit(e)
	c.agePruneRetransmit(e, elapsed)
	c.ageCacheRefresh(e, elapsed, toDelete)
}

func (c *Cache) ageUpstreamPrune(e *Entry, elapsed int) {
	switch {
	case e.UpstreamPruneSent > 0:
		e.UpstreamPruneSent -= elapsed
		if e.UpstreamPruneSent <= 0 {
			e.UpstreamPruneSent = -1
		}
	case e.UpstreamPruneSent == -1:
		c.clearKernelSources(e)
		e.UpstreamPruneSent = 0
	}
}

func (c *Cache) ageDownstreamPrunes(e *Entry, elapsed int) {
	var expired bool
	for idx, rec := range e.DownstreamPrunes {
		rec.Lifetime -= elapsed
		if rec.Lifetime <= 0 {
			delete(e.DownstreamPrunes, idx)
			e.DownstreamPruneBitmap.Clear(idx)
			expired = true
		}
	}
	if !expired {
		return
	}
	c.recomputeOutgoing(e)
	for _, s := range e.Sources {
		if !s.Installed {
			c.installSource(e, s)
		}
	}
	if e.UpstreamPruneSent > 0 {
		c.maybeSendGraft(e)
	}
}

func (c *Cache) ageGraftRetransmit(e *Entry) {
	if e.GraftSentCounter <= 0 {
		return
	}
	e.GraftSentCounter++
	if isPowerOfTwo(e.GraftSentCounter) && c.deps.SendGraft != nil {
		c.deps.SendGraft(e.Route.Parent, e.Route.GatewayAddr, e.Route.Origin, e.Group)
	}
}

func (c *Cache) agePruneRetransmit(e *Entry, elapsed int) {
	if e.UpstreamPruneSent <= 0 {
		return
	}
	if c.deps.VifRetransmitPrunes == nil || !c.deps.VifRetransmitPrunes(e.Route.Parent) {
		return
	}
	e.PruneRetransmitTimer -= elapsed
	if e.PruneRetransmitTimer > 0 {
		return
	}
	if c.deps.SendPrune != nil {
		c.deps.SendPrune(e.Route.Parent, e.Route.GatewayAddr, e.Route.Origin, e.Group, uint32(e.UpstreamPruneSent))
	}
	e.PruneRetransmitInterval *= 2
	e.PruneRetransmitTimer = e.PruneRetransmitInterval
}

func (c *Cache) ageCacheRefresh(e *Entry, elapsed int, toDelete *[]*Entry) {
	e.CacheRefreshTimer -= elapsed
	if e.CacheRefreshTimer > 0 {
		return
	}
	if c.hasFlowingSource(e) || len(e.DownstreamPrunes) > 0 || e.UpstreamPruneSent != 0 || e.GraftSentCounter != 0 {
		e.CacheRefreshTimer = CacheLifetime
		if e.UpstreamPruneSent == -1 {
			c.clearKernelSources(e)
			e.UpstreamPruneSent = 0
		}
		return
	}
	*toDelete = append(*toDelete, e)
}

func (c *Cache) hasFlowingSource(e *Entry) bool {
	for _, s := range e.Sources {
		if s.Installed {
			return true
		}
	}
	return false
}

func (c *Cache) clearKernelSources(e *Entry) {
	for _, s := range e.Sources {
		if s.Installed {
			c.deps.Kernel.DelMFC(ipOf(s.Origin), ipOf(e.Group))
			s.Installed = false
		}
	}
}
