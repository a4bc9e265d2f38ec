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

// maybeSendUpstreamPrune sends an upstream prune for e if its outgoing
// bitmap is empty and nothing disqualifies it (spec.md §4.3's prune
// generation rule). It is a no-op, not an error, when a prune cannot be
// sent yet — the normal refresh mechanisms converge on the next cycle.
func (c *Cache) maybeSendUpstreamPrune(e *Entry) {
	if e.Route.IsDirect {
		return
	}
	if c.deps.NeighborTooOld != nil && c.deps.NeighborTooOld(e.Route.Parent, e.Route.GatewayAddr) {
		return
	}

	lifetime := DefaultPruneLifetime
	if c.deps.ConfiguredPruneLifetime != nil {
		if cfg := c.deps.ConfiguredPruneLifetime(e.Route.Parent); cfg > 0 {
			lifetime = cfg
		}
	}
	for _, p := range e.DownstreamPrunes {
		if p.Lifetime < lifetime {
			lifetime = p.Lifetime
		}
	}
	if lifetime <= MinPruneLife {
		return
	}

	if c.deps.SendPrune != nil {
		c.deps.SendPrune(e.Route.Parent, e.Route.GatewayAddr, e.Route.Origin, e.Group, uint32(lifetime))
	}
	e.UpstreamPruneSent = lifetime
	e.GraftSentCounter = 0
}

// ReceivePrune handles a downstream prune for (origin, group) arriving
// from neighbor neighborIndex at routerAddr on vifIndex, per spec.md
// §4.3's prune-receipt rule.
func (c *Cache) ReceivePrune(vifIndex int, routerAddr uint32, neighborIndex int, origin, group uint32, lifetime int) {
	if lifetime <= MinPruneLife {
		return
	}
	if c.deps.VifScoped != nil && c.deps.VifScoped(vifIndex, group) {
		return
	}

	route := c.routes.FindRouteForSource(origin)
	if route == nil || !route.Children.IsSet(vifIndex) {
		return
	}
	e := c.findOrCreate(route, group)

	if rec, ok := e.DownstreamPrunes[neighborIndex]; ok {
		rec.Lifetime = lifetime
		return
	}

	rec := &PruneRecord{RouterAddr: routerAddr, VifIndex: vifIndex, NeighborIndex: neighborIndex, Lifetime: lifetime}
	e.DownstreamPrunes[neighborIndex] = rec
	e.DownstreamPruneBitmap.Set(neighborIndex)

	c.recomputeOutgoing(e)
	if e.Outgoing.IsEmpty() {
		c.maybeSendUpstreamPrune(e)
	}
}
