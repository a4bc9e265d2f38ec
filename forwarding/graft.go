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

// maybeSendGraft sends a graft upstream when e's outgoing bitmap has
// become non-empty while an upstream prune is in flight, and arms the
// exponential-backoff retransmit counter, per spec.md §4.3.
func (c *Cache) maybeSendGraft(e *Entry) {
	if e.UpstreamPruneSent <= 0 {
		return
	}
	e.UpstreamPruneSent = 0
	e.PruneRetransmitInterval = PruneRexmitInitial
	if c.deps.SendGraft != nil {
		c.deps.SendGraft(e.Route.Parent, e.Route.GatewayAddr, e.Route.Origin, e.Group)
	}
	e.GraftSentCounter = 1
}

// ReceiveGraft handles a graft for (origin, group) from neighborIndex
// at routerAddr on vifIndex. A graft-ack is always sent back, even if
// we hold no matching state (spec.md §4.3).
func (c *Cache) ReceiveGraft(vifIndex int, routerAddr uint32, neighborIndex int, origin, group uint32) {
	if c.deps.SendGraftAck != nil {
		c.deps.SendGraftAck(vifIndex, routerAddr, origin, group)
	}

	route := c.routes.FindRouteForSource(origin)
	if route == nil {
		return
	}
	e := c.findOrCreate(route, group)

	if rec, ok := e.DownstreamPrunes[neighborIndex]; ok && rec.VifIndex == vifIndex {
		delete(e.DownstreamPrunes, neighborIndex)
		e.DownstreamPruneBitmap.Clear(neighborIndex)
		c.recomputeOutgoing(e)
		for _, s := range e.Sources {
			if !s.Installed {
				c.installSource(e, s)
			}
		}
	}

	if e.UpstreamPruneSent > 0 {
		c.maybeSendGraft(e)
	}
}

// ReceiveGraftAck clears the graft-retransmit counter on the matching
// entry.
func (c *Cache) ReceiveGraftAck(origin, group uint32) {
	route := c.routes.FindRouteForSource(origin)
	if route == nil {
		return
	}
	if e, ok := c.byKey[keyOf(route, group)]; ok {
		e.GraftSentCounter = 0
	}
}
