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

// localGroupsBase/localGroupsMask describe the 224.0.0.0/24 "local"
// multicast range, which
// is never subject to DVMRP forwarding (link-local protocol traffic).
const (
	localGroupsBase = 0xe0000000
	localGroupsMask = 0xffffff00
)

// isLocalGroup reports whether group falls in 224.0.0.0/24.
func isLocalGroup(group uint32) bool {
	return group&localGroupsMask == localGroupsBase
}

// OnUpcall handles a "no matching kernel cache entry" upcall for
// (source, group), per spec.md §4.3's numbered upcall procedure.
func (c *Cache) OnUpcall(source, group uint32) {
	if isLocalGroup(group) {
		return
	}

	route := c.routes.FindRouteForSource(source)
	if route == nil {
		set, ok := c.noRoute[group]
		if !ok {
			set = make(map[uint32]struct{})
			c.noRoute[group] = set
		}
		set[source] = struct{}{}
		return
	}
	// A source that was pending on the no-route list now has a route;
	// drop it from there (it is about to get a real cache entry).
	if set, ok := c.noRoute[group]; ok {
		delete(set, source)
	}

	e := c.findOrCreate(route, group)
	if src, ok := e.Sources[source]; ok && src.Installed {
		// Retransmission: the kernel asked again for an entry we
		// already believe is installed. Reinstall unconditionally;
		// this is cheap and self-correcting if the kernel's copy was
		// evicted without our knowledge.
		c.installSource(e, src)
		return
	}

	src := &Source{Origin: source, Installed: false}
	e.Sources[source] = src
	c.installSource(e, src)
	c.recomputeOutgoing(e)
	if e.Outgoing.IsEmpty() {
		c.maybeSendUpstreamPrune(e)
	}
}

func (c *Cache) installSource(e *Entry, s *Source) {
	c.deps.Kernel.AddMFC(ipOf(s.Origin), ipOf(e.Group), e.Route.Parent, e.TTLThresholds)
	s.Installed = true
	s.Packets++
}
