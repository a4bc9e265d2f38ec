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

import "github.com/openmcast/dvmrpd/routing"

// Cache implements routing.Observer so the routing table can drive the
// two events spec.md §3/§4.2 describe as route-entry side effects on
// the group table it owns.

// entriesForRoute returns every group-table entry currently owned by e.
func (c *Cache) entriesForRoute(e *routing.Entry) []*Entry {
	var out []*Entry
	for _, entries := range c.byGroup {
		for _, ge := range entries {
			if ge.Route == e {
				out = append(out, ge)
			}
		}
	}
	return out
}

// OnParentChange steals every source under e's old path: their kernel
// entries are evicted so the next packet triggers a fresh upcall,
// landing them under the new parent/gateway (spec.md §4.3 "Source
// stealing"). The group-table entry itself survives; only its kernel
// installation state is reset.
func (c *Cache) OnParentChange(e *routing.Entry, _ uint32) {
	for _, ge := range c.entriesForRoute(e) {
		c.clearKernelSources(ge)
		ge.UpstreamPruneSent = 0
	}
}

// OnRouteDiscarded removes every group-table entry owned by e, tearing
// down their kernel installations, when e is discarded (DiscardTime
// elapsed with no refresh).
func (c *Cache) OnRouteDiscarded(e *routing.Entry) {
	for _, ge := range c.entriesForRoute(e) {
		c.remove(ge)
	}
}
