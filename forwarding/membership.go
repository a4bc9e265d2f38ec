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

// GroupJoined applies the effect of a new local member appearing for
// group on vifIndex (spec.md §4.4, "Membership effect on the forwarding
// cache"): every cache entry for that group whose route makes vifIndex
// a child gets vifIndex added to its outgoing set, and a pending
// upstream prune is grafted away.
func (c *Cache) GroupJoined(vifIndex int, group uint32) {
	for _, e := range c.byGroup[group] {
		if !e.Route.Children.IsSet(vifIndex) {
			continue
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
}

// GroupLeft applies the effect of the last local member disappearing
// for group on vifIndex: vifIndex is dropped from each entry's outgoing
// set only if no subordinate still needs it, and an upstream prune is
// sent if the entry is now empty.
func (c *Cache) GroupLeft(vifIndex int, group uint32) {
	for _, e := range c.byGroup[group] {
		if !e.Route.Children.IsSet(vifIndex) {
			continue
		}
		c.recomputeOutgoing(e)
		if e.Outgoing.IsEmpty() {
			c.maybeSendUpstreamPrune(e)
		}
	}
}
