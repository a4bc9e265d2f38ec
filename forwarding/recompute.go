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

import "github.com/openmcast/dvmrpd/bitset"

// recomputeOutgoing implements spec.md §4.3's outgoing-vif
// recomputation: for each vif that is a child of e's route, a vif
// forwards e's traffic if it still has an unpruned subordinate
// (SUBS_ARE_PRUNED, modelled by bitset.Set.SubsetOfMaskedUnion) or a
// local member, unless the vif is scoped for e's group. The kernel's
// TTL vector is refreshed to match.
func (c *Cache) recomputeOutgoing(e *Entry) {
	var out bitset.Set
	for _, v := range e.Route.Children.Indices() {
		if c.deps.VifScoped != nil && c.deps.VifScoped(v, e.Group) {
			continue
		}
		vifMask := bitset.Set{}
		if c.deps.VifNeighborMap != nil {
			vifMask = c.deps.VifNeighborMap(v)
		}
		allSubsPruned := e.Route.Subordinates.SubsetOfMaskedUnion(vifMask, e.DownstreamPruneBitmap)
		hasUnprunedSub := !allSubsPruned
		hasLocalMember := c.deps.LocalMember != nil && c.deps.LocalMember(v, e.Group)
		if hasUnprunedSub || hasLocalMember {
			out.Set(v)
		}
	}
	e.Outgoing = out

	for _, v := range out.Indices() {
		if c.deps.VifThreshold != nil {
			e.TTLThresholds[v] = c.deps.VifThreshold(v)
		}
	}
	for v := range e.TTLThresholds {
		if !out.IsSet(v) {
			delete(e.TTLThresholds, v)
		}
	}
}
