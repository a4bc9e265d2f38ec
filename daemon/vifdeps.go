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
	"github.com/openmcast/dvmrpd/bitset"
	"github.com/openmcast/dvmrpd/neighbor"
	"github.com/openmcast/dvmrpd/vif"
)

// vifNeighborMap returns the bitmap of active peer neighbor indices
// present on vifIndex, satisfying forwarding.Deps.VifNeighborMap.
func (d *Daemon) vifNeighborMap(vifIndex int) bitset.Set {
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return bitset.Set{}
	}
	return v.NeighborMap
}

// vifThreshold satisfies forwarding.Deps.VifThreshold.
func (d *Daemon) vifThreshold(vifIndex int) uint8 {
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return 0
	}
	return v.Threshold
}

// vifScoped reports whether group is administratively blocked on
// vifIndex by that vif's scope ACL, satisfying
// forwarding.Deps.VifScoped.
func (d *Daemon) vifScoped(vifIndex int, group uint32) bool {
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return false
	}
	for _, e := range v.ACL {
		if group&e.Mask == e.Addr {
			return true
		}
	}
	return false
}

// localMember reports whether vifIndex currently has a local IGMP
// member for group, satisfying forwarding.Deps.LocalMember.
func (d *Daemon) localMember(vifIndex int, group uint32) bool {
	st, ok := d.igmpVifs[vifIndex]
	if !ok {
		return false
	}
	_, present := st.Groups[group]
	return present
}

// configuredPruneLifetime satisfies
// forwarding.Deps.ConfiguredPruneLifetime.
func (d *Daemon) configuredPruneLifetime(vifIndex int) int {
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return 0
	}
	return v.PruneLifetime
}

// neighborTooOld reports whether the neighbor at addr on vifIndex
// predates DVMRP's prune/graft support, satisfying
// forwarding.Deps.NeighborTooOld.
func (d *Daemon) neighborTooOld(vifIndex int, addr uint32) bool {
	n := d.neighbors.FindByAddr(vifIndex, addr)
	if n == nil {
		return false
	}
	return n.Flags.Has(neighbor.FlagTooOld)
}

// vifRetransmitPrunes reports whether vifIndex retransmits
// unacknowledged prunes, satisfying forwarding.Deps.VifRetransmitPrunes.
// Tunnels carry the flag automatically (vif.New), subnets only when
// configured.
func (d *Daemon) vifRetransmitPrunes(vifIndex int) bool {
	v := d.vifByIndex(vifIndex)
	if v == nil {
		return false
	}
	return v.Flags.Has(vif.FlagRexmitPrunes)
}
