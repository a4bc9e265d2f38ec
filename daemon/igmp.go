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
	"github.com/openmcast/dvmrpd/wire"
)

const allIGMPHosts = 0xe0000001

// onQuery applies a received membership query to vifIndex's querier
// election (spec.md §4.4). It sends nothing itself: resuming querier
// duty, and the general query that follows, happen on the slow timer.
func (d *Daemon) onQuery(vifIndex int, srcAddr uint32, q wire.Query) {
	st, ok := d.igmpVifs[vifIndex]
	if !ok {
		return
	}
	st.ReceiveQuery(srcAddr)
	_ = q // the query's own timing fields never override our configured values
}

// onV1V2Report refreshes local membership state for a v1/v2 report and
// applies its effect on the forwarding cache (spec.md §4.4).
func (d *Daemon) onV1V2Report(vifIndex int, group, srcAddr uint32, isV1 bool) {
	st, ok := d.igmpVifs[vifIndex]
	if !ok {
		return
	}
	_, existed := st.Groups[group]
	st.ReceiveReport(group, srcAddr, isV1)
	if !existed {
		d.cache.GroupJoined(vifIndex, group)
	}
}

// onV3Report applies every group record of a decoded IGMPv3 report.
func (d *Daemon) onV3Report(vifIndex int, recs []wire.Grec, srcAddr uint32) {
	st, ok := d.igmpVifs[vifIndex]
	if !ok {
		return
	}
	var joined, left []uint32
	for _, r := range recs {
		_, existed := st.Groups[r.Group]
		switch r.Type {
		case wire.ModeIsExclude, wire.ChangeToExcludeMode:
			if !existed {
				joined = append(joined, r.Group)
			}
		case wire.ModeIsInclude, wire.ChangeToIncludeMode:
			if len(r.Sources) == 0 && existed {
				left = append(left, r.Group)
			}
		}
	}
	st.ReceiveV3Report(recs, srcAddr)
	for _, g := range joined {
		d.cache.GroupJoined(vifIndex, g)
	}
	for _, g := range left {
		d.cache.GroupLeft(vifIndex, g)
	}
}

// onLeave applies a v2 leave: if we are querier for the vif and no
// last-member query is already outstanding, it arms one via
// VifState.ReceiveLeave and emits it; the forwarding cache is left
// untouched until the group record actually expires (AgeGroups, driven
// by the slow timer), since the point of the last-member query is to
// give another member a chance to answer before traffic is cut off.
func (d *Daemon) onLeave(vifIndex int, group, srcAddr uint32) {
	st, ok := d.igmpVifs[vifIndex]
	if !ok {
		return
	}
	_ = srcAddr
	if !st.ReceiveLeave(group) {
		return
	}
	v := d.vifByIndex(vifIndex)
	if v != nil && v.IsUp() && d.transport != nil {
		d.transport.WriteTo(st.BuildGroupSpecificQuery(group), v.Name, ipOf(allIGMPHosts))
	}
}

// sendGeneralQuery emits vifIndex's periodic general membership query,
// only while we hold querier duty for that vif (spec.md §4.4).
func (d *Daemon) sendGeneralQuery(vifIndex int) {
	st, ok := d.igmpVifs[vifIndex]
	if !ok || !st.IsQuerier {
		return
	}
	v := d.vifByIndex(vifIndex)
	if v == nil || !v.IsUp() || d.transport == nil {
		return
	}
	if err := d.transport.WriteTo(st.BuildGeneralQuery(), v.Name, ipOf(allIGMPHosts)); err != nil {
		d.warnf("daemon: general query vif %d (%s): %v", vifIndex, v.Name, err)
	}
}
