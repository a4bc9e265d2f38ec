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

// Package igmp implements the per-vif IGMP querier election and
// group-membership state machine described in spec.md §4.4: v1/v2/v3
// compatibility, querier election via lowest address, and the
// last-member query handshake that lets a v2 leave converge quickly.
package igmp

import "github.com/openmcast/dvmrpd/wire"

// Mode is the IGMP version a vif is configured to speak. NewVifState
// sets it; nothing in this package changes it afterwards.
type Mode int

const (
	ModeV3 Mode = iota
	ModeV2
	ModeV1
)

// Default timing constants (RFC 3376 §8, and spec.md §4.4).
const (
	DefaultRobustness             = 2
	DefaultQueryInterval          = 125 // seconds
	DefaultQueryResponseInterval  = 10  // seconds
	LastMemberQueryInterval       = 1   // seconds
	LastMemberQueryCount          = DefaultRobustness
)

// GroupRecord is a local group's membership record on one vif (spec.md
// §3 "Local group record").
type GroupRecord struct {
	Group        uint32
	LastReporter uint32

	ExpiryTimer int // seconds until membership is presumed gone

	// OldHostPresentSeconds counts down while an IGMPv1 report for this
	// group was seen recently: it suppresses v2-leave processing for the
	// group. The queries this vif sends do not depend on it.
	OldHostPresentSeconds int

	// QuerySpecificTimer is >0 while a last-member (group-specific)
	// query is outstanding, counting down to the point a silent group
	// is dropped.
	QuerySpecificTimer int
}

// VifState is one vif's querier-election and membership state.
type VifState struct {
	Mode Mode

	Robustness            uint8
	QueryInterval         int
	QueryResponseInterval int

	IsQuerier         bool
	CurrentQuerier    uint32 // our own address when IsQuerier is true
	OtherQuerierTimer int

	Groups map[uint32]*GroupRecord
}

// NewVifState returns a VifState that starts out as the vif's querier
// (spec.md §4.4: "on startup each vif assumes querier").
func NewVifState(ourAddr uint32, mode Mode) *VifState {
	return &VifState{
		Mode:                  mode,
		Robustness:            DefaultRobustness,
		QueryInterval:         DefaultQueryInterval,
		QueryResponseInterval: DefaultQueryResponseInterval,
		IsQuerier:             true,
		CurrentQuerier:        ourAddr,
		Groups:                make(map[uint32]*GroupRecord),
	}
}

// otherQuerierPresentInterval is OTHER_QUERIER_PRESENT_INTERVAL: the
// silence window before we resume querier duty.
func (v *VifState) otherQuerierPresentInterval() int {
	return int(v.Robustness)*v.QueryInterval + v.QueryResponseInterval/2
}

// groupMembershipInterval is GROUP_MEMBERSHIP_INTERVAL: how long a
// group record survives without a refreshing report.
func (v *VifState) groupMembershipInterval() int {
	return int(v.Robustness)*v.QueryInterval + v.QueryResponseInterval
}

// ReceiveQuery applies the effect of a membership query heard from
// sourceAddr: if it is numerically lower than the currently recognized
// querier, we yield (spec.md §4.4 querier election); a query repeating
// the already-recognized other-querier's address just refreshes the
// timeout.
func (v *VifState) ReceiveQuery(sourceAddr uint32) {
	if sourceAddr < v.CurrentQuerier {
		v.IsQuerier = false
		v.CurrentQuerier = sourceAddr
		v.OtherQuerierTimer = v.otherQuerierPresentInterval()
		return
	}
	if !v.IsQuerier && sourceAddr == v.CurrentQuerier {
		v.OtherQuerierTimer = v.otherQuerierPresentInterval()
	}
}

// Age advances the other-querier timeout by elapsed seconds. If we
// were yielding and the timeout has now elapsed, we resume querier
// duty; the caller must then emit a general query immediately.
func (v *VifState) Age(elapsed int, ourAddr uint32) (resumedQuerier bool) {
	if v.IsQuerier {
		return false
	}
	v.OtherQuerierTimer -= elapsed
	if v.OtherQuerierTimer > 0 {
		return false
	}
	v.IsQuerier = true
	v.CurrentQuerier = ourAddr
	return true
}

// group returns (creating if necessary) the record for group.
func (v *VifState) group(group uint32) *GroupRecord {
	g, ok := v.Groups[group]
	if !ok {
		g = &GroupRecord{Group: group}
		v.Groups[group] = g
	}
	return g
}

// ReceiveReport refreshes or creates a group's membership record from a
// v1 or v2 report. isV1 marks the source as IGMPv1-only, arming the
// old-host-present countdown that suppresses v2-leave processing for
// the group (spec.md §4.4); the queries this vif sends are unchanged.
func (v *VifState) ReceiveReport(group, reporter uint32, isV1 bool) {
	g := v.group(group)
	g.LastReporter = reporter
	g.ExpiryTimer = v.groupMembershipInterval()
	if isV1 {
		g.OldHostPresentSeconds = int(v.Robustness) * v.QueryInterval
	}
}

// ReceiveV3Report applies every group record in a decoded IGMPv3
// report. Per spec.md §4.4, DVMRP is ASM (any-source multicast):
// MODE_IS_EXCLUDE/CHANGE_TO_EXCLUDE are joins regardless of source
// list; MODE_IS_INCLUDE/CHANGE_TO_INCLUDE with an empty source list are
// leaves; ALLOW/BLOCK records carry no membership meaning here.
func (v *VifState) ReceiveV3Report(recs []wire.Grec, reporter uint32) {
	for _, r := range recs {
		switch r.Type {
		case wire.ModeIsExclude, wire.ChangeToExcludeMode:
			v.ReceiveReport(r.Group, reporter, false)
		case wire.ModeIsInclude, wire.ChangeToIncludeMode:
			if len(r.Sources) == 0 {
				delete(v.Groups, r.Group)
			}
		case wire.AllowNewSources, wire.BlockOldSources:
			// Silently ignored: source-specific filtering has no
			// meaning for a router that only ever does ASM.
		}
	}
}

// ReceiveLeave applies a v2 leave for group. It reports whether a
// last-member (group-specific) query should now be emitted: spec.md
// §4.4 suppresses this when we are not querier, the vif is forced to
// IGMPv1 compatibility, an old v1 host was recently seen for the group,
// or a query is already in flight.
func (v *VifState) ReceiveLeave(group uint32) (sendQuery bool) {
	if !v.IsQuerier || v.Mode == ModeV1 {
		return false
	}
	g, ok := v.Groups[group]
	if !ok || g.OldHostPresentSeconds > 0 || g.QuerySpecificTimer > 0 {
		return false
	}
	g.QuerySpecificTimer = LastMemberQueryCount*LastMemberQueryInterval + 1
	return true
}

// AgeGroups advances every group record's timers by elapsed seconds and
// reports which groups were just dropped: either a last-member query
// went unanswered, or the ordinary membership-interval timer expired.
func (v *VifState) AgeGroups(elapsed int) (expired []uint32) {
	for addr, g := range v.Groups {
		if g.OldHostPresentSeconds > 0 {
			g.OldHostPresentSeconds -= elapsed
		}
		g.ExpiryTimer -= elapsed
		if g.QuerySpecificTimer > 0 {
			g.QuerySpecificTimer -= elapsed
			if g.QuerySpecificTimer <= 0 {
				expired = append(expired, addr)
				delete(v.Groups, addr)
				continue
			}
		}
		if g.ExpiryTimer <= 0 {
			expired = append(expired, addr)
			delete(v.Groups, addr)
		}
	}
	return expired
}
