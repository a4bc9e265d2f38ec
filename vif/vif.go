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

// Package vif models the interface table: the set of virtual interfaces
// (physical subnets and point-to-point tunnels) this daemon runs DVMRP
// over.
package vif

import (
	"net"

	"github.com/openmcast/dvmrpd/bitset"
)

// Kind distinguishes a physical, multicast-capable subnet from a
// point-to-point tunnel.
type Kind int

const (
	Physical Kind = iota
	Tunnel
)

// Flags is the mutable bit set describing a vif's current operational
// state and configuration, mirrored from the original source's
// VIFF_* bits (vif.h). Index allocation, neighbor lists and group lists
// live on Vif directly rather than behind flag bits.
type Flags uint32

const (
	FlagDown             Flags = 1 << iota // kernel reports the link down
	FlagDisabled                           // administratively disabled
	FlagQuerier                            // we are this subnet's IGMP querier
	FlagOneWay                             // suspected one-way interface
	FlagLeaf                                // all neighbors on this vif are leaves
	FlagIGMPv1                             // act as an IGMPv1 router on this vif
	FlagIGMPv2                             // act as an IGMPv2 router on this vif
	FlagRexmitPrunes                       // retransmit prunes (point-to-point links)
	FlagPassive                             // passive tunnel: never initiate probes
	FlagAllowNonPruners                     // ok to peer with routers that don't prune
	FlagNoFlood                             // don't flood route reports on this vif
	FlagNoTransit                           // don't use this vif to transit between others
	FlagBlaster                             // a neighbor on this vif floods oversized reports
	FlagForceLeaf                           // ignore any neighbors discovered on this vif
	FlagOneSidedTunnel                       // DVMRP messages travel beside the tunnel encapsulation
)

// Has reports whether every bit in want is set in f.
func (f Flags) Has(want Flags) bool { return f&want == want }

// FilterAction is the disposition of a route filter match.
type FilterAction int

const (
	FilterAccept FilterAction = iota + 1
	FilterDeny
)

// FilterElement is one entry of a route filter's match list.
type FilterElement struct {
	Addr  uint32
	Mask  uint32
	Exact bool // match (Addr,Mask) exactly rather than as a mask test
}

// Filter is a vif's configured route filter (§6.3): an ordered list of
// elements, an accept/deny disposition for matches, and whether the
// filter applies to reports we send (normal) or also to reports we
// receive back (bidirectional), matching VFF_BIDIR.
type Filter struct {
	Action      FilterAction
	Bidirectional bool
	Elements    []FilterElement
}

// Matches reports whether addr/mask matches any element of f.
func (f *Filter) Matches(addr, mask uint32) bool {
	for _, e := range f.Elements {
		if e.Exact {
			if e.Addr == addr && e.Mask == mask {
				return true
			}
			continue
		}
		if addr&e.Mask == e.Addr {
			return true
		}
	}
	return false
}

// Allows reports whether a route to addr/mask survives this filter,
// given match is whether Matches(addr, mask) was true.
func (f *Filter) Allows(match bool) bool {
	if f == nil {
		return true
	}
	switch f.Action {
	case FilterAccept:
		return match
	case FilterDeny:
		return !match
	default:
		return true
	}
}

// ACLEntry is one scope access-control list entry: group addresses
// matching Addr/Mask are administratively blocked on the vif.
type ACLEntry struct {
	Addr uint32
	Mask uint32
}

// Vif is one virtual interface: a physical subnet or a point-to-point
// tunnel that this daemon runs DVMRP over. All addresses are stored in
// network byte order, matching the original source's convention of never
// byte-swapping addresses that are only ever compared or masked.
type Vif struct {
	Index int
	Kind  Kind
	Name  string

	Flags Flags

	Metric         uint8 // cost of this vif, >=1
	AdvertisedMetric uint8 // cost advertised to neighbors (may differ from Metric)
	Threshold      uint8 // min TTL required to forward on this vif
	RateLimit      uint32

	LocalAddr  uint32
	RemoteAddr uint32 // tunnel remote endpoint; zero for physical vifs
	DstAddr    uint32 // destination address for DVMRP control messages

	Subnet      uint32
	SubnetMask  uint32
	SubnetBcast uint32

	PruneLifetime int // override, or 0 for the cache-entry default

	ACL    []ACLEntry
	Filter *Filter

	// NeighborMap is the bitmap (by global neighbor index, see the
	// neighbor package) of active peers reachable on this vif.
	NeighborMap bitset.Set

	IGMPv1Warnings int // rate-limits the "wrong IGMP version" log message

	LeafTimerID int // nonzero while the leaf-reconsideration timer is armed

	ifIndex int // host network-interface index, set by the configuration layer
}

// New constructs a Vif with the policy defaults the original source
// applies at vif-installation time: REXMIT_PRUNES is forced on for
// tunnels (§9 open question — point-to-point links have no broadcast
// medium to rely on for loss detection, so the daemon always
// retransmits prunes on them) and left off, configuration-controlled,
// for subnets.
func New(index int, kind Kind, name string) *Vif {
	v := &Vif{
		Index:  index,
		Kind:   kind,
		Name:   name,
		Metric: 1,
		Threshold: 1,
	}
	if kind == Tunnel {
		v.Flags |= FlagRexmitPrunes
	}
	return v
}

// IsUp reports whether the vif is usable: neither administratively
// disabled nor reported down by the kernel.
func (v *Vif) IsUp() bool {
	return !v.Flags.Has(FlagDown) && !v.Flags.Has(FlagDisabled)
}

// SetIfIndex records the host network-interface index backing this
// vif, resolved by the configuration layer at install time.
func (v *Vif) SetIfIndex(i int) { v.ifIndex = i }

// IfIndex returns the host network-interface index set by SetIfIndex,
// or 0 if this vif has none (a tunnel, or not yet resolved).
func (v *Vif) IfIndex() int { return v.ifIndex }

// Contains reports whether ip falls within this vif's subnet. Always
// false for tunnels, which have no subnet.
func (v *Vif) Contains(ip uint32) bool {
	if v.Kind != Physical {
		return false
	}
	return ip&v.SubnetMask == v.Subnet
}

// SubnetsOverlap reports whether v and other, both physical vifs, claim
// overlapping subnets — the disjointness check §6.3 requires before a
// candidate vif is installed.
func SubnetsOverlap(a, b *Vif) bool {
	if a.Kind != Physical || b.Kind != Physical {
		return false
	}
	return a.Subnet&b.SubnetMask == b.Subnet&b.SubnetMask ||
		b.Subnet&a.SubnetMask == a.Subnet&a.SubnetMask
}

// IPNet returns the vif's subnet as a *net.IPNet, or nil for a tunnel.
func (v *Vif) IPNet() *net.IPNet {
	if v.Kind != Physical {
		return nil
	}
	ip := make(net.IP, 4)
	ip[0] = byte(v.Subnet >> 24)
	ip[1] = byte(v.Subnet >> 16)
	ip[2] = byte(v.Subnet >> 8)
	ip[3] = byte(v.Subnet)
	mask := make(net.IPMask, 4)
	mask[0] = byte(v.SubnetMask >> 24)
	mask[1] = byte(v.SubnetMask >> 16)
	mask[2] = byte(v.SubnetMask >> 8)
	mask[3] = byte(v.SubnetMask)
	return &net.IPNet{IP: ip, Mask: mask}
}
