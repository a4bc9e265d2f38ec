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

// Package config implements spec.md §6.3's configuration collaborator:
// an interface the core depends on, never a file format. File-format
// parsing is out of scope (spec.md §1 Non-goals); Static is the
// concrete implementation used by tests and cmd/dvmrpd today, the same
// role the teacher's plain ovsdb.Client struct plays against the
// ovs.Client wire-protocol interface.
package config

import (
	"fmt"

	"github.com/openmcast/dvmrpd/vif"
)

// Candidate is one vif the configuration source offers at startup or
// restart: everything the core needs to construct and install a
// *vif.Vif, before any disjointness checking.
type Candidate struct {
	Name string
	Kind vif.Kind

	LocalAddr  uint32
	RemoteAddr uint32 // tunnels only

	Subnet     uint32 // physical vifs only
	SubnetMask uint32

	Metric           uint8
	AdvertisedMetric uint8
	Threshold        uint8
	RateLimit        uint32
	PruneLifetime    int // 0 means "use the cache-entry default"

	Flags vif.Flags

	ACL    []vif.ACLEntry
	Filter *vif.Filter

	// IfIndex is the host network-interface index backing a physical
	// vif; ignored for tunnels.
	IfIndex int
}

// Source provides, at startup and on restart (SIGHUP), an ordered list
// of candidate vifs (spec.md §6.3). The core never depends on how this
// list was produced.
type Source interface {
	Vifs() ([]Candidate, error)
}

// Static is a Source backed by a fixed, in-memory list: the default
// used by tests and by cmd/dvmrpd until a real file-format parser
// exists.
type Static struct {
	Candidates []Candidate
}

// Vifs returns s's fixed candidate list.
func (s Static) Vifs() ([]Candidate, error) {
	return s.Candidates, nil
}

// Resolve applies spec.md §6.3's installation rule to candidates
// against the vifs already installed: a candidate is accepted only if
// its subnet is disjoint from every already-installed vif's subnet;
// anything else is skipped, paired with a human-readable reason so the
// caller can log it as a warning.
func Resolve(candidates []Candidate, installed []*vif.Vif) (accepted []Candidate, skipped []string) {
	seen := append([]*vif.Vif(nil), installed...)
	for _, c := range candidates {
		probe := &vif.Vif{Kind: c.Kind, Subnet: c.Subnet, SubnetMask: c.SubnetMask}
		conflict := false
		for _, existing := range seen {
			if c.Kind == vif.Physical && existing.Kind == vif.Physical && vif.SubnetsOverlap(probe, existing) {
				skipped = append(skipped, fmt.Sprintf("vif %s: subnet overlaps already-installed vif %s", c.Name, existing.Name))
				conflict = true
				break
			}
			if c.Kind == vif.Tunnel && existing.Kind == vif.Tunnel &&
				existing.LocalAddr == c.LocalAddr && existing.RemoteAddr == c.RemoteAddr {
				skipped = append(skipped, fmt.Sprintf("vif %s: duplicate tunnel endpoint of already-installed vif %s", c.Name, existing.Name))
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		accepted = append(accepted, c)
		seen = append(seen, &vif.Vif{Kind: c.Kind, Subnet: c.Subnet, SubnetMask: c.SubnetMask, LocalAddr: c.LocalAddr, RemoteAddr: c.RemoteAddr, Name: c.Name})
	}
	return accepted, skipped
}

// Build constructs a *vif.Vif from an accepted candidate, applying the
// same defaults vif.New applies and then overlaying the candidate's
// configured fields.
func Build(index int, c Candidate) *vif.Vif {
	v := vif.New(index, c.Kind, c.Name)
	v.Flags |= c.Flags
	v.LocalAddr = c.LocalAddr
	v.RemoteAddr = c.RemoteAddr
	v.Subnet = c.Subnet
	v.SubnetMask = c.SubnetMask
	if c.Kind == vif.Physical {
		v.SubnetBcast = c.Subnet | ^c.SubnetMask
	}
	if c.Metric > 0 {
		v.Metric = c.Metric
	}
	v.AdvertisedMetric = c.AdvertisedMetric
	if c.Threshold > 0 {
		v.Threshold = c.Threshold
	}
	v.RateLimit = c.RateLimit
	v.PruneLifetime = c.PruneLifetime
	v.ACL = c.ACL
	v.Filter = c.Filter
	v.SetIfIndex(c.IfIndex)
	return v
}
