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

package config

import (
	"testing"

	"github.com/openmcast/dvmrpd/vif"
)

func TestStaticVifsReturnsFixedList(t *testing.T) {
	s := Static{Candidates: []Candidate{{Name: "eth0"}, {Name: "eth1"}}}
	got, err := s.Vifs()
	if err != nil {
		t.Fatalf("Vifs: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestResolveAcceptsDisjointSubnets(t *testing.T) {
	candidates := []Candidate{
		{Name: "eth0", Kind: vif.Physical, Subnet: 0x0a000000, SubnetMask: 0xffffff00},
		{Name: "eth1", Kind: vif.Physical, Subnet: 0x0a000100, SubnetMask: 0xffffff00},
	}
	accepted, skipped := Resolve(candidates, nil)
	if len(accepted) != 2 || len(skipped) != 0 {
		t.Fatalf("accepted=%d skipped=%d, want 2/0", len(accepted), len(skipped))
	}
}

func TestResolveSkipsOverlappingSubnet(t *testing.T) {
	installed := []*vif.Vif{{Name: "eth0", Kind: vif.Physical, Subnet: 0x0a000000, SubnetMask: 0xffffff00}}
	candidates := []Candidate{
		{Name: "eth1", Kind: vif.Physical, Subnet: 0x0a000080, SubnetMask: 0xffffff00},
	}
	accepted, skipped := Resolve(candidates, installed)
	if len(accepted) != 0 {
		t.Fatalf("expected overlapping candidate to be skipped, got %d accepted", len(accepted))
	}
	if len(skipped) != 1 {
		t.Fatalf("expected one warning, got %d", len(skipped))
	}
}

func TestResolveSkipsDuplicateWithinCandidateList(t *testing.T) {
	candidates := []Candidate{
		{Name: "eth0", Kind: vif.Physical, Subnet: 0x0a000000, SubnetMask: 0xffffff00},
		{Name: "eth0-dup", Kind: vif.Physical, Subnet: 0x0a000000, SubnetMask: 0xffffff00},
	}
	accepted, skipped := Resolve(candidates, nil)
	if len(accepted) != 1 {
		t.Fatalf("accepted = %d, want 1 (first candidate wins)", len(accepted))
	}
	if len(skipped) != 1 {
		t.Fatalf("skipped = %d, want 1", len(skipped))
	}
}

func TestResolveSkipsDuplicateTunnel(t *testing.T) {
	installed := []*vif.Vif{{Name: "tun0", Kind: vif.Tunnel, LocalAddr: 0x0a000001, RemoteAddr: 0x0b000001}}
	candidates := []Candidate{{Name: "tun1", Kind: vif.Tunnel, LocalAddr: 0x0a000001, RemoteAddr: 0x0b000001}}
	accepted, skipped := Resolve(candidates, installed)
	if len(accepted) != 0 || len(skipped) != 1 {
		t.Fatalf("accepted=%d skipped=%d, want 0/1", len(accepted), len(skipped))
	}
}

func TestBuildAppliesDefaultsAndOverrides(t *testing.T) {
	c := Candidate{
		Name: "eth0", Kind: vif.Physical,
		Subnet: 0x0a000000, SubnetMask: 0xffffff00,
		Metric: 3, Threshold: 64, IfIndex: 7,
	}
	v := Build(1, c)
	if v.Metric != 3 || v.Threshold != 64 {
		t.Fatalf("metric/threshold = %d/%d, want 3/64", v.Metric, v.Threshold)
	}
	if v.SubnetBcast != 0x0a0000ff {
		t.Fatalf("SubnetBcast = %#x, want 0x0a0000ff", v.SubnetBcast)
	}
	if v.IfIndex() != 7 {
		t.Fatalf("IfIndex() = %d, want 7", v.IfIndex())
	}
}

func TestBuildLeavesMetricAtVifDefaultWhenUnset(t *testing.T) {
	v := Build(1, Candidate{Name: "eth0", Kind: vif.Physical})
	if v.Metric != 1 {
		t.Fatalf("Metric = %d, want the vif.New default of 1", v.Metric)
	}
}
