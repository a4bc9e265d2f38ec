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

import (
	"net"
	"testing"

	"github.com/openmcast/dvmrpd/bitset"
	"github.com/openmcast/dvmrpd/neighbor"
	"github.com/openmcast/dvmrpd/routing"
)

type fakeKernel struct {
	installed map[string]bool
}

func newFakeKernel() *fakeKernel { return &fakeKernel{installed: map[string]bool{}} }

func sgKey(s, g net.IP) string { return s.String() + "/" + g.String() }

func (k *fakeKernel) AddMFC(s, g net.IP, parentVif int, ttls map[int]uint8) error {
	k.installed[sgKey(s, g)] = true
	return nil
}

func (k *fakeKernel) DelMFC(s, g net.IP) error {
	delete(k.installed, sgKey(s, g))
	return nil
}

const (
	origin  = 0xc0a80101 // 192.168.1.1
	mask24  = 0xffffff00
	group   = 0xe0010203 // 224.1.2.3
	vifUp   = 1
	vifDown = 2
)

func newTestCache(t *testing.T) (*Cache, *routing.Table, *fakeKernel) {
	t.Helper()
	tbl := routing.New()
	tbl.AddDirect(origin&mask24, mask24, 0, 1, []int{0, vifUp, vifDown})
	k := newFakeKernel()
	c := NewCache(tbl, Deps{
		Kernel:         k,
		VifNeighborMap: func(int) bitset.Set { return bitset.Set{} },
		VifThreshold:   func(int) uint8 { return 1 },
	})
	return c, tbl, k
}

func TestOnUpcallRejectsLocalGroups(t *testing.T) {
	c, _, k := newTestCache(t)
	c.OnUpcall(origin, 0xe0000005)
	if len(k.installed) != 0 {
		t.Fatal("local group must not be installed")
	}
}

func TestOnUpcallNoRouteQueues(t *testing.T) {
	c, _, k := newTestCache(t)
	c.OnUpcall(0x0a000001, group)
	if len(k.installed) != 0 {
		t.Fatal("source with no route must not install a kernel entry")
	}
	if _, ok := c.noRoute[group][0x0a000001]; !ok {
		t.Fatal("source should be queued on the no-route list")
	}
}

func TestOnUpcallInstallsAndRecomputesOutgoing(t *testing.T) {
	c, _, k := newTestCache(t)
	c.OnUpcall(origin, group)
	if !k.installed[sgKey(ipOf(origin), ipOf(group))] {
		t.Fatal("kernel entry not installed")
	}
	e := c.byKey[key{Origin: origin & mask24, Mask: mask24, Group: group}]
	if e == nil {
		t.Fatal("no group-table entry created")
	}
	// With no subordinate neighbors recorded and no local IGMP member,
	// neither disjunct of the outgoing-vif rule holds yet: the entry
	// starts with an empty outgoing set until a downstream router
	// poison-reverses onto it or a local join arrives.
	if !e.Outgoing.IsEmpty() {
		t.Fatal("outgoing should start empty absent subordinates or local members")
	}
}

func TestOnUpcallEmptyOutgoingSendsUpstreamPrune(t *testing.T) {
	var sent bool
	tbl := routing.New()
	gwRef := func() neighbor.Ref {
		a := neighbor.NewArena()
		_, r, _ := a.Alloc(0, 0)
		return r
	}()
	tbl.Update(routing.UpdateParams{
		Origin: origin & mask24, Mask: mask24, RawMetric: 1, VifIndex: 3, VifCost: 1,
		GatewayAddr: 0x0a0000ff, GatewayRef: gwRef,
	})
	k := newFakeKernel()
	c := NewCache(tbl, Deps{
		Kernel:                  k,
		VifNeighborMap:          func(int) bitset.Set { return bitset.Set{} },
		ConfiguredPruneLifetime: func(int) int { return 3600 },
		SendPrune: func(vifIndex int, dst, o, g uint32, lifetime uint32) {
			sent = true
		},
	})
	// No children configured (ChildVifs omitted), so Children is empty
	// and the outgoing set will be empty immediately.
	c.OnUpcall(origin, group)
	if !sent {
		t.Fatal("expected an upstream prune to be sent")
	}
}

func TestReceivePruneThenGraftRestoresState(t *testing.T) {
	tbl := routing.New()
	tbl.AddDirect(origin&mask24, mask24, 0, 1, []int{0, vifUp, vifDown})

	a := neighbor.NewArena()
	_, ref, _ := a.Alloc(0x0a000005, vifUp)
	vifNeighbors := map[int]bitset.Set{vifUp: bitset.Of(ref.Index)}

	k := newFakeKernel()
	c := NewCache(tbl, Deps{
		Kernel:         k,
		VifNeighborMap: func(v int) bitset.Set { return vifNeighbors[v] },
		VifThreshold:   func(int) uint8 { return 1 },
	})

	route := tbl.Find(origin&mask24, mask24)
	route.Subordinates.Set(ref.Index)

	c.OnUpcall(origin, group)

	c.ReceivePrune(vifUp, 0x0a000005, ref.Index, origin, group, 3600)
	e := c.byKey[key{origin & mask24, mask24, group}]
	if _, ok := e.DownstreamPrunes[ref.Index]; !ok {
		t.Fatal("prune record not recorded")
	}

	c.ReceiveGraft(vifUp, 0x0a000005, ref.Index, origin, group)
	if _, ok := e.DownstreamPrunes[ref.Index]; ok {
		t.Fatal("prune record should be cleared after graft")
	}
	if !k.installed[sgKey(ipOf(origin), ipOf(group))] {
		t.Fatal("source should be reinstalled after graft")
	}
}

func TestReceivePruneRejectsShortLifetime(t *testing.T) {
	c, _, _ := newTestCache(t)
	c.OnUpcall(origin, group)
	c.ReceivePrune(vifUp, 0x0a000005, 0, origin, group, MinPruneLife)
	e := c.byKey[key{origin & mask24, mask24, group}]
	if len(e.DownstreamPrunes) != 0 {
		t.Fatal("prune at exactly MinPruneLife must be rejected")
	}
}

func TestAgeTickExpiresDownstreamPrune(t *testing.T) {
	c, _, _ := newTestCache(t)
	c.OnUpcall(origin, group)
	c.ReceivePrune(vifUp, 0x0a000005, 7, origin, group, 100)
	c.AgeTick(100)
	e := c.byKey[key{origin & mask24, mask24, group}]
	if len(e.DownstreamPrunes) != 0 {
		t.Fatal("prune should have expired")
	}
}

func TestAgeTickDeletesQuiescentEntry(t *testing.T) {
	c, _, k := newTestCache(t)
	c.OnUpcall(origin, group)
	c.clearKernelSources(c.byKey[key{origin & mask24, mask24, group}])
	c.AgeTick(CacheLifetime + 1)
	if _, ok := c.byKey[key{origin & mask24, mask24, group}]; ok {
		t.Fatal("quiescent entry should have been removed")
	}
	if len(k.installed) != 0 {
		t.Fatal("kernel should have no entries left")
	}
}

func TestOnRouteDiscardedRemovesEntries(t *testing.T) {
	c, tbl, k := newTestCache(t)
	c.OnUpcall(origin, group)
	route := tbl.Find(origin&mask24, mask24)
	c.OnRouteDiscarded(route)
	if _, ok := c.byKey[key{origin & mask24, mask24, group}]; ok {
		t.Fatal("entry should be gone")
	}
	if len(k.installed) != 0 {
		t.Fatal("kernel entries should be torn down")
	}
}
