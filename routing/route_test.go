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

package routing

import (
	"testing"

	"github.com/openmcast/dvmrpd/neighbor"
)

const (
	origin192 = 0xc0a80100 // 192.168.1.0
	mask24    = 0xffffff00
)

func refFor(idx int) neighbor.Ref {
	a := neighbor.NewArena()
	for i := 0; i < idx; i++ {
		a.Alloc(0, 0)
	}
	_, r, _ := a.Alloc(0, 0)
	return r
}

func TestValidSubnet(t *testing.T) {
	if !ValidSubnet(origin192, mask24) {
		t.Fatal("want valid")
	}
	if ValidSubnet(0xc0a80101, mask24) {
		t.Fatal("origin outside mask must be invalid")
	}
	if ValidSubnet(0, 0) {
		t.Fatal("zero mask must be invalid")
	}
	if ValidSubnet(origin192, 0xff00ffff) {
		t.Fatal("non-contiguous mask must be invalid")
	}
}

func TestUpdateCreatesRoute(t *testing.T) {
	tbl := New()
	gw := refFor(0)
	e, poisoned := tbl.Update(UpdateParams{
		Origin: origin192, Mask: mask24, RawMetric: 5,
		VifIndex: 1, VifCost: 1, GatewayAddr: 0x0a000002, GatewayRef: gw,
		ChildVifs: []int{0, 1, 2},
	})
	if poisoned {
		t.Fatal("raw metric 5 must not be poisoned")
	}
	if e == nil || e.Metric != 6 {
		t.Fatalf("entry = %+v", e)
	}
	if e.Children.IsSet(1) {
		t.Fatal("parent vif must not be a child")
	}
	if !e.Children.IsSet(0) || !e.Children.IsSet(2) {
		t.Fatal("non-parent vifs should default to children")
	}
}

func TestUpdateRefreshFromSameGatewayChangesMetric(t *testing.T) {
	tbl := New()
	gw := refFor(0)
	tbl.Update(UpdateParams{Origin: origin192, Mask: mask24, RawMetric: 5, VifIndex: 1, VifCost: 1, GatewayAddr: 0x0a000002, GatewayRef: gw})
	e, _ := tbl.Update(UpdateParams{Origin: origin192, Mask: mask24, RawMetric: 8, VifIndex: 1, VifCost: 1, GatewayAddr: 0x0a000002, GatewayRef: gw})
	if e.Metric != 9 || !e.Changed {
		t.Fatalf("entry = %+v", e)
	}
}

func TestUpdatePoisonReverseMetric63(t *testing.T) {
	tbl := New()
	gwA := refFor(0)
	tbl.Update(UpdateParams{Origin: origin192, Mask: mask24, RawMetric: 5, VifIndex: 1, VifCost: 1, GatewayAddr: 0x0a000002, GatewayRef: gwA})

	gwB := refFor(1)
	e, poisoned := tbl.Update(UpdateParams{Origin: origin192, Mask: mask24, RawMetric: 63, VifIndex: 2, VifCost: 1, GatewayAddr: 0x0a000003, GatewayRef: gwB})
	if !poisoned {
		t.Fatal("metric 63 must decode as poisoned")
	}
	if !e.Subordinates.IsSet(gwB.Index) {
		t.Fatal("poisoned neighbor must be marked subordinate")
	}
}

func TestAgeTickExpiresAndDiscards(t *testing.T) {
	tbl := New()
	gw := refFor(0)
	tbl.Update(UpdateParams{Origin: origin192, Mask: mask24, RawMetric: 5, VifIndex: 1, VifCost: 1, GatewayAddr: 0x0a000002, GatewayRef: gw})

	tbl.AgeTick(ExpireTime, false)
	e := tbl.Find(origin192, mask24)
	if e.Metric != UnreachableMetric {
		t.Fatalf("metric = %d, want UnreachableMetric", e.Metric)
	}

	var discarded []*Entry
	tbl.SetObserver(discardRecorder{&discarded})
	tbl.AgeTick(DiscardTime-ExpireTime, false)
	if len(discarded) != 1 {
		t.Fatalf("discarded = %d, want 1", len(discarded))
	}
	if tbl.Find(origin192, mask24) != nil {
		t.Fatal("route should be gone from the table")
	}
}

type discardRecorder struct{ out *[]*Entry }

func (discardRecorder) OnParentChange(*Entry, uint32) {}
func (d discardRecorder) OnRouteDiscarded(e *Entry)    { *d.out = append(*d.out, e) }

func TestDirectRouteNeverExpires(t *testing.T) {
	tbl := New()
	tbl.AddDirect(origin192, mask24, 0, 1, []int{0, 1})
	tbl.AgeTick(DiscardTime*10, false)
	if tbl.Find(origin192, mask24) == nil {
		t.Fatal("direct route must survive aging")
	}
}

func TestDeleteNeighborFromRoutes(t *testing.T) {
	tbl := New()
	gw := refFor(0)
	tbl.Update(UpdateParams{Origin: origin192, Mask: mask24, RawMetric: 5, VifIndex: 1, VifCost: 1, GatewayAddr: 0x0a000002, GatewayRef: gw})
	tbl.DeleteNeighborFromRoutes(gw, 0x0a000002)
	e := tbl.Find(origin192, mask24)
	if e.Metric != UnreachableMetric {
		t.Fatalf("metric = %d, want UnreachableMetric after gateway failure", e.Metric)
	}
}

func TestReportRoutesPoisonReverseOnParentVif(t *testing.T) {
	tbl := New()
	gw := refFor(0)
	tbl.Update(UpdateParams{Origin: origin192, Mask: mask24, RawMetric: 5, VifIndex: 1, VifCost: 1, GatewayAddr: 0x0a000002, GatewayRef: gw})
	routes := tbl.ReportRoutes(1, nil)
	if len(routes) != 1 || routes[0].Metric != 6+UnreachableMetric {
		t.Fatalf("routes = %+v", routes)
	}
	routes = tbl.ReportRoutes(2, nil)
	if len(routes) != 1 || routes[0].Metric != 6 {
		t.Fatalf("routes = %+v", routes)
	}
}

func TestChunkerCoversWholeTableAcrossLaps(t *testing.T) {
	tbl := New()
	gw := refFor(0)
	for i := 0; i < 5; i++ {
		origin := origin192 + uint32(i)<<8
		tbl.Update(UpdateParams{Origin: origin, Mask: mask24, RawMetric: 5, VifIndex: 1, VifCost: 1, GatewayAddr: 0x0a000002, GatewayRef: gw})
	}
	c := tbl.NewChunker(2, nil)
	seen := 0
	for lap := 0; lap < 20; lap++ {
		chunk, done := c.Next(8) // small budget forces multiple chunks per lap
		seen += len(chunk)
		if done {
			break
		}
	}
	if seen != 5 {
		t.Fatalf("seen = %d, want 5", seen)
	}
}
