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

package neighbor

import "testing"

const (
	addrA = 0x0a000001
	addrB = 0x0a000002
)

func TestNewFromProbeModernStartsWaiting(t *testing.T) {
	a := NewArena()
	n, _, err := a.NewFromProbe(addrB, 0, 3, 255)
	if err != nil {
		t.Fatal(err)
	}
	if n.State != Waiting {
		t.Fatalf("state = %v, want Waiting", n.State)
	}
}

func TestNewFromProbeLegacyStartsActive(t *testing.T) {
	a := NewArena()
	n, _, err := a.NewFromProbe(addrB, 0, 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	if n.State != Active {
		t.Fatalf("state = %v, want Active", n.State)
	}
}

func TestHandleProbeCompletesHandshake(t *testing.T) {
	a := NewArena()
	n, _, _ := a.NewFromProbe(addrB, 0, 3, 255)
	if ev := n.HandleProbe(addrA, []uint32{addrA}); ev != EventBecameActive {
		t.Fatalf("event = %v, want EventBecameActive", ev)
	}
	if n.State != Active {
		t.Fatalf("state = %v, want Active", n.State)
	}
}

func TestHandleProbeStaysWaitingWithoutOurAddr(t *testing.T) {
	a := NewArena()
	n, _, _ := a.NewFromProbe(addrB, 0, 3, 255)
	if ev := n.HandleProbe(addrA, []uint32{0x0a000099}); ev != EventNone {
		t.Fatalf("event = %v, want EventNone", ev)
	}
	if n.State != Waiting {
		t.Fatalf("state = %v, want Waiting", n.State)
	}
}

func TestHandleProbeOneWayAfterGracePeriod(t *testing.T) {
	a := NewArena()
	n, _, _ := a.NewFromProbe(addrB, 0, 3, 1)
	n.CreatedAgeSeconds = oneWayGraceSeconds + 1
	if ev := n.HandleProbe(addrA, nil); ev != EventWentOneWay {
		t.Fatalf("event = %v, want EventWentOneWay", ev)
	}
	if n.State != OneWay {
		t.Fatalf("state = %v, want OneWay", n.State)
	}
}

func TestHandleProbeWithinGracePeriodStaysActive(t *testing.T) {
	a := NewArena()
	n, _, _ := a.NewFromProbe(addrB, 0, 3, 1)
	n.CreatedAgeSeconds = oneWayGraceSeconds - 1
	if ev := n.HandleProbe(addrA, nil); ev != EventNone {
		t.Fatalf("event = %v, want EventNone", ev)
	}
	if n.State != Active {
		t.Fatalf("state = %v, want Active", n.State)
	}
}

func TestHandleProbeReturnsFromOneWay(t *testing.T) {
	a := NewArena()
	n, _, _ := a.NewFromProbe(addrB, 0, 3, 1)
	n.State = OneWay
	n.Flags |= FlagOneWay
	if ev := n.HandleProbe(addrA, []uint32{addrA}); ev != EventReturnedActive {
		t.Fatalf("event = %v, want EventReturnedActive", ev)
	}
	if n.Flags.Has(FlagOneWay) {
		t.Fatal("FlagOneWay still set after return to Active")
	}
}

func TestCheckGenIDFirstSightingNeverChanges(t *testing.T) {
	n := &Neighbor{}
	if n.CheckGenID(42) {
		t.Fatal("first sighting reported a change")
	}
	if !n.HasGenID || n.GenID != 42 {
		t.Fatal("genid not recorded")
	}
}

func TestCheckGenIDDetectsReboot(t *testing.T) {
	n := &Neighbor{HasGenID: true, GenID: 42}
	if !n.CheckGenID(43) {
		t.Fatal("genid change not detected")
	}
	if n.GenID != 43 {
		t.Fatal("genid not updated")
	}
}

func TestAgeExpiresAfterExpireSeconds(t *testing.T) {
	n := &Neighbor{HasGenID: true}
	if n.Age(modernExpireSeconds) {
		t.Fatal("expired exactly at ExpireSeconds; spec says still alive at the boundary")
	}
	if !n.Age(1) {
		t.Fatal("did not expire past ExpireSeconds")
	}
}

func TestCanPeerRespectsDontPeerFlags(t *testing.T) {
	n := &Neighbor{}
	if !n.CanPeer() {
		t.Fatal("fresh neighbor should be peerable")
	}
	n.Flags |= FlagTooOld
	if n.CanPeer() {
		t.Fatal("too-old neighbor should not be peerable")
	}
}
