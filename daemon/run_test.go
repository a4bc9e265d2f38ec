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
	"net"
	"sync"
	"testing"
	"time"

	"github.com/openmcast/dvmrpd/config"
	"github.com/openmcast/dvmrpd/kernelif"
	"github.com/openmcast/dvmrpd/routing"
	"github.com/openmcast/dvmrpd/vif"
)

// fakeTransport blocks ReadFrom until Close is called, satisfying
// Receiver without ever touching a real socket.
type fakeTransport struct {
	mu      sync.Mutex
	closed  bool
	unblock chan struct{}
	written [][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{unblock: make(chan struct{})}
}

func (f *fakeTransport) ReadFrom(buf []byte) (int, int, net.IP, error) {
	<-f.unblock
	return 0, -1, nil, net.ErrClosed
}

func (f *fakeTransport) WriteTo(b []byte, ifName string, dst net.IP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.unblock)
	}
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newTestDaemon(t *testing.T, transport Transport) *Daemon {
	t.Helper()
	d, err := New(Config{
		ConfigSource: config.Static{},
		Kernel:       kernelif.NewFake(),
		Transport:    transport,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestRunReturnsAndTearsDownOnStop(t *testing.T) {
	ft := newFakeTransport()
	d := newTestDaemon(t, ft)

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- d.Run(stop) }()

	close(stop)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after stop was closed")
	}

	if !ft.isClosed() {
		t.Fatal("transport was not closed on shutdown")
	}
	if !d.done {
		t.Fatal("daemon not marked done after Shutdown")
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	ft := newFakeTransport()
	d := newTestDaemon(t, ft)
	d.Shutdown()
	d.Shutdown() // must not panic or double-close
}

func TestShutdownPoisonsNonDirectRoutesOnly(t *testing.T) {
	ft := newFakeTransport()
	d := newTestDaemon(t, ft)

	d.vifs = append(d.vifs, vif.New(0, vif.Physical, "eth0"))
	d.routes.AddDirect(0x0a000000, 0xffffff00, 0, 1, nil)
	d.routes.Update(routing.UpdateParams{
		Origin:      0x0a010000,
		Mask:        0xffff0000,
		RawMetric:   5,
		VifIndex:    0,
		VifCost:     1,
		GatewayAddr: 0x0a000002,
	})

	d.Shutdown()

	for _, e := range d.routes.Entries() {
		if e.IsDirect {
			if e.Metric == routing.UnreachableMetric {
				t.Fatalf("directly-connected route %#x/%#x was poisoned, want untouched", e.Origin, e.Mask)
			}
			continue
		}
		if e.Metric != routing.UnreachableMetric {
			t.Fatalf("non-direct route %#x/%#x has metric %d, want UnreachableMetric", e.Origin, e.Mask, e.Metric)
		}
	}
}

func TestVifIndexForIfIndex(t *testing.T) {
	ft := newFakeTransport()
	d := newTestDaemon(t, ft)

	v0 := vif.New(0, vif.Physical, "eth0")
	v0.SetIfIndex(7)
	v1 := vif.New(1, vif.Physical, "eth1")
	v1.SetIfIndex(9)
	d.vifs = []*vif.Vif{v0, v1}

	if got := d.vifIndexForIfIndex(9); got != 1 {
		t.Fatalf("vifIndexForIfIndex(9) = %d, want 1", got)
	}
	if got := d.vifIndexForIfIndex(123); got != -1 {
		t.Fatalf("vifIndexForIfIndex(123) = %d, want -1", got)
	}
	if got := d.vifIndexForIfIndex(-1); got != -1 {
		t.Fatalf("vifIndexForIfIndex(-1) = %d, want -1", got)
	}
}

func TestAgeAdvancesByWholeSecondsOnly(t *testing.T) {
	ft := newFakeTransport()
	d := newTestDaemon(t, ft)

	id := d.timers.Set(2, func(interface{}) {}, nil)
	last := time.Now().Add(-1500 * time.Millisecond)
	d.age(&last)

	if left := d.timers.Left(id); left != 1 {
		t.Fatalf("timer left = %d after 1.5s elapsed (1 whole second), want 1", left)
	}
}
