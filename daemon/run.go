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
	"time"

	"github.com/openmcast/dvmrpd/routing"
)

// inboundPacket is one datagram handed from the reader goroutine to
// Run's single processing goroutine.
type inboundPacket struct {
	vifIndex int
	data     []byte
}

// pollInterval bounds how long Run ever waits without checking the
// timer queue, mirroring the original poll(2)-with-timeout loop
// (spec.md §5) in a channel-based shape: the blocking kernel read lives
// on its own goroutine (Go has no portable "poll on a raw socket or a
// channel" primitive), but every packet it hands over and every timer
// tick is still processed by the single Run goroutine, in order,
// to completion — the property spec.md §5 actually requires.
const pollInterval = time.Second

// Run starts the event loop described in spec.md §5: it arms the
// fast/slow timers and every up vif's probe timer, then alternates
// between draining received packets and aging the timer queue by
// measured wall-clock deltas, until stop is closed or the transport
// reports a fatal read error. Run blocks until the loop exits, and
// always runs Shutdown's graceful-teardown sequence before returning
// (spec.md §6.5's SIGINT/SIGTERM behavior), so callers that want a
// restart instead of an exit should call Reload after stop is closed
// rather than relying on Run's return to mean "process should exit."
func (d *Daemon) Run(stop <-chan struct{}) error {
	d.startTimers()

	pkts := make(chan inboundPacket, 64)
	readErrs := make(chan error, 1)
	if d.transport != nil {
		go d.readLoop(pkts, readErrs)
	}

	last := time.Now()
	var runErr error

loop:
	for {
		delay := d.timers.NextDelay()
		wait := pollInterval
		if delay >= 0 && time.Duration(delay)*time.Second < wait {
			wait = time.Duration(delay) * time.Second
		}
		timerC := time.After(wait)

		select {
		case <-stop:
			break loop
		case err := <-readErrs:
			runErr = err
			break loop
		case p := <-pkts:
			d.age(&last)
			d.dispatcher.Dispatch(p.vifIndex, p.data)
		case <-timerC:
			d.age(&last)
		}
	}

	d.Shutdown()
	return runErr
}

// age feeds the timer queue the whole-second portion of the elapsed
// wall-clock time since *last, advancing *last by exactly that many
// seconds so fractional remainders accumulate rather than being
// dropped (spec.md §5: "elapsed wall-clock time... is delivered to the
// timer queue").
func (d *Daemon) age(last *time.Time) {
	now := time.Now()
	elapsed := int(now.Sub(*last) / time.Second)
	if elapsed <= 0 {
		return
	}
	*last = (*last).Add(time.Duration(elapsed) * time.Second)
	d.timers.Age(elapsed)
}

// readLoop blocks on the transport's inbound side, resolving each
// packet's kernel interface index to a vif index before handing it to
// Run. A packet on an interface with no matching vif (torn down
// between read and resolution, or simply not ours) is dropped. Any
// read error is treated as fatal: a raw socket does not fail
// transiently except via ENETDOWN on send, which is handled entirely
// on the send path (spec.md §7 "Transient-retry").
func (d *Daemon) readLoop(pkts chan<- inboundPacket, errs chan<- error) {
	buf := make([]byte, 65536)
	for {
		n, ifIndex, _, err := d.transport.ReadFrom(buf)
		if err != nil {
			errs <- err
			return
		}
		vifIndex := d.vifIndexForIfIndex(ifIndex)
		if vifIndex < 0 {
			continue
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		pkts <- inboundPacket{vifIndex: vifIndex, data: cp}
	}
}

// vifIndexForIfIndex maps a host network-interface index, as reported
// by the transport's control message, to this daemon's vif index, or
// -1 if no vif is backed by it. The vif's up/down state is not checked.
func (d *Daemon) vifIndexForIfIndex(ifIndex int) int {
	if ifIndex < 0 {
		return -1
	}
	for _, v := range d.vifs {
		if v.IfIndex() == ifIndex {
			return v.Index
		}
	}
	return -1
}

// closer is satisfied by a transport that holds a real socket; Shutdown
// uses it without depending on *kernelif.Transport directly.
type closer interface {
	Close() error
}

// Shutdown implements spec.md §6.5's SIGINT/SIGTERM behavior: every
// non-direct route is marked unreachable and a final report carrying
// that is broadcast on every up vif, every kernel forwarding-cache
// entry is torn down, and the transport is closed so Run's reader
// goroutine unblocks. Safe to call more than once; the second call is
// a no-op.
func (d *Daemon) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return
	}
	d.done = true

	for _, e := range d.routes.Entries() {
		if !e.IsDirect {
			e.Metric = routing.UnreachableMetric
		}
	}
	for _, v := range d.vifs {
		if !v.IsUp() {
			continue
		}
		d.sendReportChunk(v.Index, d.routes.ReportRoutes(v.Index, v.Filter))
	}

	d.cache.Teardown()

	// The transport, not the kernel forwarding-cache handle, is closed
	// here: Run's reader goroutine is blocked in Transport.ReadFrom and
	// needs the socket closed to unblock and exit. The kernel
	// collaborator was opened by the caller (cmd/dvmrpd) and is closed
	// there too, symmetric with its own open call.
	if c, ok := d.transport.(closer); ok {
		c.Close()
	}
}

// Reload implements spec.md §6.5's SIGHUP behavior: re-reads the
// configuration source and installs any newly offered vif, without
// tearing down existing routes, neighbors, or cache entries (spec.md
// §6.3 "disjoint from already-installed vifs"). A full rebuild, as
// spec.md §1's Non-goals call for on "dynamic interface add/remove",
// is done by constructing a fresh Daemon via New rather than by
// mutating one in place; Reload only covers the additive case the
// original implementation's restart path always also handled inline.
func (d *Daemon) Reload() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loadVifs()
}
