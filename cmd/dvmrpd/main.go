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

// Command dvmrpd wires the daemon package to the real host kernel and
// the real network interface list: the two external collaborators
// spec.md §1 explicitly keeps out of the core. Everything in this file
// is ambient assembly; none of it is the protocol.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openmcast/dvmrpd/config"
	"github.com/openmcast/dvmrpd/daemon"
	"github.com/openmcast/dvmrpd/genid"
	"github.com/openmcast/dvmrpd/internal/logging"
	"github.com/openmcast/dvmrpd/kernelif"
	"github.com/openmcast/dvmrpd/vif"
)

func main() {
	var (
		genIDPath  = flag.String("genid-file", "/var/lib/dvmrpd/dvmrpd.genid", "path to the persisted generation-id file (spec.md §6.4)")
		debug      = flag.Bool("debug", false, "log at DEBUG level instead of the INFO default")
		ringBuffer = flag.Bool("ring-buffer", false, "keep the last 10000 log messages in memory (spec.md §7)")
	)
	flag.Parse()

	if err := run(*genIDPath, *debug, *ringBuffer); err != nil {
		log.Fatalf("dvmrpd: %v", err)
	}
}

func run(genIDPath string, debug, ringBuffer bool) error {
	if os.Geteuid() != 0 {
		return fmt.Errorf("must run as root (spec.md §7: geteuid != 0 is fatal)")
	}

	opts := []logging.Option{}
	if !debug {
		opts = append(opts, logging.WithMinLevel(logging.Info))
	}
	if ringBuffer {
		opts = append(opts, logging.WithRingBuffer())
	}
	lg := logging.New(log.New(os.Stderr, "", log.LstdFlags), opts...)

	kernel, err := kernelif.Open()
	if err != nil {
		return fmt.Errorf("kernel forwarding cache: %w", err)
	}
	defer kernel.Close()

	transport, err := kernelif.OpenTransport()
	if err != nil {
		return fmt.Errorf("raw IGMP socket: %w", err)
	}
	// Closed by Daemon.Shutdown (called from within Run) once the event
	// loop exits, not deferred here: Run's reader goroutine blocks on
	// this socket and needs it closed, from inside Run, to unblock.

	id, err := genid.Load(genIDPath, uint32(time.Now().Unix()))
	if err != nil {
		lg.Warningf("genid: %v (continuing with %d)", err, id)
	}

	candidates, err := discoverVifs()
	if err != nil {
		return fmt.Errorf("interface enumerator: %w", err)
	}

	d, err := daemon.New(daemon.Config{
		ConfigSource: config.Static{Candidates: candidates},
		Kernel:       kernel,
		Transport:    transport,
		Logger:       lg,
		GenID:        id,
	})
	if err != nil {
		return fmt.Errorf("assembling daemon: %w", err)
	}

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR1, syscall.SIGUSR2)
	go handleSignals(sig, stop, d, lg)

	lg.Noticef("dvmrpd: starting, genid=%d, %d vif candidate(s)", id, len(candidates))
	return d.Run(stop)
}

// handleSignals implements spec.md §6.5: SIGINT/SIGTERM request a
// graceful shutdown by closing stop (Run's own teardown sequence does
// the rest); SIGHUP re-reads the configuration source in place;
// SIGUSR1/SIGUSR2 are deprecated and only logged.
func handleSignals(sig <-chan os.Signal, stop chan<- struct{}, d *daemon.Daemon, lg *logging.Logger) {
	for s := range sig {
		switch s {
		case syscall.SIGINT, syscall.SIGTERM:
			lg.Noticef("dvmrpd: %s received, shutting down", s)
			close(stop)
			return
		case syscall.SIGHUP:
			lg.Noticef("dvmrpd: SIGHUP received, reloading configuration")
			if err := d.Reload(); err != nil {
				lg.Warningf("dvmrpd: reload failed: %v", err)
			}
		case syscall.SIGUSR1, syscall.SIGUSR2:
			lg.Noticef("dvmrpd: %s is deprecated and has no effect", s)
		}
	}
}

// discoverVifs is the "interface enumerator" spec.md §1 treats as an
// external collaborator: it lists every up, multicast-capable host
// interface with an IPv4 address and offers each as a physical vif
// candidate at its default metric and threshold. A real deployment
// would overlay per-interface metric/threshold/filter/ACL overrides
// from a configuration file here; file-format parsing is out of scope
// (spec.md §1 Non-goals), so every candidate uses the daemon's
// built-in defaults.
func discoverVifs() ([]config.Candidate, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []config.Candidate
	for _, ifi := range ifaces {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			v4 := ipNet.IP.To4()
			if v4 == nil {
				continue
			}
			maskV4 := net.IP(ipNet.Mask).To4()
			if maskV4 == nil {
				continue
			}
			local := binary.BigEndian.Uint32(v4)
			mask := binary.BigEndian.Uint32(maskV4)
			out = append(out, config.Candidate{
				Name:       ifi.Name,
				Kind:       vif.Physical,
				LocalAddr:  local,
				Subnet:     local & mask,
				SubnetMask: mask,
				Metric:     1,
				Threshold:  1,
				IfIndex:    ifi.Index,
			})
			break
		}
	}
	return out, nil
}
