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

// Package daemon wires every other package in this module into the
// single-threaded cooperative router spec.md §5 describes: one event
// loop that drains the raw IGMP socket, ages the timer queue by
// measured elapsed seconds, and reacts to SIGINT/SIGTERM/SIGHUP
// (spec.md §6.5). Every other package in this module is a pure state
// machine or codec; this is the only package that owns a goroutine.
package daemon

import (
	"fmt"
	"net"
	"sync"

	"github.com/openmcast/dvmrpd/config"
	"github.com/openmcast/dvmrpd/dispatch"
	"github.com/openmcast/dvmrpd/forwarding"
	"github.com/openmcast/dvmrpd/igmp"
	"github.com/openmcast/dvmrpd/internal/logging"
	"github.com/openmcast/dvmrpd/neighbor"
	"github.com/openmcast/dvmrpd/routing"
	"github.com/openmcast/dvmrpd/timer"
	"github.com/openmcast/dvmrpd/vif"
)

// Sender is the outbound half of the kernel transport: write one
// packet out a named interface toward dst. Satisfied by
// *kernelif.Transport in production and by a fake in tests.
type Sender interface {
	WriteTo(b []byte, ifName string, dst net.IP) error
}

// Receiver is the inbound half: read one packet, reporting which host
// interface it arrived on (-1 if unknown — mapped to a vif by IfIndex).
type Receiver interface {
	ReadFrom(buf []byte) (n int, ifIndex int, src net.IP, err error)
}

// Transport is the full duplex the event loop drives.
type Transport interface {
	Sender
	Receiver
}

// Config assembles a Daemon. Every field mirrors one of spec.md §6's
// external collaborators; Daemon depends on none of their concrete
// types, the same interface-at-the-boundary shape the teacher's
// ovsdb.Client/ovs.Client split uses.
type Config struct {
	ConfigSource config.Source
	Kernel       forwarding.Kernel
	Transport    Transport
	Logger       *logging.Logger

	// GenID is this run's generation id, already resolved by the
	// caller via genid.Load (spec.md §6.4) or genid.Bump on restart.
	GenID uint32
}

// Daemon is the assembled router: every table from spec.md §3 plus the
// glue that drives them from received packets and timer expiry.
type Daemon struct {
	mu sync.Mutex

	cfgSource config.Source
	kernel    forwarding.Kernel
	transport Transport
	log       *logging.Logger

	genID uint32

	vifs []*vif.Vif

	neighbors *neighbor.Arena
	routes    *routing.Table
	cache     *forwarding.Cache
	igmpVifs  map[int]*igmp.VifState
	chunkers  map[int]*routing.Chunker

	dispatcher *dispatch.Dispatcher
	timers     *timer.Queue

	// vifsWithNeighbors counts up-vifs with at least one Active peer;
	// reaching zero means we are a leaf (spec.md §4.5 "Activation
	// side-effects").
	vifsWithNeighbors int

	fastTimerID int
	slowTimerID int
	slowTickOdd bool // toggles so subordinate timeout fires every *other* slow tick (spec.md §9)

	probeTimerID map[int]int // per-vif NEIGHBOR_PROBE_INTERVAL timer
	leafTimerID  map[int]int

	// changeReportsSuppressed coalesces route-change storms: once a
	// change report has gone out this slow-tick interval, further
	// changes wait for the next one (spec.md §4.2 "delay_change_reports").
	changeReportsSuppressed bool

	shutdown chan struct{}
	done     bool
}

func (d *Daemon) warnf(format string, args ...interface{}) {
	if d.log != nil {
		d.log.Warningf(format, args...)
	}
}

func (d *Daemon) infof(format string, args ...interface{}) {
	if d.log != nil {
		d.log.Infof(format, args...)
	}
}

// New assembles a Daemon from cfg and installs the vif candidates its
// configuration source currently offers (spec.md §6.3). It does not
// start the event loop; call Run for that.
func New(cfg Config) (*Daemon, error) {
	if cfg.ConfigSource == nil {
		return nil, fmt.Errorf("daemon: Config.ConfigSource is required")
	}
	if cfg.Kernel == nil {
		return nil, fmt.Errorf("daemon: Config.Kernel is required")
	}

	d := &Daemon{
		cfgSource:    cfg.ConfigSource,
		kernel:       cfg.Kernel,
		transport:    cfg.Transport,
		log:          cfg.Logger,
		genID:        cfg.GenID,
		neighbors:    neighbor.NewArena(),
		routes:       routing.New(),
		igmpVifs:     make(map[int]*igmp.VifState),
		chunkers:     make(map[int]*routing.Chunker),
		probeTimerID: make(map[int]int),
		leafTimerID:  make(map[int]int),
		timers:       timer.New(),
		shutdown:     make(chan struct{}),
	}

	d.cache = forwarding.NewCache(d.routes, forwarding.Deps{
		Kernel:                  d.kernel,
		VifNeighborMap:          d.vifNeighborMap,
		VifThreshold:            d.vifThreshold,
		VifScoped:               d.vifScoped,
		LocalMember:             d.localMember,
		ConfiguredPruneLifetime: d.configuredPruneLifetime,
		NeighborTooOld:          d.neighborTooOld,
		VifRetransmitPrunes:     d.vifRetransmitPrunes,
		SendPrune:               d.sendPrune,
		SendGraft:               d.sendGraft,
		SendGraftAck:            d.sendGraftAck,
	})

	d.dispatcher = dispatch.New(dispatch.Deps{
		OnUpcall:      d.cache.OnUpcall,
		OnQuery:       d.onQuery,
		OnV1V2Report:  d.onV1V2Report,
		OnV3Report:    d.onV3Report,
		OnLeave:       d.onLeave,
		OnDVMRP:       d.onDVMRP,
		OnMtraceQuery: d.onMtraceQuery,
		Logger:        cfg.Logger,
	})

	if err := d.loadVifs(); err != nil {
		return nil, err
	}
	return d, nil
}

// vifByIndex returns the vif at index, or nil.
func (d *Daemon) vifByIndex(index int) *vif.Vif {
	for _, v := range d.vifs {
		if v.Index == index {
			return v
		}
	}
	return nil
}

// loadVifs asks the configuration source for candidates, resolves them
// against whatever is already installed (spec.md §6.3's disjointness
// rule), and installs the accepted ones as directly-connected routes.
func (d *Daemon) loadVifs() error {
	candidates, err := d.cfgSource.Vifs()
	if err != nil {
		return fmt.Errorf("daemon: config source: %w", err)
	}
	accepted, skipped := config.Resolve(candidates, d.vifs)
	for _, reason := range skipped {
		d.warnf("daemon: %s", reason)
	}

	allUp := make([]int, 0, len(d.vifs)+len(accepted))
	for _, v := range d.vifs {
		if v.IsUp() {
			allUp = append(allUp, v.Index)
		}
	}

	for _, c := range accepted {
		idx := len(d.vifs)
		v := config.Build(idx, c)
		d.vifs = append(d.vifs, v)
		d.igmpVifs[idx] = igmp.NewVifState(v.LocalAddr, vifIGMPMode(v))
		if v.IsUp() {
			allUp = append(allUp, idx)
		}
	}

	for _, v := range d.vifs {
		if v.Kind != vif.Physical || v.Subnet == 0 {
			continue
		}
		if d.routes.Find(v.Subnet, v.SubnetMask) != nil {
			continue
		}
		d.routes.AddDirect(v.Subnet, v.SubnetMask, v.Index, v.Metric, allUp)
	}
	return nil
}

// vifIGMPMode derives an igmp.Mode from a vif's configured flags.
func vifIGMPMode(v *vif.Vif) igmp.Mode {
	switch {
	case v.Flags.Has(vif.FlagIGMPv1):
		return igmp.ModeV1
	case v.Flags.Has(vif.FlagIGMPv2):
		return igmp.ModeV2
	default:
		return igmp.ModeV3
	}
}

// vifNeighborMap, vifThreshold, vifScoped, localMember,
// configuredPruneLifetime, neighborTooOld and vifRetransmitPrunes
// (defined in vifdeps.go) implement forwarding.Deps's vif-table
// lookups as closures over the live vif slice, keeping forwarding free
// of any import on vif.
