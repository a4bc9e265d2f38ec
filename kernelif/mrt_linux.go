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

//+build linux

package kernelif

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Linux's IPv4 multicast routing ioctl surface (linux/mroute.h). There
// is no cgo header import available, so the option numbers and the
// vifctl/mfcctl wire layouts are reproduced here by hand, the same way
// this module's wire package hand-rolls every DVMRP/IGMP layout.
const (
	maxVifs = 32
	mrtBase = 200

	mrtInit    = mrtBase
	mrtDone    = mrtBase + 1
	mrtAddVif  = mrtBase + 2
	mrtDelVif  = mrtBase + 3
	mrtAddMFC  = mrtBase + 4
	mrtDelMFC  = mrtBase + 5
	mrtVersion = mrtBase + 6
	mrtAssert  = mrtBase + 7

	vifFlagTunnel = 0x1
)

// vifctlLen and mfcctlLen are sizeof(struct vifctl)/sizeof(struct
// mfcctl) on every architecture Go supports: every field is already
// naturally aligned except mfcctl's trailing pkt_cnt/byte_cnt/wrong_if/
// expire block, which needs 2 bytes of padding after the 32-byte ttls
// array to reach 4-byte alignment.
const (
	vifctlLen = 16
	mfcctlLen = 60
)

// Router is the real kernel multicast-forwarding handle: one raw IGMP
// socket carrying every MRT_* option this daemon issues (spec.md
// §6.2). It satisfies forwarding.Kernel.
type Router struct {
	fd int
}

// Open creates the raw IGMP socket and issues MRT_INIT, switching on
// the kernel's IPv4 multicast forwarding for this process.
func Open() (*Router, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_IGMP)
	if err != nil {
		return nil, fmt.Errorf("kernelif: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, mrtInit, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("kernelif: MRT_INIT: %w", err)
	}
	return &Router{fd: fd}, nil
}

// Close issues MRT_DONE and releases the socket.
func (r *Router) Close() error {
	unix.SetsockoptInt(r.fd, unix.IPPROTO_IP, mrtDone, 0)
	return unix.Close(r.fd)
}

// FD returns the raw socket descriptor. Kernel upcalls (no-route,
// wrong-vif, whole-packet) arrive as reads on this socket. Nothing in
// this module calls FD or reads from this socket.
func (r *Router) FD() int { return r.fd }

// AddVif installs vif index vifIndex's kernel slot: its TTL scoping
// threshold, and for a tunnel, the remote endpoint that makes this an
// IP-in-IP virtual interface rather than a physical one.
func (r *Router) AddVif(vifIndex int, threshold uint8, isTunnel bool, localAddr, remoteAddr net.IP) error {
	var flags uint8
	if isTunnel {
		flags |= vifFlagTunnel
	}
	buf := make([]byte, vifctlLen)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(vifIndex))
	buf[2] = flags
	buf[3] = threshold
	// buf[4:8] left zero: no rate limiting.
	copy(buf[8:12], to4(localAddr))
	copy(buf[12:16], to4(remoteAddr))
	return unix.SetsockoptString(r.fd, unix.IPPROTO_IP, mrtAddVif, string(buf))
}

// DelVif removes vif index vifIndex's kernel slot.
func (r *Router) DelVif(vifIndex int) error {
	buf := make([]byte, vifctlLen)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(vifIndex))
	return unix.SetsockoptString(r.fd, unix.IPPROTO_IP, mrtDelVif, string(buf))
}

// AddMFC installs or updates a forwarding-cache entry, satisfying
// forwarding.Kernel. ttlThresholds is expanded here into the kernel's
// fixed-size MAXVIFS ttl vector; a vif absent from the map is left at
// 0, the kernel's own "never forward out here" convention.
func (r *Router) AddMFC(source, group net.IP, parentVif int, ttlThresholds map[int]uint8) error {
	return r.setMFC(mrtAddMFC, source, group, parentVif, ttlThresholds)
}

// DelMFC removes a forwarding-cache entry.
func (r *Router) DelMFC(source, group net.IP) error {
	return r.setMFC(mrtDelMFC, source, group, 0, nil)
}

func (r *Router) setMFC(opt int, source, group net.IP, parentVif int, ttlThresholds map[int]uint8) error {
	buf := make([]byte, mfcctlLen)
	copy(buf[0:4], to4(source))
	copy(buf[4:8], to4(group))
	binary.LittleEndian.PutUint16(buf[8:10], uint16(parentVif))
	for vif, ttl := range ttlThresholds {
		if vif >= 0 && vif < maxVifs {
			buf[10+vif] = ttl
		}
	}
	// buf[42:44] padding, buf[44:60] pkt/byte/wrong-if counters and
	// expire are all left zero: the kernel only consumes them on a
	// MRT_ADD_MFC that's actually a proxy/expiring entry, which this
	// daemon never installs.
	return unix.SetsockoptString(r.fd, unix.IPPROTO_IP, opt, string(buf))
}

func to4(ip net.IP) []byte {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return make([]byte, 4)
}
