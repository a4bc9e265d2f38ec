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

package kernelif

import (
	"fmt"
	"net"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// igmpProtocol is IPPROTO_IGMP: both DVMRP and IGMP messages ride
// directly on IP, with no UDP/TCP framing.
const igmpProtocol = 2

// Transport is the raw IGMP socket every DVMRP and IGMP message this
// daemon sends or receives travels over, wrapped the way
// icmp.ListenPacket + the matching x/net IPv{4,6}PacketConn wraps an
// ICMPv6 NDP socket: one long-lived connection with typed request
// helpers layered over it (spec.md §6.2's join/leave/set_ttl/set_loop).
type Transport struct {
	pc   net.PacketConn
	conn *ipv4.PacketConn
}

// OpenTransport opens the raw IGMP socket and requests the per-packet
// control messages (inbound interface, TTL) the dispatch package needs
// to classify traffic.
func OpenTransport() (*Transport, error) {
	pc, err := icmp.ListenPacket(fmt.Sprintf("ip4:%d", igmpProtocol), "0.0.0.0")
	if err != nil {
		return nil, fmt.Errorf("kernelif: listen: %w", err)
	}
	conn := pc.IPv4PacketConn()
	if conn == nil {
		pc.Close()
		return nil, fmt.Errorf("kernelif: not an IPv4 packet conn")
	}
	if err := conn.SetControlMessage(ipv4.FlagInterface|ipv4.FlagTTL|ipv4.FlagDst, true); err != nil {
		pc.Close()
		return nil, fmt.Errorf("kernelif: SetControlMessage: %w", err)
	}
	return &Transport{pc: pc, conn: conn}, nil
}

// Close releases the socket.
func (t *Transport) Close() error { return t.pc.Close() }

// JoinGroup joins group on the interface named ifName (spec.md §6.2
// "join").
func (t *Transport) JoinGroup(ifName string, group net.IP) error {
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return fmt.Errorf("kernelif: %s: %w", ifName, err)
	}
	return t.conn.JoinGroup(ifi, &net.IPAddr{IP: group})
}

// LeaveGroup leaves group on the interface named ifName (spec.md §6.2
// "leave").
func (t *Transport) LeaveGroup(ifName string, group net.IP) error {
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return fmt.Errorf("kernelif: %s: %w", ifName, err)
	}
	return t.conn.LeaveGroup(ifi, &net.IPAddr{IP: group})
}

// SetMulticastTTL sets the outbound multicast TTL for every packet
// sent on this socket to ttl (spec.md §6.2 "set_ttl"). Nothing in this
// module calls it, so the socket keeps its default.
func (t *Transport) SetMulticastTTL(ttl int) error {
	return t.conn.SetMulticastTTL(ttl)
}

// SetMulticastLoopback controls whether this daemon hears its own
// transmissions looped back (spec.md §6.2 "set_loop"). Nothing in this
// module calls it, so the socket keeps its default.
func (t *Transport) SetMulticastLoopback(on bool) error {
	return t.conn.SetMulticastLoopback(on)
}

// ReadFrom reads one packet, returning its payload, the inbound vif's
// system interface index (-1 if unknown), and the sender's address.
func (t *Transport) ReadFrom(buf []byte) (n int, ifIndex int, src net.IP, err error) {
	n, cm, srcAddr, err := t.conn.ReadFrom(buf)
	if err != nil {
		return 0, -1, nil, err
	}
	ifIndex = -1
	if cm != nil {
		ifIndex = cm.IfIndex
	}
	ip, _ := srcAddr.(*net.IPAddr)
	if ip == nil {
		return n, ifIndex, nil, nil
	}
	return n, ifIndex, ip.IP, nil
}

// WriteTo sends b to dst out the interface named ifName.
func (t *Transport) WriteTo(b []byte, ifName string, dst net.IP) error {
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return fmt.Errorf("kernelif: %s: %w", ifName, err)
	}
	cm := &ipv4.ControlMessage{IfIndex: ifi.Index}
	_, err = t.conn.WriteTo(b, cm, &net.IPAddr{IP: dst})
	return err
}
