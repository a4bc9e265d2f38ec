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
	"github.com/openmcast/dvmrpd/routing"
	"github.com/openmcast/dvmrpd/wire"
)

// onMtraceQuery answers a traceroute query: it builds this router's own
// hop record and always sends it straight to the query's response
// address. It never forwards the query toward Source, and it does not
// carry over hop records added by earlier routers; the response holds
// this router's single record only. The core never originates a trace.
func (d *Daemon) onMtraceQuery(vifIndex int, srcAddr uint32, body []byte) {
	q, err := wire.DecodeMtraceQuery(body)
	if err != nil {
		d.warnf("daemon: mtrace query on vif %d: %v", vifIndex, err)
		return
	}

	route := d.routes.FindRouteForSource(q.Source)
	hop := d.buildMtraceHop(vifIndex, route)
	d.sendMtraceResponse(vifIndex, q.RespAddr, hop)
}

func (d *Daemon) buildMtraceHop(vifIndex int, route *routing.Entry) wire.MtraceHop {
	v := d.vifByIndex(vifIndex)
	hop := wire.MtraceHop{Rproto: wire.ProtoDVMRP, Rflags: wire.TRNoRoute}
	if v != nil {
		hop.InAddr = v.LocalAddr
		hop.OutAddr = v.LocalAddr
		hop.Fttl = v.Threshold
	}
	if route != nil {
		hop.Rflags = wire.TRNoError
		hop.RmtAddr = route.GatewayAddr
		hop.Smask = uint8(maskWidth(route.Mask))
	}
	return hop
}

func maskWidth(mask uint32) int {
	n := 0
	for mask != 0 {
		n++
		mask <<= 1
	}
	return n
}

func (d *Daemon) sendMtraceResponse(vifIndex int, respAddr uint32, hop wire.MtraceHop) {
	v := d.vifByIndex(vifIndex)
	if v == nil || !v.IsUp() || d.transport == nil {
		return
	}
	body := wire.EncodeMtraceResponse(nil, hop)
	msg := buildIGMP(wire.TypeMtraceReply, 0, 0, body)
	if err := d.transport.WriteTo(msg, v.Name, ipOf(respAddr)); err != nil {
		d.warnf("daemon: mtrace response vif %d: %v", vifIndex, err)
	}
}
