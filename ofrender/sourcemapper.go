/***
Copyright 2014 Cisco Systems Inc. All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package ofrender

// SourceMapper classifies traffic by source: local endpoint ports load the
// endpoint's ordinals, traffic from the overlay is classified by tunnel key.
type SourceMapper struct{}

// Name of the table.
func (SourceMapper) Name() string { return TableNames[SourceMapperTable] }

type tunnelSource struct {
	epg, bd, fd, l3, tunnelID uint32
	port                      uint32
}

// Sync writes the source mapper flows of nodeID.
func (SourceMapper) Sync(ctx *OfContext, nodeID string, fm *FlowMap) error {
	fm.WriteFlow(dropAllFlow(SourceMapperTable))
	tunPort, hasTunnel := ctx.tunnelPort(nodeID)

	seenTunnel := map[tunnelSource]bool{}
	seenFlood := map[tunnelSource]bool{}

	for _, ep := range ctx.localEndpoints(nodeID) {
		ords, err := ctx.endpointOrdinals(ep, SourceMapperTable)
		if err != nil {
			return err
		}
		if ords == nil {
			continue
		}

		if mac := normalizeMAC(ep.MacAddress); mac != "" && ep.Location.PortNo != 0 {
			m := Match{InPort: ep.Location.PortNo, EthSrc: mac}
			fm.WriteFlow(newFlow("local-source", SourceMapperTable, sourceLocalPriority, m,
				applyActions(
					loadRegAction(RegSrcEPG, ords.EPG),
					loadRegAction(RegSrcCG, ords.CG),
					loadRegAction(RegBD, ords.BD),
					loadRegAction(RegFD, ords.FD),
					loadRegAction(RegL3, ords.L3),
					setTunnelIDAction(ords.TunnelID),
				),
				gotoTable(DestinationMapperTable)))
		}

		if !hasTunnel {
			continue
		}
		for _, peer := range ctx.peerEndpoints(ep) {
			if !peer.IsLocated() || peer.Location.NodeID == nodeID {
				continue
			}
			pOrds, err := ctx.endpointOrdinals(peer, SourceMapperTable)
			if err != nil {
				return err
			}
			if pOrds == nil {
				continue
			}

			key := tunnelSource{
				epg: pOrds.EPG, bd: pOrds.BD, fd: pOrds.FD, l3: pOrds.L3,
				tunnelID: pOrds.TunnelID, port: tunPort,
			}
			if !seenTunnel[key] {
				seenTunnel[key] = true
				m := Match{InPort: tunPort, TunnelID: uint64(pOrds.TunnelID)}
				fm.WriteFlow(newFlow("tunnel-source", SourceMapperTable, sourceTunnelPriority, m,
					applyActions(
						loadRegAction(RegSrcEPG, pOrds.EPG),
						loadRegAction(RegSrcCG, ExternalTag),
						loadRegAction(RegBD, pOrds.BD),
						loadRegAction(RegFD, pOrds.FD),
						loadRegAction(RegL3, pOrds.L3),
					),
					gotoTable(DestinationMapperTable)))
			}

			if pOrds.FD == 0 {
				continue
			}
			fkey := tunnelSource{fd: pOrds.FD, tunnelID: pOrds.FloodTunnelID, port: tunPort}
			if !seenFlood[fkey] {
				seenFlood[fkey] = true
				m := Match{InPort: tunPort, TunnelID: uint64(pOrds.FloodTunnelID)}
				fm.WriteFlow(newFlow("tunnel-broadcast", SourceMapperTable, sourceBroadcastPriority, m,
					applyActions(loadRegAction(RegFD, pOrds.FD)),
					gotoTable(DestinationMapperTable)))
			}
		}
	}
	return nil
}
