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

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
)

// DestinationMapper resolves the destination group and output port of
// unicast traffic, routes between subnets of a routing domain and floods
// broadcast traffic through the flood domain groups.
type DestinationMapper struct{}

// Name of the table.
func (DestinationMapper) Name() string { return TableNames[DestinationMapperTable] }

// outputActions returns the actions sending traffic toward dst as seen from
// nodeID; ok is false when dst cannot be reached from the node.
func (ctx *OfContext) outputActions(nodeID string, dst *policycfg.EndpointState) ([]Action, bool) {
	if !dst.IsLocated() {
		port, ok := ctx.externalPort(nodeID)
		if !ok {
			return nil, false
		}
		return []Action{loadRegAction(RegOutPort, port)}, true
	}
	if dst.Location.NodeID == nodeID {
		if dst.Location.PortNo == 0 {
			return nil, false
		}
		return []Action{loadRegAction(RegOutPort, dst.Location.PortNo)}, true
	}

	tunPort, ok := ctx.tunnelPort(nodeID)
	if !ok {
		return nil, false
	}
	remote := ctx.Snapshot.Node(dst.Location.NodeID)
	if remote == nil || remote.TunnelIP == "" {
		log.Debugf("Skipping endpoint %s: node %q has no tunnel address", dst.ID, dst.Location.NodeID)
		return nil, false
	}
	return []Action{
		setFieldAction(FieldTunnelDst, remote.TunnelIP),
		loadRegAction(RegOutPort, tunPort),
	}, true
}

// externalPort returns the port of nodeID leading to endpoints outside the
// overlay. A destination flow carries a single out port, so with several
// external ports the lowest numbered one is used.
func (ctx *OfContext) externalPort(nodeID string) (uint32, bool) {
	node := ctx.Snapshot.Node(nodeID)
	if node == nil || len(node.ExternalPorts) == 0 {
		return 0, false
	}
	port := node.ExternalPorts[0]
	for _, p := range node.ExternalPorts[1:] {
		if p < port {
			port = p
		}
	}
	return port, true
}

// Sync writes the destination mapper flows of nodeID.
func (DestinationMapper) Sync(ctx *OfContext, nodeID string, fm *FlowMap) error {
	fm.WriteFlow(dropAllFlow(DestinationMapperTable))
	next := gotoTable(PolicyEnforcerTable)

	localFDs := map[uint32]bool{}
	for _, ep := range ctx.localEndpoints(nodeID) {
		ords, err := ctx.endpointOrdinals(ep, DestinationMapperTable)
		if err != nil {
			return err
		}
		if ords == nil {
			continue
		}
		if ords.FD != 0 {
			localFDs[ords.FD] = true
		}

		for _, dst := range ctx.peerEndpoints(ep) {
			dOrds, err := ctx.endpointOrdinals(dst, DestinationMapperTable)
			if err != nil {
				return err
			}
			if dOrds == nil {
				continue
			}
			out, ok := ctx.outputActions(nodeID, dst)
			if !ok {
				continue
			}
			mac := normalizeMAC(dst.MacAddress)
			if mac == "" {
				continue
			}

			l2 := []Action{
				loadRegAction(RegDstEPG, dOrds.EPG),
				loadRegAction(RegDstCG, dOrds.CG),
			}
			fm.WriteFlow(newFlow("l2-destination", DestinationMapperTable, destL2Priority,
				Match{EthDst: mac}.WithReg(RegBD, dOrds.BD),
				applyActions(append(l2, out...)...), next))

			subnet := dOrds.FwdCtx.Subnet
			if subnet == nil || subnet.VirtualRouterIP == "" {
				continue
			}
			addrs := append([]string(nil), dst.IPAddresses...)
			sort.Strings(addrs)
			for _, ip := range addrs {
				ethType := ipEthType(ip)
				if ethType == 0 {
					continue
				}
				l3 := []Action{
					setFieldAction(FieldEthSrc, ctx.Config.RouterMAC),
					setFieldAction(FieldEthDst, mac),
					decTTLAction(),
					loadRegAction(RegDstEPG, dOrds.EPG),
					loadRegAction(RegDstCG, dOrds.CG),
					loadRegAction(RegBD, dOrds.BD),
					loadRegAction(RegFD, dOrds.FD),
				}
				fm.WriteFlow(newFlow("l3-destination", DestinationMapperTable, destL3Priority,
					Match{EthType: ethType, IPDst: ip}.WithReg(RegL3, dOrds.L3),
					applyActions(append(l3, out...)...), next))
			}
		}
	}

	tunPort, hasTunnel := ctx.tunnelPort(nodeID)
	for _, fd := range sortedUint32(localFDs) {
		m := Match{EthDst: multicastMAC, EthDstMask: multicastMACMask}.WithReg(RegFD, fd)
		fm.WriteFlow(newFlow("broadcast", DestinationMapperTable, destBroadcastPriority, m,
			applyActions(groupAction(fd))))
		if hasTunnel {
			tm := m.clone()
			tm.InPort = tunPort
			fm.WriteFlow(newFlow("tunnel-broadcast", DestinationMapperTable, destTunnelFloodPriority, tm,
				applyActions(groupAction(fd|localOnlyGroupFlag))))
		}
	}
	return nil
}
