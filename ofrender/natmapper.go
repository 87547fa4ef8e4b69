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
	"net"

	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
)

// natPair returns the endpoint address translated to its NAT address: the
// first endpoint address of the NAT address family.
func natPair(ep *policycfg.EndpointState) (string, string, bool) {
	nat := net.ParseIP(ep.NatAddress)
	if nat == nil {
		if ep.NatAddress != "" {
			log.Warnf("Endpoint %s has an invalid NAT address %q", ep.ID, ep.NatAddress)
		}
		return "", "", false
	}
	candidates := ep.IPv6Addresses()
	if nat.To4() != nil {
		candidates = ep.IPv4Addresses()
	}
	if len(candidates) == 0 {
		return "", "", false
	}
	return candidates[0], ep.NatAddress, true
}

// IngressNat translates traffic sent to a NAT address to the address of the
// local endpoint owning it and hands it to the destination mapper as
// external traffic.
type IngressNat struct{}

// Name of the table.
func (IngressNat) Name() string { return TableNames[IngressNatTable] }

// Sync writes the ingress NAT flows of nodeID.
func (IngressNat) Sync(ctx *OfContext, nodeID string, fm *FlowMap) error {
	fm.WriteFlow(dropAllFlow(IngressNatTable))
	fm.WriteFlow(newFlow("pass-through", IngressNatTable, passThroughPriority, Match{},
		gotoTable(SourceMapperTable)))

	for _, ep := range ctx.localEndpoints(nodeID) {
		epIP, natIP, ok := natPair(ep)
		if !ok {
			continue
		}
		ords, err := ctx.endpointOrdinals(ep, IngressNatTable)
		if err != nil {
			return err
		}
		if ords == nil {
			continue
		}

		m := Match{EthType: ipEthType(natIP), IPDst: natIP}
		fm.WriteFlow(newFlow("ingress-nat", IngressNatTable, natPriority, m,
			applyActions(
				setFieldAction(FieldIPDst, epIP),
				loadRegAction(RegSrcCG, ExternalTag),
				loadRegAction(RegBD, ords.BD),
				loadRegAction(RegFD, ords.FD),
				loadRegAction(RegL3, ords.L3),
			),
			gotoTable(DestinationMapperTable)))
	}
	return nil
}

// EgressNat rewrites the source address of traffic a local endpoint sends
// out of an external port to the endpoint's NAT address.
type EgressNat struct{}

// Name of the table.
func (EgressNat) Name() string { return TableNames[EgressNatTable] }

// Sync writes the egress NAT flows of nodeID.
func (EgressNat) Sync(ctx *OfContext, nodeID string, fm *FlowMap) error {
	fm.WriteFlow(dropAllFlow(EgressNatTable))
	fm.WriteFlow(newFlow("pass-through", EgressNatTable, passThroughPriority, Match{},
		gotoTable(ExternalMapperTable)))

	node := ctx.Snapshot.Node(nodeID)
	if node == nil || len(node.ExternalPorts) == 0 {
		return nil
	}

	for _, ep := range ctx.localEndpoints(nodeID) {
		epIP, natIP, ok := natPair(ep)
		if !ok {
			continue
		}
		ords, err := ctx.endpointOrdinals(ep, EgressNatTable)
		if err != nil {
			return err
		}
		if ords == nil {
			continue
		}

		for _, port := range node.ExternalPorts {
			m := Match{EthType: ipEthType(epIP), IPSrc: epIP}.
				WithReg(RegL3, ords.L3).
				WithReg(RegOutPort, port)
			fm.WriteFlow(newFlow("egress-nat", EgressNatTable, natPriority, m,
				applyActions(setFieldAction(FieldIPSrc, natIP)),
				gotoTable(ExternalMapperTable)))
		}
	}
	return nil
}
