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

// ExternalMapper outputs traffic to the port in the out-port register and
// tags traffic leaving through an external port with its domain's VLAN.
type ExternalMapper struct{}

// Name of the table.
func (ExternalMapper) Name() string { return TableNames[ExternalMapperTable] }

// Sync writes the external mapper flows of nodeID.
func (ExternalMapper) Sync(ctx *OfContext, nodeID string, fm *FlowMap) error {
	fm.WriteFlow(dropAllFlow(ExternalMapperTable))
	output := outputRegAction(RegOutPort)
	fm.WriteFlow(newFlow("output", ExternalMapperTable, externalOutputPriority, Match{},
		applyActions(output)))

	node := ctx.Snapshot.Node(nodeID)
	for _, ep := range ctx.localEndpoints(nodeID) {
		// the NAT VLAN comes from the NAT subnet, not from the endpoint's domains
		if _, natIP, ok := natPair(ep); ok {
			if vlan, found := ctx.natVlan(ep.Tenant, natIP); found {
				m := Match{EthType: ipEthType(natIP), IPSrc: natIP}
				fm.WriteFlow(newFlow("nat-vlan", ExternalMapperTable, externalNatVlanPriority, m,
					applyActions(append(pushVlanActions(vlan), output)...)))
			}
		}

		ords, err := ctx.endpointOrdinals(ep, ExternalMapperTable)
		if err != nil {
			return err
		}
		if ords == nil {
			continue
		}

		fd := ords.FwdCtx.FloodDomain
		if node == nil || fd == nil || fd.Segmentation == nil {
			continue
		}
		for _, port := range node.ExternalPorts {
			m := Match{VlanAbsent: true}.WithReg(RegFD, ords.FD).WithReg(RegOutPort, port)
			fm.WriteFlow(newFlow("domain-vlan", ExternalMapperTable, externalDomainVlanPriority, m,
				applyActions(append(pushVlanActions(fd.Segmentation.VlanID), output)...)))
		}
	}
	return nil
}

// natVlan returns the VLAN of the flood domain holding the subnet of a NAT
// address.
func (ctx *OfContext) natVlan(tenantID, natIP string) (uint16, bool) {
	tenant := ctx.Snapshot.Tenant(tenantID)
	if tenant == nil {
		return 0, false
	}
	subnet := tenant.SubnetForIP(natIP)
	if subnet == nil {
		return 0, false
	}
	fc, err := ctx.ResolveForwardingContext(tenantID, subnet.ID)
	if err != nil || fc.FloodDomain == nil || fc.FloodDomain.Segmentation == nil {
		return 0, false
	}
	return fc.FloodDomain.Segmentation.VlanID, true
}
