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
)

// PortSecurity admits traffic from tunnel and external ports, and from local
// endpoint ports only with the endpoint's own MAC and addresses.
type PortSecurity struct{}

// Name of the table.
func (PortSecurity) Name() string { return TableNames[PortSecurityTable] }

// Sync writes the port security flows of nodeID.
func (PortSecurity) Sync(ctx *OfContext, nodeID string, fm *FlowMap) error {
	fm.WriteFlow(dropAllFlow(PortSecurityTable))
	next := gotoTable(IngressNatTable)

	if node := ctx.Snapshot.Node(nodeID); node != nil {
		ports := map[uint32]bool{}
		for _, p := range node.TunnelPorts {
			ports[p] = true
		}
		for _, p := range node.ExternalPorts {
			ports[p] = true
		}
		for _, p := range sortedUint32(ports) {
			fm.WriteFlow(newFlow("allow-port", PortSecurityTable, portSecTunnelPriority,
				Match{InPort: p}, next))
		}
	}

	for _, ep := range ctx.localEndpoints(nodeID) {
		mac := normalizeMAC(ep.MacAddress)
		if mac == "" || ep.Location.PortNo == 0 {
			continue
		}
		base := Match{InPort: ep.Location.PortNo, EthSrc: mac}

		arp := base
		arp.EthType = EthTypeARP
		fm.WriteFlow(newFlow("allow-arp", PortSecurityTable, portSecARPPriority, arp, next))

		dhcp := base
		dhcp.EthType = EthTypeIPv4
		dhcp.IPSrc = "0.0.0.0"
		dhcp.IPProto = IPProtoUDP
		dhcp.L4Dst = dhcpServerPort
		fm.WriteFlow(newFlow("allow-dhcp", PortSecurityTable, portSecDHCPPriority, dhcp, next))

		v4 := ep.IPv4Addresses()
		sort.Strings(v4)
		for _, ip := range v4 {
			m := base
			m.EthType = EthTypeIPv4
			m.IPSrc = ip
			fm.WriteFlow(newFlow("allow-ipv4", PortSecurityTable, portSecIPv4Priority, m, next))
		}
		v6 := ep.IPv6Addresses()
		sort.Strings(v6)
		for _, ip := range v6 {
			m := base
			m.EthType = EthTypeIPv6
			m.IPSrc = ip
			fm.WriteFlow(newFlow("allow-ipv6", PortSecurityTable, portSecIPv6Priority, m, next))
		}
	}
	return nil
}
