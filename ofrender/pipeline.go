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

// Tables of the forwarding pipeline, in packet order.
const (
	PortSecurityTable      uint8 = 0
	IngressNatTable        uint8 = 1
	SourceMapperTable      uint8 = 2
	DestinationMapperTable uint8 = 3
	PolicyEnforcerTable    uint8 = 4
	EgressNatTable         uint8 = 5
	ExternalMapperTable    uint8 = 6
)

// Pipeline registers.
const (
	RegSrcEPG  uint8 = 0
	RegSrcCG   uint8 = 1
	RegDstEPG  uint8 = 2
	RegDstCG   uint8 = 3
	RegBD      uint8 = 4
	RegFD      uint8 = 5
	RegL3      uint8 = 6
	RegOutPort uint8 = 7
)

// ExternalTag is loaded in place of the source condition group for traffic
// that entered the switch from the overlay or through NAT.
const ExternalTag uint32 = 0xffffff

// localOnlyGroupFlag marks the flood group that skips tunnel buckets. Flood
// ordinals are 24 bits wide so the flag never collides with one.
const localOnlyGroupFlag uint32 = 1 << 31

// Flow priorities. Only the relative order within a table matters.
const (
	dropAllPriority     uint16 = 1
	passThroughPriority uint16 = 2

	portSecTunnelPriority uint16 = 300
	portSecIPv6Priority   uint16 = 122
	portSecARPPriority    uint16 = 121
	portSecIPv4Priority   uint16 = 120
	portSecDHCPPriority   uint16 = 115

	natPriority uint16 = 100

	sourceLocalPriority     uint16 = 100
	sourceTunnelPriority    uint16 = 151
	sourceBroadcastPriority uint16 = 152

	destL2Priority          uint16 = 50
	destL3Priority          uint16 = 132
	destBroadcastPriority   uint16 = 140
	destTunnelFloodPriority uint16 = 141

	policyAllowPriority      uint16 = 65000
	policyRuleTopPriority    uint16 = 64000
	policyRuleBandWidth      uint16 = 10
	policyRuleBottomPriority uint16 = 100

	externalNatVlanPriority    uint16 = 222
	externalDomainVlanPriority uint16 = 220
	externalOutputPriority     uint16 = 100
)

// Ethernet types and IP protocols understood by the synthesizers.
const (
	EthTypeIPv4 uint16 = 0x0800
	EthTypeARP  uint16 = 0x0806
	EthTypeIPv6 uint16 = 0x86dd
	ethTypeVlan uint16 = 0x8100

	IPProtoTCP  uint8 = 6
	IPProtoUDP  uint8 = 17
	IPProtoSCTP uint8 = 132

	dhcpServerPort uint16 = 67
)

// Well known addresses.
const (
	// DefaultRouterMAC is the source MAC of routed packets.
	DefaultRouterMAC = "88:f0:31:b5:12:b5"

	multicastMAC     = "01:00:00:00:00:00"
	multicastMACMask = "01:00:00:00:00:00"
)

// TableNames maps every table of the pipeline to a printable name.
var TableNames = map[uint8]string{
	PortSecurityTable:      "port-security",
	IngressNatTable:        "ingress-nat",
	SourceMapperTable:      "source-mapper",
	DestinationMapperTable: "destination-mapper",
	PolicyEnforcerTable:    "policy-enforcer",
	EgressNatTable:         "egress-nat",
	ExternalMapperTable:    "external-mapper",
}
