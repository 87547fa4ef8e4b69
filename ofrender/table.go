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
	"sort"
	"strings"
)

// FlowTable synthesizes the flows (or groups) one pipeline stage needs on a
// node. Sync writes the table's drop-all flow before any other flow.
type FlowTable interface {
	Name() string
	Sync(ctx *OfContext, nodeID string, fm *FlowMap) error
}

// DefaultTables returns the synthesizers of the pipeline in table order,
// followed by the group table.
func DefaultTables() []FlowTable {
	return []FlowTable{
		PortSecurity{},
		IngressNat{},
		SourceMapper{},
		DestinationMapper{},
		PolicyEnforcer{},
		EgressNat{},
		ExternalMapper{},
		GroupTable{},
	}
}

func normalizeMAC(mac string) string {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return ""
	}
	return strings.ToLower(hw.String())
}

// ipEthType returns the ethertype of an address, 0 if it is not one.
func ipEthType(addr string) uint16 {
	ip := net.ParseIP(addr)
	if ip == nil {
		return 0
	}
	if ip.To4() != nil {
		return EthTypeIPv4
	}
	return EthTypeIPv6
}

func sortedUint32(set map[uint32]bool) []uint32 {
	list := make([]uint32, 0, len(set))
	for v := range set {
		list = append(list, v)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}
