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

// Package policycfg holds the records the renderer consumes: tenant forwarding
// contexts, endpoint locations, resolved policies and node topology. They are
// written by the policy and topology layers and are read-only to the renderer.
package policycfg

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

const (
	// StateConfigPath is the root of every record read by the renderer.
	StateConfigPath = "/contiv.io/ofrenderer/"

	tenantConfigPathPrefix = StateConfigPath + "tenants/"
	tenantConfigPath       = tenantConfigPathPrefix + "%s"
)

// L3Context is a routing domain.
type L3Context struct {
	ID string `json:"id"`
}

// BridgeDomain is a layer 2 domain inside a routing domain.
type BridgeDomain struct {
	ID     string `json:"id"`
	Parent string `json:"parent"`
}

// Segmentation carries the VLAN used when a flood domain leaves the overlay.
type Segmentation struct {
	VlanID uint16 `json:"vlanId"`
}

// FloodDomain is a broadcast domain inside a bridge domain.
type FloodDomain struct {
	ID           string        `json:"id"`
	Parent       string        `json:"parent"`
	Segmentation *Segmentation `json:"segmentation,omitempty"`
}

// Subnet is an IP prefix whose parent is a flood, bridge or routing domain.
type Subnet struct {
	ID              string `json:"id"`
	Parent          string `json:"parent"`
	IPPrefix        string `json:"ipPrefix"`
	VirtualRouterIP string `json:"virtualRouterIp,omitempty"`
}

// EndpointGroup references the network domain its endpoints attach to.
type EndpointGroup struct {
	ID            string `json:"id"`
	NetworkDomain string `json:"networkDomain"`
}

// TenantState implements the State interface for one tenant's forwarding
// contexts and endpoint groups.
type TenantState struct {
	core.CommonState
	L3Contexts     []L3Context     `json:"l3Contexts,omitempty"`
	BridgeDomains  []BridgeDomain  `json:"bridgeDomains,omitempty"`
	FloodDomains   []FloodDomain   `json:"floodDomains,omitempty"`
	Subnets        []Subnet        `json:"subnets,omitempty"`
	EndpointGroups []EndpointGroup `json:"endpointGroups,omitempty"`
}

// Write the state.
func (s *TenantState) Write() error {
	key := fmt.Sprintf(tenantConfigPath, s.ID)
	return s.StateDriver.WriteState(key, s, json.Marshal)
}

// Read the state for a given identifier.
func (s *TenantState) Read(id string) error {
	key := fmt.Sprintf(tenantConfigPath, id)
	return s.StateDriver.ReadState(key, s, json.Unmarshal)
}

// ReadAll reads all state objects for the tenants.
func (s *TenantState) ReadAll() ([]core.State, error) {
	return s.StateDriver.ReadAllState(tenantConfigPathPrefix, s, json.Unmarshal)
}

// WatchAll fills a channel on each state event related to tenants.
func (s *TenantState) WatchAll(rsps chan core.WatchState) error {
	return s.StateDriver.WatchAllState(tenantConfigPathPrefix, s, json.Unmarshal,
		rsps)
}

// Clear removes the state.
func (s *TenantState) Clear() error {
	key := fmt.Sprintf(tenantConfigPath, s.ID)
	return s.StateDriver.ClearState(key)
}

// L3Context looks up a routing domain by id.
func (s *TenantState) L3Context(id string) *L3Context {
	for i := range s.L3Contexts {
		if s.L3Contexts[i].ID == id {
			return &s.L3Contexts[i]
		}
	}
	return nil
}

// BridgeDomain looks up a bridge domain by id.
func (s *TenantState) BridgeDomain(id string) *BridgeDomain {
	for i := range s.BridgeDomains {
		if s.BridgeDomains[i].ID == id {
			return &s.BridgeDomains[i]
		}
	}
	return nil
}

// FloodDomain looks up a flood domain by id.
func (s *TenantState) FloodDomain(id string) *FloodDomain {
	for i := range s.FloodDomains {
		if s.FloodDomains[i].ID == id {
			return &s.FloodDomains[i]
		}
	}
	return nil
}

// Subnet looks up a subnet by id.
func (s *TenantState) Subnet(id string) *Subnet {
	for i := range s.Subnets {
		if s.Subnets[i].ID == id {
			return &s.Subnets[i]
		}
	}
	return nil
}

// EndpointGroup looks up an endpoint group by id.
func (s *TenantState) EndpointGroup(id string) *EndpointGroup {
	for i := range s.EndpointGroups {
		if s.EndpointGroups[i].ID == id {
			return &s.EndpointGroups[i]
		}
	}
	return nil
}

// SubnetForIP returns the subnet whose prefix holds ip, nil if none does.
func (s *TenantState) SubnetForIP(ip string) *Subnet {
	addr := net.ParseIP(ip)
	if addr == nil {
		return nil
	}
	for i := range s.Subnets {
		_, prefix, err := net.ParseCIDR(s.Subnets[i].IPPrefix)
		if err != nil {
			continue
		}
		if prefix.Contains(addr) {
			return &s.Subnets[i]
		}
	}
	return nil
}
