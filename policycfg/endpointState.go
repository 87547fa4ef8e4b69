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

package policycfg

import (
	"encoding/json"
	"fmt"
	"net"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

const (
	endpointConfigPathPrefix = StateConfigPath + "endpoints/"
	endpointConfigPath       = endpointConfigPathPrefix + "%s"
)

// Location is the switch port an endpoint is attached to.
type Location struct {
	NodeID string `json:"nodeId"`
	PortNo uint32 `json:"portNo"`
}

// EndpointState implements the State interface for one workload attachment
// point as reported by the endpoint registry.
type EndpointState struct {
	core.CommonState
	MacAddress         string   `json:"macAddress"`
	IPAddresses        []string `json:"ipAddresses,omitempty"`
	Tenant             string   `json:"tenant"`
	EndpointGroups     []string `json:"endpointGroups"`
	Conditions         []string `json:"conditions,omitempty"`
	NetworkContainment string   `json:"networkContainment,omitempty"`
	Location           Location `json:"location"`
	NatAddress         string   `json:"natAddress,omitempty"`
}

// Write the state.
func (s *EndpointState) Write() error {
	key := fmt.Sprintf(endpointConfigPath, s.ID)
	return s.StateDriver.WriteState(key, s, json.Marshal)
}

// Read the state for a given identifier.
func (s *EndpointState) Read(id string) error {
	key := fmt.Sprintf(endpointConfigPath, id)
	return s.StateDriver.ReadState(key, s, json.Unmarshal)
}

// ReadAll reads all state objects for the endpoints.
func (s *EndpointState) ReadAll() ([]core.State, error) {
	return s.StateDriver.ReadAllState(endpointConfigPathPrefix, s, json.Unmarshal)
}

// WatchAll fills a channel on each state event related to endpoints.
func (s *EndpointState) WatchAll(rsps chan core.WatchState) error {
	return s.StateDriver.WatchAllState(endpointConfigPathPrefix, s, json.Unmarshal,
		rsps)
}

// Clear removes the state.
func (s *EndpointState) Clear() error {
	key := fmt.Sprintf(endpointConfigPath, s.ID)
	return s.StateDriver.ClearState(key)
}

// IsLocated tells whether the endpoint has been reported on a switch port.
func (s *EndpointState) IsLocated() bool {
	return s.Location.NodeID != ""
}

// IPv4Addresses returns the endpoint's IPv4 addresses.
func (s *EndpointState) IPv4Addresses() []string {
	return s.addresses(true)
}

// IPv6Addresses returns the endpoint's IPv6 addresses.
func (s *EndpointState) IPv6Addresses() []string {
	return s.addresses(false)
}

func (s *EndpointState) addresses(v4 bool) []string {
	var addrs []string
	for _, a := range s.IPAddresses {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if (ip.To4() != nil) == v4 {
			addrs = append(addrs, a)
		}
	}
	return addrs
}
