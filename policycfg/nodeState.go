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

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

const (
	nodeConfigPathPrefix = StateConfigPath + "nodes/"
	nodeConfigPath       = nodeConfigPathPrefix + "%s"
)

// NodeState implements the State interface for the topology facts of one
// switch: its overlay address, tunnel ports and external facing ports.
type NodeState struct {
	core.CommonState
	TunnelIP      string            `json:"tunnelIp"`
	TunnelPorts   map[string]uint32 `json:"tunnelPorts,omitempty"`
	ExternalPorts []uint32          `json:"externalPorts,omitempty"`
	// DatapathID identifies the node's switch when it connects, e.g.
	// "00:00:00:00:00:00:00:01".
	DatapathID string `json:"datapathId,omitempty"`
}

// Write the state.
func (s *NodeState) Write() error {
	key := fmt.Sprintf(nodeConfigPath, s.ID)
	return s.StateDriver.WriteState(key, s, json.Marshal)
}

// Read the state for a given identifier.
func (s *NodeState) Read(id string) error {
	key := fmt.Sprintf(nodeConfigPath, id)
	return s.StateDriver.ReadState(key, s, json.Unmarshal)
}

// ReadAll reads all state objects for the nodes.
func (s *NodeState) ReadAll() ([]core.State, error) {
	return s.StateDriver.ReadAllState(nodeConfigPathPrefix, s, json.Unmarshal)
}

// WatchAll fills a channel on each state event related to nodes.
func (s *NodeState) WatchAll(rsps chan core.WatchState) error {
	return s.StateDriver.WatchAllState(nodeConfigPathPrefix, s, json.Unmarshal,
		rsps)
}

// Clear removes the state.
func (s *NodeState) Clear() error {
	key := fmt.Sprintf(nodeConfigPath, s.ID)
	return s.StateDriver.ClearState(key)
}

// TunnelPort returns the node's port for tunnelType, false if it has none.
func (s *NodeState) TunnelPort(tunnelType string) (uint32, bool) {
	port, ok := s.TunnelPorts[tunnelType]
	return port, ok
}
