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
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

// GroupKey names an endpoint group within its tenant.
type GroupKey struct {
	Tenant string
	Group  string
}

// Snapshot is a read-only, indexed view over the records of one pass.
type Snapshot struct {
	Tenants   map[string]*TenantState
	Endpoints []*EndpointState
	Policies  []*ResolvedPolicyState
	Nodes     map[string]*NodeState

	byNode   map[string][]*EndpointState
	byGroup  map[GroupKey][]*EndpointState
	peers    map[GroupKey]map[string]bool
	byMember map[GroupKey][]*ResolvedPolicyState
}

// snapshotFile is the on-disk layout read by LoadSnapshotFile.
type snapshotFile struct {
	Tenants   []*TenantState         `json:"tenants,omitempty"`
	Endpoints []*EndpointState       `json:"endpoints,omitempty"`
	Policies  []*ResolvedPolicyState `json:"policies,omitempty"`
	Nodes     []*NodeState           `json:"nodes,omitempty"`
}

// NewSnapshot indexes the given records. Slices are sorted by id so that
// every iteration over a snapshot is deterministic.
func NewSnapshot(tenants []*TenantState, endpoints []*EndpointState,
	policies []*ResolvedPolicyState, nodes []*NodeState) *Snapshot {
	s := &Snapshot{
		Tenants:  map[string]*TenantState{},
		Nodes:    map[string]*NodeState{},
		byNode:   map[string][]*EndpointState{},
		byGroup:  map[GroupKey][]*EndpointState{},
		peers:    map[GroupKey]map[string]bool{},
		byMember: map[GroupKey][]*ResolvedPolicyState{},
	}

	for _, t := range tenants {
		s.Tenants[t.ID] = t
	}
	for _, n := range nodes {
		s.Nodes[n.ID] = n
	}

	s.Endpoints = append(s.Endpoints, endpoints...)
	sort.Slice(s.Endpoints, func(i, j int) bool { return s.Endpoints[i].ID < s.Endpoints[j].ID })
	for _, ep := range s.Endpoints {
		if ep.IsLocated() {
			s.byNode[ep.Location.NodeID] = append(s.byNode[ep.Location.NodeID], ep)
		}
		for _, g := range ep.EndpointGroups {
			key := GroupKey{Tenant: ep.Tenant, Group: g}
			s.byGroup[key] = append(s.byGroup[key], ep)
		}
	}

	s.Policies = append(s.Policies, policies...)
	sort.Slice(s.Policies, func(i, j int) bool { return s.Policies[i].ID < s.Policies[j].ID })
	for _, p := range s.Policies {
		consumer := GroupKey{Tenant: p.Tenant, Group: p.ConsumerGroup}
		provider := GroupKey{Tenant: p.Tenant, Group: p.ProviderGroup}
		s.addPeer(consumer, p.ProviderGroup)
		s.addPeer(provider, p.ConsumerGroup)
		s.byMember[consumer] = append(s.byMember[consumer], p)
		if provider != consumer {
			s.byMember[provider] = append(s.byMember[provider], p)
		}
	}

	return s
}

func (s *Snapshot) addPeer(key GroupKey, peer string) {
	if s.peers[key] == nil {
		s.peers[key] = map[string]bool{}
	}
	s.peers[key][peer] = true
}

// Tenant returns the tenant record, nil if unknown.
func (s *Snapshot) Tenant(id string) *TenantState {
	return s.Tenants[id]
}

// Node returns the node record, nil if unknown.
func (s *Snapshot) Node(id string) *NodeState {
	return s.Nodes[id]
}

// NodeIDs returns the ids of every known node, sorted.
func (s *Snapshot) NodeIDs() []string {
	ids := make([]string, 0, len(s.Nodes))
	for id := range s.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NodeForDatapath returns the id of the node whose switch has datapath id
// dpid. Ids compare case-insensitively.
func (s *Snapshot) NodeForDatapath(dpid string) (string, bool) {
	for _, id := range s.NodeIDs() {
		if strings.EqualFold(s.Nodes[id].DatapathID, dpid) && dpid != "" {
			return id, true
		}
	}
	return "", false
}

// EndpointsOnNode returns the endpoints attached to a port of nodeID.
func (s *Snapshot) EndpointsOnNode(nodeID string) []*EndpointState {
	return s.byNode[nodeID]
}

// EndpointsInGroup returns every endpoint that is a member of the group.
func (s *Snapshot) EndpointsInGroup(tenant, group string) []*EndpointState {
	return s.byGroup[GroupKey{Tenant: tenant, Group: group}]
}

// PeerGroups returns the group itself plus every group a resolved policy
// relates it to, in either role, sorted.
func (s *Snapshot) PeerGroups(tenant, group string) []string {
	groups := []string{group}
	for peer := range s.peers[GroupKey{Tenant: tenant, Group: group}] {
		if peer != group {
			groups = append(groups, peer)
		}
	}
	sort.Strings(groups[1:])
	return groups
}

// PoliciesForGroup returns the resolved policies naming the group as consumer
// or provider.
func (s *Snapshot) PoliciesForGroup(tenant, group string) []*ResolvedPolicyState {
	return s.byMember[GroupKey{Tenant: tenant, Group: group}]
}

func readAll(sType core.State) ([]core.State, error) {
	states, err := sType.ReadAll()
	if err != nil {
		// an empty prefix is reported as a missing key by the stores
		return nil, core.ErrIfKeyExists(err)
	}
	return states, nil
}

// ReadSnapshot reads every renderer record from the state store.
func ReadSnapshot(stateDriver core.StateDriver) (*Snapshot, error) {
	var (
		tenants   []*TenantState
		endpoints []*EndpointState
		policies  []*ResolvedPolicyState
		nodes     []*NodeState
	)

	states, err := readAll(&TenantState{CommonState: core.CommonState{StateDriver: stateDriver}})
	if err != nil {
		return nil, errors.Wrap(err, "reading tenants")
	}
	for _, st := range states {
		tenants = append(tenants, st.(*TenantState))
	}

	states, err = readAll(&EndpointState{CommonState: core.CommonState{StateDriver: stateDriver}})
	if err != nil {
		return nil, errors.Wrap(err, "reading endpoints")
	}
	for _, st := range states {
		endpoints = append(endpoints, st.(*EndpointState))
	}

	states, err = readAll(&ResolvedPolicyState{CommonState: core.CommonState{StateDriver: stateDriver}})
	if err != nil {
		return nil, errors.Wrap(err, "reading resolved policies")
	}
	for _, st := range states {
		policies = append(policies, st.(*ResolvedPolicyState))
	}

	states, err = readAll(&NodeState{CommonState: core.CommonState{StateDriver: stateDriver}})
	if err != nil {
		return nil, errors.Wrap(err, "reading nodes")
	}
	for _, st := range states {
		nodes = append(nodes, st.(*NodeState))
	}

	log.Debugf("Read snapshot: %d tenants, %d endpoints, %d policies, %d nodes",
		len(tenants), len(endpoints), len(policies), len(nodes))
	return NewSnapshot(tenants, endpoints, policies, nodes), nil
}

// ParseSnapshot decodes a yaml or json snapshot document.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	file := snapshotFile{}
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, errors.Wrap(err, "decoding snapshot")
	}
	return NewSnapshot(file.Tenants, file.Endpoints, file.Policies, file.Nodes), nil
}

// LoadSnapshotFile reads a snapshot document from path.
func LoadSnapshotFile(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading snapshot %s", path)
	}
	return ParseSnapshot(data)
}

// WriteSnapshot stores every record of the snapshot through stateDriver.
func WriteSnapshot(stateDriver core.StateDriver, s *Snapshot) error {
	var states []core.State
	for _, id := range sortedKeys(s.Tenants) {
		states = append(states, s.Tenants[id])
	}
	for _, ep := range s.Endpoints {
		states = append(states, ep)
	}
	for _, p := range s.Policies {
		states = append(states, p)
	}
	for _, id := range s.NodeIDs() {
		states = append(states, s.Nodes[id])
	}

	for _, st := range states {
		setStateDriver(st, stateDriver)
		if err := st.Write(); err != nil {
			return errors.Wrap(err, "writing snapshot")
		}
	}
	return nil
}

func setStateDriver(st core.State, d core.StateDriver) {
	switch v := st.(type) {
	case *TenantState:
		v.StateDriver = d
	case *EndpointState:
		v.StateDriver = d
	case *ResolvedPolicyState:
		v.StateDriver = d
	case *NodeState:
		v.StateDriver = d
	}
}

func sortedKeys(m map[string]*TenantState) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
