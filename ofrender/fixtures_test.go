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
	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
	"github.com/opendaylight/groupbasedpolicy-sub013/resources"
)

const (
	web1 = "bd1/00:00:00:00:00:01"
	db1  = "bd1/00:00:00:00:00:02"
	web2 = "bd1/00:00:00:00:00:03"
)

func int64p(v int64) *int64 { return &v }

func testTenant() *policycfg.TenantState {
	t := &policycfg.TenantState{
		L3Contexts:    []policycfg.L3Context{{ID: "l3-1"}},
		BridgeDomains: []policycfg.BridgeDomain{{ID: "bd1", Parent: "l3-1"}},
		FloodDomains: []policycfg.FloodDomain{{
			ID:           "fd1",
			Parent:       "bd1",
			Segmentation: &policycfg.Segmentation{VlanID: 100},
		}},
		Subnets: []policycfg.Subnet{
			{ID: "subnet1", Parent: "fd1", IPPrefix: "10.0.1.0/24", VirtualRouterIP: "10.0.1.254"},
			{ID: "subnet-nat", Parent: "fd1", IPPrefix: "192.168.50.0/24"},
		},
		EndpointGroups: []policycfg.EndpointGroup{
			{ID: "web", NetworkDomain: "subnet1"},
			{ID: "db", NetworkDomain: "subnet1"},
		},
	}
	t.ID = "tenant1"
	return t
}

func testEndpoint(id, mac, group, node string, port uint32, ips ...string) *policycfg.EndpointState {
	ep := &policycfg.EndpointState{
		MacAddress:         mac,
		IPAddresses:        ips,
		Tenant:             "tenant1",
		EndpointGroups:     []string{group},
		NetworkContainment: "subnet1",
		Location:           policycfg.Location{NodeID: node, PortNo: port},
	}
	ep.ID = id
	return ep
}

func testEndpoints() []*policycfg.EndpointState {
	ep1 := testEndpoint(web1, "00:00:00:00:00:01", "web", "node1", 3, "10.0.1.1", "fd00::1")
	ep1.NatAddress = "192.168.50.10"
	return []*policycfg.EndpointState{
		ep1,
		testEndpoint(db1, "00:00:00:00:00:02", "db", "node2", 4, "10.0.1.2"),
		testEndpoint(web2, "00:00:00:00:00:03", "web", "node1", 5, "10.0.1.3"),
	}
}

func testPolicy(rules ...policycfg.Rule) *policycfg.ResolvedPolicyState {
	p := &policycfg.ResolvedPolicyState{
		Tenant:        "tenant1",
		ConsumerGroup: "web",
		ProviderGroup: "db",
		RuleGroups: []policycfg.RuleGroup{{
			Contract: "web-to-db",
			Subject:  "mysql",
			Rules:    rules,
		}},
	}
	p.ID = "tenant1-web-db"
	return p
}

func mysqlRule() policycfg.Rule {
	return policycfg.Rule{
		Name: "allow-mysql",
		Classifiers: []policycfg.ClassifierRef{{
			Name:         "mysql",
			ClassifierID: L4ClassifierID,
			Direction:    policycfg.DirectionIn,
			Params: []policycfg.ParamValue{
				{Name: ProtoParam, IntValue: int64p(6)},
				{Name: DestPortParam, IntValue: int64p(3306)},
			},
		}},
		Actions: []policycfg.ActionRef{{ActionID: AllowActionID}},
	}
}

func testNodes() []*policycfg.NodeState {
	n1 := &policycfg.NodeState{
		TunnelIP:      "172.16.0.1",
		TunnelPorts:   map[string]uint32{"vxlan": 10},
		ExternalPorts: []uint32{20},
	}
	n1.ID = "node1"
	n2 := &policycfg.NodeState{
		TunnelIP:    "172.16.0.2",
		TunnelPorts: map[string]uint32{"vxlan": 10},
	}
	n2.ID = "node2"
	return []*policycfg.NodeState{n1, n2}
}

func testSnapshot() *policycfg.Snapshot {
	return policycfg.NewSnapshot(
		[]*policycfg.TenantState{testTenant()},
		testEndpoints(),
		[]*policycfg.ResolvedPolicyState{testPolicy(mysqlRule())},
		testNodes())
}

func testConfig() Config {
	return Config{TunnelType: "vxlan"}
}

func newTestContext(snap *policycfg.Snapshot) *OfContext {
	return NewOfContext(snap, resources.NewOrdinalAllocator(resources.DefaultOrdinalWidth),
		NewRegistry(), testConfig())
}

// syncTable runs one synthesizer over nodeID.
func syncTable(ctx *OfContext, t FlowTable, nodeID string) (*FlowMap, error) {
	fm := NewFlowMap()
	err := t.Sync(ctx, nodeID, fm)
	return fm, err
}

// flowsNamed returns the flows of fm whose id starts with name.
func flowsNamed(fm *FlowMap, table uint8, name string) []*Flow {
	flows := []*Flow{}
	for _, f := range fm.TableFlows(table) {
		if len(f.ID) > len(name) && f.ID[:len(name)+1] == name+"|" {
			flows = append(flows, f)
		}
	}
	return flows
}
