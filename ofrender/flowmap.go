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
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"
)

type flowKey struct {
	table uint8
	id    string
}

// FlowMap is the flow and group set of one switch, keyed by (table, flow id)
// and group id. Flows keep the order they were written in, so the drop-all
// flow written first by every table is also applied first.
type FlowMap struct {
	flows      map[flowKey]*Flow
	order      []flowKey
	groups     map[uint32]*Group
	groupOrder []uint32
}

// NewFlowMap returns an empty set.
func NewFlowMap() *FlowMap {
	return &FlowMap{
		flows:  map[flowKey]*Flow{},
		groups: map[uint32]*Group{},
	}
}

// WriteFlow adds f. Writing a flow whose id is already present is a no-op;
// synthesizers meet the same flow repeatedly when endpoints share groups.
func (fm *FlowMap) WriteFlow(f *Flow) {
	key := flowKey{table: f.Table, id: f.ID}
	if prev, ok := fm.flows[key]; ok {
		if !FlowsEquivalent(prev, f) {
			log.Warnf("Conflicting flows for id %q in table %d, keeping %s", f.ID, f.Table, prev)
		}
		return
	}
	fm.flows[key] = f
	fm.order = append(fm.order, key)
}

// WriteGroup adds g, replacing a group with the same id.
func (fm *FlowMap) WriteGroup(g *Group) {
	if _, ok := fm.groups[g.ID]; !ok {
		fm.groupOrder = append(fm.groupOrder, g.ID)
	}
	fm.groups[g.ID] = g
}

// Flow returns the flow with id in table, nil if absent.
func (fm *FlowMap) Flow(table uint8, id string) *Flow {
	return fm.flows[flowKey{table: table, id: id}]
}

// Group returns the group with id, nil if absent.
func (fm *FlowMap) Group(id uint32) *Group {
	return fm.groups[id]
}

// Flows returns every flow in write order.
func (fm *FlowMap) Flows() []*Flow {
	flows := make([]*Flow, 0, len(fm.order))
	for _, key := range fm.order {
		flows = append(flows, fm.flows[key])
	}
	return flows
}

// TableFlows returns the flows of one table in write order.
func (fm *FlowMap) TableFlows(table uint8) []*Flow {
	flows := []*Flow{}
	for _, key := range fm.order {
		if key.table == table {
			flows = append(flows, fm.flows[key])
		}
	}
	return flows
}

// Tables returns the ids of the tables holding at least one flow, sorted.
func (fm *FlowMap) Tables() []uint8 {
	seen := map[uint8]bool{}
	tables := []uint8{}
	for _, key := range fm.order {
		if !seen[key.table] {
			seen[key.table] = true
			tables = append(tables, key.table)
		}
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i] < tables[j] })
	return tables
}

// Groups returns every group in write order.
func (fm *FlowMap) Groups() []*Group {
	groups := make([]*Group, 0, len(fm.groupOrder))
	for _, id := range fm.groupOrder {
		groups = append(groups, fm.groups[id])
	}
	return groups
}

// NumFlows is the number of flows in the set.
func (fm *FlowMap) NumFlows() int {
	return len(fm.order)
}

// NumGroups is the number of groups in the set.
func (fm *FlowMap) NumGroups() int {
	return len(fm.groupOrder)
}

// Delta is the change that turns an installed set into an intended one.
type Delta struct {
	FlowsToRemove  []*Flow  `json:"flowsToRemove,omitempty"`
	FlowsToAdd     []*Flow  `json:"flowsToAdd,omitempty"`
	GroupsToAdd    []*Group `json:"groupsToAdd,omitempty"`
	GroupsToModify []*Group `json:"groupsToModify,omitempty"`
	GroupsToRemove []*Group `json:"groupsToRemove,omitempty"`
}

// Empty tells whether applying the delta would change nothing.
func (d *Delta) Empty() bool {
	return len(d.FlowsToRemove) == 0 && len(d.FlowsToAdd) == 0 &&
		len(d.GroupsToAdd) == 0 && len(d.GroupsToModify) == 0 && len(d.GroupsToRemove) == 0
}

func (d *Delta) String() string {
	return fmt.Sprintf("flows +%d -%d, groups +%d ~%d -%d", len(d.FlowsToAdd), len(d.FlowsToRemove),
		len(d.GroupsToAdd), len(d.GroupsToModify), len(d.GroupsToRemove))
}

// Diff computes the flows and groups to add and remove so that installed
// becomes equivalent to intended. A nil installed set is empty.
func Diff(intended, installed *FlowMap) *Delta {
	if installed == nil {
		installed = NewFlowMap()
	}
	delta := &Delta{}

	// bucket installed flows by table and hash, then match intended flows
	// against the bucket one to one
	type bucketKey struct {
		table uint8
		hash  uint64
	}
	buckets := map[bucketKey][]*Flow{}
	matched := map[*Flow]bool{}
	for _, f := range installed.Flows() {
		key := bucketKey{table: f.Table, hash: FlowHash(f)}
		buckets[key] = append(buckets[key], f)
	}

	for _, f := range intended.Flows() {
		found := false
		for _, candidate := range buckets[bucketKey{table: f.Table, hash: FlowHash(f)}] {
			if !matched[candidate] && FlowsEquivalent(f, candidate) {
				matched[candidate] = true
				found = true
				break
			}
		}
		if !found {
			delta.FlowsToAdd = append(delta.FlowsToAdd, f)
		}
	}
	for _, f := range installed.Flows() {
		if !matched[f] {
			delta.FlowsToRemove = append(delta.FlowsToRemove, f)
		}
	}

	for _, g := range intended.Groups() {
		prev := installed.Group(g.ID)
		if prev == nil {
			delta.GroupsToAdd = append(delta.GroupsToAdd, g)
		} else if !GroupsEquivalent(prev, g) {
			delta.GroupsToModify = append(delta.GroupsToModify, g)
		}
	}
	for _, g := range installed.Groups() {
		if intended.Group(g.ID) == nil {
			delta.GroupsToRemove = append(delta.GroupsToRemove, g)
		}
	}

	return delta
}
