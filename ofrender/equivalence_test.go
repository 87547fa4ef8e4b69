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
	"testing"
)

func sampleFlow() *Flow {
	m := Match{EthType: EthTypeIPv4, IPDst: "10.0.1.2"}.WithReg(RegL3, 1).WithReg(RegBD, 2)
	return newFlow("l3", DestinationMapperTable, destL3Priority, m,
		applyActions(
			setFieldAction(FieldEthSrc, DefaultRouterMAC),
			decTTLAction(),
			loadRegAction(RegOutPort, 5),
		),
		gotoTable(PolicyEnforcerTable))
}

func TestFlowsEquivalentPermutations(t *testing.T) {
	a := sampleFlow()

	b := sampleFlow()
	b.ID = "another id"
	b.Match.Regs = []RegMatch{b.Match.Regs[1], b.Match.Regs[0]}
	b.Instructions = []Instruction{b.Instructions[1], b.Instructions[0]}

	if !FlowsEquivalent(a, b) || !FlowsEquivalent(b, a) {
		t.Fatalf("permuted flows must be equivalent:\n%s\n%s", a, b)
	}
	if FlowHash(a) != FlowHash(b) {
		t.Fatalf("equivalent flows hash differently")
	}
}

func TestFlowsNotEquivalent(t *testing.T) {
	a := sampleFlow()
	for name, mutate := range map[string]func(f *Flow){
		"priority": func(f *Flow) { f.Priority++ },
		"table":    func(f *Flow) { f.Table = PolicyEnforcerTable },
		"match":    func(f *Flow) { f.Match.IPDst = "10.0.1.3" },
		"register": func(f *Flow) { f.Match = f.Match.WithReg(RegL3, 9) },
		"action order": func(f *Flow) {
			acts := f.Instructions[0].Actions
			f.Instructions[0].Actions = []Action{acts[1], acts[0], acts[2]}
		},
		"missing instruction": func(f *Flow) { f.Instructions = f.Instructions[:1] },
	} {
		b := sampleFlow()
		mutate(b)
		if FlowsEquivalent(a, b) || FlowsEquivalent(b, a) {
			t.Fatalf("%s: flows must differ", name)
		}
	}

	if FlowsEquivalent(a, nil) || !FlowsEquivalent(nil, nil) {
		t.Fatalf("nil handling broken")
	}
}

func TestGroupsEquivalent(t *testing.T) {
	a := &Group{ID: 7, Type: GroupTypeAll, Buckets: []Bucket{
		{ID: 1, Actions: []Action{outputAction(1)}},
		{ID: 2, Actions: []Action{setFieldAction(FieldTunnelDst, "10.1.1.1"), outputAction(10)}},
	}}
	b := &Group{ID: 7, Type: GroupTypeAll, Buckets: []Bucket{a.Buckets[1], a.Buckets[0]}}

	if !GroupsEquivalent(a, b) || !GroupsEquivalent(b, a) {
		t.Fatalf("bucket order must not matter")
	}
	if GroupHash(a) != GroupHash(b) {
		t.Fatalf("equivalent groups hash differently")
	}

	c := &Group{ID: 7, Type: GroupTypeAll, Buckets: a.Buckets[:1]}
	if GroupsEquivalent(a, c) {
		t.Fatalf("groups with different buckets must differ")
	}
}

func TestDiffMinimal(t *testing.T) {
	installed := NewFlowMap()
	installed.WriteFlow(dropAllFlow(DestinationMapperTable))
	installed.WriteFlow(sampleFlow())
	stale := newFlow("stale", DestinationMapperTable, destL2Priority, Match{EthDst: "00:00:00:00:00:09"})
	installed.WriteFlow(stale)
	installed.WriteGroup(&Group{ID: 1, Type: GroupTypeAll, Buckets: []Bucket{{ID: 1, Actions: []Action{outputAction(1)}}}})
	installed.WriteGroup(&Group{ID: 2, Type: GroupTypeAll})

	intended := NewFlowMap()
	intended.WriteFlow(dropAllFlow(DestinationMapperTable))
	permuted := sampleFlow()
	permuted.Instructions = []Instruction{permuted.Instructions[1], permuted.Instructions[0]}
	intended.WriteFlow(permuted)
	fresh := newFlow("fresh", DestinationMapperTable, destL2Priority, Match{EthDst: "00:00:00:00:00:0a"})
	intended.WriteFlow(fresh)
	intended.WriteGroup(&Group{ID: 1, Type: GroupTypeAll, Buckets: []Bucket{{ID: 2, Actions: []Action{outputAction(2)}}}})
	intended.WriteGroup(&Group{ID: 3, Type: GroupTypeAll})

	delta := Diff(intended, installed)
	if len(delta.FlowsToAdd) != 1 || delta.FlowsToAdd[0] != fresh {
		t.Fatalf("unexpected flows to add: %v", delta.FlowsToAdd)
	}
	if len(delta.FlowsToRemove) != 1 || delta.FlowsToRemove[0] != stale {
		t.Fatalf("unexpected flows to remove: %v", delta.FlowsToRemove)
	}
	if len(delta.GroupsToModify) != 1 || delta.GroupsToModify[0].ID != 1 {
		t.Fatalf("unexpected groups to modify: %v", delta.GroupsToModify)
	}
	if len(delta.GroupsToAdd) != 1 || delta.GroupsToAdd[0].ID != 3 {
		t.Fatalf("unexpected groups to add: %v", delta.GroupsToAdd)
	}
	if len(delta.GroupsToRemove) != 1 || delta.GroupsToRemove[0].ID != 2 {
		t.Fatalf("unexpected groups to remove: %v", delta.GroupsToRemove)
	}

	if d := Diff(intended, intended); !d.Empty() {
		t.Fatalf("a set must not differ from itself: %s", d)
	}
	if d := Diff(installed, nil); len(d.FlowsToAdd) != installed.NumFlows() {
		t.Fatalf("diff against nothing must add everything: %s", d)
	}
}

func TestWriteFlowDuplicateKeepsFirst(t *testing.T) {
	fm := NewFlowMap()
	first := sampleFlow()
	fm.WriteFlow(first)
	fm.WriteFlow(sampleFlow())
	if fm.NumFlows() != 1 || fm.Flow(first.Table, first.ID) != first {
		t.Fatalf("duplicate flow id must be a no-op")
	}
}
