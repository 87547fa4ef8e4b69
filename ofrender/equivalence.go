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
	"reflect"

	"github.com/mitchellh/hashstructure"
	log "github.com/sirupsen/logrus"
)

// FlowsEquivalent tells whether two flows program the same rule. The
// instruction list and the register match list are compared as sets; the
// action list inside an instruction keeps its order since it is executed in
// order. The flow ID is not compared.
func FlowsEquivalent(a, b *Flow) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Table != b.Table || a.Priority != b.Priority {
		return false
	}
	if !matchesEquivalent(a.Match, b.Match) {
		return false
	}
	return setEqual(len(a.Instructions), len(b.Instructions), func(i, j int) bool {
		return instructionsEqual(a.Instructions[i], b.Instructions[j])
	})
}

// FlowHash is consistent with FlowsEquivalent: equivalent flows hash equal.
func FlowHash(f *Flow) uint64 {
	h, err := hashstructure.Hash(f, nil)
	if err != nil {
		log.Errorf("Error hashing flow %s. Err: %v", f.ID, err)
		return 0
	}
	return h
}

// GroupsEquivalent tells whether two groups are the same, comparing the
// bucket list as a set.
func GroupsEquivalent(a, b *Group) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.ID != b.ID || a.Type != b.Type {
		return false
	}
	return setEqual(len(a.Buckets), len(b.Buckets), func(i, j int) bool {
		return bucketsEqual(a.Buckets[i], b.Buckets[j])
	})
}

// GroupHash is consistent with GroupsEquivalent.
func GroupHash(g *Group) uint64 {
	h, err := hashstructure.Hash(g, nil)
	if err != nil {
		log.Errorf("Error hashing group %d. Err: %v", g.ID, err)
		return 0
	}
	return h
}

func matchesEquivalent(a, b Match) bool {
	aRegs, bRegs := a.Regs, b.Regs
	a.Regs, b.Regs = nil, nil
	if !reflect.DeepEqual(a, b) {
		return false
	}
	return setEqual(len(aRegs), len(bRegs), func(i, j int) bool {
		return aRegs[i] == bRegs[j]
	})
}

func instructionsEqual(a, b Instruction) bool {
	return a.Type == b.Type && a.Table == b.Table && actionsEqual(a.Actions, b.Actions)
}

func bucketsEqual(a, b Bucket) bool {
	return a.ID == b.ID && a.Weight == b.Weight && actionsEqual(a.Actions, b.Actions)
}

func actionsEqual(a, b []Action) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// setEqual compares two lists of sizes n and m as multisets, eq comparing
// element i of the first with element j of the second.
func setEqual(n, m int, eq func(i, j int) bool) bool {
	if n != m {
		return false
	}
	used := make([]bool, m)
outer:
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			if !used[j] && eq(i, j) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}
