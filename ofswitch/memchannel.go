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

// Package ofswitch holds the southbound channels that program switches with
// the deltas computed by the renderer.
package ofswitch

import (
	"context"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
	"github.com/opendaylight/groupbasedpolicy-sub013/ofrender"
)

type memSwitch struct {
	flows   []*ofrender.Flow
	groups  map[uint32]*ofrender.Group
	applies int
}

// MemChannel keeps the tables of every switch in memory. It backs unit
// tests and the dry-run render command. A delta is applied whole or not at
// all.
type MemChannel struct {
	mutex    sync.Mutex
	switches map[string]*memSwitch
	failures map[string]error
}

// NewMemChannel returns a channel with no switches.
func NewMemChannel() *MemChannel {
	return &MemChannel{
		switches: map[string]*memSwitch{},
		failures: map[string]error{},
	}
}

// SetFailure makes every Apply to nodeID fail with err; a nil err heals it.
func (c *MemChannel) SetFailure(nodeID string, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err == nil {
		delete(c.failures, nodeID)
		return
	}
	c.failures[nodeID] = err
}

func (c *MemChannel) switchFor(nodeID string) *memSwitch {
	sw, ok := c.switches[nodeID]
	if !ok {
		sw = &memSwitch{groups: map[uint32]*ofrender.Group{}}
		c.switches[nodeID] = sw
	}
	return sw
}

func indexOf(flows []*ofrender.Flow, f *ofrender.Flow, skip map[int]bool) int {
	for i, candidate := range flows {
		if !skip[i] && ofrender.FlowsEquivalent(candidate, f) {
			return i
		}
	}
	return -1
}

// Apply installs delta on nodeID.
func (c *MemChannel) Apply(ctx context.Context, nodeID string, delta *ofrender.Delta) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err, ok := c.failures[nodeID]; ok {
		return err
	}
	sw := c.switchFor(nodeID)

	removed := map[int]bool{}
	for _, f := range delta.FlowsToRemove {
		i := indexOf(sw.flows, f, removed)
		if i < 0 {
			return core.Errorf("switch %s has no flow %s", nodeID, f)
		}
		removed[i] = true
	}
	for _, g := range delta.GroupsToAdd {
		if _, ok := sw.groups[g.ID]; ok {
			return core.Errorf("switch %s already has group %d", nodeID, g.ID)
		}
	}
	for _, g := range delta.GroupsToModify {
		if _, ok := sw.groups[g.ID]; !ok {
			return core.Errorf("switch %s has no group %d to modify", nodeID, g.ID)
		}
	}
	for _, g := range delta.GroupsToRemove {
		if _, ok := sw.groups[g.ID]; !ok {
			return core.Errorf("switch %s has no group %d to remove", nodeID, g.ID)
		}
	}

	flows := make([]*ofrender.Flow, 0, len(sw.flows)-len(removed)+len(delta.FlowsToAdd))
	for i, f := range sw.flows {
		if !removed[i] {
			flows = append(flows, f)
		}
	}
	sw.flows = append(flows, delta.FlowsToAdd...)
	for _, g := range delta.GroupsToAdd {
		sw.groups[g.ID] = g
	}
	for _, g := range delta.GroupsToModify {
		sw.groups[g.ID] = g
	}
	for _, g := range delta.GroupsToRemove {
		delete(sw.groups, g.ID)
	}
	sw.applies++

	log.Debugf("Applied %s to in-memory switch %s", delta, nodeID)
	return nil
}

// Flows returns the flows of nodeID ordered by table, then by descending
// priority, then by their rendering.
func (c *MemChannel) Flows(nodeID string) []*ofrender.Flow {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	sw, ok := c.switches[nodeID]
	if !ok {
		return nil
	}

	flows := append([]*ofrender.Flow(nil), sw.flows...)
	sort.SliceStable(flows, func(i, j int) bool {
		if flows[i].Table != flows[j].Table {
			return flows[i].Table < flows[j].Table
		}
		if flows[i].Priority != flows[j].Priority {
			return flows[i].Priority > flows[j].Priority
		}
		return flows[i].String() < flows[j].String()
	})
	return flows
}

// Groups returns the groups of nodeID ordered by id.
func (c *MemChannel) Groups(nodeID string) []*ofrender.Group {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	sw, ok := c.switches[nodeID]
	if !ok {
		return nil
	}

	groups := make([]*ofrender.Group, 0, len(sw.groups))
	for _, g := range sw.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups
}

// Applies returns the number of deltas applied to nodeID.
func (c *MemChannel) Applies(nodeID string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if sw, ok := c.switches[nodeID]; ok {
		return sw.applies
	}
	return 0
}

// Dump renders the tables of nodeID one flow or group per line.
func (c *MemChannel) Dump(nodeID string) []string {
	lines := []string{}
	for _, f := range c.Flows(nodeID) {
		lines = append(lines, f.String())
	}
	for _, g := range c.Groups(nodeID) {
		lines = append(lines, g.String())
	}
	return lines
}
