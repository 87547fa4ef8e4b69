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

package ofswitch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/opendaylight/groupbasedpolicy-sub013/ofrender"
	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
)

func loadSnapshot(t *testing.T) *policycfg.Snapshot {
	snap, err := policycfg.LoadSnapshotFile("../policycfg/testdata/snapshot.yaml")
	if err != nil {
		t.Fatalf("error loading snapshot. Err: %v", err)
	}
	return snap
}

func testFlow(table uint8, prio uint16, inPort uint32) *ofrender.Flow {
	return &ofrender.Flow{
		ID:       "test",
		Table:    table,
		Priority: prio,
		Match:    ofrender.Match{InPort: inPort},
		Instructions: []ofrender.Instruction{
			{Type: ofrender.InstrGotoTable, Table: table + 1},
		},
	}
}

func TestMemChannelAppliesRenderedTables(t *testing.T) {
	ch := NewMemChannel()
	r := ofrender.NewRenderer(ofrender.Config{TunnelType: "vxlan"},
		ofrender.StaticSource(loadSnapshot(t)), ch, nil, nil)

	if err := r.SyncAll(context.Background()); err != nil {
		t.Fatalf("error syncing. Err: %v", err)
	}
	for _, node := range []string{"node1", "node2"} {
		if n := len(ch.Flows(node)); n != r.Installed(node).NumFlows() {
			t.Fatalf("switch %s has %d flows, renderer installed %d", node, n,
				r.Installed(node).NumFlows())
		}
		if ch.Applies(node) != 1 {
			t.Fatalf("switch %s got %d applies", node, ch.Applies(node))
		}
	}

	// a second pass has nothing to send
	if err := r.SyncAll(context.Background()); err != nil {
		t.Fatalf("error resyncing. Err: %v", err)
	}
	if ch.Applies("node1") != 1 {
		t.Fatalf("idempotent pass sent a delta")
	}
}

func TestMemChannelRejectsInconsistentDelta(t *testing.T) {
	ch := NewMemChannel()
	ctx := context.Background()
	f1 := testFlow(0, 10, 1)
	group := &ofrender.Group{ID: 7, Type: ofrender.GroupTypeAll}

	err := ch.Apply(ctx, "node1", &ofrender.Delta{
		FlowsToAdd:  []*ofrender.Flow{f1},
		GroupsToAdd: []*ofrender.Group{group},
	})
	if err != nil {
		t.Fatalf("error applying. Err: %v", err)
	}

	bad := []*ofrender.Delta{
		{FlowsToRemove: []*ofrender.Flow{testFlow(0, 10, 2)}},
		{GroupsToAdd: []*ofrender.Group{group}},
		{GroupsToModify: []*ofrender.Group{{ID: 8}}},
		{GroupsToRemove: []*ofrender.Group{{ID: 8}}},
	}
	for i, delta := range bad {
		// the valid part of the delta must not be applied either
		delta.FlowsToAdd = []*ofrender.Flow{testFlow(1, 10, 3)}
		if err := ch.Apply(ctx, "node1", delta); err == nil {
			t.Fatalf("delta %d: expected an error", i)
		}
		if n := len(ch.Flows("node1")); n != 1 {
			t.Fatalf("delta %d: partially applied, %d flows", i, n)
		}
	}
	if ch.Applies("node1") != 1 {
		t.Fatalf("rejected deltas were counted")
	}
}

func TestMemChannelRemovesAndOrders(t *testing.T) {
	ch := NewMemChannel()
	ctx := context.Background()
	low, high, other := testFlow(0, 10, 1), testFlow(0, 20, 1), testFlow(1, 5, 1)

	if err := ch.Apply(ctx, "n", &ofrender.Delta{
		FlowsToAdd: []*ofrender.Flow{other, low, high},
	}); err != nil {
		t.Fatalf("error applying. Err: %v", err)
	}
	flows := ch.Flows("n")
	if flows[0] != high || flows[1] != low || flows[2] != other {
		t.Fatalf("unexpected order: %v", flows)
	}

	// removal goes by equivalence, not identity
	if err := ch.Apply(ctx, "n", &ofrender.Delta{
		FlowsToRemove: []*ofrender.Flow{testFlow(0, 10, 1)},
	}); err != nil {
		t.Fatalf("error removing. Err: %v", err)
	}
	if flows := ch.Flows("n"); len(flows) != 2 || flows[1] != other {
		t.Fatalf("unexpected flows after removal: %v", flows)
	}

	dump := ch.Dump("n")
	if len(dump) != 2 || !strings.Contains(dump[0], "priority=20") {
		t.Fatalf("unexpected dump: %v", dump)
	}
}

func TestMemChannelFailure(t *testing.T) {
	ch := NewMemChannel()
	ch.SetFailure("n", errors.New("connection reset"))
	delta := &ofrender.Delta{FlowsToAdd: []*ofrender.Flow{testFlow(0, 1, 1)}}
	if err := ch.Apply(context.Background(), "n", delta); err == nil {
		t.Fatalf("expected the injected failure")
	}
	ch.SetFailure("n", nil)
	if err := ch.Apply(context.Background(), "n", delta); err != nil {
		t.Fatalf("error after healing. Err: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ch.Apply(ctx, "n", delta); err == nil {
		t.Fatalf("expected an error on a cancelled context")
	}
}
