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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
)

// fakeChannel records applied deltas and fails for the nodes in failing.
type fakeChannel struct {
	mutex   sync.Mutex
	applied map[string][]*Delta
	failing map[string]bool
	hook    func(nodeID string)
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{applied: map[string][]*Delta{}, failing: map[string]bool{}}
}

func (f *fakeChannel) Apply(ctx context.Context, nodeID string, delta *Delta) error {
	if f.hook != nil {
		f.hook(nodeID)
	}
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if f.failing[nodeID] {
		return fmt.Errorf("switch %s unreachable", nodeID)
	}
	f.applied[nodeID] = append(f.applied[nodeID], delta)
	return nil
}

func (f *fakeChannel) setFailing(nodeID string, failing bool) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.failing[nodeID] = failing
}

func (f *fakeChannel) applies(nodeID string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return len(f.applied[nodeID])
}

// mutableSource serves the snapshot last stored and counts reads.
type mutableSource struct {
	mutex sync.Mutex
	snap  *policycfg.Snapshot
	reads int32
}

func (s *mutableSource) set(snap *policycfg.Snapshot) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.snap = snap
}

func (s *mutableSource) get(context.Context) (*policycfg.Snapshot, error) {
	atomic.AddInt32(&s.reads, 1)
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.snap, nil
}

func TestSyncIsIdempotent(t *testing.T) {
	ch := newFakeChannel()
	r := NewRenderer(testConfig(), StaticSource(testSnapshot()), ch, nil, nil)

	if err := r.Sync(context.Background(), "node1"); err != nil {
		t.Fatalf("error syncing: %v", err)
	}
	if ch.applies("node1") != 1 {
		t.Fatalf("expected one apply, got %d", ch.applies("node1"))
	}
	installed := r.Installed("node1")
	if installed == nil || len(ch.applied["node1"][0].FlowsToAdd) != installed.NumFlows() {
		t.Fatalf("first pass must install the whole set")
	}

	if err := r.Sync(context.Background(), "node1"); err != nil {
		t.Fatalf("error syncing: %v", err)
	}
	if ch.applies("node1") != 1 {
		t.Fatalf("an unchanged snapshot must not reach the switch")
	}
}

func TestSyncRemovesOnlyWhatChanged(t *testing.T) {
	src := &mutableSource{snap: testSnapshot()}
	ch := newFakeChannel()
	r := NewRenderer(testConfig(), src.get, ch, nil, nil)
	if err := r.Sync(context.Background(), "node1"); err != nil {
		t.Fatalf("error syncing: %v", err)
	}

	eps := testEndpoints()[:2]
	src.set(policycfg.NewSnapshot([]*policycfg.TenantState{testTenant()}, eps,
		[]*policycfg.ResolvedPolicyState{testPolicy(mysqlRule())}, testNodes()))
	if err := r.Sync(context.Background(), "node1"); err != nil {
		t.Fatalf("error syncing: %v", err)
	}

	delta := ch.applied["node1"][1]
	if len(delta.FlowsToAdd) != 0 || len(delta.FlowsToRemove) == 0 {
		t.Fatalf("removing an endpoint must only remove flows: %s", delta)
	}
	for _, f := range delta.FlowsToRemove {
		if f.Match.EthSrc != "00:00:00:00:00:03" && f.Match.EthDst != "00:00:00:00:00:03" &&
			f.Match.IPDst != "10.0.1.3" {
			t.Fatalf("unrelated flow removed: %s", f)
		}
	}
	if len(delta.GroupsToModify) != 2 {
		t.Fatalf("expected both flood groups to change: %s", delta)
	}
}

func TestSyncAllIsolatesFailures(t *testing.T) {
	ch := newFakeChannel()
	ch.setFailing("node2", true)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	r := NewRenderer(testConfig(), StaticSource(testSnapshot()), ch, nil, m)

	if err := r.SyncAll(context.Background()); err == nil {
		t.Fatalf("expected node2 to fail")
	}
	if r.Installed("node1") == nil {
		t.Fatalf("node1 must be synchronized despite node2")
	}
	if r.Installed("node2") != nil {
		t.Fatalf("a failed apply must not change the installed set")
	}
	if got := testutil.ToFloat64(m.passes.WithLabelValues(resultError)); got != 1 {
		t.Fatalf("expected one failed pass, got %v", got)
	}

	ch.setFailing("node2", false)
	if err := r.SyncAll(context.Background()); err != nil {
		t.Fatalf("error syncing after recovery: %v", err)
	}
	if r.Installed("node2") == nil || ch.applies("node2") != 1 {
		t.Fatalf("node2 must converge after recovery")
	}
	if ch.applies("node1") != 1 {
		t.Fatalf("node1 was already in sync")
	}
	if got := testutil.ToFloat64(m.passes.WithLabelValues(resultNoop)); got != 1 {
		t.Fatalf("expected one no-op pass, got %v", got)
	}
}

func TestSyncAllRunsSwitchesConcurrently(t *testing.T) {
	ch := newFakeChannel()
	node2Done := make(chan struct{})
	var once sync.Once
	ch.hook = func(nodeID string) {
		switch nodeID {
		case "node1":
			select {
			case <-node2Done:
			case <-time.After(5 * time.Second):
				t.Errorf("node1 pass blocked node2")
			}
		case "node2":
			once.Do(func() { close(node2Done) })
		}
	}
	r := NewRenderer(testConfig(), StaticSource(testSnapshot()), ch, nil, nil)

	if err := r.SyncAll(context.Background()); err != nil {
		t.Fatalf("error syncing: %v", err)
	}
}

func TestSyncRemovedNodeIsCleared(t *testing.T) {
	src := &mutableSource{snap: testSnapshot()}
	ch := newFakeChannel()
	r := NewRenderer(testConfig(), src.get, ch, nil, nil)
	if err := r.SyncAll(context.Background()); err != nil {
		t.Fatalf("error syncing: %v", err)
	}

	src.set(policycfg.NewSnapshot(nil, nil, nil, nil))
	if err := r.SyncAll(context.Background()); err != nil {
		t.Fatalf("error syncing: %v", err)
	}
	for _, id := range []string{"node1", "node2"} {
		if got := r.Installed(id).NumGroups(); got != 0 {
			t.Fatalf("%s still has %d groups", id, got)
		}
		if got := len(r.Installed(id).TableFlows(SourceMapperTable)); got != 1 {
			t.Fatalf("%s still has %d source flows", id, got)
		}
	}
}

func TestTriggerCoalesces(t *testing.T) {
	src := &mutableSource{snap: testSnapshot()}
	ch := newFakeChannel()
	entered := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	ch.hook = func(string) {
		first.Do(func() {
			close(entered)
			<-release
		})
	}
	r := NewRenderer(testConfig(), src.get, ch, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)
	defer r.Stop()

	r.Trigger("node1")
	<-entered
	for i := 0; i < 5; i++ {
		r.Trigger("node1")
	}
	close(release)

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&src.reads) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("queued pass never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}
	r.Stop()
	if reads := atomic.LoadInt32(&src.reads); reads != 2 {
		t.Fatalf("expected 2 passes, got %d", reads)
	}
	if ch.applies("node1") != 1 {
		t.Fatalf("the queued pass had nothing to apply")
	}
}

func TestResyncReprogramsSwitch(t *testing.T) {
	src := &mutableSource{snap: testSnapshot()}
	ch := newFakeChannel()
	r := NewRenderer(testConfig(), src.get, ch, nil, nil)
	if err := r.Sync(context.Background(), "node1"); err != nil {
		t.Fatalf("error syncing: %v", err)
	}
	installed := r.Installed("node1").NumFlows()

	// no worker is running, so the queued pass is run by hand
	r.Resync("node1")
	if r.Installed("node1") != nil {
		t.Fatalf("installed state survived a resync")
	}
	if err := r.Sync(context.Background(), "node1"); err != nil {
		t.Fatalf("error syncing: %v", err)
	}

	ch.mutex.Lock()
	last := ch.applied["node1"][len(ch.applied["node1"])-1]
	ch.mutex.Unlock()
	if len(last.FlowsToAdd) != installed || len(last.FlowsToRemove) != 0 {
		t.Fatalf("expected a full reprogram of %d flows, got %s", installed, last)
	}
}
