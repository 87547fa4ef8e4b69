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
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// switchManager serializes the passes of one switch and remembers what was
// last installed on it.
type switchManager struct {
	nodeID string

	// mutex is held for the whole Collect, Diff and Apply of a pass
	mutex     sync.Mutex
	installed *FlowMap

	// pending holds at most one queued pass
	pending chan struct{}
	running bool
}

func newSwitchManager(nodeID string) *switchManager {
	return &switchManager{
		nodeID:  nodeID,
		pending: make(chan struct{}, 1),
	}
}

// trigger queues a pass unless one is queued already.
func (sw *switchManager) trigger() {
	select {
	case sw.pending <- struct{}{}:
	default:
	}
}

// switchFor returns the manager of nodeID, creating it and, if the renderer
// is running, its worker.
func (r *Renderer) switchFor(nodeID string) *switchManager {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	sw, ok := r.switches[nodeID]
	if !ok {
		sw = newSwitchManager(nodeID)
		r.switches[nodeID] = sw
	}
	if r.runCtx != nil && !sw.running {
		r.startWorker(sw)
	}
	return sw
}

// startWorker must be called with r.mutex held.
func (r *Renderer) startWorker(sw *switchManager) {
	sw.running = true
	r.wg.Add(1)
	go r.runSwitch(r.runCtx, sw)
}

func (r *Renderer) runSwitch(ctx context.Context, sw *switchManager) {
	defer r.wg.Done()
	log.Debugf("Starting worker for switch %s", sw.nodeID)
	for {
		select {
		case <-ctx.Done():
			log.Debugf("Stopping worker for switch %s", sw.nodeID)
			return
		case <-sw.pending:
			if err := r.Sync(ctx, sw.nodeID); err != nil {
				log.Errorf("Error synchronizing switch %s. Err: %v", sw.nodeID, err)
			}
		}
	}
}

// Trigger queues a pass for each switch. A pass already running completes
// and at most one more is queued behind it, whatever the number of triggers.
func (r *Renderer) Trigger(nodeIDs ...string) {
	for _, id := range nodeIDs {
		r.switchFor(id).trigger()
	}
}

// Resync forgets what is installed on nodeID and queues a pass, so the
// next pass programs the switch from scratch. Used when a switch reconnects
// with unknown tables.
func (r *Renderer) Resync(nodeID string) {
	sw := r.switchFor(nodeID)
	sw.mutex.Lock()
	sw.installed = nil
	sw.mutex.Unlock()
	sw.trigger()
}

// Start runs one worker per known switch until ctx is done or Stop is
// called. Switches first seen later get their worker on first use.
func (r *Renderer) Start(ctx context.Context) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if r.runCtx != nil {
		return
	}
	r.runCtx, r.cancel = context.WithCancel(ctx)
	for _, sw := range r.switches {
		r.startWorker(sw)
	}
}

// Stop cancels the workers and waits for in-flight passes to finish.
func (r *Renderer) Stop() {
	r.mutex.Lock()
	cancel := r.cancel
	r.runCtx, r.cancel = nil, nil
	for _, sw := range r.switches {
		sw.running = false
	}
	r.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Nodes returns the ids of every switch the renderer has seen, sorted.
func (r *Renderer) Nodes() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	ids := make([]string, 0, len(r.switches))
	for id := range r.switches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Installed returns the set last applied to a switch, nil if none was.
func (r *Renderer) Installed(nodeID string) *FlowMap {
	r.mutex.Lock()
	sw, ok := r.switches[nodeID]
	r.mutex.Unlock()
	if !ok {
		return nil
	}
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return sw.installed
}
