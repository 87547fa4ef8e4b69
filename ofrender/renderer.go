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
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
	"github.com/opendaylight/groupbasedpolicy-sub013/resources"
)

// FlowChannel programs the tables of a switch. Apply either installs the
// whole delta or returns an error.
type FlowChannel interface {
	Apply(ctx context.Context, nodeID string, delta *Delta) error
}

// SnapshotSource returns the inputs of a pass.
type SnapshotSource func(ctx context.Context) (*policycfg.Snapshot, error)

// StaticSource always returns snap.
func StaticSource(snap *policycfg.Snapshot) SnapshotSource {
	return func(context.Context) (*policycfg.Snapshot, error) {
		return snap, nil
	}
}

// Renderer keeps the switches of the overlay programmed with the flows the
// current snapshot calls for. Passes over one switch run one at a time;
// passes over different switches run concurrently.
type Renderer struct {
	cfg      Config
	source   SnapshotSource
	channel  FlowChannel
	ordinals *resources.OrdinalAllocator
	registry *Registry
	tables   []FlowTable
	metrics  *Metrics

	mutex    sync.Mutex
	switches map[string]*switchManager
	runCtx   context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewRenderer returns a renderer reading its inputs from source and
// programming switches through channel. metrics may be nil.
func NewRenderer(cfg Config, source SnapshotSource, channel FlowChannel,
	ordinals *resources.OrdinalAllocator, metrics *Metrics) *Renderer {
	if ordinals == nil {
		ordinals = resources.NewOrdinalAllocator(resources.DefaultOrdinalWidth)
	}
	return &Renderer{
		cfg:      cfg,
		source:   source,
		channel:  channel,
		ordinals: ordinals,
		registry: NewRegistry(),
		tables:   DefaultTables(),
		metrics:  metrics,
		switches: map[string]*switchManager{},
	}
}

// Ordinals returns the allocator shared by every pass.
func (r *Renderer) Ordinals() *resources.OrdinalAllocator {
	return r.ordinals
}

// Collect computes the flows and groups nodeID needs under snap.
func (r *Renderer) Collect(snap *policycfg.Snapshot, nodeID string) (*FlowMap, error) {
	ctx := NewOfContext(snap, r.ordinals, r.registry, r.cfg)
	fm := NewFlowMap()
	for _, t := range r.tables {
		if err := t.Sync(ctx, nodeID, fm); err != nil {
			return nil, errors.Wrapf(err, "%s on %s", t.Name(), nodeID)
		}
	}
	return fm, nil
}

// Sync runs one pass over nodeID against a fresh snapshot.
func (r *Renderer) Sync(ctx context.Context, nodeID string) error {
	snap, err := r.source(ctx)
	if err != nil {
		return errors.Wrap(err, "reading snapshot")
	}
	return r.syncSnapshot(ctx, snap, nodeID)
}

func (r *Renderer) syncSnapshot(ctx context.Context, snap *policycfg.Snapshot, nodeID string) error {
	sw := r.switchFor(nodeID)
	sw.mutex.Lock()
	defer sw.mutex.Unlock()

	start := time.Now()
	logger := log.WithField("switch", nodeID)

	intended, err := r.Collect(snap, nodeID)
	if err != nil {
		r.metrics.observePass(resultError, nil, start)
		return err
	}

	delta := Diff(intended, sw.installed)
	if delta.Empty() {
		r.metrics.observePass(resultNoop, delta, start)
		logger.Debugf("Switch is up to date")
		return nil
	}

	if err := r.channel.Apply(ctx, nodeID, delta); err != nil {
		r.metrics.observePass(resultError, delta, start)
		return errors.Wrapf(err, "applying %s to %s", delta, nodeID)
	}
	sw.installed = intended
	r.metrics.observePass(resultSuccess, delta, start)

	logger.WithFields(log.Fields{
		"flows":  intended.NumFlows(),
		"groups": intended.NumGroups(),
	}).Infof("Synchronized switch: %s", delta)
	return nil
}

// SyncAll runs one pass over every switch of the snapshot and every switch
// synchronized before. A failing switch does not stop the others; the
// failures are returned together.
func (r *Renderer) SyncAll(ctx context.Context) error {
	snap, err := r.source(ctx)
	if err != nil {
		return errors.Wrap(err, "reading snapshot")
	}

	ids := map[string]bool{}
	for _, id := range snap.NodeIDs() {
		ids[id] = true
	}
	for _, id := range r.Nodes() {
		ids[id] = true
	}

	nodes := make([]string, 0, len(ids))
	for id := range ids {
		nodes = append(nodes, id)
	}
	errs := make([]error, len(nodes))

	var g errgroup.Group
	for i, id := range nodes {
		i, id := i, id
		g.Go(func() error {
			errs[i] = r.syncSnapshot(ctx, snap, id)
			return nil
		})
	}
	g.Wait()

	failed := []string{}
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(failed) > 0 {
		return core.Errorf("%d of %d switches failed: %s", len(failed), len(nodes),
			strings.Join(failed, "; "))
	}
	return nil
}
