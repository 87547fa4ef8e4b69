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

// Package rendererd runs the renderer as a service: it follows the state
// store, keeps the switches programmed and serves inspection and metrics
// endpoints.
package rendererd

import (
	"context"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
	"github.com/opendaylight/groupbasedpolicy-sub013/ofrender"
	"github.com/opendaylight/groupbasedpolicy-sub013/ofswitch"
	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
	"github.com/opendaylight/groupbasedpolicy-sub013/utils"
)

const watchBuffer = 64

// Daemon keeps the switches of the cluster, or of one node when HostLabel
// is set, programmed with the policy held in the state store.
type Daemon struct {
	cfg         utils.RendererConfigs
	stateDriver core.StateDriver

	renderer   *ofrender.Renderer
	registry   *prometheus.Registry
	memChannel *ofswitch.MemChannel
	controller *ofswitch.Controller

	watchBackoff func() backoff.BackOff

	mutex    sync.Mutex
	listener net.Listener
}

// NewDaemon builds a daemon reading from stateDriver. Without a controller
// address the switches are simulated in memory.
func NewDaemon(cfg *utils.RendererConfigs, stateDriver core.StateDriver) *Daemon {
	d := &Daemon{
		cfg:          *cfg,
		stateDriver:  stateDriver,
		registry:     prometheus.NewRegistry(),
		watchBackoff: defaultWatchBackoff,
	}

	var channel ofrender.FlowChannel
	if cfg.ControllerURL == "" {
		log.Infof("No openflow listen address, switches are simulated in memory")
		d.memChannel = ofswitch.NewMemChannel()
		channel = d.memChannel
	} else {
		ofChannel := ofswitch.NewOpenflowChannel()
		d.controller = ofswitch.NewController(ofChannel, d.nodeForDatapath, d.switchConnected)
		channel = ofChannel
	}

	d.renderer = ofrender.NewRenderer(ofrender.Config{TunnelType: cfg.TunnelType},
		d.readSnapshot, channel, nil, ofrender.NewMetrics(d.registry))
	return d
}

// Renderer returns the renderer driven by the daemon.
func (d *Daemon) Renderer() *ofrender.Renderer {
	return d.renderer
}

func (d *Daemon) readSnapshot(ctx context.Context) (*policycfg.Snapshot, error) {
	return policycfg.ReadSnapshot(d.stateDriver)
}

func (d *Daemon) nodeForDatapath(dpid string) (string, bool) {
	snap, err := d.readSnapshot(context.Background())
	if err != nil {
		log.Errorf("Error reading snapshot to resolve datapath %s. Err: %v", dpid, err)
		return "", false
	}
	nodeID, ok := snap.NodeForDatapath(dpid)
	if ok && !d.ownsNode(nodeID) {
		return "", false
	}
	return nodeID, ok
}

func (d *Daemon) switchConnected(nodeID string) {
	log.Infof("Reprogramming switch %s after connect", nodeID)
	d.renderer.Resync(nodeID)
}

func (d *Daemon) ownsNode(nodeID string) bool {
	return d.cfg.HostLabel == "" || d.cfg.HostLabel == nodeID
}

// resyncAll runs a pass over every owned switch.
func (d *Daemon) resyncAll(ctx context.Context) error {
	if d.cfg.HostLabel != "" {
		return d.renderer.Sync(ctx, d.cfg.HostLabel)
	}
	return d.renderer.SyncAll(ctx)
}

// affectedNodes returns the switches to reprogram after a state change.
// Policy, tenant and remote endpoint changes reach the tables of every
// switch, so every known switch is queued along with the nodes named by
// the event.
func (d *Daemon) affectedNodes(ws core.WatchState) []string {
	if d.cfg.HostLabel != "" {
		return []string{d.cfg.HostLabel}
	}

	ids := map[string]bool{}
	for _, id := range d.renderer.Nodes() {
		ids[id] = true
	}
	for _, st := range []core.State{ws.Curr, ws.Prev} {
		switch s := st.(type) {
		case *policycfg.NodeState:
			ids[s.ID] = true
		case *policycfg.EndpointState:
			if s.IsLocated() {
				ids[s.Location.NodeID] = true
			}
		}
	}

	nodes := make([]string, 0, len(ids))
	for id := range ids {
		nodes = append(nodes, id)
	}
	sort.Strings(nodes)
	return nodes
}

func (d *Daemon) handleEvent(kind string, ws core.WatchState) {
	nodes := d.affectedNodes(ws)
	log.Debugf("Received %s event, queueing switches %v", kind, nodes)
	d.renderer.Trigger(nodes...)
}

// defaultWatchBackoff paces the restarts of a failed state watch.
func defaultWatchBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// watchState follows one record kind until ctx is done. A watch that ends
// is started again after a backoff, followed by a full pass to cover the
// events missed meanwhile.
func (d *Daemon) watchState(ctx context.Context, kind string,
	watch func(chan core.WatchState) error) {
	rsps := make(chan core.WatchState, watchBuffer)
	stopped := make(chan error, 1)
	start := func() {
		go func() { stopped <- watch(rsps) }()
	}
	retry := backoff.WithContext(d.watchBackoff(), ctx)

	start()
	for {
		select {
		case <-ctx.Done():
			return
		case ws := <-rsps:
			retry.Reset()
			d.handleEvent(kind, ws)
		case err := <-stopped:
			wait := retry.NextBackOff()
			if wait == backoff.Stop {
				return
			}
			log.Errorf("Watch on %s stopped, restarting in %v. Err: %v", kind, wait, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}

			start()
			if err := d.resyncAll(ctx); err != nil {
				log.Errorf("Error resyncing after %s watch restart. Err: %v", kind, err)
			}
		}
	}
}

func (d *Daemon) startWatchers(ctx context.Context) {
	common := core.CommonState{StateDriver: d.stateDriver}
	tenant := &policycfg.TenantState{CommonState: common}
	endpoint := &policycfg.EndpointState{CommonState: common}
	policy := &policycfg.ResolvedPolicyState{CommonState: common}
	node := &policycfg.NodeState{CommonState: common}

	go d.watchState(ctx, "tenant", tenant.WatchAll)
	go d.watchState(ctx, "endpoint", endpoint.WatchAll)
	go d.watchState(ctx, "resolved policy", policy.WatchAll)
	go d.watchState(ctx, "node", node.WatchAll)
}

// Router returns the inspection and metrics routes.
func (d *Daemon) Router() *mux.Router {
	router := mux.NewRouter()
	d.registerRoutes(router)
	return router
}

// Run serves until ctx is done: an initial full pass, then event driven
// passes plus a periodic full resync.
func (d *Daemon) Run(ctx context.Context) error {
	if d.controller != nil {
		if err := d.controller.Listen(d.cfg.ControllerURL); err != nil {
			return err
		}
		defer d.controller.Close()
	}

	listener, err := net.Listen("tcp", d.cfg.ListenURL)
	if err != nil {
		return err
	}
	listener = utils.DrainingListener(listener)
	d.mutex.Lock()
	d.listener = listener
	d.mutex.Unlock()

	server := &http.Server{Handler: d.Router()}
	server.SetKeepAlivesEnabled(false)
	go server.Serve(listener)
	log.Infof("Renderer listening on %s", listener.Addr())

	d.renderer.Start(ctx)
	defer d.renderer.Stop()

	if err := d.resyncAll(ctx); err != nil {
		log.Errorf("Initial synchronization incomplete. Err: %v", err)
	}
	d.startWatchers(ctx)

	var tick <-chan time.Time
	if d.cfg.ResyncInterval > 0 {
		ticker := time.NewTicker(d.cfg.ResyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Infof("Renderer shutting down")
			listener.Close()
			return nil
		case <-tick:
			if err := d.resyncAll(ctx); err != nil {
				log.Errorf("Periodic resync incomplete. Err: %v", err)
			}
		}
	}
}

// Addr returns the address the inspect server listens on, nil before Run.
func (d *Daemon) Addr() net.Addr {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.listener == nil {
		return nil
	}
	return d.listener.Addr()
}

// metricsHandler serves the daemon registry.
func (d *Daemon) metricsHandler() http.Handler {
	return promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{})
}
