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

// Package ofrender compiles resolved policy, endpoint locations and node
// topology into the flow and group tables of each switch of the overlay, and
// keeps every switch in sync with what it computes.
package ofrender

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
	"github.com/opendaylight/groupbasedpolicy-sub013/resources"
)

var (
	// ErrContextNotFound is returned when a link of an endpoint's
	// forwarding context is missing.
	ErrContextNotFound = errors.New("forwarding context not found")
	// ErrLocationNotFound is returned for an endpoint not attached to a switch.
	ErrLocationNotFound = errors.New("endpoint location not found")
	// ErrClassifierParam is returned for a missing or mistyped classifier
	// parameter.
	ErrClassifierParam = errors.New("invalid classifier parameter")
	// ErrUnknownClassifier is returned for a classifier or action id missing
	// from the registry.
	ErrUnknownClassifier = errors.New("unknown classifier or action")
)

// Config holds the renderer settings shared by every pass.
type Config struct {
	// TunnelType selects the node tunnel port used for the overlay.
	TunnelType string
	// RouterMAC is the source MAC of routed packets.
	RouterMAC string
}

// OfContext is the input of one synchronization pass.
type OfContext struct {
	Snapshot *policycfg.Snapshot
	Ordinals *resources.OrdinalAllocator
	Registry *Registry
	Config   Config

	ordinals map[string]*EndpointFwdCtxOrdinals
}

// NewOfContext returns the context of a pass over snap.
func NewOfContext(snap *policycfg.Snapshot, ordinals *resources.OrdinalAllocator,
	registry *Registry, cfg Config) *OfContext {
	if cfg.RouterMAC == "" {
		cfg.RouterMAC = DefaultRouterMAC
	}
	// REG1 carries ExternalTag for overlay and NAT traffic
	ordinals.Reserve(resources.ConditionGroup, ExternalTag)
	return &OfContext{
		Snapshot: snap,
		Ordinals: ordinals,
		Registry: registry,
		Config:   cfg,
		ordinals: map[string]*EndpointFwdCtxOrdinals{},
	}
}

// ForwardingContext is the chain of domains an endpoint attaches to. Subnet,
// FloodDomain and BridgeDomain are nil when the chain starts above them.
type ForwardingContext struct {
	Tenant       *policycfg.TenantState
	Subnet       *policycfg.Subnet
	FloodDomain  *policycfg.FloodDomain
	BridgeDomain *policycfg.BridgeDomain
	L3Context    *policycfg.L3Context
}

// EndpointFwdCtxOrdinals are the register values describing one endpoint.
// FloodTunnelID is the tunnel key of the endpoint's flood domain.
type EndpointFwdCtxOrdinals struct {
	EPG           uint32
	CG            uint32
	BD            uint32
	FD            uint32
	L3            uint32
	TunnelID      uint32
	FloodTunnelID uint32
	FwdCtx        *ForwardingContext
}

// ResolveForwardingContext walks subnet, flood domain, bridge domain and l3
// context parent links starting at domainID, which may name any of them.
func (ctx *OfContext) ResolveForwardingContext(tenantID, domainID string) (*ForwardingContext, error) {
	tenant := ctx.Snapshot.Tenant(tenantID)
	if tenant == nil {
		return nil, errors.Wrapf(ErrContextNotFound, "tenant %q", tenantID)
	}
	if domainID == "" {
		return nil, errors.Wrapf(ErrContextNotFound, "tenant %q: empty network domain", tenantID)
	}

	fc := &ForwardingContext{Tenant: tenant}
	id := domainID
	if s := tenant.Subnet(id); s != nil {
		if s.Parent == "" {
			return nil, errors.Wrapf(ErrContextNotFound, "subnet %q has no parent", s.ID)
		}
		fc.Subnet = s
		id = s.Parent
	}
	if fd := tenant.FloodDomain(id); fd != nil {
		if fd.Parent == "" {
			return nil, errors.Wrapf(ErrContextNotFound, "flood domain %q has no parent", fd.ID)
		}
		fc.FloodDomain = fd
		id = fd.Parent
	}
	if bd := tenant.BridgeDomain(id); bd != nil {
		if bd.Parent == "" {
			return nil, errors.Wrapf(ErrContextNotFound, "bridge domain %q has no parent", bd.ID)
		}
		fc.BridgeDomain = bd
		id = bd.Parent
	}
	l3 := tenant.L3Context(id)
	if l3 == nil {
		return nil, errors.Wrapf(ErrContextNotFound, "tenant %q: domain %q not found", tenantID, id)
	}
	fc.L3Context = l3

	return fc, nil
}

func ordinalKey(tenant, id string) string {
	return tenant + "/" + id
}

// tunnelKey names the register set a tunnel key stands for: members of one
// group attached to different domains get different keys.
func tunnelKey(tenant, group string, fc *ForwardingContext) string {
	fd := ""
	if fc.FloodDomain != nil {
		fd = fc.FloodDomain.ID
	}
	return "epg:" + strings.Join([]string{tenant, group, fc.BridgeDomain.ID, fd, fc.L3Context.ID}, "/")
}

// conditionGroupKey is the sorted condition list; no conditions means no
// condition group.
func conditionGroupKey(conditions []string) string {
	conds := append([]string(nil), conditions...)
	sort.Strings(conds)
	return strings.Join(conds, ",")
}

// EndpointOrdinals resolves the forwarding context of ep and the ordinals of
// its primary group, condition group and domains.
func (ctx *OfContext) EndpointOrdinals(ep *policycfg.EndpointState) (*EndpointFwdCtxOrdinals, error) {
	if ords, ok := ctx.ordinals[ep.ID]; ok {
		return ords, nil
	}

	if len(ep.EndpointGroups) == 0 {
		return nil, errors.Wrapf(ErrContextNotFound, "endpoint %s has no group", ep.ID)
	}
	group := ep.EndpointGroups[0]

	domain := ep.NetworkContainment
	if domain == "" {
		tenant := ctx.Snapshot.Tenant(ep.Tenant)
		if tenant == nil {
			return nil, errors.Wrapf(ErrContextNotFound, "tenant %q", ep.Tenant)
		}
		epg := tenant.EndpointGroup(group)
		if epg == nil {
			return nil, errors.Wrapf(ErrContextNotFound, "endpoint group %q", group)
		}
		domain = epg.NetworkDomain
	}

	fc, err := ctx.ResolveForwardingContext(ep.Tenant, domain)
	if err != nil {
		return nil, errors.Wrapf(err, "endpoint %s", ep.ID)
	}
	if fc.BridgeDomain == nil {
		return nil, errors.Wrapf(ErrContextNotFound, "endpoint %s: no bridge domain above %q", ep.ID, domain)
	}

	ords := &EndpointFwdCtxOrdinals{FwdCtx: fc}
	alloc := func(dim resources.Dimension, key string, dst *uint32) {
		if err == nil {
			*dst, err = ctx.Ordinals.Allocate(dim, key)
		}
	}
	alloc(resources.EndpointGroup, ordinalKey(ep.Tenant, group), &ords.EPG)
	alloc(resources.BridgeDomain, ordinalKey(ep.Tenant, fc.BridgeDomain.ID), &ords.BD)
	alloc(resources.RoutingDomain, ordinalKey(ep.Tenant, fc.L3Context.ID), &ords.L3)
	alloc(resources.TunnelID, tunnelKey(ep.Tenant, group, fc), &ords.TunnelID)
	if fc.FloodDomain != nil {
		alloc(resources.FloodDomain, ordinalKey(ep.Tenant, fc.FloodDomain.ID), &ords.FD)
		alloc(resources.TunnelID, "fd:"+ordinalKey(ep.Tenant, fc.FloodDomain.ID), &ords.FloodTunnelID)
	}
	if cg := conditionGroupKey(ep.Conditions); cg != "" {
		alloc(resources.ConditionGroup, cg, &ords.CG)
	}
	if err != nil {
		return nil, err
	}

	ctx.ordinals[ep.ID] = ords
	return ords, nil
}

// GroupOrdinal returns the ordinal of an endpoint group.
func (ctx *OfContext) GroupOrdinal(tenant, group string) (uint32, error) {
	return ctx.Ordinals.Allocate(resources.EndpointGroup, ordinalKey(tenant, group))
}

// isFatal tells whether err must abort the pass.
func isFatal(err error) bool {
	return errors.Cause(err) == resources.ErrOrdinalSpaceExhausted
}

// endpointOrdinals returns nil ordinals and a nil error when ep must be
// skipped by the caller.
func (ctx *OfContext) endpointOrdinals(ep *policycfg.EndpointState, table uint8) (*EndpointFwdCtxOrdinals, error) {
	ords, err := ctx.EndpointOrdinals(ep)
	if err != nil {
		if isFatal(err) {
			return nil, err
		}
		log.Debugf("Skipping endpoint %s in %s: %v", ep.ID, TableNames[table], err)
		return nil, nil
	}
	return ords, nil
}

// tunnelPort returns the overlay port of nodeID.
func (ctx *OfContext) tunnelPort(nodeID string) (uint32, bool) {
	node := ctx.Snapshot.Node(nodeID)
	if node == nil {
		return 0, false
	}
	return node.TunnelPort(ctx.Config.TunnelType)
}

// localEndpoints returns the located endpoints on nodeID.
func (ctx *OfContext) localEndpoints(nodeID string) []*policycfg.EndpointState {
	return ctx.Snapshot.EndpointsOnNode(nodeID)
}

// peerEndpoints returns every endpoint of the groups ep may talk to,
// deduplicated and in id order.
func (ctx *OfContext) peerEndpoints(ep *policycfg.EndpointState) []*policycfg.EndpointState {
	seen := map[string]bool{}
	peers := []*policycfg.EndpointState{}
	for _, g := range ep.EndpointGroups {
		for _, pg := range ctx.Snapshot.PeerGroups(ep.Tenant, g) {
			for _, peer := range ctx.Snapshot.EndpointsInGroup(ep.Tenant, pg) {
				if !seen[peer.ID] {
					seen[peer.ID] = true
					peers = append(peers, peer)
				}
			}
		}
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
	return peers
}
