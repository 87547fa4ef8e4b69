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
	"hash/fnv"
	"net"
	"sort"
)

// GroupTable writes the flood groups of the node: for every flood domain
// with a local endpoint, a group reaching every local port and every other
// node hosting the domain, and a local-only group used for floods that
// arrived from the overlay.
type GroupTable struct{}

// Name of the table.
func (GroupTable) Name() string { return "groups" }

// tunnelBucketID derives a stable bucket id from a node's tunnel address.
func tunnelBucketID(tunnelIP string) uint32 {
	if ip := net.ParseIP(tunnelIP).To4(); ip != nil {
		return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
	}
	h := fnv.New32a()
	h.Write([]byte(tunnelIP))
	return h.Sum32()
}

type floodDomain struct {
	tunnelID uint32
	ports    map[uint32]bool
	nodes    map[string]bool
}

// Sync writes the flood groups of nodeID.
func (GroupTable) Sync(ctx *OfContext, nodeID string, fm *FlowMap) error {
	fds := map[uint32]*floodDomain{}
	for _, ep := range ctx.localEndpoints(nodeID) {
		ords, err := ctx.endpointOrdinals(ep, DestinationMapperTable)
		if err != nil {
			return err
		}
		if ords == nil || ords.FD == 0 || ep.Location.PortNo == 0 {
			continue
		}
		fd, ok := fds[ords.FD]
		if !ok {
			fd = &floodDomain{tunnelID: ords.FloodTunnelID, ports: map[uint32]bool{}, nodes: map[string]bool{}}
			fds[ords.FD] = fd
		}
		fd.ports[ep.Location.PortNo] = true
	}
	if len(fds) == 0 {
		return nil
	}

	tunPort, hasTunnel := ctx.tunnelPort(nodeID)
	if hasTunnel {
		for _, ep := range ctx.Snapshot.Endpoints {
			if !ep.IsLocated() || ep.Location.NodeID == nodeID {
				continue
			}
			ords, err := ctx.endpointOrdinals(ep, DestinationMapperTable)
			if err != nil {
				return err
			}
			if ords == nil {
				continue
			}
			if fd, ok := fds[ords.FD]; ok {
				fd.nodes[ep.Location.NodeID] = true
			}
		}
	}

	ids := make(map[uint32]bool, len(fds))
	for id := range fds {
		ids[id] = true
	}
	for _, id := range sortedUint32(ids) {
		fd := fds[id]
		local := []Bucket{}
		for _, port := range sortedUint32(fd.ports) {
			local = append(local, Bucket{ID: port, Actions: []Action{outputAction(port)}})
		}

		all := append([]Bucket(nil), local...)
		nodes := make([]string, 0, len(fd.nodes))
		for n := range fd.nodes {
			nodes = append(nodes, n)
		}
		sort.Strings(nodes)
		for _, n := range nodes {
			remote := ctx.Snapshot.Node(n)
			if remote == nil || remote.TunnelIP == "" {
				continue
			}
			all = append(all, Bucket{
				ID: tunnelBucketID(remote.TunnelIP),
				Actions: []Action{
					setFieldAction(FieldTunnelDst, remote.TunnelIP),
					setTunnelIDAction(fd.tunnelID),
					outputAction(tunPort),
				},
			})
		}

		fm.WriteGroup(&Group{ID: id, Type: GroupTypeAll, Buckets: all})
		fm.WriteGroup(&Group{ID: id | localOnlyGroupFlag, Type: GroupTypeAll, Buckets: local})
	}
	return nil
}
