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

package rendererd

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/opendaylight/groupbasedpolicy-sub013/ofrender"
	"github.com/opendaylight/groupbasedpolicy-sub013/utils"
	"github.com/opendaylight/groupbasedpolicy-sub013/version"
)

// REST endpoints
const (
	SwitchesRESTEndpoint = "inspect/switches"
	OrdinalsRESTEndpoint = "inspect/ordinals"
	MetricsRESTEndpoint  = "metrics"
	VersionRESTEndpoint  = "version"
)

// SwitchInfo summarizes what is installed on one switch.
type SwitchInfo struct {
	NodeID string `json:"nodeId"`
	Flows  int    `json:"flows"`
	Groups int    `json:"groups"`
	// Synced is false until a pass has been applied.
	Synced bool `json:"synced"`
}

// SwitchTables is the rendering of one switch's installed tables.
type SwitchTables struct {
	NodeID string            `json:"nodeId"`
	Flows  []*ofrender.Flow  `json:"flows,omitempty"`
	Groups []*ofrender.Group `json:"groups,omitempty"`
	// Dump holds one ovs-ofctl style line per flow, then per group.
	Dump []string `json:"dump"`
}

func (d *Daemon) registerRoutes(router *mux.Router) {
	s := router.Methods("Get").Subrouter()
	s.HandleFunc("/"+SwitchesRESTEndpoint, utils.MakeHTTPHandler(d.listSwitches))
	s.HandleFunc("/"+SwitchesRESTEndpoint+"/{id}", utils.MakeHTTPHandler(d.inspectSwitch))
	s.HandleFunc("/"+SwitchesRESTEndpoint+"/{id}/flows", utils.MakeHTTPHandler(d.inspectFlows))
	s.HandleFunc("/"+SwitchesRESTEndpoint+"/{id}/groups", utils.MakeHTTPHandler(d.inspectGroups))
	s.HandleFunc("/"+OrdinalsRESTEndpoint, utils.MakeHTTPHandler(d.inspectOrdinals))
	s.Handle("/"+MetricsRESTEndpoint, d.metricsHandler())
	s.HandleFunc("/"+VersionRESTEndpoint, utils.MakeHTTPHandler(getVersion))

	router.NotFoundHandler = http.HandlerFunc(utils.UnknownAction)
}

func getVersion(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error) {
	return version.Get(), nil
}

func (d *Daemon) listSwitches(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error) {
	infos := []SwitchInfo{}
	for _, id := range d.renderer.Nodes() {
		info := SwitchInfo{NodeID: id}
		if fm := d.renderer.Installed(id); fm != nil {
			info.Flows, info.Groups, info.Synced = fm.NumFlows(), fm.NumGroups(), true
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (d *Daemon) installed(vars map[string]string) (string, *ofrender.FlowMap, error) {
	id := vars["id"]
	for _, known := range d.renderer.Nodes() {
		if known == id {
			fm := d.renderer.Installed(id)
			if fm == nil {
				fm = ofrender.NewFlowMap()
			}
			return id, fm, nil
		}
	}
	return "", nil, utils.NotFoundf("unknown switch %q", id)
}

func dumpLines(fm *ofrender.FlowMap) []string {
	lines := []string{}
	for _, f := range fm.Flows() {
		lines = append(lines, f.String())
	}
	for _, g := range fm.Groups() {
		lines = append(lines, g.String())
	}
	return lines
}

func (d *Daemon) inspectSwitch(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error) {
	id, fm, err := d.installed(vars)
	if err != nil {
		return nil, err
	}
	return SwitchTables{NodeID: id, Flows: fm.Flows(), Groups: fm.Groups(), Dump: dumpLines(fm)}, nil
}

func (d *Daemon) inspectFlows(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error) {
	_, fm, err := d.installed(vars)
	if err != nil {
		return nil, err
	}
	return fm.Flows(), nil
}

func (d *Daemon) inspectGroups(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error) {
	_, fm, err := d.installed(vars)
	if err != nil {
		return nil, err
	}
	return fm.Groups(), nil
}

func (d *Daemon) inspectOrdinals(w http.ResponseWriter, r *http.Request, vars map[string]string) (interface{}, error) {
	return d.renderer.Ordinals().Bindings(), nil
}
