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
	"github.com/pkg/errors"

	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
)

// Classifier and action ids understood by the registry.
const (
	EtherTypeClassifierID = "ethertype"
	IPProtoClassifierID   = "ip-proto"
	L4ClassifierID        = "l4"

	AllowActionID = "allow"
	DenyActionID  = "deny"
)

// Classifier parameter names.
const (
	EtherTypeParam  = "ethertype"
	ProtoParam      = "proto"
	SourcePortParam = "sourceport"
	DestPortParam   = "destport"
)

// refineFunc narrows one candidate match with the classifier's own
// parameters. chained is set when a child classifier refines the result.
type refineFunc func(m Match, params []policycfg.ParamValue, chained bool) ([]Match, error)

// Classifier is one link of a classifier chain. Refining with a classifier
// first refines with its parent, using the parameters the parent owns.
type Classifier struct {
	ID         string
	Parent     *Classifier
	ParamNames []string
	refine     refineFunc
}

// Refine narrows every candidate match with params, fanning a candidate out
// into several when one logical match needs several concrete protocol values.
func (c *Classifier) Refine(candidates []Match, params []policycfg.ParamValue) ([]Match, error) {
	return c.apply(candidates, params, false)
}

func (c *Classifier) apply(candidates []Match, params []policycfg.ParamValue, chained bool) ([]Match, error) {
	var err error
	if c.Parent != nil {
		candidates, err = c.Parent.apply(candidates, paramSubset(params, c.Parent.chainParamNames()), true)
		if err != nil {
			return nil, err
		}
	}

	own := paramSubset(params, c.ParamNames)
	refined := []Match{}
	for _, m := range candidates {
		out, err := c.refine(m.clone(), own, chained)
		if err != nil {
			return nil, errors.Wrapf(err, "classifier %s", c.ID)
		}
		refined = append(refined, out...)
	}
	return refined, nil
}

func (c *Classifier) chainParamNames() []string {
	names := append([]string(nil), c.ParamNames...)
	if c.Parent != nil {
		names = append(names, c.Parent.chainParamNames()...)
	}
	return names
}

func paramSubset(params []policycfg.ParamValue, names []string) []policycfg.ParamValue {
	subset := []policycfg.ParamValue{}
	for _, p := range params {
		for _, n := range names {
			if p.Name == n {
				subset = append(subset, p)
				break
			}
		}
	}
	return subset
}

// intParam returns the named integer parameter. A parameter given as a
// string is a type error.
func intParam(params []policycfg.ParamValue, name string) (int64, bool, error) {
	p := policycfg.Param(params, name)
	if p == nil {
		return 0, false, nil
	}
	if p.IntValue == nil {
		return 0, false, errors.Wrapf(ErrClassifierParam, "%s must be an integer", name)
	}
	return *p.IntValue, true, nil
}

func refineEtherType(m Match, params []policycfg.ParamValue, chained bool) ([]Match, error) {
	v, ok, err := intParam(params, EtherTypeParam)
	if err != nil {
		return nil, err
	}
	if ok {
		if v <= 0 || v > 0xffff {
			return nil, errors.Wrapf(ErrClassifierParam, "ethertype %d out of range", v)
		}
		if m.EthType != 0 && m.EthType != uint16(v) {
			// disjoint with the candidate
			return nil, nil
		}
		m.EthType = uint16(v)
		return []Match{m}, nil
	}

	if m.EthType != 0 {
		return []Match{m}, nil
	}
	if !chained {
		return nil, errors.Wrapf(ErrClassifierParam, "missing %s", EtherTypeParam)
	}

	v4, v6 := m, m.clone()
	v4.EthType = EthTypeIPv4
	v6.EthType = EthTypeIPv6
	return []Match{v4, v6}, nil
}

func refineIPProto(m Match, params []policycfg.ParamValue, chained bool) ([]Match, error) {
	v, ok, err := intParam(params, ProtoParam)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.Wrapf(ErrClassifierParam, "missing %s", ProtoParam)
	}
	if v <= 0 || v > 0xff {
		return nil, errors.Wrapf(ErrClassifierParam, "proto %d out of range", v)
	}
	if m.EthType != EthTypeIPv4 && m.EthType != EthTypeIPv6 {
		return nil, errors.Wrapf(ErrClassifierParam, "proto needs an ip ethertype, got 0x%04x", m.EthType)
	}
	m.IPProto = uint8(v)
	return []Match{m}, nil
}

func refineL4(m Match, params []policycfg.ParamValue, chained bool) ([]Match, error) {
	switch m.IPProto {
	case IPProtoTCP, IPProtoUDP, IPProtoSCTP:
	default:
		return nil, errors.Wrapf(ErrClassifierParam, "ports need tcp, udp or sctp, got proto %d", m.IPProto)
	}

	for _, port := range []struct {
		name string
		dst  *uint16
	}{{SourcePortParam, &m.L4Src}, {DestPortParam, &m.L4Dst}} {
		v, ok, err := intParam(params, port.name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if v <= 0 || v > 0xffff {
			return nil, errors.Wrapf(ErrClassifierParam, "%s %d out of range", port.name, v)
		}
		*port.dst = uint16(v)
	}
	return []Match{m}, nil
}

// ActionDefinition turns a rule action into flow instructions.
type ActionDefinition struct {
	ID           string
	instructions func() []Instruction
}

// Instructions returns the instructions of the action; none means drop.
func (a *ActionDefinition) Instructions() []Instruction {
	return a.instructions()
}

// Registry holds the classifier and action definitions. It is built once
// and shared by every pass.
type Registry struct {
	classifiers map[string]*Classifier
	actions     map[string]*ActionDefinition
}

// NewRegistry returns a registry with the built-in classifiers and actions.
func NewRegistry() *Registry {
	etherType := &Classifier{
		ID:         EtherTypeClassifierID,
		ParamNames: []string{EtherTypeParam},
		refine:     refineEtherType,
	}
	ipProto := &Classifier{
		ID:         IPProtoClassifierID,
		Parent:     etherType,
		ParamNames: []string{ProtoParam},
		refine:     refineIPProto,
	}
	l4 := &Classifier{
		ID:         L4ClassifierID,
		Parent:     ipProto,
		ParamNames: []string{SourcePortParam, DestPortParam},
		refine:     refineL4,
	}

	r := &Registry{
		classifiers: map[string]*Classifier{},
		actions:     map[string]*ActionDefinition{},
	}
	for _, c := range []*Classifier{etherType, ipProto, l4} {
		r.classifiers[c.ID] = c
	}
	r.actions[AllowActionID] = &ActionDefinition{
		ID:           AllowActionID,
		instructions: func() []Instruction { return []Instruction{gotoTable(EgressNatTable)} },
	}
	r.actions[DenyActionID] = &ActionDefinition{
		ID:           DenyActionID,
		instructions: func() []Instruction { return nil },
	}
	return r
}

// Classifier looks up a classifier definition.
func (r *Registry) Classifier(id string) (*Classifier, error) {
	c, ok := r.classifiers[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownClassifier, "classifier %q", id)
	}
	return c, nil
}

// Action looks up an action definition.
func (r *Registry) Action(id string) (*ActionDefinition, error) {
	a, ok := r.actions[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownClassifier, "action %q", id)
	}
	return a, nil
}
