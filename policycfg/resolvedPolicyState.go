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

package policycfg

import (
	"encoding/json"
	"fmt"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

const (
	policyConfigPathPrefix = StateConfigPath + "policies/"
	policyConfigPath       = policyConfigPathPrefix + "%s"
)

// Rule directions, seen from the provider group.
const (
	DirectionIn            = "in"
	DirectionOut           = "out"
	DirectionBidirectional = "bidirectional"
)

// ParamValue is a named classifier or action parameter.
type ParamValue struct {
	Name        string  `json:"name"`
	IntValue    *int64  `json:"intValue,omitempty"`
	StringValue *string `json:"stringValue,omitempty"`
}

// ClassifierRef is one classifier instance of a rule.
type ClassifierRef struct {
	Name         string       `json:"name"`
	ClassifierID string       `json:"classifierId"`
	Direction    string       `json:"direction,omitempty"`
	Params       []ParamValue `json:"params,omitempty"`
}

// ActionRef is one action instance of a rule.
type ActionRef struct {
	ActionID string       `json:"actionId"`
	Params   []ParamValue `json:"params,omitempty"`
}

// Rule is a set of classifiers and the actions taken on a match.
type Rule struct {
	Name        string          `json:"name"`
	Order       int             `json:"order"`
	Classifiers []ClassifierRef `json:"classifiers,omitempty"`
	Actions     []ActionRef     `json:"actions,omitempty"`
}

// RuleGroup is the ordered rule list of one contract subject.
type RuleGroup struct {
	Contract string `json:"contract"`
	Subject  string `json:"subject"`
	Order    int    `json:"order"`
	Rules    []Rule `json:"rules"`
}

// ResolvedPolicyState implements the State interface for the rules permitted
// between one consumer group and one provider group.
type ResolvedPolicyState struct {
	core.CommonState
	Tenant        string      `json:"tenant"`
	ConsumerGroup string      `json:"consumerGroup"`
	ProviderGroup string      `json:"providerGroup"`
	RuleGroups    []RuleGroup `json:"ruleGroups"`
}

// Write the state.
func (s *ResolvedPolicyState) Write() error {
	key := fmt.Sprintf(policyConfigPath, s.ID)
	return s.StateDriver.WriteState(key, s, json.Marshal)
}

// Read the state for a given identifier.
func (s *ResolvedPolicyState) Read(id string) error {
	key := fmt.Sprintf(policyConfigPath, id)
	return s.StateDriver.ReadState(key, s, json.Unmarshal)
}

// ReadAll reads all state objects for the resolved policies.
func (s *ResolvedPolicyState) ReadAll() ([]core.State, error) {
	return s.StateDriver.ReadAllState(policyConfigPathPrefix, s, json.Unmarshal)
}

// WatchAll fills a channel on each state event related to resolved policies.
func (s *ResolvedPolicyState) WatchAll(rsps chan core.WatchState) error {
	return s.StateDriver.WatchAllState(policyConfigPathPrefix, s, json.Unmarshal,
		rsps)
}

// Clear removes the state.
func (s *ResolvedPolicyState) Clear() error {
	key := fmt.Sprintf(policyConfigPath, s.ID)
	return s.StateDriver.ClearState(key)
}

// Param returns the named parameter, nil if absent.
func Param(params []ParamValue, name string) *ParamValue {
	for i := range params {
		if params[i].Name == name {
			return &params[i]
		}
	}
	return nil
}
