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
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
)

// ErrTooManyRules is returned for a policy whose rules do not fit in the
// priority range of the policy enforcer.
var ErrTooManyRules = errors.New("too many rules")

// PolicyEnforcer permits traffic within a group, from the overlay and along
// the rules of the resolved policies of the node's groups. Everything else
// hits the drop-all flow.
type PolicyEnforcer struct{}

// Name of the table.
func (PolicyEnforcer) Name() string { return TableNames[PolicyEnforcerTable] }

// Sync writes the policy enforcer flows of nodeID.
func (PolicyEnforcer) Sync(ctx *OfContext, nodeID string, fm *FlowMap) error {
	fm.WriteFlow(dropAllFlow(PolicyEnforcerTable))
	next := gotoTable(EgressNatTable)

	fm.WriteFlow(newFlow("allow-arp", PolicyEnforcerTable, policyAllowPriority,
		Match{EthType: EthTypeARP}, next))
	fm.WriteFlow(newFlow("allow-external", PolicyEnforcerTable, policyAllowPriority,
		Match{}.WithReg(RegSrcCG, ExternalTag), next))

	groups := map[policycfg.GroupKey]bool{}
	for _, ep := range ctx.localEndpoints(nodeID) {
		for _, g := range ep.EndpointGroups {
			groups[policycfg.GroupKey{Tenant: ep.Tenant, Group: g}] = true
		}
	}
	keys := make([]policycfg.GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Tenant != keys[j].Tenant {
			return keys[i].Tenant < keys[j].Tenant
		}
		return keys[i].Group < keys[j].Group
	})

	policies := map[string]*policycfg.ResolvedPolicyState{}
	for _, k := range keys {
		epg, err := ctx.GroupOrdinal(k.Tenant, k.Group)
		if err != nil {
			return err
		}
		fm.WriteFlow(newFlow("allow-intra-group", PolicyEnforcerTable, policyAllowPriority,
			Match{}.WithReg(RegSrcEPG, epg).WithReg(RegDstEPG, epg), next))

		for _, p := range ctx.Snapshot.PoliciesForGroup(k.Tenant, k.Group) {
			policies[p.ID] = p
		}
	}

	ids := make([]string, 0, len(policies))
	for id := range policies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		flows, err := ctx.compilePolicy(policies[id])
		if err != nil {
			if isFatal(err) {
				return err
			}
			log.Warnf("Not rendering policy %s: %v", id, err)
			continue
		}
		for _, f := range flows {
			fm.WriteFlow(f)
		}
	}
	return nil
}

type orderedRule struct {
	groupOrder int
	rule       policycfg.Rule
}

// sortedRules flattens the rule groups of p in evaluation order.
func sortedRules(p *policycfg.ResolvedPolicyState) []orderedRule {
	rules := []orderedRule{}
	for _, rg := range p.RuleGroups {
		for _, r := range rg.Rules {
			rules = append(rules, orderedRule{groupOrder: rg.Order, rule: r})
		}
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].groupOrder != rules[j].groupOrder {
			return rules[i].groupOrder < rules[j].groupOrder
		}
		return rules[i].rule.Order < rules[j].rule.Order
	})
	return rules
}

// rulePriority returns the priority of the rule at position band.
func rulePriority(band int) (uint16, error) {
	prio := int(policyRuleTopPriority) - band*int(policyRuleBandWidth)
	if prio < int(policyRuleBottomPriority) {
		return 0, errors.Wrapf(ErrTooManyRules, "rule %d", band)
	}
	return uint16(prio), nil
}

// compilePolicy returns every flow of p, or an error and no flows when any
// rule of p cannot be compiled.
func (ctx *OfContext) compilePolicy(p *policycfg.ResolvedPolicyState) ([]*Flow, error) {
	consumer, err := ctx.GroupOrdinal(p.Tenant, p.ConsumerGroup)
	if err != nil {
		return nil, err
	}
	provider, err := ctx.GroupOrdinal(p.Tenant, p.ProviderGroup)
	if err != nil {
		return nil, err
	}

	flows := []*Flow{}
	for band, r := range sortedRules(p) {
		prio, err := rulePriority(band)
		if err != nil {
			return nil, err
		}
		instrs, err := ctx.ruleInstructions(r.rule)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %s", r.rule.Name)
		}
		matches, err := ctx.ruleMatches(r.rule, consumer, provider)
		if err != nil {
			return nil, errors.Wrapf(err, "rule %s", r.rule.Name)
		}
		for _, m := range matches {
			flows = append(flows, newFlow("policy-"+p.ID+"-"+r.rule.Name,
				PolicyEnforcerTable, prio, m, instrs...))
		}
	}
	return flows, nil
}

// ruleInstructions returns the instructions of a rule's actions. A rule
// without actions allows; deny wins over allow.
func (ctx *OfContext) ruleInstructions(r policycfg.Rule) ([]Instruction, error) {
	if len(r.Actions) == 0 {
		a, err := ctx.Registry.Action(AllowActionID)
		if err != nil {
			return nil, err
		}
		return a.Instructions(), nil
	}

	var chosen *ActionDefinition
	for _, ref := range r.Actions {
		a, err := ctx.Registry.Action(ref.ActionID)
		if err != nil {
			return nil, err
		}
		if chosen == nil || a.ID == DenyActionID {
			chosen = a
		}
	}
	return chosen.Instructions(), nil
}

// swapPorts exchanges the source and destination port parameters.
func swapPorts(params []policycfg.ParamValue) []policycfg.ParamValue {
	swapped := make([]policycfg.ParamValue, 0, len(params))
	for _, p := range params {
		switch p.Name {
		case SourcePortParam:
			p.Name = DestPortParam
		case DestPortParam:
			p.Name = SourcePortParam
		}
		swapped = append(swapped, p)
	}
	return swapped
}

type ruleLeg struct {
	refs    []policycfg.ClassifierRef
	swapped []bool
}

// ruleMatches returns the matches of a rule between the consumer and the
// provider group. The forward leg carries consumer to provider traffic, the
// reverse leg provider to consumer traffic.
func (ctx *OfContext) ruleMatches(r policycfg.Rule, consumer, provider uint32) ([]Match, error) {
	var forward, reverse ruleLeg
	for _, ref := range r.Classifiers {
		switch ref.Direction {
		case policycfg.DirectionIn:
			forward.refs = append(forward.refs, ref)
			forward.swapped = append(forward.swapped, false)
		case policycfg.DirectionOut:
			reverse.refs = append(reverse.refs, ref)
			reverse.swapped = append(reverse.swapped, false)
		case policycfg.DirectionBidirectional, "":
			forward.refs = append(forward.refs, ref)
			forward.swapped = append(forward.swapped, false)
			reverse.refs = append(reverse.refs, ref)
			reverse.swapped = append(reverse.swapped, true)
		default:
			return nil, errors.Wrapf(ErrClassifierParam, "classifier %s: unknown direction %q",
				ref.Name, ref.Direction)
		}
	}

	all := len(r.Classifiers) == 0
	matches := []Match{}
	for _, leg := range []struct {
		ruleLeg
		src, dst uint32
	}{{forward, consumer, provider}, {reverse, provider, consumer}} {
		if len(leg.refs) == 0 && !all {
			continue
		}
		candidates := []Match{Match{}.WithReg(RegSrcEPG, leg.src).WithReg(RegDstEPG, leg.dst)}
		for i, ref := range leg.refs {
			c, err := ctx.Registry.Classifier(ref.ClassifierID)
			if err != nil {
				return nil, err
			}
			params := ref.Params
			if leg.swapped[i] {
				params = swapPorts(params)
			}
			candidates, err = c.Refine(candidates, params)
			if err != nil {
				return nil, err
			}
		}
		matches = append(matches, candidates...)
	}
	return matches, nil
}
