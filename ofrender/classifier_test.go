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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/opendaylight/groupbasedpolicy-sub013/policycfg"
)

func intParams(kv ...interface{}) []policycfg.ParamValue {
	params := []policycfg.ParamValue{}
	for i := 0; i+1 < len(kv); i += 2 {
		params = append(params, policycfg.ParamValue{
			Name:     kv[i].(string),
			IntValue: int64p(int64(kv[i+1].(int))),
		})
	}
	return params
}

func refine(t *testing.T, id string, params []policycfg.ParamValue) ([]Match, error) {
	c, err := NewRegistry().Classifier(id)
	if err != nil {
		t.Fatalf("error looking up %s: %v", id, err)
	}
	return c.Refine([]Match{Match{}.WithReg(RegSrcEPG, 1).WithReg(RegDstEPG, 2)}, params)
}

func TestL4ClassifierFansOutEtherTypes(t *testing.T) {
	matches, err := refine(t, L4ClassifierID, intParams(ProtoParam, 17, SourcePortParam, 53))
	if err != nil {
		t.Fatalf("error refining: %v", err)
	}

	want := []Match{
		{EthType: EthTypeIPv4, IPProto: IPProtoUDP, L4Src: 53},
		{EthType: EthTypeIPv6, IPProto: IPProtoUDP, L4Src: 53},
	}
	for i := range want {
		want[i] = want[i].WithReg(RegSrcEPG, 1).WithReg(RegDstEPG, 2)
	}
	if diff := cmp.Diff(want, matches); diff != "" {
		t.Fatalf("matches mismatch (-want +got):\n%s", diff)
	}
}

func TestL4ClassifierWithEtherType(t *testing.T) {
	matches, err := refine(t, L4ClassifierID,
		intParams(EtherTypeParam, int(EthTypeIPv4), ProtoParam, 6, DestPortParam, 443))
	if err != nil {
		t.Fatalf("error refining: %v", err)
	}
	if len(matches) != 1 || matches[0].EthType != EthTypeIPv4 || matches[0].L4Dst != 443 {
		t.Fatalf("unexpected matches %v", matches)
	}
}

func TestEtherTypeClassifierAlone(t *testing.T) {
	matches, err := refine(t, EtherTypeClassifierID, intParams(EtherTypeParam, int(EthTypeARP)))
	if err != nil {
		t.Fatalf("error refining: %v", err)
	}
	if len(matches) != 1 || matches[0].EthType != EthTypeARP {
		t.Fatalf("unexpected matches %v", matches)
	}

	// a standalone ethertype classifier has nothing to fan out for
	if _, err := refine(t, EtherTypeClassifierID, nil); errors.Cause(err) != ErrClassifierParam {
		t.Fatalf("expected a parameter error, got %v", err)
	}
}

func TestClassifierChainDisjoint(t *testing.T) {
	c, _ := NewRegistry().Classifier(EtherTypeClassifierID)
	matches, err := c.Refine([]Match{{EthType: EthTypeIPv6}}, intParams(EtherTypeParam, int(EthTypeIPv4)))
	if err != nil {
		t.Fatalf("error refining: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("disjoint candidate kept: %v", matches)
	}
}

func TestClassifierParamErrors(t *testing.T) {
	text := "tcp"
	for name, tc := range map[string]struct {
		id     string
		params []policycfg.ParamValue
	}{
		"missing proto":    {L4ClassifierID, intParams(DestPortParam, 80)},
		"proto not ip":     {IPProtoClassifierID, intParams(EtherTypeParam, int(EthTypeARP), ProtoParam, 6)},
		"ports on icmp":    {L4ClassifierID, intParams(ProtoParam, 1, DestPortParam, 80)},
		"port too large":   {L4ClassifierID, intParams(ProtoParam, 6, DestPortParam, 70000)},
		"proto too large":  {IPProtoClassifierID, intParams(ProtoParam, 300)},
		"string parameter": {IPProtoClassifierID, []policycfg.ParamValue{{Name: ProtoParam, StringValue: &text}}},
	} {
		_, err := refine(t, tc.id, tc.params)
		if errors.Cause(err) != ErrClassifierParam {
			t.Fatalf("%s: expected a parameter error, got %v", name, err)
		}
	}
}

func TestRegistryLookups(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Classifier("dscp"); errors.Cause(err) != ErrUnknownClassifier {
		t.Fatalf("expected unknown classifier, got %v", err)
	}
	if _, err := r.Action("redirect"); errors.Cause(err) != ErrUnknownClassifier {
		t.Fatalf("expected unknown action, got %v", err)
	}

	allow, err := r.Action(AllowActionID)
	if err != nil {
		t.Fatalf("error looking up allow: %v", err)
	}
	if diff := cmp.Diff([]Instruction{gotoTable(EgressNatTable)}, allow.Instructions()); diff != "" {
		t.Fatalf("allow mismatch (-want +got):\n%s", diff)
	}
	deny, _ := r.Action(DenyActionID)
	if len(deny.Instructions()) != 0 {
		t.Fatalf("deny must drop")
	}
}
