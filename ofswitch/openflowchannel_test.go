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

package ofswitch

import (
	"context"
	"errors"
	"testing"

	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"

	"github.com/opendaylight/groupbasedpolicy-sub013/ofrender"
)

type recordingConn struct {
	msgs    []util.Message
	failAll bool
}

func (c *recordingConn) Send(msg util.Message) error {
	if c.failAll {
		return errors.New("broken pipe")
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func natFlow() *ofrender.Flow {
	return &ofrender.Flow{
		ID:       "ingress-nat",
		Table:    ofrender.IngressNatTable,
		Priority: 100,
		Match: ofrender.Match{
			EthType: ofrender.EthTypeIPv4,
			IPDst:   "192.168.50.10",
		}.WithReg(ofrender.RegOutPort, 3),
		Instructions: []ofrender.Instruction{
			{Type: ofrender.InstrApplyActions, Actions: []ofrender.Action{
				{Type: ofrender.ActionSetField, Field: ofrender.FieldIPDst, Value: "10.0.1.1"},
				{Type: ofrender.ActionLoadReg, Reg: ofrender.RegSrcCG, Number: uint64(ofrender.ExternalTag)},
			}},
			{Type: ofrender.InstrGotoTable, Table: ofrender.DestinationMapperTable},
		},
	}
}

func floodGroup() *ofrender.Group {
	return &ofrender.Group{
		ID:   5,
		Type: ofrender.GroupTypeAll,
		Buckets: []ofrender.Bucket{
			{ID: 3, Actions: []ofrender.Action{{Type: ofrender.ActionOutput, Number: 3}}},
			{ID: 5, Actions: []ofrender.Action{{Type: ofrender.ActionOutput, Number: 5}}},
		},
	}
}

func TestEncodeDeltaOrder(t *testing.T) {
	removed := natFlow()
	removed.Priority = 99
	delta := &ofrender.Delta{
		FlowsToRemove:  []*ofrender.Flow{removed},
		FlowsToAdd:     []*ofrender.Flow{natFlow()},
		GroupsToAdd:    []*ofrender.Group{floodGroup()},
		GroupsToModify: []*ofrender.Group{{ID: 6, Type: ofrender.GroupTypeAll}},
		GroupsToRemove: []*ofrender.Group{{ID: 9}},
	}

	msgs, err := EncodeDelta(delta)
	if err != nil {
		t.Fatalf("error encoding. Err: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}

	add := msgs[0].(*openflow13.GroupMod)
	if add.Command != openflow13.OFPGC_ADD || add.GroupId != 5 || len(add.Buckets) != 2 {
		t.Fatalf("unexpected group add %+v", add)
	}
	if mod := msgs[1].(*openflow13.GroupMod); mod.Command != openflow13.OFPGC_MODIFY || mod.GroupId != 6 {
		t.Fatalf("unexpected group modify %+v", mod)
	}

	del := msgs[2].(*openflow13.FlowMod)
	if del.Command != openflow13.FC_DELETE || del.Priority != 99 ||
		del.Cookie != ofrender.FlowHash(removed) || del.CookieMask != 0xffffffffffffffff {
		t.Fatalf("unexpected flow delete %+v", del)
	}
	if len(del.Instructions) != 0 {
		t.Fatalf("flow delete carries instructions")
	}

	fadd := msgs[3].(*openflow13.FlowMod)
	if fadd.Command != openflow13.FC_ADD || fadd.TableId != ofrender.IngressNatTable ||
		fadd.Cookie != ofrender.FlowHash(natFlow()) {
		t.Fatalf("unexpected flow add %+v", fadd)
	}
	if len(fadd.Instructions) != 2 {
		t.Fatalf("expected 2 instructions, got %d", len(fadd.Instructions))
	}
	// eth_type, ipv4_dst and reg7
	if len(fadd.Match.Fields) != 3 {
		t.Fatalf("expected 3 match fields, got %d", len(fadd.Match.Fields))
	}

	if gdel := msgs[4].(*openflow13.GroupMod); gdel.Command != openflow13.OFPGC_DELETE || gdel.GroupId != 9 {
		t.Fatalf("unexpected group delete %+v", gdel)
	}
}

func TestEncodeDeltaRejectsBadFlows(t *testing.T) {
	badMAC := natFlow()
	badMAC.Match.EthSrc = "not-a-mac"
	badAction := natFlow()
	badAction.Instructions[0].Actions = append(badAction.Instructions[0].Actions,
		ofrender.Action{Type: "teleport"})
	badPort := natFlow()
	badPort.Match.L4Dst = 80

	for _, f := range []*ofrender.Flow{badMAC, badAction, badPort} {
		if _, err := EncodeDelta(&ofrender.Delta{FlowsToAdd: []*ofrender.Flow{f}}); err == nil {
			t.Fatalf("expected an error encoding %s", f)
		}
	}
}

func TestOpenflowChannelApply(t *testing.T) {
	ch := NewOpenflowChannel()
	delta := &ofrender.Delta{
		GroupsToAdd: []*ofrender.Group{floodGroup()},
		FlowsToAdd:  []*ofrender.Flow{natFlow()},
	}

	if err := ch.Apply(context.Background(), "node1", delta); err == nil {
		t.Fatalf("expected an error for an unconnected switch")
	}

	conn := &recordingConn{}
	ch.Connect("node1", conn)
	if err := ch.Apply(context.Background(), "node1", delta); err != nil {
		t.Fatalf("error applying. Err: %v", err)
	}
	if len(conn.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conn.msgs))
	}

	// nothing is sent when encoding fails
	bad := natFlow()
	bad.Match.EthDst = "zz"
	if err := ch.Apply(context.Background(), "node1",
		&ofrender.Delta{FlowsToAdd: []*ofrender.Flow{natFlow(), bad}}); err == nil {
		t.Fatalf("expected an encoding error")
	}
	if len(conn.msgs) != 2 {
		t.Fatalf("messages sent for an invalid delta")
	}

	conn.failAll = true
	if err := ch.Apply(context.Background(), "node1", delta); err == nil {
		t.Fatalf("expected a send error")
	}

	ch.Disconnect("node1")
	if err := ch.Apply(context.Background(), "node1", delta); err == nil {
		t.Fatalf("expected an error after disconnect")
	}
}

func TestNiciraRegisterEncoding(t *testing.T) {
	load := newNXRegLoad(ofrender.RegFD, 0xabcd)
	data, err := load.MarshalBinary()
	if err != nil {
		t.Fatalf("error marshaling. Err: %v", err)
	}
	if len(data) != int(load.Len()) || data[0] != 0xff || data[1] != 0xff {
		t.Fatalf("unexpected reg_load encoding %x", data)
	}
	// NX vendor id
	if data[6] != 0x23 || data[7] != 0x20 {
		t.Fatalf("missing experimenter id in %x", data)
	}

	decoded := &nxRegLoad{}
	if err := decoded.UnmarshalBinary(data); err != nil {
		t.Fatalf("error unmarshaling. Err: %v", err)
	}
	if decoded.Reg != ofrender.RegFD || decoded.Value != 0xabcd {
		t.Fatalf("decoded %+v", decoded)
	}

	out := &nxOutputReg{}
	data, _ = newNXOutputReg(ofrender.RegOutPort).MarshalBinary()
	if err := out.UnmarshalBinary(data); err != nil || out.Reg != ofrender.RegOutPort {
		t.Fatalf("output_reg round trip failed: %+v, %v", out, err)
	}

	field := regMatchField(ofrender.RegSrcEPG, 9)
	if field.Len() != 8 {
		t.Fatalf("expected an 8 byte register match, got %d", field.Len())
	}
}

func TestOpenflowChannelReleaseKeepsReplacement(t *testing.T) {
	ch := NewOpenflowChannel()
	old, replacement := &recordingConn{}, &recordingConn{}
	ch.Connect("node1", old)
	ch.Connect("node1", replacement)

	ch.release("node1", old)
	if err := ch.Apply(context.Background(), "node1", &ofrender.Delta{}); err != nil {
		t.Fatalf("replacement connection was dropped. Err: %v", err)
	}

	ch.release("node1", replacement)
	if err := ch.Apply(context.Background(), "node1", &ofrender.Delta{}); err == nil {
		t.Fatalf("expected an error after release")
	}
}

func TestControllerParseRejectsOtherVersions(t *testing.T) {
	c := NewController(NewOpenflowChannel(), func(string) (string, bool) { return "", false }, nil)
	if _, err := c.Parse([]byte{0x01, 0, 0, 8, 0, 0, 0, 1}); err == nil {
		t.Fatalf("expected an error for an openflow 1.0 message")
	}
	if _, err := c.Parse(nil); err == nil {
		t.Fatalf("expected an error for an empty message")
	}
}
