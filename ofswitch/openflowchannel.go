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
	"net"
	"sync"

	"github.com/contiv/libOpenflow/openflow13"
	"github.com/contiv/libOpenflow/util"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
	"github.com/opendaylight/groupbasedpolicy-sub013/ofrender"
)

// SwitchConn sends OpenFlow messages to one switch, e.g. an ofctrl switch
// session.
type SwitchConn interface {
	Send(msg util.Message) error
}

// OpenflowChannel encodes deltas as OpenFlow 1.3 flow and group mods and
// sends them over the connection registered for each switch.
type OpenflowChannel struct {
	mutex sync.Mutex
	conns map[string]SwitchConn
}

// NewOpenflowChannel returns a channel without connected switches.
func NewOpenflowChannel() *OpenflowChannel {
	return &OpenflowChannel{conns: map[string]SwitchConn{}}
}

// Connect registers the connection of nodeID.
func (c *OpenflowChannel) Connect(nodeID string, conn SwitchConn) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.conns[nodeID] = conn
	log.Infof("Switch %s connected", nodeID)
}

// Disconnect forgets the connection of nodeID.
func (c *OpenflowChannel) Disconnect(nodeID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.conns, nodeID)
	log.Infof("Switch %s disconnected", nodeID)
}

// release disconnects nodeID only if conn is still its connection, so a
// late failure of a replaced stream keeps the new one.
func (c *OpenflowChannel) release(nodeID string, conn SwitchConn) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.conns[nodeID] == conn {
		delete(c.conns, nodeID)
		log.Infof("Switch %s disconnected", nodeID)
	}
}

// Apply encodes delta and sends it to nodeID. Nothing is sent if any part
// of the delta cannot be encoded.
func (c *OpenflowChannel) Apply(ctx context.Context, nodeID string, delta *ofrender.Delta) error {
	c.mutex.Lock()
	conn, ok := c.conns[nodeID]
	c.mutex.Unlock()
	if !ok {
		return core.Errorf("switch %s is not connected", nodeID)
	}

	msgs, err := EncodeDelta(delta)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := conn.Send(msg); err != nil {
			return errors.Wrapf(err, "sending to switch %s", nodeID)
		}
	}
	return nil
}

// EncodeDelta returns the messages programming delta, in an order where no
// flow references a missing group: group adds and modifies, flow deletes,
// flow adds, group deletes.
func EncodeDelta(delta *ofrender.Delta) ([]util.Message, error) {
	msgs := []util.Message{}
	for _, g := range delta.GroupsToAdd {
		gm, err := groupMod(g, openflow13.OFPGC_ADD)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, gm)
	}
	for _, g := range delta.GroupsToModify {
		gm, err := groupMod(g, openflow13.OFPGC_MODIFY)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, gm)
	}
	for _, f := range delta.FlowsToRemove {
		fm, err := flowMod(f, openflow13.FC_DELETE)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, fm)
	}
	for _, f := range delta.FlowsToAdd {
		fm, err := flowMod(f, openflow13.FC_ADD)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, fm)
	}
	for _, g := range delta.GroupsToRemove {
		gm := openflow13.NewGroupMod()
		gm.GroupId = g.ID
		gm.Command = openflow13.OFPGC_DELETE
		msgs = append(msgs, gm)
	}
	return msgs, nil
}

func flowMod(f *ofrender.Flow, command uint8) (*openflow13.FlowMod, error) {
	fm := openflow13.NewFlowMod()
	fm.TableId = f.Table
	fm.Priority = f.Priority
	fm.Cookie = ofrender.FlowHash(f)
	fm.Command = command

	match, err := xlateMatch(f.Match)
	if err != nil {
		return nil, errors.Wrapf(err, "flow %s", f)
	}
	fm.Match = *match

	if command == openflow13.FC_DELETE {
		fm.CookieMask = 0xffffffffffffffff
		fm.OutPort = openflow13.P_ANY
		fm.OutGroup = openflow13.OFPG_ANY
		return fm, nil
	}

	for _, instr := range f.Instructions {
		switch instr.Type {
		case ofrender.InstrGotoTable:
			fm.AddInstruction(openflow13.NewInstrGotoTable(instr.Table))
		case ofrender.InstrApplyActions:
			actInstr := openflow13.NewInstrApplyActions()
			for _, a := range instr.Actions {
				act, err := xlateAction(a)
				if err != nil {
					return nil, errors.Wrapf(err, "flow %s", f)
				}
				actInstr.AddAction(act, false)
			}
			fm.AddInstruction(actInstr)
		default:
			return nil, core.Errorf("unknown instruction %q", instr.Type)
		}
	}
	return fm, nil
}

func groupMod(g *ofrender.Group, command uint16) (*openflow13.GroupMod, error) {
	gm := openflow13.NewGroupMod()
	gm.GroupId = g.ID
	gm.Command = command
	gm.Type = openflow13.OFPGT_ALL

	for _, b := range g.Buckets {
		bkt := openflow13.NewBucket()
		for _, a := range b.Actions {
			act, err := xlateAction(a)
			if err != nil {
				return nil, errors.Wrapf(err, "group %d", g.ID)
			}
			bkt.AddAction(act)
		}
		gm.AddBucket(*bkt)
	}
	return gm, nil
}

func parseMAC(s string) (net.HardwareAddr, error) {
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, core.Errorf("invalid mac %q", s)
	}
	return mac, nil
}

func parseIP(s string) (net.IP, bool, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, false, core.Errorf("invalid ip %q", s)
	}
	if v4 := ip.To4(); v4 != nil {
		return v4, true, nil
	}
	return ip, false, nil
}

func ipField(s string, src bool) (*openflow13.MatchField, error) {
	ip, v4, err := parseIP(s)
	if err != nil {
		return nil, err
	}
	switch {
	case v4 && src:
		return openflow13.NewIpv4SrcField(ip, nil), nil
	case v4:
		return openflow13.NewIpv4DstField(ip, nil), nil
	case src:
		return openflow13.NewIpv6SrcField(ip, nil), nil
	}
	return openflow13.NewIpv6DstField(ip, nil), nil
}

func l4Field(proto uint8, port uint16, src bool) (*openflow13.MatchField, error) {
	switch proto {
	case ofrender.IPProtoTCP:
		if src {
			return openflow13.NewTcpSrcField(port), nil
		}
		return openflow13.NewTcpDstField(port), nil
	case ofrender.IPProtoUDP:
		if src {
			return openflow13.NewUdpSrcField(port), nil
		}
		return openflow13.NewUdpDstField(port), nil
	case ofrender.IPProtoSCTP:
		// sctp ports share the tcp port encoding
		if src {
			f := openflow13.NewTcpSrcField(port)
			f.Field = openflow13.OXM_FIELD_SCTP_SRC
			return f, nil
		}
		f := openflow13.NewTcpDstField(port)
		f.Field = openflow13.OXM_FIELD_SCTP_DST
		return f, nil
	}
	return nil, core.Errorf("no port fields for ip protocol %d", proto)
}

// xlateMatch converts a match, adding prerequisite fields before the fields
// depending on them.
func xlateMatch(m ofrender.Match) (*openflow13.Match, error) {
	ofMatch := openflow13.NewMatch()

	if m.InPort != 0 {
		ofMatch.AddField(*openflow13.NewInPortField(m.InPort))
	}
	if m.EthSrc != "" {
		mac, err := parseMAC(m.EthSrc)
		if err != nil {
			return nil, err
		}
		ofMatch.AddField(*openflow13.NewEthSrcField(mac, nil))
	}
	if m.EthDst != "" {
		mac, err := parseMAC(m.EthDst)
		if err != nil {
			return nil, err
		}
		var mask *net.HardwareAddr
		if m.EthDstMask != "" {
			mm, err := parseMAC(m.EthDstMask)
			if err != nil {
				return nil, err
			}
			mask = &mm
		}
		ofMatch.AddField(*openflow13.NewEthDstField(mac, mask))
	}
	if m.EthType != 0 {
		ofMatch.AddField(*openflow13.NewEthTypeField(m.EthType))
	}
	if m.VlanAbsent {
		vlan := openflow13.NewVlanIdField(0, nil)
		vlan.Value = &openflow13.VlanIdField{VlanId: 0}
		ofMatch.AddField(*vlan)
	} else if m.VlanID != 0 {
		ofMatch.AddField(*openflow13.NewVlanIdField(m.VlanID, nil))
	}
	if m.IPSrc != "" {
		f, err := ipField(m.IPSrc, true)
		if err != nil {
			return nil, err
		}
		ofMatch.AddField(*f)
	}
	if m.IPDst != "" {
		f, err := ipField(m.IPDst, false)
		if err != nil {
			return nil, err
		}
		ofMatch.AddField(*f)
	}
	if m.IPProto != 0 {
		ofMatch.AddField(*openflow13.NewIpProtoField(m.IPProto))
	}
	if m.L4Src != 0 {
		f, err := l4Field(m.IPProto, m.L4Src, true)
		if err != nil {
			return nil, err
		}
		ofMatch.AddField(*f)
	}
	if m.L4Dst != 0 {
		f, err := l4Field(m.IPProto, m.L4Dst, false)
		if err != nil {
			return nil, err
		}
		ofMatch.AddField(*f)
	}
	if m.TunnelID != 0 {
		ofMatch.AddField(*openflow13.NewTunnelIdField(m.TunnelID))
	}
	if m.TunnelDst != "" {
		ip, v4, err := parseIP(m.TunnelDst)
		if err != nil || !v4 {
			return nil, core.Errorf("invalid tunnel destination %q", m.TunnelDst)
		}
		ofMatch.AddField(*openflow13.NewTunnelIpv4DstField(ip, nil))
	}
	for _, r := range m.Regs {
		if r.Reg > 7 {
			return nil, core.Errorf("invalid register %d", r.Reg)
		}
		ofMatch.AddField(*regMatchField(r.Reg, r.Value))
	}

	return ofMatch, nil
}

func xlateAction(a ofrender.Action) (openflow13.Action, error) {
	switch a.Type {
	case ofrender.ActionOutput:
		return openflow13.NewActionOutput(uint32(a.Number)), nil
	case ofrender.ActionOutputReg:
		if a.Reg > 7 {
			return nil, core.Errorf("invalid register %d", a.Reg)
		}
		return newNXOutputReg(a.Reg), nil
	case ofrender.ActionLoadReg:
		if a.Reg > 7 {
			return nil, core.Errorf("invalid register %d", a.Reg)
		}
		return newNXRegLoad(a.Reg, a.Number), nil
	case ofrender.ActionPushVlan:
		return openflow13.NewActionPushVlan(uint16(a.Number)), nil
	case ofrender.ActionPopVlan:
		return openflow13.NewActionPopVlan(), nil
	case ofrender.ActionGroup:
		return openflow13.NewActionGroup(uint32(a.Number)), nil
	case ofrender.ActionDecTTL:
		return newDecNwTTL(), nil
	case ofrender.ActionSetField:
		field, err := setField(a)
		if err != nil {
			return nil, err
		}
		return openflow13.NewActionSetField(*field), nil
	}
	return nil, core.Errorf("unknown action %q", a.Type)
}

func setField(a ofrender.Action) (*openflow13.MatchField, error) {
	switch a.Field {
	case ofrender.FieldEthSrc, ofrender.FieldEthDst:
		mac, err := parseMAC(a.Value)
		if err != nil {
			return nil, err
		}
		if a.Field == ofrender.FieldEthSrc {
			return openflow13.NewEthSrcField(mac, nil), nil
		}
		return openflow13.NewEthDstField(mac, nil), nil
	case ofrender.FieldIPSrc:
		return ipField(a.Value, true)
	case ofrender.FieldIPDst:
		return ipField(a.Value, false)
	case ofrender.FieldTunnelID:
		return openflow13.NewTunnelIdField(a.Number), nil
	case ofrender.FieldTunnelDst:
		ip, v4, err := parseIP(a.Value)
		if err != nil || !v4 {
			return nil, core.Errorf("invalid tunnel destination %q", a.Value)
		}
		return openflow13.NewTunnelIpv4DstField(ip, nil), nil
	case ofrender.FieldVlanID:
		return openflow13.NewVlanIdField(uint16(a.Number), nil), nil
	}
	return nil, core.Errorf("unknown set_field target %q", a.Field)
}
