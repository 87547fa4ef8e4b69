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
	"fmt"
	"sort"
	"strings"
)

// RegMatch matches the full width of one pipeline register.
type RegMatch struct {
	Reg   uint8  `json:"reg"`
	Value uint32 `json:"value"`
}

// Match is the predicate of a flow. Zero valued fields are wildcards.
type Match struct {
	InPort     uint32     `json:"inPort,omitempty"`
	EthSrc     string     `json:"ethSrc,omitempty"`
	EthDst     string     `json:"ethDst,omitempty"`
	EthDstMask string     `json:"ethDstMask,omitempty"`
	EthType    uint16     `json:"ethType,omitempty"`
	VlanID     uint16     `json:"vlanId,omitempty"`
	VlanAbsent bool       `json:"vlanAbsent,omitempty"`
	IPSrc      string     `json:"ipSrc,omitempty"`
	IPDst      string     `json:"ipDst,omitempty"`
	IPProto    uint8      `json:"ipProto,omitempty"`
	L4Src      uint16     `json:"l4Src,omitempty"`
	L4Dst      uint16     `json:"l4Dst,omitempty"`
	TunnelID   uint64     `json:"tunnelId,omitempty"`
	TunnelDst  string     `json:"tunnelDst,omitempty"`
	Regs       []RegMatch `json:"regs,omitempty" hash:"set"`
}

// WithReg returns a copy of m that also matches reg against value.
func (m Match) WithReg(reg uint8, value uint32) Match {
	regs := make([]RegMatch, 0, len(m.Regs)+1)
	for _, r := range m.Regs {
		if r.Reg != reg {
			regs = append(regs, r)
		}
	}
	m.Regs = append(regs, RegMatch{Reg: reg, Value: value})
	return m
}

// Reg returns the value matched on reg.
func (m Match) Reg(reg uint8) (uint32, bool) {
	for _, r := range m.Regs {
		if r.Reg == reg {
			return r.Value, true
		}
	}
	return 0, false
}

func (m Match) clone() Match {
	m.Regs = append([]RegMatch(nil), m.Regs...)
	return m
}

// String renders the match in ovs-ofctl style with registers sorted, so equal
// matches always render the same.
func (m Match) String() string {
	parts := []string{}
	add := func(format string, args ...interface{}) {
		parts = append(parts, fmt.Sprintf(format, args...))
	}

	if m.InPort != 0 {
		add("in_port=%d", m.InPort)
	}
	if m.EthSrc != "" {
		add("dl_src=%s", m.EthSrc)
	}
	if m.EthDst != "" {
		if m.EthDstMask != "" {
			add("dl_dst=%s/%s", m.EthDst, m.EthDstMask)
		} else {
			add("dl_dst=%s", m.EthDst)
		}
	}
	if m.EthType != 0 {
		add("dl_type=0x%04x", m.EthType)
	}
	if m.VlanAbsent {
		add("vlan_tci=0x0000/0x1fff")
	} else if m.VlanID != 0 {
		add("dl_vlan=%d", m.VlanID)
	}
	if m.IPSrc != "" {
		add("nw_src=%s", m.IPSrc)
	}
	if m.IPDst != "" {
		add("nw_dst=%s", m.IPDst)
	}
	if m.IPProto != 0 {
		add("nw_proto=%d", m.IPProto)
	}
	if m.L4Src != 0 {
		add("tp_src=%d", m.L4Src)
	}
	if m.L4Dst != 0 {
		add("tp_dst=%d", m.L4Dst)
	}
	if m.TunnelID != 0 {
		add("tun_id=0x%x", m.TunnelID)
	}
	if m.TunnelDst != "" {
		add("tun_dst=%s", m.TunnelDst)
	}

	regs := append([]RegMatch(nil), m.Regs...)
	sort.Slice(regs, func(i, j int) bool { return regs[i].Reg < regs[j].Reg })
	for _, r := range regs {
		add("reg%d=0x%x", r.Reg, r.Value)
	}

	return strings.Join(parts, ",")
}

// ActionType names a flow or bucket action.
type ActionType string

// Supported actions.
const (
	ActionOutput    ActionType = "output"
	ActionOutputReg ActionType = "output_reg"
	ActionLoadReg   ActionType = "load_reg"
	ActionSetField  ActionType = "set_field"
	ActionPushVlan  ActionType = "push_vlan"
	ActionPopVlan   ActionType = "pop_vlan"
	ActionGroup     ActionType = "group"
	ActionDecTTL    ActionType = "dec_ttl"
)

// Fields an ActionSetField may write.
const (
	FieldEthSrc    = "eth_src"
	FieldEthDst    = "eth_dst"
	FieldIPSrc     = "ip_src"
	FieldIPDst     = "ip_dst"
	FieldTunnelID  = "tun_id"
	FieldTunnelDst = "tun_dst"
	FieldVlanID    = "vlan_vid"
)

// Action is one step of an action list. Number carries the port, group,
// register value, tunnel id or vlan depending on Type; Value carries
// addresses written by ActionSetField.
type Action struct {
	Type   ActionType `json:"type"`
	Reg    uint8      `json:"reg,omitempty"`
	Field  string     `json:"field,omitempty"`
	Value  string     `json:"value,omitempty"`
	Number uint64     `json:"number,omitempty"`
}

func (a Action) String() string {
	switch a.Type {
	case ActionOutput:
		return fmt.Sprintf("output:%d", a.Number)
	case ActionOutputReg:
		return fmt.Sprintf("output:reg%d", a.Reg)
	case ActionLoadReg:
		return fmt.Sprintf("load:0x%x->reg%d", a.Number, a.Reg)
	case ActionSetField:
		if a.Value != "" {
			return fmt.Sprintf("set_field:%s->%s", a.Value, a.Field)
		}
		return fmt.Sprintf("set_field:0x%x->%s", a.Number, a.Field)
	case ActionPushVlan:
		return fmt.Sprintf("push_vlan:0x%04x", a.Number)
	case ActionGroup:
		return fmt.Sprintf("group:%d", a.Number)
	}
	return string(a.Type)
}

// InstructionType names a flow instruction.
type InstructionType string

// Supported instructions.
const (
	InstrApplyActions InstructionType = "apply_actions"
	InstrGotoTable    InstructionType = "goto_table"
)

// Instruction is one flow instruction. The order of Actions is significant.
type Instruction struct {
	Type    InstructionType `json:"type"`
	Actions []Action        `json:"actions,omitempty"`
	Table   uint8           `json:"table,omitempty"`
}

func (i Instruction) String() string {
	if i.Type == InstrGotoTable {
		return fmt.Sprintf("goto_table:%d", i.Table)
	}
	acts := make([]string, 0, len(i.Actions))
	for _, a := range i.Actions {
		acts = append(acts, a.String())
	}
	return strings.Join(acts, ",")
}

// Flow is one switch rule. ID is derived from the flow's content and is the
// key of the flow within its table.
type Flow struct {
	ID           string        `json:"id" hash:"ignore"`
	Table        uint8         `json:"table"`
	Priority     uint16        `json:"priority"`
	Match        Match         `json:"match"`
	Instructions []Instruction `json:"instructions,omitempty" hash:"set"`
}

func (f *Flow) String() string {
	instrs := []string{}
	for _, i := range f.Instructions {
		if s := i.String(); s != "" {
			instrs = append(instrs, s)
		}
	}
	actions := strings.Join(instrs, ",")
	if actions == "" {
		actions = "drop"
	}

	match := f.Match.String()
	if match != "" {
		match += " "
	}
	return fmt.Sprintf("table=%d, priority=%d, %sactions=%s", f.Table, f.Priority, match, actions)
}

// GroupType is the OpenFlow group type.
type GroupType string

// GroupTypeAll sends the packet to every bucket.
const GroupTypeAll GroupType = "all"

// Bucket is one output path of a group. The order of Actions is significant.
type Bucket struct {
	ID      uint32   `json:"id"`
	Weight  uint16   `json:"weight,omitempty"`
	Actions []Action `json:"actions"`
}

// Group is a multi-path output group.
type Group struct {
	ID      uint32    `json:"id"`
	Type    GroupType `json:"type"`
	Buckets []Bucket  `json:"buckets" hash:"set"`
}

func (g *Group) String() string {
	buckets := make([]string, 0, len(g.Buckets))
	for _, b := range g.Buckets {
		acts := make([]string, 0, len(b.Actions))
		for _, a := range b.Actions {
			acts = append(acts, a.String())
		}
		buckets = append(buckets, fmt.Sprintf("bucket=bucket_id:%d,actions=%s", b.ID, strings.Join(acts, ",")))
	}
	return fmt.Sprintf("group_id=%d, type=%s, %s", g.ID, g.Type, strings.Join(buckets, ","))
}

func newFlow(name string, table uint8, priority uint16, match Match, instrs ...Instruction) *Flow {
	return &Flow{
		ID:           fmt.Sprintf("%s|%d|%s", name, priority, match.String()),
		Table:        table,
		Priority:     priority,
		Match:        match,
		Instructions: instrs,
	}
}

// dropAllFlow matches everything at the lowest priority and has no
// instructions.
func dropAllFlow(table uint8) *Flow {
	return newFlow("drop-all", table, dropAllPriority, Match{})
}

func gotoTable(table uint8) Instruction {
	return Instruction{Type: InstrGotoTable, Table: table}
}

func applyActions(actions ...Action) Instruction {
	return Instruction{Type: InstrApplyActions, Actions: actions}
}

func outputAction(port uint32) Action {
	return Action{Type: ActionOutput, Number: uint64(port)}
}

func outputRegAction(reg uint8) Action {
	return Action{Type: ActionOutputReg, Reg: reg}
}

func loadRegAction(reg uint8, value uint32) Action {
	return Action{Type: ActionLoadReg, Reg: reg, Number: uint64(value)}
}

func setFieldAction(field, value string) Action {
	return Action{Type: ActionSetField, Field: field, Value: value}
}

func setTunnelIDAction(id uint32) Action {
	return Action{Type: ActionSetField, Field: FieldTunnelID, Number: uint64(id)}
}

func pushVlanActions(vlanID uint16) []Action {
	return []Action{
		{Type: ActionPushVlan, Number: uint64(ethTypeVlan)},
		{Type: ActionSetField, Field: FieldVlanID, Number: uint64(vlanID)},
	}
}

func groupAction(id uint32) Action {
	return Action{Type: ActionGroup, Number: uint64(id)}
}

func decTTLAction() Action {
	return Action{Type: ActionDecTTL}
}
