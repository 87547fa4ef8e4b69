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
	"encoding/binary"
	"errors"

	"github.com/contiv/libOpenflow/openflow13"
)

// Nicira extension encodings for the register matches and actions the
// pipeline needs.

const (
	nxExperimenterID = 0x00002320
	nxastRegLoad     = 7
	nxastOutputReg   = 15
	nxActionLen      = 24
	regBytes         = 4
)

// regValue is the 32 bit payload of an NXM_NX_REGn match field.
type regValue struct {
	Data uint32
}

func (v *regValue) Len() uint16 {
	return regBytes
}

func (v *regValue) MarshalBinary() ([]byte, error) {
	data := make([]byte, regBytes)
	binary.BigEndian.PutUint32(data, v.Data)
	return data, nil
}

func (v *regValue) UnmarshalBinary(data []byte) error {
	if len(data) < regBytes {
		return errors.New("register value too short")
	}
	v.Data = binary.BigEndian.Uint32(data)
	return nil
}

// regMatchField matches the whole of register reg against value.
func regMatchField(reg uint8, value uint32) *openflow13.MatchField {
	return &openflow13.MatchField{
		Class:  openflow13.OXM_CLASS_NXM_1,
		Field:  openflow13.NXM_NX_REG0 + reg,
		Length: regBytes,
		Value:  &regValue{Data: value},
	}
}

// nxmHeader is the 32 bit NXM header naming register reg.
func nxmHeader(reg uint8) uint32 {
	return uint32(openflow13.OXM_CLASS_NXM_1)<<16 |
		uint32(openflow13.NXM_NX_REG0+reg)<<9 | regBytes
}

// fullRegOfsNbits covers bits 0 to 31.
const fullRegOfsNbits = 0<<6 | (32 - 1)

// nxRegLoad loads a constant into a register.
type nxRegLoad struct {
	openflow13.ActionHeader
	Reg   uint8
	Value uint64
}

func newNXRegLoad(reg uint8, value uint64) *nxRegLoad {
	a := &nxRegLoad{Reg: reg, Value: value}
	a.Type = openflow13.ActionType_Experimenter
	a.Length = nxActionLen
	return a
}

func (a *nxRegLoad) Len() uint16 {
	return nxActionLen
}

func (a *nxRegLoad) MarshalBinary() ([]byte, error) {
	data := make([]byte, nxActionLen)
	binary.BigEndian.PutUint16(data[0:], a.Type)
	binary.BigEndian.PutUint16(data[2:], a.Length)
	binary.BigEndian.PutUint32(data[4:], nxExperimenterID)
	binary.BigEndian.PutUint16(data[8:], nxastRegLoad)
	binary.BigEndian.PutUint16(data[10:], fullRegOfsNbits)
	binary.BigEndian.PutUint32(data[12:], nxmHeader(a.Reg))
	binary.BigEndian.PutUint64(data[16:], a.Value)
	return data, nil
}

func (a *nxRegLoad) UnmarshalBinary(data []byte) error {
	if len(data) < nxActionLen {
		return errors.New("reg_load action too short")
	}
	a.Type = binary.BigEndian.Uint16(data[0:])
	a.Length = binary.BigEndian.Uint16(data[2:])
	a.Reg = uint8(binary.BigEndian.Uint32(data[12:])>>9) & 0x7f
	a.Value = binary.BigEndian.Uint64(data[16:])
	return nil
}

// nxOutputReg outputs to the port held in a register.
type nxOutputReg struct {
	openflow13.ActionHeader
	Reg uint8
}

func newNXOutputReg(reg uint8) *nxOutputReg {
	a := &nxOutputReg{Reg: reg}
	a.Type = openflow13.ActionType_Experimenter
	a.Length = nxActionLen
	return a
}

func (a *nxOutputReg) Len() uint16 {
	return nxActionLen
}

func (a *nxOutputReg) MarshalBinary() ([]byte, error) {
	data := make([]byte, nxActionLen)
	binary.BigEndian.PutUint16(data[0:], a.Type)
	binary.BigEndian.PutUint16(data[2:], a.Length)
	binary.BigEndian.PutUint32(data[4:], nxExperimenterID)
	binary.BigEndian.PutUint16(data[8:], nxastOutputReg)
	binary.BigEndian.PutUint16(data[10:], fullRegOfsNbits)
	binary.BigEndian.PutUint32(data[12:], nxmHeader(a.Reg))
	// max_len and padding stay zero
	return data, nil
}

func (a *nxOutputReg) UnmarshalBinary(data []byte) error {
	if len(data) < nxActionLen {
		return errors.New("output_reg action too short")
	}
	a.Type = binary.BigEndian.Uint16(data[0:])
	a.Length = binary.BigEndian.Uint16(data[2:])
	a.Reg = uint8(binary.BigEndian.Uint32(data[12:])>>9) & 0x7f
	return nil
}

// decNwTTL is the OpenFlow 1.3 dec_nw_ttl action.
type decNwTTL struct {
	openflow13.ActionHeader
}

func newDecNwTTL() *decNwTTL {
	a := &decNwTTL{}
	a.Type = openflow13.ActionType_DecNwTtl
	a.Length = 8
	return a
}

func (a *decNwTTL) Len() uint16 {
	return 8
}

func (a *decNwTTL) MarshalBinary() ([]byte, error) {
	data, err := a.ActionHeader.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(data, make([]byte, 4)...), nil
}

func (a *decNwTTL) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errors.New("dec_nw_ttl action too short")
	}
	return a.ActionHeader.UnmarshalBinary(data[:4])
}
