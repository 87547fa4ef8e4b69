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

// Package resources allocates the small integers the forwarding pipeline
// carries in its registers in place of group, domain and tunnel ids.
package resources

import (
	"fmt"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultOrdinalWidth is the number of register bits an ordinal may use.
const DefaultOrdinalWidth = 24

// ErrOrdinalSpaceExhausted is returned when every ordinal of a dimension is
// in use.
var ErrOrdinalSpaceExhausted = errors.New("ordinal space exhausted")

// Dimension is an independent ordinal space.
type Dimension int

// Ordinal dimensions.
const (
	EndpointGroup Dimension = iota
	ConditionGroup
	BridgeDomain
	FloodDomain
	RoutingDomain
	TunnelID
)

// Dimensions lists every dimension in a fixed order.
var Dimensions = []Dimension{EndpointGroup, ConditionGroup, BridgeDomain,
	FloodDomain, RoutingDomain, TunnelID}

func (d Dimension) String() string {
	switch d {
	case EndpointGroup:
		return "endpoint-group"
	case ConditionGroup:
		return "condition-group"
	case BridgeDomain:
		return "bridge-domain"
	case FloodDomain:
		return "flood-domain"
	case RoutingDomain:
		return "routing-domain"
	case TunnelID:
		return "tunnel-id"
	}
	return fmt.Sprintf("dimension-%d", int(d))
}

type ordinalSpace struct {
	byKey map[string]uint32
	used  *bitset.BitSet
}

// OrdinalAllocator maps (dimension, key) pairs to ordinals. An ordinal stays
// bound to its key for the life of the allocator unless released. Ordinal 0
// is never handed out; it stands for "none" in the pipeline.
type OrdinalAllocator struct {
	mutex sync.Mutex
	max   uint32
	dims  map[Dimension]*ordinalSpace
}

// NewOrdinalAllocator returns an allocator whose ordinals fit in width bits.
func NewOrdinalAllocator(width uint) *OrdinalAllocator {
	if width == 0 || width > 32 {
		width = DefaultOrdinalWidth
	}
	return &OrdinalAllocator{
		max:  uint32((uint64(1) << width) - 1),
		dims: map[Dimension]*ordinalSpace{},
	}
}

func (a *OrdinalAllocator) space(dim Dimension) *ordinalSpace {
	s, ok := a.dims[dim]
	if !ok {
		s = &ordinalSpace{byKey: map[string]uint32{}, used: bitset.New(1)}
		s.used.Set(0)
		a.dims[dim] = s
	}
	return s
}

// Allocate returns the ordinal bound to key, binding the lowest free one on
// first use.
func (a *OrdinalAllocator) Allocate(dim Dimension, key string) (uint32, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	s := a.space(dim)
	if ord, ok := s.byKey[key]; ok {
		return ord, nil
	}

	next, ok := s.used.NextClear(1)
	if !ok {
		next = s.used.Len()
	}
	if next > uint(a.max) {
		log.Errorf("No %s ordinal left for %q, %d in use", dim, key, len(s.byKey))
		return 0, errors.Wrapf(ErrOrdinalSpaceExhausted, "%s %q", dim, key)
	}

	s.used.Set(next)
	s.byKey[key] = uint32(next)
	log.Debugf("Allocated %s ordinal %d for %q", dim, next, key)
	return uint32(next), nil
}

// Reserve keeps ord of dim from ever being allocated. Ordinals outside the
// allocator's width are ignored.
func (a *OrdinalAllocator) Reserve(dim Dimension, ord uint32) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if ord == 0 || ord > a.max {
		return
	}
	s := a.space(dim)
	if s.used.Test(uint(ord)) {
		return
	}
	s.used.Set(uint(ord))
	log.Debugf("Reserved %s ordinal %d", dim, ord)
}

// Lookup returns the ordinal bound to key without allocating.
func (a *OrdinalAllocator) Lookup(dim Dimension, key string) (uint32, bool) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	s, ok := a.dims[dim]
	if !ok {
		return 0, false
	}
	ord, ok := s.byKey[key]
	return ord, ok
}

// Release unbinds key. The caller guarantees no installed flow still
// references its ordinal.
func (a *OrdinalAllocator) Release(dim Dimension, key string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	s, ok := a.dims[dim]
	if !ok {
		return
	}
	if ord, ok := s.byKey[key]; ok {
		s.used.Clear(uint(ord))
		delete(s.byKey, key)
		log.Debugf("Released %s ordinal %d of %q", dim, ord, key)
	}
}

// Bindings returns a copy of the key to ordinal map of every dimension.
func (a *OrdinalAllocator) Bindings() map[string]map[string]uint32 {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	out := map[string]map[string]uint32{}
	for dim, s := range a.dims {
		m := make(map[string]uint32, len(s.byKey))
		for k, v := range s.byKey {
			m[k] = v
		}
		out[dim.String()] = m
	}
	return out
}

// GetList returns number of ordinals and stringified list of ordinals in use.
func (a *OrdinalAllocator) GetList(dim Dimension) (uint, string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	s, ok := a.dims[dim]
	if !ok {
		return 0, ""
	}

	numOrdinals := uint(0)
	idx := uint(1)
	startIdx := idx
	list := []string{}
	inRange := false

	for {
		foundValue, found := s.used.NextSet(idx)
		if !found {
			break
		}
		numOrdinals++

		if !inRange { // begin of range
			startIdx = foundValue
			inRange = true
		} else if foundValue > idx { // end of range
			list = append(list, rangePrint(startIdx, idx-1))
			startIdx = foundValue
		}
		idx = foundValue + 1
	}

	// list end with allocated value
	if inRange {
		list = append(list, rangePrint(startIdx, idx-1))
	}

	return numOrdinals, strings.Join(list, ", ")
}

func rangePrint(startIdx, endIdx uint) string {
	if startIdx == endIdx {
		return fmt.Sprintf("%d", startIdx)
	}
	return fmt.Sprintf("%d-%d", startIdx, endIdx)
}
