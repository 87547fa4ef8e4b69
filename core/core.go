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

// Package core provides the definitions shared by the policy renderer and its
// collaborators. The renderer reads the resolved policy, endpoint and topology
// records (north-bound) through a StateDriver and hands the computed per-switch
// forwarding state (south-bound) to a channel that programs the switch.
package core

// InstanceInfo carries what a state driver needs to connect.
type InstanceInfo struct {
	DbURL string `json:"db-url"`
}

// WatchState is used to provide a difference between core.State structs by
// providing both the current and previous state.
type WatchState struct {
	Curr State
	Prev State
}

// StateDriver provides the mechanism for reading/writing state for tenants,
// endpoints, resolved policies and nodes consumed by the renderer. The state is
// assumed to be stored as key-value pairs with keys of type 'string' and value
// to be an opaque binary string, encoded/decoded by the logic specific to the
// high-level(consumer) interface.
type StateDriver interface {
	Init(instInfo *InstanceInfo) error
	Deinit()

	Write(key string, value []byte) error
	Read(key string) ([]byte, error)
	ReadAll(baseKey string) ([][]byte, error)
	WatchAll(baseKey string, rsps chan [2][]byte) error

	WriteState(key string, value State,
		marshal func(interface{}) ([]byte, error)) error
	ReadState(key string, value State,
		unmarshal func([]byte, interface{}) error) error
	ReadAllState(baseKey string, stateType State,
		unmarshal func([]byte, interface{}) error) ([]State, error)
	// WatchAllState returns changes to a state from the point watch is started.
	// It's a blocking call.
	WatchAllState(baseKey string, stateType State,
		unmarshal func([]byte, interface{}) error, rsps chan WatchState) error
	ClearState(key string) error
}
