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

package state

import (
	"net/url"
	"strings"

	"github.com/hashicorp/consul/api"
	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

// ConsulStateDriver implements the StateDriver interface for a consul based distributed
// key-value store holding the policy, endpoint and node records.
type ConsulStateDriver struct {
	Client *api.Client
}

// Init the driver from a consul://host:port db url.
func (d *ConsulStateDriver) Init(instInfo *core.InstanceInfo) error {
	if instInfo == nil || instInfo.DbURL == "" {
		return core.Errorf("no consul config found")
	}
	endpoint, err := url.Parse(instInfo.DbURL)
	if err != nil {
		return err
	}
	if endpoint.Scheme != "consul" {
		return core.Errorf("invalid consul URL scheme %q", endpoint.Scheme)
	}

	cfg := api.DefaultConfig()
	cfg.Address = endpoint.Host
	d.Client, err = api.NewClient(cfg)
	return err
}

// Deinit is currently a no-op.
func (d *ConsulStateDriver) Deinit() {
}

func processKey(inKey string) string {
	//consul doesn't accepts keys starting with a '/', so trim the leading slash
	return strings.TrimPrefix(inKey, "/")
}

// Write state to key with value.
func (d *ConsulStateDriver) Write(key string, value []byte) error {
	key = processKey(key)
	_, err := d.Client.KV().Put(&api.KVPair{Key: key, Value: value}, nil)

	return err
}

// Read state from key.
func (d *ConsulStateDriver) Read(key string) ([]byte, error) {
	key = processKey(key)
	kv, _, err := d.Client.KV().Get(key, nil)
	if err != nil {
		return []byte{}, err
	}
	// Consul returns success and a nil kv when a key is not found,
	// translate it to 'Key not found' error
	if kv == nil {
		return []byte{}, core.Errorf("Key not found")
	}

	return kv.Value, nil
}

// ReadAll state from baseKey.
func (d *ConsulStateDriver) ReadAll(baseKey string) ([][]byte, error) {
	baseKey = processKey(baseKey)
	kvs, _, err := d.Client.KV().List(baseKey, nil)
	if err != nil {
		return nil, err
	}
	if kvs == nil {
		return nil, core.Errorf("Key not found")
	}

	values := [][]byte{}
	for _, kv := range kvs {
		values = append(values, kv.Value)
	}

	return values, nil
}

// diffConsulEvents turns one blocking-query result into create/modify/delete
// events against the keys seen so far.
func diffConsulEvents(kvCache map[string]*api.KVPair, kvs api.KVPairs, rsps chan [2][]byte) {
	kvsRcvd := map[string]*api.KVPair{}
	for _, kv := range kvs {
		kvsRcvd[kv.Key] = kv
		rsp := [2][]byte{kv.Value, nil}
		if kvSeen, ok := kvCache[kv.Key]; !ok {
			log.Debugf("Received create for key: %q", kv.Key)
		} else if kvSeen.ModifyIndex != kv.ModifyIndex {
			log.Debugf("Received modify for key: %q", kv.Key)
			rsp[1] = kvSeen.Value
		} else {
			continue
		}
		kvCache[kv.Key] = kv
		rsps <- rsp
	}

	for key, kv := range kvCache {
		if _, ok := kvsRcvd[key]; !ok {
			log.Debugf("Received delete for key: %q", kv.Key)
			rsps <- [2][]byte{nil, kv.Value}
			delete(kvCache, key)
		}
	}
}

func (d *ConsulStateDriver) watchLoop(baseKey string, waitIndex uint64,
	kvCache map[string]*api.KVPair, rsps chan [2][]byte) {
	defer close(rsps)
	for {
		kvs, qm, err := d.Client.KV().List(baseKey, &api.QueryOptions{WaitIndex: waitIndex})
		if err != nil {
			log.Errorf("consul watch failed for key %q. Error: %s", baseKey, err)
			return
		}
		if kvs == nil {
			kvs = api.KVPairs{}
		}
		waitIndex = qm.LastIndex
		diffConsulEvents(kvCache, kvs, rsps)
	}
}

// WatchAll state transitions from baseKey
func (d *ConsulStateDriver) WatchAll(baseKey string, rsps chan [2][]byte) error {
	baseKey = processKey(baseKey)

	// Consul returns all the keys as return value of List(). The cache tracks
	// the state that has been seen to generate create, modify and delete events.
	kvCache := map[string]*api.KVPair{}
	kvs, qm, err := d.Client.KV().List(baseKey, nil)
	if err != nil {
		log.Errorf("consul read failed for key %q. Error: %s", baseKey, err)
		return err
	}
	for _, kv := range kvs {
		kvCache[kv.Key] = kv
	}

	go d.watchLoop(baseKey, qm.LastIndex, kvCache, rsps)
	return nil
}

// ClearState removes key from consul.
func (d *ConsulStateDriver) ClearState(key string) error {
	key = processKey(key)
	_, err := d.Client.KV().Delete(key, nil)
	return err
}

// ReadState reads key into a core.State with the unmarshaling function.
func (d *ConsulStateDriver) ReadState(key string, value core.State,
	unmarshal func([]byte, interface{}) error) error {
	return readStateCommon(d, key, value, unmarshal)
}

// ReadAllState reads all the state from baseKey and returns a list of core.State.
func (d *ConsulStateDriver) ReadAllState(baseKey string, sType core.State,
	unmarshal func([]byte, interface{}) error) ([]core.State, error) {
	return readAllStateCommon(d, baseKey, sType, unmarshal)
}

// WatchAllState watches all state from the baseKey.
func (d *ConsulStateDriver) WatchAllState(baseKey string, sType core.State,
	unmarshal func([]byte, interface{}) error, rsps chan core.WatchState) error {
	return watchAllStateCommon(d, baseKey, sType, unmarshal, rsps, 1)
}

// WriteState writes a value of core.State into a key with a given marshaling function.
func (d *ConsulStateDriver) WriteState(key string, value core.State,
	marshal func(interface{}) ([]byte, error)) error {
	return writeStateCommon(d, key, value, marshal)
}
