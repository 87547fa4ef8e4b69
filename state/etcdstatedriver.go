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
	"context"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

const (
	ctxTimeout     = 20 * time.Second // etcd timeout
	dialTimeout    = 5 * time.Second
	maxEtcdRetries = 10 // Max times to retry in case of failure
)

// EtcdStateDriver implements the StateDriver interface for an etcd based distributed
// key-value store holding the policy, endpoint and node records.
type EtcdStateDriver struct {
	Client *clientv3.Client
}

// etcdEndpoints converts a comma separated etcd:// url list to client endpoints.
func etcdEndpoints(dbURL string) ([]string, error) {
	endpoints := []string{}
	for _, raw := range strings.Split(dbURL, ",") {
		endpoint, err := url.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, err
		}
		if endpoint.Scheme == "etcd" {
			endpoint.Scheme = "http"
		} else if endpoint.Scheme != "http" && endpoint.Scheme != "https" {
			return nil, core.Errorf("invalid etcd URL scheme %q", endpoint.Scheme)
		}
		endpoints = append(endpoints, endpoint.String())
	}
	return endpoints, nil
}

// Init the driver with the db url in instInfo.
func (d *EtcdStateDriver) Init(instInfo *core.InstanceInfo) error {
	if instInfo == nil || instInfo.DbURL == "" {
		return core.Errorf("no etcd config found")
	}
	endpoints, err := etcdEndpoints(instInfo.DbURL)
	if err != nil {
		return err
	}

	d.Client, err = clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		log.Errorf("error creating etcd client. Err: %v", err)
		return err
	}

	return nil
}

// Deinit closes the client.
func (d *EtcdStateDriver) Deinit() {
	if d.Client != nil {
		d.Client.Close()
	}
}

func isRetryable(err error) bool {
	return err == context.DeadlineExceeded
}

// Write state to key with value.
func (d *EtcdStateDriver) Write(key string, value []byte) error {
	var err error

	for i := 0; i < maxEtcdRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
		_, err = d.Client.Put(ctx, key, string(value))
		cancel()
		if err != nil && isRetryable(err) {
			time.Sleep(time.Second)
			continue
		}

		return err
	}

	return err
}

// Read state from key.
func (d *EtcdStateDriver) Read(key string) ([]byte, error) {
	var err error
	var resp *clientv3.GetResponse

	for i := 0; i < maxEtcdRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
		resp, err = d.Client.Get(ctx, key)
		cancel()
		if err == nil {
			if len(resp.Kvs) == 0 {
				return []byte{}, core.Errorf("key not found")
			}
			return resp.Kvs[0].Value, nil
		}

		if isRetryable(err) {
			time.Sleep(time.Second)
			continue
		}

		return []byte{}, err
	}

	return []byte{}, err
}

// ReadAll state from baseKey.
func (d *EtcdStateDriver) ReadAll(baseKey string) ([][]byte, error) {
	var err error
	var resp *clientv3.GetResponse

	for i := 0; i < maxEtcdRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
		resp, err = d.Client.Get(ctx, baseKey, clientv3.WithPrefix(),
			clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
		cancel()
		if err == nil {
			if len(resp.Kvs) == 0 {
				return [][]byte{}, core.Errorf("key not found")
			}
			values := [][]byte{}
			for _, kv := range resp.Kvs {
				values = append(values, kv.Value)
			}
			return values, nil
		}

		if isRetryable(err) {
			time.Sleep(time.Second)
			continue
		}

		return [][]byte{}, err
	}

	return [][]byte{}, err
}

func (d *EtcdStateDriver) channelEtcdEvents(watchCh clientv3.WatchChan, rsps chan [2][]byte) {
	for wresp := range watchCh {
		if err := wresp.Err(); err != nil {
			log.Errorf("Error %v during watch", err)
			continue
		}

		for _, ev := range wresp.Events {
			rsp := [2][]byte{nil, nil}
			eventStr := "create"
			if ev.Type == clientv3.EventTypePut {
				rsp[0] = ev.Kv.Value
			}
			if ev.PrevKv != nil {
				rsp[1] = ev.PrevKv.Value
				if ev.Type == clientv3.EventTypePut {
					eventStr = "modify"
				} else {
					eventStr = "delete"
				}
			}

			log.Debugf("Received %q for key: %s", eventStr, ev.Kv.Key)
			rsps <- rsp
		}
	}
	close(rsps)
}

// WatchAll state transitions from baseKey
func (d *EtcdStateDriver) WatchAll(baseKey string, rsps chan [2][]byte) error {
	watchCh := d.Client.Watch(context.Background(), baseKey,
		clientv3.WithPrefix(), clientv3.WithPrevKV())
	if watchCh == nil {
		log.Errorf("etcd watch failed.")
		return core.Errorf("etcd watch failed")
	}

	go d.channelEtcdEvents(watchCh, rsps)

	return nil
}

// ClearState removes key from etcd
func (d *EtcdStateDriver) ClearState(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), ctxTimeout)
	defer cancel()

	_, err := d.Client.Delete(ctx, key)
	return err
}

// ReadState reads key into a core.State with the unmarshaling function.
func (d *EtcdStateDriver) ReadState(key string, value core.State,
	unmarshal func([]byte, interface{}) error) error {
	return readStateCommon(d, key, value, unmarshal)
}

// ReadAllState reads all the state from baseKey and returns a list of core.State.
func (d *EtcdStateDriver) ReadAllState(baseKey string, sType core.State,
	unmarshal func([]byte, interface{}) error) ([]core.State, error) {
	return readAllStateCommon(d, baseKey, sType, unmarshal)
}

// WatchAllState watches all state from the baseKey.
func (d *EtcdStateDriver) WatchAllState(baseKey string, sType core.State,
	unmarshal func([]byte, interface{}) error, rsps chan core.WatchState) error {
	return watchAllStateCommon(d, baseKey, sType, unmarshal, rsps, 1)
}

// WriteState writes a value of core.State into a key with a given marshaling function.
func (d *EtcdStateDriver) WriteState(key string, value core.State,
	marshal func(interface{}) ([]byte, error)) error {
	return writeStateCommon(d, key, value, marshal)
}
