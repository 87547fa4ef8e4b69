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
	"reflect"

	log "github.com/sirupsen/logrus"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

// readAllStateCommon reads and unmarshals (given a function) all state into a
// list of core.State objects.
func readAllStateCommon(d core.StateDriver, baseKey string, sType core.State,
	unmarshal func([]byte, interface{}) error) ([]core.State, error) {
	stateType := reflect.TypeOf(sType)
	sliceType := reflect.SliceOf(stateType)
	values := reflect.MakeSlice(sliceType, 0, 1)

	byteValues, err := d.ReadAll(baseKey)
	if err != nil {
		return nil, err
	}
	for _, byteValue := range byteValues {
		value := reflect.New(stateType)
		err = unmarshal(byteValue, value.Interface())
		if err != nil {
			return nil, err
		}
		values = reflect.Append(values, value.Elem())
	}

	stateValues := []core.State{}
	for i := 0; i < values.Len(); i++ {
		if values.Index(i).IsNil() {
			continue
		}
		if !values.Index(i).Elem().FieldByName("CommonState").IsValid() {
			return nil, core.Errorf("The state structure %v is missing core.CommonState",
				stateType)
		}
		//the following works as every core.State is expected to embed core.CommonState struct
		values.Index(i).Elem().FieldByName("CommonState").FieldByName("StateDriver").Set(reflect.ValueOf(d))
		stateValue := values.Index(i).Interface().(core.State)
		stateValues = append(stateValues, stateValue)
	}
	return stateValues, nil
}

// channelStateEvents watches for updates(created, modify, delete) to a state of
// specified type and unmarshals (given a function) all changes and puts then on
// channel of core.WatchState objects.
func channelStateEvents(d core.StateDriver, sType core.State,
	unmarshal func([]byte, interface{}) error,
	byteRsps chan [2][]byte, rsps chan core.WatchState, retErr chan error) {
	for {
		byteRsp, ok := <-byteRsps
		if !ok {
			retErr <- core.Errorf("watch channel closed")
			return
		}

		rsp := core.WatchState{Curr: nil, Prev: nil}
		for i := 0; i < 2; i++ {
			if byteRsp[i] == nil {
				continue
			}
			stateType := reflect.TypeOf(sType)
			value := reflect.New(stateType)
			err := unmarshal(byteRsp[i], value.Interface())
			if err != nil {
				log.Errorf("unmarshal error: %v", err)
				retErr <- err
				return
			}
			if !value.Elem().Elem().FieldByName("CommonState").IsValid() {
				retErr <- core.Errorf("The state structure %v is missing core.CommonState",
					stateType)
				return
			}
			value.Elem().Elem().FieldByName("CommonState").FieldByName("StateDriver").Set(reflect.ValueOf(d))
			switch i {
			case 0:
				rsp.Curr = value.Elem().Interface().(core.State)
			case 1:
				rsp.Prev = value.Elem().Interface().(core.State)
			}
		}

		rsps <- rsp
	}
}

// readStateCommon reads key and unmarshals it into value.
func readStateCommon(d core.StateDriver, key string, value core.State,
	unmarshal func([]byte, interface{}) error) error {
	encodedState, err := d.Read(key)
	if err != nil {
		return err
	}
	return unmarshal(encodedState, value)
}

// writeStateCommon marshals value and writes it to key.
func writeStateCommon(d core.StateDriver, key string, value core.State,
	marshal func(interface{}) ([]byte, error)) error {
	encodedState, err := marshal(value)
	if err != nil {
		return err
	}
	return d.Write(key, encodedState)
}

// watchAllStateCommon starts a raw watch on baseKey and decodes its events
// onto rsps. It blocks until the watch ends.
func watchAllStateCommon(d core.StateDriver, baseKey string, sType core.State,
	unmarshal func([]byte, interface{}) error, rsps chan core.WatchState, buffer int) error {
	byteRsps := make(chan [2][]byte, buffer)
	recvErr := make(chan error, 1)

	if err := d.WatchAll(baseKey, byteRsps); err != nil {
		log.Errorf("watch on %q failed. Err: %v", baseKey, err)
		return err
	}
	go channelStateEvents(d, sType, unmarshal, byteRsps, rsps, recvErr)

	return <-recvErr
}
