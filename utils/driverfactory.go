package utils

import (
	"reflect"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
	"github.com/opendaylight/groupbasedpolicy-sub013/state"
)

// implement utilities for instantiating the supported state drivers

var stateDriverRegistry = map[string]reflect.Type{
	EtcdNameStr:   reflect.TypeOf(state.EtcdStateDriver{}),
	ConsulNameStr: reflect.TypeOf(state.ConsulStateDriver{}),
	// fakedriver is used for tests and the dry-run render command
	FakeNameStr: reflect.TypeOf(state.FakeStateDriver{}),
}

var (
	gStateDriver core.StateDriver
)

// NewStateDriver instantiates a 'named' state-driver connected to dbURL
func NewStateDriver(name, dbURL string) (core.StateDriver, error) {
	if name == "" || dbURL == "" {
		return nil, core.Errorf("invalid driver name or configuration passed.")
	}

	if gStateDriver != nil {
		return nil, core.Errorf("statedriver instance already exists.")
	}

	driverType, ok := stateDriverRegistry[name]
	if !ok {
		return nil, core.Errorf("Failed to find a registered driver for: %s", name)
	}

	d := reflect.New(driverType).Interface().(core.StateDriver)
	if err := d.Init(&core.InstanceInfo{DbURL: dbURL}); err != nil {
		return nil, err
	}

	gStateDriver = d
	return d, nil
}

// GetStateDriver returns the singleton instance of the state-driver
func GetStateDriver() (core.StateDriver, error) {
	if gStateDriver == nil {
		return nil, core.Errorf("statedriver has not been not created.")
	}

	return gStateDriver, nil
}

// ReleaseStateDriver releases the singleton instance of the state-driver
func ReleaseStateDriver() {
	if gStateDriver != nil {
		gStateDriver.Deinit()
	}
	gStateDriver = nil
}
