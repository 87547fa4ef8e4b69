package state

import (
	"sort"
	"strings"
	"sync"

	"github.com/opendaylight/groupbasedpolicy-sub013/core"
)

type valueData struct {
	value []byte
}

type fakeWatcher struct {
	baseKey string
	rsps    chan [2][]byte
}

// FakeStateDriverConfig represents the configuration of the fake statedriver,
// which is an empty struct.
type FakeStateDriverConfig struct{}

// FakeStateDriver implements core.StateDriver interface in memory. It backs
// unit-tests and the dry-run render command.
type FakeStateDriver struct {
	TestState map[string]valueData
	watchers  []fakeWatcher
	mutex     sync.RWMutex
}

// NewFakeStateDriver returns an initialized in-memory driver.
func NewFakeStateDriver() *FakeStateDriver {
	d := &FakeStateDriver{}
	d.Init(nil)
	return d
}

// Init the driver
func (d *FakeStateDriver) Init(instInfo *core.InstanceInfo) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.TestState = make(map[string]valueData)

	return nil
}

// Deinit the driver
func (d *FakeStateDriver) Deinit() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.TestState = nil
	d.watchers = nil
}

func (d *FakeStateDriver) notify(key string, curr, prev []byte) {
	for _, w := range d.watchers {
		if strings.HasPrefix(key, w.baseKey) {
			w.rsps <- [2][]byte{curr, prev}
		}
	}
}

// Write value to key
func (d *FakeStateDriver) Write(key string, value []byte) error {
	d.mutex.Lock()
	prev, ok := d.TestState[key]
	d.TestState[key] = valueData{value: value}
	watchers := len(d.watchers)
	d.mutex.Unlock()

	if watchers > 0 {
		var prevValue []byte
		if ok {
			prevValue = prev.value
		}
		d.mutex.RLock()
		d.notify(key, value, prevValue)
		d.mutex.RUnlock()
	}

	return nil
}

// Read value from key
func (d *FakeStateDriver) Read(key string) ([]byte, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()
	if val, ok := d.TestState[key]; ok {
		return val.value, nil
	}

	return []byte{}, core.Errorf("key not found! key: %v", key)
}

// ReadAll values from baseKey, in key order.
func (d *FakeStateDriver) ReadAll(baseKey string) ([][]byte, error) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	keys := []string{}
	for key := range d.TestState {
		if strings.HasPrefix(key, baseKey) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	values := [][]byte{}
	for _, key := range keys {
		values = append(values, d.TestState[key].value)
	}
	return values, nil
}

// WatchAll registers rsps for changes under baseKey. Events are delivered
// synchronously from Write and ClearState, so rsps must be drained.
func (d *FakeStateDriver) WatchAll(baseKey string, rsps chan [2][]byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.watchers = append(d.watchers, fakeWatcher{baseKey: baseKey, rsps: rsps})
	return nil
}

// ClearState clears key
func (d *FakeStateDriver) ClearState(key string) error {
	d.mutex.Lock()
	prev, ok := d.TestState[key]
	if ok {
		delete(d.TestState, key)
	}
	d.mutex.Unlock()

	if ok {
		d.mutex.RLock()
		d.notify(key, nil, prev.value)
		d.mutex.RUnlock()
	}
	return nil
}

// ReadState reads key into a core.State with the unmarshaling function.
func (d *FakeStateDriver) ReadState(key string, value core.State,
	unmarshal func([]byte, interface{}) error) error {
	return readStateCommon(d, key, value, unmarshal)
}

// ReadAllState reads all the state from baseKey and returns a list of core.State.
func (d *FakeStateDriver) ReadAllState(baseKey string, sType core.State,
	unmarshal func([]byte, interface{}) error) ([]core.State, error) {
	return readAllStateCommon(d, baseKey, sType, unmarshal)
}

// WatchAllState watches all state from the baseKey.
func (d *FakeStateDriver) WatchAllState(baseKey string, sType core.State,
	unmarshal func([]byte, interface{}) error, rsps chan core.WatchState) error {
	return watchAllStateCommon(d, baseKey, sType, unmarshal, rsps, 16)
}

// WriteState writes a value of core.State into a key with a given marshaling function.
func (d *FakeStateDriver) WriteState(key string, value core.State,
	marshal func(interface{}) ([]byte, error)) error {
	return writeStateCommon(d, key, value, marshal)
}

