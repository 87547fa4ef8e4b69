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

package utils

import (
	"net"
	"sync"
)

// DrainingListener returns a listener whose Close waits for in-flight
// Accept calls to return.
func DrainingListener(l net.Listener) net.Listener {
	return &drainingListener{
		Listener: l,
		cond:     sync.NewCond(&sync.Mutex{})}
}

type drainingListener struct {
	net.Listener
	cond    *sync.Cond
	pending int
}

// Accept tracks the call until the wrapped Accept returns.
func (l *drainingListener) Accept() (net.Conn, error) {
	l.cond.L.Lock()
	l.pending++
	l.cond.L.Unlock()

	defer func() {
		l.cond.L.Lock()
		l.pending--
		if l.pending == 0 {
			l.cond.Broadcast()
		}
		l.cond.L.Unlock()
	}()
	return l.Listener.Accept()
}

// Close closes the listener and waits for pending Accept calls.
func (l *drainingListener) Close() error {
	if err := l.Listener.Close(); err != nil {
		return err
	}

	l.cond.L.Lock()
	for l.pending > 0 {
		l.cond.Wait()
	}
	l.cond.L.Unlock()
	return nil
}
