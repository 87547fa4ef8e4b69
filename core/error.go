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

package core

import (
	"fmt"
	"runtime"
	"strings"
)

// Error is an error annotated with the file and line where it was formed.
type Error struct {
	desc string
	file string
	line int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s %d]", e.desc, e.file, e.line)
}

// Desc returns the error description without the location suffix.
func (e *Error) Desc() string {
	return e.desc
}

// Errorf formats an Error and records the caller's location.
func Errorf(f string, args ...interface{}) *Error {
	e := &Error{}
	e.desc = fmt.Sprintf(f, args...)
	_, e.file, e.line, _ = runtime.Caller(1)
	e.file = e.file[strings.LastIndex(e.file, "/")+1:]
	return e
}

// IsKeyNotFound reports whether err is a state driver 'key not found' error.
func IsKeyNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "key not found")
}

// ErrIfKeyExists returns nil for 'key not found' errors and err otherwise.
func ErrIfKeyExists(err error) error {
	if err == nil || IsKeyNotFound(err) {
		return nil
	}
	return err
}
