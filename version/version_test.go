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

package version

import (
	"strings"
	"testing"
)

func TestGetDefaultsVersion(t *testing.T) {
	ver := Get()
	if ver.Version != "devbuild" {
		t.Fatalf("unexpected version %q", ver.Version)
	}
	if ver.GoVersion == "" {
		t.Fatalf("go version not set")
	}
}

func TestStringFromInfo(t *testing.T) {
	s := StringFromInfo(&Info{Version: "1.2.0", GitCommit: "abc123"})
	for _, want := range []string{"Version: 1.2.0\n", "GitCommit: abc123\n", "BuildTime: \n"} {
		if !strings.Contains(s, want) {
			t.Fatalf("%q missing from %q", want, s)
		}
	}
}
