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

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRenderCommand(t *testing.T) {
	out := &bytes.Buffer{}
	args := []string{binName, "render", "--snapshot", "../../policycfg/testdata/snapshot.yaml", "--node", "node2"}
	if err := newApp(out).Run(args); err != nil {
		t.Fatalf("error running render. Err: %v", err)
	}

	dump := out.String()
	if !strings.HasPrefix(dump, "switch node2:\n") {
		t.Fatalf("unexpected header in %q", dump)
	}
	if strings.Contains(dump, "switch node1") {
		t.Fatalf("node1 rendered although only node2 was asked for")
	}
	if !strings.Contains(dump, "table=0, priority=1, actions=drop") {
		t.Fatalf("default drop missing from:\n%s", dump)
	}
}

func TestRenderCommandAllNodes(t *testing.T) {
	out := &bytes.Buffer{}
	args := []string{binName, "render", "-f", "../../policycfg/testdata/snapshot.yaml"}
	if err := newApp(out).Run(args); err != nil {
		t.Fatalf("error running render. Err: %v", err)
	}
	for _, node := range []string{"switch node1:", "switch node2:"} {
		if !strings.Contains(out.String(), node) {
			t.Fatalf("%q missing from output", node)
		}
	}
}

func TestRenderCommandMissingFile(t *testing.T) {
	args := []string{binName, "render", "--snapshot", "does-not-exist.yaml"}
	if err := newApp(&bytes.Buffer{}).Run(args); err == nil {
		t.Fatalf("expected an error for a missing snapshot")
	}
}
