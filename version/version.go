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

// Package version carries the build information stamped into the renderer
// binaries with -ldflags "-X".
package version

import (
	"fmt"
	"runtime"
)

var (
	gitCommit string
	version   string
	buildTime string
)

// Info is the build information of a renderer binary.
type Info struct {
	GitCommit string `json:"gitCommit"`
	Version   string `json:"version"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Get returns the build information of the running binary.
func Get() *Info {
	ver := &Info{
		GitCommit: gitCommit,
		Version:   version,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
	if ver.Version == "" {
		ver.Version = "devbuild"
	}
	return ver
}

// String returns the printable build information.
func String() string {
	return StringFromInfo(Get())
}

// StringFromInfo formats ver one field per line.
func StringFromInfo(ver *Info) string {
	return fmt.Sprintf("Version: %s\n", ver.Version) +
		fmt.Sprintf("GitCommit: %s\n", ver.GitCommit) +
		fmt.Sprintf("BuildTime: %s\n", ver.BuildTime) +
		fmt.Sprintf("GoVersion: %s\n", ver.GoVersion)
}
