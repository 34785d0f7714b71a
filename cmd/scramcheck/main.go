/*
Copyright 2025 The Mongowire Authors.

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

// scramcheck exercises SCRAM authentication conversations against an
// in-process server, for debugging credentials and mechanism behavior
// without a running deployment.
package main

import (
	"os"

	"github.com/mongowire/mongowire/go/cmd/scramcheck/command"
)

func main() {
	if err := command.GetRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
