/*
Copyright (c) Facebook, Inc. and its affiliates.

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

// Command ptpcored is a demo host for the synchronization engine: it loads a
// config, wires a loopback HAL in place of a real NIC/PHC, and runs the
// clock's tick loop while serving a Prometheus /metrics endpoint.
package main

import "github.com/zarfld/ptp-sync-engine/cmd/ptpcored/cmd"

func main() {
	cmd.Execute()
}
