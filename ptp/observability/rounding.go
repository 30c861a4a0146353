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

package observability

import "sync/atomic"

// unbiasedRounding is the process-wide switch controlling whether
// TimeInterval division by two truncates toward zero (default) or rounds
// half-to-even at the scaled LSB.
var unbiasedRounding atomic.Bool

// SetUnbiasedRounding flips the process-wide banker's-rounding flag.
func SetUnbiasedRounding(enabled bool) {
	unbiasedRounding.Store(enabled)
}

// UnbiasedRounding reports the current state of the banker's-rounding flag.
func UnbiasedRounding() bool {
	return unbiasedRounding.Load()
}
