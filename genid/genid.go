// Copyright 2026 The dvmrpd Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package genid implements spec.md §6.4's persisted generation-id: a
// single file storing a 32-bit decimal counter that must strictly
// increase across restarts, so a neighbor that sees it go backward
// knows this router rebooted and its route table needs refreshing.
package genid

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Load reads the saved generation-id from path (treating a missing or
// unparsable file as zero, the same as a first-ever start), compares
// it against now (seconds since epoch, truncated to 32 bits), and
// returns the value this run should advertise: now if it is strictly
// greater than the saved value, or saved+1 otherwise — guaranteeing the
// result never goes backward even across a clock that jumped back.
// The result is written back to path before returning.
func Load(path string, now uint32) (uint32, error) {
	saved := readSaved(path)
	next := now
	if saved >= now {
		next = saved + 1
	}
	if err := write(path, next); err != nil {
		return next, fmt.Errorf("genid: %w", err)
	}
	return next, nil
}

// Bump returns the next generation-id after current, for SIGHUP-driven
// restarts that skip re-reading the file (spec.md §6.4: "incremented in
// memory, no file write required on the hot path").
func Bump(current uint32) uint32 {
	return current + 1
}

func readSaved(path string) uint32 {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

func write(path string, v uint32) error {
	return os.WriteFile(path, []byte(strconv.FormatUint(uint64(v), 10)), 0644)
}
