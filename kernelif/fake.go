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

// Package kernelif implements spec.md §6.2's forwarding.Kernel contract
// against the real host kernel, plus an in-memory Fake used by tests
// and by platforms where the real MRT ioctl surface (linux-only) is
// unavailable.
package kernelif

import (
	"fmt"
	"net"
	"sync"
)

// mfcKey identifies one installed kernel forwarding-cache entry.
type mfcKey struct {
	Source, Group string
}

// Route is a snapshot of one installed entry, kept for inspection by
// tests.
type Route struct {
	Source, Group net.IP
	ParentVif     int
	TTLThresholds map[int]uint8
}

// Fake is an in-memory stand-in for the kernel multicast forwarding
// cache. It satisfies forwarding.Kernel without touching any real
// socket, so unit tests can assert on exactly which (source, group)
// pairs the daemon would have installed.
type Fake struct {
	mu     sync.Mutex
	routes map[mfcKey]Route
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{routes: make(map[mfcKey]Route)}
}

func keyOf(source, group net.IP) mfcKey {
	return mfcKey{Source: source.String(), Group: group.String()}
}

// AddMFC records (or updates) an entry.
func (f *Fake) AddMFC(source, group net.IP, parentVif int, ttlThresholds map[int]uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(map[int]uint8, len(ttlThresholds))
	for k, v := range ttlThresholds {
		cp[k] = v
	}
	f.routes[keyOf(source, group)] = Route{Source: source, Group: group, ParentVif: parentVif, TTLThresholds: cp}
	return nil
}

// DelMFC removes an entry. Deleting an entry that isn't installed is
// not an error, matching ENOENT being harmless on the real ioctl path.
func (f *Fake) DelMFC(source, group net.IP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.routes, keyOf(source, group))
	return nil
}

// Installed reports whether (source, group) currently has an entry.
func (f *Fake) Installed(source, group net.IP) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.routes[keyOf(source, group)]
	return ok
}

// Len returns the number of installed entries.
func (f *Fake) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.routes)
}

// String dumps the fake's state for test failure messages.
func (f *Fake) String() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fmt.Sprintf("kernelif.Fake{%d routes}", len(f.routes))
}
