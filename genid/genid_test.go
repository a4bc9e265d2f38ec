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

package genid

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFirstRunUsesNow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mrouted.genid")
	got, err := Load(path, 1000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != 1000 {
		t.Fatalf("got = %d, want 1000", got)
	}
}

func TestLoadIncrementsWhenNowDoesNotAdvance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mrouted.genid")
	if err := os.WriteFile(path, []byte("1000"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	got, err := Load(path, 1000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != 1001 {
		t.Fatalf("got = %d, want 1001", got)
	}
}

func TestLoadIncrementsWhenClockWentBackward(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mrouted.genid")
	if err := os.WriteFile(path, []byte("5000"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	got, err := Load(path, 100)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != 5001 {
		t.Fatalf("got = %d, want 5001", got)
	}
}

func TestLoadPersistsResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mrouted.genid")
	if _, err := Load(path, 42); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, err := Load(path, 0)
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if got != 43 {
		t.Fatalf("got = %d, want 43 (first run's value plus one)", got)
	}
}

func TestLoadTreatsCorruptFileAsZero(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mrouted.genid")
	if err := os.WriteFile(path, []byte("not-a-number"), 0644); err != nil {
		t.Fatalf("seed file: %v", err)
	}
	got, err := Load(path, 7)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != 7 {
		t.Fatalf("got = %d, want 7", got)
	}
}

func TestBumpNeverGoesBackward(t *testing.T) {
	if Bump(100) != 101 {
		t.Fatalf("Bump(100) = %d, want 101", Bump(100))
	}
}
