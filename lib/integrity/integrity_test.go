// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package integrity

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAllowList(t *testing.T) {
	list := NewAllowList(
		Program{Name: "devicehub-device", Size: 4096},
		Program{Name: "devicehub-device", Size: 4096},
		Program{Name: "legacy.jar", Size: 12034},
	)
	if list.Len() != 2 {
		t.Errorf("Len = %d, want 2", list.Len())
	}

	tests := []struct {
		name string
		size int64
		want bool
	}{
		{"devicehub-device", 4096, true},
		{"legacy.jar", 12034, true},
		{"devicehub-device", 4097, false},
		{"other", 4096, false},
		{"", 0, false},
	}
	for _, test := range tests {
		if got := list.Verify(test.name, test.size); got != test.want {
			t.Errorf("Verify(%q, %d) = %v, want %v", test.name, test.size, got, test.want)
		}
	}
}

func TestAllowAll(t *testing.T) {
	var oracle Oracle = AllowAll{}
	if !oracle.Verify("anything", -1) {
		t.Error("AllowAll rejected a program")
	}
}

func TestReadAllowList(t *testing.T) {
	input := strings.Join([]string{
		"# shipped builds",
		"devicehub-device,4096",
		"",
		"  legacy.jar , 12034 ",
		"no-separator",
		",15",
		"negative,-4",
		"words,many",
	}, "\n")

	programs, err := ReadAllowList(strings.NewReader(input), "test", nil)
	if err != nil {
		t.Fatalf("ReadAllowList: %v", err)
	}
	want := []Program{{"devicehub-device", 4096}, {"legacy.jar", 12034}}
	if len(programs) != len(want) {
		t.Fatalf("got %d programs %v, want %v", len(programs), programs, want)
	}
	for i := range want {
		if programs[i] != want[i] {
			t.Errorf("programs[%d] = %+v, want %+v", i, programs[i], want[i])
		}
	}
}

func TestLoadAllowListFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "allowed.txt")
	if err := os.WriteFile(path, []byte("devicehub-device,10\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	programs, err := LoadAllowListFile(path, nil)
	if err != nil {
		t.Fatalf("LoadAllowListFile: %v", err)
	}
	if len(programs) != 1 || programs[0].Size != 10 {
		t.Errorf("programs = %v", programs)
	}

	if _, err := LoadAllowListFile(filepath.Join(t.TempDir(), "missing.txt"), nil); err == nil {
		t.Error("missing allow-list file accepted")
	}
}
