// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package device

import (
	"testing"
)

func TestParseIdentity(t *testing.T) {
	tests := []struct {
		input   string
		want    Identity
		wantErr bool
	}{
		{input: "alice:1", want: Identity{User: "alice", Device: "1"}},
		{input: "bob:sensor:7", want: Identity{User: "bob", Device: "sensor:7"}},
		{input: "alice", wantErr: true},
		{input: ":1", wantErr: true},
		{input: "alice:", wantErr: true},
		{input: "al ice:1", wantErr: true},
		{input: "alice:1 2", wantErr: true},
	}
	for _, test := range tests {
		got, err := ParseIdentity(test.input)
		if test.wantErr {
			if err == nil {
				t.Errorf("ParseIdentity(%q) = %v, want error", test.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseIdentity(%q): %v", test.input, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseIdentity(%q) = %+v, want %+v", test.input, got, test.want)
		}
		if got.String() != test.input {
			t.Errorf("%+v.String() = %q, want %q", got, got.String(), test.input)
		}
	}
}

func TestValidateUserID(t *testing.T) {
	for _, valid := range []string{"alice", "user-1", "Ünïcode"} {
		if err := ValidateUserID(valid); err != nil {
			t.Errorf("ValidateUserID(%q): %v", valid, err)
		}
	}
	for _, invalid := range []string{"", "a:b", "a b", "tab\tbed"} {
		if err := ValidateUserID(invalid); err == nil {
			t.Errorf("ValidateUserID(%q) succeeded, want error", invalid)
		}
	}
}

func TestIdentityLess(t *testing.T) {
	a := Identity{User: "alice", Device: "2"}
	b := Identity{User: "alice", Device: "10"}
	c := Identity{User: "bob", Device: "1"}
	if !b.Less(a) {
		t.Errorf("%v should sort before %v (lexical device order)", b, a)
	}
	if !a.Less(c) || a.Less(a) {
		t.Errorf("Less is not a strict user-first ordering")
	}
}

func TestFormatReadings(t *testing.T) {
	readings := []Reading{
		{Device: Identity{User: "bob", Device: "1"}, Value: 19},
		{Device: Identity{User: "alice", Device: "1"}, Value: 21.5},
	}
	SortReadings(readings)
	got := FormatReadings(readings)
	want := "alice:1 -> 21.5\nbob:1 -> 19\n"
	if got != want {
		t.Errorf("FormatReadings = %q, want %q", got, want)
	}
}

func TestFormatValue(t *testing.T) {
	tests := map[float32]string{
		21.5:  "21.5",
		0:     "0",
		-3.25: "-3.25",
		0.1:   "0.1",
	}
	for value, want := range tests {
		if got := FormatValue(value); got != want {
			t.Errorf("FormatValue(%v) = %q, want %q", value, got, want)
		}
	}
}

func TestParseRole(t *testing.T) {
	for _, name := range []string{"owner", "reader"} {
		role, err := ParseRole(name)
		if err != nil || string(role) != name {
			t.Errorf("ParseRole(%q) = %q, %v", name, role, err)
		}
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Error("ParseRole(admin) succeeded, want error")
	}
}
