// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/devicehub/lib/clock"
	"github.com/bureau-foundation/devicehub/lib/deviceclient"
	"github.com/bureau-foundation/devicehub/lib/integrity"
	"github.com/bureau-foundation/devicehub/lib/registry"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/secret"
	"github.com/bureau-foundation/devicehub/lib/session"
	"github.com/bureau-foundation/devicehub/lib/sqlitepool"
	"github.com/bureau-foundation/devicehub/lib/store"
	"github.com/bureau-foundation/devicehub/lib/testutil"
)

const (
	testProgram     = "devicehub-device"
	testProgramSize = 4096
)

// newHandler returns a session handler over a fresh store that accepts
// only the test program.
func newHandler(t *testing.T) *session.Handler {
	t.Helper()
	backing, err := store.Open(store.Config{DataDir: t.TempDir(), Synchronous: sqlitepool.SynchronousNormal})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { backing.Close() })

	reg, err := registry.New(registry.Config{
		Store:  backing,
		Hasher: secret.NewHasher(secret.MinCost),
		Clock:  clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Logger: testutil.Logger(t),
	}, store.Snapshot{})
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	handler, err := session.NewHandler(session.Config{
		Registry: reg,
		Oracle:   integrity.NewAllowList(integrity.Program{Name: testProgram, Size: testProgramSize}),
		Logger:   testutil.Logger(t),
	})
	if err != nil {
		t.Fatalf("session.NewHandler: %v", err)
	}
	return handler
}

// dial starts a server session on a pipe and returns the client end.
func dial(t *testing.T, handler *session.Handler) *deviceclient.Client {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.HandleConnection(context.Background(), serverEnd)
	}()
	client := deviceclient.New(clientEnd)
	t.Cleanup(func() {
		client.Close()
		testutil.RequireClosed(t, done, 5*time.Second, "session did not exit")
	})
	return client
}

// newDevice wires a deviceSession to handler with scripted console
// input. The console output is returned for assertions.
func newDevice(t *testing.T, handler *session.Handler, userID, deviceID, input string) (*deviceSession, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	var output bytes.Buffer
	return &deviceSession{
		client: dial(t, handler),
		console: &console{
			in:  bufio.NewScanner(strings.NewReader(input)),
			out: &output,
		},
		logger:          slog.New(slog.DiscardHandler),
		userID:          userID,
		deviceID:        deviceID,
		programName:     testProgram,
		programSize:     testProgramSize,
		imagesDir:       filepath.Join(dir, "images"),
		receivedDir:     filepath.Join(dir, "received"),
		temperatureFile: filepath.Join(dir, "temperature_data.txt"),
	}, &output
}

func TestHandshakeRetriesDeviceID(t *testing.T) {
	handler := newHandler(t)

	first, _ := newDevice(t, handler, "alice", "1", "pw\n")
	if err := first.handshake(); err != nil {
		t.Fatalf("first handshake: %v", err)
	}

	// Same identity while the first is online: the device asks for a
	// new id and uses the one typed.
	second, output := newDevice(t, handler, "alice", "1", "pw\n2\n")
	if err := second.handshake(); err != nil {
		t.Fatalf("second handshake: %v", err)
	}
	if second.deviceID != "2" {
		t.Errorf("deviceID = %q, want 2", second.deviceID)
	}
	if !strings.Contains(output.String(), "already in use") {
		t.Errorf("output lacks retry prompt: %q", output)
	}
}

func TestHandshakeRefusals(t *testing.T) {
	handler := newHandler(t)
	registered, _ := newDevice(t, handler, "alice", "1", "right\n")
	if err := registered.handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	wrong, _ := newDevice(t, handler, "alice", "2", "wrong\n")
	if err := wrong.handshake(); !errors.Is(err, errWrongPassword) {
		t.Errorf("wrong password: error = %v, want errWrongPassword", err)
	}

	tampered, _ := newDevice(t, handler, "bob", "1", "pw\n")
	tampered.programSize++
	if err := tampered.handshake(); !errors.Is(err, errNotValidated) {
		t.Errorf("unknown program: error = %v, want errNotValidated", err)
	}
}

func TestPromptScenario(t *testing.T) {
	handler := newHandler(t)
	d, output := newDevice(t, handler, "alice", "1", strings.Join([]string{
		"pw",
		"CREATE home",
		"RD home",
		"ET 21.5",
		"EI missing.jpg",
		"EI cat.jpg",
		"RT home",
		"RI alice:1",
		"FLY away",
		"",
	}, "\n"))

	if err := os.MkdirAll(d.imagesDir, 0o755); err != nil {
		t.Fatal(err)
	}
	image := []byte{0xff, 0xd8, 0xff, 0xe0}
	if err := os.WriteFile(filepath.Join(d.imagesDir, "cat.jpg"), image, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := d.handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if err := d.prompt(); err != nil {
		t.Fatalf("prompt: %v", err)
	}

	transcript := output.String()
	for _, want := range []string{
		"User registered",
		"Program validated by server",
		"File not found",
		"appended to " + d.temperatureFile,
		"saved to " + filepath.Join(d.receivedDir, "alice_1.jpg"),
		device.ReplyInvalid,
	} {
		if !strings.Contains(transcript, want) {
			t.Errorf("transcript lacks %q:\n%s", want, transcript)
		}
	}

	temperatures, err := os.ReadFile(d.temperatureFile)
	if err != nil {
		t.Fatalf("reading temperatures: %v", err)
	}
	if got := string(temperatures); got != "alice:1 -> 21.5\n" {
		t.Errorf("temperatures = %q", got)
	}
	saved, err := os.ReadFile(filepath.Join(d.receivedDir, "alice_1.jpg"))
	if err != nil {
		t.Fatalf("reading saved image: %v", err)
	}
	if !bytes.Equal(saved, image) {
		t.Errorf("saved image = %x, want %x", saved, image)
	}
}

func TestExecuteRelaysStatus(t *testing.T) {
	handler := newHandler(t)
	d, _ := newDevice(t, handler, "alice", "1", "pw\n")
	if err := d.handshake(); err != nil {
		t.Fatalf("handshake: %v", err)
	}

	tests := []struct {
		line string
		want string
	}{
		{"RT nowhere", device.ReplyNoDomain},
		{"CREATE lab", device.ReplyOK},
		{"CREATE   lab", device.ReplyDomainExists},
		{"ADD nobody lab", device.ReplyNoUser},
		{"RT lab", device.ReplyNoData},
		{"RI alice:1", device.ReplyNoData},
		{"RI alice", device.ReplyInvalid},
		{"RT", device.ReplyInvalid},
		{"EI", device.ReplyInvalid},
	}
	for _, tt := range tests {
		got, err := d.execute(tt.line)
		if err != nil {
			t.Fatalf("execute(%q): %v", tt.line, err)
		}
		if got != tt.want {
			t.Errorf("execute(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestImageFileName(t *testing.T) {
	tests := []struct {
		target device.Identity
		want   string
	}{
		{device.Identity{User: "alice", Device: "1"}, "alice_1.jpg"},
		{device.Identity{User: "alice", Device: "../etc"}, "alice_.._etc.jpg"},
	}
	for _, tt := range tests {
		if got := imageFileName(tt.target); got != tt.want {
			t.Errorf("imageFileName(%v) = %q, want %q", tt.target, got, tt.want)
		}
	}
}

func TestParseArgs(t *testing.T) {
	tests := []struct {
		args        []string
		wantAddress string
		wantDevice  string
		wantUser    string
	}{
		{[]string{"localhost", "1", "alice"}, "localhost:12345", "1", "alice"},
		{[]string{"localhost:4000", "1", "alice"}, "localhost:4000", "1", "alice"},
		{[]string{"10.0.0.5", "4000", "cam", "bob", "--images", "/tmp/img"}, "10.0.0.5:4000", "cam", "bob"},
	}
	for _, tt := range tests {
		opts, err := parseArgs(tt.args)
		if err != nil {
			t.Errorf("parseArgs(%q): %v", tt.args, err)
			continue
		}
		if opts.address != tt.wantAddress || opts.deviceID != tt.wantDevice || opts.userID != tt.wantUser {
			t.Errorf("parseArgs(%q) = %s %s %s", tt.args, opts.address, opts.deviceID, opts.userID)
		}
	}

	for _, bad := range [][]string{
		{"localhost", "alice"},
		{"localhost", "port", "1", "alice"},
		{"localhost", "1", "a:b"},
		{"a", "b", "c", "d", "e"},
	} {
		if _, err := parseArgs(bad); err == nil {
			t.Errorf("parseArgs(%q) succeeded, want error", bad)
		}
	}
}
