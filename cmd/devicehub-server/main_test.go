// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/devicehub/lib/config"
	"github.com/bureau-foundation/devicehub/lib/deviceclient"
	"github.com/bureau-foundation/devicehub/lib/schema/device"
	"github.com/bureau-foundation/devicehub/lib/secret"
	"github.com/bureau-foundation/devicehub/lib/testutil"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"4000", "--data", "/srv/hub", "--allow-all", "--metrics", ":9100"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.port != 4000 || opts.dataDir != "/srv/hub" || !opts.allowAll || opts.metrics != ":9100" {
		t.Errorf("unexpected options: %+v", opts)
	}

	opts, err = parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags(nil): %v", err)
	}
	if opts.port != -1 {
		t.Errorf("port without positional = %d, want -1", opts.port)
	}

	if _, err := parseFlags([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("--help error = %v, want ErrHelp", err)
	}

	for _, bad := range [][]string{
		{"notaport"},
		{"70000"},
		{"1", "2"},
		{"--import-legacy", "/old"},
		{"--legacy-owner", "alice"},
		{"--no-such-flag"},
	} {
		if _, err := parseFlags(bad); err == nil {
			t.Errorf("parseFlags(%q) succeeded, want error", bad)
		}
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv(config.EnvVar, "")
	configPath := filepath.Join(t.TempDir(), "devicehub.yaml")
	content := `
listen:
  port: 2000
paths:
  data: /from/file
integrity:
  allow_list_file: /from/file/programs.txt
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(&options{configPath: configPath, port: -1})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Listen.Port != 2000 || cfg.Paths.Data != "/from/file" {
		t.Errorf("file values not applied: port=%d data=%s", cfg.Listen.Port, cfg.Paths.Data)
	}

	cfg, err = loadConfig(&options{
		configPath: configPath,
		port:       3000,
		dataDir:    "/from/flag",
		listenHost: "127.0.0.1",
		allowList:  "/from/flag/programs.txt",
	})
	if err != nil {
		t.Fatalf("loadConfig with overrides: %v", err)
	}
	if got := cfg.Listen.Address(); got != "127.0.0.1:3000" {
		t.Errorf("address = %s, want 127.0.0.1:3000", got)
	}
	if cfg.Paths.Data != "/from/flag" {
		t.Errorf("data = %s, want /from/flag", cfg.Paths.Data)
	}
	if cfg.Integrity.AllowListFile != "/from/flag/programs.txt" {
		t.Errorf("allow_list_file = %s", cfg.Integrity.AllowListFile)
	}

	// Built-in defaults have no integrity source.
	if _, err := loadConfig(&options{port: -1}); err == nil {
		t.Error("loadConfig without an integrity source succeeded")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		terminal bool
		wantJSON bool
	}{
		{"auto_terminal", config.LogFormatAuto, true, false},
		{"auto_pipe", config.LogFormatAuto, false, true},
		{"forced_text", config.LogFormatText, false, false},
		{"forced_json", config.LogFormatJSON, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var output bytes.Buffer
			logger, err := newLogger(config.LogConfig{Level: "info", Format: tt.format}, &output, tt.terminal)
			if err != nil {
				t.Fatalf("newLogger: %v", err)
			}
			logger.Debug("hidden")
			logger.Info("shown")
			line := output.String()
			if strings.Contains(line, "hidden") {
				t.Error("debug record emitted at info level")
			}
			if got := strings.HasPrefix(line, "{"); got != tt.wantJSON {
				t.Errorf("JSON output = %v, want %v: %q", got, tt.wantJSON, line)
			}
		})
	}

	if _, err := newLogger(config.LogConfig{Level: "loud"}, &bytes.Buffer{}, false); err == nil {
		t.Error("newLogger accepted an unknown level")
	}
}

// testConfig returns a valid configuration on an OS-assigned loopback
// port over dataDir.
func testConfig(dataDir string) *config.Config {
	cfg := config.Default()
	cfg.Listen = config.ListenConfig{Host: "127.0.0.1", Port: 0}
	cfg.Paths.Data = dataDir
	cfg.Registry.BcryptCost = secret.MinCost
	cfg.Integrity.AllowAll = true
	return cfg
}

// startServer runs serve over cfg and returns the device listener
// address and a function that stops the server and waits for it. The
// server is also stopped when the test ends.
func startServer(t *testing.T, cfg *config.Config, opts *options) (string, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, opts, testutil.Logger(t), ready)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			if err := testutil.RequireReceive(t, done, 10*time.Second, "server shutdown"); err != nil {
				t.Errorf("serve: %v", err)
			}
		})
	}
	t.Cleanup(stop)

	select {
	case addr := <-ready:
		return addr.String(), stop
	case err := <-done:
		t.Fatalf("serve exited before ready: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not become ready")
	}
	return "", stop
}

// connect dials addr and completes the handshake as user/deviceID.
func connect(t *testing.T, addr, user, deviceID, wantAuth string) *deviceclient.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := deviceclient.Dial(ctx, addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	expect := func(step, got string, err error, want string) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", step, err)
		}
		if got != want {
			t.Fatalf("%s = %q, want %q", step, got, want)
		}
	}
	status, err := client.Authenticate(user, "pw-"+user)
	expect("authenticate", status, err, wantAuth)
	status, err = client.BindDevice(deviceID)
	expect("bind", status, err, device.ReplyDeviceBound)
	status, err = client.Verify("sensor", 1024)
	expect("verify", status, err, device.ReplyTested)
	return client
}

func TestServeEndToEndAcrossRestart(t *testing.T) {
	dataDir := t.TempDir()

	// First run: register, join and report.
	addr, stop := startServer(t, testConfig(dataDir), nil)
	client := connect(t, addr, "alice", "1", device.ReplyNewUser)
	for _, step := range []struct {
		call func() (string, error)
		want string
	}{
		{func() (string, error) { return client.Create("home") }, device.ReplyOK},
		{func() (string, error) { return client.Join("home") }, device.ReplyOK},
		{func() (string, error) { return client.SendTemperature(21.5) }, device.ReplyOK},
		{func() (string, error) { return client.SendImage("cat.jpg", []byte("jpeg bytes")) }, device.ReplyOK},
	} {
		status, err := step.call()
		if err != nil || status != step.want {
			t.Fatalf("status = %q (%v), want %q", status, err, step.want)
		}
	}
	client.Close()
	stop()

	// Second run over the same data directory.
	addr, _ = startServer(t, testConfig(dataDir), nil)
	client = connect(t, addr, "alice", "2", device.ReplyUser)

	status, payload, err := client.ReadTemperatures("home")
	if err != nil || status != device.ReplyOK {
		t.Fatalf("RT = %q (%v)", status, err)
	}
	if got := string(payload); got != "alice:1 -> 21.5\n" {
		t.Errorf("RT payload = %q", got)
	}

	status, payload, err = client.ReadImage("alice", "1")
	if err != nil || status != device.ReplyOK {
		t.Fatalf("RI = %q (%v)", status, err)
	}
	if string(payload) != "jpeg bytes" {
		t.Errorf("RI payload = %q", payload)
	}

	status, err = client.Create("home")
	if err != nil || status != device.ReplyDomainExists {
		t.Errorf("CREATE after restart = %q (%v), want %q", status, err, device.ReplyDomainExists)
	}
}


func TestServeImportsLegacyData(t *testing.T) {
	legacyDir := t.TempDir()
	files := map[string]string{
		"users.txt":   "alice,pw-alice\nbob,pw-bob\n",
		"devices.txt": "1,home\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(legacyDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	addr, _ := startServer(t, testConfig(t.TempDir()), &options{
		importLegacy: legacyDir,
		legacyOwner:  "alice",
	})

	alice := connect(t, addr, "alice", "1", device.ReplyUser)
	if status, err := alice.SendTemperature(20); err != nil || status != device.ReplyOK {
		t.Fatalf("ET = %q (%v)", status, err)
	}
	status, payload, err := alice.ReadTemperatures("home")
	if err != nil || status != device.ReplyOK {
		t.Fatalf("RT = %q (%v)", status, err)
	}
	if got := string(payload); got != "alice:1 -> 20\n" {
		t.Errorf("RT payload = %q", got)
	}

	bob := connect(t, addr, "bob", "1", device.ReplyUser)
	if status, _, err := bob.ReadTemperatures("home"); err != nil || status != device.ReplyNoPermission {
		t.Errorf("RT by non-member user = %q (%v), want %q", status, err, device.ReplyNoPermission)
	}
}

func TestServeRejectsLockedDataDir(t *testing.T) {
	dataDir := t.TempDir()
	startServer(t, testConfig(dataDir), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := serve(ctx, testConfig(dataDir), nil, testutil.Logger(t), nil); err == nil {
		t.Error("second server on the same data directory started")
	}
}
