// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/devicehub/lib/metrics"
	"github.com/bureau-foundation/devicehub/lib/testutil"
)

// startHTTPServer serves handler on a loopback port until the returned
// cancel is called, and returns the server's base URL.
func startHTTPServer(t *testing.T, handler http.Handler) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	server := NewHTTPServer(HTTPServerConfig{
		Address:         "127.0.0.1:0",
		Handler:         handler,
		ShutdownTimeout: 2 * time.Second,
		Logger:          testutil.Logger(t),
	})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.Serve(ctx)
	}()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "http server ready")
	return "http://" + server.Addr().String(), cancel, serveDone
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	response, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer response.Body.Close()
	body, err := io.ReadAll(response.Body)
	if err != nil {
		t.Fatalf("reading %s: %v", url, err)
	}
	return response.StatusCode, string(body)
}

func TestHTTPServerServesMetrics(t *testing.T) {
	collectors := metrics.New()
	collectors.SetDevicesOnline(2)
	collectors.CommandProcessed("ET", "OK")

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", collectors.Handler())
	baseURL, cancel, serveDone := startHTTPServer(t, mux)

	status, body := get(t, baseURL+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("GET /metrics status = %d", status)
	}
	lines := strings.Split(body, "\n")
	for _, want := range []string{
		"devicehub_devices_online 2",
		`devicehub_commands_total{status="OK",verb="ET"} 1`,
	} {
		if !slices.Contains(lines, want) {
			t.Errorf("metrics body missing line %q", want)
		}
	}

	if status, _ := get(t, baseURL+"/other"); status != http.StatusNotFound {
		t.Errorf("GET /other status = %d, want 404", status)
	}

	cancel()
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "Serve did not return"); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
}

func TestHTTPServerDrainsInFlightRequests(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		io.WriteString(writer, "late")
	})
	baseURL, cancel, serveDone := startHTTPServer(t, handler)

	bodies := make(chan string, 1)
	go func() {
		response, err := http.Get(baseURL + "/slow")
		if err != nil {
			bodies <- "error: " + err.Error()
			return
		}
		defer response.Body.Close()
		body, _ := io.ReadAll(response.Body)
		bodies <- string(body)
	}()
	testutil.RequireClosed(t, entered, 5*time.Second, "request reached handler")

	cancel()
	select {
	case <-serveDone:
		t.Fatal("Serve returned with a request in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	if body := testutil.RequireReceive(t, bodies, 5*time.Second, "slow response"); body != "late" {
		t.Errorf("in-flight response = %q, want %q", body, "late")
	}
	if err := testutil.RequireReceive(t, serveDone, 5*time.Second, "Serve did not return"); err != nil {
		t.Errorf("Serve() = %v, want nil", err)
	}
}

func TestHTTPServerPanicsOnMissingConfig(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	handler := http.NotFoundHandler()

	for name, config := range map[string]HTTPServerConfig{
		"missing_address": {Handler: handler, Logger: logger},
		"missing_handler": {Address: ":0", Logger: logger},
		"missing_logger":  {Address: ":0", Handler: handler},
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("NewHTTPServer did not panic")
				}
			}()
			NewHTTPServer(config)
		})
	}
}
