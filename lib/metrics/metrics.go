// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics holds the prometheus collectors for the devicehub
// server.
//
// Collectors are registered on a private registry rather than the
// process-wide default so tests can build as many instances as they
// like. All methods are safe on a nil *Metrics, which records nothing;
// libraries take a *Metrics and callers that do not care pass nil.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the server exports.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive   prometheus.Gauge
	SessionsTotal    prometheus.Counter
	Commands         *prometheus.CounterVec
	DevicesOnline    prometheus.Gauge
	StoreWriteErrors prometheus.Counter
}

// New creates the collectors and registers them, along with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devicehub_sessions_active",
			Help: "Number of device connections currently open",
		}),
		SessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "devicehub_sessions_total",
			Help: "Total number of device connections accepted",
		}),
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "devicehub_commands_total",
			Help: "Commands processed, by verb and reply status",
		}, []string{"verb", "status"}),
		DevicesOnline: factory.NewGauge(prometheus.GaugeOpts{
			Name: "devicehub_devices_online",
			Help: "Number of device identities bound to an open connection",
		}),
		StoreWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "devicehub_store_write_errors_total",
			Help: "Registry mutations whose store write failed; memory and disk have diverged",
		}),
	}
}

// SessionOpened records a newly accepted connection.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionClosed records the end of a connection.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
}

// CommandProcessed counts one command and the status it was answered
// with.
func (m *Metrics) CommandProcessed(verb, status string) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(verb, status).Inc()
}

// SetDevicesOnline sets the size of the online set.
func (m *Metrics) SetDevicesOnline(count int) {
	if m == nil {
		return
	}
	m.DevicesOnline.Set(float64(count))
}

// StoreWriteFailed counts a failed store write.
func (m *Metrics) StoreWriteFailed() {
	if m == nil {
		return
	}
	m.StoreWriteErrors.Inc()
}

// Handler serves the registry in the prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
