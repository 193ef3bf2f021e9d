// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package metrics exposes Prometheus instrumentation for the acquisition,
// link and responder tasks. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label values
const (
	ResultOK       = "ok"
	ResultCRCError = "crc_error"
	ResultBusError = "bus_error"
	ResultFailed   = "failed"
	ResultServed   = "served"
)

// Metrics holds the registered collectors
type Metrics struct {
	readings     *prometheus.CounterVec
	joinAttempts *prometheus.CounterVec
	sessions     *prometheus.CounterVec
	temperature  prometheus.Gauge
	linkUp       prometheus.Gauge
	dropped      prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quadtherm_readings_total",
			Help: "Acquisition cycles by outcome.",
		}, []string{"result"}),
		joinAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quadtherm_join_attempts_total",
			Help: "Wireless network join attempts by outcome.",
		}, []string{"result"}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quadtherm_sessions_total",
			Help: "Responder sessions by outcome.",
		}, []string{"result"}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quadtherm_temperature_celsius",
			Help: "Last valid temperature reading.",
		}),
		linkUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "quadtherm_link_up",
			Help: "1 once the link came up, 0 otherwise.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quadtherm_uplink_dropped_total",
			Help: "Measurements an uplink could not deliver.",
		}),
		gatherer: reg,
	}

	reg.MustRegister(m.readings, m.joinAttempts, m.sessions, m.temperature, m.linkUp, m.dropped)
	return m
}

// Reading records the outcome of one acquisition cycle
func (m *Metrics) Reading(result string, celsius float32) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(result).Inc()
	if result == ResultOK {
		m.temperature.Set(float64(celsius))
	}
}

// JoinAttempt records one join attempt
func (m *Metrics) JoinAttempt(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.joinAttempts.WithLabelValues(ResultOK).Inc()
	} else {
		m.joinAttempts.WithLabelValues(ResultFailed).Inc()
	}
}

// LinkUp records the resolved link state
func (m *Metrics) LinkUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.linkUp.Set(1)
	} else {
		m.linkUp.Set(0)
	}
}

// Session records the outcome of one responder session
func (m *Metrics) Session(result string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(result).Inc()
}

// UplinkDropped records a measurement an uplink failed to deliver
func (m *Metrics) UplinkDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
