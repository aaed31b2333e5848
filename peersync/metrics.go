// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package peersync

import (
	"github.com/prometheus/client_golang/prometheus"
)

type managerMetrics struct {
	peers             prometheus.Gauge
	sessionsStarted   prometheus.Counter
	sessionsCompleted prometheus.Counter
	sessionsFailed    prometheus.Counter
}

// NewMetrics registers peer sync metrics.
func NewMetrics(registerer prometheus.Registerer) (*managerMetrics, error) {
	m := &managerMetrics{
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peersync_peers",
			Help: "Number of tracked sync peers",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peersync_sessions_started",
			Help: "Number of sync sessions opened",
		}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peersync_sessions_completed",
			Help: "Number of sync sessions completed",
		}),
		sessionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peersync_sessions_failed",
			Help: "Number of sync sessions failed",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.peers, m.sessionsStarted, m.sessionsCompleted, m.sessionsFailed,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newNoopMetrics() *managerMetrics {
	return &managerMetrics{
		peers:             prometheus.NewGauge(prometheus.GaugeOpts{Name: "peersync_peers_noop"}),
		sessionsStarted:   prometheus.NewCounter(prometheus.CounterOpts{Name: "peersync_sessions_started_noop"}),
		sessionsCompleted: prometheus.NewCounter(prometheus.CounterOpts{Name: "peersync_sessions_completed_noop"}),
		sessionsFailed:    prometheus.NewCounter(prometheus.CounterOpts{Name: "peersync_sessions_failed_noop"}),
	}
}
