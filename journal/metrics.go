// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package journal

import (
	"github.com/prometheus/client_golang/prometheus"
)

type journalMetrics struct {
	facts          prometheus.Counter
	commits        prometheus.Counter
	equivocations  prometheus.Counter
	pendingIntents prometheus.Gauge
}

// NewMetrics registers the journal's metrics on the given registerer.
func NewMetrics(registerer prometheus.Registerer) (*journalMetrics, error) {
	m := &journalMetrics{
		facts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_facts",
			Help: "Number of facts merged into the journal",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_commits",
			Help: "Number of accepted commit facts",
		}),
		equivocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "journal_equivocations",
			Help: "Number of equivocating commits recorded",
		}),
		pendingIntents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journal_pending_intents",
			Help: "Number of intents awaiting commit",
		}),
	}
	for _, c := range []prometheus.Collector{m.facts, m.commits, m.equivocations, m.pendingIntents} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// newNoopMetrics builds unregistered collectors for tests and tools.
func newNoopMetrics() *journalMetrics {
	return &journalMetrics{
		facts:          prometheus.NewCounter(prometheus.CounterOpts{Name: "journal_facts_noop"}),
		commits:        prometheus.NewCounter(prometheus.CounterOpts{Name: "journal_commits_noop"}),
		equivocations:  prometheus.NewCounter(prometheus.CounterOpts{Name: "journal_equivocations_noop"}),
		pendingIntents: prometheus.NewGauge(prometheus.GaugeOpts{Name: "journal_pending_intents_noop"}),
	}
}
