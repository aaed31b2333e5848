// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package guard

import (
	"github.com/prometheus/client_golang/prometheus"
)

type guardMetrics struct {
	allows  prometheus.Counter
	denials prometheus.Counter
}

// NewMetrics registers guard metrics.
func NewMetrics(registerer prometheus.Registerer) (*guardMetrics, error) {
	m := &guardMetrics{
		allows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guard_allows",
			Help: "Number of authorized operations",
		}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guard_denials",
			Help: "Number of denied operations",
		}),
	}
	for _, c := range []prometheus.Collector{m.allows, m.denials} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newNoopMetrics() *guardMetrics {
	return &guardMetrics{
		allows:  prometheus.NewCounter(prometheus.CounterOpts{Name: "guard_allows_noop"}),
		denials: prometheus.NewCounter(prometheus.CounterOpts{Name: "guard_denials_noop"}),
	}
}
