// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rendezvous

import (
	"github.com/prometheus/client_golang/prometheus"
)

type sbbMetrics struct {
	forwarded prometheus.Counter
	dropped   prometheus.Counter
}

// NewMetrics registers relay metrics.
func NewMetrics(registerer prometheus.Registerer) (*sbbMetrics, error) {
	m := &sbbMetrics{
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sbb_forwarded_envelopes",
			Help: "Number of envelopes forwarded to peers",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sbb_dropped_envelopes",
			Help: "Number of envelopes dropped (TTL or duplicate)",
		}),
	}
	for _, c := range []prometheus.Collector{m.forwarded, m.dropped} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newNoopMetrics() *sbbMetrics {
	return &sbbMetrics{
		forwarded: prometheus.NewCounter(prometheus.CounterOpts{Name: "sbb_forwarded_envelopes_noop"}),
		dropped:   prometheus.NewCounter(prometheus.CounterOpts{Name: "sbb_dropped_envelopes_noop"}),
	}
}
