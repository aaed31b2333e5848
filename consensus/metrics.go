// Copyright (C) 2024-2026, Aura Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package consensus

import (
	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	commits           prometheus.Counter
	fastPathCommits   prometheus.Counter
	fastPathFallbacks prometheus.Counter
	timeouts          prometheus.Counter
	byzantineEvents   prometheus.Counter
	gossipRounds      prometheus.Counter
}

// NewMetrics registers engine metrics.
func NewMetrics(registerer prometheus.Registerer) (*engineMetrics, error) {
	m := &engineMetrics{
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_commits",
			Help: "Number of commits produced",
		}),
		fastPathCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_fast_path_commits",
			Help: "Number of commits via the 1-RTT fast path",
		}),
		fastPathFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_fast_path_fallbacks",
			Help: "Number of silent fast-to-slow path fallbacks",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_timeouts",
			Help: "Number of timed-out instances",
		}),
		byzantineEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_byzantine_events",
			Help: "Number of Byzantine observations",
		}),
		gossipRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "consensus_gossip_rounds",
			Help: "Number of epidemic gossip activations",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.commits, m.fastPathCommits, m.fastPathFallbacks,
		m.timeouts, m.byzantineEvents, m.gossipRounds,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func newNoopMetrics() *engineMetrics {
	return &engineMetrics{
		commits:           prometheus.NewCounter(prometheus.CounterOpts{Name: "consensus_commits_noop"}),
		fastPathCommits:   prometheus.NewCounter(prometheus.CounterOpts{Name: "consensus_fast_path_commits_noop"}),
		fastPathFallbacks: prometheus.NewCounter(prometheus.CounterOpts{Name: "consensus_fast_path_fallbacks_noop"}),
		timeouts:          prometheus.NewCounter(prometheus.CounterOpts{Name: "consensus_timeouts_noop"}),
		byzantineEvents:   prometheus.NewCounter(prometheus.CounterOpts{Name: "consensus_byzantine_events_noop"}),
		gossipRounds:      prometheus.NewCounter(prometheus.CounterOpts{Name: "consensus_gossip_rounds_noop"}),
	}
}
