// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package gossip

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "filament_gossip",
		Name:      "active_sessions",
		Help:      "number of peer sessions currently being followed",
	})
	sessionsLaunched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filament_gossip",
		Name:      "sessions_launched_total",
		Help:      "total number of peer sessions launched",
	})
	sessionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filament_gossip",
		Name:      "session_failures_total",
		Help:      "total number of peer sessions that ended in an error",
	})
	certificatesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "filament_gossip",
		Name:      "certificates_fetched_total",
		Help:      "total number of certificates fetched from followed peers",
	})
)
