// Copyright 2023 ChainSafe Systems (ON)
// SPDX-License-Identifier: LGPL-3.0-only

package state

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sequencedTransactions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "filament_state",
	Name:      "sequenced_transactions",
	Help:      "number of certified transactions in the local sequence",
})
