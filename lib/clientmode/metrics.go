// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stationd",
	Subsystem: "clientmode",
	Name:      "transitions_total",
	Help:      "Total number of state transitions, by from and to state.",
}, []string{"from", "to"})

var metricAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stationd",
	Subsystem: "clientmode",
	Name:      "attempts_total",
	Help:      "Total number of finished connection attempts, by outcome.",
}, []string{"outcome"})

var metricConnectsSkipped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stationd",
	Subsystem: "clientmode",
	Name:      "connects_skipped_total",
	Help:      "Connect triggers skipped because no demand factory asserted connectivity demand.",
})

var metricDisconnects = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stationd",
	Subsystem: "clientmode",
	Name:      "disconnects_total",
	Help:      "Total number of network disconnects observed while connected.",
})
