// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package linkmonitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricPolls = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stationd",
	Subsystem: "linkmonitor",
	Name:      "polls_total",
	Help:      "Total number of periodic link polls performed.",
})

var metricDataStalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stationd",
	Subsystem: "linkmonitor",
	Name:      "data_stalls_total",
	Help:      "Total number of suspected data stalls, by verdict.",
}, []string{"verdict"})

var metricRSSI = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stationd",
	Subsystem: "linkmonitor",
	Name:      "rssi_dbm",
	Help:      "Last polled RSSI in dBm.",
})
