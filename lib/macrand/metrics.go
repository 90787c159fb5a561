// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package macrand

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var metricAddressChanges = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stationd",
	Subsystem: "macrand",
	Name:      "address_changes_total",
	Help:      "Total number of randomized addresses programmed onto the interface.",
})
