// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package native

import (
	"fmt"
	"time"

	gopsutilnet "github.com/shirou/gopsutil/v4/net"
)

// CounterSource produces cumulative link-layer counter snapshots for an
// interface. Driver bindings that expose real per-AC counters implement this
// directly; SystemCounterSource is the OS-level fallback.
type CounterSource interface {
	Counters(iface string) (LinkLayerStats, error)
}

// SystemCounterSource reads interface IO counters from the operating system.
// It lacks the per-access-category detail a wifi driver provides, but the
// deltas are good enough for stall detection on drivers without link-layer
// stats support.
type SystemCounterSource struct{}

func (SystemCounterSource) Counters(iface string) (LinkLayerStats, error) {
	counters, err := gopsutilnet.IOCounters(true)
	if err != nil {
		return LinkLayerStats{}, err
	}
	for _, c := range counters {
		if c.Name != iface {
			continue
		}
		return LinkLayerStats{
			TxGood:    c.PacketsSent,
			TxBad:     c.Errout + c.Dropout,
			RxSuccess: c.PacketsRecv,
			At:        time.Now(),
		}, nil
	}
	return LinkLayerStats{}, fmt.Errorf("no counters for interface %q", iface)
}
