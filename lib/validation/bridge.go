// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package validation turns platform internet-reachability verdicts for the
// connected network into selection enable/disable decisions on the store.
package validation

import (
	"log/slog"

	"github.com/stationd/stationd/internal/slogutil"
	"github.com/stationd/stationd/lib/netconfig"
)

// Store is the slice of the config store the bridge needs.
type Store interface {
	Network(id int) (netconfig.Network, bool)
	EnableNetwork(id int) bool
	SetSelectionStatus(id int, status netconfig.SelectionStatus) bool
	IncrementNoInternetReports(id int) int
	SetValidatedInternetAccess(id int, ok bool)
	LastSelectedNetwork() int
}

// Bridge consumes connectivity-validation reports. Callers must only feed
// it reports keyed to the currently connected network; the state machine
// does that filtering.
type Bridge struct {
	store Store
	log   *slog.Logger
}

// NewBridge returns a bridge over the given store.
func NewBridge(store Store, log *slog.Logger) *Bridge {
	return &Bridge{store: store, log: log.With("component", "validation")}
}

// HandleResult applies one validation verdict for the network.
func (b *Bridge) HandleResult(networkID int, valid bool) {
	if valid {
		b.store.SetValidatedInternetAccess(networkID, true)
		b.store.EnableNetwork(networkID)
		b.log.Debug("Internet validation passed", slogutil.Network(networkID))
		return
	}

	count := b.store.IncrementNoInternetReports(networkID)

	// The last explicitly user-selected network is exempt from the
	// temporary disable unless the user flagged it no-internet-expected.
	if networkID == b.store.LastSelectedNetwork() {
		if n, ok := b.store.Network(networkID); ok && !n.NoInternetExpected {
			b.log.Info("Internet validation failed on user-selected network, keeping enabled",
				slogutil.Network(networkID), "reports", count)
			return
		}
	}

	b.store.SetSelectionStatus(networkID, netconfig.DisabledNoInternetTemporary)
	b.log.Info("Internet validation failed, temporarily disabling",
		slogutil.Network(networkID), "reports", count)
}
