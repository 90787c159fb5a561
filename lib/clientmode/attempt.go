// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

import (
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/stationd/stationd/internal/slogutil"
	"github.com/stationd/stationd/lib/netconfig"
)

// Outcome is the terminal disposition of one connection attempt.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSuccess
	OutcomeAssociationRejection
	OutcomeAuthenticationFailure
	OutcomeDHCPFailure
	OutcomeNetworkDisconnection
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeSuccess:
		return "success"
	case OutcomeAssociationRejection:
		return "association_rejection"
	case OutcomeAuthenticationFailure:
		return "authentication_failure"
	case OutcomeDHCPFailure:
		return "dhcp_failure"
	case OutcomeNetworkDisconnection:
		return "network_disconnection"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// attemptTracker owns the single live connection attempt. Worker-only for
// the attempt state itself; the demand factory registry is concurrent
// because registration happens from collaborator goroutines.
type attemptTracker struct {
	scheduler Scheduler
	factories *xsync.MapOf[string, DemandFactory]
	diag      Diagnostics
	log       *slog.Logger

	live      bool
	networkID int
	ssid      string
	startedAt time.Time
	timeout   *timer
}

func newAttemptTracker(scheduler Scheduler, diag Diagnostics, log *slog.Logger) *attemptTracker {
	return &attemptTracker{
		scheduler: scheduler,
		factories: xsync.NewMapOf[string, DemandFactory](),
		diag:      diag,
		log:       log,
		networkID: netconfig.InvalidNetworkID,
	}
}

// anyDemand reports whether at least one registered factory currently
// asserts connectivity demand.
func (t *attemptTracker) anyDemand() bool {
	demand := false
	t.factories.Range(func(_ string, f DemandFactory) bool {
		if f.HasConnectivityDemand() {
			demand = true
			return false
		}
		return true
	})
	return demand
}

// start begins tracking a new attempt. A still-live previous attempt is
// finalized first so the one-live-attempt invariant holds structurally.
func (t *attemptTracker) start(networkID int, ssid string, timeout *timer) {
	if t.live {
		t.log.Warn("Starting attempt with a previous one still live", slogutil.Network(t.networkID))
		t.finalize(OutcomeNetworkDisconnection)
	}
	t.live = true
	t.networkID = networkID
	t.ssid = ssid
	t.startedAt = time.Now()
	t.timeout = timeout
	t.diag.NoteAttemptStarted(networkID)
}

// finalize records the terminal outcome exactly once: cancels the timeout
// timer and forwards the same outcome as a matched pair to the scheduler
// and to every demand factory, plus diagnostics. A second terminal signal
// is a no-op.
func (t *attemptTracker) finalize(outcome Outcome) bool {
	if !t.live {
		return false
	}
	t.live = false
	if t.timeout != nil {
		t.timeout.cancel()
		t.timeout = nil
	}

	id := t.networkID
	metricAttempts.WithLabelValues(outcome.String()).Inc()
	t.scheduler.ReportConnectionAttemptOutcome(id, outcome)
	t.factories.Range(func(_ string, f DemandFactory) bool {
		f.ReportConnectionOutcome(id, outcome)
		return true
	})
	t.diag.ReportConnectionEvent(id, outcome)

	t.log.Info("Connection attempt finished",
		slogutil.Network(id),
		"outcome", outcome.String(),
		"duration", time.Since(t.startedAt))
	t.networkID = netconfig.InvalidNetworkID
	t.ssid = ""
	return true
}
