// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package recovery forwards persistent native-layer failures to the
// platform self-recovery collaborator, rate limited so a flapping driver
// cannot restart-storm the interface.
package recovery

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// Reason classifies what failed.
type Reason int

const (
	ReasonNativeFailure Reason = iota
	ReasonIfaceDown
)

func (r Reason) String() string {
	switch r {
	case ReasonNativeFailure:
		return "native_failure"
	case ReasonIfaceDown:
		return "iface_down"
	default:
		return "unknown"
	}
}

// Recoverer is the external self-recovery collaborator.
type Recoverer interface {
	Trigger(reason Reason)
}

// At most one recovery trigger per minute, with a burst of one.
var defaultLimit = rate.Every(time.Minute)

// Trigger rate-limits forwarding of native failures to the recoverer.
type Trigger struct {
	limiter   *rate.Limiter
	recoverer Recoverer
	log       *slog.Logger
}

// NewTrigger returns a trigger over the given recoverer.
func NewTrigger(recoverer Recoverer, log *slog.Logger) *Trigger {
	return &Trigger{
		limiter:   rate.NewLimiter(defaultLimit, 1),
		recoverer: recoverer,
		log:       log.With("component", "recovery"),
	}
}

// NoteNativeFailure records a failure and triggers recovery if the limiter
// allows it. Suppressed triggers are only logged.
func (t *Trigger) NoteNativeFailure(reason Reason) {
	if t.recoverer == nil {
		return
	}
	if !t.limiter.Allow() {
		t.log.Debug("Suppressing recovery trigger", "reason", reason.String())
		return
	}
	t.log.Warn("Triggering self recovery", "reason", reason.String())
	t.recoverer.Trigger(reason)
}
