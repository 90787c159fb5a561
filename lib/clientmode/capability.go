// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

import "github.com/stationd/stationd/lib/native"

// commandKind groups commands for the central capability check.
type commandKind int

const (
	cmdModeControl commandKind = iota
	cmdNetworkLifecycle
	cmdConnectionControl
	cmdPasspoint
	cmdDiagnostics
	cmdFeatureQuery
)

// decision is an allow/deny verdict with a reason for the deny case.
type decision struct {
	allowed bool
	reason  string
}

var allow = decision{allowed: true}

func deny(reason string) decision {
	return decision{reason: reason}
}

// checkCommand is the single capability gate all command handlers consult.
func (s *Service) checkCommand(kind commandKind) decision {
	switch kind {
	case cmdPasspoint:
		if !s.everStarted {
			return deny("machine has never started")
		}
		if s.mode != ModeConnect {
			return deny("not in connect mode")
		}
		return allow
	case cmdConnectionControl:
		if s.mode != ModeConnect {
			return deny("not in connect mode")
		}
		return allow
	case cmdModeControl, cmdNetworkLifecycle, cmdDiagnostics, cmdFeatureQuery:
		return allow
	default:
		return deny("unknown command kind")
	}
}

// maskFeatures intersects the driver capability bitmask with platform
// flags. The RTT-disable flag removes both RTT variants.
func maskFeatures(fs native.FeatureSet, rttDisabled bool) native.FeatureSet {
	if rttDisabled {
		fs &^= native.FeatureD2DRTT | native.FeatureD2APRTT
	}
	return fs
}
