// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

// stateID tags one state of the hierarchical machine. Default is the root
// (mode disabled); staEnabled is a pure superstate and never the active
// state; ObtainingIp is a sub-phase of Connecting.
type stateID int

const (
	stateDefault stateID = iota
	stateStaEnabled
	stateDisconnected
	stateConnecting
	stateObtainingIP
	stateConnected
	stateRoaming
	stateDisconnecting
)

func (s stateID) String() string {
	switch s {
	case stateDefault:
		return "Default"
	case stateStaEnabled:
		return "StaEnabled"
	case stateDisconnected:
		return "Disconnected"
	case stateConnecting:
		return "Connecting"
	case stateObtainingIP:
		return "ObtainingIp"
	case stateConnected:
		return "Connected"
	case stateRoaming:
		return "Roaming"
	case stateDisconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// stateParents encodes the hierarchy. Default has no parent.
var stateParents = map[stateID]stateID{
	stateStaEnabled:    stateDefault,
	stateDisconnected:  stateStaEnabled,
	stateConnecting:    stateStaEnabled,
	stateObtainingIP:   stateConnecting,
	stateConnected:     stateStaEnabled,
	stateRoaming:       stateStaEnabled,
	stateDisconnecting: stateStaEnabled,
}

// ancestry returns the chain leaf-first up to and including Default.
func ancestry(s stateID) []stateID {
	chain := []stateID{s}
	for {
		p, ok := stateParents[s]
		if !ok {
			return chain
		}
		chain = append(chain, p)
		s = p
	}
}

// isStaEnabled reports whether the state lives under the StaEnabled
// superstate.
func isStaEnabled(s stateID) bool {
	for _, a := range ancestry(s) {
		if a == stateStaEnabled {
			return true
		}
	}
	return false
}

// isConnectedLineage reports whether Wifi connection info may legitimately
// be populated in this state.
func isConnectedLineage(s stateID) bool {
	switch s {
	case stateObtainingIP, stateConnected, stateRoaming:
		return true
	default:
		return false
	}
}

// Per-state entry/exit hooks, invoked on every transition crossing the
// state. Only states with behavior appear here.
var stateEntryHooks = map[stateID]func(*Service){
	stateConnected: (*Service).enterConnected,
}

var stateExitHooks = map[stateID]func(*Service){
	stateConnected: (*Service).exitConnected,
}

// transitionTo runs exit hooks from the current state up to (excluding) the
// deepest common ancestor with the target, then entry hooks down into the
// target.
func (s *Service) transitionTo(to stateID) {
	if to == s.state {
		return
	}
	from := s.state

	fromChain := ancestry(from)
	toChain := ancestry(to)

	inTo := make(map[stateID]bool, len(toChain))
	for _, st := range toChain {
		inTo[st] = true
	}
	common := stateDefault
	for _, st := range fromChain {
		if inTo[st] {
			common = st
			break
		}
	}

	for _, st := range fromChain {
		if st == common {
			break
		}
		if hook, ok := stateExitHooks[st]; ok {
			hook(s)
		}
	}

	s.state = to

	// Entry order is outermost first.
	for i := len(toChain) - 1; i >= 0; i-- {
		st := toChain[i]
		if st == common || !inTo[st] {
			continue
		}
		if deeperThan(st, common) {
			if hook, ok := stateEntryHooks[st]; ok {
				hook(s)
			}
		}
	}

	metricTransitions.WithLabelValues(from.String(), to.String()).Inc()
	s.log.Debug("State transition", "from", from.String(), "to", to.String())
}

// deeperThan reports whether st lies strictly below ancestor in the
// hierarchy.
func deeperThan(st, ancestor stateID) bool {
	if st == ancestor {
		return false
	}
	for _, a := range ancestry(st)[1:] {
		if a == ancestor {
			return true
		}
	}
	// Not related; only happens when ancestor is Default, which is
	// everyone's root.
	return ancestor == stateDefault
}
