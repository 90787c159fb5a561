// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package native defines the control surface towards the wireless driver and
// supplicant, and the typed event vocabulary the rest of the module consumes.
// The actual driver binding lives behind the Interface type; everything above
// it only ever sees typed values.
package native

import (
	"net"
	"time"

	"github.com/stationd/stationd/lib/netconfig"
)

// SentinelMAC is the placeholder address reported while no randomized
// address is assigned and while the interface is disconnected.
const SentinelMAC = "02:00:00:00:00:00"

// VendorErrCertExpired is the vendor-specific EAP error code signalling an
// expired certificate on the authentication server.
const VendorErrCertExpired = 16385

// SupplicantState mirrors the supplicant's association progress.
type SupplicantState int

const (
	StateDisconnected SupplicantState = iota
	StateInterfaceDisabled
	StateInactive
	StateScanning
	StateAuthenticating
	StateAssociating
	StateAssociated
	StateFourWayHandshake
	StateGroupHandshake
	StateCompleted
	StateInvalid
)

func (s SupplicantState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateInterfaceDisabled:
		return "INTERFACE_DISABLED"
	case StateInactive:
		return "INACTIVE"
	case StateScanning:
		return "SCANNING"
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateAssociating:
		return "ASSOCIATING"
	case StateAssociated:
		return "ASSOCIATED"
	case StateFourWayHandshake:
		return "FOUR_WAY_HANDSHAKE"
	case StateGroupHandshake:
		return "GROUP_HANDSHAKE"
	case StateCompleted:
		return "COMPLETED"
	default:
		return "INVALID"
	}
}

// AuthFailureReason classifies an authentication failure event.
type AuthFailureReason int

const (
	AuthFailureNone AuthFailureReason = iota
	AuthFailureTimeout
	AuthFailureWrongPassword
	AuthFailureEAP
)

func (r AuthFailureReason) String() string {
	switch r {
	case AuthFailureNone:
		return "none"
	case AuthFailureTimeout:
		return "timeout"
	case AuthFailureWrongPassword:
		return "wrong_password"
	case AuthFailureEAP:
		return "eap_failure"
	default:
		return "unknown"
	}
}

// FeatureSet is the capability bitmask reported by the driver.
type FeatureSet uint64

const (
	FeatureInfra FeatureSet = 1 << iota
	Feature5GHz
	FeaturePasspoint
	FeatureP2P
	FeatureTDLS
	FeatureD2DRTT
	FeatureD2APRTT
	FeaturePNO
	FeatureLinkLayerStats
	FeatureRSSIMonitor
	FeatureControlRoaming
	FeatureMACRandomization
)

// SignalPollResult is one instantaneous signal snapshot from the driver.
type SignalPollResult struct {
	RSSI          int
	LinkSpeedMbps int
	FrequencyMHz  int
}

// LinkLayerStats is a cumulative counter snapshot for the interface. The
// data-stall detector diffs consecutive snapshots, so the individual fields
// only ever grow within one association.
type LinkLayerStats struct {
	TxGood    uint64
	TxRetries uint64
	TxBad     uint64
	RxSuccess uint64
	At        time.Time
}

// Interface is the control surface towards the driver and supplicant. All
// calls are assumed non-blocking; completion of anything asynchronous is
// reported through the event adapter.
type Interface interface {
	// SetupClientIface prepares the named interface for client (STA)
	// operation.
	SetupClientIface(iface string) error
	// TeardownIface releases the interface.
	TeardownIface(iface string) error

	// Connect issues a connect-to-network for the given, fully unmasked
	// configuration.
	Connect(iface string, cfg netconfig.Network) error
	// Disconnect drops the current association.
	Disconnect(iface string) error
	// Reassociate re-joins the current network.
	Reassociate(iface string) error

	// GetMACAddress reports the interface's current hardware address.
	GetMACAddress(iface string) (net.HardwareAddr, error)
	// SetMACAddress programs a new hardware address on the interface.
	SetMACAddress(iface string, mac net.HardwareAddr) error

	// SignalPoll fetches an instantaneous signal snapshot.
	SignalPoll(iface string) (SignalPollResult, error)
	// LinkLayerStats fetches the cumulative link-layer counters.
	LinkLayerStats(iface string) (LinkLayerStats, error)

	// StartRSSIMonitoring arms in-driver threshold monitoring. The callback
	// fires on a breach with the raw signed byte value reported by the
	// driver, from whatever goroutine the driver uses.
	StartRSSIMonitoring(iface string, maxRSSI, minRSSI int8, breach func(rssi int8)) error
	// StopRSSIMonitoring disarms threshold monitoring.
	StopRSSIMonitoring(iface string) error

	// SupportedFeatures reports the driver capability bitmask.
	SupportedFeatures(iface string) (FeatureSet, error)
}
