// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

import (
	"context"
	"net"

	"github.com/stationd/stationd/lib/linkmonitor"
	"github.com/stationd/stationd/lib/netconfig"
	"github.com/stationd/stationd/lib/recovery"
)

// OpMode is the interface session's operational mode.
type OpMode int

const (
	ModeDisabled OpMode = iota
	ModeConnect
)

func (m OpMode) String() string {
	switch m {
	case ModeDisabled:
		return "DISABLED_MODE"
	case ModeConnect:
		return "CONNECT_MODE"
	default:
		return "UNKNOWN_MODE"
	}
}

// LinkProperties carries the result of IP provisioning.
type LinkProperties struct {
	IPAddress string
	Gateway   string
	DNS       []string
	MTU       int
}

// PasspointProvider is one hotspot provider configuration, owned by the
// Passpoint manager and only passed through here.
type PasspointProvider struct {
	FQDN         string
	FriendlyName string
	Realm        string
}

// ProvisionRequest asks the Passpoint manager to start subscription
// provisioning against a provider.
type ProvisionRequest struct {
	FQDN string
}

// StateDump is the diagnostic snapshot returned by Dump.
type StateDump struct {
	State   string
	Mode    OpMode
	Iface   string
	Info    ConnectionInfo
	Records []LogRecord
}

// ConfigStore is the persisted-network collaborator. *netconfig.Store
// implements it; platforms may substitute their own.
type ConfigStore interface {
	Save(cfg *netconfig.Network) (int, error)
	Remove(id int) bool
	Network(id int) (netconfig.Network, bool)
	NetworkUnmasked(id int) (netconfig.Network, bool)
	ResolveBySSID(ssid string) (int, bool)
	EnableNetwork(id int) bool
	SetSelectionStatus(id int, status netconfig.SelectionStatus) bool
	SetRecentFailure(id, reason int) bool
	ClearRecentFailure(id int)
	RecordSuccessfulConnection(id int) bool
	HasEverConnected(id int) bool
	SetLastSelectedNetwork(id int)
	LastSelectedNetwork() int
	RemoveEphemeralNetworks() []int
	ScanRecordFor(id int, bssid string) (netconfig.ScanRecord, bool)
	GetOrCreateRandomizedMAC(id int) (net.HardwareAddr, error)
	SetRandomizedMAC(id int, mac net.HardwareAddr)
	IncrementNoInternetReports(id int) int
	SetValidatedInternetAccess(id int, ok bool)
}

// Scheduler is the connectivity scheduler collaborator: network selection
// policy, ranking feedback and the scheduler-facing wifi state tracker.
type Scheduler interface {
	SetUserConnectChoice(networkID int)
	PrimeForcedConnection(networkID int)
	ReportConnectionAttemptOutcome(networkID int, outcome Outcome)
	SetWifiEnabled(enabled bool)
}

// DemandFactory is one external component asserting whether any client
// currently wants connectivity. Factories also receive pass/fail feedback
// for every finished attempt.
type DemandFactory interface {
	HasConnectivityDemand() bool
	ReportConnectionOutcome(networkID int, outcome Outcome)
}

// Diagnostics receives the per-attempt event pair.
type Diagnostics interface {
	NoteAttemptStarted(networkID int)
	ReportConnectionEvent(networkID int, outcome Outcome)
}

// Telemetry is the telemetry-facing collaborator (score card side).
type Telemetry interface {
	NoteDisconnect(networkID, reasonCode int)
	NoteMACChange(networkID int)
	SetWifiEnabled(enabled bool)
}

// IPClient is the IP provisioning collaborator. Start/Stop are
// non-blocking; results come back through the Notify callbacks on the
// service. Shutdown blocks until the client acknowledges, guaranteeing no
// late provisioning event lands after a mode disable.
type IPClient interface {
	StartProvisioning(iface string) error
	Stop(iface string)
	Shutdown(ctx context.Context) error
}

// Registrar is the platform network registration/validation collaborator.
type Registrar interface {
	Register(info ConnectionInfo) error
	Unregister()
}

// Passpoint is the hotspot credential manager; commands are forwarded to it
// after the local gate.
type Passpoint interface {
	AddProvider(p PasspointProvider) bool
	RemoveProvider(fqdn string) bool
	Providers() []PasspointProvider
	StartProvisioning(req ProvisionRequest) bool
}

// Notifier raises user-visible notifications.
type Notifier interface {
	NotifyWrongPassword(ssid string)
	NotifyWifiStateChanged(enabled bool)
}

// CarrierKeys requests carrier-key re-provisioning for SIM-based
// enterprise networks.
type CarrierKeys interface {
	ResetCarrierKeys(networkID int)
}

// RecoveryTrigger reports persistent native failures; *recovery.Trigger
// implements it.
type RecoveryTrigger interface {
	NoteNativeFailure(reason recovery.Reason)
}

// ScoreCard re-exports the link monitor's scoring sink for wiring.
type ScoreCard = linkmonitor.ScoreCard

// No-op collaborator defaults, substituted for nil optional dependencies.

type nopDiagnostics struct{}

func (nopDiagnostics) NoteAttemptStarted(int)             {}
func (nopDiagnostics) ReportConnectionEvent(int, Outcome) {}

type nopTelemetry struct{}

func (nopTelemetry) NoteDisconnect(int, int) {}
func (nopTelemetry) NoteMACChange(int)       {}
func (nopTelemetry) SetWifiEnabled(bool)     {}

type nopRegistrar struct{}

func (nopRegistrar) Register(ConnectionInfo) error { return nil }
func (nopRegistrar) Unregister()                   {}

type nopNotifier struct{}

func (nopNotifier) NotifyWrongPassword(string)  {}
func (nopNotifier) NotifyWifiStateChanged(bool) {}

type nopCarrierKeys struct{}

func (nopCarrierKeys) ResetCarrierKeys(int) {}

type nopRecovery struct{}

func (nopRecovery) NoteNativeFailure(recovery.Reason) {}
