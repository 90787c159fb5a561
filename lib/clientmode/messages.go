// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

import (
	"fmt"

	"github.com/stationd/stationd/lib/native"
	"github.com/stationd/stationd/lib/netconfig"
)

// message is anything the worker processes. Every message has a String()
// used by the log ring and the state dump.
type message interface {
	fmt.Stringer
}

// --- mode control ---

type setModeReq struct {
	mode  OpMode
	iface string
	reply chan bool
}

func (m setModeReq) String() string { return fmt.Sprintf("SET_OPERATIONAL_MODE(%s, %q)", m.mode, m.iface) }

// --- network lifecycle ---

type addNetworkResult struct {
	networkID int
	err       error
}

type addNetworkReq struct {
	cfg   *netconfig.Network
	reply chan addNetworkResult
}

func (addNetworkReq) String() string { return "ADD_OR_UPDATE_NETWORK" }

type removeNetworkReq struct {
	networkID int
	reply     chan bool
}

func (m removeNetworkReq) String() string { return fmt.Sprintf("REMOVE_NETWORK(%d)", m.networkID) }

type forgetNetworkReq struct {
	networkID int
	reply     chan bool
}

func (m forgetNetworkReq) String() string { return fmt.Sprintf("FORGET_NETWORK(%d)", m.networkID) }

type enableNetworkReq struct {
	networkID     int
	disableOthers bool
	privileged    bool
	reply         chan bool
}

func (m enableNetworkReq) String() string {
	return fmt.Sprintf("ENABLE_NETWORK(%d, disableOthers=%v)", m.networkID, m.disableOthers)
}

type disableNetworkReq struct {
	networkID int
	reply     chan bool
}

func (m disableNetworkReq) String() string { return fmt.Sprintf("DISABLE_NETWORK(%d)", m.networkID) }

// --- connection control ---

type connectReq struct {
	networkID  int
	privileged bool
	reply      chan bool
}

func (m connectReq) String() string { return fmt.Sprintf("CONNECT_NETWORK(%d)", m.networkID) }

type disconnectCmd struct{}

func (disconnectCmd) String() string { return "CMD_DISCONNECT" }

type reconnectCmd struct{}

func (reconnectCmd) String() string { return "CMD_RECONNECT" }

// --- passpoint passthrough ---

type passpointAddReq struct {
	provider PasspointProvider
	reply    chan bool
}

func (m passpointAddReq) String() string { return fmt.Sprintf("ADD_PASSPOINT_CONFIG(%s)", m.provider.FQDN) }

type passpointRemoveReq struct {
	fqdn  string
	reply chan bool
}

func (m passpointRemoveReq) String() string { return fmt.Sprintf("REMOVE_PASSPOINT_CONFIG(%s)", m.fqdn) }

type passpointListReq struct {
	reply chan []PasspointProvider
}

func (passpointListReq) String() string { return "GET_PASSPOINT_CONFIGS" }

type passpointProvisionReq struct {
	req   ProvisionRequest
	reply chan bool
}

func (m passpointProvisionReq) String() string {
	return fmt.Sprintf("START_SUBSCRIPTION_PROVISIONING(%s)", m.req.FQDN)
}

// --- diagnostics ---

type dumpReq struct {
	reply chan StateDump
}

func (dumpReq) String() string { return "CMD_DUMP" }

type featuresReq struct {
	reply chan native.FeatureSet
}

func (featuresReq) String() string { return "CMD_GET_SUPPORTED_FEATURES" }

type setPollingCmd struct {
	enabled bool
}

func (m setPollingCmd) String() string { return fmt.Sprintf("ENABLE_RSSI_POLL(%v)", m.enabled) }

type setVerboseCmd struct {
	verbose bool
}

func (m setVerboseCmd) String() string { return fmt.Sprintf("SET_VERBOSE_LOGGING(%v)", m.verbose) }

type clearAuthFailureCmd struct {
	networkID int
}

func (m clearAuthFailureCmd) String() string { return fmt.Sprintf("AUTH_FAILURE_CLEARED(%d)", m.networkID) }

// --- adapter / collaborator callbacks ---

type nativeEventMsg struct {
	ev native.Event
}

func (m nativeEventMsg) String() string { return m.ev.String() }

type ipSuccessMsg struct {
	props LinkProperties
}

func (ipSuccessMsg) String() string { return "CMD_IP_CONFIGURATION_SUCCESSFUL" }

type ipFailureMsg struct{}

func (ipFailureMsg) String() string { return "CMD_IP_CONFIGURATION_LOST" }

type dhcpResultsMsg struct {
	props LinkProperties
}

func (dhcpResultsMsg) String() string { return "CMD_NEW_DHCP_RESULTS" }

type rssiBreachMsg struct {
	rssi int8
}

func (m rssiBreachMsg) String() string { return fmt.Sprintf("CMD_RSSI_THRESHOLD_BREACH(%d)", m.rssi) }

type validationMsg struct {
	networkID int
	valid     bool
}

func (m validationMsg) String() string {
	return fmt.Sprintf("NETWORK_STATUS(%d, valid=%v)", m.networkID, m.valid)
}

// --- timers ---

type connectTimeoutMsg struct{}

func (connectTimeoutMsg) String() string { return "CMD_DIAGS_CONNECT_TIMEOUT" }

type pollTickMsg struct{}

func (pollTickMsg) String() string { return "CMD_RSSI_POLL" }

// timerMsg wraps a delayed self-message so a cancellation that raced the
// dispatch still voids it.
type timerMsg struct {
	tm    *timer
	inner message
}

func (m timerMsg) String() string { return m.inner.String() }
