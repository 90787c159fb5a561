// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package native

import "fmt"

// Event is a normalized asynchronous notification from the driver or
// supplicant. Events are handed to a single sink and processed serially
// there; the adapter itself keeps no state.
type Event interface {
	fmt.Stringer
	isEvent()
}

// ConnectionEstablished reports a successful layer-2 association.
type ConnectionEstablished struct {
	NetworkID int
	BSSID     string
}

func (ConnectionEstablished) isEvent() {}
func (e ConnectionEstablished) String() string {
	return fmt.Sprintf("NETWORK_CONNECTION(%d, %s)", e.NetworkID, e.BSSID)
}

// Disconnected reports loss of the layer-2 association. LocallyGenerated is
// true when the disconnect was requested from our side.
type Disconnected struct {
	BSSID            string
	ReasonCode       int
	LocallyGenerated bool
}

func (Disconnected) isEvent() {}
func (e Disconnected) String() string {
	return fmt.Sprintf("NETWORK_DISCONNECTION(%s, reason=%d, local=%v)", e.BSSID, e.ReasonCode, e.LocallyGenerated)
}

// SupplicantStateChanged reports supplicant association progress.
type SupplicantStateChanged struct {
	NetworkID int
	SSID      string
	BSSID     string
	State     SupplicantState
}

func (SupplicantStateChanged) isEvent() {}
func (e SupplicantStateChanged) String() string {
	return fmt.Sprintf("SUPPLICANT_STATE_CHANGE(%d, %s, %s)", e.NetworkID, e.BSSID, e.State)
}

// AssociationRejected reports an association attempt refused by the AP.
type AssociationRejected struct {
	StatusCode int
	BSSID      string
	Timeout    bool
}

func (AssociationRejected) isEvent() {}
func (e AssociationRejected) String() string {
	return fmt.Sprintf("ASSOCIATION_REJECTION(%s, status=%d, timeout=%v)", e.BSSID, e.StatusCode, e.Timeout)
}

// AuthenticationFailed reports an authentication failure. VendorErrorCode is
// only meaningful for Reason == AuthFailureEAP.
type AuthenticationFailed struct {
	Reason          AuthFailureReason
	VendorErrorCode int
}

func (AuthenticationFailed) isEvent() {}
func (e AuthenticationFailed) String() string {
	return fmt.Sprintf("AUTHENTICATION_FAILURE(%s, vendor=%d)", e.Reason, e.VendorErrorCode)
}

// AssociatedBSSID reports the BSSID the interface is now associated with,
// typically after a roam.
type AssociatedBSSID struct {
	BSSID string
}

func (AssociatedBSSID) isEvent() {}
func (e AssociatedBSSID) String() string {
	return fmt.Sprintf("ASSOCIATED_BSSID(%s)", e.BSSID)
}

// Adapter normalizes raw driver/supplicant notifications into Events and
// forwards them to the sink. The raw entry points may be called from any
// goroutine; the sink is expected to enqueue, not process.
type Adapter struct {
	sink func(Event)
}

// NewAdapter returns an adapter forwarding to sink.
func NewAdapter(sink func(Event)) *Adapter {
	return &Adapter{sink: sink}
}

func (a *Adapter) OnConnectionEstablished(networkID int, bssid string) {
	a.sink(ConnectionEstablished{NetworkID: networkID, BSSID: bssid})
}

func (a *Adapter) OnDisconnected(bssid string, reasonCode int, locallyGenerated bool) {
	a.sink(Disconnected{BSSID: bssid, ReasonCode: reasonCode, LocallyGenerated: locallyGenerated})
}

func (a *Adapter) OnSupplicantStateChanged(networkID int, ssid, bssid string, state SupplicantState) {
	a.sink(SupplicantStateChanged{NetworkID: networkID, SSID: ssid, BSSID: bssid, State: state})
}

func (a *Adapter) OnAssociationRejected(statusCode int, bssid string, timedOut bool) {
	a.sink(AssociationRejected{StatusCode: statusCode, BSSID: bssid, Timeout: timedOut})
}

// OnAuthenticationFailed normalizes the raw reason code. Unknown codes map
// to AuthFailureNone and are still delivered so diagnostics see them.
func (a *Adapter) OnAuthenticationFailed(reasonCode, vendorErrorCode int) {
	reason := AuthFailureNone
	switch reasonCode {
	case 1:
		reason = AuthFailureTimeout
	case 2:
		reason = AuthFailureWrongPassword
	case 3:
		reason = AuthFailureEAP
	}
	a.sink(AuthenticationFailed{Reason: reason, VendorErrorCode: vendorErrorCode})
}

func (a *Adapter) OnAssociatedBSSID(bssid string) {
	a.sink(AssociatedBSSID{BSSID: bssid})
}
