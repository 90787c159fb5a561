// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package native

import "testing"

func collectEvents() (*Adapter, *[]Event) {
	var events []Event
	a := NewAdapter(func(ev Event) { events = append(events, ev) })
	return a, &events
}

func TestAdapterNormalizesAuthFailureCodes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code int
		want AuthFailureReason
	}{
		{1, AuthFailureTimeout},
		{2, AuthFailureWrongPassword},
		{3, AuthFailureEAP},
		{0, AuthFailureNone},
		{99, AuthFailureNone},
	}
	for _, tc := range cases {
		a, events := collectEvents()
		a.OnAuthenticationFailed(tc.code, 0)
		if len(*events) != 1 {
			t.Fatalf("code %d: events = %d, want 1", tc.code, len(*events))
		}
		ev, ok := (*events)[0].(AuthenticationFailed)
		if !ok {
			t.Fatalf("code %d: event type %T", tc.code, (*events)[0])
		}
		if ev.Reason != tc.want {
			t.Errorf("code %d: reason = %v, want %v", tc.code, ev.Reason, tc.want)
		}
	}
}

func TestAdapterForwardsVendorCode(t *testing.T) {
	t.Parallel()
	a, events := collectEvents()
	a.OnAuthenticationFailed(3, VendorErrCertExpired)

	ev := (*events)[0].(AuthenticationFailed)
	if ev.VendorErrorCode != VendorErrCertExpired {
		t.Errorf("vendor code = %d, want %d", ev.VendorErrorCode, VendorErrCertExpired)
	}
}

func TestAdapterEventShapes(t *testing.T) {
	t.Parallel()
	a, events := collectEvents()

	a.OnConnectionEstablished(4, "12:34:56:78:9a:bc")
	a.OnDisconnected("12:34:56:78:9a:bc", 3, true)
	a.OnSupplicantStateChanged(4, "mesh", "12:34:56:78:9a:bc", StateCompleted)
	a.OnAssociationRejected(17, "12:34:56:78:9a:bc", false)
	a.OnAssociatedBSSID("12:34:56:78:9a:bd")

	if len(*events) != 5 {
		t.Fatalf("events = %d, want 5", len(*events))
	}
	if ev := (*events)[0].(ConnectionEstablished); ev.NetworkID != 4 {
		t.Errorf("network id = %d", ev.NetworkID)
	}
	if ev := (*events)[1].(Disconnected); !ev.LocallyGenerated || ev.ReasonCode != 3 {
		t.Errorf("disconnect = %+v", ev)
	}
	if ev := (*events)[2].(SupplicantStateChanged); ev.State != StateCompleted {
		t.Errorf("supplicant state = %v", ev.State)
	}
	if ev := (*events)[3].(AssociationRejected); ev.StatusCode != 17 {
		t.Errorf("status = %d", ev.StatusCode)
	}
	if ev := (*events)[4].(AssociatedBSSID); ev.BSSID != "12:34:56:78:9a:bd" {
		t.Errorf("bssid = %q", ev.BSSID)
	}

	// Every event renders for the diagnostic ring.
	for _, ev := range *events {
		if ev.String() == "" {
			t.Errorf("empty String() for %T", ev)
		}
	}
}

func TestSupplicantStateStrings(t *testing.T) {
	t.Parallel()
	if StateCompleted.String() != "COMPLETED" {
		t.Errorf("completed = %q", StateCompleted.String())
	}
	if StateInterfaceDisabled.String() != "INTERFACE_DISABLED" {
		t.Errorf("interface disabled = %q", StateInterfaceDisabled.String())
	}
	if SupplicantState(99).String() != "INVALID" {
		t.Errorf("out of range = %q", SupplicantState(99).String())
	}
}
