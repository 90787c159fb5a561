// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

import (
	"sync/atomic"

	"github.com/stationd/stationd/lib/native"
	"github.com/stationd/stationd/lib/netconfig"
)

// invalidRSSI marks "no signal reading yet".
const invalidRSSI = -127

// ConnectionInfo describes the current wireless link. Only the state
// machine worker mutates it; everyone else reads immutable snapshots.
type ConnectionInfo struct {
	NetworkID       int
	SSID            string
	BSSID           string
	FrequencyMHz    int
	RSSI            int
	LinkSpeedMbps   int
	MACAddress      string
	SupplicantState native.SupplicantState
	IPAddress       string
	TxGood          uint64
	TxBad           uint64
	RxSuccess       uint64
}

// HasRealMACAddress reports whether a real hardware address is known, as
// opposed to the disconnected-state sentinel.
func (i ConnectionInfo) HasRealMACAddress() bool {
	return i.MACAddress != "" && i.MACAddress != native.SentinelMAC
}

func emptyConnectionInfo() ConnectionInfo {
	return ConnectionInfo{
		NetworkID:       netconfig.InvalidNetworkID,
		RSSI:            invalidRSSI,
		MACAddress:      native.SentinelMAC,
		SupplicantState: native.StateDisconnected,
	}
}

// connInfo is the single-writer owner of the current ConnectionInfo. The
// worker mutates cur and publishes a copy; Snapshot is safe from any
// goroutine.
type connInfo struct {
	cur  ConnectionInfo
	snap atomic.Pointer[ConnectionInfo]
}

func newConnInfo() *connInfo {
	ci := &connInfo{cur: emptyConnectionInfo()}
	ci.publish()
	return ci
}

func (ci *connInfo) publish() {
	c := ci.cur
	ci.snap.Store(&c)
}

func (ci *connInfo) update(f func(*ConnectionInfo)) {
	f(&ci.cur)
	ci.publish()
}

// Snapshot returns an immutable copy of the current info.
func (ci *connInfo) Snapshot() ConnectionInfo {
	return *ci.snap.Load()
}

// clearConnection resets the connection-scoped fields, keeping only the
// supplicant sub-state the caller may set afterwards.
func (ci *connInfo) clearConnection() {
	st := ci.cur.SupplicantState
	ci.cur = emptyConnectionInfo()
	ci.cur.SupplicantState = st
	ci.publish()
}

// reset returns the info to its pristine disconnected shape.
func (ci *connInfo) reset() {
	ci.cur = emptyConnectionInfo()
	ci.publish()
}
