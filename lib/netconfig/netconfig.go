// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package netconfig holds the network record model and an in-memory store
// over it: saved networks, their selection status, randomized addresses and
// per-network scan caches. The store is the authority for record contents;
// the state machine references records by id only.
package netconfig

import (
	"net"
	"time"
)

// InvalidNetworkID marks "no network".
const InvalidNetworkID = -1

// maskedSecret replaces key material in external copies of a record.
const maskedSecret = "*"

// KeyMgmt is the key management scheme of a network.
type KeyMgmt int

const (
	KeyMgmtNone KeyMgmt = iota
	KeyMgmtPSK
	KeyMgmtEAP
	KeyMgmtSAE
)

func (k KeyMgmt) String() string {
	switch k {
	case KeyMgmtNone:
		return "NONE"
	case KeyMgmtPSK:
		return "WPA_PSK"
	case KeyMgmtEAP:
		return "WPA_EAP"
	case KeyMgmtSAE:
		return "SAE"
	default:
		return "UNKNOWN"
	}
}

// EAPMethod is the enterprise authentication method of a network.
type EAPMethod int

const (
	EAPNone EAPMethod = iota
	EAPTLS
	EAPTTLS
	EAPPEAP
	EAPSIM
	EAPAKA
	EAPAKAPrime
)

func (m EAPMethod) String() string {
	switch m {
	case EAPNone:
		return "NONE"
	case EAPTLS:
		return "TLS"
	case EAPTTLS:
		return "TTLS"
	case EAPPEAP:
		return "PEAP"
	case EAPSIM:
		return "SIM"
	case EAPAKA:
		return "AKA"
	case EAPAKAPrime:
		return "AKA'"
	default:
		return "UNKNOWN"
	}
}

// UsesCarrierSIM reports whether the method authenticates against carrier
// SIM credentials, which is what gates carrier-key re-provisioning.
func (m EAPMethod) UsesCarrierSIM() bool {
	switch m {
	case EAPSIM, EAPAKA, EAPAKAPrime:
		return true
	default:
		return false
	}
}

// SelectionStatus is the network-selection disposition of a record.
type SelectionStatus int

const (
	SelectionEnabled SelectionStatus = iota
	DisabledAssociationRejection
	DisabledAuthenticationFailure
	DisabledByWrongPassword
	DisabledNoInternetTemporary
	DisabledByUser
)

func (s SelectionStatus) String() string {
	switch s {
	case SelectionEnabled:
		return "NETWORK_SELECTION_ENABLED"
	case DisabledAssociationRejection:
		return "DISABLED_ASSOCIATION_REJECTION"
	case DisabledAuthenticationFailure:
		return "DISABLED_AUTHENTICATION_FAILURE"
	case DisabledByWrongPassword:
		return "DISABLED_BY_WRONG_PASSWORD"
	case DisabledNoInternetTemporary:
		return "DISABLED_NO_INTERNET_TEMPORARY"
	case DisabledByUser:
		return "DISABLED_BY_USER"
	default:
		return "UNKNOWN"
	}
}

// EnterpriseConfig carries the enterprise credentials of an EAP network.
type EnterpriseConfig struct {
	Method   EAPMethod
	Identity string
	Password string
}

// Network is one saved network record.
type Network struct {
	ID      int
	SSID    string
	KeyMgmt KeyMgmt
	// PresharedKey is the PSK/SAE passphrase. External copies carry the
	// masked form; only the unmasked accessor exposes the real value.
	PresharedKey string
	Enterprise   *EnterpriseConfig

	Ephemeral          bool
	PasspointFQDN      string
	NoInternetExpected bool

	Status                  SelectionStatus
	HasEverConnected        bool
	ValidatedInternetAccess bool
	NoInternetReports       int
	RecentFailureReason     int
	HasRecentFailure        bool

	RandomizedMAC   net.HardwareAddr
	LastConnectedAt time.Time
}

// IsPasspoint reports whether the record was provisioned through Passpoint.
func (n Network) IsPasspoint() bool {
	return n.PasspointFQDN != ""
}

// masked returns a copy safe to hand to external readers.
func (n Network) masked() Network {
	c := n
	if c.PresharedKey != "" {
		c.PresharedKey = maskedSecret
	}
	if c.Enterprise != nil {
		e := *c.Enterprise
		if e.Password != "" {
			e.Password = maskedSecret
		}
		c.Enterprise = &e
	}
	if c.RandomizedMAC != nil {
		c.RandomizedMAC = append(net.HardwareAddr(nil), c.RandomizedMAC...)
	}
	return c
}

// unmaskedCopy returns a deep copy keeping key material intact.
func (n Network) unmaskedCopy() Network {
	c := n
	if c.Enterprise != nil {
		e := *c.Enterprise
		c.Enterprise = &e
	}
	if c.RandomizedMAC != nil {
		c.RandomizedMAC = append(net.HardwareAddr(nil), c.RandomizedMAC...)
	}
	return c
}

// ScanRecord is one cached scan result for a network, keyed by BSSID.
type ScanRecord struct {
	SSID         string
	BSSID        string
	FrequencyMHz int
	RSSI         int
	SeenAt       time.Time
}
