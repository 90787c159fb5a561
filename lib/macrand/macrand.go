// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package macrand applies per-network randomized hardware addresses at
// connection attempt start, driven by a persisted boolean toggle.
package macrand

import (
	"bytes"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/stationd/stationd/internal/slogutil"
	"github.com/stationd/stationd/lib/native"
)

// AddressStore hands out and persists per-network randomized addresses.
type AddressStore interface {
	GetOrCreateRandomizedMAC(networkID int) (net.HardwareAddr, error)
	SetRandomizedMAC(networkID int, mac net.HardwareAddr)
}

// AddressSetter is the native surface for reading and programming the
// interface hardware address.
type AddressSetter interface {
	GetMACAddress(iface string) (net.HardwareAddr, error)
	SetMACAddress(iface string, mac net.HardwareAddr) error
}

// Telemetry receives a note when the interface address actually changes.
type Telemetry interface {
	NoteMACChange(networkID int)
}

// Controller decides whether and how to randomize the interface address for
// a connection attempt. The toggle may flip from a settings observer
// goroutine; everything else runs on the state machine worker.
type Controller struct {
	enabled   atomic.Bool
	store     AddressStore
	setter    AddressSetter
	telemetry Telemetry
	log       *slog.Logger
}

// NewController returns a controller starting in the disabled state.
func NewController(store AddressStore, setter AddressSetter, telemetry Telemetry, log *slog.Logger) *Controller {
	return &Controller{
		store:     store,
		setter:    setter,
		telemetry: telemetry,
		log:       log.With("component", "macrand"),
	}
}

// SetEnabled applies a toggle change. Takes effect on the next attempt; no
// interface side effects happen here.
func (c *Controller) SetEnabled(enabled bool) {
	old := c.enabled.Swap(enabled)
	if old != enabled {
		c.log.Info("Connected MAC randomization toggled", "enabled", enabled)
	}
}

// Enabled reports the current toggle state.
func (c *Controller) Enabled() bool {
	return c.enabled.Load()
}

// OnAttemptStart runs the randomization flow for a starting attempt. When
// the toggle is off this is a no-op. The sentinel address means "nothing
// assigned" and is never programmed.
func (c *Controller) OnAttemptStart(iface string, networkID int) error {
	if !c.enabled.Load() {
		return nil
	}

	mac, err := c.store.GetOrCreateRandomizedMAC(networkID)
	if err != nil {
		return err
	}
	if mac.String() == native.SentinelMAC {
		c.log.Debug("Randomized address is the sentinel, skipping", slogutil.Network(networkID))
		return nil
	}

	current, err := c.setter.GetMACAddress(iface)
	if err != nil {
		return err
	}
	if bytes.Equal(current, mac) {
		return nil
	}

	if err := c.setter.SetMACAddress(iface, mac); err != nil {
		return err
	}
	c.store.SetRandomizedMAC(networkID, mac)
	metricAddressChanges.Inc()
	if c.telemetry != nil {
		c.telemetry.NoteMACChange(networkID)
	}
	c.log.Info("Programmed randomized address", slogutil.Iface(iface), slogutil.Network(networkID))
	return nil
}
