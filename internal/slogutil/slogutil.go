// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package slogutil holds small helpers for structured logging attributes
// used across the module.
package slogutil

import "log/slog"

// Error returns the canonical attribute for an error value. A nil error
// becomes an empty string so log lines stay grep-able.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

// Network returns the canonical attribute for a network id.
func Network(id int) slog.Attr {
	return slog.Int("network", id)
}

// BSSID returns the canonical attribute for an access point address.
func BSSID(bssid string) slog.Attr {
	return slog.String("bssid", bssid)
}

// Iface returns the canonical attribute for an interface name.
func Iface(name string) slog.Attr {
	return slog.String("iface", name)
}
