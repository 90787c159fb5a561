// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package linkmonitor implements the two Connected-state link facilities:
// in-driver RSSI threshold monitoring with a breach callback, and opt-in
// periodic polling of signal and link-layer counters with stall detection.
// Scheduling of the poll interval belongs to the state machine worker; this
// package does the per-tick work.
package linkmonitor

import (
	"log/slog"
	"time"

	"github.com/stationd/stationd/internal/slogutil"
	"github.com/stationd/stationd/lib/native"
)

// DefaultPollInterval is the fixed polling cadence while enabled.
const DefaultPollInterval = 3 * time.Second

// Default in-driver breach thresholds, in dBm.
const (
	DefaultRSSIThresholdMax = -30
	DefaultRSSIThresholdMin = -76
)

// Snapshot is one merged poll result handed to the score card and folded
// into the connection info.
type Snapshot struct {
	RSSI          int
	LinkSpeedMbps int
	FrequencyMHz  int
	Counters      native.LinkLayerStats
	At            time.Time
}

// ScoreCard consumes per-poll signal snapshots for scoring.
type ScoreCard interface {
	NoteSignalPoll(networkID int, snap Snapshot)
}

// Signal is the native surface the monitor needs.
type Signal interface {
	SignalPoll(iface string) (native.SignalPollResult, error)
	LinkLayerStats(iface string) (native.LinkLayerStats, error)
	StartRSSIMonitoring(iface string, maxRSSI, minRSSI int8, breach func(rssi int8)) error
	StopRSSIMonitoring(iface string) error
}

// Monitor owns the per-tick poll work and the threshold arm/disarm calls.
// It is driven entirely from the state machine worker.
type Monitor struct {
	signal   Signal
	counters native.CounterSource
	score    ScoreCard
	stall    *StallDetector
	log      *slog.Logger

	armed bool
}

// New returns a monitor over the given native signal surface. counters is
// the fallback for drivers without link-layer stats support; nil means no
// fallback.
func New(signal Signal, counters native.CounterSource, score ScoreCard, log *slog.Logger) *Monitor {
	return &Monitor{
		signal:   signal,
		counters: counters,
		score:    score,
		stall:    NewStallDetector(),
		log:      log.With("component", "linkmonitor"),
	}
}

// ArmRSSIMonitoring (re-)arms in-driver threshold monitoring. Called on
// every entry into Connected. The breach callback runs on a driver
// goroutine and must only enqueue.
func (m *Monitor) ArmRSSIMonitoring(iface string, breach func(rssi int8)) {
	err := m.signal.StartRSSIMonitoring(iface, DefaultRSSIThresholdMax, DefaultRSSIThresholdMin, breach)
	if err != nil {
		m.log.Warn("Failed to arm RSSI monitoring", slogutil.Iface(iface), slogutil.Error(err))
		return
	}
	m.armed = true
}

// DisarmRSSIMonitoring stops threshold monitoring and resets stall history.
func (m *Monitor) DisarmRSSIMonitoring(iface string) {
	if m.armed {
		if err := m.signal.StopRSSIMonitoring(iface); err != nil {
			m.log.Debug("Failed to disarm RSSI monitoring", slogutil.Iface(iface), slogutil.Error(err))
		}
		m.armed = false
	}
	m.stall.Reset()
}

// Poll runs one polling tick: fetch counters and a signal snapshot, forward
// to the score card, and diff the counters through the stall detector.
func (m *Monitor) Poll(iface string, networkID int) (Snapshot, StallVerdict, error) {
	stats, err := m.signal.LinkLayerStats(iface)
	if err != nil {
		if m.counters == nil {
			return Snapshot{}, VerdictNone, err
		}
		// Coarser OS-level counters still feed stall detection.
		m.log.Debug("Link-layer stats unavailable, using system counters",
			slogutil.Iface(iface), slogutil.Error(err))
		stats, err = m.counters.Counters(iface)
		if err != nil {
			return Snapshot{}, VerdictNone, err
		}
	}
	sig, err := m.signal.SignalPoll(iface)
	if err != nil {
		return Snapshot{}, VerdictNone, err
	}

	snap := Snapshot{
		RSSI:          sig.RSSI,
		LinkSpeedMbps: sig.LinkSpeedMbps,
		FrequencyMHz:  sig.FrequencyMHz,
		Counters:      stats,
		At:            time.Now(),
	}
	if m.score != nil {
		m.score.NoteSignalPoll(networkID, snap)
	}

	verdict := m.stall.Check(stats)
	if verdict != VerdictNone {
		metricDataStalls.WithLabelValues(verdict.String()).Inc()
		m.log.Warn("Data stall suspected", slogutil.Iface(iface), "verdict", verdict.String())
	}
	metricPolls.Inc()
	metricRSSI.Set(float64(sig.RSSI))
	return snap, verdict, nil
}
