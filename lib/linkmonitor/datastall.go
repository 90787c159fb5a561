// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package linkmonitor

import "github.com/stationd/stationd/lib/native"

// StallVerdict is the per-interval disposition from the stall detector.
type StallVerdict int

const (
	VerdictNone StallVerdict = iota
	VerdictStallBadTx
	VerdictStallTxWithoutRx
)

func (v StallVerdict) String() string {
	switch v {
	case VerdictNone:
		return "none"
	case VerdictStallBadTx:
		return "stall_bad_tx"
	case VerdictStallTxWithoutRx:
		return "stall_tx_without_rx"
	default:
		return "unknown"
	}
}

const (
	// minTxDeltaForVerdict keeps a near-idle interval from being judged
	// at all; a couple of lost frames on a quiet link is not a stall.
	minTxDeltaForVerdict = 10
	// badTxRatioThreshold is the failed-to-attempted ratio treated as a
	// stalled transmit path.
	badTxRatioThreshold = 0.5
)

// StallDetector infers a stalled link from consecutive cumulative counter
// snapshots. It keeps only the previous snapshot; association changes must
// Reset it so counters from different BSSes never get diffed.
type StallDetector struct {
	prev     native.LinkLayerStats
	havePrev bool
}

// NewStallDetector returns a detector with no history.
func NewStallDetector() *StallDetector {
	return &StallDetector{}
}

// Reset drops the previous snapshot.
func (d *StallDetector) Reset() {
	d.havePrev = false
	d.prev = native.LinkLayerStats{}
}

// Check diffs cur against the previous snapshot and returns a verdict for
// the elapsed interval. The first call after a Reset only seeds history.
func (d *StallDetector) Check(cur native.LinkLayerStats) StallVerdict {
	if !d.havePrev {
		d.prev = cur
		d.havePrev = true
		return VerdictNone
	}

	txGood := delta(cur.TxGood, d.prev.TxGood)
	txBad := delta(cur.TxBad, d.prev.TxBad)
	rx := delta(cur.RxSuccess, d.prev.RxSuccess)
	d.prev = cur

	txTotal := txGood + txBad
	if txTotal < minTxDeltaForVerdict {
		return VerdictNone
	}
	if float64(txBad)/float64(txTotal) >= badTxRatioThreshold {
		return VerdictStallBadTx
	}
	if rx == 0 {
		return VerdictStallTxWithoutRx
	}
	return VerdictNone
}

// delta handles counter resets by clamping to zero.
func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
