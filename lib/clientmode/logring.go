// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

import "time"

// Ring capacities by verbosity.
const (
	ringCapacityDefault = 100
	ringCapacityVerbose = 3000
)

// LogRecord is one processed-message entry in the diagnostic ring.
type LogRecord struct {
	When  time.Time
	What  string
	State string
}

// logRing is a bounded FIFO of processed messages; oldest entries are
// evicted at capacity. Worker-only, no locking.
type logRing struct {
	buf   []LogRecord
	next  int
	count int
}

func newLogRing(capacity int) *logRing {
	return &logRing{buf: make([]LogRecord, capacity)}
}

func (r *logRing) append(rec LogRecord) {
	r.buf[r.next] = rec
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// records returns entries oldest first.
func (r *logRing) records() []LogRecord {
	out := make([]LogRecord, 0, r.count)
	start := r.next - r.count
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// resize rebuilds the ring at the new capacity, keeping the newest entries
// that fit.
func (r *logRing) resize(capacity int) {
	if capacity == len(r.buf) {
		return
	}
	old := r.records()
	if len(old) > capacity {
		old = old[len(old)-capacity:]
	}
	r.buf = make([]LogRecord, capacity)
	r.next = 0
	r.count = 0
	for _, rec := range old {
		r.append(rec)
	}
}
