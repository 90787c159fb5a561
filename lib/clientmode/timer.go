// Copyright (C) 2025 The Stationd Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package clientmode

import (
	"sync/atomic"
	"time"
)

// timer is a delayed self-message. Cancellation either stops the underlying
// timer before it fires or marks the already-posted message void, so a
// canceled timer is never processed.
type timer struct {
	canceled atomic.Bool
	t        *time.Timer
}

func (tm *timer) cancel() {
	tm.canceled.Store(true)
	if tm.t != nil {
		tm.t.Stop()
	}
}

func (tm *timer) voided() bool {
	return tm.canceled.Load()
}

// delayed schedules inner to be posted to the worker queue after d.
func (s *Service) delayed(d time.Duration, inner message) *timer {
	tm := &timer{}
	tm.t = time.AfterFunc(d, func() {
		if tm.voided() {
			return
		}
		s.post(timerMsg{tm: tm, inner: inner})
	})
	return tm
}
