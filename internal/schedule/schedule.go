/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package schedule provides the cancellable timer primitive shared by the
// autosave debounce, retry backoff and status hold.
package schedule

import (
	"sort"
	"sync"
	"time"
)

// Timer is a pending callback that can be stopped.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call stopped it.
	Stop() bool
}

// Scheduler runs f after d on its own goroutine (or, for a manual clock, during Advance).
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Now() time.Time
}

type realScheduler struct{}

// Real returns the wall-clock scheduler backed by time.AfterFunc.
func Real() Scheduler { return realScheduler{} }

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
func (realScheduler) Now() time.Time                            { return time.Now() }

// Slot holds at most one pending callback. Reset supersedes the previous one,
// so a callback that was already due but not yet run is dropped.
type Slot struct {
	s   Scheduler
	mu  sync.Mutex
	t   Timer
	gen uint64
}

func NewSlot(s Scheduler) *Slot { return &Slot{s: s} }

// Reset cancels any pending callback and schedules f after d.
func (sl *Slot) Reset(d time.Duration, f func()) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.t != nil {
		sl.t.Stop()
	}
	sl.gen++
	gen := sl.gen
	sl.t = sl.s.AfterFunc(d, func() {
		sl.mu.Lock()
		if gen != sl.gen {
			sl.mu.Unlock()
			return
		}
		sl.t = nil
		sl.mu.Unlock()
		f()
	})
}

// Cancel drops the pending callback, if any. It reports whether one was pending.
func (sl *Slot) Cancel() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.gen++
	if sl.t == nil {
		return false
	}
	sl.t.Stop()
	sl.t = nil
	return true
}

// Pending reports whether a callback is scheduled.
func (sl *Slot) Pending() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.t != nil
}

// Manual is a deterministic scheduler for tests. Callbacks run synchronously
// inside Advance in due-time order.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	seq   int
	tasks []*manualTimer
}

type manualTimer struct {
	m       *Manual
	due     time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// NewManual returns a manual clock starting at a fixed instant.
func NewManual() *Manual { return &Manual{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)} }

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{m: m, due: m.now.Add(d), seq: m.seq, f: f}
	m.tasks = append(m.tasks, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves the clock forward by d, firing every callback that comes due.
// Callbacks scheduled by callbacks are honoured if they fall inside the window.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()
	for {
		m.mu.Lock()
		next := m.nextDueLocked(target)
		if next == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = next.due
		next.fired = true
		m.mu.Unlock()
		next.f()
	}
}

// Pending returns the due offsets (from now) of callbacks still scheduled, ascending.
func (m *Manual) Pending() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.tasks {
		if !t.stopped && !t.fired {
			out = append(out, t.due.Sub(m.now))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manual) nextDueLocked(limit time.Time) *manualTimer {
	var best *manualTimer
	live := m.tasks[:0]
	for _, t := range m.tasks {
		if t.stopped || t.fired {
			continue
		}
		live = append(live, t)
		if t.due.After(limit) {
			continue
		}
		if best == nil || t.due.Before(best.due) || (t.due.Equal(best.due) && t.seq < best.seq) {
			best = t
		}
	}
	m.tasks = live
	return best
}
