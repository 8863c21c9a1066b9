/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package autosave pushes document snapshots to a save collaborator with
// debouncing, change detection, retry with exponential backoff, offline
// queueing and cancellation of superseded attempts.
package autosave

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"pagebuilder/internal/domain"
	plog "pagebuilder/internal/log"
	"pagebuilder/internal/schedule"
)

// Status is the controller state shown to the user.
type Status string

const (
	Idle     Status = "idle"
	Saving   Status = "saving"
	Saved    Status = "saved"
	Retrying Status = "retrying"
	Failed   Status = "error"
	Offline  Status = "offline"
)

// Saver persists a document. It must watch ctx and return promptly once it is cancelled;
// a result for a superseded attempt is discarded either way. The document is read-only.
type Saver interface {
	Save(ctx context.Context, doc *domain.Document) error
}

// SaveFunc adapts a function to Saver.
type SaveFunc func(ctx context.Context, doc *domain.Document) error

func (f SaveFunc) Save(ctx context.Context, doc *domain.Document) error { return f(ctx, doc) }

// Config tunes the controller. Zero durations pick defaults.
type Config struct {
	Debounce   time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	SavedHold  time.Duration
	Scheduler  schedule.Scheduler
	// Run executes one save attempt. The default starts a goroutine; tests run inline.
	Run    func(fn func())
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 10 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.SavedHold <= 0 {
		c.SavedHold = 2 * time.Second
	}
	if c.Scheduler == nil {
		c.Scheduler = schedule.Real()
	}
	if c.Run == nil {
		c.Run = func(fn func()) { go fn() }
	}
	if c.Logger == nil {
		c.Logger = plog.WithComponent("autosave")
	}
}

// State is a point-in-time view of the save session.
type State struct {
	Status     Status
	Attempt    int
	Online     bool
	Queued     bool
	LastHash   string
	LastError  error
	LastSaved  time.Time
	HasPending bool
}

// Controller observes document changes and decides when to save them.
type Controller struct {
	cfg   Config
	saver Saver
	log   *slog.Logger

	mu         sync.Mutex
	status     Status
	before     Status // status to restore when connectivity returns with nothing queued
	online     bool
	queued     bool
	attempt    int
	lastHash   string
	lastErr    error
	lastSaved  time.Time
	latest     *domain.Document
	latestHash string
	gen        uint64
	cancel     context.CancelFunc
	closed     bool

	debounce *schedule.Slot
	retry    *schedule.Slot
	hold     *schedule.Slot

	lmu       sync.Mutex
	listeners []func(State)
}

func New(saver Saver, cfg Config) *Controller {
	cfg.defaults()
	return &Controller{
		cfg:      cfg,
		saver:    saver,
		log:      cfg.Logger,
		status:   Idle,
		online:   true,
		debounce: schedule.NewSlot(cfg.Scheduler),
		retry:    schedule.NewSlot(cfg.Scheduler),
		hold:     schedule.NewSlot(cfg.Scheduler),
	}
}

// effects are applied after the lock is released: listener calls first, then the attempt.
type effects struct {
	states []State
	run    func()
}

func (c *Controller) apply(fx *effects) {
	if len(fx.states) > 0 {
		c.lmu.Lock()
		ls := append([]func(State){}, c.listeners...)
		c.lmu.Unlock()
		for _, st := range fx.states {
			for _, fn := range ls {
				fn(st)
			}
		}
	}
	if fx.run != nil {
		c.cfg.Run(fx.run)
	}
}

// OnStatus registers fn for every status transition.
func (c *Controller) OnStatus(fn func(State)) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) stateLocked() State {
	return State{
		Status:     c.status,
		Attempt:    c.attempt,
		Online:     c.online,
		Queued:     c.queued,
		LastHash:   c.lastHash,
		LastError:  c.lastErr,
		LastSaved:  c.lastSaved,
		HasPending: c.latest != nil && c.latestHash != c.lastHash,
	}
}

func (c *Controller) setLocked(fx *effects, s Status) {
	if c.status == s {
		return
	}
	c.log.Debug("status", slog.String("from", string(c.status)), slog.String("to", string(s)), slog.Int("attempt", c.attempt))
	c.status = s
	fx.states = append(fx.states, c.stateLocked())
}

// Status returns the current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State returns the full session view.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// MarkPersisted tells the controller doc is already stored (e.g. right after loading it),
// so an unchanged document is never re-saved.
func (c *Controller) MarkPersisted(doc *domain.Document) {
	h := Hash(doc)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastHash = h
	c.latest = doc
	c.latestHash = h
}

// OnChange is called with every new document. Unchanged content is ignored;
// otherwise the debounce timer restarts.
func (c *Controller) OnChange(doc *domain.Document) {
	h := Hash(doc)
	fx := &effects{}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.latest, c.latestHash = doc, h
	switch {
	case h == c.lastHash:
		c.debounce.Cancel()
	case c.status == Failed:
		// Retries are exhausted; only SaveNow or a reconnect restarts saving.
	default:
		c.debounce.Reset(c.cfg.Debounce, c.onDebounce)
	}
	c.mu.Unlock()
	c.apply(fx)
}

func (c *Controller) onDebounce() {
	fx := &effects{}
	c.mu.Lock()
	if !c.closed {
		c.beginLocked(fx, false)
	}
	c.mu.Unlock()
	c.apply(fx)
}

func (c *Controller) onRetry() {
	fx := &effects{}
	c.mu.Lock()
	if !c.closed {
		c.beginLocked(fx, false)
	}
	c.mu.Unlock()
	c.apply(fx)
}

func (c *Controller) onHold() {
	fx := &effects{}
	c.mu.Lock()
	if c.status == Saved {
		c.setLocked(fx, Idle)
	}
	c.mu.Unlock()
	c.apply(fx)
}

// SaveNow skips the debounce and saves immediately with a fresh retry budget.
// It reports whether an attempt was started.
func (c *Controller) SaveNow() bool {
	fx := &effects{}
	c.mu.Lock()
	started := false
	if !c.closed {
		started = c.beginLocked(fx, true)
	}
	c.mu.Unlock()
	c.apply(fx)
	return started
}

// beginLocked starts an attempt for the latest document. Offline, it queues instead.
func (c *Controller) beginLocked(fx *effects, manual bool) bool {
	c.debounce.Cancel()
	if c.latest == nil || c.latestHash == c.lastHash {
		c.retry.Cancel()
		return false
	}
	if !c.online {
		c.queued = true
		c.setLocked(fx, Offline)
		return false
	}
	if manual {
		c.attempt = 0
	}
	c.retry.Cancel()
	c.hold.Cancel()
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.gen++
	gen, doc, h := c.gen, c.latest, c.latestHash
	c.setLocked(fx, Saving)
	fx.run = func() {
		err := c.saver.Save(ctx, doc)
		c.finish(gen, h, err)
	}
	return true
}

func (c *Controller) finish(gen uint64, h string, err error) {
	fx := &effects{}
	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		c.log.Debug("stale save result discarded", slog.Uint64("gen", gen))
		return
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	switch {
	case err == nil:
		c.lastHash, c.lastErr, c.attempt = h, nil, 0
		c.lastSaved = c.cfg.Scheduler.Now()
		c.retry.Cancel()
		c.setLocked(fx, Saved)
		c.hold.Reset(c.cfg.SavedHold, c.onHold)
		if c.latestHash != h {
			c.debounce.Reset(c.cfg.Debounce, c.onDebounce)
		}
	case errors.Is(err, context.Canceled):
		c.setLocked(fx, Idle)
	default:
		c.attempt++
		c.lastErr = err
		if c.attempt < c.cfg.MaxRetries {
			delay := Backoff(c.cfg.BaseDelay, c.attempt-1, c.cfg.MaxDelay)
			c.log.Warn("save failed, retrying", slog.Int("attempt", c.attempt), slog.Duration("delay", delay), slog.String("err", err.Error()))
			c.setLocked(fx, Retrying)
			c.retry.Reset(delay, c.onRetry)
		} else {
			c.log.Error("save failed, giving up", slog.Int("attempts", c.attempt), slog.String("err", err.Error()))
			c.setLocked(fx, Failed)
		}
	}
	c.mu.Unlock()
	c.apply(fx)
}

// SetOnline reports connectivity. Going offline aborts the running attempt and queues it.
// Coming back with a queued save starts it immediately with a fresh retry budget.
func (c *Controller) SetOnline(on bool) {
	fx := &effects{}
	c.mu.Lock()
	if c.closed || c.online == on {
		c.mu.Unlock()
		return
	}
	c.online = on
	if !on {
		c.before = c.status
		if c.status == Saving || c.status == Retrying {
			c.queued = true
		}
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.gen++
		c.retry.Cancel()
		c.hold.Cancel()
		c.setLocked(fx, Offline)
	} else if c.queued {
		c.queued = false
		c.attempt = 0
		if !c.beginLocked(fx, true) {
			c.setLocked(fx, Idle)
		}
	} else {
		next := c.before
		switch next {
		case Saved, Saving, Retrying, Offline, "":
			next = Idle
		}
		c.setLocked(fx, next)
	}
	c.mu.Unlock()
	c.apply(fx)
}

// Close stops all timers and aborts the running attempt.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.debounce.Cancel()
	c.retry.Cancel()
	c.hold.Cancel()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}
