/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package shortcut maps keyboard chords to editor commands with input-focus guarding.
package shortcut

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	plog "pagebuilder/internal/log"
)

// Shortcut is one registered chord. Primary means Ctrl on Windows/Linux and Cmd on macOS;
// both physical keys count as the primary modifier.
type Shortcut struct {
	Key         string
	Primary     bool
	Shift       bool
	Alt         bool
	Handler     func()
	Description string
	// Enabled is consulted on every keystroke; nil means always enabled.
	Enabled func() bool
	// AllowInInput lets the chord fire while a text-entry element has focus.
	AllowInInput bool
	// KeepDefault leaves the host's default action for the key in place.
	KeepDefault bool
}

func (s Shortcut) enabled() bool { return s.Enabled == nil || s.Enabled() }

// Focus describes the element that had focus when the key went down.
type Focus struct {
	Tag             string
	ContentEditable bool
}

// InTextInput reports whether focus is in a text-entry context.
func (f Focus) InTextInput() bool {
	switch strings.ToLower(f.Tag) {
	case "input", "textarea", "select":
		return true
	}
	return f.ContentEditable
}

// KeyEvent is one keystroke.
type KeyEvent struct {
	Key   string
	Ctrl  bool
	Meta  bool
	Shift bool
	Alt   bool
	Focus Focus
}

// Result tells the host what happened. PreventDefault is true when a chord fired
// and did not opt out.
type Result struct {
	Handled        bool
	PreventDefault bool
	Description    string
}

// Matches reports whether ev is exactly this chord.
func (s Shortcut) Matches(ev KeyEvent) bool {
	if !strings.EqualFold(ev.Key, s.Key) {
		return false
	}
	primary := ev.Ctrl || ev.Meta
	return primary == s.Primary && ev.Shift == s.Shift && ev.Alt == s.Alt
}

// Dispatcher holds an ordered shortcut list. The first match wins.
type Dispatcher struct {
	mu        sync.RWMutex
	shortcuts []Shortcut
	disabled  bool
	disableFn func() bool
	log       *slog.Logger
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = plog.WithComponent("shortcut")
	}
	return &Dispatcher{log: logger}
}

// Register appends shortcuts in priority order.
func (d *Dispatcher) Register(sc ...Shortcut) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shortcuts = append(d.shortcuts, sc...)
}

// SetEnabled toggles all shortcuts, e.g. while a modal dialog is open.
func (d *Dispatcher) SetEnabled(on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disabled = !on
}

// ShouldDisable installs a predicate checked on every keystroke.
func (d *Dispatcher) ShouldDisable(fn func() bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disableFn = fn
}

// Shortcuts returns a copy of the registered list.
func (d *Dispatcher) Shortcuts() []Shortcut {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Shortcut(nil), d.shortcuts...)
}

// Dispatch runs at most one handler for ev.
func (d *Dispatcher) Dispatch(ev KeyEvent) Result {
	d.mu.RLock()
	disabled, disableFn := d.disabled, d.disableFn
	list := d.shortcuts
	d.mu.RUnlock()
	if disabled || (disableFn != nil && disableFn()) {
		return Result{}
	}
	inInput := ev.Focus.InTextInput()
	for _, sc := range list {
		if !sc.enabled() || (inInput && !sc.AllowInInput) {
			continue
		}
		if !sc.Matches(ev) {
			continue
		}
		d.run(sc)
		return Result{Handled: true, PreventDefault: !sc.KeepDefault, Description: sc.Description}
	}
	return Result{}
}

func (d *Dispatcher) run(sc Shortcut) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("shortcut handler failed", slog.String("shortcut", sc.Description), slog.String("panic", fmt.Sprint(r)))
		}
	}()
	if sc.Handler != nil {
		sc.Handler()
	}
	d.log.Debug("shortcut", slog.String("desc", sc.Description))
}

// Format renders a chord for help text, e.g. "Ctrl+Shift+Z" or "⌘+⇧+Z".
func Format(sc Shortcut, mac bool) string {
	var parts []string
	if sc.Primary {
		parts = append(parts, pick(mac, "⌘", "Ctrl"))
	}
	if sc.Shift {
		parts = append(parts, pick(mac, "⇧", "Shift"))
	}
	if sc.Alt {
		parts = append(parts, pick(mac, "⌥", "Alt"))
	}
	key := sc.Key
	switch {
	case key == " ":
		key = "Space"
	case key != "":
		key = strings.ToUpper(key[:1]) + key[1:]
	}
	return strings.Join(append(parts, key), "+")
}

func pick(mac bool, a, b string) string {
	if mac {
		return a
	}
	return b
}

// EnabledShortcuts filters out shortcuts whose Enabled predicate is false.
func EnabledShortcuts(list []Shortcut) []Shortcut {
	var out []Shortcut
	for _, s := range list {
		if s.enabled() {
			out = append(out, s)
		}
	}
	return out
}

// Group is a help-screen category.
type Group struct {
	Category  string
	Shortcuts []Shortcut
}

// GroupBy buckets shortcuts by category, keeping first-seen category order.
func GroupBy(list []Shortcut, categorize func(Shortcut) string) []Group {
	var out []Group
	pos := map[string]int{}
	for _, s := range list {
		c := categorize(s)
		i, ok := pos[c]
		if !ok {
			i = len(out)
			pos[c] = i
			out = append(out, Group{Category: c})
		}
		out[i].Shortcuts = append(out[i].Shortcuts, s)
	}
	return out
}
