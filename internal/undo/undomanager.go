/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps the page history as a bounded stack of immutable document snapshots.
package undo

import (
	"sync"
	"time"

	"pagebuilder/internal/domain"
)

// Entry is one recorded history step: the document as it was before a mutation.
// Key groups successive edits that may be coalesced (for example one style property
// dragged through many values); an empty key never coalesces.
type Entry struct {
	Doc *domain.Document
	Key string
	TS  time.Time
}

// Config controls depth cap and coalescing behavior.
type Config struct {
	// MaxDepth limits the number of undo steps kept; the oldest are evicted.
	MaxDepth int
	// MinInterval coalesces records with the same non-empty key captured within the interval,
	// keeping the older before-image instead of pushing a new entry.
	MinInterval time.Duration
	// Now is the clock used to stamp entries.
	Now func() time.Time
}

// Manager provides undo/redo stacks of document snapshots.
// Snapshots are shared, never copied; callers must not mutate a recorded Document.
// It is safe for concurrent use.
type Manager struct {
	cfg    Config
	mu     sync.Mutex
	past   []Entry
	future []*domain.Document
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 50
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg}
}

// Record stores prev as the state to return to on the next Undo. Any new record
// clears the redo stack. Returns false when the record was coalesced into the previous entry.
func (m *Manager) Record(prev *domain.Document, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.cfg.Now()
	m.future = nil
	if n := len(m.past); n > 0 && key != "" {
		last := &m.past[n-1]
		if last.Key == key && now.Sub(last.TS) < m.cfg.MinInterval {
			// Coalesce: keep the older before-image, slide the window.
			last.TS = now
			return false
		}
	}
	m.past = append(m.past, Entry{Doc: prev, Key: key, TS: now})
	m.enforceCapsLocked()
	return true
}

// Undo pops the most recent entry and pushes current onto the redo stack.
func (m *Manager) Undo(current *domain.Document) (*domain.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.past) == 0 {
		return nil, false
	}
	e := m.past[len(m.past)-1]
	m.past = m.past[:len(m.past)-1]
	m.future = append(m.future, current)
	return e.Doc, true
}

// Redo pops from redo and pushes current back onto the undo stack.
func (m *Manager) Redo(current *domain.Document) (*domain.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.future) == 0 {
		return nil, false
	}
	d := m.future[len(m.future)-1]
	m.future = m.future[:len(m.future)-1]
	// Replayed entries never coalesce with later edits.
	m.past = append(m.past, Entry{Doc: current, TS: m.cfg.Now()})
	m.enforceCapsLocked()
	return d, true
}

func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.past) > 0
}

func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.future) > 0
}

// Clear drops both stacks, e.g. after loading a different page.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.past = nil
	m.future = nil
}

// Stats returns current stack sizes for diagnostics.
func (m *Manager) Stats() (undoDepth int, redoDepth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.past), len(m.future)
}

func (m *Manager) enforceCapsLocked() {
	if len(m.past) > m.cfg.MaxDepth {
		toDrop := len(m.past) - m.cfg.MaxDepth
		m.past = append([]Entry{}, m.past[toDrop:]...)
	}
}
