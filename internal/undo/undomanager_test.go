/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"testing"
	"time"

	"pagebuilder/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func doc(tag string) *domain.Document {
	d := domain.NewDocument()
	d.Roots = []*domain.Node{domain.NewNode(domain.Text, tag)}
	return d
}

func TestUndoRedoBasic(t *testing.T) {
	m := NewManager(Config{MaxDepth: 10})
	a, b, c := doc("a"), doc("b"), doc("c")
	m.Record(a, "")
	m.Record(b, "")
	if undo, redo := m.Stats(); undo != 2 || redo != 0 {
		t.Fatalf("expected 2/0, got %d/%d", undo, redo)
	}
	got, ok := m.Undo(c)
	if !ok || got != b {
		t.Fatalf("undo expected b, got ok=%v", ok)
	}
	got, ok = m.Redo(b)
	if !ok || got != c {
		t.Fatalf("redo expected c, got ok=%v", ok)
	}
	if !m.CanUndo() || m.CanRedo() {
		t.Fatalf("CanUndo/CanRedo mismatch after redo")
	}
}

func TestRecordClearsRedo(t *testing.T) {
	m := NewManager(Config{})
	a, b := doc("a"), doc("b")
	m.Record(a, "")
	if _, ok := m.Undo(b); !ok {
		t.Fatalf("undo failed")
	}
	if !m.CanRedo() {
		t.Fatalf("expected redo available")
	}
	m.Record(a, "")
	if m.CanRedo() {
		t.Fatalf("new record must clear redo")
	}
	if _, ok := m.Redo(a); ok {
		t.Fatalf("redo should be a no-op")
	}
}

func TestCoalesceKeepsOlderBeforeImage(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	m := NewManager(Config{MinInterval: 50 * time.Millisecond, Now: clk.now})
	first, second := doc("1"), doc("2")
	if !m.Record(first, "style:n1:desktop") {
		t.Fatalf("first record should push")
	}
	clk.advance(10 * time.Millisecond)
	if m.Record(second, "style:n1:desktop") {
		t.Fatalf("second record should coalesce")
	}
	if undo, _ := m.Stats(); undo != 1 {
		t.Fatalf("expected 1 entry, got %d", undo)
	}
	got, _ := m.Undo(doc("3"))
	if got != first {
		t.Fatalf("coalesced entry must keep the older snapshot")
	}
}

func TestCoalesceWindowAndKeys(t *testing.T) {
	clk := &fakeClock{t: time.Unix(1000, 0)}
	m := NewManager(Config{MinInterval: 50 * time.Millisecond, Now: clk.now})
	m.Record(doc("1"), "k")
	clk.advance(60 * time.Millisecond)
	m.Record(doc("2"), "k")
	m.Record(doc("3"), "other")
	m.Record(doc("4"), "")
	m.Record(doc("5"), "")
	if undo, _ := m.Stats(); undo != 5 {
		t.Fatalf("expected 5 entries, got %d", undo)
	}
}

func TestDepthCap(t *testing.T) {
	m := NewManager(Config{MaxDepth: 2})
	docs := []*domain.Document{doc("a"), doc("b"), doc("c"), doc("d")}
	for _, d := range docs {
		m.Record(d, "")
	}
	if undo, _ := m.Stats(); undo != 2 {
		t.Fatalf("expected cap of 2, got %d", undo)
	}
	got, _ := m.Undo(doc("x"))
	if got != docs[3] {
		t.Fatalf("newest entry must survive eviction")
	}
	got, _ = m.Undo(got)
	if got != docs[2] {
		t.Fatalf("second newest entry must survive eviction")
	}
	if _, ok := m.Undo(got); ok {
		t.Fatalf("oldest entries should have been evicted")
	}
	m.Clear()
	if m.CanUndo() || m.CanRedo() {
		t.Fatalf("Clear should empty both stacks")
	}
}
