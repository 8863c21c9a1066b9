/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"pagebuilder/internal/autosave"
	"pagebuilder/internal/config"
	"pagebuilder/internal/dnd"
	"pagebuilder/internal/domain"
	applog "pagebuilder/internal/log"
	"pagebuilder/internal/schedule"
	"pagebuilder/internal/shortcut"
	"pagebuilder/internal/tree"
)

type memSaver struct {
	mu    sync.Mutex
	saved []*domain.Document
	err   error
}

func (m *memSaver) Save(ctx context.Context, doc *domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, doc)
	return nil
}

func (m *memSaver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("n%d", n)
	}
}

func testOptions(clk schedule.Scheduler, saver autosave.Saver) Options {
	cfg := config.Defaults()
	return Options{
		Config:    cfg,
		Saver:     saver,
		Scheduler: clk,
		Run:       func(fn func()) { fn() },
		NewID:     seqIDs(),
		Logger:    applog.Discard(),
	}
}

func newTestSession(t *testing.T, saver autosave.Saver) (*Session, *schedule.Manual) {
	t.Helper()
	clk := schedule.NewManual()
	s, err := New(testOptions(clk, saver))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func TestNewRequiresSaver(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without saver")
	}
}

func TestEditsAreAutosavedAfterDebounce(t *testing.T) {
	saver := &memSaver{}
	s, clk := newTestSession(t, saver)

	if _, out := s.Store.Insert(domain.Text, tree.AtRoot(-1)); out != tree.Applied {
		t.Fatalf("insert: %v", out)
	}
	if _, out := s.Store.Insert(domain.Button, tree.AtRoot(-1)); out != tree.Applied {
		t.Fatalf("insert: %v", out)
	}
	clk.Advance(9 * time.Second)
	if saver.count() != 0 {
		t.Fatalf("saved before debounce elapsed")
	}
	clk.Advance(time.Second)
	if saver.count() != 1 {
		t.Fatalf("want one coalesced save, got %d", saver.count())
	}
	if got := len(saver.saved[0].Roots); got != 2 {
		t.Fatalf("saved roots: got %d want 2", got)
	}
	if st := s.Autosave.Status(); st != autosave.Saved {
		t.Fatalf("status: %s", st)
	}
	clk.Advance(2 * time.Second)
	if st := s.Autosave.Status(); st != autosave.Idle {
		t.Fatalf("status after hold: %s", st)
	}
}

func TestLoadAndSessionStateDoNotSave(t *testing.T) {
	saver := &memSaver{}
	s, clk := newTestSession(t, saver)

	doc := domain.NewDocument()
	doc.Roots = []*domain.Node{domain.NewNode(domain.Heading, "h")}
	if err := s.Load(doc); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.Store.Select("h")
	s.Store.SetDeviceMode(domain.Mobile)
	s.Store.SetZoom(2)
	clk.Advance(time.Minute)
	if saver.count() != 0 {
		t.Fatalf("unexpected saves: %d", saver.count())
	}
	if s.Store.CanUndo() {
		t.Fatal("load must not be undoable")
	}
}

func TestFlush(t *testing.T) {
	saver := &memSaver{}
	s, _ := newTestSession(t, saver)
	ctx := context.Background()

	if err := s.Flush(ctx); err != nil {
		t.Fatalf("flush without changes: %v", err)
	}
	if saver.count() != 0 {
		t.Fatal("nothing to save")
	}
	s.Store.Insert(domain.Text, tree.AtRoot(-1))
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if saver.count() != 1 {
		t.Fatalf("saves: %d", saver.count())
	}
	if s.Autosave.State().HasPending {
		t.Fatal("still pending after flush")
	}
}

func TestFlushReportsFailureAndOffline(t *testing.T) {
	boom := errors.New("disk full")
	saver := &memSaver{err: boom}
	clk := schedule.NewManual()
	opts := testOptions(clk, saver)
	opts.Config.Autosave.MaxRetries = 1
	s, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Store.Insert(domain.Text, tree.AtRoot(-1))
	if err := s.Flush(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("want %v, got %v", boom, err)
	}
	if st := s.Autosave.Status(); st != autosave.Failed {
		t.Fatalf("status: %s", st)
	}

	s.Autosave.SetOnline(false)
	s.Store.Insert(domain.Text, tree.AtRoot(-1))
	if err := s.Flush(context.Background()); !errors.Is(err, ErrOffline) {
		t.Fatalf("want ErrOffline, got %v", err)
	}
}

func TestDragThroughSession(t *testing.T) {
	s, _ := newTestSession(t, &memSaver{})
	secID, _ := s.Store.Insert(domain.Section, tree.AtRoot(-1))
	sec, _ := s.Store.Node(secID)

	s.Drag.Start(dnd.Palette(domain.Heading))
	res := s.Drag.End(dnd.Target{ID: secID, Zone: dnd.ZoneFor(sec, 0, nil)})
	if res.Outcome != tree.Applied || res.NewID == "" {
		t.Fatalf("drop: %+v", res)
	}
	if p, _ := s.Store.Parent(res.NewID); p != secID {
		t.Fatalf("parent: got %q want %q", p, secID)
	}
}

func TestDefaultShortcuts(t *testing.T) {
	s, _ := newTestSession(t, &memSaver{})
	id, _ := s.Store.Insert(domain.Text, tree.AtRoot(-1))
	s.Store.Select(id)

	press := func(ev shortcut.KeyEvent) shortcut.Result {
		t.Helper()
		return s.Dispatch(ev)
	}

	if r := press(shortcut.KeyEvent{Key: "d", Ctrl: true}); !r.Handled {
		t.Fatal("duplicate not handled")
	}
	if n := len(s.Store.Snapshot().Roots); n != 2 {
		t.Fatalf("roots after duplicate: %d", n)
	}
	dup := s.Store.Snapshot().SelectedID
	if dup == id || dup == "" {
		t.Fatalf("duplicate should be selected, got %q", dup)
	}

	// Text fields swallow Delete but let Ctrl+S through.
	inInput := shortcut.Focus{Tag: "input"}
	if r := press(shortcut.KeyEvent{Key: "Delete", Focus: inInput}); r.Handled {
		t.Fatal("delete fired inside a text field")
	}
	if r := press(shortcut.KeyEvent{Key: "s", Meta: true, Focus: inInput}); !r.Handled || !r.PreventDefault {
		t.Fatalf("save now: %+v", r)
	}

	press(shortcut.KeyEvent{Key: "Delete"})
	if n := len(s.Store.Snapshot().Roots); n != 1 {
		t.Fatalf("roots after delete: %d", n)
	}
	press(shortcut.KeyEvent{Key: "z", Ctrl: true})
	if n := len(s.Store.Snapshot().Roots); n != 2 {
		t.Fatalf("roots after undo: %d", n)
	}
	press(shortcut.KeyEvent{Key: "Z", Ctrl: true, Shift: true})
	if n := len(s.Store.Snapshot().Roots); n != 1 {
		t.Fatalf("roots after redo: %d", n)
	}

	s.Store.Select(id)
	if r := press(shortcut.KeyEvent{Key: "Escape"}); !r.Handled {
		t.Fatal("escape not handled")
	}
	if sel := s.Store.Snapshot().SelectedID; sel != "" {
		t.Fatalf("selection not cleared: %q", sel)
	}
	if r := press(shortcut.KeyEvent{Key: "Delete"}); r.Handled {
		t.Fatal("delete without selection should not fire")
	}

	press(shortcut.KeyEvent{Key: "=", Ctrl: true})
	if z := s.Store.Snapshot().Zoom; z < 1.09 || z > 1.11 {
		t.Fatalf("zoom in: %v", z)
	}
	press(shortcut.KeyEvent{Key: "0", Ctrl: true})
	if z := s.Store.Snapshot().Zoom; z != 1 {
		t.Fatalf("zoom reset: %v", z)
	}
}

func TestShortcutCategories(t *testing.T) {
	s, _ := newTestSession(t, &memSaver{})
	groups := shortcut.GroupBy(DefaultShortcuts(s), Categorize)
	want := []string{CategoryHistory, CategoryEdit, CategoryFile, CategoryView}
	if len(groups) != len(want) {
		t.Fatalf("groups: %+v", groups)
	}
	for i, g := range groups {
		if g.Category != want[i] {
			t.Fatalf("group %d: got %s want %s", i, g.Category, want[i])
		}
	}
}
