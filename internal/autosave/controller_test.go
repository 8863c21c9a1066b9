/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pagebuilder/internal/domain"
	plog "pagebuilder/internal/log"
	"pagebuilder/internal/schedule"
)

type recorder struct {
	mu    sync.Mutex
	calls int
	docs  []*domain.Document
	fail  func(n int) error
}

func (r *recorder) Save(ctx context.Context, doc *domain.Document) error {
	r.mu.Lock()
	r.calls++
	n := r.calls
	r.docs = append(r.docs, doc)
	fail := r.fail
	r.mu.Unlock()
	if fail != nil {
		return fail(n)
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestController(t *testing.T, s Saver) (*Controller, *schedule.Manual, *[]Status) {
	t.Helper()
	clk := schedule.NewManual()
	c := New(s, Config{
		Debounce:   10 * time.Second,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		SavedHold:  2 * time.Second,
		Scheduler:  clk,
		Run:        func(fn func()) { fn() },
		Logger:     plog.Discard(),
	})
	var seen []Status
	c.OnStatus(func(st State) { seen = append(seen, st.Status) })
	t.Cleanup(c.Close)
	return c, clk, &seen
}

func docWithText(id, text string) *domain.Document {
	d := domain.NewDocument()
	n := domain.NewNode(domain.Text, id)
	n.Props = &domain.TextProps{Text: text}
	d.Roots = []*domain.Node{n}
	return d
}

func TestDebounceCoalescesChanges(t *testing.T) {
	rec := &recorder{}
	c, clk, seen := newTestController(t, rec)

	c.OnChange(docWithText("a", "one"))
	clk.Advance(5 * time.Second)
	c.OnChange(docWithText("a", "two"))
	clk.Advance(9 * time.Second)
	if rec.count() != 0 {
		t.Fatalf("saved before debounce elapsed: %d", rec.count())
	}
	clk.Advance(time.Second)
	if rec.count() != 1 {
		t.Fatalf("want 1 save, got %d", rec.count())
	}
	if got := rec.docs[0].Roots[0].Props.(*domain.TextProps).Text; got != "two" {
		t.Fatalf("saved stale document: %q", got)
	}
	if c.Status() != Saved {
		t.Fatalf("want saved, got %s", c.Status())
	}
	clk.Advance(2 * time.Second)
	if c.Status() != Idle {
		t.Fatalf("want idle after hold, got %s", c.Status())
	}
	want := []Status{Saving, Saved, Idle}
	if len(*seen) != len(want) {
		t.Fatalf("transitions %v", *seen)
	}
	for i := range want {
		if (*seen)[i] != want[i] {
			t.Fatalf("transitions %v", *seen)
		}
	}
}

func TestUnchangedHashSkipsSave(t *testing.T) {
	rec := &recorder{}
	c, clk, _ := newTestController(t, rec)

	doc := docWithText("a", "same")
	c.OnChange(doc)
	clk.Advance(10 * time.Second)
	if rec.count() != 1 {
		t.Fatalf("want 1 save, got %d", rec.count())
	}

	// Session-only changes hash identically.
	again := docWithText("a", "same")
	again.SelectedID = "a"
	again.Zoom = 2
	c.OnChange(again)
	if len(clk.Pending()) != 1 { // only the saved->idle hold
		t.Fatalf("debounce scheduled for unchanged content: %v", clk.Pending())
	}
	clk.Advance(time.Minute)
	if c.SaveNow() {
		t.Fatal("SaveNow started an attempt for unchanged content")
	}
	if rec.count() != 1 {
		t.Fatalf("unchanged content saved again: %d calls", rec.count())
	}
}

func TestRetriesExhaustedEntersError(t *testing.T) {
	boom := errors.New("boom")
	rec := &recorder{fail: func(int) error { return boom }}
	c, clk, _ := newTestController(t, rec)

	c.OnChange(docWithText("a", "x"))
	clk.Advance(10 * time.Second)
	if c.Status() != Retrying || rec.count() != 1 {
		t.Fatalf("after first failure: %s calls=%d", c.Status(), rec.count())
	}
	if p := clk.Pending(); len(p) != 1 || p[0] != time.Second {
		t.Fatalf("first retry delay: %v", p)
	}
	clk.Advance(time.Second)
	if p := clk.Pending(); len(p) != 1 || p[0] != 2*time.Second {
		t.Fatalf("second retry delay: %v", p)
	}
	clk.Advance(2 * time.Second)
	if c.Status() != Failed {
		t.Fatalf("want error after third failure, got %s", c.Status())
	}
	if rec.count() != 3 {
		t.Fatalf("want 3 attempts, got %d", rec.count())
	}
	if p := clk.Pending(); len(p) != 0 {
		t.Fatalf("fourth attempt scheduled: %v", p)
	}
	clk.Advance(time.Hour)
	if rec.count() != 3 {
		t.Fatalf("automatic attempt after error: %d", rec.count())
	}
	if !errors.Is(c.State().LastError, boom) {
		t.Fatalf("last error: %v", c.State().LastError)
	}

	// Manual retry path stays available.
	rec.mu.Lock()
	rec.fail = nil
	rec.mu.Unlock()
	if !c.SaveNow() {
		t.Fatal("SaveNow did not start")
	}
	if c.Status() != Saved || rec.count() != 4 {
		t.Fatalf("manual retry: %s calls=%d", c.Status(), rec.count())
	}
}

func TestSuccessAfterRetryResetsAttempt(t *testing.T) {
	rec := &recorder{fail: func(n int) error {
		if n == 1 {
			return errors.New("flaky")
		}
		return nil
	}}
	c, clk, _ := newTestController(t, rec)
	c.OnChange(docWithText("a", "x"))
	clk.Advance(10 * time.Second)
	clk.Advance(time.Second)
	st := c.State()
	if st.Status != Saved || st.Attempt != 0 || st.LastError != nil {
		t.Fatalf("state after recovery: %+v", st)
	}
}

func TestOfflineQueuesAndReconnectSaves(t *testing.T) {
	rec := &recorder{}
	c, clk, _ := newTestController(t, rec)

	c.SetOnline(false)
	if c.Status() != Offline {
		t.Fatalf("want offline, got %s", c.Status())
	}
	c.OnChange(docWithText("a", "x"))
	clk.Advance(10 * time.Second)
	if rec.count() != 0 {
		t.Fatal("saved while offline")
	}
	if !c.State().Queued {
		t.Fatal("expected queued save")
	}
	c.SetOnline(true)
	if rec.count() != 1 || c.Status() != Saved || c.State().Queued {
		t.Fatalf("reconnect: calls=%d state=%+v", rec.count(), c.State())
	}
}

func TestReconnectWithoutQueueRestoresIdle(t *testing.T) {
	rec := &recorder{}
	c, _, _ := newTestController(t, rec)
	c.SetOnline(false)
	c.SetOnline(true)
	if c.Status() != Idle || rec.count() != 0 {
		t.Fatalf("got %s calls=%d", c.Status(), rec.count())
	}
}

// A save that resolves after being superseded must not change state.
func TestStaleResultDiscarded(t *testing.T) {
	var (
		mu      sync.Mutex
		pending []func()
	)
	clk := schedule.NewManual()
	var calls int
	c := New(SaveFunc(func(ctx context.Context, doc *domain.Document) error {
		calls++
		return nil
	}), Config{
		Scheduler: clk,
		Run: func(fn func()) {
			mu.Lock()
			pending = append(pending, fn)
			mu.Unlock()
		},
		Logger: plog.Discard(),
	})
	defer c.Close()

	c.OnChange(docWithText("a", "one"))
	c.SaveNow()
	c.OnChange(docWithText("a", "two"))
	c.SaveNow()
	if len(pending) != 2 {
		t.Fatalf("want 2 attempts started, got %d", len(pending))
	}
	// The newer attempt finishes first, then the stale one.
	pending[1]()
	first := c.State()
	pending[0]()
	if c.State().LastHash != first.LastHash {
		t.Fatal("stale result overwrote persisted hash")
	}
	if first.LastHash != Hash(docWithText("a", "two")) {
		t.Fatal("persisted hash does not match newest document")
	}
}

func TestCancelledFailureIgnored(t *testing.T) {
	clk := schedule.NewManual()
	c := New(SaveFunc(func(ctx context.Context, doc *domain.Document) error {
		return context.Canceled
	}), Config{Scheduler: clk, Run: func(fn func()) { fn() }, Logger: plog.Discard()})
	defer c.Close()
	c.OnChange(docWithText("a", "x"))
	c.SaveNow()
	if st := c.State(); st.Attempt != 0 || st.Status != Idle || len(clk.Pending()) != 0 {
		t.Fatalf("cancellation treated as failure: %+v pending=%v", st, clk.Pending())
	}
}

func TestBackoff(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{10, 30 * time.Second},
		{-1, time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(time.Second, tc.attempt, 30*time.Second); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestHashIgnoresSessionState(t *testing.T) {
	a := docWithText("a", "x")
	b := docWithText("a", "x")
	b.DeviceMode = domain.Mobile
	b.SelectedID = "a"
	if Hash(a) != Hash(b) {
		t.Fatal("session state changed the hash")
	}
	if Hash(a) == Hash(docWithText("a", "y")) {
		t.Fatal("content change kept the hash")
	}
	if Hash(nil) != Hash(domain.NewDocument()) {
		t.Fatal("nil document should hash like an empty one")
	}
}
