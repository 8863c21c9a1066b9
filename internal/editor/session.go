/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editor assembles one editing session: the tree store with its history,
// the drag interpreter, the shortcut dispatcher and the autosave controller.
// Nothing here is global; every session owns its collaborators.
package editor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pagebuilder/internal/autosave"
	"pagebuilder/internal/config"
	"pagebuilder/internal/dnd"
	"pagebuilder/internal/domain"
	applog "pagebuilder/internal/log"
	"pagebuilder/internal/schedule"
	"pagebuilder/internal/shortcut"
	"pagebuilder/internal/storage"
	"pagebuilder/internal/tree"
	"pagebuilder/internal/undo"
)

// ErrOffline is returned by Flush when the save was queued instead of attempted.
var ErrOffline = errors.New("offline: save queued")

// Options configures a Session. Saver is required; the rest default from Config.
type Options struct {
	Config config.AppConfig
	Saver  autosave.Saver
	// Probe enables connectivity monitoring when set.
	Probe autosave.Prober
	// Watch reloads the page when another process rewrites a local manifest.
	Watch bool

	Scheduler schedule.Scheduler
	Run       func(fn func())
	NewID     func() string
	Logger    *slog.Logger
}

// Session is one open page.
type Session struct {
	Store    *tree.Store
	History  *undo.Manager
	Drag     *dnd.Interpreter
	Keys     *shortcut.Dispatcher
	Autosave *autosave.Controller
	Monitor  *autosave.Monitor

	log     *slog.Logger
	unsub   func()
	project *storage.ProjectHandle
	index   *storage.Index
	watcher *storage.Watcher

	wmu     sync.Mutex
	waiters map[chan autosave.State]struct{}
	once    sync.Once
}

// New wires a session around opts.Saver. The store starts empty; call Load.
func New(opts Options) (*Session, error) {
	if opts.Saver == nil {
		return nil, errors.New("editor: saver is required")
	}
	cfg := opts.Config
	if cfg.ConfigVersion == 0 {
		cfg = config.Defaults()
	}
	if opts.Logger == nil {
		opts.Logger = applog.WithComponent("editor")
	}

	hist := undo.NewManager(undo.Config{
		MaxDepth:    cfg.Editor.HistoryDepth,
		MinInterval: cfg.Editor.CoalesceWindow(),
	})
	store := tree.New(tree.Options{
		History: hist,
		NewID:   opts.NewID,
		MinZoom: cfg.Editor.MinZoom,
		MaxZoom: cfg.Editor.MaxZoom,
	})
	ctrl := autosave.New(opts.Saver, autosave.Config{
		Debounce:   cfg.Autosave.Debounce(),
		MaxRetries: cfg.Autosave.MaxRetries,
		BaseDelay:  cfg.Autosave.BaseDelay(),
		MaxDelay:   cfg.Autosave.MaxDelay(),
		SavedHold:  cfg.Autosave.SavedHold(),
		Scheduler:  opts.Scheduler,
		Run:        opts.Run,
	})

	s := &Session{
		Store:    store,
		History:  hist,
		Drag:     dnd.NewInterpreter(store, nil),
		Keys:     shortcut.NewDispatcher(nil),
		Autosave: ctrl,
		log:      opts.Logger,
		waiters:  map[chan autosave.State]struct{}{},
	}
	s.Keys.Register(DefaultShortcuts(s)...)
	s.unsub = store.Subscribe(ctrl.OnChange)
	ctrl.OnStatus(s.broadcast)

	if opts.Probe != nil {
		m, err := autosave.NewMonitor(ctrl, opts.Probe, cfg.Autosave.Probe())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connectivity monitor: %w", err)
		}
		s.Monitor = m
		m.Start()
	}
	return s, nil
}

// Load installs doc as the persisted state: history is cleared and no save is scheduled.
func (s *Session) Load(doc *domain.Document) error {
	if err := s.Store.Load(doc); err != nil {
		return err
	}
	s.Autosave.MarkPersisted(s.Store.Snapshot())
	return nil
}

// Dispatch routes a keystroke through the registered shortcuts.
func (s *Session) Dispatch(ev shortcut.KeyEvent) shortcut.Result { return s.Keys.Dispatch(ev) }

// Flush saves pending changes now and waits until the attempt settles.
// Retries run with their usual backoff; Flush returns the last error once they are exhausted.
func (s *Session) Flush(ctx context.Context) error {
	if !s.Autosave.State().HasPending {
		return nil
	}
	ch := make(chan autosave.State, 16)
	s.wmu.Lock()
	s.waiters[ch] = struct{}{}
	s.wmu.Unlock()
	defer func() {
		s.wmu.Lock()
		delete(s.waiters, ch)
		s.wmu.Unlock()
	}()

	if !s.Autosave.SaveNow() {
		if st := s.Autosave.State(); st.Status == autosave.Offline {
			return ErrOffline
		}
	}
	for {
		st := s.Autosave.State()
		switch {
		case st.Status == autosave.Failed:
			return st.LastError
		case st.Status == autosave.Offline:
			return ErrOffline
		case !st.HasPending && st.Status != autosave.Saving:
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

func (s *Session) broadcast(st autosave.State) {
	s.log.Debug("save status", slog.String("status", string(st.Status)), slog.Int("attempt", st.Attempt))
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for ch := range s.waiters {
		select {
		case ch <- st:
		default:
		}
	}
}

// Project returns the local project backing the session, or nil.
func (s *Session) Project() *storage.ProjectHandle {
	if s == nil {
		return nil
	}
	return s.project
}

// Index returns the local revision index, or nil.
func (s *Session) Index() *storage.Index {
	if s == nil {
		return nil
	}
	return s.index
}

// CrashDir is where crash reports go: the project's backups folder, or "" when not local.
func (s *Session) CrashDir() string {
	if s == nil || s.project == nil {
		return ""
	}
	return s.project.Root
}

// CrashSnapshot writes the live document next to the project's backups.
func (s *Session) CrashSnapshot() (string, error) {
	if s == nil || s.project == nil {
		return "", errors.New("no local project")
	}
	ph := *s.project
	ph.Doc = s.Store.Snapshot()
	return storage.AutosaveCrashSnapshot(&ph)
}

// Close stops monitoring and watching, aborts a running save and releases the index.
// Unsaved changes are not flushed; call Flush first.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		if s.Monitor != nil {
			s.Monitor.Stop()
		}
		if s.watcher != nil {
			err = errors.Join(err, s.watcher.Close())
		}
		if s.unsub != nil {
			s.unsub()
		}
		s.Autosave.Close()
		if s.index != nil {
			err = errors.Join(err, s.index.Close())
		}
	})
	return err
}
