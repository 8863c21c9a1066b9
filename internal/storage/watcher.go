/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"pagebuilder/internal/domain"
	applog "pagebuilder/internal/log"
)

// Watcher reports manifest edits made by other processes.
type Watcher struct {
	fw       *fsnotify.Watcher
	manifest string
	known    func() string
	onChange func(roots []*domain.Node)
	settle   time.Duration
	seen     string
	log      *slog.Logger
	done     chan struct{}
	once     sync.Once
}

// Watch observes ph's manifest until ctx is cancelled or Close is called. onChange receives the
// decoded roots whenever the file's content hash differs from known(). Writes are coalesced
// over a short settle window; undecodable intermediate states are skipped.
func Watch(ctx context.Context, ph *ProjectHandle, known func() string, onChange func(roots []*domain.Node)) (*Watcher, error) {
	if ph == nil || ph.Root == "" {
		return nil, errors.New("invalid ProjectHandle: missing paths")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	// Watch the directory: temp+rename replaces the inode, which a file watch would lose.
	if err := fw.Add(ph.Root); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", ph.Root, err)
	}
	w := &Watcher{
		fw:       fw,
		manifest: filepath.Clean(ph.ManifestPath),
		known:    known,
		onChange: onChange,
		settle:   100 * time.Millisecond,
		log:      applog.WithComponent("storage.watch"),
		done:     make(chan struct{}),
	}
	go w.loop(ctx)
	return w, nil
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() { err = w.fw.Close() })
	<-w.done
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	defer w.once.Do(func() { _ = w.fw.Close() })

	var timer *time.Timer
	fire := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", slog.Any("err", err))
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.manifest || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.settle, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			w.check()
		}
	}
}

func (w *Watcher) check() {
	b, err := os.ReadFile(w.manifest)
	if err != nil {
		return
	}
	_, roots, err := Decode(b)
	if err != nil {
		w.log.Debug("ignoring undecodable manifest", slog.Any("err", err))
		return
	}
	hash, err := ContentHash(roots)
	if err != nil || hash == w.seen || (w.known != nil && hash == w.known()) {
		return
	}
	w.seen = hash
	w.log.Info("external manifest change", slog.String("path", w.manifest))
	w.onChange(roots)
}
