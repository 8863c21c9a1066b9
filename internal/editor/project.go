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
	"log/slog"

	"pagebuilder/internal/backend"
	"pagebuilder/internal/domain"
	"pagebuilder/internal/storage"
)

// OpenLocal opens the project at root and saves through its manifest. The revision index
// is best-effort: when it cannot be opened the session runs without one.
//
// A *storage.LoadWarning is returned together with a usable session holding an empty page
// when the manifest and every backup were unreadable.
func OpenLocal(ctx context.Context, root string, opts Options) (*Session, error) {
	l := opts.Logger
	ph, err := storage.Open(root)
	var warn *storage.LoadWarning
	if err != nil && !errors.As(err, &warn) {
		return nil, err
	}

	idx, rebuilt, ierr := storage.OpenOrRebuildIndex(ctx, root, ph.Doc.Roots)
	if ierr != nil {
		idx = nil
	}
	fs := storage.NewFileSaver(ph, idx)
	opts.Saver = fs
	s, err := New(opts)
	if err != nil {
		if idx != nil {
			_ = idx.Close()
		}
		return nil, err
	}
	if l == nil {
		l = s.log
	}
	if ierr != nil {
		l.Warn("revision index unavailable", slog.Any("err", ierr))
	}
	s.project, s.index = ph, idx
	if err := s.Load(ph.Doc); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("load page: %w", err)
	}
	if idx != nil {
		if !rebuilt {
			if err := idx.IndexBlocks(ctx, ph.Doc.Roots); err != nil {
				l.Warn("index blocks failed", slog.Any("err", err))
			}
		}
		if _, _, err := idx.RecordRevision(ctx, "open", ph.Doc.Roots); err != nil {
			l.Warn("record revision failed", slog.Any("err", err))
		}
	}
	if opts.Watch {
		w, err := storage.Watch(ctx, ph, fs.LastWritten, s.external)
		if err != nil {
			l.Warn("manifest watch unavailable", slog.Any("err", err))
		} else {
			s.watcher = w
		}
	}
	l.Info("page opened", slog.String("root", root), slog.Int("nodes", ph.Doc.Count()), slog.Bool("index_rebuilt", rebuilt))
	if warn != nil {
		return s, warn
	}
	return s, nil
}

// external adopts a manifest rewritten by another process as an undoable replace.
func (s *Session) external(roots []*domain.Node) {
	s.Autosave.MarkPersisted(&domain.Document{Roots: roots})
	if out := s.Store.ReplaceAll(roots); out.OK() {
		s.Autosave.MarkPersisted(s.Store.Snapshot())
		s.log.Info("page reloaded after external change", slog.Int("roots", len(roots)))
	}
}

// OpenRemote loads pageID from the page server and saves back to it. Connectivity is
// probed with the server's health endpoint unless opts.Probe is set.
func OpenRemote(ctx context.Context, c *backend.Client, pageID string, opts Options) (*Session, backend.PageMeta, error) {
	meta, roots, err := c.GetPage(ctx, pageID)
	if err != nil {
		return nil, backend.PageMeta{}, fmt.Errorf("fetch page %s: %w", pageID, err)
	}
	opts.Saver = c.Saver(pageID)
	if opts.Probe == nil {
		opts.Probe = c.Ping
	}
	s, err := New(opts)
	if err != nil {
		return nil, meta, err
	}
	doc := domain.NewDocument()
	doc.Roots = roots
	if err := s.Load(doc); err != nil {
		_ = s.Close()
		return nil, meta, fmt.Errorf("load page: %w", err)
	}
	return s, meta, nil
}
