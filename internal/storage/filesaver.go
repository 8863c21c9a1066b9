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
	"log/slog"
	"sync"

	"pagebuilder/internal/domain"
	applog "pagebuilder/internal/log"
)

// FileSaver persists documents into a project directory. It satisfies the autosave Saver contract.
type FileSaver struct {
	mu   sync.Mutex
	ph   *ProjectHandle
	idx  *Index
	last string
	log  *slog.Logger
}

// NewFileSaver writes through ph. idx may be nil; when set, every write is recorded as a revision
// and the block search tables are refreshed.
func NewFileSaver(ph *ProjectHandle, idx *Index) *FileSaver {
	s := &FileSaver{ph: ph, idx: idx, log: applog.WithComponent("storage.saver")}
	if ph.Doc != nil {
		s.last, _ = ContentHash(ph.Doc.Roots)
	}
	return s
}

// Save writes doc unless ctx is cancelled before the manifest is replaced.
func (s *FileSaver) Save(ctx context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	hash, err := ContentHash(doc.Roots)
	if err != nil {
		return err
	}
	data, err := Encode(s.ph.Name, doc.Roots)
	if err != nil {
		return err
	}
	if err := writeManifest(ctx, s.ph, data); err != nil {
		return err
	}
	s.last = hash
	if s.idx != nil {
		// The manifest is the source of truth; index failures are logged only.
		if _, _, err := s.idx.RecordRevision(ctx, "autosave", doc.Roots); err != nil {
			s.log.Warn("record revision failed", slog.Any("err", err))
		}
		if err := s.idx.IndexBlocks(ctx, doc.Roots); err != nil {
			s.log.Warn("index blocks failed", slog.Any("err", err))
		}
	}
	s.log.Debug("page saved", slog.String("path", s.ph.ManifestPath), slog.Int("nodes", doc.Count()))
	return nil
}

// LastWritten returns the content hash of the last manifest this saver wrote or loaded.
func (s *FileSaver) LastWritten() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Handle returns the project handle the saver writes to.
func (s *FileSaver) Handle() *ProjectHandle { return s.ph }
