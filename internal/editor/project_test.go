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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pagebuilder/internal/domain"
	"pagebuilder/internal/schedule"
	"pagebuilder/internal/storage"
	"pagebuilder/internal/tree"
)

func initLocal(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	doc := domain.NewDocument()
	h := domain.NewNode(domain.Heading, "h1")
	h.Props.(*domain.HeadingProps).Text = "Welcome"
	doc.Roots = []*domain.Node{h}
	if _, err := storage.InitProject(root, "Demo", doc); err != nil {
		t.Fatalf("InitProject: %v", err)
	}
	return root
}

func TestOpenLocalEditFlushReopen(t *testing.T) {
	root := initLocal(t)
	ctx := context.Background()
	s, err := OpenLocal(ctx, root, testOptions(schedule.NewManual(), nil))
	if err != nil {
		t.Fatalf("OpenLocal: %v", err)
	}
	if s.Store.Len() != 1 || s.Project() == nil || s.Index() == nil {
		t.Fatalf("session not populated: len=%d", s.Store.Len())
	}
	if _, out := s.Store.Insert(domain.Button, tree.AtRoot(-1)); out != tree.Applied {
		t.Fatalf("insert: %v", out)
	}
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	revs, err := s.Index().ListRevisions(ctx, 10)
	if err != nil {
		t.Fatalf("ListRevisions: %v", err)
	}
	if len(revs) != 2 || revs[0].Source != "autosave" || revs[1].Source != "open" {
		t.Fatalf("revisions: %+v", revs)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	ph, err := storage.Open(root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if n := len(ph.Doc.Roots); n != 2 || ph.Doc.Roots[1].Type != domain.Button {
		t.Fatalf("persisted roots: %d", n)
	}
}

func TestOpenLocalMalformedManifestWarns(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, storage.ManifestFileName), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := OpenLocal(context.Background(), root, testOptions(schedule.NewManual(), nil))
	var warn *storage.LoadWarning
	if !errors.As(err, &warn) {
		t.Fatalf("want LoadWarning, got %v", err)
	}
	if s == nil {
		t.Fatal("session must be usable after a load warning")
	}
	defer s.Close()
	if s.Store.Len() != 0 {
		t.Fatalf("expected empty page, got %d nodes", s.Store.Len())
	}
}

func TestOpenLocalMissingProject(t *testing.T) {
	if _, err := OpenLocal(context.Background(), filepath.Join(t.TempDir(), "nope"), testOptions(schedule.NewManual(), nil)); err == nil {
		t.Fatal("expected error for missing project")
	}
}

func TestExternalChangeIsAdoptedWithoutResave(t *testing.T) {
	root := initLocal(t)
	saver := &memSaver{}
	s, clk := newTestSession(t, saver)
	ph, err := storage.Open(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Load(ph.Doc); err != nil {
		t.Fatal(err)
	}
	s.external([]*domain.Node{domain.NewNode(domain.Text, "ext")})
	if _, ok := s.Store.Node("ext"); !ok {
		t.Fatal("external content not applied")
	}
	clk.Advance(time.Minute)
	if saver.count() != 0 {
		t.Fatalf("external content must not be saved back, got %d saves", saver.count())
	}
	if !s.Store.CanUndo() {
		t.Fatal("external reload should be undoable")
	}
}

func TestCrashSnapshot(t *testing.T) {
	root := initLocal(t)
	s, err := OpenLocal(context.Background(), root, testOptions(schedule.NewManual(), nil))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.Store.Insert(domain.Text, tree.AtRoot(-1))
	path, err := s.CrashSnapshot()
	if err != nil {
		t.Fatalf("CrashSnapshot: %v", err)
	}
	if !strings.Contains(filepath.Base(path), ".crash-") {
		t.Fatalf("unexpected path %s", path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	_, roots, err := storage.Decode(b)
	if err != nil || len(roots) != 2 {
		t.Fatalf("snapshot content: %d roots, err %v", len(roots), err)
	}

	var none *Session
	if _, err := none.CrashSnapshot(); err == nil {
		t.Fatal("nil session has nothing to snapshot")
	}
}
