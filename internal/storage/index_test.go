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
	"os"
	"testing"

	"pagebuilder/internal/domain"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	x, err := OpenIndex(t.TempDir())
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func TestOpenIndexCreatesFileAndMigrates(t *testing.T) {
	root := t.TempDir()
	x, err := OpenIndex(root)
	if err != nil {
		t.Fatalf("OpenIndex: %v", err)
	}
	defer x.Close()
	if _, err := os.Stat(IndexPath(root)); err != nil {
		t.Fatalf("index file missing: %v", err)
	}
	v, err := x.storedSchema(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != schemaVersion {
		t.Fatalf("schema version %d, want %d", v, schemaVersion)
	}
}

func TestRevisionsRecordDedupeListPrune(t *testing.T) {
	ctx := context.Background()
	x := openTestIndex(t)

	if _, err := x.LatestRevision(ctx); !errors.Is(err, ErrNoRevisions) {
		t.Fatalf("want ErrNoRevisions, got %v", err)
	}
	doc := samplePage()
	first, wrote, err := x.RecordRevision(ctx, "test", doc.Roots)
	if err != nil || !wrote {
		t.Fatalf("RecordRevision: wrote=%v err=%v", wrote, err)
	}
	if first.Nodes != 3 {
		t.Fatalf("node count %d", first.Nodes)
	}
	if _, wrote, _ := x.RecordRevision(ctx, "test", doc.Roots); wrote {
		t.Fatal("identical content recorded twice")
	}

	for _, text := range []string{"a", "b", "c"} {
		n := domain.NewNode(domain.Text, "t-"+text)
		n.Props = &domain.TextProps{Text: text}
		if _, _, err := x.RecordRevision(ctx, "test", []*domain.Node{n}); err != nil {
			t.Fatal(err)
		}
	}
	revs, err := x.ListRevisions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != 4 {
		t.Fatalf("want 4 revisions, got %d", len(revs))
	}
	if revs[len(revs)-1].ID != first.ID {
		t.Fatal("revisions not newest first")
	}
	latest, err := x.LatestRevision(ctx)
	if err != nil {
		t.Fatal(err)
	}
	roots, err := latest.Roots()
	if err != nil {
		t.Fatal(err)
	}
	if roots[0].ID != "t-c" {
		t.Fatalf("latest revision content: %s", roots[0].ID)
	}
	got, err := x.GetRevision(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r, _ := got.Roots(); !sameRoots(t, r, doc.Roots) {
		t.Fatal("stored revision differs from recorded roots")
	}

	n, err := x.PruneRevisions(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("pruned %d, want 2", n)
	}
	if _, err := x.GetRevision(ctx, first.ID); !errors.Is(err, ErrNoRevisions) {
		t.Fatalf("oldest revision should be gone: %v", err)
	}
}

func TestSearchBlocks(t *testing.T) {
	ctx := context.Background()
	x := openTestIndex(t)
	if err := x.IndexBlocks(ctx, samplePage().Roots); err != nil {
		t.Fatalf("IndexBlocks: %v", err)
	}
	res, err := x.Search(ctx, SearchQuery{Text: "welcome"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res) != 1 || res[0].NodeID != "h1" || res[0].Path != "sec/h1" {
		t.Fatalf("unexpected results: %+v", res)
	}
	res, err = x.Search(ctx, SearchQuery{Types: []domain.BlockType{domain.Button}})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].NodeID != "cta" {
		t.Fatalf("type filter: %+v", res)
	}
	// Reindexing replaces rows.
	if err := x.IndexBlocks(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if res, _ := x.Search(ctx, SearchQuery{}); len(res) != 0 {
		t.Fatalf("stale rows after reindex: %+v", res)
	}
}

func TestFileSaverRecordsRevisions(t *testing.T) {
	ctx := context.Background()
	ph, err := InitProject(t.TempDir(), "Revs", domain.NewDocument())
	if err != nil {
		t.Fatal(err)
	}
	x, err := OpenIndex(ph.Root)
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()
	s := NewFileSaver(ph, x)
	if err := s.Save(ctx, samplePage()); err != nil {
		t.Fatal(err)
	}
	rev, err := x.LatestRevision(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rev.Source != "autosave" || rev.Hash != s.LastWritten() {
		t.Fatalf("revision %+v", rev)
	}
}
