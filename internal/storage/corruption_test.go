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
	"os"
	"path/filepath"
	"testing"
)

func TestOpenOrRebuildIndexOnCorruption(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, IndexDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(IndexPath(root), []byte("THIS IS NOT SQLITE"), 0o644); err != nil {
		t.Fatalf("write corrupt: %v", err)
	}
	x, rebuilt, err := OpenOrRebuildIndex(context.Background(), root, samplePage().Roots)
	if err != nil {
		t.Fatalf("OpenOrRebuildIndex: %v", err)
	}
	defer x.Close()
	if !rebuilt {
		t.Fatal("expected rebuild to occur")
	}
	res, err := x.Search(context.Background(), SearchQuery{Text: "sign"})
	if err != nil || len(res) != 1 {
		t.Fatalf("rebuilt index not searchable: %v %+v", err, res)
	}
	ents, _ := os.ReadDir(filepath.Join(root, IndexDirName, "backups"))
	if len(ents) == 0 {
		t.Fatal("expected corrupt index to be backed up")
	}
}

func TestOpenOrRebuildIndexHealthy(t *testing.T) {
	root := t.TempDir()
	x, rebuilt, err := OpenOrRebuildIndex(context.Background(), root, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer x.Close()
	if rebuilt {
		t.Fatal("fresh index should not be rebuilt")
	}
}
