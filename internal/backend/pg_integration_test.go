/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"
)

func openPGForTest(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PB_PG_DSN")
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		t.Skip("PB_PG_DSN/DATABASE_URL not set")
	}
	db, err := OpenDB(context.Background(), dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	return db
}

func TestPGStoreSaveVersionsAndRevisions(t *testing.T) {
	db := openPGForTest(t)
	defer func() { _ = db.Close() }()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id := fmt.Sprintf("it-%d", time.Now().UnixNano())
	defer func() { _, _ = db.ExecContext(context.Background(), `DELETE FROM pages WHERE id=$1`, id) }()

	s := NewPGStore(db)
	m1, err := s.SaveContent(ctx, id, SaveRequest{Name: "IT", Content: []byte(`[]`)})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	m2, err := s.SaveContent(ctx, id, SaveRequest{Content: []byte(`[{"id":"a","type":"Text","props":{"text":"x"},"style":{"base":{}},"children":[]}]`), BaseVersion: m1.Version})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if m2.Version != m1.Version+1 || m2.Name != "IT" {
		t.Fatalf("unexpected meta %+v", m2)
	}
	if _, err := s.SaveContent(ctx, id, SaveRequest{Content: []byte(`[]`), BaseVersion: m1.Version}); !errors.Is(err, ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT count(*) FROM page_revisions WHERE page_id=$1`, id).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("want 2 revisions, got %d", n)
	}
	p, err := s.GetPage(ctx, id)
	if err != nil || p.Version != m2.Version {
		t.Fatalf("GetPage: %+v %v", p, err)
	}
	if _, err := s.GetPage(ctx, id+"-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
