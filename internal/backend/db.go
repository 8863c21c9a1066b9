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
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	applog "pagebuilder/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when a page does not exist.
	ErrNotFound = errors.New("page not found")
	// ErrConflict is returned when a save is based on a stale version.
	ErrConflict = errors.New("page version conflict")
)

// PageMeta describes a stored page without its content.
type PageMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     int64     `json:"version"`
	ContentHash string    `json:"content_hash"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Page is a stored page with its persisted node forest.
type Page struct {
	PageMeta
	Content []byte `json:"-"`
}

// SaveRequest replaces a page's content. BaseVersion 0 skips the conflict check.
type SaveRequest struct {
	Name        string
	Content     []byte
	BaseVersion int64
	Author      string
}

// PageStore is the persistence behind the HTTP handlers.
type PageStore interface {
	Ping(ctx context.Context) error
	ListPages(ctx context.Context, query string) ([]PageMeta, error)
	GetPage(ctx context.Context, id string) (Page, error)
	SaveContent(ctx context.Context, id string, req SaveRequest) (PageMeta, error)
}

// OpenDB opens Postgres through the pgx stdlib driver, pings it and applies migrations.
func OpenDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := applyMigrations(pctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// applyMigrations applies embedded SQL migrations in filename order.
func applyMigrations(ctx context.Context, db *sql.DB) error {
	l := applog.WithComponent("backend.migrate")
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		l.Info("applying migration", "file", fname)
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version, name) VALUES($1, $2)`, version, fname); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", fname, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}

func contentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// pgStore implements PageStore on Postgres.
type pgStore struct{ db *sql.DB }

// NewPGStore wraps an open database.
func NewPGStore(db *sql.DB) PageStore { return &pgStore{db: db} }

func (s *pgStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *pgStore) ListPages(ctx context.Context, query string) ([]PageMeta, error) {
	q := `SELECT id, name, version, content_hash, updated_at FROM pages`
	var args []any
	if query = strings.TrimSpace(query); query != "" {
		q += ` WHERE name ILIKE $1 OR id ILIKE $1`
		args = append(args, "%"+query+"%")
	}
	q += ` ORDER BY updated_at DESC, id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()
	list := []PageMeta{}
	for rows.Next() {
		var p PageMeta
		if err := rows.Scan(&p.ID, &p.Name, &p.Version, &p.ContentHash, &p.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

func (s *pgStore) GetPage(ctx context.Context, id string) (Page, error) {
	var p Page
	var content string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, version, content_hash, updated_at, content::text FROM pages WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.Version, &p.ContentHash, &p.UpdatedAt, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, fmt.Errorf("get page: %w", err)
	}
	p.Content = []byte(content)
	return p, nil
}

// SaveContent creates or updates a page and appends a revision. Identical content is a no-op.
func (s *pgStore) SaveContent(ctx context.Context, id string, req SaveRequest) (PageMeta, error) {
	hash := contentHash(req.Content)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PageMeta{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var cur PageMeta
	err = tx.QueryRowContext(ctx,
		`SELECT id, name, version, content_hash, updated_at FROM pages WHERE id=$1 FOR UPDATE`, id).
		Scan(&cur.ID, &cur.Name, &cur.Version, &cur.ContentHash, &cur.UpdatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if req.BaseVersion > 0 {
			return PageMeta{}, ErrNotFound
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO pages(id, name, content, content_hash, version) VALUES($1, $2, $3::jsonb, $4, 1)
			 RETURNING id, name, version, content_hash, updated_at`,
			id, req.Name, string(req.Content), hash).
			Scan(&cur.ID, &cur.Name, &cur.Version, &cur.ContentHash, &cur.UpdatedAt)
		if err != nil {
			return PageMeta{}, fmt.Errorf("insert page: %w", err)
		}
	case err != nil:
		return PageMeta{}, fmt.Errorf("lock page: %w", err)
	default:
		if req.BaseVersion > 0 && req.BaseVersion != cur.Version {
			return cur, ErrConflict
		}
		if cur.ContentHash == hash && (req.Name == "" || req.Name == cur.Name) {
			return cur, nil
		}
		name := req.Name
		if name == "" {
			name = cur.Name
		}
		err = tx.QueryRowContext(ctx,
			`UPDATE pages SET name=$2, content=$3::jsonb, content_hash=$4, version=version+1, updated_at=now()
			 WHERE id=$1 RETURNING id, name, version, content_hash, updated_at`,
			id, name, string(req.Content), hash).
			Scan(&cur.ID, &cur.Name, &cur.Version, &cur.ContentHash, &cur.UpdatedAt)
		if err != nil {
			return PageMeta{}, fmt.Errorf("update page: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO page_revisions(page_id, version, content, author) VALUES($1, $2, $3::jsonb, $4)`,
		id, cur.Version, string(req.Content), req.Author); err != nil {
		return PageMeta{}, fmt.Errorf("insert revision: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return PageMeta{}, fmt.Errorf("commit: %w", err)
	}
	return cur, nil
}
