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
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/ksuid"

	"pagebuilder/internal/domain"
)

// ErrNoRevisions is returned when the history is empty or an id is unknown.
var ErrNoRevisions = errors.New("no revisions")

// Revision is one stored version of the page content.
// Content is only populated by LatestRevision and GetRevision.
type Revision struct {
	ID        string
	CreatedAt time.Time
	Hash      string
	Source    string
	Nodes     int
	Content   []byte
}

// Roots decodes the stored content.
func (r Revision) Roots() ([]*domain.Node, error) {
	if len(r.Content) == 0 {
		return nil, errors.New("revision content not loaded")
	}
	return domain.UnmarshalRoots(r.Content)
}

// RecordRevision stores roots unless they match the latest revision.
// It reports whether a new row was written.
func (x *Index) RecordRevision(ctx context.Context, source string, roots []*domain.Node) (Revision, bool, error) {
	content, err := domain.MarshalRoots(roots)
	if err != nil {
		return Revision{}, false, fmt.Errorf("marshal revision: %w", err)
	}
	hash, err := ContentHash(roots)
	if err != nil {
		return Revision{}, false, err
	}
	if last, err := x.LatestRevision(ctx); err == nil && last.Hash == hash {
		return last, false, nil
	} else if err != nil && !errors.Is(err, ErrNoRevisions) {
		return Revision{}, false, err
	}
	nodes := 0
	domain.Walk(roots, func(*domain.Node, *domain.Node) bool { nodes++; return true })
	rev := Revision{
		ID:        ksuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Hash:      hash,
		Source:    source,
		Nodes:     nodes,
		Content:   content,
	}
	_, err = x.db.ExecContext(ctx,
		`INSERT INTO revisions(id, created_at, hash, source, nodes, content) VALUES(?,?,?,?,?,?)`,
		rev.ID, rev.CreatedAt.Format(time.RFC3339Nano), rev.Hash, rev.Source, rev.Nodes, rev.Content)
	if err != nil {
		return Revision{}, false, fmt.Errorf("insert revision: %w", err)
	}
	x.log.Debug("revision recorded", slog.String("id", rev.ID), slog.String("source", source), slog.Int("nodes", nodes))
	return rev, true, nil
}

// LatestRevision returns the most recently recorded revision with its content.
func (x *Index) LatestRevision(ctx context.Context) (Revision, error) {
	row := x.db.QueryRowContext(ctx,
		`SELECT id, created_at, hash, source, nodes, content FROM revisions ORDER BY rowid DESC LIMIT 1`)
	return scanRevision(row)
}

// GetRevision loads one revision with its content.
func (x *Index) GetRevision(ctx context.Context, id string) (Revision, error) {
	row := x.db.QueryRowContext(ctx,
		`SELECT id, created_at, hash, source, nodes, content FROM revisions WHERE id=?`, id)
	return scanRevision(row)
}

func scanRevision(row *sql.Row) (Revision, error) {
	var (
		r  Revision
		ts string
	)
	if err := row.Scan(&r.ID, &ts, &r.Hash, &r.Source, &r.Nodes, &r.Content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Revision{}, ErrNoRevisions
		}
		return Revision{}, fmt.Errorf("scan revision: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
	return r, nil
}

// ListRevisions returns up to limit revisions, newest first, without content.
func (x *Index) ListRevisions(ctx context.Context, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := x.db.QueryContext(ctx,
		`SELECT id, created_at, hash, source, nodes FROM revisions ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()
	var out []Revision
	for rows.Next() {
		var (
			r  Revision
			ts string
		)
		if err := rows.Scan(&r.ID, &ts, &r.Hash, &r.Source, &r.Nodes); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneRevisions deletes all but the newest keep revisions and returns the number removed.
func (x *Index) PruneRevisions(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := x.db.ExecContext(ctx,
		`DELETE FROM revisions WHERE rowid NOT IN (SELECT rowid FROM revisions ORDER BY rowid DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune revisions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
