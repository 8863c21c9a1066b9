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
	"fmt"
	"strings"

	"pagebuilder/internal/domain"
)

// SearchQuery describes a block search.
// Text uses SQLite FTS5 syntax (simple terms, phrases in quotes, AND/OR/NOT).
// Types restricts to block types. Limit/Offset paginate; defaults apply when zero.
type SearchQuery struct {
	Text   string
	Types  []domain.BlockType
	Limit  int
	Offset int
}

// SearchResult is one matching block. Path lists ancestor ids joined by '/'.
type SearchResult struct {
	NodeID  string
	Type    domain.BlockType
	Path    string
	Snippet string
}

// IndexBlocks replaces the block search tables with the text content of roots.
func (x *Index) IndexBlocks(ctx context.Context, roots []*domain.Node) error {
	type row struct {
		id, typ, path, text string
	}
	var rows []row
	paths := map[*domain.Node]string{}
	domain.Walk(roots, func(n, parent *domain.Node) bool {
		p := n.ID
		if parent != nil {
			p = paths[parent] + "/" + n.ID
		}
		paths[n] = p
		rows = append(rows, row{id: n.ID, typ: string(n.Type), path: p, text: blockText(n)})
		return true
	})

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM blocks;"); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear blocks: %w", err)
	}
	ins, err := tx.PrepareContext(ctx, "INSERT INTO blocks(node_id, type, path, text) VALUES(?,?,?,?);")
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer ins.Close()
	for _, r := range rows {
		if _, err := ins.ExecContext(ctx, r.id, r.typ, r.path, r.text); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert block: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// blockText collects the user-visible strings of a node.
func blockText(n *domain.Node) string {
	var parts []string
	add := func(s ...string) {
		for _, v := range s {
			if v = strings.TrimSpace(v); v != "" {
				parts = append(parts, v)
			}
		}
	}
	switch p := n.Props.(type) {
	case *domain.ButtonProps:
		add(p.Text, p.Href)
	case *domain.TextProps:
		add(p.Text)
	case *domain.HeadingProps:
		add(p.Text)
	case *domain.ImageProps:
		add(p.Alt, p.Src)
	case *domain.InputProps:
		add(p.Name, p.Placeholder)
	case *domain.FormProps:
		add(p.Action)
	}
	return strings.Join(parts, " ")
}

// Search performs full-text search over indexed blocks.
// When q.Text is empty, it falls back to a plain scan with the type filter applied.
func (x *Index) Search(ctx context.Context, q SearchQuery) ([]SearchResult, error) {
	var args []any
	var sb strings.Builder
	if strings.TrimSpace(q.Text) != "" {
		sb.WriteString("SELECT b.node_id, b.type, b.path, snippet(fts_blocks, 0, '[', ']', '...', 10)\n")
		sb.WriteString("FROM fts_blocks JOIN blocks b ON fts_blocks.rowid = b.doc_id\n")
		sb.WriteString("WHERE fts_blocks MATCH ?\n")
		args = append(args, q.Text)
	} else {
		sb.WriteString("SELECT b.node_id, b.type, b.path, ''\n")
		sb.WriteString("FROM blocks b\nWHERE 1=1\n")
	}
	if len(q.Types) > 0 {
		sb.WriteString(" AND b.type IN (" + placeholders(len(q.Types)) + ")\n")
		for _, t := range q.Types {
			args = append(args, string(t))
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	sb.WriteString("ORDER BY b.doc_id\nLIMIT ? OFFSET ?")
	args = append(args, limit, q.Offset)

	rows, err := x.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var typ string
		var sn sql.NullString
		if err := rows.Scan(&r.NodeID, &typ, &r.Path, &sn); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Type = domain.BlockType(typ)
		if sn.Valid {
			r.Snippet = sn.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := strings.Builder{}
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("?")
	}
	return b.String()
}
